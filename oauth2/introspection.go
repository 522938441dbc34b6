package oauth2

import (
	"context"

	"github.com/pkg/errors"

	"github.com/ggrighi15/fusione-dev-sub001/token"
)

// Token type hints accepted by Introspect (RFC 7662 section 2.1).
const (
	TokenTypeHintAccessToken  = "access_token"
	TokenTypeHintRefreshToken = "refresh_token"
)

// Introspection is the RFC 7662 response. Inactive tokens carry only Active.
type Introspection struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Subject   string `json:"sub,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
	Issuer    string `json:"iss,omitempty"`
	ID        string `json:"jti,omitempty"`
}

// Introspect reports whether tokenStr is live. Any authenticated client may introspect
// access tokens; refresh tokens are only reported to the client they were issued to. The
// hint decides which kind is tried first.
func (e *Engine) Introspect(ctx context.Context, tokenStr, hint, clientID, clientSecret string) (*Introspection, error) {
	if _, err := e.authenticateClient(ctx, clientID, clientSecret); err != nil {
		return nil, errors.Wrap(err, "[Engine.Introspect]")
	}

	lookups := []func() (*Introspection, error){
		func() (*Introspection, error) { return e.introspectAccess(tokenStr), nil },
		func() (*Introspection, error) { return e.introspectRefresh(ctx, tokenStr, clientID) },
	}
	if hint == TokenTypeHintRefreshToken {
		lookups[0], lookups[1] = lookups[1], lookups[0]
	}
	for _, lookup := range lookups {
		result, err := lookup()
		if err != nil {
			return nil, errors.Wrap(err, "[Engine.Introspect]")
		}
		if result != nil {
			return result, nil
		}
	}
	return &Introspection{Active: false}, nil
}

func (e *Engine) introspectAccess(tokenStr string) *Introspection {
	claims, err := e.codec.Verify(tokenStr)
	if err != nil {
		return nil
	}
	return &Introspection{
		Active:    true,
		Scope:     claims.Scope,
		ClientID:  claims.ClientID,
		Subject:   claims.Subject,
		TokenType: TokenTypeBearer,
		ExpiresAt: claims.ExpiresAt.Unix(),
		IssuedAt:  claims.IssuedAt.Unix(),
		Issuer:    claims.Issuer,
		ID:        claims.ID,
	}
}

func (e *Engine) introspectRefresh(ctx context.Context, tokenStr, clientID string) (*Introspection, error) {
	record, err := e.refresh.Verify(ctx, tokenStr)
	if err != nil {
		return nil, err
	}
	if record == nil || record.ClientID != clientID {
		return nil, nil
	}
	return &Introspection{
		Active:    true,
		Scope:     record.Scope,
		ClientID:  record.ClientID,
		Subject:   record.UserID,
		TokenType: TokenTypeHintRefreshToken,
		ExpiresAt: record.ExpiresAt.Unix(),
		IssuedAt:  record.CreatedAt.Unix(),
	}, nil
}

// KeySet returns the public keys access tokens can be verified with. HMAC signing
// publishes none and answers ErrNotFound.
func (e *Engine) KeySet() (*token.JWKS, error) {
	return e.codec.KeySet()
}
