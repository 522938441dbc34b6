package oauth2

import (
	"context"
	"time"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
// Determines what credentials are required to obtain tokens.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	// Token request includes: code, client_id, client_secret, redirect_uri
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenGrant exchanges a refresh token for a new access token.
	// Token request includes: refresh_token, client_id, client_secret
	// The refresh token itself is returned unchanged.
	RefreshTokenGrant GrantType = "refresh_token"
)

const TokenTypeBearer = "Bearer"

// AuthorizationCode is a single-use grant bound to one client, user and redirect URI.
type AuthorizationCode struct {
	Code        string
	ClientID    string
	UserID      string
	Scopes      []string
	RedirectURI string
	ExpiresAt   time.Time
	Used        bool
	CreatedAt   time.Time
}

// RedeemableAt reports whether the code is unused and now is strictly before ExpiresAt.
func (c *AuthorizationCode) RedeemableAt(now time.Time) bool {
	return !c.Used && now.Before(c.ExpiresAt)
}

// CodeRepo stores authorization codes. Get returns errors.ErrNotFound for unknown codes.
type CodeRepo interface {
	Insert(ctx context.Context, code *AuthorizationCode) error
	Get(ctx context.Context, code string) (*AuthorizationCode, error)
	// MarkUsed flips an unused code that is still valid at now and reports whether this
	// call did it. Two concurrent exchanges of one code see exactly one true.
	MarkUsed(ctx context.Context, code string, now time.Time) (bool, error)
	// DeleteExpired removes codes whose ExpiresAt is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
