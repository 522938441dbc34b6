package oauth2

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/ggrighi15/fusione-dev-sub001/audit"
	"github.com/ggrighi15/fusione-dev-sub001/clients"
	"github.com/ggrighi15/fusione-dev-sub001/internal/config"
	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/internal/metrics"
	"github.com/ggrighi15/fusione-dev-sub001/internal/storecall"
	"github.com/ggrighi15/fusione-dev-sub001/internal/utils"
	"github.com/ggrighi15/fusione-dev-sub001/token"
	"github.com/ggrighi15/fusione-dev-sub001/token/refresh"
)

const (
	clientIDLength     = 16
	clientSecretLength = 32
	codeLength         = 32
)

// RefreshTokens is the part of the refresh token manager the engine needs.
type RefreshTokens interface {
	Issue(ctx context.Context, userID, clientID, scope string, metadata map[string]any) (string, error)
	Verify(ctx context.Context, tokenStr string) (*refresh.Record, error)
	Revoke(ctx context.Context, tokenStr string) (bool, error)
}

var _ RefreshTokens = (*refresh.Manager)(nil)

// Engine implements client registration and the authorization code grant.
type Engine struct {
	clients      clients.Repo
	codes        CodeRepo
	codec        *token.Codec
	refresh      RefreshTokens
	config       config.OAuth
	audit        audit.Logger
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	storeTimeout time.Duration
	nowFunc      func() time.Time
}

type Option func(*Engine)

func WithConfig(c config.OAuth) Option {
	return func(e *Engine) {
		e.config = c
	}
}

func WithAuditLogger(l audit.Logger) Option {
	return func(e *Engine) {
		e.audit = l
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.storeTimeout = d
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(e *Engine) {
		e.nowFunc = now
	}
}

func NewEngine(clientRepo clients.Repo, codes CodeRepo, codec *token.Codec, refreshTokens RefreshTokens, options ...Option) *Engine {
	e := &Engine{
		clients:      clientRepo,
		codes:        codes,
		codec:        codec,
		refresh:      refreshTokens,
		config:       config.Default().OAuth,
		audit:        audit.Discard{},
		logger:       zerolog.Nop(),
		storeTimeout: 3 * time.Second,
		nowFunc:      time.Now,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// RegisterClient creates a client owned by ownerID. The plaintext secret is only ever
// returned here.
func (e *Engine) RegisterClient(ctx context.Context, md clients.Metadata, ownerID string) (*RegisteredClient, error) {
	if err := md.Validate(); err != nil {
		return nil, errors.Wrap(err, "[Engine.RegisterClient]")
	}

	clientID, err := token.RandomHex(clientIDLength)
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.RegisterClient]")
	}
	secret, err := token.RandomURLSafe(clientSecretLength)
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.RegisterClient]")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.RegisterClient] hash secret")
	}

	client := &clients.Client{
		ID:             clientID,
		SecretHash:     string(hash),
		Name:           md.Name,
		RedirectURIs:   md.RedirectURIs,
		Scopes:         md.Scopes,
		GrantTypes:     md.GrantTypes,
		IsConfidential: md.IsConfidential,
		IsActive:       true,
		OwnerID:        ownerID,
		CreatedAt:      e.nowFunc(),
	}
	if err := storecall.Exec(ctx, e.storeTimeout, func(ctx context.Context) error {
		return e.clients.Create(ctx, client)
	}); err != nil {
		return nil, errors.Wrap(err, "[Engine.RegisterClient] failed to store client")
	}
	e.metrics.RecordClientRegistered(ctx)

	e.audit.Log(ctx, audit.Event{
		UserID:      ownerID,
		EventType:   audit.EventClientRegistered,
		Category:    audit.CategoryAuthorization,
		Severity:    audit.SeverityLow,
		Description: "oauth2 client registered",
		Metadata:    map[string]any{"client_id": clientID, "name": md.Name},
	})
	return &RegisteredClient{ClientID: clientID, ClientSecret: secret}, nil
}

// IssueAuthorizationCode grants userID a code for clientID. An empty scope list is
// granted the client's registered scopes.
func (e *Engine) IssueAuthorizationCode(ctx context.Context, clientID, userID string, scopes []string, redirectURI string) (string, error) {
	client, err := e.activeClient(ctx, clientID)
	if err != nil {
		return "", e.codeDenied(ctx, clientID, userID, errors.Wrap(err, "[Engine.IssueAuthorizationCode]"))
	}
	if !client.AllowsGrant(clients.GrantTypeAuthorizationCode) {
		return "", e.codeDenied(ctx, clientID, userID,
			autherrors.Wrapf(autherrors.ErrInvalidClient, "[Engine.IssueAuthorizationCode] client %s may not use the authorization code grant", clientID))
	}
	if !client.HasRedirectURI(redirectURI) {
		return "", e.codeDenied(ctx, clientID, userID,
			autherrors.Wrapf(autherrors.ErrInvalidRedirect, "[Engine.IssueAuthorizationCode] redirect URI %q is not registered", redirectURI))
	}
	granted, err := client.ResolveScopes(scopes)
	if err != nil {
		return "", e.codeDenied(ctx, clientID, userID, errors.Wrap(err, "[Engine.IssueAuthorizationCode]"))
	}

	codeStr, err := token.RandomURLSafe(codeLength)
	if err != nil {
		return "", errors.Wrap(err, "[Engine.IssueAuthorizationCode]")
	}
	now := e.nowFunc()
	code := &AuthorizationCode{
		Code:        codeStr,
		ClientID:    clientID,
		UserID:      userID,
		Scopes:      granted,
		RedirectURI: redirectURI,
		ExpiresAt:   now.Add(e.config.CodeExpiry),
		CreatedAt:   now,
	}
	if err := storecall.Exec(ctx, e.storeTimeout, func(ctx context.Context) error {
		return e.codes.Insert(ctx, code)
	}); err != nil {
		return "", errors.Wrap(err, "[Engine.IssueAuthorizationCode] failed to store code")
	}
	e.metrics.RecordCodeIssued(ctx, clientID)

	e.audit.Log(ctx, audit.Event{
		UserID:      userID,
		EventType:   audit.EventCodeIssued,
		Category:    audit.CategoryAuthorization,
		Severity:    audit.SeverityLow,
		Description: "authorization code issued",
		Metadata:    map[string]any{"client_id": clientID, "scope": utils.JoinScope(granted)},
	})
	return codeStr, nil
}

// ExchangeCode redeems code for an access token and, when the client may refresh, a
// refresh token. The code is consumed by a single conditional update so it can be
// redeemed at most once.
func (e *Engine) ExchangeCode(ctx context.Context, codeStr, clientID, clientSecret, redirectURI string) (*TokenResponse, error) {
	resp, userID, err := e.exchange(ctx, codeStr, clientID, clientSecret, redirectURI)
	if err != nil {
		e.metrics.RecordCodeExchange(ctx, clientID, false)
		if !autherrors.IsTransient(err) {
			e.audit.Log(ctx, audit.Event{
				UserID:      userID,
				EventType:   audit.EventCodeExchangeFailed,
				Category:    audit.CategoryAuthorization,
				Severity:    audit.SeverityMedium,
				Description: "authorization code exchange rejected",
				Metadata:    map[string]any{"client_id": clientID, "code": utils.TokenPrefix(codeStr), "reason": autherrors.Code(err)},
			})
		}
		return nil, err
	}
	e.metrics.RecordCodeExchange(ctx, clientID, true)

	e.audit.Log(ctx, audit.Event{
		UserID:      userID,
		EventType:   audit.EventCodeExchanged,
		Category:    audit.CategoryAuthorization,
		Severity:    audit.SeverityLow,
		Description: "authorization code exchanged for tokens",
		Metadata:    map[string]any{"client_id": clientID, "scope": resp.Scope},
	})
	return resp, nil
}

func (e *Engine) exchange(ctx context.Context, codeStr, clientID, clientSecret, redirectURI string) (*TokenResponse, string, error) {
	code, err := storecall.Query(ctx, e.storeTimeout, func(ctx context.Context) (*AuthorizationCode, error) {
		return e.codes.Get(ctx, codeStr)
	})
	if autherrors.Is(err, autherrors.ErrNotFound) {
		return nil, "", autherrors.Wrapf(autherrors.ErrInvalidGrant, "[Engine.ExchangeCode] unknown authorization code")
	}
	if err != nil {
		return nil, "", errors.Wrap(err, "[Engine.ExchangeCode]")
	}

	now := e.nowFunc()
	if !code.RedeemableAt(now) {
		return nil, code.UserID, autherrors.Wrapf(autherrors.ErrInvalidGrant, "[Engine.ExchangeCode] authorization code is used or expired")
	}
	if code.ClientID != clientID {
		return nil, code.UserID, autherrors.Wrapf(autherrors.ErrInvalidGrant, "[Engine.ExchangeCode] authorization code was issued to another client")
	}
	client, err := e.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, code.UserID, errors.Wrap(err, "[Engine.ExchangeCode]")
	}
	if redirectURI != code.RedirectURI {
		return nil, code.UserID, autherrors.Wrapf(autherrors.ErrRedirectMismatch, "[Engine.ExchangeCode] got %q", redirectURI)
	}

	claimed, err := storecall.ExecResult(ctx, e.storeTimeout, func(ctx context.Context) (bool, error) {
		return e.codes.MarkUsed(ctx, codeStr, now)
	})
	if err != nil {
		return nil, code.UserID, errors.Wrap(err, "[Engine.ExchangeCode] failed to consume code")
	}
	if !claimed {
		return nil, code.UserID, autherrors.Wrapf(autherrors.ErrInvalidGrant, "[Engine.ExchangeCode] authorization code already redeemed")
	}

	scope := utils.JoinScope(code.Scopes)
	resp, err := e.accessToken(code.UserID, clientID, scope)
	if err != nil {
		return nil, code.UserID, errors.Wrap(err, "[Engine.ExchangeCode]")
	}
	if client.AllowsGrant(clients.GrantTypeRefreshToken) {
		refreshToken, err := e.refresh.Issue(ctx, code.UserID, clientID, scope, map[string]any{"grant_type": string(AuthorizationCodeGrant)})
		if err != nil {
			return nil, code.UserID, errors.Wrap(err, "[Engine.ExchangeCode]")
		}
		resp.RefreshToken = refreshToken
	}
	return resp, code.UserID, nil
}

// RefreshAccessToken mints a new access token for a live refresh token held by clientID.
// The refresh token is returned unchanged.
func (e *Engine) RefreshAccessToken(ctx context.Context, refreshToken, clientID, clientSecret string) (*TokenResponse, error) {
	client, err := e.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.RefreshAccessToken]")
	}
	if !client.AllowsGrant(clients.GrantTypeRefreshToken) {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidGrant, "[Engine.RefreshAccessToken] client %s may not use the refresh token grant", clientID)
	}

	record, err := e.refresh.Verify(ctx, refreshToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.RefreshAccessToken]")
	}
	if record == nil || record.ClientID != clientID {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidGrant, "[Engine.RefreshAccessToken] refresh token is not valid for this client")
	}

	resp, err := e.accessToken(record.UserID, clientID, record.Scope)
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.RefreshAccessToken]")
	}
	resp.RefreshToken = refreshToken

	e.audit.Log(ctx, audit.Event{
		UserID:      record.UserID,
		EventType:   audit.EventTokenRefreshed,
		Category:    audit.CategoryAuthorization,
		Severity:    audit.SeverityLow,
		Description: "access token refreshed",
		Metadata:    map[string]any{"client_id": clientID, "refresh_token": utils.TokenPrefix(refreshToken)},
	})
	return resp, nil
}

// RevokeRefreshToken revokes a refresh token on behalf of the client it was issued to.
// Unknown tokens and tokens of other clients are ignored, as RFC 7009 asks.
func (e *Engine) RevokeRefreshToken(ctx context.Context, refreshToken, clientID, clientSecret string) error {
	if _, err := e.authenticateClient(ctx, clientID, clientSecret); err != nil {
		return errors.Wrap(err, "[Engine.RevokeRefreshToken]")
	}
	record, err := e.refresh.Verify(ctx, refreshToken)
	if err != nil {
		return errors.Wrap(err, "[Engine.RevokeRefreshToken]")
	}
	if record == nil || record.ClientID != clientID {
		return nil
	}
	ok, err := e.refresh.Revoke(ctx, refreshToken)
	if err != nil {
		return errors.Wrap(err, "[Engine.RevokeRefreshToken]")
	}
	if ok {
		e.audit.Log(ctx, audit.Event{
			UserID:      record.UserID,
			EventType:   audit.EventRefreshRevoked,
			Category:    audit.CategoryAuthorization,
			Severity:    audit.SeverityLow,
			Description: "refresh token revoked by client",
			Metadata:    map[string]any{"client_id": clientID, "refresh_token": utils.TokenPrefix(refreshToken)},
		})
	}
	return nil
}

// CleanupExpiredCodes deletes codes past their expiry and returns how many were removed.
func (e *Engine) CleanupExpiredCodes(ctx context.Context) (int, error) {
	n, err := storecall.ExecResult(ctx, e.storeTimeout, func(ctx context.Context) (int, error) {
		return e.codes.DeleteExpired(ctx, e.nowFunc())
	})
	if err != nil {
		return 0, errors.Wrap(err, "[Engine.CleanupExpiredCodes]")
	}
	if n > 0 {
		e.logger.Debug().Int("deleted", n).Msg("removed expired authorization codes")
	}
	return n, nil
}

func (e *Engine) accessToken(userID, clientID, scope string) (*TokenResponse, error) {
	accessToken, _, err := e.codec.Issue(userID, clientID, scope)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		AccessToken: accessToken,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int(e.codec.Expiry().Seconds()),
		Scope:       scope,
	}, nil
}

func (e *Engine) activeClient(ctx context.Context, clientID string) (*clients.Client, error) {
	client, err := storecall.Query(ctx, e.storeTimeout, func(ctx context.Context) (*clients.Client, error) {
		return e.clients.Get(ctx, clientID)
	})
	if autherrors.Is(err, autherrors.ErrNotFound) {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidClient, "unknown client %s", clientID)
	}
	if err != nil {
		return nil, err
	}
	if !client.IsActive {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidClient, "client %s is inactive", clientID)
	}
	return client, nil
}

// authenticateClient checks the secret of confidential clients. Public clients
// authenticate by client_id alone.
func (e *Engine) authenticateClient(ctx context.Context, clientID, clientSecret string) (*clients.Client, error) {
	client, err := e.activeClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client.IsConfidential {
		if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(clientSecret)); err != nil {
			return nil, autherrors.Wrapf(autherrors.ErrInvalidClient, "client secret mismatch for %s", clientID)
		}
	}
	return client, nil
}

func (e *Engine) codeDenied(ctx context.Context, clientID, userID string, err error) error {
	if !autherrors.IsTransient(err) {
		e.audit.Log(ctx, audit.Event{
			UserID:      userID,
			EventType:   audit.EventCodeIssueFailed,
			Category:    audit.CategoryAuthorization,
			Severity:    audit.SeverityMedium,
			Description: "authorization code request rejected",
			Metadata:    map[string]any{"client_id": clientID, "reason": autherrors.Code(err)},
		})
	}
	return err
}
