package refresh

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ggrighi15/fusione-dev-sub001/internal/config"
	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/internal/events"
	"github.com/ggrighi15/fusione-dev-sub001/internal/metrics"
	"github.com/ggrighi15/fusione-dev-sub001/internal/storecall"
	"github.com/ggrighi15/fusione-dev-sub001/internal/utils"
	"github.com/ggrighi15/fusione-dev-sub001/token"
)

const tokenLength = 32 // 32 bytes = 256 bits

// Manager handles refresh token issuance, verification and revocation. Tokens are not
// rotated on use.
type Manager struct {
	repo         Repo
	config       config.Refresh
	storeTimeout time.Duration
	publisher    events.Publisher
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	nowFunc      func() time.Time
}

type ManagerOption func(*Manager)

func WithConfig(c config.Refresh) ManagerOption {
	return func(m *Manager) {
		m.config = c
	}
}

func WithStoreTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.storeTimeout = d
	}
}

func WithPublisher(p events.Publisher) ManagerOption {
	return func(m *Manager) {
		m.publisher = p
	}
}

func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// NewManager creates a refresh token manager over repo. The repo is fixed for the life of
// the manager.
func NewManager(repo Repo, options ...ManagerOption) *Manager {
	m := &Manager{
		repo:         repo,
		config:       config.Default().Refresh,
		storeTimeout: 3 * time.Second,
		publisher:    events.Nop{},
		logger:       zerolog.Nop(),
		nowFunc:      time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.config.MaxActive < 1 {
		m.config.MaxActive = 1
	}
	return m
}

// Issue creates a refresh token for userID. When the user then holds more than the
// configured maximum of live tokens, the oldest ones are revoked.
func (m *Manager) Issue(ctx context.Context, userID, clientID, scope string, metadata map[string]any) (string, error) {
	tokenStr, err := token.RandomHex(tokenLength)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.Issue]")
	}

	now := m.nowFunc()
	record := &Record{
		Token:     tokenStr,
		UserID:    userID,
		ClientID:  clientID,
		Scope:     scope,
		Metadata:  metadata,
		CreatedAt: now,
		ExpiresAt: now.Add(m.config.Expiry),
	}
	if err := storecall.Exec(ctx, m.storeTimeout, func(ctx context.Context) error {
		return m.repo.Insert(ctx, record)
	}); err != nil {
		return "", errors.Wrap(err, "[Manager.Issue] failed to store refresh token")
	}
	m.metrics.RecordTokenIssued(ctx, "refresh_token")

	if err := m.enforceLimit(ctx, userID, now); err != nil {
		// The new token is valid; an unenforced limit is retried on the next issue.
		m.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to enforce refresh token limit")
	}
	return tokenStr, nil
}

func (m *Manager) enforceLimit(ctx context.Context, userID string, now time.Time) error {
	live, err := storecall.Query(ctx, m.storeTimeout, func(ctx context.Context) ([]*Record, error) {
		return m.repo.ListLive(ctx, userID, now)
	})
	if err != nil {
		return err
	}
	excess := len(live) - m.config.MaxActive
	revoked := 0
	for i := 0; i < excess; i++ {
		ok, err := storecall.ExecResult(ctx, m.storeTimeout, func(ctx context.Context) (bool, error) {
			return m.repo.Revoke(ctx, live[i].Token, now)
		})
		if err != nil {
			return err
		}
		if ok {
			revoked++
		}
	}
	if revoked > 0 {
		m.metrics.RecordTokensRevoked(ctx, "limit", revoked)
		m.logger.Debug().Str("user_id", userID).Int("revoked", revoked).Msg("revoked oldest refresh tokens over limit")
	}
	return nil
}

// Verify returns the record for a live token, or nil when the token is unknown, revoked
// or expired. It stamps LastUsedAt and never issues a replacement.
func (m *Manager) Verify(ctx context.Context, tokenStr string) (*Record, error) {
	if tokenStr == "" {
		return nil, nil
	}
	record, err := storecall.Query(ctx, m.storeTimeout, func(ctx context.Context) (*Record, error) {
		return m.repo.Get(ctx, tokenStr)
	})
	if autherrors.Is(err, autherrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Verify]")
	}

	now := m.nowFunc()
	if !record.Live(now) {
		return nil, nil
	}

	if err := storecall.Exec(ctx, m.storeTimeout, func(ctx context.Context) error {
		return m.repo.Touch(ctx, tokenStr, now)
	}); err != nil {
		m.logger.Warn().Err(err).Str("token", utils.TokenPrefix(tokenStr)).Msg("failed to record refresh token use")
	}
	record.LastUsedAt = &now
	return record, nil
}

// Revoke reports whether the token was live and is now revoked.
func (m *Manager) Revoke(ctx context.Context, tokenStr string) (bool, error) {
	ok, err := storecall.ExecResult(ctx, m.storeTimeout, func(ctx context.Context) (bool, error) {
		return m.repo.Revoke(ctx, tokenStr, m.nowFunc())
	})
	if err != nil {
		return false, errors.Wrap(err, "[Manager.Revoke]")
	}
	if ok {
		m.metrics.RecordTokensRevoked(ctx, "explicit", 1)
	}
	return ok, nil
}

func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	n, err := storecall.ExecResult(ctx, m.storeTimeout, func(ctx context.Context) (int, error) {
		return m.repo.RevokeAllForUser(ctx, userID, m.nowFunc())
	})
	if err != nil {
		return 0, errors.Wrap(err, "[Manager.RevokeAllForUser]")
	}
	if n > 0 {
		m.metrics.RecordTokensRevoked(ctx, "user", n)
		m.publisher.Publish(ctx, events.CredentialsRevoked{UserID: userID, Source: "refresh_tokens", Revoked: n})
	}
	return n, nil
}

// CleanupExpired deletes expired tokens and tokens revoked longer ago than the grace window.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	now := m.nowFunc()
	n, err := storecall.ExecResult(ctx, m.storeTimeout, func(ctx context.Context) (int, error) {
		return m.repo.DeleteStale(ctx, now, now.Add(-m.config.RevokedGrace))
	})
	if err != nil {
		return 0, errors.Wrap(err, "[Manager.CleanupExpired]")
	}
	if n > 0 {
		m.logger.Info().Int("deleted", n).Msg("removed stale refresh tokens")
	}
	return n, nil
}
