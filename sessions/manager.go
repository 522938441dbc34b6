package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ggrighi15/fusione-dev-sub001/audit"
	"github.com/ggrighi15/fusione-dev-sub001/internal/cache"
	"github.com/ggrighi15/fusione-dev-sub001/internal/config"
	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/internal/events"
	"github.com/ggrighi15/fusione-dev-sub001/internal/geo"
	"github.com/ggrighi15/fusione-dev-sub001/internal/metrics"
	"github.com/ggrighi15/fusione-dev-sub001/internal/storecall"
	"github.com/ggrighi15/fusione-dev-sub001/internal/utils"
	"github.com/ggrighi15/fusione-dev-sub001/token"
)

const sessionTokenLength = 64

// Created is returned to the caller that opened the session.
type Created struct {
	SessionID    string    `json:"session_id"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Manager creates and validates sessions. Expiry is fixed at creation: validation records
// activity but never extends a session.
type Manager struct {
	repo  Repo
	cache *cache.Cache[string, Session]

	// generation advances after every store revocation. A cache fill whose store read
	// started under an older generation is dropped.
	mu         sync.Mutex
	generation uint64

	config       config.Session
	resolver     geo.Resolver
	audit        audit.Logger
	publisher    events.Publisher
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	storeTimeout time.Duration
	nowFunc      func() time.Time
}

type ManagerOption func(*Manager)

func WithConfig(c config.Session) ManagerOption {
	return func(m *Manager) {
		m.config = c
	}
}

func WithResolver(r geo.Resolver) ManagerOption {
	return func(m *Manager) {
		m.resolver = r
	}
}

func WithAuditLogger(l audit.Logger) ManagerOption {
	return func(m *Manager) {
		m.audit = l
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

func WithStoreTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.storeTimeout = d
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func NewManager(repo Repo, options ...ManagerOption) *Manager {
	m := &Manager{
		repo:         repo,
		config:       config.Default().Session,
		resolver:     geo.Nop{},
		audit:        audit.Discard{},
		publisher:    events.Nop{},
		logger:       zerolog.Nop(),
		storeTimeout: 3 * time.Second,
		nowFunc:      time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	m.cache = cache.New(cache.WithNowFunc[string, Session](m.nowFunc))
	return m
}

// Create opens a session for userID that expires after the configured timeout.
func (m *Manager) Create(ctx context.Context, userID, ip, userAgent string) (*Created, error) {
	tokenStr, err := token.RandomHex(sessionTokenLength)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Create]")
	}

	now := m.nowFunc()
	s := Session{
		ID:           uuid.NewString(),
		Token:        tokenStr,
		UserID:       userID,
		IP:           ip,
		UserAgent:    userAgent,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.config.Timeout),
		LastActivity: now,
		Active:       true,
	}
	if ip != "" {
		s.Location = m.resolver.Lookup(ctx, ip)
	}

	if err := storecall.Exec(ctx, m.storeTimeout, func(ctx context.Context) error {
		return m.repo.Create(ctx, &s)
	}); err != nil {
		return nil, errors.Wrap(err, "[Manager.Create] failed to store session")
	}
	m.cache.Set(tokenStr, s, s.ExpiresAt)
	m.metrics.RecordSessionCreated(ctx)

	m.audit.Log(ctx, audit.Event{
		UserID:      userID,
		SessionID:   s.ID,
		EventType:   audit.EventSessionCreated,
		Category:    audit.CategorySession,
		Severity:    audit.SeverityLow,
		Description: "session created",
		IP:          ip,
		UserAgent:   userAgent,
	})
	return &Created{SessionID: s.ID, SessionToken: tokenStr, ExpiresAt: s.ExpiresAt}, nil
}

// Validate returns the live session for tokenStr, or nil when it is unknown, revoked or
// expired. A store failure is returned as a transient error, not as an invalid session.
func (m *Manager) Validate(ctx context.Context, tokenStr string) (*Session, error) {
	if tokenStr == "" {
		return nil, nil
	}
	now := m.nowFunc()

	s, ok := m.cache.Get(tokenStr)
	if !ok {
		gen := m.currentGeneration()
		stored, err := storecall.Query(ctx, m.storeTimeout, func(ctx context.Context) (*Session, error) {
			return m.repo.GetByToken(ctx, tokenStr)
		})
		if autherrors.Is(err, autherrors.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "[Manager.Validate]")
		}
		if !stored.ValidAt(now) {
			return nil, nil
		}
		s = *stored
		m.fill(gen, tokenStr, s)
	}
	if !s.ValidAt(now) {
		m.cache.Delete(tokenStr)
		return nil, nil
	}

	s.LastActivity = now
	m.cache.Replace(tokenStr, func(v Session) Session {
		v.LastActivity = now
		return v
	})
	if err := storecall.Exec(ctx, m.storeTimeout, func(ctx context.Context) error {
		return m.repo.Touch(ctx, tokenStr, now)
	}); err != nil {
		m.logger.Warn().Err(err).Str("session_id", s.ID).Msg("failed to record session activity")
	}
	return &s, nil
}

// Revoke ends one session and reports whether it was active.
func (m *Manager) Revoke(ctx context.Context, tokenStr string) (bool, error) {
	s, cached := m.cache.Get(tokenStr)
	m.cache.Delete(tokenStr)
	if !cached {
		stored, err := storecall.Query(ctx, m.storeTimeout, func(ctx context.Context) (*Session, error) {
			return m.repo.GetByToken(ctx, tokenStr)
		})
		if err == nil {
			s = *stored
		}
	}

	ok, err := storecall.ExecResult(ctx, m.storeTimeout, func(ctx context.Context) (bool, error) {
		return m.repo.Deactivate(ctx, tokenStr)
	})
	m.invalidate(func() { m.cache.Delete(tokenStr) })
	if err != nil {
		return false, errors.Wrap(err, "[Manager.Revoke]")
	}
	if ok {
		m.audit.Log(ctx, audit.Event{
			UserID:      s.UserID,
			SessionID:   s.ID,
			EventType:   audit.EventSessionRevoked,
			Category:    audit.CategorySession,
			Severity:    audit.SeverityLow,
			Description: "session revoked",
			IP:          s.IP,
			UserAgent:   s.UserAgent,
			Metadata:    map[string]any{"token": utils.TokenPrefix(tokenStr)},
		})
	}
	return ok, nil
}

func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	forUser := func(s Session) bool { return s.UserID == userID }
	m.cache.DeleteFunc(forUser)

	n, err := storecall.ExecResult(ctx, m.storeTimeout, func(ctx context.Context) (int, error) {
		return m.repo.DeactivateAllForUser(ctx, userID)
	})
	m.invalidate(func() { m.cache.DeleteFunc(forUser) })
	if err != nil {
		return 0, errors.Wrap(err, "[Manager.RevokeAllForUser]")
	}
	if n > 0 {
		m.publisher.Publish(ctx, events.CredentialsRevoked{UserID: userID, Source: "sessions", Revoked: n})
	}
	return n, nil
}

func (m *Manager) currentGeneration() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// fill caches s unless a revocation completed after gen was read.
func (m *Manager) fill(gen uint64, tokenStr string, s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation == gen {
		m.cache.Set(tokenStr, s, s.ExpiresAt)
	}
}

// invalidate runs evict and advances the generation in one step with fill.
func (m *Manager) invalidate(evict func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	evict()
}

// Sweep evicts expired sessions from the cache and marks them inactive in the store. It
// returns the number of store rows changed.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	evicted := m.cache.Sweep()

	n, err := storecall.ExecResult(ctx, m.storeTimeout, func(ctx context.Context) (int, error) {
		return m.repo.DeactivateExpired(ctx, m.nowFunc())
	})
	if err != nil {
		return 0, errors.Wrap(err, "[Manager.Sweep]")
	}
	m.metrics.RecordSessionsExpired(ctx, n)
	if evicted > 0 || n > 0 {
		m.logger.Debug().Int("evicted", evicted).Int("deactivated", n).Msg("session sweep")
	}
	return n, nil
}
