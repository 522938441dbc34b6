// Package app wires the engines onto a storage backend. It is shared by the server binary
// and the end-to-end tests.
package app

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ggrighi15/fusione-dev-sub001/access"
	"github.com/ggrighi15/fusione-dev-sub001/audit"
	"github.com/ggrighi15/fusione-dev-sub001/auth"
	"github.com/ggrighi15/fusione-dev-sub001/internal/config"
	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/internal/events"
	"github.com/ggrighi15/fusione-dev-sub001/internal/geo"
	"github.com/ggrighi15/fusione-dev-sub001/internal/metrics"
	"github.com/ggrighi15/fusione-dev-sub001/internal/scheduler"
	"github.com/ggrighi15/fusione-dev-sub001/oauth2"
	"github.com/ggrighi15/fusione-dev-sub001/server"
	"github.com/ggrighi15/fusione-dev-sub001/sessions"
	"github.com/ggrighi15/fusione-dev-sub001/storage"
	"github.com/ggrighi15/fusione-dev-sub001/token"
	"github.com/ggrighi15/fusione-dev-sub001/token/refresh"
	"github.com/ggrighi15/fusione-dev-sub001/twofactor"
	"github.com/ggrighi15/fusione-dev-sub001/users"
)

// AdminLevelID is the wildcard level given to the bootstrap administrator.
const AdminLevelID = "admin"

type App struct {
	Backend   *storage.Backend
	Bus       *events.Bus
	Codec     *token.Codec
	Auditor   *audit.Auditor
	Sessions  *sessions.Manager
	Refresh   *refresh.Manager
	TwoFactor *twofactor.Engine
	Access    *access.Engine
	OAuth     *oauth2.Engine
	Auth      *auth.Service

	config  config.Config
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

type Option func(*App)

func WithLogger(l zerolog.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *App) {
		a.metrics = m
	}
}

// New builds every engine on backend. The returned App owns nothing that needs closing
// except the backend itself.
func New(c config.Config, backend *storage.Backend, options ...Option) (*App, error) {
	a := &App{
		Backend: backend,
		config:  c,
		logger:  zerolog.Nop(),
		metrics: metrics.Noop(),
	}
	for _, opt := range options {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = metrics.Noop()
	}

	resolver, err := geo.NewStaticResolver(c.Store.GeoTable)
	if err != nil {
		return nil, errors.Wrap(err, "[app.New] geo table")
	}
	signer, err := newSigner(c.OAuth)
	if err != nil {
		return nil, errors.Wrap(err, "[app.New]")
	}

	a.Bus = events.NewBus(a.logger, a.metrics.Subscription(), alertSubscription(a.logger))
	timeout := c.Store.Timeout

	a.Codec = token.NewCodec(signer,
		token.WithIssuer(c.OAuth.Issuer),
		token.WithAccessTokenExpiry(c.OAuth.AccessTokenExpiry),
	)
	a.Auditor = audit.NewAuditor(backend.Audit,
		audit.WithResolver(resolver),
		audit.WithPublisher(a.Bus),
		audit.WithLogger(a.logger),
		audit.WithMetrics(a.metrics),
		audit.WithScanConfig(c.Audit),
		audit.WithStoreTimeout(timeout),
	)
	a.Sessions = sessions.NewManager(backend.Sessions,
		sessions.WithConfig(c.Session),
		sessions.WithResolver(resolver),
		sessions.WithAuditLogger(a.Auditor),
		sessions.WithPublisher(a.Bus),
		sessions.WithLogger(a.logger),
		sessions.WithMetrics(a.metrics),
		sessions.WithStoreTimeout(timeout),
	)
	a.Refresh = refresh.NewManager(backend.Refresh,
		refresh.WithConfig(c.Refresh),
		refresh.WithStoreTimeout(timeout),
		refresh.WithPublisher(a.Bus),
		refresh.WithLogger(a.logger),
		refresh.WithMetrics(a.metrics),
	)
	a.TwoFactor = twofactor.NewEngine(backend.TwoFactor,
		twofactor.WithConfig(c.TwoFactor),
		twofactor.WithAuditLogger(a.Auditor),
		twofactor.WithPublisher(a.Bus),
		twofactor.WithLogger(a.logger),
		twofactor.WithMetrics(a.metrics),
		twofactor.WithStoreTimeout(timeout),
	)
	a.Access = access.NewEngine(backend.Access,
		access.WithAuditLogger(a.Auditor),
		access.WithLogger(a.logger),
		access.WithStoreTimeout(timeout),
	)
	a.OAuth = oauth2.NewEngine(backend.Clients, backend.Codes, a.Codec, a.Refresh,
		oauth2.WithConfig(c.OAuth),
		oauth2.WithAuditLogger(a.Auditor),
		oauth2.WithLogger(a.logger),
		oauth2.WithMetrics(a.metrics),
		oauth2.WithStoreTimeout(timeout),
	)
	a.Auth = auth.NewService(backend.Users, a.Sessions, a.TwoFactor, a.Refresh,
		auth.WithAuditLogger(a.Auditor),
		auth.WithLogger(a.logger),
		auth.WithMetrics(a.metrics),
		auth.WithStoreTimeout(timeout),
	)

	for _, kind := range a.Bus.Unhandled() {
		a.logger.Warn().Str("kind", kind.String()).Msg("event kind has no subscriber")
	}
	return a, nil
}

func newSigner(c config.OAuth) (token.Signer, error) {
	if c.SigningKeyFile == "" {
		return token.NewHMACSigner(c.TokenSecret), nil
	}
	pem, err := os.ReadFile(c.SigningKeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "read signing key")
	}
	keyPair, err := token.LoadKeyPairFromPEM(c.SigningKeyID, string(pem))
	if err != nil {
		return nil, errors.Wrap(err, "load signing key")
	}
	return token.NewKeyPairSigner(keyPair), nil
}

// Services exposes the engines to the HTTP layer.
func (a *App) Services() server.Services {
	return server.Services{
		OAuth:     a.OAuth,
		TwoFactor: a.TwoFactor,
		Sessions:  a.Sessions,
		Access:    a.Access,
		Auditor:   a.Auditor,
		Auth:      a.Auth,
		Users:     a.Backend.Users,
		Health:    a.Backend.Ping,
	}
}

// Bootstrap makes sure the configured administrator exists and holds the wildcard level.
// An existing account keeps its password.
func (a *App) Bootstrap(ctx context.Context, c config.Bootstrap) (*users.User, error) {
	if !c.Enabled() {
		return nil, nil
	}

	user, err := a.Auth.Register(ctx, auth.RegisterRequest{
		Email:       c.AdminEmail,
		Password:    c.AdminPassword,
		DisplayName: "Administrator",
	})
	if autherrors.Is(err, autherrors.ErrConflict) {
		user, err = a.Backend.Users.GetByEmail(ctx, users.NormaliseEmail(c.AdminEmail))
	}
	if err != nil {
		return nil, errors.Wrap(err, "[App.Bootstrap] admin user")
	}

	if err := a.Access.DefineLevel(ctx, access.Level{
		ID:          AdminLevelID,
		Name:        "Administrator",
		Permissions: []string{access.Wildcard},
		Priority:    100,
	}); err != nil {
		return nil, errors.Wrap(err, "[App.Bootstrap]")
	}
	if err := a.Access.Grant(ctx, access.Binding{UserID: user.ID, LevelID: AdminLevelID}); err != nil {
		return nil, errors.Wrap(err, "[App.Bootstrap]")
	}
	a.logger.Info().Str("email", user.Email).Msg("bootstrap administrator ready")
	return user, nil
}

// Tasks are the periodic maintenance jobs. limiter may be nil.
func (a *App) Tasks(limiter *server.RateLimiter) []scheduler.Task {
	tasks := []scheduler.Task{
		{
			Name:     "session-sweep",
			Interval: a.config.Session.SweepInterval,
			Run:      a.counted("sessions expired", a.Sessions.Sweep),
		},
		{
			Name:     "refresh-cleanup",
			Interval: a.config.Refresh.CleanupInterval,
			Run:      a.counted("refresh tokens deleted", a.Refresh.CleanupExpired),
		},
		{
			Name:     "code-cleanup",
			Interval: a.config.OAuth.CodeCleanupInterval,
			Run:      a.counted("authorization codes deleted", a.OAuth.CleanupExpiredCodes),
		},
		{
			Name:     "audit-scan",
			Interval: a.config.Audit.ScanInterval,
			Run: func(ctx context.Context) error {
				report, err := a.Auditor.Scan(ctx)
				if err != nil {
					return err
				}
				a.logger.Debug().Interface("report", report).Msg("audit scan finished")
				return nil
			},
		},
	}
	if limiter != nil {
		idle := a.config.RateLimit.IdleTimeout
		tasks = append(tasks, scheduler.Task{
			Name:     "rate-limit-cleanup",
			Interval: a.config.RateLimit.CleanupInterval,
			Run: func(context.Context) error {
				if n := limiter.Cleanup(idle); n > 0 {
					a.logger.Debug().Int("removed", n).Msg("idle rate limiters dropped")
				}
				return nil
			},
		})
	}
	return tasks
}

func (a *App) counted(what string, fn func(ctx context.Context) (int, error)) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		n, err := fn(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			a.logger.Debug().Int("count", n).Msg(what)
		}
		return nil
	}
}

// alertSubscription turns security events into log lines for the operator.
func alertSubscription(logger zerolog.Logger) events.Subscription {
	return events.Subscription{
		Subsystem: "alerts",
		Handlers: map[events.Kind]events.Handler{
			events.KindCriticalSecurity: func(_ context.Context, e events.Event) {
				ev := e.(events.CriticalSecurity)
				logger.Error().
					Str("entry_id", ev.EntryID).
					Str("user_id", ev.UserID).
					Str("event_type", ev.EventType).
					Str("ip", ev.IP).
					Time("occurred_at", ev.OccurredAt).
					Msg(ev.Description)
			},
			events.KindSuspiciousActivity: func(_ context.Context, e events.Event) {
				ev := e.(events.SuspiciousActivity)
				logger.Warn().
					Str("user_id", ev.UserID).
					Str("ip", ev.IP).
					Int("failures", ev.Failures).
					Time("window_start", ev.WindowStart).
					Msg("repeated failed logins")
			},
			events.KindUnusualLocation: func(_ context.Context, e events.Event) {
				ev := e.(events.UnusualLocation)
				logger.Warn().
					Str("user_id", ev.UserID).
					Str("country", ev.Country).
					Str("ip", ev.IP).
					Msg("login from unusual location")
			},
			events.KindTwoFactorEnabled: func(_ context.Context, e events.Event) {
				ev := e.(events.TwoFactorEnabled)
				logger.Info().Str("user_id", ev.UserID).Time("enabled_at", ev.EnabledAt).Msg("two-factor enabled")
			},
			events.KindCredentialsRevoked: func(_ context.Context, e events.Event) {
				ev := e.(events.CredentialsRevoked)
				logger.Info().Str("user_id", ev.UserID).Str("source", ev.Source).Int("revoked", ev.Revoked).Msg("credentials revoked")
			},
		},
	}
}

