// Package auth orchestrates password login with inline two-factor checks on top of the
// session, two-factor and refresh token engines.
package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ggrighi15/fusione-dev-sub001/audit"
	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/internal/metrics"
	"github.com/ggrighi15/fusione-dev-sub001/internal/storecall"
	"github.com/ggrighi15/fusione-dev-sub001/sessions"
	"github.com/ggrighi15/fusione-dev-sub001/token/refresh"
	"github.com/ggrighi15/fusione-dev-sub001/twofactor"
	"github.com/ggrighi15/fusione-dev-sub001/users"
)

// dummyPasswordHash is compared against on the unknown user path so both paths pay the
// bcrypt cost.
var dummyPasswordHash = sync.OnceValue(func() string {
	hash, _ := users.HashPassword("unknown-user-placeholder")
	return hash
})

type LoginRequest struct {
	Email     string
	Password  string
	TOTP      string // TOTP or backup code, required once 2FA is enabled
	IP        string
	UserAgent string
}

type LoginResult struct {
	Session *sessions.Created
	UserID  string
}

type RegisterRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// Service authenticates users and opens their sessions.
type Service struct {
	users         users.Repo
	sessions      *sessions.Manager
	twoFactor     *twofactor.Engine
	refreshTokens *refresh.Manager
	audit         audit.Logger
	logger        zerolog.Logger
	metrics       *metrics.Metrics
	storeTimeout  time.Duration
	nowFunc       func() time.Time
	checkPassword func(password, hash string) bool
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

func WithAuditLogger(l audit.Logger) ServiceOption {
	return func(s *Service) {
		s.audit = l
	}
}

func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

func WithMetrics(mt *metrics.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = mt
	}
}

func WithStoreTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.storeTimeout = d
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = now
	}
}

func NewService(
	userRepo users.Repo,
	sessionManager *sessions.Manager,
	twoFactor *twofactor.Engine,
	refreshTokens *refresh.Manager,
	options ...ServiceOption,
) *Service {
	s := &Service{
		users:         userRepo,
		sessions:      sessionManager,
		twoFactor:     twoFactor,
		refreshTokens: refreshTokens,
		audit:         audit.Discard{},
		logger:        zerolog.Nop(),
		storeTimeout:  3 * time.Second,
		nowFunc:       time.Now,
		checkPassword: users.CheckPasswordHash,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Register stores a new user with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*users.User, error) {
	if err := validateCredentials(req.Email, req.Password); err != nil {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidRequest, "[Service.Register] %v", err)
	}
	if err := users.ValidatePasswordStrength(req.Password); err != nil {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidRequest, "[Service.Register] %v", err)
	}
	hash, err := users.HashPassword(req.Password)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Register] failed to hash password")
	}

	user := &users.User{
		ID:           uuid.NewString(),
		Email:        users.NormaliseEmail(req.Email),
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		DateJoined:   s.nowFunc(),
	}
	if err := storecall.Exec(ctx, s.storeTimeout, func(ctx context.Context) error {
		return s.users.Create(ctx, user)
	}); err != nil {
		return nil, errors.Wrap(err, "[Service.Register]")
	}
	return user, nil
}

// Login checks the password and, for users with 2FA enabled, the code in req.TOTP. On
// success a session is opened.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := validateCredentials(req.Email, req.Password); err != nil {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidRequest, "[Service.Login] %v", err)
	}

	user, err := storecall.Query(ctx, s.storeTimeout, func(ctx context.Context) (*users.User, error) {
		return s.users.GetByEmail(ctx, users.NormaliseEmail(req.Email))
	})
	switch {
	case autherrors.Is(err, autherrors.ErrNotFound):
		s.checkPassword(req.Password, dummyPasswordHash())
		return nil, s.loginFailed(ctx, req, "", "unknown user", autherrors.ErrInvalidCredentials)
	case err != nil:
		return nil, errors.Wrap(err, "[Service.Login]")
	}

	if !s.checkPassword(req.Password, user.PasswordHash) {
		return nil, s.loginFailed(ctx, req, user.ID, "wrong password", autherrors.ErrInvalidCredentials)
	}
	if user.Blocked {
		return nil, s.loginFailed(ctx, req, user.ID, "user blocked", autherrors.ErrInvalidCredentials)
	}

	status, err := s.twoFactor.Status(ctx, user.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Login]")
	}
	if status.Enabled {
		if strings.TrimSpace(req.TOTP) == "" {
			return nil, autherrors.Wrapf(autherrors.ErrTwoFactorRequired, "[Service.Login]")
		}
		ok, err := s.twoFactor.ValidateLogin(ctx, user.ID, req.TOTP)
		if err != nil {
			return nil, errors.Wrap(err, "[Service.Login]")
		}
		if !ok {
			return nil, s.loginFailed(ctx, req, user.ID, "invalid two-factor code", autherrors.ErrTwoFactorInvalid)
		}
	}

	created, err := s.sessions.Create(ctx, user.ID, req.IP, req.UserAgent)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Login]")
	}

	now := s.nowFunc()
	if err := storecall.Exec(ctx, s.storeTimeout, func(ctx context.Context) error {
		return s.users.SetLastLogin(ctx, user.ID, now)
	}); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record last login")
	}

	s.metrics.RecordLogin(ctx, true)
	s.audit.Log(ctx, audit.Event{
		UserID:      user.ID,
		SessionID:   created.SessionID,
		EventType:   audit.EventLoginSuccess,
		Category:    audit.CategoryAuthentication,
		Severity:    audit.SeverityLow,
		Description: "login succeeded",
		IP:          req.IP,
		UserAgent:   req.UserAgent,
		Metadata:    map[string]any{"two_factor": status.Enabled},
	})
	return &LoginResult{Session: created, UserID: user.ID}, nil
}

// Logout revokes the session and, when given, a refresh token of the same user.
func (s *Service) Logout(ctx context.Context, sessionToken, refreshToken string) error {
	session, err := s.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return errors.Wrap(err, "[Service.Logout]")
	}
	if session == nil {
		return autherrors.Wrapf(autherrors.ErrInvalidToken, "[Service.Logout] unknown session")
	}

	if _, err := s.sessions.Revoke(ctx, sessionToken); err != nil {
		return errors.Wrap(err, "[Service.Logout]")
	}

	if refreshToken != "" {
		record, err := s.refreshTokens.Verify(ctx, refreshToken)
		switch {
		case err != nil:
			return errors.Wrap(err, "[Service.Logout]")
		case record == nil:
			// Already revoked or expired.
		case record.UserID != session.UserID:
			s.logger.Warn().Str("user_id", session.UserID).Msg("logout with a refresh token of another user")
		default:
			if _, err := s.refreshTokens.Revoke(ctx, refreshToken); err != nil {
				return errors.Wrap(err, "[Service.Logout]")
			}
		}
	}

	s.audit.Log(ctx, audit.Event{
		UserID:      session.UserID,
		SessionID:   session.ID,
		EventType:   audit.EventLogout,
		Category:    audit.CategoryAuthentication,
		Severity:    audit.SeverityLow,
		Description: "logout",
		IP:          session.IP,
		UserAgent:   session.UserAgent,
	})
	return nil
}

func (s *Service) loginFailed(ctx context.Context, req LoginRequest, userID, reason string, kind error) error {
	s.metrics.RecordLogin(ctx, false)
	s.audit.Log(ctx, audit.Event{
		UserID:      userID,
		EventType:   audit.EventLoginFailed,
		Category:    audit.CategoryAuthentication,
		Severity:    audit.SeverityMedium,
		Description: "login failed: " + reason,
		IP:          req.IP,
		UserAgent:   req.UserAgent,
		Metadata:    map[string]any{"email": users.NormaliseEmail(req.Email)},
	})
	return autherrors.Wrapf(kind, "[Service.Login] %s", reason)
}
