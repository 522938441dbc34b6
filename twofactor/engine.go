package twofactor

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"

	"github.com/ggrighi15/fusione-dev-sub001/audit"
	"github.com/ggrighi15/fusione-dev-sub001/internal/config"
	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/internal/events"
	"github.com/ggrighi15/fusione-dev-sub001/internal/metrics"
	"github.com/ggrighi15/fusione-dev-sub001/internal/storecall"
)

// SetupResult is returned once. The backup codes are not recoverable afterwards.
type SetupResult struct {
	Secret      string   `json:"secret"`
	QRPayload   string   `json:"qr_payload"`
	BackupCodes []string `json:"backup_codes"`
}

type Status struct {
	Enabled              bool `json:"enabled"`
	Pending              bool `json:"pending"`
	BackupCodesRemaining int  `json:"backup_codes_remaining"`
}

// Engine moves a user through Unconfigured, Pending and Enabled.
type Engine struct {
	repo         Repo
	config       config.TwoFactor
	audit        audit.Logger
	publisher    events.Publisher
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	storeTimeout time.Duration
	nowFunc      func() time.Time
}

type Option func(*Engine)

func WithConfig(c config.TwoFactor) Option {
	return func(e *Engine) {
		e.config = c
	}
}

func WithAuditLogger(l audit.Logger) Option {
	return func(e *Engine) {
		e.audit = l
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
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

func NewEngine(repo Repo, options ...Option) *Engine {
	e := &Engine{
		repo:         repo,
		config:       config.Default().TwoFactor,
		audit:        audit.Discard{},
		publisher:    events.Nop{},
		logger:       zerolog.Nop(),
		storeTimeout: 3 * time.Second,
		nowFunc:      time.Now,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Setup issues a new pending secret and backup codes for userID. Calling it again before
// the secret is verified replaces the pending secret. It fails with ErrConflict once 2FA
// is enabled.
func (e *Engine) Setup(ctx context.Context, userID, accountName string) (*SetupResult, error) {
	if accountName == "" {
		accountName = userID
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.config.Issuer,
		AccountName: accountName,
		Period:      uint(period / time.Second),
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.Setup] failed to generate TOTP secret")
	}
	plain, stored, err := newBackupCodes(e.config.BackupCodes)
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.Setup]")
	}

	now := e.nowFunc()
	record := &Record{
		UserID:      userID,
		Secret:      key.Secret(),
		BackupCodes: stored,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	saved, err := storecall.ExecResult(ctx, e.storeTimeout, func(ctx context.Context) (bool, error) {
		return e.repo.SavePending(ctx, record)
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.Setup] failed to store secret")
	}
	if !saved {
		return nil, autherrors.Wrapf(autherrors.ErrConflict, "[Engine.Setup] two-factor already enabled for %s", userID)
	}

	e.audit.Log(ctx, audit.Event{
		UserID:      userID,
		EventType:   audit.EventTwoFactorSetup,
		Category:    audit.CategoryTwoFactor,
		Severity:    audit.SeverityLow,
		Description: "two-factor secret issued",
	})
	return &SetupResult{Secret: key.Secret(), QRPayload: key.URL(), BackupCodes: plain}, nil
}

// Verify checks a TOTP code against the user's secret and enables 2FA on success.
// An invalid code is not an error: it returns false and is logged at high severity.
func (e *Engine) Verify(ctx context.Context, userID, code string) (bool, error) {
	record, err := e.get(ctx, userID)
	if autherrors.Is(err, autherrors.ErrNotFound) {
		e.failed(ctx, userID, "verify", "two-factor verification without setup")
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "[Engine.Verify]")
	}

	ok, err := e.claimTOTP(ctx, record, code, true)
	if err != nil {
		return false, errors.Wrap(err, "[Engine.Verify]")
	}
	if !ok {
		e.failed(ctx, userID, "verify", "invalid two-factor verification code")
		return false, nil
	}

	e.metrics.RecordTwoFactorCheck(ctx, "totp", true)
	if !record.Enabled {
		e.audit.Log(ctx, audit.Event{
			UserID:      userID,
			EventType:   audit.EventTwoFactorEnabled,
			Category:    audit.CategoryTwoFactor,
			Severity:    audit.SeverityMedium,
			Description: "two-factor authentication enabled",
		})
		e.publisher.Publish(ctx, events.TwoFactorEnabled{UserID: userID, EnabledAt: e.nowFunc()})
	}
	return true, nil
}

// ValidateLogin is the login time check. Users without 2FA enabled pass. Otherwise an
// unused backup code is tried first and consumed, then the TOTP code.
func (e *Engine) ValidateLogin(ctx context.Context, userID, code string) (bool, error) {
	record, err := e.get(ctx, userID)
	if autherrors.Is(err, autherrors.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "[Engine.ValidateLogin]")
	}
	if !record.Enabled {
		return true, nil
	}

	if backup, ok := normaliseBackupCode(code); ok {
		now := e.nowFunc()
		consumed, err := storecall.ExecResult(ctx, e.storeTimeout, func(ctx context.Context) (bool, error) {
			return e.repo.ConsumeBackupCode(ctx, userID, hashBackupCode(backup), now)
		})
		if err != nil {
			return false, errors.Wrap(err, "[Engine.ValidateLogin] failed to consume backup code")
		}
		if consumed {
			e.metrics.RecordTwoFactorCheck(ctx, "backup_code", true)
			e.audit.Log(ctx, audit.Event{
				UserID:      userID,
				EventType:   audit.EventBackupCodeUsed,
				Category:    audit.CategoryTwoFactor,
				Severity:    audit.SeverityMedium,
				Description: "backup code used for login",
				Metadata:    map[string]any{"remaining": record.RemainingBackupCodes() - 1},
			})
			return true, nil
		}
	}

	ok, err := e.claimTOTP(ctx, record, code, false)
	if err != nil {
		return false, errors.Wrap(err, "[Engine.ValidateLogin]")
	}
	if !ok {
		e.failed(ctx, userID, "login", "invalid two-factor code at login")
		return false, nil
	}
	e.metrics.RecordTwoFactorCheck(ctx, "totp", true)
	return true, nil
}

// claimTOTP matches code and records its time step so the same code cannot be replayed.
func (e *Engine) claimTOTP(ctx context.Context, record *Record, code string, enable bool) (bool, error) {
	now := e.nowFunc()
	step, ok := matchStep(record.Secret, code, now, e.config.Window)
	if !ok || step <= record.LastUsedStep {
		return false, nil
	}
	return storecall.ExecResult(ctx, e.storeTimeout, func(ctx context.Context) (bool, error) {
		return e.repo.ClaimStep(ctx, record.UserID, record.Secret, step, now, enable)
	})
}

// Disable turns 2FA off. The record is kept.
func (e *Engine) Disable(ctx context.Context, userID string) error {
	err := storecall.Exec(ctx, e.storeTimeout, func(ctx context.Context) error {
		return e.repo.SetEnabled(ctx, userID, false, e.nowFunc())
	})
	if err != nil {
		return errors.Wrap(err, "[Engine.Disable]")
	}
	e.audit.Log(ctx, audit.Event{
		UserID:      userID,
		EventType:   audit.EventTwoFactorDisabled,
		Category:    audit.CategoryTwoFactor,
		Severity:    audit.SeverityHigh,
		Description: "two-factor authentication disabled",
	})
	return nil
}

func (e *Engine) Status(ctx context.Context, userID string) (Status, error) {
	record, err := e.get(ctx, userID)
	if autherrors.Is(err, autherrors.ErrNotFound) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, errors.Wrap(err, "[Engine.Status]")
	}
	return Status{
		Enabled:              record.Enabled,
		Pending:              !record.Enabled,
		BackupCodesRemaining: record.RemainingBackupCodes(),
	}, nil
}

// RegenerateBackupCodes replaces every backup code of an enabled user.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	record, err := e.get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.RegenerateBackupCodes]")
	}
	if !record.Enabled {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidRequest, "[Engine.RegenerateBackupCodes] two-factor not enabled")
	}
	plain, stored, err := newBackupCodes(e.config.BackupCodes)
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.RegenerateBackupCodes]")
	}
	if err := storecall.Exec(ctx, e.storeTimeout, func(ctx context.Context) error {
		return e.repo.ReplaceBackupCodes(ctx, userID, stored, e.nowFunc())
	}); err != nil {
		return nil, errors.Wrap(err, "[Engine.RegenerateBackupCodes]")
	}
	e.audit.Log(ctx, audit.Event{
		UserID:      userID,
		EventType:   audit.EventBackupCodesReset,
		Category:    audit.CategoryTwoFactor,
		Severity:    audit.SeverityMedium,
		Description: "backup codes regenerated",
	})
	return plain, nil
}

func (e *Engine) get(ctx context.Context, userID string) (*Record, error) {
	return storecall.Query(ctx, e.storeTimeout, func(ctx context.Context) (*Record, error) {
		return e.repo.Get(ctx, userID)
	})
}

func (e *Engine) failed(ctx context.Context, userID, stage, description string) {
	e.metrics.RecordTwoFactorCheck(ctx, stage, false)
	e.audit.Log(ctx, audit.Event{
		UserID:      userID,
		EventType:   audit.EventTwoFactorFailed,
		Category:    audit.CategoryTwoFactor,
		Severity:    audit.SeverityHigh,
		Description: description,
		Metadata:    map[string]any{"stage": stage},
	})
}
