package access

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ggrighi15/fusione-dev-sub001/audit"
	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/internal/storecall"
)

// Engine answers permission checks. Any failure to read bindings denies.
type Engine struct {
	repo         Repo
	audit        audit.Logger
	logger       zerolog.Logger
	storeTimeout time.Duration
	nowFunc      func() time.Time
}

type Option func(*Engine)

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

// Check reports whether userID holds permission through a live binding.
func (e *Engine) Check(ctx context.Context, userID, permission string) (bool, error) {
	if userID == "" || permission == "" {
		return false, nil
	}
	levels, err := storecall.Query(ctx, e.storeTimeout, func(ctx context.Context) ([]*Level, error) {
		return e.repo.LevelsForUser(ctx, userID, e.nowFunc())
	})
	if err != nil {
		return false, errors.Wrap(err, "[Engine.Check]")
	}
	for _, level := range levels {
		if level.Allows(permission) {
			return true, nil
		}
	}
	return false, nil
}

// Require returns errors.ErrPermissionDenied unless Check succeeds. Store failures are
// returned as they are so callers can tell them apart from a denial.
func (e *Engine) Require(ctx context.Context, userID, permission string) error {
	ok, err := e.Check(ctx, userID, permission)
	if err != nil {
		e.logger.Warn().Err(err).Str("user_id", userID).Str("permission", permission).Msg("permission check failed closed")
		return err
	}
	if ok {
		return nil
	}
	e.audit.Log(ctx, audit.Event{
		UserID:      userID,
		EventType:   audit.EventPermissionDenied,
		Category:    audit.CategoryAuthorization,
		Severity:    audit.SeverityMedium,
		Description: "permission denied",
		Metadata:    map[string]any{"permission": permission},
	})
	return autherrors.Wrapf(autherrors.ErrPermissionDenied, "user %s lacks %q", userID, permission)
}

// DefineLevel creates or replaces a level.
func (e *Engine) DefineLevel(ctx context.Context, level Level) error {
	if level.ID == "" || level.Name == "" {
		return autherrors.Wrapf(autherrors.ErrInvalidRequest, "[Engine.DefineLevel] level id and name are required")
	}
	return errors.Wrap(storecall.Exec(ctx, e.storeTimeout, func(ctx context.Context) error {
		return e.repo.SaveLevel(ctx, &level)
	}), "[Engine.DefineLevel]")
}

// Grant binds an existing level to a user.
func (e *Engine) Grant(ctx context.Context, binding Binding) error {
	if binding.UserID == "" || binding.LevelID == "" {
		return autherrors.Wrapf(autherrors.ErrInvalidRequest, "[Engine.Grant] user id and level id are required")
	}
	if _, err := storecall.Query(ctx, e.storeTimeout, func(ctx context.Context) (*Level, error) {
		return e.repo.GetLevel(ctx, binding.LevelID)
	}); err != nil {
		return errors.Wrap(err, "[Engine.Grant]")
	}

	binding.Active = true
	if binding.GrantedAt.IsZero() {
		binding.GrantedAt = e.nowFunc()
	}
	if err := storecall.Exec(ctx, e.storeTimeout, func(ctx context.Context) error {
		return e.repo.SaveBinding(ctx, &binding)
	}); err != nil {
		return errors.Wrap(err, "[Engine.Grant]")
	}

	e.audit.Log(ctx, audit.Event{
		UserID:      binding.UserID,
		EventType:   audit.EventAccessGranted,
		Category:    audit.CategoryAuthorization,
		Severity:    audit.SeverityLow,
		Description: "access level granted",
		Metadata:    map[string]any{"level_id": binding.LevelID},
	})
	return nil
}

// Revoke deactivates a binding and reports whether it was active.
func (e *Engine) Revoke(ctx context.Context, userID, levelID string) (bool, error) {
	ok, err := storecall.ExecResult(ctx, e.storeTimeout, func(ctx context.Context) (bool, error) {
		return e.repo.DeactivateBinding(ctx, userID, levelID)
	})
	if err != nil {
		return false, errors.Wrap(err, "[Engine.Revoke]")
	}
	if ok {
		e.audit.Log(ctx, audit.Event{
			UserID:      userID,
			EventType:   audit.EventAccessRevoked,
			Category:    audit.CategoryAuthorization,
			Severity:    audit.SeverityLow,
			Description: "access level revoked",
			Metadata:    map[string]any{"level_id": levelID},
		})
	}
	return ok, nil
}
