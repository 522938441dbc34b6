package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ggrighi15/fusione-dev-sub001/internal/config"
	"github.com/ggrighi15/fusione-dev-sub001/internal/events"
	"github.com/ggrighi15/fusione-dev-sub001/internal/geo"
	"github.com/ggrighi15/fusione-dev-sub001/internal/metrics"
	"github.com/ggrighi15/fusione-dev-sub001/internal/storecall"
)

const defaultStoreTimeout = 3 * time.Second

// Auditor persists security events, raises alerts for critical ones and runs the periodic
// anomaly scan.
type Auditor struct {
	repo         Repo
	resolver     geo.Resolver
	publisher    events.Publisher
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	scan         config.Audit
	storeTimeout time.Duration
	nowFunc      func() time.Time
}

var _ Logger = (*Auditor)(nil)

type Option func(*Auditor)

func WithResolver(r geo.Resolver) Option {
	return func(a *Auditor) {
		a.resolver = r
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(a *Auditor) {
		a.publisher = p
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(a *Auditor) {
		a.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Auditor) {
		a.metrics = m
	}
}

// WithScanConfig sets the anomaly scan windows and threshold.
func WithScanConfig(c config.Audit) Option {
	return func(a *Auditor) {
		a.scan = c
	}
}

func WithStoreTimeout(d time.Duration) Option {
	return func(a *Auditor) {
		a.storeTimeout = d
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(a *Auditor) {
		a.nowFunc = now
	}
}

func NewAuditor(repo Repo, options ...Option) *Auditor {
	a := &Auditor{
		repo:         repo,
		resolver:     geo.Nop{},
		publisher:    events.Nop{},
		logger:       zerolog.Nop(),
		scan:         config.Default().Audit,
		storeTimeout: defaultStoreTimeout,
		nowFunc:      time.Now,
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

// Log records e. It never fails the caller: lookup and persistence errors are logged and
// dropped.
func (a *Auditor) Log(ctx context.Context, e Event) {
	entry := a.newEntry(ctx, e)

	err := storecall.Exec(ctx, a.storeTimeout, func(ctx context.Context) error {
		return a.repo.Append(ctx, entry)
	})
	if err != nil {
		a.logger.Error().Err(err).
			Str("event_type", entry.EventType).
			Str("user_id", entry.UserID).
			Msg("failed to persist security log entry")
	}
	a.metrics.RecordAuditEvent(ctx, string(entry.Category), string(entry.Severity))

	logEvent := a.logger.Info()
	switch entry.Severity {
	case SeverityHigh:
		logEvent = a.logger.Warn()
	case SeverityCritical:
		logEvent = a.logger.Error()
	}
	logEvent.Str("event_type", entry.EventType).
		Str("category", string(entry.Category)).
		Str("severity", string(entry.Severity)).
		Str("user_id", entry.UserID).
		Str("ip", entry.IP).
		Msg(entry.Description)

	if entry.Severity == SeverityCritical {
		a.publisher.Publish(ctx, events.CriticalSecurity{
			EntryID:     entry.ID,
			UserID:      entry.UserID,
			EventType:   entry.EventType,
			Description: entry.Description,
			IP:          entry.IP,
			OccurredAt:  entry.CreatedAt,
		})
	}
}

func (a *Auditor) newEntry(ctx context.Context, e Event) *Entry {
	if e.Severity == "" {
		e.Severity = SeverityLow
	}
	entry := &Entry{
		ID:          uuid.NewString(),
		UserID:      e.UserID,
		SessionID:   e.SessionID,
		EventType:   e.EventType,
		Category:    e.Category,
		Severity:    e.Severity,
		Description: e.Description,
		IP:          e.IP,
		UserAgent:   e.UserAgent,
		Metadata:    e.Metadata,
		CreatedAt:   a.nowFunc(),
	}
	if e.IP != "" {
		entry.Location = a.lookup(ctx, e.IP)
	}
	return entry
}

func (a *Auditor) lookup(ctx context.Context, ip string) (loc *geo.Location) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn().Str("ip", ip).Interface("panic", r).Msg("geo lookup panicked")
			loc = nil
		}
	}()
	return a.resolver.Lookup(ctx, ip)
}

// Recent returns entries matching filter, newest first.
func (a *Auditor) Recent(ctx context.Context, filter Filter) ([]*Entry, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return storecall.Query(ctx, a.storeTimeout, func(ctx context.Context) ([]*Entry, error) {
		return a.repo.Query(ctx, filter)
	})
}
