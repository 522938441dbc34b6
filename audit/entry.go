package audit

import (
	"context"
	"time"

	"github.com/ggrighi15/fusione-dev-sub001/internal/geo"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategorySession        Category = "session"
	CategoryTwoFactor      Category = "two_factor"
	CategoryToken          Category = "token"
	CategoryAnomaly        Category = "anomaly"
)

// Event types recorded by the engines. The anomaly scan reads EventLoginFailed and
// EventLoginSuccess.
const (
	EventLoginSuccess       = "login_success"
	EventLoginFailed        = "login_failed"
	EventLogout             = "logout"
	EventClientRegistered   = "client_registered"
	EventCodeIssued         = "authorization_code_issued"
	EventCodeIssueFailed    = "authorization_code_denied"
	EventCodeExchanged      = "authorization_code_exchanged"
	EventCodeExchangeFailed = "authorization_code_exchange_failed"
	EventTokenRefreshed     = "access_token_refreshed"
	EventTwoFactorSetup     = "two_factor_setup"
	EventTwoFactorEnabled   = "two_factor_enabled"
	EventTwoFactorDisabled  = "two_factor_disabled"
	EventTwoFactorFailed    = "two_factor_failed"
	EventBackupCodeUsed     = "backup_code_used"
	EventBackupCodesReset   = "backup_codes_regenerated"
	EventSessionCreated     = "session_created"
	EventSessionRevoked     = "session_revoked"
	EventRefreshIssued      = "refresh_token_issued"
	EventRefreshRevoked     = "refresh_token_revoked"
	EventPermissionDenied   = "permission_denied"
	EventAccessGranted      = "access_granted"
	EventAccessRevoked      = "access_revoked"
	EventSuspiciousActivity = "suspicious_activity"
	EventUnusualLocation    = "unusual_location"
)

// Event is what a caller reports. Metadata must be JSON serialisable.
type Event struct {
	UserID      string
	SessionID   string
	EventType   string
	Category    Category
	Severity    Severity
	Description string
	IP          string
	UserAgent   string
	Metadata    map[string]any
}

// Entry is a persisted, append-only security log record.
type Entry struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId,omitempty"`
	SessionID   string         `json:"sessionId,omitempty"`
	EventType   string         `json:"eventType"`
	Category    Category       `json:"category"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	IP          string         `json:"ip,omitempty"`
	UserAgent   string         `json:"userAgent,omitempty"`
	Location    *geo.Location  `json:"location,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Country is the resolved country, or "" when the location is unknown.
func (e *Entry) Country() string {
	if e.Location == nil {
		return ""
	}
	return e.Location.Country
}

// Filter selects entries. Zero fields match everything; Since is inclusive, Until exclusive.
// Results are ordered by CreatedAt descending.
type Filter struct {
	UserID    string
	EventType string
	Category  Category
	Since     time.Time
	Until     time.Time
	Limit     int
}

// Matches applies the filter to one entry, for backends that filter in process.
func (f Filter) Matches(e *Entry) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.CreatedAt.Before(f.Until) {
		return false
	}
	return true
}

// Repo is the append-only entry store.
type Repo interface {
	Append(ctx context.Context, entry *Entry) error
	Query(ctx context.Context, filter Filter) ([]*Entry, error)
}

// Logger is what the engines depend on to report security events.
type Logger interface {
	Log(ctx context.Context, e Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Log(context.Context, Event) {}
