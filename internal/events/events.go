// Package events is the in-process notification bus. Events are concrete types tagged by
// Kind; subscribers register a handler table per subsystem once, at startup.
package events

import (
	"time"
)

type Kind int

const (
	KindCriticalSecurity Kind = iota + 1
	KindSuspiciousActivity
	KindUnusualLocation
	KindTwoFactorEnabled
	KindCredentialsRevoked
)

// Kinds lists every event kind the bus can carry.
func Kinds() []Kind {
	return []Kind{
		KindCriticalSecurity,
		KindSuspiciousActivity,
		KindUnusualLocation,
		KindTwoFactorEnabled,
		KindCredentialsRevoked,
	}
}

func (k Kind) String() string {
	switch k {
	case KindCriticalSecurity:
		return "critical_security"
	case KindSuspiciousActivity:
		return "suspicious_activity"
	case KindUnusualLocation:
		return "unusual_location"
	case KindTwoFactorEnabled:
		return "two_factor_enabled"
	case KindCredentialsRevoked:
		return "credentials_revoked"
	default:
		return "unknown"
	}
}

// Event is implemented only by the types in this package.
type Event interface {
	Kind() Kind
	isEvent()
}

// CriticalSecurity is published for every audit entry logged at critical severity.
type CriticalSecurity struct {
	EntryID     string
	UserID      string
	EventType   string
	Description string
	IP          string
	OccurredAt  time.Time
}

// SuspiciousActivity is one group of repeated failed logins for a (user, ip) pair.
type SuspiciousActivity struct {
	UserID      string
	IP          string
	Failures    int
	WindowStart time.Time
	DetectedAt  time.Time
}

// UnusualLocation is a successful login from a country not seen for the user recently.
type UnusualLocation struct {
	UserID     string
	Country    string
	IP         string
	DetectedAt time.Time
}

type TwoFactorEnabled struct {
	UserID    string
	EnabledAt time.Time
}

// CredentialsRevoked is published when all sessions or refresh tokens of a user are revoked.
type CredentialsRevoked struct {
	UserID  string
	Source  string
	Revoked int
}

func (CriticalSecurity) Kind() Kind   { return KindCriticalSecurity }
func (SuspiciousActivity) Kind() Kind { return KindSuspiciousActivity }
func (UnusualLocation) Kind() Kind    { return KindUnusualLocation }
func (TwoFactorEnabled) Kind() Kind   { return KindTwoFactorEnabled }
func (CredentialsRevoked) Kind() Kind { return KindCredentialsRevoked }

func (CriticalSecurity) isEvent()   {}
func (SuspiciousActivity) isEvent() {}
func (UnusualLocation) isEvent()    {}
func (TwoFactorEnabled) isEvent()   {}
func (CredentialsRevoked) isEvent() {}
