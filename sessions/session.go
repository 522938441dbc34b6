package sessions

import (
	"context"
	"time"

	"github.com/ggrighi15/fusione-dev-sub001/internal/geo"
)

// Session is an authenticated browser or API session. The store is the source of truth;
// the in-process cache only answers the hot path.
type Session struct {
	ID           string        `json:"session_id"`
	Token        string        `json:"-"`
	UserID       string        `json:"user_id"`
	IP           string        `json:"ip,omitempty"`
	UserAgent    string        `json:"user_agent,omitempty"`
	Location     *geo.Location `json:"location,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
	LastActivity time.Time     `json:"last_activity"`
	Active       bool          `json:"active"`
}

// ValidAt requires now strictly before ExpiresAt.
func (s *Session) ValidAt(now time.Time) bool {
	return s.Active && now.Before(s.ExpiresAt)
}

// Repo stores sessions. GetByToken returns errors.ErrNotFound for unknown tokens.
type Repo interface {
	Create(ctx context.Context, session *Session) error
	GetByToken(ctx context.Context, token string) (*Session, error)
	Touch(ctx context.Context, token string, at time.Time) error
	Deactivate(ctx context.Context, token string) (bool, error)
	DeactivateAllForUser(ctx context.Context, userID string) (int, error)
	// DeactivateExpired flips active sessions whose ExpiresAt is at or before now.
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)
}
