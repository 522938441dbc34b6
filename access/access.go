package access

import (
	"context"
	"strings"
	"time"
)

// Wildcard grants every permission.
const Wildcard = "*"

// Level is a named permission set. Higher Priority levels are consulted first.
type Level struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	Priority    int      `json:"priority"`
}

// Allows reports whether any permission of the level matches permission.
func (l *Level) Allows(permission string) bool {
	for _, p := range l.Permissions {
		if Matches(p, permission) {
			return true
		}
	}
	return false
}

// Binding assigns a level to a user. A nil ExpiresAt never expires.
type Binding struct {
	UserID    string     `json:"user_id"`
	LevelID   string     `json:"level_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Active    bool       `json:"active"`
	GrantedAt time.Time  `json:"granted_at"`
}

// LiveAt reports whether the binding is active and, when it expires, now is before the expiry.
func (b *Binding) LiveAt(now time.Time) bool {
	return b.Active && (b.ExpiresAt == nil || now.Before(*b.ExpiresAt))
}

// Matches reports whether pattern grants permission. "*" matches everything and a
// trailing ":*" segment matches every permission under that prefix.
func Matches(pattern, permission string) bool {
	switch {
	case pattern == Wildcard:
		return true
	case strings.HasSuffix(pattern, ":*"):
		return strings.HasPrefix(permission, strings.TrimSuffix(pattern, "*"))
	default:
		return pattern == permission
	}
}

// Repo stores levels and bindings. GetLevel returns errors.ErrNotFound for unknown ids.
type Repo interface {
	SaveLevel(ctx context.Context, level *Level) error
	GetLevel(ctx context.Context, id string) (*Level, error)
	// SaveBinding inserts or replaces the binding for (UserID, LevelID).
	SaveBinding(ctx context.Context, binding *Binding) error
	DeactivateBinding(ctx context.Context, userID, levelID string) (bool, error)
	// LevelsForUser returns the levels of the user's live bindings at now, highest
	// priority first.
	LevelsForUser(ctx context.Context, userID string, now time.Time) ([]*Level, error)
}
