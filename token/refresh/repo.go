package refresh

import (
	"context"
	"time"
)

// Record is the server side state of a refresh token. The client only ever sees Token.
type Record struct {
	Token      string         // The actual random token string (sent to client)
	UserID     string         // Server-side metadata
	ClientID   string         // Server-side metadata
	Scope      string         // Server-side metadata (original scope for token refresh)
	Metadata   map[string]any // Issuing context, opaque to the store
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt *time.Time
	Revoked    bool
	RevokedAt  *time.Time
}

// Live reports whether the record can still be used at now.
func (r *Record) Live(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// Repo manages server-side storage of refresh token metadata.
// Get returns errors.ErrNotFound for unknown tokens. ListLive returns the live tokens of a
// user oldest first, insertion order breaking ties.
type Repo interface {
	Insert(ctx context.Context, record *Record) error
	Get(ctx context.Context, token string) (*Record, error)
	ListLive(ctx context.Context, userID string, now time.Time) ([]*Record, error)
	Touch(ctx context.Context, token string, usedAt time.Time) error
	// Revoke flips an unrevoked token and reports whether this call did it.
	Revoke(ctx context.Context, token string, at time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error)
	// DeleteStale removes tokens expired at now and tokens revoked before revokedBefore.
	DeleteStale(ctx context.Context, now, revokedBefore time.Time) (int, error)
}
