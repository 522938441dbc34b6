package users

import (
	"context"
	"time"
)

// Repo stores user credentials. Lookups return errors.ErrNotFound for unknown users and
// Create returns errors.ErrConflict for a duplicate email.
type Repo interface {
	Create(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	SetLastLogin(ctx context.Context, id string, at time.Time) error
}
