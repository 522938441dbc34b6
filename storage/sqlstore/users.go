package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/users"
)

var _ users.Repo = (*UserRepo)(nil)

type UserRepo struct {
	db *DB
}

func (r *UserRepo) Create(ctx context.Context, u *users.User) error {
	email := users.NormaliseEmail(u.Email)
	var lastLogin sql.NullInt64
	if !u.LastLogin.IsZero() {
		lastLogin = nullNanos(&u.LastLogin)
	}
	n, err := r.db.exec(ctx, `INSERT INTO users (id, email, password_hash, display_name, date_joined, last_login, blocked)
		VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		u.ID, email, u.PasswordHash, u.DisplayName, nanos(u.DateJoined), lastLogin, flag(u.Blocked))
	if err != nil {
		return errors.Wrap(err, "[UserRepo.Create]")
	}
	if n == 0 {
		return autherrors.Wrapf(autherrors.ErrConflict, "user %s", email)
	}
	return nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return r.get(ctx, "email", users.NormaliseEmail(email))
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	return r.get(ctx, "id", id)
}

// get is only called with fixed column names.
func (r *UserRepo) get(ctx context.Context, column, value string) (*users.User, error) {
	var (
		u          users.User
		dateJoined int64
		lastLogin  sql.NullInt64
	)
	err := r.db.queryRow(ctx, `SELECT id, email, password_hash, display_name, date_joined, last_login, blocked
		FROM users WHERE `+column+` = ?`, value).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &dateJoined, &lastLogin, &u.Blocked)
	if err != nil {
		return nil, scanErr(err, "user "+value)
	}
	u.DateJoined = fromNanos(dateJoined)
	if t := fromNullNanos(lastLogin); t != nil {
		u.LastLogin = *t
	}
	return &u, nil
}

func (r *UserRepo) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	n, err := r.db.exec(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, nanos(at), id)
	if err != nil {
		return errors.Wrap(err, "[UserRepo.SetLastLogin]")
	}
	if n == 0 {
		return autherrors.Wrapf(autherrors.ErrNotFound, "user id %s", id)
	}
	return nil
}
