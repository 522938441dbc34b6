package sqlstore

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/ggrighi15/fusione-dev-sub001/oauth2"
)

var _ oauth2.CodeRepo = (*CodeRepo)(nil)

type CodeRepo struct {
	db *DB
}

func (r *CodeRepo) Insert(ctx context.Context, c *oauth2.AuthorizationCode) error {
	scopes, err := encodeJSON(c.Scopes)
	if err != nil {
		return err
	}
	_, err = r.db.exec(ctx, `INSERT INTO authorization_codes
		(code, client_id, user_id, scopes, redirect_uri, expires_at, used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Code, c.ClientID, c.UserID, scopes, c.RedirectURI, nanos(c.ExpiresAt), flag(c.Used), nanos(c.CreatedAt))
	return errors.Wrap(err, "[CodeRepo.Insert]")
}

func (r *CodeRepo) Get(ctx context.Context, code string) (*oauth2.AuthorizationCode, error) {
	var (
		c                    oauth2.AuthorizationCode
		scopes               string
		expiresAt, createdAt int64
	)
	err := r.db.queryRow(ctx, `SELECT code, client_id, user_id, scopes, redirect_uri, expires_at, used, created_at
		FROM authorization_codes WHERE code = ?`, code).
		Scan(&c.Code, &c.ClientID, &c.UserID, &scopes, &c.RedirectURI, &expiresAt, &c.Used, &createdAt)
	if err != nil {
		return nil, scanErr(err, "authorization code")
	}
	if err := decodeJSON(scopes, &c.Scopes); err != nil {
		return nil, err
	}
	c.ExpiresAt = fromNanos(expiresAt)
	c.CreatedAt = fromNanos(createdAt)
	return &c, nil
}

// MarkUsed is a single conditional update; RowsAffected decides the winner.
func (r *CodeRepo) MarkUsed(ctx context.Context, code string, now time.Time) (bool, error) {
	n, err := r.db.exec(ctx, `UPDATE authorization_codes SET used = 1
		WHERE code = ? AND used = 0 AND expires_at > ?`, code, nanos(now))
	if err != nil {
		return false, errors.Wrap(err, "[CodeRepo.MarkUsed]")
	}
	return n == 1, nil
}

func (r *CodeRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := r.db.exec(ctx, `DELETE FROM authorization_codes WHERE expires_at <= ?`, nanos(now))
	return n, errors.Wrap(err, "[CodeRepo.DeleteExpired]")
}
