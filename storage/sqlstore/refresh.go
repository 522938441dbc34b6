package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/ggrighi15/fusione-dev-sub001/token/refresh"
)

var _ refresh.Repo = (*RefreshRepo)(nil)

type RefreshRepo struct {
	db *DB
}

const refreshColumns = `token, user_id, client_id, scope, metadata, created_at, expires_at, last_used_at, revoked, revoked_at`

func (r *RefreshRepo) Insert(ctx context.Context, rec *refresh.Record) error {
	metadata, err := encodeJSON(rec.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.exec(ctx, `INSERT INTO refresh_tokens (`+refreshColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Token, rec.UserID, rec.ClientID, rec.Scope, metadata, nanos(rec.CreatedAt), nanos(rec.ExpiresAt),
		nullNanos(rec.LastUsedAt), flag(rec.Revoked), nullNanos(rec.RevokedAt))
	return errors.Wrap(err, "[RefreshRepo.Insert]")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRefresh(row rowScanner) (*refresh.Record, error) {
	var (
		rec                  refresh.Record
		metadata             sql.NullString
		createdAt, expiresAt int64
		lastUsed, revokedAt  sql.NullInt64
	)
	if err := row.Scan(&rec.Token, &rec.UserID, &rec.ClientID, &rec.Scope, &metadata,
		&createdAt, &expiresAt, &lastUsed, &rec.Revoked, &revokedAt); err != nil {
		return nil, err
	}
	if err := decodeJSON(metadata.String, &rec.Metadata); err != nil {
		return nil, err
	}
	rec.CreatedAt = fromNanos(createdAt)
	rec.ExpiresAt = fromNanos(expiresAt)
	rec.LastUsedAt = fromNullNanos(lastUsed)
	rec.RevokedAt = fromNullNanos(revokedAt)
	return &rec, nil
}

func (r *RefreshRepo) Get(ctx context.Context, token string) (*refresh.Record, error) {
	rec, err := scanRefresh(r.db.queryRow(ctx, `SELECT `+refreshColumns+` FROM refresh_tokens WHERE token = ?`, token))
	if err != nil {
		return nil, scanErr(err, "refresh token")
	}
	return rec, nil
}

func (r *RefreshRepo) ListLive(ctx context.Context, userID string, now time.Time) ([]*refresh.Record, error) {
	rows, err := r.db.query(ctx, `SELECT `+refreshColumns+` FROM refresh_tokens
		WHERE user_id = ? AND revoked = 0 AND expires_at > ?
		ORDER BY created_at ASC, seq ASC`, userID, nanos(now))
	if err != nil {
		return nil, errors.Wrap(err, "[RefreshRepo.ListLive]")
	}
	defer rows.Close()

	var out []*refresh.Record
	for rows.Next() {
		rec, err := scanRefresh(rows)
		if err != nil {
			return nil, errors.Wrap(err, "[RefreshRepo.ListLive]")
		}
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "[RefreshRepo.ListLive]")
}

func (r *RefreshRepo) Touch(ctx context.Context, token string, usedAt time.Time) error {
	_, err := r.db.exec(ctx, `UPDATE refresh_tokens SET last_used_at = ? WHERE token = ?`, nanos(usedAt), token)
	return errors.Wrap(err, "[RefreshRepo.Touch]")
}

func (r *RefreshRepo) Revoke(ctx context.Context, token string, at time.Time) (bool, error) {
	n, err := r.db.exec(ctx, `UPDATE refresh_tokens SET revoked = 1, revoked_at = ?
		WHERE token = ? AND revoked = 0`, nanos(at), token)
	if err != nil {
		return false, errors.Wrap(err, "[RefreshRepo.Revoke]")
	}
	return n == 1, nil
}

func (r *RefreshRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	n, err := r.db.exec(ctx, `UPDATE refresh_tokens SET revoked = 1, revoked_at = ?
		WHERE user_id = ? AND revoked = 0`, nanos(at), userID)
	return n, errors.Wrap(err, "[RefreshRepo.RevokeAllForUser]")
}

func (r *RefreshRepo) DeleteStale(ctx context.Context, now, revokedBefore time.Time) (int, error) {
	n, err := r.db.exec(ctx, `DELETE FROM refresh_tokens
		WHERE expires_at <= ? OR (revoked = 1 AND revoked_at < ?)`, nanos(now), nanos(revokedBefore))
	return n, errors.Wrap(err, "[RefreshRepo.DeleteStale]")
}
