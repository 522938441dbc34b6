package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/ggrighi15/fusione-dev-sub001/access"
)

var _ access.Repo = (*AccessRepo)(nil)

type AccessRepo struct {
	db *DB
}

func (r *AccessRepo) SaveLevel(ctx context.Context, l *access.Level) error {
	perms, err := encodeJSON(l.Permissions)
	if err != nil {
		return err
	}
	_, err = r.db.exec(ctx, `INSERT INTO access_levels (id, name, permissions, priority) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, permissions = excluded.permissions, priority = excluded.priority`,
		l.ID, l.Name, perms, l.Priority)
	return errors.Wrap(err, "[AccessRepo.SaveLevel]")
}

func (r *AccessRepo) GetLevel(ctx context.Context, id string) (*access.Level, error) {
	var (
		l     access.Level
		perms string
	)
	err := r.db.queryRow(ctx, `SELECT id, name, permissions, priority FROM access_levels WHERE id = ?`, id).
		Scan(&l.ID, &l.Name, &perms, &l.Priority)
	if err != nil {
		return nil, scanErr(err, "access level "+id)
	}
	if err := decodeJSON(perms, &l.Permissions); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *AccessRepo) SaveBinding(ctx context.Context, b *access.Binding) error {
	_, err := r.db.exec(ctx, `INSERT INTO access_bindings (user_id, level_id, expires_at, active, granted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, level_id) DO UPDATE SET
			expires_at = excluded.expires_at, active = excluded.active, granted_at = excluded.granted_at`,
		b.UserID, b.LevelID, nullNanos(b.ExpiresAt), flag(b.Active), nanos(b.GrantedAt))
	return errors.Wrap(err, "[AccessRepo.SaveBinding]")
}

func (r *AccessRepo) DeactivateBinding(ctx context.Context, userID, levelID string) (bool, error) {
	n, err := r.db.exec(ctx, `UPDATE access_bindings SET active = 0 WHERE user_id = ? AND level_id = ? AND active = 1`, userID, levelID)
	if err != nil {
		return false, errors.Wrap(err, "[AccessRepo.DeactivateBinding]")
	}
	return n == 1, nil
}

func (r *AccessRepo) LevelsForUser(ctx context.Context, userID string, now time.Time) ([]*access.Level, error) {
	rows, err := r.db.query(ctx, `SELECT l.id, l.name, l.permissions, l.priority
		FROM access_bindings b JOIN access_levels l ON l.id = b.level_id
		WHERE b.user_id = ? AND b.active = 1 AND (b.expires_at IS NULL OR b.expires_at > ?)
		ORDER BY l.priority DESC, l.id ASC`, userID, nanos(now))
	if err != nil {
		return nil, errors.Wrap(err, "[AccessRepo.LevelsForUser]")
	}
	defer rows.Close()

	var levels []*access.Level
	for rows.Next() {
		var (
			l     access.Level
			perms sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.Name, &perms, &l.Priority); err != nil {
			return nil, errors.Wrap(err, "[AccessRepo.LevelsForUser]")
		}
		if err := decodeJSON(perms.String, &l.Permissions); err != nil {
			return nil, err
		}
		levels = append(levels, &l)
	}
	return levels, errors.Wrap(rows.Err(), "[AccessRepo.LevelsForUser]")
}
