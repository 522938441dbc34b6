package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/ggrighi15/fusione-dev-sub001/internal/geo"
	"github.com/ggrighi15/fusione-dev-sub001/sessions"
)

var _ sessions.Repo = (*SessionRepo)(nil)

type SessionRepo struct {
	db *DB
}

func (r *SessionRepo) Create(ctx context.Context, s *sessions.Session) error {
	location, err := nullJSON(s.Location)
	if err != nil {
		return err
	}
	_, err = r.db.exec(ctx, `INSERT INTO sessions
		(token, id, user_id, ip, user_agent, location, created_at, expires_at, last_activity, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Token, s.ID, s.UserID, s.IP, s.UserAgent, location,
		nanos(s.CreatedAt), nanos(s.ExpiresAt), nanos(s.LastActivity), flag(s.Active))
	return errors.Wrap(err, "[SessionRepo.Create]")
}

func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*sessions.Session, error) {
	var (
		s                                  sessions.Session
		location                           sql.NullString
		createdAt, expiresAt, lastActivity int64
	)
	err := r.db.queryRow(ctx, `SELECT token, id, user_id, ip, user_agent, location, created_at, expires_at, last_activity, active
		FROM sessions WHERE token = ?`, token).
		Scan(&s.Token, &s.ID, &s.UserID, &s.IP, &s.UserAgent, &location, &createdAt, &expiresAt, &lastActivity, &s.Active)
	if err != nil {
		return nil, scanErr(err, "session")
	}
	if location.Valid {
		s.Location = &geo.Location{}
		if err := decodeJSON(location.String, s.Location); err != nil {
			return nil, err
		}
	}
	s.CreatedAt = fromNanos(createdAt)
	s.ExpiresAt = fromNanos(expiresAt)
	s.LastActivity = fromNanos(lastActivity)
	return &s, nil
}

func (r *SessionRepo) Touch(ctx context.Context, token string, at time.Time) error {
	_, err := r.db.exec(ctx, `UPDATE sessions SET last_activity = ? WHERE token = ?`, nanos(at), token)
	return errors.Wrap(err, "[SessionRepo.Touch]")
}

func (r *SessionRepo) Deactivate(ctx context.Context, token string) (bool, error) {
	n, err := r.db.exec(ctx, `UPDATE sessions SET active = 0 WHERE token = ? AND active = 1`, token)
	if err != nil {
		return false, errors.Wrap(err, "[SessionRepo.Deactivate]")
	}
	return n == 1, nil
}

func (r *SessionRepo) DeactivateAllForUser(ctx context.Context, userID string) (int, error) {
	n, err := r.db.exec(ctx, `UPDATE sessions SET active = 0 WHERE user_id = ? AND active = 1`, userID)
	return n, errors.Wrap(err, "[SessionRepo.DeactivateAllForUser]")
}

func (r *SessionRepo) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := r.db.exec(ctx, `UPDATE sessions SET active = 0 WHERE active = 1 AND expires_at <= ?`, nanos(now))
	return n, errors.Wrap(err, "[SessionRepo.DeactivateExpired]")
}
