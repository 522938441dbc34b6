package sqlstore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/ggrighi15/fusione-dev-sub001/audit"
	"github.com/ggrighi15/fusione-dev-sub001/internal/geo"
)

var _ audit.Repo = (*AuditRepo)(nil)

// AuditRepo only ever inserts into security_log.
type AuditRepo struct {
	db *DB
}

func (r *AuditRepo) Append(ctx context.Context, e *audit.Entry) error {
	location, err := nullJSON(e.Location)
	if err != nil {
		return err
	}
	var metadata sql.NullString
	if e.Metadata != nil {
		if metadata.String, err = encodeJSON(e.Metadata); err != nil {
			return err
		}
		metadata.Valid = true
	}
	_, err = r.db.exec(ctx, `INSERT INTO security_log
		(id, user_id, session_id, event_type, category, severity, description, ip, user_agent, location, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.SessionID, e.EventType, string(e.Category), string(e.Severity), e.Description,
		e.IP, e.UserAgent, location, metadata, nanos(e.CreatedAt))
	return errors.Wrap(err, "[AuditRepo.Append]")
}

func (r *AuditRepo) Query(ctx context.Context, f audit.Filter) ([]*audit.Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		where, args = append(where, "user_id = ?"), append(args, f.UserID)
	}
	if f.EventType != "" {
		where, args = append(where, "event_type = ?"), append(args, f.EventType)
	}
	if f.Category != "" {
		where, args = append(where, "category = ?"), append(args, string(f.Category))
	}
	if !f.Since.IsZero() {
		where, args = append(where, "created_at >= ?"), append(args, nanos(f.Since))
	}
	if !f.Until.IsZero() {
		where, args = append(where, "created_at < ?"), append(args, nanos(f.Until))
	}

	query := `SELECT id, user_id, session_id, event_type, category, severity, description, ip, user_agent,
		location, metadata, created_at FROM security_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, seq DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "[AuditRepo.Query]")
	}
	defer rows.Close()

	var out []*audit.Entry
	for rows.Next() {
		var (
			e                  audit.Entry
			category, severity string
			location, metadata sql.NullString
			createdAt          int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.SessionID, &e.EventType, &category, &severity, &e.Description,
			&e.IP, &e.UserAgent, &location, &metadata, &createdAt); err != nil {
			return nil, errors.Wrap(err, "[AuditRepo.Query]")
		}
		e.Category = audit.Category(category)
		e.Severity = audit.Severity(severity)
		if location.Valid {
			e.Location = &geo.Location{}
			if err := decodeJSON(location.String, e.Location); err != nil {
				return nil, err
			}
		}
		if err := decodeJSON(metadata.String, &e.Metadata); err != nil {
			return nil, err
		}
		e.CreatedAt = fromNanos(createdAt)
		out = append(out, &e)
	}
	return out, errors.Wrap(rows.Err(), "[AuditRepo.Query]")
}
