// Package sqlstore is the persistent backend over database/sql. It speaks to SQLite
// through modernc.org/sqlite and to PostgreSQL through the pgx stdlib driver. Times are
// stored as UTC unix nanoseconds and list columns as JSON text.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	//go:embed schema_sqlite.sql
	sqliteSchema string
	//go:embed schema_postgres.sql
	postgresSchema string
)

// DB wraps the pool with the placeholder style of its dialect.
type DB struct {
	pool     *sql.DB
	postgres bool
}

// Store groups one repo per domain over a shared pool.
type Store struct {
	db        *DB
	Clients   *ClientRepo
	Codes     *CodeRepo
	Refresh   *RefreshRepo
	TwoFactor *TwoFactorRepo
	Sessions  *SessionRepo
	Access    *AccessRepo
	Audit     *AuditRepo
	Users     *UserRepo
}

// Open connects, pings and applies the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var (
		sqlDriver string
		schema    string
	)
	switch driver {
	case DriverSQLite:
		sqlDriver, schema = "sqlite", sqliteSchema
	case DriverPostgres:
		sqlDriver, schema = "pgx", postgresSchema
	default:
		return nil, errors.Errorf("[sqlstore.Open] unsupported driver %q", driver)
	}

	pool, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "[sqlstore.Open] open %s", driver)
	}
	if driver == DriverSQLite {
		// SQLite serialises writers; one connection avoids SQLITE_BUSY between our own calls.
		pool.SetMaxOpenConns(1)
	}
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, errors.Wrapf(autherrors.FromContext(err), "[sqlstore.Open] ping %s", driver)
	}
	if _, err := pool.ExecContext(ctx, schema); err != nil {
		_ = pool.Close()
		return nil, errors.Wrap(err, "[sqlstore.Open] apply schema")
	}

	db := &DB{pool: pool, postgres: driver == DriverPostgres}
	return &Store{
		db:        db,
		Clients:   &ClientRepo{db: db},
		Codes:     &CodeRepo{db: db},
		Refresh:   &RefreshRepo{db: db},
		TwoFactor: &TwoFactorRepo{db: db},
		Sessions:  &SessionRepo{db: db},
		Access:    &AccessRepo{db: db},
		Audit:     &AuditRepo{db: db},
		Users:     &UserRepo{db: db},
	}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return autherrors.FromContext(s.db.pool.PingContext(ctx))
}

func (s *Store) Close() error {
	return s.db.pool.Close()
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (db *DB) rebind(query string) string {
	if !db.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (db *DB) exec(ctx context.Context, query string, args ...any) (int, error) {
	res, err := db.pool.ExecContext(ctx, db.rebind(query), args...)
	if err != nil {
		return 0, autherrors.FromContext(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (db *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := db.pool.QueryContext(ctx, db.rebind(query), args...)
	return rows, autherrors.FromContext(err)
}

func (db *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return db.pool.QueryRowContext(ctx, db.rebind(query), args...)
}

// scanErr maps sql.ErrNoRows to errors.ErrNotFound.
func scanErr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return autherrors.Wrapf(autherrors.ErrNotFound, "%s", what)
	}
	return autherrors.FromContext(err)
}

func nanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: nanos(*t), Valid: true}
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "encode json column")
	}
	return string(b), nil
}

// nullJSON encodes v and stores SQL NULL for nil values.
func nullJSON[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	s, err := encodeJSON(v)
	return sql.NullString{String: s, Valid: err == nil}, err
}

func decodeJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	return errors.Wrap(json.Unmarshal([]byte(s), v), "decode json column")
}
