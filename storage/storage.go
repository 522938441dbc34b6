// Package storage selects the backend once at startup and hands the engines one repo per
// domain.
package storage

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ggrighi15/fusione-dev-sub001/access"
	"github.com/ggrighi15/fusione-dev-sub001/audit"
	"github.com/ggrighi15/fusione-dev-sub001/clients"
	"github.com/ggrighi15/fusione-dev-sub001/internal/config"
	"github.com/ggrighi15/fusione-dev-sub001/oauth2"
	"github.com/ggrighi15/fusione-dev-sub001/sessions"
	"github.com/ggrighi15/fusione-dev-sub001/storage/memory"
	"github.com/ggrighi15/fusione-dev-sub001/storage/sqlstore"
	"github.com/ggrighi15/fusione-dev-sub001/token/refresh"
	"github.com/ggrighi15/fusione-dev-sub001/twofactor"
	"github.com/ggrighi15/fusione-dev-sub001/users"
)

const DriverMemory = "memory"

// Backend is the set of repos the process runs on. Persistent is false for the
// in-memory backend, whose state is lost on restart.
type Backend struct {
	Clients    clients.Repo
	Codes      oauth2.CodeRepo
	Refresh    refresh.Repo
	TwoFactor  twofactor.Repo
	Sessions   sessions.Repo
	Access     access.Repo
	Audit      audit.Repo
	Users      users.Repo
	Persistent bool

	ping  func(ctx context.Context) error
	close func() error
}

// Ping reports whether the backend is reachable. The memory backend always is.
func (b *Backend) Ping(ctx context.Context) error {
	if b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open builds the backend named by c.Driver. When the SQL store cannot be opened and
// c.Fallback is set, the whole process runs on the memory backend instead.
func Open(ctx context.Context, c config.Store, logger zerolog.Logger) (*Backend, error) {
	if c.Driver == DriverMemory {
		logger.Warn().Msg("using in-memory store, state is lost on restart")
		return Memory(), nil
	}

	openCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	store, err := sqlstore.Open(openCtx, c.Driver, c.DSN)
	if err != nil {
		if !c.Fallback {
			return nil, errors.Wrap(err, "[storage.Open]")
		}
		logger.Warn().Err(err).Str("driver", c.Driver).Msg("store unavailable, falling back to in-memory store")
		return Memory(), nil
	}
	logger.Info().Str("driver", c.Driver).Msg("store opened")
	return SQL(store), nil
}

func Memory() *Backend {
	m := memory.New()
	return &Backend{
		Clients:   m.Clients,
		Codes:     m.Codes,
		Refresh:   m.Refresh,
		TwoFactor: m.TwoFactor,
		Sessions:  m.Sessions,
		Access:    m.Access,
		Audit:     m.Audit,
		Users:     m.Users,
	}
}

func SQL(s *sqlstore.Store) *Backend {
	return &Backend{
		Clients:    s.Clients,
		Codes:      s.Codes,
		Refresh:    s.Refresh,
		TwoFactor:  s.TwoFactor,
		Sessions:   s.Sessions,
		Access:     s.Access,
		Audit:      s.Audit,
		Users:      s.Users,
		Persistent: true,
		ping:       s.Ping,
		close:      s.Close,
	}
}
