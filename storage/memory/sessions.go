package memory

import (
	"context"
	"sync"
	"time"

	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/sessions"
)

var _ sessions.Repo = (*SessionRepo)(nil)

type SessionRepo struct {
	sessions map[string]*sessions.Session // keyed by token
	lock     sync.RWMutex
}

func NewSessionRepo() *SessionRepo {
	return &SessionRepo{
		sessions: make(map[string]*sessions.Session),
	}
}

func (r *SessionRepo) Create(_ context.Context, session *sessions.Session) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.sessions[session.Token]; ok {
		return autherrors.Wrapf(autherrors.ErrConflict, "session token")
	}
	cp := *session
	r.sessions[session.Token] = &cp
	return nil
}

func (r *SessionRepo) GetByToken(_ context.Context, token string) (*sessions.Session, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	s, ok := r.sessions[token]
	if !ok {
		return nil, autherrors.Wrapf(autherrors.ErrNotFound, "session")
	}
	cp := *s
	return &cp, nil
}

func (r *SessionRepo) Touch(_ context.Context, token string, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if s, ok := r.sessions[token]; ok {
		s.LastActivity = at
	}
	return nil
}

func (r *SessionRepo) Deactivate(_ context.Context, token string) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	s, ok := r.sessions[token]
	if !ok || !s.Active {
		return false, nil
	}
	s.Active = false
	return true, nil
}

func (r *SessionRepo) DeactivateAllForUser(_ context.Context, userID string) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	n := 0
	for _, s := range r.sessions {
		if s.UserID == userID && s.Active {
			s.Active = false
			n++
		}
	}
	return n, nil
}

func (r *SessionRepo) DeactivateExpired(_ context.Context, now time.Time) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	n := 0
	for _, s := range r.sessions {
		if s.Active && !now.Before(s.ExpiresAt) {
			s.Active = false
			n++
		}
	}
	return n, nil
}
