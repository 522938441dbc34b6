package memory

import (
	"context"
	"sync"
	"time"

	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/users"
)

var _ users.Repo = (*UserRepo)(nil)

type UserRepo struct {
	users   map[string]*users.User // keyed by id
	byEmail map[string]string
	lock    sync.RWMutex
}

func NewUserRepo() *UserRepo {
	return &UserRepo{
		users:   make(map[string]*users.User),
		byEmail: make(map[string]string),
	}
}

func (r *UserRepo) Create(_ context.Context, user *users.User) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	email := users.NormaliseEmail(user.Email)
	if _, ok := r.byEmail[email]; ok {
		return autherrors.Wrapf(autherrors.ErrConflict, "user %s", email)
	}
	if _, ok := r.users[user.ID]; ok {
		return autherrors.Wrapf(autherrors.ErrConflict, "user id %s", user.ID)
	}
	cp := *user
	cp.Email = email
	r.users[user.ID] = &cp
	r.byEmail[email] = user.ID
	return nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*users.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	id, ok := r.byEmail[users.NormaliseEmail(email)]
	if !ok {
		return nil, autherrors.Wrapf(autherrors.ErrNotFound, "user %s", email)
	}
	cp := *r.users[id]
	return &cp, nil
}

func (r *UserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, autherrors.Wrapf(autherrors.ErrNotFound, "user id %s", id)
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepo) SetLastLogin(_ context.Context, id string, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	u, ok := r.users[id]
	if !ok {
		return autherrors.Wrapf(autherrors.ErrNotFound, "user id %s", id)
	}
	u.LastLogin = at
	return nil
}
