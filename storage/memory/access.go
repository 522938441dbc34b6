package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ggrighi15/fusione-dev-sub001/access"
	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
)

var _ access.Repo = (*AccessRepo)(nil)

type bindingKey struct {
	userID  string
	levelID string
}

type AccessRepo struct {
	levels   map[string]*access.Level
	bindings map[bindingKey]*access.Binding
	lock     sync.RWMutex
}

func NewAccessRepo() *AccessRepo {
	return &AccessRepo{
		levels:   make(map[string]*access.Level),
		bindings: make(map[bindingKey]*access.Binding),
	}
}

func (r *AccessRepo) SaveLevel(_ context.Context, level *access.Level) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.levels[level.ID] = cloneLevel(level)
	return nil
}

func (r *AccessRepo) GetLevel(_ context.Context, id string) (*access.Level, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	l, ok := r.levels[id]
	if !ok {
		return nil, autherrors.Wrapf(autherrors.ErrNotFound, "access level %s", id)
	}
	return cloneLevel(l), nil
}

func (r *AccessRepo) SaveBinding(_ context.Context, binding *access.Binding) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	cp := *binding
	r.bindings[bindingKey{binding.UserID, binding.LevelID}] = &cp
	return nil
}

func (r *AccessRepo) DeactivateBinding(_ context.Context, userID, levelID string) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	b, ok := r.bindings[bindingKey{userID, levelID}]
	if !ok || !b.Active {
		return false, nil
	}
	b.Active = false
	return true, nil
}

func (r *AccessRepo) LevelsForUser(_ context.Context, userID string, now time.Time) ([]*access.Level, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	var levels []*access.Level
	for k, b := range r.bindings {
		if k.userID != userID || !b.LiveAt(now) {
			continue
		}
		if l, ok := r.levels[k.levelID]; ok {
			levels = append(levels, cloneLevel(l))
		}
	}
	sort.SliceStable(levels, func(i, j int) bool {
		if levels[i].Priority != levels[j].Priority {
			return levels[i].Priority > levels[j].Priority
		}
		return levels[i].ID < levels[j].ID
	})
	return levels, nil
}

func cloneLevel(l *access.Level) *access.Level {
	cp := *l
	cp.Permissions = slices.Clone(l.Permissions)
	return &cp
}
