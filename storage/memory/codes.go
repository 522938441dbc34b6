package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/oauth2"
)

var _ oauth2.CodeRepo = (*CodeRepo)(nil)

type CodeRepo struct {
	codes map[string]*oauth2.AuthorizationCode
	lock  sync.Mutex
}

func NewCodeRepo() *CodeRepo {
	return &CodeRepo{
		codes: make(map[string]*oauth2.AuthorizationCode),
	}
}

func (r *CodeRepo) Insert(_ context.Context, code *oauth2.AuthorizationCode) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.codes[code.Code]; ok {
		return autherrors.Wrapf(autherrors.ErrConflict, "authorization code")
	}
	r.codes[code.Code] = cloneCode(code)
	return nil
}

func (r *CodeRepo) Get(_ context.Context, code string) (*oauth2.AuthorizationCode, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	c, ok := r.codes[code]
	if !ok {
		return nil, autherrors.Wrapf(autherrors.ErrNotFound, "authorization code")
	}
	return cloneCode(c), nil
}

// MarkUsed checks and sets under one lock.
func (r *CodeRepo) MarkUsed(_ context.Context, code string, now time.Time) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	c, ok := r.codes[code]
	if !ok || !c.RedeemableAt(now) {
		return false, nil
	}
	c.Used = true
	return true, nil
}

func (r *CodeRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	n := 0
	for k, c := range r.codes {
		if !now.Before(c.ExpiresAt) {
			delete(r.codes, k)
			n++
		}
	}
	return n, nil
}

func cloneCode(c *oauth2.AuthorizationCode) *oauth2.AuthorizationCode {
	cp := *c
	cp.Scopes = slices.Clone(c.Scopes)
	return &cp
}
