package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/token/refresh"
)

var _ refresh.Repo = (*RefreshRepo)(nil)

type refreshEntry struct {
	record refresh.Record
	seq    uint64
}

type RefreshRepo struct {
	tokens map[string]*refreshEntry
	seq    uint64
	lock   sync.RWMutex
}

func NewRefreshRepo() *RefreshRepo {
	return &RefreshRepo{
		tokens: make(map[string]*refreshEntry),
	}
}

func (r *RefreshRepo) Insert(_ context.Context, record *refresh.Record) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.tokens[record.Token]; ok {
		return autherrors.Wrapf(autherrors.ErrConflict, "refresh token")
	}
	r.seq++
	r.tokens[record.Token] = &refreshEntry{record: cloneRefresh(record), seq: r.seq}
	return nil
}

func (r *RefreshRepo) Get(_ context.Context, token string) (*refresh.Record, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	e, ok := r.tokens[token]
	if !ok {
		return nil, autherrors.Wrapf(autherrors.ErrNotFound, "refresh token")
	}
	rec := cloneRefresh(&e.record)
	return &rec, nil
}

func (r *RefreshRepo) ListLive(_ context.Context, userID string, now time.Time) ([]*refresh.Record, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	var live []*refreshEntry
	for _, e := range r.tokens {
		if e.record.UserID == userID && e.record.Live(now) {
			live = append(live, e)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		if !live[i].record.CreatedAt.Equal(live[j].record.CreatedAt) {
			return live[i].record.CreatedAt.Before(live[j].record.CreatedAt)
		}
		return live[i].seq < live[j].seq
	})

	out := make([]*refresh.Record, 0, len(live))
	for _, e := range live {
		rec := cloneRefresh(&e.record)
		out = append(out, &rec)
	}
	return out, nil
}

func (r *RefreshRepo) Touch(_ context.Context, token string, usedAt time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	e, ok := r.tokens[token]
	if !ok {
		return autherrors.Wrapf(autherrors.ErrNotFound, "refresh token")
	}
	e.record.LastUsedAt = &usedAt
	return nil
}

func (r *RefreshRepo) Revoke(_ context.Context, token string, at time.Time) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	e, ok := r.tokens[token]
	if !ok || e.record.Revoked {
		return false, nil
	}
	e.record.Revoked = true
	e.record.RevokedAt = &at
	return true, nil
}

func (r *RefreshRepo) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	n := 0
	for _, e := range r.tokens {
		if e.record.UserID == userID && !e.record.Revoked {
			e.record.Revoked = true
			e.record.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (r *RefreshRepo) DeleteStale(_ context.Context, now, revokedBefore time.Time) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	n := 0
	for k, e := range r.tokens {
		expired := !now.Before(e.record.ExpiresAt)
		oldRevoked := e.record.Revoked && e.record.RevokedAt != nil && e.record.RevokedAt.Before(revokedBefore)
		if expired || oldRevoked {
			delete(r.tokens, k)
			n++
		}
	}
	return n, nil
}

func cloneRefresh(rec *refresh.Record) refresh.Record {
	cp := *rec
	cp.Metadata = maps.Clone(rec.Metadata)
	return cp
}
