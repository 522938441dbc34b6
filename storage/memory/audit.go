package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/ggrighi15/fusione-dev-sub001/audit"
)

var _ audit.Repo = (*AuditRepo)(nil)

// AuditRepo keeps entries in append order.
type AuditRepo struct {
	entries []*audit.Entry
	lock    sync.RWMutex
}

func NewAuditRepo() *AuditRepo {
	return &AuditRepo{}
}

func (r *AuditRepo) Append(_ context.Context, entry *audit.Entry) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.entries = append(r.entries, cloneEntry(entry))
	return nil
}

// Query walks backwards so results come out newest first. Entries are appended with a
// non-decreasing clock, which keeps append order and CreatedAt order the same.
func (r *AuditRepo) Query(_ context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	var out []*audit.Entry
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if !filter.Matches(e) {
			continue
		}
		out = append(out, cloneEntry(e))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func cloneEntry(e *audit.Entry) *audit.Entry {
	cp := *e
	cp.Metadata = maps.Clone(e.Metadata)
	if e.Location != nil {
		loc := *e.Location
		cp.Location = &loc
	}
	return &cp
}
