// Package cache provides an in-process TTL cache whose expirations are kept in a
// min-heap, so a sweep only touches entries that have actually expired.
package cache

import (
	"container/heap"
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
	index     int
}

// Cache is safe for concurrent use. An entry is live while now < expiresAt.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[K, V]
	expiry  expiryHeap[K, V]
	nowFunc func() time.Time
}

type Option[K comparable, V any] func(*Cache[K, V])

func WithNowFunc[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.nowFunc = now
	}
}

func New[K comparable, V any](options ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		entries: make(map[K]*entry[K, V]),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Get returns the live value for key. An expired entry is evicted on the spot.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.nowFunc().Before(e.expiresAt) {
		c.remove(e)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set inserts or replaces the value for key.
func (c *Cache[K, V]) Set(key K, value V, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		heap.Fix(&c.expiry, e.index)
		return
	}
	e := &entry[K, V]{key: key, value: value, expiresAt: expiresAt}
	heap.Push(&c.expiry, e)
	c.entries[key] = e
}

// Replace updates the value for key only if the key is present and live.
func (c *Cache[K, V]) Replace(key K, fn func(V) V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !c.nowFunc().Before(e.expiresAt) {
		return false
	}
	e.value = fn(e.value)
	return true
}

// Delete removes key and reports whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	return c.DeleteIf(key, func(V) bool { return true })
}

// DeleteIf removes key only if pred holds for the value currently stored, evaluated
// under the lock.
func (c *Cache[K, V]) DeleteIf(key K, pred func(V) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !pred(e.value) {
		return false
	}
	c.remove(e)
	return true
}

// DeleteFunc removes every entry whose value matches pred and returns how many went.
func (c *Cache[K, V]) DeleteFunc(pred func(V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, e := range c.entries {
		if pred(e.value) {
			c.remove(e)
			removed++
		}
	}
	return removed
}

// Sweep evicts every expired entry. Expiry is read at pop time, so an entry refreshed
// by a concurrent Set is kept.
func (c *Cache[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	removed := 0
	for c.expiry.Len() > 0 {
		head := c.expiry[0]
		if now.Before(head.expiresAt) {
			break
		}
		c.remove(head)
		removed++
	}
	return removed
}

func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[K, V]) remove(e *entry[K, V]) {
	heap.Remove(&c.expiry, e.index)
	delete(c.entries, e.key)
}

type expiryHeap[K comparable, V any] []*entry[K, V]

func (h expiryHeap[K, V]) Len() int { return len(h) }

func (h expiryHeap[K, V]) Less(i, j int) bool { return h[i].expiresAt.Before(h[j].expiresAt) }

func (h expiryHeap[K, V]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *expiryHeap[K, V]) Push(x any) {
	e := x.(*entry[K, V])
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *expiryHeap[K, V]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
