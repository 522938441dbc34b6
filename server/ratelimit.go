package server

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultMaxLimiters = 10000

type limiterEntry struct {
	key        string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per key. The least recently used bucket is evicted
// once maxEntries keys are tracked.
type RateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*list.Element
	lru        *list.List
	rate       rate.Limit
	burst      int
	maxEntries int
	nowFunc    func() time.Time
}

type RateLimiterOption func(*RateLimiter)

func WithMaxEntries(n int) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.maxEntries = n
	}
}

// WithLimiterNowFunc sets the clock used for refills and idle tracking (primarily for testing)
func WithLimiterNowFunc(now func() time.Time) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.nowFunc = now
	}
}

func NewRateLimiter(requestsPerSecond float64, burst int, options ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		limiters:   make(map[string]*list.Element),
		lru:        list.New(),
		rate:       rate.Limit(requestsPerSecond),
		burst:      burst,
		maxEntries: defaultMaxLimiters,
		nowFunc:    time.Now,
	}
	for _, opt := range options {
		opt(rl)
	}
	return rl
}

// Allow takes one token from key's bucket. When the bucket is empty it returns false and
// how long until the next token.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	now := rl.nowFunc()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	var entry *limiterEntry
	if elem, ok := rl.limiters[key]; ok {
		rl.lru.MoveToFront(elem)
		entry = elem.Value.(*limiterEntry)
	} else {
		if rl.maxEntries > 0 && len(rl.limiters) >= rl.maxEntries {
			rl.evictOldest()
		}
		entry = &limiterEntry{key: key, limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = rl.lru.PushFront(entry)
	}
	entry.lastAccess = now

	r := entry.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Must be called with mu held.
func (rl *RateLimiter) evictOldest() {
	elem := rl.lru.Back()
	if elem == nil {
		return
	}
	delete(rl.limiters, elem.Value.(*limiterEntry).key)
	rl.lru.Remove(elem)
}

// Cleanup drops buckets not used for maxIdle and returns how many were dropped.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	now := rl.nowFunc()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for elem := rl.lru.Back(); elem != nil; {
		entry := elem.Value.(*limiterEntry)
		if now.Sub(entry.lastAccess) <= maxIdle {
			break // everything in front was used more recently
		}
		prev := elem.Prev()
		delete(rl.limiters, entry.key)
		rl.lru.Remove(elem)
		removed++
		elem = prev
	}
	return removed
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
