package memory

import (
	"context"
	"sync"
	"time"

	"github.com/planbeam/identity-service/internal/core/port"
)

type bucket struct {
	attempts    int
	windowStart time.Time
	window      time.Duration
}

// RateLimitStore is a process-local fixed-window counter keyed by source
// address. Buckets outside their window are reset, not incremented-and-capped.
// Stale buckets are garbage-collected opportunistically on access.
type RateLimitStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
	lastGC  time.Time
}

const gcInterval = 5 * time.Minute

// NewRateLimitStore constructs an empty in-memory rate limit store.
func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// WithClock injects a custom clock (primarily for tests).
func (s *RateLimitStore) WithClock(now func() time.Time) *RateLimitStore {
	if now != nil {
		s.now = now
	}
	return s
}

// Increment records one attempt against key within the fixed window.
func (s *RateLimitStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.maybeGC(now)

	b, ok := s.buckets[key]
	if !ok || now.Sub(b.windowStart) >= window {
		b = &bucket{windowStart: now, window: window}
		s.buckets[key] = b
	}

	b.attempts++
	resetIn := b.windowStart.Add(window).Sub(now)
	if resetIn < 0 {
		resetIn = 0
	}

	return b.attempts, resetIn, nil
}

// maybeGC drops buckets whose window elapsed. Caller holds the mutex.
func (s *RateLimitStore) maybeGC(now time.Time) {
	if now.Sub(s.lastGC) < gcInterval {
		return
	}
	s.lastGC = now
	for key, b := range s.buckets {
		if now.Sub(b.windowStart) >= b.window {
			delete(s.buckets, key)
		}
	}
}

var _ port.RateLimitStore = (*RateLimitStore)(nil)
