package port

import (
	"context"
	"time"
)

// RateLimitStore is the injected counter capability behind the pre-auth rate
// limiter: an atomic increment with time-windowed reset, shared across
// concurrent requests. Callers must not depend on process-locality; the
// in-memory implementation is for single-instance deployments only.
type RateLimitStore interface {
	// Increment records one attempt against key. A bucket outside its window
	// is reset to a fresh window before the increment, never
	// incremented-and-capped. Returns the post-increment count and the time
	// remaining until the window resets.
	Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error)
}
