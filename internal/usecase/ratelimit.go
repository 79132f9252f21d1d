package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/planbeam/identity-service/internal/core/port"
	"github.com/planbeam/identity-service/internal/infra/telemetry"
)

// ErrRateLimited indicates the caller exceeded the attempt budget for a
// guarded endpoint within the current window.
var ErrRateLimited = errors.New("rate limited")

// RateLimitPolicy names a guarded endpoint and its fixed-window budget.
type RateLimitPolicy struct {
	Name        string
	MaxAttempts int
	Window      time.Duration
}

// RateLimitDecision reports the outcome of an admission check along with the
// values surfaced to clients in response headers.
type RateLimitDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter admits or rejects requests per source address using a counter
// store with window-scoped expiry. The counter is incremented before the
// comparison, so rejected attempts still consume the window.
type RateLimiter struct {
	store   port.RateLimitStore
	metrics *telemetry.AuthMetrics
	logger  *zap.Logger
}

// NewRateLimiter constructs a RateLimiter over the given counter store.
func NewRateLimiter(store port.RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{store: store, logger: logger}
}

// WithMetrics attaches rejection counters.
func (l *RateLimiter) WithMetrics(metrics *telemetry.AuthMetrics) *RateLimiter {
	l.metrics = metrics
	return l
}

// Admit increments the counter for the (policy, source) pair and decides
// whether the request proceeds. A store failure is returned to the caller,
// which may choose to fail open.
func (l *RateLimiter) Admit(ctx context.Context, policy RateLimitPolicy, sourceAddr string) (RateLimitDecision, error) {
	key := policy.Name + ":" + sourceAddr

	count, resetIn, err := l.store.Increment(ctx, key, policy.Window)
	if err != nil {
		return RateLimitDecision{}, fmt.Errorf("rate limit counter: %w", err)
	}

	decision := RateLimitDecision{
		Allowed:   count <= policy.MaxAttempts,
		Limit:     policy.MaxAttempts,
		Remaining: policy.MaxAttempts - count,
	}
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}
	if !decision.Allowed {
		decision.RetryAfter = resetIn
		l.metrics.ObserveRateLimited(policy.Name)
		l.logger.Debug("request rate limited",
			zap.String("rule", policy.Name),
			zap.Int("count", count),
			zap.Duration("retry_after", resetIn),
		)
	}

	return decision, nil
}
