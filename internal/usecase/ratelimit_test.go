package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/planbeam/identity-service/internal/repository/memory"
)

type failingCounterStore struct{}

func (failingCounterStore) Increment(context.Context, string, time.Duration) (int, time.Duration, error) {
	return 0, 0, errors.New("counter backend down")
}

func TestRateLimiter_AdmitWithinBudget(t *testing.T) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewRateLimitStore().WithClock(func() time.Time { return current })
	limiter := NewRateLimiter(store, zap.NewNop())

	policy := RateLimitPolicy{Name: "login", MaxAttempts: 3, Window: time.Minute}
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		decision, err := limiter.Admit(ctx, policy, "10.0.0.1")
		if err != nil {
			t.Fatalf("Admit %d returned error: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("attempt %d should be allowed", i)
		}
		if decision.Limit != 3 {
			t.Fatalf("expected limit 3, got %d", decision.Limit)
		}
		if decision.Remaining != 3-i {
			t.Fatalf("attempt %d: expected remaining %d, got %d", i, 3-i, decision.Remaining)
		}
	}
}

func TestRateLimiter_RejectionConsumesWindow(t *testing.T) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewRateLimitStore().WithClock(func() time.Time { return current })
	limiter := NewRateLimiter(store, zap.NewNop())

	policy := RateLimitPolicy{Name: "login", MaxAttempts: 2, Window: time.Minute}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := limiter.Admit(ctx, policy, "10.0.0.1"); err != nil {
			t.Fatalf("Admit returned error: %v", err)
		}
	}

	decision, err := limiter.Admit(ctx, policy, "10.0.0.1")
	if err != nil {
		t.Fatalf("Admit returned error: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("third attempt should be rejected")
	}
	if decision.Remaining != 0 {
		t.Fatalf("expected remaining 0, got %d", decision.Remaining)
	}
	if decision.RetryAfter <= 0 || decision.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry-after %v", decision.RetryAfter)
	}

	// The window reopens once it elapses, regardless of how many rejected
	// attempts landed inside it.
	current = current.Add(time.Minute + time.Second)
	decision, err = limiter.Admit(ctx, policy, "10.0.0.1")
	if err != nil {
		t.Fatalf("Admit returned error: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected fresh window to admit")
	}
	if decision.Remaining != 1 {
		t.Fatalf("expected remaining 1 in fresh window, got %d", decision.Remaining)
	}
}

func TestRateLimiter_SourcesAreIndependent(t *testing.T) {
	store := memory.NewRateLimitStore()
	limiter := NewRateLimiter(store, zap.NewNop())

	policy := RateLimitPolicy{Name: "register", MaxAttempts: 1, Window: time.Minute}
	ctx := context.Background()

	if decision, _ := limiter.Admit(ctx, policy, "10.0.0.1"); !decision.Allowed {
		t.Fatalf("first source should be admitted")
	}
	if decision, _ := limiter.Admit(ctx, policy, "10.0.0.1"); decision.Allowed {
		t.Fatalf("first source should now be over budget")
	}
	if decision, _ := limiter.Admit(ctx, policy, "10.0.0.2"); !decision.Allowed {
		t.Fatalf("second source must not share the first source's budget")
	}
}

func TestRateLimiter_PoliciesAreIndependent(t *testing.T) {
	store := memory.NewRateLimitStore()
	limiter := NewRateLimiter(store, zap.NewNop())
	ctx := context.Background()

	login := RateLimitPolicy{Name: "login", MaxAttempts: 1, Window: time.Minute}
	forgot := RateLimitPolicy{Name: "forgot", MaxAttempts: 1, Window: time.Minute}

	if decision, _ := limiter.Admit(ctx, login, "10.0.0.1"); !decision.Allowed {
		t.Fatalf("login should be admitted")
	}
	if decision, _ := limiter.Admit(ctx, forgot, "10.0.0.1"); !decision.Allowed {
		t.Fatalf("forgot must not share login's budget")
	}
}

func TestRateLimiter_StoreFailureSurfaces(t *testing.T) {
	limiter := NewRateLimiter(failingCounterStore{}, zap.NewNop())

	_, err := limiter.Admit(context.Background(), RateLimitPolicy{Name: "login", MaxAttempts: 5, Window: time.Minute}, "10.0.0.1")
	if err == nil {
		t.Fatalf("expected store failure to surface")
	}
}
