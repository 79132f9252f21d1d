package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/planbeam/identity-service/internal/core/domain"
	"github.com/planbeam/identity-service/internal/core/port"
	"github.com/planbeam/identity-service/internal/infra/telemetry"
)

// ErrAccountLocked indicates credential verification is suspended until the
// lock expires.
var ErrAccountLocked = errors.New("account locked")

// LockoutGuard is the failed-attempt state machine layered on the account
// store. Lock expiry is evaluated lazily on the next access rather than by a
// background sweep; correctness only requires the check to happen before any
// credential comparison.
type LockoutGuard struct {
	accounts  port.AccountRepository
	events    port.EventPublisher
	metrics   *telemetry.AuthMetrics
	threshold int
	duration  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewLockoutGuard constructs a LockoutGuard.
func NewLockoutGuard(accounts port.AccountRepository, events port.EventPublisher, threshold int, duration time.Duration, logger *zap.Logger) *LockoutGuard {
	if threshold <= 0 {
		threshold = 5
	}
	if duration <= 0 {
		duration = 2 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LockoutGuard{
		accounts:  accounts,
		events:    events,
		threshold: threshold,
		duration:  duration,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock injects a custom clock (primarily for tests).
func (g *LockoutGuard) WithClock(now func() time.Time) *LockoutGuard {
	if now != nil {
		g.now = now
	}
	return g
}

// WithMetrics attaches auth outcome collectors.
func (g *LockoutGuard) WithMetrics(metrics *telemetry.AuthMetrics) *LockoutGuard {
	g.metrics = metrics
	return g
}

// Check evaluates the account's lock state before any credential comparison.
// An elapsed lock is cleared in place (the lazy expiry transition); a live
// lock yields ErrAccountLocked.
func (g *LockoutGuard) Check(ctx context.Context, account *domain.Account) error {
	now := g.now().UTC()

	if account.LockExpired(now) {
		if err := g.accounts.ResetLockout(ctx, account.ID); err != nil {
			return fmt.Errorf("clear expired lock: %w", err)
		}
		account.FailedAttempts = 0
		account.LockedUntil = nil
		return nil
	}

	if account.IsLocked(now) {
		return ErrAccountLocked
	}

	return nil
}

// RecordFailure applies the failure transition: a single atomic increment
// that locks the account when the post-increment count reaches the
// threshold. Returns the post-transition account state.
func (g *LockoutGuard) RecordFailure(ctx context.Context, account *domain.Account, sourceAddr string) (*domain.Account, error) {
	now := g.now().UTC()
	wasLocked := account.IsLocked(now)

	updated, err := g.accounts.RecordFailure(ctx, account.ID, g.threshold, g.duration, now)
	if err != nil {
		return nil, fmt.Errorf("record failed attempt: %w", err)
	}

	if !wasLocked && updated.IsLocked(now) {
		g.metrics.ObserveLockout()
		g.logger.Warn("account locked after repeated failures",
			zap.String("account_id", account.ID),
			zap.Timep("locked_until", updated.LockedUntil),
		)
		if g.events != nil {
			if err := g.events.PublishAccountLocked(ctx, domain.AccountLockedEvent{
				AccountID:   account.ID,
				LockedUntil: *updated.LockedUntil,
				SourceAddr:  sourceAddr,
				At:          now,
			}); err != nil {
				g.logger.Warn("publish account locked event", zap.Error(err))
			}
		}
	}

	return updated, nil
}

// RecordSuccess applies the success transition: the failed-attempt counter
// returns to zero.
func (g *LockoutGuard) RecordSuccess(ctx context.Context, accountID string) error {
	if err := g.accounts.ResetLockout(ctx, accountID); err != nil {
		return fmt.Errorf("reset lockout: %w", err)
	}
	return nil
}

// ForceUnlock is the administrative transition to Unlocked(0) regardless of
// the current state. Used by the password-reset and unlock-request flows.
func (g *LockoutGuard) ForceUnlock(ctx context.Context, accountID string) error {
	if err := g.accounts.ResetLockout(ctx, accountID); err != nil {
		return fmt.Errorf("force unlock: %w", err)
	}
	return nil
}
