package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/planbeam/identity-service/internal/core/domain"
	"github.com/planbeam/identity-service/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Used when no
// brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, accountID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.String("account_id", accountID),
		zap.Time("occurred_at", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishAccountRegistered logs account.registered events.
func (p *StubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	p.logEvent(topicAccountRegistered, event.AccountID, event.RegisteredAt, map[string]any{
		"username": event.Username,
	})
	return nil
}

// PublishLoginFailed logs login.failed events.
func (p *StubPublisher) PublishLoginFailed(_ context.Context, event domain.LoginFailedEvent) error {
	p.logEvent(topicLoginFailed, event.AccountID, event.At, map[string]any{
		"failed_attempts": event.FailedAttempts,
	})
	return nil
}

// PublishAccountLocked logs account.locked events.
func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	p.logEvent(topicAccountLocked, event.AccountID, event.At, map[string]any{
		"locked_until": event.LockedUntil,
	})
	return nil
}

// PublishPasswordChanged logs password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logEvent(topicPasswordChanged, event.AccountID, event.ChangedAt, map[string]any{
		"via_reset":        event.ViaReset,
		"sessions_revoked": event.SessionsRevoked,
	})
	return nil
}

// PublishSessionRevoked logs session.revoked events.
func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	p.logEvent(topicSessionRevoked, event.AccountID, event.RevokedAt, map[string]any{
		"refresh_token_id": event.RefreshTokenID,
		"reason":           event.Reason,
	})
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
