package port

import (
	"context"

	"github.com/planbeam/identity-service/internal/core/domain"
)

// EventPublisher emits security lifecycle events for downstream consumers
// (audit pipeline, anomaly detection). Publishing failures must never fail
// the originating request.
type EventPublisher interface {
	PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error
	PublishLoginFailed(ctx context.Context, event domain.LoginFailedEvent) error
	PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
}
