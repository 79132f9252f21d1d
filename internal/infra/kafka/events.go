package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planbeam/identity-service/internal/core/domain"
	"github.com/planbeam/identity-service/internal/core/port"
)

const schemaVersion = "1.0"

// Event topics.
const (
	topicAccountRegistered = "account.registered"
	topicLoginFailed       = "login.failed"
	topicAccountLocked     = "account.locked"
	topicPasswordChanged   = "password.changed"
	topicSessionRevoked    = "session.revoked"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	service  string
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, service string, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{producer: producer, service: service, logger: logger}
}

type eventEnvelope struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	Service       string    `json:"service"`
	AccountID     string    `json:"account_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	Payload       any       `json:"payload"`
}

func (p *EventPublisher) publish(eventType, accountID string, occurredAt time.Time, payload any) error {
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	envelope := eventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		SchemaVersion: schemaVersion,
		Service:       p.service,
		AccountID:     accountID,
		OccurredAt:    occurredAt.UTC(),
		Payload:       payload,
	}

	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", eventType, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(accountID),
		Value: sarama.ByteEncoder(value),
	}

	p.producer.Input() <- msg
	return nil
}

// PublishAccountRegistered emits identity.account.registered.
func (p *EventPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	return p.publish(topicAccountRegistered, event.AccountID, event.RegisteredAt, map[string]any{
		"username":      event.Username,
		"email":         event.Email,
		"registered_at": event.RegisteredAt,
		"source_addr":   event.SourceAddr,
		"metadata":      event.Metadata,
	})
}

// PublishLoginFailed emits identity.login.failed.
func (p *EventPublisher) PublishLoginFailed(_ context.Context, event domain.LoginFailedEvent) error {
	return p.publish(topicLoginFailed, event.AccountID, event.At, map[string]any{
		"identifier":      event.Identifier,
		"failed_attempts": event.FailedAttempts,
		"source_addr":     event.SourceAddr,
	})
}

// PublishAccountLocked emits identity.account.locked.
func (p *EventPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	return p.publish(topicAccountLocked, event.AccountID, event.At, map[string]any{
		"locked_until": event.LockedUntil,
		"source_addr":  event.SourceAddr,
	})
}

// PublishPasswordChanged emits identity.password.changed.
func (p *EventPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	return p.publish(topicPasswordChanged, event.AccountID, event.ChangedAt, map[string]any{
		"changed_at":       event.ChangedAt,
		"via_reset":        event.ViaReset,
		"sessions_revoked": event.SessionsRevoked,
	})
}

// PublishSessionRevoked emits identity.session.revoked.
func (p *EventPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	return p.publish(topicSessionRevoked, event.AccountID, event.RevokedAt, map[string]any{
		"refresh_token_id": event.RefreshTokenID,
		"reason":           event.Reason,
		"revoked_at":       event.RevokedAt,
	})
}

var _ port.EventPublisher = (*EventPublisher)(nil)
