package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/planbeam/identity-service/internal/core/domain"
	"github.com/planbeam/identity-service/internal/core/port"
	"github.com/planbeam/identity-service/internal/infra/security"
	"github.com/planbeam/identity-service/internal/infra/telemetry"
	"github.com/planbeam/identity-service/internal/repository"
)

// ErrSessionNotFound indicates the referenced refresh token has no live
// session, typically because it was already rotated or revoked.
var ErrSessionNotFound = errors.New("session not found")

// Session revocation reasons recorded on the session.revoked event stream.
const (
	RevokeReasonLogout         = "logout"
	RevokeReasonLogoutAll      = "logout_all"
	RevokeReasonCapacity       = "capacity"
	RevokeReasonPasswordChange = "password_change"
	RevokeReasonPasswordReset  = "password_reset"
)

// SessionService manages the concurrent-session set per account: session
// registration with capacity eviction, refresh rotation, and revocation.
type SessionService struct {
	sessions port.SessionRepository
	events   port.EventPublisher
	metrics  *telemetry.AuthMetrics
	capacity int
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionService constructs a SessionService with the given concurrent
// session capacity.
func NewSessionService(sessions port.SessionRepository, events port.EventPublisher, capacity int, logger *zap.Logger) *SessionService {
	if capacity <= 0 {
		capacity = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions: sessions,
		events:   events,
		capacity: capacity,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock injects a custom clock (primarily for tests).
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithMetrics attaches eviction counters.
func (s *SessionService) WithMetrics(metrics *telemetry.AuthMetrics) *SessionService {
	s.metrics = metrics
	return s
}

// Register records a freshly issued refresh token as a live session. When
// the account is at capacity the oldest session is evicted in the same
// operation.
func (s *SessionService) Register(ctx context.Context, claims *security.Claims, meta RequestMeta) error {
	session := sessionFromClaims(claims, meta)

	evicted, err := s.sessions.Insert(ctx, session, s.capacity)
	if err != nil {
		return fmt.Errorf("register session: %w", err)
	}

	for _, old := range evicted {
		s.metrics.ObserveSessionEvicted()
		s.logger.Info("session evicted at capacity",
			zap.String("account_id", old.AccountID),
			zap.String("session_id", old.ID),
		)
		s.publishRevoked(ctx, old, RevokeReasonCapacity)
	}

	return nil
}

// Rotate atomically replaces the session keyed by oldTokenID with one for
// the replacement claims. The old token is consumed exactly once; a second
// rotation attempt against the same token yields ErrSessionNotFound.
func (s *SessionService) Rotate(ctx context.Context, accountID, oldTokenID string, replacement *security.Claims, meta RequestMeta) error {
	session := sessionFromClaims(replacement, meta)

	err := s.sessions.Rotate(ctx, accountID, oldTokenID, session)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("rotate session: %w", err)
	}

	return nil
}

// Revoke removes the session keyed by the given refresh token ID. Revoking
// an absent session is not an error.
func (s *SessionService) Revoke(ctx context.Context, accountID, tokenID, reason string) error {
	removed, err := s.sessions.Delete(ctx, accountID, tokenID)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if removed {
		s.publishRevoked(ctx, domain.Session{AccountID: accountID, RefreshTokenID: tokenID}, reason)
	}
	return nil
}

// RevokeAll removes every live session for the account and returns how many
// were removed.
func (s *SessionService) RevokeAll(ctx context.Context, accountID, reason string) (int, error) {
	removed, err := s.sessions.DeleteAll(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("revoke all sessions: %w", err)
	}
	if removed > 0 {
		s.publishRevoked(ctx, domain.Session{AccountID: accountID}, reason)
	}
	return removed, nil
}

// RevokeAllExcept removes every live session for the account besides the one
// keyed by keepTokenID. Used by the password-change flow so the caller's own
// session survives.
func (s *SessionService) RevokeAllExcept(ctx context.Context, accountID, keepTokenID, reason string) (int, error) {
	sessions, err := s.sessions.ListByAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	removed := 0
	for _, session := range sessions {
		if session.RefreshTokenID == keepTokenID {
			continue
		}
		ok, err := s.sessions.Delete(ctx, accountID, session.RefreshTokenID)
		if err != nil {
			return removed, fmt.Errorf("revoke session: %w", err)
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		s.publishRevoked(ctx, domain.Session{AccountID: accountID}, reason)
	}
	return removed, nil
}

// ListActive returns the account's unexpired sessions, oldest first.
func (s *SessionService) ListActive(ctx context.Context, accountID string) ([]domain.Session, error) {
	sessions, err := s.sessions.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	now := s.now().UTC()
	active := sessions[:0]
	for _, session := range sessions {
		if session.ExpiresAt.After(now) {
			active = append(active, session)
		}
	}
	return active, nil
}

func (s *SessionService) publishRevoked(ctx context.Context, session domain.Session, reason string) {
	if s.events == nil {
		return
	}
	err := s.events.PublishSessionRevoked(ctx, domain.SessionRevokedEvent{
		AccountID:      session.AccountID,
		RefreshTokenID: session.RefreshTokenID,
		Reason:         reason,
		RevokedAt:      s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("publish session revoked event", zap.Error(err))
	}
}

func sessionFromClaims(claims *security.Claims, meta RequestMeta) domain.Session {
	return domain.Session{
		ID:             claims.ID,
		AccountID:      claims.AccountID,
		RefreshTokenID: claims.ID,
		IssuedAt:       claims.IssuedAt.Time.UTC(),
		ExpiresAt:      claims.ExpiresAt.Time.UTC(),
		SourceAddr:     meta.SourceAddr,
		UserAgent:      meta.UserAgent,
	}
}
