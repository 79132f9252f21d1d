package port

import (
	"context"

	"github.com/planbeam/identity-service/internal/core/domain"
)

// SessionRepository persists the per-account bounded session set.
type SessionRepository interface {
	// Insert appends a session; entries beyond capacity are evicted oldest
	// first (by IssuedAt) and returned.
	Insert(ctx context.Context, session domain.Session, capacity int) ([]domain.Session, error)

	// GetByTokenID returns the session holding the refresh-token ID, or
	// repository.ErrNotFound.
	GetByTokenID(ctx context.Context, accountID, refreshTokenID string) (*domain.Session, error)

	// Rotate atomically removes the session holding oldTokenID and inserts
	// the replacement. Returns repository.ErrNotFound when oldTokenID is
	// absent, in which case nothing is inserted.
	Rotate(ctx context.Context, accountID, oldTokenID string, replacement domain.Session) error

	// Delete removes the session holding the refresh-token ID. Removal is
	// idempotent; the boolean reports whether an entry existed.
	Delete(ctx context.Context, accountID, refreshTokenID string) (bool, error)

	// DeleteAll clears the account's session set and reports how many
	// sessions were removed.
	DeleteAll(ctx context.Context, accountID string) (int, error)

	// ListByAccount returns the live sessions ordered oldest first.
	ListByAccount(ctx context.Context, accountID string) ([]domain.Session, error)
}
