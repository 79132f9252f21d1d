package port

import (
	"context"
	"time"

	"github.com/planbeam/identity-service/internal/core/domain"
)

// AccountRepository owns durable Account state. Mutations touching the
// lockout counters must be applied atomically relative to concurrent
// requests for the same account; implementations use a single
// read-modify-write statement or equivalent.
type AccountRepository interface {
	// Create persists a new account. Returns repository.ErrDuplicate when the
	// normalized username or email already exists.
	Create(ctx context.Context, account domain.Account) error

	// GetByID retrieves an account by identifier.
	GetByID(ctx context.Context, id string) (*domain.Account, error)

	// GetByIdentifier retrieves an account matching the normalized username
	// or email.
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Account, error)

	// RecordFailure atomically increments the failed-attempt counter and,
	// when the post-increment count reaches threshold, sets the lock to
	// at+lockFor. Returns the post-mutation account state.
	RecordFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, at time.Time) (*domain.Account, error)

	// ResetLockout zeroes the failed-attempt counter and clears any lock.
	ResetLockout(ctx context.Context, id string) error

	// RecordLogin stamps a successful login and resets the lockout counters.
	RecordLogin(ctx context.Context, id string, at time.Time) error

	// UpdateSecret replaces the secret hash and bumps SecretChangedAt.
	UpdateSecret(ctx context.Context, id, secretHash string, at time.Time) error

	// SecretHistory returns up to limit prior secret hashes, newest first.
	SecretHistory(ctx context.Context, id string, limit int) ([]string, error)

	// AddSecretHistory pushes a prior hash into the history, evicting the
	// oldest entries beyond keep.
	AddSecretHistory(ctx context.Context, id, secretHash string, at time.Time, keep int) error

	// SetResetToken stores the single active reset token, superseding any
	// previous one.
	SetResetToken(ctx context.Context, id string, token domain.ResetToken) error

	// GetByResetDigest retrieves the account owning the reset token with the
	// given digest. Expiry is the caller's concern.
	GetByResetDigest(ctx context.Context, digest string) (*domain.Account, error)

	// ClearResetToken removes the active reset token, if any.
	ClearResetToken(ctx context.Context, id string) error

	// SetStatus flips the account's active/disabled flag.
	SetStatus(ctx context.Context, id string, status domain.AccountStatus) error

	// AppendActivity records one activity entry, evicting the oldest entries
	// beyond keep.
	AppendActivity(ctx context.Context, id string, entry domain.ActivityEntry, keep int) error

	// ListActivity returns up to limit activity entries, newest first.
	ListActivity(ctx context.Context, id string, limit int) ([]domain.ActivityEntry, error)
}
