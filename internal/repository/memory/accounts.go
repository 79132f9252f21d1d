package memory

import (
	"context"
	"sync"
	"time"

	"github.com/planbeam/identity-service/internal/core/domain"
	"github.com/planbeam/identity-service/internal/core/port"
	"github.com/planbeam/identity-service/internal/repository"
)

type accountRecord struct {
	account  domain.Account
	history  []string
	activity *domain.ActivityLog
}

// AccountStore is an in-process AccountRepository for single-binary
// deployments and tests. Per-account mutations are serialized by the store
// mutex, giving the same atomic increment-and-lock discipline the durable
// backend provides with row-level statements.
type AccountStore struct {
	mu            sync.Mutex
	byID          map[string]*accountRecord
	byIdentifier  map[string]string
	activityDepth int
}

// NewAccountStore constructs an empty in-memory account store.
func NewAccountStore(activityDepth int) *AccountStore {
	if activityDepth <= 0 {
		activityDepth = 100
	}
	return &AccountStore{
		byID:          make(map[string]*accountRecord),
		byIdentifier:  make(map[string]string),
		activityDepth: activityDepth,
	}
}

// Create persists a new account, enforcing case-insensitive uniqueness of
// username and email.
func (s *AccountStore) Create(_ context.Context, account domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := domain.NormalizeIdentifier(account.Username)
	email := domain.NormalizeIdentifier(account.Email)

	if _, exists := s.byIdentifier[username]; exists {
		return repository.ErrDuplicate
	}
	if _, exists := s.byIdentifier[email]; exists {
		return repository.ErrDuplicate
	}

	s.byID[account.ID] = &accountRecord{
		account:  account,
		activity: domain.NewActivityLog(s.activityDepth),
	}
	s.byIdentifier[username] = account.ID
	s.byIdentifier[email] = account.ID

	return nil
}

// GetByID retrieves an account by identifier.
func (s *AccountStore) GetByID(_ context.Context, id string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	snapshot := cloneAccount(rec.account)
	return &snapshot, nil
}

// GetByIdentifier retrieves an account by normalized username or email.
func (s *AccountStore) GetByIdentifier(_ context.Context, identifier string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byIdentifier[domain.NormalizeIdentifier(identifier)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	rec := s.byID[id]
	snapshot := cloneAccount(rec.account)
	return &snapshot, nil
}

// RecordFailure atomically increments the failed-attempt counter and locks
// the account when the threshold is reached.
func (s *AccountStore) RecordFailure(_ context.Context, id string, threshold int, lockFor time.Duration, at time.Time) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	rec.account.FailedAttempts++
	if rec.account.FailedAttempts >= threshold {
		until := at.Add(lockFor)
		rec.account.LockedUntil = &until
	}

	snapshot := cloneAccount(rec.account)
	return &snapshot, nil
}

// ResetLockout zeroes the failed-attempt counter and clears any lock.
func (s *AccountStore) ResetLockout(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	rec.account.FailedAttempts = 0
	rec.account.LockedUntil = nil
	return nil
}

// RecordLogin stamps a successful login and resets the lockout counters.
func (s *AccountStore) RecordLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	loginAt := at
	rec.account.LastLogin = &loginAt
	rec.account.FailedAttempts = 0
	rec.account.LockedUntil = nil
	return nil
}

// UpdateSecret replaces the secret hash and bumps SecretChangedAt.
func (s *AccountStore) UpdateSecret(_ context.Context, id, secretHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	rec.account.SecretHash = secretHash
	rec.account.SecretChangedAt = at
	return nil
}

// SecretHistory returns up to limit prior secret hashes, newest first.
func (s *AccountStore) SecretHistory(_ context.Context, id string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	out := make([]string, 0, len(rec.history))
	for i := len(rec.history) - 1; i >= 0; i-- {
		out = append(out, rec.history[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// AddSecretHistory pushes a prior hash, evicting the oldest beyond keep.
func (s *AccountStore) AddSecretHistory(_ context.Context, id, secretHash string, _ time.Time, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}

	rec.history = append(rec.history, secretHash)
	if keep > 0 && len(rec.history) > keep {
		rec.history = rec.history[len(rec.history)-keep:]
	}
	return nil
}

// SetResetToken stores the single active reset token, superseding any
// previous one.
func (s *AccountStore) SetResetToken(_ context.Context, id string, token domain.ResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	rec.account.ResetToken = &token
	return nil
}

// GetByResetDigest retrieves the account owning the reset token digest.
func (s *AccountStore) GetByResetDigest(_ context.Context, digest string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.byID {
		if rec.account.ResetToken != nil && rec.account.ResetToken.DigestHash == digest {
			snapshot := cloneAccount(rec.account)
			return &snapshot, nil
		}
	}
	return nil, repository.ErrNotFound
}

// ClearResetToken removes the active reset token, if any.
func (s *AccountStore) ClearResetToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	rec.account.ResetToken = nil
	return nil
}

// SetStatus flips the account's active/disabled flag.
func (s *AccountStore) SetStatus(_ context.Context, id string, status domain.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	rec.account.Status = status
	return nil
}

// AppendActivity records one activity entry; the ring evicts beyond keep.
func (s *AccountStore) AppendActivity(_ context.Context, id string, entry domain.ActivityEntry, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	rec.activity.Append(entry)
	return nil
}

// ListActivity returns up to limit activity entries, newest first.
func (s *AccountStore) ListActivity(_ context.Context, id string, limit int) ([]domain.ActivityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	entries := rec.activity.Entries()
	out := make([]domain.ActivityEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func cloneAccount(a domain.Account) domain.Account {
	out := a
	if a.LockedUntil != nil {
		v := *a.LockedUntil
		out.LockedUntil = &v
	}
	if a.LastLogin != nil {
		v := *a.LastLogin
		out.LastLogin = &v
	}
	if a.ResetToken != nil {
		v := *a.ResetToken
		out.ResetToken = &v
	}
	return out
}

var _ port.AccountRepository = (*AccountStore)(nil)
