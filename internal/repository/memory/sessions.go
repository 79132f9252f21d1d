package memory

import (
	"context"
	"sync"

	"github.com/planbeam/identity-service/internal/core/domain"
	"github.com/planbeam/identity-service/internal/core/port"
	"github.com/planbeam/identity-service/internal/repository"
)

// SessionStore is an in-process SessionRepository backed by the bounded
// domain.SessionSet, one set per account.
type SessionStore struct {
	mu       sync.Mutex
	capacity int
	sets     map[string]*domain.SessionSet
}

// NewSessionStore constructs a session store enforcing the given per-account
// capacity.
func NewSessionStore(capacity int) *SessionStore {
	if capacity <= 0 {
		capacity = 5
	}
	return &SessionStore{
		capacity: capacity,
		sets:     make(map[string]*domain.SessionSet),
	}
}

func (s *SessionStore) set(accountID string) *domain.SessionSet {
	set, ok := s.sets[accountID]
	if !ok {
		set = domain.NewSessionSet(s.capacity)
		s.sets[accountID] = set
	}
	return set
}

// Insert appends a session, returning entries evicted by the capacity bound.
func (s *SessionStore) Insert(_ context.Context, session domain.Session, _ int) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(session.AccountID).Add(session), nil
}

// GetByTokenID returns the session holding the refresh-token ID.
func (s *SessionStore) GetByTokenID(_ context.Context, accountID, refreshTokenID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.set(accountID).Get(refreshTokenID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sess, nil
}

// Rotate atomically swaps oldTokenID's session for the replacement.
func (s *SessionStore) Rotate(_ context.Context, accountID, oldTokenID string, replacement domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.set(accountID)
	if !set.Remove(oldTokenID) {
		return repository.ErrNotFound
	}
	set.Add(replacement)
	return nil
}

// Delete removes the session holding the refresh-token ID, idempotently.
func (s *SessionStore) Delete(_ context.Context, accountID, refreshTokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(accountID).Remove(refreshTokenID), nil
}

// DeleteAll clears the account's session set.
func (s *SessionStore) DeleteAll(_ context.Context, accountID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(accountID).Clear(), nil
}

// ListByAccount returns the live sessions ordered oldest first.
func (s *SessionStore) ListByAccount(_ context.Context, accountID string) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(accountID).Entries(), nil
}

var _ port.SessionRepository = (*SessionStore)(nil)
