package domain

import "time"

// Session is a live refresh-token entry permitting renewal of access tokens
// without re-authentication. A refresh token whose ID is absent from the
// account's session set is treated as revoked even if cryptographically valid.
type Session struct {
	ID             string
	AccountID      string
	RefreshTokenID string
	IssuedAt       time.Time
	ExpiresAt      time.Time
	SourceAddr     string
	UserAgent      string
}

// IsExpired reports whether the underlying refresh token has elapsed its
// validity window at the supplied moment.
func (s Session) IsExpired(at time.Time) bool {
	return !s.ExpiresAt.After(at)
}

// SessionSet is a bounded, ordered collection of sessions with FIFO eviction.
// The capacity invariant lives in the type rather than as a trim afterthought.
type SessionSet struct {
	capacity int
	entries  []Session
}

// NewSessionSet constructs a session set holding at most capacity entries.
func NewSessionSet(capacity int) *SessionSet {
	if capacity <= 0 {
		capacity = 1
	}
	return &SessionSet{capacity: capacity}
}

// Add appends a session, evicting the oldest entries by IssuedAt when the
// capacity would be exceeded. Evicted sessions are returned so callers can
// surface them (their refresh tokens become unusable).
func (s *SessionSet) Add(sess Session) []Session {
	idx := len(s.entries)
	for i, existing := range s.entries {
		if sess.IssuedAt.Before(existing.IssuedAt) {
			idx = i
			break
		}
	}
	s.entries = append(s.entries, Session{})
	copy(s.entries[idx+1:], s.entries[idx:])
	s.entries[idx] = sess

	if len(s.entries) <= s.capacity {
		return nil
	}

	overflow := len(s.entries) - s.capacity
	evicted := make([]Session, overflow)
	copy(evicted, s.entries[:overflow])
	s.entries = append(s.entries[:0], s.entries[overflow:]...)
	return evicted
}

// Remove deletes the session holding the given refresh-token ID.
// Returns false when no such session exists.
func (s *SessionSet) Remove(refreshTokenID string) bool {
	for i, sess := range s.entries {
		if sess.RefreshTokenID == refreshTokenID {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the session holding the given refresh-token ID.
func (s *SessionSet) Get(refreshTokenID string) (Session, bool) {
	for _, sess := range s.entries {
		if sess.RefreshTokenID == refreshTokenID {
			return sess, true
		}
	}
	return Session{}, false
}

// Clear removes every session and reports how many were dropped.
func (s *SessionSet) Clear() int {
	n := len(s.entries)
	s.entries = s.entries[:0]
	return n
}

// Len returns the number of live sessions.
func (s *SessionSet) Len() int {
	return len(s.entries)
}

// Entries returns the sessions ordered oldest first.
func (s *SessionSet) Entries() []Session {
	out := make([]Session, len(s.entries))
	copy(out, s.entries)
	return out
}
