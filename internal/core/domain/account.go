package domain

import (
	"strings"
	"time"
)

// AccountStatus enumerates possible account states.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusDisabled AccountStatus = "disabled"
)

// Profile carries the non-credential identity fields supplied at registration.
type Profile struct {
	DisplayName string
	Timezone    string
}

// Account mirrors the persisted representation in the accounts table.
type Account struct {
	ID              string
	Username        string
	Email           string
	SecretHash      string
	Status          AccountStatus
	FailedAttempts  int
	LockedUntil     *time.Time
	SecretChangedAt time.Time
	ResetToken      *ResetToken
	Profile         Profile
	RegisteredAt    time.Time
	LastLogin       *time.Time
}

// IsActive reports whether the account may authenticate at all.
// Lock state is evaluated separately; a disabled account is rejected
// regardless of its lock state.
func (a Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// IsLocked reports whether the account is locked at the supplied moment.
func (a Account) IsLocked(at time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(at)
}

// LockExpired reports whether a previous lock has elapsed and should be
// cleared on the next access (lazy expiry, no background sweep).
func (a Account) LockExpired(at time.Time) bool {
	return a.LockedUntil != nil && !a.LockedUntil.After(at)
}

// ResetToken is the single active password-reset artifact for an account.
// Only the SHA-256 digest of the raw token is retained.
type ResetToken struct {
	DigestHash string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// IsExpired reports whether the reset token can still be redeemed.
func (t ResetToken) IsExpired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}

// NormalizeIdentifier canonicalizes a username or email for case-insensitive
// uniqueness and lookup.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
