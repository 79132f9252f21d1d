package domain

import "time"

// AccountRegisteredEvent is published when a new account is created.
type AccountRegisteredEvent struct {
	AccountID    string
	Username     string
	Email        string
	RegisteredAt time.Time
	SourceAddr   string
	Metadata     map[string]string
}

// LoginFailedEvent is published for every failed credential verification
// attributed to a known account.
type LoginFailedEvent struct {
	AccountID      string
	Identifier     string
	FailedAttempts int
	SourceAddr     string
	At             time.Time
}

// AccountLockedEvent is published when repeated failures lock an account.
type AccountLockedEvent struct {
	AccountID   string
	LockedUntil time.Time
	SourceAddr  string
	At          time.Time
}

// PasswordChangedEvent is published after a password change or reset.
type PasswordChangedEvent struct {
	AccountID       string
	ChangedAt       time.Time
	ViaReset        bool
	SessionsRevoked int
}

// SessionRevokedEvent is published for logout, logout-everywhere, and
// capacity eviction of sessions.
type SessionRevokedEvent struct {
	AccountID      string
	RefreshTokenID string
	Reason         string
	RevokedAt      time.Time
}
