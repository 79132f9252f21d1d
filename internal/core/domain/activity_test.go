package domain

import (
	"fmt"
	"testing"
	"time"
)

func TestActivityLog_AppendBelowCapacity(t *testing.T) {
	log := NewActivityLog(5)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	log.Append(ActivityEntry{Action: ActivityLogin, At: at})
	log.Append(ActivityEntry{Action: ActivityLogout, At: at.Add(time.Minute)})

	if log.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", log.Len())
	}
	entries := log.Entries()
	if entries[0].Action != ActivityLogin || entries[1].Action != ActivityLogout {
		t.Fatalf("entries out of order: %v", entries)
	}
}

func TestActivityLog_EvictsOldestWhenFull(t *testing.T) {
	log := NewActivityLog(3)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		log.Append(ActivityEntry{
			Action: fmt.Sprintf("action-%d", i),
			At:     at.Add(time.Duration(i) * time.Minute),
		})
	}

	if log.Len() != 3 {
		t.Fatalf("expected 3 retained entries, got %d", log.Len())
	}
	entries := log.Entries()
	for i, want := range []string{"action-2", "action-3", "action-4"} {
		if entries[i].Action != want {
			t.Fatalf("entry %d: expected %s, got %s", i, want, entries[i].Action)
		}
	}
}

func TestAccountLockStates(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	until := at.Add(2 * time.Hour)
	account := Account{Status: AccountStatusActive, LockedUntil: &until}

	if !account.IsLocked(at) {
		t.Fatalf("account should be locked before the deadline")
	}
	if account.LockExpired(at) {
		t.Fatalf("lock should not read as expired before the deadline")
	}

	// Exactly at the deadline the lock is over.
	if account.IsLocked(until) {
		t.Fatalf("account should not be locked at the deadline")
	}
	if !account.LockExpired(until) {
		t.Fatalf("lock should read as expired at the deadline")
	}

	account.LockedUntil = nil
	if account.IsLocked(at) || account.LockExpired(at) {
		t.Fatalf("unlocked account misreports lock state")
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	if got := NormalizeIdentifier("  Alice@Example.COM "); got != "alice@example.com" {
		t.Fatalf("unexpected normalization: %q", got)
	}
}

func TestResetTokenExpiry(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token := ResetToken{CreatedAt: at, ExpiresAt: at.Add(30 * time.Minute)}

	if token.IsExpired(at.Add(29 * time.Minute)) {
		t.Fatalf("token should be valid within its window")
	}
	if !token.IsExpired(at.Add(31 * time.Minute)) {
		t.Fatalf("token should be expired after its window")
	}
}
