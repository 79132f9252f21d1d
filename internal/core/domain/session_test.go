package domain

import (
	"fmt"
	"testing"
	"time"
)

func makeSession(n int, issuedAt time.Time) Session {
	id := fmt.Sprintf("token-%d", n)
	return Session{
		ID:             id,
		AccountID:      "acct-1",
		RefreshTokenID: id,
		IssuedAt:       issuedAt,
		ExpiresAt:      issuedAt.Add(time.Hour),
	}
}

func TestSessionSet_AddEvictsOldestBeyondCapacity(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	set := NewSessionSet(3)

	for i := 0; i < 3; i++ {
		if evicted := set.Add(makeSession(i, base.Add(time.Duration(i)*time.Minute))); evicted != nil {
			t.Fatalf("unexpected eviction at %d: %v", i, evicted)
		}
	}

	evicted := set.Add(makeSession(3, base.Add(3*time.Minute)))
	if len(evicted) != 1 {
		t.Fatalf("expected one eviction, got %d", len(evicted))
	}
	if evicted[0].RefreshTokenID != "token-0" {
		t.Fatalf("expected oldest session token-0 evicted, got %s", evicted[0].RefreshTokenID)
	}
	if set.Len() != 3 {
		t.Fatalf("expected 3 sessions after eviction, got %d", set.Len())
	}
	if _, ok := set.Get("token-0"); ok {
		t.Fatalf("evicted session still present")
	}
}

func TestSessionSet_AddOrdersByIssuedAt(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	set := NewSessionSet(5)

	// Insert out of order; eviction must still pick the oldest by IssuedAt.
	set.Add(makeSession(2, base.Add(2*time.Minute)))
	set.Add(makeSession(0, base))
	set.Add(makeSession(1, base.Add(time.Minute)))

	entries := set.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"token-0", "token-1", "token-2"} {
		if entries[i].RefreshTokenID != want {
			t.Fatalf("entry %d: expected %s, got %s", i, want, entries[i].RefreshTokenID)
		}
	}
}

func TestSessionSet_RemoveIsIdempotent(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	set := NewSessionSet(3)
	set.Add(makeSession(0, base))

	if !set.Remove("token-0") {
		t.Fatalf("expected removal of existing session")
	}
	if set.Remove("token-0") {
		t.Fatalf("expected second removal to report absent")
	}
	if set.Len() != 0 {
		t.Fatalf("expected empty set, got %d", set.Len())
	}
}

func TestSessionSet_Clear(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	set := NewSessionSet(5)
	for i := 0; i < 4; i++ {
		set.Add(makeSession(i, base.Add(time.Duration(i)*time.Second)))
	}

	if n := set.Clear(); n != 4 {
		t.Fatalf("expected 4 cleared, got %d", n)
	}
	if n := set.Clear(); n != 0 {
		t.Fatalf("expected 0 cleared on empty set, got %d", n)
	}
}

func TestSessionIsExpired(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sess := Session{ExpiresAt: at}

	if sess.IsExpired(at.Add(-time.Second)) {
		t.Fatalf("session should not be expired before its deadline")
	}
	if !sess.IsExpired(at) {
		t.Fatalf("session should be expired exactly at its deadline")
	}
}
