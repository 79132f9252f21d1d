package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/planbeam/identity-service/internal/core/domain"
	"github.com/planbeam/identity-service/internal/repository"
)

func seedAccount(t *testing.T, store *AccountStore, id string) domain.Account {
	t.Helper()

	account := domain.Account{
		ID:           id,
		Username:     "user-" + id,
		Email:        "user-" + id + "@example.com",
		SecretHash:   "hash-" + id,
		Status:       domain.AccountStatusActive,
		RegisteredAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := store.Create(context.Background(), account); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	return account
}

func TestAccountStore_CreateRejectsDuplicates(t *testing.T) {
	store := NewAccountStore(10)
	ctx := context.Background()
	seedAccount(t, store, "a1")

	dup := domain.Account{
		ID:       "a2",
		Username: "USER-A1",
		Email:    "other@example.com",
	}
	if err := store.Create(ctx, dup); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for username clash, got %v", err)
	}

	dup = domain.Account{
		ID:       "a3",
		Username: "fresh",
		Email:    "User-A1@Example.com",
	}
	if err := store.Create(ctx, dup); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for email clash, got %v", err)
	}
}

func TestAccountStore_GetByIdentifierNormalizes(t *testing.T) {
	store := NewAccountStore(10)
	ctx := context.Background()
	seedAccount(t, store, "a1")

	got, err := store.GetByIdentifier(ctx, "  USER-A1@EXAMPLE.COM ")
	if err != nil {
		t.Fatalf("GetByIdentifier returned error: %v", err)
	}
	if got.ID != "a1" {
		t.Fatalf("expected account a1, got %s", got.ID)
	}

	if _, err := store.GetByIdentifier(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAccountStore_RecordFailureLocksAtThreshold(t *testing.T) {
	store := NewAccountStore(10)
	ctx := context.Background()
	seedAccount(t, store, "a1")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lockFor := 2 * time.Hour

	for i := 1; i < 5; i++ {
		updated, err := store.RecordFailure(ctx, "a1", 5, lockFor, at)
		if err != nil {
			t.Fatalf("RecordFailure returned error: %v", err)
		}
		if updated.FailedAttempts != i {
			t.Fatalf("expected %d failures, got %d", i, updated.FailedAttempts)
		}
		if updated.LockedUntil != nil {
			t.Fatalf("account must not lock before the threshold")
		}
	}

	updated, err := store.RecordFailure(ctx, "a1", 5, lockFor, at)
	if err != nil {
		t.Fatalf("RecordFailure returned error: %v", err)
	}
	if updated.LockedUntil == nil {
		t.Fatalf("expected lock at the fifth failure")
	}
	if !updated.LockedUntil.Equal(at.Add(lockFor)) {
		t.Fatalf("expected lock until %v, got %v", at.Add(lockFor), updated.LockedUntil)
	}
}

func TestAccountStore_ResetLockoutClearsState(t *testing.T) {
	store := NewAccountStore(10)
	ctx := context.Background()
	seedAccount(t, store, "a1")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if _, err := store.RecordFailure(ctx, "a1", 5, time.Hour, at); err != nil {
			t.Fatalf("RecordFailure returned error: %v", err)
		}
	}

	if err := store.ResetLockout(ctx, "a1"); err != nil {
		t.Fatalf("ResetLockout returned error: %v", err)
	}

	got, err := store.GetByID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if got.FailedAttempts != 0 || got.LockedUntil != nil {
		t.Fatalf("expected cleared lockout state, got attempts=%d locked=%v", got.FailedAttempts, got.LockedUntil)
	}
}

func TestAccountStore_SecretHistoryTrimsToKeep(t *testing.T) {
	store := NewAccountStore(10)
	ctx := context.Background()
	seedAccount(t, store, "a1")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		hash := fmt.Sprintf("old-hash-%d", i)
		if err := store.AddSecretHistory(ctx, "a1", hash, at, 5); err != nil {
			t.Fatalf("AddSecretHistory returned error: %v", err)
		}
	}

	history, err := store.SecretHistory(ctx, "a1", 5)
	if err != nil {
		t.Fatalf("SecretHistory returned error: %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("expected 5 retained hashes, got %d", len(history))
	}
	// Newest first; oldest two evicted.
	if history[0] != "old-hash-6" || history[4] != "old-hash-2" {
		t.Fatalf("unexpected history window: %v", history)
	}
}

func TestAccountStore_ResetTokenLifecycle(t *testing.T) {
	store := NewAccountStore(10)
	ctx := context.Background()
	seedAccount(t, store, "a1")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token := domain.ResetToken{DigestHash: "digest-1", CreatedAt: at, ExpiresAt: at.Add(30 * time.Minute)}
	if err := store.SetResetToken(ctx, "a1", token); err != nil {
		t.Fatalf("SetResetToken returned error: %v", err)
	}

	got, err := store.GetByResetDigest(ctx, "digest-1")
	if err != nil {
		t.Fatalf("GetByResetDigest returned error: %v", err)
	}
	if got.ID != "a1" {
		t.Fatalf("expected account a1, got %s", got.ID)
	}

	// A new token supersedes the old one.
	replacement := domain.ResetToken{DigestHash: "digest-2", CreatedAt: at, ExpiresAt: at.Add(30 * time.Minute)}
	if err := store.SetResetToken(ctx, "a1", replacement); err != nil {
		t.Fatalf("SetResetToken returned error: %v", err)
	}
	if _, err := store.GetByResetDigest(ctx, "digest-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("superseded digest should not resolve, got %v", err)
	}

	if err := store.ClearResetToken(ctx, "a1"); err != nil {
		t.Fatalf("ClearResetToken returned error: %v", err)
	}
	if _, err := store.GetByResetDigest(ctx, "digest-2"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("cleared digest should not resolve, got %v", err)
	}
}

func TestAccountStore_ActivityNewestFirst(t *testing.T) {
	store := NewAccountStore(3)
	ctx := context.Background()
	seedAccount(t, store, "a1")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		entry := domain.ActivityEntry{
			Action: fmt.Sprintf("action-%d", i),
			At:     at.Add(time.Duration(i) * time.Minute),
		}
		if err := store.AppendActivity(ctx, "a1", entry, 3); err != nil {
			t.Fatalf("AppendActivity returned error: %v", err)
		}
	}

	entries, err := store.ListActivity(ctx, "a1", 10)
	if err != nil {
		t.Fatalf("ListActivity returned error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected ring-bounded 3 entries, got %d", len(entries))
	}
	if entries[0].Action != "action-4" || entries[2].Action != "action-2" {
		t.Fatalf("expected newest-first window, got %v", entries)
	}
}
