package usecase

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegister_CreatesAccountAndSignsIn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.reg.Register(ctx, RegisterInput{
		Username:    "  Alice ",
		Email:       "Alice@Example.COM",
		Secret:      testSecret,
		DisplayName: "Alice A.",
		Timezone:    "Europe/Berlin",
	}, RequestMeta{SourceAddr: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if result.Account.Username != "alice" || result.Account.Email != "alice@example.com" {
		t.Fatalf("identifiers not normalized: %+v", result.Account)
	}
	if result.Account.SecretHash != "" {
		t.Fatalf("secret hash must not leak into registration results")
	}
	if result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" {
		t.Fatalf("expected initial token pair")
	}

	sessions, err := env.sessions.ListActive(ctx, result.Account.ID)
	if err != nil {
		t.Fatalf("ListActive returned error: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one session after registration, got %d", len(sessions))
	}

	if len(env.events.registered) != 1 {
		t.Fatalf("expected one registration event, got %d", len(env.events.registered))
	}
}

func TestRegister_DuplicateIdentifier(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	ctx := context.Background()

	_, err := env.reg.Register(ctx, RegisterInput{
		Username: "ALICE",
		Email:    "other@example.com",
		Secret:   testSecret,
	}, RequestMeta{})
	if !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity for username, got %v", err)
	}

	_, err = env.reg.Register(ctx, RegisterInput{
		Username: "bob",
		Email:    "Alice@example.com",
		Secret:   testSecret,
	}, RequestMeta{})
	if !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity for email, got %v", err)
	}
}

func TestRegister_WeakSecret(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, secret := range []string{"short1", "password1", "no digits here"} {
		_, err := env.reg.Register(ctx, RegisterInput{
			Username: "alice",
			Email:    "alice@example.com",
			Secret:   secret,
		}, RequestMeta{})
		if !errors.Is(err, ErrWeakSecret) {
			t.Fatalf("expected ErrWeakSecret for %q, got %v", secret, err)
		}
	}
}

func TestRegister_MissingFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []RegisterInput{
		{Email: "alice@example.com", Secret: testSecret},
		{Username: "alice", Secret: testSecret},
		{Username: "alice", Email: "alice@example.com"},
	}
	for _, input := range cases {
		if _, err := env.reg.Register(ctx, input, RequestMeta{}); !errors.Is(err, ErrMissingFields) {
			t.Fatalf("expected ErrMissingFields for %+v, got %v", input, err)
		}
	}
}

func TestSessionCapacity_SixthLoginEvictsOldest(t *testing.T) {
	env := newTestEnv(t)
	registered := env.register(t, "alice")
	ctx := context.Background()

	// Registration already holds one session; five logins push past the cap.
	var logins []*AuthResult
	for i := 0; i < testSessionCapacity; i++ {
		env.advance(time.Minute)
		logins = append(logins, env.mustLogin(t, "alice", testSecret))
	}

	sessions, err := env.sessions.ListActive(ctx, registered.Account.ID)
	if err != nil {
		t.Fatalf("ListActive returned error: %v", err)
	}
	if len(sessions) != testSessionCapacity {
		t.Fatalf("expected %d sessions, got %d", testSessionCapacity, len(sessions))
	}

	// The registration session was the oldest and must be gone.
	if _, err := env.auth.Refresh(ctx, registered.Tokens.RefreshToken, RequestMeta{}); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected evicted session's token rejected, got %v", err)
	}

	// The remaining five are all usable.
	for i, login := range logins {
		if _, err := env.auth.Refresh(ctx, login.Tokens.RefreshToken, RequestMeta{}); err != nil {
			t.Fatalf("login %d refresh failed: %v", i, err)
		}
	}

	revoked := 0
	env.events.mu.Lock()
	for _, event := range env.events.revoked {
		if event.Reason == RevokeReasonCapacity {
			revoked++
		}
	}
	env.events.mu.Unlock()
	if revoked != 1 {
		t.Fatalf("expected one capacity revocation event, got %d", revoked)
	}
}
