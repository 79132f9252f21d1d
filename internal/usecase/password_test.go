package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/planbeam/identity-service/internal/infra/security"
)

func TestChangePassword_RequiresCurrentSecret(t *testing.T) {
	env := newTestEnv(t)
	registered := env.register(t, "alice")
	ctx := context.Background()

	err := env.passwords.ChangePassword(ctx, ChangePasswordInput{
		AccountID:     registered.Account.ID,
		CurrentSecret: "wrong-secret-9",
		NewSecret:     "fresh-Meadow-82-lantern",
	}, RequestMeta{})
	if !errors.Is(err, ErrCurrentSecretInvalid) {
		t.Fatalf("expected ErrCurrentSecretInvalid, got %v", err)
	}
}

func TestChangePassword_RejectsCurrentSecretReuse(t *testing.T) {
	env := newTestEnv(t)
	registered := env.register(t, "alice")
	ctx := context.Background()

	err := env.passwords.ChangePassword(ctx, ChangePasswordInput{
		AccountID:     registered.Account.ID,
		CurrentSecret: testSecret,
		NewSecret:     testSecret,
	}, RequestMeta{})
	if !errors.Is(err, ErrSecretReused) {
		t.Fatalf("expected ErrSecretReused for current secret, got %v", err)
	}
}

func TestChangePassword_RejectsRecentReuseAndAgesOut(t *testing.T) {
	env := newTestEnv(t)
	registered := env.register(t, "alice")
	ctx := context.Background()

	secrets := []string{testSecret}
	for i := 0; i <= testHistoryDepth; i++ {
		secrets = append(secrets, fmt.Sprintf("rotated-Canyon-%d7-bridge", i))
	}

	for i := 1; i < len(secrets); i++ {
		env.advance(time.Minute)
		err := env.passwords.ChangePassword(ctx, ChangePasswordInput{
			AccountID:     registered.Account.ID,
			CurrentSecret: secrets[i-1],
			NewSecret:     secrets[i],
		}, RequestMeta{})
		if err != nil {
			t.Fatalf("change %d returned error: %v", i, err)
		}
	}

	// The most recent retired secrets are still inside the window.
	err := env.passwords.ChangePassword(ctx, ChangePasswordInput{
		AccountID:     registered.Account.ID,
		CurrentSecret: secrets[len(secrets)-1],
		NewSecret:     secrets[1],
	}, RequestMeta{})
	if !errors.Is(err, ErrSecretReused) {
		t.Fatalf("expected ErrSecretReused inside the window, got %v", err)
	}

	// The original secret has aged out of the five-entry history.
	err = env.passwords.ChangePassword(ctx, ChangePasswordInput{
		AccountID:     registered.Account.ID,
		CurrentSecret: secrets[len(secrets)-1],
		NewSecret:     testSecret,
	}, RequestMeta{})
	if err != nil {
		t.Fatalf("expected aged-out secret accepted, got %v", err)
	}
}

func TestChangePassword_RevokesOtherSessions(t *testing.T) {
	env := newTestEnv(t)
	registered := env.register(t, "alice")
	ctx := context.Background()

	env.advance(time.Minute)
	keeper := env.mustLogin(t, "alice", testSecret)
	keeperClaims, err := env.signer.Parse(keeper.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	env.advance(time.Minute)
	other := env.mustLogin(t, "alice", testSecret)

	env.advance(time.Minute)
	err = env.passwords.ChangePassword(ctx, ChangePasswordInput{
		AccountID:          registered.Account.ID,
		CurrentSecret:      testSecret,
		NewSecret:          "fresh-Meadow-82-lantern",
		KeepRefreshTokenID: keeperClaims.ID,
	}, RequestMeta{})
	if err != nil {
		t.Fatalf("ChangePassword returned error: %v", err)
	}

	// The caller's own session survives the sweep.
	if _, err := env.auth.Refresh(ctx, keeper.Tokens.RefreshToken, RequestMeta{}); err != nil {
		t.Fatalf("kept session refresh failed: %v", err)
	}
	// Every other session is gone.
	if _, err := env.auth.Refresh(ctx, other.Tokens.RefreshToken, RequestMeta{}); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected other session revoked, got %v", err)
	}
	if _, err := env.auth.Refresh(ctx, registered.Tokens.RefreshToken, RequestMeta{}); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected registration session revoked, got %v", err)
	}
}

func TestForgotPassword_UnknownIdentifierYieldsNothing(t *testing.T) {
	env := newTestEnv(t)

	artifact, err := env.passwords.ForgotPassword(context.Background(), "ghost@example.com", RequestMeta{})
	if err != nil {
		t.Fatalf("ForgotPassword must not error for unknown identifiers: %v", err)
	}
	if artifact != nil {
		t.Fatalf("expected no artifact for unknown identifier")
	}
}

func TestResetPassword_FullFlow(t *testing.T) {
	env := newTestEnv(t)
	registered := env.register(t, "alice")
	login := env.mustLogin(t, "alice", testSecret)
	ctx := context.Background()

	artifact, err := env.passwords.ForgotPassword(ctx, "alice@example.com", RequestMeta{})
	if err != nil {
		t.Fatalf("ForgotPassword returned error: %v", err)
	}
	if artifact == nil || artifact.Token == "" {
		t.Fatalf("expected reset artifact for known identifier")
	}
	if !artifact.ExpiresAt.Equal(env.current.Add(testResetTTL)) {
		t.Fatalf("unexpected artifact expiry %v", artifact.ExpiresAt)
	}

	env.advance(5 * time.Minute)
	if err := env.passwords.ResetPassword(ctx, artifact.Token, "fresh-Meadow-82-lantern", RequestMeta{}); err != nil {
		t.Fatalf("ResetPassword returned error: %v", err)
	}

	// All sessions are revoked by the reset.
	if _, err := env.auth.Refresh(ctx, login.Tokens.RefreshToken, RequestMeta{}); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected sessions revoked after reset, got %v", err)
	}

	// Old secret is dead, new one works.
	if _, err := env.auth.Login(ctx, "alice", testSecret, RequestMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old secret rejected, got %v", err)
	}
	env.mustLogin(t, "alice", "fresh-Meadow-82-lantern")

	// Reset is recorded on the event stream with the revocation count.
	env.events.mu.Lock()
	var viaReset bool
	for _, event := range env.events.changed {
		if event.ViaReset && event.AccountID == registered.Account.ID {
			viaReset = true
		}
	}
	env.events.mu.Unlock()
	if !viaReset {
		t.Fatalf("expected password changed event flagged as reset")
	}
}

func TestResetPassword_TokenIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	ctx := context.Background()

	artifact, err := env.passwords.ForgotPassword(ctx, "alice", RequestMeta{})
	if err != nil || artifact == nil {
		t.Fatalf("ForgotPassword failed: artifact=%v err=%v", artifact, err)
	}

	if err := env.passwords.ResetPassword(ctx, artifact.Token, "fresh-Meadow-82-lantern", RequestMeta{}); err != nil {
		t.Fatalf("ResetPassword returned error: %v", err)
	}
	if err := env.passwords.ResetPassword(ctx, artifact.Token, "other-Harbor-34-violet", RequestMeta{}); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected consumed token rejected, got %v", err)
	}
}

func TestResetPassword_TokenExpiry(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	ctx := context.Background()

	artifact, err := env.passwords.ForgotPassword(ctx, "alice", RequestMeta{})
	if err != nil || artifact == nil {
		t.Fatalf("ForgotPassword failed: artifact=%v err=%v", artifact, err)
	}

	// One minute past the 30-minute window.
	env.advance(testResetTTL + time.Minute)
	if err := env.passwords.ResetPassword(ctx, artifact.Token, "fresh-Meadow-82-lantern", RequestMeta{}); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
}

func TestResetPassword_BogusToken(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")

	err := env.passwords.ResetPassword(context.Background(), "bogus-token", "fresh-Meadow-82-lantern", RequestMeta{})
	if !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid, got %v", err)
	}
}

func TestResetPassword_NewTokenSupersedesOld(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	ctx := context.Background()

	first, err := env.passwords.ForgotPassword(ctx, "alice", RequestMeta{})
	if err != nil || first == nil {
		t.Fatalf("ForgotPassword failed: artifact=%v err=%v", first, err)
	}
	second, err := env.passwords.ForgotPassword(ctx, "alice", RequestMeta{})
	if err != nil || second == nil {
		t.Fatalf("ForgotPassword failed: artifact=%v err=%v", second, err)
	}

	if err := env.passwords.ResetPassword(ctx, first.Token, "fresh-Meadow-82-lantern", RequestMeta{}); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected superseded token rejected, got %v", err)
	}
	if err := env.passwords.ResetPassword(ctx, second.Token, "fresh-Meadow-82-lantern", RequestMeta{}); err != nil {
		t.Fatalf("expected active token accepted, got %v", err)
	}
}

func TestResetPassword_ClearsLockout(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	ctx := context.Background()

	for i := 0; i < testLockThreshold; i++ {
		_, _ = env.auth.Login(ctx, "alice", "wrong-secret-9", RequestMeta{})
	}
	if _, err := env.auth.Login(ctx, "alice", testSecret, RequestMeta{}); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected locked account, got %v", err)
	}

	artifact, err := env.passwords.RequestUnlock(ctx, "alice", RequestMeta{})
	if err != nil || artifact == nil {
		t.Fatalf("RequestUnlock failed: artifact=%v err=%v", artifact, err)
	}
	if err := env.passwords.ResetPassword(ctx, artifact.Token, "fresh-Meadow-82-lantern", RequestMeta{}); err != nil {
		t.Fatalf("ResetPassword returned error: %v", err)
	}

	// The lock is gone without waiting out the window.
	env.mustLogin(t, "alice", "fresh-Meadow-82-lantern")
}

func TestRequestUnlock_AntiEnumeration(t *testing.T) {
	env := newTestEnv(t)

	artifact, err := env.passwords.RequestUnlock(context.Background(), "ghost", RequestMeta{})
	if err != nil {
		t.Fatalf("RequestUnlock must not error for unknown identifiers: %v", err)
	}
	if artifact != nil {
		t.Fatalf("expected no artifact for unknown identifier")
	}
}

func TestResetArtifact_StoresDigestOnly(t *testing.T) {
	env := newTestEnv(t)
	registered := env.register(t, "alice")
	ctx := context.Background()

	artifact, err := env.passwords.ForgotPassword(ctx, "alice", RequestMeta{})
	if err != nil || artifact == nil {
		t.Fatalf("ForgotPassword failed: artifact=%v err=%v", artifact, err)
	}

	account, err := env.accounts.GetByID(ctx, registered.Account.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if account.ResetToken == nil {
		t.Fatalf("expected reset token stored")
	}
	if account.ResetToken.DigestHash == artifact.Token {
		t.Fatalf("raw token must not be persisted")
	}
	if account.ResetToken.DigestHash != security.HashToken(artifact.Token) {
		t.Fatalf("stored digest does not match token digest")
	}
}
