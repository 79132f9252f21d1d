package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/planbeam/identity-service/internal/core/domain"
	"github.com/planbeam/identity-service/internal/infra/security"
	"github.com/planbeam/identity-service/internal/repository/memory"
)

// eventRecorder captures published events for assertions.
type eventRecorder struct {
	mu         sync.Mutex
	registered []domain.AccountRegisteredEvent
	failed     []domain.LoginFailedEvent
	locked     []domain.AccountLockedEvent
	changed    []domain.PasswordChangedEvent
	revoked    []domain.SessionRevokedEvent
}

func (r *eventRecorder) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, event)
	return nil
}

func (r *eventRecorder) PublishLoginFailed(_ context.Context, event domain.LoginFailedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, event)
	return nil
}

func (r *eventRecorder) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = append(r.locked, event)
	return nil
}

func (r *eventRecorder) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, event)
	return nil
}

func (r *eventRecorder) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked = append(r.revoked, event)
	return nil
}

func (r *eventRecorder) lockedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locked)
}

// testEnv wires the service graph over in-memory stores with a controllable
// clock shared by every component.
type testEnv struct {
	current   time.Time
	accounts  *memory.AccountStore
	store     *memory.SessionStore
	events    *eventRecorder
	signer    *security.TokenSigner
	hasher    *security.Hasher
	lockout   *LockoutGuard
	sessions  *SessionService
	auth      *AuthService
	reg       *RegistrationService
	passwords *PasswordService
}

const (
	testLockThreshold   = 5
	testLockDuration    = 2 * time.Hour
	testSessionCapacity = 5
	testHistoryDepth    = 5
	testResetTTL        = 30 * time.Minute
	testActivityDepth   = 100
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		current:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		accounts: memory.NewAccountStore(testActivityDepth),
		store:    memory.NewSessionStore(testSessionCapacity),
		events:   &eventRecorder{},
	}
	clock := func() time.Time { return env.current }
	log := zap.NewNop()

	signer, err := security.NewTokenSigner("test-signing-secret", "identity-test", 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewTokenSigner returned error: %v", err)
	}
	env.signer = signer.WithClock(clock)
	env.hasher = security.NewHasher(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	validator := security.DefaultPasswordValidator(8, 2)

	env.lockout = NewLockoutGuard(env.accounts, env.events, testLockThreshold, testLockDuration, log).
		WithClock(clock)
	env.sessions = NewSessionService(env.store, env.events, testSessionCapacity, log).
		WithClock(clock)
	env.auth = NewAuthService(env.accounts, env.sessions, env.lockout, env.hasher, env.signer, env.events, testActivityDepth, log).
		WithClock(clock)
	env.reg = NewRegistrationService(env.accounts, env.sessions, env.hasher, validator, env.signer, env.events, testActivityDepth, log).
		WithClock(clock)
	env.passwords = NewPasswordService(env.accounts, env.sessions, env.lockout, env.hasher, validator, env.events,
		testHistoryDepth, testResetTTL, testActivityDepth, log).
		WithClock(clock)

	return env
}

func (env *testEnv) advance(d time.Duration) {
	env.current = env.current.Add(d)
}

const testSecret = "plum-Trellis-41-harbor"

func (env *testEnv) register(t *testing.T, username string) *AuthResult {
	t.Helper()

	result, err := env.reg.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Secret:   testSecret,
	}, RequestMeta{SourceAddr: "10.0.0.1", UserAgent: "test-agent"})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	return result
}

func (env *testEnv) mustLogin(t *testing.T, identifier, secret string) *AuthResult {
	t.Helper()

	result, err := env.auth.Login(context.Background(), identifier, secret, RequestMeta{SourceAddr: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	return result
}
