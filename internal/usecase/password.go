package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/planbeam/identity-service/internal/core/domain"
	"github.com/planbeam/identity-service/internal/core/port"
	"github.com/planbeam/identity-service/internal/infra/logger"
	"github.com/planbeam/identity-service/internal/infra/security"
	"github.com/planbeam/identity-service/internal/repository"
)

var (
	// ErrCurrentSecretInvalid indicates the presented current secret did not
	// match during a password change.
	ErrCurrentSecretInvalid = errors.New("current secret invalid")

	// ErrSecretReused indicates the proposed secret matches the current one
	// or one of the recently retired ones.
	ErrSecretReused = errors.New("secret was used recently")

	// ErrResetTokenInvalid covers unknown, expired, and already-consumed
	// reset tokens uniformly.
	ErrResetTokenInvalid = errors.New("reset token invalid")
)

// ResetArtifact is the outcome of a reset or unlock request for a known
// account. The raw token is handed to the delivery channel and never stored.
type ResetArtifact struct {
	AccountID string
	Token     string
	ExpiresAt time.Time
}

// ChangePasswordInput carries an authenticated password change request.
// KeepRefreshTokenID names the caller's own session, which survives the
// revocation sweep.
type ChangePasswordInput struct {
	AccountID          string
	CurrentSecret      string
	NewSecret          string
	KeepRefreshTokenID string
}

// PasswordService owns the secret lifecycle: authenticated change, reset
// token issuance and consumption, and the unlock-request flow that shares
// the reset artifact.
type PasswordService struct {
	accounts      port.AccountRepository
	sessions      *SessionService
	lockout       *LockoutGuard
	hasher        *security.Hasher
	validator     *security.PasswordValidator
	events        port.EventPublisher
	historyDepth  int
	resetTTL      time.Duration
	activityDepth int
	logger        *zap.Logger
	now           func() time.Time
}

// NewPasswordService constructs a PasswordService.
func NewPasswordService(
	accounts port.AccountRepository,
	sessions *SessionService,
	lockout *LockoutGuard,
	hasher *security.Hasher,
	validator *security.PasswordValidator,
	events port.EventPublisher,
	historyDepth int,
	resetTTL time.Duration,
	activityDepth int,
	log *zap.Logger,
) *PasswordService {
	if historyDepth <= 0 {
		historyDepth = 5
	}
	if resetTTL <= 0 {
		resetTTL = 30 * time.Minute
	}
	if activityDepth <= 0 {
		activityDepth = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PasswordService{
		accounts:      accounts,
		sessions:      sessions,
		lockout:       lockout,
		hasher:        hasher,
		validator:     validator,
		events:        events,
		historyDepth:  historyDepth,
		resetTTL:      resetTTL,
		activityDepth: activityDepth,
		logger:        log,
		now:           time.Now,
	}
}

// WithClock injects a custom clock (primarily for tests).
func (s *PasswordService) WithClock(now func() time.Time) *PasswordService {
	if now != nil {
		s.now = now
	}
	return s
}

// ChangePassword verifies the current secret, enforces the reuse window, and
// replaces the secret. Every other session is revoked; the caller's own
// refresh token stays valid.
func (s *PasswordService) ChangePassword(ctx context.Context, input ChangePasswordInput, meta RequestMeta) error {
	account, err := s.accounts.GetByID(ctx, input.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrCurrentSecretInvalid
		}
		return fmt.Errorf("load account: %w", err)
	}

	ok, err := s.hasher.Verify(input.CurrentSecret, account.SecretHash)
	if err != nil {
		return fmt.Errorf("verify current secret: %w", err)
	}
	if !ok {
		return ErrCurrentSecretInvalid
	}

	if err := s.applySecretChange(ctx, account, input.NewSecret); err != nil {
		return err
	}

	revoked := 0
	if input.KeepRefreshTokenID != "" {
		revoked, err = s.sessions.RevokeAllExcept(ctx, account.ID, input.KeepRefreshTokenID, RevokeReasonPasswordChange)
	} else {
		revoked, err = s.sessions.RevokeAll(ctx, account.ID, RevokeReasonPasswordChange)
	}
	if err != nil {
		return err
	}

	s.appendActivity(ctx, account.ID, domain.ActivityPasswordChange, meta)
	s.publishChanged(ctx, account.ID, false, revoked)
	return nil
}

// ForgotPassword issues a reset artifact when the identifier matches a known
// account. An unknown identifier yields (nil, nil): the caller's response is
// identical either way, so the endpoint cannot be used to probe for
// registered identifiers.
func (s *PasswordService) ForgotPassword(ctx context.Context, identifier string, meta RequestMeta) (*ResetArtifact, error) {
	account, err := s.accounts.GetByIdentifier(ctx, domain.NormalizeIdentifier(identifier))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	artifact, err := s.issueResetArtifact(ctx, account)
	if err != nil {
		return nil, err
	}

	s.appendActivity(ctx, account.ID, domain.ActivityResetRequest, meta)
	s.logger.Info("reset token issued",
		zap.String("account_id", account.ID),
		zap.String("email", logger.MaskEmail(account.Email)),
	)
	return artifact, nil
}

// ResetPassword consumes a reset token and installs the new secret. The
// token is single-use; consumption also unlocks the account and revokes all
// sessions.
func (s *PasswordService) ResetPassword(ctx context.Context, token, newSecret string, meta RequestMeta) error {
	digest := security.HashToken(token)

	account, err := s.accounts.GetByResetDigest(ctx, digest)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("load account by reset digest: %w", err)
	}
	if account.ResetToken == nil || account.ResetToken.IsExpired(s.now().UTC()) {
		return ErrResetTokenInvalid
	}

	if err := s.applySecretChange(ctx, account, newSecret); err != nil {
		return err
	}

	if err := s.accounts.ClearResetToken(ctx, account.ID); err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if err := s.lockout.ForceUnlock(ctx, account.ID); err != nil {
		return err
	}

	revoked, err := s.sessions.RevokeAll(ctx, account.ID, RevokeReasonPasswordReset)
	if err != nil {
		return err
	}

	s.appendActivity(ctx, account.ID, domain.ActivityPasswordReset, meta)
	s.publishChanged(ctx, account.ID, true, revoked)
	return nil
}

// RequestUnlock issues the same artifact as ForgotPassword for accounts that
// locked themselves out: completing the reset flow clears the lock. The
// anti-enumeration contract is identical.
func (s *PasswordService) RequestUnlock(ctx context.Context, identifier string, meta RequestMeta) (*ResetArtifact, error) {
	account, err := s.accounts.GetByIdentifier(ctx, domain.NormalizeIdentifier(identifier))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	artifact, err := s.issueResetArtifact(ctx, account)
	if err != nil {
		return nil, err
	}

	s.appendActivity(ctx, account.ID, domain.ActivityUnlockRequest, meta)
	return artifact, nil
}

// applySecretChange validates the proposed secret against policy and the
// reuse window, then installs it and retires the old hash into history.
func (s *PasswordService) applySecretChange(ctx context.Context, account *domain.Account, newSecret string) error {
	if err := s.validator.Validate(newSecret); err != nil {
		return fmt.Errorf("%w: %s", ErrWeakSecret, err.Error())
	}

	// The current hash is checked alongside history, so the window
	// effectively covers historyDepth+1 secrets.
	match, err := s.hasher.Verify(newSecret, account.SecretHash)
	if err != nil {
		return fmt.Errorf("compare against current secret: %w", err)
	}
	if match {
		return ErrSecretReused
	}

	history, err := s.accounts.SecretHistory(ctx, account.ID, s.historyDepth)
	if err != nil {
		return fmt.Errorf("load secret history: %w", err)
	}
	for _, old := range history {
		match, err := s.hasher.Verify(newSecret, old)
		if err != nil {
			return fmt.Errorf("compare against retired secret: %w", err)
		}
		if match {
			return ErrSecretReused
		}
	}

	hash, err := s.hasher.Hash(newSecret)
	if err != nil {
		return fmt.Errorf("hash secret: %w", err)
	}

	now := s.now().UTC()
	if err := s.accounts.AddSecretHistory(ctx, account.ID, account.SecretHash, now, s.historyDepth); err != nil {
		return fmt.Errorf("retire current secret: %w", err)
	}
	if err := s.accounts.UpdateSecret(ctx, account.ID, hash, now); err != nil {
		return fmt.Errorf("update secret: %w", err)
	}

	account.SecretHash = hash
	account.SecretChangedAt = now
	return nil
}

func (s *PasswordService) issueResetArtifact(ctx context.Context, account *domain.Account) (*ResetArtifact, error) {
	raw, err := security.GenerateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate reset token: %w", err)
	}

	now := s.now().UTC()
	token := domain.ResetToken{
		DigestHash: security.HashToken(raw),
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.resetTTL),
	}
	if err := s.accounts.SetResetToken(ctx, account.ID, token); err != nil {
		return nil, fmt.Errorf("store reset token: %w", err)
	}

	return &ResetArtifact{
		AccountID: account.ID,
		Token:     raw,
		ExpiresAt: token.ExpiresAt,
	}, nil
}

func (s *PasswordService) publishChanged(ctx context.Context, accountID string, viaReset bool, revoked int) {
	if s.events == nil {
		return
	}
	err := s.events.PublishPasswordChanged(ctx, domain.PasswordChangedEvent{
		AccountID:       accountID,
		ChangedAt:       s.now().UTC(),
		ViaReset:        viaReset,
		SessionsRevoked: revoked,
	})
	if err != nil {
		s.logger.Warn("publish password changed event", zap.Error(err))
	}
}

func (s *PasswordService) appendActivity(ctx context.Context, accountID, action string, meta RequestMeta) {
	entry := domain.ActivityEntry{
		Action:     action,
		SourceAddr: meta.SourceAddr,
		UserAgent:  meta.UserAgent,
		At:         s.now().UTC(),
		Success:    true,
	}
	if err := s.accounts.AppendActivity(ctx, accountID, entry, s.activityDepth); err != nil {
		s.logger.Warn("append activity entry", zap.Error(err))
	}
}
