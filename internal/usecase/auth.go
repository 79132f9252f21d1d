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
	"github.com/planbeam/identity-service/internal/infra/telemetry"
	"github.com/planbeam/identity-service/internal/repository"
)

var (
	// ErrInvalidCredentials covers both unknown identifiers and secret
	// mismatches; the two cases are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountInactive indicates the account is administratively disabled.
	ErrAccountInactive = errors.New("account inactive")

	// ErrInvalidSession is the uniform refresh failure: malformed token,
	// expired token, consumed token, unknown account, and disabled account
	// all collapse into this one error.
	ErrInvalidSession = errors.New("invalid session")

	// ErrInvalidAccessToken indicates an access token that failed structural
	// or signature validation, or whose account is no longer usable.
	ErrInvalidAccessToken = errors.New("invalid access token")

	// ErrExpiredAccessToken indicates an access token past its expiry.
	ErrExpiredAccessToken = errors.New("access token expired")
)

// TokenPair is the access/refresh token pair issued on login, registration,
// and refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AuthResult is the successful login payload.
type AuthResult struct {
	Account domain.Account
	Tokens  TokenPair
}

// AuthService orchestrates credential verification, lockout, token issuance,
// and session registration.
type AuthService struct {
	accounts      port.AccountRepository
	sessions      *SessionService
	lockout       *LockoutGuard
	hasher        *security.Hasher
	signer        *security.TokenSigner
	events        port.EventPublisher
	metrics       *telemetry.AuthMetrics
	activityDepth int
	logger        *zap.Logger
	now           func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(
	accounts port.AccountRepository,
	sessions *SessionService,
	lockout *LockoutGuard,
	hasher *security.Hasher,
	signer *security.TokenSigner,
	events port.EventPublisher,
	activityDepth int,
	log *zap.Logger,
) *AuthService {
	if activityDepth <= 0 {
		activityDepth = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		accounts:      accounts,
		sessions:      sessions,
		lockout:       lockout,
		hasher:        hasher,
		signer:        signer,
		events:        events,
		activityDepth: activityDepth,
		logger:        log,
		now:           time.Now,
	}
}

// WithClock injects a custom clock (primarily for tests).
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithMetrics attaches auth outcome collectors.
func (s *AuthService) WithMetrics(metrics *telemetry.AuthMetrics) *AuthService {
	s.metrics = metrics
	return s
}

// Login verifies the identifier/secret pair and, on success, issues a token
// pair and registers the refresh token as a live session. The lock state is
// evaluated before the secret comparison, so attempts against a locked
// account are rejected without touching the hash.
func (s *AuthService) Login(ctx context.Context, identifier, secret string, meta RequestMeta) (*AuthResult, error) {
	identifier = domain.NormalizeIdentifier(identifier)
	if identifier == "" || secret == "" {
		s.metrics.ObserveLogin("invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	account, err := s.accounts.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Unknown identifier: no account to attribute the failure to.
			s.metrics.ObserveLogin("invalid_credentials")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	if !account.IsActive() {
		s.recordFailedLoginActivity(ctx, account.ID, meta)
		s.metrics.ObserveLogin("inactive")
		return nil, ErrAccountInactive
	}

	if err := s.lockout.Check(ctx, account); err != nil {
		if errors.Is(err, ErrAccountLocked) {
			s.recordFailedLoginActivity(ctx, account.ID, meta)
			s.metrics.ObserveLogin("locked")
			return nil, ErrAccountLocked
		}
		return nil, err
	}

	ok, err := s.hasher.Verify(secret, account.SecretHash)
	if err != nil {
		return nil, fmt.Errorf("verify secret: %w", err)
	}
	if !ok {
		return nil, s.handleFailedVerification(ctx, account, identifier, meta)
	}

	now := s.now().UTC()
	if err := s.accounts.RecordLogin(ctx, account.ID, now); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}

	tokens, refreshClaims, err := s.issuePair(account.ID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Register(ctx, refreshClaims, meta); err != nil {
		return nil, err
	}

	s.appendActivity(ctx, account.ID, domain.ActivityLogin, meta, true)
	s.metrics.ObserveLogin("success")
	s.logger.Info("login succeeded",
		zap.String("account_id", account.ID),
		zap.String("source", logger.MaskIP(meta.SourceAddr)),
	)

	result := *account
	result.SecretHash = ""
	result.FailedAttempts = 0
	result.LockedUntil = nil
	result.LastLogin = &now
	return &AuthResult{Account: result, Tokens: tokens}, nil
}

// Refresh consumes a refresh token and issues a fresh pair. Every failure
// mode is reported as ErrInvalidSession: the caller learns nothing about
// whether the token was malformed, expired, already used, or orphaned.
// Revocation is governed by the session set alone; a refresh token whose ID
// is absent from the set is dead regardless of signature validity.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta RequestMeta) (*TokenPair, error) {
	claims, err := s.signer.Parse(refreshToken)
	if err != nil || claims.TokenType != security.TokenTypeRefresh {
		return nil, ErrInvalidSession
	}

	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !account.IsActive() {
		return nil, ErrInvalidSession
	}

	tokens, refreshClaims, err := s.issuePair(account.ID)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Rotate(ctx, account.ID, claims.ID, refreshClaims, meta); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}

	s.appendActivity(ctx, account.ID, domain.ActivityRefresh, meta, true)
	return &tokens, nil
}

// Logout revokes the session behind the presented refresh token. Revoking a
// session that is already gone still succeeds.
func (s *AuthService) Logout(ctx context.Context, accountID, refreshToken string, meta RequestMeta) error {
	claims, err := s.signer.Parse(refreshToken)
	if err != nil || claims.TokenType != security.TokenTypeRefresh || claims.AccountID != accountID {
		return ErrInvalidSession
	}

	if err := s.sessions.Revoke(ctx, accountID, claims.ID, RevokeReasonLogout); err != nil {
		return err
	}

	s.appendActivity(ctx, accountID, domain.ActivityLogout, meta, true)
	return nil
}

// LogoutAll revokes every live session for the account and returns how many
// were removed.
func (s *AuthService) LogoutAll(ctx context.Context, accountID string, meta RequestMeta) (int, error) {
	removed, err := s.sessions.RevokeAll(ctx, accountID, RevokeReasonLogoutAll)
	if err != nil {
		return 0, err
	}

	s.appendActivity(ctx, accountID, domain.ActivityLogoutAll, meta, true)
	return removed, nil
}

// ParseAccessToken validates an access token for request authentication,
// rejecting tokens minted before the account's last secret change.
func (s *AuthService) ParseAccessToken(ctx context.Context, raw string) (*security.Claims, error) {
	claims, err := s.signer.Parse(raw)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, ErrExpiredAccessToken
		}
		return nil, ErrInvalidAccessToken
	}
	if claims.TokenType != security.TokenTypeAccess {
		return nil, ErrInvalidAccessToken
	}

	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidAccessToken
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !account.IsActive() {
		return nil, ErrInvalidAccessToken
	}
	// Access tokens are not tracked server-side, so ones minted before the
	// last secret change are cut off here. The iat claim is second-precision;
	// the comparison matches that.
	if claims.IssuedAt != nil && claims.IssuedAt.Time.Before(account.SecretChangedAt.Truncate(time.Second)) {
		return nil, ErrInvalidAccessToken
	}

	return claims, nil
}

func (s *AuthService) handleFailedVerification(ctx context.Context, account *domain.Account, identifier string, meta RequestMeta) error {
	updated, err := s.lockout.RecordFailure(ctx, account, meta.SourceAddr)
	if err != nil {
		return err
	}

	s.recordFailedLoginActivity(ctx, account.ID, meta)
	s.metrics.ObserveLogin("invalid_credentials")

	if s.events != nil {
		if err := s.events.PublishLoginFailed(ctx, domain.LoginFailedEvent{
			AccountID:      account.ID,
			Identifier:     identifier,
			FailedAttempts: updated.FailedAttempts,
			SourceAddr:     meta.SourceAddr,
			At:             s.now().UTC(),
		}); err != nil {
			s.logger.Warn("publish login failed event", zap.Error(err))
		}
	}

	return ErrInvalidCredentials
}

func (s *AuthService) issuePair(accountID string) (TokenPair, *security.Claims, error) {
	accessToken, accessClaims, err := s.signer.IssueAccessToken(accountID)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, refreshClaims, err := s.signer.IssueRefreshToken(accountID)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("issue refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time.UTC(),
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time.UTC(),
	}, refreshClaims, nil
}

func (s *AuthService) recordFailedLoginActivity(ctx context.Context, accountID string, meta RequestMeta) {
	s.appendActivityEntry(ctx, accountID, domain.ActivityEntry{
		Action:     domain.ActivityFailedLogin,
		SourceAddr: meta.SourceAddr,
		UserAgent:  meta.UserAgent,
		At:         s.now().UTC(),
		Success:    false,
	})
}

func (s *AuthService) appendActivity(ctx context.Context, accountID, action string, meta RequestMeta, success bool) {
	s.appendActivityEntry(ctx, accountID, domain.ActivityEntry{
		Action:     action,
		SourceAddr: meta.SourceAddr,
		UserAgent:  meta.UserAgent,
		At:         s.now().UTC(),
		Success:    success,
	})
}

func (s *AuthService) appendActivityEntry(ctx context.Context, accountID string, entry domain.ActivityEntry) {
	if err := s.accounts.AppendActivity(ctx, accountID, entry, s.activityDepth); err != nil {
		s.logger.Warn("append activity entry",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
	}
}

// ListActivity returns the account's recent activity entries, newest first.
func (s *AuthService) ListActivity(ctx context.Context, accountID string, limit int) ([]domain.ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	entries, err := s.accounts.ListActivity(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return entries, nil
}
