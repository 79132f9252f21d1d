package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planbeam/identity-service/internal/core/domain"
	"github.com/planbeam/identity-service/internal/core/port"
	"github.com/planbeam/identity-service/internal/infra/logger"
	"github.com/planbeam/identity-service/internal/infra/security"
	"github.com/planbeam/identity-service/internal/infra/telemetry"
	"github.com/planbeam/identity-service/internal/repository"
)

var (
	// ErrDuplicateIdentity indicates the normalized username or email is
	// already taken.
	ErrDuplicateIdentity = errors.New("identifier already registered")

	// ErrWeakSecret indicates the proposed secret failed policy validation.
	ErrWeakSecret = errors.New("secret too weak")

	// ErrMissingFields indicates a required registration field was empty.
	ErrMissingFields = errors.New("missing required fields")
)

// RegisterInput carries the registration request fields.
type RegisterInput struct {
	Username    string
	Email       string
	Secret      string
	DisplayName string
	Timezone    string
}

// RegistrationService creates accounts and signs the new account in.
type RegistrationService struct {
	accounts      port.AccountRepository
	sessions      *SessionService
	hasher        *security.Hasher
	validator     *security.PasswordValidator
	signer        *security.TokenSigner
	events        port.EventPublisher
	metrics       *telemetry.AuthMetrics
	activityDepth int
	logger        *zap.Logger
	now           func() time.Time
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(
	accounts port.AccountRepository,
	sessions *SessionService,
	hasher *security.Hasher,
	validator *security.PasswordValidator,
	signer *security.TokenSigner,
	events port.EventPublisher,
	activityDepth int,
	log *zap.Logger,
) *RegistrationService {
	if activityDepth <= 0 {
		activityDepth = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RegistrationService{
		accounts:      accounts,
		sessions:      sessions,
		hasher:        hasher,
		validator:     validator,
		signer:        signer,
		events:        events,
		activityDepth: activityDepth,
		logger:        log,
		now:           time.Now,
	}
}

// WithClock injects a custom clock (primarily for tests).
func (s *RegistrationService) WithClock(now func() time.Time) *RegistrationService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithMetrics attaches registration counters.
func (s *RegistrationService) WithMetrics(metrics *telemetry.AuthMetrics) *RegistrationService {
	s.metrics = metrics
	return s
}

// Register validates the input, creates the account, and issues an initial
// token pair so the new account is signed in immediately.
func (s *RegistrationService) Register(ctx context.Context, input RegisterInput, meta RequestMeta) (*AuthResult, error) {
	username := domain.NormalizeIdentifier(input.Username)
	email := domain.NormalizeIdentifier(input.Email)
	if username == "" || email == "" || input.Secret == "" {
		return nil, ErrMissingFields
	}

	if err := s.validator.Validate(input.Secret); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWeakSecret, err.Error())
	}

	hash, err := s.hasher.Hash(input.Secret)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	now := s.now().UTC()
	account := domain.Account{
		ID:              uuid.NewString(),
		Username:        username,
		Email:           email,
		SecretHash:      hash,
		Status:          domain.AccountStatusActive,
		SecretChangedAt: now,
		Profile: domain.Profile{
			DisplayName: input.DisplayName,
			Timezone:    input.Timezone,
		},
		RegisteredAt: now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateIdentity
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	accessToken, accessClaims, err := s.signer.IssueAccessToken(account.ID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, refreshClaims, err := s.signer.IssueRefreshToken(account.ID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := s.sessions.Register(ctx, refreshClaims, meta); err != nil {
		return nil, err
	}

	entry := domain.ActivityEntry{
		Action:     domain.ActivityRegistration,
		SourceAddr: meta.SourceAddr,
		UserAgent:  meta.UserAgent,
		At:         now,
		Success:    true,
	}
	if err := s.accounts.AppendActivity(ctx, account.ID, entry, s.activityDepth); err != nil {
		s.logger.Warn("append registration activity", zap.Error(err))
	}

	if s.events != nil {
		if err := s.events.PublishAccountRegistered(ctx, domain.AccountRegisteredEvent{
			AccountID:    account.ID,
			Username:     account.Username,
			Email:        account.Email,
			RegisteredAt: now,
			SourceAddr:   meta.SourceAddr,
		}); err != nil {
			s.logger.Warn("publish account registered event", zap.Error(err))
		}
	}

	s.metrics.ObserveRegistration()
	s.logger.Info("account registered",
		zap.String("account_id", account.ID),
		zap.String("email", logger.MaskEmail(account.Email)),
	)

	account.SecretHash = ""
	return &AuthResult{
		Account: account,
		Tokens: TokenPair{
			AccessToken:      accessToken,
			RefreshToken:     refreshToken,
			AccessExpiresAt:  accessClaims.ExpiresAt.Time.UTC(),
			RefreshExpiresAt: refreshClaims.ExpiresAt.Time.UTC(),
		},
	}, nil
}
