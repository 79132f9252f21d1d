package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

// TokenType discriminates access tokens from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

var (
	// ErrTokenExpired indicates the token's expiry has elapsed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed indicates the token failed signature or structural validation.
	ErrTokenMalformed = errors.New("token malformed")
)

// Claims carries the signed token payload.
type Claims struct {
	AccountID string    `json:"uid"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenSigner issues and verifies HS256-signed access and refresh tokens.
// Expiry comparison uses the signer's clock; no skew tolerance is added —
// callers needing skew tolerance must wrap this.
type TokenSigner struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenSigner constructs a TokenSigner with the shared signing secret.
func NewTokenSigner(secret, issuer string, accessTTL, refreshTTL time.Duration) (*TokenSigner, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret is required")
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}

	return &TokenSigner{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// WithClock injects a custom clock (primarily for tests).
func (s *TokenSigner) WithClock(now func() time.Time) *TokenSigner {
	if now != nil {
		s.now = now
	}
	return s
}

// IssueAccessToken mints a short-lived access token for the account.
func (s *TokenSigner) IssueAccessToken(accountID string) (string, *Claims, error) {
	return s.issue(accountID, TokenTypeAccess, s.accessTTL)
}

// IssueRefreshToken mints a refresh token for the account. The claims' ID
// (jti) is the handle the session set tracks.
func (s *TokenSigner) IssueRefreshToken(accountID string) (string, *Claims, error) {
	return s.issue(accountID, TokenTypeRefresh, s.refreshTTL)
}

func (s *TokenSigner) issue(accountID string, tokenType TokenType, ttl time.Duration) (string, *Claims, error) {
	if accountID == "" {
		return "", nil, fmt.Errorf("account id is required")
	}

	now := s.now().UTC()
	claims := &Claims{
		AccountID: accountID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}

	return signed, claims, nil
}

// Parse validates signature and expiry and returns the claims. Revocation is
// the session layer's concern; secret-change invalidation is the caller's.
func (s *TokenSigner) Parse(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenMalformed
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if strings.TrimSpace(claims.AccountID) == "" || claims.ID == "" {
		return nil, ErrTokenMalformed
	}
	if claims.TokenType != TokenTypeAccess && claims.TokenType != TokenTypeRefresh {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}
