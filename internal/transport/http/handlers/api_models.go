package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/planbeam/identity-service/internal/core/domain"
	"github.com/planbeam/identity-service/internal/transport/http/middleware"
	"github.com/planbeam/identity-service/internal/usecase"
)

// ErrorResponse is the generic error payload with the request correlation ID.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// NewErrorResponse creates an error response carrying the request ID.
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:     errorMsg,
		RequestID: middleware.RequestIDFromContext(c.Request.Context()),
	}
}

// MessageResponse is a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// AccountSummary is the minimal account view returned by the API.
type AccountSummary struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name,omitempty"`
	Timezone    string     `json:"timezone,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
}

func newAccountSummary(account domain.Account) AccountSummary {
	return AccountSummary{
		ID:          account.ID,
		Username:    account.Username,
		Email:       account.Email,
		DisplayName: account.Profile.DisplayName,
		Timezone:    account.Profile.Timezone,
		Status:      string(account.Status),
		CreatedAt:   account.RegisteredAt,
		LastLogin:   account.LastLogin,
	}
}

// TokenPairResponse carries an issued access/refresh pair.
type TokenPairResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func newTokenPairResponse(tokens usecase.TokenPair) TokenPairResponse {
	return TokenPairResponse{
		AccessToken:      tokens.AccessToken,
		RefreshToken:     tokens.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  tokens.AccessExpiresAt,
		RefreshExpiresAt: tokens.RefreshExpiresAt,
	}
}

// RegisterRequest is the payload for account registration.
type RegisterRequest struct {
	Username    string `json:"username" binding:"required"`
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name"`
	Timezone    string `json:"timezone"`
}

// RegisterResponse is returned for a successful registration.
type RegisterResponse struct {
	Account AccountSummary    `json:"account"`
	Tokens  TokenPairResponse `json:"tokens"`
}

// LoginRequest is the payload for the login endpoint. Identifier accepts a
// username or email.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// LoginResponse is returned for a successful login.
type LoginResponse struct {
	Account AccountSummary    `json:"account"`
	Tokens  TokenPairResponse `json:"tokens"`
}

// RefreshRequest carries the refresh token to rotate.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest names the session to revoke by its refresh token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutAllResponse reports how many sessions were revoked.
type LogoutAllResponse struct {
	Message         string `json:"message"`
	SessionsRevoked int    `json:"sessions_revoked"`
}

// ChangePasswordRequest is the payload for an authenticated password change.
// RefreshToken optionally names the caller's session so it survives the
// revocation sweep.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
	RefreshToken    string `json:"refresh_token"`
}

// ForgotPasswordRequest asks for a reset token by identifier.
type ForgotPasswordRequest struct {
	Identifier string `json:"identifier" binding:"required"`
}

// ForgotPasswordResponse is returned for every forgot-password request,
// found or not.
type ForgotPasswordResponse struct {
	Message   string  `json:"message"`
	DevToken  *string `json:"dev_token,omitempty"`
	ExpiresAt *string `json:"expires_at,omitempty"`
}

// ResetPasswordRequest consumes a reset token.
type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// UnlockRequest asks for an unlock artifact by identifier.
type UnlockRequest struct {
	Identifier string `json:"identifier" binding:"required"`
}

// SessionView is the API projection of a live session.
type SessionView struct {
	ID         string    `json:"id"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	SourceAddr string    `json:"source_addr,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Current    bool      `json:"current"`
}

// SessionListResponse lists the account's live sessions.
type SessionListResponse struct {
	Sessions []SessionView `json:"sessions"`
}

// ActivityEntryView is the API projection of one activity entry.
type ActivityEntryView struct {
	Action     string    `json:"action"`
	SourceAddr string    `json:"source_addr,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	At         time.Time `json:"at"`
	Success    bool      `json:"success"`
}

// ActivityListResponse lists recent account activity, newest first.
type ActivityListResponse struct {
	Activity []ActivityEntryView `json:"activity"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports dependency health.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func requestMeta(c *gin.Context) usecase.RequestMeta {
	return usecase.RequestMeta{
		SourceAddr: c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	}
}
