package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/planbeam/identity-service/internal/infra/security"
	"github.com/planbeam/identity-service/internal/transport/http/middleware"
	"github.com/planbeam/identity-service/internal/usecase"
)

const resetRequestedMessage = "if the identifier matches an account, a reset token has been issued"

// PasswordHandler exposes the password lifecycle endpoints.
type PasswordHandler struct {
	passwords *usecase.PasswordService
	auth      *usecase.AuthService
	signer    *security.TokenSigner
	isDev     bool
}

// NewPasswordHandler constructs PasswordHandler. Dev mode returns reset
// tokens inline instead of relying on a delivery channel.
func NewPasswordHandler(passwords *usecase.PasswordService, auth *usecase.AuthService, signer *security.TokenSigner, isDev bool) *PasswordHandler {
	return &PasswordHandler{passwords: passwords, auth: auth, signer: signer, isDev: isDev}
}

// RegisterRoutes binds password routes under the given group.
func (h *PasswordHandler) RegisterRoutes(r *gin.RouterGroup, guards map[string]gin.HandlerFunc) {
	r.POST("/change", middleware.RequireAuth(h.auth), h.change)
	r.POST("/forgot", chain(guards["forgot"], h.forgot)...)
	r.POST("/reset", chain(guards["reset"], h.reset)...)
}

func (h *PasswordHandler) change(c *gin.Context) {
	accountID, ok := middleware.CurrentAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid change password payload"))
		return
	}

	input := usecase.ChangePasswordInput{
		AccountID:     accountID,
		CurrentSecret: req.CurrentPassword,
		NewSecret:     req.NewPassword,
	}
	// The caller's own session is spared from the revocation sweep when its
	// refresh token accompanies the request.
	if token := strings.TrimSpace(req.RefreshToken); token != "" {
		if claims, err := h.signer.Parse(token); err == nil && claims.AccountID == accountID {
			input.KeepRefreshTokenID = claims.ID
		}
	}

	if err := h.passwords.ChangePassword(c.Request.Context(), input, requestMeta(c)); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrCurrentSecretInvalid, Status: http.StatusUnauthorized, Message: "current password is incorrect"},
			{Err: usecase.ErrWeakSecret, Status: http.StatusBadRequest, Message: "password does not meet requirements"},
			{Err: usecase.ErrSecretReused, Status: http.StatusBadRequest, Message: "password was used recently"},
		}, http.StatusInternalServerError, "failed to change password")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password changed"})
}

func (h *PasswordHandler) forgot(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid forgot password payload"))
		return
	}

	artifact, err := h.passwords.ForgotPassword(c.Request.Context(), req.Identifier, requestMeta(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to process request"))
		return
	}

	// Same response shape whether or not the identifier matched.
	resp := ForgotPasswordResponse{Message: resetRequestedMessage}
	if h.isDev && artifact != nil {
		token := artifact.Token
		expires := artifact.ExpiresAt.UTC().Format(time.RFC3339)
		resp.DevToken = &token
		resp.ExpiresAt = &expires
	}
	c.JSON(http.StatusOK, resp)
}

func (h *PasswordHandler) reset(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset password payload"))
		return
	}

	err := h.passwords.ResetPassword(c.Request.Context(), req.Token, req.NewPassword, requestMeta(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrResetTokenInvalid, Status: http.StatusBadRequest, Message: "reset token is invalid or expired"},
			{Err: usecase.ErrWeakSecret, Status: http.StatusBadRequest, Message: "password does not meet requirements"},
			{Err: usecase.ErrSecretReused, Status: http.StatusBadRequest, Message: "password was used recently"},
		}, http.StatusInternalServerError, "failed to reset password")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password reset"})
}
