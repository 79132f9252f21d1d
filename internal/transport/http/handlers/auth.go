package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/planbeam/identity-service/internal/transport/http/middleware"
	"github.com/planbeam/identity-service/internal/usecase"
)

// AuthHandler exposes registration, login, refresh, and logout endpoints.
type AuthHandler struct {
	auth         *usecase.AuthService
	registration *usecase.RegistrationService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, registration *usecase.RegistrationService) *AuthHandler {
	return &AuthHandler{auth: auth, registration: registration}
}

// RegisterRoutes binds authentication routes. Per-route middleware (rate
// limits) is supplied by the caller keyed by route name.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, guards map[string]gin.HandlerFunc) {
	r.POST("/register", chain(guards["register"], h.register)...)
	r.POST("/login", chain(guards["login"], h.login)...)
	r.POST("/refresh", h.refresh)
	r.POST("/logout", middleware.RequireAuth(h.auth), h.logout)
	r.POST("/logout-all", middleware.RequireAuth(h.auth), h.logoutAll)
}

func chain(guard gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	if guard == nil {
		return []gin.HandlerFunc{handler}
	}
	return []gin.HandlerFunc{guard, handler}
}

func (h *AuthHandler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	result, err := h.registration.Register(c.Request.Context(), usecase.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Secret:      req.Password,
		DisplayName: req.DisplayName,
		Timezone:    req.Timezone,
	}, requestMeta(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrMissingFields, Status: http.StatusBadRequest, Message: "username, email, and password are required"},
			{Err: usecase.ErrWeakSecret, Status: http.StatusBadRequest, Message: "password does not meet requirements"},
			{Err: usecase.ErrDuplicateIdentity, Status: http.StatusConflict, Message: "username or email already registered"},
		}, http.StatusInternalServerError, "failed to register account")
		return
	}

	c.JSON(http.StatusCreated, RegisterResponse{
		Account: newAccountSummary(result.Account),
		Tokens:  newTokenPairResponse(result.Tokens),
	})
}

func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Identifier, req.Password, requestMeta(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
			{Err: usecase.ErrAccountLocked, Status: http.StatusForbidden, Message: "account temporarily locked"},
			{Err: usecase.ErrAccountInactive, Status: http.StatusForbidden, Message: "account is not active"},
		}, http.StatusInternalServerError, "login failed")
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Account: newAccountSummary(result.Account),
		Tokens:  newTokenPairResponse(result.Tokens),
	})
}

func (h *AuthHandler) refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid refresh payload"))
		return
	}

	tokens, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken, requestMeta(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidSession, Status: http.StatusUnauthorized, Message: "invalid session"},
		}, http.StatusInternalServerError, "refresh failed")
		return
	}

	c.JSON(http.StatusOK, newTokenPairResponse(*tokens))
}

func (h *AuthHandler) logout(c *gin.Context) {
	accountID, ok := middleware.CurrentAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid logout payload"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), accountID, req.RefreshToken, requestMeta(c)); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidSession, Status: http.StatusUnauthorized, Message: "invalid session"},
		}, http.StatusInternalServerError, "logout failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

func (h *AuthHandler) logoutAll(c *gin.Context) {
	accountID, ok := middleware.CurrentAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	removed, err := h.auth.LogoutAll(c.Request.Context(), accountID, requestMeta(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "logout failed"))
		return
	}

	c.JSON(http.StatusOK, LogoutAllResponse{
		Message:         "all sessions revoked",
		SessionsRevoked: removed,
	})
}
