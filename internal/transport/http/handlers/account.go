package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/planbeam/identity-service/internal/transport/http/middleware"
	"github.com/planbeam/identity-service/internal/usecase"
)

const unlockRequestedMessage = "if the identifier matches an account, an unlock token has been issued"

// AccountHandler exposes the authenticated account surface: session listing,
// activity, and the unlock-request endpoint.
type AccountHandler struct {
	auth      *usecase.AuthService
	sessions  *usecase.SessionService
	passwords *usecase.PasswordService
	isDev     bool
}

// NewAccountHandler constructs AccountHandler.
func NewAccountHandler(auth *usecase.AuthService, sessions *usecase.SessionService, passwords *usecase.PasswordService, isDev bool) *AccountHandler {
	return &AccountHandler{auth: auth, sessions: sessions, passwords: passwords, isDev: isDev}
}

// RegisterRoutes binds account routes under the given group.
func (h *AccountHandler) RegisterRoutes(r *gin.RouterGroup, guards map[string]gin.HandlerFunc) {
	r.GET("/sessions", middleware.RequireAuth(h.auth), h.listSessions)
	r.GET("/account/activity", middleware.RequireAuth(h.auth), h.listActivity)
	r.POST("/account/unlock-request", chain(guards["unlock"], h.unlockRequest)...)
}

func (h *AccountHandler) listSessions(c *gin.Context) {
	accountID, ok := middleware.CurrentAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessions, err := h.sessions.ListActive(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list sessions"))
		return
	}

	currentTokenID := currentRefreshTokenID(c)
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, SessionView{
			ID:         session.ID,
			IssuedAt:   session.IssuedAt,
			ExpiresAt:  session.ExpiresAt,
			SourceAddr: session.SourceAddr,
			UserAgent:  session.UserAgent,
			Current:    currentTokenID != "" && session.RefreshTokenID == currentTokenID,
		})
	}

	c.JSON(http.StatusOK, SessionListResponse{Sessions: views})
}

func (h *AccountHandler) listActivity(c *gin.Context) {
	accountID, ok := middleware.CurrentAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "limit must be between 1 and 500"))
			return
		}
		limit = parsed
	}

	entries, err := h.auth.ListActivity(c.Request.Context(), accountID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list activity"))
		return
	}

	views := make([]ActivityEntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, ActivityEntryView{
			Action:     entry.Action,
			SourceAddr: entry.SourceAddr,
			UserAgent:  entry.UserAgent,
			At:         entry.At,
			Success:    entry.Success,
		})
	}

	c.JSON(http.StatusOK, ActivityListResponse{Activity: views})
}

func (h *AccountHandler) unlockRequest(c *gin.Context) {
	var req UnlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid unlock request payload"))
		return
	}

	artifact, err := h.passwords.RequestUnlock(c.Request.Context(), req.Identifier, requestMeta(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to process request"))
		return
	}

	resp := ForgotPasswordResponse{Message: unlockRequestedMessage}
	if h.isDev && artifact != nil {
		token := artifact.Token
		expires := artifact.ExpiresAt.UTC().Format(time.RFC3339)
		resp.DevToken = &token
		resp.ExpiresAt = &expires
	}
	c.JSON(http.StatusOK, resp)
}

// currentRefreshTokenID is best-effort: the access token carries no refresh
// token ID, so the current session is only flagged when the client passes
// its refresh token ID via the X-Session-Token-ID header.
func currentRefreshTokenID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader("X-Session-Token-ID"))
}
