package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/planbeam/identity-service/internal/usecase"
)

// RateLimit enforces the given policy per client IP. A counter store failure
// fails open: the guarded endpoints must stay reachable when the store is
// degraded.
func RateLimit(limiter *usecase.RateLimiter, policy usecase.RateLimitPolicy, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		if limiter == nil || policy.MaxAttempts <= 0 || policy.Window <= 0 {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		decision, err := limiter.Admit(c.Request.Context(), policy, ip)
		if err != nil {
			logger.Warn("rate limit check failed",
				zap.String("rule", policy.Name),
				zap.Error(err),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if decision.Allowed {
			c.Next()
			return
		}

		retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests,
			newErrorResponse(c, "too many requests"))
	}
}
