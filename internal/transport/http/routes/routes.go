package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/planbeam/identity-service/internal/infra/config"
	"github.com/planbeam/identity-service/internal/infra/security"
	"github.com/planbeam/identity-service/internal/transport/http/handlers"
	"github.com/planbeam/identity-service/internal/transport/http/middleware"
	"github.com/planbeam/identity-service/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth         *usecase.AuthService
	Registration *usecase.RegistrationService
	Passwords    *usecase.PasswordService
	Sessions     *usecase.SessionService
	RateLimiter  *usecase.RateLimiter
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Services    ServiceSet
	TokenSigner *security.TokenSigner
	HTTPMetrics *middleware.HTTPMetrics
	Database    DatabaseChecker
	Cache       CacheChecker
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Handler())
	}

	checks := make(map[string]handlers.ReadinessCheck, 2)
	if deps.Database != nil {
		checks["database"] = deps.Database.Ping
	}
	if deps.Cache != nil {
		checks["redis"] = deps.Cache.HealthCheck
	}
	healthHandler := handlers.NewHealthHandler(checks)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	isDev := deps.Config.App.Env == "development"
	guards := buildGuards(deps)

	api := r.Group("/api/v1")
	{
		authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Services.Registration)
		authHandler.RegisterRoutes(api.Group("/auth"), guards)

		passwordHandler := handlers.NewPasswordHandler(deps.Services.Passwords, deps.Services.Auth, deps.TokenSigner, isDev)
		passwordHandler.RegisterRoutes(api.Group("/password"), guards)

		accountHandler := handlers.NewAccountHandler(deps.Services.Auth, deps.Services.Sessions, deps.Services.Passwords, isDev)
		accountHandler.RegisterRoutes(api, guards)
	}

	return r
}

// buildGuards maps route names to their rate limit middleware.
func buildGuards(deps Dependencies) map[string]gin.HandlerFunc {
	limiter := deps.Services.RateLimiter
	if limiter == nil {
		return nil
	}

	cfg := deps.Config.RateLimit
	policies := map[string]usecase.RateLimitPolicy{
		"login":    {Name: "login", MaxAttempts: cfg.Login.MaxAttempts, Window: cfg.Login.Window},
		"register": {Name: "register", MaxAttempts: cfg.Register.MaxAttempts, Window: cfg.Register.Window},
		"forgot":   {Name: "password_reset", MaxAttempts: cfg.PasswordReset.MaxAttempts, Window: cfg.PasswordReset.Window},
		"reset":    {Name: "password_reset", MaxAttempts: cfg.PasswordReset.MaxAttempts, Window: cfg.PasswordReset.Window},
		"unlock":   {Name: "unlock_request", MaxAttempts: cfg.UnlockRequest.MaxAttempts, Window: cfg.UnlockRequest.Window},
	}

	guards := make(map[string]gin.HandlerFunc, len(policies))
	for name, policy := range policies {
		guards[name] = middleware.RateLimit(limiter, policy, deps.Logger)
	}
	return guards
}
