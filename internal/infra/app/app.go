package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/planbeam/identity-service/internal/core/port"
	"github.com/planbeam/identity-service/internal/infra/config"
	"github.com/planbeam/identity-service/internal/infra/database"
	kafkainfra "github.com/planbeam/identity-service/internal/infra/kafka"
	"github.com/planbeam/identity-service/internal/infra/logger"
	redisinfra "github.com/planbeam/identity-service/internal/infra/redis"
	"github.com/planbeam/identity-service/internal/infra/security"
	"github.com/planbeam/identity-service/internal/infra/telemetry"
	postgresrepo "github.com/planbeam/identity-service/internal/repository/postgres"
	redisrepo "github.com/planbeam/identity-service/internal/repository/redis"
	"github.com/planbeam/identity-service/internal/transport/http/middleware"
	"github.com/planbeam/identity-service/internal/transport/http/routes"
	"github.com/planbeam/identity-service/internal/usecase"
)

// Application owns the wired service graph and the HTTP server lifecycle.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
}

// New wires the full dependency graph from configuration.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	signer, err := security.NewTokenSigner(cfg.JWT.SigningSecret, cfg.App.Name, cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init token signer: %w", err)
	}
	hasher := security.NewHasher(security.DefaultArgon2Config())
	validator := security.DefaultPasswordValidator(cfg.Password.MinLength, cfg.Password.MinScore)

	repos := postgresrepo.NewRepositories(pool)

	var producer *kafkainfra.Producer
	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App.Name, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	var authMetrics *telemetry.AuthMetrics
	var httpMetrics *middleware.HTTPMetrics
	if cfg.Telemetry.MetricsEnabled {
		authMetrics, err = telemetry.NewAuthMetrics(cfg.Telemetry.Namespace, prometheus.DefaultRegisterer)
		if err != nil {
			log.Warn("failed to init auth metrics", zap.Error(err))
		}
		httpMetrics, err = middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{
			Namespace: cfg.Telemetry.Namespace,
		})
		if err != nil {
			log.Warn("failed to init http metrics", zap.Error(err))
		}
	}

	lockout := usecase.NewLockoutGuard(repos.Accounts, eventPublisher, cfg.Lockout.Threshold, cfg.Lockout.Duration, log).
		WithMetrics(authMetrics)
	sessionService := usecase.NewSessionService(repos.Sessions, eventPublisher, cfg.Sessions.MaxConcurrent, log).
		WithMetrics(authMetrics)
	authService := usecase.NewAuthService(repos.Accounts, sessionService, lockout, hasher, signer, eventPublisher, cfg.Password.ActivityDepth, log).
		WithMetrics(authMetrics)
	registrationService := usecase.NewRegistrationService(repos.Accounts, sessionService, hasher, validator, signer, eventPublisher, cfg.Password.ActivityDepth, log).
		WithMetrics(authMetrics)
	passwordService := usecase.NewPasswordService(repos.Accounts, sessionService, lockout, hasher, validator, eventPublisher,
		cfg.Password.HistoryDepth, cfg.Password.ResetTokenTTL, cfg.Password.ActivityDepth, log)

	rateLimitStore := redisrepo.NewRateLimitStore(redisClient.Client(), "identity:rate-limit")
	rateLimiter := usecase.NewRateLimiter(rateLimitStore, log).WithMetrics(authMetrics)

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		TokenSigner: signer,
		HTTPMetrics: httpMetrics,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Auth:         authService,
			Registration: registrationService,
			Passwords:    passwordService,
			Sessions:     sessionService,
			RateLimiter:  rateLimiter,
		},
	})

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting identity API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
