package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig is the root configuration consumed by the service.
type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Lockout   LockoutSettings   `mapstructure:"lockout"`
	Sessions  SessionSettings   `mapstructure:"sessions"`
	Password  PasswordSettings  `mapstructure:"password"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
}

type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

type JWTSettings struct {
	SigningSecret   string        `mapstructure:"signing_secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// LockoutSettings governs the failed-attempt state machine.
type LockoutSettings struct {
	Threshold int           `mapstructure:"threshold"`
	Duration  time.Duration `mapstructure:"duration"`
}

type SessionSettings struct {
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

type PasswordSettings struct {
	HistoryDepth  int           `mapstructure:"history_depth"`
	ResetTokenTTL time.Duration `mapstructure:"reset_token_ttl"`
	MinLength     int           `mapstructure:"min_length"`
	MinScore      int           `mapstructure:"min_score"`
	ActivityDepth int           `mapstructure:"activity_depth"`
}

// RateLimitPolicy pairs a max attempt count with a fixed window length.
type RateLimitPolicy struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Window      time.Duration `mapstructure:"window"`
}

// RateLimitSettings configures per-flow policies sharing one keying scheme
// (source address) and one bucket store.
type RateLimitSettings struct {
	Login         RateLimitPolicy `mapstructure:"login"`
	Register      RateLimitPolicy `mapstructure:"register"`
	PasswordReset RateLimitPolicy `mapstructure:"password_reset"`
	UnlockRequest RateLimitPolicy `mapstructure:"unlock_request"`
}

type TelemetrySettings struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	Namespace      string `mapstructure:"namespace"`
}

// Load reads configuration from the environment with IDS_ prefixed keys.
func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("IDS")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"jwt.signing_secret",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"lockout.threshold",
		"lockout.duration",
		"sessions.max_concurrent",
		"password.history_depth",
		"password.reset_token_ttl",
		"password.min_length",
		"password.min_score",
		"password.activity_depth",
		"rate_limit.login.max_attempts",
		"rate_limit.login.window",
		"rate_limit.register.max_attempts",
		"rate_limit.register.window",
		"rate_limit.password_reset.max_attempts",
		"rate_limit.password_reset.window",
		"rate_limit.unlock_request.max_attempts",
		"rate_limit.unlock_request.window",
		"telemetry.metrics_enabled",
		"telemetry.namespace",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations that cannot run safely.
func (c *AppConfig) Validate() error {
	if c.App.Env == "production" && c.JWT.SigningSecret == "" {
		return fmt.Errorf("jwt signing secret is required in production")
	}
	if c.Lockout.Threshold <= 0 {
		return fmt.Errorf("lockout threshold must be positive")
	}
	if c.Sessions.MaxConcurrent <= 0 {
		return fmt.Errorf("session cap must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "identity-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "identity")
	v.SetDefault("postgres.password", "identity_password")
	v.SetDefault("postgres.database", "identity")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "identity")

	v.SetDefault("jwt.signing_secret", "dev-only-signing-secret")
	v.SetDefault("jwt.access_token_ttl", "15m")
	v.SetDefault("jwt.refresh_token_ttl", "168h")

	v.SetDefault("lockout.threshold", 5)
	v.SetDefault("lockout.duration", "2h")

	v.SetDefault("sessions.max_concurrent", 5)

	v.SetDefault("password.history_depth", 5)
	v.SetDefault("password.reset_token_ttl", "30m")
	v.SetDefault("password.min_length", 8)
	v.SetDefault("password.min_score", 2)
	v.SetDefault("password.activity_depth", 100)

	v.SetDefault("rate_limit.login.max_attempts", 10)
	v.SetDefault("rate_limit.login.window", "15m")
	v.SetDefault("rate_limit.register.max_attempts", 5)
	v.SetDefault("rate_limit.register.window", "1h")
	v.SetDefault("rate_limit.password_reset.max_attempts", 3)
	v.SetDefault("rate_limit.password_reset.window", "15m")
	v.SetDefault("rate_limit.unlock_request.max_attempts", 3)
	v.SetDefault("rate_limit.unlock_request.window", "1h")

	v.SetDefault("telemetry.metrics_enabled", true)
	v.SetDefault("telemetry.namespace", "identity")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}
