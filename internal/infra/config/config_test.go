package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "identity-service" {
		t.Fatalf("unexpected app name %q", cfg.App.Name)
	}
	if cfg.App.Port != 8080 {
		t.Fatalf("unexpected app port %d", cfg.App.Port)
	}
	if cfg.Lockout.Threshold != 5 || cfg.Lockout.Duration != 2*time.Hour {
		t.Fatalf("unexpected lockout defaults %+v", cfg.Lockout)
	}
	if cfg.Sessions.MaxConcurrent != 5 {
		t.Fatalf("unexpected session cap %d", cfg.Sessions.MaxConcurrent)
	}
	if cfg.Password.HistoryDepth != 5 || cfg.Password.ResetTokenTTL != 30*time.Minute {
		t.Fatalf("unexpected password defaults %+v", cfg.Password)
	}
	if cfg.JWT.AccessTokenTTL != 15*time.Minute || cfg.JWT.RefreshTokenTTL != 168*time.Hour {
		t.Fatalf("unexpected token TTL defaults %+v", cfg.JWT)
	}
	if cfg.RateLimit.Login.MaxAttempts != 10 || cfg.RateLimit.Login.Window != 15*time.Minute {
		t.Fatalf("unexpected login rate limit defaults %+v", cfg.RateLimit.Login)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("IDS_APP_PORT", "9191")
	t.Setenv("IDS_APP_ENV", "production")
	t.Setenv("IDS_JWT_SIGNING_SECRET", "prod-secret")
	t.Setenv("IDS_LOCKOUT_THRESHOLD", "3")
	t.Setenv("IDS_LOCKOUT_DURATION", "45m")
	t.Setenv("IDS_RATE_LIMIT_LOGIN_MAX_ATTEMPTS", "20")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Port != 9191 {
		t.Fatalf("expected port override, got %d", cfg.App.Port)
	}
	if cfg.App.Env != "production" {
		t.Fatalf("expected env override, got %q", cfg.App.Env)
	}
	if cfg.Lockout.Threshold != 3 || cfg.Lockout.Duration != 45*time.Minute {
		t.Fatalf("expected lockout overrides, got %+v", cfg.Lockout)
	}
	if cfg.RateLimit.Login.MaxAttempts != 20 {
		t.Fatalf("expected rate limit override, got %d", cfg.RateLimit.Login.MaxAttempts)
	}
}

func TestValidate(t *testing.T) {
	valid := func() AppConfig {
		return AppConfig{
			App:      AppSettings{Env: "development"},
			JWT:      JWTSettings{SigningSecret: "secret"},
			Lockout:  LockoutSettings{Threshold: 5, Duration: 2 * time.Hour},
			Sessions: SessionSettings{MaxConcurrent: 5},
		}
	}

	cfg := valid()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg = valid()
	cfg.App.Env = "production"
	cfg.JWT.SigningSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for empty production signing secret")
	}

	cfg = valid()
	cfg.Lockout.Threshold = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero lockout threshold")
	}

	cfg = valid()
	cfg.Sessions.MaxConcurrent = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for negative session cap")
	}
}
