package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("DEAD_LEAD_AFTER", "")
	t.Setenv("DEAD_LEAD_INACTIVE_AFTER", "")
	t.Setenv("AUTOMATION_SCHEDULER", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.DeadLeadAfter != 180*24*time.Hour {
		t.Fatalf("expected 180 day dead-lead age, got %s", cfg.DeadLeadAfter)
	}
	if cfg.DeadLeadInactiveAfter != 30*24*time.Hour {
		t.Fatalf("expected 30 day inactivity window, got %s", cfg.DeadLeadInactiveAfter)
	}
	if cfg.MaxRecommendedChannels != 3 {
		t.Fatalf("expected 3 recommended channels, got %d", cfg.MaxRecommendedChannels)
	}
	if cfg.SweepInterval != time.Minute {
		t.Fatalf("expected one minute sweep, got %s", cfg.SweepInterval)
	}
	if cfg.UseTemporal() {
		t.Fatalf("expected store scheduler by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("DEAD_LEAD_AFTER", "90d")
	t.Setenv("DEAD_LEAD_INACTIVE_AFTER", "72h")
	t.Setenv("MAX_RECOMMENDED_CHANNELS", "2")
	t.Setenv("AUTOMATION_SCHEDULER", " Temporal ")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("STEP_RETRY_BASE_DELAY", "30s")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.DeadLeadAfter != 90*24*time.Hour {
		t.Fatalf("expected day-suffixed override, got %s", cfg.DeadLeadAfter)
	}
	if cfg.DeadLeadInactiveAfter != 72*time.Hour {
		t.Fatalf("expected duration override, got %s", cfg.DeadLeadInactiveAfter)
	}
	if cfg.MaxRecommendedChannels != 2 {
		t.Fatalf("expected channel cap override, got %d", cfg.MaxRecommendedChannels)
	}
	if !cfg.UseTemporal() {
		t.Fatalf("expected temporal scheduler, got %q", cfg.AutomationScheduler)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.StepRetryBaseDelay != 30*time.Second {
		t.Fatalf("expected retry delay override, got %s", cfg.StepRetryBaseDelay)
	}
}

func TestGetEnvAsDurationInvalid(t *testing.T) {
	t.Setenv("BROKEN_DURATION", "xd")
	if got := getEnvAsDuration("BROKEN_DURATION", time.Hour); got != time.Hour {
		t.Fatalf("expected fallback, got %s", got)
	}
	t.Setenv("BROKEN_DURATION", "soon")
	if got := getEnvAsDuration("BROKEN_DURATION", time.Hour); got != time.Hour {
		t.Fatalf("expected fallback, got %s", got)
	}
}

func TestLoadRateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("RATE_LIMIT_BURST", "")
	cfg := Load()
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected 2.5 rps, got %v", cfg.RateLimitRPS)
	}
	if cfg.RateLimitBurst != 20 {
		t.Fatalf("expected default burst 20, got %d", cfg.RateLimitBurst)
	}

	t.Setenv("RATE_LIMIT_RPS", "fast")
	if got := Load().RateLimitRPS; got != 0 {
		t.Fatalf("expected invalid rps to disable limiting, got %v", got)
	}
}
