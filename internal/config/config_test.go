package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "HOSPITAL_TIMEZONE", "QUEUE_MINUTES_PER_PATIENT",
		"JWT_EXPIRES_IN", "NO_SHOW_SWEEP_ENABLED", "REMINDER_CRON", "CORS_ALLOWED_ORIGINS", "EMAIL_PROVIDER", "NOTIFY_TIMEOUT"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.QueueMinutesPerPatient != 15 {
		t.Fatalf("expected 15 minutes per patient, got %d", cfg.QueueMinutesPerPatient)
	}
	if cfg.QueueScopeTTL != 48*time.Hour {
		t.Fatalf("expected 48h scope ttl, got %s", cfg.QueueScopeTTL)
	}
	if cfg.JWTExpiresIn != 15*time.Minute || cfg.JWTRefreshIn != 168*time.Hour {
		t.Fatalf("unexpected token lifetimes %s / %s", cfg.JWTExpiresIn, cfg.JWTRefreshIn)
	}
	if cfg.NoShowSweepEnabled {
		t.Fatalf("expected no-show sweeper disabled by default")
	}
	if cfg.ReminderCron != "0 18 * * *" {
		t.Fatalf("expected default reminder cron, got %s", cfg.ReminderCron)
	}
	if cfg.NotifyTimeout != 15*time.Second {
		t.Fatalf("expected 15s notify timeout, got %s", cfg.NotifyTimeout)
	}
	if cfg.EmailProvider != "stub" {
		t.Fatalf("expected stub email provider, got %s", cfg.EmailProvider)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected default origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("HOSPITAL_TIMEZONE", "America/New_York")
	t.Setenv("QUEUE_MINUTES_PER_PATIENT", "20")
	t.Setenv("NO_SHOW_SWEEP_ENABLED", "true")
	t.Setenv("NO_SHOW_GRACE", "90m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("EMAIL_PROVIDER", " SES ")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.QueueMinutesPerPatient != 20 {
		t.Fatalf("expected minutes override, got %d", cfg.QueueMinutesPerPatient)
	}
	if !cfg.NoShowSweepEnabled || cfg.NoShowGrace != 90*time.Minute {
		t.Fatalf("expected sweeper overrides, got %v %s", cfg.NoShowSweepEnabled, cfg.NoShowGrace)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected rps override, got %v", cfg.RateLimitRPS)
	}
	if cfg.EmailProvider != "ses" {
		t.Fatalf("expected normalized provider, got %q", cfg.EmailProvider)
	}
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	if loc.String() != "America/New_York" {
		t.Fatalf("unexpected location %s", loc)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{HospitalTimezone: "UTC", EmailProvider: "stub", JWTSecret: "a", JWTRefreshSecret: "b"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cfg = &Config{Env: "production", HospitalTimezone: "Mars/Olympus", EmailProvider: "pigeon", JWTSecret: "same", JWTRefreshSecret: "same"}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"must differ", "HOSPITAL_TIMEZONE", "DATABASE_URL", "EMAIL_PROVIDER"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}
