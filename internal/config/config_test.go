package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("JWT_TTL", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.JWTTTL != 7*24*time.Hour {
		t.Fatalf("expected default jwt ttl, got %s", cfg.JWTTTL)
	}
	if cfg.PlatformFeePercent != 10 {
		t.Fatalf("expected 10%% platform fee, got %d", cfg.PlatformFeePercent)
	}
	if cfg.EsewaProductCode != "EPAYTEST" {
		t.Fatalf("expected sandbox product code, got %s", cfg.EsewaProductCode)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected default origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("FRONTEND_URL", "https://app.example.com/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("ZEGO_APP_ID", "123456")
	t.Setenv("ZEGO_TOKEN_TTL", "30m")
	t.Setenv("PLATFORM_FEE_PERCENT", "12")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production env")
	}
	if cfg.FrontendURL != "https://app.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.FrontendURL)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected two origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.ZegoAppID != 123456 {
		t.Fatalf("expected zego app id override, got %d", cfg.ZegoAppID)
	}
	if cfg.ZegoTokenTTL != 30*time.Minute {
		t.Fatalf("expected zego ttl override, got %s", cfg.ZegoTokenTTL)
	}
	if cfg.PlatformFeePercent != 12 {
		t.Fatalf("expected fee override, got %d", cfg.PlatformFeePercent)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected rps override, got %v", cfg.RateLimitRPS)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{DefaultTimezone: "Asia/Kathmandu", PlatformFeePercent: 10}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"DATABASE_URL", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in error, got %v", want, err)
		}
	}

	cfg.DatabaseURL = "postgres://localhost/db"
	cfg.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cfg.DefaultTimezone = "Mars/Olympus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected timezone error")
	}
}
