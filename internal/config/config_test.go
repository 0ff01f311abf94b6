package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.GenerateMaxAttempts != 3 {
		t.Errorf("GenerateMaxAttempts = %d, want 3", cfg.GenerateMaxAttempts)
	}
	if cfg.GenerateBaseDelay != 500*time.Millisecond {
		t.Errorf("GenerateBaseDelay = %v, want 500ms", cfg.GenerateBaseDelay)
	}
	if cfg.GeminiModel == "" {
		t.Error("GeminiModel should have a default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("GENERATE_MAX_ATTEMPTS", "5")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("GENERATE_BASE_DELAY", "250ms")

	cfg := Load()

	if cfg.Port != "9999" {
		t.Errorf("Port = %q, want 9999", cfg.Port)
	}
	if cfg.GenerateMaxAttempts != 5 {
		t.Errorf("GenerateMaxAttempts = %d, want 5", cfg.GenerateMaxAttempts)
	}
	if !cfg.RedisTLS {
		t.Error("RedisTLS should be true")
	}
	if cfg.GenerateBaseDelay != 250*time.Millisecond {
		t.Errorf("GenerateBaseDelay = %v, want 250ms", cfg.GenerateBaseDelay)
	}
}

func TestLoadCORSOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.clientela.ai, https://admin.clientela.ai,")

	cfg := Load()

	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("CORSAllowedOrigins = %v, want 2 entries", cfg.CORSAllowedOrigins)
	}
	if cfg.CORSAllowedOrigins[1] != "https://admin.clientela.ai" {
		t.Errorf("second origin = %q", cfg.CORSAllowedOrigins[1])
	}
}
