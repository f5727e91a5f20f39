package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.SessionTTL != 2*time.Hour {
		t.Fatalf("SessionTTL = %v, want 2h", cfg.SessionTTL)
	}
	if cfg.DifyMode != "auto" {
		t.Fatalf("DifyMode = %q, want auto", cfg.DifyMode)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("DIFY_MAX_RETRIES", "5")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("SessionTTL = %v, want 30m", cfg.SessionTTL)
	}
	if cfg.DifyMaxRetries != 5 {
		t.Fatalf("DifyMaxRetries = %d, want 5", cfg.DifyMaxRetries)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatal("AllowAnyOrigin = false, want true")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("SESSION_TTL", "5s")
	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted SESSION_TTL below the minimum")
	}
}
