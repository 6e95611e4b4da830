package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"COACH_API_BASE", "POLL_INTERVAL_MS", "STATE_BACKEND", "CORS_ALLOWED_ORIGINS", "API_RATE_LIMIT_RPS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.APIBase != "http://localhost:8000/api/v1" {
		t.Fatalf("api base = %q", cfg.APIBase)
	}
	if cfg.PollInterval != 3*time.Second {
		t.Fatalf("poll interval = %v, want 3s", cfg.PollInterval)
	}
	if cfg.StateBackend != BackendFile {
		t.Fatalf("state backend = %q, want file", cfg.StateBackend)
	}
	if cfg.StateFile == "" {
		t.Fatal("expected non-empty state file")
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("cors origins = %v", cfg.CORSAllowedOrigins)
	}
	if cfg.RateLimitRPS != 5 {
		t.Fatalf("rate limit = %v, want 5", cfg.RateLimitRPS)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("COACH_API_BASE", "http://pipeline.internal/api/v1/")
	t.Setenv("POLL_INTERVAL_MS", "250")
	t.Setenv("POLL_MAX_TICKS", "40")
	t.Setenv("STATE_BACKEND", "REDIS")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("SLOT_TIMEOUT_MS", "not-a-number")

	cfg := Load()
	if cfg.APIBase != "http://pipeline.internal/api/v1" {
		t.Fatalf("api base = %q, want trailing slash trimmed", cfg.APIBase)
	}
	if cfg.PollInterval != 250*time.Millisecond || cfg.PollMaxTicks != 40 {
		t.Fatalf("poll = %v/%d", cfg.PollInterval, cfg.PollMaxTicks)
	}
	if cfg.StateBackend != BackendRedis {
		t.Fatalf("state backend = %q, want redis", cfg.StateBackend)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "http://b.test" {
		t.Fatalf("cors origins = %v", cfg.CORSAllowedOrigins)
	}
	if cfg.SlotTimeout != 15*time.Second {
		t.Fatalf("slot timeout = %v, want fallback 15s", cfg.SlotTimeout)
	}
}

func TestLoadDotEnvKeepsProcessEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "COACH_API_BASE=http://from-file/api/v1\nLOG_LEVEL=debug\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("COACH_API_BASE", "http://from-env/api/v1")
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("LOG_LEVEL")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}

	cfg := Load()
	if cfg.APIBase != "http://from-env/api/v1" {
		t.Fatalf("api base = %q, process env should win", cfg.APIBase)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q, want debug from file", cfg.LogLevel)
	}
}
