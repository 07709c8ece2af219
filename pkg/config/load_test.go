package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "creditgate.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
credits:
  default_limit: 300
  period: daily
  retry_backoff: 10ms
  plans:
    free: 100
    pro: 2000
  users:
    user-123: pro

cache:
  enabled: false
  sweep_schedule: "0 * * * *"

storage:
  backend: sqlite
  sqlite:
    path: ./test.db
    driver: sqlite3

telemetry:
  logging:
    level: debug
    format: text
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Credits.DefaultLimit != 300 {
		t.Errorf("expected default limit 300, got %d", cfg.Credits.DefaultLimit)
	}
	if cfg.Credits.Period != "daily" {
		t.Errorf("expected period daily, got %q", cfg.Credits.Period)
	}
	if cfg.Credits.RetryBackoff != 10*time.Millisecond {
		t.Errorf("expected retry backoff 10ms, got %v", cfg.Credits.RetryBackoff)
	}
	if len(cfg.Credits.Plans) != 2 || cfg.Credits.Plans["pro"] != 2000 {
		t.Errorf("expected file plans to replace defaults, got %v", cfg.Credits.Plans)
	}
	if cfg.Cache.Enabled {
		t.Error("expected cache to be disabled")
	}
	if cfg.Cache.SweepSchedule != "0 * * * *" {
		t.Errorf("expected sweep schedule from file, got %q", cfg.Cache.SweepSchedule)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.SQLite.Driver != "sqlite3" {
		t.Errorf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected logging level debug, got %q", cfg.Telemetry.Logging.Level)
	}

	// Defaults fill what the file leaves out.
	if cfg.Credits.MaxDeductRetries != DefaultMaxDeductRetries {
		t.Errorf("expected default retries, got %d", cfg.Credits.MaxDeductRetries)
	}
	if cfg.Storage.SQLite.BusyTimeout != DefaultSQLiteBusyTimeout {
		t.Errorf("expected default busy timeout, got %v", cfg.Storage.SQLite.BusyTimeout)
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("expected metrics enabled by default")
	}
}

func TestLoadConfig_EmptyFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("failed to load empty config: %v", err)
	}

	if cfg.Storage.Backend != DefaultStorageBackend {
		t.Errorf("expected backend %q, got %q", DefaultStorageBackend, cfg.Storage.Backend)
	}
	if !cfg.Cache.Enabled {
		t.Error("expected cache enabled by default")
	}
	if cfg.Credits.Plans["team"] != 5000 {
		t.Errorf("expected default plans, got %v", cfg.Credits.Plans)
	}
	if cfg.Credits.DefaultLimit != DefaultCreditLimit {
		t.Errorf("expected default limit %d, got %d", DefaultCreditLimit, cfg.Credits.DefaultLimit)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "malformed yaml",
			content: "credits: [unclosed",
			wantErr: "failed to parse",
		},
		{
			name:    "unknown field",
			content: "credits:\n  default_limits: 5\n",
			wantErr: "failed to parse",
		},
		{
			name:    "invalid backend",
			content: "storage:\n  backend: cassandra\n",
			wantErr: "storage.backend",
		},
		{
			name:    "bad duration",
			content: "cache:\n  lookup_timeout: soon\n",
			wantErr: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
credits:
  default_limit: 300
storage:
  backend: memory
`)

	t.Setenv("CREDITGATE_CREDITS_DEFAULT_LIMIT", "750")
	t.Setenv("CREDITGATE_STORAGE_BACKEND", "redis")
	t.Setenv("CREDITGATE_STORAGE_REDIS_ADDR", "cache.internal:6380")
	t.Setenv("CREDITGATE_CACHE_ENABLED", "false")
	t.Setenv("CREDITGATE_CACHE_LOOKUP_TIMEOUT", "100ms")
	t.Setenv("CREDITGATE_TELEMETRY_TRACING_SAMPLE_RATIO", "0.5")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Credits.DefaultLimit != 750 {
		t.Errorf("expected env limit 750, got %d", cfg.Credits.DefaultLimit)
	}
	if cfg.Storage.Backend != "redis" || cfg.Storage.Redis.Addr != "cache.internal:6380" {
		t.Errorf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Cache.Enabled {
		t.Error("expected env to disable cache")
	}
	if cfg.Cache.LookupTimeout != 100*time.Millisecond {
		t.Errorf("expected lookup timeout 100ms, got %v", cfg.Cache.LookupTimeout)
	}
	if cfg.Telemetry.Tracing.SampleRatio != 0.5 {
		t.Errorf("expected sample ratio 0.5, got %v", cfg.Telemetry.Tracing.SampleRatio)
	}
}

func TestLoadConfigWithEnvOverrides_NoFile(t *testing.T) {
	t.Setenv("CREDITGATE_CREDITS_PERIOD", "daily")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Credits.Period != "daily" {
		t.Errorf("expected period daily, got %q", cfg.Credits.Period)
	}
	if cfg.Storage.Backend != DefaultStorageBackend {
		t.Errorf("expected default backend, got %q", cfg.Storage.Backend)
	}
}

func TestLoadConfigWithEnvOverrides_MalformedValue(t *testing.T) {
	t.Setenv("CREDITGATE_CREDITS_DEFAULT_LIMIT", "lots")
	t.Setenv("CREDITGATE_CACHE_ENABLED", "maybe")

	_, err := LoadConfigWithEnvOverrides("")
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Errors) != 2 {
		t.Errorf("expected 2 errors, got %d: %v", len(verr.Errors), verr)
	}
	if !verr.HasField("CREDITGATE_CREDITS_DEFAULT_LIMIT") {
		t.Errorf("expected error for default limit override, got %v", verr)
	}
}

func TestLoadConfigWithEnvOverrides_EnvMakesConfigInvalid(t *testing.T) {
	t.Setenv("CREDITGATE_CREDITS_PERIOD", "weekly")

	_, err := LoadConfigWithEnvOverrides(writeConfig(t, ""))
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !verr.HasField("credits.period") {
		t.Errorf("expected credits.period error, got %v", verr)
	}
}
