package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "CREDITGATE_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values and validates the result. Environment variables
// are not consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides named CREDITGATE_SECTION_FIELD (for example
// CREDITGATE_STORAGE_BACKEND). An empty path starts from defaults.
//
// The loading sequence is:
// 1. Start from defaults
// 2. Decode YAML from file
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if path != "" {
		var err error
		if cfg, err = readFile(path); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults. Unknown keys are rejected.
// It does not validate.
func Parse(data []byte) (*Config, error) {
	cfg := NewDefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// applyEnvOverrides applies CREDITGATE_* environment variables. A variable
// that is set but malformed is an error.
func applyEnvOverrides(cfg *Config) error {
	e := &envReader{}

	// Credits overrides
	e.int("CREDITS_DEFAULT_LIMIT", &cfg.Credits.DefaultLimit)
	e.string("CREDITS_PERIOD", &cfg.Credits.Period)
	e.string("CREDITS_TIMEZONE", &cfg.Credits.Timezone)
	e.int("CREDITS_MAX_DEDUCT_RETRIES", &cfg.Credits.MaxDeductRetries)
	e.duration("CREDITS_RETRY_BACKOFF", &cfg.Credits.RetryBackoff)
	e.int("CREDITS_TRANSACTION_HISTORY", &cfg.Credits.TransactionHistory)

	// Cache overrides
	e.bool("CACHE_ENABLED", &cfg.Cache.Enabled)
	e.string("CACHE_SWEEP_SCHEDULE", &cfg.Cache.SweepSchedule)
	e.duration("CACHE_LOOKUP_TIMEOUT", &cfg.Cache.LookupTimeout)

	// Storage overrides
	e.string("STORAGE_BACKEND", &cfg.Storage.Backend)
	e.duration("STORAGE_OPERATION_TIMEOUT", &cfg.Storage.OperationTimeout)
	e.string("STORAGE_SQLITE_PATH", &cfg.Storage.SQLite.Path)
	e.string("STORAGE_SQLITE_DRIVER", &cfg.Storage.SQLite.Driver)
	e.duration("STORAGE_SQLITE_BUSY_TIMEOUT", &cfg.Storage.SQLite.BusyTimeout)
	e.string("STORAGE_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)
	e.int("STORAGE_POSTGRES_MAX_OPEN_CONNS", &cfg.Storage.Postgres.MaxOpenConns)
	e.string("STORAGE_REDIS_ADDR", &cfg.Storage.Redis.Addr)
	e.string("STORAGE_REDIS_PASSWORD", &cfg.Storage.Redis.Password)
	e.int("STORAGE_REDIS_DB", &cfg.Storage.Redis.DB)
	e.string("STORAGE_REDIS_KEY_PREFIX", &cfg.Storage.Redis.KeyPrefix)
	e.string("STORAGE_MONGO_URI", &cfg.Storage.Mongo.URI)
	e.string("STORAGE_MONGO_DATABASE", &cfg.Storage.Mongo.Database)
	e.bool("STORAGE_MONGO_TTL_INDEX", &cfg.Storage.Mongo.TTLIndex)

	// Telemetry overrides
	e.string("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	e.string("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	e.bool("TELEMETRY_LOGGING_REDACT_PII", &cfg.Telemetry.Logging.RedactPII)
	e.bool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	e.string("TELEMETRY_METRICS_LISTEN_ADDRESS", &cfg.Telemetry.Metrics.ListenAddress)
	e.string("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	e.bool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	e.string("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	e.string("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
	e.float("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)
	e.string("TELEMETRY_TRACING_SERVICE_NAME", &cfg.Telemetry.Tracing.ServiceName)
	e.bool("TELEMETRY_TRACING_INSECURE", &cfg.Telemetry.Tracing.Insecure)

	if len(e.errs) > 0 {
		return ValidationError{Errors: e.errs}
	}
	return nil
}

// envReader collects malformed overrides instead of failing on the first.
type envReader struct {
	errs []FieldError
}

func (e *envReader) lookup(name string) (string, bool) {
	val, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func (e *envReader) fail(name, val string, err error) {
	e.errs = append(e.errs, FieldError{
		Field:   EnvPrefix + name,
		Message: fmt.Sprintf("invalid value %q: %v", val, err),
	})
}

func (e *envReader) string(name string, dst *string) {
	if val, ok := e.lookup(name); ok {
		*dst = val
	}
}

func (e *envReader) int(name string, dst *int) {
	val, ok := e.lookup(name)
	if !ok {
		return
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		e.fail(name, val, err)
		return
	}
	*dst = i
}

func (e *envReader) bool(name string, dst *bool) {
	val, ok := e.lookup(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		e.fail(name, val, err)
		return
	}
	*dst = b
}

func (e *envReader) float(name string, dst *float64) {
	val, ok := e.lookup(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		e.fail(name, val, err)
		return
	}
	*dst = f
}

func (e *envReader) duration(name string, dst *time.Duration) {
	val, ok := e.lookup(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		e.fail(name, val, err)
		return
	}
	*dst = d
}
