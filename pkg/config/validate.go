package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "storage.backend").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// HasField reports whether any error refers to field.
func (e ValidationError) HasField(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateCredits(&cfg.Credits)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateCredits(cfg *CreditsConfig) []FieldError {
	var errs []FieldError

	if cfg.DefaultLimit < 0 {
		errs = append(errs, FieldError{
			Field:   "credits.default_limit",
			Message: "default limit must be non-negative",
		})
	}

	switch cfg.Period {
	case "monthly", "daily":
	default:
		errs = append(errs, FieldError{
			Field:   "credits.period",
			Message: fmt.Sprintf("invalid period %q (must be monthly or daily)", cfg.Period),
		})
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		errs = append(errs, FieldError{
			Field:   "credits.timezone",
			Message: fmt.Sprintf("unknown timezone %q", cfg.Timezone),
		})
	}

	if cfg.MaxDeductRetries < 1 {
		errs = append(errs, FieldError{
			Field:   "credits.max_deduct_retries",
			Message: "max deduct retries must be at least 1",
		})
	}
	if cfg.RetryBackoff < 0 {
		errs = append(errs, FieldError{
			Field:   "credits.retry_backoff",
			Message: "retry backoff must be non-negative",
		})
	}
	if cfg.TransactionHistory < 0 {
		errs = append(errs, FieldError{
			Field:   "credits.transaction_history",
			Message: "transaction history must be non-negative",
		})
	}

	for plan, limit := range cfg.Plans {
		if plan == "" {
			errs = append(errs, FieldError{
				Field:   "credits.plans",
				Message: "plan name cannot be empty",
			})
		}
		if limit < 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("credits.plans.%s", plan),
				Message: "plan limit must be non-negative",
			})
		}
	}

	for user, plan := range cfg.Users {
		if _, ok := cfg.Plans[plan]; !ok {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("credits.users.%s", user),
				Message: fmt.Sprintf("unknown plan %q", plan),
			})
		}
	}

	return errs
}

func validateCache(cfg *CacheConfig) []FieldError {
	var errs []FieldError

	if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "cache.sweep_schedule",
			Message: fmt.Sprintf("invalid cron expression: %v", err),
		})
	}
	if cfg.LookupTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "cache.lookup_timeout",
			Message: "lookup timeout must be non-negative",
		})
	}

	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	if cfg.OperationTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "storage.operation_timeout",
			Message: "operation timeout must be non-negative",
		})
	}

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.path",
				Message: "path is required for sqlite backend",
			})
		}
		if cfg.SQLite.Driver != "sqlite" && cfg.SQLite.Driver != "sqlite3" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.driver",
				Message: fmt.Sprintf("invalid driver %q (must be sqlite or sqlite3)", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.busy_timeout",
				Message: "busy timeout must be non-negative",
			})
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			errs = append(errs, FieldError{
				Field:   "storage.postgres.dsn",
				Message: "dsn is required for postgres backend",
			})
		}
		if cfg.Postgres.MaxOpenConns < 1 {
			errs = append(errs, FieldError{
				Field:   "storage.postgres.max_open_conns",
				Message: "max open connections must be at least 1",
			})
		}
	case "redis":
		if _, _, err := net.SplitHostPort(cfg.Redis.Addr); err != nil {
			errs = append(errs, FieldError{
				Field:   "storage.redis.addr",
				Message: fmt.Sprintf("invalid address %q: must be host:port", cfg.Redis.Addr),
			})
		}
		if cfg.Redis.DB < 0 {
			errs = append(errs, FieldError{
				Field:   "storage.redis.db",
				Message: "db must be non-negative",
			})
		}
	case "mongo":
		if !strings.HasPrefix(cfg.Mongo.URI, "mongodb://") && !strings.HasPrefix(cfg.Mongo.URI, "mongodb+srv://") {
			errs = append(errs, FieldError{
				Field:   "storage.mongo.uri",
				Message: "uri must start with mongodb:// or mongodb+srv://",
			})
		}
		if cfg.Mongo.Database == "" {
			errs = append(errs, FieldError{
				Field:   "storage.mongo.database",
				Message: "database is required for mongo backend",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend %q (must be memory, sqlite, postgres, redis or mongo)", cfg.Backend),
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q", cfg.Logging.Level),
		})
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json or text)", cfg.Logging.Format),
		})
	}
	for i, p := range cfg.Logging.RedactPatterns {
		if p.Name == "" || p.Pattern == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d]", i),
				Message: "name and pattern are required",
			})
		}
	}

	if cfg.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Metrics.ListenAddress); err != nil {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.listen_address",
				Message: fmt.Sprintf("invalid address %q: must be host:port", cfg.Metrics.ListenAddress),
			})
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: "path must start with /",
			})
		}
	}

	if cfg.Tracing.Enabled {
		switch cfg.Tracing.Sampler {
		case "always", "never", "ratio", "parent_ratio":
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q", cfg.Tracing.Sampler),
			})
		}
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "endpoint is required when tracing is enabled",
			})
		}
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	for field, path := range map[string]string{
		"telemetry.health.liveness_path":  cfg.Health.LivenessPath,
		"telemetry.health.readiness_path": cfg.Health.ReadinessPath,
		"telemetry.health.version_path":   cfg.Health.VersionPath,
	} {
		if !strings.HasPrefix(path, "/") {
			errs = append(errs, FieldError{Field: field, Message: "path must start with /"})
		}
	}

	return errs
}
