package config

import "time"

// Default values for configuration fields.
const (
	// Credits defaults
	DefaultCreditLimit        = 1000
	DefaultPeriod             = "monthly"
	DefaultTimezone           = "UTC"
	DefaultMaxDeductRetries   = 5
	DefaultRetryBackoff       = 5 * time.Millisecond
	DefaultTransactionHistory = 50

	// Cache defaults
	DefaultCacheEnabled       = true
	DefaultCacheSweepSchedule = "*/15 * * * *"
	DefaultCacheLookupTimeout = 250 * time.Millisecond

	// Storage defaults
	DefaultStorageBackend          = "memory"
	DefaultStorageOperationTimeout = 2 * time.Second
	DefaultSQLitePath              = "data/creditgate.db"
	DefaultSQLiteDriver            = "sqlite"
	DefaultSQLiteBusyTimeout       = 5 * time.Second
	DefaultSQLiteCheckpoint        = 5 * time.Minute
	DefaultPostgresMaxOpenConns    = 10
	DefaultPostgresConnMaxLifetime = 30 * time.Minute
	DefaultRedisAddr               = "localhost:6379"
	DefaultRedisKeyPrefix          = "creditgate:"
	DefaultMongoURI                = "mongodb://localhost:27017"
	DefaultMongoDatabase           = "creditgate"

	// Telemetry defaults
	DefaultLoggingLevel         = "info"
	DefaultLoggingFormat        = "json"
	DefaultLoggingRedactPII     = true
	DefaultMetricsEnabled       = true
	DefaultMetricsListenAddress = "127.0.0.1:9090"
	DefaultMetricsPath          = "/metrics"
	DefaultMetricsNamespace     = "creditgate"
	DefaultTracingEndpoint      = "localhost:4317"
	DefaultTracingSampler       = "ratio"
	DefaultTracingSampleRatio   = 0.1
	DefaultTracingServiceName   = "creditgate"
	DefaultTracingInsecure      = true
	DefaultTracingExportTimeout = 10 * time.Second
	DefaultLivenessPath         = "/health"
	DefaultReadinessPath        = "/ready"
	DefaultVersionPath          = "/version"
	DefaultHealthCheckTimeout   = 5 * time.Second
)

// DefaultPlans returns the built-in plan table.
func DefaultPlans() map[string]int {
	return map[string]int{
		"free": 200,
		"pro":  1000,
		"team": 5000,
	}
}

// NewDefaultConfig returns a configuration with every default applied.
// Boolean fields that default to true are only set here, so YAML is decoded
// on top of this value rather than onto a zero Config.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	cfg.Cache.Enabled = DefaultCacheEnabled
	cfg.Telemetry.Logging.RedactPII = DefaultLoggingRedactPII
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Tracing.Insecure = DefaultTracingInsecure
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	// Credits defaults
	if cfg.Credits.DefaultLimit == 0 {
		cfg.Credits.DefaultLimit = DefaultCreditLimit
	}
	if cfg.Credits.Period == "" {
		cfg.Credits.Period = DefaultPeriod
	}
	if cfg.Credits.Timezone == "" {
		cfg.Credits.Timezone = DefaultTimezone
	}
	if cfg.Credits.MaxDeductRetries == 0 {
		cfg.Credits.MaxDeductRetries = DefaultMaxDeductRetries
	}
	if cfg.Credits.RetryBackoff == 0 {
		cfg.Credits.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.Credits.Plans == nil {
		cfg.Credits.Plans = DefaultPlans()
	}
	if cfg.Credits.TransactionHistory == 0 {
		cfg.Credits.TransactionHistory = DefaultTransactionHistory
	}

	// Cache defaults
	if cfg.Cache.SweepSchedule == "" {
		cfg.Cache.SweepSchedule = DefaultCacheSweepSchedule
	}
	if cfg.Cache.LookupTimeout == 0 {
		cfg.Cache.LookupTimeout = DefaultCacheLookupTimeout
	}

	applyStorageDefaults(&cfg.Storage)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultStorageBackend
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = DefaultStorageOperationTimeout
	}

	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = DefaultSQLitePath
	}
	if cfg.SQLite.Driver == "" {
		cfg.SQLite.Driver = DefaultSQLiteDriver
	}
	if cfg.SQLite.BusyTimeout == 0 {
		cfg.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.SQLite.CheckpointInterval == 0 {
		cfg.SQLite.CheckpointInterval = DefaultSQLiteCheckpoint
	}

	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = DefaultPostgresMaxOpenConns
	}
	if cfg.Postgres.ConnMaxLifetime == 0 {
		cfg.Postgres.ConnMaxLifetime = DefaultPostgresConnMaxLifetime
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	if cfg.Mongo.URI == "" {
		cfg.Mongo.URI = DefaultMongoURI
	}
	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = DefaultMongoDatabase
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}

	if cfg.Metrics.ListenAddress == "" {
		cfg.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}

	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Tracing.Sampler == "" {
		cfg.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Tracing.ExportTimeout == 0 {
		cfg.Tracing.ExportTimeout = DefaultTracingExportTimeout
	}

	if cfg.Health.LivenessPath == "" {
		cfg.Health.LivenessPath = DefaultLivenessPath
	}
	if cfg.Health.ReadinessPath == "" {
		cfg.Health.ReadinessPath = DefaultReadinessPath
	}
	if cfg.Health.VersionPath == "" {
		cfg.Health.VersionPath = DefaultVersionPath
	}
	if cfg.Health.CheckTimeout == 0 {
		cfg.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}
