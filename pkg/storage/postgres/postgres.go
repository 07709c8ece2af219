// Package postgres provides a PostgreSQL storage backend for deployments
// where several creditgate instances share one ledger.
//
// Deductions rely on PostgreSQL re-evaluating the UPDATE predicate against
// the latest committed row version, so concurrent conditional updates on the
// same record serialize without explicit locks.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"mercator-hq/creditgate/pkg/storage/sqlstore"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS usage_records (
		user_id TEXT NOT NULL,
		period_key TEXT NOT NULL,
		credits_used BIGINT NOT NULL DEFAULT 0,
		credits_limit BIGINT NOT NULL,
		warn_fifty SMALLINT NOT NULL DEFAULT 0,
		warn_eighty SMALLINT NOT NULL DEFAULT 0,
		warn_hundred SMALLINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (user_id, period_key),
		CHECK (credits_used >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS usage_transactions (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		period_key TEXT NOT NULL,
		feature TEXT NOT NULL,
		credits_deducted BIGINT NOT NULL,
		cached SMALLINT NOT NULL DEFAULT 0,
		request_id TEXT,
		input_size BIGINT,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_txn_period ON usage_transactions(user_id, period_key, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_txn_charged ON usage_transactions(user_id, feature, cached, created_at)`,
	`CREATE TABLE IF NOT EXISTS response_cache (
		user_id TEXT NOT NULL,
		feature TEXT NOT NULL,
		request_hash TEXT NOT NULL,
		input_data TEXT NOT NULL,
		result TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		expires_at BIGINT NOT NULL,
		PRIMARY KEY (user_id, feature, request_hash)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cache_expires ON response_cache(expires_at)`,
}

// Retryable SQLSTATE codes.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// Dialect is the PostgreSQL dialect for sqlstore.
var Dialect = sqlstore.Dialect{
	Name:       "postgres",
	Schema:     schema,
	Numbered:   true,
	IsConflict: isRetryable,
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	}
	return false
}

// Config configures the PostgreSQL backend.
type Config struct {
	// DSN is a lib/pq connection string or URL.
	DSN string

	// MaxOpenConns caps the connection pool. Default: 10
	MaxOpenConns int

	// ConnMaxLifetime recycles connections. Default: 30 minutes
	ConnMaxLifetime time.Duration
}

// Store is a PostgreSQL-backed ledger and cache store.
type Store struct {
	*sqlstore.Store
	db *sql.DB
}

// Open connects to PostgreSQL, verifies connectivity and applies the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s, err := NewWithDB(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing handle and applies the schema.
func NewWithDB(ctx context.Context, db *sql.DB) (*Store, error) {
	inner := sqlstore.New(db, Dialect)
	if err := inner.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{Store: inner, db: db}, nil
}

// Name implements storage.Backend.
func (s *Store) Name() string {
	return "postgres"
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
