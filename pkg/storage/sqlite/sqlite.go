// Package sqlite provides a SQLite storage backend for single-instance
// deployments that need persistence across restarts.
//
// Two drivers are supported: the pure-Go modernc.org/sqlite (driver name
// "sqlite", the default) and the cgo github.com/mattn/go-sqlite3 (driver
// name "sqlite3").
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo driver "sqlite3"
	moderncsqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"mercator-hq/creditgate/pkg/storage/sqlstore"
)

const (
	// DriverModernc is the pure-Go driver.
	DriverModernc = "sqlite"

	// DriverMattn is the cgo driver.
	DriverMattn = "sqlite3"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS usage_records (
		user_id TEXT NOT NULL,
		period_key TEXT NOT NULL,
		credits_used INTEGER NOT NULL DEFAULT 0,
		credits_limit INTEGER NOT NULL,
		warn_fifty INTEGER NOT NULL DEFAULT 0,
		warn_eighty INTEGER NOT NULL DEFAULT 0,
		warn_hundred INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, period_key),
		CHECK (credits_used >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS usage_transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		period_key TEXT NOT NULL,
		feature TEXT NOT NULL,
		credits_deducted INTEGER NOT NULL,
		cached INTEGER NOT NULL DEFAULT 0,
		request_id TEXT,
		input_size INTEGER,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_txn_period ON usage_transactions(user_id, period_key, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_txn_charged ON usage_transactions(user_id, feature, cached, created_at)`,
	`CREATE TABLE IF NOT EXISTS response_cache (
		user_id TEXT NOT NULL,
		feature TEXT NOT NULL,
		request_hash TEXT NOT NULL,
		input_data TEXT NOT NULL,
		result TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, feature, request_hash)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cache_expires ON response_cache(expires_at)`,
}

// Dialect is the SQLite dialect for sqlstore.
var Dialect = sqlstore.Dialect{
	Name:       "sqlite",
	Schema:     schema,
	IsConflict: isBusy,
}

// isBusy reports SQLITE_BUSY and SQLITE_LOCKED from either driver.
func isBusy(err error) bool {
	var me *moderncsqlite.Error
	if errors.As(err, &me) {
		code := me.Code() & 0xff
		return code == sqlitelib.SQLITE_BUSY || code == sqlitelib.SQLITE_LOCKED
	}
	// go-sqlite3 error types need cgo; match its messages instead.
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

// Config configures the SQLite backend.
type Config struct {
	// Path is the database file path.
	Path string

	// Driver is DriverModernc or DriverMattn. Default: DriverModernc.
	Driver string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration
}

// Store is a SQLite-backed ledger and cache store.
type Store struct {
	*sqlstore.Store

	db                 *sql.DB
	checkpointInterval time.Duration
	done               chan struct{}
	closeOnce          sync.Once
}

// Open opens (creating if needed) the database at cfg.Path and applies the
// schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverModernc
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}

	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	inner := sqlstore.New(db, Dialect)
	if err := inner.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &Store{
		Store:              inner,
		db:                 db,
		checkpointInterval: cfg.CheckpointInterval,
		done:               make(chan struct{}),
	}
	go s.checkpointLoop()
	return s, nil
}

func buildDSN(cfg Config) (string, error) {
	ms := cfg.BusyTimeout.Milliseconds()
	switch cfg.Driver {
	case DriverModernc:
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
			cfg.Path, ms), nil
	case DriverMattn:
		return fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
			cfg.Path, ms), nil
	}
	return "", fmt.Errorf("unsupported sqlite driver %q (must be %q or %q)", cfg.Driver, DriverModernc, DriverMattn)
}

// Name implements storage.Backend.
func (s *Store) Name() string {
	return "sqlite"
}

// Close stops the checkpoint loop and closes the database.
// Close is idempotent.
func (s *Store) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.done)
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		closeErr = s.db.Close()
	})
	return closeErr
}

func (s *Store) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}
