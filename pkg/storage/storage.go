// Package storage selects and opens the configured ledger and cache backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"mercator-hq/creditgate/pkg/cache"
	"mercator-hq/creditgate/pkg/config"
	"mercator-hq/creditgate/pkg/ledger"
	"mercator-hq/creditgate/pkg/storage/memory"
	"mercator-hq/creditgate/pkg/storage/mongo"
	"mercator-hq/creditgate/pkg/storage/postgres"
	"mercator-hq/creditgate/pkg/storage/redis"
	"mercator-hq/creditgate/pkg/storage/sqlite"
)

// ErrUnsupportedBackend is returned for an unknown storage.backend value.
var ErrUnsupportedBackend = errors.New("unsupported storage backend")

// Backend is a storage implementation serving both the usage ledger and the
// response cache.
type Backend interface {
	ledger.Store
	cache.Store

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Name identifies the backend in logs, metrics and health checks.
	Name() string

	// Close releases connections. It is safe to call more than once.
	Close() error
}

// Open connects to the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "storage", "backend", cfg.Backend)

	var (
		b   Backend
		err error
	)
	switch cfg.Backend {
	case "", "memory":
		b = memory.New()
	case "sqlite":
		if err := ensureDir(cfg.SQLite.Path); err != nil {
			return nil, err
		}
		b, err = sqlite.Open(ctx, sqlite.Config{
			Path:               cfg.SQLite.Path,
			Driver:             cfg.SQLite.Driver,
			BusyTimeout:        cfg.SQLite.BusyTimeout,
			CheckpointInterval: cfg.SQLite.CheckpointInterval,
		})
	case "postgres":
		b, err = postgres.Open(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
	case "redis":
		b, err = redis.Open(ctx, redis.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	case "mongo":
		b, err = mongo.Open(ctx, mongo.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			TTLIndex: cfg.Mongo.TTLIndex,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Backend, err)
	}

	logger.Info("storage backend opened")
	return b, nil
}

func ensureDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory %q: %w", dir, err)
	}
	return nil
}
