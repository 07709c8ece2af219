package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper runs Cache.Sweep on a cron schedule.
type Sweeper struct {
	cache    *Cache
	schedule string
	cron     *cron.Cron
	onSweep  func(deleted int, err error)
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewSweeper creates a sweeper for cache. onSweep, if non-nil, is called
// after every run.
func NewSweeper(cache *Cache, schedule string, onSweep func(deleted int, err error)) *Sweeper {
	return &Sweeper{
		cache:    cache,
		schedule: schedule,
		cron:     cron.New(),
		onSweep:  onSweep,
		logger:   slog.Default().With("component", "cache.sweeper"),
	}
}

// Start schedules the sweep. An empty schedule disables it.
//
// Common schedules:
//   - "*/15 * * * *" - every 15 minutes
//   - "0 * * * *"    - hourly
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("sweep schedule not configured, skipping sweeper")
		return nil
	}
	if s.running {
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("cache sweeper started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	deleted, err := s.cache.Sweep(ctx)
	if s.onSweep != nil {
		s.onSweep(deleted, err)
	}
	if err != nil {
		s.logger.Error("cache sweep failed", "error", err)
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("cache sweep completed", "deleted_count", deleted)
	} else {
		s.logger.Debug("cache sweep completed, nothing expired")
	}
	return deleted, nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("cache sweeper stopped")
	}
}

// IsRunning reports whether the sweeper is scheduled.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled sweep time, or nil.
func (s *Sweeper) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
