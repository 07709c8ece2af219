package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce is the quiet period before a changed file is reloaded.
const DefaultWatchDebounce = 100 * time.Millisecond

// Watcher reloads the configuration file when it changes on disk.
//
// The parent directory is watched rather than the file so that editors and
// config management tools that replace the file by rename are picked up.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload func(*Config)
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for path. onReload receives every successfully
// loaded and validated configuration; invalid files are logged and skipped.
func NewWatcher(path string, debounce time.Duration, onReload func(*Config), logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	if onReload == nil {
		return nil, fmt.Errorf("reload callback cannot be nil")
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		debounce: debounce,
		onReload: onReload,
		watcher:  w,
		logger:   logger.With("component", "config.watcher"),
	}, nil
}

// Watch processes file events until ctx is cancelled. It closes the
// underlying fsnotify watcher on return.
func (w *Watcher) Watch(ctx context.Context) error {
	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		w.watcher.Close()
	}()

	w.logger.Info("config watcher started", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("config file event", "op", event.Op.String())
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}

// schedule restarts the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := ReloadConfig(w.path)
	if err != nil {
		w.logger.Error("config reload failed, keeping previous configuration", "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	w.onReload(cfg)
}
