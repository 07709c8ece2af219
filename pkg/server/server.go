package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/creditgate/pkg/config"
	"mercator-hq/creditgate/pkg/telemetry/health"
	"mercator-hq/creditgate/pkg/telemetry/logging"
	"mercator-hq/creditgate/pkg/telemetry/metrics"
)

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// Options configures the operations server.
type Options struct {
	// Address is the listen address, e.g. "127.0.0.1:9090".
	Address string

	// Metrics is served at MetricsPath when non-nil.
	Metrics     *metrics.Collector
	MetricsPath string

	// Checker backs the readiness endpoint.
	Checker *health.Checker
	Health  config.HealthConfig
	Version health.VersionInfo

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration

	Logger *slog.Logger
}

// FromConfig builds Options from the telemetry section.
func FromConfig(cfg *config.TelemetryConfig, collector *metrics.Collector, checker *health.Checker, version health.VersionInfo) Options {
	opts := Options{
		Address: cfg.Metrics.ListenAddress,
		Checker: checker,
		Health:  cfg.Health,
		Version: version,
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = collector
		opts.MetricsPath = cfg.Metrics.Path
	}
	return opts
}

// Server serves metrics, health and version endpoints.
type Server struct {
	opts       Options
	logger     *slog.Logger
	httpServer *http.Server

	mu       sync.RWMutex
	running  bool
	listener net.Listener
}

// New creates a Server. It does not start listening.
func New(opts Options) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.Checker == nil {
		opts.Checker = health.New(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		opts:   opts,
		logger: opts.Logger.With("component", "server"),
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.opts.Metrics != nil && s.opts.MetricsPath != "" {
		mux.Handle(s.opts.MetricsPath, s.opts.Metrics.Handler())
	}
	health.Register(mux, s.opts.Checker, s.opts.Health, s.opts.Version)

	var handler http.Handler = mux
	handler = loggingMiddleware(s.logger)(handler)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(s.logger)(handler)
	return handler
}

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		ln.Close()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting operations server", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err, ok := <-errCh:
		s.setStopped()
		if ok {
			return err
		}
		return nil
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpServer
	running := s.running
	s.mu.RUnlock()
	if !running || srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down operations server", "timeout", s.opts.ShutdownTimeout.String())
	err := srv.Shutdown(ctx)
	s.setStopped()
	if err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}

// Addr returns the bound address, or "" when not running.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) setStopped() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logging.FromContext(r.Context(), logger).Debug("request served",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func recoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic serving request", "path", r.URL.Path, "panic", err)
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
