// Package server provides the operations HTTP server run by
// "creditgate serve".
//
// Routes:
//
//   - GET /metrics - Prometheus metrics (when metrics are enabled)
//   - GET /health - liveness probe
//   - GET /ready - readiness probe over the registered health checks
//   - GET /version - build information
//
// Paths come from the telemetry configuration. The server does not expose
// the gate itself; callers embed pkg/gate in their own request handlers.
//
//	srv := server.New(server.FromConfig(&cfg.Telemetry, collector, checker, version))
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//
// Start blocks until ctx is cancelled and then shuts down gracefully.
package server
