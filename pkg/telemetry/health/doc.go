// Package health provides liveness, readiness and version endpoints.
//
//   - liveness (/health): the process is running
//   - readiness (/ready): every registered check passed; 503 otherwise
//   - version (/version): build information
//
// The serve command registers one check per storage backend (its Ping) and
// one for the cache sweep scheduler.
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterPinger("storage", backend)
//	health.Register(mux, checker, cfg.Telemetry.Health, health.NewVersionInfo(v, c, b))
package health
