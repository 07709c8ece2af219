// Package metrics provides Prometheus metrics for creditgate.
//
// # Metrics Categories
//
//   - Credit metrics: authorize outcomes, settle latency, credits charged,
//     denials by reason, deduction retries, usage warnings and per-user usage
//   - Cache metrics: hits, misses, stores, backend errors and sweeps
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordDecision("meeting_summary", "ALLOWED_CACHED", elapsed)
//	http.Handle("/metrics", collector.Handler())
//
// The per-user usage gauge is bounded by a CardinalityLimiter; users beyond
// DefaultMaxTrackedUsers are not exported.
package metrics
