// Package telemetry groups the observability packages used by creditgate.
//
//   - logging: slog construction, context fields and PII redaction
//   - metrics: Prometheus collectors for decisions, charges and the cache
//   - tracing: OpenTelemetry spans for authorize and settle, exported over OTLP
//   - health: liveness, readiness and version endpoints
//
// Every component accepts nil telemetry values, so the gate can run without
// metrics or tracing configured:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	tracer, err := tracing.New(ctx, &cfg.Telemetry.Tracing, version)
//	g, err := gate.New(gate.Config{Ledger: l, Metrics: collector, Tracer: tracer})
package telemetry
