// Package tracing provides OpenTelemetry tracing for creditgate.
//
// Spans are exported over OTLP gRPC. The gate opens one span per Authorize
// and Settle call, as a child of whatever span the caller's context carries,
// and annotates it with the feature, outcome and credit figures.
//
// # Sampling Strategies
//
//   - always: sample every trace
//   - never: sample nothing
//   - ratio: sample a fraction of root traces (default 0.1)
//
// All strategies respect a sampled parent.
//
// # Usage
//
//	tracer, err := tracing.New(ctx, &cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "creditgate.authorize")
//	defer span.End()
package tracing
