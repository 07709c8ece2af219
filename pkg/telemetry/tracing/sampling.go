package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	// SamplerAlways samples all traces.
	SamplerAlways = "always"

	// SamplerNever samples no traces.
	SamplerNever = "never"

	// SamplerRatio samples a fraction of root traces by trace id.
	SamplerRatio = "ratio"

	// SamplerParentRatio follows the parent's decision and samples a
	// fraction of root traces.
	SamplerParentRatio = "parent_ratio"
)

// createSampler builds the sampler for strategy.
//
// "always", "never" and "ratio" are wrapped in ParentBased, so a sampled
// caller span always yields sampled gate spans. "parent_ratio" is the same
// as "ratio"; it is accepted for configs written against other services.
func createSampler(strategy string, ratio float64) (sdktrace.Sampler, error) {
	var base sdktrace.Sampler

	switch strategy {
	case SamplerAlways:
		base = sdktrace.AlwaysSample()
	case SamplerNever:
		base = sdktrace.NeverSample()
	case SamplerRatio, SamplerParentRatio, "":
		if ratio < 0.0 || ratio > 1.0 {
			return nil, fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %f", ratio)
		}
		base = sdktrace.TraceIDRatioBased(ratio)
	default:
		return nil, fmt.Errorf("unknown sampler strategy: %s (valid: always, never, ratio, parent_ratio)", strategy)
	}

	return sdktrace.ParentBased(base), nil
}
