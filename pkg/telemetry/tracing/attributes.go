package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys. Custom keys live under "creditgate.*".
const (
	AttrUserID    = "creditgate.user_id"
	AttrFeature   = "creditgate.feature"
	AttrOutcome   = "creditgate.outcome"
	AttrReason    = "creditgate.denial.reason"
	AttrCredits   = "creditgate.credits"
	AttrRemaining = "creditgate.credits.remaining"
	AttrPeriod    = "creditgate.period"
	AttrAttempts  = "creditgate.deduct.attempts"
	AttrWarning   = "creditgate.warning"
	AttrCacheHit  = "creditgate.cache.hit"
	AttrCacheKey  = "creditgate.cache.request_hash"
	AttrBackend   = "db.system"
)

// RequestAttributes returns the attributes common to every gate span.
func RequestAttributes(userID, feature string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrUserID, userID),
		attribute.String(AttrFeature, feature),
	}
}

// SetDecision records an authorize or settle result.
func SetDecision(span trace.Span, outcome string, credits, remaining int) {
	span.SetAttributes(
		attribute.String(AttrOutcome, outcome),
		attribute.Int(AttrCredits, credits),
		attribute.Int(AttrRemaining, remaining),
	)
}

// SetDenial records a denial reason.
func SetDenial(span trace.Span, reason string) {
	span.SetAttributes(attribute.String(AttrReason, reason))
}

// SetCache records whether the cache served the request.
func SetCache(span trace.Span, hit bool, requestHash string) {
	attrs := []attribute.KeyValue{attribute.Bool(AttrCacheHit, hit)}
	if requestHash != "" {
		attrs = append(attrs, attribute.String(AttrCacheKey, requestHash))
	}
	span.SetAttributes(attrs...)
}

// AddEvent adds a named event to span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
