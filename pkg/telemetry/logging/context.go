package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	// RequestIDKey is the context key for request ids.
	RequestIDKey contextKey = "request_id"

	// UserIDKey is the context key for user ids.
	UserIDKey contextKey = "user_id"

	// FeatureKey is the context key for the feature being metered.
	FeatureKey contextKey = "feature"
)

// WithRequestID adds a request id to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request id from the context.
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}

// WithUserID adds a user id to the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID retrieves the user id from the context.
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

// WithFeature adds a feature identifier to the context.
func WithFeature(ctx context.Context, feature string) context.Context {
	return context.WithValue(ctx, FeatureKey, feature)
}

// GetFeature retrieves the feature identifier from the context.
func GetFeature(ctx context.Context) string {
	v, _ := ctx.Value(FeatureKey).(string)
	return v
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if v := GetRequestID(ctx); v != "" {
		attrs = append(attrs, slog.String(string(RequestIDKey), v))
	}
	if v := GetUserID(ctx); v != "" {
		attrs = append(attrs, slog.String(string(UserIDKey), v))
	}
	if v := GetFeature(ctx); v != "" {
		attrs = append(attrs, slog.String(string(FeatureKey), v))
	}
	return attrs
}

// FromContext returns base with the context's request, user and feature
// fields attached. Loggers built by New already do this per record; this is
// for loggers that did not come from New. A nil base uses slog.Default().
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	attrs := contextAttrs(ctx)
	if len(attrs) == 0 {
		return base
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return base.With(args...)
}
