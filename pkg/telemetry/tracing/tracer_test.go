package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/creditgate/pkg/config"
)

func TestNew_Disabled(t *testing.T) {
	tracer, err := New(context.Background(), &config.TracingConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tracer.Enabled() {
		t.Error("expected disabled tracer")
	}

	_, span := tracer.Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("expected no-op span")
	}
	span.End()

	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(context.Background(), nil, "test"); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestNew_BadSampler(t *testing.T) {
	_, err := NewWithExporter(&config.TracingConfig{Sampler: "sometimes"}, tracetest.NewInMemoryExporter())
	if err == nil {
		t.Error("expected error for unknown sampler")
	}
}

func TestTracer_RecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracer, err := NewWithExporter(&config.TracingConfig{Sampler: SamplerAlways}, exporter)
	if err != nil {
		t.Fatalf("NewWithExporter() error = %v", err)
	}
	defer tracer.Shutdown(context.Background())

	ctx, parent := tracer.Start(context.Background(), "request")
	_, span := tracer.Start(ctx, "creditgate.authorize")
	span.SetAttributes(RequestAttributes("user-1", "meeting_summary")...)
	SetDecision(span, "ALLOWED_CACHED", 0, 90)
	SetCache(span, true, "abc123")
	SetStatus(span, nil)
	span.End()

	_, denied := tracer.Start(ctx, "creditgate.settle")
	SetDenial(denied, "INSUFFICIENT_CREDITS")
	SetStatus(denied, errors.New("insufficient credits"))
	denied.End()
	parent.End()

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}

	authorize := spans[0]
	if authorize.Name != "creditgate.authorize" {
		t.Fatalf("first span = %q, want creditgate.authorize", authorize.Name)
	}
	if authorize.Parent.SpanID() != spans[2].SpanContext.SpanID() {
		t.Error("expected authorize span to be a child of the request span")
	}

	want := map[attribute.Key]attribute.Value{
		AttrUserID:    attribute.StringValue("user-1"),
		AttrOutcome:   attribute.StringValue("ALLOWED_CACHED"),
		AttrRemaining: attribute.IntValue(90),
		AttrCacheHit:  attribute.BoolValue(true),
		AttrCacheKey:  attribute.StringValue("abc123"),
	}
	got := make(map[attribute.Key]attribute.Value)
	for _, kv := range authorize.Attributes {
		got[kv.Key] = kv.Value
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("attribute %s = %v, want %v", k, got[k].Emit(), v.Emit())
		}
	}

	if spans[1].Status.Code != codes.Error {
		t.Errorf("settle span status = %v, want Error", spans[1].Status.Code)
	}
	if len(spans[1].Events) == 0 {
		t.Error("expected recorded error event on settle span")
	}
}

func TestTracer_NilSafe(t *testing.T) {
	var tracer *Tracer
	ctx, span := tracer.Start(context.Background(), "x")
	span.End()
	if TraceID(ctx) != "" {
		t.Error("expected no trace id from nil tracer")
	}
	if tracer.Enabled() {
		t.Error("nil tracer should report disabled")
	}
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{SamplerAlways, 0, false},
		{SamplerNever, 0, false},
		{SamplerRatio, 0.25, false},
		{SamplerParentRatio, 1, false},
		{SamplerRatio, 1.5, true},
		{"sometimes", 0.5, true},
	}
	for _, tt := range tests {
		_, err := createSampler(tt.strategy, tt.ratio)
		if (err != nil) != tt.wantErr {
			t.Errorf("createSampler(%q, %v) error = %v, wantErr %v", tt.strategy, tt.ratio, err, tt.wantErr)
		}
	}
}
