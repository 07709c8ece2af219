package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/creditgate/pkg/cache"
	"mercator-hq/creditgate/pkg/config"
	"mercator-hq/creditgate/pkg/costs"
	"mercator-hq/creditgate/pkg/ledger"
	"mercator-hq/creditgate/pkg/storage/memory"
	"mercator-hq/creditgate/pkg/telemetry/metrics"
	"mercator-hq/creditgate/pkg/telemetry/tracing"
)

var errBackendDown = errors.New("backend down")

// flakyStore fails selected operations of an in-memory store.
type flakyStore struct {
	*memory.Store
	failGet     bool
	failPut     bool
	failDeduct  bool
	failHistory bool
}

func (s *flakyStore) GetEntry(ctx context.Context, userID, feature, hash string, now time.Time) (*cache.Entry, error) {
	if s.failGet {
		return nil, errBackendDown
	}
	return s.Store.GetEntry(ctx, userID, feature, hash, now)
}

func (s *flakyStore) PutEntry(ctx context.Context, e *cache.Entry) error {
	if s.failPut {
		return errBackendDown
	}
	return s.Store.PutEntry(ctx, e)
}

func (s *flakyStore) DeductCredits(ctx context.Context, userID, periodKey string, txn ledger.Transaction) (*ledger.UsageRecord, error) {
	if s.failDeduct {
		return nil, errBackendDown
	}
	return s.Store.DeductCredits(ctx, userID, periodKey, txn)
}

func (s *flakyStore) LastCharged(ctx context.Context, userID, feature string) (time.Time, bool, error) {
	if s.failHistory {
		return time.Time{}, false, errBackendDown
	}
	return s.Store.LastCharged(ctx, userID, feature)
}

func newFlakyFixture(t *testing.T, store *flakyStore) *fixture {
	t.Helper()
	return newFixtureWithStore(t, store.Store, store, 100)
}

func TestGate_CacheReadFailureIsMiss(t *testing.T) {
	store := &flakyStore{Store: memory.New(), failGet: true}
	f := newFlakyFixture(t, store)
	ctx := context.Background()
	input := map[string]any{"meeting_id": "m-1"}

	if _, err := f.gate.Settle(ctx, "user-1", costs.FeatureMeetingSummary, input, "summary"); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	d, err := f.gate.Authorize(ctx, "user-1", costs.FeatureMeetingSummary, input)
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if d.Outcome != OutcomeAllowedFresh {
		t.Errorf("outcome = %s, want ALLOWED_FRESH on cache failure", d.Outcome)
	}
}

func TestGate_CacheWriteFailureIsIgnored(t *testing.T) {
	store := &flakyStore{Store: memory.New(), failPut: true}
	f := newFlakyFixture(t, store)

	out, err := f.gate.Settle(context.Background(), "user-1", costs.FeatureMeetingSummary, "input", "summary")
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if !out.Success || out.Cached {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if f.used(t, "user-1") != 10 {
		t.Errorf("CreditsUsed = %d, want 10", f.used(t, "user-1"))
	}
}

func TestGate_DeductFailureFailsClosed(t *testing.T) {
	store := &flakyStore{Store: memory.New(), failDeduct: true}
	f := newFlakyFixture(t, store)

	out, err := f.gate.Settle(context.Background(), "user-1", costs.FeatureChatMessage, nil, nil)
	if !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("Settle error = %v, want ErrLedgerUnavailable", err)
	}
	if errors.Is(err, errBackendDown) {
		t.Error("storage detail leaked through the denial")
	}
	if out == nil || out.Success {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestGate_HistoryFailureDenies(t *testing.T) {
	store := &flakyStore{Store: memory.New(), failHistory: true}
	f := newFlakyFixture(t, store)

	d, err := f.gate.Authorize(context.Background(), "user-1", costs.FeatureWeeklyReport, map[string]any{"week": 14})
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if d.Outcome != OutcomeDeniedUnavailable || d.Reason != ReasonLedgerUnavailable {
		t.Errorf("unexpected decision: %+v", d)
	}
}

func TestGate_CancelledContextFailsClosed(t *testing.T) {
	f := newFixture(t, 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := f.gate.Authorize(ctx, "user-1", costs.FeatureChatMessage, nil)
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if d.Allowed {
		t.Errorf("cancelled request was allowed: %+v", d)
	}
	if _, err := f.gate.Settle(ctx, "user-1", costs.FeatureChatMessage, nil, nil); !errors.Is(err, ErrLedgerUnavailable) {
		t.Errorf("Settle error = %v, want ErrLedgerUnavailable", err)
	}
}

func TestGate_CacheDisabled(t *testing.T) {
	store := memory.New()
	l := ledger.New(store, ledger.Config{Limits: ledger.PlanLimits{Default: 100}})
	g, err := New(Config{Ledger: l})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()

	out, err := g.Settle(ctx, "user-1", costs.FeatureMeetingSummary, "input", "summary")
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if out.Cached || store.CacheSize() != 0 {
		t.Error("result cached with caching disabled")
	}
	d, err := g.Authorize(ctx, "user-1", costs.FeatureMeetingSummary, "input")
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if d.Outcome != OutcomeAllowedFresh {
		t.Errorf("outcome = %s, want ALLOWED_FRESH", d.Outcome)
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m, labels) {
				total += m.GetCounter().GetValue()
			}
		}
	}
	return total
}

func matchLabels(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestGate_Telemetry(t *testing.T) {
	store := memory.New()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "test"}, reg)
	exporter := tracetest.NewInMemoryExporter()
	tracer, err := tracing.NewWithExporter(&config.TracingConfig{Sampler: tracing.SamplerAlways}, exporter)
	if err != nil {
		t.Fatalf("NewWithExporter failed: %v", err)
	}
	defer tracer.Shutdown(context.Background())

	l := ledger.New(store, ledger.Config{Limits: ledger.PlanLimits{Default: 100}})
	g, err := New(Config{
		Ledger:  l,
		Cache:   cache.New(store, cache.Config{}),
		Metrics: collector,
		Tracer:  tracer,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	input := map[string]any{"meeting_id": "m-1"}
	feature := string(costs.FeatureMeetingSummary)

	if _, err := g.Do(ctx, "user-1", costs.FeatureMeetingSummary, input, func(context.Context) (any, error) {
		return "summary", nil
	}); err != nil {
		t.Fatalf("first Do failed: %v", err)
	}
	if _, err := g.Authorize(ctx, "user-1", costs.FeatureMeetingSummary, input); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}

	checks := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"test_decisions_total", map[string]string{"feature": feature, "outcome": "ALLOWED_FRESH"}, 1},
		{"test_decisions_total", map[string]string{"feature": feature, "outcome": "ALLOWED_CACHED"}, 1},
		{"test_credits_charged_total", map[string]string{"feature": feature}, 10},
		{"test_cache_hits_total", map[string]string{"feature": feature}, 1},
		{"test_cache_misses_total", map[string]string{"feature": feature}, 1},
		{"test_cache_stores_total", map[string]string{"feature": feature}, 1},
	}
	for _, c := range checks {
		if got := counterValue(t, reg, c.name, c.labels); got != c.want {
			t.Errorf("%s%v = %v, want %v", c.name, c.labels, got, c.want)
		}
	}

	var names []string
	for _, s := range exporter.GetSpans() {
		names = append(names, s.Name)
	}
	want := []string{"creditgate.authorize", "creditgate.settle", "creditgate.authorize"}
	if len(names) != len(want) {
		t.Fatalf("spans = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("span %d = %q, want %q", i, names[i], want[i])
		}
	}
}
