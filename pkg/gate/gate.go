package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/creditgate/pkg/cache"
	"mercator-hq/creditgate/pkg/cooldown"
	"mercator-hq/creditgate/pkg/costs"
	"mercator-hq/creditgate/pkg/ledger"
	"mercator-hq/creditgate/pkg/telemetry/logging"
	"mercator-hq/creditgate/pkg/telemetry/metrics"
	"mercator-hq/creditgate/pkg/telemetry/tracing"
)

// ErrEmptyUser is returned when a call carries no user id.
var ErrEmptyUser = errors.New("user id cannot be empty")

// Config configures a Gate.
type Config struct {
	// Costs is the feature cost table. Default: costs.DefaultTable().
	Costs *costs.Table

	// Ledger is required.
	Ledger *ledger.Ledger

	// Cache serves and stores results of cacheable features. Nil disables
	// response caching.
	Cache *cache.Cache

	// OperationTimeout bounds each ledger round-trip. Zero means the
	// caller's context is used as is.
	OperationTimeout time.Duration

	// TransactionHistory is the number of transactions returned by
	// UsageStats.
	// Default: 50
	TransactionHistory int

	// Metrics may be nil.
	Metrics *metrics.Collector

	// Tracer may be nil.
	Tracer *tracing.Tracer

	Logger *slog.Logger
}

// Gate implements the two-phase authorize/settle contract.
//
//	decision, err := g.Authorize(ctx, userID, costs.FeatureMeetingSummary, input)
//	if err != nil {
//	    return err // unknown feature or empty user
//	}
//	switch decision.Outcome {
//	case gate.OutcomeAllowedCached:
//	    return decision.CachedResult
//	case gate.OutcomeAllowedFresh:
//	    result, err := summarize(ctx, input)
//	    if err != nil {
//	        return err // never settle failed work
//	    }
//	    outcome, err := g.Settle(ctx, userID, costs.FeatureMeetingSummary, input, result)
//	default:
//	    return decision.Err()
//	}
type Gate struct {
	costs     *costs.Table
	ledger    *ledger.Ledger
	cache     *cache.Cache
	cooldowns *cooldown.Gate
	opTimeout time.Duration
	history   int
	metrics   *metrics.Collector
	tracer    *tracing.Tracer
	logger    *slog.Logger
}

// New creates a Gate.
func New(cfg Config) (*Gate, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("gate requires a ledger")
	}
	if cfg.Costs == nil {
		cfg.Costs = costs.DefaultTable()
	}
	if cfg.TransactionHistory <= 0 {
		cfg.TransactionHistory = 50
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Gate{
		costs:     cfg.Costs,
		ledger:    cfg.Ledger,
		cache:     cfg.Cache,
		cooldowns: cooldown.New(cfg.Ledger, cfg.Ledger.Now),
		opTimeout: cfg.OperationTimeout,
		history:   cfg.TransactionHistory,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
		logger:    cfg.Logger.With("component", "gate"),
	}, nil
}

// Authorize decides whether userID may invoke feature with input.
//
// The checks run in order: response cache, cooldown, capacity. Cache
// failures degrade to a miss. Ledger failures deny with
// LEDGER_UNAVAILABLE. The only errors returned are caller errors: an
// unknown feature or an empty user id.
func (g *Gate) Authorize(ctx context.Context, userID string, feature costs.Feature, input any) (*Decision, error) {
	start := time.Now()
	entry, err := g.costs.Lookup(feature)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, ErrEmptyUser
	}

	ctx = g.requestContext(ctx, userID, feature)
	ctx, span := g.tracer.Start(ctx, "creditgate.authorize",
		trace.WithAttributes(tracing.RequestAttributes(userID, string(feature))...))
	defer span.End()
	logger := logging.FromContext(ctx, g.logger)

	d := g.authorize(ctx, span, logger, userID, entry, input)

	tracing.SetDecision(span, string(d.Outcome), d.Cost, d.Remaining)
	if !d.Allowed {
		tracing.SetDenial(span, string(d.Reason))
		g.metrics.RecordDenial(string(feature), string(d.Reason))
		logger.Info("request denied",
			"outcome", d.Outcome,
			"reason", d.Reason,
		)
	}
	g.metrics.RecordDecision(string(feature), string(d.Outcome), time.Since(start))
	return d, nil
}

func (g *Gate) authorize(ctx context.Context, span trace.Span, logger *slog.Logger, userID string, entry costs.Entry, input any) *Decision {
	d := &Decision{Cost: entry.Credits}

	if g.cache != nil && entry.Cacheable() {
		if hit := g.lookup(ctx, span, logger, userID, entry, input, d); hit {
			return d
		}
	}

	opCtx, cancel := g.opContext(ctx)
	status, err := g.cooldowns.Check(opCtx, userID, entry)
	cancel()
	if err != nil {
		return g.unavailable(d, logger, err)
	}
	if status.OnCooldown {
		d.Outcome = OutcomeDeniedCooldown
		d.Reason = ReasonCooldown
		d.RemainingMinutes = status.RemainingMinutes
		return d
	}

	opCtx, cancel = g.opContext(ctx)
	rec, err := g.ledger.GetOrCreatePeriod(opCtx, userID)
	cancel()
	if err != nil {
		return g.unavailable(d, logger, err)
	}
	d.Remaining = rec.Remaining()
	if !rec.HasCapacity(entry.Credits) {
		d.Outcome = OutcomeDeniedInsufficient
		d.Reason = ReasonInsufficientCredits
		d.Required = entry.Credits
		return d
	}

	logger.Debug("request allowed", "remaining", d.Remaining)
	d.Outcome = OutcomeAllowedFresh
	d.Allowed = true
	return d
}

// lookup consults the response cache and fills d on a hit.
func (g *Gate) lookup(ctx context.Context, span trace.Span, logger *slog.Logger, userID string, entry costs.Entry, input any, d *Decision) bool {
	feature := string(entry.Feature)

	hash, canonical, err := cache.HashInput(input)
	if err != nil {
		logger.Warn("input cannot be hashed, skipping cache", "error", err)
		g.metrics.RecordCacheError("hash")
		return false
	}
	d.RequestHash = hash

	hit, err := g.cache.LookupHash(ctx, userID, feature, hash)
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrMiss):
		tracing.SetCache(span, false, hash)
		g.metrics.RecordCacheMiss(feature)
		return false
	default:
		logger.Warn("cache lookup failed, continuing as miss", "error", err)
		tracing.SetCache(span, false, hash)
		g.metrics.RecordCacheError("lookup")
		g.metrics.RecordCacheMiss(feature)
		return false
	}

	tracing.SetCache(span, true, hash)
	g.metrics.RecordCacheHit(feature)

	meta := ledger.TransactionMetadata{
		RequestID: logging.GetRequestID(ctx),
		InputSize: len(canonical),
	}
	opCtx, cancel := g.opContext(ctx)
	_, err = g.ledger.RecordCacheHit(opCtx, userID, feature, meta)
	cancel()
	if err != nil {
		logger.Error("failed to record cache hit", "error", err)
	}

	d.Outcome = OutcomeAllowedCached
	d.Allowed = true
	d.Cached = true
	d.CachedResult = hit.Result
	return true
}

func (g *Gate) unavailable(d *Decision, logger *slog.Logger, err error) *Decision {
	logger.Error("ledger read failed, denying request", "error", err)
	d.Outcome = OutcomeDeniedUnavailable
	d.Reason = ReasonLedgerUnavailable
	return d
}

// Settle charges the full cost of feature after a successful fresh
// operation and stores result for cacheable features.
//
// When the deduction loses a race with a concurrent request, Settle returns
// a *DenialError with INSUFFICIENT_CREDITS. Storage failures fail closed
// with LEDGER_UNAVAILABLE. Cache write failures are logged and ignored.
func (g *Gate) Settle(ctx context.Context, userID string, feature costs.Feature, input, result any) (*SettleOutcome, error) {
	start := time.Now()
	entry, err := g.costs.Lookup(feature)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, ErrEmptyUser
	}

	ctx = g.requestContext(ctx, userID, feature)
	ctx, span := g.tracer.Start(ctx, "creditgate.settle",
		trace.WithAttributes(tracing.RequestAttributes(userID, string(feature))...))
	defer span.End()
	logger := logging.FromContext(ctx, g.logger)

	meta := ledger.TransactionMetadata{RequestID: logging.GetRequestID(ctx)}
	if _, canonical, err := cache.HashInput(input); err == nil {
		meta.InputSize = len(canonical)
	}

	opCtx, cancel := g.opContext(ctx)
	res, err := g.ledger.TryDeduct(opCtx, userID, string(feature), entry.Credits, meta)
	cancel()
	if err != nil {
		denial := &DenialError{Reason: ReasonLedgerUnavailable}
		out := &SettleOutcome{}

		var insufficient *ledger.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			denial.Reason = ReasonInsufficientCredits
			denial.Required = insufficient.Required
			denial.Remaining = insufficient.Remaining
			out.NewBalance = insufficient.Remaining
			logger.Warn("settle lost race for remaining credits",
				"required", insufficient.Required,
				"remaining", insufficient.Remaining,
			)
		} else {
			logger.Error("credit deduction failed", "error", err)
		}

		tracing.SetDenial(span, string(denial.Reason))
		tracing.SetStatus(span, denial)
		g.metrics.RecordDenial(string(feature), string(denial.Reason))
		g.metrics.RecordSettle(string(feature), 0, 0, time.Since(start))
		return out, denial
	}

	out := &SettleOutcome{
		Success:     true,
		NewBalance:  res.Record.Remaining(),
		Warning:     res.Warning,
		Charged:     entry.Credits,
		Transaction: &res.Transaction,
	}
	span.SetAttributes(
		attribute.Int(tracing.AttrAttempts, res.Attempts),
		attribute.String(tracing.AttrPeriod, res.Record.PeriodKey),
	)
	tracing.SetDecision(span, "SETTLED", entry.Credits, out.NewBalance)

	for _, t := range res.Thresholds {
		g.metrics.RecordWarning(t.String())
	}
	if out.Warning != "" {
		tracing.AddEvent(span, "usage_warning", attribute.String(tracing.AttrWarning, out.Warning))
		logger.Info("usage warning issued",
			"usage_percentage", res.Record.UsagePercentage(),
			"warning", out.Warning,
		)
	}
	g.metrics.UpdateCreditsUsed(userID, res.Record.PeriodKey, res.Record.CreditsUsed)

	if g.cache != nil && entry.Cacheable() {
		if emptyResult(result) {
			logger.Debug("result not cached: empty result")
		} else {
			out.Cached = g.store(ctx, logger, userID, entry, input, result)
		}
	}

	g.metrics.RecordSettle(string(feature), entry.Credits, res.Attempts-1, time.Since(start))
	tracing.SetStatus(span, nil)
	return out, nil
}

func (g *Gate) store(ctx context.Context, logger *slog.Logger, userID string, entry costs.Entry, input, result any) bool {
	feature := string(entry.Feature)

	opCtx, cancel := g.opContext(ctx)
	defer cancel()
	if _, err := g.cache.Put(opCtx, userID, feature, input, result, entry.CacheTTL()); err != nil {
		logger.Warn("failed to cache result", "error", err)
		g.metrics.RecordCacheError("store")
		return false
	}
	g.metrics.RecordCacheStore(feature)
	return true
}

// emptyResult reports whether result carries nothing worth serving from
// cache: nil or a raw JSON null.
func emptyResult(result any) bool {
	var raw []byte
	switch v := result.(type) {
	case nil:
		return true
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		return false
	}
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// requestContext attaches logging fields and a request id.
func (g *Gate) requestContext(ctx context.Context, userID string, feature costs.Feature) context.Context {
	ctx = logging.WithUserID(ctx, userID)
	ctx = logging.WithFeature(ctx, string(feature))
	if logging.GetRequestID(ctx) == "" {
		ctx = logging.WithRequestID(ctx, uuid.NewString())
	}
	return ctx
}

func (g *Gate) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.opTimeout)
}
