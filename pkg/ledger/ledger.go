package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Config configures a Ledger.
type Config struct {
	// Clock derives period keys. Default: MonthlyClock(time.UTC).
	Clock PeriodClock

	// Limits resolves the limit for newly created records.
	// Default: PlanLimits{Default: 1000}.
	Limits LimitResolver

	// MaxAttempts bounds conditional update attempts per deduction.
	// Default: 5
	MaxAttempts int

	// RetryBackoff is the base delay between attempts, doubled each retry.
	// Default: 5ms
	RetryBackoff time.Duration

	// Now overrides the wall clock. Default: time.Now.
	Now func() time.Time

	// Logger receives retry and warning diagnostics.
	Logger *slog.Logger
}

// Ledger applies credit accounting rules on top of a Store.
type Ledger struct {
	store       Store
	clock       PeriodClock
	limits      LimitResolver
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// New creates a Ledger backed by store.
func New(store Store, cfg Config) *Ledger {
	if cfg.Clock.Cadence == "" {
		cfg.Clock = MonthlyClock(time.UTC)
	}
	if cfg.Limits == nil {
		cfg.Limits = PlanLimits{Default: 1000}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 5 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Ledger{
		store:       store,
		clock:       cfg.Clock,
		limits:      cfg.Limits,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.RetryBackoff,
		now:         cfg.Now,
		logger:      cfg.Logger.With("component", "ledger"),
	}
}

// Clock returns the period clock in use.
func (l *Ledger) Clock() PeriodClock {
	return l.clock
}

// Now returns the ledger's current time.
func (l *Ledger) Now() time.Time {
	return l.now()
}

// GetOrCreatePeriod returns the user's record for the current period.
func (l *Ledger) GetOrCreatePeriod(ctx context.Context, userID string) (*UsageRecord, error) {
	return l.recordAt(ctx, userID, l.now())
}

func (l *Ledger) recordAt(ctx context.Context, userID string, now time.Time) (*UsageRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}
	rec, err := l.store.GetOrCreateRecord(ctx, userID, l.clock.Key(now), l.limits.LimitFor(userID), now)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage record: %w", err)
	}
	return rec, nil
}

// TryDeduct charges cost credits for feature against the user's current
// period. It returns ErrInsufficientCredits (wrapped in an
// *InsufficientCreditsError) when the budget cannot cover cost, and
// ErrRetriesExhausted when every attempt hit a conflict or timeout. Other
// store errors are returned after the first attempt.
func (l *Ledger) TryDeduct(ctx context.Context, userID, feature string, cost int, meta TransactionMetadata) (*DeductResult, error) {
	if cost < 0 {
		return nil, fmt.Errorf("cost cannot be negative: %d", cost)
	}

	now := l.now()
	period := l.clock.Key(now)
	if _, err := l.recordAt(ctx, userID, now); err != nil {
		return nil, err
	}

	meta.Cached = false
	txn := Transaction{
		ID:              uuid.NewString(),
		Feature:         feature,
		CreditsDeducted: cost,
		Timestamp:       now,
		Metadata:        meta,
	}

	var (
		rec     *UsageRecord
		lastErr error
		attempt int
	)
	for attempt = 1; attempt <= l.maxAttempts; attempt++ {
		rec, lastErr = l.store.DeductCredits(ctx, userID, period, txn)
		if lastErr == nil {
			break
		}
		if errors.Is(lastErr, ErrInsufficientCredits) {
			return nil, newInsufficientError(rec, cost)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("deduction aborted: %w", ctxErr)
		}
		if !retryable(lastErr) {
			return nil, fmt.Errorf("credit deduction failed: %w", lastErr)
		}

		l.logger.Warn("credit deduction attempt failed",
			"user_id", userID,
			"feature", feature,
			"attempt", attempt,
			"error", lastErr,
		)
		if attempt == l.maxAttempts {
			break
		}
		if err := sleepCtx(ctx, l.backoff<<(attempt-1)); err != nil {
			return nil, fmt.Errorf("deduction aborted: %w", err)
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, l.maxAttempts, lastErr)
	}

	result := &DeductResult{
		Record:      rec,
		Transaction: txn,
		Attempts:    attempt,
	}
	result.Thresholds = l.claimWarnings(ctx, rec)
	result.Warning = WarningMessage(result.Thresholds)
	return result, nil
}

// retryable reports whether a failed deduction may succeed on another
// attempt: a lost conditional update or a store-side timeout.
func retryable(err error) bool {
	if errors.Is(err, ErrConflict) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}

// claimWarnings claims every threshold reached by rec. Failures are logged
// and skipped; warnings never block a settled deduction.
func (l *Ledger) claimWarnings(ctx context.Context, rec *UsageRecord) []Threshold {
	var claimed []Threshold
	for _, t := range CrossedThresholds(rec.Warnings, rec.UsagePercentage()) {
		ok, err := l.store.ClaimWarning(ctx, rec.UserID, rec.PeriodKey, t)
		if err != nil {
			l.logger.Error("failed to claim usage warning",
				"user_id", rec.UserID,
				"period", rec.PeriodKey,
				"threshold", t.String(),
				"error", err,
			)
			continue
		}
		if ok {
			rec.Warnings.Set(t)
			claimed = append(claimed, t)
		}
	}
	return claimed
}

// RecordCacheHit appends a zero-cost cached transaction. No capacity check
// is performed.
func (l *Ledger) RecordCacheHit(ctx context.Context, userID, feature string, meta TransactionMetadata) (Transaction, error) {
	now := l.now()
	if _, err := l.recordAt(ctx, userID, now); err != nil {
		return Transaction{}, err
	}

	meta.Cached = true
	txn := Transaction{
		ID:        uuid.NewString(),
		Feature:   feature,
		Timestamp: now,
		Metadata:  meta,
	}
	if err := l.store.AppendTransaction(ctx, userID, l.clock.Key(now), txn); err != nil {
		return Transaction{}, fmt.Errorf("failed to record cache hit: %w", err)
	}
	return txn, nil
}

// Snapshot returns the current period record with up to history
// transactions, newest first.
func (l *Ledger) Snapshot(ctx context.Context, userID string, history int) (*UsageRecord, error) {
	return l.SnapshotAt(ctx, userID, history, l.now())
}

// SnapshotAt is Snapshot for the period containing now.
func (l *Ledger) SnapshotAt(ctx context.Context, userID string, history int, now time.Time) (*UsageRecord, error) {
	rec, err := l.recordAt(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	txns, err := l.store.Transactions(ctx, userID, rec.PeriodKey, history)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	rec.Transactions = txns
	return rec, nil
}

// LastCharged returns the time of the user's most recent charged
// invocation of feature.
func (l *Ledger) LastCharged(ctx context.Context, userID, feature string) (time.Time, bool, error) {
	return l.store.LastCharged(ctx, userID, feature)
}

// InsufficientCreditsError reports a rejected deduction.
type InsufficientCreditsError struct {
	Required  int
	Remaining int
}

// Error implements the error interface.
func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("%s: required %d, remaining %d", ErrInsufficientCredits, e.Required, e.Remaining)
}

// Unwrap returns ErrInsufficientCredits.
func (e *InsufficientCreditsError) Unwrap() error {
	return ErrInsufficientCredits
}

func newInsufficientError(rec *UsageRecord, cost int) error {
	return &InsufficientCreditsError{Required: cost, Remaining: rec.Remaining()}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
