// Package ledger tracks per-user credit consumption for an accounting period.
//
// # Overview
//
// Each user has one UsageRecord per period. A record carries the credits
// consumed, the credit limit snapshotted when the record was created, an
// append-only transaction log and three one-shot warning flags.
//
// Records are created lazily on first access and are never reset. When the
// PeriodClock rolls over to a new key, a fresh record is created and the old
// one is simply never read again.
//
// # Deduction
//
// TryDeduct is the only operation that increases CreditsUsed. Stores must
// implement DeductCredits as a single conditional update that increments
// CreditsUsed only when the result stays within CreditsLimit. The Ledger
// retries transient failures a bounded number of times and fails closed when
// attempts are exhausted.
//
//	l := ledger.New(store, ledger.Config{
//	    Clock:  ledger.MonthlyClock(time.UTC),
//	    Limits: ledger.PlanLimits{Default: 1000},
//	})
//
//	result, err := l.TryDeduct(ctx, "user-1", "meeting_summary", 10, ledger.TransactionMetadata{})
//	if errors.Is(err, ledger.ErrInsufficientCredits) {
//	    // deny
//	}
//
// # Warnings
//
// After a successful deduction the post-deduction usage percentage is
// compared against the 50, 80 and 100 percent thresholds. Each threshold is
// claimed at most once per period through Store.ClaimWarning, so a warning
// fires exactly once even when concurrent requests cross it together.
package ledger
