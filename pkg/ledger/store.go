package ledger

import (
	"context"
	"time"
)

// Store persists usage records. Implementations must be safe for concurrent
// use by multiple processes sharing the same backend.
type Store interface {
	// GetOrCreateRecord returns the record for (userID, periodKey), creating
	// it with limit when absent. Creation must be a single idempotent upsert.
	GetOrCreateRecord(ctx context.Context, userID, periodKey string, limit int, now time.Time) (*UsageRecord, error)

	// DeductCredits atomically increments CreditsUsed by txn.CreditsDeducted
	// and appends txn, but only if the new total stays within CreditsLimit.
	// When the condition fails it returns ErrInsufficientCredits together
	// with the current record when available.
	DeductCredits(ctx context.Context, userID, periodKey string, txn Transaction) (*UsageRecord, error)

	// AppendTransaction appends txn without touching CreditsUsed.
	AppendTransaction(ctx context.Context, userID, periodKey string, txn Transaction) error

	// ClaimWarning sets the flag for t if unset and reports whether this call
	// set it.
	ClaimWarning(ctx context.Context, userID, periodKey string, t Threshold) (bool, error)

	// Transactions returns up to limit transactions newest first. A limit of
	// zero or less returns the full log.
	Transactions(ctx context.Context, userID, periodKey string, limit int) ([]Transaction, error)

	// LastCharged returns the timestamp of the most recent non-cached
	// transaction for (userID, feature) across all periods.
	LastCharged(ctx context.Context, userID, feature string) (time.Time, bool, error)
}
