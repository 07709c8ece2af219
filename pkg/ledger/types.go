package ledger

import (
	"errors"
	"time"
)

var (
	// ErrInsufficientCredits is returned when a deduction would push
	// CreditsUsed above CreditsLimit.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrConflict is returned by stores when a conditional update lost a
	// race or the backend reported a retryable contention error.
	ErrConflict = errors.New("ledger update conflict")

	// ErrRetriesExhausted is returned when a deduction could not be applied
	// within the configured number of attempts.
	ErrRetriesExhausted = errors.New("ledger retries exhausted")

	// ErrRecordNotFound is returned when a store is asked to mutate a
	// record that was never created.
	ErrRecordNotFound = errors.New("usage record not found")
)

// TransactionMetadata carries audit details for a transaction.
type TransactionMetadata struct {
	// Cached is true for zero-cost transactions served from the response cache.
	Cached bool `json:"cached"`

	// RequestID correlates the transaction with the calling request.
	RequestID string `json:"request_id,omitempty"`

	// InputSize is the size in bytes of the canonical request input.
	InputSize int `json:"input_size,omitempty"`
}

// Transaction is an immutable entry in a record's audit log.
type Transaction struct {
	ID              string              `json:"id"`
	Feature         string              `json:"feature"`
	CreditsDeducted int                 `json:"credits_deducted"`
	Timestamp       time.Time           `json:"timestamp"`
	Metadata        TransactionMetadata `json:"metadata"`
}

// Warnings holds the one-shot usage warning flags for a period.
// Flags are monotonic: once set they are never cleared.
type Warnings struct {
	FiftyPercent   bool `json:"fifty_percent"`
	EightyPercent  bool `json:"eighty_percent"`
	HundredPercent bool `json:"hundred_percent"`
}

// Has reports whether the flag for t is set.
func (w Warnings) Has(t Threshold) bool {
	switch t {
	case Threshold50:
		return w.FiftyPercent
	case Threshold80:
		return w.EightyPercent
	case Threshold100:
		return w.HundredPercent
	}
	return false
}

// Set sets the flag for t.
func (w *Warnings) Set(t Threshold) {
	switch t {
	case Threshold50:
		w.FiftyPercent = true
	case Threshold80:
		w.EightyPercent = true
	case Threshold100:
		w.HundredPercent = true
	}
}

// UsageRecord is the ledger state for one user in one period.
type UsageRecord struct {
	UserID       string    `json:"user_id"`
	PeriodKey    string    `json:"period_key"`
	CreditsUsed  int       `json:"credits_used"`
	CreditsLimit int       `json:"credits_limit"`
	Warnings     Warnings  `json:"warnings"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Transactions is populated only by read paths that request history.
	// Stores return records without it from mutating operations.
	Transactions []Transaction `json:"transactions,omitempty"`
}

// Remaining returns max(0, CreditsLimit - CreditsUsed).
func (r *UsageRecord) Remaining() int {
	if r == nil {
		return 0
	}
	if rem := r.CreditsLimit - r.CreditsUsed; rem > 0 {
		return rem
	}
	return 0
}

// UsagePercentage returns CreditsUsed / CreditsLimit * 100. A record with
// no budget is reported as fully used.
func (r *UsageRecord) UsagePercentage() float64 {
	if r == nil || r.CreditsLimit <= 0 {
		return 100
	}
	return float64(r.CreditsUsed) / float64(r.CreditsLimit) * 100
}

// HasCapacity reports whether cost credits can be deducted without
// exceeding the limit.
func (r *UsageRecord) HasCapacity(cost int) bool {
	return r.Remaining() >= cost
}

// DeductResult is returned by a successful TryDeduct.
type DeductResult struct {
	// Record is the post-deduction state.
	Record *UsageRecord

	// Transaction is the entry appended to the log.
	Transaction Transaction

	// Warning is the message for the highest threshold newly crossed by this
	// deduction, or empty.
	Warning string

	// Thresholds lists every threshold claimed by this deduction.
	Thresholds []Threshold

	// Attempts is the number of conditional updates issued.
	Attempts int
}
