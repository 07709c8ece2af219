package gate

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mercator-hq/creditgate/pkg/ledger"
)

// Outcome is the terminal result of an authorize call.
type Outcome string

const (
	// OutcomeAllowedFresh means the caller must run the operation and then
	// call Settle.
	OutcomeAllowedFresh Outcome = "ALLOWED_FRESH"

	// OutcomeAllowedCached means a cached result was returned at zero cost.
	// The caller must skip the operation and must not call Settle.
	OutcomeAllowedCached Outcome = "ALLOWED_CACHED"

	// OutcomeDeniedCooldown means the feature was charged too recently.
	OutcomeDeniedCooldown Outcome = "DENIED_COOLDOWN"

	// OutcomeDeniedInsufficient means the period budget cannot cover the cost.
	OutcomeDeniedInsufficient Outcome = "DENIED_INSUFFICIENT"

	// OutcomeDeniedUnavailable means the ledger could not be read in time.
	OutcomeDeniedUnavailable Outcome = "DENIED_UNAVAILABLE"
)

// Allowed reports whether the outcome permits the request.
func (o Outcome) Allowed() bool {
	return o == OutcomeAllowedFresh || o == OutcomeAllowedCached
}

// Reason is a stable denial code rendered by callers.
type Reason string

const (
	ReasonCooldown            Reason = "COOLDOWN"
	ReasonInsufficientCredits Reason = "INSUFFICIENT_CREDITS"
	ReasonLedgerUnavailable   Reason = "LEDGER_UNAVAILABLE"
)

var (
	// ErrCooldown is the sentinel behind COOLDOWN denials.
	ErrCooldown = errors.New("feature on cooldown")

	// ErrLedgerUnavailable is the sentinel behind LEDGER_UNAVAILABLE denials.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)

// Decision is returned by Authorize.
type Decision struct {
	Outcome Outcome `json:"outcome"`
	Allowed bool    `json:"allowed"`
	Cached  bool    `json:"cached"`

	// CachedResult is set for OutcomeAllowedCached.
	CachedResult json.RawMessage `json:"cached_result,omitempty"`

	Reason           Reason `json:"reason,omitempty"`
	RemainingMinutes int    `json:"remaining_minutes,omitempty"`
	Required         int    `json:"required"`
	Remaining        int    `json:"remaining"`

	// Cost is the credit cost of a fresh invocation.
	Cost int `json:"cost"`

	// RequestHash is the canonical input hash, when one was computed.
	RequestHash string `json:"request_hash,omitempty"`
}

// Err returns the decision as a *DenialError, or nil when allowed.
func (d *Decision) Err() error {
	if d == nil || d.Allowed {
		return nil
	}
	return &DenialError{
		Reason:           d.Reason,
		RemainingMinutes: d.RemainingMinutes,
		Required:         d.Required,
		Remaining:        d.Remaining,
	}
}

// SettleOutcome is returned by Settle.
type SettleOutcome struct {
	Success    bool   `json:"success"`
	NewBalance int    `json:"new_balance"`
	Warning    string `json:"warning,omitempty"`

	// Charged is the number of credits deducted.
	Charged int `json:"charged"`

	// Transaction is the appended ledger entry on success.
	Transaction *ledger.Transaction `json:"transaction,omitempty"`

	// Cached reports whether the result was written to the response cache.
	Cached bool `json:"cached"`
}

// UsageStats is the read-only usage view for a user.
type UsageStats struct {
	UserID           string               `json:"user_id"`
	PeriodKey        string               `json:"period_key"`
	CreditsUsed      int                  `json:"credits_used"`
	CreditsRemaining int                  `json:"credits_remaining"`
	CreditsLimit     int                  `json:"credits_limit"`
	UsagePercentage  float64              `json:"usage_percentage"`
	ResetsAt         time.Time            `json:"resets_at"`
	Warnings         ledger.Warnings      `json:"warnings"`
	Transactions     []ledger.Transaction `json:"transactions"`
}

// DenialError carries a structured denial.
type DenialError struct {
	Reason           Reason
	RemainingMinutes int
	Required         int
	Remaining        int
}

// Error implements the error interface.
func (e *DenialError) Error() string {
	switch e.Reason {
	case ReasonCooldown:
		return fmt.Sprintf("%s: retry in %d minutes", e.Reason, e.RemainingMinutes)
	case ReasonInsufficientCredits:
		return fmt.Sprintf("%s: required %d, remaining %d", e.Reason, e.Required, e.Remaining)
	}
	return string(e.Reason)
}

// Unwrap maps the reason to its sentinel so callers can use errors.Is.
func (e *DenialError) Unwrap() error {
	switch e.Reason {
	case ReasonCooldown:
		return ErrCooldown
	case ReasonInsufficientCredits:
		return ledger.ErrInsufficientCredits
	case ReasonLedgerUnavailable:
		return ErrLedgerUnavailable
	}
	return nil
}
