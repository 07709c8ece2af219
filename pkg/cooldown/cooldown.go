// Package cooldown enforces minimum spacing between charged invocations of
// a feature.
//
// Cooldown state is derived from the ledger: the most recent non-cached
// transaction for (user, feature) starts the window. Cache hits are
// recorded as cached transactions and therefore never start or extend a
// cooldown.
package cooldown

import (
	"context"
	"fmt"
	"math"
	"time"

	"mercator-hq/creditgate/pkg/costs"
)

// History reports when a user was last charged for a feature.
type History interface {
	LastCharged(ctx context.Context, userID, feature string) (time.Time, bool, error)
}

// Status is the result of a cooldown check.
type Status struct {
	OnCooldown bool

	// RemainingMinutes is ceil(cooldown - elapsed) in whole minutes.
	RemainingMinutes int

	// Until is when the cooldown expires.
	Until time.Time
}

// Gate checks cooldowns against a History.
type Gate struct {
	history History
	now     func() time.Time
}

// New creates a Gate. A nil now uses time.Now.
func New(history History, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{history: history, now: now}
}

// Check reports whether entry's feature is on cooldown for userID. Features
// without a cooldown are never on cooldown and do not hit storage.
func (g *Gate) Check(ctx context.Context, userID string, entry costs.Entry) (Status, error) {
	if !entry.HasCooldown() {
		return Status{}, nil
	}

	last, ok, err := g.history.LastCharged(ctx, userID, string(entry.Feature))
	if err != nil {
		return Status{}, fmt.Errorf("failed to read cooldown history: %w", err)
	}
	if !ok {
		return Status{}, nil
	}

	return Evaluate(last, g.now(), entry.Cooldown()), nil
}

// Evaluate computes cooldown status for a charge at last observed at now.
func Evaluate(last, now time.Time, cooldown time.Duration) Status {
	elapsed := now.Sub(last)
	if elapsed >= cooldown {
		return Status{}
	}
	remaining := cooldown - elapsed
	return Status{
		OnCooldown:       true,
		RemainingMinutes: int(math.Ceil(remaining.Minutes())),
		Until:            last.Add(cooldown),
	}
}
