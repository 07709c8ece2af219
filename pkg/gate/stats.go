package gate

import (
	"context"

	"mercator-hq/creditgate/pkg/costs"
	"mercator-hq/creditgate/pkg/ledger"
)

// UsageStats returns the user's current-period usage with the most recent
// transactions, newest first.
func (g *Gate) UsageStats(ctx context.Context, userID string) (*UsageStats, error) {
	if userID == "" {
		return nil, ErrEmptyUser
	}

	opCtx, cancel := g.opContext(ctx)
	defer cancel()

	now := g.ledger.Now()
	rec, err := g.ledger.SnapshotAt(opCtx, userID, g.history, now)
	if err != nil {
		return nil, err
	}

	txns := rec.Transactions
	if txns == nil {
		txns = []ledger.Transaction{}
	}
	g.metrics.UpdateCreditsUsed(userID, rec.PeriodKey, rec.CreditsUsed)

	return &UsageStats{
		UserID:           userID,
		PeriodKey:        rec.PeriodKey,
		CreditsUsed:      rec.CreditsUsed,
		CreditsRemaining: rec.Remaining(),
		CreditsLimit:     rec.CreditsLimit,
		UsagePercentage:  rec.UsagePercentage(),
		ResetsAt:         g.ledger.Clock().ResetsAt(now),
		Warnings:         rec.Warnings,
		Transactions:     txns,
	}, nil
}

// EstimateCost returns the pre-action cost of feature.
func (g *Gate) EstimateCost(feature costs.Feature) (costs.Estimate, error) {
	return g.costs.Estimate(feature)
}

// Features lists the cost table sorted by feature.
func (g *Gate) Features() []costs.Entry {
	return g.costs.Features()
}

// Costs returns the cost table in use.
func (g *Gate) Costs() *costs.Table {
	return g.costs
}
