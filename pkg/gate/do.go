package gate

import (
	"context"
	"encoding/json"
	"fmt"

	"mercator-hq/creditgate/pkg/costs"
)

// Operation is the expensive work protected by the gate.
type Operation func(ctx context.Context) (any, error)

// Result is returned by Do.
type Result struct {
	Decision *Decision
	Settle   *SettleOutcome

	// Value is the cached or freshly computed result as JSON.
	Value json.RawMessage
}

// Do runs op between Authorize and Settle. Cached results are returned
// without running op. A failed op is never settled, so no credits are
// charged for it. Denials are returned as *DenialError.
func (g *Gate) Do(ctx context.Context, userID string, feature costs.Feature, input any, op Operation) (*Result, error) {
	decision, err := g.Authorize(ctx, userID, feature, input)
	if err != nil {
		return nil, err
	}

	res := &Result{Decision: decision}
	switch decision.Outcome {
	case OutcomeAllowedCached:
		res.Value = decision.CachedResult
		return res, nil
	case OutcomeAllowedFresh:
	default:
		return res, decision.Err()
	}

	value, err := op(ctx)
	if err != nil {
		return res, err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return res, fmt.Errorf("failed to encode result: %w", err)
	}
	res.Value = encoded

	res.Settle, err = g.Settle(ctx, userID, feature, input, json.RawMessage(encoded))
	if err != nil {
		return res, err
	}
	return res, nil
}
