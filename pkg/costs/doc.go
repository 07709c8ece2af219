// Package costs defines the credit cost table for metered AI features.
//
// Every metered operation is identified by a Feature. The Table maps each
// feature to its credit cost and, optionally, a cooldown between charged
// invocations and a TTL for cached responses:
//
//	table := costs.DefaultTable()
//	entry, err := table.Lookup(costs.FeatureMeetingSummary)
//	if errors.Is(err, costs.ErrUnknownFeature) {
//		// caller bug: reject before touching storage
//	}
//
// The table is part of the deployed configuration. It is immutable after
// construction and safe for concurrent use.
package costs
