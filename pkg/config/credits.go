package config

import (
	"fmt"
	"time"

	"mercator-hq/creditgate/pkg/ledger"
)

// PlanLimits converts the plan tables into a ledger limit resolver.
// The maps are copied so later config mutation cannot race with lookups.
func (c *CreditsConfig) PlanLimits() ledger.PlanLimits {
	plans := make(map[string]int, len(c.Plans))
	for k, v := range c.Plans {
		plans[k] = v
	}
	users := make(map[string]string, len(c.Users))
	for k, v := range c.Users {
		users[k] = v
	}
	return ledger.PlanLimits{
		Default: c.DefaultLimit,
		Plans:   plans,
		Users:   users,
	}
}

// PeriodClock builds the clock that derives period keys and reset times.
func (c *CreditsConfig) PeriodClock() (ledger.PeriodClock, error) {
	cadence, err := ledger.ParseCadence(c.Period)
	if err != nil {
		return ledger.PeriodClock{}, err
	}
	tz := c.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return ledger.PeriodClock{}, fmt.Errorf("unknown timezone %q: %w", tz, err)
	}
	return ledger.PeriodClock{Cadence: cadence, Location: loc}, nil
}
