package ledger

import (
	"fmt"
	"time"
)

// Cadence is the length of an accounting period.
type Cadence string

const (
	// CadenceMonthly resets on the first day of each calendar month.
	CadenceMonthly Cadence = "monthly"

	// CadenceDaily resets at midnight.
	CadenceDaily Cadence = "daily"
)

// ParseCadence validates a cadence string.
func ParseCadence(s string) (Cadence, error) {
	switch c := Cadence(s); c {
	case CadenceMonthly, CadenceDaily:
		return c, nil
	}
	return "", fmt.Errorf("invalid period cadence %q (must be %q or %q)", s, CadenceMonthly, CadenceDaily)
}

// PeriodClock derives period keys and reset times from wall-clock time.
// Key and ResetsAt are always computed from the same period boundaries.
type PeriodClock struct {
	Cadence  Cadence
	Location *time.Location
}

// MonthlyClock returns a calendar-month clock in loc.
func MonthlyClock(loc *time.Location) PeriodClock {
	return PeriodClock{Cadence: CadenceMonthly, Location: loc}
}

// DailyClock returns a calendar-day clock in loc.
func DailyClock(loc *time.Location) PeriodClock {
	return PeriodClock{Cadence: CadenceDaily, Location: loc}
}

func (c PeriodClock) loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Start returns the beginning of the period containing t.
func (c PeriodClock) Start(t time.Time) time.Time {
	t = t.In(c.loc())
	if c.Cadence == CadenceDaily {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc())
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, c.loc())
}

// ResetsAt returns the start of the period following the one containing t.
func (c PeriodClock) ResetsAt(t time.Time) time.Time {
	start := c.Start(t)
	if c.Cadence == CadenceDaily {
		return start.AddDate(0, 0, 1)
	}
	return start.AddDate(0, 1, 0)
}

// Key returns the period key for t.
func (c PeriodClock) Key(t time.Time) string {
	start := c.Start(t)
	if c.Cadence == CadenceDaily {
		return start.Format("2006-01-02")
	}
	return start.Format("2006-01")
}
