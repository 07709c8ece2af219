package ledger

import "fmt"

// Threshold is a usage percentage that triggers a one-time warning.
type Threshold int

const (
	Threshold50  Threshold = 50
	Threshold80  Threshold = 80
	Threshold100 Threshold = 100
)

// Thresholds lists every warning threshold in ascending order.
var Thresholds = []Threshold{Threshold50, Threshold80, Threshold100}

// String returns the threshold as a percentage label.
func (t Threshold) String() string {
	return fmt.Sprintf("%d%%", int(t))
}

// Message returns the user-facing warning text for t.
func (t Threshold) Message() string {
	switch t {
	case Threshold100:
		return "You have used all of your AI credits for this period."
	case Threshold80:
		return "You have used 80% of your AI credits for this period."
	case Threshold50:
		return "You have used 50% of your AI credits for this period."
	}
	return fmt.Sprintf("You have used %d%% of your AI credits for this period.", int(t))
}

// CrossedThresholds returns, in ascending order, the thresholds reached by
// pct whose flags are not yet set in w.
func CrossedThresholds(w Warnings, pct float64) []Threshold {
	var crossed []Threshold
	for _, t := range Thresholds {
		if pct >= float64(t) && !w.Has(t) {
			crossed = append(crossed, t)
		}
	}
	return crossed
}

// WarningMessage returns the message for the highest threshold in claimed,
// or an empty string.
func WarningMessage(claimed []Threshold) string {
	if len(claimed) == 0 {
		return ""
	}
	highest := claimed[0]
	for _, t := range claimed[1:] {
		if t > highest {
			highest = t
		}
	}
	return highest.Message()
}
