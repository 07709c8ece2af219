package costs

import (
	"fmt"
	"sort"
	"strings"
)

// Table is an immutable feature → cost mapping.
type Table struct {
	entries map[Feature]Entry
}

// defaultEntries is the production cost table.
var defaultEntries = []Entry{
	{Feature: FeatureChatMessage, Credits: 1, Description: "AI chat message"},
	{Feature: FeatureMeetingSummary, Credits: 10, CacheTTLHours: 24, Description: "Meeting summary"},
	{Feature: FeatureContextAnalysis, Credits: 5, CooldownMinutes: 15, CacheTTLHours: 1, Description: "Workspace context analysis"},
	{Feature: FeatureTaskBreakdown, Credits: 3, CacheTTLHours: 12, Description: "Task breakdown"},
	{Feature: FeatureProjectInsights, Credits: 8, CooldownMinutes: 60, CacheTTLHours: 6, Description: "Project insights"},
	{Feature: FeatureWeeklyReport, Credits: 15, CooldownMinutes: 24 * 60, CacheTTLHours: 24, Description: "Weekly report"},
}

// DefaultTable returns the production cost table.
func DefaultTable() *Table {
	t, err := NewTable(defaultEntries...)
	if err != nil {
		panic(fmt.Sprintf("invalid default cost table: %v", err))
	}
	return t
}

// NewTable builds a table from entries. Entries must have a non-empty,
// unique feature and non-negative credits, cooldown and TTL.
func NewTable(entries ...Entry) (*Table, error) {
	t := &Table{entries: make(map[Feature]Entry, len(entries))}
	for _, e := range entries {
		if e.Feature == "" {
			return nil, fmt.Errorf("cost table entry has empty feature")
		}
		if _, dup := t.entries[e.Feature]; dup {
			return nil, fmt.Errorf("duplicate cost table entry for %q", e.Feature)
		}
		if e.Credits < 0 || e.CooldownMinutes < 0 || e.CacheTTLHours < 0 {
			return nil, fmt.Errorf("cost table entry %q has negative values", e.Feature)
		}
		t.entries[e.Feature] = e
	}
	return t, nil
}

// Lookup returns the entry for a feature, or a *FeatureError wrapping
// ErrUnknownFeature.
func (t *Table) Lookup(f Feature) (Entry, error) {
	e, ok := t.entries[f]
	if !ok {
		return Entry{}, &FeatureError{Feature: f}
	}
	return e, nil
}

// Estimate returns the user-facing cost estimate for a feature.
func (t *Table) Estimate(f Feature) (Estimate, error) {
	e, err := t.Lookup(f)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{
		Feature:     e.Feature,
		Credits:     e.Credits,
		Description: describe(e),
	}, nil
}

// Features returns all entries sorted by feature identifier.
func (t *Table) Features() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Feature < out[j].Feature })
	return out
}

// ParseFeature converts a string into a known Feature.
func (t *Table) ParseFeature(s string) (Feature, error) {
	f := Feature(strings.TrimSpace(s))
	if _, err := t.Lookup(f); err != nil {
		return "", err
	}
	return f, nil
}

func describe(e Entry) string {
	unit := "credits"
	if e.Credits == 1 {
		unit = "credit"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d %s", e.Description, e.Credits, unit)

	var notes []string
	if e.Cacheable() {
		notes = append(notes, fmt.Sprintf("cached for %dh", e.CacheTTLHours))
	}
	if e.HasCooldown() {
		notes = append(notes, fmt.Sprintf("available every %s", formatMinutes(e.CooldownMinutes)))
	}
	if len(notes) > 0 {
		sb.WriteString(" (")
		sb.WriteString(strings.Join(notes, "; "))
		sb.WriteString(")")
	}
	return sb.String()
}

func formatMinutes(m int) string {
	switch {
	case m%(24*60) == 0:
		return fmt.Sprintf("%dd", m/(24*60))
	case m%60 == 0:
		return fmt.Sprintf("%dh", m/60)
	default:
		return fmt.Sprintf("%dm", m)
	}
}
