package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"mercator-hq/creditgate/pkg/cli"
	"mercator-hq/creditgate/pkg/costs"
	"mercator-hq/creditgate/pkg/gate"
	"mercator-hq/creditgate/pkg/ledger"
)

// featureTable renders the cost table.
type featureTable []costs.Entry

func (t featureTable) Header() []string {
	return []string{"FEATURE", "CREDITS", "COOLDOWN", "CACHE_TTL", "DESCRIPTION"}
}

func (t featureTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, e := range t {
		cooldown, ttl := "-", "-"
		if e.HasCooldown() {
			cooldown = e.Cooldown().String()
		}
		if e.Cacheable() {
			ttl = e.CacheTTL().String()
		}
		rows = append(rows, []string{string(e.Feature), strconv.Itoa(e.Credits), cooldown, ttl, e.Description})
	}
	return rows
}

// estimateTable renders a single estimate.
type estimateTable costs.Estimate

func (t estimateTable) Header() []string { return []string{"FEATURE", "CREDITS", "DESCRIPTION"} }

func (t estimateTable) Rows() [][]string {
	return [][]string{{string(t.Feature), strconv.Itoa(t.Credits), t.Description}}
}

// transactionTable renders a transaction log, newest first.
type transactionTable []ledger.Transaction

func (t transactionTable) Header() []string {
	return []string{"TIMESTAMP", "FEATURE", "CREDITS", "CACHED", "ID"}
}

func (t transactionTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, txn := range t {
		rows = append(rows, []string{
			txn.Timestamp.UTC().Format(time.RFC3339),
			txn.Feature,
			strconv.Itoa(txn.CreditsDeducted),
			strconv.FormatBool(txn.Metadata.Cached),
			txn.ID,
		})
	}
	return rows
}

// writeStats prints usage stats in the selected format. Text output is a
// summary followed by the transaction table; CSV carries only the table.
func writeStats(w io.Writer, f cli.Formatter, format cli.OutputFormat, s *gate.UsageStats) error {
	switch format {
	case cli.FormatJSON:
		return f.FormatTo(w, s)
	case cli.FormatCSV:
		return f.FormatTo(w, transactionTable(s.Transactions))
	}

	fmt.Fprintf(w, "User:      %s\n", s.UserID)
	fmt.Fprintf(w, "Period:    %s (resets %s)\n", s.PeriodKey, s.ResetsAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "Used:      %d / %d (%.1f%%)\n", s.CreditsUsed, s.CreditsLimit, s.UsagePercentage)
	fmt.Fprintf(w, "Remaining: %d\n", s.CreditsRemaining)
	if warned := warningLabels(s.Warnings); warned != "" {
		fmt.Fprintf(w, "Warnings:  %s\n", warned)
	}
	if len(s.Transactions) == 0 {
		fmt.Fprintln(w, "\nNo transactions this period.")
		return nil
	}
	fmt.Fprintln(w)
	return f.FormatTo(w, transactionTable(s.Transactions))
}

func warningLabels(w ledger.Warnings) string {
	var labels []string
	for _, t := range ledger.Thresholds {
		if w.Has(t) {
			labels = append(labels, t.String())
		}
	}
	return strings.Join(labels, ", ")
}

// decisionView is the text rendering of an authorization decision.
func decisionView(d *gate.Decision) string {
	switch d.Outcome {
	case gate.OutcomeAllowedFresh:
		return fmt.Sprintf("allowed: %d credits will be charged on settle", d.Cost)
	case gate.OutcomeAllowedCached:
		return fmt.Sprintf("allowed from cache (no charge): %s", d.CachedResult)
	case gate.OutcomeDeniedCooldown:
		return fmt.Sprintf("denied: %s, available again in %d minutes", d.Reason, d.RemainingMinutes)
	case gate.OutcomeDeniedInsufficient:
		return fmt.Sprintf("denied: %s, %d required, %d remaining", d.Reason, d.Required, d.Remaining)
	}
	return fmt.Sprintf("denied: %s", d.Reason)
}

// settleView is the text rendering of a settle outcome.
func settleView(o *gate.SettleOutcome) string {
	if !o.Success {
		return fmt.Sprintf("not charged: balance %d", o.NewBalance)
	}
	s := fmt.Sprintf("charged %d credits, balance %d", o.Charged, o.NewBalance)
	if o.Warning != "" {
		s += "\n" + o.Warning
	}
	return s
}
