package sqlstore

import (
	"testing"

	"mercator-hq/creditgate/pkg/ledger"
)

func TestDialect_Rebind(t *testing.T) {
	tests := []struct {
		name     string
		numbered bool
		in       string
		want     string
	}{
		{name: "question marks kept", in: "WHERE a = ? AND b = ?", want: "WHERE a = ? AND b = ?"},
		{name: "numbered", numbered: true, in: "WHERE a = ? AND b = ?", want: "WHERE a = $1 AND b = $2"},
		{name: "no placeholders", numbered: true, in: "SELECT 1", want: "SELECT 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Dialect{Numbered: tt.numbered}
			if got := d.Rebind(tt.in); got != tt.want {
				t.Errorf("Rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWarningColumn(t *testing.T) {
	for _, th := range []int{50, 80, 100} {
		col, err := warningColumn(ledger.Threshold(th))
		if err != nil {
			t.Fatalf("warningColumn(%d) failed: %v", th, err)
		}
		if _, ok := claimWarningQueries[col]; !ok {
			t.Errorf("no claim query for column %q", col)
		}
	}
	if _, err := warningColumn(ledger.Threshold(90)); err == nil {
		t.Error("expected error for unknown threshold")
	}
}
