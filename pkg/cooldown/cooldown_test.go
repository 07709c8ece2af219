package cooldown

import (
	"context"
	"errors"
	"testing"
	"time"

	"mercator-hq/creditgate/pkg/costs"
)

type stubHistory struct {
	last  time.Time
	found bool
	err   error
	calls int
}

func (h *stubHistory) LastCharged(context.Context, string, string) (time.Time, bool, error) {
	h.calls++
	return h.last, h.found, h.err
}

func TestEvaluate(t *testing.T) {
	t0 := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
	cooldown := 15 * time.Minute

	tests := []struct {
		name          string
		elapsed       time.Duration
		wantOn        bool
		wantRemaining int
	}{
		{name: "just charged", elapsed: 0, wantOn: true, wantRemaining: 15},
		{name: "ten minutes", elapsed: 10 * time.Minute, wantOn: true, wantRemaining: 5},
		{name: "partial minute rounds up", elapsed: 10*time.Minute + 30*time.Second, wantOn: true, wantRemaining: 5},
		{name: "one second left", elapsed: 15*time.Minute - time.Second, wantOn: true, wantRemaining: 1},
		{name: "exactly elapsed", elapsed: 15 * time.Minute},
		{name: "sixteen minutes", elapsed: 16 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(t0, t0.Add(tt.elapsed), cooldown)
			if got.OnCooldown != tt.wantOn {
				t.Errorf("OnCooldown = %v, want %v", got.OnCooldown, tt.wantOn)
			}
			if got.RemainingMinutes != tt.wantRemaining {
				t.Errorf("RemainingMinutes = %d, want %d", got.RemainingMinutes, tt.wantRemaining)
			}
			if tt.wantOn && !got.Until.Equal(t0.Add(cooldown)) {
				t.Errorf("Until = %v, want %v", got.Until, t0.Add(cooldown))
			}
		})
	}
}

func TestGate_Check(t *testing.T) {
	t0 := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
	now := t0.Add(10 * time.Minute)
	table := costs.DefaultTable()
	analysis, _ := table.Lookup(costs.FeatureContextAnalysis)
	chat, _ := table.Lookup(costs.FeatureChatMessage)

	t.Run("feature without cooldown skips history", func(t *testing.T) {
		h := &stubHistory{last: t0, found: true}
		status, err := New(h, func() time.Time { return now }).Check(context.Background(), "u", chat)
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if status.OnCooldown || h.calls != 0 {
			t.Errorf("expected no cooldown and no history read, got %+v (%d calls)", status, h.calls)
		}
	})

	t.Run("never charged", func(t *testing.T) {
		h := &stubHistory{}
		status, err := New(h, func() time.Time { return now }).Check(context.Background(), "u", analysis)
		if err != nil || status.OnCooldown {
			t.Errorf("expected no cooldown, got %+v, %v", status, err)
		}
	})

	t.Run("on cooldown", func(t *testing.T) {
		h := &stubHistory{last: t0, found: true}
		status, err := New(h, func() time.Time { return now }).Check(context.Background(), "u", analysis)
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if !status.OnCooldown || status.RemainingMinutes != 5 {
			t.Errorf("expected 5 minutes remaining, got %+v", status)
		}
	})

	t.Run("history error", func(t *testing.T) {
		h := &stubHistory{err: errors.New("timeout")}
		if _, err := New(h, nil).Check(context.Background(), "u", analysis); err == nil {
			t.Error("expected error")
		}
	})
}
