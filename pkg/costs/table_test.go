package costs

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultTable_Lookup(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		name         string
		feature      Feature
		wantCredits  int
		wantCooldown time.Duration
		wantTTL      time.Duration
		wantErr      bool
	}{
		{name: "chat message", feature: FeatureChatMessage, wantCredits: 1},
		{name: "meeting summary cached", feature: FeatureMeetingSummary, wantCredits: 10, wantTTL: 24 * time.Hour},
		{name: "context analysis with cooldown", feature: FeatureContextAnalysis, wantCredits: 5, wantCooldown: 15 * time.Minute, wantTTL: time.Hour},
		{name: "unknown feature", feature: Feature("image_generation"), wantErr: true},
		{name: "empty feature", feature: Feature(""), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := table.Lookup(tt.feature)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownFeature) {
					t.Fatalf("expected ErrUnknownFeature, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Lookup failed: %v", err)
			}
			if entry.Credits != tt.wantCredits {
				t.Errorf("expected %d credits, got %d", tt.wantCredits, entry.Credits)
			}
			if entry.Cooldown() != tt.wantCooldown {
				t.Errorf("expected cooldown %v, got %v", tt.wantCooldown, entry.Cooldown())
			}
			if entry.CacheTTL() != tt.wantTTL {
				t.Errorf("expected ttl %v, got %v", tt.wantTTL, entry.CacheTTL())
			}
			if entry.Cacheable() != (tt.wantTTL > 0) {
				t.Errorf("Cacheable() = %v, want %v", entry.Cacheable(), tt.wantTTL > 0)
			}
		})
	}
}

func TestNewTable_Validation(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		wantErr bool
	}{
		{name: "valid", entries: []Entry{{Feature: "a", Credits: 1}, {Feature: "b", Credits: 0}}},
		{name: "empty feature", entries: []Entry{{Feature: "", Credits: 1}}, wantErr: true},
		{name: "duplicate", entries: []Entry{{Feature: "a", Credits: 1}, {Feature: "a", Credits: 2}}, wantErr: true},
		{name: "negative credits", entries: []Entry{{Feature: "a", Credits: -1}}, wantErr: true},
		{name: "negative cooldown", entries: []Entry{{Feature: "a", CooldownMinutes: -5}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.entries...)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewTable() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTable_Estimate(t *testing.T) {
	table := DefaultTable()

	est, err := table.Estimate(FeatureMeetingSummary)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	if est.Credits != 10 {
		t.Errorf("expected 10 credits, got %d", est.Credits)
	}
	want := "Meeting summary: 10 credits (cached for 24h)"
	if est.Description != want {
		t.Errorf("expected description %q, got %q", want, est.Description)
	}

	est, err = table.Estimate(FeatureChatMessage)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	if est.Description != "AI chat message: 1 credit" {
		t.Errorf("unexpected description %q", est.Description)
	}

	est, _ = table.Estimate(FeatureWeeklyReport)
	want = "Weekly report: 15 credits (cached for 24h; available every 1d)"
	if est.Description != want {
		t.Errorf("expected description %q, got %q", want, est.Description)
	}

	if _, err := table.Estimate("nope"); !errors.Is(err, ErrUnknownFeature) {
		t.Errorf("expected ErrUnknownFeature, got %v", err)
	}
}

func TestTable_FeaturesSorted(t *testing.T) {
	features := DefaultTable().Features()
	if len(features) != len(defaultEntries) {
		t.Fatalf("expected %d features, got %d", len(defaultEntries), len(features))
	}
	for i := 1; i < len(features); i++ {
		if features[i-1].Feature >= features[i].Feature {
			t.Errorf("features not sorted: %q before %q", features[i-1].Feature, features[i].Feature)
		}
	}
}

func TestTable_ParseFeature(t *testing.T) {
	table := DefaultTable()

	f, err := table.ParseFeature(" meeting_summary ")
	if err != nil {
		t.Fatalf("ParseFeature failed: %v", err)
	}
	if f != FeatureMeetingSummary {
		t.Errorf("expected %q, got %q", FeatureMeetingSummary, f)
	}

	_, err = table.ParseFeature("MEETING_SUMMARY")
	var fe *FeatureError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FeatureError, got %T", err)
	}
	if fe.Feature != "MEETING_SUMMARY" {
		t.Errorf("expected offending feature in error, got %q", fe.Feature)
	}
}
