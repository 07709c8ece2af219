package costs

import (
	"errors"
	"fmt"
	"time"
)

// Feature identifies a class of metered operation.
type Feature string

const (
	// FeatureChatMessage is a single AI chat completion.
	FeatureChatMessage Feature = "chat_message"

	// FeatureMeetingSummary summarizes a meeting transcript.
	FeatureMeetingSummary Feature = "meeting_summary"

	// FeatureContextAnalysis analyzes the aggregated workspace context.
	FeatureContextAnalysis Feature = "context_analysis"

	// FeatureTaskBreakdown splits a task into subtasks.
	FeatureTaskBreakdown Feature = "task_breakdown"

	// FeatureProjectInsights produces project health insights.
	FeatureProjectInsights Feature = "project_insights"

	// FeatureWeeklyReport generates the weekly progress report.
	FeatureWeeklyReport Feature = "weekly_report"
)

// ErrUnknownFeature is returned when a feature is not in the cost table.
// It indicates a caller configuration error and must never be retried.
var ErrUnknownFeature = errors.New("unknown feature")

// Entry is the cost table row for a single feature.
type Entry struct {
	// Feature is the feature identifier.
	Feature Feature `json:"feature" yaml:"feature"`

	// Credits is charged for every fresh (non-cached) invocation.
	Credits int `json:"credits" yaml:"credits"`

	// CooldownMinutes is the minimum spacing between charged invocations.
	// 0 means no cooldown.
	CooldownMinutes int `json:"cooldown_minutes,omitempty" yaml:"cooldown_minutes"`

	// CacheTTLHours is how long a settled result may be served from cache.
	// 0 means the feature is not cacheable.
	CacheTTLHours int `json:"cache_ttl_hours,omitempty" yaml:"cache_ttl_hours"`

	// Description is a short human-readable label used in estimates.
	Description string `json:"description" yaml:"description"`
}

// HasCooldown reports whether the feature enforces a cooldown.
func (e Entry) HasCooldown() bool {
	return e.CooldownMinutes > 0
}

// Cooldown returns the cooldown as a duration.
func (e Entry) Cooldown() time.Duration {
	return time.Duration(e.CooldownMinutes) * time.Minute
}

// Cacheable reports whether settled results for the feature are cached.
func (e Entry) Cacheable() bool {
	return e.CacheTTLHours > 0
}

// CacheTTL returns the cache TTL as a duration.
func (e Entry) CacheTTL() time.Duration {
	return time.Duration(e.CacheTTLHours) * time.Hour
}

// Estimate is the pre-action cost shown to users.
type Estimate struct {
	Feature     Feature `json:"feature"`
	Credits     int     `json:"credits"`
	Description string  `json:"description"`
}

// FeatureError wraps ErrUnknownFeature with the offending identifier.
type FeatureError struct {
	Feature Feature
}

// Error implements the error interface.
func (e *FeatureError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownFeature, string(e.Feature))
}

// Unwrap returns ErrUnknownFeature.
func (e *FeatureError) Unwrap() error {
	return ErrUnknownFeature
}
