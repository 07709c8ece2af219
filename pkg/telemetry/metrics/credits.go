package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/creditgate/pkg/config"
)

// CreditMetrics tracks gate decisions and ledger activity.
//
// Metrics:
//   - creditgate_decisions_total: Authorize outcomes by feature and outcome
//   - creditgate_decision_duration_seconds: Authorize/settle latency by operation
//   - creditgate_credits_charged_total: Credits deducted by feature
//   - creditgate_denials_total: Denials by feature and reason code
//   - creditgate_deduct_retries_total: Conditional update attempts beyond the first
//   - creditgate_warnings_total: Usage warnings emitted by threshold
//   - creditgate_credits_used: Credits used in the current period per user
type CreditMetrics struct {
	decisionsTotal   *prometheus.CounterVec
	decisionDuration *prometheus.HistogramVec
	chargedTotal     *prometheus.CounterVec
	denialsTotal     *prometheus.CounterVec
	retriesTotal     prometheus.Counter
	warningsTotal    *prometheus.CounterVec
	creditsUsed      *prometheus.GaugeVec
}

// NewCreditMetrics creates and registers credit metrics with the provided registry.
func NewCreditMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CreditMetrics {
	cm := &CreditMetrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decisions_total",
				Help:      "Total number of authorization decisions",
			},
			[]string{"feature", "outcome"},
		),
		decisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decision_duration_seconds",
				Help:      "Authorize and settle latency in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
			},
			[]string{"operation"},
		),
		chargedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "credits_charged_total",
				Help:      "Total credits deducted",
			},
			[]string{"feature"},
		),
		denialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "denials_total",
				Help:      "Total number of denied requests",
			},
			[]string{"feature", "reason"},
		),
		retriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "deduct_retries_total",
				Help:      "Total conditional update retries during deduction",
			},
		),
		warningsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "warnings_total",
				Help:      "Total usage warnings emitted",
			},
			[]string{"threshold"},
		),
		creditsUsed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "credits_used",
				Help:      "Credits used in the current period",
			},
			[]string{"user", "period"},
		),
	}

	registry.MustRegister(
		cm.decisionsTotal,
		cm.decisionDuration,
		cm.chargedTotal,
		cm.denialsTotal,
		cm.retriesTotal,
		cm.warningsTotal,
		cm.creditsUsed,
	)

	return cm
}

// RecordDecision counts one authorize outcome.
func (cm *CreditMetrics) RecordDecision(feature, outcome string) {
	cm.decisionsTotal.WithLabelValues(feature, outcome).Inc()
}

// ObserveDuration records the latency of an authorize or settle call.
func (cm *CreditMetrics) ObserveDuration(operation string, d time.Duration) {
	cm.decisionDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordCharge records a successful deduction.
func (cm *CreditMetrics) RecordCharge(feature string, credits int) {
	cm.chargedTotal.WithLabelValues(feature).Add(float64(credits))
}

// RecordDenial records a denial with its reason code.
func (cm *CreditMetrics) RecordDenial(feature, reason string) {
	cm.denialsTotal.WithLabelValues(feature, reason).Inc()
}

// RecordRetries adds n retries.
func (cm *CreditMetrics) RecordRetries(n int) {
	if n > 0 {
		cm.retriesTotal.Add(float64(n))
	}
}

// RecordWarning records an emitted usage warning.
func (cm *CreditMetrics) RecordWarning(threshold string) {
	cm.warningsTotal.WithLabelValues(threshold).Inc()
}

// SetCreditsUsed updates the per-user usage gauge.
func (cm *CreditMetrics) SetCreditsUsed(userID, periodKey string, used int) {
	cm.creditsUsed.WithLabelValues(userID, periodKey).Set(float64(used))
}
