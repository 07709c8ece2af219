package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/creditgate/pkg/config"
)

// DefaultMaxTrackedUsers caps the number of distinct users exported by the
// per-user usage gauge.
const DefaultMaxTrackedUsers = 10000

// Collector owns the Prometheus registry and every creditgate metric.
// All Record methods are no-ops when metrics are disabled, and a nil
// *Collector is safe to use.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	credits *CreditMetrics
	cache   *CacheMetrics

	users *CardinalityLimiter
}

// NewCollector creates a collector. If registry is nil a fresh registry is
// created with the Go runtime and process collectors attached.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if cfg == nil {
		cfg = &config.MetricsConfig{Enabled: true}
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}

	return &Collector{
		config:   cfg,
		registry: registry,
		credits:  NewCreditMetrics(cfg, registry),
		cache:    NewCacheMetrics(cfg, registry),
		users:    NewCardinalityLimiter(DefaultMaxTrackedUsers),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordDecision counts one authorize outcome for feature.
func (c *Collector) RecordDecision(feature, outcome string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.credits.RecordDecision(feature, outcome)
	c.credits.ObserveDuration("authorize", duration)
}

// RecordSettle records a settle call and, on success, the credits charged.
func (c *Collector) RecordSettle(feature string, credits int, retries int, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.credits.ObserveDuration("settle", duration)
	c.credits.RecordRetries(retries)
	if credits > 0 {
		c.credits.RecordCharge(feature, credits)
	}
}

// RecordDenial records a denial with a stable reason code.
func (c *Collector) RecordDenial(feature, reason string) {
	if !c.enabled() {
		return
	}
	c.credits.RecordDenial(feature, reason)
}

// RecordWarning records an emitted usage warning ("50", "80", "100").
func (c *Collector) RecordWarning(threshold string) {
	if !c.enabled() {
		return
	}
	c.credits.RecordWarning(threshold)
}

// UpdateCreditsUsed sets the usage gauge for a user. Users beyond the
// tracking cap are not exported.
func (c *Collector) UpdateCreditsUsed(userID, periodKey string, used int) {
	if !c.enabled() {
		return
	}
	if !c.users.Allow(userID) {
		return
	}
	c.credits.SetCreditsUsed(userID, periodKey, used)
}

// RecordCacheHit records a cache hit.
func (c *Collector) RecordCacheHit(feature string) {
	if !c.enabled() {
		return
	}
	c.cache.RecordHit(feature)
}

// RecordCacheMiss records a cache miss.
func (c *Collector) RecordCacheMiss(feature string) {
	if !c.enabled() {
		return
	}
	c.cache.RecordMiss(feature)
}

// RecordCacheStore records a result written to the cache.
func (c *Collector) RecordCacheStore(feature string) {
	if !c.enabled() {
		return
	}
	c.cache.RecordStore(feature)
}

// RecordCacheError records a cache backend error.
func (c *Collector) RecordCacheError(operation string) {
	if !c.enabled() {
		return
	}
	c.cache.RecordError(operation)
}

// RecordSweep records a cache sweep result.
func (c *Collector) RecordSweep(deleted int, err error) {
	if !c.enabled() {
		return
	}
	c.cache.RecordSweep(deleted, err)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter bounds the number of distinct label values admitted.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting at most maxCardinality values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is already tracked or there is room for it.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	_, exists := cl.current[value]
	cl.mu.RUnlock()
	if exists {
		return true
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the number of tracked values.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
