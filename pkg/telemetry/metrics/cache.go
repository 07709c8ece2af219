package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/creditgate/pkg/config"
)

// CacheMetrics tracks response cache behavior.
//
// Metrics:
//   - creditgate_cache_hits_total: Cache hits by feature
//   - creditgate_cache_misses_total: Cache misses by feature
//   - creditgate_cache_stores_total: Results written to the cache by feature
//   - creditgate_cache_errors_total: Backend errors by operation
//   - creditgate_cache_swept_total: Expired entries removed by the sweeper
//   - creditgate_cache_sweeps_total: Sweep runs by status
type CacheMetrics struct {
	hitsTotal   *prometheus.CounterVec
	missesTotal *prometheus.CounterVec
	storesTotal *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	sweptTotal  prometheus.Counter
	sweepsTotal *prometheus.CounterVec
}

// NewCacheMetrics creates and registers cache metrics with the provided registry.
func NewCacheMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CacheMetrics {
	cm := &CacheMetrics{
		hitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"feature"},
		),
		missesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"feature"},
		),
		storesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_stores_total",
				Help:      "Total number of results written to the cache",
			},
			[]string{"feature"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_errors_total",
				Help:      "Total number of cache backend errors",
			},
			[]string{"operation"},
		),
		sweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_swept_total",
				Help:      "Total number of expired cache entries removed",
			},
		),
		sweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_sweeps_total",
				Help:      "Total number of cache sweep runs",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		cm.hitsTotal,
		cm.missesTotal,
		cm.storesTotal,
		cm.errorsTotal,
		cm.sweptTotal,
		cm.sweepsTotal,
	)

	return cm
}

// RecordHit records a cache hit.
func (cm *CacheMetrics) RecordHit(feature string) {
	cm.hitsTotal.WithLabelValues(feature).Inc()
}

// RecordMiss records a cache miss.
func (cm *CacheMetrics) RecordMiss(feature string) {
	cm.missesTotal.WithLabelValues(feature).Inc()
}

// RecordStore records a result written to the cache.
func (cm *CacheMetrics) RecordStore(feature string) {
	cm.storesTotal.WithLabelValues(feature).Inc()
}

// RecordError records a backend error for operation ("lookup", "store", "sweep").
func (cm *CacheMetrics) RecordError(operation string) {
	cm.errorsTotal.WithLabelValues(operation).Inc()
}

// RecordSweep records one sweep run.
func (cm *CacheMetrics) RecordSweep(deleted int, err error) {
	if err != nil {
		cm.sweepsTotal.WithLabelValues("error").Inc()
		return
	}
	cm.sweepsTotal.WithLabelValues("success").Inc()
	cm.sweptTotal.Add(float64(deleted))
}
