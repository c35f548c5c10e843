// Package telemetry provides the Prometheus-backed metrics and timing hooks
// the component cache calls into. Every hook here is side-effect-only: none
// of them can fail the caller, matching the contract in SPEC_FULL.md §4.6.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CacheMetrics tracks hit/miss/eviction/producer-start counts for a
// KeyedSingleflightCache, labeled by cache name so the component cache and
// the metadata cache share one registered metric family.
type CacheMetrics struct {
	Hits           *prometheus.CounterVec
	Misses         *prometheus.CounterVec
	Evictions      *prometheus.CounterVec
	ProducerStarts *prometheus.CounterVec
	ProducerErrors *prometheus.CounterVec
	Entries        *prometheus.GaugeVec
}

var (
	cacheMetricsOnce     sync.Once
	cacheMetricsInstance *CacheMetrics
)

// NewCacheMetrics returns the process-wide singleton CacheMetrics,
// registering it with the default Prometheus registry on first call.
func NewCacheMetrics() *CacheMetrics {
	cacheMetricsOnce.Do(func() {
		cacheMetricsInstance = &CacheMetrics{
			Hits: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "component_cache",
					Subsystem: "singleflight_cache",
					Name:      "hits_total",
					Help:      "Total number of cache hits by cache name",
				},
				[]string{"cache_name"},
			),
			Misses: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "component_cache",
					Subsystem: "singleflight_cache",
					Name:      "misses_total",
					Help:      "Total number of cache misses by cache name",
				},
				[]string{"cache_name"},
			),
			Evictions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "component_cache",
					Subsystem: "singleflight_cache",
					Name:      "evictions_total",
					Help:      "Total number of entries evicted, by cache name and reason",
				},
				[]string{"cache_name", "reason"},
			),
			ProducerStarts: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "component_cache",
					Subsystem: "singleflight_cache",
					Name:      "producer_starts_total",
					Help:      "Total number of producer invocations (collapsed across concurrent misses)",
				},
				[]string{"cache_name"},
			),
			ProducerErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "component_cache",
					Subsystem: "singleflight_cache",
					Name:      "producer_errors_total",
					Help:      "Total number of producer invocations that returned an error and were not cached",
				},
				[]string{"cache_name"},
			),
			Entries: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "component_cache",
					Subsystem: "singleflight_cache",
					Name:      "entries",
					Help:      "Current number of entries held in the cache",
				},
				[]string{"cache_name"},
			),
		}
	})
	return cacheMetricsInstance
}

// RecordHit increments the hit counter for cacheName. Safe to call on a nil
// receiver so callers can pass a nil *CacheMetrics in tests.
func (m *CacheMetrics) RecordHit(cacheName string) {
	if m == nil {
		return
	}
	m.Hits.WithLabelValues(cacheName).Inc()
}

func (m *CacheMetrics) RecordMiss(cacheName string) {
	if m == nil {
		return
	}
	m.Misses.WithLabelValues(cacheName).Inc()
}

func (m *CacheMetrics) RecordEviction(cacheName, reason string) {
	if m == nil {
		return
	}
	m.Evictions.WithLabelValues(cacheName, reason).Inc()
}

func (m *CacheMetrics) RecordProducerStart(cacheName string) {
	if m == nil {
		return
	}
	m.ProducerStarts.WithLabelValues(cacheName).Inc()
}

func (m *CacheMetrics) RecordProducerError(cacheName string) {
	if m == nil {
		return
	}
	m.ProducerErrors.WithLabelValues(cacheName).Inc()
}

func (m *CacheMetrics) SetEntries(cacheName string, n int) {
	if m == nil {
		return
	}
	m.Entries.WithLabelValues(cacheName).Set(float64(n))
}
