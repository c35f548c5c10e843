package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ComponentMetrics implements the two telemetry hooks SPEC_FULL.md §4.6
// requires of every facade: compile timing, and external call response
// size. Both are side-effect-only and never fail the caller.
type ComponentMetrics struct {
	CompilationSeconds      prometheus.Histogram
	ExternalResponseBytes   *prometheus.HistogramVec
}

var (
	componentMetricsOnce     sync.Once
	componentMetricsInstance *ComponentMetrics
)

// NewComponentMetrics returns the process-wide singleton ComponentMetrics.
func NewComponentMetrics() *ComponentMetrics {
	componentMetricsOnce.Do(func() {
		componentMetricsInstance = &ComponentMetrics{
			CompilationSeconds: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "component_cache",
					Subsystem: "compile",
					Name:      "duration_seconds",
					Help:      "Wall time spent compiling a raw component into an engine-ready artifact",
					Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
				},
			),
			ExternalResponseBytes: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "component_cache",
					Subsystem: "external_call",
					Name:      "response_size_bytes",
					Help:      "Size of successful external-call responses, by subsystem and operation",
					Buckets:   prometheus.ExponentialBuckets(256, 4, 12),
				},
				[]string{"subsystem", "operation"},
			),
		}
	})
	return componentMetricsInstance
}

// RecordCompilationTime is called exactly once per successful compile.
func (m *ComponentMetrics) RecordCompilationTime(d time.Duration) {
	if m == nil {
		return
	}
	m.CompilationSeconds.Observe(d.Seconds())
}

// RecordExternalCallResponseSizeBytes is called once per successful remote
// response, labeled by the subsystem (e.g. "registry") and operation (e.g.
// "download_component", "get_component_metadata").
func (m *ComponentMetrics) RecordExternalCallResponseSizeBytes(subsystem, op string, bytes int) {
	if m == nil {
		return
	}
	m.ExternalResponseBytes.WithLabelValues(subsystem, op).Observe(float64(bytes))
}
