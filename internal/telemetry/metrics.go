// Package telemetry exposes the Prometheus metrics rtx records while a
// pipeline run is in flight: provider latency, cache hit/miss, and
// overall run duration.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector rtx registers. A zero-value Metrics is
// not usable; construct with NewMetrics.
type Metrics struct {
	ProviderLatency   *prometheus.HistogramVec
	ProviderFailures  *prometheus.CounterVec
	CacheHits         *prometheus.CounterVec
	CacheMisses       *prometheus.CounterVec
	RunDuration       prometheus.Histogram
	DependenciesTotal prometheus.Gauge
}

// NewMetrics constructs and registers every collector against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rtx",
			Subsystem: "provider",
			Name:      "latency_seconds",
			Help:      "Latency of advisory/metadata provider calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		ProviderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtx",
			Subsystem: "provider",
			Name:      "failures_total",
			Help:      "Count of provider calls that errored, plus metadata lookups that came back unavailable.",
		}, []string{"source"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtx",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache lookups served from a cached entry.",
		}, []string{"source"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtx",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache lookups that required a fetch.",
		}, []string{"source"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rtx",
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of a full pipeline run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		DependenciesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rtx",
			Subsystem: "run",
			Name:      "dependencies_total",
			Help:      "Number of dependencies evaluated in the most recent run.",
		}),
	}

	reg.MustRegister(
		m.ProviderLatency,
		m.ProviderFailures,
		m.CacheHits,
		m.CacheMisses,
		m.RunDuration,
		m.DependenciesTotal,
	)
	return m
}

// ObserveProvider records the latency of one provider call and, if it
// failed, increments the failure counter for that source.
func (m *Metrics) ObserveProvider(source string, start time.Time, failed bool) {
	m.ProviderLatency.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if failed {
		m.ProviderFailures.WithLabelValues(source).Inc()
	}
}

// ObserveCache increments the hit or miss counter for source.
func (m *Metrics) ObserveCache(source string, hit bool) {
	if hit {
		m.CacheHits.WithLabelValues(source).Inc()
		return
	}
	m.CacheMisses.WithLabelValues(source).Inc()
}

// ObserveRun records the duration and size of a completed pipeline run.
func (m *Metrics) ObserveRun(start time.Time, dependencyCount int) {
	m.RunDuration.Observe(time.Since(start).Seconds())
	m.DependenciesTotal.Set(float64(dependencyCount))
}
