// Package metrics provides Prometheus metrics instrumentation for qosapi.
//
// Metrics exposed:
//   - qosmetric_fetch_seconds: Histogram of curve repository fetch duration
//   - qosmetric_compute_seconds: Histogram of metric computation duration
//   - qosmetric_cache_hits_total / qosmetric_cache_misses_total: Cache lookups
//   - qosmetric_cache_evictions_total: Entries evicted from the result cache
//   - qosmetric_cache_entries: Gauge of cached results
//   - qosmetric_sink_writes_total: Result sink writes by outcome
//   - qosmetric_errors_total: Counter of errors by component and reason
//
// Metrics implements both engine.Metrics and cache.Observer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for qosapi.
type Metrics struct {
	FetchSeconds   prometheus.Histogram
	ComputeSeconds prometheus.Histogram
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter
	CacheEntries   prometheus.Gauge
	SinkWrites     *prometheus.CounterVec
	ErrorsTotal    *prometheus.CounterVec
}

// New creates all metrics and registers them with reg. A nil reg registers
// with prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FetchSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "qosmetric_fetch_seconds",
			Help:    "Time spent fetching inventory and consumption curves",
			Buckets: prometheus.DefBuckets,
		}),

		// A one-week, one-minute grid integrates in milliseconds.
		ComputeSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "qosmetric_compute_seconds",
			Help:    "Time spent computing the QoS metric",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),

		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "qosmetric_cache_hits_total",
			Help: "Result cache lookups served from the cache",
		}),

		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "qosmetric_cache_misses_total",
			Help: "Result cache lookups that required a computation",
		}),

		CacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "qosmetric_cache_evictions_total",
			Help: "Entries evicted from the result cache",
		}),

		CacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "qosmetric_cache_entries",
			Help: "Number of results currently cached",
		}),

		SinkWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "qosmetric_sink_writes_total",
			Help: "Result sink writes by outcome",
		}, []string{"outcome"}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "qosmetric_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),
	}
}

// RecordFetch records the time spent fetching curves.
func (m *Metrics) RecordFetch(seconds float64) {
	m.FetchSeconds.Observe(seconds)
}

// RecordCompute records the time spent computing a metric.
func (m *Metrics) RecordCompute(seconds float64) {
	m.ComputeSeconds.Observe(seconds)
}

// RecordSinkWrite counts a result sink write.
func (m *Metrics) RecordSinkWrite(outcome string) {
	m.SinkWrites.WithLabelValues(outcome).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func (m *Metrics) RecordCacheHit()       { m.CacheHits.Inc() }
func (m *Metrics) RecordCacheMiss()      { m.CacheMisses.Inc() }
func (m *Metrics) RecordCacheEviction()  { m.CacheEvictions.Inc() }
func (m *Metrics) SetCacheEntries(n int) { m.CacheEntries.Set(float64(n)) }
