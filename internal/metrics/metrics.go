// Package metrics holds govbot's Prometheus collectors and the small HTTP
// surface that exposes them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/roach88/govbot/internal/store"
)

const namespace = "govbot"

// Metrics owns a private registry. It implements service.Observer and
// engine.Observer.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	notifies        prometheus.Counter
	rebuilds        prometheus.Counter
	rebuildDuration prometheus.Histogram
	indices         prometheus.Gauge
	compacted       *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Socket exchanges by service and outcome.",
		}, []string{"service", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Socket exchange latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"service"}),
		notifies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifies_written_total",
			Help:      "Notify records written by the dispatcher.",
		}),
		rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuilds_total",
			Help:      "Full index rebuilds.",
		}),
		rebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuild_duration_seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		indices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "indices",
			Help:      "Indices produced by the last rebuild.",
		}),
		compacted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compaction_removed_total",
			Help:      "Records and references removed by compaction.",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.notifies,
		m.rebuilds,
		m.rebuildDuration,
		m.indices,
		m.compacted,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TrackQueue exposes length, typically engine.QueueLen, as the number of
// refresh triggers waiting for the engine's Run loop.
func (m *Metrics) TrackQueue(length func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "queue_length",
		Help:      "Refresh triggers waiting for the engine.",
	}, func() float64 { return float64(length()) }))
}

// ObserveRequest records one socket exchange.
func (m *Metrics) ObserveRequest(service, outcome string, took time.Duration) {
	m.requests.WithLabelValues(service, outcome).Inc()
	m.requestDuration.WithLabelValues(service).Observe(took.Seconds())
}

// ObserveNotifies records Notify records written by one dispatch.
func (m *Metrics) ObserveNotifies(count int) {
	if count > 0 {
		m.notifies.Add(float64(count))
	}
}

// ObserveReindex records one index rebuild.
func (m *Metrics) ObserveReindex(indices int, took time.Duration) {
	m.rebuilds.Inc()
	m.rebuildDuration.Observe(took.Seconds())
	m.indices.Set(float64(indices))
}

// ObserveCompaction records what one compaction pass removed.
func (m *Metrics) ObserveCompaction(stats store.CompactStats) {
	m.compacted.WithLabelValues("dangling_ref").Add(float64(stats.DanglingRefs))
	m.compacted.WithLabelValues("empty_index").Add(float64(stats.EmptyIndices))
	m.compacted.WithLabelValues("superseded_index").Add(float64(stats.SupersededIndices))
	m.compacted.WithLabelValues("trimmed_result").Add(float64(stats.TrimmedResults))
}
