// Package telemetry exposes Prometheus metrics for the memory core.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sandevgo/recall/internal/core"
)

const namespace = core.AppName

// Metrics is safe to use through a nil pointer, every recorder is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	messages    prometheus.Counter
	factUpdates *prometheus.CounterVec
	resets      *prometheus.CounterVec
	initFails   prometheus.Counter
	initLatency prometheus.Histogram
	health      *prometheus.GaugeVec
	bundleSize  prometheus.Histogram
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "User messages processed.",
		}),
		factUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fact_updates_total",
			Help:      "Fact store updates by outcome.",
		}, []string{"outcome"}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_resets_total",
			Help:      "Committed execution context resets by reason.",
		}, []string{"reason"}),
		initFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_init_failures_total",
			Help:      "Execution context initializations that failed after retries.",
		}),
		initLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_init_seconds",
			Help:      "Time spent initializing execution contexts.",
			Buckets:   prometheus.DefBuckets,
		}),
		health: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_health_score",
			Help:      "Latest memory health score by session and metric.",
		}, []string{"session", "metric"}),
		bundleSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bundle_characters",
			Help:      "Rendered memory bundle size in characters.",
			Buckets:   prometheus.LinearBuckets(100, 100, 10),
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messages,
		m.factUpdates,
		m.resets,
		m.initFails,
		m.initLatency,
		m.health,
		m.bundleSize,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveMessage(outcomes []core.FactUpdateResult) {
	if m == nil {
		return
	}
	m.messages.Inc()
	for _, o := range outcomes {
		m.factUpdates.WithLabelValues(string(o.Outcome)).Inc()
	}
}

func (m *Metrics) ObserveHealth(rec core.HealthRecord) {
	if m == nil {
		return
	}
	m.health.WithLabelValues(rec.SessionID, "retention").Set(rec.RetentionScore)
	m.health.WithLabelValues(rec.SessionID, "consistency").Set(rec.ConsistencyScore)
	m.health.WithLabelValues(rec.SessionID, "learning_velocity").Set(rec.LearningVelocity)
	m.health.WithLabelValues(rec.SessionID, "context_relevance").Set(rec.ContextRelevance)
	m.health.WithLabelValues(rec.SessionID, "overall").Set(rec.Overall())
}

func (m *Metrics) ObserveReset(reason core.ResetReason, bundle core.MemoryBundle, took time.Duration) {
	if m == nil {
		return
	}
	m.resets.WithLabelValues(string(reason)).Inc()
	m.bundleSize.Observe(float64(bundle.Len()))
	m.initLatency.Observe(took.Seconds())
}

func (m *Metrics) ObserveInitFailure(took time.Duration) {
	if m == nil {
		return
	}
	m.initFails.Inc()
	m.initLatency.Observe(took.Seconds())
}
