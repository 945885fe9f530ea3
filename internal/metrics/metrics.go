// Package metrics provides Prometheus collectors for the harness.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hookbench"

// Metrics holds the Prometheus collectors for ingest, broadcast, and run
// execution. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ingestDuration   prometheus.Histogram
	eventsAppended   *prometheus.CounterVec
	duplicateEvents  prometheus.Counter
	verifyOutcomes   *prometheus.CounterVec
	observersDropped prometheus.Counter
	observersActive  prometheus.Gauge
	runsCompleted    *prometheus.CounterVec
	stepDuration     *prometheus.HistogramVec
	compensations    *prometheus.CounterVec
}

// New creates a metrics collector with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_store_duration_seconds",
			Help:      "Time from webhook receipt to durable event append",
			Buckets:   []float64{.005, .01, .025, .05, .1, .2, .5, 1},
		}),
		eventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_appended_total",
			Help:      "Total events appended to the event store",
		}, []string{"kind"}),
		duplicateEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_duplicates_total",
			Help:      "Webhook deliveries recorded as duplicate markers",
		}),
		verifyOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_verifications_total",
			Help:      "Signature verification outcomes by provider",
		}, []string{"provider", "verified"}),
		observersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observers_dropped_total",
			Help:      "Observers dropped for falling behind the live stream",
		}),
		observersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observers_active",
			Help:      "Currently connected observers",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Runs by terminal state",
		}, []string{"state"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "External step call duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"api", "ok"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensations_total",
			Help:      "Compensation attempts by outcome",
		}, []string{"ok"}),
	}

	registry.MustRegister(
		m.ingestDuration, m.eventsAppended, m.duplicateEvents, m.verifyOutcomes,
		m.observersDropped, m.observersActive, m.runsCompleted, m.stepDuration,
		m.compensations,
	)
	return m
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveIngest(seconds float64) {
	if m != nil {
		m.ingestDuration.Observe(seconds)
	}
}

func (m *Metrics) EventAppended(kind string) {
	if m != nil {
		m.eventsAppended.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) DuplicateDelivery() {
	if m != nil {
		m.duplicateEvents.Inc()
	}
}

func (m *Metrics) Verification(provider, verified string) {
	if m != nil {
		m.verifyOutcomes.WithLabelValues(provider, verified).Inc()
	}
}

func (m *Metrics) ObserverDropped() {
	if m != nil {
		m.observersDropped.Inc()
	}
}

func (m *Metrics) ObserverConnected() {
	if m != nil {
		m.observersActive.Inc()
	}
}

func (m *Metrics) ObserverDisconnected() {
	if m != nil {
		m.observersActive.Dec()
	}
}

func (m *Metrics) RunCompleted(state string) {
	if m != nil {
		m.runsCompleted.WithLabelValues(state).Inc()
	}
}

func (m *Metrics) ObserveStep(api string, ok bool, seconds float64) {
	if m != nil {
		m.stepDuration.WithLabelValues(api, boolLabel(ok)).Observe(seconds)
	}
}

func (m *Metrics) Compensation(ok bool) {
	if m != nil {
		m.compensations.WithLabelValues(boolLabel(ok)).Inc()
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
