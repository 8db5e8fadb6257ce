package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Turns counts classified turns. Labels: case.
	Turns *prometheus.CounterVec

	// Finalizations counts committed call summaries. Labels: trigger (silence|status).
	Finalizations *prometheus.CounterVec

	// CollaboratorFailures counts caught collaborator errors.
	// Labels: collaborator (openai|tts|sheets|calllog|email|telegram).
	CollaboratorFailures *prometheus.CounterVec

	// CollaboratorLatency measures collaborator calls in seconds.
	CollaboratorLatency *prometheus.HistogramVec
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emily",
			Name:      "turns_total",
			Help:      "Classified call turns by case",
		}, []string{"case"}),
		Finalizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emily",
			Name:      "finalizations_total",
			Help:      "Call summaries committed, by trigger",
		}, []string{"trigger"}),
		CollaboratorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emily",
			Name:      "collaborator_failures_total",
			Help:      "Collaborator calls that failed and fell back to a default",
		}, []string{"collaborator"}),
		CollaboratorLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "emily",
			Name:      "collaborator_latency_seconds",
			Help:      "Latency of collaborator calls",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}, []string{"collaborator"}),
	}
	m.registry.MustRegister(m.Turns, m.Finalizations, m.CollaboratorFailures, m.CollaboratorLatency)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TrackCalls exposes the size of store as gauges.
func (m *Metrics) TrackCalls(store *CallStore) {
	if m == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "emily",
			Name:      "calls_tracked",
			Help:      "Calls held in memory",
		}, func() float64 { return float64(store.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "emily",
			Name:      "calls_open",
			Help:      "Calls not yet finalized",
		}, func() float64 { return float64(store.Open()) }),
	)
}

func (m *Metrics) turn(tc TurnCase) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(tc.String()).Inc()
}

func (m *Metrics) finalized(trigger string) {
	if m == nil {
		return
	}
	m.Finalizations.WithLabelValues(trigger).Inc()
}

func (m *Metrics) failure(collaborator string) {
	if m == nil {
		return
	}
	m.CollaboratorFailures.WithLabelValues(collaborator).Inc()
}

func (m *Metrics) observeLatency(collaborator string, start time.Time) {
	if m == nil {
		return
	}
	m.CollaboratorLatency.WithLabelValues(collaborator).Observe(time.Since(start).Seconds())
}
