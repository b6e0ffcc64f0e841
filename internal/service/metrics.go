package service

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "netconform"

// Metrics counts the work of the reconciliation loop. It uses its own
// registry so several reconcilers can live in one process.
type Metrics struct {
	registry      *prometheus.Registry
	events        *prometheus.CounterVec
	errors        *prometheus.CounterVec
	notifications *prometheus.CounterVec
	dropped       prometheus.Counter
	entities      *prometheus.GaugeVec
}

// NewMetrics creates and registers the collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Evidence events consumed, by kind and source label.",
		}, []string{"kind", "label"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "event_errors_total",
			Help:      "Events rejected by the inspector or the event log, by stage.",
		}, []string{"stage"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "notifications_total",
			Help:      "Model change notifications dispatched, by type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bus_dropped_total",
			Help:      "Event bus deliveries skipped because a subscriber was slow.",
		}),
		entities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "entities",
			Help:      "Entities in the last report, by verdict.",
		}, []string{"verdict"}),
	}
	m.registry.MustRegister(m.events, m.errors, m.notifications, m.dropped, m.entities)
	return m
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) event(kind, label string) {
	m.events.WithLabelValues(kind, label).Inc()
}

func (m *Metrics) failure(stage string) {
	m.errors.WithLabelValues(stage).Inc()
}

func (m *Metrics) notified(t EventType, dropped int) {
	m.notifications.WithLabelValues(string(t)).Inc()
	m.dropped.Add(float64(dropped))
}

func (m *Metrics) verdicts(counts map[string]int) {
	m.entities.Reset()
	for v, n := range counts {
		m.entities.WithLabelValues(v).Set(float64(n))
	}
}
