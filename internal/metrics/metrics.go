// Package metrics holds the prometheus collectors shared by the gateway.
// A nil *Metrics is valid and records nothing, which keeps tests free of registries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "defai"

// Metrics groups the collectors registered on a dedicated registry
type Metrics struct {
	Registry *prometheus.Registry

	connects      *prometheus.CounterVec
	pollAttempts  prometheus.Counter
	pollOutcomes  *prometheus.CounterVec
	notifications *prometheus.CounterVec
	aiRequests    *prometheus.CounterVec
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Session connect attempts by result.",
		}, []string{"result"}),
		pollAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipt_queries_total",
			Help:      "Transaction receipt queries issued by the poller.",
		}),
		pollOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_outcomes_total",
			Help:      "Finished transaction polls by outcome.",
		}, []string{"status"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_published_total",
			Help:      "Notifications published on the bus by topic.",
		}, []string{"topic"}),
		aiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_requests_total",
			Help:      "AI requests by reply kind or failure.",
		}, []string{"kind"}),
	}

	m.Registry.MustRegister(
		m.connects,
		m.pollAttempts,
		m.pollOutcomes,
		m.notifications,
		m.aiRequests,
		prometheus.NewGoCollector(),
	)

	return m
}

func (m *Metrics) ConnectAttempt(result string) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(result).Inc()
}

func (m *Metrics) ReceiptQuery() {
	if m == nil {
		return
	}
	m.pollAttempts.Inc()
}

func (m *Metrics) PollOutcome(status string) {
	if m == nil {
		return
	}
	m.pollOutcomes.WithLabelValues(status).Inc()
}

func (m *Metrics) Notification(topic string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(topic).Inc()
}

func (m *Metrics) AIRequest(kind string) {
	if m == nil {
		return
	}
	m.aiRequests.WithLabelValues(kind).Inc()
}
