// Package metrics exposes Prometheus collectors for dispatch, delivery and
// session binding. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mudcore"

type Metrics struct {
	Registry *prometheus.Registry

	commands      *prometheus.CounterVec
	messages      *prometheus.CounterVec
	promptRetries prometheus.Counter
	bindings      *prometheus.CounterVec
	descends      *prometheus.CounterVec
	connections   *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Dispatched command lines by result.",
		}, []string{"result"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Message delivery attempts by result.",
		}, []string{"result"}),
		promptRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompt_retries_total",
			Help:      "Input prompts pushed again after a retry signal.",
		}),
		bindings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bindings_total",
			Help:      "Connection to session bindings by result.",
		}, []string{"result"}),
		descends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "descends_total",
			Help:      "Descend attempts by result.",
		}, []string{"result"}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open connections by transport.",
		}, []string{"transport"}),
	}
	m.Registry.MustRegister(
		m.commands,
		m.messages,
		m.promptRetries,
		m.bindings,
		m.descends,
		m.connections,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Command(result string) {
	if m != nil {
		m.commands.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Message(result string) {
	if m != nil {
		m.messages.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) PromptRetry() {
	if m != nil {
		m.promptRetries.Inc()
	}
}

func (m *Metrics) Binding(result string) {
	if m != nil {
		m.bindings.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Descend(result string) {
	if m != nil {
		m.descends.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Connected(transport string) {
	if m != nil {
		m.connections.WithLabelValues(transport).Inc()
	}
}

func (m *Metrics) Disconnected(transport string) {
	if m != nil {
		m.connections.WithLabelValues(transport).Dec()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
