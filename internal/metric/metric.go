// Package metric holds the Prometheus collectors of the membership engine.
//
// Collectors live on a private registry so tests and multiple engines in
// one process never collide. A nil *Metrics is valid and records nothing.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/rollcall/internal/ir"
)

const namespace = "rollcall"

// Pass triggers.
const (
	TriggerFull     = "full"
	TriggerDelta    = "delta"
	TriggerManual   = "manual"
	TriggerDispose  = "dispose"
	TriggerSettings = "settings"
)

// Metrics bundles the collectors.
type Metrics struct {
	registry *prometheus.Registry

	passes           *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	dispatchFailures *prometheus.CounterVec
	satisfied        prometheus.Gauge
	queueDepth       *prometheus.GaugeVec
}

// New creates the collectors on a fresh registry. The registry also
// carries the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "membership",
			Name:      "passes_total",
			Help:      "Evaluation passes by trigger.",
		}, []string{"trigger"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "membership",
			Name:      "notifications_total",
			Help:      "Emitted notifications by kind, scope and status.",
		}, []string{"kind", "scope", "status"}),
		dispatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "dispatch_failures_total",
			Help:      "Notifications a sink failed to deliver.",
		}, []string{"sink"}),
		satisfied: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "membership",
			Name:      "satisfied_groups",
			Help:      "Cached groups currently satisfied.",
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Items waiting in a single-writer queue.",
		}, []string{"queue"}),
	}
	reg.MustRegister(
		m.passes,
		m.notifications,
		m.dispatchFailures,
		m.satisfied,
		m.queueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObservePass counts one evaluation pass.
func (m *Metrics) ObservePass(trigger string) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(trigger).Inc()
}

// ObserveNotification counts one emitted notification.
func (m *Metrics) ObserveNotification(n ir.Notification) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(string(n.Kind), string(n.Scope), string(n.Status)).Inc()
}

// DispatchFailed counts one failed delivery to sink.
func (m *Metrics) DispatchFailed(sink string) {
	if m == nil {
		return
	}
	m.dispatchFailures.WithLabelValues(sink).Inc()
}

// SetSatisfied records the number of satisfied cache entries.
func (m *Metrics) SetSatisfied(n int) {
	if m == nil {
		return
	}
	m.satisfied.Set(float64(n))
}

// SetQueueDepth records the depth of the named queue.
func (m *Metrics) SetQueueDepth(queue string, n int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(queue).Set(float64(n))
}
