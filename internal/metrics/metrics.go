// Package metrics exposes launcher counters in Prometheus format. All methods
// are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "petrel"

// Metrics owns a private registry and the launcher's collectors.
type Metrics struct {
	registry *prometheus.Registry

	lookups      *prometheus.CounterVec
	submissions  *prometheus.CounterVec
	tasksRunning *prometheus.GaugeVec
	taskExits    *prometheus.CounterVec
}

// New creates the collectors and registers them, along with the Go runtime
// and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resource",
			Name:      "lookups_total",
			Help:      "Resource lookups by provider and result.",
		}, []string{"provider", "result"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Topology submissions by mode and outcome.",
		}, []string{"mode", "outcome"}),
		tasksRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "local",
			Name:      "tasks_running",
			Help:      "Component tasks currently running in the local cluster.",
		}, []string{"component"}),
		taskExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "local",
			Name:      "task_exits_total",
			Help:      "Component task exits by outcome.",
		}, []string{"component", "outcome"}),
	}
	m.registry.MustRegister(
		m.lookups, m.submissions, m.tasksRunning, m.taskExits,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveLookup counts one provider lookup.
func (m *Metrics) ObserveLookup(provider string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.WithLabelValues(provider, result).Inc()
}

// ObserveSubmission counts one submission attempt.
func (m *Metrics) ObserveSubmission(mode string, err error) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(mode, outcome(err)).Inc()
}

// TaskStarted marks one task of component as running.
func (m *Metrics) TaskStarted(component string) {
	if m == nil {
		return
	}
	m.tasksRunning.WithLabelValues(component).Inc()
}

// TaskExited marks one task of component as stopped.
func (m *Metrics) TaskExited(component string, err error) {
	if m == nil {
		return
	}
	m.tasksRunning.WithLabelValues(component).Dec()
	m.taskExits.WithLabelValues(component, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
