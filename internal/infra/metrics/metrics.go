// Package metrics exposes daemon activity as Prometheus collectors.
//
// Collectors live in a dedicated registry and are fed by observing the
// engine's update signals, so the engine itself carries no metrics code.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/runoshun/magicbin/internal/domain"
	"github.com/runoshun/magicbin/internal/engine"
)

// Feed labels for the subscriptions gauge.
const (
	FeedNamespaces = "namespaces"
	FeedTasks      = "tasks"
	FeedBuffer     = "buffer"
)

// Metrics holds the daemon collectors.
type Metrics struct {
	registry      *prometheus.Registry
	transitions   *prometheus.CounterVec
	starts        *prometheus.CounterVec
	subscriptions *prometheus.GaugeVec
	logLines      *prometheus.CounterVec
}

// New creates the collectors. liveProcesses reports the number of live
// process groups and may be nil.
func New(liveProcesses func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "magicbin_task_transitions_total",
			Help: "Task status transitions by namespace and target status.",
		}, []string{"namespace", "status"}),
		starts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "magicbin_task_starts_total",
			Help: "Task processes started, including automatic reboots.",
		}, []string{"namespace"}),
		subscriptions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "magicbin_subscriptions_active",
			Help: "Live update subscriptions by feed.",
		}, []string{"feed"}),
		logLines: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "magicbin_log_lines_total",
			Help: "Output lines captured from task processes.",
		}, []string{"namespace"}),
	}

	if liveProcesses != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "magicbin_live_processes",
			Help: "Process groups currently owned by the daemon.",
		}, func() float64 { return float64(liveProcesses()) })
	}

	return m
}

// Observe feeds the collectors from core's signals until the returned
// function is called.
func (m *Metrics) Observe(core *engine.Core) (stop func()) {
	removeTask := core.TaskUpdated().Add(func(ev engine.TaskEvent) {
		if !ev.Transition {
			return
		}
		m.transitions.WithLabelValues(ev.Namespace, string(ev.Status)).Inc()
		if ev.Status == domain.StatusStarting {
			m.starts.WithLabelValues(ev.Namespace).Inc()
		}
	})
	removeLog := core.TaskLogFlushed().Add(func(ev engine.LogEvent) {
		m.logLines.WithLabelValues(ev.Namespace).Add(float64(len(ev.Lines)))
	})
	return func() {
		removeTask()
		removeLog()
	}
}

// Subscribed records a new subscription on feed. The returned function
// records its end.
func (m *Metrics) Subscribed(feed string) (done func()) {
	g := m.subscriptions.WithLabelValues(feed)
	g.Inc()
	return g.Dec
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
