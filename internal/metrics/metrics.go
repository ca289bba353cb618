// Package metrics exposes prometheus collectors for the line core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solatis/linekeeper/internal/alarms"
)

const namespace = "linekeeper"

// Collectors holds every line metric on a dedicated registry. It satisfies
// the observer interfaces of the line, jobs and rules packages.
type Collectors struct {
	registry *prometheus.Registry

	CurrentAlarms    *prometheus.GaugeVec
	ModuleItems      *prometheus.GaugeVec
	RulesFired       *prometheus.CounterVec
	ItemMoves        prometheus.Counter
	JobStartAttempts prometheus.Counter
	JobsCompleted    prometheus.Counter
}

// New creates and registers the collectors, plus Go runtime and process
// collectors.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),

		CurrentAlarms: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "current_alarms",
				Help:      "Number of current alarms per alarm manager",
			},
			[]string{"manager"},
		),

		ModuleItems: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "module_items",
				Help:      "Items currently owned by each module",
			},
			[]string{"module"},
		),

		RulesFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_fired_total",
				Help:      "Dependency rule firings whose conditions held",
			},
			[]string{"rule"},
		),

		ItemMoves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_moves_total",
			Help:      "Items moved between modules",
		}),

		JobStartAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_start_attempts_total",
			Help:      "Start-next-job scheduler attempts",
		}),

		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Jobs whose items were all fulfilled",
		}),
	}

	c.registry.MustRegister(
		c.CurrentAlarms,
		c.ModuleItems,
		c.RulesFired,
		c.ItemMoves,
		c.JobStartAttempts,
		c.JobsCompleted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying prometheus registry.
func (c *Collectors) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ItemCountChanged implements line.Observer.
func (c *Collectors) ItemCountChanged(module string, count int) {
	c.ModuleItems.WithLabelValues(module).Set(float64(count))
}

// ItemMoved implements line.Observer.
func (c *Collectors) ItemMoved(string, string) {
	c.ItemMoves.Inc()
}

// RuleFired implements rules.FireObserver.
func (c *Collectors) RuleFired(rule string) {
	c.RulesFired.WithLabelValues(rule).Inc()
}

// StartAttempted implements jobs.Observer.
func (c *Collectors) StartAttempted() { c.JobStartAttempts.Inc() }

// JobCompleted implements jobs.Observer.
func (c *Collectors) JobCompleted() { c.JobsCompleted.Inc() }

// WatchAlarms keeps the current_alarms gauge of am up to date and returns a
// function that stops watching.
func (c *Collectors) WatchAlarms(am *alarms.Manager) func() {
	g := c.CurrentAlarms.WithLabelValues(am.Name())
	g.Set(float64(len(am.CurrentAlarms())))
	return am.OnAlarmsChanged(func() {
		g.Set(float64(len(am.CurrentAlarms())))
	})
}
