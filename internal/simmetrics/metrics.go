// Package simmetrics exposes per-container tick, entity, module, status
// and fault counters as Prometheus collectors, for the fleet daemon's
// /metrics surface. Benchmark collector samples are not mirrored here.
//
// Grounded on the teacher's infrastructure/metrics package: a struct of
// *prometheus.{Counter,Histogram}Vec fields built in New/NewWithRegistry
// and registered once via registerer.MustRegister, with small Record*
// methods doing the label plumbing.
package simmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the fleet daemon exposes.
type Metrics struct {
	TickDuration      *prometheus.HistogramVec
	TicksTotal        *prometheus.CounterVec
	CommandExecutions *prometheus.CounterVec
	SystemErrors      *prometheus.CounterVec
	EntityCount       *prometheus.GaugeVec
	ModuleCount       *prometheus.GaugeVec
	ContainerStatus   *prometheus.GaugeVec
}

// New builds a Metrics instance registered against the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry builds a Metrics instance registered against registerer,
// letting tests use a private prometheus.NewRegistry() instead of the
// process-global default.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		TickDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "simfleet_tick_duration_seconds",
				Help:    "Duration of one advanceTick call",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"container"},
		),
		TicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simfleet_ticks_total",
				Help: "Total number of ticks advanced",
			},
			[]string{"container"},
		),
		CommandExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simfleet_command_executions_total",
				Help: "Total number of drained command executions, by result",
			},
			[]string{"container", "command", "result"},
		),
		SystemErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simfleet_system_errors_total",
				Help: "Total number of system update() or command executor calls that returned an error",
			},
			[]string{"container", "module"},
		),
		EntityCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "simfleet_entity_count",
				Help: "Current entity count in a container's ECS store",
			},
			[]string{"container"},
		),
		ModuleCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "simfleet_module_count",
				Help: "Current number of loaded modules in a container",
			},
			[]string{"container"},
		),
		ContainerStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "simfleet_container_status",
				Help: "Container status as an enum gauge (1 = current status)",
			},
			[]string{"container", "status"},
		),
	}

	registerer.MustRegister(
		m.TickDuration,
		m.TicksTotal,
		m.CommandExecutions,
		m.SystemErrors,
		m.EntityCount,
		m.ModuleCount,
		m.ContainerStatus,
	)
	return m
}

// RecordTick observes one tick's duration and increments the tick counter.
func (m *Metrics) RecordTick(container string, d time.Duration) {
	m.TickDuration.WithLabelValues(container).Observe(d.Seconds())
	m.TicksTotal.WithLabelValues(container).Inc()
}

// RecordCommand increments the command-execution counter for container.
func (m *Metrics) RecordCommand(container, command, result string) {
	m.CommandExecutions.WithLabelValues(container, command, result).Inc()
}

// RecordSystemError increments the system-error counter for container/module.
func (m *Metrics) RecordSystemError(container, module string) {
	m.SystemErrors.WithLabelValues(container, module).Inc()
}

// SetEntityCount sets the current entity-count gauge for container.
func (m *Metrics) SetEntityCount(container string, count int) {
	m.EntityCount.WithLabelValues(container).Set(float64(count))
}

// SetModuleCount sets the current module-count gauge for container.
func (m *Metrics) SetModuleCount(container string, count int) {
	m.ModuleCount.WithLabelValues(container).Set(float64(count))
}

// SetStatus marks status as the container's current status, clearing
// previously-set statuses so only one gauge reads 1 at a time.
func (m *Metrics) SetStatus(container string, allStatuses []string, current string) {
	for _, s := range allStatuses {
		if s == current {
			m.ContainerStatus.WithLabelValues(container, s).Set(1)
		} else {
			m.ContainerStatus.WithLabelValues(container, s).Set(0)
		}
	}
}
