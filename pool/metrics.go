package pool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors a pool reports into. A nil
// *Metrics records nothing.
type Metrics struct {
	TasksQueued   prometheus.Gauge
	IdleWorkers   prometheus.Gauge
	TasksExecuted prometheus.Counter
	TasksFaulted  prometheus.Counter
	TasksDropped  prometheus.Counter
	TaskDuration  prometheus.Histogram
}

// NewMetrics creates the pool collectors and registers them with registerer.
// Pools sharing a registerer must use different namespaces.
func NewMetrics(registerer prometheus.Registerer, namespace string) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		TasksQueued: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_queued",
			Help:      "Number of tasks waiting in the work queue",
		}),
		IdleWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "idle_workers",
			Help:      "Number of workers sleeping on the wake condition",
		}),
		TasksExecuted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_executed_total",
			Help:      "Total number of tasks executed, including faulted ones",
		}),
		TasksFaulted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_faulted_total",
			Help:      "Total number of tasks that panicked",
		}),
		TasksDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_dropped_total",
			Help:      "Total number of tasks pushed after the pool was stopped",
		}),
		TaskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "task_duration_seconds",
			Help:      "Histogram of task execution time",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) queued(n int) {
	if m == nil {
		return
	}
	m.TasksQueued.Set(float64(n))
}

func (m *Metrics) idle(n int) {
	if m == nil {
		return
	}
	m.IdleWorkers.Set(float64(n))
}

func (m *Metrics) executed(d time.Duration, faulted bool) {
	if m == nil {
		return
	}
	m.TasksExecuted.Inc()
	m.TaskDuration.Observe(d.Seconds())
	if faulted {
		m.TasksFaulted.Inc()
	}
}

func (m *Metrics) dropped(n int) {
	if m == nil {
		return
	}
	m.TasksDropped.Add(float64(n))
}
