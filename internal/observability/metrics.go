// Package observability exposes run and task metrics to Prometheus.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aptoswarm/internal/events"
	"aptoswarm/internal/models"
)

// Metrics holds all Prometheus metrics for the executor
type Metrics struct {
	registry *prometheus.Registry

	// Task metrics
	TasksCompleted *prometheus.CounterVec
	TasksActive    prometheus.Gauge
	TaskDuration   *prometheus.HistogramVec

	// Wallet metrics
	WalletsStarted   prometheus.Counter
	WalletsCompleted *prometheus.CounterVec

	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunActive   prometheus.Gauge
	RunDuration prometheus.Histogram

	mu      sync.Mutex
	started map[taskKey]time.Time
}

type taskKey struct {
	wallet uuid.UUID
	task   uuid.UUID
}

// NewMetrics creates metrics on a private registry, so several instances can coexist in tests
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "aptoswarm"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TasksCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "tasks_completed_total",
			Help:      "Total number of completed tasks by module and final status",
		}, []string{"module", "status", "virtual"}),
		TasksActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "tasks_active",
			Help:      "Number of tasks currently executing",
		}),
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "task_duration_seconds",
			Help:      "Task execution time including retries and receipt waits",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"module"}),

		WalletsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "wallets_started_total",
			Help:      "Total number of wallets started",
		}),
		WalletsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "wallets_completed_total",
			Help:      "Total number of wallets completed by final status",
		}, []string{"status"}),

		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "total",
			Help:      "Total number of finished runs by strategy and status",
		}, []string{"strategy", "status"}),
		RunActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "active",
			Help:      "1 while a run is in progress",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of finished runs",
			Buckets:   prometheus.ExponentialBuckets(10, 3, 8),
		}),

		started: make(map[taskKey]time.Time),
	}
}

// Attach subscribes the metrics to executor events
func (m *Metrics) Attach(eventManager *events.Manager) {
	eventManager.OnWalletStarted(func(models.Wallet) {
		m.WalletsStarted.Inc()
	})
	eventManager.OnWalletCompleted(func(w models.Wallet) {
		m.WalletsCompleted.WithLabelValues(string(w.Status)).Inc()
	})
	eventManager.OnTaskStarted(m.taskStarted)
	eventManager.OnTaskCompleted(m.taskCompleted)
}

func (m *Metrics) taskStarted(t models.Task, w models.Wallet) {
	m.mu.Lock()
	m.started[taskKey{w.WalletID, t.TaskID}] = time.Now()
	m.mu.Unlock()
	m.TasksActive.Inc()
}

func (m *Metrics) taskCompleted(t models.Task, w models.Wallet) {
	virtual := "false"
	if t.Virtual {
		virtual = "true"
	}
	m.TasksCompleted.WithLabelValues(string(t.Kind), string(t.Status), virtual).Inc()

	key := taskKey{w.WalletID, t.TaskID}
	m.mu.Lock()
	start, ok := m.started[key]
	delete(m.started, key)
	m.mu.Unlock()

	// skipped tasks never started
	if ok {
		m.TasksActive.Dec()
		m.TaskDuration.WithLabelValues(string(t.Kind)).Observe(time.Since(start).Seconds())
	}
}

// RunStarted marks a run as active
func (m *Metrics) RunStarted(models.Run) {
	m.RunActive.Set(1)
}

// RunFinished counts a finished run
func (m *Metrics) RunFinished(run models.Run) {
	m.RunActive.Set(0)
	m.RunsTotal.WithLabelValues(string(run.Strategy), string(run.Status)).Inc()
	if run.FinishedAt != nil {
		m.RunDuration.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	}

	// tasks abandoned by a stop never complete
	m.mu.Lock()
	m.started = make(map[taskKey]time.Time)
	m.mu.Unlock()
	m.TasksActive.Set(0)
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
