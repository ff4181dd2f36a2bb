package task

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Queue kinds used as the "kind" label.
const (
	KindSummary = "summary"
	KindAvatar  = "avatar"
)

// Metrics exposes Prometheus collectors for the summary and avatar processors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	tasks        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	batchSize    *prometheus.HistogramVec
	staleReaped  *prometheus.CounterVec
	refunds      *prometheus.CounterVec
}

// MustNewMetrics registers the processor collectors with reg, reusing
// collectors that are already registered under the same names.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recap",
			Subsystem: "processor",
			Name:      "tasks_total",
			Help:      "Tasks handled by the processors, by outcome.",
		}, []string{"kind", "outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "recap",
			Subsystem: "processor",
			Name:      "step_duration_seconds",
			Help:      "Duration of each pipeline step.",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"kind", "step", "status"}),
		batchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "recap",
			Subsystem: "processor",
			Name:      "claimed_batch_size",
			Help:      "Number of tasks claimed per invocation.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 25, 50},
		}, []string{"kind"}),
		staleReaped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recap",
			Subsystem: "processor",
			Name:      "stale_tasks_reaped_total",
			Help:      "Processing tasks failed by the staleness sweep.",
		}, []string{"kind"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recap",
			Subsystem: "processor",
			Name:      "refunds_total",
			Help:      "Credit refunds issued for failed tasks.",
		}, []string{"kind"}),
	}

	m.tasks = register(reg, m.tasks)
	m.stepDuration = register(reg, m.stepDuration)
	m.batchSize = register(reg, m.batchSize)
	m.staleReaped = register(reg, m.staleReaped)
	m.refunds = register(reg, m.refunds)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveTask counts a finished task by outcome.
func (m *Metrics) ObserveTask(kind, outcome string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(kind, outcome).Inc()
}

// ObserveStep records the duration of a pipeline step.
func (m *Metrics) ObserveStep(kind, step string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.stepDuration.WithLabelValues(kind, step, status).Observe(d.Seconds())
}

// ObserveBatch records the number of claimed tasks.
func (m *Metrics) ObserveBatch(kind string, n int) {
	if m == nil {
		return
	}
	m.batchSize.WithLabelValues(kind).Observe(float64(n))
}

// IncStaleReaped counts a task failed by the sweep.
func (m *Metrics) IncStaleReaped(kind string) {
	if m == nil {
		return
	}
	m.staleReaped.WithLabelValues(kind).Inc()
}

// IncRefund counts an issued refund.
func (m *Metrics) IncRefund(kind string) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(kind).Inc()
}
