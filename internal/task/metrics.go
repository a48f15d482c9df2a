package task

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vkwatch/vkwatch-api/internal/events"
)

const metricsNamespace = "vkwatch"

// Metrics exports task lifecycle metrics to Prometheus. It consumes runner
// events, so it is registered with the event emitter rather than called
// directly.
type Metrics struct {
	Submitted *prometheus.CounterVec
	Finished  *prometheus.CounterVec
	Retries   *prometheus.CounterVec
	Requeued  prometheus.Counter
	Duration  *prometheus.HistogramVec
}

// NewMetrics registers the task metrics with reg. depth and inflight back
// the queue depth and in-flight gauges; either may be nil.
func NewMetrics(reg prometheus.Registerer, depth func() int, inflight func() int) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		Submitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tasks_submitted_total",
			Help:      "Total tasks accepted for processing",
		}, []string{"type"}),

		Finished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tasks_finished_total",
			Help:      "Total tasks that reached a terminal status",
		}, []string{"type", "outcome"}),

		Retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "task_retries_total",
			Help:      "Total attempts that failed transiently and were retried",
		}, []string{"type"}),

		Requeued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tasks_requeued_total",
			Help:      "Total stale tasks moved back to pending by reconciliation",
		}),

		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "task_attempt_duration_seconds",
			Help:      "Duration of a single handler attempt",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"type", "outcome"}),
	}

	if depth != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "task_queue_depth",
			Help:      "Task IDs waiting in the queue",
		}, func() float64 { return float64(depth()) })
	}
	if inflight != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "tasks_inflight",
			Help:      "Handlers currently running in this process",
		}, func() float64 { return float64(inflight()) })
	}

	return m
}

// QueueDepth adapts a Queue to the depth callback of NewMetrics. Errors
// report as zero.
func QueueDepth(q Queue) func() int {
	return func() int {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		n, err := q.Len(ctx)
		if err != nil {
			return 0
		}
		return n
	}
}

var _ events.EventHandler = (*Metrics)(nil)

// HandleEvent updates the counters for one lifecycle event.
func (m *Metrics) HandleEvent(_ context.Context, e *events.TaskEvent) error {
	switch e.Kind {
	case events.KindSubmitted:
		m.Submitted.WithLabelValues(e.TaskType).Inc()
	case events.KindRetrying:
		m.Retries.WithLabelValues(e.TaskType).Inc()
		m.Duration.WithLabelValues(e.TaskType, string(e.Kind)).Observe(e.Duration.Seconds())
	case events.KindCompleted, events.KindFailed:
		m.Finished.WithLabelValues(e.TaskType, string(e.Kind)).Inc()
		m.Duration.WithLabelValues(e.TaskType, string(e.Kind)).Observe(e.Duration.Seconds())
	case events.KindCanceled:
		m.Finished.WithLabelValues(e.TaskType, string(e.Kind)).Inc()
	case events.KindRequeued:
		m.Requeued.Inc()
	}
	return nil
}
