package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Façade ──────────────────────────────────────────────────────────────────

	TasksSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proofqueue",
		Subsystem: "client",
		Name:      "tasks_submitted_total",
		Help:      "Total tasks submitted through the façade.",
	}, []string{"type"})

	// ─── Worker ──────────────────────────────────────────────────────────────────

	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proofqueue",
		Subsystem: "worker",
		Name:      "tasks_processed_total",
		Help:      "Total tasks reaching a terminal state, labelled by kind and status.",
	}, []string{"type", "status"})

	TasksCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "proofqueue",
		Subsystem: "worker",
		Name:      "tasks_cancelled_total",
		Help:      "Total still-queued tasks removed by cancellation.",
	})

	TasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "proofqueue",
		Subsystem: "worker",
		Name:      "tasks_inflight",
		Help:      "Collaborator calls currently executing (0 or 1 by construction).",
	})

	QueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "proofqueue",
		Subsystem: "worker",
		Name:      "queue_length",
		Help:      "Tasks waiting in the FIFO queue.",
	})

	TaskDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "proofqueue",
		Subsystem: "worker",
		Name:      "task_duration_seconds",
		Help:      "Collaborator execution time per task in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"type"})

	RejectedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "proofqueue",
		Subsystem: "worker",
		Name:      "rejected_messages_total",
		Help:      "Inbound channel frames rejected at the decode boundary.",
	})

	// ─── Notifications ───────────────────────────────────────────────────────────

	NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proofqueue",
		Subsystem: "notify",
		Name:      "failures_total",
		Help:      "Notification deliveries that failed (contained, never fatal).",
	}, []string{"kind"})
)
