package notify

import (
	"context"
	"log/slog"

	"github.com/moven0831/proofqueue/internal/domain"
	"github.com/moven0831/proofqueue/pkg/telemetry"
)

// Dispatcher is the containment boundary between the worker and whatever
// Notifier is configured. Every failure mode — error return or panic — is
// caught and logged here; the worker's control flow never sees it.
type Dispatcher struct {
	notifier Notifier
	logger   *slog.Logger
}

// NewDispatcher wraps a notifier. A nil notifier disables delivery.
func NewDispatcher(notifier Notifier, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{notifier: notifier, logger: logger}
}

// TaskFinished delivers the per-task summary, swallowing any failure.
func (d *Dispatcher) TaskFinished(ctx context.Context, task domain.Task, result domain.Result) {
	if d.notifier == nil {
		return
	}
	defer d.recover("task")
	if err := d.notifier.NotifyTask(ctx, task, result); err != nil {
		telemetry.NotificationFailures.WithLabelValues("task").Inc()
		d.logger.Error("task notification failed",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()),
		)
	}
}

// BatchFinished delivers the batch summary, swallowing any failure.
func (d *Dispatcher) BatchFinished(ctx context.Context, batch BatchSummary) {
	if d.notifier == nil {
		return
	}
	defer d.recover("batch")
	if err := d.notifier.NotifyBatch(ctx, batch); err != nil {
		telemetry.NotificationFailures.WithLabelValues("batch").Inc()
		d.logger.Error("batch notification failed",
			slog.Int("tasks", len(batch.Entries)),
			slog.String("error", err.Error()),
		)
	}
}

func (d *Dispatcher) recover(kind string) {
	if r := recover(); r != nil {
		telemetry.NotificationFailures.WithLabelValues(kind).Inc()
		d.logger.Error("notifier panicked",
			slog.String("notification", kind),
			slog.Any("panic", r),
		)
	}
}
