// Package notify surfaces per-task and batch summaries to the user. Delivery
// is strictly best-effort: nothing in here may ever reach back into task
// bookkeeping or queue progress.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/moven0831/proofqueue/internal/domain"
)

// Notifier delivers a composed summary through some platform mechanism.
type Notifier interface {
	NotifyTask(ctx context.Context, task domain.Task, result domain.Result) error
	NotifyBatch(ctx context.Context, batch BatchSummary) error
}

// BatchEntry is one finished task in a batch summary.
type BatchEntry struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"durationMs"`
	Success    bool   `json:"success"`
}

// BatchSummary describes one drained run of the queue. TotalMs is the
// wall-clock span from the first task start to the last terminal event.
type BatchSummary struct {
	Entries    []BatchEntry `json:"entries"`
	TotalMs    int64        `json:"totalMs"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
}

// FormatTask renders the short human-readable per-task line.
func FormatTask(task domain.Task, result domain.Result) string {
	dur := task.Duration().Round(time.Millisecond)
	if !result.Success {
		return fmt.Sprintf("%s failed after %s: %s", task.Kind, dur, result.Error)
	}
	line := fmt.Sprintf("%s completed in %s", task.Kind, dur)
	if t := result.Timings; t != nil && t.ProofSizeBytes > 0 {
		line += fmt.Sprintf(" (proof %d bytes)", t.ProofSizeBytes)
	}
	return line
}

// FormatBatch renders the batch table: one name → duration line per task
// plus the aggregate total.
func FormatBatch(batch BatchSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d tasks finished\n", len(batch.Entries))
	for _, e := range batch.Entries {
		status := "ok"
		if !e.Success {
			status = "failed"
		}
		fmt.Fprintf(&b, "  %-16s %6dms  %s\n", e.Name, e.DurationMs, status)
	}
	fmt.Fprintf(&b, "  total: %dms", batch.TotalMs)
	return b.String()
}

// LogNotifier delivers summaries to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) NotifyTask(_ context.Context, task domain.Task, result domain.Result) error {
	n.Logger.Info("task notification",
		slog.String("task_id", task.ID),
		slog.String("summary", FormatTask(task, result)),
	)
	return nil
}

func (n *LogNotifier) NotifyBatch(_ context.Context, batch BatchSummary) error {
	n.Logger.Info("batch notification",
		slog.Int("tasks", len(batch.Entries)),
		slog.Int64("total_ms", batch.TotalMs),
		slog.String("summary", FormatBatch(batch)),
	)
	return nil
}
