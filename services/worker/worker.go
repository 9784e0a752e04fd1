// Package worker implements the queue-processor side of the event channel: a
// single event loop that owns the FIFO queue and the in-flight flag, and an
// executor goroutine per task that calls the proving collaborator. All task
// mutation happens on the loop goroutine; executors only report back over the
// results channel.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/moven0831/proofqueue/internal/bus"
	"github.com/moven0831/proofqueue/internal/domain"
	"github.com/moven0831/proofqueue/internal/notify"
	"github.com/moven0831/proofqueue/internal/prover"
	"github.com/moven0831/proofqueue/internal/timing"
	"github.com/moven0831/proofqueue/pkg/telemetry"
)

// maxTraceBytes caps the stack portion of a failure trace so terminal events
// stay a sane size on the wire.
const maxTraceBytes = 4096

// outcome is what an executor reports back to the event loop. Exactly one of
// (raw, timings) or err is meaningful.
type outcome struct {
	task    domain.Task
	raw     string
	timings *domain.Timings
	err     error
	trace   string
}

// Worker runs the task queue. Construct with NewWorker, then call Run once;
// the loop exits on stopService, a bootstrap failure, or context cancellation.
type Worker struct {
	conn       *bus.Conn
	prov       prover.Prover
	dispatcher *notify.Dispatcher
	logger     *slog.Logger

	// Loop-owned state. Never touched off the Run goroutine.
	queue    []domain.Task
	inFlight bool
	results  chan outcome

	// Current batch: set when the first task of a drain cycle starts,
	// flushed when the queue empties with nothing running.
	batchStart    *time.Time
	batchFinished time.Time
	batchEntries  []notify.BatchEntry
}

// Option configures a Worker.
type Option func(*Worker)

func WithLogger(l *slog.Logger) Option           { return func(w *Worker) { w.logger = l } }
func WithDispatcher(d *notify.Dispatcher) Option { return func(w *Worker) { w.dispatcher = d } }

// NewWorker constructs a Worker reading from conn and executing via prov.
func NewWorker(conn *bus.Conn, prov prover.Prover, opts ...Option) *Worker {
	w := &Worker{
		conn:    conn,
		prov:    prov,
		logger:  slog.Default(),
		results: make(chan outcome, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.dispatcher == nil {
		w.dispatcher = notify.NewDispatcher(nil, w.logger)
	}
	return w
}

// Run bootstraps the collaborator, announces readiness, and processes channel
// messages until stopService arrives or ctx ends. Blocks for the lifetime of
// the worker.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.prov.Init(ctx); err != nil {
		w.logger.Error("collaborator bootstrap failed", slog.String("error", err.Error()))
		w.send(ctx, bus.ServiceError{Error: fmt.Sprintf("bootstrap: %v", err)})
		return fmt.Errorf("bootstrap: %w", err)
	}
	w.send(ctx, bus.ServiceReady{Timestamp: time.Now().UTC()})
	w.logger.Info("worker ready")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-w.conn.Inbound():
			stop := w.handleFrame(ctx, frame)
			if stop {
				w.logger.Info("worker stopping",
					slog.Int("queued", len(w.queue)),
					slog.Bool("in_flight", w.inFlight),
				)
				return nil
			}
		case out := <-w.results:
			w.handleOutcome(ctx, out)
		}
	}
}

// handleFrame decodes and dispatches one inbound frame. Returns true when the
// loop must terminate.
func (w *Worker) handleFrame(ctx context.Context, frame []byte) bool {
	msg, err := bus.Decode(frame)
	if err != nil {
		telemetry.RejectedMessages.Inc()
		w.logger.Error("rejected inbound frame", slog.String("error", err.Error()))
		w.send(ctx, bus.ServiceError{Error: err.Error()})
		return false
	}

	switch m := msg.(type) {
	case bus.SubmitTask:
		w.enqueue(ctx, m.Task)
	case bus.CancelTask:
		w.cancel(m.TaskID)
	case bus.StopService:
		return true
	default:
		// Worker-originated events echoed back are protocol misuse but
		// not worth killing the loop over.
		w.logger.Warn("unexpected event on worker inbound", slog.String("event", string(msg.Event())))
	}
	return false
}

func (w *Worker) enqueue(ctx context.Context, task domain.Task) {
	w.queue = append(w.queue, task)
	telemetry.QueueLength.Set(float64(len(w.queue)))
	w.logger.Info("task queued",
		slog.String("task_id", task.ID),
		slog.String("task_type", task.Kind.String()),
		slog.Int("queue_length", len(w.queue)),
	)
	w.send(ctx, bus.TaskQueued{TaskID: task.ID, Kind: task.Kind, QueueLength: len(w.queue)})
	w.startNext(ctx)
}

// cancel removes a still-queued task. A running or unknown task is left
// untouched; cancellation of work already handed to the collaborator is not
// supported.
func (w *Worker) cancel(taskID string) {
	for i, t := range w.queue {
		if t.ID == taskID {
			w.queue = append(w.queue[:i], w.queue[i+1:]...)
			telemetry.QueueLength.Set(float64(len(w.queue)))
			telemetry.TasksCancelled.Inc()
			w.logger.Info("task cancelled", slog.String("task_id", taskID))
			return
		}
	}
	w.logger.Warn("cancel ignored, task not queued", slog.String("task_id", taskID))
}

// startNext pops the queue head and hands it to an executor. No-op while a
// task is already in flight or the queue is empty.
func (w *Worker) startNext(ctx context.Context) {
	if w.inFlight || len(w.queue) == 0 {
		return
	}
	task := w.queue[0]
	w.queue = w.queue[1:]
	telemetry.QueueLength.Set(float64(len(w.queue)))

	now := time.Now()
	if err := task.Start(now); err != nil {
		// Only reachable if the façade submitted a non-queued task.
		w.logger.Error("cannot start task", slog.String("task_id", task.ID), slog.String("error", err.Error()))
		w.send(ctx, bus.ServiceError{Error: fmt.Sprintf("start %s: %v", task.ID, err)})
		w.startNext(ctx)
		return
	}
	if w.batchStart == nil {
		ts := *task.StartedAt
		w.batchStart = &ts
	}

	w.inFlight = true
	telemetry.TasksInFlight.Set(1)
	w.logger.Info("task started",
		slog.String("task_id", task.ID),
		slog.String("task_type", task.Kind.String()),
	)
	w.send(ctx, bus.TaskStarted{Task: task})

	go w.execute(ctx, task)
}

// execute runs on its own goroutine, calls the collaborator for the task's
// operation class, and reports the outcome back to the loop. A collaborator
// panic is contained here and converted to a failure outcome.
func (w *Worker) execute(ctx context.Context, task domain.Task) {
	ctx, span := otel.Tracer("worker").Start(ctx, "worker.execute_task")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.type", task.Kind.String()),
	)

	out := outcome{task: task}
	defer func() {
		if r := recover(); r != nil {
			out.err = fmt.Errorf("collaborator panic: %v", r)
			out.trace = buildTrace(out.err)
		}
		if out.err != nil {
			span.RecordError(out.err)
			span.SetStatus(codes.Error, "task execution failed")
		}
		w.results <- out
	}()

	switch task.Kind.Class() {
	case domain.ClassSetup:
		raw, err := w.prov.Setup(ctx, task.Kind, task.Params)
		if err != nil {
			out.err = err
			break
		}
		out.raw = raw
		out.timings = timing.ParseDiagnostic(raw)
		if out.timings.TotalMs == 0 {
			w.logger.Debug("diagnostic carried no total duration",
				slog.String("task_id", task.ID),
				slog.String("raw", raw),
			)
		}
	case domain.ClassProve:
		res, err := w.prov.Prove(ctx, task.Kind, task.Params)
		if err != nil {
			out.err = err
			break
		}
		out.raw = res.Commitment
		out.timings = timing.FromOutput(res)
	case domain.ClassReblind:
		res, err := w.prov.Reblind(ctx, task.Kind, task.Params)
		if err != nil {
			out.err = err
			break
		}
		out.raw = res.Commitment
		out.timings = timing.FromOutput(res)
	case domain.ClassVerify:
		ok, err := w.prov.Verify(ctx, task.Kind, task.Params)
		if err != nil {
			out.err = err
			break
		}
		out.raw = strconv.FormatBool(ok)
	default:
		out.err = &domain.InvalidKindError{Kind: string(task.Kind)}
	}
	if out.err != nil && out.trace == "" {
		out.trace = buildTrace(out.err)
	}
}

// handleOutcome applies a terminal transition on the loop goroutine, emits
// the terminal event, notifies, and advances the queue.
func (w *Worker) handleOutcome(ctx context.Context, out outcome) {
	w.inFlight = false
	telemetry.TasksInFlight.Set(0)

	task := out.task
	status := domain.StatusCompleted
	if out.err != nil {
		status = domain.StatusFailed
	}
	if err := task.Finish(status, time.Now()); err != nil {
		w.logger.Error("cannot finish task", slog.String("task_id", task.ID), slog.String("error", err.Error()))
		w.send(ctx, bus.ServiceError{Error: fmt.Sprintf("finish %s: %v", task.ID, err)})
		w.advance(ctx)
		return
	}

	durationSec := task.Duration().Seconds()
	telemetry.TaskDurationSeconds.WithLabelValues(task.Kind.String()).Observe(durationSec)

	var result domain.Result
	if out.err == nil {
		result = domain.SuccessResult(&task, out.raw, out.timings)
		telemetry.TasksProcessed.WithLabelValues(task.Kind.String(), string(domain.StatusCompleted)).Inc()
		w.logger.Info("task completed",
			slog.String("task_id", task.ID),
			slog.String("task_type", task.Kind.String()),
			slog.Int64("duration_ms", task.Duration().Milliseconds()),
		)
		w.send(ctx, bus.TaskCompleted{Task: task, Result: result})
	} else {
		result = domain.FailureResult(&task, out.err.Error())
		telemetry.TasksProcessed.WithLabelValues(task.Kind.String(), string(domain.StatusFailed)).Inc()
		w.logger.Error("task failed",
			slog.String("task_id", task.ID),
			slog.String("task_type", task.Kind.String()),
			slog.Int64("duration_ms", task.Duration().Milliseconds()),
			slog.String("error", out.err.Error()),
		)
		w.send(ctx, bus.TaskFailed{Task: task, Result: result, Trace: out.trace})
	}

	w.dispatcher.TaskFinished(ctx, task, result)
	if task.CompletedAt != nil {
		w.batchFinished = *task.CompletedAt
	}
	w.batchEntries = append(w.batchEntries, notify.BatchEntry{
		Name:       task.Kind.String(),
		DurationMs: task.Duration().Milliseconds(),
		Success:    out.err == nil,
	})
	w.advance(ctx)
}

// advance starts the next queued task, or flushes the batch summary when the
// queue has drained with nothing running.
func (w *Worker) advance(ctx context.Context) {
	w.startNext(ctx)
	if w.inFlight || len(w.queue) > 0 {
		return
	}
	w.flushBatch(ctx)
}

func (w *Worker) flushBatch(ctx context.Context) {
	if w.batchStart == nil || len(w.batchEntries) == 0 {
		return
	}
	// Wall clock from the first start to the last terminal event.
	summary := notify.BatchSummary{
		Entries:    w.batchEntries,
		TotalMs:    w.batchFinished.Sub(*w.batchStart).Milliseconds(),
		StartedAt:  *w.batchStart,
		FinishedAt: w.batchFinished,
	}
	w.batchStart = nil
	w.batchEntries = nil

	w.logger.Info("queue drained",
		slog.Int("tasks", len(summary.Entries)),
		slog.Int64("total_ms", summary.TotalMs),
	)
	w.dispatcher.BatchFinished(ctx, summary)
}

// send pushes an event to the façade, logging delivery failure. Outbound
// events are advisory; a lost event never affects queue progress.
func (w *Worker) send(ctx context.Context, msg bus.Message) {
	if err := w.conn.Send(ctx, msg); err != nil {
		w.logger.Error("event send failed",
			slog.String("event", string(msg.Event())),
			slog.String("error", err.Error()),
		)
	}
}

func buildTrace(err error) string {
	stack := debug.Stack()
	if len(stack) > maxTraceBytes {
		stack = stack[:maxTraceBytes]
	}
	return fmt.Sprintf("%v\n%s", err, stack)
}
