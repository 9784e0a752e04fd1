// Package client is the foreground façade of the proof queue. It owns the
// façade end of the event channel, lazily boots the worker on first use,
// fans worker events out to subscribers, and keeps the snapshot store that
// read paths consult. Submission is fire-and-forget; callers correlate
// through the event streams or AwaitTask.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moven0831/proofqueue/internal/bus"
	"github.com/moven0831/proofqueue/internal/domain"
	"github.com/moven0831/proofqueue/internal/state"
	"github.com/moven0831/proofqueue/pkg/telemetry"
)

const defaultReadyTimeout = 5 * time.Second

// WorkerRunner hosts the queue-processor side of a channel. It blocks for
// the worker's lifetime, like worker.(*Worker).Run.
type WorkerRunner func(ctx context.Context, conn *bus.Conn) error

// Client is the façade. Safe for concurrent use.
type Client struct {
	runWorker    WorkerRunner
	store        state.TaskStore
	bcast        *bus.Broadcaster
	logger       *slog.Logger
	readyTimeout time.Duration
	pipeBuffer   int

	mu      sync.Mutex
	conn    *bus.Conn
	started bool
	ready   chan struct{}
	cancel  context.CancelFunc
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(l *slog.Logger) Option        { return func(c *Client) { c.logger = l } }
func WithStore(s state.TaskStore) Option      { return func(c *Client) { c.store = s } }
func WithReadyTimeout(d time.Duration) Option { return func(c *Client) { c.readyTimeout = d } }
func WithChannelBuffer(n int) Option          { return func(c *Client) { c.pipeBuffer = n } }

// New constructs a façade over the given worker runner. The worker is not
// started until the first submission.
func New(runWorker WorkerRunner, opts ...Option) *Client {
	c := &Client{
		runWorker:    runWorker,
		store:        state.NewMemoryStore(),
		bcast:        bus.NewBroadcaster(),
		logger:       slog.Default(),
		readyTimeout: defaultReadyTimeout,
		pipeBuffer:   64,
		ready:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store exposes the snapshot store for read paths.
func (c *Client) Store() state.TaskStore { return c.store }

// IsReady reports whether the worker has completed its readiness handshake.
func (c *Client) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

// Event streams. No replay: only events after subscription are observed.
func (c *Client) Queued() *bus.Subscription    { return c.bcast.Subscribe(bus.EventTaskQueued) }
func (c *Client) Started() *bus.Subscription   { return c.bcast.Subscribe(bus.EventTaskStarted) }
func (c *Client) Completed() *bus.Subscription { return c.bcast.Subscribe(bus.EventTaskCompleted) }
func (c *Client) Failed() *bus.Subscription    { return c.bcast.Subscribe(bus.EventTaskFailed) }
func (c *Client) Ready() *bus.Subscription     { return c.bcast.Subscribe(bus.EventServiceReady) }
func (c *Client) Errors() *bus.Subscription    { return c.bcast.Subscribe(bus.EventServiceError) }

// ensureStarted boots the worker and waits for the readiness handshake. On
// handshake timeout the façade proceeds optimistically: submissions are
// buffered by the channel until the worker catches up.
func (c *Client) ensureStarted(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.started = true
		facadeEnd, workerEnd := bus.NewPipe(c.pipeBuffer)
		c.conn = facadeEnd

		runCtx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel

		go c.pump(runCtx, facadeEnd)
		go func() {
			if err := c.runWorker(runCtx, workerEnd); err != nil {
				c.logger.Error("worker terminated", slog.String("error", err.Error()))
			}
		}()
		c.logger.Info("worker starting")
	}
	ready := c.ready
	c.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.readyTimeout):
		c.logger.Warn("readiness handshake timed out, proceeding",
			slog.Duration("timeout", c.readyTimeout),
		)
		return nil
	}
}

// pump reads worker events, updates the snapshot store, and republishes to
// subscribers. This is the only goroutine writing to the store.
func (c *Client) pump(ctx context.Context, conn *bus.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-conn.Inbound():
			msg, err := bus.Decode(frame)
			if err != nil {
				c.logger.Error("undecodable worker event", slog.String("error", err.Error()))
				continue
			}
			c.observe(msg)
			c.bcast.Publish(msg)
		}
	}
}

func (c *Client) observe(msg bus.Message) {
	switch m := msg.(type) {
	case bus.ServiceReady:
		c.mu.Lock()
		select {
		case <-c.ready:
		default:
			close(c.ready)
		}
		c.mu.Unlock()
		c.logger.Info("worker ready", slog.Time("at", m.Timestamp))
	case bus.TaskStarted:
		c.store.Put(m.Task)
	case bus.TaskCompleted:
		c.store.Put(m.Task)
		c.store.SetResult(m.Result)
	case bus.TaskFailed:
		c.store.Put(m.Task)
		c.store.SetResult(m.Result)
	case bus.ServiceError:
		c.logger.Error("worker reported error", slog.String("error", m.Error))
	}
}

// SubmitTask creates and submits a task, returning its id immediately.
func (c *Client) SubmitTask(ctx context.Context, kind domain.Kind, params domain.Params) (string, error) {
	if _, err := domain.ParseKind(string(kind)); err != nil {
		return "", err
	}
	if err := c.ensureStarted(ctx); err != nil {
		return "", err
	}

	task := domain.NewTask(uuid.New().String(), kind, params, time.Now())
	c.store.Put(task)
	if err := c.conn.Send(ctx, bus.SubmitTask{Task: task}); err != nil {
		return "", fmt.Errorf("submit %s: %w", kind, err)
	}
	telemetry.TasksSubmitted.WithLabelValues(kind.String()).Inc()
	c.logger.Info("task submitted",
		slog.String("task_id", task.ID),
		slog.String("task_type", kind.String()),
	)
	return task.ID, nil
}

// CancelTask asks the worker to drop a still-queued task. Best-effort: a
// task already running or finished is unaffected.
func (c *Client) CancelTask(ctx context.Context, taskID string) error {
	c.mu.Lock()
	started := c.started
	conn := c.conn
	c.mu.Unlock()
	if !started {
		return &domain.TaskNotFoundError{TaskID: taskID}
	}
	return conn.Send(ctx, bus.CancelTask{TaskID: taskID})
}

// StopService tells the worker to terminate and releases façade resources.
func (c *Client) StopService(ctx context.Context) error {
	c.mu.Lock()
	started := c.started
	conn := c.conn
	cancel := c.cancel
	c.mu.Unlock()
	if !started {
		return nil
	}
	err := conn.Send(ctx, bus.StopService{})
	if cancel != nil {
		cancel()
	}
	c.bcast.Close()
	conn.Close()
	return err
}

// AwaitTask blocks until the task with the given id reaches a terminal
// state and returns its result. Subscribes before consulting the store, so
// a terminal event cannot slip between the check and the wait.
func (c *Client) AwaitTask(ctx context.Context, taskID string) (domain.Result, error) {
	completed := c.Completed()
	defer completed.Cancel()
	failed := c.Failed()
	defer failed.Cancel()

	if result, err := c.store.GetResult(taskID); err == nil {
		return result, nil
	}

	for {
		select {
		case <-ctx.Done():
			return domain.Result{}, ctx.Err()
		case msg, ok := <-completed.C:
			if !ok {
				return domain.Result{}, fmt.Errorf("await %s: facade closed", taskID)
			}
			if m := msg.(bus.TaskCompleted); m.Task.ID == taskID {
				return m.Result, nil
			}
		case msg, ok := <-failed.C:
			if !ok {
				return domain.Result{}, fmt.Errorf("await %s: facade closed", taskID)
			}
			if m := msg.(bus.TaskFailed); m.Task.ID == taskID {
				return m.Result, nil
			}
		}
	}
}
