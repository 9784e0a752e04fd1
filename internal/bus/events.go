// Package bus implements the event protocol between the client façade and
// the worker: a closed set of named, JSON-serialized messages carried over an
// in-process pipe. Frames are validated at the boundary — unknown or
// malformed shapes are rejected here, never deep inside a handler. No native
// error value ever crosses the boundary; errors travel as strings.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/moven0831/proofqueue/internal/domain"
)

// Event names the message kinds on the channel. Wire values are fixed.
type Event string

const (
	EventSubmitTask    Event = "submitTask"
	EventCancelTask    Event = "cancelTask"
	EventStopService   Event = "stopService"
	EventServiceReady  Event = "serviceReady"
	EventTaskQueued    Event = "taskQueued"
	EventTaskStarted   Event = "taskStarted"
	EventTaskCompleted Event = "taskCompleted"
	EventTaskFailed    Event = "taskFailed"
	EventServiceError  Event = "serviceError"
)

// Message is the closed union of channel messages.
type Message interface {
	Event() Event
}

// SubmitTask carries a freshly created task from façade to worker.
type SubmitTask struct {
	Task domain.Task
}

// CancelTask asks the worker to drop a still-queued task.
type CancelTask struct {
	TaskID string `json:"taskId"`
}

// StopService asks the worker loop to terminate.
type StopService struct{}

// ServiceReady is the worker's startup handshake.
type ServiceReady struct {
	Timestamp time.Time `json:"timestamp"`
}

// TaskQueued acknowledges an enqueue.
type TaskQueued struct {
	TaskID      string      `json:"taskId"`
	Kind        domain.Kind `json:"type"`
	QueueLength int         `json:"queueLength"`
}

// TaskStarted carries the full task record at the running transition.
type TaskStarted struct {
	Task domain.Task
}

// TaskCompleted is the success terminal event: task record ∪ result record.
type TaskCompleted struct {
	Task   domain.Task
	Result domain.Result
}

// TaskFailed is the failure terminal event, with a diagnostic trace string.
type TaskFailed struct {
	Task   domain.Task
	Result domain.Result
	Trace  string
}

// ServiceError reports a worker-level fault: bootstrap failure or a rejected
// inbound frame.
type ServiceError struct {
	Error string `json:"error"`
}

func (SubmitTask) Event() Event    { return EventSubmitTask }
func (CancelTask) Event() Event    { return EventCancelTask }
func (StopService) Event() Event   { return EventStopService }
func (ServiceReady) Event() Event  { return EventServiceReady }
func (TaskQueued) Event() Event    { return EventTaskQueued }
func (TaskStarted) Event() Event   { return EventTaskStarted }
func (TaskCompleted) Event() Event { return EventTaskCompleted }
func (TaskFailed) Event() Event    { return EventTaskFailed }
func (ServiceError) Event() Event  { return EventServiceError }

// terminalWire is the flat task ∪ result payload shape shared by the two
// terminal events. The task's and the result's completedAt coincide, so one
// field serves both on the wire.
type terminalWire struct {
	ID          string          `json:"id"`
	Type        domain.Kind     `json:"type"`
	Params      domain.Params   `json:"params,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	Status      domain.Status   `json:"status"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	TaskID      string          `json:"taskId"`
	TaskType    domain.Kind     `json:"taskType"`
	Success     bool            `json:"success"`
	RawResult   string          `json:"rawResult,omitempty"`
	Error       string          `json:"error,omitempty"`
	Timings     *domain.Timings `json:"timings,omitempty"`
	Trace       string          `json:"trace,omitempty"`
}

func toTerminalWire(task domain.Task, result domain.Result, trace string) terminalWire {
	return terminalWire{
		ID:          task.ID,
		Type:        task.Kind,
		Params:      task.Params,
		CreatedAt:   task.CreatedAt,
		Status:      task.Status,
		StartedAt:   task.StartedAt,
		CompletedAt: task.CompletedAt,
		TaskID:      result.TaskID,
		TaskType:    result.Kind,
		Success:     result.Success,
		RawResult:   result.RawResult,
		Error:       result.Error,
		Timings:     result.Timings,
		Trace:       trace,
	}
}

func (w terminalWire) split() (domain.Task, domain.Result, string) {
	task := domain.Task{
		ID:          w.ID,
		Kind:        w.Type,
		Params:      w.Params,
		CreatedAt:   w.CreatedAt,
		Status:      w.Status,
		StartedAt:   w.StartedAt,
		CompletedAt: w.CompletedAt,
	}
	result := domain.Result{
		TaskID:    w.TaskID,
		Kind:      w.TaskType,
		Success:   w.Success,
		RawResult: w.RawResult,
		Error:     w.Error,
		Timings:   w.Timings,
	}
	if w.CompletedAt != nil {
		result.CompletedAt = *w.CompletedAt
	}
	return task, result, w.Trace
}

func (m TaskCompleted) MarshalJSON() ([]byte, error) {
	return json.Marshal(toTerminalWire(m.Task, m.Result, ""))
}

func (m *TaskCompleted) UnmarshalJSON(b []byte) error {
	var w terminalWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	m.Task, m.Result, _ = w.split()
	return nil
}

func (m TaskFailed) MarshalJSON() ([]byte, error) {
	return json.Marshal(toTerminalWire(m.Task, m.Result, m.Trace))
}

func (m *TaskFailed) UnmarshalJSON(b []byte) error {
	var w terminalWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	m.Task, m.Result, m.Trace = w.split()
	return nil
}

func (m SubmitTask) MarshalJSON() ([]byte, error)  { return json.Marshal(m.Task) }
func (m *SubmitTask) UnmarshalJSON(b []byte) error { return json.Unmarshal(b, &m.Task) }

func (m TaskStarted) MarshalJSON() ([]byte, error)  { return json.Marshal(m.Task) }
func (m *TaskStarted) UnmarshalJSON(b []byte) error { return json.Unmarshal(b, &m.Task) }

// envelope is the only shape that crosses the pipe.
type envelope struct {
	Event   Event           `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// UnknownEventError reports a frame whose event name is outside the closed set.
type UnknownEventError struct {
	Name string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unknown channel event %q", e.Name)
}

// Encode serializes a message into a framed envelope.
func Encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msg.Event(), err)
	}
	frame, err := json.Marshal(envelope{Event: msg.Event(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", msg.Event(), err)
	}
	return frame, nil
}

// Decode parses and validates a frame into a typed message. This is the only
// place wire shapes are interpreted; callers receive either a member of the
// closed union or an error.
func Decode(frame []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}

	decodeInto := func(v any) error {
		if err := json.Unmarshal(env.Payload, v); err != nil {
			return fmt.Errorf("malformed %s payload: %w", env.Event, err)
		}
		return nil
	}

	switch env.Event {
	case EventSubmitTask:
		var m SubmitTask
		if err := decodeInto(&m); err != nil {
			return nil, err
		}
		if m.Task.ID == "" {
			return nil, fmt.Errorf("submitTask: missing task id")
		}
		if _, err := domain.ParseKind(string(m.Task.Kind)); err != nil {
			return nil, fmt.Errorf("submitTask: %w", err)
		}
		return m, nil
	case EventCancelTask:
		var m CancelTask
		if err := decodeInto(&m); err != nil {
			return nil, err
		}
		if m.TaskID == "" {
			return nil, fmt.Errorf("cancelTask: missing taskId")
		}
		return m, nil
	case EventStopService:
		return StopService{}, nil
	case EventServiceReady:
		var m ServiceReady
		if err := decodeInto(&m); err != nil {
			return nil, err
		}
		return m, nil
	case EventTaskQueued:
		var m TaskQueued
		if err := decodeInto(&m); err != nil {
			return nil, err
		}
		return m, nil
	case EventTaskStarted:
		var m TaskStarted
		if err := decodeInto(&m); err != nil {
			return nil, err
		}
		return m, nil
	case EventTaskCompleted:
		var m TaskCompleted
		if err := decodeInto(&m); err != nil {
			return nil, err
		}
		return m, nil
	case EventTaskFailed:
		var m TaskFailed
		if err := decodeInto(&m); err != nil {
			return nil, err
		}
		return m, nil
	case EventServiceError:
		var m ServiceError
		if err := decodeInto(&m); err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, &UnknownEventError{Name: string(env.Event)}
}
