package bus_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moven0831/proofqueue/internal/bus"
	"github.com/moven0831/proofqueue/internal/domain"
)

func newTask(id string, kind domain.Kind) domain.Task {
	return domain.NewTask(id, kind, domain.Params{
		domain.ParamDocumentsPath: "/tmp/docs",
	}, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
}

func TestEncodeDecode_SubmitTask(t *testing.T) {
	in := bus.SubmitTask{Task: newTask("t-1", domain.KindProvePrepare)}

	frame, err := bus.Encode(in)
	require.NoError(t, err)

	msg, err := bus.Decode(frame)
	require.NoError(t, err)

	out, ok := msg.(bus.SubmitTask)
	require.True(t, ok, "expected SubmitTask, got %T", msg)
	assert.Equal(t, in.Task.ID, out.Task.ID)
	assert.Equal(t, in.Task.Kind, out.Task.Kind)
	assert.Equal(t, domain.StatusQueued, out.Task.Status)
	assert.Equal(t, "/tmp/docs", out.Task.Params.DocumentsPath())
}

func TestEncode_SubmitTask_WireShape(t *testing.T) {
	frame, err := bus.Encode(bus.SubmitTask{Task: newTask("t-1", domain.KindSetupShow)})
	require.NoError(t, err)

	var env struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, "submitTask", env.Event)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "t-1", payload["id"])
	assert.Equal(t, "setupShow", payload["type"])
	assert.Equal(t, "queued", payload["status"])
	assert.Contains(t, payload, "createdAt")
}

func TestDecode_SubmitTask_UnknownKindRejected(t *testing.T) {
	frame := []byte(`{"event":"submitTask","payload":{"id":"t-9","type":"mineBitcoin","params":{}}}`)
	_, err := bus.Decode(frame)
	require.Error(t, err)

	var invalid *domain.InvalidKindError
	assert.True(t, errors.As(err, &invalid))
}

func TestDecode_SubmitTask_MissingID(t *testing.T) {
	frame := []byte(`{"event":"submitTask","payload":{"type":"setupPrepare"}}`)
	_, err := bus.Decode(frame)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing task id")
}

func TestEncodeDecode_TaskCompleted_FlatUnion(t *testing.T) {
	task := newTask("t-2", domain.KindProveShow)
	require.NoError(t, task.Start(task.CreatedAt.Add(time.Second)))
	require.NoError(t, task.Finish(domain.StatusCompleted, task.CreatedAt.Add(2*time.Second)))

	total := int64(950)
	result := domain.SuccessResult(&task, "", &domain.Timings{
		TotalMs:        total,
		ProofSizeBytes: 20480,
		Commitment:     "ab12cd34",
	})

	frame, err := bus.Encode(bus.TaskCompleted{Task: task, Result: result})
	require.NoError(t, err)

	// The payload is the flat task ∪ result union.
	var env struct {
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, "t-2", env.Payload["id"])
	assert.Equal(t, "t-2", env.Payload["taskId"])
	assert.Equal(t, "proveShow", env.Payload["taskType"])
	assert.Equal(t, true, env.Payload["success"])
	assert.Equal(t, "completed", env.Payload["status"])

	msg, err := bus.Decode(frame)
	require.NoError(t, err)
	out, ok := msg.(bus.TaskCompleted)
	require.True(t, ok)
	assert.Equal(t, domain.StatusCompleted, out.Task.Status)
	assert.True(t, out.Result.Success)
	require.NotNil(t, out.Result.Timings)
	assert.Equal(t, total, out.Result.Timings.TotalMs)
	assert.Equal(t, "ab12cd34", out.Result.Timings.Commitment)
	assert.Equal(t, *task.CompletedAt, out.Result.CompletedAt)
}

func TestEncodeDecode_TaskFailed_CarriesTrace(t *testing.T) {
	task := newTask("t-3", domain.KindVerifyPrepare)
	require.NoError(t, task.Start(time.Now()))
	require.NoError(t, task.Finish(domain.StatusFailed, time.Now()))
	result := domain.FailureResult(&task, "circuit mismatch")

	frame, err := bus.Encode(bus.TaskFailed{Task: task, Result: result, Trace: "goroutine 12 [running]"})
	require.NoError(t, err)

	msg, err := bus.Decode(frame)
	require.NoError(t, err)
	out, ok := msg.(bus.TaskFailed)
	require.True(t, ok)
	assert.False(t, out.Result.Success)
	assert.Equal(t, "circuit mismatch", out.Result.Error)
	assert.Equal(t, "goroutine 12 [running]", out.Trace)
}

func TestEncodeDecode_ControlMessages(t *testing.T) {
	ready := bus.ServiceReady{Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	for _, in := range []bus.Message{
		bus.CancelTask{TaskID: "t-4"},
		bus.StopService{},
		ready,
		bus.TaskQueued{TaskID: "t-5", Kind: domain.KindReblindShow, QueueLength: 3},
		bus.ServiceError{Error: "prover runtime init: no such file"},
	} {
		frame, err := bus.Encode(in)
		require.NoError(t, err)
		out, err := bus.Decode(frame)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestDecode_UnknownEvent(t *testing.T) {
	_, err := bus.Decode([]byte(`{"event":"resizeWindow","payload":{}}`))
	require.Error(t, err)

	var unknown *bus.UnknownEventError
	assert.True(t, errors.As(err, &unknown))
	assert.Equal(t, "resizeWindow", unknown.Name)
}

func TestDecode_MalformedFrame(t *testing.T) {
	_, err := bus.Decode([]byte("not-json"))
	require.Error(t, err)
}

func TestDecode_MalformedPayload(t *testing.T) {
	_, err := bus.Decode([]byte(`{"event":"cancelTask","payload":"not-an-object"}`))
	require.Error(t, err)
}

func TestDecode_CancelTask_MissingID(t *testing.T) {
	_, err := bus.Decode([]byte(`{"event":"cancelTask","payload":{}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing taskId")
}
