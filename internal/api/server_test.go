package api

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moven0831/proofqueue/internal/bus"
	"github.com/moven0831/proofqueue/internal/domain"
	"github.com/moven0831/proofqueue/internal/prover"
	"github.com/moven0831/proofqueue/services/client"
	"github.com/moven0831/proofqueue/services/worker"
)

func newTestServer(t *testing.T) (*httptest.Server, *client.Client) {
	t.Helper()
	facade := client.New(func(ctx context.Context, conn *bus.Conn) error {
		return worker.NewWorker(conn, &prover.SimProver{}, worker.WithLogger(slog.Default())).Run(ctx)
	})
	srv := NewServer(facade, slog.Default())
	ts := httptest.NewServer(srv.Router(100, 100))
	t.Cleanup(ts.Close)
	return ts, facade
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestSubmitTask_AcceptedAndRetrievable(t *testing.T) {
	ts, facade := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/tasks", `{"type":"provePrepare","documentsPath":"/tmp/docs"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var submitted SubmitTaskResponse
	decodeBody(t, resp, &submitted)
	require.NotEmpty(t, submitted.TaskID)
	assert.Equal(t, "queued", submitted.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := facade.AwaitTask(ctx, submitted.TaskID)
	require.NoError(t, err)

	getResp, err := http.Get(ts.URL + "/api/v1/tasks/" + submitted.TaskID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var got TaskResponse
	decodeBody(t, getResp, &got)
	assert.Equal(t, submitted.TaskID, got.Task.ID)
	assert.Equal(t, domain.StatusCompleted, got.Task.Status)
	require.NotNil(t, got.Result)
	assert.True(t, got.Result.Success)
}

func TestSubmitTask_ValidationFailures(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing type", `{"documentsPath":"/tmp/docs"}`},
		{"missing documentsPath", `{"type":"setupPrepare"}`},
		{"unknown type", `{"type":"mysteryOp","documentsPath":"/tmp/docs"}`},
		{"not json", `not json`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/v1/tasks", tc.body)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGetTask_UnknownIs404(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/tasks/no-such-task")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelTask_BeforeWorkerStartIs404(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/tasks/no-such-task", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListTasks_NewestFirst(t *testing.T) {
	ts, facade := newTestServer(t)
	ctx := context.Background()

	first, err := facade.SubmitTask(ctx, domain.KindSetupPrepare, domain.Params{domain.ParamDocumentsPath: "/tmp/docs"})
	require.NoError(t, err)
	second, err := facade.SubmitTask(ctx, domain.KindSetupShow, domain.Params{domain.ParamDocumentsPath: "/tmp/docs"})
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/v1/tasks")
	require.NoError(t, err)
	var listing struct {
		Tasks []domain.Task `json:"tasks"`
	}
	decodeBody(t, resp, &listing)
	require.Len(t, listing.Tasks, 2)
	assert.Equal(t, second, listing.Tasks[0].ID)
	assert.Equal(t, first, listing.Tasks[1].ID)
}

func TestReadyz_IdleUntilWorkerHandshake(t *testing.T) {
	ts, facade := newTestServer(t)

	resp, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	var status map[string]string
	decodeBody(t, resp, &status)
	assert.Equal(t, "idle", status["status"])

	_, err = facade.SubmitTask(context.Background(), domain.KindSetupPrepare,
		domain.Params{domain.ParamDocumentsPath: "/tmp/docs"})
	require.NoError(t, err)

	resp, err = http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	decodeBody(t, resp, &status)
	assert.Equal(t, "ready", status["status"])
}

func TestRateLimit_Returns429(t *testing.T) {
	facade := client.New(func(ctx context.Context, conn *bus.Conn) error {
		return worker.NewWorker(conn, &prover.SimProver{}).Run(ctx)
	})
	srv := NewServer(facade, slog.Default())
	ts := httptest.NewServer(srv.Router(1, 1))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestRunBenchmark_Accepted(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/workflows/benchmark", `{"documentsPath":"/tmp/docs"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]any
	decodeBody(t, resp, &body)
	assert.Equal(t, "started", body["status"])
	assert.Equal(t, float64(9), body["steps"])

	resp = postJSON(t, ts.URL+"/api/v1/workflows/benchmark", `{}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEvents_StreamsLifecycle(t *testing.T) {
	ts, facade := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	_, err = facade.SubmitTask(context.Background(), domain.KindVerifyShow,
		domain.Params{domain.ParamDocumentsPath: "/tmp/docs"})
	require.NoError(t, err)

	seen := map[string]bool{}
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			seen[name] = true
		}
		if seen["taskCompleted"] {
			break
		}
	}
	assert.True(t, seen["taskQueued"], "events seen: %v", seen)
	assert.True(t, seen["taskStarted"], "events seen: %v", seen)
	assert.True(t, seen["taskCompleted"], "events seen: %v", seen)
}
