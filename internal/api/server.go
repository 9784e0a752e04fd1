// Package api exposes the proof queue over HTTP: task submission and
// inspection, cancellation, the benchmark workflow, and a server-sent-events
// mirror of the channel traffic. All state reads come from the façade's
// snapshot store; the API never talks to the worker directly.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/moven0831/proofqueue/internal/bus"
	"github.com/moven0831/proofqueue/internal/domain"
	"github.com/moven0831/proofqueue/services/client"
)

var validate = validator.New()

// Server carries the HTTP handlers' shared dependencies.
type Server struct {
	facade *client.Client
	logger *slog.Logger
}

// NewServer builds a Server over the given façade.
func NewServer(facade *client.Client, logger *slog.Logger) *Server {
	return &Server{facade: facade, logger: logger}
}

// Router assembles the chi router with the full middleware stack.
func (s *Server) Router(rps float64, burst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(RequestLogger(s.logger))
	r.Use(MaxBodySize(1 << 20)) // 1MB limit
	r.Use(RateLimit(rps, burst))

	r.Get("/healthz", s.Healthz)
	r.Get("/readyz", s.Readyz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/tasks", s.SubmitTask)
		r.Get("/tasks", s.ListTasks)
		r.Get("/tasks/{id}", s.GetTask)
		r.Delete("/tasks/{id}", s.CancelTask)
		r.Get("/events", s.Events)
		r.Post("/workflows/benchmark", s.RunBenchmark)
	})
	return r
}

// SubmitTaskRequest is the JSON body for POST /api/v1/tasks.
type SubmitTaskRequest struct {
	Type          string `json:"type" validate:"required"`
	DocumentsPath string `json:"documentsPath" validate:"required"`
	InputPath     string `json:"inputPath"`
}

// SubmitTaskResponse is the 202 response body.
type SubmitTaskResponse struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// SubmitTask handles POST /api/v1/tasks.
func (s *Server) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	kind, err := domain.ParseKind(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	params := domain.Params{domain.ParamDocumentsPath: req.DocumentsPath}
	if req.InputPath != "" {
		params[domain.ParamInputPath] = req.InputPath
	}

	taskID, err := s.facade.SubmitTask(r.Context(), kind, params)
	if err != nil {
		s.logger.Error("submission failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to submit task")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(SubmitTaskResponse{
		TaskID: taskID,
		Status: string(domain.StatusQueued),
	})
}

// TaskResponse is the task snapshot plus its result once terminal.
type TaskResponse struct {
	Task   domain.Task    `json:"task"`
	Result *domain.Result `json:"result,omitempty"`
}

// GetTask handles GET /api/v1/tasks/{id}.
func (s *Server) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	task, err := s.facade.Store().Get(taskID)
	if err != nil {
		var notFound *domain.TaskNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to retrieve task")
		return
	}

	resp := TaskResponse{Task: task}
	if result, err := s.facade.Store().GetResult(taskID); err == nil {
		resp.Result = &result
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ListTasks handles GET /api/v1/tasks, newest submission first.
func (s *Server) ListTasks(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"tasks": s.facade.Store().List(100),
	})
}

// CancelTask handles DELETE /api/v1/tasks/{id}. Cancellation is best-effort:
// 202 means the request was forwarded, not that the task was still queued.
func (s *Server) CancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	if err := s.facade.CancelTask(r.Context(), taskID); err != nil {
		var notFound *domain.TaskNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to cancel task")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte(`{"status":"cancel requested"}`))
}

// BenchmarkRequest is the JSON body for POST /api/v1/workflows/benchmark.
type BenchmarkRequest struct {
	DocumentsPath string `json:"documentsPath" validate:"required"`
	InputPath     string `json:"inputPath"`
}

// RunBenchmark handles POST /api/v1/workflows/benchmark. The nine-step
// workflow runs in the background; progress is observable on /api/v1/events.
func (s *Server) RunBenchmark(w http.ResponseWriter, r *http.Request) {
	var req BenchmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	go func() {
		results, err := s.facade.BenchmarkWorkflow(context.Background(), req.DocumentsPath, req.InputPath)
		if err != nil {
			s.logger.Error("benchmark workflow failed",
				slog.Int("completed_steps", len(results)),
				slog.String("error", err.Error()),
			)
			return
		}
		s.logger.Info("benchmark workflow finished", slog.Int("steps", len(results)))
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"status": "started",
		"steps":  len(domain.Kinds()),
	})
}

// Events handles GET /api/v1/events: a server-sent-events stream mirroring
// every channel event from the moment of subscription (no replay).
func (s *Server) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	subs := []*bus.Subscription{
		s.facade.Ready(), s.facade.Queued(), s.facade.Started(),
		s.facade.Completed(), s.facade.Failed(), s.facade.Errors(),
	}
	defer func() {
		for _, sub := range subs {
			sub.Cancel()
		}
	}()

	merged := make(chan bus.Message, 64)
	done := r.Context().Done()
	for _, sub := range subs {
		go func(ch <-chan bus.Message) {
			for {
				select {
				case msg, ok := <-ch:
					if !ok {
						return
					}
					select {
					case merged <- msg:
					case <-done:
						return
					}
				case <-done:
					return
				}
			}
		}(sub.C)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case msg := <-merged:
			frame, err := bus.Encode(msg)
			if err != nil {
				s.logger.Error("event stream encode failed", slog.String("error", err.Error()))
				continue
			}
			if _, err := w.Write([]byte("event: " + string(msg.Event()) + "\ndata: " + string(frame) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// Healthz handles GET /healthz.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Readyz handles GET /readyz. Ready once the worker handshake completed; a
// façade that has not started its worker yet is still considered ready, it
// will boot lazily on first submission.
func (s *Server) Readyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if s.facade.IsReady() {
		w.Write([]byte(`{"status":"ready"}`))
		return
	}
	w.Write([]byte(`{"status":"idle"}`))
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
