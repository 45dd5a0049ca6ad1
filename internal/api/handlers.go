package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/BV-BRC/tool-runner/internal/descriptor"
	"github.com/BV-BRC/tool-runner/internal/events"
	"github.com/BV-BRC/tool-runner/internal/journal"
	"github.com/BV-BRC/tool-runner/internal/mount"
	"github.com/BV-BRC/tool-runner/internal/runner"
)

// Handler contains all HTTP handlers.
type Handler struct {
	runner    *runner.Runner
	store     journal.Store
	publisher *events.Publisher
}

// NewHandler creates a new handler.
func NewHandler(run *runner.Runner, store journal.Store, publisher *events.Publisher) *Handler {
	return &Handler{
		runner:    run,
		store:     store,
		publisher: publisher,
	}
}

// HealthCheck handles health check requests.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "tool-runner",
	})
}

// InvocationResponse is the response body for a finished invocation.
type InvocationResponse struct {
	InvocationID string            `json:"invocation_id"`
	Status       string            `json:"status"`
	ExitCode     int               `json:"exit_code"`
	Outputs      map[string]string `json:"outputs,omitempty"`
	Error        string            `json:"error,omitempty"`
	Stderr       string            `json:"stderr,omitempty"`
}

// SubmitInvocation runs one descriptor synchronously and returns the
// resolved output paths.
func (h *Handler) SubmitInvocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.errorResponse(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	inv, err := descriptor.Parse(body)
	if err != nil {
		h.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := inv.Validate(); err != nil {
		h.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	invocationID := uuid.NewString()
	startedAt := time.Now()

	h.publish(ctx, events.Event{
		Type:         events.TypeStarted,
		InvocationID: invocationID,
		Tool:         inv.Tool,
		Image:        inv.Image,
	})

	outputs, err := h.runner.Execute(ctx, inv)
	finishedAt := time.Now()

	rec := &journal.Record{
		InvocationID: invocationID,
		Tool:         inv.Tool,
		Image:        inv.Image,
		Status:       journal.StatusCompleted,
		Outputs:      outputs,
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
	}

	resp := InvocationResponse{
		InvocationID: invocationID,
		Status:       journal.StatusCompleted,
		Outputs:      outputs,
	}
	status := http.StatusOK

	if err != nil {
		rec.Status = journal.StatusFailed
		rec.Error = err.Error()
		resp.Status = journal.StatusFailed
		resp.Error = err.Error()

		var execErr *runner.ExecutionError
		var pathErr *mount.PathResolutionError
		switch {
		case errors.As(err, &execErr):
			rec.ExitCode = execErr.ExitCode
			rec.Argv = execErr.Argv
			resp.ExitCode = execErr.ExitCode
			resp.Stderr = execErr.Stderr
			status = http.StatusUnprocessableEntity
		case errors.As(err, &pathErr):
			status = http.StatusBadRequest
		default:
			status = http.StatusInternalServerError
		}

		h.publish(ctx, events.Event{
			Type:         events.TypeFailed,
			InvocationID: invocationID,
			Tool:         inv.Tool,
			Image:        inv.Image,
			ExitCode:     rec.ExitCode,
			Error:        err.Error(),
		})
	} else {
		h.publish(ctx, events.Event{
			Type:         events.TypeCompleted,
			InvocationID: invocationID,
			Tool:         inv.Tool,
			Image:        inv.Image,
		})
	}

	if h.store != nil {
		if err := h.store.Save(ctx, rec); err != nil {
			log.Printf("Warning: failed to journal invocation %s: %v", invocationID, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// GetInvocation looks up a journaled invocation record.
func (h *Handler) GetInvocation(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.errorResponse(w, "invocation journal is not configured", http.StatusNotFound)
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := h.store.Get(r.Context(), id)
	if errors.Is(err, journal.ErrNotFound) {
		h.errorResponse(w, "invocation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.errorResponse(w, "failed to load invocation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

func (h *Handler) publish(ctx context.Context, event events.Event) {
	if err := h.publisher.Publish(ctx, event); err != nil {
		log.Printf("Warning: failed to publish event: %v", err)
	}
}

func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
