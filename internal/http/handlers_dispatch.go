// Package httpx provides the HTTP API consumed by the mailrelay dispatch UI.
package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/target/mailrelay/internal/domain/dispatch"
	"github.com/target/mailrelay/internal/domain/model"
	apperrors "github.com/target/mailrelay/internal/errors"
)

// DispatchAPI is the subset of the dispatch service the handlers depend on.
type DispatchAPI interface {
	NewJob(req *model.StartDispatchRequest) (*model.SendJob, error)
	Start(ctx context.Context, job *model.SendJob) (*model.Summary, error)
	StartAsync(ctx context.Context, job *model.SendJob) (<-chan *model.Summary, error)
	Stop(ctx context.Context) *model.Summary
	Reset(ctx context.Context) error
	State(ctx context.Context) *model.DispatchState
	Logs(ctx context.Context, limit int) []model.LogEntry
	ClearLogs(ctx context.Context)
	Events() *dispatch.Broadcaster
}

// StatusResponse is the acknowledgement body for commands without a richer result.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// LogsResponse wraps a slice of dispatch log entries.
type LogsResponse struct {
	Logs []model.LogEntry `json:"logs"`
}

// DispatchHandlers provides HTTP handlers for dispatch operations.
type DispatchHandlers struct {
	Svc DispatchAPI
	// BaseContext scopes background jobs started without ?wait=true. Defaults to context.Background.
	BaseContext context.Context
	Logger      *slog.Logger
}

func (h *DispatchHandlers) baseContext() context.Context {
	if h.BaseContext != nil {
		return h.BaseContext
	}
	return context.Background()
}

func (h *DispatchHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Start handles POST /api/dispatch/start. By default the job runs in the background and the
// response is 202 with the initial summary; with ?wait=true the response carries the final one.
func (h *DispatchHandlers) Start(w http.ResponseWriter, r *http.Request) {
	var req model.StartDispatchRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Svc.NewJob(&req)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	if parseBoolQuery(r, "wait") {
		h.startAndWait(w, r, job)
		return
	}

	if _, err := h.Svc.StartAsync(h.baseContext(), job); err != nil {
		h.writeStartError(w, r, err, nil)
		return
	}
	h.logger().InfoContext(r.Context(), "dispatch job accepted", "job_id", job.ID, "recipients", len(job.Recipients))
	WriteJSON(w, http.StatusAccepted, h.Svc.State(r.Context()).Summary())
}

// startAndWait runs the job on the request goroutine. A client disconnect stops the job at the
// next batch boundary; the batch in flight still resolves.
func (h *DispatchHandlers) startAndWait(w http.ResponseWriter, r *http.Request, job *model.SendJob) {
	summary, err := h.Svc.Start(r.Context(), job)
	if err != nil {
		h.writeStartError(w, r, err, summary)
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}

// writeStartError reports a rejected or aborted start together with the state snapshot.
func (h *DispatchHandlers) writeStartError(w http.ResponseWriter, r *http.Request, err error, summary *model.Summary) {
	switch {
	case apperrors.IsAlreadyRunning(err), apperrors.IsTransportConnect(err):
		if summary == nil {
			summary = h.Svc.State(r.Context()).Summary()
		}
		summary.Error = err.Error()
		WriteJSON(w, statusForCode(apperrors.GetCode(err)), summary)
	default:
		WriteAppError(w, err)
	}
}

// Stop handles POST /api/dispatch/stop.
func (h *DispatchHandlers) Stop(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.Svc.Stop(r.Context()))
}

// Reset handles POST /api/dispatch/reset.
func (h *DispatchHandlers) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Reset(r.Context()); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.Svc.State(r.Context()))
}

// State handles GET /api/dispatch/state.
func (h *DispatchHandlers) State(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.Svc.State(r.Context()))
}

// Logs handles GET /api/dispatch/logs?limit=N, newest entry last.
func (h *DispatchHandlers) Logs(w http.ResponseWriter, r *http.Request) {
	limit := max(parseIntQuery(r, "limit", 0), 0)
	WriteJSON(w, http.StatusOK, LogsResponse{Logs: h.Svc.Logs(r.Context(), limit)})
}

// ClearLogs handles POST /api/dispatch/logs/clear.
func (h *DispatchHandlers) ClearLogs(w http.ResponseWriter, r *http.Request) {
	h.Svc.ClearLogs(r.Context())
	WriteJSON(w, http.StatusOK, StatusResponse{Status: "success", Message: "Logs cleared successfully"})
}
