// Package api provides the HTTP handlers and routing for the media jobs
// service.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"mediajobs/internal/apperrors"
	"mediajobs/internal/health"
	"mediajobs/internal/job"
	"mediajobs/internal/reminder"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// Handler contains the HTTP handlers for the jobs API.
type Handler struct {
	svc       *job.Service
	poller    *job.Poller
	sweeper   *job.Sweeper
	reminders *reminder.Service
	health    *health.Checker
}

func NewHandler(svc *job.Service, poller *job.Poller, sweeper *job.Sweeper, reminders *reminder.Service, healthChecker *health.Checker) *Handler {
	return &Handler{
		svc:       svc,
		poller:    poller,
		sweeper:   sweeper,
		reminders: reminders,
		health:    healthChecker,
	}
}

// Tick handles POST /v1/lanes/{lane}/tick. One admission-or-progress step
// for the lane; the external scheduler calls this on a fixed interval.
func (h *Handler) Tick(w http.ResponseWriter, r *http.Request) {
	lane := r.PathValue("lane")

	result, err := h.poller.Tick(r.Context(), lane)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// Cleanup handles POST /v1/cleanup - deletes abandoned failed jobs past the
// retention window.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.sweeper.Sweep(r.Context(), time.Now().UTC())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// CreateJob handles POST /v1/lanes/{lane}/jobs.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req job.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	view, err := h.svc.Create(r.Context(), r.PathValue("lane"), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, view)
}

// GetJob handles GET /v1/lanes/{lane}/jobs/{jobId}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Get(r.Context(), r.PathValue("lane"), r.PathValue("jobId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, view)
}

// Reprocess handles POST /v1/lanes/{lane}/jobs/{jobId}/reprocess - the
// operator recovery path for failed or stuck jobs.
func (h *Handler) Reprocess(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Reprocess(r.Context(), r.PathValue("lane"), r.PathValue("jobId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, view)
}

// ConfirmReminder handles POST /v1/reminders/{deliveryId}/confirm.
func (h *Handler) ConfirmReminder(w http.ResponseWriter, r *http.Request) {
	confirmation, err := h.reminders.Confirm(r.Context(), r.PathValue("deliveryId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, confirmation)
}

// Livez handles GET /livez - liveness probe.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.health.Liveness(r.Context()))
}

// Readyz handles GET /readyz - readiness probe. 503 while the database is
// unreachable or the service is draining.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError maps service errors to HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}
