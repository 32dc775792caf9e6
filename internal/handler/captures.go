package handler

import (
	"log/slog"
	"net/http"

	"lumen/internal/domain/services"
	"lumen/internal/httputil"
)

// CaptureHandler handles capture history HTTP requests
type CaptureHandler struct {
	service services.CaptureHistoryService
	logger  *slog.Logger
}

// NewCaptureHandler creates a new capture history handler
func NewCaptureHandler(service services.CaptureHistoryService, logger *slog.Logger) *CaptureHandler {
	return &CaptureHandler{
		service: service,
		logger:  logger,
	}
}

// ListCaptures returns all sessions, most recent first.
// GET /api/captures
func (h *CaptureHandler) ListCaptures(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.ListCaptures(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, sessions)
}

// GetCapture returns one session.
// GET /api/captures/{id}
func (h *CaptureHandler) GetCapture(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, err)
		return
	}

	session, err := h.service.GetCapture(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, session)
}

// DeleteCapture removes one session and its image files.
// DELETE /api/captures/{id}
func (h *CaptureHandler) DeleteCapture(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, err)
		return
	}

	if err := h.service.DeleteCapture(r.Context(), id); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAllCaptures clears the whole history.
// DELETE /api/captures
func (h *CaptureHandler) DeleteAllCaptures(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteAllCaptures(r.Context()); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck reports liveness.
// GET /health
func (h *CaptureHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
