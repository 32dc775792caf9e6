package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"lumen/internal/domain"
	"lumen/internal/domain/services"
	"lumen/internal/handler/sse"
	"lumen/internal/httputil"
)

const keepAliveInterval = 15 * time.Second

// SessionHandler exposes the home screen state machine over HTTP.
type SessionHandler struct {
	service services.SessionService
	logger  *slog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(service services.SessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		logger:  logger,
	}
}

// Describe starts a new session from an uploaded image. The `source` form
// field distinguishes camera, gallery, and shared images.
// POST /api/session/describe
func (h *SessionHandler) Describe(w http.ResponseWriter, r *http.Request) {
	imgs, err := httputil.ParseImages(w, r)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	source := services.ImageSource(r.FormValue("source"))
	switch source {
	case services.SourceCamera, services.SourceGallery, services.SourceShare:
	case "":
		source = services.SourceCamera
	default:
		httputil.RespondError(w, http.StatusBadRequest, "unknown image source")
		return
	}

	snapshot, err := h.service.Describe(r.Context(), imgs[0], source)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusAccepted, snapshot)
}

// SendMessage appends a user message and requests the assistant's reply.
// POST /api/session/messages
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snapshot, err := h.service.SendMessage(r.Context(), req.Text)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusAccepted, snapshot)
}

// StageImages attaches uploaded images to the next outgoing message.
// POST /api/session/images
func (h *SessionHandler) StageImages(w http.ResponseWriter, r *http.Request) {
	imgs, err := httputil.ParseImages(w, r)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	snapshot, err := h.service.StageImages(r.Context(), imgs...)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, snapshot)
}

// RemoveStagedImage discards one staged image by position.
// DELETE /api/session/images/{index}
func (h *SessionHandler) RemoveStagedImage(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		handleError(w, &domain.ValidationError{Message: "invalid staged image index"})
		return
	}

	snapshot, err := h.service.RemoveStagedImage(r.Context(), index)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, snapshot)
}

// Restore resumes a persisted session from history.
// POST /api/session/restore/{id}
func (h *SessionHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, err)
		return
	}

	snapshot, err := h.service.Restore(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, snapshot)
}

// ExportImage copies the session's first image into the shared gallery.
// POST /api/session/export
func (h *SessionHandler) ExportImage(w http.ResponseWriter, r *http.Request) {
	path, err := h.service.ExportImage(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"path": path})
}

// Reset discards the in-memory session.
// POST /api/session/reset
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, h.service.Reset(r.Context()))
}

// DismissError clears the surfaced error.
// POST /api/session/error/dismiss
func (h *SessionHandler) DismissError(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, h.service.DismissError(r.Context()))
}

// GetState returns the current state snapshot.
// GET /api/session
func (h *SessionHandler) GetState(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, h.service.Snapshot(r.Context()))
}

// StreamState streams state snapshots over SSE. The current snapshot is
// replayed first, then every transition is pushed until the client leaves.
// GET /api/session/events
func (h *SessionHandler) StreamState(w http.ResponseWriter, r *http.Request) {
	writer, err := sse.NewWriter(w)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	snapshots, cancel, err := h.service.Watch(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	defer cancel()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot, ok := <-snapshots:
			if !ok {
				return
			}
			if err := writer.WriteEvent("state", snapshot); err != nil {
				h.logger.Debug("state stream closed", "error", err)
				return
			}
		case <-keepAlive.C:
			if err := writer.WriteKeepAlive(); err != nil {
				return
			}
		}
	}
}
