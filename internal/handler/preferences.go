package handler

import (
	"log/slog"
	"net/http"

	"lumen/internal/domain/models"
	"lumen/internal/domain/services"
	"lumen/internal/httputil"
)

// PreferencesHandler handles user preferences and review-prompt HTTP requests
type PreferencesHandler struct {
	service services.PreferencesService
	logger  *slog.Logger
}

// NewPreferencesHandler creates a new preferences handler
func NewPreferencesHandler(service services.PreferencesService, logger *slog.Logger) *PreferencesHandler {
	return &PreferencesHandler{
		service: service,
		logger:  logger,
	}
}

// GetPreferences retrieves the settings record.
// GET /api/preferences
func (h *PreferencesHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.service.GetPreferences(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, prefs)
}

// UpdatePreferences applies a partial update.
// PATCH /api/preferences
func (h *PreferencesHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req models.UpdatePreferencesRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	prefs, err := h.service.UpdatePreferences(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, prefs)
}

// GetReviewPrompt reports whether the rating prompt may be shown now.
// GET /api/review-prompt
func (h *PreferencesHandler) GetReviewPrompt(w http.ResponseWriter, r *http.Request) {
	show, err := h.service.ShouldRequestReview(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]bool{"show": show})
}

// MarkReviewPromptShown restarts the prompt cool-down.
// POST /api/review-prompt/shown
func (h *PreferencesHandler) MarkReviewPromptShown(w http.ResponseWriter, r *http.Request) {
	if err := h.service.MarkReviewPromptShown(r.Context()); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkRated permanently suppresses the rating prompt.
// POST /api/review-prompt/rated
func (h *PreferencesHandler) MarkRated(w http.ResponseWriter, r *http.Request) {
	if err := h.service.MarkRated(r.Context()); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
