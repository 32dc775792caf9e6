package services

import (
	"context"

	"lumen/internal/domain/models"
)

// PreferencesService defines the business logic for the user settings record
// and the rating-prompt policy built on its bookkeeping fields.
type PreferencesService interface {
	// GetPreferences returns the current record (defaults when unset).
	GetPreferences(ctx context.Context) (models.UserPreferences, error)

	// UpdatePreferences validates and applies a partial update, returning the
	// record after the write.
	UpdatePreferences(ctx context.Context, req *models.UpdatePreferencesRequest) (models.UserPreferences, error)

	// ShouldRequestReview reports whether the rating prompt may be shown now:
	// never after the user has rated, and at most once per cool-down window.
	ShouldRequestReview(ctx context.Context) (bool, error)

	// MarkReviewPromptShown stamps the prompt time so the cool-down restarts.
	MarkReviewPromptShown(ctx context.Context) error

	// MarkRated permanently suppresses the rating prompt.
	MarkRated(ctx context.Context) error
}
