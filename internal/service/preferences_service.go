package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lumen/internal/domain"
	"lumen/internal/domain/models"
	"lumen/internal/domain/repositories"
	"lumen/internal/domain/services"
)

// reviewCooldown is the minimum interval between rating prompts.
const reviewCooldown = 7 * 24 * time.Hour

// preferencesService implements the PreferencesService interface
type preferencesService struct {
	prefsRepo repositories.PreferenceRepository
	now       func() time.Time
	logger    *slog.Logger
}

// NewPreferencesService creates a new preferences service
func NewPreferencesService(prefsRepo repositories.PreferenceRepository, logger *slog.Logger) services.PreferencesService {
	return &preferencesService{
		prefsRepo: prefsRepo,
		now:       time.Now,
		logger:    logger,
	}
}

// GetPreferences returns the current record, defaults where unset.
func (s *preferencesService) GetPreferences(ctx context.Context) (models.UserPreferences, error) {
	prefs, err := s.prefsRepo.Get(ctx)
	if err != nil {
		return prefs, fmt.Errorf("get preferences: %w", err)
	}
	return prefs, nil
}

// UpdatePreferences validates and applies a partial update.
func (s *preferencesService) UpdatePreferences(ctx context.Context, req *models.UpdatePreferencesRequest) (models.UserPreferences, error) {
	if err := req.Validate(); err != nil {
		return models.UserPreferences{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if err := s.prefsRepo.Set(ctx, req); err != nil {
		return models.UserPreferences{}, fmt.Errorf("update preferences: %w", err)
	}

	prefs, err := s.prefsRepo.Get(ctx)
	if err != nil {
		return prefs, fmt.Errorf("reload preferences: %w", err)
	}

	s.logger.Info("preferences updated",
		"has_api_key", prefs.APIKey != "",
		"theme_mode", prefs.ThemeMode,
	)
	return prefs, nil
}

// ShouldRequestReview reports whether the rating prompt may be shown now.
// Never after the user has rated, and at most once per cool-down window.
func (s *preferencesService) ShouldRequestReview(ctx context.Context) (bool, error) {
	prefs, err := s.prefsRepo.Get(ctx)
	if err != nil {
		return false, fmt.Errorf("get preferences: %w", err)
	}

	if prefs.HasRated {
		return false, nil
	}
	if !prefs.LastPromptTime.IsZero() && s.now().Sub(prefs.LastPromptTime) < reviewCooldown {
		return false, nil
	}
	return true, nil
}

// MarkReviewPromptShown restarts the cool-down window.
func (s *preferencesService) MarkReviewPromptShown(ctx context.Context) error {
	if err := s.prefsRepo.SetLastPromptTime(ctx, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("mark review prompt shown: %w", err)
	}
	return nil
}

// MarkRated permanently suppresses the rating prompt.
func (s *preferencesService) MarkRated(ctx context.Context) error {
	if err := s.prefsRepo.SetHasRated(ctx, true); err != nil {
		return fmt.Errorf("mark rated: %w", err)
	}
	return nil
}
