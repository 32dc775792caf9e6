package service

import (
	"context"
	"fmt"
	"log/slog"

	"lumen/internal/domain/models"
	"lumen/internal/domain/repositories"
	"lumen/internal/domain/services"
)

// captureHistoryService implements the CaptureHistoryService interface.
//
// Row deletion and image-file deletion are not atomic: the row goes first,
// then the files best-effort. A file orphaned by a failed second step is an
// accepted inconsistency, logged and not surfaced.
type captureHistoryService struct {
	captures repositories.CaptureRepository
	images   repositories.ImageStore
	logger   *slog.Logger
}

// NewCaptureHistoryService creates a new capture history service
func NewCaptureHistoryService(
	captures repositories.CaptureRepository,
	images repositories.ImageStore,
	logger *slog.Logger,
) services.CaptureHistoryService {
	return &captureHistoryService{
		captures: captures,
		images:   images,
		logger:   logger,
	}
}

// ListCaptures returns all sessions, most recent first.
func (s *captureHistoryService) ListCaptures(ctx context.Context) ([]models.CaptureSession, error) {
	sessions, err := s.captures.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}
	return sessions, nil
}

// GetCapture retrieves one session by id.
func (s *captureHistoryService) GetCapture(ctx context.Context, id int64) (*models.CaptureSession, error) {
	session, err := s.captures.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// DeleteCapture removes one session and its image files.
func (s *captureHistoryService) DeleteCapture(ctx context.Context, id int64) error {
	session, err := s.captures.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.captures.Delete(ctx, id); err != nil {
		return err
	}

	if err := s.images.Delete(ctx, session.ImageRefs...); err != nil {
		s.logger.Error("capture image cleanup failed", "capture_id", id, "error", err)
	}
	return nil
}

// DeleteAllCaptures removes every session and its image files.
func (s *captureHistoryService) DeleteAllCaptures(ctx context.Context) error {
	sessions, err := s.captures.List(ctx)
	if err != nil {
		return fmt.Errorf("list captures: %w", err)
	}

	if err := s.captures.DeleteAll(ctx); err != nil {
		return err
	}

	var refs []string
	for _, session := range sessions {
		refs = append(refs, session.ImageRefs...)
	}
	if err := s.images.Delete(ctx, refs...); err != nil {
		s.logger.Error("capture image cleanup failed", "count", len(refs), "error", err)
	}
	return nil
}
