package services

import (
	"context"

	"lumen/internal/domain/models"
)

// CaptureHistoryService defines read and delete operations over persisted
// capture sessions. Deletion removes the row first and then the image files
// best-effort; a file surviving its row is an accepted inconsistency.
type CaptureHistoryService interface {
	ListCaptures(ctx context.Context) ([]models.CaptureSession, error)
	GetCapture(ctx context.Context, id int64) (*models.CaptureSession, error)
	DeleteCapture(ctx context.Context, id int64) error
	DeleteAllCaptures(ctx context.Context) error
}
