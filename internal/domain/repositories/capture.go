package repositories

import (
	"context"

	"lumen/internal/domain/models"
)

// CaptureRepository defines data access for persisted capture sessions.
type CaptureRepository interface {
	// Upsert inserts the session when its ID is zero (allocating a new row id,
	// written back into the session) and replaces the existing row otherwise.
	Upsert(ctx context.Context, session *models.CaptureSession) error

	// GetByID retrieves one session.
	// Returns domain.ErrNotFound if the id is unknown.
	GetByID(ctx context.Context, id int64) (*models.CaptureSession, error)

	// List returns all sessions ordered by timestamp descending.
	List(ctx context.Context) ([]models.CaptureSession, error)

	// Delete removes one session row.
	// Returns domain.ErrNotFound if the id is unknown.
	Delete(ctx context.Context, id int64) error

	// DeleteAll removes every session row.
	DeleteAll(ctx context.Context) error
}
