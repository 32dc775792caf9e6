package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lumen/internal/domain"
	"lumen/internal/domain/models"
	"lumen/internal/domain/repositories"
)

// SqliteCaptureRepository implements the CaptureRepository interface using
// sqlite. The image reference list and the transcript are stored as JSON text
// columns; encoding stays confined to this adapter.
type SqliteCaptureRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewCaptureRepository creates a new SqliteCaptureRepository
func NewCaptureRepository(config *RepositoryConfig) repositories.CaptureRepository {
	return &SqliteCaptureRepository{
		db:     config.DB,
		logger: config.Logger,
	}
}

// Upsert inserts the session on first persist (id 0) and replaces the row on
// every later persist. The allocated row id is written back into the session
// and reused for the rest of its lifetime.
func (r *SqliteCaptureRepository) Upsert(ctx context.Context, session *models.CaptureSession) error {
	refs, history, err := encodeSession(session)
	if err != nil {
		return err
	}

	ts := session.Timestamp.UnixMilli()

	if !session.Persisted() {
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO captures (image_uris, chat_history, timestamp)
			VALUES (?, ?, ?)
		`, refs, history, ts)
		if err != nil {
			return fmt.Errorf("insert capture: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("capture row id: %w", err)
		}
		session.ID = id
		return nil
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO captures (id, image_uris, chat_history, timestamp)
		VALUES (?, ?, ?, ?)
	`, session.ID, refs, history, ts)
	if err != nil {
		return fmt.Errorf("replace capture %d: %w", session.ID, err)
	}
	return nil
}

// GetByID retrieves one session by row id.
func (r *SqliteCaptureRepository) GetByID(ctx context.Context, id int64) (*models.CaptureSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, image_uris, chat_history, timestamp
		FROM captures
		WHERE id = ?
	`, id)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("capture %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get capture: %w", err)
	}
	return session, nil
}

// List returns all sessions ordered by recency.
func (r *SqliteCaptureRepository) List(ctx context.Context) ([]models.CaptureSession, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, image_uris, chat_history, timestamp
		FROM captures
		ORDER BY timestamp DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}
	defer rows.Close()

	// Return empty slice instead of nil
	sessions := []models.CaptureSession{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate captures: %w", err)
	}

	return sessions, nil
}

// Delete removes one session row.
func (r *SqliteCaptureRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM captures WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete capture: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete capture: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("capture %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// DeleteAll removes every session row.
func (r *SqliteCaptureRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM captures`); err != nil {
		return fmt.Errorf("delete all captures: %w", err)
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.CaptureSession, error) {
	var (
		session models.CaptureSession
		refs    string
		history string
		ts      int64
	)
	if err := row.Scan(&session.ID, &refs, &history, &ts); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(refs), &session.ImageRefs); err != nil {
		return nil, fmt.Errorf("decode image refs: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &session.Transcript); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	session.Timestamp = time.UnixMilli(ts)
	return &session, nil
}

func encodeSession(session *models.CaptureSession) (refs string, history string, err error) {
	refsJSON, err := json.Marshal(sliceOrEmpty(session.ImageRefs))
	if err != nil {
		return "", "", fmt.Errorf("encode image refs: %w", err)
	}
	historyJSON, err := json.Marshal(sliceOrEmpty(session.Transcript))
	if err != nil {
		return "", "", fmt.Errorf("encode transcript: %w", err)
	}
	return string(refsJSON), string(historyJSON), nil
}

// sliceOrEmpty keeps nil slices encoding as [] rather than null.
func sliceOrEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
