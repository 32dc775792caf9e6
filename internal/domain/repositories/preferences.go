package repositories

import (
	"context"

	"lumen/internal/domain/models"
)

// PreferenceRepository defines data access for the single user preferences
// record. The backing store is a flat key->value map; the repository assembles
// the typed record on read and writes each key transactionally on its own.
type PreferenceRepository interface {
	// Get assembles the full record, filling unset keys with their defaults.
	Get(ctx context.Context) (models.UserPreferences, error)

	// Set writes the provided fields only, one key per transaction.
	Set(ctx context.Context, req *models.UpdatePreferencesRequest) error

	// SetHasRated and SetLastPromptTime are rating-prompt bookkeeping writes
	// driven by the review policy rather than user edits.
	SetHasRated(ctx context.Context, rated bool) error
	SetLastPromptTime(ctx context.Context, unixMillis int64) error

	// Watch subscribes to the preferences record. The current record is
	// replayed to each new subscriber immediately, then every committed update
	// is pushed. The returned cancel function releases the subscription.
	Watch(ctx context.Context) (<-chan models.UserPreferences, func(), error)
}
