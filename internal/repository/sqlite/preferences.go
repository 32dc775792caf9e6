package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"lumen/internal/domain/models"
	"lumen/internal/domain/repositories"
	"lumen/internal/events"
)

// Preference keys. Values are stored as strings and parsed on read; a key
// that is absent or unparsable falls back to its default.
const (
	keyAPIKey                  = "api_key"
	keyThemeMode               = "theme_mode"
	keyTextScale               = "text_scale"
	keyAutoDescribeOnShare     = "auto_describe_on_share"
	keyIsFirstRun              = "is_first_run"
	keyHasShownAPIUsageWarning = "has_shown_api_usage_warning"
	keyHasRated                = "has_rated"
	keyLastPromptTime          = "last_prompt_time"
	keyMaxImagesInChat         = "max_images_in_chat"
)

// SqlitePreferenceRepository implements the PreferenceRepository interface on
// a flat key->value table. Every committed write re-publishes the assembled
// record to Watch subscribers, who also receive the current record on attach.
type SqlitePreferenceRepository struct {
	db        *sql.DB
	logger    *slog.Logger
	broadcast *events.Broadcaster[models.UserPreferences]
}

// NewPreferenceRepository creates the repository and primes the watch stream
// with the current record.
func NewPreferenceRepository(ctx context.Context, config *RepositoryConfig) (repositories.PreferenceRepository, error) {
	r := &SqlitePreferenceRepository{
		db:        config.DB,
		logger:    config.Logger,
		broadcast: events.NewBroadcaster[models.UserPreferences](),
	}

	current, err := r.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("prime preferences: %w", err)
	}
	r.broadcast.Publish(current)

	return r, nil
}

// Get assembles the full record, filling unset keys with defaults.
func (r *SqlitePreferenceRepository) Get(ctx context.Context) (models.UserPreferences, error) {
	prefs := models.DefaultPreferences()

	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM preferences`)
	if err != nil {
		return prefs, fmt.Errorf("load preferences: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return prefs, fmt.Errorf("scan preference: %w", err)
		}
		applyKey(&prefs, key, value)
	}
	if err := rows.Err(); err != nil {
		return prefs, fmt.Errorf("iterate preferences: %w", err)
	}

	return prefs, nil
}

// Set writes only the provided fields, one key per statement.
func (r *SqlitePreferenceRepository) Set(ctx context.Context, req *models.UpdatePreferencesRequest) error {
	type write struct {
		key   string
		value string
	}
	var writes []write

	if req.APIKey != nil {
		writes = append(writes, write{keyAPIKey, *req.APIKey})
	}
	if req.ThemeMode != nil {
		writes = append(writes, write{keyThemeMode, string(*req.ThemeMode)})
	}
	if req.TextScale != nil {
		writes = append(writes, write{keyTextScale, strconv.FormatFloat(*req.TextScale, 'f', -1, 64)})
	}
	if req.AutoDescribeOnShare != nil {
		writes = append(writes, write{keyAutoDescribeOnShare, strconv.FormatBool(*req.AutoDescribeOnShare)})
	}
	if req.IsFirstRun != nil {
		writes = append(writes, write{keyIsFirstRun, strconv.FormatBool(*req.IsFirstRun)})
	}
	if req.HasShownAPIUsageWarning != nil {
		writes = append(writes, write{keyHasShownAPIUsageWarning, strconv.FormatBool(*req.HasShownAPIUsageWarning)})
	}
	if req.MaxImagesInChat != nil {
		writes = append(writes, write{keyMaxImagesInChat, strconv.Itoa(*req.MaxImagesInChat)})
	}

	for _, w := range writes {
		if err := r.put(ctx, w.key, w.value); err != nil {
			return err
		}
	}

	return r.publish(ctx)
}

// SetHasRated records that the user has rated the app.
func (r *SqlitePreferenceRepository) SetHasRated(ctx context.Context, rated bool) error {
	if err := r.put(ctx, keyHasRated, strconv.FormatBool(rated)); err != nil {
		return err
	}
	return r.publish(ctx)
}

// SetLastPromptTime stamps the last rating-prompt time in unix milliseconds.
func (r *SqlitePreferenceRepository) SetLastPromptTime(ctx context.Context, unixMillis int64) error {
	if err := r.put(ctx, keyLastPromptTime, strconv.FormatInt(unixMillis, 10)); err != nil {
		return err
	}
	return r.publish(ctx)
}

// Watch subscribes to the record stream with replay-current semantics.
func (r *SqlitePreferenceRepository) Watch(ctx context.Context) (<-chan models.UserPreferences, func(), error) {
	ch, cancel := r.broadcast.Subscribe()
	return ch, cancel, nil
}

func (r *SqlitePreferenceRepository) put(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

func (r *SqlitePreferenceRepository) publish(ctx context.Context) error {
	current, err := r.Get(ctx)
	if err != nil {
		return err
	}
	r.broadcast.Publish(current)
	return nil
}

func applyKey(prefs *models.UserPreferences, key, value string) {
	switch key {
	case keyAPIKey:
		prefs.APIKey = value
	case keyThemeMode:
		switch mode := models.ThemeMode(value); mode {
		case models.ThemeSystem, models.ThemeLight, models.ThemeDark, models.ThemeHighContrast:
			prefs.ThemeMode = mode
		}
	case keyTextScale:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			prefs.TextScale = f
		}
	case keyAutoDescribeOnShare:
		prefs.AutoDescribeOnShare = value == "true"
	case keyIsFirstRun:
		prefs.IsFirstRun = value == "true"
	case keyHasShownAPIUsageWarning:
		prefs.HasShownAPIUsageWarning = value == "true"
	case keyHasRated:
		prefs.HasRated = value == "true"
	case keyLastPromptTime:
		if millis, err := strconv.ParseInt(value, 10, 64); err == nil {
			prefs.LastPromptTime = time.UnixMilli(millis)
		}
	case keyMaxImagesInChat:
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			prefs.MaxImagesInChat = n
		}
	}
}
