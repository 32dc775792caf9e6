package models

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ThemeMode selects the UI color scheme narrated clients render with.
type ThemeMode string

const (
	ThemeSystem       ThemeMode = "system"
	ThemeLight        ThemeMode = "light"
	ThemeDark         ThemeMode = "dark"
	ThemeHighContrast ThemeMode = "high_contrast"
)

// Text scale bounds for the UI font multiplier.
const (
	MinTextScale = 0.8
	MaxTextScale = 1.5
)

// Staged image bounds for a single chat message.
const (
	DefaultMaxImagesInChat = 3
	MaxImagesInChatLimit   = 6
)

// UserPreferences is the single process-wide settings record. Every field has
// a safe default so a fresh install is fully functional except for vision
// calls, which require APIKey.
type UserPreferences struct {
	APIKey                  string    `json:"api_key"`
	ThemeMode               ThemeMode `json:"theme_mode"`
	TextScale               float64   `json:"text_scale"`
	AutoDescribeOnShare     bool      `json:"auto_describe_on_share"`
	IsFirstRun              bool      `json:"is_first_run"`
	HasShownAPIUsageWarning bool      `json:"has_shown_api_usage_warning"`
	HasRated                bool      `json:"has_rated"`
	LastPromptTime          time.Time `json:"last_prompt_time"`
	MaxImagesInChat         int       `json:"max_images_in_chat"`
}

// DefaultPreferences returns the record a fresh install starts from.
func DefaultPreferences() UserPreferences {
	return UserPreferences{
		ThemeMode:       ThemeSystem,
		TextScale:       1.0,
		IsFirstRun:      true,
		MaxImagesInChat: DefaultMaxImagesInChat,
	}
}

// UpdatePreferencesRequest supports partial updates via pointers - only
// provided fields are applied.
type UpdatePreferencesRequest struct {
	APIKey                  *string    `json:"api_key"`
	ThemeMode               *ThemeMode `json:"theme_mode"`
	TextScale               *float64   `json:"text_scale"`
	AutoDescribeOnShare     *bool      `json:"auto_describe_on_share"`
	IsFirstRun              *bool      `json:"is_first_run"`
	HasShownAPIUsageWarning *bool      `json:"has_shown_api_usage_warning"`
	MaxImagesInChat         *int       `json:"max_images_in_chat"`
}

// Validate checks the provided fields against their domains.
func (r *UpdatePreferencesRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ThemeMode, validation.In(
			ThemeSystem, ThemeLight, ThemeDark, ThemeHighContrast,
		)),
		validation.Field(&r.TextScale,
			validation.Min(MinTextScale), validation.Max(MaxTextScale),
		),
		validation.Field(&r.MaxImagesInChat,
			validation.Min(1), validation.Max(MaxImagesInChatLimit),
		),
	)
}
