package driving

import "github.com/custodia-labs/ewsync/internal/core/domain"

// SettingsService manages persisted application settings.
type SettingsService interface {
	// Get returns the stored settings merged over the defaults.
	Get() (*domain.AppSettings, error)

	// Save persists settings.
	Save(settings *domain.AppSettings) error

	// Validate checks settings for consistency.
	Validate(settings *domain.AppSettings) error
}
