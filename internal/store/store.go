// Package store persists operator moderation settings. Chat messages and
// participants are deliberately never persisted.
package store

import (
	"context"
)

// Settings are the admin-tunable knobs that survive a restart.
type Settings struct {
	BannedWords []string
	RateLimit   int
	Maintenance bool
}

// Repository defines the interface for persisting moderation settings.
type Repository interface {
	// LoadSettings retrieves the saved settings, or nil if none were saved.
	LoadSettings(ctx context.Context) (*Settings, error)

	// SaveSettings persists the settings, replacing any previous values.
	SaveSettings(ctx context.Context, s *Settings) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
