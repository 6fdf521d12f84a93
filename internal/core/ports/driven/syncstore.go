package driven

import (
	"context"

	"github.com/custodia-labs/ewsync/internal/core/domain"
)

// SyncStateStore persists sync-state tokens.
type SyncStateStore interface {
	// Save stores or updates sync state.
	Save(ctx context.Context, state domain.SyncState) error

	// Get retrieves sync state for a key.
	// Returns domain.ErrNotFound if nothing is stored.
	Get(ctx context.Context, key string) (*domain.SyncState, error)

	// Delete removes sync state for a key.
	Delete(ctx context.Context, key string) error
}
