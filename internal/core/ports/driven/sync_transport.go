package driven

import (
	"context"

	"github.com/custodia-labs/ewsync/internal/core/domain"
)

// SyncRequest describes one synchronisation call.
type SyncRequest struct {
	// FolderID is a folder id or a distinguished folder name such as "inbox".
	FolderID string

	// Scope selects item or hierarchy synchronisation.
	Scope domain.SyncScope

	// SyncState is the opaque token from the previous page, empty for a first sync.
	SyncState string

	// MaxChanges caps the number of records per page.
	MaxChanges int

	// Ignore lists item ids whose changes the server should skip.
	Ignore []domain.ItemID
}

// SyncTransport performs a single synchronisation request.
type SyncTransport interface {
	// PostSyncRequest fetches one page of changes for a folder.
	PostSyncRequest(ctx context.Context, req SyncRequest) (*domain.ChangeFeed, error)
}
