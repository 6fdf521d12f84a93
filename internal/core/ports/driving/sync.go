package driving

import (
	"context"

	"github.com/custodia-labs/ewsync/internal/core/domain"
)

// Synchroniser retrieves folder changes incrementally.
type Synchroniser interface {
	// SyncFolderItems fetches the next page of item changes using the stored token.
	// The returned feed's token is not persisted; call Commit once its records are applied.
	SyncFolderItems(ctx context.Context, folderID string) (*domain.ChangeFeed, error)

	// SyncFolderHierarchy fetches the next page of folder changes below folderID.
	SyncFolderHierarchy(ctx context.Context, folderID string) (*domain.ChangeFeed, error)

	// Commit persists the token of an applied page.
	Commit(ctx context.Context, scope domain.SyncScope, folderID, syncState string) error

	// Drain pages through all pending changes, calling apply for each record in order.
	// Each page's token is persisted only after all its records were applied.
	Drain(ctx context.Context, scope domain.SyncScope, folderID string, apply ApplyFunc) (*DrainResult, error)

	// Reset forgets the stored token so the next call starts a full sync.
	Reset(ctx context.Context, scope domain.SyncScope, folderID string) error
}

// ApplyFunc applies a single change. Returning an error stops draining
// without persisting the current page's token.
type ApplyFunc func(ctx context.Context, record domain.ChangeRecord) error

// DrainResult summarises a completed drain.
type DrainResult struct {
	// Pages is the number of synchronisation calls issued.
	Pages int

	// Changes is the number of records applied.
	Changes int

	// SyncState is the token persisted after the last page.
	SyncState string

	// Resynced is true when the stored token was rejected and a full sync was started.
	Resynced bool
}
