package domain

import "time"

// SyncScope selects what a synchronisation call tracks.
type SyncScope string

const (
	// ScopeItems synchronises the items of a folder.
	ScopeItems SyncScope = "items"
	// ScopeHierarchy synchronises the folder hierarchy below a folder.
	ScopeHierarchy SyncScope = "hierarchy"
)

// SyncState is the persisted synchronisation position for one folder and scope.
type SyncState struct {
	// Key identifies the folder and scope, see SyncKey.
	Key string

	// Token is the opaque sync-state token from the last applied page.
	// It is stored and returned verbatim.
	Token string

	// LastSync is when the last page was applied.
	LastSync time.Time
}

// SyncKey builds the storage key for a folder and scope.
func SyncKey(scope SyncScope, folderID string) string {
	return string(scope) + ":" + folderID
}
