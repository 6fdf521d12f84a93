package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/ewsync/internal/core/domain"
	"github.com/custodia-labs/ewsync/internal/core/ports/driven"
	"github.com/custodia-labs/ewsync/internal/core/ports/driving"
	"github.com/custodia-labs/ewsync/internal/logger"
)

// Ensure SyncService implements the interface.
var _ driving.Synchroniser = (*SyncService)(nil)

// DefaultMaxChangesReturned is the page size used when none is configured.
const DefaultMaxChangesReturned = domain.DefaultMaxChangesReturned

// SyncService pages through folder changes and persists sync-state tokens.
type SyncService struct {
	transport  driven.SyncTransport
	syncStore  driven.SyncStateStore
	maxChanges int
	ignore     []domain.ItemID
	now        func() time.Time

	mu      sync.Mutex
	running map[string]struct{}
}

// NewSyncService creates a new sync service.
// maxChanges <= 0 selects DefaultMaxChangesReturned.
func NewSyncService(transport driven.SyncTransport, syncStore driven.SyncStateStore, maxChanges int) *SyncService {
	if maxChanges <= 0 {
		maxChanges = DefaultMaxChangesReturned
	}
	return &SyncService{
		transport:  transport,
		syncStore:  syncStore,
		maxChanges: maxChanges,
		now:        time.Now,
		running:    make(map[string]struct{}),
	}
}

// SetIgnoredItems sets item ids whose changes the server should not report.
func (s *SyncService) SetIgnoredItems(ids []domain.ItemID) {
	s.ignore = append([]domain.ItemID(nil), ids...)
}

// SyncFolderItems fetches the next page of item changes for a folder.
func (s *SyncService) SyncFolderItems(ctx context.Context, folderID string) (*domain.ChangeFeed, error) {
	feed, _, err := s.fetch(ctx, domain.ScopeItems, folderID)
	return feed, err
}

// SyncFolderHierarchy fetches the next page of folder changes below a folder.
func (s *SyncService) SyncFolderHierarchy(ctx context.Context, folderID string) (*domain.ChangeFeed, error) {
	feed, _, err := s.fetch(ctx, domain.ScopeHierarchy, folderID)
	return feed, err
}

// Commit persists the token of an applied page.
func (s *SyncService) Commit(ctx context.Context, scope domain.SyncScope, folderID, syncState string) error {
	state := domain.SyncState{
		Key:      domain.SyncKey(scope, folderID),
		Token:    syncState,
		LastSync: s.now(),
	}
	if err := s.syncStore.Save(ctx, state); err != nil {
		return fmt.Errorf("save sync state: %w", err)
	}
	return nil
}

// Reset forgets the stored token for a folder and scope.
func (s *SyncService) Reset(ctx context.Context, scope domain.SyncScope, folderID string) error {
	key := domain.SyncKey(scope, folderID)
	if err := s.syncStore.Delete(ctx, key); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete sync state: %w", err)
	}
	logger.Info("Reset sync state for %s", key)
	return nil
}

// Drain pages through all pending changes and applies them in server order.
//
// A page's token is persisted only after every record of that page was applied,
// so a failure replays at most the failed page on the next drain.
// If the server rejects the stored token, the token is dropped and the drain
// restarts once from a full sync.
//
//nolint:gocognit // Paging loop with resync fallback
func (s *SyncService) Drain(
	ctx context.Context,
	scope domain.SyncScope,
	folderID string,
	apply driving.ApplyFunc,
) (*driving.DrainResult, error) {
	key := domain.SyncKey(scope, folderID)
	if apply == nil {
		return nil, fmt.Errorf("%w: apply function required", domain.ErrInvalidInput)
	}

	// 1. Guard against concurrent drains of the same key
	if err := s.acquire(key); err != nil {
		return nil, err
	}
	defer s.release(key)

	result := &driving.DrainResult{}
	logger.Info("Starting sync for %s", key)

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		// 2. Fetch the next page from the stored token
		feed, token, err := s.fetch(ctx, scope, folderID)
		if errors.Is(err, domain.ErrSyncStateInvalid) && token != "" && !result.Resynced {
			logger.Warn("Sync state for %s rejected, starting full resync", key)
			if err := s.Reset(ctx, scope, folderID); err != nil {
				return result, err
			}
			result.Resynced = true
			continue
		}
		if err != nil {
			return result, err
		}
		result.Pages++

		// 3. Apply every record before the token moves
		for i := 0; i < feed.Len(); i++ {
			record := feed.At(i)
			if err := apply(ctx, record); err != nil {
				return result, fmt.Errorf("apply %s %s: %w", record.Type(), record.ID().ID, err)
			}
			result.Changes++
		}

		// 4. Persist the page's token
		if err := s.Commit(ctx, scope, folderID, feed.SyncState()); err != nil {
			return result, err
		}
		result.SyncState = feed.SyncState()

		if !feed.MoreChangesAvailable() {
			break
		}
		if feed.Len() == 0 && feed.SyncState() == token {
			return result, fmt.Errorf("%w: server reported more changes without advancing", domain.ErrMalformedResponse)
		}
	}

	logger.Info("Sync complete for %s: %d changes in %d pages", key, result.Changes, result.Pages)
	return result, nil
}

// fetch loads the stored token and requests one page. It returns the token used.
func (s *SyncService) fetch(
	ctx context.Context,
	scope domain.SyncScope,
	folderID string,
) (*domain.ChangeFeed, string, error) {
	if folderID == "" {
		return nil, "", fmt.Errorf("%w: folder id required", domain.ErrInvalidInput)
	}

	key := domain.SyncKey(scope, folderID)
	var token string
	state, err := s.syncStore.Get(ctx, key)
	switch {
	case err == nil:
		token = state.Token
	case errors.Is(err, domain.ErrNotFound):
		logger.Debug("No sync state for %s, starting full sync", key)
	default:
		return nil, "", fmt.Errorf("get sync state: %w", err)
	}

	req := driven.SyncRequest{
		FolderID:   folderID,
		Scope:      scope,
		SyncState:  token,
		MaxChanges: s.maxChanges,
	}
	if scope == domain.ScopeItems {
		req.Ignore = s.ignore
	}

	feed, err := s.transport.PostSyncRequest(ctx, req)
	if err != nil {
		return nil, token, fmt.Errorf("sync %s: %w", key, err)
	}
	logger.Debug("Fetched %d changes for %s (more=%t)", feed.Len(), key, feed.MoreChangesAvailable())
	return feed, token, nil
}

func (s *SyncService) acquire(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[key]; ok {
		return fmt.Errorf("%w: %s", domain.ErrSyncInProgress, key)
	}
	s.running[key] = struct{}{}
	return nil
}

func (s *SyncService) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, key)
}
