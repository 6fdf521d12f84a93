package services

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ewsync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ewsync/internal/core/domain"
	"github.com/custodia-labs/ewsync/internal/core/ports/driven"
)

// --- Mock implementations for sync testing ---

// pagedTransport serves pages keyed by the incoming sync state token.
type pagedTransport struct {
	mu       stdsync.Mutex
	pages    map[string]*domain.ChangeFeed
	errs     map[string]error
	requests []driven.SyncRequest
	block    chan struct{}
}

func newPagedTransport() *pagedTransport {
	return &pagedTransport{
		pages: make(map[string]*domain.ChangeFeed),
		errs:  make(map[string]error),
	}
}

func (m *pagedTransport) PostSyncRequest(ctx context.Context, req driven.SyncRequest) (*domain.ChangeFeed, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err, ok := m.errs[req.SyncState]; ok {
		return nil, err
	}
	feed, ok := m.pages[req.SyncState]
	if !ok {
		return nil, fmt.Errorf("unexpected sync state %q", req.SyncState)
	}
	return feed, nil
}

func (m *pagedTransport) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// failingStore wraps a store and fails Get with a fixed error.
type failingStore struct {
	*memory.SyncStateStore
	getErr error
}

func (s *failingStore) Get(ctx context.Context, key string) (*domain.SyncState, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.SyncStateStore.Get(ctx, key)
}

func item(id string) *domain.ServiceObject {
	return &domain.ServiceObject{Kind: "Message", ID: domain.ItemID{ID: id, ChangeKey: "ck-" + id}}
}

func page(token string, more bool, records ...domain.ChangeRecord) *domain.ChangeFeed {
	feed := domain.NewChangeFeed()
	for _, r := range records {
		feed.Add(r)
	}
	feed.SetSyncState(token)
	feed.SetMoreChangesAvailable(more)
	return feed
}

// collector records applied changes in order.
type collector struct {
	ids    []string
	types  []domain.ChangeType
	failAt int
}

func (c *collector) apply(_ context.Context, r domain.ChangeRecord) error {
	if c.failAt > 0 && len(c.ids)+1 == c.failAt {
		return errors.New("apply failed")
	}
	c.ids = append(c.ids, r.ID().ID)
	c.types = append(c.types, r.Type())
	return nil
}

// --- Tests ---

func TestNewSyncService_Defaults(t *testing.T) {
	s := NewSyncService(newPagedTransport(), memory.NewSyncStateStore(), 0)
	assert.Equal(t, DefaultMaxChangesReturned, s.maxChanges)
}

func TestSyncService_SyncFolderItems_FirstSyncUsesEmptyToken(t *testing.T) {
	transport := newPagedTransport()
	transport.pages[""] = page("s1", false, domain.NewCreate(item("a")))
	store := memory.NewSyncStateStore()
	s := NewSyncService(transport, store, 100)

	feed, err := s.SyncFolderItems(context.Background(), "inbox")
	require.NoError(t, err)
	assert.Equal(t, 1, feed.Len())
	assert.Equal(t, "s1", feed.SyncState())

	require.Len(t, transport.requests, 1)
	req := transport.requests[0]
	assert.Equal(t, "inbox", req.FolderID)
	assert.Equal(t, domain.ScopeItems, req.Scope)
	assert.Equal(t, "", req.SyncState)
	assert.Equal(t, 100, req.MaxChanges)

	// Fetching alone does not move the stored token.
	_, err = store.Get(context.Background(), domain.SyncKey(domain.ScopeItems, "inbox"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSyncService_Commit_TokenUsedVerbatim(t *testing.T) {
	token := "H4sIAAAAAAAEAO29B2AcSZYlJi9tynt/SvVK1+B0iTQ=="
	transport := newPagedTransport()
	transport.pages[token] = page(token, false)
	store := memory.NewSyncStateStore()
	s := NewSyncService(transport, store, 0)
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, domain.ScopeItems, "inbox", token))
	_, err := s.SyncFolderItems(ctx, "inbox")
	require.NoError(t, err)

	assert.Equal(t, token, transport.requests[0].SyncState)
}

func TestSyncService_SyncFolderHierarchy_UsesOwnScope(t *testing.T) {
	transport := newPagedTransport()
	transport.pages[""] = page("h1", false, domain.NewCreate(&domain.ServiceObject{Kind: "Folder", ID: domain.ItemID{ID: "f1"}}))
	store := memory.NewSyncStateStore()
	s := NewSyncService(transport, store, 0)
	s.SetIgnoredItems([]domain.ItemID{{ID: "skip"}})
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, domain.ScopeItems, "msgfolderroot", "items-token"))

	feed, err := s.SyncFolderHierarchy(ctx, "msgfolderroot")
	require.NoError(t, err)
	assert.Equal(t, "h1", feed.SyncState())
	assert.Equal(t, domain.ScopeHierarchy, transport.requests[0].Scope)
	assert.Equal(t, "", transport.requests[0].SyncState)
	assert.Empty(t, transport.requests[0].Ignore)
}

func TestSyncService_SyncFolderItems_EmptyFolderID(t *testing.T) {
	s := NewSyncService(newPagedTransport(), memory.NewSyncStateStore(), 0)
	_, err := s.SyncFolderItems(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSyncService_SyncFolderItems_StoreError(t *testing.T) {
	storeErr := errors.New("disk on fire")
	store := &failingStore{SyncStateStore: memory.NewSyncStateStore(), getErr: storeErr}
	transport := newPagedTransport()
	s := NewSyncService(transport, store, 0)

	_, err := s.SyncFolderItems(context.Background(), "inbox")
	assert.ErrorIs(t, err, storeErr)
	assert.Empty(t, transport.requests)
}

func TestSyncService_Drain_AppliesPagesInOrder(t *testing.T) {
	transport := newPagedTransport()
	transport.pages[""] = page("s1", true,
		domain.NewCreate(item("a")),
		domain.NewCreate(item("b")),
	)
	transport.pages["s1"] = page("s2", true,
		domain.NewUpdate(item("a")),
		domain.NewReadFlagChange(domain.ItemID{ID: "b"}, true),
	)
	transport.pages["s2"] = page("s3", false,
		domain.NewDelete(domain.ItemID{ID: "a"}),
	)
	store := memory.NewSyncStateStore()
	s := NewSyncService(transport, store, 2)

	c := &collector{}
	result, err := s.Drain(context.Background(), domain.ScopeItems, "inbox", c.apply)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, 5, result.Changes)
	assert.Equal(t, "s3", result.SyncState)
	assert.False(t, result.Resynced)
	assert.Equal(t, []string{"a", "b", "a", "b", "a"}, c.ids)
	assert.Equal(t, []domain.ChangeType{
		domain.ChangeCreate, domain.ChangeCreate,
		domain.ChangeUpdate, domain.ChangeReadFlagChange,
		domain.ChangeDelete,
	}, c.types)

	state, err := store.Get(context.Background(), domain.SyncKey(domain.ScopeItems, "inbox"))
	require.NoError(t, err)
	assert.Equal(t, "s3", state.Token)
	assert.False(t, state.LastSync.IsZero())
}

func TestSyncService_Drain_ApplyFailureKeepsPreviousToken(t *testing.T) {
	transport := newPagedTransport()
	transport.pages[""] = page("s1", true, domain.NewCreate(item("a")))
	transport.pages["s1"] = page("s2", false,
		domain.NewCreate(item("b")),
		domain.NewCreate(item("c")),
	)
	store := memory.NewSyncStateStore()
	s := NewSyncService(transport, store, 0)
	ctx := context.Background()

	c := &collector{failAt: 3}
	result, err := s.Drain(ctx, domain.ScopeItems, "inbox", c.apply)
	require.Error(t, err)
	assert.Equal(t, 2, result.Changes)

	state, err := store.Get(ctx, domain.SyncKey(domain.ScopeItems, "inbox"))
	require.NoError(t, err)
	assert.Equal(t, "s1", state.Token)

	// The failed page is replayed on the next drain.
	retry := &collector{}
	_, err = s.Drain(ctx, domain.ScopeItems, "inbox", retry.apply)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, retry.ids)
}

func TestSyncService_Drain_ResyncsOnInvalidState(t *testing.T) {
	transport := newPagedTransport()
	transport.errs["stale"] = &domain.ServiceError{ResponseCode: "ErrorInvalidSyncStateData", MessageText: "bad"}
	transport.pages[""] = page("fresh", false, domain.NewCreate(item("a")))
	store := memory.NewSyncStateStore()
	s := NewSyncService(transport, store, 0)
	ctx := context.Background()
	require.NoError(t, s.Commit(ctx, domain.ScopeItems, "inbox", "stale"))

	c := &collector{}
	result, err := s.Drain(ctx, domain.ScopeItems, "inbox", c.apply)
	require.NoError(t, err)
	assert.True(t, result.Resynced)
	assert.Equal(t, "fresh", result.SyncState)
	assert.Equal(t, []string{"a"}, c.ids)
	assert.Equal(t, 2, transport.requestCount())
}

func TestSyncService_Drain_InvalidStateOnFullSyncFails(t *testing.T) {
	transport := newPagedTransport()
	transport.errs[""] = &domain.ServiceError{ResponseCode: "ErrorInvalidSyncStateData"}
	s := NewSyncService(transport, memory.NewSyncStateStore(), 0)

	_, err := s.Drain(context.Background(), domain.ScopeItems, "inbox", (&collector{}).apply)
	assert.ErrorIs(t, err, domain.ErrSyncStateInvalid)
	assert.Equal(t, 1, transport.requestCount())
}

func TestSyncService_Drain_StalledServer(t *testing.T) {
	transport := newPagedTransport()
	transport.pages[""] = page("s1", true)
	transport.pages["s1"] = page("s1", true)
	s := NewSyncService(transport, memory.NewSyncStateStore(), 0)

	_, err := s.Drain(context.Background(), domain.ScopeItems, "inbox", (&collector{}).apply)
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
	assert.Equal(t, 2, transport.requestCount())
}

func TestSyncService_Drain_NilApply(t *testing.T) {
	s := NewSyncService(newPagedTransport(), memory.NewSyncStateStore(), 0)
	_, err := s.Drain(context.Background(), domain.ScopeItems, "inbox", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSyncService_Drain_RejectsConcurrentDrain(t *testing.T) {
	transport := newPagedTransport()
	transport.pages[""] = page("s1", false)
	transport.block = make(chan struct{})
	s := NewSyncService(transport, memory.NewSyncStateStore(), 0)

	done := make(chan error, 1)
	go func() {
		_, err := s.Drain(context.Background(), domain.ScopeItems, "inbox", (&collector{}).apply)
		done <- err
	}()

	require.Eventually(t, func() bool { return transport.requestCount() == 1 }, time.Second, 5*time.Millisecond)

	_, err := s.Drain(context.Background(), domain.ScopeItems, "inbox", (&collector{}).apply)
	assert.ErrorIs(t, err, domain.ErrSyncInProgress)

	close(transport.block)
	require.NoError(t, <-done)
}

func TestSyncService_Reset(t *testing.T) {
	store := memory.NewSyncStateStore()
	s := NewSyncService(newPagedTransport(), store, 0)
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, domain.ScopeItems, "inbox", "s1"))
	require.NoError(t, s.Reset(ctx, domain.ScopeItems, "inbox"))

	_, err := store.Get(ctx, domain.SyncKey(domain.ScopeItems, "inbox"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Resetting an unknown folder is fine.
	assert.NoError(t, s.Reset(ctx, domain.ScopeHierarchy, "nowhere"))
}

func TestSyncService_Drain_CancelledContext(t *testing.T) {
	transport := newPagedTransport()
	s := NewSyncService(transport, memory.NewSyncStateStore(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Drain(ctx, domain.ScopeItems, "inbox", (&collector{}).apply)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, transport.requestCount())
}
