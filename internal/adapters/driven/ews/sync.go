package ews

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/ewsync/internal/core/domain"
	"github.com/custodia-labs/ewsync/internal/core/ports/driven"
	"github.com/custodia-labs/ewsync/internal/logger"
)

// Ensure SyncTransport implements the interface.
var _ driven.SyncTransport = (*SyncTransport)(nil)

// SyncTransport performs SyncFolderItems and SyncFolderHierarchy calls against
// an EWS endpoint.
type SyncTransport struct {
	client   *Client
	endpoint string
}

// NewSyncTransport creates a sync transport for the EWS endpoint,
// usually the EwsURL of resolved user settings.
func NewSyncTransport(client *Client, endpoint string) *SyncTransport {
	return &SyncTransport{client: client, endpoint: endpoint}
}

// PostSyncRequest fetches one page of changes.
func (t *SyncTransport) PostSyncRequest(ctx context.Context, req driven.SyncRequest) (*domain.ChangeFeed, error) {
	if t.endpoint == "" {
		return nil, fmt.Errorf("%w: no EWS endpoint configured", domain.ErrInvalidInput)
	}

	var body ewsBody
	switch req.Scope {
	case domain.ScopeItems:
		body.SyncFolderItems = newSyncFolderItemsRequest(req)
	case domain.ScopeHierarchy:
		body.SyncFolderHierarchy = newSyncFolderHierarchyRequest(req)
	default:
		return nil, fmt.Errorf("%w: unknown sync scope %q", domain.ErrInvalidInput, req.Scope)
	}

	payload, err := encodeXML(t.client.newEnvelope(body))
	if err != nil {
		return nil, err
	}
	resp, err := t.client.post(ctx, t.endpoint, soapContentType, payload)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		if fault := parseFault(resp.Body); fault != nil {
			return nil, t.serviceError(fault.toServiceError())
		}
		return nil, statusError(resp)
	}

	var out syncResponseEnvelope
	if err := decodeXML(resp.Body, &out); err != nil {
		return nil, err
	}
	msg := out.message()
	if msg == nil {
		return nil, fmt.Errorf("%w: no sync response message", domain.ErrMalformedResponse)
	}
	if msg.ResponseClass == "Error" {
		return nil, t.serviceError(&domain.ServiceError{
			ResponseCode: strings.TrimSpace(msg.ResponseCode),
			MessageText:  strings.TrimSpace(msg.MessageText),
		})
	}
	if msg.ResponseClass == "Warning" {
		logger.Warn("ews: sync of %s returned warning %s: %s", req.FolderID, msg.ResponseCode, msg.MessageText)
	}

	feed := domain.NewChangeFeed()
	for _, record := range msg.Changes.Records {
		feed.Add(record)
	}
	feed.SetSyncState(msg.SyncState)
	feed.SetMoreChangesAvailable(!msg.includesLast())
	return feed, nil
}

// serviceError records server-requested backoff before returning the error.
func (t *SyncTransport) serviceError(se *domain.ServiceError) error {
	if se.Retryable() {
		t.client.limiter.RecordBackoff(time.Duration(se.BackOffMilliseconds) * time.Millisecond)
	}
	return se
}

// --- Requests ---

type syncFolderItemsRequest struct {
	ItemShape    itemShape   `xml:"m:ItemShape"`
	SyncFolderID *folderIDs  `xml:"m:SyncFolderId"`
	SyncState    string      `xml:"m:SyncState,omitempty"`
	Ignore       *ignoreList `xml:"m:Ignore,omitempty"`
	MaxChanges   int         `xml:"m:MaxChangesReturned"`
	SyncScope    string      `xml:"m:SyncScope"`
}

// ignoreList is only sent when non-empty; the schema requires at least one id.
type ignoreList struct {
	ItemIDs []wireID `xml:"t:ItemId"`
}

type syncFolderHierarchyRequest struct {
	FolderShape  itemShape  `xml:"m:FolderShape"`
	SyncFolderID *folderIDs `xml:"m:SyncFolderId,omitempty"`
	SyncState    string     `xml:"m:SyncState,omitempty"`
}

type itemShape struct {
	BaseShape string `xml:"t:BaseShape"`
}

func newSyncFolderItemsRequest(req driven.SyncRequest) *syncFolderItemsRequest {
	out := &syncFolderItemsRequest{
		ItemShape:    itemShape{BaseShape: "Default"},
		SyncFolderID: newFolderIDs(req.FolderID),
		SyncState:    req.SyncState,
		MaxChanges:   req.MaxChanges,
		SyncScope:    "NormalItems",
	}
	if len(req.Ignore) > 0 {
		out.Ignore = &ignoreList{}
		for _, id := range req.Ignore {
			out.Ignore.ItemIDs = append(out.Ignore.ItemIDs, wireID{ID: id.ID, ChangeKey: id.ChangeKey})
		}
	}
	return out
}

func newSyncFolderHierarchyRequest(req driven.SyncRequest) *syncFolderHierarchyRequest {
	out := &syncFolderHierarchyRequest{
		FolderShape: itemShape{BaseShape: "Default"},
		SyncState:   req.SyncState,
	}
	if req.FolderID != "" {
		out.SyncFolderID = newFolderIDs(req.FolderID)
	}
	return out
}

// --- Responses ---

type syncResponseEnvelope struct {
	Items     *syncResponseMessage `xml:"Body>SyncFolderItemsResponse>ResponseMessages>SyncFolderItemsResponseMessage"`
	Hierarchy *syncResponseMessage `xml:"Body>SyncFolderHierarchyResponse>ResponseMessages>SyncFolderHierarchyResponseMessage"`
}

func (e *syncResponseEnvelope) message() *syncResponseMessage {
	if e.Items != nil {
		return e.Items
	}
	return e.Hierarchy
}

type syncResponseMessage struct {
	ResponseClass string      `xml:"ResponseClass,attr"`
	ResponseCode  string      `xml:"ResponseCode"`
	MessageText   string      `xml:"MessageText"`
	SyncState     string      `xml:"SyncState"`
	LastItem      *bool       `xml:"IncludesLastItemInRange"`
	LastFolder    *bool       `xml:"IncludesLastFolderInRange"`
	Changes       changesList `xml:"Changes"`
}

// includesLast reports whether the page reached the end of the change range.
// A response without either flag is treated as complete.
func (m *syncResponseMessage) includesLast() bool {
	switch {
	case m.LastItem != nil:
		return *m.LastItem
	case m.LastFolder != nil:
		return *m.LastFolder
	default:
		return true
	}
}
