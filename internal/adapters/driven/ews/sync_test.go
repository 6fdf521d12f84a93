package ews

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ewsync/internal/core/domain"
	"github.com/custodia-labs/ewsync/internal/core/ports/driven"
)

const syncItemsResponse = `<?xml version="1.0" encoding="utf-8"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
  <s:Header>
    <h:ServerVersionInfo xmlns:h="http://schemas.microsoft.com/exchange/services/2006/types" MajorVersion="15"/>
  </s:Header>
  <s:Body>
    <m:SyncFolderItemsResponse xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages"
        xmlns:t="http://schemas.microsoft.com/exchange/services/2006/types">
      <m:ResponseMessages>
        <m:SyncFolderItemsResponseMessage ResponseClass="Success">
          <m:ResponseCode>NoError</m:ResponseCode>
          <m:SyncState>H4sIAAAA-state-2</m:SyncState>
          <m:IncludesLastItemInRange>false</m:IncludesLastItemInRange>
          <m:Changes>
            <t:Create>
              <t:Message>
                <t:ItemId Id="AAMk1" ChangeKey="CQAA1"/>
                <t:ParentFolderId Id="inbox-id" ChangeKey="AQAA"/>
                <t:Subject>Quarterly report</t:Subject>
                <t:From>
                  <t:Mailbox>
                    <t:Name>Bob</t:Name>
                    <t:EmailAddress>bob@example.com</t:EmailAddress>
                  </t:Mailbox>
                </t:From>
                <t:IsRead>false</t:IsRead>
              </t:Message>
            </t:Create>
            <t:Update>
              <t:CalendarItem>
                <t:ItemId Id="AAMk2" ChangeKey="CQAA2"/>
                <t:Subject>Standup</t:Subject>
                <t:Categories>
                  <t:String>Work</t:String>
                  <t:String>Daily</t:String>
                </t:Categories>
              </t:CalendarItem>
            </t:Update>
            <t:Delete>
              <t:ItemId Id="AAMk3" ChangeKey="CQAA3"/>
            </t:Delete>
            <t:ReadFlagChange>
              <t:ItemId Id="AAMk4" ChangeKey="CQAA4"/>
              <t:IsRead>true</t:IsRead>
            </t:ReadFlagChange>
            <t:FutureChange>
              <t:ItemId Id="AAMk5"/>
            </t:FutureChange>
          </m:Changes>
        </m:SyncFolderItemsResponseMessage>
      </m:ResponseMessages>
    </m:SyncFolderItemsResponse>
  </s:Body>
</s:Envelope>`

const syncHierarchyResponse = `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>
<m:SyncFolderHierarchyResponse xmlns:m="m" xmlns:t="t"><m:ResponseMessages>
<m:SyncFolderHierarchyResponseMessage ResponseClass="Success">
  <m:ResponseCode>NoError</m:ResponseCode>
  <m:SyncState>hier-1</m:SyncState>
  <m:IncludesLastFolderInRange>true</m:IncludesLastFolderInRange>
  <m:Changes>
    <t:Create>
      <t:Folder>
        <t:FolderId Id="F1" ChangeKey="K1"/>
        <t:ParentFolderId Id="root"/>
        <t:DisplayName>Projects</t:DisplayName>
        <t:TotalCount>3</t:TotalCount>
      </t:Folder>
    </t:Create>
    <t:Delete>
      <t:FolderId Id="F2" ChangeKey="K2"/>
    </t:Delete>
  </m:Changes>
</m:SyncFolderHierarchyResponseMessage>
</m:ResponseMessages></m:SyncFolderHierarchyResponse></s:Body></s:Envelope>`

func responseMessage(class, code, text string) string {
	return fmt.Sprintf(`<Envelope><Body><SyncFolderItemsResponse><ResponseMessages>
<SyncFolderItemsResponseMessage ResponseClass="%s"><MessageText>%s</MessageText><ResponseCode>%s</ResponseCode>
<SyncState>s</SyncState><IncludesLastItemInRange>true</IncludesLastItemInRange><Changes/>
</SyncFolderItemsResponseMessage></ResponseMessages></SyncFolderItemsResponse></Body></Envelope>`, class, text, code)
}

func itemsRequest(token string) driven.SyncRequest {
	return driven.SyncRequest{
		FolderID:   "inbox",
		Scope:      domain.ScopeItems,
		SyncState:  token,
		MaxChanges: 100,
	}
}

func TestSyncTransport_Items(t *testing.T) {
	fs := newFakeServer(t, xmlReply(syncItemsResponse))
	tr := NewSyncTransport(newTestClient(), fs.URL+"/EWS/Exchange.asmx")

	feed, err := tr.PostSyncRequest(context.Background(), itemsRequest("state-1"))
	require.NoError(t, err)

	assert.Equal(t, "H4sIAAAA-state-2", feed.SyncState())
	assert.True(t, feed.MoreChangesAvailable())
	require.Equal(t, 4, feed.Len())

	create := feed.At(0)
	assert.Equal(t, domain.ChangeCreate, create.Type())
	obj := create.Object()
	require.NotNil(t, obj)
	assert.Equal(t, "Message", obj.Kind)
	assert.Equal(t, domain.ItemID{ID: "AAMk1", ChangeKey: "CQAA1"}, create.ID())
	assert.Equal(t, domain.ItemID{ID: "inbox-id", ChangeKey: "AQAA"}, obj.ParentFolderID)
	assert.Equal(t, "Quarterly report", obj.Property("Subject"))
	assert.Equal(t, "bob@example.com", obj.Property("From.Mailbox.EmailAddress"))
	assert.Equal(t, "false", obj.Property("IsRead"))
	assert.False(t, obj.IsFolder())

	update := feed.At(1)
	assert.Equal(t, domain.ChangeUpdate, update.Type())
	assert.Equal(t, "CalendarItem", update.Object().Kind)
	assert.Equal(t, "Work;Daily", update.Object().Property("Categories.String"))

	del := feed.At(2)
	assert.Equal(t, domain.ChangeDelete, del.Type())
	assert.Nil(t, del.Object())
	assert.Equal(t, domain.ItemID{ID: "AAMk3", ChangeKey: "CQAA3"}, del.ID())

	flag := feed.At(3)
	assert.Equal(t, domain.ChangeReadFlagChange, flag.Type())
	assert.Equal(t, "AAMk4", flag.ID().ID)
	assert.True(t, flag.IsRead())
}

func TestSyncTransport_ItemsRequestBody(t *testing.T) {
	fs := newFakeServer(t, xmlReply(responseMessage("Success", "NoError", "")))
	c := NewClient(Options{
		Limiter:             NewRateLimiterWithConfig(RateLimitConfig{}),
		ImpersonatedAddress: "shared@example.com",
	})
	tr := NewSyncTransport(c, fs.URL)

	req := itemsRequest("tok")
	req.Ignore = []domain.ItemID{{ID: "skip-1", ChangeKey: "ck"}}
	_, err := tr.PostSyncRequest(context.Background(), req)
	require.NoError(t, err)

	reqs := fs.recorded()
	require.Len(t, reqs, 1)
	body := reqs[0].Body
	assert.Contains(t, body, `<t:DistinguishedFolderId Id="inbox">`)
	assert.Contains(t, body, "<m:SyncState>tok</m:SyncState>")
	assert.Contains(t, body, "<m:MaxChangesReturned>100</m:MaxChangesReturned>")
	assert.Contains(t, body, `<t:ItemId Id="skip-1" ChangeKey="ck">`)
	assert.Contains(t, body, `<t:RequestServerVersion Version="Exchange2013_SP1">`)
	assert.Contains(t, body, "<t:SmtpAddress>shared@example.com</t:SmtpAddress>")
}

func TestSyncTransport_FirstSyncOmitsState(t *testing.T) {
	fs := newFakeServer(t, xmlReply(responseMessage("Success", "NoError", "")))
	tr := NewSyncTransport(newTestClient(), fs.URL)

	req := itemsRequest("")
	req.FolderID = "AAMkFolderId"
	_, err := tr.PostSyncRequest(context.Background(), req)
	require.NoError(t, err)

	body := fs.recorded()[0].Body
	assert.NotContains(t, body, "SyncState")
	assert.NotContains(t, body, "Ignore")
	assert.Contains(t, body, `<t:FolderId Id="AAMkFolderId">`)
}

func TestNewSyncFolderItemsRequest_Ignore(t *testing.T) {
	tests := []struct {
		name   string
		ignore []domain.ItemID
		want   []string
		absent []string
	}{
		{
			name:   "no ignored items",
			absent: []string{"Ignore"},
			want:   []string{"<m:MaxChangesReturned>10</m:MaxChangesReturned>"},
		},
		{
			name:   "ignored items",
			ignore: []domain.ItemID{{ID: "a"}, {ID: "b", ChangeKey: "k"}},
			want: []string{
				`<m:Ignore><t:ItemId Id="a"></t:ItemId><t:ItemId Id="b" ChangeKey="k"></t:ItemId></m:Ignore>`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newSyncFolderItemsRequest(driven.SyncRequest{
				Scope:      domain.ScopeItems,
				FolderID:   "inbox",
				SyncState:  "tok",
				MaxChanges: 10,
				Ignore:     tt.ignore,
			})
			out, err := xml.Marshal(req)
			require.NoError(t, err)
			body := string(out)

			for _, w := range tt.want {
				assert.Contains(t, body, w)
			}
			for _, a := range tt.absent {
				assert.NotContains(t, body, a)
			}
			// Schema order: SyncState, Ignore, MaxChangesReturned, SyncScope.
			assert.Less(t, strings.Index(body, "m:SyncState"), strings.Index(body, "m:MaxChangesReturned"))
			assert.Less(t, strings.Index(body, "m:MaxChangesReturned"), strings.Index(body, "m:SyncScope"))
		})
	}
}

func TestSyncTransport_Hierarchy(t *testing.T) {
	fs := newFakeServer(t, xmlReply(syncHierarchyResponse))
	tr := NewSyncTransport(newTestClient(), fs.URL)

	feed, err := tr.PostSyncRequest(context.Background(), driven.SyncRequest{Scope: domain.ScopeHierarchy})
	require.NoError(t, err)

	assert.Equal(t, "hier-1", feed.SyncState())
	assert.False(t, feed.MoreChangesAvailable())
	require.Equal(t, 2, feed.Len())

	folder := feed.At(0).Object()
	assert.True(t, folder.IsFolder())
	assert.Equal(t, "F1", folder.ID.ID)
	assert.Equal(t, "root", folder.ParentFolderID.ID)
	assert.Equal(t, "Projects", folder.Property("DisplayName"))
	assert.Equal(t, domain.ItemID{ID: "F2", ChangeKey: "K2"}, feed.At(1).ID())

	body := fs.recorded()[0].Body
	assert.Contains(t, body, "<m:SyncFolderHierarchy>")
	assert.NotContains(t, body, "SyncFolderId")
}

func TestSyncTransport_ResponseClassError(t *testing.T) {
	fs := newFakeServer(t, xmlReply(responseMessage("Error", "ErrorInvalidSyncStateData", "Sync state is invalid")))
	tr := NewSyncTransport(newTestClient(), fs.URL)

	_, err := tr.PostSyncRequest(context.Background(), itemsRequest("stale"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSyncStateInvalid)

	var se *domain.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Sync state is invalid", se.MessageText)
}

func TestSyncTransport_Warning(t *testing.T) {
	fs := newFakeServer(t, xmlReply(responseMessage("Warning", "ErrorBatchProcessingStopped", "partial")))
	tr := NewSyncTransport(newTestClient(), fs.URL)

	feed, err := tr.PostSyncRequest(context.Background(), itemsRequest(""))
	require.NoError(t, err)
	assert.Equal(t, "s", feed.SyncState())
}

func TestSyncTransport_ServerBusyFault(t *testing.T) {
	fault := `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><s:Fault>
<faultcode xmlns:a="http://schemas.microsoft.com/exchange/services/2006/types">a:ErrorServerBusy</faultcode>
<faultstring xml:lang="en-US">The server cannot service this request right now.</faultstring>
<detail>
  <e:ResponseCode xmlns:e="http://schemas.microsoft.com/exchange/services/2006/errors">ErrorServerBusy</e:ResponseCode>
  <e:Message xmlns:e="http://schemas.microsoft.com/exchange/services/2006/errors">Try again later.</e:Message>
  <t:MessageXml xmlns:t="http://schemas.microsoft.com/exchange/services/2006/types">
    <t:Value Name="BackOffMilliseconds">297749</t:Value>
  </t:MessageXml>
</detail>
</s:Fault></s:Body></s:Envelope>`
	fs := newFakeServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, fault)
	})
	c := newTestClient()
	tr := NewSyncTransport(c, fs.URL)

	_, err := tr.PostSyncRequest(context.Background(), itemsRequest(""))

	var se *domain.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "ErrorServerBusy", se.ResponseCode)
	assert.Equal(t, "Try again later.", se.MessageText)
	assert.Equal(t, 297749, se.BackOffMilliseconds)
	assert.True(t, se.Retryable())
	assert.False(t, c.Limiter().Allow())
}

func TestSyncTransport_FaultCodeFallback(t *testing.T) {
	f := &soapFault{Code: "a:ErrorAccessDenied", String: "denied"}
	se := f.toServiceError()

	assert.Equal(t, "ErrorAccessDenied", se.ResponseCode)
	assert.Equal(t, "denied", se.MessageText)
	assert.False(t, se.Retryable())
}

func TestSyncTransport_HTTPErrorWithoutFault(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	tr := NewSyncTransport(newTestClient(), fs.URL)

	_, err := tr.PostSyncRequest(context.Background(), itemsRequest(""))
	assert.ErrorIs(t, err, ErrUnauthorised)
}

func TestSyncTransport_InvalidInput(t *testing.T) {
	_, err := NewSyncTransport(newTestClient(), "").PostSyncRequest(context.Background(), itemsRequest(""))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = NewSyncTransport(newTestClient(), "http://unused").PostSyncRequest(context.Background(), driven.SyncRequest{Scope: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSyncTransport_MissingMessage(t *testing.T) {
	fs := newFakeServer(t, xmlReply("<Envelope><Body/></Envelope>"))
	tr := NewSyncTransport(newTestClient(), fs.URL)

	_, err := tr.PostSyncRequest(context.Background(), itemsRequest(""))
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestIncludesLast(t *testing.T) {
	yes, no := true, false
	assert.True(t, (&syncResponseMessage{}).includesLast())
	assert.False(t, (&syncResponseMessage{LastItem: &no}).includesLast())
	assert.True(t, (&syncResponseMessage{LastFolder: &yes}).includesLast())
}

func TestIsDistinguishedFolder(t *testing.T) {
	assert.True(t, IsDistinguishedFolder("inbox"))
	assert.True(t, IsDistinguishedFolder("SentItems"))
	assert.False(t, IsDistinguishedFolder("AAMkADk="))

	assert.Equal(t, &folderIDs{Distinguished: &wireID{ID: "sentitems"}}, newFolderIDs("SentItems"))
	assert.Equal(t, &folderIDs{FolderID: &wireID{ID: "AAMk"}}, newFolderIDs("AAMk"))
}
