package ews

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/custodia-labs/ewsync/internal/core/domain"
)

// XML namespaces used on the wire.
const (
	nsSOAP         = "http://schemas.xmlsoap.org/soap/envelope/"
	nsTypes        = "http://schemas.microsoft.com/exchange/services/2006/types"
	nsMessages     = "http://schemas.microsoft.com/exchange/services/2006/messages"
	nsAutodiscover = "http://schemas.microsoft.com/exchange/2010/Autodiscover"
	nsAddressing   = "http://www.w3.org/2005/08/addressing"

	soapContentType = "text/xml; charset=utf-8"
)

// --- Request envelopes ---

// ewsEnvelope is the outer SOAP envelope for EWS operations.
type ewsEnvelope struct {
	XMLName xml.Name  `xml:"soap:Envelope"`
	XMLNS   string    `xml:"xmlns:soap,attr"`
	XMLNSt  string    `xml:"xmlns:t,attr"`
	XMLNSm  string    `xml:"xmlns:m,attr"`
	Header  ewsHeader `xml:"soap:Header"`
	Body    ewsBody   `xml:"soap:Body"`
}

type ewsHeader struct {
	ServerVersion serverVersion  `xml:"t:RequestServerVersion"`
	Impersonation *impersonation `xml:"t:ExchangeImpersonation,omitempty"`
}

type serverVersion struct {
	Version string `xml:"Version,attr"`
}

type impersonation struct {
	ConnectingSID connectingSID `xml:"t:ConnectingSID"`
}

type connectingSID struct {
	SMTPAddress string `xml:"t:SmtpAddress"`
}

type ewsBody struct {
	SyncFolderItems     *syncFolderItemsRequest     `xml:"m:SyncFolderItems,omitempty"`
	SyncFolderHierarchy *syncFolderHierarchyRequest `xml:"m:SyncFolderHierarchy,omitempty"`
}

func (c *Client) newEnvelope(body ewsBody) ewsEnvelope {
	env := ewsEnvelope{
		XMLNS:  nsSOAP,
		XMLNSt: nsTypes,
		XMLNSm: nsMessages,
		Header: ewsHeader{ServerVersion: serverVersion{Version: c.serverVersion}},
		Body:   body,
	}
	if c.impersonate != "" {
		env.Header.Impersonation = &impersonation{ConnectingSID: connectingSID{SMTPAddress: c.impersonate}}
	}
	return env
}

// --- Folder and item ids ---

// distinguishedFolders are the well known folder names EWS accepts in place of ids.
var distinguishedFolders = map[string]bool{
	"archive": true, "calendar": true, "contacts": true, "conversationhistory": true,
	"deleteditems": true, "drafts": true, "inbox": true, "journal": true,
	"junkemail": true, "msgfolderroot": true, "notes": true, "outbox": true,
	"publicfoldersroot": true, "recoverableitemsroot": true, "root": true,
	"searchfolders": true, "sentitems": true, "syncissues": true, "tasks": true,
	"voicemail": true,
}

// IsDistinguishedFolder reports whether id names a well known folder.
func IsDistinguishedFolder(id string) bool {
	return distinguishedFolders[strings.ToLower(id)]
}

type folderIDs struct {
	FolderID      *wireID `xml:"t:FolderId,omitempty"`
	Distinguished *wireID `xml:"t:DistinguishedFolderId,omitempty"`
}

func newFolderIDs(id string) *folderIDs {
	if IsDistinguishedFolder(id) {
		return &folderIDs{Distinguished: &wireID{ID: strings.ToLower(id)}}
	}
	return &folderIDs{FolderID: &wireID{ID: id}}
}

type wireID struct {
	ID        string `xml:"Id,attr"`
	ChangeKey string `xml:"ChangeKey,attr,omitempty"`
}

func (w wireID) toDomain() domain.ItemID {
	return domain.ItemID{ID: w.ID, ChangeKey: w.ChangeKey}
}

// --- Faults ---

// soapFault is a SOAP 1.1 fault. EWS puts its response code in the detail.
type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
	Detail struct {
		ResponseCode string `xml:"ResponseCode"`
		Message      string `xml:"Message"`
		Values       []struct {
			Name  string `xml:"Name,attr"`
			Value string `xml:",chardata"`
		} `xml:"MessageXml>Value"`
	} `xml:"detail"`
}

// toServiceError converts the fault to a domain.ServiceError.
func (f *soapFault) toServiceError() *domain.ServiceError {
	code := strings.TrimSpace(f.Detail.ResponseCode)
	if code == "" {
		// faultcode carries a prefixed QName such as "a:ErrorServerBusy".
		code = f.Code
		if i := strings.LastIndex(code, ":"); i >= 0 {
			code = code[i+1:]
		}
	}
	msg := strings.TrimSpace(f.Detail.Message)
	if msg == "" {
		msg = strings.TrimSpace(f.String)
	}

	se := &domain.ServiceError{ResponseCode: code, MessageText: msg}
	for _, v := range f.Detail.Values {
		if v.Name == "BackOffMilliseconds" {
			se.BackOffMilliseconds, _ = strconv.Atoi(strings.TrimSpace(v.Value))
		}
	}
	return se
}

// faultEnvelope reads only the fault of a response.
type faultEnvelope struct {
	Fault *soapFault `xml:"Body>Fault"`
}

// parseFault returns the fault carried by body, or nil.
func parseFault(body []byte) *soapFault {
	var env faultEnvelope
	if err := decodeXML(body, &env); err != nil {
		return nil
	}
	return env.Fault
}
