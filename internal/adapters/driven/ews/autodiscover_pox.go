package ews

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"github.com/custodia-labs/ewsync/internal/core/domain"
	"github.com/custodia-labs/ewsync/internal/core/ports/driven"
	"github.com/custodia-labs/ewsync/internal/logger"
)

// Ensure POXDiscovery implements the interface.
var _ driven.DiscoveryTransport = (*POXDiscovery)(nil)

const (
	nsPOXRequest  = "http://schemas.microsoft.com/exchange/autodiscover/outlook/requestschema/2006"
	nsPOXResponse = "http://schemas.microsoft.com/exchange/autodiscover/outlook/responseschema/2006a"

	poxActionSettings     = "settings"
	poxActionRedirectAddr = "redirectAddr"
	poxActionRedirectURL  = "redirectUrl"
)

// POX protocol types carrying EWS endpoints.
const (
	poxProtocolInternal = "EXCH"
	poxProtocolExternal = "EXPR"
	poxProtocolWeb      = "WEB"
)

// poxErrorCodes maps the numeric POX error codes onto autodiscover codes.
var poxErrorCodes = map[string]domain.ErrorCode{
	"500": domain.ErrorCodeInvalidUser,
	"501": domain.ErrorCodeInvalidRequest,
	"600": domain.ErrorCodeInvalidRequest,
	"601": domain.ErrorCodeInvalidRequest,
	"603": domain.ErrorCodeInternalServerError,
}

// POXDiscovery queries the plain old XML autodiscover service (autodiscover.xml).
type POXDiscovery struct {
	client *Client
}

// NewPOXDiscovery creates a POX autodiscover transport.
func NewPOXDiscovery(client *Client) *POXDiscovery {
	return &POXDiscovery{client: client}
}

// PostDiscoveryRequest issues one POX autodiscover call.
// POX returns a fixed set of settings; req.Settings is ignored.
func (d *POXDiscovery) PostDiscoveryRequest(ctx context.Context, req domain.DiscoveryRequest) (domain.DiscoveryOutcome, error) {
	endpoints, err := candidateURLs(req, poxPath)
	if err != nil {
		return domain.DiscoveryOutcome{}, err
	}

	var lastErr error
	for _, endpoint := range endpoints {
		outcome, err := d.query(ctx, endpoint, req.EmailAddress)
		if err == nil {
			return outcome, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		logger.Debug("autodiscover: %s failed: %v", endpoint, err)
	}
	return domain.DiscoveryOutcome{}, lastErr
}

func (d *POXDiscovery) query(ctx context.Context, endpoint, emailAddress string) (domain.DiscoveryOutcome, error) {
	body, err := encodeXML(poxRequest{
		XMLNS:          nsPOXRequest,
		EmailAddress:   emailAddress,
		ResponseSchema: nsPOXResponse,
	})
	if err != nil {
		return domain.DiscoveryOutcome{}, err
	}

	resp, err := d.client.post(ctx, endpoint, soapContentType, body)
	if err != nil {
		return domain.DiscoveryOutcome{}, err
	}
	if IsRedirect(resp.StatusCode) {
		return redirectOutcome(resp)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.DiscoveryOutcome{}, statusError(resp)
	}

	var out poxResponse
	if err := decodeXML(resp.Body, &out); err != nil {
		return domain.DiscoveryOutcome{}, err
	}
	return d.outcome(emailAddress, &out)
}

func (d *POXDiscovery) outcome(emailAddress string, out *poxResponse) (domain.DiscoveryOutcome, error) {
	if e := out.Response.Error; e != nil {
		code, ok := poxErrorCodes[strings.TrimSpace(e.ErrorCode)]
		if !ok {
			code = domain.ErrorCodeInternalServerError
		}
		outcome := domain.DiscoveryError(code, strings.TrimSpace(e.Message))
		outcome.DebugData = strings.TrimSpace(e.DebugData)
		return outcome, nil
	}

	account := out.Response.Account
	if account == nil {
		return domain.DiscoveryOutcome{}, fmt.Errorf("%w: POX response without Account", domain.ErrMalformedResponse)
	}

	switch strings.TrimSpace(account.Action) {
	case poxActionRedirectAddr:
		return domain.RedirectToAddress(strings.TrimSpace(account.RedirectAddr)), nil
	case poxActionRedirectURL:
		return domain.RedirectToURL(strings.TrimSpace(account.RedirectURL)), nil
	case poxActionSettings:
		return domain.Resolved(poxSettings(emailAddress, out)), nil
	default:
		return domain.DiscoveryOutcome{}, fmt.Errorf("%w: unknown POX action %q", domain.ErrMalformedResponse, account.Action)
	}
}

// poxSettings maps POX protocol sections onto user setting names.
func poxSettings(emailAddress string, out *poxResponse) *domain.UserSettings {
	us := domain.NewUserSettings(emailAddress)
	if u := out.Response.User; u != nil {
		set(us, domain.SettingUserDisplayName, u.DisplayName)
		set(us, domain.SettingUserDN, u.LegacyDN)
		if addr := strings.TrimSpace(u.SMTPAddress); addr != "" {
			us.EmailAddress = addr
		}
	}
	for _, p := range out.Response.Account.Protocols {
		switch strings.TrimSpace(p.Type) {
		case poxProtocolInternal:
			set(us, domain.SettingInternalEwsURL, p.EwsURL)
			set(us, domain.SettingActiveDirectoryServer, p.AD)
			set(us, domain.SettingMailboxDN, p.MdbDN)
			set(us, domain.SettingCasVersion, p.ServerVersion)
		case poxProtocolExternal:
			set(us, domain.SettingExternalEwsURL, p.EwsURL)
		case poxProtocolWeb:
			// OWA only.
		}
	}
	return us
}

func set(us *domain.UserSettings, name, value string) {
	if value = strings.TrimSpace(value); value != "" {
		us.Settings[name] = value
	}
}

// --- Wire types ---

type poxRequest struct {
	XMLName        xml.Name `xml:"Autodiscover"`
	XMLNS          string   `xml:"xmlns,attr"`
	EmailAddress   string   `xml:"Request>EMailAddress"`
	ResponseSchema string   `xml:"Request>AcceptableResponseSchema"`
}

type poxResponse struct {
	XMLName  xml.Name `xml:"Autodiscover"`
	Response struct {
		User *struct {
			DisplayName string `xml:"DisplayName"`
			LegacyDN    string `xml:"LegacyDN"`
			SMTPAddress string `xml:"AutoDiscoverSMTPAddress"`
		} `xml:"User"`
		Account *poxAccount `xml:"Account"`
		Error   *poxError   `xml:"Error"`
	} `xml:"Response"`
}

type poxAccount struct {
	AccountType  string        `xml:"AccountType"`
	Action       string        `xml:"Action"`
	RedirectAddr string        `xml:"RedirectAddr"`
	RedirectURL  string        `xml:"RedirectUrl"`
	Protocols    []poxProtocol `xml:"Protocol"`
}

type poxProtocol struct {
	Type          string `xml:"Type"`
	Server        string `xml:"Server"`
	ServerVersion string `xml:"ServerVersion"`
	MdbDN         string `xml:"MdbDN"`
	AD            string `xml:"AD"`
	EwsURL        string `xml:"EwsUrl"`
	ASURL         string `xml:"ASUrl"`
}

type poxError struct {
	ErrorCode string `xml:"ErrorCode"`
	Message   string `xml:"Message"`
	DebugData string `xml:"DebugData"`
}
