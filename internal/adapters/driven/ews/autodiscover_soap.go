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

// Ensure SOAPDiscovery implements the interface.
var _ driven.DiscoveryTransport = (*SOAPDiscovery)(nil)

const (
	actionGetUserSettings   = "http://schemas.microsoft.com/exchange/2010/Autodiscover/Autodiscover/GetUserSettings"
	actionGetDomainSettings = "http://schemas.microsoft.com/exchange/2010/Autodiscover/Autodiscover/GetDomainSettings"

	// DefaultRequestedServerVersion is sent in the autodiscover header.
	DefaultRequestedServerVersion = "Exchange2013"
)

// SOAPDiscovery queries the SOAP autodiscover service (autodiscover.svc).
type SOAPDiscovery struct {
	client *Client
}

// NewSOAPDiscovery creates a SOAP autodiscover transport.
func NewSOAPDiscovery(client *Client) *SOAPDiscovery {
	return &SOAPDiscovery{client: client}
}

// PostDiscoveryRequest issues one GetUserSettings call.
// Without a URL, the endpoints derived from the e-mail domain are tried in order
// until one answers with HTTP 200 or a redirect.
func (d *SOAPDiscovery) PostDiscoveryRequest(ctx context.Context, req domain.DiscoveryRequest) (domain.DiscoveryOutcome, error) {
	endpoints, err := candidateURLs(req, soapPath)
	if err != nil {
		return domain.DiscoveryOutcome{}, err
	}

	var lastErr error
	for _, endpoint := range endpoints {
		outcome, err := d.getUserSettings(ctx, endpoint, req)
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

func (d *SOAPDiscovery) getUserSettings(
	ctx context.Context, endpoint string, req domain.DiscoveryRequest,
) (domain.DiscoveryOutcome, error) {
	env := newAutodiscoverEnvelope(actionGetUserSettings, endpoint)
	env.Body.GetUserSettings = &getUserSettingsRequest{
		Users:    []adUser{{Mailbox: req.EmailAddress}},
		Settings: req.Settings,
	}

	resp, err := d.send(ctx, endpoint, env)
	if err != nil {
		return domain.DiscoveryOutcome{}, err
	}
	if IsRedirect(resp.StatusCode) {
		return redirectOutcome(resp)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.DiscoveryOutcome{}, statusError(resp)
	}

	var out getUserSettingsEnvelope
	if err := decodeXML(resp.Body, &out); err != nil {
		return domain.DiscoveryOutcome{}, err
	}
	if out.Response == nil {
		return domain.DiscoveryOutcome{}, fmt.Errorf("%w: no GetUserSettings response from %s", domain.ErrMalformedResponse, endpoint)
	}
	if code := toErrorCode(out.Response.ErrorCode); code != domain.ErrorCodeNoError {
		return d.responseError(endpoint, code, out.Response.ErrorMessage)
	}
	if len(out.Response.UserResponses) == 0 {
		return domain.DiscoveryOutcome{}, fmt.Errorf("%w: no user response from %s", domain.ErrMalformedResponse, endpoint)
	}

	user := out.Response.UserResponses[0]
	return d.outcome(req.EmailAddress, user.settingsResponse, user.Settings, user.SettingErrors), nil
}

// GetDomainSettings issues one GetDomainSettings call against endpoint.
// Redirect outcomes are returned to the caller unfollowed.
func (d *SOAPDiscovery) GetDomainSettings(
	ctx context.Context, endpoint, domainName string, settings []string,
) (domain.DiscoveryOutcome, error) {
	if endpoint == "" {
		endpoint = "https://autodiscover." + strings.ToLower(domainName) + soapPath
	}
	env := newAutodiscoverEnvelope(actionGetDomainSettings, endpoint)
	env.Body.GetDomainSettings = &getDomainSettingsRequest{
		Domains:  []string{domainName},
		Settings: settings,
	}

	resp, err := d.send(ctx, endpoint, env)
	if err != nil {
		return domain.DiscoveryOutcome{}, err
	}
	if IsRedirect(resp.StatusCode) {
		return redirectOutcome(resp)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.DiscoveryOutcome{}, statusError(resp)
	}

	var out getDomainSettingsEnvelope
	if err := decodeXML(resp.Body, &out); err != nil {
		return domain.DiscoveryOutcome{}, err
	}
	if out.Response == nil {
		return domain.DiscoveryOutcome{}, fmt.Errorf("%w: no GetDomainSettings response from %s", domain.ErrMalformedResponse, endpoint)
	}
	if code := toErrorCode(out.Response.ErrorCode); code != domain.ErrorCodeNoError {
		return d.responseError(endpoint, code, out.Response.ErrorMessage)
	}
	if len(out.Response.DomainResponses) == 0 {
		return domain.DiscoveryOutcome{}, fmt.Errorf("%w: no domain response from %s", domain.ErrMalformedResponse, endpoint)
	}

	dr := out.Response.DomainResponses[0]
	return d.outcome(domainName, dr.settingsResponse, dr.Settings, dr.SettingErrors), nil
}

func (d *SOAPDiscovery) send(ctx context.Context, endpoint string, env autodiscoverEnvelope) (*response, error) {
	body, err := encodeXML(env)
	if err != nil {
		return nil, err
	}
	return d.client.post(ctx, endpoint, soapContentType, body)
}

// outcome maps a user or domain response onto a discovery outcome.
func (d *SOAPDiscovery) outcome(
	owner string, r settingsResponse, settings []settingXML, errs []settingErrorXML,
) domain.DiscoveryOutcome {
	code := toErrorCode(r.ErrorCode)
	switch code {
	case domain.ErrorCodeNoError:
		us := domain.NewUserSettings(owner)
		for _, s := range settings {
			if s.Value == nil {
				logger.Debug("autodiscover: skipping structured setting %s", s.Name)
				continue
			}
			us.Settings[s.Name] = strings.TrimSpace(*s.Value)
		}
		for _, e := range errs {
			us.Errors = append(us.Errors, domain.SettingError{
				SettingName: strings.TrimSpace(e.SettingName),
				Code:        toErrorCode(e.ErrorCode),
				Message:     strings.TrimSpace(e.ErrorMessage),
			})
		}
		return domain.Resolved(us)
	case domain.ErrorCodeRedirectAddress:
		return domain.RedirectToAddress(strings.TrimSpace(r.RedirectTarget))
	case domain.ErrorCodeRedirectURL:
		return domain.RedirectToURL(strings.TrimSpace(r.RedirectTarget))
	default:
		return d.errorOutcome(code, r.ErrorMessage)
	}
}

// responseError maps the error code of the top-level Response element.
// That element carries no RedirectTarget, so redirect codes there are malformed.
func (d *SOAPDiscovery) responseError(
	endpoint string, code domain.ErrorCode, message string,
) (domain.DiscoveryOutcome, error) {
	switch code {
	case domain.ErrorCodeRedirectAddress, domain.ErrorCodeRedirectURL:
		return domain.DiscoveryOutcome{}, fmt.Errorf("%w: response-level %s from %s", domain.ErrMalformedResponse, code, endpoint)
	default:
		return d.errorOutcome(code, message), nil
	}
}

// errorOutcome builds an error outcome. SOAP autodiscover responses carry only
// an error code and message, so DebugData stays empty; POX fills it.
func (d *SOAPDiscovery) errorOutcome(code domain.ErrorCode, message string) domain.DiscoveryOutcome {
	if code == domain.ErrorCodeServerBusy {
		d.client.limiter.RecordBackoff(0)
	}
	return domain.DiscoveryError(code, strings.TrimSpace(message))
}

// --- Request envelope ---

type autodiscoverEnvelope struct {
	XMLName  xml.Name           `xml:"soap:Envelope"`
	XMLNS    string             `xml:"xmlns:soap,attr"`
	XMLNSa   string             `xml:"xmlns:a,attr"`
	XMLNSwsa string             `xml:"xmlns:wsa,attr"`
	Header   autodiscoverHeader `xml:"soap:Header"`
	Body     autodiscoverBody   `xml:"soap:Body"`
}

type autodiscoverHeader struct {
	RequestedServerVersion string `xml:"a:RequestedServerVersion"`
	Action                 string `xml:"wsa:Action"`
	To                     string `xml:"wsa:To"`
}

type autodiscoverBody struct {
	GetUserSettings   *getUserSettingsRequest   `xml:"a:GetUserSettingsRequestMessage>a:Request,omitempty"`
	GetDomainSettings *getDomainSettingsRequest `xml:"a:GetDomainSettingsRequestMessage>a:Request,omitempty"`
}

type getUserSettingsRequest struct {
	Users    []adUser `xml:"a:Users>a:User"`
	Settings []string `xml:"a:RequestedSettings>a:Setting"`
}

type adUser struct {
	Mailbox string `xml:"a:Mailbox"`
}

type getDomainSettingsRequest struct {
	Domains  []string `xml:"a:Domains>a:Domain"`
	Settings []string `xml:"a:RequestedSettings>a:Setting"`
}

func newAutodiscoverEnvelope(action, endpoint string) autodiscoverEnvelope {
	return autodiscoverEnvelope{
		XMLNS:    nsSOAP,
		XMLNSa:   nsAutodiscover,
		XMLNSwsa: nsAddressing,
		Header: autodiscoverHeader{
			RequestedServerVersion: DefaultRequestedServerVersion,
			Action:                 action,
			To:                     endpoint,
		},
	}
}

// --- Response envelope ---

type getUserSettingsEnvelope struct {
	Response *getUserSettingsResponse `xml:"Body>GetUserSettingsResponseMessage>Response"`
}

type getUserSettingsResponse struct {
	ErrorCode     string            `xml:"ErrorCode"`
	ErrorMessage  string            `xml:"ErrorMessage"`
	UserResponses []userResponseXML `xml:"UserResponses>UserResponse"`
}

type getDomainSettingsEnvelope struct {
	Response *getDomainSettingsResponse `xml:"Body>GetDomainSettingsResponseMessage>Response"`
}

type getDomainSettingsResponse struct {
	ErrorCode       string              `xml:"ErrorCode"`
	ErrorMessage    string              `xml:"ErrorMessage"`
	DomainResponses []domainResponseXML `xml:"DomainResponses>DomainResponse"`
}

// settingsResponse holds the fields user and domain responses share.
type settingsResponse struct {
	ErrorCode      string `xml:"ErrorCode"`
	ErrorMessage   string `xml:"ErrorMessage"`
	RedirectTarget string `xml:"RedirectTarget"`
}

type userResponseXML struct {
	settingsResponse
	Settings      []settingXML      `xml:"UserSettings>UserSetting"`
	SettingErrors []settingErrorXML `xml:"UserSettingErrors>UserSettingError"`
}

type domainResponseXML struct {
	settingsResponse
	Settings      []settingXML      `xml:"DomainSettings>DomainSetting"`
	SettingErrors []settingErrorXML `xml:"DomainSettingErrors>DomainSettingError"`
}

// settingXML is a name/value setting. Value is nil for structured settings.
type settingXML struct {
	Name  string  `xml:"Name"`
	Value *string `xml:"Value"`
}

type settingErrorXML struct {
	ErrorCode    string `xml:"ErrorCode"`
	ErrorMessage string `xml:"ErrorMessage"`
	SettingName  string `xml:"SettingName"`
}
