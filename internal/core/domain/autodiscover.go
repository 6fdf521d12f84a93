package domain

import "strings"

// ErrorCode is an autodiscover error code as it appears on the wire.
type ErrorCode string

const (
	ErrorCodeNoError               ErrorCode = "NoError"
	ErrorCodeRedirectAddress       ErrorCode = "RedirectAddress"
	ErrorCodeRedirectURL           ErrorCode = "RedirectUrl"
	ErrorCodeInvalidUser           ErrorCode = "InvalidUser"
	ErrorCodeInvalidRequest        ErrorCode = "InvalidRequest"
	ErrorCodeInvalidSetting        ErrorCode = "InvalidSetting"
	ErrorCodeSettingIsNotAvailable ErrorCode = "SettingIsNotAvailable"
	ErrorCodeServerBusy            ErrorCode = "ServerBusy"
	ErrorCodeInvalidDomain         ErrorCode = "InvalidDomain"
	ErrorCodeNotFederated          ErrorCode = "NotFederated"
	ErrorCodeInternalServerError   ErrorCode = "InternalServerError"
)

// ErrorCodes lists every known autodiscover error code.
var ErrorCodes = []ErrorCode{
	ErrorCodeNoError,
	ErrorCodeRedirectAddress,
	ErrorCodeRedirectURL,
	ErrorCodeInvalidUser,
	ErrorCodeInvalidRequest,
	ErrorCodeInvalidSetting,
	ErrorCodeSettingIsNotAvailable,
	ErrorCodeServerBusy,
	ErrorCodeInvalidDomain,
	ErrorCodeNotFederated,
	ErrorCodeInternalServerError,
}

// ParseErrorCode converts a wire value to an ErrorCode.
// Matching ignores surrounding whitespace. Unknown values return false.
func ParseErrorCode(s string) (ErrorCode, bool) {
	s = strings.TrimSpace(s)
	for _, code := range ErrorCodes {
		if string(code) == s {
			return code, true
		}
	}
	return "", false
}

// String returns the wire representation.
func (c ErrorCode) String() string {
	return string(c)
}

// Classification is the retry taxonomy for a remote error.
type Classification int

const (
	// Retryable errors may succeed if the caller retries with backoff.
	Retryable Classification = iota
	// TerminalClient errors are caused by the request and must not be retried.
	TerminalClient
	// TerminalServer errors are server faults that are not retried by default.
	TerminalServer
)

// String returns a human-readable representation.
func (c Classification) String() string {
	switch c {
	case Retryable:
		return "retryable"
	case TerminalClient:
		return "terminal client error"
	case TerminalServer:
		return "terminal server error"
	default:
		return "unknown"
	}
}

// DiscoveryRequest is the target of a single autodiscover hop.
type DiscoveryRequest struct {
	// EmailAddress is the mailbox being resolved.
	EmailAddress string
	// URL is the autodiscover endpoint. Empty lets the transport derive
	// candidate endpoints from the e-mail domain.
	URL string
	// Settings are the user setting names to request.
	Settings []string
}

// OutcomeKind tags a DiscoveryOutcome.
type OutcomeKind int

const (
	// OutcomeSuccess carries endpoint settings.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeRedirectToURL carries a new autodiscover URL.
	OutcomeRedirectToURL
	// OutcomeRedirectToAddress carries a new e-mail address.
	OutcomeRedirectToAddress
	// OutcomeError carries a remote error.
	OutcomeError
)

// String returns a human-readable representation.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRedirectToURL:
		return "redirect-url"
	case OutcomeRedirectToAddress:
		return "redirect-address"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// DiscoveryOutcome is the result of one discovery call.
// Exactly one of the payload fields is meaningful, selected by Kind.
type DiscoveryOutcome struct {
	Kind OutcomeKind

	// Settings is set for OutcomeSuccess.
	Settings *UserSettings

	// RedirectTarget is the URL or e-mail address for redirect outcomes.
	RedirectTarget string

	// Code, Message and DebugData are set for OutcomeError.
	Code      ErrorCode
	Message   string
	DebugData string
}

// Resolved builds a success outcome.
func Resolved(settings *UserSettings) DiscoveryOutcome {
	return DiscoveryOutcome{Kind: OutcomeSuccess, Settings: settings}
}

// RedirectToURL builds a URL redirect outcome.
func RedirectToURL(uri string) DiscoveryOutcome {
	return DiscoveryOutcome{Kind: OutcomeRedirectToURL, RedirectTarget: uri}
}

// RedirectToAddress builds an address redirect outcome.
func RedirectToAddress(emailAddress string) DiscoveryOutcome {
	return DiscoveryOutcome{Kind: OutcomeRedirectToAddress, RedirectTarget: emailAddress}
}

// DiscoveryError builds an error outcome.
func DiscoveryError(code ErrorCode, message string) DiscoveryOutcome {
	return DiscoveryOutcome{Kind: OutcomeError, Code: code, Message: message}
}

// Well known user setting names.
const (
	SettingUserDisplayName       = "UserDisplayName"
	SettingUserDN                = "UserDN"
	SettingInternalEwsURL        = "InternalEwsUrl"
	SettingExternalEwsURL        = "ExternalEwsUrl"
	SettingEwsSupportedSchemas   = "EwsSupportedSchemas"
	SettingActiveDirectoryServer = "ActiveDirectoryServer"
	SettingMailboxDN             = "MailboxDN"
	SettingCasVersion            = "CasVersion"
)

// DefaultSettings are requested when the caller names none.
var DefaultSettings = []string{
	SettingUserDisplayName,
	SettingInternalEwsURL,
	SettingExternalEwsURL,
}

// UserSettings holds the settings returned for a mailbox.
type UserSettings struct {
	// EmailAddress is the address the settings were returned for.
	EmailAddress string
	// Settings maps setting names to values.
	Settings map[string]string
	// Errors lists requested settings the server could not return.
	Errors []SettingError
}

// NewUserSettings creates an empty settings holder.
func NewUserSettings(emailAddress string) *UserSettings {
	return &UserSettings{
		EmailAddress: emailAddress,
		Settings:     make(map[string]string),
	}
}

// Get returns a setting value.
func (u *UserSettings) Get(name string) (string, bool) {
	if u == nil || u.Settings == nil {
		return "", false
	}
	v, ok := u.Settings[name]
	return v, ok
}

// EwsURL returns the EWS endpoint, preferring the external URL.
// Falls back to the internal URL if no external URL was returned.
func (u *UserSettings) EwsURL() string {
	if v, ok := u.Get(SettingExternalEwsURL); ok && v != "" {
		return v
	}
	v, _ := u.Get(SettingInternalEwsURL)
	return v
}

// ResolverState is a state of the redirection resolver.
type ResolverState int

const (
	StateQuerying ResolverState = iota
	StateFollowingURLRedirect
	StateFollowingAddressRedirect
	StateResolved
	StateFailed
)

// String returns a human-readable representation.
func (s ResolverState) String() string {
	switch s {
	case StateQuerying:
		return "querying"
	case StateFollowingURLRedirect:
		return "following-url-redirect"
	case StateFollowingAddressRedirect:
		return "following-address-redirect"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s ResolverState) IsTerminal() bool {
	return s == StateResolved || s == StateFailed
}

// RedirectionState accumulates the resolver's progress across hops.
// It is owned by a single in-flight resolution.
type RedirectionState struct {
	// EmailAddress is the current mailbox address.
	EmailAddress string
	// URL is the current autodiscover URL, empty until a URL is known.
	URL string
	// HopsTaken counts the discovery calls issued so far.
	HopsTaken int
	// MaxHops bounds HopsTaken.
	MaxHops int

	visited map[string]struct{}
}

// NewRedirectionState creates the initial state for a resolution.
func NewRedirectionState(emailAddress, url string, maxHops int) *RedirectionState {
	return &RedirectionState{
		EmailAddress: emailAddress,
		URL:          url,
		MaxHops:      maxHops,
		visited:      make(map[string]struct{}),
	}
}

// CanQuery reports whether another discovery call fits in the hop budget.
func (s *RedirectionState) CanQuery() bool {
	return s.HopsTaken < s.MaxHops
}

// RecordQuery marks the current target as visited and consumes one hop.
func (s *RedirectionState) RecordQuery() {
	s.visited[s.key(s.EmailAddress, s.URL)] = struct{}{}
	s.HopsTaken++
}

// WouldRevisit reports whether querying the given target repeats an earlier hop.
func (s *RedirectionState) WouldRevisit(emailAddress, url string) bool {
	_, ok := s.visited[s.key(emailAddress, url)]
	return ok
}

// Request returns the discovery request for the current target.
func (s *RedirectionState) Request(settings []string) DiscoveryRequest {
	return DiscoveryRequest{
		EmailAddress: s.EmailAddress,
		URL:          s.URL,
		Settings:     settings,
	}
}

func (s *RedirectionState) key(emailAddress, url string) string {
	return strings.ToLower(emailAddress) + " " + strings.ToLower(url)
}
