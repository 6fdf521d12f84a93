package domain

import "time"

// DiscoveryProtocol selects the autodiscover wire protocol.
type DiscoveryProtocol string

// Available discovery protocols.
const (
	// DiscoverySOAP uses GetUserSettings against autodiscover.svc.
	DiscoverySOAP DiscoveryProtocol = "soap"

	// DiscoveryPOX uses the plain old XML autodiscover.xml endpoint.
	DiscoveryPOX DiscoveryProtocol = "pox"
)

// IsValid returns true if the protocol is recognised.
func (p DiscoveryProtocol) IsValid() bool {
	return p == DiscoverySOAP || p == DiscoveryPOX
}

// String returns the string representation.
func (p DiscoveryProtocol) String() string {
	return string(p)
}

// Defaults shared by the settings layer and the services.
const (
	// DefaultMaxRedirectionHops bounds the discovery calls of one resolution.
	DefaultMaxRedirectionHops = 10

	// DefaultMaxChangesReturned is the largest page EWS accepts.
	DefaultMaxChangesReturned = 512

	// DefaultSyncFolder is synchronised when no folder is named.
	DefaultSyncFolder = "inbox"

	// DefaultDiscoveryCacheTTL is how long resolved settings are reused.
	DefaultDiscoveryCacheTTL = 24 * time.Hour

	// DefaultRequestsPerSecond is the sustained request rate.
	DefaultRequestsPerSecond = 5

	// DefaultRequestBurst is the request burst size.
	DefaultRequestBurst = 10

	// DefaultRequestTimeout bounds one HTTP exchange.
	DefaultRequestTimeout = 100 * time.Second
)

// AppSettings holds all user-configurable settings.
type AppSettings struct {
	Account      AccountSettings
	Autodiscover AutodiscoverSettings
	Sync         SyncSettings
	Transport    TransportSettings
	Auth         AuthSettings
}

// AccountSettings identify the mailbox.
type AccountSettings struct {
	// EmailAddress is the mailbox to resolve and synchronise.
	EmailAddress string

	// EwsURL skips autodiscover when set.
	EwsURL string

	// ImpersonatedAddress, when set, is sent as ExchangeImpersonation.
	ImpersonatedAddress string
}

// AutodiscoverSettings configure endpoint resolution.
type AutodiscoverSettings struct {
	// URL is the first autodiscover endpoint. Empty derives it from the e-mail domain.
	URL string

	// Protocol selects SOAP or POX autodiscover.
	Protocol DiscoveryProtocol

	// MaxHops bounds the discovery calls of one resolution.
	MaxHops int

	// AllowInsecureRedirects permits redirects to non-HTTPS endpoints.
	AllowInsecureRedirects bool

	// DetectRedirectLoops fails a resolution that revisits an address and URL.
	DetectRedirectLoops bool

	// CacheTTL is how long resolved settings are cached. Zero disables caching.
	CacheTTL time.Duration

	// Settings are the user settings requested over SOAP.
	Settings []string
}

// SyncSettings configure folder synchronisation.
type SyncSettings struct {
	// Folder is the folder id or distinguished folder name to synchronise.
	Folder string

	// MaxChangesReturned is the page size, between 1 and DefaultMaxChangesReturned.
	MaxChangesReturned int
}

// TransportSettings configure the HTTP client.
type TransportSettings struct {
	// Timeout bounds one HTTP exchange.
	Timeout time.Duration

	// RequestsPerSecond is the sustained rate. Negative disables rate limiting.
	RequestsPerSecond int

	// Burst is the rate limiter burst size.
	Burst int

	// ServerVersion is sent as RequestServerVersion. Empty uses the client default.
	ServerVersion string
}

// AuthSettings configure request authentication.
type AuthSettings struct {
	Method   AuthMethod
	Username string
	Password string
	OAuth    OAuthClientConfig
}

// DefaultAppSettings returns settings with sensible defaults.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Autodiscover: AutodiscoverSettings{
			Protocol: DiscoverySOAP,
			MaxHops:  DefaultMaxRedirectionHops,
			CacheTTL: DefaultDiscoveryCacheTTL,
			Settings: append([]string(nil), DefaultSettings...),
		},
		Sync: SyncSettings{
			Folder:             DefaultSyncFolder,
			MaxChangesReturned: DefaultMaxChangesReturned,
		},
		Transport: TransportSettings{
			Timeout:           DefaultRequestTimeout,
			RequestsPerSecond: DefaultRequestsPerSecond,
			Burst:             DefaultRequestBurst,
		},
		Auth: AuthSettings{
			Method: AuthMethodNone,
		},
	}
}
