package domain

// AuthMethod identifies how requests are authenticated.
type AuthMethod string

const (
	// AuthMethodNone sends no credentials.
	AuthMethodNone AuthMethod = "none"
	// AuthMethodBasic uses HTTP basic authentication.
	AuthMethodBasic AuthMethod = "basic"
	// AuthMethodOAuth uses an OAuth 2.0 client-credentials bearer token.
	AuthMethodOAuth AuthMethod = "oauth"
)

// IsValid reports whether the method is known.
func (m AuthMethod) IsValid() bool {
	switch m {
	case AuthMethodNone, AuthMethodBasic, AuthMethodOAuth:
		return true
	default:
		return false
	}
}

// OAuthClientConfig stores OAuth application credentials for the
// client-credentials grant.
type OAuthClientConfig struct {
	// TenantID is the directory tenant used to build the default token URL.
	TenantID string
	// ClientID is the application (client) ID.
	ClientID string
	// ClientSecret is the application secret.
	ClientSecret string
	// TokenURL overrides the token endpoint.
	TokenURL string
	// Scopes are the OAuth scopes to request.
	Scopes []string
}
