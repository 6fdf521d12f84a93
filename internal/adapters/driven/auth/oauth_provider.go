package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/custodia-labs/ewsync/internal/core/domain"
	"github.com/custodia-labs/ewsync/internal/core/ports/driven"
	"github.com/custodia-labs/ewsync/internal/logger"
)

// Ensure OAuthTokenProvider implements the TokenProvider interface.
var _ driven.TokenProvider = (*OAuthTokenProvider)(nil)

// DefaultScope grants application access to Exchange Online EWS.
const DefaultScope = "https://outlook.office365.com/.default"

// OAuthTokenProvider obtains bearer tokens with the client-credentials grant
// and refreshes them shortly before they expire.
type OAuthTokenProvider struct {
	config        clientcredentials.Config
	refreshBuffer time.Duration

	mu     sync.Mutex
	source oauth2.TokenSource
}

// NewOAuthTokenProvider creates a token provider for an OAuth application.
// The token URL defaults to the Microsoft identity platform endpoint of the tenant.
func NewOAuthTokenProvider(cfg domain.OAuthClientConfig) *OAuthTokenProvider {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID)
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{DefaultScope}
	}
	return &OAuthTokenProvider{
		config: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
		},
		refreshBuffer: 5 * time.Minute,
	}
}

// Authorize sets a bearer token, fetching a new one if the cached token is
// within the refresh buffer of its expiry.
func (p *OAuthTokenProvider) Authorize(ctx context.Context, req *http.Request) error {
	if !p.IsAuthenticated() {
		return ErrMissingCredentials
	}

	token, err := p.tokenSource(ctx).Token()
	if err != nil {
		return fmt.Errorf("fetch oauth token: %w", err)
	}
	token.SetAuthHeader(req)
	return nil
}

// tokenSource lazily builds the caching token source.
// Token fetches keep the first caller's context values but not its cancellation.
func (p *OAuthTokenProvider) tokenSource(ctx context.Context) oauth2.TokenSource {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.source == nil {
		logger.Debug("auth: using client credentials from %s", p.config.TokenURL)
		p.source = oauth2.ReuseTokenSourceWithExpiry(nil, p.config.TokenSource(context.WithoutCancel(ctx)), p.refreshBuffer)
	}
	return p.source
}

// AuthMethod returns AuthMethodOAuth.
func (p *OAuthTokenProvider) AuthMethod() domain.AuthMethod {
	return domain.AuthMethodOAuth
}

// IsAuthenticated returns true if client credentials are configured.
func (p *OAuthTokenProvider) IsAuthenticated() bool {
	return p.config.ClientID != "" && p.config.ClientSecret != ""
}
