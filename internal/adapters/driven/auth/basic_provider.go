package auth

import (
	"context"
	"net/http"

	"github.com/custodia-labs/ewsync/internal/core/domain"
	"github.com/custodia-labs/ewsync/internal/core/ports/driven"
)

// Ensure BasicTokenProvider implements the TokenProvider interface.
var _ driven.TokenProvider = (*BasicTokenProvider)(nil)

// BasicTokenProvider authenticates with a username and password.
// Credentials are static and never refreshed.
type BasicTokenProvider struct {
	username string
	password string
}

// NewBasicTokenProvider creates a token provider for HTTP basic authentication.
func NewBasicTokenProvider(username, password string) *BasicTokenProvider {
	return &BasicTokenProvider{username: username, password: password}
}

// Authorize sets the Authorization header.
func (p *BasicTokenProvider) Authorize(_ context.Context, req *http.Request) error {
	if !p.IsAuthenticated() {
		return ErrMissingCredentials
	}
	req.SetBasicAuth(p.username, p.password)
	return nil
}

// AuthMethod returns AuthMethodBasic.
func (p *BasicTokenProvider) AuthMethod() domain.AuthMethod {
	return domain.AuthMethodBasic
}

// IsAuthenticated returns true if a username was configured.
func (p *BasicTokenProvider) IsAuthenticated() bool {
	return p.username != ""
}
