package auth

import (
	"context"
	"net/http"

	"github.com/custodia-labs/ewsync/internal/core/domain"
	"github.com/custodia-labs/ewsync/internal/core/ports/driven"
)

// Ensure NullTokenProvider implements the TokenProvider interface.
var _ driven.TokenProvider = (*NullTokenProvider)(nil)

// NullTokenProvider sends requests without credentials.
// Useful against test servers and endpoints that authenticate at the network layer.
type NullTokenProvider struct{}

// NewNullTokenProvider creates a token provider that adds no credentials.
func NewNullTokenProvider() *NullTokenProvider {
	return &NullTokenProvider{}
}

// Authorize leaves the request untouched.
func (p *NullTokenProvider) Authorize(_ context.Context, _ *http.Request) error {
	return nil
}

// AuthMethod returns AuthMethodNone.
func (p *NullTokenProvider) AuthMethod() domain.AuthMethod {
	return domain.AuthMethodNone
}

// IsAuthenticated always returns true since no-auth is always "authenticated".
func (p *NullTokenProvider) IsAuthenticated() bool {
	return true
}
