package driven

import (
	"context"
	"net/http"

	"github.com/custodia-labs/ewsync/internal/core/domain"
)

// TokenProvider authenticates outgoing requests.
// Implementations handle token refresh transparently.
type TokenProvider interface {
	// Authorize adds credentials to the request.
	// Refreshes the underlying token first if it has expired.
	Authorize(ctx context.Context, req *http.Request) error

	// AuthMethod returns the authentication method (basic, oauth, none).
	AuthMethod() domain.AuthMethod

	// IsAuthenticated returns true if credentials are available.
	// Always true for NullTokenProvider.
	IsAuthenticated() bool
}
