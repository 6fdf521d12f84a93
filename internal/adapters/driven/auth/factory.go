package auth

import (
	"errors"
	"fmt"

	"github.com/custodia-labs/ewsync/internal/core/domain"
	"github.com/custodia-labs/ewsync/internal/core/ports/driven"
)

// ErrMissingCredentials indicates an auth method was chosen without its credentials.
var ErrMissingCredentials = errors.New("auth: missing credentials")

// Config selects and configures a token provider.
type Config struct {
	Method   domain.AuthMethod
	Username string
	Password string
	OAuth    domain.OAuthClientConfig
}

// NewTokenProvider creates the TokenProvider for cfg.
// An empty method selects NullTokenProvider.
func NewTokenProvider(cfg Config) (driven.TokenProvider, error) {
	switch cfg.Method {
	case "", domain.AuthMethodNone:
		return NewNullTokenProvider(), nil
	case domain.AuthMethodBasic:
		if cfg.Username == "" {
			return nil, fmt.Errorf("%w: basic auth requires a username", ErrMissingCredentials)
		}
		return NewBasicTokenProvider(cfg.Username, cfg.Password), nil
	case domain.AuthMethodOAuth:
		if cfg.OAuth.ClientID == "" || cfg.OAuth.ClientSecret == "" {
			return nil, fmt.Errorf("%w: oauth requires a client id and secret", ErrMissingCredentials)
		}
		if cfg.OAuth.TenantID == "" && cfg.OAuth.TokenURL == "" {
			return nil, fmt.Errorf("%w: oauth requires a tenant id or token url", ErrMissingCredentials)
		}
		return NewOAuthTokenProvider(cfg.OAuth), nil
	default:
		return nil, fmt.Errorf("%w: unknown auth method %q", domain.ErrInvalidInput, cfg.Method)
	}
}
