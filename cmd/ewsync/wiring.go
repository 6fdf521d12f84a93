package main

import (
	"fmt"

	"github.com/custodia-labs/ewsync/internal/adapters/driven/auth"
	"github.com/custodia-labs/ewsync/internal/adapters/driven/ews"
	"github.com/custodia-labs/ewsync/internal/adapters/driving/cli"
	"github.com/custodia-labs/ewsync/internal/core/domain"
	"github.com/custodia-labs/ewsync/internal/core/ports/driven"
	"github.com/custodia-labs/ewsync/internal/core/ports/driving"
	"github.com/custodia-labs/ewsync/internal/core/services"
)

// Ensure wiring implements the CLI factory.
var _ cli.Factory = (*wiring)(nil)

// wiring builds EWS adapters and core services from the effective settings
// of a command.
type wiring struct {
	syncStore driven.SyncStateStore
	cache     driven.DiscoveryCache
}

// Autodiscoverer returns a redirection resolver over the configured protocol.
func (w *wiring) Autodiscoverer(settings *domain.AppSettings) (driving.Autodiscoverer, error) {
	client, err := newClient(settings)
	if err != nil {
		return nil, err
	}

	var transport driven.DiscoveryTransport
	switch settings.Autodiscover.Protocol {
	case domain.DiscoveryPOX:
		transport = ews.NewPOXDiscovery(client)
	default:
		transport = ews.NewSOAPDiscovery(client)
	}

	resolver := services.NewRedirectionResolver(transport, services.ResolverConfigFrom(settings))
	if w.cache != nil {
		resolver.SetCache(w.cache)
	}
	return resolver, nil
}

// DomainSettings returns a SOAP autodiscover client.
func (w *wiring) DomainSettings(settings *domain.AppSettings) (cli.DomainSettingsFetcher, error) {
	client, err := newClient(settings)
	if err != nil {
		return nil, err
	}
	return ews.NewSOAPDiscovery(client), nil
}

// Synchroniser returns a sync service bound to ewsURL.
func (w *wiring) Synchroniser(settings *domain.AppSettings, ewsURL string) (driving.Synchroniser, error) {
	if w.syncStore == nil {
		return nil, fmt.Errorf("sync state store not configured")
	}
	client, err := newClient(settings)
	if err != nil {
		return nil, err
	}
	transport := ews.NewSyncTransport(client, ewsURL)
	return services.NewSyncService(transport, w.syncStore, settings.Sync.MaxChangesReturned), nil
}

// newClient creates an authenticated, rate limited EWS client.
func newClient(settings *domain.AppSettings) (*ews.Client, error) {
	tokens, err := auth.NewTokenProvider(auth.Config{
		Method:   settings.Auth.Method,
		Username: settings.Auth.Username,
		Password: settings.Auth.Password,
		OAuth:    settings.Auth.OAuth,
	})
	if err != nil {
		return nil, fmt.Errorf("configure authentication: %w", err)
	}

	limiter := ews.NewRateLimiterWithConfig(ews.RateLimitConfig{
		RequestsPerSecond: float64(settings.Transport.RequestsPerSecond),
		BurstSize:         settings.Transport.Burst,
	})

	return ews.NewClient(ews.Options{
		Timeout:             settings.Transport.Timeout,
		Tokens:              tokens,
		Limiter:             limiter,
		ServerVersion:       settings.Transport.ServerVersion,
		ImpersonatedAddress: settings.Account.ImpersonatedAddress,
	}), nil
}
