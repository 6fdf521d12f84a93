package services

import (
	"fmt"
	"net/url"
	"time"

	"github.com/custodia-labs/ewsync/internal/core/domain"
	"github.com/custodia-labs/ewsync/internal/core/ports/driven"
	"github.com/custodia-labs/ewsync/internal/core/ports/driving"
	"github.com/custodia-labs/ewsync/internal/logger"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyAccountEmail       = "account.email"
	keyAccountEwsURL      = "account.ews_url"
	keyAccountImpersonate = "account.impersonate"
	keyDiscoverURL        = "autodiscover.url"
	keyDiscoverProtocol   = "autodiscover.protocol"
	keyDiscoverMaxHops    = "autodiscover.max_hops"
	keyDiscoverInsecure   = "autodiscover.allow_insecure_redirects"
	keyDiscoverLoops      = "autodiscover.detect_redirect_loops"
	keyDiscoverCacheTTL   = "autodiscover.cache_ttl"
	keyDiscoverSettings   = "autodiscover.settings"
	keySyncFolder         = "sync.folder"
	keySyncMaxChanges     = "sync.max_changes"
	keyTransportTimeout   = "transport.timeout"
	keyTransportRate      = "transport.requests_per_second"
	keyTransportBurst     = "transport.burst"
	keyTransportVersion   = "transport.server_version"
	keyAuthMethod         = "auth.method"
	keyAuthUsername       = "auth.username"
	keyAuthPassword       = "auth.password"
	keyAuthTenantID       = "auth.tenant_id"
	keyAuthClientID       = "auth.client_id"
	keyAuthClientSecret   = "auth.client_secret"
	keyAuthTokenURL       = "auth.token_url"
	keyAuthScopes         = "auth.scopes"
)

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// Get retrieves current application settings.
// Missing or unparseable values fall back to the defaults.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Account: domain.AccountSettings{
			EmailAddress:        s.configStore.GetString(keyAccountEmail),
			EwsURL:              s.configStore.GetString(keyAccountEwsURL),
			ImpersonatedAddress: s.configStore.GetString(keyAccountImpersonate),
		},
		Autodiscover: domain.AutodiscoverSettings{
			URL:                    s.configStore.GetString(keyDiscoverURL),
			Protocol:               s.getProtocol(defaults.Autodiscover.Protocol),
			MaxHops:                s.getInt(keyDiscoverMaxHops, defaults.Autodiscover.MaxHops),
			AllowInsecureRedirects: s.getBool(keyDiscoverInsecure, defaults.Autodiscover.AllowInsecureRedirects),
			DetectRedirectLoops:    s.getBool(keyDiscoverLoops, defaults.Autodiscover.DetectRedirectLoops),
			CacheTTL:               s.getDuration(keyDiscoverCacheTTL, defaults.Autodiscover.CacheTTL),
			Settings:               s.getStringSlice(keyDiscoverSettings, defaults.Autodiscover.Settings),
		},
		Sync: domain.SyncSettings{
			Folder:             s.getString(keySyncFolder, defaults.Sync.Folder),
			MaxChangesReturned: s.getInt(keySyncMaxChanges, defaults.Sync.MaxChangesReturned),
		},
		Transport: domain.TransportSettings{
			Timeout:           s.getDuration(keyTransportTimeout, defaults.Transport.Timeout),
			RequestsPerSecond: s.getInt(keyTransportRate, defaults.Transport.RequestsPerSecond),
			Burst:             s.getInt(keyTransportBurst, defaults.Transport.Burst),
			ServerVersion:     s.configStore.GetString(keyTransportVersion),
		},
		Auth: domain.AuthSettings{
			Method:   s.getAuthMethod(defaults.Auth.Method),
			Username: s.configStore.GetString(keyAuthUsername),
			Password: s.configStore.GetString(keyAuthPassword),
			OAuth: domain.OAuthClientConfig{
				TenantID:     s.configStore.GetString(keyAuthTenantID),
				ClientID:     s.configStore.GetString(keyAuthClientID),
				ClientSecret: s.configStore.GetString(keyAuthClientSecret),
				TokenURL:     s.configStore.GetString(keyAuthTokenURL),
				Scopes:       s.configStore.GetStringSlice(keyAuthScopes),
			},
		},
	}

	return settings, nil
}

type configValue struct {
	key   string
	value any
}

// Save persists application settings. Empty secrets are not written so that
// a stored secret survives a save of settings loaded without it.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []configValue{
		{keyAccountEmail, settings.Account.EmailAddress},
		{keyAccountEwsURL, settings.Account.EwsURL},
		{keyAccountImpersonate, settings.Account.ImpersonatedAddress},
		{keyDiscoverURL, settings.Autodiscover.URL},
		{keyDiscoverProtocol, settings.Autodiscover.Protocol.String()},
		{keyDiscoverMaxHops, settings.Autodiscover.MaxHops},
		{keyDiscoverInsecure, settings.Autodiscover.AllowInsecureRedirects},
		{keyDiscoverLoops, settings.Autodiscover.DetectRedirectLoops},
		{keyDiscoverCacheTTL, settings.Autodiscover.CacheTTL.String()},
		{keyDiscoverSettings, settings.Autodiscover.Settings},
		{keySyncFolder, settings.Sync.Folder},
		{keySyncMaxChanges, settings.Sync.MaxChangesReturned},
		{keyTransportTimeout, settings.Transport.Timeout.String()},
		{keyTransportRate, settings.Transport.RequestsPerSecond},
		{keyTransportBurst, settings.Transport.Burst},
		{keyTransportVersion, settings.Transport.ServerVersion},
		{keyAuthMethod, string(settings.Auth.Method)},
		{keyAuthUsername, settings.Auth.Username},
		{keyAuthTenantID, settings.Auth.OAuth.TenantID},
		{keyAuthClientID, settings.Auth.OAuth.ClientID},
		{keyAuthTokenURL, settings.Auth.OAuth.TokenURL},
		{keyAuthScopes, settings.Auth.OAuth.Scopes},
	}
	if settings.Auth.Password != "" {
		values = append(values, configValue{keyAuthPassword, settings.Auth.Password})
	}
	if settings.Auth.OAuth.ClientSecret != "" {
		values = append(values, configValue{keyAuthClientSecret, settings.Auth.OAuth.ClientSecret})
	}

	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}
	return nil
}

// Validate checks settings for consistency.
func (s *SettingsService) Validate(settings *domain.AppSettings) error {
	if addr := settings.Account.EmailAddress; addr != "" && !isEmailAddress(addr) {
		return fmt.Errorf("%w: account.email %q is not an e-mail address", domain.ErrInvalidInput, addr)
	}
	if err := validateURL(keyAccountEwsURL, settings.Account.EwsURL); err != nil {
		return err
	}
	if err := validateURL(keyDiscoverURL, settings.Autodiscover.URL); err != nil {
		return err
	}
	if !settings.Autodiscover.Protocol.IsValid() {
		return fmt.Errorf("%w: unknown autodiscover protocol %q", domain.ErrInvalidInput, settings.Autodiscover.Protocol)
	}
	if settings.Autodiscover.MaxHops < 1 {
		return fmt.Errorf("%w: autodiscover.max_hops must be at least 1", domain.ErrInvalidInput)
	}
	if settings.Autodiscover.CacheTTL < 0 {
		return fmt.Errorf("%w: autodiscover.cache_ttl must not be negative", domain.ErrInvalidInput)
	}
	if n := settings.Sync.MaxChangesReturned; n < 1 || n > domain.DefaultMaxChangesReturned {
		return fmt.Errorf("%w: sync.max_changes must be between 1 and %d", domain.ErrInvalidInput, domain.DefaultMaxChangesReturned)
	}
	if settings.Transport.Timeout <= 0 {
		return fmt.Errorf("%w: transport.timeout must be positive", domain.ErrInvalidInput)
	}
	return validateAuth(settings.Auth)
}

func validateURL(key, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("%w: %s %q is not an http(s) URL", domain.ErrInvalidInput, key, raw)
	}
	return nil
}

func validateAuth(auth domain.AuthSettings) error {
	switch auth.Method {
	case domain.AuthMethodNone:
		return nil
	case domain.AuthMethodBasic:
		if auth.Username == "" {
			return fmt.Errorf("%w: basic auth requires auth.username", domain.ErrInvalidInput)
		}
		return nil
	case domain.AuthMethodOAuth:
		if auth.OAuth.ClientID == "" {
			return fmt.Errorf("%w: oauth requires auth.client_id", domain.ErrInvalidInput)
		}
		if auth.OAuth.TenantID == "" && auth.OAuth.TokenURL == "" {
			return fmt.Errorf("%w: oauth requires auth.tenant_id or auth.token_url", domain.ErrInvalidInput)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown auth method %q", domain.ErrInvalidInput, auth.Method)
	}
}

// ResolverConfigFrom derives the resolver configuration from settings.
func ResolverConfigFrom(settings *domain.AppSettings) ResolverConfig {
	return ResolverConfig{
		MaxHops:                settings.Autodiscover.MaxHops,
		URL:                    settings.Autodiscover.URL,
		AllowInsecureRedirects: settings.Autodiscover.AllowInsecureRedirects,
		DetectRedirectLoops:    settings.Autodiscover.DetectRedirectLoops,
		Settings:               settings.Autodiscover.Settings,
		CacheTTL:               settings.Autodiscover.CacheTTL,
	}
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getStringSlice(key string, defaultVal []string) []string {
	if val := s.configStore.GetStringSlice(key); len(val) > 0 {
		return val
	}
	return append([]string(nil), defaultVal...)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	str := s.configStore.GetString(key)
	if str == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(str)
	if err != nil {
		logger.Warn("settings: ignoring %s = %q: %v", key, str, err)
		return defaultVal
	}
	return d
}

func (s *SettingsService) getProtocol(defaultVal domain.DiscoveryProtocol) domain.DiscoveryProtocol {
	p := domain.DiscoveryProtocol(s.configStore.GetString(keyDiscoverProtocol))
	if !p.IsValid() {
		return defaultVal
	}
	return p
}

func (s *SettingsService) getAuthMethod(defaultVal domain.AuthMethod) domain.AuthMethod {
	m := domain.AuthMethod(s.configStore.GetString(keyAuthMethod))
	if !m.IsValid() {
		return defaultVal
	}
	return m
}
