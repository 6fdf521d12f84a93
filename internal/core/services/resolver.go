package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/ewsync/internal/core/domain"
	"github.com/custodia-labs/ewsync/internal/core/ports/driven"
	"github.com/custodia-labs/ewsync/internal/core/ports/driving"
	"github.com/custodia-labs/ewsync/internal/logger"
)

// Ensure RedirectionResolver implements the interface.
var _ driving.Autodiscoverer = (*RedirectionResolver)(nil)

// DefaultMaxHops is the number of discovery calls one resolution may issue.
const DefaultMaxHops = domain.DefaultMaxRedirectionHops

// ResolverConfig configures a RedirectionResolver.
type ResolverConfig struct {
	// MaxHops bounds the number of discovery calls. Zero means DefaultMaxHops.
	MaxHops int

	// URL is the first autodiscover URL to query. Empty lets the transport
	// derive endpoints from the e-mail domain.
	URL string

	// AllowInsecureRedirects permits http:// redirect targets.
	AllowInsecureRedirects bool

	// DetectRedirectLoops fails a resolution that is redirected back to a
	// target it already queried.
	DetectRedirectLoops bool

	// Settings are the user settings to request. Nil means domain.DefaultSettings.
	Settings []string

	// CacheTTL is how long successful resolutions are cached. Zero disables caching.
	CacheTTL time.Duration
}

// RedirectionResolver drives autodiscover queries, following URL and address
// redirects one hop at a time until the server returns settings or an error.
type RedirectionResolver struct {
	transport driven.DiscoveryTransport
	cache     driven.DiscoveryCache
	config    ResolverConfig
}

// NewRedirectionResolver creates a resolver over the given transport.
func NewRedirectionResolver(transport driven.DiscoveryTransport, cfg ResolverConfig) *RedirectionResolver {
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = DefaultMaxHops
	}
	if cfg.Settings == nil {
		cfg.Settings = domain.DefaultSettings
	}
	return &RedirectionResolver{
		transport: transport,
		config:    cfg,
	}
}

// SetCache sets the optional discovery cache.
func (r *RedirectionResolver) SetCache(cache driven.DiscoveryCache) {
	r.cache = cache
}

// Resolve resolves an e-mail address to its endpoint settings.
//
// Each hop issues exactly one discovery call against the current address and URL.
// Remote errors are returned as *domain.RemoteError and are never retried here.
// Transport errors are returned wrapped but otherwise untouched.
func (r *RedirectionResolver) Resolve(ctx context.Context, emailAddress string) (*driving.Resolution, error) {
	emailAddress = strings.TrimSpace(emailAddress)
	if !isEmailAddress(emailAddress) {
		return nil, fmt.Errorf("%w: %q is not an e-mail address", domain.ErrInvalidInput, emailAddress)
	}

	if r.cache != nil && r.config.CacheTTL > 0 {
		if settings, ok := r.cache.Get(ctx, emailAddress); ok {
			logger.Debug("autodiscover: cache hit for %s", emailAddress)
			return &driving.Resolution{
				Settings:     settings,
				EmailAddress: settings.EmailAddress,
				State:        domain.StateResolved,
				FromCache:    true,
			}, nil
		}
	}

	state := domain.NewRedirectionState(emailAddress, r.config.URL, r.config.MaxHops)
	resolverState := domain.StateQuerying

	for {
		if !state.CanQuery() {
			logger.Warn("autodiscover: giving up on %s after %d hops", emailAddress, state.HopsTaken)
			return nil, fmt.Errorf("resolve %s: %w (%d)", emailAddress, domain.ErrMaxRedirectionHops, state.MaxHops)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logger.Debug("autodiscover: hop %d querying %s at %q", state.HopsTaken+1, state.EmailAddress, state.URL)
		outcome, err := r.transport.PostDiscoveryRequest(ctx, state.Request(r.config.Settings))
		state.RecordQuery()
		if err != nil {
			return nil, fmt.Errorf("resolve %s: hop %d: %w", emailAddress, state.HopsTaken, err)
		}

		resolverState, err = r.transition(state, outcome)
		if err != nil {
			logger.Debug("autodiscover: %s failed after %d hops: %v", emailAddress, state.HopsTaken, err)
			return nil, fmt.Errorf("resolve %s: %w", emailAddress, err)
		}
		if resolverState != domain.StateResolved {
			continue
		}

		settings := outcome.Settings
		if settings == nil {
			settings = domain.NewUserSettings(state.EmailAddress)
		}
		if settings.EmailAddress == "" {
			settings.EmailAddress = state.EmailAddress
		}
		if r.cache != nil && r.config.CacheTTL > 0 {
			r.cache.Put(ctx, emailAddress, settings, r.config.CacheTTL)
		}

		logger.Debug("autodiscover: resolved %s in %d hops", emailAddress, state.HopsTaken)
		return &driving.Resolution{
			Settings:     settings,
			EmailAddress: state.EmailAddress,
			URL:          state.URL,
			HopsTaken:    state.HopsTaken,
			State:        resolverState,
		}, nil
	}
}

// transition applies one outcome to the state and returns the next resolver state.
// Redirects update the current target; the hop budget is checked on the next query.
func (r *RedirectionResolver) transition(
	state *domain.RedirectionState, outcome domain.DiscoveryOutcome,
) (domain.ResolverState, error) {
	switch outcome.Kind {
	case domain.OutcomeSuccess:
		return domain.StateResolved, nil

	case domain.OutcomeRedirectToURL:
		target := strings.TrimSpace(outcome.RedirectTarget)
		if err := r.checkRedirectURL(target); err != nil {
			return domain.StateFailed, err
		}
		if r.config.DetectRedirectLoops && state.WouldRevisit(state.EmailAddress, target) {
			return domain.StateFailed, fmt.Errorf("%w: %s", domain.ErrRedirectLoop, target)
		}
		logger.Debug("autodiscover: redirected to URL %s", target)
		state.URL = target
		return domain.StateFollowingURLRedirect, nil

	case domain.OutcomeRedirectToAddress:
		target := strings.TrimSpace(outcome.RedirectTarget)
		if !isEmailAddress(target) {
			return domain.StateFailed, fmt.Errorf("%w: redirect address %q", domain.ErrMalformedResponse, target)
		}
		// A new address may live in another domain, so the endpoint is derived again.
		if r.config.DetectRedirectLoops && state.WouldRevisit(target, r.config.URL) {
			return domain.StateFailed, fmt.Errorf("%w: %s", domain.ErrRedirectLoop, target)
		}
		logger.Debug("autodiscover: redirected to address %s", target)
		state.EmailAddress = target
		state.URL = r.config.URL
		return domain.StateFollowingAddressRedirect, nil

	case domain.OutcomeError:
		return domain.StateFailed, OutcomeError(outcome)

	default:
		return domain.StateFailed, fmt.Errorf("%w: unknown outcome kind %d", domain.ErrMalformedResponse, outcome.Kind)
	}
}

// checkRedirectURL rejects targets that are not absolute HTTP(S) URLs,
// and plaintext targets unless insecure redirects are allowed.
func (r *RedirectionResolver) checkRedirectURL(target string) error {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: redirect URL %q", domain.ErrMalformedResponse, target)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return nil
	case "http":
		if r.config.AllowInsecureRedirects {
			return nil
		}
		return fmt.Errorf("%w: %s", domain.ErrInsecureRedirect, target)
	default:
		return fmt.Errorf("%w: redirect URL %q", domain.ErrMalformedResponse, target)
	}
}

// isEmailAddress performs the minimal local@domain check autodiscover needs.
func isEmailAddress(s string) bool {
	at := strings.LastIndex(s, "@")
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t\r\n")
}

// EmailDomain returns the domain part of an e-mail address.
func EmailDomain(emailAddress string) string {
	at := strings.LastIndex(emailAddress, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(emailAddress[at+1:])
}
