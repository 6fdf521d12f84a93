package memory

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/custodia-labs/ewsync/internal/core/domain"
	"github.com/custodia-labs/ewsync/internal/core/ports/driven"
)

// Ensure DiscoveryCache implements the interface.
var _ driven.DiscoveryCache = (*DiscoveryCache)(nil)

// DiscoveryCache keeps resolved user settings in process memory.
type DiscoveryCache struct {
	cache *cache.Cache
}

// NewDiscoveryCache creates a cache whose expired entries are purged every cleanupInterval.
func NewDiscoveryCache(cleanupInterval time.Duration) *DiscoveryCache {
	return &DiscoveryCache{
		cache: cache.New(cache.NoExpiration, cleanupInterval),
	}
}

// Get returns cached settings for an e-mail address.
func (c *DiscoveryCache) Get(_ context.Context, emailAddress string) (*domain.UserSettings, bool) {
	x, found := c.cache.Get(cacheKey(emailAddress))
	if !found {
		return nil, false
	}
	settings, ok := x.(*domain.UserSettings)
	if !ok {
		return nil, false
	}
	return cloneSettings(settings), true
}

// Put caches settings for an e-mail address for ttl.
func (c *DiscoveryCache) Put(_ context.Context, emailAddress string, settings *domain.UserSettings, ttl time.Duration) {
	if settings == nil || ttl <= 0 {
		return
	}
	c.cache.Set(cacheKey(emailAddress), cloneSettings(settings), ttl)
}

func cacheKey(emailAddress string) string {
	return "autodiscover:" + strings.ToLower(emailAddress)
}

func cloneSettings(s *domain.UserSettings) *domain.UserSettings {
	out := domain.NewUserSettings(s.EmailAddress)
	for k, v := range s.Settings {
		out.Settings[k] = v
	}
	out.Errors = append(out.Errors, s.Errors...)
	return out
}
