package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/ewsync/internal/core/domain"
)

// DiscoveryTransport performs a single autodiscover request.
// Implementations own HTTP, authentication and timeouts.
type DiscoveryTransport interface {
	// PostDiscoveryRequest queries the target once and classifies the response.
	// Structured server outcomes (including errors) are returned as a DiscoveryOutcome;
	// the error return is reserved for transport failures.
	PostDiscoveryRequest(ctx context.Context, req domain.DiscoveryRequest) (domain.DiscoveryOutcome, error)
}

// DiscoveryCache stores resolved settings per e-mail address.
type DiscoveryCache interface {
	// Get returns cached settings for an address.
	Get(ctx context.Context, emailAddress string) (*domain.UserSettings, bool)

	// Put caches settings for an address for the given duration.
	Put(ctx context.Context, emailAddress string, settings *domain.UserSettings, ttl time.Duration)
}
