package driving

import (
	"context"

	"github.com/custodia-labs/ewsync/internal/core/domain"
)

// Autodiscoverer resolves a mailbox to its endpoint settings.
type Autodiscoverer interface {
	// Resolve chases redirects from the given address until settings are found
	// or the resolution fails.
	Resolve(ctx context.Context, emailAddress string) (*Resolution, error)
}

// Resolution is the outcome of a completed resolution.
type Resolution struct {
	// Settings are the endpoint settings of the final mailbox.
	Settings *domain.UserSettings

	// EmailAddress is the address that finally resolved, after address redirects.
	EmailAddress string

	// URL is the autodiscover URL that answered, after URL redirects.
	URL string

	// HopsTaken is the number of discovery calls issued.
	HopsTaken int

	// State is the terminal resolver state.
	State domain.ResolverState

	// FromCache is true when the settings came from the discovery cache.
	FromCache bool
}
