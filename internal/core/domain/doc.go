// Package domain defines the core entities of the EWS client.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - DiscoveryOutcome: The result of one autodiscover hop
//   - RedirectionState: The resolver's per-call accumulator
//   - ChangeRecord: One create/update/delete/read-flag change
//   - ChangeFeed: One page of ordered changes plus its sync-state token
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
