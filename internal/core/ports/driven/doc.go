// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - DiscoveryTransport: Issues one autodiscover request per hop
//   - SyncTransport: Issues one synchronisation request per page
//   - SyncStateStore: Sync-state token persistence
//   - ConfigStore: Key-value configuration persistence
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - DiscoveryCache: Remembers resolved settings per mailbox
//   - TokenProvider: Supplies credentials; nil sends anonymous requests
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
