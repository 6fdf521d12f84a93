// Package driving defines the interfaces that the outside world uses to call INTO core.
//
// These are the "driving" or "primary" ports in hexagonal architecture.
// The CLI and embedding applications call these interfaces; core services implement them.
//
// # Interfaces
//
//   - Autodiscoverer: Resolve a mailbox to its EWS endpoint
//   - Synchroniser: Incremental folder synchronisation
//   - SettingsService: Persisted configuration
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driving
