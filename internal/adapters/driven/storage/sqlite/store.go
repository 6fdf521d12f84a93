package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/ewsync/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/ewsync/internal/core/domain"
	"github.com/custodia-labs/ewsync/internal/core/ports/driven"
	"github.com/custodia-labs/ewsync/internal/logger"
)

// databaseFile is the name of the database inside the data directory.
const databaseFile = "state.db"

// Store is a SQLite-based storage that provides access to the
// persistent driven ports through wrapper types.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore creates a new SQLite store in the specified data directory.
// If dataDir is empty, defaults to ~/.ewsync/data/state.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".ewsync", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, databaseFile)

	// WAL mode lets a sync and a discover run side by side.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
		now:  time.Now,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// SyncStateStore returns a SyncStateStore interface backed by this store.
func (s *Store) SyncStateStore() driven.SyncStateStore {
	return &syncStateStore{store: s}
}

// DiscoveryCache returns a DiscoveryCache interface backed by this store.
func (s *Store) DiscoveryCache() driven.DiscoveryCache {
	return &discoveryCache{store: s}
}

// migrate runs all pending migrations and records each applied version.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
		logger.Debug("sqlite: applied migration %s", name)
	}

	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("getting schema version: %w", err)
	}
	return version, nil
}

// ==================== Sync State Store ====================

// syncStateStore implements driven.SyncStateStore.
type syncStateStore struct {
	store *Store
}

var _ driven.SyncStateStore = (*syncStateStore)(nil)

// Save stores or updates sync state.
func (s *syncStateStore) Save(ctx context.Context, state domain.SyncState) error {
	if state.Key == "" {
		return fmt.Errorf("%w: sync state key is required", domain.ErrInvalidInput)
	}

	var lastSync sql.NullTime
	if !state.LastSync.IsZero() {
		lastSync = sql.NullTime{Time: state.LastSync.UTC(), Valid: true}
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sync_states (key, token, last_sync)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			token = excluded.token,
			last_sync = excluded.last_sync
	`, state.Key, state.Token, lastSync)
	if err != nil {
		return fmt.Errorf("saving sync state: %w", err)
	}
	return nil
}

// Get retrieves sync state for a key.
func (s *syncStateStore) Get(ctx context.Context, key string) (*domain.SyncState, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT key, token, last_sync
		FROM sync_states WHERE key = ?
	`, key)

	var state domain.SyncState
	var lastSync sql.NullTime
	if err := row.Scan(&state.Key, &state.Token, &lastSync); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning sync state: %w", err)
	}

	if lastSync.Valid {
		state.LastSync = lastSync.Time
	}

	return &state, nil
}

// Delete removes sync state for a key.
func (s *syncStateStore) Delete(ctx context.Context, key string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM sync_states WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("deleting sync state: %w", err)
	}
	return nil
}

// ==================== Discovery Cache ====================

// discoveryCache implements driven.DiscoveryCache.
// Storage failures are logged and treated as cache misses.
type discoveryCache struct {
	store *Store
}

var _ driven.DiscoveryCache = (*discoveryCache)(nil)

// cachedSettings is the JSON form of domain.UserSettings.
type cachedSettings struct {
	EmailAddress string            `json:"email_address"`
	Settings     map[string]string `json:"settings"`
	Errors       []cachedError     `json:"errors,omitempty"`
}

type cachedError struct {
	SettingName string `json:"setting_name"`
	Code        string `json:"code"`
	Message     string `json:"message"`
}

func cacheKey(emailAddress string) string {
	return strings.ToLower(strings.TrimSpace(emailAddress))
}

// Get returns unexpired cached settings for an address.
func (c *discoveryCache) Get(ctx context.Context, emailAddress string) (*domain.UserSettings, bool) {
	row := c.store.db.QueryRowContext(ctx, `
		SELECT settings FROM discovery_cache
		WHERE email = ? AND expires_at > ?
	`, cacheKey(emailAddress), c.store.now().UTC())

	var data string
	if err := row.Scan(&data); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.Warn("sqlite: reading discovery cache: %v", err)
		}
		return nil, false
	}

	var cached cachedSettings
	if err := json.Unmarshal([]byte(data), &cached); err != nil {
		logger.Warn("sqlite: decoding cached settings for %s: %v", emailAddress, err)
		return nil, false
	}

	us := domain.NewUserSettings(cached.EmailAddress)
	for k, v := range cached.Settings {
		us.Settings[k] = v
	}
	for _, e := range cached.Errors {
		us.Errors = append(us.Errors, domain.SettingError{
			SettingName: e.SettingName,
			Code:        domain.ErrorCode(e.Code),
			Message:     e.Message,
		})
	}
	return us, true
}

// Put caches settings for ttl. A non-positive ttl or nil settings store nothing.
func (c *discoveryCache) Put(ctx context.Context, emailAddress string, settings *domain.UserSettings, ttl time.Duration) {
	if settings == nil || ttl <= 0 {
		return
	}

	cached := cachedSettings{
		EmailAddress: settings.EmailAddress,
		Settings:     settings.Settings,
	}
	for _, e := range settings.Errors {
		cached.Errors = append(cached.Errors, cachedError{
			SettingName: e.SettingName,
			Code:        string(e.Code),
			Message:     e.Message,
		})
	}
	data, err := json.Marshal(cached)
	if err != nil {
		logger.Warn("sqlite: encoding settings for %s: %v", emailAddress, err)
		return
	}

	now := c.store.now().UTC()
	_, err = c.store.db.ExecContext(ctx, `
		INSERT INTO discovery_cache (email, settings, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			settings = excluded.settings,
			expires_at = excluded.expires_at
	`, cacheKey(emailAddress), string(data), now.Add(ttl))
	if err != nil {
		logger.Warn("sqlite: writing discovery cache: %v", err)
		return
	}

	// Expired rows are pruned opportunistically.
	if _, err := c.store.db.ExecContext(ctx, "DELETE FROM discovery_cache WHERE expires_at <= ?", now); err != nil {
		logger.Debug("sqlite: pruning discovery cache: %v", err)
	}
}
