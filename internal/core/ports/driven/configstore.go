package driven

// ConfigStore holds the raw values behind domain.AppSettings.
//
// Keys are flat and dotted after the TOML table they live in, for example
// "autodiscover.max_hops" or "auth.client_id". Integers may come back as int
// or int64 and lists as []string or []any, depending on how they were
// written; the typed getters accept both and return the zero value for a
// missing key or a value of another type. Durations are stored as strings
// in time.ParseDuration form.
type ConfigStore interface {
	// Get returns the raw value and whether the key is present.
	Get(key string) (any, bool)

	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool

	// GetStringSlice skips list elements that are not strings.
	GetStringSlice(key string) []string

	// Set stores value under key. File-backed stores write through, and a
	// failed write leaves the previous value in place.
	Set(key string, value any) error

	// Save writes all values to the backing file, if there is one.
	Save() error

	// Load rereads the backing file, if there is one, replacing all values.
	Load() error

	// Path names the backing file, or ":memory:".
	Path() string
}
