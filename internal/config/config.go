// Package config holds the runtime settings for the sync engine and the
// CLI around it. Values are layered: defaults, then an optional JSON file,
// then command-line flags, with later sources taking precedence.
package config

import "time"

// Config holds runtime settings for the sync client.
//
// Units: all intervals are time.Duration values (e.g. 30*time.Second).
type Config struct {
	// ServerBaseURL is the base URL of the remote API, e.g. "http://127.0.0.1:8080/api".
	ServerBaseURL string

	// OutletID scopes pulls to one outlet. Empty means unscoped.
	OutletID string

	// DatabasePath is the sqlite DSN for the local store.
	DatabasePath string

	// SyncInterval is how often the engine drains the queue while online.
	SyncInterval time.Duration

	// ProbeInterval is how often connectivity is re-checked against /health.
	ProbeInterval time.Duration

	// RequestTimeout bounds a single network call.
	RequestTimeout time.Duration

	// MaxRetries is the per-item retry ceiling fixed at enqueue time.
	MaxRetries int

	// Backoff policy: delay = min(InitialRetryDelay * BackoffFactor^n, MaxBackoff).
	InitialRetryDelay time.Duration
	BackoffFactor     float64
	MaxBackoff        time.Duration

	// ConflictStrategy is one of "server-wins", "client-wins", "manual".
	ConflictStrategy string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerBaseURL = "http://127.0.0.1:8080/api"
	c.OutletID = ""
	c.DatabasePath = "possync.db"
	c.SyncInterval = 30 * time.Second
	c.ProbeInterval = 3 * time.Second
	c.RequestTimeout = 10 * time.Second
	c.MaxRetries = 3
	c.InitialRetryDelay = time.Second
	c.BackoffFactor = 2
	c.MaxBackoff = 60 * time.Second
	c.ConflictStrategy = "server-wins"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
