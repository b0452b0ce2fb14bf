// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and the environment.
// - External errors are wrapped with this package's sentinel kinds.
package config

import "time"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite database file. Its directory is created on start.
	DBPath string `koanf:"db_path"`

	// UploadDelayMS is the minimum distance between two live runs of a user
	// for the same subtask.
	UploadDelayMS int64 `koanf:"upload_delay_ms"`

	// TimerDelayMS is the maintenance sweep interval.
	TimerDelayMS int64 `koanf:"timer_delay_ms"`

	// TimerCleanMS is how long a pending or errored run may sit unmodified
	// before the sweep deletes it.
	TimerCleanMS int64 `koanf:"timer_clean_ms"`

	// EmailAddress is the operator address; registrations using it are verified.
	EmailAddress string `koanf:"email_address"`

	// MaxLeaderboardLimit caps the rows of the valid list. Larger requested
	// limits are clamped; 0 leaves them uncapped.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// TokenAttempts bounds token regeneration on collision.
	TokenAttempts int `koanf:"token_attempts"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		DBPath:              "data/tagcaption.db",
		UploadDelayMS:       60 * 60 * 1000,
		TimerDelayMS:        10 * 60 * 1000,
		TimerCleanMS:        24 * 60 * 60 * 1000,
		EmailAddress:        "",
		MaxLeaderboardLimit: 0,
		TokenAttempts:       8,
	}
}

// UploadDelay returns the rate-limit window.
func (c *Config) UploadDelay() time.Duration { return time.Duration(c.UploadDelayMS) * time.Millisecond }

// TimerDelay returns the sweep interval.
func (c *Config) TimerDelay() time.Duration { return time.Duration(c.TimerDelayMS) * time.Millisecond }

// TimerClean returns the stale-run retention window.
func (c *Config) TimerClean() time.Duration { return time.Duration(c.TimerCleanMS) * time.Millisecond }
