// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

var validate = validator.New()

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// Store selects the ranking store backend.
	Store string `koanf:"store" validate:"oneof=memory sqlite"`

	// SQLitePath is the database file used by the sqlite store.
	SQLitePath string `koanf:"sqlite_path" validate:"required_if=Store sqlite"`

	// ShardCount sets the number of apply shards.
	ShardCount int `koanf:"shard_count" validate:"min=1,max=1024"`

	// QueueSize bounds each shard queue.
	QueueSize int `koanf:"queue_size" validate:"min=1"`

	// DedupeSize sets the size of the transaction claim cache.
	DedupeSize int `koanf:"dedupe_size" validate:"min=1"`

	// ApplyTimeoutMS bounds a single apply transaction.
	ApplyTimeoutMS int `koanf:"apply_timeout_ms" validate:"min=1"`

	// SummaryTopN is the number of aspects per polarity in a summary.
	SummaryTopN int `koanf:"summary_top_n" validate:"min=1,max=50"`

	// StrictAspects rejects aspect codes outside the catalog.
	StrictAspects bool `koanf:"strict_aspects"`

	// DefaultRaterID fills submissions without a rater. Empty disables it.
	DefaultRaterID string `koanf:"default_rater_id"`

	// CatalogFile optionally replaces the built-in aspect catalog.
	CatalogFile string `koanf:"catalog_file" validate:"omitempty,file"`

	// SubmitRateLimit is the sustained submissions per second; 0 disables it.
	SubmitRateLimit float64 `koanf:"submit_rate_limit" validate:"min=0"`

	// SubmitBurst is the submission token bucket size.
	SubmitBurst int `koanf:"submit_burst" validate:"min=1"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit" validate:"min=1"`
}

// New returns a Config filled with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		Store:               StoreMemory,
		SQLitePath:          "reputation.db",
		ShardCount:          runtime.NumCPU(),
		QueueSize:           1024,
		DedupeSize:          50_000,
		ApplyTimeoutMS:      5000,
		SummaryTopN:         3,
		StrictAspects:       true,
		SubmitRateLimit:     200,
		SubmitBurst:         400,
		MaxLeaderboardLimit: 100,
	}
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// ApplyTimeout returns ApplyTimeoutMS as a duration.
func (c *Config) ApplyTimeout() time.Duration {
	return time.Duration(c.ApplyTimeoutMS) * time.Millisecond
}
