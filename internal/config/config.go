// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Defaults live in New; Load layers a YAML file and the environment on top.
// - Errors returned by Load wrap ErrLoadConfig or ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
)

// Store drivers accepted by StoreDriver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the person store: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`

	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `koanf:"sqlite_path"`

	// PostgresDSN is the connection string used by the postgres driver.
	PostgresDSN string `koanf:"postgres_dsn"`

	// CORSAllowedOrigins lists browser origins allowed to call the API.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// ChangeQueueSize bounds the in-memory change queue.
	ChangeQueueSize int `koanf:"change_queue_size"`

	// WorkerCount sets the number of journal workers.
	WorkerCount int `koanf:"worker_count"`

	// JournalSize is the number of changes the journal retains.
	JournalSize int `koanf:"journal_size"`

	// DedupeSize bounds the idempotency key memory.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxChangesLimit caps GET /changes?limit.
	MaxChangesLimit int `koanf:"max_changes_limit"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		Addr:               ":8080",
		StoreDriver:        DriverMemory,
		SQLitePath:         "crudapp.db",
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		ChangeQueueSize:    1024,
		WorkerCount:        2,
		JournalSize:        1000,
		DedupeSize:         10_000,
		MaxChangesLimit:    100,
	}
}

// Validate reports configuration that cannot start the service.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreDriver != DriverMemory && c.StoreDriver != DriverSQLite && c.StoreDriver != DriverPostgres:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	case c.StoreDriver == DriverSQLite && strings.TrimSpace(c.SQLitePath) == "":
		return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
	case c.StoreDriver == DriverPostgres && strings.TrimSpace(c.PostgresDSN) == "":
		return fmt.Errorf("%w: postgres_dsn is required for the postgres driver", ErrInvalidConfig)
	}
	return nil
}
