package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Config selects and tunes a backend.
type Config struct {
	// Driver is detected from URL when empty.
	Driver Driver
	// URL is the PostgreSQL connection string.
	URL string
	// SQLitePath is the database file; defaults to ~/.meridian/meridian.db.
	SQLitePath string
	// MaxConns caps the PostgreSQL pool.
	MaxConns int
}

// Factory opens a connection for one driver.
type Factory func(ctx context.Context, cfg Config) (Connection, error)

var factories = map[Driver]Factory{}

// Register installs the factory for a driver. Driver packages call it
// from init, so callers blank-import the drivers they need.
func Register(d Driver, f Factory) {
	factories[d] = f
}

// Open connects using the configured or detected driver.
func Open(ctx context.Context, cfg Config) (Connection, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DetectDriver(cfg.URL)
	}
	f, ok := factories[driver]
	if !ok {
		return nil, fmt.Errorf("database driver %q not registered", driver)
	}
	return f(ctx, cfg)
}

// DefaultSQLitePath returns the default local database path.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".meridian", "meridian.db")
}
