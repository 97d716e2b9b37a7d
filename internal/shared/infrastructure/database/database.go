// Package database hides the Postgres and SQLite drivers behind one
// executor interface. Repositories write Postgres-flavoured SQL with $N
// placeholders; the SQLite connection rewrites them.
package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Driver names a storage backend.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

func (d Driver) String() string { return string(d) }

// DriverFor picks the backend for a DATABASE_URL value: postgres URLs use
// Postgres, anything else (including empty) is a SQLite file path.
func DriverFor(url string) Driver {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Config selects and configures a backend.
type Config struct {
	// Driver defaults to DriverFor(URL).
	Driver Driver
	// URL is the Postgres connection string.
	URL string
	// SQLitePath defaults to DefaultSQLitePath.
	SQLitePath string
	// MaxConns caps the Postgres pool.
	MaxConns int
}

// Opener connects to one backend. Driver packages register theirs in init.
type Opener func(ctx context.Context, cfg Config) (Connection, error)

var (
	openersMu sync.RWMutex
	openers   = map[Driver]Opener{}
)

// Register makes a backend available to Open.
func Register(driver Driver, open Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[driver] = open
}

// Open connects to the configured backend. The driver package must be
// linked in, usually with a blank import.
func Open(ctx context.Context, cfg Config) (Connection, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFor(cfg.URL)
	}
	openersMu.RLock()
	open, ok := openers[driver]
	openersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("database driver %q is not registered", driver)
	}
	return open(ctx, cfg)
}

// DefaultSQLitePath is where local mode keeps its database.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".therapia", "therapia.db")
}

// EnsureParentDir creates the directory holding path.
func EnsureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
