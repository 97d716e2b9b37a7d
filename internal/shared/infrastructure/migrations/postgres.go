package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq" // database/sql driver used by golang-migrate
)

//go:embed postgres/*.sql
var postgresFS embed.FS

// PostgresMigrator runs the embedded Postgres migrations through golang-migrate.
type PostgresMigrator struct {
	db *sql.DB
	m  *migrate.Migrate
}

// NewPostgresMigrator opens databaseURL and prepares the migrator.
func NewPostgresMigrator(databaseURL string) (*PostgresMigrator, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db driver: %w", err)
	}

	sub, err := fs.Sub(postgresFS, "postgres")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	srcDriver, err := iofs.New(sub, ".")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return &PostgresMigrator{db: db, m: m}, nil
}

// Up applies all pending migrations.
func (p *PostgresMigrator) Up() error {
	if err := p.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Down rolls back the given number of migrations.
func (p *PostgresMigrator) Down(steps int) error {
	if steps <= 0 {
		steps = 1
	}
	if err := p.m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Force sets the recorded version without running migrations.
func (p *PostgresMigrator) Force(version int) error {
	return p.m.Force(version)
}

// Version reports the current schema version.
func (p *PostgresMigrator) Version() (uint, bool, error) {
	version, dirty, err := p.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Close releases the migrator and its connection.
func (p *PostgresMigrator) Close() error {
	srcErr, dbErr := p.m.Close()
	return errors.Join(srcErr, dbErr)
}
