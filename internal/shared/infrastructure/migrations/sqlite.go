package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed sqlite/*.sql
var sqliteFS embed.FS

// RunSQLiteMigrations applies pending SQLite migrations in version order and
// records each in schema_migrations. It returns the number applied.
func RunSQLiteMigrations(ctx context.Context, db *sql.DB) (int, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	entries, err := sqliteFS.ReadDir("sqlite")
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	applied := 0
	for _, file := range upFiles {
		version, err := migrationVersion(file)
		if err != nil {
			return applied, err
		}

		var exists int
		err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists)
		if err != nil {
			return applied, fmt.Errorf("failed to check migration %s: %w", file, err)
		}
		if exists > 0 {
			continue
		}

		migration, err := sqliteFS.ReadFile("sqlite/" + file)
		if err != nil {
			return applied, fmt.Errorf("failed to read migration %s: %w", file, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return applied, err
		}
		if _, err := tx.ExecContext(ctx, string(migration)); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("failed to execute migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			version, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("failed to record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, err
		}
		applied++
	}

	return applied, nil
}

func migrationVersion(file string) (int, error) {
	prefix, _, ok := strings.Cut(file, "_")
	if !ok {
		return 0, fmt.Errorf("migration %s has no version prefix", file)
	}
	version, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, fmt.Errorf("migration %s has invalid version: %w", file, err)
	}
	return version, nil
}
