// Package dbtest opens migrated SQLite databases for tests.
package dbtest

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/crypto"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/migrations"
)

// NewSQLite returns a connection to a fresh file-backed SQLite database with
// the booking schema applied. The database is closed when the test ends.
func NewSQLite(t testing.TB) database.Connection {
	t.Helper()

	ctx := context.Background()
	conn, err := sqlite.NewConnection(ctx, database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "therapia_test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	sqliteConn, ok := conn.(*sqlite.Connection)
	require.True(t, ok)
	_, err = migrations.RunSQLiteMigrations(ctx, sqliteConn.DB())
	require.NoError(t, err)

	return conn
}

// SeedService inserts a minimal active service row so tables referencing
// services can be exercised without the catalog repository.
func SeedService(t testing.TB, conn database.Connection, slug string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := conn.Exec(context.Background(), `
		INSERT INTO services (id, slug, name, price_amount, currency, deposit_amount, duration_minutes,
			formats, cancel_free_hours, cancel_partial_hours, reschedule_min_hours, active,
			created_at, updated_at, version)
		VALUES ($1, $2, $3, '5000.00', 'RUB', NULL, 60, 'online,offline', 24, 6, 12, 1, $4, $4, 1)`,
		id.String(), slug, "Service "+slug, now,
	)
	require.NoError(t, err)
	return id
}

// SeedAppointment inserts a confirmed online appointment of serviceID for a
// random client, one hour long from start.
func SeedAppointment(t testing.TB, conn database.Connection, serviceID uuid.UUID, start time.Time) uuid.UUID {
	t.Helper()

	id := uuid.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := conn.Exec(context.Background(), `
		INSERT INTO appointments (id, service_id, client_id, start_at, end_at, tz, format, status,
			metadata, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, 'UTC', 'online', 'confirmed', '{}', $6, $6, 1)`,
		id.String(), serviceID.String(), uuid.NewString(), start.UTC(), start.UTC().Add(time.Hour), now,
	)
	require.NoError(t, err)
	return id
}

// NewCipher returns a field cipher with a fixed test key.
func NewCipher(t testing.TB) *crypto.AESEncrypter {
	t.Helper()

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	c, err := crypto.NewAESGCMFromBase64Key(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	return c
}
