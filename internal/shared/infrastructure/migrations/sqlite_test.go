package migrations

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSQLiteMigrations_AppliesPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COUNT").WithArgs(1).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS services").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs(1, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := RunSQLiteMigrations(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunSQLiteMigrations_SkipsApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COUNT").WithArgs(1).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	applied, err := RunSQLiteMigrations(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunSQLiteMigrations_RollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COUNT").WithArgs(1).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS services").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	applied, err := RunSQLiteMigrations(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000001_booking_schema.up.sql")
	assert.Equal(t, 0, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationVersion(t *testing.T) {
	v, err := migrationVersion("000012_add_index.up.sql")
	require.NoError(t, err)
	assert.Equal(t, 12, v)

	_, err = migrationVersion("noversion.sql")
	assert.Error(t, err)

	_, err = migrationVersion("abc_thing.up.sql")
	assert.Error(t, err)
}

func TestPostgresMigrationsEmbedded(t *testing.T) {
	up, err := postgresFS.ReadFile("postgres/000001_booking_schema.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "EXCLUDE USING gist")

	_, err = postgresFS.ReadFile("postgres/000001_booking_schema.down.sql")
	assert.NoError(t, err)
}
