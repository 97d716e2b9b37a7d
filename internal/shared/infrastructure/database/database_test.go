package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverFor(t *testing.T) {
	tests := []struct {
		url  string
		want Driver
	}{
		{"", DriverSQLite},
		{"postgres://therapia:secret@db:5432/therapia?sslmode=disable", DriverPostgres},
		{"postgresql://localhost/therapia", DriverPostgres},
		{"sqlite:///var/lib/therapia/therapia.db", DriverSQLite},
		{"/tmp/booking.db", DriverSQLite},
		{"therapia.sqlite3", DriverSQLite},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DriverFor(tt.url), tt.url)
	}
}

type fakeTx struct {
	Executor
	commits, rollbacks int
}

func (t *fakeTx) Commit(context.Context) error   { t.commits++; return nil }
func (t *fakeTx) Rollback(context.Context) error { t.rollbacks++; return nil }

type fakeConn struct {
	Executor
	begun []*fakeTx
}

func (c *fakeConn) BeginTx(context.Context) (Transaction, error) {
	tx := &fakeTx{}
	c.begun = append(c.begun, tx)
	return tx, nil
}
func (c *fakeConn) Close() error               { return nil }
func (c *fakeConn) Ping(context.Context) error { return nil }
func (c *fakeConn) Driver() Driver             { return "fake" }

func TestOpen(t *testing.T) {
	conn := &fakeConn{}
	Register("fake", func(_ context.Context, cfg Config) (Connection, error) {
		if cfg.URL == "broken" {
			return nil, errors.New("refused")
		}
		return conn, nil
	})

	got, err := Open(context.Background(), Config{Driver: "fake"})
	require.NoError(t, err)
	assert.Same(t, conn, got)

	_, err = Open(context.Background(), Config{Driver: "fake", URL: "broken"})
	assert.EqualError(t, err, "refused")

	_, err = Open(context.Background(), Config{Driver: "oracle"})
	assert.ErrorContains(t, err, `"oracle" is not registered`)
}

func TestUnitOfWork_NestedBeginJoinsOuterTransaction(t *testing.T) {
	conn := &fakeConn{}
	uow := NewUnitOfWork(conn)

	outer, err := uow.Begin(context.Background())
	require.NoError(t, err)
	inner, err := uow.Begin(outer)
	require.NoError(t, err)

	require.Len(t, conn.begun, 1)
	tx := conn.begun[0]
	assert.Same(t, tx, TxFromContext(inner))
	assert.Same(t, tx, ExecutorFromContext(inner, conn))

	require.NoError(t, uow.Commit(inner))
	assert.Zero(t, tx.commits)
	require.NoError(t, uow.Rollback(inner))
	assert.Zero(t, tx.rollbacks)

	require.NoError(t, uow.Commit(outer))
	assert.Equal(t, 1, tx.commits)
}

func TestUnitOfWork_WithoutTransaction(t *testing.T) {
	conn := &fakeConn{}
	uow := NewUnitOfWork(conn)
	ctx := context.Background()

	assert.Nil(t, TxFromContext(ctx))
	assert.Same(t, conn, ExecutorFromContext(ctx, conn))
	assert.Error(t, uow.Commit(ctx))
	assert.Error(t, uow.Rollback(ctx))
}
