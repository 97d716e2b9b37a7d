package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/therapia/internal/shared/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type txKey struct{}

// recordingUnitOfWork tracks the calls WithUnitOfWork makes.
type recordingUnitOfWork struct {
	beginErr, commitErr, rollbackErr error
	calls                            []string
}

func (u *recordingUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	u.calls = append(u.calls, "begin")
	if u.beginErr != nil {
		return ctx, u.beginErr
	}
	return context.WithValue(ctx, txKey{}, true), nil
}

func (u *recordingUnitOfWork) Commit(ctx context.Context) error {
	u.calls = append(u.calls, "commit")
	return u.commitErr
}

func (u *recordingUnitOfWork) Rollback(ctx context.Context) error {
	u.calls = append(u.calls, "rollback")
	return u.rollbackErr
}

func TestWithUnitOfWork(t *testing.T) {
	slotTaken := domain.NewConflictError("SLOT_CONFLICT", "taken")
	lockedDB := errors.New("database is locked")

	tests := []struct {
		name      string
		uow       *recordingUnitOfWork
		fnErr     error
		wantErr   error
		wantCalls []string
		wantRun   bool
	}{
		{
			name:      "commits on success",
			uow:       &recordingUnitOfWork{},
			wantCalls: []string{"begin", "commit"},
			wantRun:   true,
		},
		{
			name:      "rolls back and keeps the work error",
			uow:       &recordingUnitOfWork{rollbackErr: lockedDB},
			fnErr:     slotTaken,
			wantErr:   slotTaken,
			wantCalls: []string{"begin", "rollback"},
			wantRun:   true,
		},
		{
			name:      "skips work when begin fails",
			uow:       &recordingUnitOfWork{beginErr: lockedDB},
			wantErr:   lockedDB,
			wantCalls: []string{"begin"},
		},
		{
			name:      "returns the commit error",
			uow:       &recordingUnitOfWork{commitErr: lockedDB},
			wantErr:   lockedDB,
			wantCalls: []string{"begin", "commit"},
			wantRun:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ran := false
			err := WithUnitOfWork(context.Background(), tt.uow, func(ctx context.Context) error {
				ran = true
				assert.Equal(t, true, ctx.Value(txKey{}))
				return tt.fnErr
			})

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantRun, ran)
			assert.Equal(t, tt.wantCalls, tt.uow.calls)
		})
	}
}

func TestWithDeadline(t *testing.T) {
	t.Run("passes through success", func(t *testing.T) {
		err := WithDeadline(context.Background(), time.Second, func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			assert.True(t, ok)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("maps expiry to timeout", func(t *testing.T) {
		err := WithDeadline(context.Background(), time.Millisecond, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		assert.ErrorIs(t, err, domain.ErrTimeout)
		assert.Equal(t, domain.CodeTimeout, domain.CodeOf(err))
	})

	t.Run("keeps classified errors", func(t *testing.T) {
		conflict := domain.NewConflictError("SLOT_CONFLICT", "taken")
		err := WithDeadline(context.Background(), time.Second, func(ctx context.Context) error {
			return conflict
		})
		assert.ErrorIs(t, err, conflict)
	})
}
