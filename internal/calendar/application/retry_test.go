package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/felixgeelhaar/therapia/internal/calendar/domain"
)

func TestBackoff_Delay(t *testing.T) {
	b := DefaultBackoff()
	assert.Equal(t, 200*time.Millisecond, b.Delay(1))
	assert.Equal(t, 400*time.Millisecond, b.Delay(2))
	assert.Equal(t, 800*time.Millisecond, b.Delay(3))
	assert.Equal(t, 5*time.Second, b.Delay(10))
}

func fastBackoff(attempts int) Backoff {
	return Backoff{Attempts: attempts, Base: time.Millisecond, Max: 2 * time.Millisecond}
}

func TestRetry(t *testing.T) {
	transient := domain.Transient(errors.New("503"))
	permanent := domain.Permanent(errors.New("400"))

	tests := []struct {
		name      string
		errs      []error
		attempts  int
		wantErr   error
		wantCalls int
	}{
		{name: "first try", errs: []error{nil}, attempts: 4, wantCalls: 1},
		{name: "recovers", errs: []error{transient, transient, nil}, attempts: 4, wantCalls: 3},
		{name: "gives up", errs: []error{transient, transient, transient, transient}, attempts: 4, wantErr: transient, wantCalls: 4},
		{name: "permanent stops", errs: []error{permanent, nil}, attempts: 4, wantErr: permanent, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), fastBackoff(tt.attempts), func(context.Context) error {
				err := tt.errs[calls]
				calls++
				return err
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, Backoff{Attempts: 5, Base: time.Hour, Max: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return domain.Transient(errors.New("503"))
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
