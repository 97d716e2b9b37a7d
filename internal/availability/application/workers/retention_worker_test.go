package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/therapia/internal/availability/domain"
	"github.com/felixgeelhaar/therapia/internal/availability/infrastructure/persistence"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database/dbtest"
)

var testNow = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func slotEndingAt(end time.Time) *domain.Slot {
	return domain.NewSlot(uuid.New(), nil, sharedDomain.MustTimeSlot(end.Add(-time.Hour), end, "UTC"), testNow)
}

func TestRetentionWorker_RunOnce(t *testing.T) {
	ctx := context.Background()
	repo := persistence.NewSQLSlotRepository(dbtest.NewSQLite(t))

	old := slotEndingAt(testNow.Add(-31 * 24 * time.Hour))
	recent := slotEndingAt(testNow.Add(-2 * 24 * time.Hour))
	upcoming := slotEndingAt(testNow.Add(24 * time.Hour))
	require.NoError(t, repo.SaveBatch(ctx, []*domain.Slot{old, recent, upcoming}))

	w := NewRetentionWorker(repo, sharedDomain.NewFixedClock(testNow), DefaultRetentionWorkerConfig(), nil)
	assert.Equal(t, int64(1), w.RunOnce(ctx))

	_, err := repo.FindByID(ctx, old.ID())
	assert.ErrorIs(t, err, domain.ErrSlotNotFound)
	_, err = repo.FindByID(ctx, recent.ID())
	assert.NoError(t, err)
}

type mockSlotRepo struct {
	mock.Mock
	domain.Repository
}

func (m *mockSlotRepo) DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func TestRetentionWorker_RunOnceError(t *testing.T) {
	repo := new(mockSlotRepo)
	repo.On("DeleteEndedBefore", mock.Anything, testNow.Add(-time.Hour)).Return(int64(0), errors.New("disk full"))

	w := NewRetentionWorker(repo, sharedDomain.NewFixedClock(testNow), RetentionWorkerConfig{Retention: time.Hour}, nil)
	assert.Equal(t, int64(0), w.RunOnce(context.Background()))
	repo.AssertExpectations(t)
}

func TestRetentionWorker_RunStops(t *testing.T) {
	repo := new(mockSlotRepo)
	repo.On("DeleteEndedBefore", mock.Anything, mock.Anything).Return(int64(0), nil)

	w := NewRetentionWorker(repo, sharedDomain.NewFixedClock(testNow), RetentionWorkerConfig{Interval: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, w.IsRunning, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.False(t, w.IsRunning())
}
