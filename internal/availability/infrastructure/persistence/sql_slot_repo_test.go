package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/therapia/internal/availability/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database/dbtest"
)

var testNow = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func slotAt(serviceID *uuid.UUID, startHours, lengthHours int) *domain.Slot {
	start := testNow.Add(time.Duration(startHours) * time.Hour)
	window := sharedDomain.MustTimeSlot(start, start.Add(time.Duration(lengthHours)*time.Hour), "Europe/Moscow")
	return domain.NewSlot(uuid.New(), serviceID, window, testNow)
}

func TestSQLSlotRepository_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.NewSQLite(t)
	serviceID := dbtest.SeedService(t, conn, "individual")
	repo := NewSQLSlotRepository(conn)

	slot := slotAt(&serviceID, 24, 2)
	require.NoError(t, repo.Save(ctx, slot))

	found, err := repo.FindByID(ctx, slot.ID())
	require.NoError(t, err)
	require.NotNil(t, found.ServiceID())
	assert.Equal(t, serviceID, *found.ServiceID())
	assert.True(t, found.Window().Equals(slot.Window()))
	assert.Equal(t, domain.StatusAvailable, found.Status())
	assert.Equal(t, domain.SourceInternal, found.Source())

	slot.SetStatus(domain.StatusBlocked, testNow.Add(time.Minute))
	require.NoError(t, repo.Save(ctx, slot))

	found, err = repo.FindByID(ctx, slot.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBlocked, found.Status())
}

func TestSQLSlotRepository_NotFound(t *testing.T) {
	repo := NewSQLSlotRepository(dbtest.NewSQLite(t))

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrSlotNotFound)

	err = repo.Delete(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrSlotNotFound)
}

func TestSQLSlotRepository_ListAvailable(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.NewSQLite(t)
	serviceID := dbtest.SeedService(t, conn, "individual")
	otherID := dbtest.SeedService(t, conn, "couples")
	repo := NewSQLSlotRepository(conn)

	own := slotAt(&serviceID, 24, 2)
	global := slotAt(nil, 48, 2)
	other := slotAt(&otherID, 24, 2)
	blocked := slotAt(&serviceID, 30, 2)
	blocked.SetStatus(domain.StatusBlocked, testNow)
	outside := slotAt(&serviceID, 24*10, 2)
	require.NoError(t, repo.SaveBatch(ctx, []*domain.Slot{own, global, other, blocked, outside}))

	slots, err := repo.ListAvailable(ctx, serviceID, testNow, testNow.Add(7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, own.ID(), slots[0].ID())
	assert.Equal(t, global.ID(), slots[1].ID())
	assert.Nil(t, slots[1].ServiceID())
}

func TestSQLSlotRepository_ListAvailableIncludesPartialOverlap(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.NewSQLite(t)
	serviceID := dbtest.SeedService(t, conn, "individual")
	repo := NewSQLSlotRepository(conn)

	slot := slotAt(&serviceID, 23, 4)
	require.NoError(t, repo.Save(ctx, slot))

	from := testNow.Add(24 * time.Hour)
	slots, err := repo.ListAvailable(ctx, serviceID, from, from.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, slots, 1)

	slots, err = repo.ListAvailable(ctx, serviceID, testNow.Add(27*time.Hour), testNow.Add(28*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestSQLSlotRepository_ListAllFilter(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.NewSQLite(t)
	serviceID := dbtest.SeedService(t, conn, "individual")
	repo := NewSQLSlotRepository(conn)

	a := slotAt(&serviceID, 24, 1)
	b := slotAt(nil, 26, 1)
	b.SetStatus(domain.StatusBlocked, testNow)
	busy := domain.NewExternalBusySlot(uuid.New(), slotAt(nil, 28, 1).Window(), "evt-42", testNow)
	require.NoError(t, repo.SaveBatch(ctx, []*domain.Slot{a, b, busy}))

	all, err := repo.ListAll(ctx, domain.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	blocked, err := repo.ListAll(ctx, domain.Filter{Status: domain.StatusBlocked})
	require.NoError(t, err)
	assert.Len(t, blocked, 2)

	external, err := repo.ListAll(ctx, domain.Filter{Source: domain.SourceExternalCalendar})
	require.NoError(t, err)
	require.Len(t, external, 1)
	assert.Equal(t, "evt-42", external[0].ExternalEventID())

	ranged, err := repo.ListAll(ctx, domain.Filter{
		ServiceID: &serviceID,
		From:      testNow,
		To:        testNow.Add(25 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, a.ID(), ranged[0].ID())

	byEvent, err := repo.FindByExternalEventID(ctx, "evt-42")
	require.NoError(t, err)
	assert.Equal(t, busy.ID(), byEvent.ID())
}

func TestSQLSlotRepository_DeleteEndedBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLSlotRepository(dbtest.NewSQLite(t))

	past := slotAt(nil, -48, 1)
	future := slotAt(nil, 24, 1)
	require.NoError(t, repo.SaveBatch(ctx, []*domain.Slot{past, future}))

	n, err := repo.DeleteEndedBefore(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.FindByID(ctx, past.ID())
	assert.ErrorIs(t, err, domain.ErrSlotNotFound)
	_, err = repo.FindByID(ctx, future.ID())
	assert.NoError(t, err)
}
