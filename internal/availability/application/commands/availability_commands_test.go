package commands

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/therapia/internal/availability/domain"
	"github.com/felixgeelhaar/therapia/internal/availability/infrastructure/persistence"
	catalogDomain "github.com/felixgeelhaar/therapia/internal/catalog/domain"
	catalogPersistence "github.com/felixgeelhaar/therapia/internal/catalog/infrastructure/persistence"
	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database/dbtest"
)

var testNow = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	slots     *persistence.SQLSlotRepository
	create    *CreateAvailabilityHandler
	setStatus *SetSlotStatusHandler
	remove    *DeleteSlotHandler
	serviceID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.NewSQLite(t)
	slots := persistence.NewSQLSlotRepository(conn)
	services := catalogPersistence.NewSQLServiceRepository(conn)
	clock := sharedDomain.NewFixedClock(testNow)

	return &fixture{
		slots:     slots,
		create:    NewCreateAvailabilityHandler(slots, services, database.NewUnitOfWork(conn), clock, sharedDomain.UUIDGenerator{}),
		setStatus: NewSetSlotStatusHandler(slots, clock),
		remove:    NewDeleteSlotHandler(slots),
		serviceID: dbtest.SeedService(t, conn, "individual"),
	}
}

func admin() identity.Actor {
	return identity.NewActor(uuid.New(), identity.RoleOwner)
}

func client() identity.Actor {
	return identity.NewActor(uuid.New(), identity.RoleClient)
}

func TestCreateAvailability_Single(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start := time.Date(2026, 2, 3, 7, 0, 0, 0, time.UTC)
	result, err := f.create.Handle(ctx, CreateAvailabilityCommand{
		Actor:     admin(),
		ServiceID: &f.serviceID,
		Start:     start,
		End:       start.Add(3 * time.Hour),
		TZ:        "Europe/Moscow",
	})
	require.NoError(t, err)
	require.Len(t, result.SlotIDs, 1)

	slot, err := f.slots.FindByID(ctx, result.SlotIDs[0])
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAvailable, slot.Status())
	assert.Equal(t, start, slot.Window().Start())
	assert.Equal(t, "Europe/Moscow", slot.Window().TZ())
}

func TestCreateAvailability_RecurringWeekdays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Monday 2026-02-02 through Sunday 2026-02-15.
	start := time.Date(2026, 2, 2, 7, 0, 0, 0, time.UTC)
	result, err := f.create.Handle(ctx, CreateAvailabilityCommand{
		Actor: admin(),
		Start: start,
		End:   start.Add(8 * time.Hour),
		TZ:    "Europe/Moscow",
		Recurrence: &RecurrenceInput{
			Frequency: "weekdays",
			Interval:  1,
			EndDate:   time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)
	assert.Len(t, result.SlotIDs, 10)

	all, err := f.slots.ListAll(ctx, domain.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 10)
	for _, s := range all {
		assert.True(t, s.IsGlobal())
		wd := s.Window().LocalStart().Weekday()
		assert.NotEqual(t, time.Saturday, wd)
		assert.NotEqual(t, time.Sunday, wd)
	}
}

func TestCreateAvailability_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2026, 2, 3, 7, 0, 0, 0, time.UTC)
	unknown := uuid.New()

	tests := []struct {
		name string
		cmd  CreateAvailabilityCommand
		want error
	}{
		{
			name: "non admin",
			cmd:  CreateAvailabilityCommand{Actor: client(), Start: start, End: start.Add(time.Hour), TZ: "UTC"},
			want: sharedDomain.ErrForbidden,
		},
		{
			name: "unknown service",
			cmd:  CreateAvailabilityCommand{Actor: admin(), ServiceID: &unknown, Start: start, End: start.Add(time.Hour), TZ: "UTC"},
			want: catalogDomain.ErrServiceNotFound,
		},
		{
			name: "end before start",
			cmd:  CreateAvailabilityCommand{Actor: admin(), Start: start, End: start.Add(-time.Hour), TZ: "UTC"},
			want: sharedDomain.ErrInvalidTimeSlot,
		},
		{
			name: "recurrence ends before start",
			cmd: CreateAvailabilityCommand{
				Actor: admin(), Start: start, End: start.Add(time.Hour), TZ: "UTC",
				Recurrence: &RecurrenceInput{Frequency: "daily", Interval: 1, EndDate: start.AddDate(0, 0, -2)},
			},
			want: domain.ErrEndBeforeStart,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.create.Handle(ctx, tt.cmd)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	all, err := f.slots.ListAll(ctx, domain.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSetSlotStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2026, 2, 3, 7, 0, 0, 0, time.UTC)

	result, err := f.create.Handle(ctx, CreateAvailabilityCommand{
		Actor: admin(), Start: start, End: start.Add(time.Hour), TZ: "UTC",
	})
	require.NoError(t, err)
	id := result.SlotIDs[0]

	err = f.setStatus.Handle(ctx, SetSlotStatusCommand{Actor: client(), SlotID: id, Status: "blocked"})
	assert.ErrorIs(t, err, sharedDomain.ErrForbidden)

	err = f.setStatus.Handle(ctx, SetSlotStatusCommand{Actor: admin(), SlotID: id, Status: "closed"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	require.NoError(t, f.setStatus.Handle(ctx, SetSlotStatusCommand{Actor: admin(), SlotID: id, Status: "blocked"}))
	slot, err := f.slots.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBlocked, slot.Status())

	require.NoError(t, f.remove.Handle(ctx, DeleteSlotCommand{Actor: admin(), SlotID: id}))
	_, err = f.slots.FindByID(ctx, id)
	assert.ErrorIs(t, err, domain.ErrSlotNotFound)
}
