package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/therapia/internal/booking/domain"
	"github.com/felixgeelhaar/therapia/internal/booking/infrastructure/persistence"
	catalog "github.com/felixgeelhaar/therapia/internal/catalog/domain"
	catalogPersistence "github.com/felixgeelhaar/therapia/internal/catalog/infrastructure/persistence"
	payments "github.com/felixgeelhaar/therapia/internal/payments/domain"
	paymentPersistence "github.com/felixgeelhaar/therapia/internal/payments/infrastructure/persistence"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/crypto"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database/dbtest"
)

var testNow = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	conn     database.Connection
	repo     *persistence.SQLAppointmentRepository
	payments *paymentPersistence.SQLPaymentRepository
	service  *catalog.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.NewSQLite(t)
	svc, err := catalog.NewService(uuid.New(), catalog.ServiceParams{
		Slug:            "individual-session",
		Name:            "Individual session",
		Price:           sharedDomain.MustMoney("5000.00", "RUB"),
		DurationMinutes: 60,
		Formats:         []catalog.Format{catalog.FormatOnline},
		Policy:          catalog.Policy{CancelFreeHours: 24, CancelPartialHours: 6, RescheduleMinHours: 12},
	}, testNow)
	require.NoError(t, err)
	require.NoError(t, catalogPersistence.NewSQLServiceRepository(conn).Save(context.Background(), svc))

	paymentRepo := paymentPersistence.NewSQLPaymentRepository(conn)
	return &fixture{
		conn:     conn,
		repo:     persistence.NewSQLAppointmentRepository(conn, dbtest.NewCipher(t), paymentRepo),
		payments: paymentRepo,
		service:  svc,
	}
}

func slotAt(hour, minutes int) sharedDomain.TimeSlot {
	start := time.Date(2026, 2, 3, hour, 0, 0, 0, time.UTC)
	return sharedDomain.MustTimeSlot(start, start.Add(time.Duration(minutes)*time.Minute), "Europe/Moscow")
}

func (f *fixture) newAppointment(t *testing.T, slot sharedDomain.TimeSlot) *domain.Appointment {
	t.Helper()
	clientID := uuid.New()
	a, err := domain.NewAppointment(uuid.New(), f.service, domain.NewAppointmentParams{
		Owner:      domain.Owner{ClientID: &clientID},
		Slot:       slot,
		Format:     catalog.FormatOnline,
		IntakeForm: "anxiety, sleep issues",
		Metadata:   map[string]string{"source": "web"},
	}, testNow)
	require.NoError(t, err)
	return a
}

func TestSQLAppointmentRepository_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.newAppointment(t, slotAt(10, 60))

	require.NoError(t, f.repo.Insert(ctx, a))
	assert.Equal(t, 1, a.Version())

	loaded, err := f.repo.FindByID(ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingPayment, loaded.Status())
	assert.True(t, loaded.Slot().Equals(a.Slot()))
	assert.Equal(t, "anxiety, sleep issues", loaded.IntakeForm())
	assert.Equal(t, map[string]string{"source": "web"}, loaded.Metadata())
	require.NotNil(t, loaded.ClientID())
	assert.Equal(t, *a.ClientID(), *loaded.ClientID())
	assert.Nil(t, loaded.Payment())

	var stored string
	require.NoError(t, f.conn.QueryRow(ctx, `SELECT intake_form FROM appointments WHERE id = $1`, a.ID().String()).Scan(&stored))
	assert.True(t, crypto.IsSealed(stored))
	assert.NotContains(t, stored, "anxiety")

	_, err = f.repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrAppointmentNotFound)
}

func TestSQLAppointmentRepository_InsertRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.repo.Insert(ctx, f.newAppointment(t, slotAt(10, 60))))

	tests := []struct {
		name    string
		slot    sharedDomain.TimeSlot
		wantErr bool
	}{
		{"same slot", slotAt(10, 60), true},
		{"partial overlap", sharedDomain.MustTimeSlot(slotAt(10, 60).Start().Add(30*time.Minute), slotAt(11, 60).End(), "UTC"), true},
		{"adjacent after", slotAt(11, 60), false},
		{"adjacent before", slotAt(9, 60), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.repo.Insert(ctx, f.newAppointment(t, tt.slot))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrSlotConflict)
				assert.Equal(t, sharedDomain.CodeConflict, sharedDomain.CodeOf(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSQLAppointmentRepository_CanceledFreesSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.newAppointment(t, slotAt(10, 60))
	require.NoError(t, f.repo.Insert(ctx, a))

	_, err := a.Cancel(domain.CancelParams{Reason: "changed plans"}, f.service, testNow)
	require.NoError(t, err)
	require.NoError(t, f.repo.Save(ctx, a))
	assert.Equal(t, 2, a.Version())

	loaded, err := f.repo.FindByID(ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, loaded.Status())
	require.NotNil(t, loaded.CanceledAt())
	assert.Equal(t, "changed plans", loaded.CancellationReason())

	overlap, err := f.repo.HasOverlap(ctx, f.service.ID(), slotAt(10, 60), uuid.Nil)
	require.NoError(t, err)
	assert.False(t, overlap)
	assert.NoError(t, f.repo.Insert(ctx, f.newAppointment(t, slotAt(10, 60))))
}

func TestSQLAppointmentRepository_SaveVersionConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.newAppointment(t, slotAt(10, 60))
	require.NoError(t, f.repo.Insert(ctx, a))

	first, err := f.repo.FindByID(ctx, a.ID())
	require.NoError(t, err)
	second, err := f.repo.FindByID(ctx, a.ID())
	require.NoError(t, err)

	first.SetCalendarEventID("evt-1", testNow)
	require.NoError(t, f.repo.Save(ctx, first))

	second.SetCalendarEventID("evt-2", testNow)
	assert.ErrorIs(t, f.repo.Save(ctx, second), sharedDomain.ErrVersionConflict)
}

func TestSQLAppointmentRepository_UpdateSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a := f.newAppointment(t, slotAt(10, 60))
	require.NoError(t, f.repo.Insert(ctx, a))
	other := f.newAppointment(t, slotAt(14, 60))
	require.NoError(t, f.repo.Insert(ctx, other))

	p := payments.NewPayment(uuid.New(), a.ID(), f.service.Price(), "fake", testNow)
	require.NoError(t, p.AttachProvider("fake_a", "", testNow))
	_, err := p.MarkSucceeded(f.service.Price(), testNow)
	require.NoError(t, err)
	require.NoError(t, f.payments.Save(ctx, p))
	require.NoError(t, a.Confirm(p, f.service, testNow))
	require.NoError(t, f.repo.Save(ctx, a))

	t.Run("conflict with another appointment", func(t *testing.T) {
		loaded, err := f.repo.FindByID(ctx, a.ID())
		require.NoError(t, err)
		require.NotNil(t, loaded.Payment())
		require.NoError(t, loaded.Reschedule(slotAt(14, 60), f.service, testNow))
		require.NoError(t, loaded.ConfirmRescheduled(f.service, testNow))

		assert.ErrorIs(t, f.repo.UpdateSlot(ctx, loaded), domain.ErrSlotConflict)
	})

	t.Run("overlapping its own slot is allowed", func(t *testing.T) {
		loaded, err := f.repo.FindByID(ctx, a.ID())
		require.NoError(t, err)
		shifted := sharedDomain.MustTimeSlot(slotAt(10, 60).Start().Add(30*time.Minute), slotAt(10, 60).End().Add(30*time.Minute), "Europe/Moscow")
		require.NoError(t, loaded.Reschedule(shifted, f.service, testNow))
		require.NoError(t, loaded.ConfirmRescheduled(f.service, testNow))
		require.NoError(t, f.repo.UpdateSlot(ctx, loaded))

		reloaded, err := f.repo.FindByID(ctx, a.ID())
		require.NoError(t, err)
		assert.True(t, reloaded.Slot().Start().Equal(shifted.Start()))
		assert.Equal(t, domain.StatusConfirmed, reloaded.Status())
		assert.Equal(t, a.ID(), reloaded.ID())
	})
}

func TestSQLAppointmentRepository_ListActiveInRange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.newAppointment(t, slotAt(10, 60))
	second := f.newAppointment(t, slotAt(12, 60))
	canceled := f.newAppointment(t, slotAt(14, 60))
	for _, a := range []*domain.Appointment{first, second, canceled} {
		require.NoError(t, f.repo.Insert(ctx, a))
	}
	_, err := canceled.Cancel(domain.CancelParams{Reason: "x"}, f.service, testNow)
	require.NoError(t, err)
	require.NoError(t, f.repo.Save(ctx, canceled))

	from := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	list, err := f.repo.ListActiveInRange(ctx, f.service.ID(), from, from.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID(), list[0].ID())
	assert.Equal(t, second.ID(), list[1].ID())

	list, err = f.repo.ListActiveInRange(ctx, f.service.ID(), slotAt(11, 60).Start(), slotAt(12, 30).End())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID(), list[0].ID())
}
