// Package bookingtest wires the booking stack against a fresh SQLite
// database, the mock calendar and the fake payment gateway for tests.
package bookingtest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	availability "github.com/felixgeelhaar/therapia/internal/availability/domain"
	availabilityPersistence "github.com/felixgeelhaar/therapia/internal/availability/infrastructure/persistence"
	"github.com/felixgeelhaar/therapia/internal/booking/application/commands"
	"github.com/felixgeelhaar/therapia/internal/booking/application/services"
	"github.com/felixgeelhaar/therapia/internal/booking/domain"
	"github.com/felixgeelhaar/therapia/internal/booking/infrastructure/lock"
	bookingPersistence "github.com/felixgeelhaar/therapia/internal/booking/infrastructure/persistence"
	"github.com/felixgeelhaar/therapia/internal/calendar/infrastructure/memory"
	catalog "github.com/felixgeelhaar/therapia/internal/catalog/domain"
	catalogPersistence "github.com/felixgeelhaar/therapia/internal/catalog/infrastructure/persistence"
	payments "github.com/felixgeelhaar/therapia/internal/payments/domain"
	"github.com/felixgeelhaar/therapia/internal/payments/infrastructure/fake"
	paymentPersistence "github.com/felixgeelhaar/therapia/internal/payments/infrastructure/persistence"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/crypto"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database/dbtest"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/outbox"
)

// Now is the fixed wall clock every booking test starts at.
var Now = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

// Fixture holds a fully wired booking stack.
type Fixture struct {
	Conn     database.Connection
	UoW      *database.UnitOfWork
	Clock    *sharedDomain.FixedClock
	IDs      sharedDomain.IDGenerator
	Logger   *slog.Logger
	Cipher   *crypto.AESEncrypter
	Services *catalogPersistence.SQLServiceRepository
	Slots    *availabilityPersistence.SQLSlotRepository

	Appointments *bookingPersistence.SQLAppointmentRepository
	Payments     *paymentPersistence.SQLPaymentRepository
	Ledger       *paymentPersistence.SQLWebhookLedger
	Outbox       *outbox.SQLRepository
	Recorder     *outbox.Recorder
	Calendar     *memory.MockAdapter
	Gateway      *fake.Gateway
	Locker       *lock.LocalLocker
	Availability *services.AvailabilityService

	// S1 is 5000.00 RUB, 60 minutes, online only, free cancellation from
	// 24h, partial from 6h, rescheduling up to 12h before the start.
	S1 *catalog.Service
}

// New builds a fixture and saves S1.
func New(t testing.TB) *Fixture {
	t.Helper()

	conn := dbtest.NewSQLite(t)
	cipher := dbtest.NewCipher(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &Fixture{
		Conn:     conn,
		UoW:      database.NewUnitOfWork(conn),
		Clock:    sharedDomain.NewFixedClock(Now),
		IDs:      sharedDomain.UUIDGenerator{},
		Logger:   logger,
		Cipher:   cipher,
		Services: catalogPersistence.NewSQLServiceRepository(conn),
		Slots:    availabilityPersistence.NewSQLSlotRepository(conn),
		Payments: paymentPersistence.NewSQLPaymentRepository(conn),
		Ledger:   paymentPersistence.NewSQLWebhookLedger(conn),
		Outbox:   outbox.NewSQLRepository(conn),
		Calendar: memory.NewMockAdapter(),
		Gateway:  fake.NewGateway(""),
		Locker:   lock.NewLocalLocker(),
	}
	f.Appointments = bookingPersistence.NewSQLAppointmentRepository(conn, cipher, f.Payments)
	f.Recorder = outbox.NewRecorder(f.Outbox)
	f.Availability = services.NewAvailabilityService(f.Calendar, f.Appointments, f.Locker, logger)

	f.S1 = f.SaveService(t, catalog.ServiceParams{
		Slug:            "individual-session",
		Name:            "Individual session",
		Price:           sharedDomain.MustMoney("5000.00", "RUB"),
		DurationMinutes: 60,
		Formats:         []catalog.Format{catalog.FormatOnline},
		Policy: catalog.Policy{
			CancelFreeHours:    24,
			CancelPartialHours: 6,
			RescheduleMinHours: 12,
		},
	})
	return f
}

// SaveService creates and stores a service.
func (f *Fixture) SaveService(t testing.TB, params catalog.ServiceParams) *catalog.Service {
	t.Helper()

	svc, err := catalog.NewService(uuid.New(), params, Now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	svc.ClearDomainEvents()
	require.NoError(t, f.Services.Save(context.Background(), svc))
	return svc
}

// Slot returns a one-hour UTC slot starting at Now + offset.
func Slot(offset time.Duration) sharedDomain.TimeSlot {
	start := Now.Add(offset)
	return sharedDomain.MustTimeSlot(start, start.Add(time.Hour), "UTC")
}

// AddAvailability stores an available window for serviceID, or a global one
// when serviceID is nil.
func (f *Fixture) AddAvailability(t testing.TB, serviceID *uuid.UUID, window sharedDomain.TimeSlot) *availability.Slot {
	t.Helper()

	slot := availability.NewSlot(uuid.New(), serviceID, window, Now.Add(-time.Hour))
	require.NoError(t, f.Slots.Save(context.Background(), slot))
	return slot
}

// NewAppointment builds a pending appointment of S1 for a new client.
func (f *Fixture) NewAppointment(t testing.TB, slot sharedDomain.TimeSlot) *domain.Appointment {
	t.Helper()

	clientID := uuid.New()
	a, err := domain.NewAppointment(uuid.New(), f.S1, domain.NewAppointmentParams{
		Owner:  domain.Owner{ClientID: &clientID},
		Slot:   slot,
		Format: catalog.FormatOnline,
	}, f.Clock.Now())
	require.NoError(t, err)
	return a
}

// BookPaid stores an appointment of S1 at slot that is confirmed by a
// succeeded payment of the full price, as if the webhook had already run.
func (f *Fixture) BookPaid(t testing.TB, slot sharedDomain.TimeSlot) *domain.Appointment {
	t.Helper()
	ctx := context.Background()
	now := f.Clock.Now()

	a := f.NewAppointment(t, slot)
	require.NoError(t, f.Appointments.Insert(ctx, a))

	p := payments.NewPayment(uuid.New(), a.ID(), f.S1.Price(), fake.ProviderName, now)
	require.NoError(t, p.AttachProvider("fake_"+a.ID().String(), "", now))
	_, err := p.MarkSucceeded(f.S1.Price(), now)
	require.NoError(t, err)
	require.NoError(t, f.Payments.Save(ctx, p))

	require.NoError(t, a.Confirm(p, f.S1, now))
	require.NoError(t, f.Appointments.Save(ctx, a))
	return f.Reload(t, a.ID())
}

// Reload reads an appointment back from the database.
func (f *Fixture) Reload(t testing.TB, id uuid.UUID) *domain.Appointment {
	t.Helper()

	a, err := f.Appointments.FindByID(context.Background(), id)
	require.NoError(t, err)
	return a
}

// OutboxTypes lists the routing keys waiting in the outbox, oldest first.
func (f *Fixture) OutboxTypes(t testing.TB) []string {
	t.Helper()

	msgs, err := f.Outbox.GetUnpublished(context.Background(), 1000)
	require.NoError(t, err)
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.RoutingKey)
	}
	return out
}

// Deps returns the use-case dependencies backed by the fixture.
func (f *Fixture) Deps() commands.Deps {
	return commands.Deps{
		Services:     f.Services,
		Slots:        f.Slots,
		Appointments: f.Appointments,
		Payments:     f.Payments,
		Availability: f.Availability,
		Gateway:      f.Gateway,
		Calendar:     f.Calendar,
		Recorder:     f.Recorder,
		UoW:          f.UoW,
		Clock:        f.Clock,
		IDs:          f.IDs,
		Logger:       f.Logger,
		Timeout:      5 * time.Second,
		ReturnURL:    "https://therapia.test/booking/return",
	}
}

// OpenWeek makes the next seven days bookable for every service.
func (f *Fixture) OpenWeek(t testing.TB) *availability.Slot {
	t.Helper()
	return f.AddAvailability(t, nil, sharedDomain.MustTimeSlot(Now, Now.Add(7*24*time.Hour), "UTC"))
}

// MarkPaid applies a provider success of amount to the payment, as the
// webhook would, and returns the updated payment.
func (f *Fixture) MarkPaid(t testing.TB, paymentID uuid.UUID, amount sharedDomain.Money) *payments.Payment {
	t.Helper()
	ctx := context.Background()

	p, err := f.Payments.FindByID(ctx, paymentID)
	require.NoError(t, err)
	_, err = p.MarkSucceeded(amount, f.Clock.Now())
	require.NoError(t, err)
	p.ClearDomainEvents()
	require.NoError(t, f.Payments.Save(ctx, p))
	return p
}
