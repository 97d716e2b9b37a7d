package subscribers_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/therapia/internal/booking/application/commands"
	"github.com/felixgeelhaar/therapia/internal/booking/application/subscribers"
	"github.com/felixgeelhaar/therapia/internal/booking/bookingtest"
	"github.com/felixgeelhaar/therapia/internal/booking/domain"
	calendarApp "github.com/felixgeelhaar/therapia/internal/calendar/application"
	calendar "github.com/felixgeelhaar/therapia/internal/calendar/domain"
	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
	payments "github.com/felixgeelhaar/therapia/internal/payments/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/outbox"
)

var fastBackoff = calendarApp.Backoff{Attempts: 3, Base: time.Millisecond, Max: time.Millisecond}

func newSync(f *bookingtest.Fixture) *subscribers.CalendarSync {
	return subscribers.NewCalendarSync(f.Calendar, f.Appointments, f.Services, f.Recorder, f.UoW, f.Clock, fastBackoff, f.Logger)
}

func newPaymentSucceeded(f *bookingtest.Fixture) *subscribers.PaymentSucceededSubscriber {
	return subscribers.NewPaymentSucceededSubscriber(commands.NewConfirmPaymentHandler(f.Deps()), newSync(f), f.Logger)
}

func succeeded(paymentID uuid.UUID) *eventbus.ConsumedEvent {
	return &eventbus.ConsumedEvent{
		EventID:       uuid.New(),
		AggregateID:   paymentID,
		AggregateType: payments.AggregateType,
		RoutingKey:    payments.RoutingKeyPaymentSucceeded,
		OccurredAt:    bookingtest.Now,
	}
}

// bookUnpaid books S1 at Now+48h and returns the payment ID.
func bookUnpaid(t *testing.T, f *bookingtest.Fixture) *commands.BookAppointmentResult {
	t.Helper()
	f.OpenWeek(t)
	res, err := commands.NewBookAppointmentHandler(f.Deps()).Handle(context.Background(), commands.BookAppointmentCommand{
		Actor:     identity.NewActor(uuid.New(), identity.RoleClient),
		ServiceID: f.S1.ID(),
		Slot:      commands.SlotRequest{Start: bookingtest.Now.Add(48 * time.Hour), End: bookingtest.Now.Add(49 * time.Hour)},
		Format:    "online",
	})
	require.NoError(t, err)
	return res
}

func outboxMessage(t *testing.T, f *bookingtest.Fixture, routingKey string) *outbox.Message {
	t.Helper()
	msgs, err := f.Outbox.GetUnpublished(context.Background(), 100)
	require.NoError(t, err)
	for _, m := range msgs {
		if m.RoutingKey == routingKey {
			return m
		}
	}
	t.Fatalf("no %s message in the outbox", routingKey)
	return nil
}

func TestPaymentSucceeded_ConfirmsAndCreatesCalendarEvent(t *testing.T) {
	f := bookingtest.New(t)
	res := bookUnpaid(t, f)
	f.MarkPaid(t, res.PaymentID, f.S1.Price())
	sub := newPaymentSucceeded(f)

	assert.Equal(t, []string{payments.RoutingKeyPaymentSucceeded}, sub.EventTypes())
	event := succeeded(res.PaymentID)
	require.NoError(t, sub.Handle(context.Background(), event))

	a := f.Reload(t, res.AppointmentID)
	assert.Equal(t, domain.StatusConfirmed, a.Status())
	require.NotEmpty(t, a.CalendarEventID())
	req, ok := f.Calendar.Event(a.CalendarEventID())
	require.True(t, ok)
	assert.Equal(t, res.AppointmentID, req.AppointmentID)
	assert.Equal(t, f.S1.Name(), req.Summary)
	assert.True(t, req.Slot.SameInterval(a.Slot()))

	confirmed := outboxMessage(t, f, domain.RoutingKeyAppointmentConfirmed)
	var md sharedDomain.EventMetadata
	require.NoError(t, json.Unmarshal(confirmed.Metadata, &md))
	assert.Equal(t, event.EventID, md.CausationID)

	t.Run("redelivery is a no-op", func(t *testing.T) {
		require.NoError(t, sub.Handle(context.Background(), succeeded(res.PaymentID)))
		assert.Len(t, f.Calendar.CallsTo("CreateEvent"), 1)
		assert.Equal(t, a.CalendarEventID(), f.Reload(t, res.AppointmentID).CalendarEventID())
	})
}

func TestPaymentSucceeded_RetriesTransientCalendarErrors(t *testing.T) {
	f := bookingtest.New(t)
	res := bookUnpaid(t, f)
	f.MarkPaid(t, res.PaymentID, f.S1.Price())
	f.Calendar.CreateErrs = []error{calendar.Transient(errors.New("503"))}

	require.NoError(t, newPaymentSucceeded(f).Handle(context.Background(), succeeded(res.PaymentID)))

	assert.Len(t, f.Calendar.CallsTo("CreateEvent"), 2)
	assert.NotEmpty(t, f.Reload(t, res.AppointmentID).CalendarEventID())
	assert.NotContains(t, f.OutboxTypes(t), domain.RoutingKeyCalendarSyncFailed)
}

func TestPaymentSucceeded_CalendarFailureKeepsAppointmentConfirmed(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantCalls int
	}{
		{
			name:      "transient until attempts run out",
			errs:      []error{calendar.Transient(errors.New("503")), calendar.Transient(errors.New("503")), calendar.Transient(errors.New("503"))},
			wantCalls: 3,
		},
		{
			name:      "permanent",
			errs:      []error{calendar.Permanent(errors.New("403 forbidden"))},
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := bookingtest.New(t)
			res := bookUnpaid(t, f)
			f.MarkPaid(t, res.PaymentID, f.S1.Price())
			f.Calendar.CreateErrs = tt.errs

			require.NoError(t, newPaymentSucceeded(f).Handle(context.Background(), succeeded(res.PaymentID)))

			a := f.Reload(t, res.AppointmentID)
			assert.Equal(t, domain.StatusConfirmed, a.Status())
			assert.Empty(t, a.CalendarEventID())
			assert.Len(t, f.Calendar.CallsTo("CreateEvent"), tt.wantCalls)

			msg := outboxMessage(t, f, domain.RoutingKeyCalendarSyncFailed)
			var payload struct {
				Operation string `json:"operation"`
				Attempts  int    `json:"attempts"`
				Error     string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(msg.Payload, &payload))
			assert.Equal(t, subscribers.OperationCreate, payload.Operation)
			assert.Equal(t, tt.wantCalls, payload.Attempts)
			assert.NotEmpty(t, payload.Error)
		})
	}
}

func TestPaymentSucceeded_DropsEventsThatCannotSucceed(t *testing.T) {
	t.Run("amount mismatch", func(t *testing.T) {
		f := bookingtest.New(t)
		res := bookUnpaid(t, f)
		f.MarkPaid(t, res.PaymentID, sharedDomain.MustMoney("1.00", "RUB"))

		require.NoError(t, newPaymentSucceeded(f).Handle(context.Background(), succeeded(res.PaymentID)))
		assert.Equal(t, domain.StatusPendingPayment, f.Reload(t, res.AppointmentID).Status())
		assert.Empty(t, f.Calendar.CallsTo("CreateEvent"))
	})

	t.Run("unknown payment", func(t *testing.T) {
		f := bookingtest.New(t)
		require.NoError(t, newPaymentSucceeded(f).Handle(context.Background(), succeeded(uuid.New())))
	})
}

func TestAppointmentRescheduled_MovesCalendarEvent(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*bookingtest.Fixture, *domain.Appointment, string) {
		f := bookingtest.New(t)
		f.OpenWeek(t)
		a := f.BookPaid(t, bookingtest.Slot(48*time.Hour))
		require.NoError(t, newSync(f).Create(ctx, a.ID(), sharedDomain.EventMetadata{}))
		oldEvent := f.Reload(t, a.ID()).CalendarEventID()
		require.NotEmpty(t, oldEvent)

		target := bookingtest.Slot(72 * time.Hour)
		_, err := commands.NewRescheduleAppointmentHandler(f.Deps()).Handle(ctx, commands.RescheduleAppointmentCommand{
			Actor:         identity.NewActor(uuid.New(), identity.RoleOwner),
			AppointmentID: a.ID(),
			NewSlot:       commands.SlotRequest{Start: target.Start(), End: target.End()},
		})
		require.NoError(t, err)
		return f, a, oldEvent
	}
	rescheduled := func(id uuid.UUID) *eventbus.ConsumedEvent {
		return &eventbus.ConsumedEvent{
			EventID:     uuid.New(),
			AggregateID: id,
			RoutingKey:  domain.RoutingKeyAppointmentRescheduled,
		}
	}

	t.Run("success", func(t *testing.T) {
		f, a, oldEvent := setup(t)
		sub := subscribers.NewAppointmentRescheduledSubscriber(newSync(f), f.Logger)
		assert.Equal(t, []string{domain.RoutingKeyAppointmentRescheduled}, sub.EventTypes())

		require.NoError(t, sub.Handle(ctx, rescheduled(a.ID())))

		_, stillThere := f.Calendar.Event(oldEvent)
		assert.False(t, stillThere)
		stored := f.Reload(t, a.ID())
		require.NotEmpty(t, stored.CalendarEventID())
		assert.NotEqual(t, oldEvent, stored.CalendarEventID())
		req, ok := f.Calendar.Event(stored.CalendarEventID())
		require.True(t, ok)
		assert.True(t, req.Slot.SameInterval(bookingtest.Slot(72*time.Hour)))
	})

	t.Run("failure clears the stale event", func(t *testing.T) {
		f, a, _ := setup(t)
		f.Calendar.CreateErrs = []error{calendar.Permanent(errors.New("410 gone"))}

		require.NoError(t, subscribers.NewAppointmentRescheduledSubscriber(newSync(f), f.Logger).Handle(ctx, rescheduled(a.ID())))

		stored := f.Reload(t, a.ID())
		assert.Equal(t, domain.StatusConfirmed, stored.Status())
		assert.Empty(t, stored.CalendarEventID())
		msg := outboxMessage(t, f, domain.RoutingKeyCalendarSyncFailed)
		assert.Contains(t, string(msg.Payload), `"operation":"move"`)
	})
}

func TestCalendarSync_SkipsAppointmentsThatAreNotConfirmed(t *testing.T) {
	f := bookingtest.New(t)
	res := bookUnpaid(t, f)

	require.NoError(t, newSync(f).Create(context.Background(), res.AppointmentID, sharedDomain.EventMetadata{}))
	require.NoError(t, newSync(f).Move(context.Background(), res.AppointmentID, sharedDomain.EventMetadata{}))
	assert.Empty(t, f.Calendar.CallsTo("CreateEvent"))
}
