package commands_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	availability "github.com/felixgeelhaar/therapia/internal/availability/domain"
	"github.com/felixgeelhaar/therapia/internal/booking/application/commands"
	"github.com/felixgeelhaar/therapia/internal/booking/bookingtest"
	"github.com/felixgeelhaar/therapia/internal/booking/domain"
	calendar "github.com/felixgeelhaar/therapia/internal/calendar/domain"
	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
	payments "github.com/felixgeelhaar/therapia/internal/payments/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

func ownerOf(a *domain.Appointment) identity.Actor {
	return identity.NewActor(*a.ClientID(), identity.RoleClient)
}

func TestConfirmPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("confirms once", func(t *testing.T) {
		f := bookingtest.New(t)
		f.OpenWeek(t)
		res := book(t, f, clientActor(), 48*time.Hour)
		f.MarkPaid(t, res.PaymentID, f.S1.Price())
		h := commands.NewConfirmPaymentHandler(f.Deps())

		first, err := h.Handle(ctx, commands.ConfirmPaymentCommand{PaymentID: res.PaymentID})
		require.NoError(t, err)
		assert.True(t, first.Changed)
		assert.Equal(t, domain.StatusConfirmed, first.Status)
		assert.Equal(t, res.AppointmentID, first.AppointmentID)

		second, err := h.Handle(ctx, commands.ConfirmPaymentCommand{PaymentID: res.PaymentID})
		require.NoError(t, err)
		assert.False(t, second.Changed)
		assert.Equal(t, domain.StatusConfirmed, second.Status)

		assert.Equal(t, []string{
			domain.RoutingKeyAppointmentCreated,
			domain.RoutingKeyAppointmentConfirmed,
		}, f.OutboxTypes(t))
	})

	t.Run("amount mismatch keeps the appointment pending", func(t *testing.T) {
		f := bookingtest.New(t)
		f.OpenWeek(t)
		res := book(t, f, clientActor(), 48*time.Hour)
		f.MarkPaid(t, res.PaymentID, sharedDomain.MustMoney("100.00", "RUB"))

		_, err := commands.NewConfirmPaymentHandler(f.Deps()).Handle(ctx, commands.ConfirmPaymentCommand{PaymentID: res.PaymentID})
		assert.ErrorIs(t, err, domain.ErrPaymentAmountMismatch)
		assert.Equal(t, sharedDomain.CodeBusinessRuleViolation, sharedDomain.CodeOf(err))
		assert.Equal(t, domain.StatusPendingPayment, f.Reload(t, res.AppointmentID).Status())
	})

	t.Run("payment not yet succeeded", func(t *testing.T) {
		f := bookingtest.New(t)
		f.OpenWeek(t)
		res := book(t, f, clientActor(), 48*time.Hour)

		_, err := commands.NewConfirmPaymentHandler(f.Deps()).Handle(ctx, commands.ConfirmPaymentCommand{PaymentID: res.PaymentID})
		assert.ErrorIs(t, err, domain.ErrPaymentNotSucceeded)
	})

	t.Run("late success for a canceled appointment", func(t *testing.T) {
		f := bookingtest.New(t)
		f.OpenWeek(t)
		actor := clientActor()
		res := book(t, f, actor, 48*time.Hour)
		_, err := commands.NewCancelAppointmentHandler(f.Deps()).Handle(ctx, commands.CancelAppointmentCommand{
			Actor: actor, AppointmentID: res.AppointmentID, Reason: "changed my mind",
		})
		require.NoError(t, err)
		f.MarkPaid(t, res.PaymentID, f.S1.Price())

		out, err := commands.NewConfirmPaymentHandler(f.Deps()).Handle(ctx, commands.ConfirmPaymentCommand{PaymentID: res.PaymentID})
		require.NoError(t, err)
		assert.False(t, out.Changed)
		assert.Equal(t, domain.StatusCanceled, out.Status)

		types := f.OutboxTypes(t)
		assert.Contains(t, types, payments.RoutingKeyPaymentOrphaned)
		assert.NotContains(t, types, domain.RoutingKeyAppointmentConfirmed)
	})
}

func TestCancelAppointment_RefundPolicy(t *testing.T) {
	tests := []struct {
		name       string
		offset     time.Duration
		admin      bool
		wantStatus domain.RefundStatus
		wantAmount string
	}{
		{name: "two days ahead", offset: 48 * time.Hour, wantStatus: domain.RefundFull, wantAmount: "5000.00"},
		{name: "exactly at the free window", offset: 24 * time.Hour, wantStatus: domain.RefundFull, wantAmount: "5000.00"},
		{name: "inside the partial window", offset: 12 * time.Hour, wantStatus: domain.RefundPartial, wantAmount: "2500.00"},
		{name: "too late", offset: 2 * time.Hour, wantStatus: domain.RefundNone},
		{name: "provider cancels late", offset: 2 * time.Hour, admin: true, wantStatus: domain.RefundFull, wantAmount: "5000.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := bookingtest.New(t)
			a := f.BookPaid(t, bookingtest.Slot(tt.offset))
			actor := ownerOf(a)
			if tt.admin {
				actor = adminActor()
			}

			res, err := commands.NewCancelAppointmentHandler(f.Deps()).Handle(context.Background(), commands.CancelAppointmentCommand{
				Actor:         actor,
				AppointmentID: a.ID(),
				Reason:        "schedule change",
				Details:       "moving abroad",
			})
			require.NoError(t, err)

			assert.Equal(t, domain.StatusCanceled, res.Status)
			assert.Equal(t, tt.wantStatus, res.RefundStatus)
			if tt.wantAmount == "" {
				assert.Nil(t, res.RefundAmount)
			} else {
				require.NotNil(t, res.RefundAmount)
				assert.Equal(t, tt.wantAmount, res.RefundAmount.AmountString())
			}

			stored := f.Reload(t, a.ID())
			assert.Equal(t, domain.StatusCanceled, stored.Status())
			assert.Equal(t, "schedule change", stored.CancellationReason())
			assert.Equal(t, "moving abroad", stored.CancellationDetails())
			assert.Equal(t, []string{domain.RoutingKeyAppointmentCanceled}, f.OutboxTypes(t))
		})
	}
}

func TestCancelAppointment_Rejections(t *testing.T) {
	ctx := context.Background()
	f := bookingtest.New(t)
	a := f.BookPaid(t, bookingtest.Slot(48*time.Hour))
	h := commands.NewCancelAppointmentHandler(f.Deps())

	_, err := h.Handle(ctx, commands.CancelAppointmentCommand{Actor: clientActor(), AppointmentID: a.ID(), Reason: "x"})
	assert.ErrorIs(t, err, sharedDomain.ErrForbidden)

	_, err = h.Handle(ctx, commands.CancelAppointmentCommand{Actor: ownerOf(a), AppointmentID: a.ID(), Reason: "  "})
	assert.ErrorIs(t, err, domain.ErrCancellationReason)

	_, err = h.Handle(ctx, commands.CancelAppointmentCommand{Actor: ownerOf(a), AppointmentID: uuid.New(), Reason: "x"})
	assert.ErrorIs(t, err, domain.ErrAppointmentNotFound)

	_, err = h.Handle(ctx, commands.CancelAppointmentCommand{Actor: ownerOf(a), AppointmentID: a.ID(), Reason: "x"})
	require.NoError(t, err)
	_, err = h.Handle(ctx, commands.CancelAppointmentCommand{Actor: ownerOf(a), AppointmentID: a.ID(), Reason: "again"})
	assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)
	assert.Equal(t, sharedDomain.CodeConflict, sharedDomain.CodeOf(err))
}

func TestCancelAppointment_DeletesCalendarEvent(t *testing.T) {
	ctx := context.Background()
	f := bookingtest.New(t)
	a := f.BookPaid(t, bookingtest.Slot(48*time.Hour))
	eventID, err := f.Calendar.CreateEvent(ctx, calendar.EventRequest{AppointmentID: a.ID(), Slot: a.Slot()})
	require.NoError(t, err)
	a.SetCalendarEventID(eventID, f.Clock.Now())
	require.NoError(t, f.Appointments.Save(ctx, a))

	_, err = commands.NewCancelAppointmentHandler(f.Deps()).Handle(ctx, commands.CancelAppointmentCommand{
		Actor: ownerOf(a), AppointmentID: a.ID(), Reason: "ill",
	})
	require.NoError(t, err)

	_, ok := f.Calendar.Event(eventID)
	assert.False(t, ok)
}

func TestCancelAppointment_CalendarFailureDoesNotFailCancel(t *testing.T) {
	ctx := context.Background()
	f := bookingtest.New(t)
	a := f.BookPaid(t, bookingtest.Slot(48*time.Hour))
	a.SetCalendarEventID("mock-gone", f.Clock.Now())
	require.NoError(t, f.Appointments.Save(ctx, a))
	f.Calendar.Err = calendar.Transient(assert.AnError)

	res, err := commands.NewCancelAppointmentHandler(f.Deps()).Handle(ctx, commands.CancelAppointmentCommand{
		Actor: ownerOf(a), AppointmentID: a.ID(), Reason: "ill",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, res.Status)
	assert.Len(t, f.Calendar.CallsTo("DeleteEvent"), 1)
}

func TestRescheduleAppointment(t *testing.T) {
	ctx := context.Background()

	t.Run("moves to a free slot", func(t *testing.T) {
		f := bookingtest.New(t)
		f.OpenWeek(t)
		a := f.BookPaid(t, bookingtest.Slot(48*time.Hour))
		target := bookingtest.Slot(72 * time.Hour)

		res, err := commands.NewRescheduleAppointmentHandler(f.Deps()).Handle(ctx, commands.RescheduleAppointmentCommand{
			Actor:         ownerOf(a),
			AppointmentID: a.ID(),
			NewSlot:       commands.SlotRequest{Start: target.Start(), End: target.End()},
		})
		require.NoError(t, err)

		assert.Equal(t, domain.StatusConfirmed, res.Status)
		assert.True(t, res.OldSlot.SameInterval(a.Slot()))
		assert.True(t, res.NewSlot.SameInterval(target))

		stored := f.Reload(t, a.ID())
		assert.Equal(t, domain.StatusConfirmed, stored.Status())
		assert.True(t, stored.Slot().SameInterval(target))
		assert.Equal(t, a.Payment().ID(), stored.Payment().ID())
		assert.Equal(t, []string{domain.RoutingKeyAppointmentRescheduled}, f.OutboxTypes(t))
	})

	t.Run("there and back keeps the appointment", func(t *testing.T) {
		f := bookingtest.New(t)
		f.OpenWeek(t)
		a := f.BookPaid(t, bookingtest.Slot(48*time.Hour))
		original := a.Slot()
		h := commands.NewRescheduleAppointmentHandler(f.Deps())

		for _, target := range []sharedDomain.TimeSlot{bookingtest.Slot(72 * time.Hour), original} {
			res, err := h.Handle(ctx, commands.RescheduleAppointmentCommand{
				Actor:         ownerOf(a),
				AppointmentID: a.ID(),
				NewSlot:       commands.SlotRequest{Start: target.Start(), End: target.End(), TZ: target.TZ()},
			})
			require.NoError(t, err)
			assert.Equal(t, a.ID(), res.AppointmentID)
		}

		stored := f.Reload(t, a.ID())
		assert.Equal(t, a.ID(), stored.ID())
		assert.True(t, stored.Slot().SameInterval(original))
		assert.Equal(t, domain.StatusConfirmed, stored.Status())
		assert.Equal(t, []string{
			domain.RoutingKeyAppointmentRescheduled,
			domain.RoutingKeyAppointmentRescheduled,
		}, f.OutboxTypes(t))
	})

	t.Run("new slot must last one session", func(t *testing.T) {
		f := bookingtest.New(t)
		f.OpenWeek(t)
		a := f.BookPaid(t, bookingtest.Slot(48*time.Hour))
		start := bookingtest.Now.Add(72 * time.Hour)

		_, err := commands.NewRescheduleAppointmentHandler(f.Deps()).Handle(ctx, commands.RescheduleAppointmentCommand{
			Actor:         ownerOf(a),
			AppointmentID: a.ID(),
			NewSlot:       commands.SlotRequest{Start: start, End: start.Add(3 * time.Hour)},
		})
		assert.ErrorIs(t, err, domain.ErrSlotDuration)
		assert.Equal(t, sharedDomain.CodeValidation, sharedDomain.CodeOf(err))
		assert.True(t, f.Reload(t, a.ID()).Slot().SameInterval(bookingtest.Slot(48*time.Hour)))
		assert.Empty(t, f.OutboxTypes(t))
	})

	t.Run("overlapping its own slot", func(t *testing.T) {
		f := bookingtest.New(t)
		f.OpenWeek(t)
		a := f.BookPaid(t, bookingtest.Slot(48*time.Hour))
		target := bookingtest.Slot(48*time.Hour + 30*time.Minute)

		_, err := commands.NewRescheduleAppointmentHandler(f.Deps()).Handle(ctx, commands.RescheduleAppointmentCommand{
			Actor:         adminActor(),
			AppointmentID: a.ID(),
			NewSlot:       commands.SlotRequest{Start: target.Start(), End: target.End()},
		})
		require.NoError(t, err)
		assert.True(t, f.Reload(t, a.ID()).Slot().SameInterval(target))
	})

	t.Run("rejections", func(t *testing.T) {
		f := bookingtest.New(t)
		f.OpenWeek(t)
		soon := f.BookPaid(t, bookingtest.Slot(6*time.Hour))
		a := f.BookPaid(t, bookingtest.Slot(48*time.Hour))
		other := f.BookPaid(t, bookingtest.Slot(72*time.Hour))
		h := commands.NewRescheduleAppointmentHandler(f.Deps())
		to := func(offset time.Duration) commands.SlotRequest {
			s := bookingtest.Slot(offset)
			return commands.SlotRequest{Start: s.Start(), End: s.End()}
		}

		_, err := h.Handle(ctx, commands.RescheduleAppointmentCommand{Actor: ownerOf(soon), AppointmentID: soon.ID(), NewSlot: to(96 * time.Hour)})
		assert.ErrorIs(t, err, domain.ErrRescheduleWindowClosed)

		_, err = h.Handle(ctx, commands.RescheduleAppointmentCommand{Actor: ownerOf(a), AppointmentID: a.ID(), NewSlot: to(72 * time.Hour)})
		assert.ErrorIs(t, err, domain.ErrSlotConflict)

		_, err = h.Handle(ctx, commands.RescheduleAppointmentCommand{Actor: ownerOf(a), AppointmentID: a.ID(), NewSlot: to(10 * 24 * time.Hour)})
		assert.ErrorIs(t, err, availability.ErrSlotUnavailable)

		_, err = h.Handle(ctx, commands.RescheduleAppointmentCommand{Actor: ownerOf(other), AppointmentID: a.ID(), NewSlot: to(96 * time.Hour)})
		assert.ErrorIs(t, err, sharedDomain.ErrForbidden)

		f.Calendar.MarkBusy(bookingtest.Slot(120 * time.Hour))
		_, err = h.Handle(ctx, commands.RescheduleAppointmentCommand{Actor: ownerOf(a), AppointmentID: a.ID(), NewSlot: to(120 * time.Hour)})
		assert.ErrorIs(t, err, domain.ErrSlotConflict)

		assert.True(t, f.Reload(t, a.ID()).Slot().SameInterval(bookingtest.Slot(48*time.Hour)))
		assert.Empty(t, f.OutboxTypes(t))
	})

	t.Run("pending appointments cannot move", func(t *testing.T) {
		f := bookingtest.New(t)
		f.OpenWeek(t)
		actor := clientActor()
		res := book(t, f, actor, 48*time.Hour)
		target := bookingtest.Slot(72 * time.Hour)

		_, err := commands.NewRescheduleAppointmentHandler(f.Deps()).Handle(ctx, commands.RescheduleAppointmentCommand{
			Actor: actor, AppointmentID: res.AppointmentID,
			NewSlot: commands.SlotRequest{Start: target.Start(), End: target.End()},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
}

func TestRecordOutcome(t *testing.T) {
	ctx := context.Background()

	t.Run("attended after the session", func(t *testing.T) {
		f := bookingtest.New(t)
		a := f.BookPaid(t, bookingtest.Slot(2*time.Hour))
		f.Clock.Advance(4 * time.Hour)

		res, err := commands.NewRecordOutcomeHandler(f.Deps()).Handle(ctx, commands.RecordOutcomeCommand{
			Actor: adminActor(), AppointmentID: a.ID(), Outcome: "attended", Notes: "good progress",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, res.Status)
		assert.Equal(t, domain.OutcomeAttended, res.Outcome)
		assert.Nil(t, res.Refund)
		assert.Equal(t, "good progress", f.Reload(t, a.ID()).OutcomeNotes())
		assert.Equal(t, []string{domain.RoutingKeyAppointmentCompleted}, f.OutboxTypes(t))
	})

	t.Run("no show", func(t *testing.T) {
		f := bookingtest.New(t)
		a := f.BookPaid(t, bookingtest.Slot(2*time.Hour))
		f.Clock.Advance(4 * time.Hour)

		res, err := commands.NewRecordOutcomeHandler(f.Deps()).Handle(ctx, commands.RecordOutcomeCommand{
			Actor: adminActor(), AppointmentID: a.ID(), Outcome: "no_show",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusNoShow, res.Status)
		assert.Equal(t, []string{domain.RoutingKeyAppointmentNoShow}, f.OutboxTypes(t))
	})

	t.Run("canceled by provider refunds in full", func(t *testing.T) {
		f := bookingtest.New(t)
		a := f.BookPaid(t, bookingtest.Slot(2*time.Hour))
		f.Clock.Advance(4 * time.Hour)

		res, err := commands.NewRecordOutcomeHandler(f.Deps()).Handle(ctx, commands.RecordOutcomeCommand{
			Actor: adminActor(), AppointmentID: a.ID(), Outcome: "canceled_by_provider",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCanceled, res.Status)
		require.NotNil(t, res.Refund)
		assert.Equal(t, domain.RefundFull, res.Refund.Status)
		assert.Equal(t, "5000.00", res.Refund.Amount.AmountString())
		assert.Equal(t, []string{domain.RoutingKeyAppointmentCanceled}, f.OutboxTypes(t))
	})

	t.Run("rejections", func(t *testing.T) {
		f := bookingtest.New(t)
		a := f.BookPaid(t, bookingtest.Slot(48*time.Hour))
		h := commands.NewRecordOutcomeHandler(f.Deps())

		_, err := h.Handle(ctx, commands.RecordOutcomeCommand{Actor: ownerOf(a), AppointmentID: a.ID(), Outcome: "attended"})
		assert.ErrorIs(t, err, sharedDomain.ErrForbidden)

		_, err = h.Handle(ctx, commands.RecordOutcomeCommand{Actor: adminActor(), AppointmentID: a.ID(), Outcome: "vanished"})
		assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

		_, err = h.Handle(ctx, commands.RecordOutcomeCommand{Actor: adminActor(), AppointmentID: a.ID(), Outcome: "attended"})
		assert.ErrorIs(t, err, domain.ErrSessionNotEnded)
		assert.Equal(t, domain.StatusConfirmed, f.Reload(t, a.ID()).Status())
	})
}
