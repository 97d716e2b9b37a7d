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

	catalogPersistence "github.com/felixgeelhaar/therapia/internal/catalog/infrastructure/persistence"
	"github.com/felixgeelhaar/therapia/internal/notifications/application/subscribers"
	"github.com/felixgeelhaar/therapia/internal/notifications/domain"
	"github.com/felixgeelhaar/therapia/internal/notifications/infrastructure/email"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database/dbtest"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/eventbus"
	waitlist "github.com/felixgeelhaar/therapia/internal/waitlist/domain"
	waitlistPersistence "github.com/felixgeelhaar/therapia/internal/waitlist/infrastructure/persistence"
)

var now = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

type failingNotifier struct{}

func (failingNotifier) Send(context.Context, domain.Message) error {
	return domain.ErrDeliveryFailed.Wrap(errors.New("503"))
}

func consumed(t *testing.T, routingKey string, payload any) *eventbus.ConsumedEvent {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &eventbus.ConsumedEvent{EventID: uuid.New(), RoutingKey: routingKey, OccurredAt: now, Payload: raw}
}

func TestOpsAlertSubscriber(t *testing.T) {
	appointmentID := uuid.NewString()
	tests := []struct {
		name        string
		routingKey  string
		payload     map[string]any
		wantSubject string
		wantBody    []string
	}{
		{
			name:       "calendar sync failed",
			routingKey: subscribers.RoutingKeyCalendarSyncFailed,
			payload: map[string]any{
				"appointment_id": appointmentID,
				"operation":      "create",
				"attempts":       3,
				"error":          "calendar unavailable",
			},
			wantSubject: "Calendar sync failed for appointment " + appointmentID,
			wantBody:    []string{"(create) after 3 attempts", "calendar unavailable"},
		},
		{
			name:       "refund failed",
			routingKey: subscribers.RoutingKeyRefundFailed,
			payload: map[string]any{
				"appointment_id": appointmentID,
				"payment_id":     "p-1",
				"amount":         "2500.00",
				"currency":       "RUB",
				"reason":         "gateway unavailable",
			},
			wantSubject: "Refund failed for appointment " + appointmentID,
			wantBody:    []string{"2500.00 RUB", "p-1", "gateway unavailable"},
		},
		{
			name:       "payment after cancellation",
			routingKey: subscribers.RoutingKeyPaymentOrphaned,
			payload: map[string]any{
				"appointment_id": appointmentID,
				"payment_id":     "p-2",
				"amount":         "5000.00",
				"currency":       "RUB",
			},
			wantSubject: "Payment received for canceled appointment " + appointmentID,
			wantBody:    []string{"5000.00 RUB", "p-2", "refund the client"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := email.NewLogNotifier(nil)
			sub := subscribers.NewOpsAlertSubscriber(notifier, "ops@example.com", nil)

			require.NoError(t, sub.Handle(context.Background(), consumed(t, tt.routingKey, tt.payload)))

			sent := notifier.Sent()
			require.Len(t, sent, 1)
			assert.Equal(t, "ops@example.com", sent[0].To)
			assert.Equal(t, tt.wantSubject, sent[0].Subject)
			for _, part := range tt.wantBody {
				assert.Contains(t, sent[0].Body, part)
			}
		})
	}
}

func TestOpsAlertSubscriber_WithoutAddressOnlyLogs(t *testing.T) {
	notifier := email.NewLogNotifier(nil)
	sub := subscribers.NewOpsAlertSubscriber(notifier, "", nil)

	assert.ElementsMatch(t, []string{
		subscribers.RoutingKeyCalendarSyncFailed,
		subscribers.RoutingKeyRefundFailed,
		subscribers.RoutingKeyPaymentOrphaned,
	}, sub.EventTypes())
	require.NoError(t, sub.Handle(context.Background(), consumed(t, subscribers.RoutingKeyRefundFailed, map[string]any{})))
	assert.Empty(t, notifier.Sent())
}

func TestOpsAlertSubscriber_DeliveryFailureIsReturned(t *testing.T) {
	sub := subscribers.NewOpsAlertSubscriber(failingNotifier{}, "ops@example.com", nil)

	err := sub.Handle(context.Background(), consumed(t, subscribers.RoutingKeyRefundFailed, map[string]any{}))
	assert.Equal(t, sharedDomain.CodeUpstreamUnavailable, sharedDomain.CodeOf(err))
}

type opportunityFixture struct {
	requests *waitlistPersistence.SQLWaitlistRepository
	sub      func(n domain.Notifier) *subscribers.WaitlistOpportunitySubscriber
	request  *waitlist.Request
}

func newOpportunityFixture(t *testing.T) *opportunityFixture {
	t.Helper()
	conn := dbtest.NewSQLite(t)
	serviceID := dbtest.SeedService(t, conn, "individual")
	requests := waitlistPersistence.NewSQLWaitlistRepository(conn, dbtest.NewCipher(t))
	services := catalogPersistence.NewSQLServiceRepository(conn)

	req, err := waitlist.NewRequest(uuid.New(), serviceID, nil, "client@example.com", nil, now)
	require.NoError(t, err)
	require.NoError(t, requests.Save(context.Background(), req))

	return &opportunityFixture{
		requests: requests,
		request:  req,
		sub: func(n domain.Notifier) *subscribers.WaitlistOpportunitySubscriber {
			return subscribers.NewWaitlistOpportunitySubscriber(n, requests, services, nil)
		},
	}
}

func (f *opportunityFixture) event(t *testing.T) *eventbus.ConsumedEvent {
	t.Helper()
	slot := sharedDomain.MustTimeSlot(
		time.Date(2026, 2, 3, 7, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 3, 8, 0, 0, 0, time.UTC),
		"Europe/Moscow",
	)
	f.request.OfferOpening(slot, uuid.New(), now)
	events := f.request.DomainEvents()
	f.request.ClearDomainEvents()
	e, err := eventbus.NewConsumedEvent(events[len(events)-1])
	require.NoError(t, err)
	return e
}

func TestWaitlistOpportunitySubscriber_EmailsDecryptedContact(t *testing.T) {
	f := newOpportunityFixture(t)
	notifier := email.NewLogNotifier(nil)
	sub := f.sub(notifier)

	assert.Equal(t, []string{waitlist.RoutingKeyOpportunity}, sub.EventTypes())
	require.NoError(t, sub.Handle(context.Background(), f.event(t)))

	sent := notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "client@example.com", sent[0].To)
	assert.Equal(t, "A time opened up for Service individual", sent[0].Subject)
	assert.Contains(t, sent[0].Body, "Tuesday, 3 February 2026 at 10:00 (Europe/Moscow)")
}

func TestWaitlistOpportunitySubscriber_WithdrawnRequest(t *testing.T) {
	f := newOpportunityFixture(t)
	notifier := email.NewLogNotifier(nil)
	event := f.event(t)
	require.NoError(t, f.requests.Delete(context.Background(), f.request.ID()))

	require.NoError(t, f.sub(notifier).Handle(context.Background(), event))
	assert.Empty(t, notifier.Sent())
}

func TestWaitlistOpportunitySubscriber_DeliveryFailureIsReturned(t *testing.T) {
	f := newOpportunityFixture(t)

	err := f.sub(failingNotifier{}).Handle(context.Background(), f.event(t))
	assert.ErrorIs(t, err, domain.ErrDeliveryFailed)
}
