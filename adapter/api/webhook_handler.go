package api

import (
	"io"
	"net/http"

	paymentCommands "github.com/felixgeelhaar/therapia/internal/payments/application/commands"
	payments "github.com/felixgeelhaar/therapia/internal/payments/domain"
	"github.com/felixgeelhaar/therapia/internal/payments/infrastructure/fake"
	"github.com/felixgeelhaar/therapia/internal/payments/infrastructure/webhook"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/pkg/observability"
)

type webhookResponse struct {
	Outcome   string `json:"outcome"`
	EventType string `json:"event_type,omitempty"`
}

// handlePaymentWebhook handles POST /webhooks/payments. Replays and unknown
// payments answer 200 so the provider stops retrying; only signature,
// parsing and availability failures are errors.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	handler := s.container.ProcessWebhookHandler
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeErrorStatus(w, r, payments.ErrMalformedWebhook.Wrap(err), http.StatusBadRequest)
		return
	}

	result, err := handler.Handle(r.Context(), paymentCommands.ProcessWebhookCommand{
		Body:      body,
		Signature: r.Header.Get(handler.SignatureHeader()),
	})
	if err != nil {
		s.metrics.Counter(observability.MetricWebhooksReceived, 1,
			observability.T("outcome", "rejected"),
		)
		s.writeErrorStatus(w, r, err, webhookStatus(err))
		return
	}
	s.metrics.Counter(observability.MetricWebhooksReceived, 1,
		observability.T("outcome", string(result.Outcome)),
	)
	writeJSON(w, http.StatusOK, webhookResponse{
		Outcome:   string(result.Outcome),
		EventType: result.EventType,
	})
}

// handleFakePay is the payment page of the fake gateway. Visiting it pays
// the intent by delivering a signed payment.succeeded webhook, then
// redirects to the return URL when one was given.
func (s *Server) handleFakePay(w http.ResponseWriter, r *http.Request) {
	gateway, okGateway := s.container.Gateway.(*fake.Gateway)
	decoder, okDecoder := s.container.WebhookDecoder.(*webhook.HMACDecoder)
	if !okGateway || !okDecoder {
		http.NotFound(w, r)
		return
	}

	providerPaymentID := r.URL.Query().Get("payment_id")
	intent, ok := gateway.Intent(providerPaymentID)
	if !ok {
		s.writeError(w, r, sharedDomain.NewNotFoundError("PAYMENT_NOT_FOUND", "unknown payment"))
		return
	}

	body := webhook.Body(providerPaymentID, payments.EventPaymentSucceeded, &intent.Amount)
	result, err := s.container.ProcessWebhookHandler.Handle(r.Context(), paymentCommands.ProcessWebhookCommand{
		Body:      body,
		Signature: decoder.Sign(body),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if returnURL := r.URL.Query().Get("return_url"); returnURL != "" {
		http.Redirect(w, r, returnURL, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{
		Outcome:   string(result.Outcome),
		EventType: result.EventType,
	})
}
