package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/felixgeelhaar/therapia/internal/payments/domain"
	sharedApplication "github.com/felixgeelhaar/therapia/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

var tracer = otel.Tracer("therapia.internal.payments.commands")

// ErrStoreUnavailable marks unclassified failures while applying a webhook.
// They are reported as unavailable so the provider redelivers.
var ErrStoreUnavailable = sharedDomain.NewUpstreamError("WEBHOOK_STORE_UNAVAILABLE", "webhook could not be stored")

// Outcome describes what a webhook delivery did.
type Outcome string

const (
	OutcomeApplied           Outcome = "applied"
	OutcomeUnchanged         Outcome = "unchanged"
	OutcomeDuplicate         Outcome = "duplicate"
	OutcomeUnknownPayment    Outcome = "unknown_payment"
	OutcomeIgnored           Outcome = "ignored"
	OutcomeProtocolViolation Outcome = "protocol_violation"
)

// ProcessWebhookCommand is a raw provider delivery.
type ProcessWebhookCommand struct {
	Body      []byte
	Signature string
}

// ProcessWebhookResult reports the outcome of a delivery.
type ProcessWebhookResult struct {
	Outcome   Outcome
	EventType string
	PaymentID uuid.UUID
}

// ProcessWebhookHandler verifies provider notifications and applies them to
// payments exactly once per (provider payment ID, event type).
type ProcessWebhookHandler struct {
	decoder  domain.WebhookDecoder
	payments domain.Repository
	ledger   domain.WebhookLedger
	recorder sharedApplication.EventRecorder
	uow      sharedApplication.UnitOfWork
	clock    sharedDomain.Clock
	timeout  time.Duration
	logger   *slog.Logger
}

// NewProcessWebhookHandler creates a new ProcessWebhookHandler. timeout
// bounds each delivery independently of the caller.
func NewProcessWebhookHandler(
	decoder domain.WebhookDecoder,
	payments domain.Repository,
	ledger domain.WebhookLedger,
	recorder sharedApplication.EventRecorder,
	uow sharedApplication.UnitOfWork,
	clock sharedDomain.Clock,
	timeout time.Duration,
	logger *slog.Logger,
) *ProcessWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessWebhookHandler{
		decoder:  decoder,
		payments: payments,
		ledger:   ledger,
		recorder: recorder,
		uow:      uow,
		clock:    clock,
		timeout:  timeout,
		logger:   logger,
	}
}

// SignatureHeader is the HTTP header the decoder reads the signature from.
func (h *ProcessWebhookHandler) SignatureHeader() string {
	return h.decoder.SignatureHeader()
}

// Handle verifies, parses and applies a delivery. Replays and deliveries for
// unknown payments succeed without side effects.
func (h *ProcessWebhookHandler) Handle(ctx context.Context, cmd ProcessWebhookCommand) (*ProcessWebhookResult, error) {
	ctx, span := tracer.Start(ctx, "payments.ProcessWebhook")
	defer span.End()

	event, err := h.decoder.Decode(cmd.Body, cmd.Signature)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(sharedDomain.CodeOf(err)))
		h.logger.Warn("webhook rejected", "error", err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("provider_payment_id", event.ProviderPaymentID),
		attribute.String("event_type", event.EventType),
	)

	result := &ProcessWebhookResult{EventType: event.EventType}
	err = sharedApplication.WithDeadline(ctx, h.timeout, func(ctx context.Context) error {
		return sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
			return h.apply(txCtx, event, result)
		})
	})
	if errors.Is(err, domain.ErrDuplicateWebhook) {
		result.Outcome = OutcomeDuplicate
		err = nil
	}
	if err != nil {
		var de *sharedDomain.Error
		if !errors.As(err, &de) {
			err = ErrStoreUnavailable.Wrap(err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(sharedDomain.CodeOf(err)))
		h.logger.Error("webhook processing failed",
			"provider_payment_id", event.ProviderPaymentID,
			"event_type", event.EventType,
			"error", err,
		)
		return nil, err
	}

	span.SetAttributes(attribute.String("outcome", string(result.Outcome)))
	h.logger.Info("webhook processed",
		"provider_payment_id", event.ProviderPaymentID,
		"event_type", event.EventType,
		"outcome", result.Outcome,
	)
	return result, nil
}

func (h *ProcessWebhookHandler) apply(ctx context.Context, event *domain.WebhookEvent, result *ProcessWebhookResult) error {
	seen, err := h.ledger.Exists(ctx, event.ProviderPaymentID, event.EventType)
	if err != nil {
		return err
	}
	if seen {
		result.Outcome = OutcomeDuplicate
		return nil
	}

	now := h.clock.Now()
	// A concurrent delivery of the same event fails here with
	// ErrDuplicateWebhook and rolls this one back.
	if err := h.ledger.Record(ctx, event.ProviderPaymentID, event.EventType, now); err != nil {
		return err
	}

	p, err := h.payments.FindByProviderPaymentID(ctx, event.ProviderPaymentID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		h.logger.Warn("webhook for unknown payment",
			"provider_payment_id", event.ProviderPaymentID,
			"event_type", event.EventType,
		)
		result.Outcome = OutcomeUnknownPayment
		return nil
	}
	if err != nil {
		return err
	}
	result.PaymentID = p.ID()

	var changed bool
	switch event.EventType {
	case domain.EventPaymentSucceeded:
		changed, err = p.MarkSucceeded(*event.Amount, now)
	case domain.EventPaymentCanceled, domain.EventPaymentFailed:
		changed, err = p.MarkFailed(event.EventType, now)
	default:
		result.Outcome = OutcomeIgnored
		return nil
	}
	if errors.Is(err, domain.ErrInvalidTransition) {
		h.logger.Error("payment provider protocol violation",
			"payment_id", p.ID(),
			"status", p.Status(),
			"event_type", event.EventType,
		)
		result.Outcome = OutcomeProtocolViolation
		return nil
	}
	if err != nil {
		return err
	}
	if !changed {
		result.Outcome = OutcomeUnchanged
		return nil
	}

	if err := h.payments.Save(ctx, p); err != nil {
		return err
	}
	md := sharedApplication.NewEventMetadata(uuid.Nil, uuid.Nil)
	if err := sharedApplication.RecordAggregateEvents(ctx, h.recorder, p, md); err != nil {
		return err
	}
	result.Outcome = OutcomeApplied
	return nil
}
