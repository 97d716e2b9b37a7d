package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/felixgeelhaar/therapia/internal/payments/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

const paymentColumns = `id, appointment_id, amount, currency, status, provider, provider_payment_id,
	payment_url, refunded_amount, failure_reason, created_at, confirmed_at, refunded_at, updated_at, version`

// SQLPaymentRepository stores payments in Postgres or SQLite.
type SQLPaymentRepository struct {
	conn database.Connection
}

// NewSQLPaymentRepository creates a payment repository.
func NewSQLPaymentRepository(conn database.Connection) *SQLPaymentRepository {
	return &SQLPaymentRepository{conn: conn}
}

// Save inserts a new payment or updates an existing one with an optimistic
// version check.
func (r *SQLPaymentRepository) Save(ctx context.Context, p *domain.Payment) error {
	exec := database.ExecutorFromContext(ctx, r.conn)

	var refunded any
	if amt := p.RefundedAmount(); amt != nil {
		refunded = amt.AmountString()
	}

	if p.IsNew() {
		_, err := exec.Exec(ctx, `
			INSERT INTO payments (`+paymentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1)`,
			p.ID().String(), p.AppointmentID().String(), p.Amount().AmountString(), p.Amount().Currency(),
			string(p.Status()), p.Provider(), database.NullString(p.ProviderPaymentID()),
			database.NullString(p.PaymentURL()), refunded, database.NullString(p.FailureReason()),
			p.CreatedAt(), database.NullTime(p.ConfirmedAt()), database.NullTime(p.RefundedAt()), p.UpdatedAt(),
		)
		if err != nil {
			if database.IsConstraintViolation(err) {
				return domain.ErrDuplicateProviderID.Wrap(err)
			}
			return fmt.Errorf("insert payment: %w", err)
		}
		p.SetVersion(1)
		return nil
	}

	result, err := exec.Exec(ctx, `
		UPDATE payments
		SET amount = $1, currency = $2, status = $3, provider_payment_id = $4, payment_url = $5,
			refunded_amount = $6, failure_reason = $7, confirmed_at = $8, refunded_at = $9,
			updated_at = $10, version = version + 1
		WHERE id = $11 AND version = $12`,
		p.Amount().AmountString(), p.Amount().Currency(), string(p.Status()),
		database.NullString(p.ProviderPaymentID()), database.NullString(p.PaymentURL()), refunded,
		database.NullString(p.FailureReason()), database.NullTime(p.ConfirmedAt()),
		database.NullTime(p.RefundedAt()), p.UpdatedAt(), p.ID().String(), p.Version(),
	)
	if err != nil {
		if database.IsConstraintViolation(err) {
			return domain.ErrDuplicateProviderID.Wrap(err)
		}
		return fmt.Errorf("update payment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sharedDomain.ErrVersionConflict
	}
	p.IncrementVersion()
	return nil
}

// FindByID loads a payment.
func (r *SQLPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return r.findOne(ctx, `id = $1`, id.String())
}

// FindByAppointmentID loads the payment of an appointment.
func (r *SQLPaymentRepository) FindByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*domain.Payment, error) {
	return r.findOne(ctx, `appointment_id = $1`, appointmentID.String())
}

// FindByProviderPaymentID loads a payment by the provider's identifier.
func (r *SQLPaymentRepository) FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*domain.Payment, error) {
	return r.findOne(ctx, `provider_payment_id = $1`, providerPaymentID)
}

func (r *SQLPaymentRepository) findOne(ctx context.Context, where string, arg any) (*domain.Payment, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	row := exec.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE `+where, arg)
	return scanPayment(row)
}

func scanPayment(row database.Row) (*domain.Payment, error) {
	var (
		idStr, appointmentStr, amount, currency, status, provider string
		providerPaymentID, paymentURL, refunded, failure          sql.NullString
		createdAt, confirmedAt, refundedAt, updatedAt             database.Time
		version                                                   int
	)
	err := row.Scan(&idStr, &appointmentStr, &amount, &currency, &status, &provider, &providerPaymentID,
		&paymentURL, &refunded, &failure, &createdAt, &confirmedAt, &refundedAt, &updatedAt, &version)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("payment: invalid id %q: %w", idStr, err)
	}
	appointmentID, err := uuid.Parse(appointmentStr)
	if err != nil {
		return nil, fmt.Errorf("payment %s: invalid appointment id: %w", idStr, err)
	}
	money, err := sharedDomain.ParseMoney(amount, currency)
	if err != nil {
		return nil, fmt.Errorf("payment %s: %w", idStr, err)
	}
	st, err := domain.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("payment %s: %w", idStr, err)
	}
	state := domain.PaymentState{
		ID:                id,
		AppointmentID:     appointmentID,
		Amount:            money,
		Status:            st,
		Provider:          provider,
		ProviderPaymentID: providerPaymentID.String,
		PaymentURL:        paymentURL.String,
		FailureReason:     failure.String,
		CreatedAt:         createdAt.Time,
		UpdatedAt:         updatedAt.Time,
		ConfirmedAt:       confirmedAt.Ptr(),
		RefundedAt:        refundedAt.Ptr(),
		Version:           version,
	}
	if refunded.Valid && refunded.String != "" {
		m, err := sharedDomain.ParseMoney(refunded.String, currency)
		if err != nil {
			return nil, fmt.Errorf("payment %s refund: %w", idStr, err)
		}
		state.RefundedAmount = &m
	}
	return domain.RehydratePayment(state), nil
}

// SQLWebhookLedger records processed provider notifications.
type SQLWebhookLedger struct {
	conn database.Connection
}

// NewSQLWebhookLedger creates a webhook ledger.
func NewSQLWebhookLedger(conn database.Connection) *SQLWebhookLedger {
	return &SQLWebhookLedger{conn: conn}
}

// Exists reports whether the pair was already processed.
func (l *SQLWebhookLedger) Exists(ctx context.Context, providerPaymentID, eventType string) (bool, error) {
	exec := database.ExecutorFromContext(ctx, l.conn)
	var n int
	err := exec.QueryRow(ctx, `
		SELECT COUNT(*) FROM webhook_events WHERE provider_payment_id = $1 AND event_type = $2`,
		providerPaymentID, eventType,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check webhook ledger: %w", err)
	}
	return n > 0, nil
}

// Record stores the pair. A concurrent duplicate fails with a conflict.
func (l *SQLWebhookLedger) Record(ctx context.Context, providerPaymentID, eventType string, at time.Time) error {
	exec := database.ExecutorFromContext(ctx, l.conn)
	_, err := exec.Exec(ctx, `
		INSERT INTO webhook_events (provider_payment_id, event_type, processed_at) VALUES ($1, $2, $3)`,
		providerPaymentID, eventType, at,
	)
	if err != nil {
		if database.IsConstraintViolation(err) {
			return domain.ErrDuplicateWebhook.Wrap(err)
		}
		return fmt.Errorf("record webhook: %w", err)
	}
	return nil
}
