package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/therapia/internal/booking/domain"
	catalog "github.com/felixgeelhaar/therapia/internal/catalog/domain"
	payments "github.com/felixgeelhaar/therapia/internal/payments/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/crypto"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

const appointmentColumns = `id, service_id, client_id, anonymous_id, start_at, end_at, tz, format, status,
	intake_form, outcome, outcome_notes, metadata, calendar_event_id, cancellation_reason,
	cancellation_details, canceled_at, created_at, updated_at, version`

// insertTypes are the Postgres types of the appointment columns, in
// appointmentColumns order, minus version. INSERT … SELECT needs them
// because bare parameters in a select list carry no type.
var insertTypes = []string{
	"uuid", "uuid", "uuid", "text", "timestamptz", "timestamptz", "text", "text", "text",
	"text", "text", "text", "jsonb", "text", "text",
	"text", "timestamptz", "timestamptz", "timestamptz",
}

// overlapCondition matches active appointments of a service intersecting
// [start, end).
const overlapCondition = `service_id = %s AND status <> 'canceled' AND start_at < %s AND end_at > %s`

// SQLAppointmentRepository stores appointments in Postgres or SQLite. The
// intake form is sealed with the field cipher before it reaches the table.
type SQLAppointmentRepository struct {
	conn     database.Connection
	cipher   crypto.FieldCipher
	payments payments.Repository
}

// NewSQLAppointmentRepository creates an appointment repository. Loaded
// appointments carry their payment when paymentRepo is set.
func NewSQLAppointmentRepository(conn database.Connection, cipher crypto.FieldCipher, paymentRepo payments.Repository) *SQLAppointmentRepository {
	return &SQLAppointmentRepository{conn: conn, cipher: cipher, payments: paymentRepo}
}

func (r *SQLAppointmentRepository) placeholder(n int) string {
	p := "$" + strconv.Itoa(n)
	if r.conn.Driver() == database.DriverPostgres {
		return p + "::" + insertTypes[n-1]
	}
	return p
}

// Insert persists a new appointment unless an active appointment of the same
// service overlaps it.
func (r *SQLAppointmentRepository) Insert(ctx context.Context, a *domain.Appointment) error {
	exec := database.ExecutorFromContext(ctx, r.conn)

	args, err := r.rowArgs(a)
	if err != nil {
		return err
	}
	selectList := make([]string, len(args))
	for i := range args {
		selectList[i] = r.placeholder(i + 1)
	}
	cond := fmt.Sprintf(overlapCondition, r.placeholder(2), r.placeholder(6), r.placeholder(5))

	result, err := exec.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		SELECT `+strings.Join(selectList, ", ")+`, 1
		WHERE NOT EXISTS (SELECT 1 FROM appointments WHERE `+cond+`)`,
		args...,
	)
	if err != nil {
		if database.IsConstraintViolation(err) {
			return domain.ErrSlotConflict.Wrap(err)
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrSlotConflict
	}
	a.SetVersion(1)
	return nil
}

// Save updates an existing appointment with an optimistic version check.
// The slot is left untouched; UpdateSlot moves it.
func (r *SQLAppointmentRepository) Save(ctx context.Context, a *domain.Appointment) error {
	if a.IsNew() {
		return r.Insert(ctx, a)
	}
	exec := database.ExecutorFromContext(ctx, r.conn)

	intake, err := r.cipher.SealString(a.IntakeForm())
	if err != nil {
		return fmt.Errorf("seal intake form: %w", err)
	}
	metadata, err := json.Marshal(a.Metadata())
	if err != nil {
		return fmt.Errorf("encode appointment metadata: %w", err)
	}

	result, err := exec.Exec(ctx, `
		UPDATE appointments
		SET status = $1, intake_form = $2, outcome = $3, outcome_notes = $4, metadata = $5,
			calendar_event_id = $6, cancellation_reason = $7, cancellation_details = $8,
			canceled_at = $9, updated_at = $10, version = version + 1
		WHERE id = $11 AND version = $12`,
		string(a.Status()), database.NullString(intake), database.NullString(string(a.Outcome())),
		database.NullString(a.OutcomeNotes()), string(metadata), database.NullString(a.CalendarEventID()),
		database.NullString(a.CancellationReason()), database.NullString(a.CancellationDetails()),
		database.NullTime(a.CanceledAt()), a.UpdatedAt(), a.ID().String(), a.Version(),
	)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sharedDomain.ErrVersionConflict
	}
	a.IncrementVersion()
	return nil
}

// UpdateSlot moves the appointment to its current slot and persists its
// status, failing with ErrSlotConflict when another active appointment of
// the service overlaps the new slot.
func (r *SQLAppointmentRepository) UpdateSlot(ctx context.Context, a *domain.Appointment) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	slot := a.Slot()

	result, err := exec.Exec(ctx, `
		UPDATE appointments
		SET start_at = $1, end_at = $2, tz = $3, status = $4, updated_at = $5, version = version + 1
		WHERE id = $6 AND version = $7
			AND NOT EXISTS (
				SELECT 1 FROM appointments other
				WHERE other.service_id = appointments.service_id
					AND other.id <> appointments.id
					AND other.status <> 'canceled'
					AND other.start_at < $2 AND other.end_at > $1
			)`,
		slot.Start(), slot.End(), slot.TZ(), string(a.Status()), a.UpdatedAt(), a.ID().String(), a.Version(),
	)
	if err != nil {
		if database.IsConstraintViolation(err) {
			return domain.ErrSlotConflict.Wrap(err)
		}
		return fmt.Errorf("update appointment slot: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		overlap, err := r.HasOverlap(ctx, a.ServiceID(), slot, a.ID())
		if err != nil {
			return err
		}
		if overlap {
			return domain.ErrSlotConflict
		}
		return sharedDomain.ErrVersionConflict
	}
	a.IncrementVersion()
	return nil
}

// FindByID loads an appointment together with its payment.
func (r *SQLAppointmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	row := exec.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id.String())
	a, err := r.scanAppointment(row)
	if err != nil {
		return nil, err
	}
	if err := r.attachPayment(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// HasOverlap reports whether an active appointment of the service other than
// exclude intersects slot.
func (r *SQLAppointmentRepository) HasOverlap(ctx context.Context, serviceID uuid.UUID, slot sharedDomain.TimeSlot, exclude uuid.UUID) (bool, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	var n int
	err := exec.QueryRow(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE `+fmt.Sprintf(overlapCondition, "$1", "$2", "$3")+` AND id <> $4`,
		serviceID.String(), slot.End(), slot.Start(), exclude.String(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check appointment overlap: %w", err)
	}
	return n > 0, nil
}

// ListActiveInRange returns the active appointments of a service
// intersecting [from, to), ordered by start.
func (r *SQLAppointmentRepository) ListActiveInRange(ctx context.Context, serviceID uuid.UUID, from, to time.Time) ([]*domain.Appointment, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE `+fmt.Sprintf(overlapCondition, "$1", "$2", "$3")+`
		ORDER BY start_at, id`,
		serviceID.String(), to, from,
	)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []*domain.Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLAppointmentRepository) attachPayment(ctx context.Context, a *domain.Appointment) error {
	if r.payments == nil {
		return nil
	}
	p, err := r.payments.FindByAppointmentID(ctx, a.ID())
	if err != nil {
		if errors.Is(err, payments.ErrPaymentNotFound) {
			return nil
		}
		return fmt.Errorf("load payment of appointment %s: %w", a.ID(), err)
	}
	a.AttachPayment(p)
	return nil
}

func (r *SQLAppointmentRepository) rowArgs(a *domain.Appointment) ([]any, error) {
	intake, err := r.cipher.SealString(a.IntakeForm())
	if err != nil {
		return nil, fmt.Errorf("seal intake form: %w", err)
	}
	metadata, err := json.Marshal(a.Metadata())
	if err != nil {
		return nil, fmt.Errorf("encode appointment metadata: %w", err)
	}
	var clientID any
	if id := a.ClientID(); id != nil {
		clientID = id.String()
	}
	slot := a.Slot()
	return []any{
		a.ID().String(), a.ServiceID().String(), clientID, database.NullString(a.AnonymousID()),
		slot.Start(), slot.End(), slot.TZ(), string(a.Format()), string(a.Status()),
		database.NullString(intake), database.NullString(string(a.Outcome())), database.NullString(a.OutcomeNotes()),
		string(metadata), database.NullString(a.CalendarEventID()), database.NullString(a.CancellationReason()),
		database.NullString(a.CancellationDetails()), database.NullTime(a.CanceledAt()), a.CreatedAt(), a.UpdatedAt(),
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *SQLAppointmentRepository) scanAppointment(row scanner) (*domain.Appointment, error) {
	var (
		idStr, serviceStr, tz, format, status, metadata string
		clientID, anonymousID, intake, outcome, notes   sql.NullString
		calendarEventID, reason, details                sql.NullString
		startAt, endAt, createdAt, updatedAt, canceled  database.Time
		version                                         int
	)
	err := row.Scan(&idStr, &serviceStr, &clientID, &anonymousID, &startAt, &endAt, &tz, &format, &status,
		&intake, &outcome, &notes, &metadata, &calendarEventID, &reason,
		&details, &canceled, &createdAt, &updatedAt, &version)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrAppointmentNotFound
		}
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("appointment: invalid id %q: %w", idStr, err)
	}
	serviceID, err := uuid.Parse(serviceStr)
	if err != nil {
		return nil, fmt.Errorf("appointment %s: invalid service id: %w", idStr, err)
	}
	slot, err := sharedDomain.NewTimeSlot(startAt.Time, endAt.Time, tz)
	if err != nil {
		return nil, fmt.Errorf("appointment %s: %w", idStr, err)
	}
	st, err := domain.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("appointment %s: %w", idStr, err)
	}
	intakeForm, err := r.cipher.OpenString(intake.String)
	if err != nil {
		return nil, fmt.Errorf("appointment %s: open intake form: %w", idStr, err)
	}
	meta := map[string]string{}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &meta); err != nil {
			return nil, fmt.Errorf("appointment %s: decode metadata: %w", idStr, err)
		}
	}

	owner := domain.Owner{AnonymousID: anonymousID.String}
	if clientID.Valid && clientID.String != "" {
		cid, err := uuid.Parse(clientID.String)
		if err != nil {
			return nil, fmt.Errorf("appointment %s: invalid client id: %w", idStr, err)
		}
		owner.ClientID = &cid
	}

	return domain.RehydrateAppointment(domain.AppointmentState{
		ID:                  id,
		ServiceID:           serviceID,
		Owner:               owner,
		Slot:                slot,
		Format:              catalog.Format(format),
		Status:              st,
		IntakeForm:          intakeForm,
		Outcome:             domain.Outcome(outcome.String),
		OutcomeNotes:        notes.String,
		Metadata:            meta,
		CalendarEventID:     calendarEventID.String,
		CancellationReason:  reason.String,
		CancellationDetails: details.String,
		CanceledAt:          canceled.Ptr(),
		CreatedAt:           createdAt.Time,
		UpdatedAt:           updatedAt.Time,
		Version:             version,
	}), nil
}
