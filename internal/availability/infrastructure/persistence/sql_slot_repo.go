package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/therapia/internal/availability/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

const slotColumns = `id, service_id, start_at, end_at, tz, status, source, external_event_id, created_at, updated_at`

// SQLSlotRepository stores availability slots in Postgres or SQLite.
type SQLSlotRepository struct {
	conn database.Connection
}

// NewSQLSlotRepository creates a slot repository.
func NewSQLSlotRepository(conn database.Connection) *SQLSlotRepository {
	return &SQLSlotRepository{conn: conn}
}

// Save upserts a slot.
func (r *SQLSlotRepository) Save(ctx context.Context, slot *domain.Slot) error {
	exec := database.ExecutorFromContext(ctx, r.conn)

	var serviceID any
	if id := slot.ServiceID(); id != nil {
		serviceID = id.String()
	}
	window := slot.Window()

	_, err := exec.Exec(ctx, `
		INSERT INTO availability_slots (`+slotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			service_id = EXCLUDED.service_id,
			start_at = EXCLUDED.start_at,
			end_at = EXCLUDED.end_at,
			tz = EXCLUDED.tz,
			status = EXCLUDED.status,
			external_event_id = EXCLUDED.external_event_id,
			updated_at = EXCLUDED.updated_at`,
		slot.ID().String(), serviceID, window.Start(), window.End(), window.TZ(),
		string(slot.Status()), string(slot.Source()), database.NullString(slot.ExternalEventID()),
		slot.CreatedAt(), slot.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("save availability slot: %w", err)
	}
	return nil
}

// SaveBatch saves slots in order. Callers wrap it in a unit of work to make
// the batch atomic.
func (r *SQLSlotRepository) SaveBatch(ctx context.Context, slots []*domain.Slot) error {
	for _, slot := range slots {
		if err := r.Save(ctx, slot); err != nil {
			return err
		}
	}
	return nil
}

// FindByID loads a slot.
func (r *SQLSlotRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Slot, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	row := exec.QueryRow(ctx, `SELECT `+slotColumns+` FROM availability_slots WHERE id = $1`, id.String())
	return scanSlot(row)
}

// FindByExternalEventID loads the slot imported from an external calendar event.
func (r *SQLSlotRepository) FindByExternalEventID(ctx context.Context, externalEventID string) (*domain.Slot, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	row := exec.QueryRow(ctx, `
		SELECT `+slotColumns+` FROM availability_slots
		WHERE source = $1 AND external_event_id = $2`,
		string(domain.SourceExternalCalendar), externalEventID,
	)
	return scanSlot(row)
}

// ListAvailable returns available slots for serviceID, including global
// ones, that intersect [from, to).
func (r *SQLSlotRepository) ListAvailable(ctx context.Context, serviceID uuid.UUID, from, to time.Time) ([]*domain.Slot, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, `
		SELECT `+slotColumns+` FROM availability_slots
		WHERE status = $1
			AND (service_id = $2 OR service_id IS NULL)
			AND start_at < $3 AND end_at > $4
		ORDER BY start_at, id`,
		string(domain.StatusAvailable), serviceID.String(), to, from,
	)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

// ListAll returns slots matching filter ordered by start.
func (r *SQLSlotRepository) ListAll(ctx context.Context, filter domain.Filter) ([]*domain.Slot, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)

	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.ServiceID != nil {
		add("service_id = $%d", filter.ServiceID.String())
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Source != "" {
		add("source = $%d", string(filter.Source))
	}
	if !filter.From.IsZero() {
		add("end_at > $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("start_at < $%d", filter.To)
	}

	query := `SELECT ` + slotColumns + ` FROM availability_slots`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY start_at, id`

	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

// DeleteEndedBefore removes slots that ended before cutoff and reports how
// many were removed.
func (r *SQLSlotRepository) DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	result, err := exec.Exec(ctx, `DELETE FROM availability_slots WHERE end_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete ended slots: %w", err)
	}
	return result.RowsAffected()
}

// Delete removes a slot.
func (r *SQLSlotRepository) Delete(ctx context.Context, id uuid.UUID) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	result, err := exec.Exec(ctx, `DELETE FROM availability_slots WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("delete availability slot: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrSlotNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func collectSlots(rows database.Rows) ([]*domain.Slot, error) {
	defer rows.Close()

	var slots []*domain.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

func scanSlot(row scanner) (*domain.Slot, error) {
	var (
		idStr, tz, status, source string
		serviceID, externalID     sql.NullString
		start, end                database.Time
		createdAt, updatedAt      database.Time
	)
	err := row.Scan(&idStr, &serviceID, &start, &end, &tz, &status, &source, &externalID, &createdAt, &updatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrSlotNotFound
		}
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("slot: invalid id %q: %w", idStr, err)
	}
	var svc *uuid.UUID
	if serviceID.Valid {
		parsed, err := uuid.Parse(serviceID.String)
		if err != nil {
			return nil, fmt.Errorf("slot %s: invalid service id: %w", idStr, err)
		}
		svc = &parsed
	}
	window, err := sharedDomain.NewTimeSlot(start.Time, end.Time, tz)
	if err != nil {
		return nil, fmt.Errorf("slot %s: %w", idStr, err)
	}

	return domain.RehydrateSlot(id, svc, window, domain.Status(status), domain.Source(source),
		externalID.String, createdAt.Time, updatedAt.Time), nil
}
