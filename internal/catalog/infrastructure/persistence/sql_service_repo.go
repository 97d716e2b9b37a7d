package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/therapia/internal/catalog/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

const serviceColumns = `id, slug, name, price_amount, currency, deposit_amount, duration_minutes,
	formats, cancel_free_hours, cancel_partial_hours, reschedule_min_hours, active,
	created_at, updated_at, version`

// SQLServiceRepository stores services in Postgres or SQLite.
type SQLServiceRepository struct {
	conn database.Connection
}

// NewSQLServiceRepository creates a service repository.
func NewSQLServiceRepository(conn database.Connection) *SQLServiceRepository {
	return &SQLServiceRepository{conn: conn}
}

// Save inserts a new service or updates an existing one with an optimistic
// version check.
func (r *SQLServiceRepository) Save(ctx context.Context, s *domain.Service) error {
	exec := database.ExecutorFromContext(ctx, r.conn)

	var deposit any
	if d := s.Deposit(); d != nil {
		deposit = d.AmountString()
	}
	formats := joinFormats(s.Formats())
	policy := s.Policy()

	if s.IsNew() {
		_, err := exec.Exec(ctx, `
			INSERT INTO services (`+serviceColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1)`,
			s.ID().String(), s.Slug(), s.Name(), s.Price().AmountString(), s.Price().Currency(), deposit,
			s.DurationMinutes(), formats, policy.CancelFreeHours, policy.CancelPartialHours,
			policy.RescheduleMinHours, boolToInt(s.IsActive()), s.CreatedAt(), s.UpdatedAt(),
		)
		if err != nil {
			if database.IsConstraintViolation(err) {
				return domain.ErrDuplicateSlug.Wrap(err)
			}
			return fmt.Errorf("insert service: %w", err)
		}
		s.SetVersion(1)
		return nil
	}

	result, err := exec.Exec(ctx, `
		UPDATE services
		SET slug = $1, name = $2, price_amount = $3, currency = $4, deposit_amount = $5,
			duration_minutes = $6, formats = $7, cancel_free_hours = $8, cancel_partial_hours = $9,
			reschedule_min_hours = $10, active = $11, updated_at = $12, version = version + 1
		WHERE id = $13 AND version = $14`,
		s.Slug(), s.Name(), s.Price().AmountString(), s.Price().Currency(), deposit,
		s.DurationMinutes(), formats, policy.CancelFreeHours, policy.CancelPartialHours,
		policy.RescheduleMinHours, boolToInt(s.IsActive()), s.UpdatedAt(),
		s.ID().String(), s.Version(),
	)
	if err != nil {
		if database.IsConstraintViolation(err) {
			return domain.ErrDuplicateSlug.Wrap(err)
		}
		return fmt.Errorf("update service: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sharedDomain.ErrVersionConflict
	}
	s.IncrementVersion()
	return nil
}

// FindByID loads a service by ID.
func (r *SQLServiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Service, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	row := exec.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id.String())
	return scanService(row)
}

// FindBySlug loads a service by slug.
func (r *SQLServiceRepository) FindBySlug(ctx context.Context, slug string) (*domain.Service, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	row := exec.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE slug = $1`, slug)
	return scanService(row)
}

// List returns services ordered by name.
func (r *SQLServiceRepository) List(ctx context.Context, includeInactive bool) ([]*domain.Service, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	query := `SELECT ` + serviceColumns + ` FROM services`
	if !includeInactive {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name, slug`

	rows, err := exec.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []*domain.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanService(row scanner) (*domain.Service, error) {
	var (
		idStr, slug, name, price, currency, formats string
		deposit                                     sql.NullString
		duration, free, partial, reschedule, active int
		createdAt, updatedAt                        database.Time
		version                                     int
	)
	err := row.Scan(&idStr, &slug, &name, &price, &currency, &deposit, &duration,
		&formats, &free, &partial, &reschedule, &active, &createdAt, &updatedAt, &version)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrServiceNotFound
		}
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("service: invalid id %q: %w", idStr, err)
	}
	priceMoney, err := sharedDomain.ParseMoney(price, currency)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", idStr, err)
	}
	params := domain.ServiceParams{
		Slug:            slug,
		Name:            name,
		Price:           priceMoney,
		DurationMinutes: duration,
		Formats:         splitFormats(formats),
		Policy: domain.Policy{
			CancelFreeHours:    free,
			CancelPartialHours: partial,
			RescheduleMinHours: reschedule,
		},
	}
	if deposit.Valid && deposit.String != "" {
		d, err := sharedDomain.ParseMoney(deposit.String, currency)
		if err != nil {
			return nil, fmt.Errorf("service %s deposit: %w", idStr, err)
		}
		params.Deposit = &d
	}

	return domain.RehydrateService(id, params, active == 1, createdAt.Time, updatedAt.Time, version), nil
}

func joinFormats(formats []domain.Format) string {
	parts := make([]string, len(formats))
	for i, f := range formats {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}

func splitFormats(s string) []domain.Format {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	formats := make([]domain.Format, 0, len(parts))
	for _, p := range parts {
		formats = append(formats, domain.Format(strings.TrimSpace(p)))
	}
	return formats
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
