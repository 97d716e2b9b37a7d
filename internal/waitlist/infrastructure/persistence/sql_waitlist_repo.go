package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/crypto"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/therapia/internal/waitlist/domain"
)

const requestColumns = `id, service_id, client_id, contact_info, preferred_start, preferred_end, created_at`

// SQLWaitlistRepository stores waitlist requests. Contact details are sealed
// with the field cipher.
type SQLWaitlistRepository struct {
	conn   database.Connection
	cipher crypto.FieldCipher
}

// NewSQLWaitlistRepository creates a waitlist repository.
func NewSQLWaitlistRepository(conn database.Connection, cipher crypto.FieldCipher) *SQLWaitlistRepository {
	return &SQLWaitlistRepository{conn: conn, cipher: cipher}
}

// Save inserts a request. Requests are immutable once stored.
func (r *SQLWaitlistRepository) Save(ctx context.Context, req *domain.Request) error {
	exec := database.ExecutorFromContext(ctx, r.conn)

	contact, err := r.cipher.SealString(req.Contact())
	if err != nil {
		return fmt.Errorf("seal contact: %w", err)
	}
	var clientID any
	if id := req.ClientID(); id != nil {
		clientID = id.String()
	}
	var start, end *time.Time
	if w := req.PreferredWindow(); w != nil {
		s, e := w.Start(), w.End()
		start, end = &s, &e
	}

	_, err = exec.Exec(ctx, `
		INSERT INTO waitlist_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		req.ID().String(), req.ServiceID().String(), clientID, contact,
		database.NullTime(start), database.NullTime(end), req.CreatedAt(),
	)
	if err != nil {
		return fmt.Errorf("insert waitlist request: %w", err)
	}
	req.SetVersion(1)
	return nil
}

// FindByID loads a request by ID.
func (r *SQLWaitlistRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Request, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	row := exec.QueryRow(ctx, `SELECT `+requestColumns+` FROM waitlist_requests WHERE id = $1`, id.String())
	return r.scan(row)
}

// ListByService returns the requests for a service, oldest first.
func (r *SQLWaitlistRepository) ListByService(ctx context.Context, serviceID uuid.UUID) ([]*domain.Request, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, `
		SELECT `+requestColumns+` FROM waitlist_requests
		WHERE service_id = $1
		ORDER BY created_at, id`, serviceID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*domain.Request
	for rows.Next() {
		req, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// Delete removes a request. Deleting a missing request is not an error.
func (r *SQLWaitlistRepository) Delete(ctx context.Context, id uuid.UUID) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	if _, err := exec.Exec(ctx, `DELETE FROM waitlist_requests WHERE id = $1`, id.String()); err != nil {
		return fmt.Errorf("delete waitlist request: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *SQLWaitlistRepository) scan(row scanner) (*domain.Request, error) {
	var (
		idStr, serviceStr, contact string
		clientStr                  sql.NullString
		start, end, createdAt      database.Time
	)
	if err := row.Scan(&idStr, &serviceStr, &clientStr, &contact, &start, &end, &createdAt); err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("waitlist request: invalid id %q: %w", idStr, err)
	}
	serviceID, err := uuid.Parse(serviceStr)
	if err != nil {
		return nil, fmt.Errorf("waitlist request %s: invalid service id: %w", idStr, err)
	}
	var clientID *uuid.UUID
	if clientStr.Valid && clientStr.String != "" {
		cid, err := uuid.Parse(clientStr.String)
		if err != nil {
			return nil, fmt.Errorf("waitlist request %s: invalid client id: %w", idStr, err)
		}
		clientID = &cid
	}
	plain, err := r.cipher.OpenString(contact)
	if err != nil {
		return nil, fmt.Errorf("waitlist request %s: open contact: %w", idStr, err)
	}
	var window *sharedDomain.TimeSlot
	if start.Valid && end.Valid {
		w, err := sharedDomain.NewTimeSlot(start.Time, end.Time, "UTC")
		if err != nil {
			return nil, fmt.Errorf("waitlist request %s: %w", idStr, err)
		}
		window = &w
	}

	return domain.RehydrateRequest(id, serviceID, clientID, plain, window, createdAt.Time), nil
}
