package app

import (
	"context"
	"fmt"

	availabilityPersistence "github.com/felixgeelhaar/therapia/internal/availability/infrastructure/persistence"
	bookingPersistence "github.com/felixgeelhaar/therapia/internal/booking/infrastructure/persistence"
	catalogPersistence "github.com/felixgeelhaar/therapia/internal/catalog/infrastructure/persistence"
	paymentPersistence "github.com/felixgeelhaar/therapia/internal/payments/infrastructure/persistence"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/crypto"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/outbox"
	waitlistPersistence "github.com/felixgeelhaar/therapia/internal/waitlist/infrastructure/persistence"
)

// Repositories groups every store the use cases depend on. All of them
// share one connection, so a unit of work spans any combination.
type Repositories struct {
	Services     *catalogPersistence.SQLServiceRepository
	Slots        *availabilityPersistence.SQLSlotRepository
	Appointments *bookingPersistence.SQLAppointmentRepository
	Payments     *paymentPersistence.SQLPaymentRepository
	Webhooks     *paymentPersistence.SQLWebhookLedger
	Waitlist     *waitlistPersistence.SQLWaitlistRepository
	Outbox       *outbox.SQLRepository
	Processed    *eventbus.SQLProcessedStore
}

// RepositoryFactory builds repositories for a connection. The SQL is
// written once for both drivers; the factory only knows which fields are
// sealed with the cipher.
type RepositoryFactory struct {
	conn   database.Connection
	cipher crypto.FieldCipher
}

// NewRepositoryFactory creates a new repository factory.
func NewRepositoryFactory(conn database.Connection, cipher crypto.FieldCipher) *RepositoryFactory {
	return &RepositoryFactory{conn: conn, cipher: cipher}
}

// Build returns the repositories.
func (f *RepositoryFactory) Build() *Repositories {
	payments := paymentPersistence.NewSQLPaymentRepository(f.conn)
	return &Repositories{
		Services:     catalogPersistence.NewSQLServiceRepository(f.conn),
		Slots:        availabilityPersistence.NewSQLSlotRepository(f.conn),
		Appointments: bookingPersistence.NewSQLAppointmentRepository(f.conn, f.cipher, payments),
		Payments:     payments,
		Webhooks:     paymentPersistence.NewSQLWebhookLedger(f.conn),
		Waitlist:     waitlistPersistence.NewSQLWaitlistRepository(f.conn, f.cipher),
		Outbox:       outbox.NewSQLRepository(f.conn),
		Processed:    eventbus.NewSQLProcessedStore(f.conn),
	}
}

// Migrate brings a SQLite database up to date. Postgres schemas are managed
// with `therapia migrate` and are left alone.
func (f *RepositoryFactory) Migrate(ctx context.Context) (int, error) {
	switch f.conn.Driver() {
	case database.DriverSQLite:
		sqliteConn, ok := f.conn.(*sqlite.Connection)
		if !ok {
			return 0, fmt.Errorf("sqlite driver with unexpected connection %T", f.conn)
		}
		return migrations.RunSQLiteMigrations(ctx, sqliteConn.DB())
	case database.DriverPostgres:
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported driver: %s", f.conn.Driver())
	}
}
