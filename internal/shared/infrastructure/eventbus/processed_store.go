package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// SQLProcessedStore keeps the dedup ledger in the processed_events table.
type SQLProcessedStore struct {
	conn database.Connection
}

// NewSQLProcessedStore creates a store on conn.
func NewSQLProcessedStore(conn database.Connection) *SQLProcessedStore {
	return &SQLProcessedStore{conn: conn}
}

// IsProcessed implements ProcessedStore.
func (s *SQLProcessedStore) IsProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	var one int
	err := database.ExecutorFromContext(ctx, s.conn).QueryRow(ctx,
		`SELECT 1 FROM processed_events WHERE consumer = $1 AND event_id = $2`,
		consumer, eventID.String(),
	).Scan(&one)
	if database.IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkProcessed implements ProcessedStore. Re-marking is a no-op.
func (s *SQLProcessedStore) MarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID, at time.Time) error {
	_, err := database.ExecutorFromContext(ctx, s.conn).Exec(ctx,
		`INSERT INTO processed_events (consumer, event_id, processed_at) VALUES ($1, $2, $3)
		 ON CONFLICT (consumer, event_id) DO NOTHING`,
		consumer, eventID.String(), at,
	)
	return err
}

// MemoryProcessedStore is a ProcessedStore for tests and single-process runs.
type MemoryProcessedStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemoryProcessedStore creates an empty store.
func NewMemoryProcessedStore() *MemoryProcessedStore {
	return &MemoryProcessedStore{seen: make(map[string]time.Time)}
}

// IsProcessed implements ProcessedStore.
func (s *MemoryProcessedStore) IsProcessed(_ context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[consumer+"/"+eventID.String()]
	return ok, nil
}

// MarkProcessed implements ProcessedStore.
func (s *MemoryProcessedStore) MarkProcessed(_ context.Context, consumer string, eventID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[consumer+"/"+eventID.String()] = at
	return nil
}
