package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/therapia/internal/shared/domain"
)

// InMemoryRepository keeps the outbox in memory. Retry schedules are
// compared against its clock so tests can step over backoff delays.
type InMemoryRepository struct {
	mu       sync.Mutex
	clock    domain.Clock
	messages []*Message
	nextID   int64
}

// NewInMemoryRepository creates an empty outbox. A nil clock reads the
// system clock.
func NewInMemoryRepository(clock domain.Clock) *InMemoryRepository {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &InMemoryRepository{clock: clock, nextID: 1}
}

func (r *InMemoryRepository) Save(ctx context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg.ID = r.nextID
	r.nextID++
	r.messages = append(r.messages, msg)
	return nil
}

func (r *InMemoryRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	for _, msg := range msgs {
		if err := r.Save(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (r *InMemoryRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*Message
	now := r.clock.Now()
	for _, msg := range r.messages {
		if msg.PublishedAt != nil || msg.DeadLetteredAt != nil {
			continue
		}
		if msg.NextRetryAt != nil && msg.NextRetryAt.After(now) {
			continue
		}
		result = append(result, msg)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (r *InMemoryRepository) MarkPublished(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg := r.find(id); msg != nil {
		now := r.clock.Now()
		msg.PublishedAt = &now
		msg.DeadLetteredAt = nil
	}
	return nil
}

func (r *InMemoryRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg := r.find(id); msg != nil {
		msg.RetryCount++
		msg.LastError = &errMsg
		msg.NextRetryAt = &nextRetryAt
	}
	return nil
}

func (r *InMemoryRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg := r.find(id); msg != nil {
		now := r.clock.Now()
		msg.DeadLetteredAt = &now
		msg.DeadLetterReason = &reason
	}
	return nil
}

func (r *InMemoryRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.clock.Now().AddDate(0, 0, -olderThanDays)
	kept := r.messages[:0]
	var deleted int64
	for _, msg := range r.messages {
		if msg.PublishedAt != nil && msg.PublishedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, msg)
	}
	r.messages = kept
	return deleted, nil
}

// Messages returns a snapshot of all stored messages.
func (r *InMemoryRepository) Messages() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Message(nil), r.messages...)
}

func (r *InMemoryRepository) find(id int64) *Message {
	for _, msg := range r.messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}
