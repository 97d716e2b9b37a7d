package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock supplies the current instant. Use cases sample it once and pass the
// value down so every guard in a single operation sees the same "now".
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock is a settable clock for tests and replays.
type FixedClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewFixedClock creates a clock frozen at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t.UTC()}
}

// Now returns the frozen instant.
func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// IDGenerator produces identifiers for new aggregates and events.
type IDGenerator interface {
	NewID() uuid.UUID
}

// UUIDGenerator generates random (v4) UUIDs.
type UUIDGenerator struct{}

// NewID returns a new random UUID.
func (UUIDGenerator) NewID() uuid.UUID { return uuid.New() }

// SequenceGenerator returns a predetermined list of IDs, then falls back to random ones.
type SequenceGenerator struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

// NewSequenceGenerator creates a generator that yields ids in order.
func NewSequenceGenerator(ids ...uuid.UUID) *SequenceGenerator {
	return &SequenceGenerator{ids: ids}
}

// NewID returns the next queued ID.
func (g *SequenceGenerator) NewID() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.ids) == 0 {
		return uuid.New()
	}
	id := g.ids[0]
	g.ids = g.ids[1:]
	return id
}
