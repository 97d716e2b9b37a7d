// Package memory provides an in-process calendar used in local mode and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/therapia/internal/calendar/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/google/uuid"
)

// Call records one adapter invocation.
type Call struct {
	Method  string
	Slot    sharedDomain.TimeSlot
	Request domain.EventRequest
	EventID string
}

// MockAdapter reports every slot free unless told otherwise, hands out
// "mock-<uuid>" event IDs and records every call.
type MockAdapter struct {
	mu     sync.Mutex
	calls  []Call
	busy   []sharedDomain.TimeSlot
	events map[string]domain.EventRequest

	// Err, when set, is returned by every method.
	Err error
	// CreateErrs are returned by successive CreateEvent calls before it succeeds.
	CreateErrs []error
}

// NewMockAdapter creates an empty mock calendar.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{events: make(map[string]domain.EventRequest)}
}

// MarkBusy makes IsFree report false for slots overlapping busy.
func (m *MockAdapter) MarkBusy(busy sharedDomain.TimeSlot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = append(m.busy, busy)
}

// IsFree implements domain.Adapter.
func (m *MockAdapter) IsFree(_ context.Context, slot sharedDomain.TimeSlot) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "IsFree", Slot: slot})
	if m.Err != nil {
		return false, m.Err
	}
	for _, b := range m.busy {
		if b.Overlaps(slot) {
			return false, nil
		}
	}
	return true, nil
}

// CreateEvent implements domain.Adapter.
func (m *MockAdapter) CreateEvent(_ context.Context, req domain.EventRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "CreateEvent", Slot: req.Slot, Request: req})
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.CreateErrs) > 0 {
		err := m.CreateErrs[0]
		m.CreateErrs = m.CreateErrs[1:]
		return "", err
	}
	id := "mock-" + uuid.NewString()
	m.events[id] = req
	return id, nil
}

// DeleteEvent implements domain.Adapter.
func (m *MockAdapter) DeleteEvent(_ context.Context, externalEventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "DeleteEvent", EventID: externalEventID})
	if m.Err != nil {
		return m.Err
	}
	delete(m.events, externalEventID)
	return nil
}

// ListEvents implements domain.Importer. Created events are reported as
// managed; busy periods as external events.
func (m *MockAdapter) ListEvents(_ context.Context, from, to time.Time) ([]domain.ExternalEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	var events []domain.ExternalEvent
	for i, b := range m.busy {
		if b.Start().Before(to) && b.End().After(from) {
			events = append(events, domain.ExternalEvent{
				ID:    fmt.Sprintf("busy-%d", i),
				Start: b.Start(),
				End:   b.End(),
			})
		}
	}
	for id, req := range m.events {
		if req.Slot.Start().Before(to) && req.Slot.End().After(from) {
			events = append(events, domain.ExternalEvent{
				ID:      id,
				Summary: req.Summary,
				Start:   req.Slot.Start(),
				End:     req.Slot.End(),
				Managed: true,
			})
		}
	}
	return events, nil
}

// Calls returns a copy of the recorded calls.
func (m *MockAdapter) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallsTo returns the recorded calls of one method.
func (m *MockAdapter) CallsTo(method string) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Event returns the request behind a created event.
func (m *MockAdapter) Event(id string) (domain.EventRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.events[id]
	return req, ok
}

var (
	_ domain.Adapter  = (*MockAdapter)(nil)
	_ domain.Importer = (*MockAdapter)(nil)
)
