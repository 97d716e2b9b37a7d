package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/therapia/internal/calendar/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

var base = time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)

func hour(offset int) sharedDomain.TimeSlot {
	start := base.Add(time.Duration(offset) * time.Hour)
	return sharedDomain.MustTimeSlot(start, start.Add(time.Hour), "UTC")
}

func TestMockAdapter_IsFree(t *testing.T) {
	ctx := context.Background()
	m := NewMockAdapter()

	free, err := m.IsFree(ctx, hour(0))
	require.NoError(t, err)
	assert.True(t, free)

	m.MarkBusy(hour(1))
	free, err = m.IsFree(ctx, hour(1))
	require.NoError(t, err)
	assert.False(t, free)

	free, err = m.IsFree(ctx, hour(2))
	require.NoError(t, err)
	assert.True(t, free)

	assert.Len(t, m.CallsTo("IsFree"), 3)
}

func TestMockAdapter_CreateAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMockAdapter()
	req := domain.EventRequest{AppointmentID: uuid.New(), Slot: hour(0), Summary: "Session"}

	id, err := m.CreateEvent(ctx, req)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "mock-"))

	stored, ok := m.Event(id)
	require.True(t, ok)
	assert.Equal(t, req.AppointmentID, stored.AppointmentID)

	events, err := m.ListEvents(ctx, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Managed)

	require.NoError(t, m.DeleteEvent(ctx, id))
	_, ok = m.Event(id)
	assert.False(t, ok)
}

func TestMockAdapter_Errors(t *testing.T) {
	ctx := context.Background()
	m := NewMockAdapter()
	m.CreateErrs = []error{domain.Transient(errors.New("503"))}

	_, err := m.CreateEvent(ctx, domain.EventRequest{Slot: hour(0)})
	assert.True(t, domain.IsTransient(err))

	_, err = m.CreateEvent(ctx, domain.EventRequest{Slot: hour(0)})
	assert.NoError(t, err)

	m.Err = errors.New("down")
	_, err = m.IsFree(ctx, hour(0))
	assert.Error(t, err)
}
