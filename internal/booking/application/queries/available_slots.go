package queries

import (
	"context"
	"time"

	"github.com/google/uuid"

	availability "github.com/felixgeelhaar/therapia/internal/availability/domain"
	"github.com/felixgeelhaar/therapia/internal/booking/application/services"
	catalog "github.com/felixgeelhaar/therapia/internal/catalog/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

// MaxSlotRange bounds a single availability query.
const MaxSlotRange = 31 * 24 * time.Hour

var (
	ErrInvalidRange = sharedDomain.NewValidationError("INVALID_RANGE", "from must be before to")
	ErrRangeTooLong = sharedDomain.NewValidationError("RANGE_TOO_LONG", "the range may span at most 31 days")
)

// AvailableSlotDTO is a bookable session shown to clients, in the requested
// zone. ID names the availability window; booking with it and Start selects
// this session.
type AvailableSlotDTO struct {
	ID       uuid.UUID `json:"id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	TZ       string    `json:"tz"`
	Duration int       `json:"duration_minutes"`
}

// GetAvailableSlotsQuery asks for the bookable slots of a service.
type GetAvailableSlotsQuery struct {
	ServiceID uuid.UUID
	From      time.Time
	To        time.Time
	TZ        string
}

// GetAvailableSlotsHandler handles GetAvailableSlotsQuery.
type GetAvailableSlotsHandler struct {
	services     catalog.ServiceRepository
	slots        availability.Repository
	availability *services.AvailabilityService
	clock        sharedDomain.Clock
}

// NewGetAvailableSlotsHandler creates a new GetAvailableSlotsHandler.
func NewGetAvailableSlotsHandler(
	serviceRepo catalog.ServiceRepository,
	slots availability.Repository,
	availabilityService *services.AvailabilityService,
	clock sharedDomain.Clock,
) *GetAvailableSlotsHandler {
	return &GetAvailableSlotsHandler{
		services:     serviceRepo,
		slots:        slots,
		availability: availabilityService,
		clock:        clock,
	}
}

// Handle splits the available windows of the service into sessions of its
// duration and returns those in [From, To) that have not started, are free
// in the external calendar and are not booked.
func (h *GetAvailableSlotsHandler) Handle(ctx context.Context, q GetAvailableSlotsQuery) ([]AvailableSlotDTO, error) {
	tz := q.TZ
	if tz == "" {
		tz = "UTC"
	}
	if _, err := sharedDomain.LoadLocation(tz); err != nil {
		return nil, err
	}
	if !q.From.Before(q.To) {
		return nil, ErrInvalidRange
	}
	if q.To.Sub(q.From) > MaxSlotRange {
		return nil, ErrRangeTooLong
	}

	svc, err := h.services.FindByID(ctx, q.ServiceID)
	if err != nil {
		return nil, err
	}
	if !svc.IsActive() {
		return []AvailableSlotDTO{}, nil
	}

	windows, err := h.slots.ListAvailable(ctx, svc.ID(), q.From, q.To)
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()
	out := make([]AvailableSlotDTO, 0, len(windows))
	for _, w := range windows {
		for _, session := range sessions(w.Window(), svc.Duration()) {
			if session.IsInPast(now) || !session.Start().Before(q.To) || !session.End().After(q.From) {
				continue
			}
			ok, err := h.availability.IsSlotAvailable(ctx, session, svc.ID())
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			local, err := session.In(tz)
			if err != nil {
				return nil, err
			}
			out = append(out, AvailableSlotDTO{
				ID:       w.ID(),
				Start:    local.LocalStart(),
				End:      local.LocalEnd(),
				TZ:       tz,
				Duration: local.DurationMinutes(),
			})
		}
	}
	return out, nil
}

// sessions cuts window into back-to-back slots of length d from its start.
// A remainder shorter than d is dropped.
func sessions(window sharedDomain.TimeSlot, d time.Duration) []sharedDomain.TimeSlot {
	if d <= 0 {
		return nil
	}
	var out []sharedDomain.TimeSlot
	for start := window.Start(); !start.Add(d).After(window.End()); start = start.Add(d) {
		out = append(out, sharedDomain.MustTimeSlot(start, start.Add(d), window.TZ()))
	}
	return out
}
