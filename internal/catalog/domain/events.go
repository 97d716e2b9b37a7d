package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

const (
	AggregateType = "service"

	RoutingKeyServiceCreated = "catalog.service.created"
	RoutingKeyServiceUpdated = "catalog.service.updated"
)

// ServiceChanged carries a snapshot of the service after a change.
type ServiceChanged struct {
	sharedDomain.BaseEvent
	Slug            string `json:"slug"`
	Name            string `json:"name"`
	Price           string `json:"price"`
	Currency        string `json:"currency"`
	DurationMinutes int    `json:"duration_minutes"`
	Active          bool   `json:"active"`
}

func newServiceChanged(s *Service, routingKey string, now time.Time) ServiceChanged {
	return ServiceChanged{
		BaseEvent:       sharedDomain.NewBaseEvent(s.ID(), AggregateType, routingKey, now),
		Slug:            s.slug,
		Name:            s.name,
		Price:           s.price.AmountString(),
		Currency:        s.price.Currency(),
		DurationMinutes: s.durationMinutes,
		Active:          s.active,
	}
}

// NewServiceCreated creates a catalog.service.created event.
func NewServiceCreated(s *Service, now time.Time) *ServiceChanged {
	e := newServiceChanged(s, RoutingKeyServiceCreated, now)
	return &e
}

// NewServiceUpdated creates a catalog.service.updated event.
func NewServiceUpdated(s *Service, now time.Time) *ServiceChanged {
	e := newServiceChanged(s, RoutingKeyServiceUpdated, now)
	return &e
}
