package application

import (
	"github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/google/uuid"
)

type metadataSetter interface {
	SetMetadata(metadata domain.EventMetadata)
}

// NewEventMetadata creates command-scoped metadata for domain events. A nil
// correlation ID starts a new correlation.
func NewEventMetadata(userID, correlationID uuid.UUID) domain.EventMetadata {
	if correlationID == uuid.Nil {
		correlationID = uuid.New()
	}
	return domain.EventMetadata{
		CorrelationID: correlationID,
		CausationID:   correlationID,
		UserID:        userID,
	}
}

// CausedBy derives metadata for events emitted while handling another event.
func CausedBy(eventID uuid.UUID, parent domain.EventMetadata) domain.EventMetadata {
	correlationID := parent.CorrelationID
	if correlationID == uuid.Nil {
		correlationID = eventID
	}
	return domain.EventMetadata{
		CorrelationID: correlationID,
		CausationID:   eventID,
		UserID:        parent.UserID,
	}
}

// ApplyEventMetadata sets metadata on all events that support it.
func ApplyEventMetadata(events []domain.DomainEvent, metadata domain.EventMetadata) {
	for _, event := range events {
		if setter, ok := event.(metadataSetter); ok {
			setter.SetMetadata(metadata)
		}
	}
}
