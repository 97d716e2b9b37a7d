package domain

import sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"

var (
	ErrAppointmentNotFound    = sharedDomain.NewNotFoundError("APPOINTMENT_NOT_FOUND", "appointment not found")
	ErrSlotConflict           = sharedDomain.NewConflictError("SLOT_CONFLICT", "the requested time is no longer available")
	ErrSlotInPast             = sharedDomain.NewValidationError("SLOT_IN_PAST", "the requested time has already started")
	ErrSlotDuration           = sharedDomain.NewValidationError("SLOT_DURATION_MISMATCH", "the slot length does not match the service duration")
	ErrFormatNotSupported     = sharedDomain.NewValidationError("FORMAT_NOT_SUPPORTED", "the service is not offered in this format")
	ErrOwnerRequired          = sharedDomain.NewValidationError("OWNER_REQUIRED", "exactly one of client_id or anonymous_id is required")
	ErrServiceInactive        = sharedDomain.NewBusinessRuleError("SERVICE_INACTIVE", "the service does not accept bookings")
	ErrServiceMismatch        = sharedDomain.NewValidationError("SERVICE_MISMATCH", "the appointment belongs to another service")
	ErrInvalidTransition      = sharedDomain.NewConflictError("APPOINTMENT_INVALID_TRANSITION", "the appointment cannot make this transition")
	ErrAlreadyTerminal        = sharedDomain.NewConflictError("APPOINTMENT_TERMINAL", "the appointment is already closed")
	ErrPaymentNotSucceeded    = sharedDomain.NewBusinessRuleError("PAYMENT_NOT_SUCCEEDED", "payment has not succeeded")
	ErrPaymentAmountMismatch  = sharedDomain.NewBusinessRuleError("PAYMENT_AMOUNT_MISMATCH", "payment amount mismatch")
	ErrPaymentMismatch        = sharedDomain.NewBusinessRuleError("PAYMENT_APPOINTMENT_MISMATCH", "payment belongs to another appointment")
	ErrRescheduleWindowClosed = sharedDomain.NewBusinessRuleError("RESCHEDULE_WINDOW_CLOSED", "too late to reschedule this appointment")
	ErrSessionNotEnded        = sharedDomain.NewBusinessRuleError("SESSION_NOT_ENDED", "the session has not ended yet")
	ErrInvalidOutcome         = sharedDomain.NewValidationError("INVALID_OUTCOME", "unknown appointment outcome")
	ErrCancellationReason     = sharedDomain.NewValidationError("CANCELLATION_REASON_REQUIRED", "a cancellation reason is required")
	ErrInvalidStatus          = sharedDomain.NewValidationError("INVALID_APPOINTMENT_STATUS", "unknown appointment status")
	ErrSlotRequired           = sharedDomain.NewValidationError("SLOT_REQUIRED", "either slot_id or start and end are required")
)
