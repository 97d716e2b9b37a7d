package domain

import (
	"regexp"
	"strings"
	"time"

	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/google/uuid"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var (
	ErrServiceNotFound         = sharedDomain.NewNotFoundError("SERVICE_NOT_FOUND", "service not found")
	ErrDuplicateSlug           = sharedDomain.NewConflictError("DUPLICATE_SLUG", "a service with this slug already exists")
	ErrInvalidSlug             = sharedDomain.NewValidationError("INVALID_SLUG", "slug must be lowercase words separated by dashes")
	ErrEmptyName               = sharedDomain.NewValidationError("EMPTY_NAME", "service name is required")
	ErrInvalidDuration         = sharedDomain.NewValidationError("INVALID_DURATION", "duration must be positive")
	ErrInvalidFormat           = sharedDomain.NewValidationError("INVALID_FORMAT", "unsupported session format")
	ErrNoFormats               = sharedDomain.NewValidationError("NO_FORMATS", "at least one session format is required")
	ErrInvalidPolicy           = sharedDomain.NewValidationError("INVALID_CANCELLATION_POLICY", "cancellation windows must satisfy free >= partial >= 0")
	ErrInvalidRescheduleWindow = sharedDomain.NewValidationError("INVALID_RESCHEDULE_WINDOW", "reschedule window must not be negative")
	ErrInvalidDeposit          = sharedDomain.NewValidationError("INVALID_DEPOSIT", "deposit must be positive, in the price currency and not above the price")
	ErrZeroPrice               = sharedDomain.NewValidationError("INVALID_PRICE", "price must be positive")
)

// Format is the way a session is held.
type Format string

const (
	FormatOnline  Format = "online"
	FormatOffline Format = "offline"
	FormatHybrid  Format = "hybrid"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatOnline, FormatOffline, FormatHybrid:
		return f, nil
	default:
		return "", ErrInvalidFormat.WithMessage("unsupported session format %q", s)
	}
}

// Policy holds the time windows governing refunds and rescheduling.
type Policy struct {
	CancelFreeHours    int
	CancelPartialHours int
	RescheduleMinHours int
}

// Validate checks free >= partial >= 0 and a non-negative reschedule window.
func (p Policy) Validate() error {
	if p.CancelPartialHours < 0 || p.CancelFreeHours < p.CancelPartialHours {
		return ErrInvalidPolicy
	}
	if p.RescheduleMinHours < 0 {
		return ErrInvalidRescheduleWindow
	}
	return nil
}

// ServiceParams carries the mutable attributes of a service.
type ServiceParams struct {
	Slug            string
	Name            string
	Price           sharedDomain.Money
	Deposit         *sharedDomain.Money
	DurationMinutes int
	Formats         []Format
	Policy          Policy
}

func (p ServiceParams) validate() error {
	if !slugPattern.MatchString(p.Slug) {
		return ErrInvalidSlug
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if p.Price.IsZero() {
		return ErrZeroPrice
	}
	if p.DurationMinutes <= 0 {
		return ErrInvalidDuration
	}
	if len(p.Formats) == 0 {
		return ErrNoFormats
	}
	for _, f := range p.Formats {
		if _, err := ParseFormat(string(f)); err != nil {
			return err
		}
	}
	if err := p.Policy.Validate(); err != nil {
		return err
	}
	if p.Deposit != nil {
		d := *p.Deposit
		if d.IsZero() || d.Currency() != p.Price.Currency() || d.Amount().GreaterThan(p.Price.Amount()) {
			return ErrInvalidDeposit
		}
	}
	return nil
}

// Service is a bookable offering of the practice.
type Service struct {
	sharedDomain.BaseAggregateRoot
	slug            string
	name            string
	price           sharedDomain.Money
	deposit         *sharedDomain.Money
	durationMinutes int
	formats         []Format
	policy          Policy
	active          bool
}

// NewService creates an active service.
func NewService(id uuid.UUID, params ServiceParams, now time.Time) (*Service, error) {
	params.Slug = strings.TrimSpace(params.Slug)
	if err := params.validate(); err != nil {
		return nil, err
	}
	s := &Service{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(id, now),
		active:            true,
	}
	s.apply(params)
	s.AddDomainEvent(NewServiceCreated(s, now))
	return s, nil
}

// Update replaces the service attributes.
func (s *Service) Update(params ServiceParams, now time.Time) error {
	params.Slug = strings.TrimSpace(params.Slug)
	if err := params.validate(); err != nil {
		return err
	}
	s.apply(params)
	s.Touch(now)
	s.AddDomainEvent(NewServiceUpdated(s, now))
	return nil
}

// SetActive toggles whether the service accepts new bookings.
func (s *Service) SetActive(active bool, now time.Time) {
	if s.active == active {
		return
	}
	s.active = active
	s.Touch(now)
	s.AddDomainEvent(NewServiceUpdated(s, now))
}

func (s *Service) apply(p ServiceParams) {
	s.slug = p.Slug
	s.name = strings.TrimSpace(p.Name)
	s.price = p.Price
	s.deposit = p.Deposit
	s.durationMinutes = p.DurationMinutes
	s.formats = dedupeFormats(p.Formats)
	s.policy = p.Policy
}

func dedupeFormats(in []Format) []Format {
	seen := make(map[Format]struct{}, len(in))
	out := make([]Format, 0, len(in))
	for _, f := range in {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func (s *Service) Slug() string                 { return s.slug }
func (s *Service) Name() string                 { return s.name }
func (s *Service) Price() sharedDomain.Money    { return s.price }
func (s *Service) DurationMinutes() int         { return s.durationMinutes }
func (s *Service) Policy() Policy               { return s.policy }
func (s *Service) IsActive() bool               { return s.active }
func (s *Service) Duration() time.Duration      { return time.Duration(s.durationMinutes) * time.Minute }
func (s *Service) Formats() []Format            { return append([]Format(nil), s.formats...) }
func (s *Service) Deposit() *sharedDomain.Money { return s.deposit }

// SupportsFormat reports whether f is offered.
func (s *Service) SupportsFormat(f Format) bool {
	for _, sf := range s.formats {
		if sf == f {
			return true
		}
	}
	return false
}

// AcceptsPayment reports whether amount settles the service: either the full
// price or the configured deposit.
func (s *Service) AcceptsPayment(amount sharedDomain.Money) bool {
	if amount.Equals(s.price) {
		return true
	}
	return s.deposit != nil && amount.Equals(*s.deposit)
}

// RehydrateService recreates a service from persistence.
func RehydrateService(
	id uuid.UUID,
	params ServiceParams,
	active bool,
	createdAt, updatedAt time.Time,
	version int,
) *Service {
	s := &Service{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(
			sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt), version,
		),
		active: active,
	}
	s.apply(params)
	return s
}
