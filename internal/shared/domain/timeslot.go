package domain

import (
	"time"
)

var (
	ErrInvalidTimeSlot = NewValidationError("INVALID_TIME_SLOT", "slot end must be after start")
	ErrInvalidTimeZone = NewValidationError("INVALID_TIMEZONE", "unknown IANA time zone")
)

// TimeSlot is a half-open interval [start, end) of UTC instants. The time zone
// label is display information only.
type TimeSlot struct {
	start time.Time
	end   time.Time
	tz    string
}

// NewTimeSlot creates a slot. tz defaults to UTC and must be a known IANA zone.
func NewTimeSlot(start, end time.Time, tz string) (TimeSlot, error) {
	if tz == "" {
		tz = "UTC"
	}
	if _, err := LoadLocation(tz); err != nil {
		return TimeSlot{}, err
	}
	start, end = start.UTC(), end.UTC()
	if !end.After(start) {
		return TimeSlot{}, ErrInvalidTimeSlot
	}
	return TimeSlot{start: start, end: end, tz: tz}, nil
}

// MustTimeSlot is NewTimeSlot for values known to be valid.
func MustTimeSlot(start, end time.Time, tz string) TimeSlot {
	s, err := NewTimeSlot(start, end, tz)
	if err != nil {
		panic(err)
	}
	return s
}

// LoadLocation resolves an IANA zone name.
func LoadLocation(tz string) (*time.Location, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, ErrInvalidTimeZone.WithMessage("unknown time zone %q", tz)
	}
	return loc, nil
}

func (s TimeSlot) Start() time.Time { return s.start }
func (s TimeSlot) End() time.Time   { return s.end }
func (s TimeSlot) TZ() string       { return s.tz }

// Overlaps reports whether the two half-open intervals intersect.
func (s TimeSlot) Overlaps(other TimeSlot) bool {
	return s.start.Before(other.end) && other.start.Before(s.end)
}

// Contains reports whether other lies entirely within s.
func (s TimeSlot) Contains(other TimeSlot) bool {
	return !other.start.Before(s.start) && !other.end.After(s.end)
}

// Duration returns end - start.
func (s TimeSlot) Duration() time.Duration { return s.end.Sub(s.start) }

// DurationMinutes returns the length in whole minutes.
func (s TimeSlot) DurationMinutes() int { return int(s.Duration() / time.Minute) }

// HoursUntil is the fractional number of hours from now to start; negative
// once the slot has begun.
func (s TimeSlot) HoursUntil(now time.Time) float64 {
	return s.start.Sub(now).Hours()
}

// IsInPast reports whether the slot has already started.
func (s TimeSlot) IsInPast(now time.Time) bool {
	return !s.start.After(now)
}

// HasEnded reports whether end <= now.
func (s TimeSlot) HasEnded(now time.Time) bool {
	return !s.end.After(now)
}

// In projects the slot into another zone for display.
func (s TimeSlot) In(tz string) (TimeSlot, error) {
	if _, err := LoadLocation(tz); err != nil {
		return TimeSlot{}, err
	}
	return TimeSlot{start: s.start, end: s.end, tz: tz}, nil
}

// LocalStart returns start in the slot's own zone.
func (s TimeSlot) LocalStart() time.Time {
	loc, err := time.LoadLocation(s.tz)
	if err != nil {
		return s.start
	}
	return s.start.In(loc)
}

// LocalEnd returns end in the slot's own zone.
func (s TimeSlot) LocalEnd() time.Time {
	loc, err := time.LoadLocation(s.tz)
	if err != nil {
		return s.end
	}
	return s.end.In(loc)
}

// Equals compares start, end and zone label.
func (s TimeSlot) Equals(other TimeSlot) bool {
	return s.start.Equal(other.start) && s.end.Equal(other.end) && s.tz == other.tz
}

// SameInterval ignores the zone label.
func (s TimeSlot) SameInterval(other TimeSlot) bool {
	return s.start.Equal(other.start) && s.end.Equal(other.end)
}
