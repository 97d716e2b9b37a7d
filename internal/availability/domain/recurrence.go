package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/teambition/rrule-go"
)

// MaxOccurrences bounds a single recurrence expansion.
const MaxOccurrences = 366

var (
	ErrEndBeforeStart     = sharedDomain.NewValidationError("RECURRENCE_END_BEFORE_START", "recurrence end date precedes start")
	ErrTooManyOccurrences = sharedDomain.NewValidationError("TOO_MANY_OCCURRENCES", "recurrence expands to more than 366 slots")
	ErrInvalidFrequency   = sharedDomain.NewValidationError("INVALID_FREQUENCY", "frequency must be daily, weekly or weekdays")
	ErrInvalidInterval    = sharedDomain.NewValidationError("INVALID_INTERVAL", "interval must be at least 1")
)

// Frequency is how often a window repeats.
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyWeekdays Frequency = "weekdays"
)

// Recurrence repeats a window until EndDate. EndDate is read as a calendar
// date in the window's time zone and is inclusive.
type Recurrence struct {
	Frequency Frequency
	Interval  int
	EndDate   time.Time
}

// Expand materializes the windows of a recurring availability. The local
// wall-clock start and duration of first are kept for every instance; the
// UTC instants are recomputed per day so DST transitions are honored.
func Expand(first sharedDomain.TimeSlot, rec *Recurrence) ([]sharedDomain.TimeSlot, error) {
	if rec == nil {
		return []sharedDomain.TimeSlot{first}, nil
	}
	if rec.Interval < 1 {
		return nil, ErrInvalidInterval
	}

	loc, err := sharedDomain.LoadLocation(first.TZ())
	if err != nil {
		return nil, err
	}

	localStart := first.Start().In(loc)
	localEnd := first.End().In(loc)
	wallStart := naive(localStart)
	wallDuration := naive(localEnd).Sub(wallStart)

	endDate := rec.EndDate.In(loc)
	until := time.Date(endDate.Year(), endDate.Month(), endDate.Day(), 23, 59, 59, 0, time.UTC)
	if until.Before(wallStart) {
		return nil, ErrEndBeforeStart
	}

	opt := rrule.ROption{
		Dtstart: wallStart,
		Until:   until,
	}
	step := 1
	switch rec.Frequency {
	case FrequencyDaily:
		opt.Freq = rrule.DAILY
		opt.Interval = rec.Interval
	case FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
		opt.Interval = rec.Interval
	case FrequencyWeekdays:
		opt.Freq = rrule.DAILY
		opt.Interval = 1
		opt.Byweekday = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR}
		step = rec.Interval
	default:
		return nil, ErrInvalidFrequency
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, sharedDomain.NewValidationError("INVALID_RECURRENCE", "invalid recurrence").Wrap(err)
	}

	var slots []sharedDomain.TimeSlot
	next := rule.Iterator()
	for i := 0; ; i++ {
		day, ok := next()
		if !ok {
			break
		}
		if i%step != 0 {
			continue
		}
		if len(slots) == MaxOccurrences {
			return nil, ErrTooManyOccurrences
		}

		start := ResolveWallClock(day, loc)
		end := ResolveWallClock(day.Add(wallDuration), loc)
		if !end.After(start) {
			end = start.Add(wallDuration)
		}
		slot, err := sharedDomain.NewTimeSlot(start, end, first.TZ())
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// naive re-labels a local wall-clock reading as UTC so calendar arithmetic
// ignores offsets.
func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// ResolveWallClock maps the wall-clock reading of wall (labelled UTC) to an
// instant in loc. Ambiguous readings resolve to the later instant; readings
// inside a spring-forward gap move to the first valid instant after it.
func ResolveWallClock(wall time.Time, loc *time.Location) time.Time {
	var (
		best  time.Time
		found bool
	)
	for _, probe := range []time.Time{wall.Add(-36 * time.Hour), wall, wall.Add(36 * time.Hour)} {
		_, offset := probe.In(loc).Zone()
		candidate := wall.Add(-time.Duration(offset) * time.Second).In(loc)
		if naive(candidate).Equal(wall) && (!found || candidate.After(best)) {
			best = candidate
			found = true
		}
	}
	if found {
		return best.UTC()
	}

	// The reading falls in a gap. Interpreting it with the offset in force
	// before the gap lands after the transition; the zone period containing
	// that instant starts at the first valid wall-clock time.
	_, before := wall.Add(-36 * time.Hour).In(loc).Zone()
	shifted := wall.Add(-time.Duration(before) * time.Second).In(loc)
	start, _ := shifted.ZoneBounds()
	if start.IsZero() {
		return shifted.UTC()
	}
	return start.UTC()
}
