package mcp

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04"
	defaultDays    = 7
)

func parseUUID(value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.UUID{}, errors.New("id is required")
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid id: %w", err)
	}
	return id, nil
}

func parseOptionalUUID(value string) (*uuid.UUID, error) {
	if value == "" {
		return nil, nil
	}
	id, err := parseUUID(value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// parseDateTime reads RFC 3339, "YYYY-MM-DD HH:MM" or a bare date in tz.
func parseDateTime(value, tz string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	loc, err := sharedDomain.LoadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}
	for _, layout := range []string{dateTimeLayout, dateLayout} {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q, use RFC 3339, YYYY-MM-DD HH:MM or YYYY-MM-DD", value)
}

// dayRange resolves from/to with a default span of days starting at now.
func dayRange(from, to, tz string, now time.Time, days int) (time.Time, time.Time, error) {
	if days <= 0 {
		days = defaultDays
	}
	start, err := parseDateTime(from, tz, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDateTime(to, tz, start.AddDate(0, 0, days))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
