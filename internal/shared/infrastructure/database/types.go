package database

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// TimeLayout is the fixed-width UTC layout used for text-encoded timestamps.
// Lexical order matches chronological order, so range predicates work on
// SQLite TEXT columns.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

var parseLayouts = []string{
	TimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Time scans a timestamp regardless of whether the driver hands back a
// time.Time (pgx) or text (SQLite).
type Time struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner.
func (t *Time) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("database: cannot scan %T into Time", src)
	}
}

func (t *Time) parse(s string) error {
	for _, layout := range parseLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("database: unrecognized timestamp %q", s)
}

// Value implements driver.Valuer.
func (t Time) Value() (driver.Value, error) {
	if !t.Valid {
		return nil, nil
	}
	return t.Time.UTC(), nil
}

// Ptr returns nil for NULL timestamps.
func (t Time) Ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// NullTime converts an optional timestamp into a query argument.
func NullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// NullString converts an optional string into a query argument.
func NullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
