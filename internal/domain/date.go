package domain

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar date pinned to UTC midnight, the resolution all daily
// observations and derived values use. The embedded time.Time is always
// normalized, so arithmetic through AddDays stays exact across DST-free UTC.
type Date struct {
	time.Time
}

// NewDate builds a Date from calendar components. Out-of-range components are
// normalized the way time.Date normalizes them; use AlignedTo when a
// nonexistent date must be detected instead of rolled over.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its UTC calendar date.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

// ParseDate parses a YYYY-MM-DD string. Malformed input wraps ErrInvalidParameter.
func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return Date{}, fmt.Errorf("%w: malformed date %q", ErrInvalidParameter, s)
	}
	return Date{t}, nil
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON encodes the date as a bare YYYY-MM-DD string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes a YYYY-MM-DD string.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("date must be a JSON string, got %s", s)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// AddDays returns the date shifted by n calendar days (n may be negative).
func (d Date) AddDays(n int) Date {
	return Date{d.Time.AddDate(0, 0, n)}
}

// DaysSince returns the number of calendar days from other to d.
func (d Date) DaysSince(other Date) int {
	return int(d.Sub(other.Time) / (24 * time.Hour))
}

// AlignedTo returns the same month/day in another year. The second return is
// false when that calendar date does not exist (Feb 29 outside leap years);
// callers must skip such years rather than approximate, because time.Date
// would silently normalize Feb 29 to Mar 1.
func (d Date) AlignedTo(year int) (Date, bool) {
	aligned := NewDate(year, d.Month(), d.Day())
	if aligned.Month() != d.Month() || aligned.Day() != d.Day() {
		return Date{}, false
	}
	return aligned, true
}
