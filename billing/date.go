package billing

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DATE - Calendar date without time of day
// =============================================================================

const dateLayout = "2006-01-02"

// Date is a calendar day, stored as UTC midnight.
type Date struct {
	Time time.Time
}

func NewDate(year int, month Month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the time-of-day part of t, keeping the calendar day in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), Month(t.Month()), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q (use YYYY-MM-DD)", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(o Date) bool        { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool         { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool         { return d.Time.Equal(o.Time) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.After(o) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.Before(o) }

// Arithmetic
func (d Date) AddDays(n int) Date { return DateOf(d.Time.AddDate(0, 0, n)) }

// AddMonths moves to the first day of the month n months away.
// Anchoring on day 1 avoids time.AddDate normalising Jan 31 + 1 month into March.
func (d Date) AddMonths(n int) Date {
	first := time.Date(d.Time.Year(), d.Time.Month(), 1, 0, 0, 0, 0, time.UTC)
	return DateOf(first.AddDate(0, n, 0))
}

// Properties
func (d Date) Year() int     { return d.Time.Year() }
func (d Date) Month() Month  { return Month(d.Time.Month()) }
func (d Date) Day() int      { return d.Time.Day() }
func (d Date) IsZero() bool  { return d.Time.IsZero() }
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// CLOCK - Injected "today"
// =============================================================================

// Clock returns the current instant. A nil Clock means time.Now.
type Clock func() time.Time

func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

func (c Clock) Today() Date { return DateOf(c.Now()) }

// FixedClock always reports the given day at noon UTC.
func FixedClock(d Date) Clock {
	return func() time.Time { return d.Time.Add(12 * time.Hour) }
}
