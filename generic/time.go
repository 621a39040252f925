package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day abstraction (timesheets are keyed by day, never by instant)
// =============================================================================

// Date is a calendar day. It is stored as midnight UTC so that two Dates for
// the same day compare equal with == and can be used as map keys.
type Date struct {
	t time.Time
}

const dateLayout = "2006-01-02"

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t as observed in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses an ISO date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for tests and static tables.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Properties
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) Time() time.Time       { return d.t }
func (d Date) IsZero() bool          { return d.t.IsZero() }
func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// WeekdayIndex returns the day's position in a Monday-anchored week (Monday=0, Sunday=6).
func (d Date) WeekdayIndex() int { return (int(d.Weekday()) + 6) % 7 }

// WeekStart returns the Monday of the week containing d.
func (d Date) WeekStart() Date { return d.AddDays(-d.WeekdayIndex()) }

func (d Date) String() string { return d.t.Format(dateLayout) }

// Format formats the day with a time layout.
func (d Date) Format(layout string) string { return d.t.Format(layout) }

// ShortLabel renders "dd/mm".
func (d Date) ShortLabel() string { return d.t.Format("02/01") }

// LongLabel renders "dd/mm/yyyy".
func (d Date) LongLabel() string { return d.t.Format("02/01/2006") }

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysBetween returns the number of calendar days from one date to another.
func DaysBetween(from, to Date) int { return int(to.t.Sub(from.t).Hours() / 24) }
