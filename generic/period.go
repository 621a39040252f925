package generic

// =============================================================================
// PERIOD - Inclusive range of calendar days
// =============================================================================

// Period is an inclusive day range [Start, End].
//
// Examples:
//   - A leave block: 2025-03-10 .. 2025-03-14
//   - A week window: Monday .. last configured workday
type Period struct {
	Start Date
	End   Date
}

// Validate returns ErrInvalidPeriod when End is before Start.
func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// Contains returns true if the day is within the period [Start, End]
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Days returns every calendar day in the period, in order.
func (p Period) Days() []Date {
	var days []Date
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// Len returns the number of calendar days in the period (0 if invalid).
func (p Period) Len() int {
	if p.End.Before(p.Start) {
		return 0
	}
	return DaysBetween(p.Start, p.End) + 1
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
