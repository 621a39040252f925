/*
week.go - Week windows and offset resolution

PURPOSE:
  Turns (reference instant, offset) into the dates of one work week.
  Offset 0 is the week holding today; -1 the previous one, +1 the next.

WINDOW:
  DaysPerWeek consecutive dates starting on the Monday of the week, read
  in the configured location. Windows are derived, never persisted.

SEE ALSO:
  - service.go: Resolves a window for every operation
  - validate.go: Checks cells against the window and today
*/
package timesheet

import (
	"fmt"
	"time"

	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
)

// =============================================================================
// WEEK WINDOW - The dates of one schedulable work week
// =============================================================================

// WeekWindow is DaysPerWeek consecutive dates starting on a Monday.
// Derived from (reference instant, offset); never persisted.
type WeekWindow struct {
	Offset int
	Dates  []generic.Date
}

func (w WeekWindow) Start() generic.Date {
	if len(w.Dates) == 0 {
		return generic.Date{}
	}
	return w.Dates[0]
}

func (w WeekWindow) End() generic.Date {
	if len(w.Dates) == 0 {
		return generic.Date{}
	}
	return w.Dates[len(w.Dates)-1]
}

func (w WeekWindow) Contains(d generic.Date) bool {
	for _, x := range w.Dates {
		if x == d {
			return true
		}
	}
	return false
}

func (w WeekWindow) Period() generic.Period {
	return generic.Period{Start: w.Start(), End: w.End()}
}

// Label renders "Week of dd/mm to dd/mm".
func (w WeekWindow) Label() string {
	return fmt.Sprintf("Week of %s to %s", w.Start().ShortLabel(), w.End().ShortLabel())
}

// =============================================================================
// RESOLVER
// =============================================================================

// WeekResolver maps a signed week offset from a reference instant to a window.
// It holds no state besides configuration; navigation limits belong to the caller.
type WeekResolver struct {
	daysPerWeek int
	loc         *time.Location
}

// NewWeekResolver resolves weeks in loc (UTC when nil).
func NewWeekResolver(cfg Config, loc *time.Location) *WeekResolver {
	if loc == nil {
		loc = time.UTC
	}
	return &WeekResolver{daysPerWeek: cfg.DaysPerWeek, loc: loc}
}

func (r *WeekResolver) Location() *time.Location { return r.loc }

// ResolveWeek returns the window offsetWeeks away from the week containing ref.
// The reference is pinned to local noon before any day arithmetic so DST
// transitions and UTC offsets never move it across a date boundary.
func (r *WeekResolver) ResolveWeek(ref time.Time, offsetWeeks int) WeekWindow {
	local := ref.In(r.loc)
	noon := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, r.loc)
	shifted := noon.AddDate(0, 0, offsetWeeks*7)
	monday := shifted.AddDate(0, 0, -((int(shifted.Weekday()) + 6) % 7))

	start := generic.DateOf(monday)
	dates := make([]generic.Date, r.daysPerWeek)
	for i := range dates {
		dates[i] = start.AddDays(i)
	}
	return WeekWindow{Offset: offsetWeeks, Dates: dates}
}

// Today returns the calendar date of ref in the resolver's location.
func (r *WeekResolver) Today(ref time.Time) generic.Date {
	return generic.DateOf(ref.In(r.loc))
}

// CurrentMonday returns the Monday of the week containing ref.
func (r *WeekResolver) CurrentMonday(ref time.Time) generic.Date {
	return r.Today(ref).WeekStart()
}
