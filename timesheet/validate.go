/*
validate.go - Hour validation rules over a proposed week matrix

PURPOSE:
  Checks a (project x date) hours matrix against the week window before it
  is saved or submitted. Every rule runs independently and every violation
  is collected; nothing short-circuits.

RULES:
  Always (draft and submit):
    InvalidHours            cell is negative or not a multiple of 0.5
    DailyCapExceeded        day total across projects > DailyCap(date)
    HolidayEntryNotAllowed  day total on a holiday is nonzero

  Submit only:
    EmptyWorkday            non-holiday day with a zero total
    WeekIncomplete          sum over non-holiday days < sum of their caps

FUTURE DATES:
  When Today falls inside the window (the current week), days strictly
  after Today are skipped by the submit-only rules. A window starting after
  Today is rejected whole with DateNotEditable in both modes.

DETERMINISM:
  Totals are decimal sums and the output is sorted by date, then kind, then
  project, so permuting project order never changes the result.

SEE ALSO:
  - calendar.go: IsHoliday / DailyCap
  - errors.go: ValidationError
*/
package timesheet

import (
	"fmt"
	"sort"

	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
)

// =============================================================================
// HOURS MATRIX
// =============================================================================

// HoursMatrix holds staged hours per project and date. Missing cells are zero.
type HoursMatrix map[generic.ProjectCode]map[generic.Date]generic.Hours

func (m HoursMatrix) Set(project generic.ProjectCode, d generic.Date, h generic.Hours) {
	row, ok := m[project]
	if !ok {
		row = make(map[generic.Date]generic.Hours)
		m[project] = row
	}
	row[d] = h
}

func (m HoursMatrix) Get(project generic.ProjectCode, d generic.Date) generic.Hours {
	if h, ok := m[project][d]; ok {
		return h
	}
	return generic.ZeroHours()
}

// DayTotal sums a date across all projects.
func (m HoursMatrix) DayTotal(d generic.Date) generic.Hours {
	total := generic.ZeroHours()
	for _, row := range m {
		if h, ok := row[d]; ok {
			total = total.Add(h)
		}
	}
	return total
}

// ProjectTotal sums a project over the given dates.
func (m HoursMatrix) ProjectTotal(project generic.ProjectCode, dates []generic.Date) generic.Hours {
	total := generic.ZeroHours()
	for _, d := range dates {
		total = total.Add(m.Get(project, d))
	}
	return total
}

// Projects returns the project codes in sorted order.
func (m HoursMatrix) Projects() []generic.ProjectCode {
	codes := make([]generic.ProjectCode, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Overlay returns a copy of m with every cell of other written over it.
func (m HoursMatrix) Overlay(other HoursMatrix) HoursMatrix {
	out := make(HoursMatrix, len(m))
	for project, row := range m {
		for d, h := range row {
			out.Set(project, d, h)
		}
	}
	for project, row := range other {
		for d, h := range row {
			out.Set(project, d, h)
		}
	}
	return out
}

// MatrixFromEntries builds a matrix from stored rows.
func MatrixFromEntries(entries []generic.TimeEntry) HoursMatrix {
	m := make(HoursMatrix)
	for _, e := range entries {
		m.Set(e.Project, e.Date, e.Hours)
	}
	return m
}

// =============================================================================
// VIOLATIONS
// =============================================================================

type ViolationKind string

const (
	ViolationDailyCapExceeded       ViolationKind = "daily_cap_exceeded"
	ViolationHolidayEntryNotAllowed ViolationKind = "holiday_entry_not_allowed"
	ViolationInvalidHours           ViolationKind = "invalid_hours"
	ViolationEmptyWorkday           ViolationKind = "empty_workday"
	ViolationWeekIncomplete         ViolationKind = "week_incomplete"
	ViolationDateNotEditable        ViolationKind = "date_not_editable"
	ViolationInvalidPeriod          ViolationKind = "invalid_period"
	ViolationNoBusinessDays         ViolationKind = "no_business_days"
	ViolationUnknownReason          ViolationKind = "unknown_reason"
)

var kindRank = map[ViolationKind]int{
	ViolationInvalidPeriod:          0,
	ViolationUnknownReason:          1,
	ViolationNoBusinessDays:         2,
	ViolationDateNotEditable:        3,
	ViolationInvalidHours:           4,
	ViolationHolidayEntryNotAllowed: 5,
	ViolationDailyCapExceeded:       6,
	ViolationEmptyWorkday:           7,
	ViolationWeekIncomplete:         8,
}

// Violation is one broken rule. Date is zero for week-level violations.
// Actual and Limit carry the day/week total and the cap or expected total.
type Violation struct {
	Kind    ViolationKind
	Date    generic.Date
	Project generic.ProjectCode
	Actual  generic.Hours
	Limit   generic.Hours
}

func (v Violation) String() string {
	switch v.Kind {
	case ViolationDailyCapExceeded:
		return fmt.Sprintf("%s: %sh exceeds the %sh daily cap", v.Date.LongLabel(), v.Actual, v.Limit)
	case ViolationHolidayEntryNotAllowed:
		return fmt.Sprintf("%s is a holiday, no hours may be entered (got %sh)", v.Date.LongLabel(), v.Actual)
	case ViolationInvalidHours:
		return fmt.Sprintf("%s on %s: %sh is not a non-negative multiple of 0.5", v.Project, v.Date.LongLabel(), v.Actual)
	case ViolationEmptyWorkday:
		return fmt.Sprintf("%s has no hours entered", v.Date.LongLabel())
	case ViolationWeekIncomplete:
		return fmt.Sprintf("week has %sh of the %sh required", v.Actual, v.Limit)
	case ViolationDateNotEditable:
		return fmt.Sprintf("%s cannot be edited in this week", v.Date.LongLabel())
	case ViolationInvalidPeriod:
		return "end date is before start date"
	case ViolationNoBusinessDays:
		return "the selected range contains no business days"
	case ViolationUnknownReason:
		return "unknown leave reason"
	}
	return string(v.Kind)
}

func sortViolations(vs []Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i], vs[j]
		if a.Date != b.Date {
			// Week-level violations (zero date) go last.
			if a.Date.IsZero() || b.Date.IsZero() {
				return b.Date.IsZero()
			}
			return a.Date.Before(b.Date)
		}
		if a.Kind != b.Kind {
			return kindRank[a.Kind] < kindRank[b.Kind]
		}
		return a.Project < b.Project
	})
}

// =============================================================================
// VALIDATE
// =============================================================================

type ValidationMode int

const (
	ModeDraft ValidationMode = iota
	ModeSubmit
)

type ValidationInput struct {
	Matrix   HoursMatrix
	Window   WeekWindow
	Calendar *HolidayCalendar
	Today    generic.Date
	Mode     ValidationMode
}

// Validate returns every violation of the matrix over the window, sorted.
// Cells outside the window are ignored. A window that starts after today
// is not editable at all and yields a single DateNotEditable.
func Validate(in ValidationInput) []Violation {
	if start := in.Window.Start(); start.After(in.Today) {
		return []Violation{{Kind: ViolationDateNotEditable, Date: start}}
	}

	var out []Violation
	currentWeek := in.Window.Contains(in.Today)
	projects := in.Matrix.Projects()
	actual, expected := generic.ZeroHours(), generic.ZeroHours()

	for _, day := range in.Window.Dates {
		holiday := in.Calendar.IsHoliday(day)
		limit := in.Calendar.DailyCap(day)

		total := generic.ZeroHours()
		for _, project := range projects {
			h := in.Matrix.Get(project, day)
			if !h.Valid() {
				out = append(out, Violation{Kind: ViolationInvalidHours, Date: day, Project: project, Actual: h})
			}
			total = total.Add(h)
		}

		if holiday && !total.IsZero() {
			out = append(out, Violation{Kind: ViolationHolidayEntryNotAllowed, Date: day, Actual: total})
		}
		if total.GreaterThan(limit) {
			out = append(out, Violation{Kind: ViolationDailyCapExceeded, Date: day, Actual: total, Limit: limit})
		}

		if in.Mode != ModeSubmit || holiday {
			continue
		}
		if currentWeek && day.After(in.Today) {
			continue
		}
		actual = actual.Add(total)
		expected = expected.Add(limit)
		if total.IsZero() {
			out = append(out, Violation{Kind: ViolationEmptyWorkday, Date: day})
		}
	}

	if in.Mode == ModeSubmit && actual.LessThan(expected) {
		out = append(out, Violation{Kind: ViolationWeekIncomplete, Actual: actual, Limit: expected})
	}
	sortViolations(out)
	return out
}
