/*
config.go - Deployment parameters of the timesheet engine

PURPOSE:
  Everything externally tunable about the engine lives in Config: the length
  of the work week, the per-weekday hour caps, the holiday rules and the
  project codes leave blocks are booked against. Everything else (windows,
  expected totals, leave hours) is derived from these values.

PRESETS:
  Two deployments exist in the field and neither is privileged:

    FiveDayWeek()  Mon-Thu 9h, Fri 6.5h  (42.5h week)
    FourDayWeek()  Mon-Wed 12h, Thu 8h   (44h week)

  The process configuration chooses one and may override individual fields
  (see factory/engine.go).

HOLIDAY RULES:
  FixedHolidays       month/day pairs repeated every year
  MovableFeastOffsets day offsets from Easter Sunday (-2 Good Friday, -1 Holy Saturday)
  ManualHolidays      one-off dates keyed by year (e.g., election days)

SEE ALSO:
  - calendar.go: Consumes the holiday rules and the cap table
  - factory/engine.go: Builds a Config from YAML
*/
package timesheet

import (
	"fmt"
	"strings"
	"time"

	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
)

// =============================================================================
// LEAVE REASONS
// =============================================================================

// LeaveReason is the declared cause of a leave block.
type LeaveReason string

const (
	ReasonVacation     LeaveReason = "vacation"
	ReasonMedicalLeave LeaveReason = "medical_leave"
)

// LeaveReasons lists every supported reason in display order.
func LeaveReasons() []LeaveReason {
	return []LeaveReason{ReasonVacation, ReasonMedicalLeave}
}

// ParseLeaveReason accepts the canonical names and the Spanish labels shown in the UI.
func ParseLeaveReason(s string) (LeaveReason, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vacation", "vacaciones":
		return ReasonVacation, nil
	case "medical_leave", "medical", "licencia", "licencia medica", "licencia médica":
		return ReasonMedicalLeave, nil
	}
	return "", fmt.Errorf("unknown leave reason %q", s)
}

// =============================================================================
// CONFIG
// =============================================================================

// MonthDay is a calendar-fixed holiday, repeated every year.
type MonthDay struct {
	Month time.Month
	Day   int
}

func (md MonthDay) String() string { return fmt.Sprintf("%02d-%02d", int(md.Month), md.Day) }

// In returns the date for the given year. ok is false when the day does not
// exist that year (Feb 29 outside leap years).
func (md MonthDay) In(year int) (generic.Date, bool) {
	d := generic.NewDate(year, md.Month, md.Day)
	return d, d.Month() == md.Month && d.Day() == md.Day
}

type Config struct {
	// DaysPerWeek is the number of working days starting Monday (4 or 5 in practice).
	DaysPerWeek int

	// DailyCaps holds the maximum hours per weekday index (Monday=0).
	// len(DailyCaps) == DaysPerWeek.
	DailyCaps []generic.Hours

	FixedHolidays       []MonthDay
	MovableFeastOffsets []int
	ManualHolidays      map[int][]generic.Date

	// LeaveProjects maps each reason to the project code leave rows are booked against.
	LeaveProjects map[LeaveReason]generic.ProjectCode
}

// Chilean national holidays with a fixed calendar date.
func chileanFixedHolidays() []MonthDay {
	return []MonthDay{
		{time.January, 1},
		{time.May, 1},
		{time.May, 21},
		{time.June, 24},
		{time.July, 16},
		{time.August, 15},
		{time.September, 18},
		{time.September, 19},
		{time.October, 12},
		{time.October, 31},
		{time.November, 1},
		{time.December, 8},
		{time.December, 25},
	}
}

func defaultManualHolidays() map[int][]generic.Date {
	return map[int][]generic.Date{
		2025: {generic.NewDate(2025, time.November, 16)}, // presidential election
	}
}

func defaultLeaveProjects() map[LeaveReason]generic.ProjectCode {
	return map[LeaveReason]generic.ProjectCode{
		ReasonVacation:     "GIN-2-Vacaciones",
		ReasonMedicalLeave: "GIN-2-Licencias",
	}
}

// FiveDayWeek is the Monday-Friday deployment: 9h Mon-Thu, 6.5h Friday.
func FiveDayWeek() Config {
	return Config{
		DaysPerWeek: 5,
		DailyCaps: []generic.Hours{
			generic.NewHours(9), generic.NewHours(9), generic.NewHours(9), generic.NewHours(9),
			generic.NewHours(6.5),
		},
		FixedHolidays:       chileanFixedHolidays(),
		MovableFeastOffsets: []int{-2, -1},
		ManualHolidays:      defaultManualHolidays(),
		LeaveProjects:       defaultLeaveProjects(),
	}
}

// FourDayWeek is the Monday-Thursday deployment: 12h Mon-Wed, 8h Thursday.
func FourDayWeek() Config {
	return Config{
		DaysPerWeek: 4,
		DailyCaps: []generic.Hours{
			generic.NewHours(12), generic.NewHours(12), generic.NewHours(12),
			generic.NewHours(8),
		},
		FixedHolidays:       chileanFixedHolidays(),
		MovableFeastOffsets: []int{-2, -1},
		ManualHolidays:      defaultManualHolidays(),
		LeaveProjects:       defaultLeaveProjects(),
	}
}

// Preset returns a named preset ("five-day" or "four-day").
func Preset(name string) (Config, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "five-day", "5", "five":
		return FiveDayWeek(), nil
	case "four-day", "4", "four":
		return FourDayWeek(), nil
	}
	return Config{}, fmt.Errorf("unknown week preset %q (use five-day or four-day)", name)
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.DaysPerWeek < 1 || c.DaysPerWeek > 7 {
		return fmt.Errorf("days per week must be between 1 and 7, got %d", c.DaysPerWeek)
	}
	if len(c.DailyCaps) != c.DaysPerWeek {
		return fmt.Errorf("daily caps must have %d values, got %d", c.DaysPerWeek, len(c.DailyCaps))
	}
	for i, limit := range c.DailyCaps {
		if !limit.IsPositive() || !limit.IsHalfStep() {
			return fmt.Errorf("daily cap for %s must be a positive multiple of 0.5, got %s", weekdayName(i), limit)
		}
	}
	for _, md := range c.FixedHolidays {
		if md.Month < time.January || md.Month > time.December || md.Day < 1 || md.Day > 31 {
			return fmt.Errorf("invalid fixed holiday %s", md)
		}
	}
	for year, dates := range c.ManualHolidays {
		for _, d := range dates {
			if d.Year() != year {
				return fmt.Errorf("manual holiday %s listed under year %d", d, year)
			}
		}
	}
	for _, reason := range LeaveReasons() {
		if c.LeaveProjects[reason] == "" {
			return fmt.Errorf("no project code configured for leave reason %q", reason)
		}
	}
	return nil
}

// CapFor returns the cap for a weekday index, zero outside the configured week.
func (c Config) CapFor(weekdayIndex int) generic.Hours {
	if weekdayIndex < 0 || weekdayIndex >= len(c.DailyCaps) {
		return generic.ZeroHours()
	}
	return c.DailyCaps[weekdayIndex]
}

// WeeklyCap is the sum of all daily caps.
func (c Config) WeeklyCap() generic.Hours {
	return generic.SumHours(c.DailyCaps...)
}

// ReasonFor maps a leave project code back to its reason.
func (c Config) ReasonFor(project generic.ProjectCode) (LeaveReason, bool) {
	for reason, code := range c.LeaveProjects {
		if code == project {
			return reason, true
		}
	}
	return "", false
}

// IsLeaveProject reports whether rows on project were written by leave registration.
func (c Config) IsLeaveProject(project generic.ProjectCode) bool {
	_, ok := c.ReasonFor(project)
	return ok
}

func weekdayName(index int) string {
	return time.Weekday((index + 1) % 7).String()
}
