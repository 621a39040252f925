package timesheet_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
	"github.com/aangel-sama/CyDRegistroHHMineria/timesheet"
)

var fullWeek = week(mar10, mar11, mar12, mar13, mar14)

func validate(cfg timesheet.Config, m timesheet.HoursMatrix, today generic.Date, mode timesheet.ValidationMode) []timesheet.Violation {
	return timesheet.Validate(timesheet.ValidationInput{
		Matrix:   m,
		Window:   fullWeek,
		Calendar: timesheet.NewHolidayCalendar(cfg),
		Today:    today,
		Mode:     mode,
	})
}

func kinds(vs []timesheet.Violation) []timesheet.ViolationKind {
	out := make([]timesheet.ViolationKind, len(vs))
	for i, v := range vs {
		out[i] = v.Kind
	}
	return out
}

func TestValidate_FullWeekPasses(t *testing.T) {
	m := row(timesheet.HoursMatrix{}, "P1", mar10, 9, 9, 9, 9, 6.5)

	assert.Empty(t, validate(noHolidays(), m, mar14, timesheet.ModeSubmit))
}

func TestValidate_EmptyFridayOnSubmit(t *testing.T) {
	// GIVEN: Friday has no hours and is not a holiday
	m := row(timesheet.HoursMatrix{}, "P1", mar10, 9, 9, 9, 9, 0)

	// WHEN: Submitting
	vs := validate(noHolidays(), m, mar14, timesheet.ModeSubmit)

	// THEN: EmptyWorkday(Friday) and WeekIncomplete(36 of 42.5)
	require.Equal(t, []timesheet.ViolationKind{timesheet.ViolationEmptyWorkday, timesheet.ViolationWeekIncomplete}, kinds(vs))
	assert.Equal(t, mar14, vs[0].Date)
	assert.True(t, vs[1].Actual.Equal(generic.NewHours(36)))
	assert.True(t, vs[1].Limit.Equal(generic.NewHours(42.5)))

	// Draft saves are not held to completion.
	assert.Empty(t, validate(noHolidays(), m, mar14, timesheet.ModeDraft))
}

func TestValidate_DailyCapSumsAcrossProjects(t *testing.T) {
	m := timesheet.HoursMatrix{}
	m.Set("P1", mar10, generic.NewHours(5))
	m.Set("P2", mar10, generic.NewHours(4.5))
	m.Set("P2", mar14, generic.NewHours(7))

	vs := validate(noHolidays(), m, mar14, timesheet.ModeDraft)

	require.Len(t, vs, 2)
	assert.Equal(t, timesheet.ViolationDailyCapExceeded, vs[0].Kind)
	assert.Equal(t, mar10, vs[0].Date)
	assert.True(t, vs[0].Actual.Equal(generic.NewHours(9.5)))
	assert.True(t, vs[0].Limit.Equal(generic.NewHours(9)))
	assert.Equal(t, mar14, vs[1].Date)
	assert.True(t, vs[1].Limit.Equal(generic.NewHours(6.5)))
}

func TestValidate_HolidayEntryAndExpectedTotal(t *testing.T) {
	// GIVEN: Wednesday is a holiday
	cfg := withHoliday(noHolidays(), mar12)
	m := row(timesheet.HoursMatrix{}, "P1", mar10, 9, 9, 2, 9, 6.5)

	// WHEN: Submitting with 2h on the holiday
	vs := validate(cfg, m, mar14, timesheet.ModeSubmit)

	// THEN: Only the holiday entry is flagged; the holiday is excluded from the weekly sums
	require.Equal(t, []timesheet.ViolationKind{timesheet.ViolationHolidayEntryNotAllowed}, kinds(vs))
	assert.Equal(t, mar12, vs[0].Date)

	m.Set("P1", mar12, generic.ZeroHours())
	assert.Empty(t, validate(cfg, m, mar14, timesheet.ModeSubmit))
}

func TestValidate_InvalidHours(t *testing.T) {
	m := row(timesheet.HoursMatrix{}, "P1", mar10, 2.25, -1)

	vs := validate(noHolidays(), m, mar14, timesheet.ModeDraft)

	assert.Equal(t, []timesheet.ViolationKind{timesheet.ViolationInvalidHours, timesheet.ViolationInvalidHours}, kinds(vs))
	assert.Equal(t, generic.ProjectCode("P1"), vs[0].Project)
}

func TestValidate_FutureDaysExcludedInCurrentWeek(t *testing.T) {
	// GIVEN: Today is Wednesday and Mon-Wed are complete
	m := row(timesheet.HoursMatrix{}, "P1", mar10, 9, 9, 9)

	// THEN: Thursday and Friday are not required yet
	assert.Empty(t, validate(noHolidays(), m, mar12, timesheet.ModeSubmit))

	// AND: A past week is checked in full
	vs := validate(noHolidays(), m, mar14.AddDays(7), timesheet.ModeSubmit)
	assert.Equal(t, []timesheet.ViolationKind{
		timesheet.ViolationEmptyWorkday, timesheet.ViolationEmptyWorkday, timesheet.ViolationWeekIncomplete,
	}, kinds(vs))
}

func TestValidate_FutureWindowNotEditable(t *testing.T) {
	// GIVEN: Today is the Friday before the window
	m := row(timesheet.HoursMatrix{}, "P1", mar10, 9, 9, 9, 9, 6.5)
	lastFriday := mar10.AddDays(-3)

	// THEN: Both modes reject the whole window, once
	for _, mode := range []timesheet.ValidationMode{timesheet.ModeDraft, timesheet.ModeSubmit} {
		vs := validate(noHolidays(), m, lastFriday, mode)
		require.Equal(t, []timesheet.ViolationKind{timesheet.ViolationDateNotEditable}, kinds(vs))
		assert.Equal(t, mar10, vs[0].Date)
	}
}

func TestValidate_OrderIndependent(t *testing.T) {
	a := timesheet.HoursMatrix{}
	a.Set("P1", mar10, generic.NewHours(6))
	a.Set("P2", mar10, generic.NewHours(6))
	a.Set("P3", mar11, generic.NewHours(0.25))

	b := timesheet.HoursMatrix{}
	b.Set("P3", mar11, generic.NewHours(0.25))
	b.Set("P2", mar10, generic.NewHours(6))
	b.Set("P1", mar10, generic.NewHours(6))

	cfg := noHolidays()
	assert.Equal(t,
		validate(cfg, a, mar14, timesheet.ModeSubmit),
		validate(cfg, b, mar14, timesheet.ModeSubmit))
}

func TestValidationError_ListsEveryViolation(t *testing.T) {
	m := row(timesheet.HoursMatrix{}, "P1", mar10, 10, 0, 9, 9, 6.5)
	vs := validate(noHolidays(), m, mar14, timesheet.ModeSubmit)

	err := &timesheet.ValidationError{Violations: vs}

	assert.True(t, errors.Is(err, generic.ErrValidation))
	assert.True(t, err.Has(timesheet.ViolationDailyCapExceeded))
	assert.True(t, err.Has(timesheet.ViolationEmptyWorkday))
	assert.Contains(t, err.Error(), "10/03/2025")
	assert.Contains(t, err.Error(), "11/03/2025")
}
