package factory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aangel-sama/CyDRegistroHHMineria/config"
	"github.com/aangel-sama/CyDRegistroHHMineria/factory"
	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
	"github.com/aangel-sama/CyDRegistroHHMineria/timesheet"
)

func TestFromConfig_PresetOnly(t *testing.T) {
	f := factory.NewEngineFactory()

	cfg, err := f.FromConfig(config.TimesheetConfig{Preset: "four-day"})

	require.NoError(t, err)
	assert.Equal(t, timesheet.FourDayWeek(), cfg)
	assert.True(t, cfg.WeeklyCap().Equal(generic.NewHours(44)))
}

func TestFromConfig_EmptyPresetIsFiveDay(t *testing.T) {
	cfg, err := factory.NewEngineFactory().FromConfig(config.TimesheetConfig{})

	require.NoError(t, err)
	assert.Equal(t, 5, cfg.DaysPerWeek)
	assert.True(t, cfg.WeeklyCap().Equal(generic.NewHours(42.5)))
}

func TestFromConfig_Overrides(t *testing.T) {
	// GIVEN: A five-day preset with custom caps, no fixed holidays and one manual holiday
	tc := config.TimesheetConfig{
		Preset:         "five-day",
		DailyCaps:      []string{"8", "8", "8", "8", "8.5"},
		FixedHolidays:  []string{},
		ManualHolidays: []string{"2025-03-12"},
		LeaveProjects:  map[string]string{"vacaciones": "HR-VAC"},
	}

	// WHEN
	cfg, err := factory.NewEngineFactory().FromConfig(tc)

	// THEN
	require.NoError(t, err)
	assert.True(t, cfg.CapFor(4).Equal(generic.NewHours(8.5)))
	assert.Empty(t, cfg.FixedHolidays)
	assert.Equal(t, []int{-2, -1}, cfg.MovableFeastOffsets, "inherited")
	assert.Equal(t, []generic.Date{generic.NewDate(2025, time.March, 12)}, cfg.ManualHolidays[2025])
	assert.Equal(t, generic.ProjectCode("HR-VAC"), cfg.LeaveProjects[timesheet.ReasonVacation])
	assert.Equal(t, generic.ProjectCode("GIN-2-Licencias"), cfg.LeaveProjects[timesheet.ReasonMedicalLeave])

	cal := timesheet.NewHolidayCalendar(cfg)
	assert.True(t, cal.IsHoliday(generic.NewDate(2025, time.March, 12)))
	assert.False(t, cal.IsHoliday(generic.NewDate(2025, time.January, 1)))
}

func TestFromConfig_Errors(t *testing.T) {
	tests := []struct {
		name   string
		tc     config.TimesheetConfig
		errMsg string
	}{
		{"unknown preset", config.TimesheetConfig{Preset: "six-day"}, "unknown week preset"},
		{"bad hours", config.TimesheetConfig{DailyCaps: []string{"nine"}}, "daily_caps[0]"},
		{"caps length", config.TimesheetConfig{DailyCaps: []string{"9", "9"}}, "daily caps must have 5 values"},
		{"days without caps", config.TimesheetConfig{DaysPerWeek: 6}, "daily caps must have 6 values"},
		{"quarter hour cap", config.TimesheetConfig{DailyCaps: []string{"9", "9", "9", "9", "6.25"}}, "multiple of 0.5"},
		{"bad month-day", config.TimesheetConfig{FixedHolidays: []string{"13-01"}}, "fixed_holidays[0]"},
		{"bad date", config.TimesheetConfig{ManualHolidays: []string{"16/11/2025"}}, "manual_holidays[0]"},
		{"unknown reason", config.TimesheetConfig{LeaveProjects: map[string]string{"sabbatical": "X"}}, "unknown leave reason"},
		{"empty code", config.TimesheetConfig{LeaveProjects: map[string]string{"vacation": " "}}, "empty project code"},
	}

	f := factory.NewEngineFactory()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.FromConfig(tt.tc)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestParseConfig_JSON(t *testing.T) {
	jsonStr := `{
		"preset": "four-day",
		"fixed_holidays": ["01-01", "09-18"],
		"movable_feast_offsets": []
	}`

	cfg, err := factory.NewEngineFactory().ParseConfig(jsonStr)

	require.NoError(t, err)
	assert.Equal(t, 4, cfg.DaysPerWeek)
	assert.Len(t, cfg.FixedHolidays, 2)
	assert.Equal(t, timesheet.MonthDay{Month: time.September, Day: 18}, cfg.FixedHolidays[1])
	assert.Empty(t, cfg.MovableFeastOffsets)

	_, err = factory.NewEngineFactory().ParseConfig(`{"preset": 5}`)
	assert.ErrorContains(t, err, "failed to parse timesheet JSON")
}

func TestToConfig_RoundTrip(t *testing.T) {
	f := factory.NewEngineFactory()
	original := timesheet.FourDayWeek()

	tc := f.ToConfig(original)
	assert.Equal(t, "four-day", tc.Preset)
	assert.Equal(t, []string{"12", "12", "12", "8"}, tc.DailyCaps)
	assert.Equal(t, []string{"2025-11-16"}, tc.ManualHolidays)
	assert.Contains(t, tc.FixedHolidays, "09-18")

	back, err := f.FromConfig(tc)
	require.NoError(t, err)
	assert.Equal(t, original.WeeklyCap().String(), back.WeeklyCap().String())
	assert.Equal(t, original.LeaveProjects, back.LeaveProjects)
	assert.Equal(t, original.FixedHolidays, back.FixedHolidays)
	assert.Equal(t, original.ManualHolidays, back.ManualHolidays)
}

func TestWithManualHolidays_MergesAndDedupes(t *testing.T) {
	f := factory.NewEngineFactory()
	cfg := timesheet.FiveDayWeek()
	election := generic.NewDate(2025, time.November, 16)
	extra := generic.NewDate(2026, time.June, 21)

	merged := f.WithManualHolidays(cfg, map[int][]generic.Date{
		2025: {election},
		2026: {extra},
	})

	assert.Equal(t, []generic.Date{election}, merged.ManualHolidays[2025])
	assert.Equal(t, []generic.Date{extra}, merged.ManualHolidays[2026])
	assert.Len(t, cfg.ManualHolidays, 1, "input untouched")
	assert.NoError(t, merged.Validate())
}
