/*
Package factory provides config to engine conversion.

PURPOSE:
  Converts the timesheet section of the process configuration (YAML or
  JSON) into a validated timesheet.Config. Deployments pick a preset and
  override individual fields without code changes; the factory fills in
  the rest from the preset and parses hours and dates.

SCHEMA (YAML):
  timesheet:
    preset: five-day              # or four-day
    days_per_week: 5              # optional, must match daily_caps
    daily_caps: ["9", "9", "9", "9", "6.5"]
    fixed_holidays: ["01-01", "09-18", "12-25"]
    movable_feast_offsets: [-2, -1]
    manual_holidays: ["2025-11-16"]
    leave_projects:
      vacation: GIN-2-Vacaciones
      medical_leave: GIN-2-Licencias

  Omitted fields inherit from the preset. An explicit empty list clears
  the preset's value (e.g. fixed_holidays: [] for a test calendar).

USAGE:
  f := factory.NewEngineFactory()
  cfg, err := f.FromConfig(appCfg.Timesheet)
  cfg = f.WithManualHolidays(cfg, storedOverrides)
  svc, err := timesheet.NewService(cfg, store, store)

SEE ALSO:
  - timesheet/config.go: Config type and presets
  - config/config.go: Process configuration loading
*/
package factory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aangel-sama/CyDRegistroHHMineria/config"
	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
	"github.com/aangel-sama/CyDRegistroHHMineria/timesheet"
)

// =============================================================================
// ENGINE FACTORY
// =============================================================================

// EngineFactory converts configuration sections to timesheet.Config.
type EngineFactory struct{}

// NewEngineFactory creates a new engine factory.
func NewEngineFactory() *EngineFactory {
	return &EngineFactory{}
}

// ParseConfig parses a JSON document into a validated Config.
func (f *EngineFactory) ParseConfig(jsonStr string) (timesheet.Config, error) {
	var tc config.TimesheetConfig
	if err := json.Unmarshal([]byte(jsonStr), &tc); err != nil {
		return timesheet.Config{}, fmt.Errorf("failed to parse timesheet JSON: %w", err)
	}
	return f.FromConfig(tc)
}

// FromConfig applies the overrides in tc to its preset and validates the result.
func (f *EngineFactory) FromConfig(tc config.TimesheetConfig) (timesheet.Config, error) {
	preset := tc.Preset
	if preset == "" {
		preset = "five-day"
	}
	cfg, err := timesheet.Preset(preset)
	if err != nil {
		return timesheet.Config{}, err
	}

	if tc.DaysPerWeek != 0 {
		cfg.DaysPerWeek = tc.DaysPerWeek
	}

	if tc.DailyCaps != nil {
		caps := make([]generic.Hours, len(tc.DailyCaps))
		for i, s := range tc.DailyCaps {
			h, err := generic.ParseHours(s)
			if err != nil {
				return timesheet.Config{}, fmt.Errorf("daily_caps[%d]: %w", i, err)
			}
			caps[i] = h
		}
		cfg.DailyCaps = caps
	}

	if tc.FixedHolidays != nil {
		fixed := make([]timesheet.MonthDay, len(tc.FixedHolidays))
		for i, s := range tc.FixedHolidays {
			md, err := parseMonthDay(s)
			if err != nil {
				return timesheet.Config{}, fmt.Errorf("fixed_holidays[%d]: %w", i, err)
			}
			fixed[i] = md
		}
		cfg.FixedHolidays = fixed
	}

	if tc.MovableFeastOffsets != nil {
		cfg.MovableFeastOffsets = append([]int{}, tc.MovableFeastOffsets...)
	}

	if tc.ManualHolidays != nil {
		manual := make(map[int][]generic.Date)
		for i, s := range tc.ManualHolidays {
			d, err := generic.ParseDate(s)
			if err != nil {
				return timesheet.Config{}, fmt.Errorf("manual_holidays[%d]: %w", i, err)
			}
			manual[d.Year()] = append(manual[d.Year()], d)
		}
		cfg.ManualHolidays = manual
	}

	for name, code := range tc.LeaveProjects {
		reason, err := timesheet.ParseLeaveReason(name)
		if err != nil {
			return timesheet.Config{}, fmt.Errorf("leave_projects: %w", err)
		}
		if strings.TrimSpace(code) == "" {
			return timesheet.Config{}, fmt.Errorf("leave_projects: empty project code for %s", reason)
		}
		cfg.LeaveProjects[reason] = generic.ProjectCode(code)
	}

	if err := cfg.Validate(); err != nil {
		return timesheet.Config{}, fmt.Errorf("invalid timesheet config: %w", err)
	}
	return cfg, nil
}

// ToConfig converts a Config back to its configuration section. Every
// field is written out, so the result does not depend on the preset.
func (f *EngineFactory) ToConfig(cfg timesheet.Config) config.TimesheetConfig {
	tc := config.TimesheetConfig{
		Preset:              presetName(cfg.DaysPerWeek),
		DaysPerWeek:         cfg.DaysPerWeek,
		DailyCaps:           make([]string, len(cfg.DailyCaps)),
		FixedHolidays:       make([]string, len(cfg.FixedHolidays)),
		MovableFeastOffsets: append([]int{}, cfg.MovableFeastOffsets...),
		ManualHolidays:      []string{},
		LeaveProjects:       make(map[string]string, len(cfg.LeaveProjects)),
	}

	for i, h := range cfg.DailyCaps {
		tc.DailyCaps[i] = h.String()
	}
	for i, md := range cfg.FixedHolidays {
		tc.FixedHolidays[i] = md.String()
	}
	for _, dates := range cfg.ManualHolidays {
		for _, d := range dates {
			tc.ManualHolidays = append(tc.ManualHolidays, d.String())
		}
	}
	sort.Strings(tc.ManualHolidays)
	for reason, code := range cfg.LeaveProjects {
		tc.LeaveProjects[string(reason)] = string(code)
	}

	return tc
}

// WithManualHolidays returns cfg with extra one-off holidays merged in.
// Duplicates are dropped; cfg itself is not modified.
func (f *EngineFactory) WithManualHolidays(cfg timesheet.Config, extra map[int][]generic.Date) timesheet.Config {
	merged := make(map[int][]generic.Date, len(cfg.ManualHolidays)+len(extra))
	seen := make(map[generic.Date]bool)
	add := func(src map[int][]generic.Date) {
		for year, dates := range src {
			for _, d := range dates {
				if seen[d] {
					continue
				}
				seen[d] = true
				merged[year] = append(merged[year], d)
			}
		}
	}
	add(cfg.ManualHolidays)
	add(extra)

	cfg.ManualHolidays = merged
	return cfg
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseMonthDay(s string) (timesheet.MonthDay, error) {
	t, err := time.Parse("01-02", strings.TrimSpace(s))
	if err != nil {
		return timesheet.MonthDay{}, fmt.Errorf("invalid month-day %q (want MM-DD): %w", s, err)
	}
	return timesheet.MonthDay{Month: t.Month(), Day: t.Day()}, nil
}

func presetName(daysPerWeek int) string {
	if daysPerWeek == 4 {
		return "four-day"
	}
	return "five-day"
}
