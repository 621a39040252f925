package timesheet_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
	"github.com/aangel-sama/CyDRegistroHHMineria/generic/store"
	"github.com/aangel-sama/CyDRegistroHHMineria/timesheet"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const ana generic.PrincipalID = "ana@example.com"

var (
	// Week of 10/03/2025 to 14/03/2025 has no Chilean holiday.
	mar10 = generic.NewDate(2025, time.March, 10)
	mar11 = mar10.AddDays(1)
	mar12 = mar10.AddDays(2)
	mar13 = mar10.AddDays(3)
	mar14 = mar10.AddDays(4)
)

// at returns a reference instant at the given hour of a day, UTC.
func at(d generic.Date, hour int) time.Time {
	return d.Time().Add(time.Duration(hour) * time.Hour)
}

// noHolidays is the five-day preset with every holiday rule removed.
func noHolidays() timesheet.Config {
	cfg := timesheet.FiveDayWeek()
	cfg.FixedHolidays = nil
	cfg.MovableFeastOffsets = nil
	cfg.ManualHolidays = nil
	return cfg
}

// withHoliday adds a manual holiday to cfg.
func withHoliday(cfg timesheet.Config, d generic.Date) timesheet.Config {
	manual := make(map[int][]generic.Date)
	for y, ds := range cfg.ManualHolidays {
		manual[y] = append([]generic.Date(nil), ds...)
	}
	manual[d.Year()] = append(manual[d.Year()], d)
	cfg.ManualHolidays = manual
	return cfg
}

func week(dates ...generic.Date) timesheet.WeekWindow {
	return timesheet.WeekWindow{Dates: dates}
}

// row builds a matrix row for consecutive days starting at first.
func row(m timesheet.HoursMatrix, project generic.ProjectCode, first generic.Date, values ...float64) timesheet.HoursMatrix {
	for i, v := range values {
		m.Set(project, first.AddDays(i), generic.NewHours(v))
	}
	return m
}

type engine struct {
	store    *store.Memory
	cal      *timesheet.HolidayCalendar
	resolver *timesheet.WeekResolver
	ledger   *timesheet.Ledger
	leave    *timesheet.LeaveRegistrar
}

func newEngine(t *testing.T, cfg timesheet.Config) *engine {
	t.Helper()
	require.NoError(t, cfg.Validate())
	mem := store.NewMemory()
	cal := timesheet.NewHolidayCalendar(cfg)
	resolver := timesheet.NewWeekResolver(cfg, time.UTC)
	ledger := timesheet.NewLedger(mem, cal, zerolog.Nop())
	return &engine{
		store:    mem,
		cal:      cal,
		resolver: resolver,
		ledger:   ledger,
		leave:    timesheet.NewLeaveRegistrar(ledger, cal, resolver, cfg, zerolog.Nop()),
	}
}

func (e *engine) rows(t *testing.T, filter generic.EntryFilter) []generic.TimeEntry {
	t.Helper()
	if filter.Principal == "" {
		filter.Principal = ana
	}
	rows, err := e.store.Select(context.Background(), filter)
	require.NoError(t, err)
	return rows
}

func newService(t *testing.T, cfg timesheet.Config, now time.Time) (*timesheet.Service, *store.Memory, context.Context) {
	t.Helper()
	mem := store.NewMemory()
	mem.AssignProject(ana, "P1", "Mina Norte")
	svc, err := timesheet.NewService(cfg, mem, mem, timesheet.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return svc, mem, timesheet.WithPrincipal(context.Background(), ana)
}

func dates(rows []generic.TimeEntry) []generic.Date {
	out := make([]generic.Date, len(rows))
	for i, r := range rows {
		out[i] = r.Date
	}
	return out
}

// =============================================================================
// STORE DOUBLES
// =============================================================================

// laggingStore drops Draft->Submitted updates for one project, the way a
// replica that missed a write would look to the ledger.
type laggingStore struct {
	*store.Memory
	principal generic.PrincipalID
	stuck     generic.ProjectCode
}

func (s *laggingStore) Update(ctx context.Context, id generic.EntryID, hours generic.Hours, state generic.EntryState) error {
	if state.IsSubmitted() && s.stuck != "" {
		rows, err := s.Memory.Select(ctx, generic.EntryFilter{Principal: s.principal, Projects: []generic.ProjectCode{s.stuck}})
		if err != nil {
			return err
		}
		for _, r := range rows {
			if r.ID == id {
				return nil
			}
		}
	}
	return s.Memory.Update(ctx, id, hours, state)
}

// failingStore fails every call with the same store error.
type failingStore struct {
	err error
}

func (f failingStore) Select(context.Context, generic.EntryFilter) ([]generic.TimeEntry, error) {
	return nil, f.err
}
func (f failingStore) Insert(context.Context, generic.TimeEntry) error { return f.err }
func (f failingStore) Update(context.Context, generic.EntryID, generic.Hours, generic.EntryState) error {
	return f.err
}
func (f failingStore) Delete(context.Context, generic.EntryFilter) (int, error) { return 0, f.err }
