package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
	"github.com/aangel-sama/CyDRegistroHHMineria/store/sqlite"
	"github.com/aangel-sama/CyDRegistroHHMineria/timesheet"
)

const ana generic.PrincipalID = "ana@example.com"

var mar10 = generic.NewDate(2025, time.March, 10)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(project generic.ProjectCode, d generic.Date, hours float64) generic.TimeEntry {
	return generic.TimeEntry{
		Principal: ana,
		Project:   project,
		Date:      d,
		Hours:     generic.NewHours(hours),
		State:     generic.StateDraft,
	}
}

func TestStore_InsertAndSelect(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, entry("P2", mar10, 3)))
	require.NoError(t, s.Insert(ctx, entry("P1", mar10.AddDays(1), 6.5)))
	require.NoError(t, s.Insert(ctx, entry("P1", mar10, 4)))

	rows, err := s.Select(ctx, generic.EntryFilter{Principal: ana})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Ordered by date, then project.
	assert.Equal(t, generic.ProjectCode("P1"), rows[0].Project)
	assert.Equal(t, generic.ProjectCode("P2"), rows[1].Project)
	assert.Equal(t, mar10.AddDays(1), rows[2].Date)
	assert.True(t, rows[2].Hours.Equal(generic.NewHours(6.5)))
	assert.NotEmpty(t, rows[0].ID)
	assert.False(t, rows[0].CreatedAt.IsZero())
}

func TestStore_DuplicateKey(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, entry("P1", mar10, 4)))
	err := s.Insert(ctx, entry("P1", mar10, 5))

	assert.ErrorIs(t, err, generic.ErrDuplicateEntry)
	assert.ErrorIs(t, err, generic.ErrStore)
}

func TestStore_SelectFilters(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, entry("P1", mar10, 4)))
	require.NoError(t, s.Insert(ctx, entry("P2", mar10, 4)))
	submitted := entry("P1", mar10.AddDays(1), 9)
	submitted.State = generic.StateSubmitted
	require.NoError(t, s.Insert(ctx, submitted))
	require.NoError(t, s.Insert(ctx, generic.TimeEntry{
		Principal: "other@example.com", Project: "P1", Date: mar10,
		Hours: generic.NewHours(1), State: generic.StateDraft,
	}))

	rows, err := s.Select(ctx, generic.EntryFilter{
		Principal: ana,
		Dates:     []generic.Date{mar10, mar10.AddDays(1)},
		Projects:  []generic.ProjectCode{"P1"},
	})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = s.Select(ctx, generic.EntryFilter{Principal: ana, States: []generic.EntryState{generic.StateSubmitted}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, generic.StateSubmitted, rows[0].State)
}

func TestStore_UpdateAndDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, entry("P1", mar10, 4)))
	require.NoError(t, s.Insert(ctx, entry("P1", mar10.AddDays(1), 4)))
	rows, err := s.Select(ctx, generic.EntryFilter{Principal: ana})
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, rows[0].ID, generic.NewHours(8), generic.StateSubmitted))
	err = s.Update(ctx, "missing", generic.NewHours(1), generic.StateDraft)
	assert.ErrorIs(t, err, generic.ErrEntryNotFound)

	rows, err = s.Select(ctx, generic.EntryFilter{Principal: ana, Dates: []generic.Date{mar10}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Hours.Equal(generic.NewHours(8)))
	assert.Equal(t, generic.StateSubmitted, rows[0].State)

	n, err := s.Delete(ctx, generic.EntryFilter{Principal: ana, States: []generic.EntryState{generic.StateDraft}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.Delete(ctx, generic.EntryFilter{Principal: ana})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_ProjectRegistry(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveProject(ctx, "P2", "Planta Sur"))
	require.NoError(t, s.SaveProject(ctx, "P1", "Mina"))
	require.NoError(t, s.SaveProject(ctx, "P1", "Mina Norte"))
	require.NoError(t, s.AssignProject(ctx, ana, "P2"))
	require.NoError(t, s.AssignProject(ctx, ana, "P1"))
	require.NoError(t, s.AssignProject(ctx, ana, "P2"))

	codes, err := s.ProjectsFor(ctx, ana)
	require.NoError(t, err)
	assert.Equal(t, []generic.ProjectCode{"P2", "P1"}, codes)

	names, err := s.ProjectNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Mina Norte", names["P1"])

	require.NoError(t, s.UnassignProject(ctx, ana, "P2"))
	codes, err = s.ProjectsFor(ctx, ana)
	require.NoError(t, err)
	assert.Equal(t, []generic.ProjectCode{"P1"}, codes)

	// Assigning an unknown project violates the foreign key.
	assert.Error(t, s.AssignProject(ctx, ana, "NOPE"))
}

func TestStore_ManualHolidays(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	election := generic.NewDate(2025, time.November, 16)
	runoff := generic.NewDate(2025, time.December, 14)
	require.NoError(t, s.SaveManualHoliday(ctx, runoff, "Segunda vuelta"))
	require.NoError(t, s.SaveManualHoliday(ctx, election, "Elecciones"))
	require.NoError(t, s.SaveManualHoliday(ctx, generic.NewDate(2026, time.May, 4), "Ad hoc"))

	byYear, err := s.ManualHolidays(ctx)
	require.NoError(t, err)
	assert.Equal(t, []generic.Date{election, runoff}, byYear[2025])
	assert.Len(t, byYear[2026], 1)

	require.NoError(t, s.DeleteManualHoliday(ctx, runoff))
	byYear, err = s.ManualHolidays(ctx)
	require.NoError(t, err)
	assert.Equal(t, []generic.Date{election}, byYear[2025])
}

func TestStore_Reset(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, entry("P1", mar10, 4)))
	require.NoError(t, s.Reset(ctx))

	rows, err := s.Select(ctx, generic.EntryFilter{Principal: ana})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timesheet.db")
	ctx := context.Background()

	s, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, entry("P1", mar10, 4)))
	require.NoError(t, s.Close())

	s, err = sqlite.New(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(ctx))

	rows, err := s.Select(ctx, generic.EntryFilter{Principal: ana})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

// =============================================================================
// ENGINE INTEGRATION
// =============================================================================

func TestStore_SubmitWeekThroughService(t *testing.T) {
	// GIVEN: An engine backed by SQLite, Friday afternoon of a week without holidays
	s := newStore(t)
	ctx := timesheet.WithPrincipal(context.Background(), ana)
	require.NoError(t, s.SaveProject(ctx, "P1", "Mina Norte"))
	require.NoError(t, s.AssignProject(ctx, ana, "P1"))

	now := mar10.AddDays(4).Time().Add(17 * time.Hour)
	svc, err := timesheet.NewService(timesheet.FiveDayWeek(), s, s,
		timesheet.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	staged := timesheet.HoursMatrix{}
	for i, h := range []float64{9, 9, 9, 9, 6.5} {
		staged.Set("P1", mar10.AddDays(i), generic.NewHours(h))
	}

	// WHEN: Submitting the full week
	report, err := svc.Submit(ctx, 0, staged)

	// THEN: Every row is persisted as Submitted
	require.NoError(t, err)
	assert.Equal(t, 5, report.Inserted)

	view, err := svc.WeekView(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, timesheet.WeekSubmitted, view.State)
	assert.True(t, view.Total.Equal(generic.NewHours(42.5)))

	// AND: A second submission is refused
	_, err = svc.Submit(ctx, 0, staged)
	assert.True(t, errors.Is(err, generic.ErrWeekLocked))
}
