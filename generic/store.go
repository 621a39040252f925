/*
store.go - Persistence contracts for time entries and project reference data

PURPOSE:
  Defines the interface between the engine and the record store. The store
  is a keyed collection of TimeEntry rows with a uniqueness constraint on
  (principal, project, date). Unlike an append-only ledger, rows are updated
  in place while Draft and deleted on week reset or leave removal; the
  state machine deciding WHEN that is allowed lives in timesheet/ledger.go.

KEY INTERFACES:
  EntryStore:      select / insert / update / delete over TimeEntry rows
  ProjectRegistry: projects assigned to a principal + display names

CONSISTENCY:
  Implementations must give read-your-writes within one caller. The engine
  performs no retries; every failure is returned as *StoreError.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL (sqlx)
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - timesheet/ledger.go: Upsert/submit/reset protocol over EntryStore
*/
package generic

import "context"

// =============================================================================
// ENTRY STORE
// =============================================================================

// EntryFilter narrows Select and Delete. Empty slices mean "any".
// Principal is always required.
type EntryFilter struct {
	Principal PrincipalID
	Dates     []Date
	States    []EntryState
	Projects  []ProjectCode
}

// Matches reports whether e satisfies the filter.
func (f EntryFilter) Matches(e TimeEntry) bool {
	if e.Principal != f.Principal {
		return false
	}
	if len(f.Dates) > 0 && !containsDate(f.Dates, e.Date) {
		return false
	}
	if len(f.States) > 0 && !containsState(f.States, e.State) {
		return false
	}
	if len(f.Projects) > 0 && !containsProject(f.Projects, e.Project) {
		return false
	}
	return true
}

// EntryStore handles persistence of time entries.
type EntryStore interface {
	// Select returns matching rows ordered by date, then project.
	Select(ctx context.Context, filter EntryFilter) ([]TimeEntry, error)

	// Insert creates a row. Returns ErrDuplicateEntry (wrapped) if the key exists.
	// The store assigns ID, CreatedAt and UpdatedAt when empty.
	Insert(ctx context.Context, entry TimeEntry) error

	// Update overwrites hours and state of an existing row.
	Update(ctx context.Context, id EntryID, hours Hours, state EntryState) error

	// Delete removes matching rows and returns how many were removed.
	Delete(ctx context.Context, filter EntryFilter) (int, error)
}

// =============================================================================
// PROJECT REGISTRY - Read-only reference data
// =============================================================================

// ProjectRegistry supplies the projects a principal books hours against.
type ProjectRegistry interface {
	// ProjectsFor returns the project codes assigned to the principal.
	ProjectsFor(ctx context.Context, principal PrincipalID) ([]ProjectCode, error)

	// ProjectNames returns display names keyed by project code.
	ProjectNames(ctx context.Context) (map[ProjectCode]string, error)
}

func containsDate(ds []Date, d Date) bool {
	for _, x := range ds {
		if x == d {
			return true
		}
	}
	return false
}

func containsState(ss []EntryState, s EntryState) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func containsProject(ps []ProjectCode, p ProjectCode) bool {
	for _, x := range ps {
		if x == p {
			return true
		}
	}
	return false
}
