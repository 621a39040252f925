/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the record store, the project registry and the manual holiday
  table on SQLite. store/postgres carries the same contracts for shared
  deployments; only the SQL dialect differs.

INTERFACES IMPLEMENTED:
  generic.EntryStore:      Time entry persistence
  generic.ProjectRegistry: Project assignments and display names

KEY TABLES:
  time_entries:        One row per (principal, project, date), updated in place
  projects:            Project codes and display names
  project_assignments: Principal-to-project links
  holiday_overrides:   One-off holidays (elections) merged into the calendar

INDEXES:
  - UNIQUE(principal, project, entry_date): at most one entry per key
  - idx_time_entries_principal_date: week and leave lookups (hot path)
  - idx_time_entries_principal_state: pending draft lookups

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers don't block
  the single writer.

USAGE:
  store, err := sqlite.New("./data/timesheet.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc, err := timesheet.NewService(cfg, store, store)

SEE ALSO:
  - generic/store.go: Interface definitions
  - timesheet/ledger.go: State machine over EntryStore
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

var (
	_ generic.EntryStore      = (*Store)(nil)
	_ generic.ProjectRegistry = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Time entries (updated in place while draft)
	CREATE TABLE IF NOT EXISTS time_entries (
		id TEXT PRIMARY KEY,
		principal TEXT NOT NULL,
		project TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		hours TEXT NOT NULL,
		state TEXT NOT NULL CHECK (state IN ('draft', 'submitted')),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (principal, project, entry_date)
	);

	CREATE INDEX IF NOT EXISTS idx_time_entries_principal_date
		ON time_entries(principal, entry_date);
	CREATE INDEX IF NOT EXISTS idx_time_entries_principal_state
		ON time_entries(principal, state);

	-- Projects
	CREATE TABLE IF NOT EXISTS projects (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Principal to project links
	CREATE TABLE IF NOT EXISTS project_assignments (
		principal TEXT NOT NULL,
		project TEXT NOT NULL REFERENCES projects(code) ON DELETE CASCADE,
		created_at TEXT NOT NULL,
		PRIMARY KEY (principal, project)
	);

	-- One-off holidays keyed by date
	CREATE TABLE IF NOT EXISTS holiday_overrides (
		holiday_date TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENTRY STORE (generic.EntryStore interface)
// =============================================================================

// Select returns matching rows ordered by date, then project.
func (s *Store) Select(ctx context.Context, filter generic.EntryFilter) ([]generic.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := filterClause(filter)
	query := `
		SELECT id, principal, project, entry_date, hours, state, created_at, updated_at
		FROM time_entries
		WHERE ` + where + `
		ORDER BY entry_date ASC, project ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, generic.NewStoreError("select", fmt.Errorf("failed to query entries: %w", err))
	}
	defer rows.Close()

	var entries []generic.TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, generic.NewStoreError("select", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, generic.NewStoreError("select", err)
	}
	return entries, nil
}

// Insert adds a row. The UNIQUE key surfaces as generic.ErrDuplicateEntry.
func (s *Store) Insert(ctx context.Context, entry generic.TimeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = generic.EntryID(uuid.NewString())
	}
	now := s.now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}

	query := `
		INSERT INTO time_entries
		(id, principal, project, entry_date, hours, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		string(entry.ID),
		string(entry.Principal),
		string(entry.Project),
		entry.Date.String(),
		entry.Hours.String(),
		string(entry.State),
		entry.CreatedAt.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.NewStoreError("insert", fmt.Errorf("%w: %s", generic.ErrDuplicateEntry, entry.Key()))
		}
		return generic.NewStoreError("insert", fmt.Errorf("failed to insert entry: %w", err))
	}
	return nil
}

// Update overwrites hours and state of an existing row.
func (s *Store) Update(ctx context.Context, id generic.EntryID, hours generic.Hours, state generic.EntryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE time_entries SET hours = ?, state = ?, updated_at = ? WHERE id = ?",
		hours.String(), string(state), s.now().UTC().Format(time.RFC3339), string(id),
	)
	if err != nil {
		return generic.NewStoreError("update", fmt.Errorf("failed to update entry: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return generic.NewStoreError("update", err)
	}
	if n == 0 {
		return generic.NewStoreError("update", fmt.Errorf("%w: %s", generic.ErrEntryNotFound, id))
	}
	return nil
}

// Delete removes matching rows.
func (s *Store) Delete(ctx context.Context, filter generic.EntryFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	where, args := filterClause(filter)
	res, err := s.db.ExecContext(ctx, "DELETE FROM time_entries WHERE "+where, args...)
	if err != nil {
		return 0, generic.NewStoreError("delete", fmt.Errorf("failed to delete entries: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, generic.NewStoreError("delete", err)
	}
	return int(n), nil
}

// filterClause renders an EntryFilter as a WHERE clause. Empty slices add no condition.
func filterClause(f generic.EntryFilter) (string, []any) {
	clauses := []string{"principal = ?"}
	args := []any{string(f.Principal)}

	if len(f.Dates) > 0 {
		clauses = append(clauses, "entry_date IN ("+placeholders(len(f.Dates))+")")
		for _, d := range f.Dates {
			args = append(args, d.String())
		}
	}
	if len(f.States) > 0 {
		clauses = append(clauses, "state IN ("+placeholders(len(f.States))+")")
		for _, st := range f.States {
			args = append(args, string(st))
		}
	}
	if len(f.Projects) > 0 {
		clauses = append(clauses, "project IN ("+placeholders(len(f.Projects))+")")
		for _, p := range f.Projects {
			args = append(args, string(p))
		}
	}
	return strings.Join(clauses, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func scanEntry(rows *sql.Rows) (generic.TimeEntry, error) {
	var e generic.TimeEntry
	var id, principal, project, date, hours, state, createdAt, updatedAt string

	if err := rows.Scan(&id, &principal, &project, &date, &hours, &state, &createdAt, &updatedAt); err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	d, err := generic.ParseDate(date)
	if err != nil {
		return e, err
	}
	h, err := generic.ParseHours(hours)
	if err != nil {
		return e, err
	}
	st, err := generic.ParseEntryState(state)
	if err != nil {
		return e, err
	}

	e.ID = generic.EntryID(id)
	e.Principal = generic.PrincipalID(principal)
	e.Project = generic.ProjectCode(project)
	e.Date = d
	e.Hours = h
	e.State = st
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return e, nil
}

// =============================================================================
// PROJECT REGISTRY (generic.ProjectRegistry interface)
// =============================================================================

// SaveProject creates or renames a project.
func (s *Store) SaveProject(ctx context.Context, code generic.ProjectCode, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO projects (code, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name
	`

	_, err := s.db.ExecContext(ctx, query, string(code), name, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return generic.NewStoreError("save project", err)
	}
	return nil
}

// AssignProject links a principal to an existing project.
func (s *Store) AssignProject(ctx context.Context, principal generic.PrincipalID, code generic.ProjectCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO project_assignments (principal, project, created_at) VALUES (?, ?, ?)",
		string(principal), string(code), s.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return generic.NewStoreError("assign project", fmt.Errorf("failed to assign %s to %s: %w", code, principal, err))
	}
	return nil
}

// UnassignProject removes a principal-to-project link. Entries are kept.
func (s *Store) UnassignProject(ctx context.Context, principal generic.PrincipalID, code generic.ProjectCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM project_assignments WHERE principal = ? AND project = ?",
		string(principal), string(code),
	)
	if err != nil {
		return generic.NewStoreError("unassign project", err)
	}
	return nil
}

// ProjectsFor returns the principal's projects in assignment order.
func (s *Store) ProjectsFor(ctx context.Context, principal generic.PrincipalID) ([]generic.ProjectCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT project FROM project_assignments WHERE principal = ? ORDER BY rowid",
		string(principal),
	)
	if err != nil {
		return nil, generic.NewStoreError("projects", err)
	}
	defer rows.Close()

	var codes []generic.ProjectCode
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, generic.NewStoreError("projects", err)
		}
		codes = append(codes, generic.ProjectCode(code))
	}
	if err := rows.Err(); err != nil {
		return nil, generic.NewStoreError("projects", err)
	}
	return codes, nil
}

// ProjectNames returns display names keyed by code.
func (s *Store) ProjectNames(ctx context.Context) (map[generic.ProjectCode]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT code, name FROM projects")
	if err != nil {
		return nil, generic.NewStoreError("project names", err)
	}
	defer rows.Close()

	names := make(map[generic.ProjectCode]string)
	for rows.Next() {
		var code, name string
		if err := rows.Scan(&code, &name); err != nil {
			return nil, generic.NewStoreError("project names", err)
		}
		names[generic.ProjectCode(code)] = name
	}
	if err := rows.Err(); err != nil {
		return nil, generic.NewStoreError("project names", err)
	}
	return names, nil
}

// =============================================================================
// HOLIDAY OVERRIDES
// =============================================================================

// SaveManualHoliday records a one-off holiday.
func (s *Store) SaveManualHoliday(ctx context.Context, d generic.Date, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO holiday_overrides (holiday_date, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(holiday_date) DO UPDATE SET
			name = excluded.name
	`

	_, err := s.db.ExecContext(ctx, query, d.String(), name, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return generic.NewStoreError("save holiday", err)
	}
	return nil
}

// DeleteManualHoliday removes a one-off holiday.
func (s *Store) DeleteManualHoliday(ctx context.Context, d generic.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM holiday_overrides WHERE holiday_date = ?", d.String())
	if err != nil {
		return generic.NewStoreError("delete holiday", err)
	}
	return nil
}

// ManualHolidays returns every override grouped by year, ready for timesheet.Config.
func (s *Store) ManualHolidays(ctx context.Context) (map[int][]generic.Date, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT holiday_date FROM holiday_overrides ORDER BY holiday_date")
	if err != nil {
		return nil, generic.NewStoreError("holidays", err)
	}
	defer rows.Close()

	byYear := make(map[int][]generic.Date)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, generic.NewStoreError("holidays", err)
		}
		day, err := generic.ParseDate(raw)
		if err != nil {
			return nil, generic.NewStoreError("holidays", err)
		}
		byYear[day.Year()] = append(byYear[day.Year()], day)
	}
	if err := rows.Err(); err != nil {
		return nil, generic.NewStoreError("holidays", err)
	}
	return byYear, nil
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears all entries (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM time_entries")
	return err
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
