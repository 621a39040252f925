/*
Package postgres provides a PostgreSQL-backed implementation of the storage interfaces.

PURPOSE:
  Shared deployments keep time entries in PostgreSQL. The contracts are the
  same as store/sqlite; this package adds connection pooling, a per-call
  query timeout and a circuit breaker so a failing database surfaces as a
  fast generic.ErrStore instead of piling up blocked requests.

INTERFACES IMPLEMENTED:
  generic.EntryStore:      Time entry persistence
  generic.ProjectRegistry: Project assignments and display names

ERROR MAPPING:
  unique_violation (23505) -> generic.ErrDuplicateEntry
  zero rows on UPDATE      -> generic.ErrEntryNotFound
  breaker open             -> generic.ErrStore wrapping gobreaker.ErrOpenState

  Duplicate and not-found results are caller outcomes, not database faults,
  and do not count towards tripping the breaker.

USAGE:
  store, err := postgres.Open(postgres.DefaultConfig())
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - store/sqlite/sqlite.go: Embedded implementation with the same schema
  - generic/store.go: Interface definitions
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sony/gobreaker"

	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds connection, pool and breaker settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration

	// BreakerFailures consecutive failures open the breaker for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// DefaultConfig returns sensible defaults for a small shared database.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		QueryTimeout:    30 * time.Second,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// =============================================================================
// STORE
// =============================================================================

// Store implements the storage interfaces on PostgreSQL.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

var (
	_ generic.EntryStore      = (*Store)(nil)
	_ generic.ProjectRegistry = (*Store)(nil)
)

// Open connects to PostgreSQL and verifies the connection.
func Open(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.QueryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(db, cfg), nil
}

// New wraps an existing connection. Zero timeouts and thresholds fall back to DefaultConfig.
func New(db *sqlx.DB, cfg Config) *Store {
	def := DefaultConfig()
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = def.QueryTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = def.BreakerCooldown
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "postgres",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, generic.ErrDuplicateEntry) ||
				errors.Is(err, generic.ErrEntryNotFound) ||
				errors.Is(err, context.Canceled)
		},
	})

	return &Store{
		db:      db,
		timeout: cfg.QueryTimeout,
		breaker: breaker,
		now:     time.Now,
	}
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// BreakerState reports the breaker state ("closed", "half-open", "open").
func (s *Store) BreakerState() string {
	return s.breaker.State().String()
}

// run executes fn under the breaker with the per-call timeout and wraps
// any failure as a StoreError.
func (s *Store) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return nil, fn(ctx)
	})
	return generic.NewStoreError(op, err)
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS time_entries (
		id UUID PRIMARY KEY,
		principal TEXT NOT NULL,
		project TEXT NOT NULL,
		entry_date DATE NOT NULL,
		hours NUMERIC(4,1) NOT NULL CHECK (hours >= 0),
		state TEXT NOT NULL CHECK (state IN ('draft', 'submitted')),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (principal, project, entry_date)
	);

	CREATE INDEX IF NOT EXISTS idx_time_entries_principal_date
		ON time_entries(principal, entry_date);
	CREATE INDEX IF NOT EXISTS idx_time_entries_principal_state
		ON time_entries(principal, state);

	CREATE TABLE IF NOT EXISTS projects (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS project_assignments (
		principal TEXT NOT NULL,
		project TEXT NOT NULL REFERENCES projects(code) ON DELETE CASCADE,
		assigned_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (principal, project)
	);

	CREATE TABLE IF NOT EXISTS holiday_overrides (
		holiday_date DATE PRIMARY KEY,
		name TEXT NOT NULL DEFAULT ''
	);
	`

	return s.run(ctx, "migrate", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, schema)
		return err
	})
}

// =============================================================================
// ENTRY STORE (generic.EntryStore interface)
// =============================================================================

type entryRow struct {
	ID        string    `db:"id"`
	Principal string    `db:"principal"`
	Project   string    `db:"project"`
	EntryDate time.Time `db:"entry_date"`
	Hours     string    `db:"hours"`
	State     string    `db:"state"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r entryRow) entry() (generic.TimeEntry, error) {
	hours, err := generic.ParseHours(r.Hours)
	if err != nil {
		return generic.TimeEntry{}, err
	}
	state, err := generic.ParseEntryState(r.State)
	if err != nil {
		return generic.TimeEntry{}, err
	}
	return generic.TimeEntry{
		ID:        generic.EntryID(r.ID),
		Principal: generic.PrincipalID(r.Principal),
		Project:   generic.ProjectCode(r.Project),
		Date:      generic.DateOf(r.EntryDate),
		Hours:     hours,
		State:     state,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// Select returns matching rows ordered by date, then project.
func (s *Store) Select(ctx context.Context, filter generic.EntryFilter) ([]generic.TimeEntry, error) {
	where, args, err := s.filterClause(filter)
	if err != nil {
		return nil, generic.NewStoreError("select", err)
	}
	query := `
		SELECT id, principal, project, entry_date, hours, state, created_at, updated_at
		FROM time_entries
		WHERE ` + where + `
		ORDER BY entry_date ASC, project ASC`

	var entries []generic.TimeEntry
	err = s.run(ctx, "select", func(ctx context.Context) error {
		rows, err := s.db.QueryxContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to query entries: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var r entryRow
			if err := rows.StructScan(&r); err != nil {
				return fmt.Errorf("failed to scan entry: %w", err)
			}
			e, err := r.entry()
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Insert adds a row. unique_violation surfaces as generic.ErrDuplicateEntry.
func (s *Store) Insert(ctx context.Context, entry generic.TimeEntry) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	return s.run(ctx, "insert", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			string(entry.ID),
			string(entry.Principal),
			string(entry.Project),
			entry.Date.String(),
			entry.Hours.String(),
			string(entry.State),
			entry.CreatedAt,
			now,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", generic.ErrDuplicateEntry, entry.Key())
			}
			return fmt.Errorf("failed to insert entry: %w", err)
		}
		return nil
	})
}

// Update overwrites hours and state of an existing row.
func (s *Store) Update(ctx context.Context, id generic.EntryID, hours generic.Hours, state generic.EntryState) error {
	query := `UPDATE time_entries SET hours = $1, state = $2, updated_at = $3 WHERE id = $4`

	return s.run(ctx, "update", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, query, hours.String(), string(state), s.now().UTC(), string(id))
		if err != nil {
			return fmt.Errorf("failed to update entry: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", generic.ErrEntryNotFound, id)
		}
		return nil
	})
}

// Delete removes matching rows.
func (s *Store) Delete(ctx context.Context, filter generic.EntryFilter) (int, error) {
	where, args, err := s.filterClause(filter)
	if err != nil {
		return 0, generic.NewStoreError("delete", err)
	}

	var removed int
	err = s.run(ctx, "delete", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM time_entries WHERE "+where, args...)
		if err != nil {
			return fmt.Errorf("failed to delete entries: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = int(n)
		return nil
	})
	return removed, err
}

// filterClause renders an EntryFilter with bindvars expanded for the driver.
func (s *Store) filterClause(f generic.EntryFilter) (string, []interface{}, error) {
	clauses := []string{"principal = ?"}
	args := []interface{}{string(f.Principal)}

	if len(f.Dates) > 0 {
		dates := make([]string, len(f.Dates))
		for i, d := range f.Dates {
			dates[i] = d.String()
		}
		clauses = append(clauses, "entry_date IN (?)")
		args = append(args, dates)
	}
	if len(f.States) > 0 {
		states := make([]string, len(f.States))
		for i, st := range f.States {
			states[i] = string(st)
		}
		clauses = append(clauses, "state IN (?)")
		args = append(args, states)
	}
	if len(f.Projects) > 0 {
		projects := make([]string, len(f.Projects))
		for i, p := range f.Projects {
			projects[i] = string(p)
		}
		clauses = append(clauses, "project IN (?)")
		args = append(args, projects)
	}

	where, args, err := sqlx.In(strings.Join(clauses, " AND "), args...)
	if err != nil {
		return "", nil, fmt.Errorf("failed to expand filter: %w", err)
	}
	return s.db.Rebind(where), args, nil
}

// =============================================================================
// PROJECT REGISTRY (generic.ProjectRegistry interface)
// =============================================================================

// SaveProject creates or renames a project.
func (s *Store) SaveProject(ctx context.Context, code generic.ProjectCode, name string) error {
	query := `
		INSERT INTO projects (code, name) VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name`

	return s.run(ctx, "save project", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query, string(code), name)
		return err
	})
}

// AssignProject links a principal to an existing project.
func (s *Store) AssignProject(ctx context.Context, principal generic.PrincipalID, code generic.ProjectCode) error {
	query := `
		INSERT INTO project_assignments (principal, project) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	return s.run(ctx, "assign project", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query, string(principal), string(code))
		if err != nil {
			return fmt.Errorf("failed to assign %s to %s: %w", code, principal, err)
		}
		return nil
	})
}

// ProjectsFor returns the principal's projects in assignment order.
func (s *Store) ProjectsFor(ctx context.Context, principal generic.PrincipalID) ([]generic.ProjectCode, error) {
	query := `
		SELECT project FROM project_assignments
		WHERE principal = $1
		ORDER BY assigned_at ASC, project ASC`

	var raw []string
	err := s.run(ctx, "projects", func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &raw, query, string(principal))
	})
	if err != nil {
		return nil, err
	}

	codes := make([]generic.ProjectCode, len(raw))
	for i, c := range raw {
		codes[i] = generic.ProjectCode(c)
	}
	return codes, nil
}

// ProjectNames returns display names keyed by code.
func (s *Store) ProjectNames(ctx context.Context) (map[generic.ProjectCode]string, error) {
	var rows []struct {
		Code string `db:"code"`
		Name string `db:"name"`
	}
	err := s.run(ctx, "project names", func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &rows, "SELECT code, name FROM projects")
	})
	if err != nil {
		return nil, err
	}

	names := make(map[generic.ProjectCode]string, len(rows))
	for _, r := range rows {
		names[generic.ProjectCode(r.Code)] = r.Name
	}
	return names, nil
}

// =============================================================================
// HOLIDAY OVERRIDES
// =============================================================================

// SaveManualHoliday records a one-off holiday.
func (s *Store) SaveManualHoliday(ctx context.Context, d generic.Date, name string) error {
	query := `
		INSERT INTO holiday_overrides (holiday_date, name) VALUES ($1, $2)
		ON CONFLICT (holiday_date) DO UPDATE SET name = EXCLUDED.name`

	return s.run(ctx, "save holiday", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query, d.String(), name)
		return err
	})
}

// ManualHolidays returns every override grouped by year.
func (s *Store) ManualHolidays(ctx context.Context) (map[int][]generic.Date, error) {
	var raw []time.Time
	err := s.run(ctx, "holidays", func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &raw, "SELECT holiday_date FROM holiday_overrides ORDER BY holiday_date")
	})
	if err != nil {
		return nil, err
	}

	byYear := make(map[int][]generic.Date)
	for _, t := range raw {
		d := generic.DateOf(t)
		byYear[d.Year()] = append(byYear[d.Year()], d)
	}
	return byYear, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
