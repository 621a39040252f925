/*
ledger.go - Draft/Submitted state machine over the record store

PURPOSE:
  The Ledger is the only component that changes TimeEntry rows. It owns
  the upsert rule, the three-pass submit protocol and week reset.

STATE MACHINE:
  (none) --put--> Draft --put--> Draft
                  Draft --submit--> Submitted
                  Submitted --put--> Submitted (ignored)
                  Submitted --reset--> (none)

  Nothing moves back to Draft. Reset deletes the week's rows and is only
  allowed once every row of the window is Submitted.

UPSERT (Put):
  no row         insert with the given state   -> PutInserted
  Submitted row  silently ignored              -> PutIgnored
  Draft row      overwrite hours and state     -> PutUpdated

  Put also refuses invalid hours and nonzero hours on a holiday.

SUBMIT PROTOCOL:
  1. Write:     put(Submitted) the staged value of every (project, date)
                whose date is neither a holiday nor after Today
  2. Reconcile: re-read the window and force every remaining Draft row to
                Submitted (rows written by leave registration before the
                session started are only reached here)
  3. Verify:    re-read again; any Draft row left is a PartialSubmitError

  Rows written by two independent paths (hour entry and leave registration)
  converge here, which is why passes 2 and 3 exist. The protocol is
  idempotent: repeating it after a partial failure is always safe.

CONCURRENCY:
  No locking. The caller keeps at most one mutating operation in flight per
  (principal, week) (see guard/). Store errors are returned unmodified and
  never retried here.

SEE ALSO:
  - generic/store.go: EntryStore contract
  - leave.go: Second write path into the ledger
  - validate.go: Rules checked before Submit is called
*/
package timesheet

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
)

// =============================================================================
// OUTCOMES AND STATES
// =============================================================================

// PutOutcome reports what an upsert did.
type PutOutcome int

const (
	PutInserted PutOutcome = iota + 1
	PutIgnored
	PutUpdated
)

func (o PutOutcome) String() string {
	switch o {
	case PutInserted:
		return "inserted"
	case PutIgnored:
		return "ignored"
	case PutUpdated:
		return "updated"
	}
	return "unknown"
}

// WeekState is the externally visible state of a window.
type WeekState string

const (
	WeekOpen      WeekState = "open"      // no rows yet
	WeekDraft     WeekState = "draft"     // every row Draft
	WeekPartial   WeekState = "partial"   // mixed Draft and Submitted
	WeekSubmitted WeekState = "submitted" // every row Submitted
)

// Locked reports whether ordinary writes are blocked.
func (s WeekState) Locked() bool { return s == WeekSubmitted }

// StateOf derives the week state from its rows.
func StateOf(entries []generic.TimeEntry) WeekState {
	if len(entries) == 0 {
		return WeekOpen
	}
	drafts := 0
	for _, e := range entries {
		if e.State.IsDraft() {
			drafts++
		}
	}
	switch drafts {
	case 0:
		return WeekSubmitted
	case len(entries):
		return WeekDraft
	}
	return WeekPartial
}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store generic.EntryStore
	cal   *HolidayCalendar
	log   zerolog.Logger
}

func NewLedger(store generic.EntryStore, cal *HolidayCalendar, logger zerolog.Logger) *Ledger {
	return &Ledger{
		store: store,
		cal:   cal,
		log:   logger.With().Str("component", "ledger").Logger(),
	}
}

// Put upserts one row following the Draft/Submitted rule.
func (l *Ledger) Put(ctx context.Context, principal generic.PrincipalID, project generic.ProjectCode, d generic.Date, hours generic.Hours, state generic.EntryState) (PutOutcome, error) {
	if principal == "" {
		return 0, generic.ErrUnauthenticated
	}
	var violations []Violation
	if !hours.Valid() {
		violations = append(violations, Violation{Kind: ViolationInvalidHours, Date: d, Project: project, Actual: hours})
	}
	if !hours.IsZero() && l.cal.IsHoliday(d) {
		violations = append(violations, Violation{Kind: ViolationHolidayEntryNotAllowed, Date: d, Actual: hours})
	}
	if err := newValidationError(violations...); err != nil {
		return 0, err
	}

	rows, err := l.store.Select(ctx, generic.EntryFilter{
		Principal: principal,
		Dates:     []generic.Date{d},
		Projects:  []generic.ProjectCode{project},
	})
	if err != nil {
		return 0, err
	}

	if len(rows) == 0 {
		err := l.store.Insert(ctx, generic.TimeEntry{
			Principal: principal,
			Project:   project,
			Date:      d,
			Hours:     hours,
			State:     state,
		})
		if err != nil {
			return 0, err
		}
		return PutInserted, nil
	}

	existing := rows[0]
	if existing.State.IsSubmitted() {
		return PutIgnored, nil
	}
	if err := l.store.Update(ctx, existing.ID, hours, state); err != nil {
		return 0, err
	}
	return PutUpdated, nil
}

// Entries returns the rows matching filter.
func (l *Ledger) Entries(ctx context.Context, filter generic.EntryFilter) ([]generic.TimeEntry, error) {
	if filter.Principal == "" {
		return nil, generic.ErrUnauthenticated
	}
	return l.store.Select(ctx, filter)
}

// WeekEntries returns every row of the principal on the window's dates.
func (l *Ledger) WeekEntries(ctx context.Context, principal generic.PrincipalID, window WeekWindow) ([]generic.TimeEntry, error) {
	return l.Entries(ctx, generic.EntryFilter{Principal: principal, Dates: window.Dates})
}

func (l *Ledger) WeekState(ctx context.Context, principal generic.PrincipalID, window WeekWindow) (WeekState, error) {
	rows, err := l.WeekEntries(ctx, principal, window)
	if err != nil {
		return "", err
	}
	return StateOf(rows), nil
}

// =============================================================================
// SUBMIT
// =============================================================================

type SubmitRequest struct {
	Principal generic.PrincipalID
	Window    WeekWindow
	Projects  []generic.ProjectCode
	Staged    HoursMatrix
	Today     generic.Date
}

// SubmitReport counts what each pass did.
type SubmitReport struct {
	Inserted   int
	Updated    int
	Ignored    int
	Reconciled int
	Rows       int
}

// Submit runs the write, reconcile and verify passes for one window.
func (l *Ledger) Submit(ctx context.Context, req SubmitRequest) (SubmitReport, error) {
	var report SubmitReport
	if req.Principal == "" {
		return report, generic.ErrUnauthenticated
	}
	log := l.log.With().
		Str("principal", string(req.Principal)).
		Str("week", req.Window.Start().String()).
		Logger()

	// Pass 1: write staged values.
	for _, project := range req.Projects {
		for _, d := range req.Window.Dates {
			if l.cal.IsHoliday(d) || d.After(req.Today) {
				continue
			}
			outcome, err := l.Put(ctx, req.Principal, project, d, req.Staged.Get(project, d), generic.StateSubmitted)
			if err != nil {
				return report, err
			}
			switch outcome {
			case PutInserted:
				report.Inserted++
			case PutUpdated:
				report.Updated++
			case PutIgnored:
				report.Ignored++
			}
		}
	}

	// Pass 2: reconcile residual drafts.
	drafts, err := l.drafts(ctx, req.Principal, req.Window)
	if err != nil {
		return report, err
	}
	for _, row := range drafts {
		if err := l.store.Update(ctx, row.ID, row.Hours, generic.StateSubmitted); err != nil {
			if errors.Is(err, generic.ErrEntryNotFound) {
				continue
			}
			return report, err
		}
		report.Reconciled++
	}
	if report.Reconciled > 0 {
		log.Warn().Int("rows", report.Reconciled).Msg("reconciled draft rows left outside the staged matrix")
	}

	// Pass 3: verify.
	rows, err := l.WeekEntries(ctx, req.Principal, req.Window)
	if err != nil {
		return report, err
	}
	report.Rows = len(rows)
	var residual []generic.EntryKey
	for _, row := range rows {
		if row.State.IsDraft() {
			residual = append(residual, row.Key())
		}
	}
	if len(residual) > 0 {
		log.Error().Int("rows", len(residual)).Msg("submission left draft rows")
		return report, &PartialSubmitError{Principal: req.Principal, Week: req.Window.Start(), Rows: residual}
	}

	log.Info().
		Int("inserted", report.Inserted).
		Int("updated", report.Updated).
		Int("ignored", report.Ignored).
		Int("reconciled", report.Reconciled).
		Msg("week submitted")
	return report, nil
}

func (l *Ledger) drafts(ctx context.Context, principal generic.PrincipalID, window WeekWindow) ([]generic.TimeEntry, error) {
	return l.store.Select(ctx, generic.EntryFilter{
		Principal: principal,
		Dates:     window.Dates,
		States:    []generic.EntryState{generic.StateDraft},
	})
}

// =============================================================================
// RESET AND REMOVAL
// =============================================================================

// Reset deletes every row of the window, returning it to WeekOpen.
// Only a fully Submitted window can be reset.
func (l *Ledger) Reset(ctx context.Context, principal generic.PrincipalID, window WeekWindow) (int, error) {
	state, err := l.WeekState(ctx, principal, window)
	if err != nil {
		return 0, err
	}
	if state != WeekSubmitted {
		return 0, fmt.Errorf("%w (week of %s is %s)", generic.ErrResetNotAllowed, window.Start(), state)
	}
	n, err := l.store.Delete(ctx, generic.EntryFilter{Principal: principal, Dates: window.Dates})
	if err != nil {
		return 0, err
	}
	l.log.Info().
		Str("principal", string(principal)).
		Str("week", window.Start().String()).
		Int("rows", n).
		Msg("week reset")
	return n, nil
}

// Remove deletes the principal's rows for one project on the given dates.
func (l *Ledger) Remove(ctx context.Context, principal generic.PrincipalID, project generic.ProjectCode, dates []generic.Date) (int, error) {
	if principal == "" {
		return 0, generic.ErrUnauthenticated
	}
	if len(dates) == 0 {
		return 0, nil
	}
	return l.store.Delete(ctx, generic.EntryFilter{
		Principal: principal,
		Dates:     dates,
		Projects:  []generic.ProjectCode{project},
	})
}
