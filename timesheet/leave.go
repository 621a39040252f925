/*
leave.go - Vacation and medical-leave blocks

PURPOSE:
  A leave block is never stored as its own row. Registering one expands the
  range into business days and writes one TimeEntry per day through the
  Ledger, on the project code configured for the reason, with that day's
  cap as hours (the reduced last-day cap included).

REGISTER:
  1. Reject end < start
  2. Expand to business days (weekends, days outside the configured week
     and holidays excluded)
  3. Conflict check across all projects: a Submitted row, or a Draft row
     with hours, on any of those days fails the whole block; nothing is written
  4. State: Submitted when the block starts in a week before the current
     one or covers a full configured week, Draft otherwise
  5. Ledger.Put per day

DELETE:
  Calendar days of the range from the current Monday on; days before it are
  already consumed and never touched. An empty set is a reported no-op.

PERIODS:
  Lists the principal's leave blocks by grouping rows on consecutive
  business days per reason, keeping blocks that end this week or later.

SEE ALSO:
  - ledger.go: Put / Remove
  - calendar.go: IsBusinessDay / NextBusinessDay
*/
package timesheet

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
)

// =============================================================================
// TYPES
// =============================================================================

type LeaveRequest struct {
	Principal generic.PrincipalID
	Reason    LeaveReason
	Start     generic.Date
	End       generic.Date
}

type LeaveResult struct {
	Project generic.ProjectCode
	State   generic.EntryState
	Days    []generic.Date
	Hours   generic.Hours
}

type DeleteResult struct {
	Project generic.ProjectCode
	Days    []generic.Date
	Removed int
	NoOp    bool
}

// LeavePeriod is a block reconstructed from stored leave rows.
type LeavePeriod struct {
	Reason  LeaveReason
	Project generic.ProjectCode
	Start   generic.Date
	End     generic.Date
	Days    int
	Hours   generic.Hours
	State   generic.EntryState
}

// =============================================================================
// REGISTRAR
// =============================================================================

type LeaveRegistrar struct {
	ledger   *Ledger
	cal      *HolidayCalendar
	resolver *WeekResolver
	cfg      Config
	log      zerolog.Logger
}

func NewLeaveRegistrar(ledger *Ledger, cal *HolidayCalendar, resolver *WeekResolver, cfg Config, logger zerolog.Logger) *LeaveRegistrar {
	return &LeaveRegistrar{
		ledger:   ledger,
		cal:      cal,
		resolver: resolver,
		cfg:      cfg,
		log:      logger.With().Str("component", "leave").Logger(),
	}
}

// Register expands and writes a leave block. now is the reference instant.
func (r *LeaveRegistrar) Register(ctx context.Context, req LeaveRequest, now time.Time) (LeaveResult, error) {
	if req.Principal == "" {
		return LeaveResult{}, generic.ErrUnauthenticated
	}
	project, ok := r.cfg.LeaveProjects[req.Reason]
	if !ok {
		return LeaveResult{}, newValidationError(Violation{Kind: ViolationUnknownReason})
	}
	period := generic.Period{Start: req.Start, End: req.End}
	if err := period.Validate(); err != nil {
		return LeaveResult{}, newValidationError(Violation{Kind: ViolationInvalidPeriod})
	}

	days := r.cal.BusinessDays(period)
	if len(days) == 0 {
		return LeaveResult{}, newValidationError(Violation{Kind: ViolationNoBusinessDays})
	}

	existing, err := r.ledger.Entries(ctx, generic.EntryFilter{Principal: req.Principal, Dates: days})
	if err != nil {
		return LeaveResult{}, err
	}
	if conflicts := conflictingDates(existing); len(conflicts) > 0 {
		return LeaveResult{}, &ConflictError{Principal: req.Principal, Dates: conflicts}
	}

	state := generic.StateDraft
	currentMonday := r.resolver.CurrentMonday(now)
	if days[0].WeekStart().Before(currentMonday) || len(days) == r.cfg.DaysPerWeek {
		state = generic.StateSubmitted
	}

	result := LeaveResult{Project: project, State: state, Days: days, Hours: generic.ZeroHours()}
	for _, d := range days {
		hours := r.cal.DailyCap(d)
		if _, err := r.ledger.Put(ctx, req.Principal, project, d, hours, state); err != nil {
			return LeaveResult{}, err
		}
		result.Hours = result.Hours.Add(hours)
	}

	r.log.Info().
		Str("principal", string(req.Principal)).
		Str("reason", string(req.Reason)).
		Str("from", req.Start.String()).
		Str("to", req.End.String()).
		Int("days", len(days)).
		Str("state", string(state)).
		Msg("leave registered")
	return result, nil
}

// conflictingDates returns the distinct sorted dates holding a Submitted row
// or a Draft row with hours.
func conflictingDates(entries []generic.TimeEntry) []generic.Date {
	seen := make(map[generic.Date]struct{})
	var dates []generic.Date
	for _, e := range entries {
		if e.State.IsDraft() && e.Hours.IsZero() {
			continue
		}
		if _, dup := seen[e.Date]; dup {
			continue
		}
		seen[e.Date] = struct{}{}
		dates = append(dates, e.Date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Delete removes the reason's rows in [start, end] from the current Monday on.
func (r *LeaveRegistrar) Delete(ctx context.Context, principal generic.PrincipalID, reason LeaveReason, start, end generic.Date, now time.Time) (DeleteResult, error) {
	if principal == "" {
		return DeleteResult{}, generic.ErrUnauthenticated
	}
	project, ok := r.cfg.LeaveProjects[reason]
	if !ok {
		return DeleteResult{}, newValidationError(Violation{Kind: ViolationUnknownReason})
	}
	period := generic.Period{Start: start, End: end}
	if err := period.Validate(); err != nil {
		return DeleteResult{}, newValidationError(Violation{Kind: ViolationInvalidPeriod})
	}

	currentMonday := r.resolver.CurrentMonday(now)
	var days []generic.Date
	for _, d := range period.Days() {
		if d.AfterOrEqual(currentMonday) {
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		r.log.Debug().
			Str("principal", string(principal)).
			Str("from", start.String()).
			Str("to", end.String()).
			Msg("leave delete skipped, range is before the current week")
		return DeleteResult{Project: project, NoOp: true}, nil
	}

	removed, err := r.ledger.Remove(ctx, principal, project, days)
	if err != nil {
		return DeleteResult{}, err
	}
	r.log.Info().
		Str("principal", string(principal)).
		Str("reason", string(reason)).
		Int("rows", removed).
		Msg("leave deleted")
	return DeleteResult{Project: project, Days: days, Removed: removed}, nil
}

// Periods lists the principal's leave blocks that end on or after the current Monday.
func (r *LeaveRegistrar) Periods(ctx context.Context, principal generic.PrincipalID, now time.Time) ([]LeavePeriod, error) {
	projects := make([]generic.ProjectCode, 0, len(r.cfg.LeaveProjects))
	for _, reason := range LeaveReasons() {
		if code, ok := r.cfg.LeaveProjects[reason]; ok {
			projects = append(projects, code)
		}
	}
	rows, err := r.ledger.Entries(ctx, generic.EntryFilter{Principal: principal, Projects: projects})
	if err != nil {
		return nil, err
	}

	byProject := make(map[generic.ProjectCode][]generic.TimeEntry)
	for _, row := range rows {
		if row.Hours.IsPositive() {
			byProject[row.Project] = append(byProject[row.Project], row)
		}
	}

	currentMonday := r.resolver.CurrentMonday(now)
	var periods []LeavePeriod
	for _, project := range projects {
		reason, _ := r.cfg.ReasonFor(project)
		for _, p := range r.group(reason, project, byProject[project]) {
			if p.End.AfterOrEqual(currentMonday) {
				periods = append(periods, p)
			}
		}
	}
	sort.SliceStable(periods, func(i, j int) bool { return periods[i].Start.Before(periods[j].Start) })
	return periods, nil
}

// group splits date-ordered rows into runs of consecutive business days.
func (r *LeaveRegistrar) group(reason LeaveReason, project generic.ProjectCode, rows []generic.TimeEntry) []LeavePeriod {
	var periods []LeavePeriod
	var cur *LeavePeriod
	for _, row := range rows {
		if cur != nil && row.Date == r.cal.NextBusinessDay(cur.End) {
			cur.End = row.Date
			cur.Days++
			cur.Hours = cur.Hours.Add(row.Hours)
			if row.State.IsDraft() {
				cur.State = generic.StateDraft
			}
			continue
		}
		if cur != nil {
			periods = append(periods, *cur)
		}
		cur = &LeavePeriod{
			Reason:  reason,
			Project: project,
			Start:   row.Date,
			End:     row.Date,
			Days:    1,
			Hours:   row.Hours,
			State:   row.State,
		}
	}
	if cur != nil {
		periods = append(periods, *cur)
	}
	return periods
}
