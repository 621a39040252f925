/*
service.go - Engine facade used by the calling layer

PURPOSE:
  Wires calendar, resolver, ledger and leave registrar together and exposes
  the operations a timesheet screen performs, each resolved for the current
  principal and the injected clock:

    WeekView       window + matrix + totals + state for a week offset
    EnterHours     single-cell edit (Draft)
    SaveDraft      validate (draft rules) and write the whole matrix as Draft
    Submit         validate (submit rules) and run the three-pass protocol
    ResetWeek      delete a Submitted week so it can be re-entered
    RegisterLeave / DeleteLeave / LeavePeriods
    PendingDrafts  dates still holding Draft rows
    IsNewUser      principal has never booked anything

STAGED MATRIX:
  SaveDraft and Submit validate the stored rows with the caller's cells
  written over them, so rows created by leave registration count towards
  caps and weekly totals even when the caller never sent them.

CLOCK:
  The reference instant comes from an injected clock (time.Now by default);
  nothing below this file reads the system time.

SEE ALSO:
  - api/handlers.go: HTTP binding of these operations
*/
package timesheet

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	cfg      Config
	cal      *HolidayCalendar
	resolver *WeekResolver
	ledger   *Ledger
	leave    *LeaveRegistrar
	projects generic.ProjectRegistry
	auth     PrincipalProvider
	clock    func() time.Time
	loc      *time.Location
	log      zerolog.Logger
}

type Option func(*Service)

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.log = logger }
}

func WithPrincipalProvider(p PrincipalProvider) Option {
	return func(s *Service) { s.auth = p }
}

// WithLocation sets the zone weeks are resolved in (UTC by default).
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func NewService(cfg Config, store generic.EntryStore, projects generic.ProjectRegistry, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid timesheet config: %w", err)
	}
	s := &Service{
		cfg:      cfg,
		projects: projects,
		auth:     ContextPrincipal{},
		clock:    time.Now,
		loc:      time.UTC,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cal = NewHolidayCalendar(cfg)
	s.resolver = NewWeekResolver(cfg, s.loc)
	s.ledger = NewLedger(store, s.cal, s.log)
	s.leave = NewLeaveRegistrar(s.ledger, s.cal, s.resolver, cfg, s.log)
	return s, nil
}

func (s *Service) Config() Config             { return s.cfg }
func (s *Service) Calendar() *HolidayCalendar { return s.cal }
func (s *Service) Resolver() *WeekResolver    { return s.resolver }
func (s *Service) Ledger() *Ledger            { return s.ledger }

// Window resolves a week offset against the service clock.
func (s *Service) Window(offset int) WeekWindow {
	return s.resolver.ResolveWeek(s.clock(), offset)
}

func (s *Service) Today() generic.Date {
	return s.resolver.Today(s.clock())
}

func (s *Service) Holidays(year int) []generic.Date {
	return s.cal.HolidaysForYear(year)
}

// =============================================================================
// WEEK VIEW
// =============================================================================

type DayView struct {
	Date    generic.Date
	Label   string
	Cap     generic.Hours
	Holiday bool
	Future  bool
	Total   generic.Hours
}

type ProjectLine struct {
	Code  generic.ProjectCode
	Name  string
	Leave bool
	Hours []generic.Hours // aligned with WeekView.Days
	Total generic.Hours
}

type WeekView struct {
	Offset   int
	Label    string
	Today    generic.Date
	Days     []DayView
	Projects []ProjectLine
	Total    generic.Hours
	Expected generic.Hours
	State    WeekState

	// PrevWeekSubmitted is set for the current week only.
	PrevWeekSubmitted bool
}

func (s *Service) WeekView(ctx context.Context, offset int) (WeekView, error) {
	principal, err := requirePrincipal(ctx, s.auth)
	if err != nil {
		return WeekView{}, err
	}
	now := s.clock()
	window := s.resolver.ResolveWeek(now, offset)
	today := s.resolver.Today(now)

	rows, err := s.ledger.WeekEntries(ctx, principal, window)
	if err != nil {
		return WeekView{}, err
	}
	matrix := MatrixFromEntries(rows)
	codes, err := s.weekProjects(ctx, principal, matrix)
	if err != nil {
		return WeekView{}, err
	}
	names, err := s.projects.ProjectNames(ctx)
	if err != nil {
		return WeekView{}, err
	}

	view := WeekView{
		Offset:   offset,
		Label:    window.Label(),
		Today:    today,
		State:    StateOf(rows),
		Total:    generic.ZeroHours(),
		Expected: generic.ZeroHours(),
	}
	for _, d := range window.Dates {
		day := DayView{
			Date:    d,
			Label:   d.ShortLabel(),
			Cap:     s.cal.DailyCap(d),
			Holiday: s.cal.IsHoliday(d),
			Future:  d.After(today),
			Total:   matrix.DayTotal(d),
		}
		if !day.Holiday {
			view.Expected = view.Expected.Add(day.Cap)
		}
		view.Total = view.Total.Add(day.Total)
		view.Days = append(view.Days, day)
	}
	for _, code := range codes {
		line := ProjectLine{
			Code:  code,
			Name:  names[code],
			Leave: s.cfg.IsLeaveProject(code),
			Total: matrix.ProjectTotal(code, window.Dates),
		}
		if line.Name == "" {
			line.Name = string(code)
		}
		for _, d := range window.Dates {
			line.Hours = append(line.Hours, matrix.Get(code, d))
		}
		view.Projects = append(view.Projects, line)
	}

	if offset == 0 {
		prev, err := s.ledger.Entries(ctx, generic.EntryFilter{
			Principal: principal,
			Dates:     s.resolver.ResolveWeek(now, -1).Dates,
			States:    []generic.EntryState{generic.StateSubmitted},
		})
		if err != nil {
			return WeekView{}, err
		}
		view.PrevWeekSubmitted = len(prev) > 0
	}
	return view, nil
}

// weekProjects returns the assigned projects followed by any other project
// present in the matrix (leave rows, since-unassigned projects).
func (s *Service) weekProjects(ctx context.Context, principal generic.PrincipalID, matrix HoursMatrix) ([]generic.ProjectCode, error) {
	assigned, err := s.projects.ProjectsFor(ctx, principal)
	if err != nil {
		return nil, err
	}
	seen := make(map[generic.ProjectCode]bool, len(assigned))
	codes := make([]generic.ProjectCode, 0, len(assigned))
	for _, code := range assigned {
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	for _, code := range matrix.Projects() {
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	return codes, nil
}

// =============================================================================
// HOUR ENTRY
// =============================================================================

// EnterHours writes one Draft cell after checking it against the rest of the day.
func (s *Service) EnterHours(ctx context.Context, offset int, project generic.ProjectCode, d generic.Date, hours generic.Hours) (PutOutcome, error) {
	principal, err := requirePrincipal(ctx, s.auth)
	if err != nil {
		return 0, err
	}
	now := s.clock()
	window := s.resolver.ResolveWeek(now, offset)
	rows, err := s.ledger.WeekEntries(ctx, principal, window)
	if err != nil {
		return 0, err
	}
	if StateOf(rows).Locked() {
		return 0, generic.ErrWeekLocked
	}

	var violations []Violation
	if !window.Contains(d) || d.After(s.resolver.Today(now)) {
		violations = append(violations, Violation{Kind: ViolationDateNotEditable, Date: d, Project: project})
	}
	if !hours.Valid() {
		violations = append(violations, Violation{Kind: ViolationInvalidHours, Date: d, Project: project, Actual: hours})
	}
	if !hours.IsZero() && s.cal.IsHoliday(d) {
		violations = append(violations, Violation{Kind: ViolationHolidayEntryNotAllowed, Date: d, Actual: hours})
	}
	others := generic.ZeroHours()
	for _, row := range rows {
		if row.Date == d && row.Project != project {
			others = others.Add(row.Hours)
		}
	}
	if total, limit := others.Add(hours), s.cal.DailyCap(d); total.GreaterThan(limit) {
		violations = append(violations, Violation{Kind: ViolationDailyCapExceeded, Date: d, Actual: total, Limit: limit})
	}
	if err := newValidationError(violations...); err != nil {
		return 0, err
	}
	return s.ledger.Put(ctx, principal, project, d, hours, generic.StateDraft)
}

// SaveDraft validates the staged matrix with draft rules and writes every
// editable cell as Draft. Returns the number of cells written.
func (s *Service) SaveDraft(ctx context.Context, offset int, staged HoursMatrix) (int, error) {
	principal, err := requirePrincipal(ctx, s.auth)
	if err != nil {
		return 0, err
	}
	now := s.clock()
	window := s.resolver.ResolveWeek(now, offset)
	today := s.resolver.Today(now)

	merged, codes, state, err := s.stage(ctx, principal, window, staged)
	if err != nil {
		return 0, err
	}
	if state.Locked() {
		return 0, generic.ErrWeekLocked
	}
	violations := Validate(ValidationInput{Matrix: merged, Window: window, Calendar: s.cal, Today: today, Mode: ModeDraft})
	if err := newValidationError(violations...); err != nil {
		return 0, err
	}

	written := 0
	for _, code := range codes {
		for _, d := range window.Dates {
			if s.cal.IsHoliday(d) || d.After(today) {
				continue
			}
			outcome, err := s.ledger.Put(ctx, principal, code, d, merged.Get(code, d), generic.StateDraft)
			if err != nil {
				return written, err
			}
			if outcome != PutIgnored {
				written++
			}
		}
	}
	s.log.Debug().Str("principal", string(principal)).Str("week", window.Start().String()).Int("cells", written).Msg("draft saved")
	return written, nil
}

// Submit validates the staged matrix with submit rules, then runs the ledger protocol.
func (s *Service) Submit(ctx context.Context, offset int, staged HoursMatrix) (SubmitReport, error) {
	principal, err := requirePrincipal(ctx, s.auth)
	if err != nil {
		return SubmitReport{}, err
	}
	now := s.clock()
	window := s.resolver.ResolveWeek(now, offset)
	today := s.resolver.Today(now)

	merged, codes, state, err := s.stage(ctx, principal, window, staged)
	if err != nil {
		return SubmitReport{}, err
	}
	if state.Locked() {
		return SubmitReport{}, generic.ErrWeekLocked
	}
	violations := Validate(ValidationInput{Matrix: merged, Window: window, Calendar: s.cal, Today: today, Mode: ModeSubmit})
	if err := newValidationError(violations...); err != nil {
		return SubmitReport{}, err
	}
	return s.ledger.Submit(ctx, SubmitRequest{
		Principal: principal,
		Window:    window,
		Projects:  codes,
		Staged:    merged,
		Today:     today,
	})
}

// stage loads the window, overlays the caller's cells and resolves the project list.
func (s *Service) stage(ctx context.Context, principal generic.PrincipalID, window WeekWindow, staged HoursMatrix) (HoursMatrix, []generic.ProjectCode, WeekState, error) {
	rows, err := s.ledger.WeekEntries(ctx, principal, window)
	if err != nil {
		return nil, nil, "", err
	}
	merged := MatrixFromEntries(rows).Overlay(staged)
	codes, err := s.weekProjects(ctx, principal, merged)
	if err != nil {
		return nil, nil, "", err
	}
	return merged, codes, StateOf(rows), nil
}

// ResetWeek deletes a Submitted week so it can be entered again.
func (s *Service) ResetWeek(ctx context.Context, offset int) (int, error) {
	principal, err := requirePrincipal(ctx, s.auth)
	if err != nil {
		return 0, err
	}
	return s.ledger.Reset(ctx, principal, s.Window(offset))
}

// =============================================================================
// LEAVE
// =============================================================================

func (s *Service) RegisterLeave(ctx context.Context, reason LeaveReason, start, end generic.Date) (LeaveResult, error) {
	principal, err := requirePrincipal(ctx, s.auth)
	if err != nil {
		return LeaveResult{}, err
	}
	return s.leave.Register(ctx, LeaveRequest{Principal: principal, Reason: reason, Start: start, End: end}, s.clock())
}

func (s *Service) DeleteLeave(ctx context.Context, reason LeaveReason, start, end generic.Date) (DeleteResult, error) {
	principal, err := requirePrincipal(ctx, s.auth)
	if err != nil {
		return DeleteResult{}, err
	}
	return s.leave.Delete(ctx, principal, reason, start, end, s.clock())
}

func (s *Service) LeavePeriods(ctx context.Context) ([]LeavePeriod, error) {
	principal, err := requirePrincipal(ctx, s.auth)
	if err != nil {
		return nil, err
	}
	return s.leave.Periods(ctx, principal, s.clock())
}

// =============================================================================
// PRINCIPAL QUERIES
// =============================================================================

// PendingDrafts returns the distinct dates holding Draft rows, oldest first.
func (s *Service) PendingDrafts(ctx context.Context) ([]generic.Date, error) {
	principal, err := requirePrincipal(ctx, s.auth)
	if err != nil {
		return nil, err
	}
	rows, err := s.ledger.Entries(ctx, generic.EntryFilter{
		Principal: principal,
		States:    []generic.EntryState{generic.StateDraft},
	})
	if err != nil {
		return nil, err
	}
	seen := make(map[generic.Date]bool)
	var dates []generic.Date
	for _, row := range rows {
		if !seen[row.Date] {
			seen[row.Date] = true
			dates = append(dates, row.Date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// IsNewUser reports whether the principal has no rows at all.
func (s *Service) IsNewUser(ctx context.Context) (bool, error) {
	principal, err := requirePrincipal(ctx, s.auth)
	if err != nil {
		return false, err
	}
	rows, err := s.ledger.Entries(ctx, generic.EntryFilter{Principal: principal})
	if err != nil {
		return false, err
	}
	return len(rows) == 0, nil
}
