/*
handlers.go - HTTP API handlers for the timesheet engine

PURPOSE:
  Exposes timesheet.Service via REST API. Handles HTTP request/response,
  JSON serialization, week navigation limits and the in-flight guard, and
  delegates every rule to the engine.

ENDPOINTS:
  Weeks (offset relative to the current week, 0 = this week):
    GET    /api/weeks/{offset}          Week grid with totals and state
    PUT    /api/weeks/{offset}/hours    Set one project/day cell (Draft)
    POST   /api/weeks/{offset}/draft    Save staged cells as Draft
    POST   /api/weeks/{offset}/submit   Validate and submit the week
    POST   /api/weeks/{offset}/reset    Delete a submitted week

  Leave:
    GET    /api/leave                   Registered leave periods
    POST   /api/leave                   Register a leave block
    DELETE /api/leave?reason=&start=&end=  Remove a leave block

  Other:
    GET    /api/holidays/{year}         Holiday dates of a year
    GET    /api/drafts                  Dates holding Draft rows
    GET    /api/me                      Principal, new-user flag, pending drafts

REQUEST FLOW:
  1. Parse offset / body (400 on malformed input)
  2. Check the navigation window (400 outside it)
  3. Acquire the (principal, week) guard for mutations (409 if held)
  4. Call the service
  5. Map engine errors to status codes

ERROR HANDLING:
  - 400: Malformed input, offset outside the navigation window, leave
         range longer than MaxLeaveDays
  - 401: No principal
  - 409: Conflict, week locked, reset not allowed, partial submit, in flight
  - 422: Validation failed (every violation listed)
  - 502: Record store failure
  - 500: Anything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - principal.go: Principal extraction
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
	"github.com/aangel-sama/CyDRegistroHHMineria/guard"
	"github.com/aangel-sama/CyDRegistroHHMineria/timesheet"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Options configures the HTTP layer.
type Options struct {
	// Navigation window: offsets in [-MaxPastWeeks, +MaxFutureWeeks].
	MaxPastWeeks   int
	MaxFutureWeeks int

	AllowedOrigins  []string
	PrincipalHeader string // default X-Principal

	Logger zerolog.Logger

	// Health reports whether the record store is reachable. Optional.
	Health func(ctx context.Context) error
}

// DefaultOptions allows navigating one week
// back and a year ahead.
func DefaultOptions() Options {
	return Options{
		MaxPastWeeks:    1,
		MaxFutureWeeks:  52,
		AllowedOrigins:  []string{"*"},
		PrincipalHeader: DefaultPrincipalHeader,
		Logger:          zerolog.Nop(),
	}
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *timesheet.Service
	Guard   guard.Guard
	Metrics *Metrics

	opts Options
}

// NewHandler creates a handler. A nil guard defaults to an in-process one;
// nil metrics to a fresh registry.
func NewHandler(svc *timesheet.Service, g guard.Guard, m *Metrics, opts Options) *Handler {
	if g == nil {
		g = guard.NewLocal()
	}
	if m == nil {
		m = NewMetrics()
	}
	if opts.PrincipalHeader == "" {
		opts.PrincipalHeader = DefaultPrincipalHeader
	}
	return &Handler{
		Service: svc,
		Guard:   g,
		Metrics: m,
		opts:    opts,
	}
}

// =============================================================================
// WEEK HANDLERS
// =============================================================================

// GetWeek returns the week grid.
func (h *Handler) GetWeek(w http.ResponseWriter, r *http.Request) {
	offset, ok := h.offset(w, r)
	if !ok {
		return
	}

	view, err := h.Service.WeekView(r.Context(), offset)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toWeekDTO(view, h.Service.Window(offset)))
}

// EnterHours sets a single cell.
func (h *Handler) EnterHours(w http.ResponseWriter, r *http.Request) {
	offset, ok := h.offset(w, r)
	if !ok {
		return
	}

	var req CellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	d, err := generic.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	if req.Project == "" {
		writeError(w, http.StatusBadRequest, "project is required", nil)
		return
	}

	release, err := h.lockWeek(r, offset)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	defer release()

	outcome, err := h.Service.EnterHours(r.Context(), offset, generic.ProjectCode(req.Project), d, req.Hours)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"outcome": outcome.String()})
}

// SaveDraft stores the staged cells as Draft.
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	offset, ok := h.offset(w, r)
	if !ok {
		return
	}
	staged, ok := decodeMatrix(w, r)
	if !ok {
		return
	}

	release, err := h.lockWeek(r, offset)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	defer release()

	written, err := h.Service.SaveDraft(r.Context(), offset, staged)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"written": written})
}

// SubmitWeek validates and submits the week.
func (h *Handler) SubmitWeek(w http.ResponseWriter, r *http.Request) {
	offset, ok := h.offset(w, r)
	if !ok {
		return
	}
	staged, ok := decodeMatrix(w, r)
	if !ok {
		return
	}

	release, err := h.lockWeek(r, offset)
	if err != nil {
		h.Metrics.Submissions.WithLabelValues(submitOutcome(err)).Inc()
		h.writeEngineError(w, r, err)
		return
	}
	defer release()

	report, err := h.Service.Submit(r.Context(), offset, staged)
	h.Metrics.Submissions.WithLabelValues(submitOutcome(err)).Inc()
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	hlog.FromRequest(r).Info().
		Int("offset", offset).
		Int("rows", report.Rows).
		Msg("week submitted")
	writeJSON(w, http.StatusOK, toSubmitReportDTO(report))
}

// ResetWeek deletes every row of a submitted week.
func (h *Handler) ResetWeek(w http.ResponseWriter, r *http.Request) {
	offset, ok := h.offset(w, r)
	if !ok {
		return
	}

	release, err := h.lockWeek(r, offset)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	defer release()

	removed, err := h.Service.ResetWeek(r.Context(), offset)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// ListLeave returns the registered leave periods.
func (h *Handler) ListLeave(w http.ResponseWriter, r *http.Request) {
	periods, err := h.Service.LeavePeriods(r.Context())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeavePeriodDTOs(periods))
}

// RegisterLeave books a leave block.
func (h *Handler) RegisterLeave(w http.ResponseWriter, r *http.Request) {
	var req LeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.leave(w, r, req, "register")
}

// DeleteLeave removes a leave block. Parameters come from the query string.
func (h *Handler) DeleteLeave(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := LeaveRequest{Reason: q.Get("reason"), Start: q.Get("start"), End: q.Get("end")}
	h.leave(w, r, req, "delete")
}

// MaxLeaveDays bounds a leave range; each week in it takes a guard lock.
const MaxLeaveDays = 366

func (h *Handler) leave(w http.ResponseWriter, r *http.Request, req LeaveRequest, action string) {
	start, err := generic.ParseDate(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date (use YYYY-MM-DD)", err)
		return
	}
	end, err := generic.ParseDate(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end date (use YYYY-MM-DD)", err)
		return
	}
	if n := (generic.Period{Start: start, End: end}).Len(); n > MaxLeaveDays {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Leave range spans %d days (max %d)", n, MaxLeaveDays), nil)
		return
	}

	// Unknown reasons are passed through; the engine reports them as violations.
	reason, err := timesheet.ParseLeaveReason(req.Reason)
	if err != nil {
		reason = timesheet.LeaveReason(req.Reason)
	}

	release, err := h.lockRange(r, start, end)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	defer release()

	switch action {
	case "register":
		res, err := h.Service.RegisterLeave(r.Context(), reason, start, end)
		if err != nil {
			h.writeEngineError(w, r, err)
			return
		}
		h.Metrics.LeaveBlocks.WithLabelValues(string(reason), action).Inc()
		writeJSON(w, http.StatusCreated, toLeaveResultDTO(res))

	case "delete":
		res, err := h.Service.DeleteLeave(r.Context(), reason, start, end)
		if err != nil {
			h.writeEngineError(w, r, err)
			return
		}
		if !res.NoOp {
			h.Metrics.LeaveBlocks.WithLabelValues(string(reason), action).Inc()
		}
		writeJSON(w, http.StatusOK, toLeaveDeleteDTO(res))
	}
}

// =============================================================================
// OTHER HANDLERS
// =============================================================================

// ListHolidays returns the holidays of a year.
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1900 || year > 2200 {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	writeJSON(w, http.StatusOK, HolidaysDTO{Year: year, Dates: dateStrings(h.Service.Holidays(year))})
}

// ListDrafts returns the dates holding Draft rows.
func (h *Handler) ListDrafts(w http.ResponseWriter, r *http.Request) {
	dates, err := h.Service.PendingDrafts(r.Context())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"dates": dateStrings(dates)})
}

// GetProfile returns what the landing page needs about the caller.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := timesheet.ContextPrincipal{}.CurrentPrincipal(r.Context())
	if !ok {
		h.writeEngineError(w, r, generic.ErrUnauthenticated)
		return
	}
	fresh, err := h.Service.IsNewUser(r.Context())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	drafts, err := h.Service.PendingDrafts(r.Context())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ProfileDTO{
		Principal:     string(principal),
		NewUser:       fresh,
		PendingDrafts: dateStrings(drafts),
	})
}

// Healthz reports liveness and store reachability.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.opts.Health != nil {
		if err := h.opts.Health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unreachable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// offset parses {offset} and enforces the navigation window.
func (h *Handler) offset(w http.ResponseWriter, r *http.Request) (int, bool) {
	offset, err := strconv.Atoi(chi.URLParam(r, "offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid week offset", err)
		return 0, false
	}
	if offset < -h.opts.MaxPastWeeks || offset > h.opts.MaxFutureWeeks {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Week offset must be between %d and %d", -h.opts.MaxPastWeeks, h.opts.MaxFutureWeeks), nil)
		return 0, false
	}
	return offset, true
}

func (h *Handler) lockWeek(r *http.Request, offset int) (func(), error) {
	window := h.Service.Window(offset)
	return h.lockRange(r, window.Start(), window.End())
}

// lockRange acquires the guard of every week touched by [first, last].
func (h *Handler) lockRange(r *http.Request, first, last generic.Date) (func(), error) {
	principal, ok := timesheet.ContextPrincipal{}.CurrentPrincipal(r.Context())
	if !ok {
		return nil, generic.ErrUnauthenticated
	}
	if last.Before(first) {
		last = first
	}

	var releases []func()
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for monday := first.WeekStart(); !monday.After(last.WeekStart()); monday = monday.AddDays(7) {
		release, err := h.Guard.Acquire(r.Context(), guard.WeekKey(principal, monday))
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

func decodeMatrix(w http.ResponseWriter, r *http.Request) (timesheet.HoursMatrix, bool) {
	var req MatrixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return nil, false
	}
	staged, err := req.matrix()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entries", err)
		return nil, false
	}
	return staged, true
}

func submitOutcome(err error) string {
	var verr *timesheet.ValidationError
	switch {
	case err == nil:
		return "submitted"
	case errors.As(err, &verr):
		return "rejected"
	case errors.Is(err, generic.ErrWeekLocked):
		return "locked"
	case errors.Is(err, generic.ErrPartialSubmit):
		return "partial"
	case errors.Is(err, guard.ErrInFlight):
		return "in_flight"
	default:
		return "error"
	}
}

// writeEngineError maps an engine error to a status code and body.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *timesheet.ValidationError
		cerr *timesheet.ConflictError
		perr *timesheet.PartialSubmitError
	)

	status := http.StatusInternalServerError
	body := ErrorDTO{Error: "internal", Message: err.Error()}

	switch {
	case errors.Is(err, generic.ErrUnauthenticated):
		status, body.Error = http.StatusUnauthorized, "unauthenticated"

	case errors.As(err, &verr):
		status, body.Error = http.StatusUnprocessableEntity, "validation_failed"
		body.Violations = toViolationDTOs(verr.Violations)
		kinds := make([]string, len(verr.Violations))
		for i, v := range verr.Violations {
			kinds[i] = string(v.Kind)
		}
		h.Metrics.observeViolations(kinds)

	case errors.Is(err, generic.ErrInvalidPeriod):
		status, body.Error = http.StatusUnprocessableEntity, "invalid_period"

	case errors.As(err, &cerr):
		status, body.Error = http.StatusConflict, "conflict"
		body.Conflicts = cerr.DateLabels()

	case errors.As(err, &perr):
		status, body.Error = http.StatusConflict, "partial_submit"
		body.Rows = entryKeyStrings(perr.Rows)

	case errors.Is(err, guard.ErrInFlight):
		status, body.Error = http.StatusConflict, "in_flight"
		h.Metrics.GuardDenied.Inc()

	case errors.Is(err, generic.ErrWeekLocked):
		status, body.Error = http.StatusConflict, "week_locked"

	case errors.Is(err, generic.ErrResetNotAllowed):
		status, body.Error = http.StatusConflict, "reset_not_allowed"

	case errors.Is(err, generic.ErrStore):
		status, body.Error = http.StatusBadGateway, "store_unavailable"
	}

	logger := hlog.FromRequest(r)
	if status >= 500 {
		logger.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("request rejected")
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := ErrorDTO{Error: "bad_request", Message: message}
	if status == http.StatusServiceUnavailable {
		body.Error = "unavailable"
	}
	if err != nil {
		body.Message = fmt.Sprintf("%s: %v", message, err)
	}
	writeJSON(w, status, body)
}
