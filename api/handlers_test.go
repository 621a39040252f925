/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Week grid, navigation window and principal header
- Status mapping of engine errors (401, 409, 422, 502)
- Leave register / list / delete
- In-flight guard and metrics counters
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
	"github.com/aangel-sama/CyDRegistroHHMineria/generic/store"
	"github.com/aangel-sama/CyDRegistroHHMineria/guard"
	"github.com/aangel-sama/CyDRegistroHHMineria/timesheet"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const ana = "ana@example.com"

// Friday 14/03/2025 17:00 UTC; the week of 10/03 has no holiday.
var friday = time.Date(2025, time.March, 14, 17, 0, 0, 0, time.UTC)

type testServer struct {
	handler *Handler
	router  http.Handler
	store   *store.Memory
	guard   *guard.Local
}

func newTestServer(t *testing.T, opts ...func(*Options)) *testServer {
	t.Helper()
	mem := store.NewMemory()
	mem.AssignProject(ana, "P1", "Mina Norte")
	return newTestServerWithStore(t, mem, mem, opts...)
}

func newTestServerWithStore(t *testing.T, entries generic.EntryStore, mem *store.Memory, opts ...func(*Options)) *testServer {
	t.Helper()
	svc, err := timesheet.NewService(timesheet.FiveDayWeek(), entries, mem,
		timesheet.WithClock(func() time.Time { return friday }))
	require.NoError(t, err)

	o := DefaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	g := guard.NewLocal()
	h := NewHandler(svc, g, NewMetrics(), o)
	return &testServer{handler: h, router: NewRouter(h), store: mem, guard: g}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return s.doAs(t, ana, method, path, body)
}

func (s *testServer) doAs(t *testing.T, principal, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if principal != "" {
		req.Header.Set(DefaultPrincipalHeader, principal)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func fullWeek() MatrixRequest {
	hours := []float64{9, 9, 9, 9, 6.5}
	req := MatrixRequest{}
	for i, h := range hours {
		req.Entries = append(req.Entries, CellRequest{
			Project: "P1",
			Date:    generic.NewDate(2025, time.March, 10+i).String(),
			Hours:   generic.NewHours(h),
		})
	}
	return req
}

// brokenStore fails every call the way an unreachable database does.
type brokenStore struct{}

var errDown = generic.NewStoreError("select", errors.New("connection refused"))

func (brokenStore) Select(context.Context, generic.EntryFilter) ([]generic.TimeEntry, error) {
	return nil, errDown
}
func (brokenStore) Insert(context.Context, generic.TimeEntry) error { return errDown }
func (brokenStore) Update(context.Context, generic.EntryID, generic.Hours, generic.EntryState) error {
	return errDown
}
func (brokenStore) Delete(context.Context, generic.EntryFilter) (int, error) { return 0, errDown }

// =============================================================================
// WEEK
// =============================================================================

func TestGetWeek(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/weeks/0", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	week := decode[WeekDTO](t, rec)
	assert.Equal(t, "2025-03-10", week.Start)
	assert.Equal(t, "2025-03-14", week.End)
	assert.Equal(t, "2025-03-14", week.Today)
	assert.Equal(t, string(timesheet.WeekOpen), week.State)
	assert.Len(t, week.Days, 5)
	assert.True(t, week.Expected.Equal(generic.NewHours(42.5)))
}

func TestGetWeek_NavigationWindow(t *testing.T) {
	s := newTestServer(t, func(o *Options) { o.MaxFutureWeeks = 4 })

	tests := []struct {
		path   string
		status int
	}{
		{"/api/weeks/-1", http.StatusOK},
		{"/api/weeks/4", http.StatusOK},
		{"/api/weeks/-2", http.StatusBadRequest},
		{"/api/weeks/5", http.StatusBadRequest},
		{"/api/weeks/next", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestGetWeek_RequiresPrincipal(t *testing.T) {
	s := newTestServer(t)

	rec := s.doAs(t, "", http.MethodGet, "/api/weeks/0", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decode[ErrorDTO](t, rec).Error)
}

func TestPrincipalHeader_Normalized(t *testing.T) {
	s := newTestServer(t)

	rec := s.doAs(t, "  Ana@Example.com ", http.MethodGet, "/api/me", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ana, decode[ProfileDTO](t, rec).Principal)
}

func TestEnterHours(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/weeks/0/hours",
		CellRequest{Project: "P1", Date: "2025-03-10", Hours: generic.NewHours(9)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "inserted", decode[map[string]string](t, rec)["outcome"])

	// Over the daily cap
	rec = s.do(t, http.MethodPut, "/api/weeks/0/hours",
		CellRequest{Project: "P1", Date: "2025-03-11", Hours: generic.NewHours(12)})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[ErrorDTO](t, rec)
	require.NotEmpty(t, body.Violations)
	assert.Equal(t, string(timesheet.ViolationDailyCapExceeded), body.Violations[0].Kind)
	assert.Equal(t, "2025-03-11", body.Violations[0].Date)
	require.NotNil(t, body.Violations[0].Limit)
	assert.True(t, body.Violations[0].Limit.Equal(generic.NewHours(9)))

	rec = s.do(t, http.MethodPut, "/api/weeks/0/hours", CellRequest{Project: "P1", Date: "10/03/2025"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitWeek(t *testing.T) {
	// GIVEN: A full week staged on Friday afternoon
	s := newTestServer(t)

	// WHEN
	rec := s.do(t, http.MethodPost, "/api/weeks/0/submit", fullWeek())

	// THEN: Every row is inserted and the week is locked
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[SubmitReportDTO](t, rec)
	assert.Equal(t, 5, report.Inserted)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.handler.Metrics.Submissions.WithLabelValues("submitted")))

	week := decode[WeekDTO](t, s.do(t, http.MethodGet, "/api/weeks/0", nil))
	assert.Equal(t, string(timesheet.WeekSubmitted), week.State)

	rec = s.do(t, http.MethodPost, "/api/weeks/0/submit", fullWeek())
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "week_locked", decode[ErrorDTO](t, rec).Error)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.handler.Metrics.Submissions.WithLabelValues("locked")))

	rec = s.do(t, http.MethodPost, "/api/weeks/0/draft", fullWeek())
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitWeek_ReportsEveryViolation(t *testing.T) {
	s := newTestServer(t)
	req := fullWeek()
	req.Entries = req.Entries[:4]

	rec := s.do(t, http.MethodPost, "/api/weeks/0/submit", req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[ErrorDTO](t, rec)
	assert.Equal(t, "validation_failed", body.Error)
	require.NotEmpty(t, body.Violations)
	assert.Equal(t, string(timesheet.ViolationEmptyWorkday), body.Violations[0].Kind)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.handler.Metrics.Submissions.WithLabelValues("rejected")))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.handler.Metrics.Violations.WithLabelValues(string(timesheet.ViolationEmptyWorkday))))

	rows, err := s.store.Select(context.Background(), generic.EntryFilter{Principal: ana})
	require.NoError(t, err)
	assert.Empty(t, rows, "a rejected submission writes nothing")
}

func TestSubmitWeek_FutureWeekRejected(t *testing.T) {
	// GIVEN: A full week staged for next week
	s := newTestServer(t)
	req := fullWeek()
	for i := range req.Entries {
		d, err := generic.ParseDate(req.Entries[i].Date)
		require.NoError(t, err)
		req.Entries[i].Date = d.AddDays(7).String()
	}

	for _, path := range []string{"/api/weeks/1/submit", "/api/weeks/1/draft"} {
		// WHEN
		rec := s.do(t, http.MethodPost, path, req)

		// THEN: Nothing is written
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code, path)
		body := decode[ErrorDTO](t, rec)
		require.Len(t, body.Violations, 1)
		assert.Equal(t, string(timesheet.ViolationDateNotEditable), body.Violations[0].Kind)
	}

	rows, err := s.store.Select(context.Background(), generic.EntryFilter{Principal: ana})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSaveDraft(t *testing.T) {
	s := newTestServer(t)
	req := fullWeek()
	req.Entries = req.Entries[:2]

	rec := s.do(t, http.MethodPost, "/api/weeks/0/draft", req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[map[string]int](t, rec)["written"])

	drafts := decode[map[string][]string](t, s.do(t, http.MethodGet, "/api/drafts", nil))
	assert.Equal(t, []string{"2025-03-10", "2025-03-11"}, drafts["dates"])

	rec = s.do(t, http.MethodPost, "/api/weeks/0/draft", `not a matrix`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetWeek(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/weeks/0/reset", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "reset_not_allowed", decode[ErrorDTO](t, rec).Error)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/weeks/0/submit", fullWeek()).Code)

	rec = s.do(t, http.MethodPost, "/api/weeks/0/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, decode[map[string]int](t, rec)["removed"])
}

// =============================================================================
// LEAVE
// =============================================================================

func TestLeaveLifecycle(t *testing.T) {
	s := newTestServer(t)
	block := LeaveRequest{Reason: "medical_leave", Start: "2025-03-17", End: "2025-03-19"}

	rec := s.do(t, http.MethodPost, "/api/leave", block)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[LeaveResultDTO](t, rec)
	assert.Equal(t, []string{"2025-03-17", "2025-03-18", "2025-03-19"}, res.Days)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.handler.Metrics.LeaveBlocks.WithLabelValues("medical_leave", "register")))

	periods := decode[[]LeavePeriodDTO](t, s.do(t, http.MethodGet, "/api/leave", nil))
	require.Len(t, periods, 1)
	assert.Equal(t, "2025-03-17", periods[0].Start)
	assert.Equal(t, "2025-03-19", periods[0].End)

	rec = s.do(t, http.MethodDelete, "/api/leave?reason=medical_leave&start=2025-03-17&end=2025-03-19", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decode[LeaveDeleteDTO](t, rec).Removed)

	// Days before the current Monday are never touched.
	rec = s.do(t, http.MethodDelete, "/api/leave?reason=medical_leave&start=2025-03-03&end=2025-03-05", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[LeaveDeleteDTO](t, rec).NoOp)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.handler.Metrics.LeaveBlocks.WithLabelValues("medical_leave", "delete")))
}

func TestRegisterLeave_Conflict(t *testing.T) {
	// GIVEN: Hours already entered on Thursday
	s := newTestServer(t)
	rec := s.do(t, http.MethodPut, "/api/weeks/0/hours",
		CellRequest{Project: "P1", Date: "2025-03-13", Hours: generic.NewHours(9)})
	require.Equal(t, http.StatusOK, rec.Code)

	// WHEN: Booking vacation over it
	rec = s.do(t, http.MethodPost, "/api/leave",
		LeaveRequest{Reason: "vacation", Start: "2025-03-13", End: "2025-03-14"})

	// THEN: Nothing is written and the day is named
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[ErrorDTO](t, rec)
	assert.Equal(t, "conflict", body.Error)
	assert.Equal(t, []string{"13/03/2025"}, body.Conflicts)
}

func TestRegisterLeave_RangeTooLong(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/leave",
		LeaveRequest{Reason: "vacation", Start: "2025-03-17", End: "2026-03-18"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorDTO](t, rec).Message, "max 366")
	assert.False(t, s.guard.Held(guard.WeekKey(ana, generic.NewDate(2025, time.March, 17))))

	rows, err := s.store.Select(context.Background(), generic.EntryFilter{Principal: ana})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRegisterLeave_BadInput(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/leave",
		LeaveRequest{Reason: "vacation", Start: "2025-03-17", End: "someday"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/leave",
		LeaveRequest{Reason: "sabbatical", Start: "2025-03-17", End: "2025-03-18"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(timesheet.ViolationUnknownReason), decode[ErrorDTO](t, rec).Violations[0].Kind)
}

// =============================================================================
// GUARD, STORE, MISC
// =============================================================================

func TestMutation_InFlight(t *testing.T) {
	// GIVEN: Another request holds this week
	s := newTestServer(t)
	release, err := s.guard.Acquire(context.Background(),
		guard.WeekKey(ana, generic.NewDate(2025, time.March, 10)))
	require.NoError(t, err)

	// WHEN
	rec := s.do(t, http.MethodPost, "/api/weeks/0/submit", fullWeek())

	// THEN
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "in_flight", decode[ErrorDTO](t, rec).Error)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.handler.Metrics.GuardDenied))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.handler.Metrics.Submissions.WithLabelValues("in_flight")))

	// Leave spanning that week is refused as well; other weeks are not.
	rec = s.do(t, http.MethodPost, "/api/leave", LeaveRequest{Reason: "vacation", Start: "2025-03-14", End: "2025-03-18"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, s.guard.Held(guard.WeekKey(ana, generic.NewDate(2025, time.March, 17))))

	release()
	rec = s.do(t, http.MethodPost, "/api/weeks/0/submit", fullWeek())
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStoreFailure_BadGateway(t *testing.T) {
	mem := store.NewMemory()
	mem.AssignProject(ana, "P1", "Mina Norte")
	s := newTestServerWithStore(t, brokenStore{}, mem)

	rec := s.do(t, http.MethodGet, "/api/weeks/0", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "store_unavailable", decode[ErrorDTO](t, rec).Error)
}

func TestListHolidays(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/holidays/2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[HolidaysDTO](t, rec)
	assert.Equal(t, 2025, body.Year)
	assert.Contains(t, body.Dates, "2025-09-18")

	rec = s.do(t, http.MethodGet, "/api/holidays/twenty", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProfile(t *testing.T) {
	s := newTestServer(t)

	profile := decode[ProfileDTO](t, s.do(t, http.MethodGet, "/api/me", nil))
	assert.True(t, profile.NewUser)
	assert.Empty(t, profile.PendingDrafts)

	s.do(t, http.MethodPut, "/api/weeks/0/hours", CellRequest{Project: "P1", Date: "2025-03-12", Hours: generic.NewHours(4)})

	profile = decode[ProfileDTO](t, s.do(t, http.MethodGet, "/api/me", nil))
	assert.False(t, profile.NewUser)
	assert.Equal(t, []string{"2025-03-12"}, profile.PendingDrafts)
}

func TestHealthzAndMetrics(t *testing.T) {
	healthy := newTestServer(t)
	rec := healthy.doAs(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestServer(t, func(o *Options) {
		o.Health = func(context.Context) error { return errors.New("dial tcp: refused") }
	})
	rec = down.doAs(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	healthy.do(t, http.MethodGet, "/api/weeks/0", nil)
	rec = healthy.doAs(t, "", http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `timesheet_http_requests_total{method="GET",route="/api/weeks/{offset}`),
		rec.Body.String())
}
