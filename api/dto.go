/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's types from the external API contract. Hours are JSON
  numbers, dates are "YYYY-MM-DD" strings.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Week:
    WeekDTO, DayDTO, ProjectLineDTO, CellRequest, MatrixRequest, SubmitReportDTO

  Leave:
    LeaveRequest, LeaveResultDTO, LeaveDeleteDTO, LeavePeriodDTO

  Errors:
    ErrorDTO, ViolationDTO

VALIDATION:
  Validation is done by the engine, not in DTOs. DTOs are pure data carriers;
  handlers only parse dates and hours.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"fmt"

	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
	"github.com/aangel-sama/CyDRegistroHHMineria/timesheet"
)

// =============================================================================
// WEEK
// =============================================================================

// WeekDTO is the week grid shown to the user.
type WeekDTO struct {
	Offset            int              `json:"offset"`
	Label             string           `json:"label"`
	Start             string           `json:"start"`
	End               string           `json:"end"`
	Today             string           `json:"today"`
	State             string           `json:"state"`
	Days              []DayDTO         `json:"days"`
	Projects          []ProjectLineDTO `json:"projects"`
	Total             generic.Hours    `json:"total"`
	Expected          generic.Hours    `json:"expected"`
	PrevWeekSubmitted bool             `json:"prev_week_submitted"`
}

type DayDTO struct {
	Date    string        `json:"date"`
	Label   string        `json:"label"`
	Cap     generic.Hours `json:"cap"`
	Holiday bool          `json:"holiday"`
	Future  bool          `json:"future"`
	Total   generic.Hours `json:"total"`
}

type ProjectLineDTO struct {
	Code  string          `json:"code"`
	Name  string          `json:"name"`
	Leave bool            `json:"leave"`
	Hours []generic.Hours `json:"hours"`
	Total generic.Hours   `json:"total"`
}

// CellRequest sets one project/day cell.
type CellRequest struct {
	Project string        `json:"project"`
	Date    string        `json:"date"`
	Hours   generic.Hours `json:"hours"`
}

// MatrixRequest carries the staged cells of a week.
type MatrixRequest struct {
	Entries []CellRequest `json:"entries"`
}

type SubmitReportDTO struct {
	Inserted   int `json:"inserted"`
	Updated    int `json:"updated"`
	Ignored    int `json:"ignored"`
	Reconciled int `json:"reconciled"`
	Rows       int `json:"rows"`
}

// =============================================================================
// LEAVE
// =============================================================================

// LeaveRequest registers or deletes a leave block.
type LeaveRequest struct {
	Reason string `json:"reason"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

type LeaveResultDTO struct {
	Project string        `json:"project"`
	State   string        `json:"state"`
	Days    []string      `json:"days"`
	Hours   generic.Hours `json:"hours"`
}

type LeaveDeleteDTO struct {
	Project string   `json:"project"`
	Days    []string `json:"days"`
	Removed int      `json:"removed"`
	NoOp    bool     `json:"no_op"`
}

type LeavePeriodDTO struct {
	Reason  string        `json:"reason"`
	Project string        `json:"project"`
	Start   string        `json:"start"`
	End     string        `json:"end"`
	Days    int           `json:"days"`
	Hours   generic.Hours `json:"hours"`
	State   string        `json:"state"`
}

// =============================================================================
// MISC
// =============================================================================

type HolidaysDTO struct {
	Year  int      `json:"year"`
	Dates []string `json:"dates"`
}

type ProfileDTO struct {
	Principal     string   `json:"principal"`
	NewUser       bool     `json:"new_user"`
	PendingDrafts []string `json:"pending_drafts"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorDTO is the body of every non-2xx response.
type ErrorDTO struct {
	Error      string         `json:"error"`
	Message    string         `json:"message,omitempty"`
	Violations []ViolationDTO `json:"violations,omitempty"`
	Conflicts  []string       `json:"conflicts,omitempty"`
	Rows       []string       `json:"rows,omitempty"`
}

type ViolationDTO struct {
	Kind    string         `json:"kind"`
	Date    string         `json:"date,omitempty"`
	Project string         `json:"project,omitempty"`
	Actual  *generic.Hours `json:"actual,omitempty"`
	Limit   *generic.Hours `json:"limit,omitempty"`
	Message string         `json:"message"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toWeekDTO(v timesheet.WeekView, window timesheet.WeekWindow) WeekDTO {
	dto := WeekDTO{
		Offset:            v.Offset,
		Label:             v.Label,
		Start:             window.Start().String(),
		End:               window.End().String(),
		Today:             v.Today.String(),
		State:             string(v.State),
		Days:              make([]DayDTO, len(v.Days)),
		Projects:          make([]ProjectLineDTO, len(v.Projects)),
		Total:             v.Total,
		Expected:          v.Expected,
		PrevWeekSubmitted: v.PrevWeekSubmitted,
	}
	for i, d := range v.Days {
		dto.Days[i] = DayDTO{
			Date:    d.Date.String(),
			Label:   d.Label,
			Cap:     d.Cap,
			Holiday: d.Holiday,
			Future:  d.Future,
			Total:   d.Total,
		}
	}
	for i, p := range v.Projects {
		dto.Projects[i] = ProjectLineDTO{
			Code:  string(p.Code),
			Name:  p.Name,
			Leave: p.Leave,
			Hours: p.Hours,
			Total: p.Total,
		}
	}
	return dto
}

func toSubmitReportDTO(r timesheet.SubmitReport) SubmitReportDTO {
	return SubmitReportDTO{
		Inserted:   r.Inserted,
		Updated:    r.Updated,
		Ignored:    r.Ignored,
		Reconciled: r.Reconciled,
		Rows:       r.Rows,
	}
}

func toLeaveResultDTO(r timesheet.LeaveResult) LeaveResultDTO {
	return LeaveResultDTO{
		Project: string(r.Project),
		State:   string(r.State),
		Days:    dateStrings(r.Days),
		Hours:   r.Hours,
	}
}

func toLeaveDeleteDTO(r timesheet.DeleteResult) LeaveDeleteDTO {
	return LeaveDeleteDTO{
		Project: string(r.Project),
		Days:    dateStrings(r.Days),
		Removed: r.Removed,
		NoOp:    r.NoOp,
	}
}

func toLeavePeriodDTOs(periods []timesheet.LeavePeriod) []LeavePeriodDTO {
	dtos := make([]LeavePeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = LeavePeriodDTO{
			Reason:  string(p.Reason),
			Project: string(p.Project),
			Start:   p.Start.String(),
			End:     p.End.String(),
			Days:    p.Days,
			Hours:   p.Hours,
			State:   string(p.State),
		}
	}
	return dtos
}

func toViolationDTOs(vs []timesheet.Violation) []ViolationDTO {
	dtos := make([]ViolationDTO, len(vs))
	for i, v := range vs {
		dto := ViolationDTO{
			Kind:    string(v.Kind),
			Project: string(v.Project),
			Message: v.String(),
		}
		if !v.Date.IsZero() {
			dto.Date = v.Date.String()
		}
		if !v.Actual.IsZero() || !v.Limit.IsZero() {
			actual, limit := v.Actual, v.Limit
			dto.Actual, dto.Limit = &actual, &limit
		}
		dtos[i] = dto
	}
	return dtos
}

func entryKeyStrings(keys []generic.EntryKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = fmt.Sprintf("%s@%s", k.Project, k.Date)
	}
	return out
}

func dateStrings(ds []generic.Date) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}

// matrix converts the request cells into a staged matrix.
func (m MatrixRequest) matrix() (timesheet.HoursMatrix, error) {
	staged := make(timesheet.HoursMatrix)
	for i, c := range m.Entries {
		if c.Project == "" {
			return nil, fmt.Errorf("entries[%d]: project is required", i)
		}
		d, err := generic.ParseDate(c.Date)
		if err != nil {
			return nil, fmt.Errorf("entries[%d]: %w", i, err)
		}
		staged.Set(generic.ProjectCode(c.Project), d, c.Hours)
	}
	return staged, nil
}
