package timesheet

import (
	"fmt"
	"strings"

	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
)

// =============================================================================
// STRUCTURED ERRORS - Unwrap to the generic sentinels
// =============================================================================

// ValidationError carries every violation found, never only the first.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("%s: %s", generic.ErrValidation, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error { return generic.ErrValidation }

// Has reports whether any violation is of the given kind.
func (e *ValidationError) Has(kind ViolationKind) bool {
	for _, v := range e.Violations {
		if v.Kind == kind {
			return true
		}
	}
	return false
}

func newValidationError(violations ...Violation) error {
	if len(violations) == 0 {
		return nil
	}
	sortViolations(violations)
	return &ValidationError{Violations: violations}
}

// ConflictError is returned when a leave block overlaps Submitted rows or
// Draft rows with hours. Dates are distinct and sorted.
type ConflictError struct {
	Principal generic.PrincipalID
	Dates     []generic.Date
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: leave overlaps existing entries on %s", generic.ErrConflict, strings.Join(e.DateLabels(), ", "))
}

func (e *ConflictError) Unwrap() error { return generic.ErrConflict }

// DateLabels returns the conflicting dates as dd/mm/yyyy.
func (e *ConflictError) DateLabels() []string {
	labels := make([]string, len(e.Dates))
	for i, d := range e.Dates {
		labels[i] = d.LongLabel()
	}
	return labels
}

// PartialSubmitError is returned when Draft rows survive the verification
// pass. The week stays mixed until the submission is retried.
type PartialSubmitError struct {
	Principal generic.PrincipalID
	Week      generic.Date
	Rows      []generic.EntryKey
}

func (e *PartialSubmitError) Error() string {
	keys := make([]string, len(e.Rows))
	for i, k := range e.Rows {
		keys[i] = fmt.Sprintf("%s@%s", k.Project, k.Date)
	}
	return fmt.Sprintf("%s: %d row(s) still draft for week of %s: %s",
		generic.ErrPartialSubmit, len(e.Rows), e.Week, strings.Join(keys, ", "))
}

func (e *PartialSubmitError) Unwrap() error { return generic.ErrPartialSubmit }
