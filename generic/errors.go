/*
errors.go - Centralized error types for the timesheet engine

PURPOSE:
  All error sentinels in one place for consistency and discoverability.
  The timesheet package defines structured errors (ValidationError,
  ConflictError, PartialSubmitError) that unwrap to these sentinels, so
  callers can classify any engine error with errors.Is.

ERROR CATEGORIES:
  1. Validation errors - User-correctable, reported as a full list
  2. Conflict errors   - Leave registration overlapping existing rows
  3. Store errors      - Record store failures, propagated unmodified
  4. Consistency       - Residual Draft rows after a submission
  5. Auth              - No principal available

USAGE:
  if errors.Is(err, generic.ErrUnauthenticated) {
      // 401
  }

SEE ALSO:
  - timesheet/errors.go: Structured domain errors
  - api/handlers.go: Error to HTTP status mapping
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is wrapped by every user-correctable rule violation.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a leave block overlaps existing entries.
	ErrConflict = errors.New("conflicting entries")

	// ErrPartialSubmit is returned when Draft rows survive a submission.
	ErrPartialSubmit = errors.New("partial submission")

	// ErrUnauthenticated is returned when no principal is available.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrWeekLocked is returned when mutating a week whose entries are all Submitted.
	ErrWeekLocked = errors.New("week already submitted")

	// ErrResetNotAllowed is returned when resetting a week that is not Submitted.
	ErrResetNotAllowed = errors.New("week can only be reset once submitted")

	// ErrDuplicateEntry is returned by stores when (principal, project, date) already exists.
	ErrDuplicateEntry = errors.New("duplicate entry for principal, project and date")

	// ErrEntryNotFound is returned when updating a row that no longer exists.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrStore marks infrastructure failures talking to the record store.
	ErrStore = errors.New("record store failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StoreError wraps a failure reported by a record store implementation.
// Stores wrap exactly once; the engine passes it through untouched.
type StoreError struct {
	Op  string // e.g., "select", "insert", "update", "delete"
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStore, e.Err}
}

// NewStoreError wraps err unless it is nil or already a StoreError.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if repeating the same call may succeed.
// Submission is idempotent, so a partial submit is always safe to retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPartialSubmit) || errors.Is(err, ErrStore)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrWeekLocked) ||
		errors.Is(err, ErrResetNotAllowed)
}
