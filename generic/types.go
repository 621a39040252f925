/*
Package generic provides the domain-agnostic primitives of the timesheet engine.

PURPOSE:
  This package holds the value types, record shape and persistence contracts
  shared by the engine (timesheet), the stores (store/sqlite, store/postgres,
  generic/store) and the HTTP layer (api). It knows nothing about week
  windows, caps or holidays.

KEY CONCEPTS IN THIS FILE (types.go):
  - Hours: A non-negative quantity of worked hours with 0.5 granularity
  - TimeEntry: One row of the record store, keyed by (principal, project, date)
  - EntryState: The two-variant Draft/Submitted tag
  - Principal/Project/Entry IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Precision: Hours use decimal.Decimal so 6.5 + 9 + 9 sums exactly
  2. Type Safety: Strong typing for IDs prevents mixing principal/project codes
  3. Closed states: EntryState only admits Draft or Submitted

USAGE:
  entry := generic.TimeEntry{
      Principal: "ana@example.com",
      Project:   "GIN-2-Vacaciones",
      Date:      generic.NewDate(2025, time.March, 10),
      Hours:     generic.NewHours(9),
      State:     generic.StateDraft,
  }

SEE ALSO:
  - store.go: Record store contract
  - errors.go: Error taxonomy
  - timesheet/ledger.go: State machine over these rows
*/
package generic

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HOURS - Worked-hour quantity
// =============================================================================

type Hours struct {
	Value decimal.Decimal
}

var two = decimal.NewFromInt(2)

func NewHours(value float64) Hours {
	return Hours{Value: decimal.NewFromFloat(value)}
}

// ParseHours parses a decimal string such as "6.5".
func ParseHours(s string) (Hours, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Hours{}, fmt.Errorf("invalid hours %q: %w", s, err)
	}
	return Hours{Value: d}, nil
}

// MustParseHours is ParseHours for static tables; invalid input yields zero.
func MustParseHours(s string) Hours {
	h, err := ParseHours(s)
	if err != nil {
		return ZeroHours()
	}
	return h
}

func ZeroHours() Hours { return Hours{Value: decimal.Zero} }

func (h Hours) Add(o Hours) Hours           { return Hours{Value: h.Value.Add(o.Value)} }
func (h Hours) Sub(o Hours) Hours           { return Hours{Value: h.Value.Sub(o.Value)} }
func (h Hours) IsZero() bool                { return h.Value.IsZero() }
func (h Hours) IsNegative() bool            { return h.Value.IsNegative() }
func (h Hours) IsPositive() bool            { return h.Value.IsPositive() }
func (h Hours) Equal(o Hours) bool          { return h.Value.Equal(o.Value) }
func (h Hours) GreaterThan(o Hours) bool    { return h.Value.GreaterThan(o.Value) }
func (h Hours) LessThan(o Hours) bool       { return h.Value.LessThan(o.Value) }
func (h Hours) Float64() float64            { f, _ := h.Value.Float64(); return f }
func (h Hours) String() string              { return h.Value.String() }
func (h Hours) MarshalJSON() ([]byte, error) { return []byte(h.Value.String()), nil }

func (h *Hours) UnmarshalJSON(b []byte) error {
	parsed, err := ParseHours(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// IsHalfStep reports whether the value is a multiple of 0.5.
func (h Hours) IsHalfStep() bool { return h.Value.Mul(two).IsInteger() }

// Valid reports whether the value is an acceptable entry: non-negative, 0.5 steps.
func (h Hours) Valid() bool { return !h.IsNegative() && h.IsHalfStep() }

// SumHours adds a list of hour values.
func SumHours(values ...Hours) Hours {
	total := ZeroHours()
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// PrincipalID identifies the employee owning entries (an email in practice).
type PrincipalID string

// ProjectCode identifies a project rows are booked against.
type ProjectCode string

// EntryID is the store-assigned row identifier.
type EntryID string

// =============================================================================
// ENTRY STATE - Draft / Submitted
// =============================================================================

type EntryState string

const (
	StateDraft     EntryState = "draft"     // editable, not yet finalized
	StateSubmitted EntryState = "submitted" // locked; requires a week reset to edit
)

// ParseEntryState accepts the canonical names and the legacy Spanish labels
// found in older rows ("Borrador", "Enviado").
func ParseEntryState(s string) (EntryState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "draft", "borrador":
		return StateDraft, nil
	case "submitted", "enviado":
		return StateSubmitted, nil
	}
	return "", fmt.Errorf("unknown entry state %q", s)
}

func (s EntryState) IsSubmitted() bool { return s == StateSubmitted }
func (s EntryState) IsDraft() bool     { return s == StateDraft }

// =============================================================================
// TIME ENTRY - One row of the record store
// =============================================================================

type TimeEntry struct {
	ID        EntryID
	Principal PrincipalID
	Project   ProjectCode
	Date      Date
	Hours     Hours
	State     EntryState

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the identity of the entry.
func (e TimeEntry) Key() EntryKey {
	return EntryKey{Principal: e.Principal, Project: e.Project, Date: e.Date}
}

// EntryKey is the uniqueness key of a TimeEntry.
type EntryKey struct {
	Principal PrincipalID
	Project   ProjectCode
	Date      Date
}

func (k EntryKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Principal, k.Project, k.Date)
}
