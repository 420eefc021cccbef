/*
Package generic provides the domain-agnostic building blocks of the engine.

PURPOSE:
  Calendar primitives, identifiers, decimal helpers and the error taxonomy
  shared by the extra-hours domain, the stores and the HTTP layer. Nothing
  in this package knows about teachers, sessions or sheets.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: Type-safe int64 ids so a SessionID can't be passed as a TeacherID
  - Decimal helpers: Hours and money are decimal.Decimal, never float64

DESIGN PRINCIPLES:
  1. Precision: amount_of_money must equal hours × price exactly, so all
     arithmetic goes through shopspring/decimal
  2. Type Safety: distinct id types for every persisted entity

SEE ALSO:
  - time.go: TimePoint (day-granularity dates)
  - period.go: Inclusive date ranges
  - errors.go: Error types
*/
package generic

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AdminID int64
type TeacherID int64
type SessionID int64
type AbsenceID int64
type HolidayID int64
type SheetID int64
type ExtraDayID int64
type RankID int64
type PeriodID int64

func (id AdminID) String() string   { return strconv.FormatInt(int64(id), 10) }
func (id TeacherID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id SessionID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id SheetID) String() string   { return strconv.FormatInt(int64(id), 10) }

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// Hours builds a decimal hour quantity from a float literal.
func Hours(h float64) decimal.Decimal {
	return decimal.NewFromFloat(h)
}

// Float returns the float64 form of d for JSON responses.
func Float(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
