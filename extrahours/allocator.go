/*
allocator.go - Weekly extra-session allocation

PURPOSE:
  Decides, for one teacher over one week, how many hours of each recurring
  session are paid as extra hours.

POLICY:
  Temporary teachers:
    Every timetable hour is extra, up to the weekly cap (12h).

  Permanent teachers, hours outside >= 9:
    The baseline (9h) is already covered by outside duties. The hours beyond
    it are seeded into the cap counter, then sessions are counted like a
    temporary teacher's.

  Permanent teachers, hours outside < 9:
    Sessions first fill the baseline, weighted by type:
      Cours x1.5   TD x1.0   TP x0.75
    The session that crosses 9 weighted hours contributes its overflow,
    converted back to raw hours (overflow / coefficient). Every later session
    contributes its full raw duration. All of it is capped at 12h.

ROUNDING:
  Every emitted duration is a whole number of half hours (RoundHalfUp applied
  to the candidate). The cap counter adds the billed duration, never the raw
  one, so the sum of allocations can't exceed 12h. Arithmetic runs on
  minutes; hours are only produced when an allocation is emitted.

SEE ALSO:
  - ordering.go: Priority order of sessions
  - rounding.go: RoundHalfUp
  - calendar.go: Projects allocations onto dates
*/
package extrahours

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/extra-hours/generic"
)

var (
	// BaselineHours is the weekly contractual duty of a permanent teacher.
	BaselineHours = decimal.NewFromInt(9)

	// WeeklyCapHours is the maximum paid extra hours per week.
	WeeklyCapHours = decimal.NewFromInt(12)
)

// Internally everything is counted in minutes so that 80/60-style hours never
// get truncated; billed amounts are whole half-hour steps.
var (
	minutesPerHour = decimal.NewFromInt(60)
	billingStep    = decimal.NewFromInt(30)
	baselineMin    = BaselineHours.Mul(minutesPerHour)
	capMin         = WeeklyCapHours.Mul(minutesPerHour)
	capSteps       = capMin.Div(billingStep).IntPart()
)

// Allocate returns one Allocation per session that has paid extra hours, in
// priority order. hoursOutside is required for permanent teachers and
// ignored for temporary ones.
func Allocate(sessions []WeeklySession, teacherType TeacherType, hoursOutside *decimal.Decimal) ([]Allocation, error) {
	ordered, err := SortSessions(sessions)
	if err != nil {
		return nil, err
	}
	for _, s := range ordered {
		if err := checkSession(s); err != nil {
			return nil, err
		}
	}

	switch teacherType {
	case TeacherTemporary:
		counter := newCapCounter(decimal.Zero)
		for _, s := range ordered {
			counter.add(s, s.minutes())
		}
		return counter.allocations, nil

	case TeacherPermanent:
		if hoursOutside == nil {
			return nil, generic.NewValidationError("hours_outside", "required for permanent teachers")
		}
		if hoursOutside.IsNegative() {
			return nil, generic.NewValidationError("hours_outside", "must not be negative")
		}
		if hoursOutside.GreaterThanOrEqual(BaselineHours) {
			counter := newCapCounter(hoursOutside.Sub(BaselineHours).Mul(minutesPerHour))
			for _, s := range ordered {
				counter.add(s, s.minutes())
			}
			return counter.allocations, nil
		}
		return allocateBelowBaseline(ordered, *hoursOutside)
	}

	return nil, generic.NewValidationError("type", fmt.Sprintf("unknown teacher type %q", teacherType))
}

func allocateBelowBaseline(ordered []WeeklySession, hoursOutside decimal.Decimal) ([]Allocation, error) {
	counter := newCapCounter(decimal.Zero)
	// weighted minutes filled so far
	weight := hoursOutside.Mul(minutesPerHour)

	for _, s := range ordered {
		raw := s.minutes()
		if weight.GreaterThanOrEqual(baselineMin) {
			counter.add(s, raw)
			continue
		}

		coeff, err := s.Type.Coefficient()
		if err != nil {
			return nil, err
		}
		gap := baselineMin.Sub(weight)
		weighted := raw.Mul(coeff)
		if weighted.LessThanOrEqual(gap) {
			weight = weight.Add(weighted)
			continue
		}

		// Crossing the baseline: only the raw minutes past the gap are extra.
		weight = baselineMin
		counter.add(s, raw.Sub(gap.Div(coeff)))
	}
	return counter.allocations, nil
}

func checkSession(s WeeklySession) error {
	if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
		return &generic.InvariantViolationError{
			Rule:   "day_of_week",
			Detail: fmt.Sprintf("session %d has weekday %d", s.ID, s.DayOfWeek),
		}
	}
	if s.End <= s.Start {
		return &generic.InvariantViolationError{
			Rule:   "session_duration",
			Detail: fmt.Sprintf("session %d ends at %s, not after its start %s", s.ID, s.End, s.Start),
		}
	}
	return nil
}

// =============================================================================
// CAP COUNTER
// =============================================================================

// capCounter accumulates billed time against the weekly cap. used is in
// minutes and may start from a fractional seed; allocated is in half-hour
// steps.
type capCounter struct {
	used        decimal.Decimal
	allocated   int64
	allocations []Allocation
}

func newCapCounter(seedMinutes decimal.Decimal) *capCounter {
	return &capCounter{used: seedMinutes}
}

// steps is the number of half-hour units RoundHalfUp bills for the given
// minutes. The rounded value is always a multiple of 0.5, so doubling it is
// exact.
func steps(minutes decimal.Decimal) int64 {
	return RoundHalfUp(minutes.Div(minutesPerHour)).Mul(decimal.NewFromInt(2)).IntPart()
}

func (c *capCounter) add(s WeeklySession, candidate decimal.Decimal) {
	if c.used.GreaterThanOrEqual(capMin) || !candidate.IsPositive() {
		return
	}

	billed := steps(candidate)
	if next := c.used.Add(billingStep.Mul(decimal.NewFromInt(billed))); next.LessThanOrEqual(capMin) {
		c.emit(s, billed)
		c.used = next
		return
	}

	// Clip to the remainder that reaches the cap.
	rest := min(steps(capMin.Sub(c.used)), capSteps-c.allocated, billed)
	if rest > 0 {
		c.emit(s, rest)
	}
	c.used = capMin
}

func (c *capCounter) emit(s WeeklySession, n int64) {
	c.allocated += n
	c.allocations = append(c.allocations, Allocation{
		SessionID: s.ID,
		DayOfWeek: s.DayOfWeek,
		Duration:  decimal.NewFromInt(n).Mul(half),
	})
}
