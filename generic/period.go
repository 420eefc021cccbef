package generic

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is the closed interval [Start, End] at day granularity. Sheets,
// holidays and academic periods are all periods.
type Period struct {
	Start TimePoint
	End   TimePoint
}

// NewPeriod returns the period [start, end], or a ValidationError when end is
// before start.
func NewPeriod(start, end TimePoint) (Period, error) {
	p := Period{Start: start, End: end}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// Validate reports a malformed period (end before start).
func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return &ValidationError{
			Field:   "to",
			Message: "end " + p.End.String() + " is before start " + p.Start.String(),
			err:     ErrInvalidPeriod,
		}
	}
	return nil
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Overlaps reports whether two periods share at least one day.
func (p Period) Overlaps(other Period) bool {
	return p.Start.BeforeOrEqual(other.End) && other.Start.BeforeOrEqual(p.End)
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// Len is the number of days in the period.
func (p Period) Len() int {
	if p.End.Before(p.Start) {
		return 0
	}
	return DaysBetween(p.Start, p.End) + 1
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
