package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// TIME POINT - A calendar date (day granularity, UTC)
// =============================================================================

// DateLayout is the wire and storage layout for dates.
const DateLayout = "2006-01-02"

// TimePoint is a calendar day. The wall-clock part is always midnight UTC so
// comparisons never depend on the server's timezone.
type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// FromTime truncates t to its calendar day.
func FromTime(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// ParseDate parses "YYYY-MM-DD". A trailing time part ("2025-01-06T00:00:00Z"
// or "2025-01-06 00:00:00") is tolerated and dropped.
func ParseDate(s string) (TimePoint, error) {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return FromTime(t), nil
}

func Today() TimePoint {
	return FromTime(time.Now())
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return tp.Before(other) || tp.Equal(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return tp.After(other) || tp.Equal(other) }

func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint { return TimePoint{Time: tp.normalize().AddDate(0, 0, n)} }

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }

func (tp TimePoint) String() string {
	return tp.Time.Format(DateLayout)
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

func DaysBetween(from, to TimePoint) int { return int(to.normalize().Sub(from.normalize()).Hours() / 24) }
