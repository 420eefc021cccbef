// Package extrahours implements the extra-hours payroll engine: which of a
// teacher's weekly sessions are paid as extra hours, how they project onto a
// calendar range, and how the resulting sheets are persisted.
package extrahours

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/extra-hours/generic"
)

// =============================================================================
// SESSION TYPES
// =============================================================================

// SessionType is the pedagogical kind of a weekly session.
type SessionType string

const (
	SessionCours SessionType = "Cours" // lecture
	SessionTD    SessionType = "TD"    // tutorial
	SessionTP    SessionType = "TP"    // practical
)

var sessionTypeRank = map[SessionType]int{
	SessionCours: 0,
	SessionTD:    1,
	SessionTP:    2,
}

// Coefficient is how much one hour of the session type weighs against the
// contractual baseline.
func (t SessionType) Coefficient() (decimal.Decimal, error) {
	switch t {
	case SessionCours:
		return decimal.RequireFromString("1.5"), nil
	case SessionTD:
		return decimal.NewFromInt(1), nil
	case SessionTP:
		return decimal.RequireFromString("0.75"), nil
	}
	return decimal.Zero, &generic.InvariantViolationError{Rule: "session_type", Detail: fmt.Sprintf("unknown session type %q", t)}
}

func (t SessionType) Valid() bool {
	_, ok := sessionTypeRank[t]
	return ok
}

// =============================================================================
// TEACHER TYPES
// =============================================================================

type TeacherType string

const (
	TeacherPermanent TeacherType = "Permanent"
	TeacherTemporary TeacherType = "Temporary"
)

func (t TeacherType) Valid() bool {
	return t == TeacherPermanent || t == TeacherTemporary
}

// =============================================================================
// WEEKDAYS
// =============================================================================

// ParseWeekday maps an English weekday name ("Monday") to time.Weekday.
func ParseWeekday(name string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), name) {
			return d, nil
		}
	}
	return 0, &generic.InvariantViolationError{Rule: "day_of_week", Detail: fmt.Sprintf("unknown day of week %q", name)}
}

// =============================================================================
// CLOCK TIME
// =============================================================================

// ClockTime is a wall-clock time of day, in minutes since midnight.
type ClockTime int

// ParseClock accepts "HH:MM" and "HH:MM:SS".
func ParseClock(s string) (ClockTime, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock time %q (use HH:MM)", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return ClockTime(h*60 + m), nil
}

// MustClock is ParseClock for literals.
func MustClock(s string) ClockTime {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// =============================================================================
// SEMESTER
// =============================================================================

type Semester string

const (
	SemesterOne Semester = "S1"
	SemesterTwo Semester = "S2"
)

// SemesterFor picks the timetable snapshot a range ending on `to` uses:
// September through January is the first semester, the rest the second.
func SemesterFor(to generic.TimePoint) Semester {
	switch to.Month() {
	case time.September, time.October, time.November, time.December, time.January:
		return SemesterOne
	}
	return SemesterTwo
}

// =============================================================================
// ENTITIES (read snapshots)
// =============================================================================

// WeeklySession is a recurring slot on a teacher's timetable.
type WeeklySession struct {
	ID           generic.SessionID
	TeacherID    generic.TeacherID
	AdminID      generic.AdminID
	DayOfWeek    time.Weekday
	Start        ClockTime
	End          ClockTime
	Type         SessionType
	Module       string
	Classroom    string
	Group        string
	AcademicYear string
	Semester     Semester
}

// Duration is End-Start in hours, for display. The allocator works on minutes.
func (s WeeklySession) Duration() decimal.Decimal {
	return s.minutes().Div(decimal.NewFromInt(60))
}

func (s WeeklySession) minutes() decimal.Decimal {
	return decimal.NewFromInt(int64(s.End - s.Start))
}

// Teacher carries what the allocator needs plus payroll details.
type Teacher struct {
	ID            generic.TeacherID
	AdminID       generic.AdminID
	FirstName     string
	FamilyName    string
	Email         string
	Type          TeacherType
	HoursOutside  *decimal.Decimal // nil when the contractual baseline is unknown
	AccountNumber string
	CreatedAt     time.Time
}

func (t Teacher) FullName() string {
	return strings.TrimSpace(t.FirstName + " " + t.FamilyName)
}

// Holiday is an inclusive range of non-working days.
type Holiday struct {
	ID           generic.HolidayID
	Description  string
	Period       generic.Period
	AcademicYear string
}

// Absence marks one missed occurrence of a session. A caught-up absence was
// made up and still counts as worked.
type Absence struct {
	ID        generic.AbsenceID
	TeacherID generic.TeacherID
	SessionID generic.SessionID
	Date      generic.TimePoint
	CaughtUp  bool
	Reason    string
	Notes     string
}

// Rank is a pay grade with its hourly price.
type Rank struct {
	ID         generic.RankID
	Name       string
	Price      decimal.Decimal
	FiscalYear string
}

// RankChange records that a teacher holds Rank from StartingDate on.
type RankChange struct {
	TeacherID    generic.TeacherID
	Rank         string
	StartingDate generic.TimePoint
}

// AcademicPeriod is a payroll period (e.g. a month or a term).
type AcademicPeriod struct {
	ID     generic.PeriodID
	Name   string
	Period generic.Period
}

// =============================================================================
// DERIVED RECORDS
// =============================================================================

// Allocation is how many hours of one weekly session are paid as extra.
type Allocation struct {
	SessionID generic.SessionID
	DayOfWeek time.Weekday
	Duration  decimal.Decimal
}

// DatedExtraSession is one calendar occurrence of an Allocation.
type DatedExtraSession struct {
	SessionID generic.SessionID
	DayOfWeek time.Weekday
	Duration  decimal.Decimal
	Date      generic.TimePoint
}

// ExtraDay is the total extra hours worked on one date.
type ExtraDay struct {
	ID            generic.ExtraDayID
	SheetID       generic.SheetID
	Date          generic.TimePoint
	DayOfWeek     time.Weekday
	TotalDuration decimal.Decimal
}

// Sheet is a payable extra-hours sheet for one teacher and one date range.
type Sheet struct {
	ID               generic.SheetID
	TeacherID        generic.TeacherID
	Period           generic.Period
	Rank             string
	RankPrice        decimal.Decimal
	ExtraHoursNumber decimal.Decimal
	AmountOfMoney    decimal.Decimal
	CreatedAt        time.Time
}

// SheetTotals are the computed columns rewritten by a recalculation.
type SheetTotals struct {
	Period           generic.Period
	Rank             string
	RankPrice        decimal.Decimal
	ExtraHoursNumber decimal.Decimal
	AmountOfMoney    decimal.Decimal
}

// =============================================================================
// ACADEMIC YEAR
// =============================================================================

// AcademicYearOf names the academic year containing date, e.g. "2024/2025"
// for any date from 2024-09-01 through 2025-08-31.
func AcademicYearOf(date generic.TimePoint) string {
	start := date.Year()
	if date.Month() < time.September {
		start--
	}
	return fmt.Sprintf("%d/%d", start, start+1)
}

// AcademicYearPeriod parses "2024/2025" into [2024-09-01, 2025-08-31].
func AcademicYearPeriod(name string) (generic.Period, error) {
	var start, end int
	if _, err := fmt.Sscanf(name, "%d/%d", &start, &end); err != nil || end != start+1 {
		return generic.Period{}, generic.NewValidationError("academic_year",
			fmt.Sprintf("%q is not of the form YYYY/YYYY+1", name))
	}
	return generic.Period{
		Start: generic.NewTimePoint(start, time.September, 1),
		End:   generic.NewTimePoint(end, time.August, 31),
	}, nil
}
