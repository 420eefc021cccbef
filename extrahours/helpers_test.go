package extrahours_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/extra-hours/extrahours"
	"github.com/warp/extra-hours/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func session(id int64, typ extrahours.SessionType, day time.Weekday, start, end string) extrahours.WeeklySession {
	return extrahours.WeeklySession{
		ID:           generic.SessionID(id),
		TeacherID:    1,
		DayOfWeek:    day,
		Start:        extrahours.MustClock(start),
		End:          extrahours.MustClock(end),
		Type:         typ,
		AcademicYear: "2024/2025",
		Semester:     extrahours.SemesterOne,
	}
}

func hoursPtr(h float64) *decimal.Decimal {
	d := generic.Hours(h)
	return &d
}

func date(year int, month time.Month, day int) generic.TimePoint {
	return generic.NewTimePoint(year, month, day)
}

func period(from, to generic.TimePoint) generic.Period {
	return generic.Period{Start: from, End: to}
}

func sumAllocations(allocs []extrahours.Allocation) decimal.Decimal {
	total := decimal.Zero
	for _, a := range allocs {
		total = total.Add(a.Duration)
	}
	return total
}

// assertHours compares decimals by value, so 2 and 2.0 are equal.
func assertHours(t *testing.T, want float64, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	if !got.Equal(generic.Hours(want)) {
		t.Errorf("expected %v hours, got %s %v", want, got, msgAndArgs)
	}
}
