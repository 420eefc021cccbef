package extrahours_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/extra-hours/extrahours"
	"github.com/warp/extra-hours/generic"
)

// January 2025: the 6th, 13th and 20th are Mondays.
var (
	jan6  = date(2025, time.January, 6)
	jan13 = date(2025, time.January, 13)
	jan20 = date(2025, time.January, 20)
)

func mondayAllocation(id int64, hours float64) extrahours.Allocation {
	return extrahours.Allocation{SessionID: generic.SessionID(id), DayOfWeek: time.Monday, Duration: generic.Hours(hours)}
}

func datesOf(dated []extrahours.DatedExtraSession) []string {
	out := make([]string, len(dated))
	for i, d := range dated {
		out[i] = d.Date.String()
	}
	return out
}

// =============================================================================
// EXPANSION
// =============================================================================

func TestExpand_EveryMatchingWeekday(t *testing.T) {
	dated, err := extrahours.Expand(period(jan6, jan20), []extrahours.Allocation{mondayAllocation(1, 2)}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"2025-01-06", "2025-01-13", "2025-01-20"}, datesOf(dated))
	for _, d := range dated {
		assert.Equal(t, time.Monday, d.DayOfWeek)
		assertHours(t, 2, d.Duration)
	}
}

func TestExpand_HolidayExcludesDate(t *testing.T) {
	// GIVEN: A holiday spanning the second Monday
	holidays := []extrahours.Holiday{{
		Description: "Winter break",
		Period:      period(date(2025, time.January, 12), jan13),
	}}

	dated, err := extrahours.Expand(period(jan6, jan20), []extrahours.Allocation{mondayAllocation(1, 2)}, holidays, nil)
	require.NoError(t, err)

	// THEN: The holiday Monday is missing, both range ends are inclusive
	assert.Equal(t, []string{"2025-01-06", "2025-01-20"}, datesOf(dated))
}

func TestExpand_AbsenceExcludesOnlyUncaughtOccurrence(t *testing.T) {
	allocs := []extrahours.Allocation{mondayAllocation(1, 2), mondayAllocation(2, 1.5)}

	t.Run("not caught up", func(t *testing.T) {
		absences := []extrahours.Absence{{SessionID: 1, Date: jan13, CaughtUp: false}}

		dated, err := extrahours.Expand(period(jan6, jan20), allocs, nil, absences)
		require.NoError(t, err)

		// Session 1 disappears on the 13th, session 2 still runs
		require.Len(t, dated, 5)
		for _, d := range dated {
			if d.Date.Equal(jan13) {
				assert.Equal(t, generic.SessionID(2), d.SessionID)
			}
		}
	})

	t.Run("caught up", func(t *testing.T) {
		absences := []extrahours.Absence{{SessionID: 1, Date: jan13, CaughtUp: true}}

		dated, err := extrahours.Expand(period(jan6, jan20), allocs, nil, absences)
		require.NoError(t, err)
		assert.Len(t, dated, 6)
	})
}

func TestExpand_OrderedByDateThenAllocation(t *testing.T) {
	allocs := []extrahours.Allocation{
		{SessionID: 3, DayOfWeek: time.Tuesday, Duration: generic.Hours(1)},
		mondayAllocation(1, 2),
		mondayAllocation(2, 1),
	}

	dated, err := extrahours.Expand(period(jan6, date(2025, time.January, 7)), allocs, nil, nil)
	require.NoError(t, err)

	require.Len(t, dated, 3)
	assert.Equal(t, generic.SessionID(1), dated[0].SessionID)
	assert.Equal(t, generic.SessionID(2), dated[1].SessionID)
	assert.Equal(t, generic.SessionID(3), dated[2].SessionID)
}

func TestExpand_FromAfterTo(t *testing.T) {
	_, err := extrahours.Expand(period(jan20, jan6), []extrahours.Allocation{mondayAllocation(1, 2)}, nil, nil)

	assert.ErrorIs(t, err, generic.ErrValidation)
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)
}

func TestExpand_SingleDayRange(t *testing.T) {
	dated, err := extrahours.Expand(period(jan13, jan13), []extrahours.Allocation{mondayAllocation(1, 2)}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-13"}, datesOf(dated))
}

// =============================================================================
// AGGREGATION
// =============================================================================

func TestAggregate_SumsPerDate(t *testing.T) {
	dated := []extrahours.DatedExtraSession{
		{SessionID: 2, DayOfWeek: time.Monday, Duration: generic.Hours(1.5), Date: jan13},
		{SessionID: 1, DayOfWeek: time.Monday, Duration: generic.Hours(2), Date: jan6},
		{SessionID: 2, DayOfWeek: time.Monday, Duration: generic.Hours(1.5), Date: jan6},
		{SessionID: 1, DayOfWeek: time.Monday, Duration: generic.Hours(2), Date: jan13},
	}

	days := extrahours.Aggregate(dated)

	require.Len(t, days, 2)
	assert.True(t, days[0].Date.Equal(jan6))
	assert.True(t, days[1].Date.Equal(jan13))
	assertHours(t, 3.5, days[0].TotalDuration)
	assertHours(t, 3.5, days[1].TotalDuration)
	assert.Equal(t, time.Monday, days[0].DayOfWeek)

	// Totals are preserved
	sum := decimal.Zero
	for _, d := range dated {
		sum = sum.Add(d.Duration)
	}
	assert.True(t, extrahours.TotalHours(days).Equal(sum))
}

func TestAggregate_Empty(t *testing.T) {
	days := extrahours.Aggregate(nil)
	assert.Empty(t, days)
	assertHours(t, 0, extrahours.TotalHours(days))
}

// =============================================================================
// SEMESTER AND ACADEMIC YEAR
// =============================================================================

func TestSemesterFor(t *testing.T) {
	tests := []struct {
		month time.Month
		want  extrahours.Semester
	}{
		{time.September, extrahours.SemesterOne},
		{time.December, extrahours.SemesterOne},
		{time.January, extrahours.SemesterOne},
		{time.February, extrahours.SemesterTwo},
		{time.June, extrahours.SemesterTwo},
		{time.August, extrahours.SemesterTwo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extrahours.SemesterFor(date(2025, tt.month, 15)), tt.month.String())
	}
}

func TestAcademicYear(t *testing.T) {
	assert.Equal(t, "2024/2025", extrahours.AcademicYearOf(date(2024, time.September, 1)))
	assert.Equal(t, "2024/2025", extrahours.AcademicYearOf(date(2025, time.August, 31)))
	assert.Equal(t, "2025/2026", extrahours.AcademicYearOf(date(2025, time.September, 1)))

	p, err := extrahours.AcademicYearPeriod("2024/2025")
	require.NoError(t, err)
	assert.Equal(t, "2024-09-01", p.Start.String())
	assert.Equal(t, "2025-08-31", p.End.String())

	_, err = extrahours.AcademicYearPeriod("2024-2026")
	assert.ErrorIs(t, err, generic.ErrValidation)
}
