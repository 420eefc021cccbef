package generic

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriod_Contains(t *testing.T) {
	p := Period{Start: NewTimePoint(2025, time.January, 6), End: NewTimePoint(2025, time.January, 20)}

	tests := []struct {
		date TimePoint
		want bool
	}{
		{NewTimePoint(2025, time.January, 5), false},
		{NewTimePoint(2025, time.January, 6), true},
		{NewTimePoint(2025, time.January, 13), true},
		{NewTimePoint(2025, time.January, 20), true},
		{NewTimePoint(2025, time.January, 21), false},
	}
	for _, tt := range tests {
		if got := p.Contains(tt.date); got != tt.want {
			t.Errorf("Contains(%s) = %v, want %v", tt.date, got, tt.want)
		}
	}
}

func TestPeriod_DaysAndLen(t *testing.T) {
	// Crosses a month and a leap day
	p := Period{Start: NewTimePoint(2024, time.February, 27), End: NewTimePoint(2024, time.March, 2)}

	days := p.Days()
	require.Len(t, days, 5)
	assert.Equal(t, "2024-02-29", days[2].String())
	assert.Equal(t, 5, p.Len())

	single := Period{Start: p.Start, End: p.Start}
	assert.Equal(t, 1, single.Len())

	reversed := Period{Start: p.End, End: p.Start}
	assert.Equal(t, 0, reversed.Len())
	assert.Empty(t, reversed.Days())
}

func TestPeriod_Overlaps(t *testing.T) {
	jan := Period{Start: NewTimePoint(2025, time.January, 1), End: NewTimePoint(2025, time.January, 31)}

	assert.True(t, jan.Overlaps(Period{Start: NewTimePoint(2025, time.January, 31), End: NewTimePoint(2025, time.February, 5)}))
	assert.False(t, jan.Overlaps(Period{Start: NewTimePoint(2025, time.February, 1), End: NewTimePoint(2025, time.February, 5)}))
}

func TestNewPeriod_RejectsReversedRange(t *testing.T) {
	_, err := NewPeriod(NewTimePoint(2025, time.January, 20), NewTimePoint(2025, time.January, 6))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
	assert.True(t, IsClientError(err))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "to", verr.Field)
}

func TestParseDate(t *testing.T) {
	tp, err := ParseDate("2025-01-06")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, tp.Weekday())

	tp, err = ParseDate("2025-01-06T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-06", tp.String())

	_, err = ParseDate("06/01/2025")
	assert.Error(t, err)
}

func TestErrors_Classification(t *testing.T) {
	notFound := fmt.Errorf("load: %w", &NotFoundError{Kind: "sheet", ID: 3})
	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsClientError(notFound))
	assert.Equal(t, "load: sheet 3 not found", notFound.Error())

	conflict := fmt.Errorf("holiday: %w", ErrConflict)
	assert.True(t, IsClientError(conflict))

	invariant := &InvariantViolationError{Rule: "session_type", Detail: "unknown"}
	assert.True(t, errors.Is(invariant, ErrInvariantViolation))
	assert.False(t, IsClientError(invariant))
}
