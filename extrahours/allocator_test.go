package extrahours_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/extra-hours/extrahours"
	"github.com/warp/extra-hours/generic"
)

// =============================================================================
// ORDERING
// =============================================================================

func TestSortSessions_TypeThenDayThenStart(t *testing.T) {
	// GIVEN: Sessions in arbitrary order
	in := []extrahours.WeeklySession{
		session(1, extrahours.SessionTP, time.Monday, "08:00", "10:00"),
		session(2, extrahours.SessionCours, time.Tuesday, "10:00", "12:00"),
		session(3, extrahours.SessionCours, time.Tuesday, "08:00", "10:00"),
		session(4, extrahours.SessionTD, time.Sunday, "14:00", "16:00"),
		session(5, extrahours.SessionCours, time.Sunday, "14:00", "16:00"),
	}

	// WHEN: Sorting
	out, err := extrahours.SortSessions(in)
	require.NoError(t, err)

	// THEN: Cours < TD < TP, then Sunday first, then earlier start
	ids := make([]generic.SessionID, len(out))
	for i, s := range out {
		ids[i] = s.ID
	}
	assert.Equal(t, []generic.SessionID{5, 3, 2, 4, 1}, ids)

	// AND: The input is untouched
	assert.Equal(t, generic.SessionID(1), in[0].ID)
}

func TestSortSessions_UnknownType(t *testing.T) {
	_, err := extrahours.SortSessions([]extrahours.WeeklySession{
		session(1, "Seminar", time.Monday, "08:00", "10:00"),
	})
	assert.ErrorIs(t, err, generic.ErrInvariantViolation)
}

// =============================================================================
// TEMPORARY TEACHERS
// =============================================================================

func TestAllocate_TemporaryClipsAtCap(t *testing.T) {
	// GIVEN: A temporary teacher with 4 x 5h = 20 raw hours
	sessions := []extrahours.WeeklySession{
		session(1, extrahours.SessionTD, time.Sunday, "08:00", "13:00"),
		session(2, extrahours.SessionTD, time.Monday, "08:00", "13:00"),
		session(3, extrahours.SessionTD, time.Tuesday, "08:00", "13:00"),
		session(4, extrahours.SessionTD, time.Wednesday, "08:00", "13:00"),
	}

	// WHEN: Allocating
	allocs, err := extrahours.Allocate(sessions, extrahours.TeacherTemporary, nil)
	require.NoError(t, err)

	// THEN: Exactly 12h, the last session touched is clipped
	require.Len(t, allocs, 3)
	assertHours(t, 12, sumAllocations(allocs))
	assertHours(t, 5, allocs[0].Duration)
	assertHours(t, 5, allocs[1].Duration)
	assertHours(t, 2, allocs[2].Duration)
	assert.Equal(t, generic.SessionID(3), allocs[2].SessionID)
	assert.True(t, allocs[2].Duration.LessThan(sessions[2].Duration()))
}

func TestAllocate_PriorityDecidesWhoIsClipped(t *testing.T) {
	// GIVEN: A TP listed before a Cours, 16h together
	sessions := []extrahours.WeeklySession{
		session(1, extrahours.SessionTP, time.Sunday, "08:00", "16:00"),
		session(2, extrahours.SessionCours, time.Saturday, "08:00", "16:00"),
	}

	allocs, err := extrahours.Allocate(sessions, extrahours.TeacherTemporary, nil)
	require.NoError(t, err)

	// THEN: The Cours gets full credit and the TP the remainder
	require.Len(t, allocs, 2)
	assert.Equal(t, generic.SessionID(2), allocs[0].SessionID)
	assertHours(t, 8, allocs[0].Duration)
	assert.Equal(t, generic.SessionID(1), allocs[1].SessionID)
	assertHours(t, 4, allocs[1].Duration)
}

func TestAllocate_BilledInHalfHourSteps(t *testing.T) {
	// 1h20 is billed as 1h30
	s := session(1, extrahours.SessionTD, time.Monday, "08:00", "09:20")
	allocs, err := extrahours.Allocate([]extrahours.WeeklySession{s}, extrahours.TeacherTemporary, nil)
	require.NoError(t, err)

	require.Len(t, allocs, 1)
	assertHours(t, 1.5, allocs[0].Duration)
}

func TestAllocate_EightyMinuteSessionsReachCapExactly(t *testing.T) {
	// GIVEN: Ten 1h20 TD sessions, two per day from Sunday to Thursday
	var sessions []extrahours.WeeklySession
	id := int64(1)
	for _, day := range []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday} {
		sessions = append(sessions,
			session(id, extrahours.SessionTD, day, "08:00", "09:20"),
			session(id+1, extrahours.SessionTD, day, "09:30", "10:50"),
		)
		id += 2
	}

	// WHEN: Allocating for a temporary teacher
	allocs, err := extrahours.Allocate(sessions, extrahours.TeacherTemporary, nil)
	require.NoError(t, err)

	// THEN: Eight sessions at 1h30 fill the cap and nothing trails behind
	require.Len(t, allocs, 8)
	for _, a := range allocs {
		assertHours(t, 1.5, a.Duration)
	}
	assert.True(t, sumAllocations(allocs).Equal(extrahours.WeeklyCapHours), "sum %s", sumAllocations(allocs))
}

func TestAllocate_CrossingWithThirdsStaysInSteps(t *testing.T) {
	// gap of 1 weighted hour, Cours 1h20: 80 - 60/1.5 = 40 minutes, billed 1h
	allocs, err := extrahours.Allocate([]extrahours.WeeklySession{
		session(1, extrahours.SessionCours, time.Monday, "08:00", "09:20"),
	}, extrahours.TeacherPermanent, hoursPtr(8))
	require.NoError(t, err)

	require.Len(t, allocs, 1)
	assertHours(t, 1, allocs[0].Duration)
}

// =============================================================================
// PERMANENT TEACHERS
// =============================================================================

func TestAllocate_PermanentAtBaselineMatchesTemporary(t *testing.T) {
	sessions := []extrahours.WeeklySession{
		session(1, extrahours.SessionCours, time.Monday, "08:00", "11:00"),
		session(2, extrahours.SessionTD, time.Tuesday, "08:00", "12:30"),
		session(3, extrahours.SessionTP, time.Wednesday, "08:00", "14:00"),
		session(4, extrahours.SessionTD, time.Thursday, "10:00", "11:40"),
	}

	temporary, err := extrahours.Allocate(sessions, extrahours.TeacherTemporary, nil)
	require.NoError(t, err)
	permanent, err := extrahours.Allocate(sessions, extrahours.TeacherPermanent, hoursPtr(9))
	require.NoError(t, err)

	require.Len(t, permanent, len(temporary))
	for i := range temporary {
		assert.Equal(t, temporary[i].SessionID, permanent[i].SessionID)
		assertHours(t, generic.Float(temporary[i].Duration), permanent[i].Duration)
	}
}

func TestAllocate_PermanentAboveBaselineSeedsCap(t *testing.T) {
	// GIVEN: 1h already owed beyond the baseline, so 11h of room
	sessions := []extrahours.WeeklySession{
		session(1, extrahours.SessionTD, time.Sunday, "08:00", "13:00"),
		session(2, extrahours.SessionTD, time.Monday, "08:00", "13:00"),
		session(3, extrahours.SessionTD, time.Tuesday, "08:00", "13:00"),
	}

	allocs, err := extrahours.Allocate(sessions, extrahours.TeacherPermanent, hoursPtr(10))
	require.NoError(t, err)

	require.Len(t, allocs, 3)
	assertHours(t, 1, allocs[2].Duration)
	assertHours(t, 11, sumAllocations(allocs))
}

func TestAllocate_PermanentAboveCapAllocatesNothing(t *testing.T) {
	allocs, err := extrahours.Allocate([]extrahours.WeeklySession{
		session(1, extrahours.SessionTD, time.Monday, "08:00", "10:00"),
	}, extrahours.TeacherPermanent, hoursPtr(21))
	require.NoError(t, err)
	assert.Empty(t, allocs)
}

func TestAllocate_CoursExactlyFillingBaselineIsNotExtra(t *testing.T) {
	// GIVEN: hoursOutside 0 and a 6h Cours (6 x 1.5 = 9 weighted hours)
	allocs, err := extrahours.Allocate([]extrahours.WeeklySession{
		session(1, extrahours.SessionCours, time.Monday, "08:00", "14:00"),
	}, extrahours.TeacherPermanent, hoursPtr(0))

	// THEN: The whole session is consumed by the baseline
	require.NoError(t, err)
	assert.Empty(t, allocs)
}

func TestAllocate_ThresholdCrossingPerCoefficient(t *testing.T) {
	// hoursOutside 6 leaves a gap of 3 weighted hours; the overflow is
	// converted back to raw hours with the session's coefficient.
	tests := []struct {
		name    string
		session extrahours.WeeklySession
		want    float64
	}{
		{"cours 4h: 4 - 3/1.5", session(1, extrahours.SessionCours, time.Monday, "08:00", "12:00"), 2},
		{"td 4h: 4 - 3/1", session(1, extrahours.SessionTD, time.Monday, "08:00", "12:00"), 1},
		{"tp 5h: 5 - 3/0.75", session(1, extrahours.SessionTP, time.Monday, "08:00", "13:00"), 1},
		{"tp 4h30: 4.5 - 3/0.75", session(1, extrahours.SessionTP, time.Monday, "08:00", "12:30"), 0.5},
		{"td 3h: weighted 3 only fills the gap", session(1, extrahours.SessionTD, time.Monday, "08:00", "11:00"), 0},
		{"tp 4h: weighted 3 only fills the gap", session(1, extrahours.SessionTP, time.Monday, "08:00", "12:00"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allocs, err := extrahours.Allocate([]extrahours.WeeklySession{tt.session}, extrahours.TeacherPermanent, hoursPtr(6))
			require.NoError(t, err)

			if tt.want == 0 {
				assert.Empty(t, allocs)
				return
			}
			require.Len(t, allocs, 1)
			assertHours(t, tt.want, allocs[0].Duration)
		})
	}
}

func TestAllocate_OverflowIsRounded(t *testing.T) {
	// GIVEN: gap of 2, a 3h Cours: 3 - 2/1.5 = 1.67h raw overflow
	allocs, err := extrahours.Allocate([]extrahours.WeeklySession{
		session(1, extrahours.SessionCours, time.Monday, "08:00", "11:00"),
	}, extrahours.TeacherPermanent, hoursPtr(7))
	require.NoError(t, err)

	require.Len(t, allocs, 1)
	assertHours(t, 2, allocs[0].Duration)
}

func TestAllocate_SessionsAfterBaselineCountFully(t *testing.T) {
	// GIVEN: The Cours crosses the baseline, the TD comes after it
	sessions := []extrahours.WeeklySession{
		session(2, extrahours.SessionTD, time.Tuesday, "08:00", "10:00"),
		session(1, extrahours.SessionCours, time.Monday, "08:00", "12:00"),
	}

	allocs, err := extrahours.Allocate(sessions, extrahours.TeacherPermanent, hoursPtr(6))
	require.NoError(t, err)

	require.Len(t, allocs, 2)
	assert.Equal(t, generic.SessionID(1), allocs[0].SessionID)
	assertHours(t, 2, allocs[0].Duration)
	assert.Equal(t, generic.SessionID(2), allocs[1].SessionID)
	assertHours(t, 2, allocs[1].Duration)
}

func TestAllocate_BelowBaselineWeeklyTotalNeverCrosses(t *testing.T) {
	// 2h TD per week: 2 weighted hours never reach 9
	allocs, err := extrahours.Allocate([]extrahours.WeeklySession{
		session(1, extrahours.SessionTD, time.Monday, "08:00", "10:00"),
	}, extrahours.TeacherPermanent, hoursPtr(0))
	require.NoError(t, err)
	assert.Empty(t, allocs)
}

// =============================================================================
// ERRORS
// =============================================================================

func TestAllocate_PermanentWithoutHoursOutside(t *testing.T) {
	_, err := extrahours.Allocate([]extrahours.WeeklySession{
		session(1, extrahours.SessionTD, time.Monday, "08:00", "10:00"),
	}, extrahours.TeacherPermanent, nil)

	var verr *generic.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "hours_outside", verr.Field)
}

func TestAllocate_MalformedSessions(t *testing.T) {
	tests := []struct {
		name    string
		session extrahours.WeeklySession
	}{
		{"end before start", session(1, extrahours.SessionTD, time.Monday, "10:00", "08:00")},
		{"zero length", session(1, extrahours.SessionTD, time.Monday, "10:00", "10:00")},
		{"unknown type", session(1, "Atelier", time.Monday, "08:00", "10:00")},
		{"bad weekday", session(1, extrahours.SessionTD, time.Weekday(9), "08:00", "10:00")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := extrahours.Allocate([]extrahours.WeeklySession{tt.session}, extrahours.TeacherTemporary, nil)
			assert.ErrorIs(t, err, generic.ErrInvariantViolation)
		})
	}
}

// =============================================================================
// PROPERTIES
// =============================================================================

func TestAllocate_CapInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	types := []extrahours.SessionType{extrahours.SessionCours, extrahours.SessionTD, extrahours.SessionTP}

	for i := 0; i < 500; i++ {
		var sessions []extrahours.WeeklySession
		for j := 0; j < 1+rng.Intn(10); j++ {
			start := 7*60 + rng.Intn(6)*10
			length := 10 + rng.Intn(36)*10 // 10 minutes to 6 hours
			sessions = append(sessions, extrahours.WeeklySession{
				ID:        generic.SessionID(j + 1),
				DayOfWeek: time.Weekday(rng.Intn(7)),
				Start:     extrahours.ClockTime(start),
				End:       extrahours.ClockTime(start + length),
				Type:      types[rng.Intn(len(types))],
			})
		}
		teacherType := extrahours.TeacherTemporary
		outside := hoursPtr(float64(rng.Intn(30)) / 2)
		if rng.Intn(2) == 0 {
			teacherType = extrahours.TeacherPermanent
		}

		allocs, err := extrahours.Allocate(sessions, teacherType, outside)
		require.NoError(t, err)

		total := sumAllocations(allocs)
		if total.GreaterThan(extrahours.WeeklyCapHours) {
			t.Fatalf("case %d: %s %v allocated %s > 12", i, teacherType, outside, total)
		}
		raw := make(map[generic.SessionID]extrahours.WeeklySession, len(sessions))
		for _, s := range sessions {
			raw[s.ID] = s
		}
		seen := make(map[generic.SessionID]bool)
		for _, a := range allocs {
			ceiling := extrahours.RoundHalfUp(raw[a.SessionID].Duration())
			if !a.Duration.IsPositive() || a.Duration.GreaterThan(ceiling) {
				t.Fatalf("case %d: allocation %s outside (0, %s]", i, a.Duration, ceiling)
			}
			if !a.Duration.Equal(extrahours.RoundHalfUp(a.Duration)) {
				t.Fatalf("case %d: allocation %s is not a half-hour step", i, a.Duration)
			}
			if seen[a.SessionID] {
				t.Fatalf("case %d: session %d allocated twice", i, a.SessionID)
			}
			seen[a.SessionID] = true
		}
	}
}
