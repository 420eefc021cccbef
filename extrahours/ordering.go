package extrahours

import (
	"fmt"
	"sort"

	"github.com/warp/extra-hours/generic"
)

// SortSessions returns a copy of sessions in allocation priority: by type
// (Cours, TD, TP), then weekday (Sunday first), then start time. The order
// decides which sessions get full credit when the weekly cap is reached.
func SortSessions(sessions []WeeklySession) ([]WeeklySession, error) {
	sorted := make([]WeeklySession, len(sessions))
	copy(sorted, sessions)

	for _, s := range sorted {
		if !s.Type.Valid() {
			return nil, &generic.InvariantViolationError{
				Rule:   "session_type",
				Detail: fmt.Sprintf("session %d has unknown type %q", s.ID, s.Type),
			}
		}
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return lessSession(sorted[i], sorted[j])
	})
	return sorted, nil
}

func lessSession(a, b WeeklySession) bool {
	if ta, tb := sessionTypeRank[a.Type], sessionTypeRank[b.Type]; ta != tb {
		return ta < tb
	}
	if a.DayOfWeek != b.DayOfWeek {
		return a.DayOfWeek < b.DayOfWeek
	}
	return a.Start < b.Start
}
