package extrahours

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/extra-hours/generic"
)

// =============================================================================
// CALENDAR EXPANSION
// =============================================================================

// Expand projects weekly allocations onto every date of period (inclusive).
// An occurrence is skipped when the date falls inside a holiday or when the
// teacher was absent from that session on that date and hasn't caught up.
// Results are ordered by date, then by allocation order.
func Expand(period generic.Period, allocations []Allocation, holidays []Holiday, absences []Absence) ([]DatedExtraSession, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	missed := make(map[absenceKey]bool, len(absences))
	for _, a := range absences {
		if !a.CaughtUp {
			missed[absenceKey{session: a.SessionID, date: a.Date.String()}] = true
		}
	}

	var dated []DatedExtraSession
	for _, day := range period.Days() {
		if isHoliday(day, holidays) {
			continue
		}
		for _, a := range allocations {
			if a.DayOfWeek != day.Weekday() {
				continue
			}
			if missed[absenceKey{session: a.SessionID, date: day.String()}] {
				continue
			}
			dated = append(dated, DatedExtraSession{
				SessionID: a.SessionID,
				DayOfWeek: a.DayOfWeek,
				Duration:  a.Duration,
				Date:      day,
			})
		}
	}
	return dated, nil
}

type absenceKey struct {
	session generic.SessionID
	date    string
}

func isHoliday(day generic.TimePoint, holidays []Holiday) bool {
	for _, h := range holidays {
		if h.Period.Contains(day) {
			return true
		}
	}
	return false
}

// =============================================================================
// DAILY AGGREGATION
// =============================================================================

// Aggregate groups dated sessions into one ExtraDay per date, ordered by date.
// Dates without sessions are not emitted.
func Aggregate(dated []DatedExtraSession) []ExtraDay {
	byDate := make(map[string]*ExtraDay)
	for _, d := range dated {
		k := d.Date.String()
		day, ok := byDate[k]
		if !ok {
			day = &ExtraDay{Date: d.Date, DayOfWeek: d.DayOfWeek, TotalDuration: decimal.Zero}
			byDate[k] = day
		}
		day.TotalDuration = day.TotalDuration.Add(d.Duration)
	}

	days := make([]ExtraDay, 0, len(byDate))
	for _, day := range byDate {
		days = append(days, *day)
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Date.Before(days[j].Date)
	})
	return days
}

// TotalHours sums the extra hours of days.
func TotalHours(days []ExtraDay) decimal.Decimal {
	total := decimal.Zero
	for _, d := range days {
		total = total.Add(d.TotalDuration)
	}
	return total
}
