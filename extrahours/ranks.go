package extrahours

import (
	"sort"
	"strings"

	"github.com/warp/extra-hours/generic"
)

// RankAt returns the rank a teacher held on date: the change with the latest
// starting date not after date. ok is false when no change applies yet.
func RankAt(history []RankChange, date generic.TimePoint) (rank string, ok bool) {
	var best *RankChange
	for i := range history {
		c := &history[i]
		if c.StartingDate.After(date) {
			continue
		}
		if best == nil || c.StartingDate.AfterOrEqual(best.StartingDate) {
			best = c
		}
	}
	if best == nil {
		return "", false
	}
	return best.Rank, true
}

// RankedPeriod is a slice of a payroll period during which a teacher held a
// single rank. Rank is empty when no rank applies yet.
type RankedPeriod struct {
	Period generic.Period
	Rank   string
}

// SplitByRank cuts period at every rank change that starts strictly after
// its first day and no later than its last day. Each piece carries the rank
// in force on its first day, so a promotion on the 15th gives [1..14] at the
// old rank and [15..end] at the new one.
func SplitByRank(period generic.Period, history []RankChange) []RankedPeriod {
	var cuts []generic.TimePoint
	for _, c := range history {
		if c.StartingDate.After(period.Start) && !c.StartingDate.After(period.End) {
			cuts = append(cuts, c.StartingDate)
		}
	}
	sort.Slice(cuts, func(i, j int) bool { return cuts[i].Before(cuts[j]) })

	var out []RankedPeriod
	start := period.Start
	for _, cut := range cuts {
		if !cut.After(start) {
			// same-day changes
			continue
		}
		out = append(out, rankedPiece(generic.Period{Start: start, End: cut.AddDays(-1)}, history))
		start = cut
	}
	return append(out, rankedPiece(generic.Period{Start: start, End: period.End}, history))
}

func rankedPiece(p generic.Period, history []RankChange) RankedPeriod {
	rank, _ := RankAt(history, p.Start)
	return RankedPeriod{Period: p, Rank: rank}
}

// FindRank looks a rank up by name in the catalogue. When several fiscal
// years carry the same name the last one listed wins.
func FindRank(catalogue []Rank, name string) (Rank, bool) {
	var found Rank
	ok := false
	for _, r := range catalogue {
		if strings.EqualFold(r.Name, name) {
			found, ok = r, true
		}
	}
	return found, ok
}
