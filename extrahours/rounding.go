package extrahours

import "github.com/shopspring/decimal"

var half = decimal.RequireFromString("0.5")

// RoundHalfUp converts an hour count into a billable half-hour unit: whole
// numbers are kept, any fraction up to .5 becomes .5, anything above becomes
// the next whole hour. Defined for h >= 0.
func RoundHalfUp(h decimal.Decimal) decimal.Decimal {
	whole := h.Floor()
	frac := h.Sub(whole)
	switch {
	case frac.IsZero():
		return whole
	case frac.LessThanOrEqual(half):
		return whole.Add(half)
	default:
		return whole.Add(decimal.NewFromInt(1))
	}
}
