package extrahours_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/warp/extra-hours/extrahours"
	"github.com/warp/extra-hours/generic"
)

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"0", 0},
		{"3", 3},
		{"3.0", 3},
		{"3.2", 3.5},
		{"3.5", 3.5},
		{"3.6", 4},
		{"0.01", 0.5},
		{"11.99", 12},
		{"1.6666666666666667", 2},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assertHours(t, tt.want, extrahours.RoundHalfUp(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestRoundHalfUp_NeverRoundsDown(t *testing.T) {
	for minutes := 0; minutes <= 12*60; minutes += 5 {
		h := generic.Hours(float64(minutes) / 60)
		got := extrahours.RoundHalfUp(h)
		if got.LessThan(h) {
			t.Fatalf("RoundHalfUp(%s) = %s, below input", h, got)
		}
		if got.Sub(h).GreaterThanOrEqual(generic.Hours(1)) {
			t.Fatalf("RoundHalfUp(%s) = %s, a full hour above input", h, got)
		}
	}
}
