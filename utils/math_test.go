package utils

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDecEqual(t *testing.T) {
	t.Parallel()
	cases := []struct {
		a, b float64
		want bool
	}{
		{1.0, 1.0, true},
		{1.0, 1.0 + 5e-9, true},
		{1.0, 1.0 + 2e-8, false},
		{0, 0, true},
		{-3.5, -3.5, true},
		{math.NaN(), math.NaN(), true},
		{math.NaN(), 1.0, false},
		{math.Inf(1), math.Inf(1), true},
		{math.Inf(1), math.Inf(-1), false},
		{math.Inf(1), 1e308, false},
	}
	for _, c := range cases {
		if got := DecEqual(c.a, c.b); got != c.want {
			t.Errorf("DecEqual(%v, %v) expected: %v, received %v", c.a, c.b, c.want, got)
		}
	}
}

func TestDecEqualIn(t *testing.T) {
	t.Parallel()
	if !DecEqualIn(100, 100.4, 0.5) {
		t.Errorf("expected equal within 0.5")
	}
	if DecEqualIn(100, 100.6, 0.5) {
		t.Errorf("expected not equal within 0.5")
	}
}

func TestDecArithMean(t *testing.T) {
	t.Parallel()
	vals := []decimal.Decimal{
		decimal.NewFromFloat(1.5),
		decimal.NewFromFloat(2.5),
		decimal.NewFromFloat(3.5),
	}
	avg, ok := DecArithMean(vals)
	if !ok {
		t.Fatalf("expected ok for non-empty input")
	}
	if !avg.Equal(decimal.NewFromFloat(2.5)) {
		t.Errorf("expected: 2.5, received %v", avg)
	}
	if _, ok = DecArithMean(nil); ok {
		t.Errorf("expected not ok for empty input")
	}
}
