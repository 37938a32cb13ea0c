package ind

import (
	"math"
	"testing"

	"github.com/banbox/banexg"
	"github.com/banbox/banind/utils"
)

// 用收盘价构造K线，高低价在收盘价上下1，成交量固定10
func barsFromCloses(closes ...float64) []*banexg.Kline {
	res := make([]*banexg.Kline, 0, len(closes))
	for i, c := range closes {
		res = append(res, &banexg.Kline{
			Time: int64(i) * 60000, Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 10,
		})
	}
	return res
}

func checkSeries(t *testing.T, name string, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s length expected: %v, received %v", name, len(want), len(got))
	}
	for i := range want {
		if !utils.EqualNearly(got[i], want[i]) {
			t.Errorf("%s[%d] expected: %v, received %v", name, i, want[i], got[i])
		}
	}
}

func TestSma(t *testing.T) {
	t.Parallel()
	nan := math.NaN()
	res := Sma(barsFromCloses(1, 2, 3, 4, 5, 6), 3)
	checkSeries(t, "sma", res, []float64{nan, nan, 2, 3, 4, 5})
}

func TestStdDev(t *testing.T) {
	t.Parallel()
	nan := math.NaN()
	res := StdDev(barsFromCloses(1, 3, 5), 2)
	checkSeries(t, "stddev", res, []float64{nan, 1, 1})
}

func TestVwma(t *testing.T) {
	t.Parallel()
	bars := barsFromCloses(10, 20)
	bars[0].Volume = 1
	bars[1].Volume = 3
	res := Vwma(bars, 2)
	if !utils.EqualNearly(res[1], 17.5) {
		t.Errorf("vwma expected: 17.5, received %v", res[1])
	}
	// 无成交量时退化为简单均值
	bars[0].Volume = 0
	bars[1].Volume = 0
	res = Vwma(bars, 2)
	if !utils.EqualNearly(res[1], 15) {
		t.Errorf("vwma zero volume expected: 15, received %v", res[1])
	}
}

func TestStochAndWillR(t *testing.T) {
	t.Parallel()
	bars := []*banexg.Kline{
		{Time: 0, High: 10, Low: 8, Close: 9, Volume: 1},
		{Time: 60000, High: 12, Low: 9, Close: 11, Volume: 1},
	}
	stoch := StochK(bars, 2)
	if !utils.EqualNearly(stoch[1], 75) {
		t.Errorf("stoch expected: 75, received %v", stoch[1])
	}
	wr := WillR(bars, 2)
	if !utils.EqualNearly(wr[1], -25) {
		t.Errorf("willr expected: -25, received %v", wr[1])
	}
	// 无波动窗口取中值
	flat := []*banexg.Kline{
		{Time: 0, High: 5, Low: 5, Close: 5, Volume: 1},
		{Time: 60000, High: 5, Low: 5, Close: 5, Volume: 1},
	}
	if v := StochK(flat, 2)[1]; !utils.EqualNearly(v, 50) {
		t.Errorf("flat stoch expected: 50, received %v", v)
	}
	if v := WillR(flat, 2)[1]; !utils.EqualNearly(v, -50) {
		t.Errorf("flat willr expected: -50, received %v", v)
	}
}

func TestCmf(t *testing.T) {
	t.Parallel()
	bars := []*banexg.Kline{
		{Time: 0, High: 12, Low: 8, Close: 10, Volume: 5},
		{Time: 60000, High: 15, Low: 10, Close: 15, Volume: 5},
	}
	res := Cmf(bars, 2)
	if !utils.EqualNearly(res[1], 0.5) {
		t.Errorf("cmf expected: 0.5, received %v", res[1])
	}
}

func TestRoc(t *testing.T) {
	t.Parallel()
	res := Roc(barsFromCloses(10, 11, 12, 15), 2)
	if !utils.EqualNearly(res[2], 20) {
		t.Errorf("roc[2] expected: 20, received %v", res[2])
	}
	if !utils.EqualNearly(res[3], 400.0/11) {
		t.Errorf("roc[3] expected: %v, received %v", 400.0/11, res[3])
	}
	if !math.IsNaN(res[1]) {
		t.Errorf("roc[1] should be NaN, received %v", res[1])
	}
}

func TestEmaSeed(t *testing.T) {
	t.Parallel()
	nan := math.NaN()
	res := Ema(barsFromCloses(2, 4, 6, 8, 10), 3)
	// 种子为前3个收盘价均值4，首个输出在下标3处
	checkSeries(t, "ema", res, []float64{nan, nan, nan, 6, 8})
}

func TestRmaSeed(t *testing.T) {
	t.Parallel()
	res := Rma(barsFromCloses(3, 6, 9, 12), 3)
	if !math.IsNaN(res[2]) {
		t.Errorf("rma[2] should be NaN, received %v", res[2])
	}
	if !utils.EqualNearly(res[3], 8) {
		t.Errorf("rma[3] expected: 8, received %v", res[3])
	}
}

func TestRsi(t *testing.T) {
	t.Parallel()
	res := Rsi(barsFromCloses(10, 11, 12, 11), 2)
	if !math.IsNaN(res[1]) {
		t.Errorf("rsi[1] should be NaN, received %v", res[1])
	}
	if !utils.EqualNearly(res[2], 100) {
		t.Errorf("rsi[2] expected: 100, received %v", res[2])
	}
	if !utils.EqualNearly(res[3], 50) {
		t.Errorf("rsi[3] expected: 50, received %v", res[3])
	}
	// 持续下跌时应趋向0
	down := Rsi(barsFromCloses(10, 9, 8, 7, 6), 2)
	if !utils.EqualNearly(down[4], 0) {
		t.Errorf("rsi downtrend expected: 0, received %v", down[4])
	}
}

func TestAtr(t *testing.T) {
	t.Parallel()
	bars := []*banexg.Kline{
		{Time: 0, High: 3, Low: 1, Close: 2, Volume: 1},
		{Time: 60000, High: 4, Low: 2, Close: 3, Volume: 1},
		{Time: 120000, High: 6, Low: 3, Close: 5, Volume: 1},
	}
	res := Atr(bars, 2)
	if !math.IsNaN(res[1]) {
		t.Errorf("atr[1] should be NaN, received %v", res[1])
	}
	if !utils.EqualNearly(res[2], 2.5) {
		t.Errorf("atr[2] expected: 2.5, received %v", res[2])
	}
}

// 链式指标从不同起点重算会得到不同前缀，但随着行数增加应收敛
func TestEmaConverge(t *testing.T) {
	t.Parallel()
	closes := make([]float64, 500)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/7)
	}
	bars := barsFromCloses(closes...)
	full := Ema(bars, 12)
	late := Ema(bars[100:], 12)
	last := len(bars) - 1
	if math.Abs(full[last]-late[last-100]) > 1e-8 {
		t.Errorf("ema tails should converge, received %v vs %v", full[last], late[last-100])
	}
	// 起点不同的早期输出不应相同，否则无需全量重算
	if full[120] == late[20] {
		t.Errorf("ema early values should differ between start offsets")
	}
}

func TestChainDeterminism(t *testing.T) {
	t.Parallel()
	closes := make([]float64, 300)
	for i := range closes {
		closes[i] = 50 + float64(i%17) + float64(i%5)*0.3
	}
	bars := barsFromCloses(closes...)
	for _, fam := range AllFamilies() {
		if fam.Kind != KindChain {
			continue
		}
		for _, p := range fam.Periods {
			a := fam.Calc(bars, p)
			b := fam.Calc(bars, p)
			for i := range a {
				if a[i] != b[i] && !(math.IsNaN(a[i]) && math.IsNaN(b[i])) {
					t.Errorf("%s_%d not deterministic at %d: %v vs %v", fam.Name, p, i, a[i], b[i])
				}
			}
		}
	}
}

// 窗口类指标的输出只取决于窗口内的行，与计算起点无关
func TestWindowLocality(t *testing.T) {
	t.Parallel()
	closes := make([]float64, 200)
	for i := range closes {
		closes[i] = 80 + float64((i*13)%23)
	}
	bars := barsFromCloses(closes...)
	for _, fam := range AllFamilies() {
		if fam.Kind != KindWindow {
			continue
		}
		for _, p := range fam.Periods {
			full := fam.Calc(bars, p)
			warm := fam.Warm(p)
			start := 90
			part := fam.Calc(bars[start-warm:], p)
			for i := start; i < len(bars); i++ {
				pi := i - (start - warm)
				if full[i] != part[pi] && !(math.IsNaN(full[i]) && math.IsNaN(part[pi])) {
					t.Errorf("%s_%d differs at %d when computed locally: %v vs %v",
						fam.Name, p, i, full[i], part[pi])
				}
			}
		}
	}
}
