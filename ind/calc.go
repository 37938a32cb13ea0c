package ind

import (
	"math"

	"github.com/banbox/banexg"
)

func nanArr(num int) []float64 {
	res := make([]float64, num)
	for i := range res {
		res[i] = math.NaN()
	}
	return res
}

/*
Sma 简单移动平均。
每个窗口独立求和，任意批次边界下结果逐位一致。
Each window sums independently so results are bit-identical no matter
where the computation starts.
*/
func Sma(bars []*banexg.Kline, period int) []float64 {
	res := nanArr(len(bars))
	for i := period - 1; i < len(bars); i++ {
		sum := float64(0)
		for j := i - period + 1; j <= i; j++ {
			sum += bars[j].Close
		}
		res[i] = sum / float64(period)
	}
	return res
}

// StdDev 收盘价总体标准差
func StdDev(bars []*banexg.Kline, period int) []float64 {
	res := nanArr(len(bars))
	for i := period - 1; i < len(bars); i++ {
		sum := float64(0)
		for j := i - period + 1; j <= i; j++ {
			sum += bars[j].Close
		}
		mean := sum / float64(period)
		sqSum := float64(0)
		for j := i - period + 1; j <= i; j++ {
			dev := bars[j].Close - mean
			sqSum += dev * dev
		}
		res[i] = math.Sqrt(sqSum / float64(period))
	}
	return res
}

// Vwma 成交量加权移动平均；窗口内无成交量时退化为简单均值
func Vwma(bars []*banexg.Kline, period int) []float64 {
	res := nanArr(len(bars))
	for i := period - 1; i < len(bars); i++ {
		var pvSum, volSum float64
		for j := i - period + 1; j <= i; j++ {
			pvSum += bars[j].Close * bars[j].Volume
			volSum += bars[j].Volume
		}
		if volSum > 0 {
			res[i] = pvSum / volSum
		} else {
			var sum float64
			for j := i - period + 1; j <= i; j++ {
				sum += bars[j].Close
			}
			res[i] = sum / float64(period)
		}
	}
	return res
}

func highLow(bars []*banexg.Kline, start, end int) (float64, float64) {
	hi, lo := bars[start].High, bars[start].Low
	for j := start + 1; j <= end; j++ {
		if bars[j].High > hi {
			hi = bars[j].High
		}
		if bars[j].Low < lo {
			lo = bars[j].Low
		}
	}
	return hi, lo
}

// StochK 快速随机指标%K；窗口内价格无波动时取中值50
func StochK(bars []*banexg.Kline, period int) []float64 {
	res := nanArr(len(bars))
	for i := period - 1; i < len(bars); i++ {
		hi, lo := highLow(bars, i-period+1, i)
		if hi > lo {
			res[i] = (bars[i].Close - lo) / (hi - lo) * 100
		} else {
			res[i] = 50
		}
	}
	return res
}

// WillR 威廉指标；窗口内价格无波动时取中值-50
func WillR(bars []*banexg.Kline, period int) []float64 {
	res := nanArr(len(bars))
	for i := period - 1; i < len(bars); i++ {
		hi, lo := highLow(bars, i-period+1, i)
		if hi > lo {
			res[i] = (hi - bars[i].Close) / (hi - lo) * -100
		} else {
			res[i] = -50
		}
	}
	return res
}

// Cmf 蔡金资金流量；单根K线高低相等时资金流乘数按0计
func Cmf(bars []*banexg.Kline, period int) []float64 {
	res := nanArr(len(bars))
	for i := period - 1; i < len(bars); i++ {
		var mfvSum, volSum float64
		for j := i - period + 1; j <= i; j++ {
			b := bars[j]
			volSum += b.Volume
			if b.High > b.Low {
				mult := ((b.Close - b.Low) - (b.High - b.Close)) / (b.High - b.Low)
				mfvSum += mult * b.Volume
			}
		}
		if volSum > 0 {
			res[i] = mfvSum / volSum
		} else {
			res[i] = 0
		}
	}
	return res
}

// Roc 变动率，相对period行之前的收盘价的涨跌百分比
func Roc(bars []*banexg.Kline, period int) []float64 {
	res := nanArr(len(bars))
	for i := period; i < len(bars); i++ {
		prev := bars[i-period].Close
		if prev != 0 {
			res[i] = (bars[i].Close - prev) / prev * 100
		} else {
			res[i] = 0
		}
	}
	return res
}

/*
Ema 指数移动平均。
以首period个收盘价的简单均值作为虚拟前值，下标period处应用递推得到首个输出。
The plain average of the first period closes acts as a virtual previous
value; the first stored output lands at index period.
*/
func Ema(bars []*banexg.Kline, period int) []float64 {
	res := nanArr(len(bars))
	if len(bars) <= period {
		return res
	}
	var seed float64
	for j := 0; j < period; j++ {
		seed += bars[j].Close
	}
	prev := seed / float64(period)
	k := 2 / float64(period+1)
	for i := period; i < len(bars); i++ {
		prev = (bars[i].Close-prev)*k + prev
		res[i] = prev
	}
	return res
}

// Rma Wilder平滑移动平均，种子处理与Ema一致
func Rma(bars []*banexg.Kline, period int) []float64 {
	res := nanArr(len(bars))
	if len(bars) <= period {
		return res
	}
	var seed float64
	for j := 0; j < period; j++ {
		seed += bars[j].Close
	}
	prev := seed / float64(period)
	pf := float64(period)
	for i := period; i < len(bars); i++ {
		prev = (prev*(pf-1) + bars[i].Close) / pf
		res[i] = prev
	}
	return res
}

func rsiVal(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

/*
Rsi 相对强弱指标。
首period个差值的均值作为涨跌幅种子，下标period处输出种子对应的RSI，
之后按Wilder平滑递推。
*/
func Rsi(bars []*banexg.Kline, period int) []float64 {
	res := nanArr(len(bars))
	if len(bars) <= period {
		return res
	}
	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		delta := bars[i].Close - bars[i-1].Close
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}
	pf := float64(period)
	avgGain := gainSum / pf
	avgLoss := lossSum / pf
	res[period] = rsiVal(avgGain, avgLoss)
	for i := period + 1; i < len(bars); i++ {
		delta := bars[i].Close - bars[i-1].Close
		gain, loss := float64(0), float64(0)
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*(pf-1) + gain) / pf
		avgLoss = (avgLoss*(pf-1) + loss) / pf
		res[i] = rsiVal(avgGain, avgLoss)
	}
	return res
}

/*
Atr 平均真实波幅。
真实波幅对首行取高低价差，之后取(高-低, |高-前收|, |低-前收|)的最大值，
再按Wilder平滑递推，种子处理与Rma一致。
*/
func Atr(bars []*banexg.Kline, period int) []float64 {
	res := nanArr(len(bars))
	if len(bars) <= period {
		return res
	}
	trs := make([]float64, len(bars))
	trs[0] = bars[0].High - bars[0].Low
	for i := 1; i < len(bars); i++ {
		prevClose := bars[i-1].Close
		tr := bars[i].High - bars[i].Low
		if hc := math.Abs(bars[i].High - prevClose); hc > tr {
			tr = hc
		}
		if lc := math.Abs(bars[i].Low - prevClose); lc > tr {
			tr = lc
		}
		trs[i] = tr
	}
	var seed float64
	for j := 0; j < period; j++ {
		seed += trs[j]
	}
	prev := seed / float64(period)
	pf := float64(period)
	for i := period; i < len(bars); i++ {
		prev = (prev*(pf-1) + trs[i]) / pf
		res[i] = prev
	}
	return res
}
