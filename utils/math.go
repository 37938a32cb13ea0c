package utils

import (
	"math"

	"github.com/shopspring/decimal"
)

// ThresVerifyEq 跳过重算的单元格与期望值核对时的十进制比较精度
// decimal comparison tolerance when checking skipped cells against expected values
const ThresVerifyEq = 1e-8

/*
DecEqualIn
用十进制运算判断两个float64的差是否在thres以内，避免二进制浮点误差放大。
NaN只与NaN相等；Inf退化为普通比较，因为decimal无法表示。
Compare two float64 values within thres using decimal arithmetic. NaN only
equals NaN; Inf falls back to plain comparison since decimal cannot hold it.
*/
func DecEqualIn(a, b, thres float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return a == b
	}
	diff := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs()
	return diff.LessThanOrEqual(decimal.NewFromFloat(thres))
}

/*
DecEqual 判断两个float64是否在校验精度内相等
*/
func DecEqual(a, b float64) bool {
	return DecEqualIn(a, b, ThresVerifyEq)
}

/*
DecArithMean 十进制求算术平均，用于报告中的列统计
*/
func DecArithMean(values []decimal.Decimal) (decimal.Decimal, bool) {
	if len(values) == 0 {
		return decimal.Zero, false
	}
	var sumOfValues decimal.Decimal
	for _, v := range values {
		sumOfValues = sumOfValues.Add(v)
	}
	return sumOfValues.Div(decimal.NewFromInt(int64(len(values)))), true
}
