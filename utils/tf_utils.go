package utils

import (
	"fmt"
	"math"
	"sort"

	"github.com/banbox/banexg"
	"github.com/banbox/banexg/utils"
)

/*
TFToMSecs
将时间周期转为毫秒间隔
Convert a timeframe string to its interval in milliseconds
*/
func TFToMSecs(timeFrame string) int64 {
	return int64(utils.TFToSecs(timeFrame)) * 1000
}

/*
AlignBucketMS
将13位毫秒时间戳对齐到所属周期的开始时间。
网格由固定纪元原点切分，与任何样本无关；1d及以下周期均从UTC 00:00切分。
Align a 13-digit millisecond timestamp to the start of its bucket.
The grid is anchored at a fixed epoch origin, independent of any sample.
*/
func AlignBucketMS(timeMS int64, tfMSecs int64) int64 {
	_, offset := utils.GetTfAlignOrigin(int(tfMSecs / 1000))
	alignOffMS := int64(offset * 1000)
	return utils.AlignTfMSecsOffset(timeMS, tfMSecs, alignOffMS)
}

/*
AggKlines
将细粒度K线聚合为粗粒度K线。
开盘价取首个样本，最高/最低取极值，收盘价取时间戳最大的样本，成交量求和。
只输出被输入范围完整覆盖的周期：首尾不完整的周期丢弃；中间因源数据缺失而样本
不足的周期照常输出，原始K线的缺口由上层针对1m表单独检测。
fromTFMSecs是输入K线自身的间隔，用于计算覆盖范围的右边界。

Aggregate fine-grained klines into coarser buckets. Open takes the first
sample, high/low take extremes, close takes the sample with the largest
timestamp, volume is summed. Only buckets fully covered by the input range
are emitted; partial leading or trailing buckets are dropped.
*/
func AggKlines(arr []*banexg.Kline, fromTFMSecs, tfMSecs int64) []*banexg.Kline {
	return AggKlinesRange(arr, fromTFMSecs, tfMSecs, 0, 0)
}

/*
AggKlinesRange
同AggKlines，但按给定的覆盖范围[covStart, covEnd)裁剪首尾周期。
当源数据在范围边缘存在缺口时，样本自身无法证明首尾周期被完整覆盖，
调用方若已确认范围在标的总体覆盖之内，传入该范围可避免误裁剪。
covStart或covEnd为0时退化为按样本推算。

Same as AggKlines but trims edge buckets against an explicit coverage
range, so a source hole at the edge does not discard a bucket the caller
knows to be within overall coverage.
*/
func AggKlinesRange(arr []*banexg.Kline, fromTFMSecs, tfMSecs, covStart, covEnd int64) []*banexg.Kline {
	if len(arr) == 0 {
		return nil
	}
	if tfMSecs <= fromTFMSecs {
		return arr
	}
	if !sort.SliceIsSorted(arr, func(i, j int) bool {
		return arr[i].Time < arr[j].Time
	}) {
		arr = append([]*banexg.Kline(nil), arr...)
		sort.SliceStable(arr, func(i, j int) bool {
			return arr[i].Time < arr[j].Time
		})
	}
	if covStart == 0 {
		covStart = arr[0].Time
	}
	if covEnd == 0 {
		covEnd = arr[len(arr)-1].Time + fromTFMSecs
	}
	var result []*banexg.Kline
	var big *banexg.Kline
	var closeAt int64
	for _, bar := range arr {
		timeAlign := AlignBucketMS(bar.Time, tfMSecs)
		if big != nil && big.Time == timeAlign {
			if bar.High > big.High {
				big.High = bar.High
			}
			if bar.Low < big.Low {
				big.Low = bar.Low
			}
			if bar.Time >= closeAt {
				// 时间戳相同的样本，取靠后者的收盘价
				big.Close = bar.Close
				closeAt = bar.Time
			}
			big.Volume += bar.Volume
		} else {
			if big != nil {
				result = append(result, big)
			}
			big = bar.Clone() // 不修改原始数据
			big.Time = timeAlign
			closeAt = bar.Time
		}
	}
	result = append(result, big)
	// 裁剪首尾未被完整覆盖的周期
	start, end := 0, len(result)
	for start < end && result[start].Time < covStart {
		start++
	}
	for start < end && result[end-1].Time+tfMSecs > covEnd {
		end--
	}
	return result[start:end]
}

/*
BucketRange
返回[startMS, endMS)内首个对齐周期的开始，和末个完整周期的结束。
不含完整周期时返回的first >= last。
Return the first aligned bucket start within [startMS, endMS) and the end of
the last fully contained bucket; first >= last when no complete bucket fits.
*/
func BucketRange(startMS, endMS, tfMSecs int64) (int64, int64) {
	first := AlignBucketMS(startMS, tfMSecs)
	if first < startMS {
		first += tfMSecs
	}
	last := AlignBucketMS(endMS, tfMSecs)
	return first, last
}

/*
RoundSecsTF
将秒数间隔归整到最接近的标准时间周期，用于从导入数据推断周期。
Round a seconds interval to the nearest standard timeframe, used when
inferring the timeframe of imported klines.
*/
func RoundSecsTF(secs int) string {
	if secs < 60 {
		if secs >= 45 {
			return "1m"
		} else if secs > 23 {
			return "30s"
		} else if secs > 17 {
			return "20s"
		} else if secs > 12 {
			return "15s"
		} else if secs > 7 {
			return "10s"
		} else if secs > 3 {
			return "5s"
		}
		return fmt.Sprintf("%ds", secs)
	}
	var tf = ""
	unitHours := float64(secs) / 3600
	unitHoursRd := int(math.Round(unitHours))
	if unitHoursRd >= 24*22 {
		mons := int(math.Round(float64(unitHoursRd) / 24 / 30))
		tf = fmt.Sprintf("%dM", mons)
	} else if unitHoursRd >= 24*5.5 {
		weeks := int(math.Round(float64(unitHoursRd) / 24 / 7))
		tf = fmt.Sprintf("%dw", weeks)
	} else if unitHoursRd >= 19 {
		days := int(math.Round(float64(unitHoursRd) / 24))
		tf = fmt.Sprintf("%dd", days)
	} else if unitHoursRd >= 4 {
		tf = fmt.Sprintf("%dh", int(math.Round(float64(unitHoursRd)/4))*4)
	} else if unitHoursRd >= 1 && unitHours >= 0.7 {
		tf = fmt.Sprintf("%dh", unitHoursRd)
	} else if unitHours >= 0.4 {
		tf = "30m"
	} else if unitHours >= 0.19 {
		tf = "15m"
	} else if unitHours >= 0.066 {
		minutes := max(1, int(math.Round(unitHours*12))) * 5
		tf = fmt.Sprintf("%dm", minutes)
	} else {
		minutes := max(1, int(math.Round(unitHours*60)))
		tf = fmt.Sprintf("%dm", minutes)
	}
	return tf
}
