package btime

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/banbox/banind/core"
)

var (
	UTCLocale, _ = time.LoadLocation("UTC")
)

func init() {
	time.Local = UTCLocale
}

/*
UTCTime
获取10位秒级浮点数
*/
func UTCTime() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

/*
UTCStamp
获取13位毫秒时间戳
*/
func UTCStamp() int64 {
	return time.Now().UnixMilli()
}

/*
TimeMS
获取当前13位毫秒时间戳
*/
func TimeMS() int64 {
	return UTCStamp()
}

func MSToTime(timeMSecs int64) *time.Time {
	seconds := timeMSecs / 1000
	nanos := (timeMSecs % 1000) * 1000000
	res := time.Unix(seconds, nanos).UTC()
	return &res
}

func Now() *time.Time {
	res := time.Now().In(UTCLocale)
	return &res
}

/*
AlignDayMS
将13位毫秒时间戳对齐到所在UTC自然日的开始
*/
func AlignDayMS(timeMS int64) int64 {
	return timeMS - timeMS%core.MSecsDay
}

/*
ParseTimeMS
将时间字符串转为13位毫秒时间戳
支持的形式：
2006 200601 20060102 200601021504 20060102150405
2006-01 2006/01/02 2006.01.02 2006-01-02 15:04[:05]
10位时间戳 13位时间戳
*/
func ParseTimeMS(timeStr string) (int64, error) {
	textLen := len(timeStr)
	digitNum := CountDigit(timeStr)
	if textLen == digitNum {
		switch textLen {
		case 4:
			return ParseTimeMSBy("2006", timeStr)
		case 6:
			return ParseTimeMSBy("200601", timeStr)
		case 8:
			return ParseTimeMSBy("20060102", timeStr)
		case 10:
			secs, err := strconv.ParseInt(timeStr, 10, 64)
			if err != nil {
				return 0, err
			}
			return secs * int64(1000), nil
		case 12:
			return ParseTimeMSBy("200601021504", timeStr)
		case 13:
			return strconv.ParseInt(timeStr, 10, 64)
		case 14:
			return ParseTimeMSBy("20060102150405", timeStr)
		}
		return 0, fmt.Errorf("unSupport date fmt: %s", timeStr)
	}
	// 含分隔符的形式，压缩为纯数字后解析
	compact := compactDigits(timeStr)
	if len(compact) != digitNum || digitNum == 0 {
		return 0, fmt.Errorf("unSupport date fmt: %s", timeStr)
	}
	switch digitNum {
	case 6:
		return ParseTimeMSBy("200601", compact)
	case 8:
		return ParseTimeMSBy("20060102", compact)
	case 12:
		return ParseTimeMSBy("200601021504", compact)
	case 14:
		return ParseTimeMSBy("20060102150405", compact)
	}
	return 0, fmt.Errorf("unSupport date fmt: %s", timeStr)
}

func ParseTimeMSBy(layout, timeStr string) (int64, error) {
	t, err := time.ParseInLocation(layout, timeStr, UTCLocale)
	if err != nil {
		return 0, fmt.Errorf("parse %s fail: %s", layout, timeStr)
	}
	return t.UnixMilli(), nil
}

func compactDigits(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, c := range text {
		if unicode.IsDigit(c) {
			b.WriteRune(c)
		} else if !strings.ContainsRune("-/. :", c) {
			return ""
		}
	}
	return b.String()
}

/*
ToDateStr
将时间戳转为时间字符串
*/
func ToDateStr(timestamp int64, format string) string {
	var t time.Time
	if timestamp > 1000000000000 {
		// 13位毫秒时间戳
		seconds := timestamp / 1000             // 秒
		nanoseconds := (timestamp % 1000) * 1e6 // 毫秒转为纳秒
		t = time.Unix(seconds, nanoseconds)
	} else {
		// 10位秒级时间戳
		t = time.Unix(timestamp, 0)
	}

	if format == "" {
		format = core.DefaultDateFmt
	}
	return t.Format(format)
}

func CountDigit(text string) int {
	count := 0
	for _, c := range text {
		if unicode.IsDigit(c) {
			count += 1
		}
	}
	return count
}
