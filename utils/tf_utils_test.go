package utils

import (
	"testing"

	"github.com/banbox/banexg"
	"github.com/banbox/banind/btime"
)

func mustTimeMS(t *testing.T, timeStr string) int64 {
	t.Helper()
	ms, err := btime.ParseTimeMS(timeStr)
	if err != nil {
		t.Fatalf("parse %s fail: %v", timeStr, err)
	}
	return ms
}

func TestAlignBucketMS(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		tf    string
		want  string
	}{
		{"2023-08-10 10:00:00", "1h", "2023-08-10 10:00:00"},
		{"2023-08-10 10:59:00", "1h", "2023-08-10 10:00:00"},
		{"2023-08-10 11:00:00", "1h", "2023-08-10 11:00:00"},
		{"2023-08-10 10:07:33", "15m", "2023-08-10 10:00:00"},
		{"2023-08-10 10:22:10", "15m", "2023-08-10 10:15:00"},
		{"2023-08-10 13:47:00", "4h", "2023-08-10 12:00:00"},
		{"2023-08-10 23:59:59", "1d", "2023-08-10 00:00:00"},
		{"2023-08-10 00:00:00", "1d", "2023-08-10 00:00:00"},
	}
	for _, c := range cases {
		got := AlignBucketMS(mustTimeMS(t, c.input), TFToMSecs(c.tf))
		want := mustTimeMS(t, c.want)
		if got != want {
			t.Errorf("AlignBucketMS(%s, %s) expected: %v, received %v", c.input, c.tf, want, got)
		}
	}
}

// 生成从startMS开始间隔stepMS的num根K线，价格按索引递增
func genKlines(startMS, stepMS int64, num int) []*banexg.Kline {
	arr := make([]*banexg.Kline, 0, num)
	for i := 0; i < num; i++ {
		base := 100 + float64(i)
		arr = append(arr, &banexg.Kline{
			Time:   startMS + int64(i)*stepMS,
			Open:   base,
			High:   base + 0.5,
			Low:    base - 0.5,
			Close:  base + 0.25,
			Volume: 2,
		})
	}
	return arr
}

func TestAggKlines(t *testing.T) {
	t.Parallel()
	tfMin := TFToMSecs("1m")
	tfHour := TFToMSecs("1h")
	start := mustTimeMS(t, "2023-08-10 10:00:00")

	// 整点开始的60根1m应聚合为1根1h
	bars := genKlines(start, tfMin, 60)
	res := AggKlines(bars, tfMin, tfHour)
	if len(res) != 1 {
		t.Fatalf("expected 1 bucket, received %v", len(res))
	}
	big := res[0]
	if big.Time != start {
		t.Errorf("bucket time expected: %v, received %v", start, big.Time)
	}
	if big.Open != 100 {
		t.Errorf("bucket open expected: %v, received %v", 100, big.Open)
	}
	if big.High != 159.5 {
		t.Errorf("bucket high expected: %v, received %v", 159.5, big.High)
	}
	if big.Low != 99.5 {
		t.Errorf("bucket low expected: %v, received %v", 99.5, big.Low)
	}
	if big.Close != 159.25 {
		t.Errorf("bucket close expected: %v, received %v", 159.25, big.Close)
	}
	if big.Volume != 120 {
		t.Errorf("bucket volume expected: %v, received %v", 120, big.Volume)
	}

	// 多出的1根属于下一小时，末尾不完整的周期应丢弃
	bars = genKlines(start, tfMin, 61)
	res = AggKlines(bars, tfMin, tfHour)
	if len(res) != 1 {
		t.Errorf("trailing partial bucket should drop, received %v buckets", len(res))
	}

	// 从10:30开始跨至11:59，首个不完整的周期应丢弃
	bars = genKlines(start+30*tfMin, tfMin, 90)
	res = AggKlines(bars, tfMin, tfHour)
	if len(res) != 1 {
		t.Fatalf("leading partial bucket should drop, received %v buckets", len(res))
	}
	if res[0].Time != start+tfHour {
		t.Errorf("bucket time expected: %v, received %v", start+tfHour, res[0].Time)
	}

	// 同周期聚合应原样返回
	bars = genKlines(start, tfMin, 10)
	res = AggKlines(bars, tfMin, tfMin)
	if len(res) != 10 {
		t.Errorf("identity agg expected: %v, received %v", 10, len(res))
	}
}

func TestAggKlinesRange(t *testing.T) {
	t.Parallel()
	tfMin := TFToMSecs("1m")
	tfHour := TFToMSecs("1h")
	start := mustTimeMS(t, "2023-08-10 10:00:00")

	// 首个周期的前10分钟缺失，按样本推算会误裁剪，按显式覆盖范围应保留
	bars := genKlines(start+10*tfMin, tfMin, 110)
	res := AggKlines(bars, tfMin, tfHour)
	if len(res) != 1 {
		t.Errorf("sample based trim expected: %v bucket, received %v", 1, len(res))
	}
	res = AggKlinesRange(bars, tfMin, tfHour, start, start+2*tfHour)
	if len(res) != 2 {
		t.Fatalf("range based trim expected: %v buckets, received %v", 2, len(res))
	}
	if res[0].Time != start {
		t.Errorf("first bucket expected: %v, received %v", start, res[0].Time)
	}
	if res[0].Open != 100 || res[0].Volume != 100 {
		t.Errorf("first bucket should keep available samples, received %v", res[0])
	}

	// 覆盖范围不含末尾周期时仍应裁剪
	res = AggKlinesRange(bars, tfMin, tfHour, start, start+tfHour)
	if len(res) != 1 {
		t.Errorf("out of range tail should drop, received %v buckets", len(res))
	}
}

func TestBucketRange(t *testing.T) {
	t.Parallel()
	tfHour := TFToMSecs("1h")
	start := mustTimeMS(t, "2023-08-10 10:37:00")
	end := mustTimeMS(t, "2023-08-10 14:21:00")
	first, last := BucketRange(start, end, tfHour)
	if first != mustTimeMS(t, "2023-08-10 11:00:00") {
		t.Errorf("first expected: %v, received %v", mustTimeMS(t, "2023-08-10 11:00:00"), first)
	}
	if last != mustTimeMS(t, "2023-08-10 14:00:00") {
		t.Errorf("last expected: %v, received %v", mustTimeMS(t, "2023-08-10 14:00:00"), last)
	}
	// 对齐输入时首尾都落在边界上
	first, last = BucketRange(mustTimeMS(t, "2023-08-10 10:00:00"), mustTimeMS(t, "2023-08-10 14:00:00"), tfHour)
	if first != mustTimeMS(t, "2023-08-10 10:00:00") || last != mustTimeMS(t, "2023-08-10 14:00:00") {
		t.Errorf("aligned range expected unchanged, received %v %v", first, last)
	}
}

func TestAggKlinesUnsorted(t *testing.T) {
	t.Parallel()
	tfMin := TFToMSecs("1m")
	tfHour := TFToMSecs("1h")
	start := mustTimeMS(t, "2023-08-10 10:00:00")
	bars := genKlines(start, tfMin, 60)
	// 打乱顺序后聚合结果应与有序输入一致
	shuffled := make([]*banexg.Kline, len(bars))
	for i, k := range bars {
		shuffled[(i*7+13)%len(bars)] = k
	}
	resA := AggKlines(bars, tfMin, tfHour)
	resB := AggKlines(shuffled, tfMin, tfHour)
	if len(resA) != 1 || len(resB) != 1 {
		t.Fatalf("expected 1 bucket, received %v and %v", len(resA), len(resB))
	}
	a, b := resA[0], resB[0]
	if a.Open != b.Open || a.High != b.High || a.Low != b.Low || a.Close != b.Close || a.Volume != b.Volume {
		t.Errorf("aggregation of shuffled input differs: %v vs %v", a, b)
	}
}
