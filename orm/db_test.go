package orm

import (
	"context"
	"os"
	"testing"

	"github.com/banbox/banexg"
	"github.com/banbox/banexg/log"
	"github.com/banbox/banind/config"
	"github.com/banbox/banind/core"
)

/*
TestDbRoundTrip 对真实postgres的读写往返。
需设置BanIndTestDbUrl指向测试专用库，未设置时跳过；库不存在会自动创建。
*/
func TestDbRoundTrip(t *testing.T) {
	dbUrl := os.Getenv("BanIndTestDbUrl")
	if dbUrl == "" {
		t.Skip("BanIndTestDbUrl not set, skip db round trip")
	}
	log.Setup("info", "")
	config.Exchange = "binance"
	config.Market = "spot"
	config.Database = &config.DatabaseConfig{Url: dbUrl, MaxPoolSize: 30, AutoCreate: true}
	if err := core.Setup(); err != nil {
		t.Fatalf("init cache fail: %v", err)
	}
	if err := Setup(); err != nil {
		t.Fatalf("connect db fail: %v", err)
	}
	exsList, err := EnsureCurSymbols([]string{"BTC/USDT"})
	if err != nil {
		t.Fatalf("ensure symbol fail: %v", err)
	}
	exs := exsList[0]
	if exs.ID == 0 {
		t.Fatalf("symbol id not assigned: %+v", exs)
	}
	sess, conn, err := Conn(nil)
	if err != nil {
		t.Fatalf("acquire conn fail: %v", err)
	}
	defer conn.Release()
	// 清除此标的的历史残留，保证断言只依赖本次写入
	for _, tbl := range []string{"kline_1m", "ind_1m", "khole", "kinfo"} {
		if err = sess.Exec("delete from "+tbl+" where sid=$1", exs.ID); err != nil {
			t.Fatalf("clean %s fail: %v", tbl, err)
		}
	}
	min1 := core.MSecsMin
	base := int64(1722816000000) // 2024-08-05 00:00:00 UTC
	mkBars := func(from, to int) []*banexg.Kline {
		res := make([]*banexg.Kline, 0, to-from)
		for i := from; i < to; i++ {
			price := 100 + float64(i)*0.5
			res = append(res, &banexg.Kline{
				Time: base + int64(i)*min1, Open: price, High: price + 1,
				Low: price - 1, Close: price + 0.25, Volume: 10,
			})
		}
		return res
	}
	// 写入两段不连续的1m数据，中间留30分钟缺口
	if _, err = sess.InsertKLinesConflict(exs.ID, mkBars(0, 60)); err != nil {
		t.Fatalf("insert front fail: %v", err)
	}
	if _, err = sess.InsertKLinesConflict(exs.ID, mkBars(90, 120)); err != nil {
		t.Fatalf("insert tail fail: %v", err)
	}
	// 全范围刷新区间后，缺口应被记录为khole
	if err = sess.UpdateKRange(exs.ID, base, base+120*min1); err != nil {
		t.Fatalf("update range fail: %v", err)
	}
	start, stop := sess.GetKlineRange(exs.ID, "1m")
	if start != base || stop != base+120*min1 {
		t.Errorf("expected range [%v, %v), received [%v, %v)", base, base+120*min1, start, stop)
	}
	holes, err_ := sess.GetKHoles(context.Background(), exs.ID, "1m")
	if err_ != nil {
		t.Fatalf("get holes fail: %v", err_)
	}
	if len(holes) != 1 || holes[0].Start != base+60*min1 || holes[0].Stop != base+90*min1 {
		t.Fatalf("expected one hole [%v, %v), received %v", base+60*min1, base+90*min1, holes)
	}
	// 补齐缺口后应能读回完整的120根
	if _, err = sess.InsertKLinesConflict(exs.ID, mkBars(60, 90)); err != nil {
		t.Fatalf("fill gap fail: %v", err)
	}
	klines, err := sess.QueryOHLCV(exs.ID, "1m", base, base+120*min1)
	if err != nil {
		t.Fatalf("query 1m fail: %v", err)
	}
	if len(klines) != 120 {
		t.Fatalf("expected 120 bars, received %v", len(klines))
	}
	if klines[0].Time != base || klines[119].Close != 100+119*0.5+0.25 {
		t.Errorf("bad bars: first time %v, last close %v", klines[0].Time, klines[119].Close)
	}
	firstMS, err := sess.GetFirstKlineMS(exs.ID)
	if err != nil || firstMS != base {
		t.Errorf("expected first %v, received %v (%v)", base, firstMS, err)
	}
	lastMS, err := sess.GetLastKlineMS(exs.ID)
	if err != nil || lastMS != base+119*min1 {
		t.Errorf("expected last %v, received %v (%v)", base+119*min1, lastMS, err)
	}
	// 1h从1m内存聚合，2个完整小时
	hours, err := sess.QueryOHLCV(exs.ID, "1h", base, base+120*min1)
	if err != nil {
		t.Fatalf("query 1h fail: %v", err)
	}
	if len(hours) != 2 {
		t.Fatalf("expected 2 hours, received %v", len(hours))
	}
	h0 := hours[0]
	if h0.Open != 100 || h0.High != 130.5 || h0.Low != 99 || h0.Close != 129.75 || h0.Volume != 600 {
		t.Errorf("bad hour agg: %+v", h0)
	}
	// 指标行的数值与NULL往返
	tbl, err := IndTable("1m")
	if err != nil {
		t.Fatalf("ind table fail: %v", err)
	}
	val := 123.5
	indRows := []*IndRow{
		{Time: base, Vals: []*float64{&val}},
		{Time: base + min1, Vals: []*float64{nil}},
	}
	if err = sess.UpsertIndRows(tbl, exs.ID, []string{"sma_20"}, indRows); err != nil {
		t.Fatalf("upsert ind fail: %v", err)
	}
	got, err := sess.GetIndRows(tbl, exs.ID, []string{"sma_20"}, base, base+2*min1)
	if err != nil {
		t.Fatalf("get ind fail: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 ind rows, received %v", len(got))
	}
	if got[0].Vals[0] == nil || *got[0].Vals[0] != 123.5 {
		t.Errorf("expected 123.5, received %v", got[0].Vals[0])
	}
	if got[1].Vals[0] != nil {
		t.Errorf("expected NULL cell, received %v", *got[1].Vals[0])
	}
	times, err := sess.GetNonNullTimes(tbl, "sma_20", exs.ID, base, base+2*min1)
	if err != nil || len(times) != 1 || times[0] != base {
		t.Errorf("expected non null times [%v], received %v (%v)", base, times, err)
	}
}
