package fill

import (
	"math"
	"reflect"
	"testing"

	"github.com/banbox/banind/core"
	"github.com/banbox/banind/ind"
	"github.com/banbox/banind/utils"
)

func TestRunInitialWindow(t *testing.T) {
	// 20小时数据首次补算stoch/1h：预热区留NULL，首个要求有值的单元格
	// 等于按定义直接计算的闭式值
	store := newMemStore(genKlines(baseMS, 20*60))
	var stages []string
	res, err := runStore(store, store.sid, &RunArgs{
		Symbol: "BTC/USDT", TimeFrame: "1h", Family: "stoch",
		Prg: func(stage string, rate float64) {
			if len(stages) == 0 || stages[len(stages)-1] != stage {
				stages = append(stages, stage)
			}
		},
	})
	if err != nil {
		t.Fatalf("run fail: %v", err)
	}
	if res.State != StateDone || res.ID == "" {
		t.Errorf("state expected: %v, received %v, id %v", StateDone, res.State, res.ID)
	}
	if res.GapNum != 7 || res.RowsWritten != 7 || res.GapsRemaining != 0 {
		t.Errorf("counts expected: 7/7/0, received %v/%v/%v", res.GapNum, res.RowsWritten, res.GapsRemaining)
	}
	if store.batchNum != 1 {
		t.Errorf("batch num expected: 1, received %v", store.batchNum)
	}
	wantStages := []string{"plan", "calc", "write", "verify"}
	if !reflect.DeepEqual(stages, wantStages) {
		t.Errorf("stages expected: %v, received %v", wantStages, stages)
	}
	for i := 0; i < 13; i++ {
		if _, ok := store.cellVal("1h", baseMS+int64(i)*core.MSecsHour, "stoch_14"); ok {
			t.Errorf("warm-up cell at hour %v should stay null", i)
		}
	}
	bars := utils.AggKlinesRange(store.raw, core.MSecsMin, core.MSecsHour, baseMS, baseMS+20*core.MSecsHour)
	hi, lo := bars[0].High, bars[0].Low
	for i := 1; i <= 13; i++ {
		hi = math.Max(hi, bars[i].High)
		lo = math.Min(lo, bars[i].Low)
	}
	want := (bars[13].Close - lo) / (hi - lo) * 100
	got, ok := store.cellVal("1h", baseMS+13*core.MSecsHour, "stoch_14")
	if !ok || math.Abs(got-want) > 1e-9 {
		t.Errorf("first defined cell expected: %v, received %v (%v)", want, got, ok)
	}
}

func TestRunWindowFamilyBoundary(t *testing.T) {
	// 窗口族整族从max(periods)的预热边界起要求有值，短周期列在边界前同样留NULL
	store := newMemStore(genKlines(baseMS, 130))
	res, err := runStore(store, store.sid, &RunArgs{Symbol: "BTC/USDT", TimeFrame: "1m", Family: "sma"})
	if err != nil {
		t.Fatalf("run fail: %v", err)
	}
	if res.RowsWritten != 71 {
		t.Errorf("rows expected: 71, received %v", res.RowsWritten)
	}
	for i := 4; i < 59; i++ {
		if _, ok := store.cellVal("1m", baseMS+int64(i)*core.MSecsMin, "sma_5"); ok {
			t.Errorf("sma_5 before family boundary should stay null, idx %v", i)
		}
	}
	bound := baseMS + 59*core.MSecsMin
	var sum60, sum5 float64
	for i := 0; i < 60; i++ {
		sum60 += store.raw[i].Close
		if i >= 55 {
			sum5 += store.raw[i].Close
		}
	}
	got60, ok60 := store.cellVal("1m", bound, "sma_60")
	got5, ok5 := store.cellVal("1m", bound, "sma_5")
	if !ok60 || math.Abs(got60-sum60/60) > 1e-9 {
		t.Errorf("sma_60 expected: %v, received %v (%v)", sum60/60, got60, ok60)
	}
	if !ok5 || math.Abs(got5-sum5/5) > 1e-9 {
		t.Errorf("sma_5 expected: %v, received %v (%v)", sum5/5, got5, ok5)
	}
}

func TestRunIdempotent(t *testing.T) {
	// 已补齐后重跑不产生任何写入
	store := newMemStore(genKlines(baseMS, 3*1440))
	args := &RunArgs{Symbol: "BTC/USDT", TimeFrame: "15m", Family: "vwma"}
	res, err := runStore(store, store.sid, args)
	if err != nil {
		t.Fatalf("run fail: %v", err)
	}
	if res.RowsWritten != 269 || store.batchNum != 3 {
		t.Errorf("first run expected: 269 rows in 3 batches, received %v in %v", res.RowsWritten, store.batchNum)
	}
	snap := store.snapshot("15m")
	res2, err := runStore(store, store.sid, args)
	if err != nil {
		t.Fatalf("rerun fail: %v", err)
	}
	if res2.State != StateDone || res2.GapNum != 0 || res2.RowsWritten != 0 {
		t.Errorf("rerun expected no gaps and no writes, received %+v", res2)
	}
	if store.batchNum != 3 {
		t.Errorf("rerun should not touch storage, batch num %v", store.batchNum)
	}
	if !reflect.DeepEqual(snap, store.snapshot("15m")) {
		t.Errorf("stored values changed on rerun")
	}
}

func TestRunChainConvergence(t *testing.T) {
	// 同样输入各自全量递推，结果完全一致
	raw := genKlines(baseMS, 400)
	a, b := newMemStore(raw), newMemStore(raw)
	args := &RunArgs{Symbol: "BTC/USDT", TimeFrame: "1m", Family: "ema"}
	if _, err := runStore(a, a.sid, args); err != nil {
		t.Fatalf("run fail: %v", err)
	}
	if _, err := runStore(b, b.sid, args); err != nil {
		t.Fatalf("run fail: %v", err)
	}
	if !reflect.DeepEqual(a.snapshot("1m"), b.snapshot("1m")) {
		t.Errorf("independent chain recomputes diverged")
	}
	res, err := runStore(a, a.sid, args)
	if err != nil || res.GapNum != 0 || res.RowsWritten != 0 {
		t.Errorf("rerun expected clean no-op, received %+v %v", res, err)
	}
}

func TestRunWindowGapIsolation(t *testing.T) {
	// 删除单个窗口单元格后补算只写该单元格，其余保持不变
	store := newMemStore(genKlines(baseMS, 120*60))
	args := &RunArgs{Symbol: "BTC/USDT", TimeFrame: "1h", Family: "stoch"}
	if _, err := runStore(store, store.sid, args); err != nil {
		t.Fatalf("run fail: %v", err)
	}
	snap := store.snapshot("1h")
	batches := store.batchNum
	target := baseMS + 60*core.MSecsHour
	store.delCell("1h", target, "stoch_14")
	res, err := runStore(store, store.sid, args)
	if err != nil {
		t.Fatalf("refill fail: %v", err)
	}
	if res.GapNum != 1 || res.RowsWritten != 1 {
		t.Errorf("counts expected: 1/1, received %v/%v", res.GapNum, res.RowsWritten)
	}
	if store.batchNum != batches+1 {
		t.Errorf("refill expected one extra batch, received %v", store.batchNum-batches)
	}
	if !reflect.DeepEqual(snap, store.snapshot("1h")) {
		t.Errorf("refilled value differs from original computation")
	}
}

func TestRunChainGapFullRecompute(t *testing.T) {
	// 链式缺口触发全量重算：已存一致的单元格跳过写入，缺失单元格补回原值
	store := newMemStore(genKlines(baseMS, 300))
	args := &RunArgs{Symbol: "BTC/USDT", TimeFrame: "1m", Family: "ema"}
	if _, err := runStore(store, store.sid, args); err != nil {
		t.Fatalf("run fail: %v", err)
	}
	snap := store.snapshot("1m")
	store.delCell("1m", baseMS+100*core.MSecsMin, "ema_12")
	store.delCell("1m", baseMS+150*core.MSecsMin, "ema_26")
	res, err := runStore(store, store.sid, args)
	if err != nil {
		t.Fatalf("refill fail: %v", err)
	}
	if res.GapNum != 2 || res.RowsWritten != 2 || res.BadNum != 0 {
		t.Errorf("counts expected: 2/2/0, received %v/%v/%v", res.GapNum, res.RowsWritten, res.BadNum)
	}
	// 初次共写295行即1097个非空单元格，删2个后复核通过1095个
	if res.SkipNum != 1095 {
		t.Errorf("skip num expected: 1095, received %v", res.SkipNum)
	}
	if !reflect.DeepEqual(snap, store.snapshot("1m")) {
		t.Errorf("full recompute differs from original values")
	}
}

func TestRunCrashResume(t *testing.T) {
	// 第3个日批次写入失败，已提交批次为时间连续前缀；重跑补齐后与未中断结果一致
	raw := genKlines(baseMS, 5*1440)
	a, b := newMemStore(raw), newMemStore(raw)
	var days []int64
	var rows []int
	argsB := &RunArgs{
		Symbol: "BTC/USDT", TimeFrame: "1m", Family: "willr",
		OnBatch: func(dayMS int64, num int) {
			days = append(days, dayMS)
			rows = append(rows, num)
		},
	}
	resB, err := runStore(b, b.sid, argsB)
	if err != nil {
		t.Fatalf("run fail: %v", err)
	}
	if resB.RowsWritten != 7187 {
		t.Errorf("rows expected: 7187, received %v", resB.RowsWritten)
	}
	wantRows := []int{1427, 1440, 1440, 1440, 1440}
	if !reflect.DeepEqual(rows, wantRows) {
		t.Errorf("batch rows expected: %v, received %v", wantRows, rows)
	}
	for i, d := range days {
		if d != baseMS+int64(i)*core.MSecsDay {
			t.Errorf("batch days not ascending by day: %v", days)
			break
		}
	}
	a.failAt = 3
	args := &RunArgs{Symbol: "BTC/USDT", TimeFrame: "1m", Family: "willr"}
	resA, err := runStore(a, a.sid, args)
	if err == nil {
		t.Fatalf("expected write failure")
	}
	if resA.State != StateFailed || resA.RowsWritten != 2867 {
		t.Errorf("partial run expected: failed/2867, received %v/%v", resA.State, resA.RowsWritten)
	}
	nnt, _ := a.NonNullTimes(a.sid, "1m", "willr_14", 0, math.MaxInt64)
	if len(nnt) != 2867 {
		t.Errorf("committed cells expected: 2867, received %v", len(nnt))
	}
	if last := nnt[len(nnt)-1]; last >= baseMS+2*core.MSecsDay {
		t.Errorf("committed cells should end before day 2, received %v", last)
	}
	a.failAt = 0
	res2, err := runStore(a, a.sid, args)
	if err != nil {
		t.Fatalf("resume fail: %v", err)
	}
	if res2.State != StateDone || res2.RowsWritten != 4320 || res2.GapsRemaining != 0 {
		t.Errorf("resume expected: done/4320/0, received %v/%v/%v",
			res2.State, res2.RowsWritten, res2.GapsRemaining)
	}
	if !reflect.DeepEqual(a.snapshot("1m"), b.snapshot("1m")) {
		t.Errorf("resumed result differs from uninterrupted run")
	}
}

func TestRunForceReload(t *testing.T) {
	store := newMemStore(genKlines(baseMS, 48*60))
	twin := newMemStore(store.raw)
	args := &RunArgs{Symbol: "BTC/USDT", TimeFrame: "1h", Family: "stoch"}
	if _, err := runStore(store, store.sid, args); err != nil {
		t.Fatalf("run fail: %v", err)
	}
	if _, err := runStore(twin, twin.sid, args); err != nil {
		t.Fatalf("run fail: %v", err)
	}
	// 篡改一个已有值，并在预热区塞入残留值
	badTS := baseMS + 20*core.MSecsHour
	store.setCell("1h", badTS, "stoch_14", -999)
	store.setCell("1h", baseMS+2*core.MSecsHour, "stoch_14", 123)
	// 常规补算只认NULL为缺口，篡改值不会被发现
	res, err := runStore(store, store.sid, args)
	if err != nil || res.RowsWritten != 0 {
		t.Errorf("normal rerun expected no writes, received %+v %v", res, err)
	}
	if got, _ := store.cellVal("1h", badTS, "stoch_14"); got != -999 {
		t.Errorf("tampered value should survive normal rerun, received %v", got)
	}
	// 强制重载覆盖全部单元格并清掉预热区残留
	res, err = runStore(store, store.sid, &RunArgs{
		Symbol: "BTC/USDT", TimeFrame: "1h", Family: "stoch", ForceReload: true,
	})
	if err != nil {
		t.Fatalf("force run fail: %v", err)
	}
	if res.State != StateDone || res.RowsWritten != 48 {
		t.Errorf("force run expected: done/48, received %v/%v", res.State, res.RowsWritten)
	}
	want, _ := twin.cellVal("1h", badTS, "stoch_14")
	got, ok := store.cellVal("1h", badTS, "stoch_14")
	if !ok || math.Abs(got-want) > 1e-9 {
		t.Errorf("tampered cell expected: %v, received %v (%v)", want, got, ok)
	}
	if _, ok = store.cellVal("1h", baseMS+2*core.MSecsHour, "stoch_14"); ok {
		t.Errorf("warm-up residue should be cleared by force reload")
	}
	if !reflect.DeepEqual(store.snapshot("1h"), twin.snapshot("1h")) {
		t.Errorf("force reload differs from clean computation")
	}
}

func TestRunChainVerifyFailState(t *testing.T) {
	// 全量重算发现静默损坏：任务失败，存储保持原样
	store := newMemStore(genKlines(baseMS, 200))
	args := &RunArgs{Symbol: "BTC/USDT", TimeFrame: "1m", Family: "ema"}
	if _, err := runStore(store, store.sid, args); err != nil {
		t.Fatalf("run fail: %v", err)
	}
	badTS := baseMS + 100*core.MSecsMin
	store.setCell("1m", badTS, "ema_12", 12345)
	store.delCell("1m", baseMS+120*core.MSecsMin, "ema_5")
	res, err := runStore(store, store.sid, args)
	if err == nil || err.Code != core.ErrVerifyFail {
		t.Fatalf("err code expected: %v, received %v", core.ErrVerifyFail, err)
	}
	if res.State != StateFailed || res.BadNum != 1 || res.RowsWritten != 0 {
		t.Errorf("fail result expected: failed/1/0, received %v/%v/%v",
			res.State, res.BadNum, res.RowsWritten)
	}
	if got, _ := store.cellVal("1m", badTS, "ema_12"); got != 12345 {
		t.Errorf("storage should stay untouched on verify failure, received %v", got)
	}
	if _, ok := store.cellVal("1m", baseMS+120*core.MSecsMin, "ema_5"); ok {
		t.Errorf("deleted cell should stay missing on verify failure")
	}
}

func TestRunWithSourceHole(t *testing.T) {
	// 源数据有2小时洞：洞内周期不算缺口，洞后单元格取值与全量计算一致
	raw := dropRange(genKlines(baseMS, 60*60), baseMS+20*core.MSecsHour, baseMS+22*core.MSecsHour)
	store := newMemStore(raw)
	res, err := runStore(store, store.sid, &RunArgs{Symbol: "BTC/USDT", TimeFrame: "1h", Family: "stoch"})
	if err != nil {
		t.Fatalf("run fail: %v", err)
	}
	if res.State != StateDone || res.RowsWritten != 45 || res.GapsRemaining != 0 {
		t.Errorf("counts expected: done/45/0, received %v/%v/%v",
			res.State, res.RowsWritten, res.GapsRemaining)
	}
	for h := 20; h < 22; h++ {
		if _, ok := store.cellVal("1h", baseMS+int64(h)*core.MSecsHour, "stoch_14"); ok {
			t.Errorf("cell inside source hole should not exist, hour %v", h)
		}
	}
	full := utils.AggKlinesRange(raw, core.MSecsMin, core.MSecsHour, baseMS, baseMS+60*core.MSecsHour)
	vals := ind.GetFamily("stoch").Calc(full, 14)
	got, ok := store.cellVal("1h", baseMS+22*core.MSecsHour, "stoch_14")
	if !ok || math.Abs(got-vals[20]) > 1e-9 {
		t.Errorf("post-hole cell expected: %v, received %v (%v)", vals[20], got, ok)
	}
}

func TestRunEmptyStore(t *testing.T) {
	store := newMemStore(nil)
	res, err := runStore(store, store.sid, &RunArgs{Symbol: "BTC/USDT", TimeFrame: "1h", Family: "sma"})
	if err != nil {
		t.Fatalf("run fail: %v", err)
	}
	if res.State != StateDone || res.ScanNum != 0 || res.RowsWritten != 0 {
		t.Errorf("empty run expected clean no-op, received %+v", res)
	}
	res, err = runStore(store, store.sid, &RunArgs{
		Symbol: "BTC/USDT", TimeFrame: "1h", Family: "sma", ForceReload: true,
	})
	if err != nil || res.State != StateDone || res.RowsWritten != 0 {
		t.Errorf("forced empty run expected clean no-op, received %+v %v", res, err)
	}
}
