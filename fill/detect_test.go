package fill

import (
	"reflect"
	"testing"

	"github.com/banbox/banind/core"
)

func TestDetectWindowWarmBoundary(t *testing.T) {
	// 20小时1m数据聚合为1h网格，stoch_14前13格属预热，从不上报缺失
	store := newMemStore(genKlines(baseMS, 20*60))
	rep, err := detectGaps(store, store.sid, "BTC/USDT", "1h", "stoch")
	if err != nil {
		t.Fatalf("detect fail: %v", err)
	}
	if len(rep.Grid) != 20 {
		t.Errorf("grid size expected: 20, received %v", len(rep.Grid))
	}
	wantWarm := baseMS + 13*core.MSecsHour
	if rep.WarmBoundary != wantWarm {
		t.Errorf("warm boundary expected: %v, received %v", wantWarm, rep.WarmBoundary)
	}
	if rep.ScanNum != 7 {
		t.Errorf("scan num expected: 7, received %v", rep.ScanNum)
	}
	if len(rep.Missing) != 7 {
		t.Fatalf("missing num expected: 7, received %v", len(rep.Missing))
	}
	if rep.Missing[0] != wantWarm {
		t.Errorf("first missing expected: %v, received %v", wantWarm, rep.Missing[0])
	}
	for _, ts := range rep.Missing {
		if ts < wantWarm {
			t.Errorf("pre-warm cell reported missing at %v", ts)
		}
	}
}

func TestDetectChainPerColumn(t *testing.T) {
	// 链式族每列按自身周期取种子样本数，预热边界各不相同
	store := newMemStore(genKlines(baseMS, 100))
	rep, err := detectGaps(store, store.sid, "BTC/USDT", "1m", "ema")
	if err != nil {
		t.Fatalf("detect fail: %v", err)
	}
	if rep.ScanNum != 297 {
		t.Errorf("scan num expected: 297, received %v", rep.ScanNum)
	}
	if rep.WarmBoundary != baseMS+60*core.MSecsMin {
		t.Errorf("warm boundary expected: %v, received %v", baseMS+60*core.MSecsMin, rep.WarmBoundary)
	}
	if len(rep.Missing) != 95 || rep.Missing[0] != baseMS+5*core.MSecsMin {
		t.Errorf("missing expected: 95 from %v, received %v from %v",
			baseMS+5*core.MSecsMin, len(rep.Missing), rep.Missing[0])
	}
	wants := map[string]int{"ema_5": 95, "ema_12": 88, "ema_26": 74, "ema_60": 40}
	for _, cg := range rep.Cols {
		wantNum, ok := wants[cg.Col.Name]
		if !ok {
			t.Errorf("unexpected col %v", cg.Col.Name)
			continue
		}
		if len(cg.Missing) != wantNum {
			t.Errorf("%v missing expected: %v, received %v", cg.Col.Name, wantNum, len(cg.Missing))
		}
		wantTS := baseMS + int64(cg.Col.Period)*core.MSecsMin
		if cg.WarmTS != wantTS {
			t.Errorf("%v warm ts expected: %v, received %v", cg.Col.Name, wantTS, cg.WarmTS)
		}
	}
	// 仅对短周期列要求有值的单元格填上后，只减少该列的缺失
	store.setCell("1m", baseMS+10*core.MSecsMin, "ema_5", 1.0)
	rep2, err := detectGaps(store, store.sid, "BTC/USDT", "1m", "ema")
	if err != nil {
		t.Fatalf("detect fail: %v", err)
	}
	if len(rep2.Missing) != 94 {
		t.Errorf("missing after fill expected: 94, received %v", len(rep2.Missing))
	}
	if rep2.ScanNum != 297 {
		t.Errorf("scan num should not change, received %v", rep2.ScanNum)
	}
}

func TestDetectWithSourceHole(t *testing.T) {
	// 源数据有洞时网格只含可用周期，预热边界按可用下标顺延
	raw := dropRange(genKlines(baseMS, 100), baseMS+30*core.MSecsMin, baseMS+40*core.MSecsMin)
	store := newMemStore(raw)
	rep, err := detectGaps(store, store.sid, "BTC/USDT", "1m", "ema")
	if err != nil {
		t.Fatalf("detect fail: %v", err)
	}
	if len(rep.Grid) != 90 {
		t.Errorf("grid size expected: 90, received %v", len(rep.Grid))
	}
	// 第61个可用周期在洞之后，即第70分钟
	wantWarm := baseMS + 70*core.MSecsMin
	if rep.WarmBoundary != wantWarm {
		t.Errorf("warm boundary expected: %v, received %v", wantWarm, rep.WarmBoundary)
	}
	rep2, err := detectGaps(store, store.sid, "BTC/USDT", "1m", "ema")
	if err != nil {
		t.Fatalf("detect fail: %v", err)
	}
	if !reflect.DeepEqual(rep, rep2) {
		t.Errorf("repeated detect should be identical")
	}
}

func TestDetectEmptyAndBadArgs(t *testing.T) {
	store := newMemStore(nil)
	rep, err := detectGaps(store, store.sid, "BTC/USDT", "1h", "sma")
	if err != nil {
		t.Fatalf("detect on empty fail: %v", err)
	}
	if len(rep.Missing) != 0 || rep.ScanNum != 0 || rep.WarmBoundary != 0 {
		t.Errorf("empty store expected zero report, received %+v", rep)
	}
	if _, err = detectGaps(store, store.sid, "BTC/USDT", "3m", "sma"); err == nil {
		t.Errorf("expected error for unsupported tf")
	} else if err.Code != core.ErrInvalidTF {
		t.Errorf("err code expected: %v, received %v", core.ErrInvalidTF, err.Code)
	}
	if _, err = detectGaps(store, store.sid, "BTC/USDT", "1h", "nope"); err == nil {
		t.Errorf("expected error for unknown family")
	} else if err.Code != core.ErrBadIndicator {
		t.Errorf("err code expected: %v, received %v", core.ErrBadIndicator, err.Code)
	}
}

func TestDetectShortHistory(t *testing.T) {
	// 可用历史不足预热需求时全部属预热，无缺失
	store := newMemStore(genKlines(baseMS, 10))
	rep, err := detectGaps(store, store.sid, "BTC/USDT", "1m", "atr")
	if err != nil {
		t.Fatalf("detect fail: %v", err)
	}
	if len(rep.Missing) != 0 || rep.ScanNum != 0 {
		t.Errorf("short history expected no required cells, received %v missing %v scanned",
			len(rep.Missing), rep.ScanNum)
	}
	if rep.WarmBoundary != 0 {
		t.Errorf("warm boundary expected: 0, received %v", rep.WarmBoundary)
	}
}
