package fill

import (
	"slices"

	"github.com/banbox/banexg/errs"
	"github.com/banbox/banind/core"
	"github.com/banbox/banind/ind"
	"github.com/banbox/banind/orm"
	"github.com/banbox/banind/utils"
)

/*
Detect 扫描指定(交易对,周期,指标族)的衍生数据缺口。
只读，无副作用；两次调用之间没有写入时结果完全一致。
*/
func Detect(sess *orm.Queries, symbol, timeFrame, family string) (*GapReport, *errs.Error) {
	exs, err := orm.GetExSymbol(symbol)
	if err != nil {
		return nil, err
	}
	return detectGaps(NewDbStore(sess), exs.ID, symbol, timeFrame, family)
}

/*
detectGaps 缺口检测的核心逻辑。

可用网格取自1m数据在目标周期上覆盖到的全部周期开始时间戳，只保留被
总体覆盖范围完整包含的周期。预热边界在网格下标空间计算：窗口族以
max(periods)统一取首个要求有值的下标，链式族每列各取period个种子样本
之后的下标；原始数据无缺口时与按时间步长推算完全一致。边界及之后的
单元格缺值即为缺口，之前的NULL属于自然预热，从不上报。
*/
func detectGaps(store IStore, sid int32, symbol, timeFrame, family string) (*GapReport, *errs.Error) {
	fam := ind.GetFamily(family)
	if fam == nil {
		return nil, errs.NewMsg(core.ErrBadIndicator, "unknown indicator family: %s", family)
	}
	if !slices.Contains(core.AllTFs, timeFrame) {
		return nil, errs.NewMsg(core.ErrInvalidTF, "unsupported tf: %s", timeFrame)
	}
	res := &GapReport{Symbol: symbol, Sid: sid, TimeFrame: timeFrame, Family: family}
	tfMSecs := utils.TFToMSecs(timeFrame)
	firstMS, err := store.FirstMS(sid)
	if err != nil {
		return nil, err
	}
	if firstMS == 0 {
		// 无任何原始数据，没有要求有值的单元格
		return res, nil
	}
	lastMS, err := store.LastMS(sid)
	if err != nil {
		return nil, err
	}
	bStart, bEnd := utils.BucketRange(firstMS, lastMS+core.MSecsMin, tfMSecs)
	if bStart >= bEnd {
		return res, nil
	}
	grid, err := store.Buckets(sid, tfMSecs, bStart, bEnd)
	if err != nil {
		return nil, err
	}
	if len(grid) == 0 {
		return res, nil
	}
	res.Grid = grid
	maxWarm := famWarmIdx(fam)
	if maxWarm < len(grid) {
		res.WarmBoundary = grid[maxWarm]
	}
	var union []int64
	for _, col := range fam.Cols() {
		warmIdx := maxWarm
		if fam.Kind == ind.KindChain {
			warmIdx = fam.Warm(col.Period)
		}
		cg := &ColGap{Col: col}
		res.Cols = append(res.Cols, cg)
		if warmIdx >= len(grid) {
			// 可用历史不足，该列所有单元格均属预热
			continue
		}
		cg.WarmTS = grid[warmIdx]
		have, err := store.NonNullTimes(sid, timeFrame, col.Name, cg.WarmTS, bEnd)
		if err != nil {
			return nil, err
		}
		cg.Missing = diffSorted(grid[warmIdx:], have)
		res.ScanNum += int64(len(grid) - warmIdx)
		union = append(union, cg.Missing...)
	}
	slices.Sort(union)
	res.Missing = slices.Compact(union)
	return res, nil
}

// famWarmIdx 族内全部列都要求有值的首个网格下标
func famWarmIdx(fam *ind.IndDef) int {
	res := 0
	for _, p := range fam.Periods {
		if w := fam.Warm(p); w > res {
			res = w
		}
	}
	return res
}

// diffSorted 返回在want中但不在have中的元素，两个输入均需升序
func diffSorted(want, have []int64) []int64 {
	var res []int64
	j := 0
	for _, v := range want {
		for j < len(have) && have[j] < v {
			j++
		}
		if j < len(have) && have[j] == v {
			j++
			continue
		}
		res = append(res, v)
	}
	return res
}
