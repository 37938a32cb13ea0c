package fill

import (
	"fmt"
	"math"
	"sort"

	"github.com/banbox/banexg"
	"github.com/banbox/banexg/errs"
	"github.com/banbox/banexg/log"
	"github.com/banbox/banind/core"
	"github.com/banbox/banind/ind"
	"github.com/banbox/banind/orm"
	"github.com/banbox/banind/utils"
	"go.uber.org/zap"
)

// ExecResult 单个重算任务的输出，Rows只含任务目标时间戳，升序
type ExecResult struct {
	Cols    []string
	Rows    []*orm.IndRow
	SkipNum int64
	BadNum  int64
}

// 全量重算复核时单次读取已存行的时间跨度
const verifyChunkMS = 30 * core.MSecsDay

// 聚合源数组超过此行数时不进缓存，避免占用过多内存
const maxCacheBars = 600000

/*
Execute 执行单个重算任务。

加载所需范围的1m源数据，粗周期按固定纪元网格聚合，对族内每个周期参数
执行一次纯计算，再把结果裁剪到目标时间戳。全量链式任务在裁剪前把已存
单元格与重算值逐个比对，误差超过容差视为静默损坏，整个任务失败。
计算过程无任何写入，失败后可安全地从任务输入重做。
*/
func Execute(store IStore, task *RecomputeTask, prg func(rate float64)) (*ExecResult, *errs.Error) {
	fam := ind.GetFamily(task.Family)
	if fam == nil {
		return nil, errs.NewMsg(core.ErrBadIndicator, "unknown indicator family: %s", task.Family)
	}
	if prg == nil {
		prg = func(rate float64) {}
	}
	tfMSecs := utils.TFToMSecs(task.TimeFrame)
	firstMS, err := store.FirstMS(task.Sid)
	if err != nil {
		return nil, err
	}
	if firstMS == 0 {
		return nil, errs.NewMsg(core.ErrInsufficientHistory, "sid %v has no raw klines", task.Sid)
	}
	lastMS, err := store.LastMS(task.Sid)
	if err != nil {
		return nil, err
	}
	bStart, bEnd := utils.BucketRange(firstMS, lastMS+core.MSecsMin, tfMSecs)
	if task.SourceStart < bStart {
		return nil, errs.NewMsg(core.ErrInsufficientHistory,
			"required source range starts at %v, before first available bucket %v",
			btimeStr(task.SourceStart), btimeStr(bStart))
	}
	if task.SourceEnd > bEnd {
		return nil, errs.NewMsg(core.ErrIncompleteRange,
			"required source range ends at %v, beyond available coverage %v",
			btimeStr(task.SourceEnd), btimeStr(bEnd))
	}
	bars, err := loadSource(store, task, fam, tfMSecs, bStart)
	if err != nil {
		return nil, err
	}
	prg(0.2)
	if len(bars) == 0 {
		if len(task.Targets) == 0 {
			return &ExecResult{}, nil
		}
		return nil, errs.NewMsg(core.ErrIncompleteRange, "no source klines in [%v, %v)",
			btimeStr(task.SourceStart), btimeStr(task.SourceEnd))
	}
	cols := fam.Cols()
	names := make([]string, len(cols))
	vals := make([][]float64, len(cols))
	for i, col := range cols {
		names[i] = col.Name
		vals[i] = fam.Calc(bars, col.Period)
		prg(0.2 + 0.5*float64(i+1)/float64(len(cols)))
	}
	idxMap := make(map[int64]int, len(bars))
	for i, bar := range bars {
		idxMap[bar.Time] = i
	}
	res := &ExecResult{Cols: names}
	if task.FullHistory && !task.Force {
		res.SkipNum, res.BadNum, err = verifyChain(store, task, names, vals, idxMap)
		if err != nil {
			return res, err
		}
	}
	prg(0.9)
	res.Rows = make([]*orm.IndRow, 0, len(task.Targets))
	for _, ts := range task.Targets {
		bi, ok := idxMap[ts]
		if !ok {
			return nil, errs.NewMsg(core.ErrIncompleteRange, "no source data for bucket %v", btimeStr(ts))
		}
		row := &orm.IndRow{Time: ts, Vals: make([]*float64, len(cols))}
		for ci := range cols {
			v := vals[ci][bi]
			if !math.IsNaN(v) {
				row.Vals[ci] = &v
			}
		}
		res.Rows = append(res.Rows, row)
	}
	prg(1)
	return res, nil
}

/*
loadSource 读取并聚合任务所需的源K线。

窗口任务按回看填充的时间范围取数；源数据存在缺口时该范围内的可用行数
可能不足，此时成倍向前扩展读取范围，直到首个目标在数组内的下标不小于
所需回看行数，或触达历史起点。链式任务的范围已是全量，无需扩展。
首尾周期按请求范围裁剪而非按样本覆盖裁剪，周期开头缺1m样本时仍照常
输出，与缺口检测的可用网格保持一致。
*/
func loadSource(store IStore, task *RecomputeTask, fam *ind.IndDef, tfMSecs, bStart int64) ([]*banexg.Kline, *errs.Error) {
	cacheKey := fmt.Sprintf("aggsrc:%d:%s:%d:%d", task.Sid, task.TimeFrame, task.SourceStart, task.SourceEnd)
	if bars := core.GetCacheVal[[]*banexg.Kline](cacheKey, nil); bars != nil {
		return bars, nil
	}
	maxWarm := famWarmIdx(fam)
	srcStart := task.SourceStart
	var bars []*banexg.Kline
	for {
		raw, err := store.QueryRaw(task.Sid, srcStart, task.SourceEnd)
		if err != nil {
			return nil, err
		}
		if tfMSecs == core.MSecsMin {
			bars = raw
		} else {
			bars = utils.AggKlinesRange(raw, core.MSecsMin, tfMSecs, srcStart, task.SourceEnd)
		}
		if task.FullHistory || len(task.Targets) == 0 || srcStart <= bStart {
			break
		}
		i := sort.Search(len(bars), func(k int) bool { return bars[k].Time >= task.Targets[0] })
		if i >= len(bars) || bars[i].Time != task.Targets[0] || i >= maxWarm {
			break
		}
		srcStart = task.SourceEnd - (task.SourceEnd-srcStart)*2
		if srcStart < bStart {
			srcStart = bStart
		}
	}
	if srcStart == task.SourceStart && len(bars) <= maxCacheBars {
		core.Cache.Set(cacheKey, bars, int64(len(bars)))
	}
	return bars, nil
}

/*
verifyChain 全量重算时复核已存单元格。

已存非NULL值逐个与重算值比对，一致则跳过写入；任何超出容差的偏差说明
历史值或递推实现存在静默损坏，返回校验错误终止任务。重算值无定义的
单元格（预热区残留）不参与比对。按月分块读取已存行，内存占用有界。
*/
func verifyChain(store IStore, task *RecomputeTask, names []string, vals [][]float64,
	idxMap map[int64]int) (int64, int64, *errs.Error) {
	var skipNum, badNum int64
	var firstBad string
	for cs := task.SourceStart; cs < task.SourceEnd; cs += verifyChunkMS {
		ce := min(cs+verifyChunkMS, task.SourceEnd)
		stored, err := store.ReadRows(task.Sid, task.TimeFrame, names, cs, ce)
		if err != nil {
			return skipNum, badNum, err
		}
		for _, srow := range stored {
			bi, ok := idxMap[srow.Time]
			if !ok {
				// 指标行存在但源周期已不在可用网格上，无从比对
				continue
			}
			for ci, sv := range srow.Vals {
				if sv == nil {
					continue
				}
				cv := vals[ci][bi]
				if math.IsNaN(cv) {
					continue
				}
				if utils.DecEqual(cv, *sv) {
					skipNum++
					continue
				}
				badNum++
				if firstBad == "" {
					firstBad = fmt.Sprintf("%s at %v: stored %v, recomputed %v",
						names[ci], btimeStr(srow.Time), *sv, cv)
				}
			}
		}
	}
	if badNum > 0 {
		log.Error("chain recompute mismatch with stored values", zap.Int32("sid", task.Sid),
			zap.String("tf", task.TimeFrame), zap.String("family", task.Family),
			zap.Int64("badNum", badNum), zap.String("first", firstBad))
		return skipNum, badNum, errs.NewMsg(core.ErrVerifyFail,
			"%v stored cells mismatch recomputed chain, first: %s", badNum, firstBad)
	}
	return skipNum, badNum, nil
}
