package fill

import (
	"github.com/banbox/banexg/errs"
	"github.com/banbox/banexg/log"
	"github.com/banbox/banind/core"
	"github.com/banbox/banind/ind"
	"github.com/banbox/banind/utils"
	"go.uber.org/zap"
)

/*
Plan 将缺口报告转为有序的重算任务列表。

窗口族：每个缺口只需自身前maxWarm行作为输入，相邻缺口在回看填充
范围接触时合并为一个任务，合并只会扩大输出区间，不会要求缺口回看
之外的更早数据。
链式族：任何缺口都会使其后全部递推值不可信，整个族合并为一个从
历史起点开始的全量任务，目标仍仅限缺失单元格。
force为true时跳过缺口判断，目标为全部网格单元格，两种族都覆盖重写。
*/
func Plan(report *GapReport, force bool) ([]*RecomputeTask, *errs.Error) {
	fam := ind.GetFamily(report.Family)
	if fam == nil {
		return nil, errs.NewMsg(core.ErrBadIndicator, "unknown indicator family: %s", report.Family)
	}
	grid := report.Grid
	if len(grid) == 0 {
		return nil, nil
	}
	tfMSecs := utils.TFToMSecs(report.TimeFrame)
	gridEnd := grid[len(grid)-1] + tfMSecs
	if force {
		targets := make([]int64, len(grid))
		copy(targets, grid)
		return []*RecomputeTask{{
			Sid:         report.Sid,
			TimeFrame:   report.TimeFrame,
			Family:      report.Family,
			SourceStart: grid[0],
			SourceEnd:   gridEnd,
			Targets:     targets,
			FullHistory: fam.Kind == ind.KindChain,
			Force:       true,
		}}, nil
	}
	if len(report.Missing) == 0 {
		return nil, nil
	}
	if fam.Kind == ind.KindChain {
		// 历史短于收敛下界时递推值仍按可用历史精确求得，仅提示
		if least := chainLeastRows(fam); len(grid) < least {
			log.Warn("history below convergence bound", zap.String("family", fam.Name),
				zap.String("tf", report.TimeFrame), zap.Int("rows", len(grid)), zap.Int("want", least))
		}
		return []*RecomputeTask{{
			Sid:         report.Sid,
			TimeFrame:   report.TimeFrame,
			Family:      report.Family,
			SourceStart: grid[0],
			SourceEnd:   gridEnd,
			Targets:     report.Missing,
			FullHistory: true,
		}}, nil
	}
	lookbackMS := int64(famWarmIdx(fam)) * tfMSecs
	var res []*RecomputeTask
	var cur *RecomputeTask
	for _, gap := range report.Missing {
		padStart := gap - lookbackMS
		if padStart < grid[0] {
			padStart = grid[0]
		}
		if cur != nil && padStart <= cur.SourceEnd {
			cur.Targets = append(cur.Targets, gap)
			cur.SourceEnd = gap + tfMSecs
			continue
		}
		cur = &RecomputeTask{
			Sid:         report.Sid,
			TimeFrame:   report.TimeFrame,
			Family:      report.Family,
			SourceStart: padStart,
			SourceEnd:   gap + tfMSecs,
			Targets:     []int64{gap},
		}
		res = append(res, cur)
	}
	return res, nil
}

// chainLeastRows 链式族各周期收敛下界的最大值
func chainLeastRows(fam *ind.IndDef) int {
	res := 0
	for _, p := range fam.Periods {
		if num := fam.Lookback(p); num > res {
			res = num
		}
	}
	return res
}
