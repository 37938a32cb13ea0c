package fill

import (
	"github.com/banbox/banexg/errs"
	"github.com/banbox/banexg/log"
	"github.com/banbox/banind/btime"
	"github.com/banbox/banind/config"
	"github.com/banbox/banind/core"
	"github.com/banbox/banind/orm"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"
)

// 估算内存用量时假定的每根1m源K线字节数，含聚合行与各列衍生数组的摊销
const rowMemBytes = 300

/*
Run 对单个(交易对,周期,指标族)执行一轮补算。

planning→executing→writing→verifying→done推进，无缺口时planning后直接
done。executing或writing阶段出错即终止，不做任何局部清理：批次提交本身
就是可恢复边界，下次调用的缺口检测会发现并补齐未完成的尾部。verifying
重新检测一次缺口，写入成功后仍有残留视为实现缺陷，作为硬性失败上报。
失败时返回的RunResult与错误都非空，便于调用方记录中间计数。
*/
func Run(sess *orm.Queries, args *RunArgs) (*RunResult, *errs.Error) {
	exs, err := orm.GetExSymbol(args.Symbol)
	if err != nil {
		return nil, err
	}
	return runStore(NewDbStore(sess), exs.ID, args)
}

func runStore(store IStore, sid int32, args *RunArgs) (*RunResult, *errs.Error) {
	res := &RunResult{
		ID:        uuid.New().String(),
		Symbol:    args.Symbol,
		TimeFrame: args.TimeFrame,
		Family:    args.Family,
		State:     StateIdle,
		StartMS:   btime.TimeMS(),
	}
	prg := func(stage string, rate float64) {
		if args.Prg != nil {
			args.Prg(stage, rate)
		}
	}
	res.State = StatePlanning
	report, err := detectGaps(store, sid, args.Symbol, args.TimeFrame, args.Family)
	if err != nil {
		return runFail(res, err)
	}
	res.ScanNum = report.ScanNum
	res.GapNum = int64(len(report.Missing))
	if !args.ForceReload && len(report.Missing) == 0 {
		prg("plan", 1)
		return runDone(res)
	}
	tasks, err := Plan(report, args.ForceReload)
	if err != nil {
		return runFail(res, err)
	}
	prg("plan", 1)
	if len(tasks) == 0 {
		return runDone(res)
	}
	err = checkTaskMemory(tasks)
	if err != nil {
		return runFail(res, err)
	}
	taskNum := float64(len(tasks))
	for i, task := range tasks {
		res.State = StateExecuting
		base := float64(i)
		out, err := Execute(store, task, func(rate float64) {
			prg("calc", (base+rate)/taskNum)
		})
		if out != nil {
			res.SkipNum += out.SkipNum
			res.BadNum += out.BadNum
		}
		if err != nil {
			return runFail(res, err)
		}
		res.State = StateWriting
		num, err := WriteRows(store, sid, args.TimeFrame, out.Cols, out.Rows, args.OnBatch,
			func(rate float64) {
				prg("write", (base+rate)/taskNum)
			})
		res.RowsWritten += num
		if err != nil {
			return runFail(res, err)
		}
	}
	res.State = StateVerifying
	report, err = detectGaps(store, sid, args.Symbol, args.TimeFrame, args.Family)
	if err != nil {
		return runFail(res, err)
	}
	res.GapsRemaining = int64(len(report.Missing))
	prg("verify", 1)
	if res.GapsRemaining > 0 {
		return runFail(res, errs.NewMsg(core.ErrVerifyFail,
			"%v gaps remain after write, first at %v", res.GapsRemaining, btimeStr(report.Missing[0])))
	}
	return runDone(res)
}

func runDone(res *RunResult) (*RunResult, *errs.Error) {
	res.State = StateDone
	res.CostMS = btime.TimeMS() - res.StartMS
	log.Info("fill run done", zap.String("pair", res.Symbol), zap.String("tf", res.TimeFrame),
		zap.String("family", res.Family), zap.Int64("scan", res.ScanNum), zap.Int64("gaps", res.GapNum),
		zap.Int64("wrote", res.RowsWritten), zap.Int64("skip", res.SkipNum), zap.Int64("costMS", res.CostMS))
	return res, nil
}

func runFail(res *RunResult, err *errs.Error) (*RunResult, *errs.Error) {
	res.State = StateFailed
	res.CostMS = btime.TimeMS() - res.StartMS
	log.Error("fill run failed", zap.String("pair", res.Symbol), zap.String("tf", res.TimeFrame),
		zap.String("family", res.Family), zap.String("err", err.Short()))
	return res, err
}

/*
checkTaskMemory 全量重算前检查可用内存。

任务顺序执行，峰值取决于最大单任务一次性加载的1m源行数（粗周期也整段
读取1m再聚合）；可用内存低于估算值或配置下限时直接拒绝，避免中途OOM
留下半程状态。
*/
func checkTaskMemory(tasks []*RecomputeTask) *errs.Error {
	var maxRows int64
	full := false
	for _, t := range tasks {
		rows := (t.SourceEnd - t.SourceStart) / core.MSecsMin
		if rows > maxRows {
			maxRows = rows
		}
		if t.FullHistory {
			full = true
		}
	}
	if !full {
		return nil
	}
	vm, err_ := mem.VirtualMemory()
	if err_ != nil {
		return nil
	}
	availMB := int64(vm.Available / 1024 / 1024)
	needMB := maxRows * rowMemBytes / (1024 * 1024)
	if minMB := int64(config.MinHistoryMB); needMB < minMB {
		needMB = minMB
	}
	if availMB < needMB {
		return errs.NewMsg(core.ErrRunTime,
			"full-history recompute needs ~%v MB memory, only %v MB available", needMB, availMB)
	}
	return nil
}

func btimeStr(ms int64) string {
	return btime.ToDateStr(ms, "")
}
