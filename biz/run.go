package biz

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banbox/banexg/errs"
	"github.com/banbox/banexg/log"
	"github.com/banbox/banind/btime"
	"github.com/banbox/banind/config"
	"github.com/banbox/banind/core"
	"github.com/banbox/banind/fill"
	"github.com/banbox/banind/ind"
	"github.com/banbox/banind/orm"
	"github.com/banbox/banind/orm/ormu"
	"github.com/banbox/banind/rpc"
	"github.com/banbox/banind/utils"
	"github.com/bytedance/sonic"
	"github.com/felixge/fgprof"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"
)

// 单个补算任务内各阶段的进度权重，calc通常耗时最长
var (
	fillStages   = []string{"plan", "calc", "write", "verify"}
	stageWeights = []float64{1, 6, 2, 1}
)

var (
	runLock deadlock.Mutex
	runBusy bool
)

// FnRunPrg 补算进度回调，progress为本轮所有任务的总体进度[0,1]
type FnRunPrg = func(runID int64, pair, tf, family, stage string, progress float64)

var (
	prgCBLock deadlock.Mutex
	prgCBs    = make(map[string]FnRunPrg)
)

func AddPrgCB(name string, cb FnRunPrg) {
	prgCBLock.Lock()
	if _, ok := prgCBs[name]; !ok {
		prgCBs[name] = cb
	}
	prgCBLock.Unlock()
}

func DelPrgCB(name string) {
	prgCBLock.Lock()
	delete(prgCBs, name)
	prgCBLock.Unlock()
}

func firePrg(runID int64, pair, tf, family, stage string, progress float64) {
	prgCBLock.Lock()
	cbs := make([]FnRunPrg, 0, len(prgCBs))
	for _, cb := range prgCBs {
		cbs = append(cbs, cb)
	}
	prgCBLock.Unlock()
	for _, cb := range cbs {
		cb(runID, pair, tf, family, stage, progress)
	}
}

type fillJob struct {
	Pair      string
	TimeFrame string
	Family    string
}

func tryAcquireRun() bool {
	runLock.Lock()
	defer runLock.Unlock()
	if runBusy {
		return false
	}
	runBusy = true
	return true
}

func releaseRun() {
	runLock.Lock()
	runBusy = false
	runLock.Unlock()
}

// IsRunBusy 当前是否有补算在执行
func IsRunBusy() bool {
	runLock.Lock()
	defer runLock.Unlock()
	return runBusy
}

/*
RunFill 子命令run的入口：初始化组件后同步执行一轮补算。
*/
func RunFill(args *config.CmdArgs) *errs.Error {
	err := SetupComs(args)
	if err != nil {
		return err
	}
	if args.CPUProfile {
		startProfile()
	}
	_, err = RunJobs(args, ormu.RunModeManual)
	return err
}

// startProfile 采样挂钟耗时（含IO等待）写入数据目录，退出时保存
func startProfile() {
	outPath := filepath.Join(config.GetDataDir(), "fgprof.pprof")
	if _, err_ := os.Stat(outPath); err_ == nil {
		if err_ = os.Remove(outPath); err_ != nil {
			log.Error("del old fgprof.pprof fail", zap.Error(err_))
		}
	}
	f, err_ := os.OpenFile(outPath, os.O_CREATE|os.O_RDWR, 0644)
	if err_ != nil {
		log.Error("write to fgprof.pprof fail", zap.Error(err_))
		return
	}
	stop := fgprof.Start(f, fgprof.FormatPprof)
	log.Info("start profile", zap.String("path", f.Name()))
	core.ExitCalls = append(core.ExitCalls, func() {
		if err2 := stop(); err2 != nil {
			log.Error("stop profile fail", zap.Error(err2))
		}
		if err2 := f.Close(); err2 != nil {
			log.Error("save fgprof.pprof fail", zap.Error(err2))
		}
	})
}

/*
RunBackfill 子命令backfill的入口：忽略缺口检测，对整个序列全量重算覆盖。
*/
func RunBackfill(args *config.CmdArgs) *errs.Error {
	args.Force = true
	return RunFill(args)
}

/*
RunJobs 同步执行一轮补算：标的×周期×指标族逐个顺序执行，全部记入一条
任务日志。任一任务失败不中断后续任务，最终状态为Fail并返回首个错误。
已有补算在执行时返回ErrRunBusy。
*/
func RunJobs(args *config.CmdArgs, mode string) (*ormu.Run, *errs.Error) {
	if !tryAcquireRun() {
		return nil, errs.NewMsg(core.ErrRunBusy, "another fill run is in progress")
	}
	defer releaseRun()
	run, jobs, err := createRun(args, mode)
	if err != nil {
		return nil, err
	}
	return run, execRun(run, jobs, args.Force)
}

/*
StartRun 异步发起一轮补算，立即返回已登记的任务日志，供调用方跟踪进度。
*/
func StartRun(args *config.CmdArgs, mode string) (*ormu.Run, *errs.Error) {
	if !tryAcquireRun() {
		return nil, errs.NewMsg(core.ErrRunBusy, "another fill run is in progress")
	}
	run, jobs, err := createRun(args, mode)
	if err != nil {
		releaseRun()
		return nil, err
	}
	go func() {
		defer releaseRun()
		err2 := execRun(run, jobs, args.Force)
		if err2 != nil {
			log.Error("fill run fail", zap.Int64("id", run.ID), zap.String("err", err2.Short()))
		}
	}()
	return run, nil
}

// EffectiveTFs 本轮维护的周期列表，未配置时默认全部周期
func EffectiveTFs() []string {
	if len(config.RunTimeframes) > 0 {
		return config.RunTimeframes
	}
	return core.AllTFs
}

// EffectiveFams 本轮维护的指标族列表，未配置时默认全部指标族
func EffectiveFams() []string {
	if len(config.Indicators) > 0 {
		return config.Indicators
	}
	fams := make([]string, 0, 16)
	for _, fam := range ind.AllFamilies() {
		fams = append(fams, fam.Name)
	}
	return fams
}

/*
buildJobs 由标的、周期、指标族的笛卡尔积生成顺序任务列表。
*/
func buildJobs(pairs, tfs, fams []string) ([]*fillJob, *errs.Error) {
	if len(pairs) == 0 {
		return nil, errs.NewMsg(core.ErrBadConfig, "`pairs` is required")
	}
	for _, tf := range tfs {
		if _, err := orm.IndTable(tf); err != nil {
			return nil, err
		}
	}
	for _, fam := range fams {
		if ind.GetFamily(fam) == nil {
			return nil, errs.NewMsg(core.ErrBadIndicator, "unknown indicator family: %s", fam)
		}
	}
	jobs := make([]*fillJob, 0, len(pairs)*len(tfs)*len(fams))
	for _, pair := range pairs {
		for _, tf := range tfs {
			for _, fam := range fams {
				jobs = append(jobs, &fillJob{Pair: pair, TimeFrame: tf, Family: fam})
			}
		}
	}
	return jobs, nil
}

/*
cmdArgsLine 将本轮生效的命令行覆盖项还原为参数文本，记入任务日志。
*/
func cmdArgsLine(args *config.CmdArgs) string {
	var parts []string
	if len(args.Pairs) > 0 {
		parts = append(parts, "-pairs "+strings.Join(args.Pairs, ","))
	}
	if len(args.TimeFrames) > 0 {
		parts = append(parts, "-timeframes "+strings.Join(args.TimeFrames, ","))
	}
	if len(args.Families) > 0 {
		parts = append(parts, "-families "+strings.Join(args.Families, ","))
	}
	if args.TimeRange != "" {
		parts = append(parts, "-timerange "+args.TimeRange)
	}
	if args.Force {
		parts = append(parts, "-force")
	}
	return strings.Join(parts, " ")
}

/*
configSnapshot 生成当前配置的yaml快照，数据库连接串脱敏后存储。
*/
func configSnapshot() string {
	c := config.Data
	if c.Database != nil {
		dbCfg := *c.Database
		dbCfg.Url = utils.MaskDBUrl(dbCfg.Url)
		c.Database = &dbCfg
	}
	data, err_ := core.MarshalYaml(&c)
	if err_ != nil {
		log.Warn("marshal config snapshot fail", zap.Error(err_))
		return ""
	}
	return string(data)
}

func createRun(args *config.CmdArgs, mode string) (*ormu.Run, []*fillJob, *errs.Error) {
	if core.NoDB {
		return nil, nil, errs.NewMsg(core.ErrBadConfig, "fill run requires database, remove -nodb")
	}
	// API请求可携带覆盖项，不回写全局配置
	pairs := config.Pairs
	if len(args.Pairs) > 0 {
		pairs = args.Pairs
	}
	tfs := EffectiveTFs()
	if len(args.TimeFrames) > 0 {
		tfs = args.TimeFrames
	}
	fams := EffectiveFams()
	if len(args.Families) > 0 {
		fams = args.Families
	}
	jobs, err := buildJobs(pairs, tfs, fams)
	if err != nil {
		return nil, nil, err
	}
	qu, dbU, err := ormu.Conn()
	if err != nil {
		return nil, nil, err
	}
	defer dbU.Close()
	run := &ormu.Run{
		Mode:     mode,
		Args:     cmdArgsLine(args),
		Config:   configSnapshot(),
		Pairs:    strings.Join(pairs, ","),
		Periods:  strings.Join(tfs, ","),
		Inds:     strings.Join(fams, ","),
		CreateAt: btime.TimeMS(),
		Status:   ormu.RunStatusInit,
	}
	run, err = qu.AddRun(context.Background(), run)
	if err != nil {
		return nil, nil, err
	}
	return run, jobs, nil
}

func execRun(run *ormu.Run, jobs []*fillJob, force bool) *errs.Error {
	ctx := context.Background()
	qu, dbU, err := ormu.Conn()
	if err != nil {
		return err
	}
	defer dbU.Close()
	run.StartAt = btime.TimeMS()
	run.Status = ormu.RunStatusRunning
	err = qu.SetRunStatus(ctx, run.ID, ormu.RunStatusRunning, run.StartAt)
	if err != nil {
		return err
	}
	_, err = orm.EnsureCurSymbols(utils.SplitSolid(run.Pairs, ","))
	if err != nil {
		return finishRun(qu, run, nil, 0, err)
	}
	sess, conn, err := orm.Conn(core.Ctx)
	if err != nil {
		return finishRun(qu, run, nil, 0, err)
	}
	defer conn.Release()

	var firstErr *errs.Error
	failNum := 0
	doneNum := 0
	total := float64(len(jobs))
	results := make([]*fill.RunResult, 0, len(jobs))
	log.Info("start fill run", zap.Int64("id", run.ID), zap.Int("jobs", len(jobs)), zap.Bool("force", force))
	for i, job := range jobs {
		if core.Ctx.Err() != nil {
			firstErr = errs.NewMsg(core.ErrRunTime, "fill run canceled")
			failNum += len(jobs) - i
			break
		}
		base := float64(i)
		prg := utils.NewStagedPrg(fillStages, stageWeights)
		prg.AddTrigger("journal", func(stage string, rate float64) {
			overall := (base + rate) / total
			_ = qu.SetRunProgress(ctx, run.ID, overall)
			firePrg(run.ID, job.Pair, job.TimeFrame, job.Family, stage, overall)
		})
		res, err2 := fill.Run(sess, &fill.RunArgs{
			Symbol:      job.Pair,
			TimeFrame:   job.TimeFrame,
			Family:      job.Family,
			ForceReload: force,
			Prg:         prg.SetProgress,
		})
		if res != nil {
			run.ScanNum += res.ScanNum
			run.GapNum += res.GapNum
			run.FillNum += res.RowsWritten
			run.SkipNum += res.SkipNum
			run.BadNum += res.BadNum
			results = append(results, res)
		}
		doneNum += 1
		_ = qu.SetRunProgress(ctx, run.ID, float64(doneNum)/total)
		firePrg(run.ID, job.Pair, job.TimeFrame, job.Family, "done", float64(doneNum)/total)
		if err2 != nil {
			failNum += 1
			if firstErr == nil {
				firstErr = err2
			}
			log.Error("fill job fail", zap.String("pair", job.Pair), zap.String("tf", job.TimeFrame),
				zap.String("family", job.Family), zap.String("err", err2.Short()))
		}
	}
	if failNum > 0 && firstErr != nil {
		run.Note = fmt.Sprintf("%v/%v jobs failed: %v", failNum, len(jobs), firstErr.Short())
	}
	return finishRun(qu, run, results, float64(doneNum)/total, firstErr)
}

func finishRun(qu *ormu.Queries, run *ormu.Run, results []*fill.RunResult,
	progress float64, runErr *errs.Error) *errs.Error {
	run.StopAt = btime.TimeMS()
	run.Progress = progress
	if runErr == nil {
		run.Status = ormu.RunStatusDone
	} else {
		run.Status = ormu.RunStatusFail
		if run.Note == "" {
			run.Note = runErr.Short()
		}
	}
	if len(results) > 0 {
		info, err_ := sonic.MarshalString(results)
		if err_ == nil {
			run.Info = info
		}
	}
	err := qu.SetRunDone(context.Background(), run)
	if err != nil {
		log.Error("save run journal fail", zap.Int64("id", run.ID), zap.String("err", err.Short()))
	}
	notifyRun(run)
	costSecs := float64(run.StopAt-run.StartAt) / 1000
	if runErr == nil {
		log.Info("fill run done", zap.Int64("id", run.ID), zap.Int64("scan", run.ScanNum),
			zap.Int64("gaps", run.GapNum), zap.Int64("fills", run.FillNum),
			zap.Float64("costSecs", costSecs))
	}
	return runErr
}

func notifyRun(run *ormu.Run) {
	msgType := rpc.MsgTypeRunDone
	if run.Status == ormu.RunStatusFail {
		msgType = rpc.MsgTypeRunFail
	}
	msg := map[string]interface{}{
		"type":    msgType,
		"pairs":   run.Pairs,
		"periods": run.Periods,
		"inds":    run.Inds,
		"gaps":    run.GapNum,
		"fills":   run.FillNum,
		"cost":    fmt.Sprintf("%.1fs", float64(run.StopAt-run.StartAt)/1000),
	}
	if run.Note != "" {
		msg["note"] = run.Note
	}
	rpc.SendMsg(msg)
}
