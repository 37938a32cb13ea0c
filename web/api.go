package web

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/banbox/banexg"
	"github.com/banbox/banexg/errs"
	"github.com/banbox/banind/biz"
	"github.com/banbox/banind/config"
	"github.com/banbox/banind/core"
	"github.com/banbox/banind/fill"
	"github.com/banbox/banind/ind"
	"github.com/banbox/banind/orm"
	"github.com/banbox/banind/orm/ormu"
	"github.com/banbox/banind/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

func regApiBiz(api fiber.Router) {
	api.Get("/gaps", getGaps)
	api.Get("/runs", getRuns)
	api.Get("/inds", getInds)
	api.Get("/preview", getPreview)
	api.Get("/config", getConfig)
	api.Get("/performance", getPerformance)
}

func arrKlines(klines []*banexg.Kline) [][]float64 {
	res := make([][]float64, 0, len(klines))
	for _, k := range klines {
		res = append(res, []float64{float64(k.Time), k.Open, k.High, k.Low, k.Close, k.Volume, k.Info})
	}
	return res
}

/*
postRun 发起一轮补算，异步执行，立即返回任务日志条目。
已有补算在执行时返回409。
*/
func postRun(c *fiber.Ctx) error {
	type RunRequest struct {
		Pairs      []string `json:"pairs" validate:"required,min=1"`
		TimeFrames []string `json:"timeframes"`
		Families   []string `json:"families"`
		Force      bool     `json:"force"`
	}
	var data = new(RunRequest)
	if err := VerifyArg(c, data, ArgBody); err != nil {
		return err
	}
	args := &config.CmdArgs{
		Pairs:      data.Pairs,
		TimeFrames: data.TimeFrames,
		Families:   data.Families,
		Force:      data.Force,
	}
	run, err := biz.StartRun(args, ormu.RunModeAPI)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": run})
}

/*
getGaps 扫描衍生数据缺口，返回每个(标的,周期,指标族)的汇总和原始数据空洞。
缺失时间戳仅返回首末两个，完整列表过大不适合接口传输。
*/
func getGaps(c *fiber.Ctx) error {
	type GapArgs struct {
		Pairs      string `query:"pairs"`
		TimeFrames string `query:"timeframes"`
		Families   string `query:"families"`
	}
	var data = new(GapArgs)
	if err := VerifyArg(c, data, ArgQuery); err != nil {
		return err
	}
	pairs := utils.SplitSolid(data.Pairs, ",")
	if len(pairs) == 0 {
		pairs = config.Pairs
	}
	if len(pairs) == 0 {
		return errs.NewMsg(core.ErrBadConfig, "`pairs` is required")
	}
	tfs := utils.SplitSolid(data.TimeFrames, ",")
	if len(tfs) == 0 {
		tfs = biz.EffectiveTFs()
	}
	fams := utils.SplitSolid(data.Families, ",")
	if len(fams) == 0 {
		fams = biz.EffectiveFams()
	}
	exsList, err := orm.EnsureCurSymbols(pairs)
	if err != nil {
		return err
	}
	sess, conn, err := orm.Conn(core.Ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	gaps := make([]map[string]interface{}, 0, len(pairs)*len(tfs)*len(fams))
	for _, pair := range pairs {
		for _, tf := range tfs {
			for _, fam := range fams {
				rep, err := fill.Detect(sess, pair, tf, fam)
				if err != nil {
					return err
				}
				item := map[string]interface{}{
					"symbol":       rep.Symbol,
					"timeFrame":    rep.TimeFrame,
					"family":       rep.Family,
					"scanNum":      rep.ScanNum,
					"missingNum":   len(rep.Missing),
					"warmBoundary": rep.WarmBoundary,
				}
				if len(rep.Missing) > 0 {
					item["firstGap"] = rep.Missing[0]
					item["lastGap"] = rep.Missing[len(rep.Missing)-1]
				}
				gaps = append(gaps, item)
			}
		}
	}
	holes := make([]*orm.KHole, 0)
	for _, exs := range exsList {
		arr, _, err := sess.FindKHoles(orm.FindKHolesArgs{Sid: exs.ID, Limit: 100})
		if err != nil {
			return err
		}
		holes = append(holes, arr...)
	}
	return c.JSON(fiber.Map{"gaps": gaps, "holes": holes})
}

// getRuns 查询补算任务日志，按id倒序
func getRuns(c *fiber.Ctx) error {
	type RunsArgs struct {
		Mode   string `query:"mode"`
		Status int64  `query:"status"`
		Pair   string `query:"pair"`
		Limit  int64  `query:"limit"`
		MaxID  int64  `query:"max_id"`
	}
	var data = new(RunsArgs)
	if err := VerifyArg(c, data, ArgQuery); err != nil {
		return err
	}
	qu, dbU, err := ormu.Conn()
	if err != nil {
		return err
	}
	defer dbU.Close()
	runs, err := qu.FindRuns(context.Background(), ormu.FindRunsParams{
		Mode:   data.Mode,
		Status: data.Status,
		Pair:   data.Pair,
		Limit:  data.Limit,
		MaxID:  data.MaxID,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": runs, "busy": biz.IsRunBusy()})
}

// getInds 指标注册表和图表预览指标列表
func getInds(c *fiber.Ctx) error {
	res := make([]map[string]interface{}, 0, 16)
	for _, fam := range ind.AllFamilies() {
		cols := make([]string, 0, len(fam.Periods))
		for _, col := range fam.Cols() {
			cols = append(cols, col.Name)
		}
		res = append(res, map[string]interface{}{
			"name":    fam.Name,
			"kind":    fam.Kind,
			"periods": fam.Periods,
			"cols":    cols,
		})
	}
	return c.JSON(fiber.Map{"data": res, "draw": indsCache})
}

/*
getPreview K线图表预览：返回聚合K线、banta逐K线递推的预览值、
以及该指标族已入库的列值（NULL列省略）。
*/
func getPreview(c *fiber.Ctx) error {
	type PreviewArgs struct {
		Symbol    string `query:"symbol" validate:"required"`
		TimeFrame string `query:"timeframe" validate:"required"`
		Family    string `query:"family" validate:"required"`
		FromMS    int64  `query:"from" validate:"required"`
		ToMS      int64  `query:"to" validate:"required"`
	}
	var data = new(PreviewArgs)
	if err := VerifyArg(c, data, ArgQuery); err != nil {
		return err
	}
	if data.ToMS <= data.FromMS {
		return errors.New("`from` must less than `to`")
	}
	exs, err := orm.GetExSymbol(data.Symbol)
	if err != nil {
		return err
	}
	fam := ind.GetFamily(data.Family)
	if fam == nil {
		return errs.NewMsg(core.ErrBadIndicator, "unknown indicator family: %s", data.Family)
	}
	tbl, err := orm.IndTable(data.TimeFrame)
	if err != nil {
		return err
	}
	sess, conn, err := orm.Conn(core.Ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	klines, err := sess.QueryOHLCV(exs.ID, data.TimeFrame, data.FromMS, data.ToMS)
	if err != nil {
		return err
	}
	bars := arrKlines(klines)
	preview, err_ := calcDrawInd(data.Family, bars, nil)
	if err_ != nil {
		return err_
	}
	cols := make([]string, 0, len(fam.Periods))
	for _, col := range fam.Cols() {
		cols = append(cols, col.Name)
	}
	rows, err := sess.GetIndRows(tbl, exs.ID, cols, data.FromMS, data.ToMS)
	if err != nil {
		return err
	}
	stored := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		item := map[string]interface{}{"time": row.Time}
		for i, v := range row.Vals {
			if v != nil {
				item[cols[i]] = *v
			}
		}
		stored = append(stored, item)
	}
	return c.JSON(fiber.Map{
		"bars":    bars,
		"preview": preview,
		"stored":  stored,
	})
}

/*
getConfig 当前实例生效的合并yaml配置文本。
敏感配置节（数据库连接、通知渠道、服务密钥）不返回。
*/
func getConfig(c *fiber.Ctx) error {
	paths := config.ConfigPaths()
	content, err_ := config.MergeConfigPaths(paths, "database", "rpc_channels", "api_server")
	if err_ != nil {
		return err_
	}
	return c.JSON(fiber.Map{"data": content, "paths": paths})
}

// getPerformance 进程与主机负载概况
func getPerformance(c *fiber.Ctx) error {
	percent, err := cpu.Percent(time.Second, false)
	if err != nil {
		return err
	}
	v, err := mem.VirtualMemory()
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"cpuPct":     percent[0],
		"ramPct":     v.UsedPercent,
		"availMB":    v.Available / 1024 / 1024,
		"goroutines": runtime.NumGoroutine(),
		"busy":       biz.IsRunBusy(),
	})
}
