package biz

import (
	"archive/zip"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/banbox/banexg"
	"github.com/banbox/banexg/errs"
	"github.com/banbox/banexg/log"
	"github.com/banbox/banind/btime"
	"github.com/banbox/banind/config"
	"github.com/banbox/banind/core"
	"github.com/banbox/banind/orm"
	"github.com/banbox/banind/utils"
	"go.uber.org/zap"
)

/*
LoadKlines 子命令`kline load`的入口：从csv/zip文件导入1m K线到数据库。
-in可指定单个csv、zip压缩包或包含二者的目录；文件名即标的代码，
如BTC_USDT.csv对应BTC/USDT。此命令代行采集端职责，仅用于本地回补。
*/
func LoadKlines(args *config.CmdArgs) *errs.Error {
	err := SetupComs(args)
	if err != nil {
		return err
	}
	if args.InPath == "" {
		return errs.NewMsg(errs.CodeParamRequired, "-in is required")
	}
	inPath := config.ParsePath(args.InPath)
	csvPaths, zipPaths, err := collectKlineFiles(inPath)
	if err != nil {
		return err
	}
	if len(csvPaths)+len(zipPaths) == 0 {
		return errs.NewMsg(core.ErrIOReadFail, "no csv/zip found in %s", inPath)
	}
	sess, conn, err := orm.Conn(core.Ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	var totalNum int64
	fileNum := 0
	pBar := utils.NewPrgBar(len(csvPaths)+len(zipPaths), "load")
	defer pBar.Close()
	for _, path := range csvPaths {
		pBar.Add(1)
		rows, err := utils.ReadCSV(path)
		if err != nil {
			return err
		}
		num, err := loadKlineItem(sess, fileSymbol(path), rows)
		if err != nil {
			return err
		}
		totalNum += num
		if num > 0 {
			fileNum += 1
		}
	}
	for _, path := range zipPaths {
		pBar.Add(1)
		err = loadKlineZip(sess, path, &totalNum, &fileNum)
		if err != nil {
			return err
		}
	}
	if totalNum > 0 {
		// 缓存的聚合序列以原始数据不变为前提，导入后整体失效
		core.Cache.Clear()
	}
	log.Info("load kline done", zap.Int("files", fileNum), zap.Int64("num", totalNum))
	return nil
}

func collectKlineFiles(inPath string) ([]string, []string, *errs.Error) {
	info, err_ := os.Stat(inPath)
	if err_ != nil {
		return nil, nil, errs.New(errs.CodeIOReadFail, err_)
	}
	var csvPaths, zipPaths []string
	if !info.IsDir() {
		if strings.HasSuffix(inPath, ".zip") {
			zipPaths = append(zipPaths, inPath)
		} else if strings.HasSuffix(inPath, ".csv") {
			csvPaths = append(csvPaths, inPath)
		} else {
			return nil, nil, errs.NewMsg(core.ErrIOReadFail, "-in should be csv/zip or a directory: %s", inPath)
		}
		return csvPaths, zipPaths, nil
	}
	ents, err_ := os.ReadDir(inPath)
	if err_ != nil {
		return nil, nil, errs.New(errs.CodeIOReadFail, err_)
	}
	for _, ent := range ents {
		if ent.IsDir() {
			continue
		}
		path := filepath.Join(inPath, ent.Name())
		if strings.HasSuffix(ent.Name(), ".zip") {
			zipPaths = append(zipPaths, path)
		} else if strings.HasSuffix(ent.Name(), ".csv") {
			csvPaths = append(csvPaths, path)
		}
	}
	sort.Strings(csvPaths)
	sort.Strings(zipPaths)
	return csvPaths, zipPaths, nil
}

func loadKlineZip(sess *orm.Queries, inPath string, totalNum *int64, fileNum *int) *errs.Error {
	r, err_ := zip.OpenReader(inPath)
	if err_ != nil {
		return errs.New(errs.CodeIOReadFail, err_)
	}
	defer r.Close()
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, ".csv") {
			continue
		}
		fReader, err_ := f.Open()
		if err_ != nil {
			return errs.New(errs.CodeIOReadFail, err_)
		}
		rows, err_ := csv.NewReader(fReader).ReadAll()
		_ = fReader.Close()
		if err_ != nil {
			return errs.New(errs.CodeIOReadFail, err_)
		}
		num, err := loadKlineItem(sess, fileSymbol(f.Name), rows)
		if err != nil {
			return err
		}
		*totalNum += num
		if num > 0 {
			*fileNum += 1
		}
	}
	return nil
}

// fileSymbol 从文件名还原标的代码，BTC_USDT.csv -> BTC/USDT
func fileSymbol(path string) string {
	clean := strings.Split(filepath.Base(path), ".")[0]
	if !strings.Contains(clean, "/") {
		clean = strings.Replace(clean, "_", "/", 1)
	}
	return clean
}

/*
parseKlineRows 解析csv行为K线，列依次为time,open,high,low,close,volume[,info]。
返回按时间升序的K线和推断出的最小相邻间隔毫秒数。
*/
func parseKlineRows(rows [][]string) ([]*banexg.Kline, int64) {
	klines := make([]*banexg.Kline, 0, len(rows))
	for _, r := range rows {
		if len(r) < 6 {
			continue
		}
		barTime, _ := strconv.ParseInt(r[0], 10, 64)
		if barTime == 0 {
			// 跳过表头或无效行
			continue
		}
		o, _ := strconv.ParseFloat(r[1], 64)
		h, _ := strconv.ParseFloat(r[2], 64)
		l, _ := strconv.ParseFloat(r[3], 64)
		c, _ := strconv.ParseFloat(r[4], 64)
		v, _ := strconv.ParseFloat(r[5], 64)
		var d float64
		if len(r) > 6 {
			d, _ = strconv.ParseFloat(r[6], 64)
		}
		klines = append(klines, &banexg.Kline{
			Time:   barTime,
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: v,
			Info:   d,
		})
	}
	sort.Slice(klines, func(i, j int) bool {
		return klines[i].Time < klines[j].Time
	})
	// 排序后相邻时间差的最小值即K线间隔
	tfMSecs := int64(math.MaxInt64)
	for i := 1; i < len(klines); i++ {
		if diff := klines[i].Time - klines[i-1].Time; diff > 0 && diff < tfMSecs {
			tfMSecs = diff
		}
	}
	return klines, tfMSecs
}

/*
loadKlineItem 导入单个csv的K线。仅接受1m数据；已入库区间直接跳过，
部分重叠时过滤掉已有部分，避免主键冲突。
*/
func loadKlineItem(sess *orm.Queries, symbol string, rows [][]string) (int64, *errs.Error) {
	if len(rows) <= 1 {
		return 0, nil
	}
	klines, tfMSecs := parseKlineRows(rows)
	if len(klines) == 0 {
		return 0, nil
	}
	if len(klines) > 1 && tfMSecs != core.MSecsMin {
		log.Warn("skip non-1m kline file", zap.String("symbol", symbol), zap.Int64("tfMSecs", tfMSecs))
		return 0, nil
	}
	exsList, err := orm.EnsureCurSymbols([]string{symbol})
	if err != nil {
		return 0, err
	}
	exs := exsList[0]
	startMS, endMS := klines[0].Time, klines[len(klines)-1].Time
	oldStart, oldEnd := sess.GetKlineRange(exs.ID, "1m")
	if oldStart > 0 && oldStart <= startMS && endMS < oldEnd {
		// 都已存在，无需写入
		return 0, nil
	}
	if oldStart > 0 {
		newKlines := make([]*banexg.Kline, 0, len(klines))
		for _, k := range klines {
			if k.Time < oldStart || k.Time >= oldEnd {
				newKlines = append(newKlines, k)
			}
		}
		if len(newKlines) == 0 {
			return 0, nil
		}
		klines = newKlines
	}
	startMS, endMS = klines[0].Time, klines[len(klines)-1].Time
	log.Info("insert", zap.String("symbol", exs.Symbol), zap.Int32("sid", exs.ID),
		zap.Int("num", len(klines)), zap.String("start", btime.ToDateStr(startMS, "")),
		zap.String("end", btime.ToDateStr(endMS, "")))
	return sess.InsertKLinesAuto(exs.ID, klines)
}

/*
ExportKlines 子命令`kline export`的入口：把1m原始K线按标的导出为csv。
-out指定输出目录，每个标的一个文件，列顺序与`kline load`一致，可直接重新导入。
time_range限定导出范围，未配置时导出全部。
*/
func ExportKlines(args *config.CmdArgs) *errs.Error {
	err := SetupComs(args)
	if err != nil {
		return err
	}
	if args.OutPath == "" {
		return errs.NewMsg(errs.CodeParamRequired, "-out is required")
	}
	pairs := config.Pairs
	if len(pairs) == 0 {
		return errs.NewMsg(core.ErrBadConfig, "`pairs` is required")
	}
	exsList, err := orm.EnsureCurSymbols(pairs)
	if err != nil {
		return err
	}
	outDir := config.ParsePath(args.OutPath)
	err_ := utils.EnsureDir(outDir, 0755)
	if err_ != nil {
		return errs.New(core.ErrIOWriteFail, err_)
	}
	sess, conn, err := orm.Conn(core.Ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	var start, stop int64
	if config.TimeRange != nil {
		start, stop = config.TimeRange.StartMS, config.TimeRange.EndMS
	}
	for _, exs := range exsList {
		first, last := start, stop
		if first == 0 {
			if first, err = sess.GetFirstKlineMS(exs.ID); err != nil {
				return err
			}
		}
		if last == 0 {
			if last, err = sess.GetLastKlineMS(exs.ID); err != nil {
				return err
			}
			last += core.MSecsMin
		}
		if first == 0 || first >= last {
			log.Info("skip empty", zap.String("symbol", exs.Symbol))
			continue
		}
		klines, err := sess.QueryOHLCV(exs.ID, "1m", first, last)
		if err != nil {
			return err
		}
		if len(klines) == 0 {
			log.Info("skip empty", zap.String("symbol", exs.Symbol))
			continue
		}
		clean := strings.ReplaceAll(strings.ReplaceAll(exs.Symbol, "/", "_"), ":", "_")
		path := filepath.Join(outDir, clean+".csv")
		err = utils.WriteCsvFile(path, klineCsvRows(klines), false)
		if err != nil {
			return err
		}
		log.Info("exported", zap.String("symbol", exs.Symbol), zap.Int("num", len(klines)),
			zap.String("path", path))
	}
	log.Info("export kline done", zap.Int("pairs", len(exsList)))
	return nil
}

// klineCsvRows 列顺序与parseKlineRows一致，含表头
func klineCsvRows(klines []*banexg.Kline) [][]string {
	rows := make([][]string, 0, len(klines)+1)
	rows = append(rows, []string{"time", "open", "high", "low", "close", "volume"})
	for _, k := range klines {
		rows = append(rows, []string{
			strconv.FormatInt(k.Time, 10),
			strconv.FormatFloat(k.Open, 'f', -1, 64),
			strconv.FormatFloat(k.High, 'f', -1, 64),
			strconv.FormatFloat(k.Low, 'f', -1, 64),
			strconv.FormatFloat(k.Close, 'f', -1, 64),
			strconv.FormatFloat(k.Volume, 'f', -1, 64),
		})
	}
	return rows
}

/*
InitDataDir 子命令init的入口：在数据目录写入带注释的默认config.yml。
仅依赖-datadir或环境变量BanDataDir，不加载已有配置。
*/
func InitDataDir(args *config.CmdArgs) *errs.Error {
	log.Setup(args.LogLevel, args.Logfile)
	if args.DataDir != "" {
		config.DataDir = args.DataDir
	}
	dataDir := config.GetDataDirSafe()
	if dataDir == "" {
		return errs.NewMsg(errs.CodeParamRequired, "-datadir or env `BanDataDir` is required")
	}
	err_ := utils.EnsureDir(dataDir, 0755)
	if err_ != nil {
		return errs.New(core.ErrIOWriteFail, err_)
	}
	path := filepath.Join(dataDir, "config.yml")
	if utils.Exists(path) {
		log.Info("config already exists, skip", zap.String("path", path))
		return nil
	}
	err := utils.WriteFile(path, []byte(defaultConfig))
	if err != nil {
		return err
	}
	log.Info("default config written", zap.String("path", path))
	return nil
}

const defaultConfig = `name: banind
env: prod
exchange: binance
market: spot
pairs: [BTC/USDT, ETH/USDT]
run_timeframes: [1m, 15m, 1h, 4h, 1d]
# 留空表示维护全部指标族
indicators: []
min_history_mb: 256
retry:
  max_retry: 4
  waits: [500, 1000, 2000, 4000]
database:
  url: postgresql://postgres:123@[127.0.0.1]:5432/banind
  max_pool_size: 50
  auto_create: true
api_server:
  enabled: false
  listen_ip_address: 127.0.0.1
  listen_port: 8001
  jwt_secret_key: a-long-random-string
  username: admin
  password: admin
#rpc_channels:
#  ops_hook:
#    type: webhook
#    webhook_url: https://example.com/hook
#    msg_types: [exception, run_fail]
`
