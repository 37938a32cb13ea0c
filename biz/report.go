package biz

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banbox/banexg/errs"
	"github.com/banbox/banexg/log"
	"github.com/banbox/banind/btime"
	"github.com/banbox/banind/config"
	"github.com/banbox/banind/core"
	"github.com/banbox/banind/fill"
	"github.com/banbox/banind/ind"
	"github.com/banbox/banind/orm"
	"github.com/banbox/banind/utils"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// 报表的覆盖率矩阵将整个时间范围均分为固定段数
const coverSliceNum = 30

/*
RunGapDetect 子命令detect的入口：扫描配置标的的全部衍生数据缺口并打印汇总表。
只读，不触发任何补算写入。
*/
func RunGapDetect(args *config.CmdArgs) *errs.Error {
	err := SetupComs(args)
	if err != nil {
		return err
	}
	pairs := config.Pairs
	if len(pairs) == 0 {
		return errs.NewMsg(core.ErrBadConfig, "`pairs` is required")
	}
	tfs, fams := EffectiveTFs(), EffectiveFams()
	_, err = orm.EnsureCurSymbols(pairs)
	if err != nil {
		return err
	}
	sess, conn, err := orm.Conn(core.Ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	fmt.Println(utils.PadCenter(" Gap Detect ", 76, "="))
	table := tablewriter.NewWriter(os.Stdout)
	heads := []string{"Pair", "TF", "Family", "Scan", "Missing", "Warm Bound", "First Gap", "Last Gap"}
	table.SetHeader(heads)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	var totalMiss int64
	for _, pair := range pairs {
		for _, tf := range tfs {
			for _, fam := range fams {
				rep, err := fill.Detect(sess, pair, tf, fam)
				if err != nil {
					return err
				}
				table.Append(gapRow(rep))
				totalMiss += int64(len(rep.Missing))
			}
		}
	}
	table.Render()
	log.Info("gap detect done", zap.Int("pairs", len(pairs)), zap.Int64("missing", totalMiss))
	return nil
}

// gapRow 缺口扫描结果的展示行，汇总表和xlsx报表共用
func gapRow(rep *fill.GapReport) []string {
	warmStr, first, last := "", "", ""
	if rep.WarmBoundary > 0 {
		warmStr = btime.ToDateStr(rep.WarmBoundary, "")
	}
	if len(rep.Missing) > 0 {
		first = btime.ToDateStr(rep.Missing[0], "")
		last = btime.ToDateStr(rep.Missing[len(rep.Missing)-1], "")
	}
	return []string{rep.Symbol, rep.TimeFrame, rep.Family, strconv.FormatInt(rep.ScanNum, 10),
		strconv.Itoa(len(rep.Missing)), warmStr, first, last}
}

/*
ExportReport 子命令report的入口：导出覆盖率报表。
-out指定输出文件；类型由-out-type或文件扩展名决定，支持xlsx和png。
xlsx含coverage/gaps/holes三个工作表，png仅渲染覆盖率热力图。
*/
func ExportReport(args *config.CmdArgs) *errs.Error {
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
	tfs, fams := EffectiveTFs(), EffectiveFams()
	exsList, err := orm.EnsureCurSymbols(pairs)
	if err != nil {
		return err
	}
	sess, conn, err := orm.Conn(core.Ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	outPath := config.ParsePath(args.OutPath)
	outType := args.OutType
	if outType == "" {
		outType = strings.TrimPrefix(filepath.Ext(outPath), ".")
		if outType == "" {
			outType = "xlsx"
		}
	}
	err_ := utils.EnsureDir(filepath.Dir(outPath), 0755)
	if err_ != nil {
		return errs.New(core.ErrIOWriteFail, err_)
	}
	startMS, endMS := reportRange(sess, exsList)
	if startMS == 0 || startMS >= endMS {
		return errs.NewMsg(core.ErrInsufficientHistory, "no kline data to report")
	}
	slices := sliceRanges(startMS, endMS, coverSliceNum)
	labels := sliceLabels(slices)
	cols := famColNames(fams)
	rowNames, data, err := coverMatrix(sess, exsList, tfs, cols, slices)
	if err != nil {
		return err
	}
	covMap := make(map[string]float64, len(rowNames))
	for i, name := range rowNames {
		vals := make([]decimal.Decimal, len(data[i]))
		for j, v := range data[i] {
			vals[j] = decimal.NewFromFloat(v)
		}
		if mean, ok := utils.DecArithMean(vals); ok {
			covMap[name], _ = mean.Float64()
		}
	}
	covText, _ := utils.MapToStr(covMap)
	fmt.Println(utils.PadCenter(" Coverage ", 76, "="))
	fmt.Println(covText)
	switch outType {
	case "png":
		imgData, err_ := utils.GenCoverImg(data, "Indicator Coverage", rowNames, labels, "", 12)
		if err_ != nil {
			return errs.New(core.ErrIOWriteFail, err_)
		}
		err = utils.WriteFile(outPath, imgData)
	case "xlsx":
		err = writeReportXlsx(sess, outPath, labels, rowNames, data, exsList, tfs, fams)
	default:
		return errs.NewMsg(core.ErrBadConfig, "unsupported out type: %s", outType)
	}
	if err != nil {
		return err
	}
	log.Info("report exported", zap.String("path", outPath),
		zap.String("start", btime.ToDateStr(startMS, "")), zap.String("end", btime.ToDateStr(endMS, "")))
	return nil
}

// reportRange 报表时间范围，未配置time_range时取全部标的1m数据的并集范围
func reportRange(sess *orm.Queries, exsList []*orm.ExSymbol) (int64, int64) {
	if config.TimeRange != nil && config.TimeRange.StartMS > 0 {
		return config.TimeRange.StartMS, config.TimeRange.EndMS
	}
	var startMS, endMS int64
	for _, exs := range exsList {
		first, last := sess.GetKlineRange(exs.ID, "1m")
		if first == 0 {
			continue
		}
		if startMS == 0 || first < startMS {
			startMS = first
		}
		if last > endMS {
			endMS = last
		}
	}
	return startMS, endMS
}

// sliceRanges 将[startMS, endMS)均分为num段，末段吸收除不尽的余数
func sliceRanges(startMS, endMS int64, num int) [][2]int64 {
	if num <= 0 || startMS >= endMS {
		return nil
	}
	step := (endMS - startMS) / int64(num)
	if step <= 0 {
		num = 1
		step = endMS - startMS
	}
	res := make([][2]int64, 0, num)
	for i := 0; i < num; i++ {
		start := startMS + int64(i)*step
		stop := start + step
		if i == num-1 {
			stop = endMS
		}
		res = append(res, [2]int64{start, stop})
	}
	return res
}

func sliceLabels(slices [][2]int64) []string {
	format := "2006-01-02"
	if len(slices) > 0 && slices[len(slices)-1][1]-slices[0][0] < 3*core.MSecsDay {
		format = "01-02 15:04"
	}
	res := make([]string, len(slices))
	for i, sl := range slices {
		res[i] = btime.ToDateStr(sl[0], format)
	}
	return res
}

// famColNames 给定指标族的全部输出列名
func famColNames(fams []string) []string {
	res := make([]string, 0, 24)
	for _, fam := range fams {
		def := ind.GetFamily(fam)
		if def == nil {
			continue
		}
		for _, col := range def.Cols() {
			res = append(res, col.Name)
		}
	}
	return res
}

/*
coverMatrix 计算覆盖率矩阵：行=标的×周期，列=时间段。
每段的覆盖率为非NULL单元格数 / (可用K线段数×列数)；无原始数据的段
不要求有值，记为满覆盖。预热期单元格计入未覆盖，首段比例偏低属预期，
精确的缺口数以gaps表为准。
*/
func coverMatrix(sess *orm.Queries, exsList []*orm.ExSymbol, tfs, cols []string,
	slices [][2]int64) ([]string, [][]float64, *errs.Error) {
	rowNames := make([]string, 0, len(exsList)*len(tfs))
	data := make([][]float64, 0, len(exsList)*len(tfs))
	for _, exs := range exsList {
		for _, tf := range tfs {
			tbl, err := orm.IndTable(tf)
			if err != nil {
				return nil, nil, err
			}
			tfMSecs := utils.TFToMSecs(tf)
			row := make([]float64, len(slices))
			for i, sl := range slices {
				buckets, err := sess.GetKlineBuckets(exs.ID, tfMSecs, sl[0], sl[1])
				if err != nil {
					return nil, nil, err
				}
				if len(buckets) == 0 {
					row[i] = 1
					continue
				}
				_, counts, err := sess.ColCoverage(tbl, exs.ID, cols, sl[0], sl[1])
				if err != nil {
					return nil, nil, err
				}
				var nonNull int64
				for _, cnt := range counts {
					nonNull += cnt
				}
				ratio := float64(nonNull) / float64(int64(len(buckets))*int64(len(cols)))
				row[i] = min(ratio, 1)
			}
			rowNames = append(rowNames, exs.Symbol+" "+tf)
			data = append(data, row)
		}
	}
	return rowNames, data, nil
}

func writeReportXlsx(sess *orm.Queries, outPath string, labels, rowNames []string,
	data [][]float64, exsList []*orm.ExSymbol, tfs, fams []string) *errs.Error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()
	sheet := "coverage"
	err_ := f.SetSheetName("Sheet1", sheet)
	if err_ != nil {
		return errs.New(core.ErrIOWriteFail, err_)
	}
	head := make([]interface{}, 0, len(labels)+1)
	head = append(head, "Pair TF")
	for _, lb := range labels {
		head = append(head, lb)
	}
	_ = f.SetSheetRow(sheet, "A1", &head)
	for i, name := range rowNames {
		row := make([]interface{}, 0, len(data[i])+1)
		row = append(row, name)
		for _, v := range data[i] {
			row = append(row, math.Round(v*10000)/10000)
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = f.SetSheetRow(sheet, cell, &row)
	}

	gapSheet := "gaps"
	_, err_ = f.NewSheet(gapSheet)
	if err_ != nil {
		return errs.New(core.ErrIOWriteFail, err_)
	}
	gapHead := []interface{}{"Pair", "TF", "Family", "Scan", "Missing", "Warm Bound", "First Gap", "Last Gap"}
	_ = f.SetSheetRow(gapSheet, "A1", &gapHead)
	rowId := 2
	for _, exs := range exsList {
		for _, tf := range tfs {
			for _, fam := range fams {
				rep, err := fill.Detect(sess, exs.Symbol, tf, fam)
				if err != nil {
					return err
				}
				cells := gapRow(rep)
				row := make([]interface{}, 0, len(cells))
				for _, txt := range cells {
					row = append(row, txt)
				}
				cell, _ := excelize.CoordinatesToCellName(1, rowId)
				_ = f.SetSheetRow(gapSheet, cell, &row)
				rowId += 1
			}
		}
	}

	holeSheet := "holes"
	_, err_ = f.NewSheet(holeSheet)
	if err_ != nil {
		return errs.New(core.ErrIOWriteFail, err_)
	}
	holeHead := []interface{}{"Pair", "TF", "Start", "Stop", "NoData"}
	_ = f.SetSheetRow(holeSheet, "A1", &holeHead)
	rowId = 2
	for _, exs := range exsList {
		holes, _, err := sess.FindKHoles(orm.FindKHolesArgs{Sid: exs.ID, Limit: 1000})
		if err != nil {
			return err
		}
		for _, hole := range holes {
			row := []interface{}{exs.Symbol, hole.Timeframe, btime.ToDateStr(hole.Start, ""),
				btime.ToDateStr(hole.Stop, ""), hole.NoData}
			cell, _ := excelize.CoordinatesToCellName(1, rowId)
			_ = f.SetSheetRow(holeSheet, cell, &row)
			rowId += 1
		}
	}
	err_ = f.SaveAs(outPath)
	if err_ != nil {
		return errs.New(core.ErrIOWriteFail, err_)
	}
	return nil
}
