package ind

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/banbox/banexg"
	"github.com/banbox/banexg/errs"
	"github.com/banbox/banind/core"
)

const (
	KindWindow = "window"
	KindChain  = "chain"
)

type CalcFunc func(bars []*banexg.Kline, period int) []float64

/*
IndDef 指标族定义。
Kind为window的族只依赖固定行数的窗口，可局部重算；
Kind为chain的族依赖前一行的递推值，任何缺口都需从历史起点全量重算。
Warm返回周期p下首个有值单元格的下标(0起始)，同时也是窗口重算需回看的行数。
LookbackMult与周期的乘积为回看行数：窗口族恰为周期本身；链式族为收敛下界，
重算始终走全量历史，该值仅用于历史充足性提示。
*/
type IndDef struct {
	Name         string
	Kind         string
	Periods      []int
	Warm         func(period int) int
	LookbackMult int
	Calc         CalcFunc
}

// ColDef 单个输出列，如sma_20
type ColDef struct {
	Fam    *IndDef
	Period int
	Name   string
}

func warmWin(p int) int { return p - 1 }

func warmFull(p int) int { return p }

// famList的顺序即数据表的列顺序
var famList = []*IndDef{
	{Name: "sma", Kind: KindWindow, Periods: []int{5, 10, 20, 30, 60}, Warm: warmWin, LookbackMult: 1, Calc: Sma},
	{Name: "stddev", Kind: KindWindow, Periods: []int{20, 30}, Warm: warmWin, LookbackMult: 1, Calc: StdDev},
	{Name: "vwma", Kind: KindWindow, Periods: []int{10, 20}, Warm: warmWin, LookbackMult: 1, Calc: Vwma},
	{Name: "stoch", Kind: KindWindow, Periods: []int{14}, Warm: warmWin, LookbackMult: 1, Calc: StochK},
	{Name: "willr", Kind: KindWindow, Periods: []int{14}, Warm: warmWin, LookbackMult: 1, Calc: WillR},
	{Name: "cmf", Kind: KindWindow, Periods: []int{20}, Warm: warmWin, LookbackMult: 1, Calc: Cmf},
	{Name: "roc", Kind: KindWindow, Periods: []int{12}, Warm: warmFull, LookbackMult: 1, Calc: Roc},
	{Name: "ema", Kind: KindChain, Periods: []int{5, 12, 26, 60}, Warm: warmFull, LookbackMult: 10, Calc: Ema},
	{Name: "rma", Kind: KindChain, Periods: []int{14, 30}, Warm: warmFull, LookbackMult: 10, Calc: Rma},
	{Name: "rsi", Kind: KindChain, Periods: []int{6, 14, 24}, Warm: warmFull, LookbackMult: 10, Calc: Rsi},
	{Name: "atr", Kind: KindChain, Periods: []int{14, 30}, Warm: warmFull, LookbackMult: 10, Calc: Atr},
}

var famMap = make(map[string]*IndDef)

func init() {
	for _, d := range famList {
		famMap[d.Name] = d
	}
}

func AllFamilies() []*IndDef {
	return famList
}

func GetFamily(name string) *IndDef {
	return famMap[name]
}

/*
ActiveDefs 按配置的族名称过滤指标族；传入为空时返回全部
*/
func ActiveDefs(names []string) ([]*IndDef, *errs.Error) {
	if len(names) == 0 {
		return famList, nil
	}
	nameSet := make(map[string]bool)
	for _, n := range names {
		nameSet[n] = true
		if _, ok := famMap[n]; !ok {
			return nil, errs.NewMsg(core.ErrBadIndicator, "unknown indicator family: %s", n)
		}
	}
	res := make([]*IndDef, 0, len(names))
	for _, d := range famList {
		if nameSet[d.Name] {
			res = append(res, d)
		}
	}
	return res, nil
}

func ColName(fam string, period int) string {
	return fmt.Sprintf("%s_%d", fam, period)
}

func (d *IndDef) Cols() []*ColDef {
	res := make([]*ColDef, 0, len(d.Periods))
	for _, p := range d.Periods {
		res = append(res, &ColDef{Fam: d, Period: p, Name: ColName(d.Name, p)})
	}
	return res
}

// Lookback 周期p的回看行数
func (d *IndDef) Lookback(p int) int {
	return d.LookbackMult * p
}

/*
ActiveCols 返回给定指标族的全部输出列，保持famList中的列顺序
*/
func ActiveCols(names []string) ([]*ColDef, *errs.Error) {
	defs, err := ActiveDefs(names)
	if err != nil {
		return nil, err
	}
	var res []*ColDef
	for _, d := range defs {
		res = append(res, d.Cols()...)
	}
	return res, nil
}

func AllColNames() []string {
	var res []string
	for _, d := range famList {
		for _, p := range d.Periods {
			res = append(res, ColName(d.Name, p))
		}
	}
	return res
}

/*
ParseCol 解析sma_20形式的列名
*/
func ParseCol(col string) (*ColDef, *errs.Error) {
	idx := strings.LastIndex(col, "_")
	if idx <= 0 || idx+1 >= len(col) {
		return nil, errs.NewMsg(core.ErrBadIndicator, "invalid indicator column: %s", col)
	}
	fam, ok := famMap[col[:idx]]
	if !ok {
		return nil, errs.NewMsg(core.ErrBadIndicator, "unknown indicator family: %s", col[:idx])
	}
	period, err_ := strconv.Atoi(col[idx+1:])
	if err_ != nil {
		return nil, errs.NewMsg(core.ErrBadIndicator, "invalid indicator period: %s", col)
	}
	for _, p := range fam.Periods {
		if p == period {
			return &ColDef{Fam: fam, Period: period, Name: col}, nil
		}
	}
	return nil, errs.NewMsg(core.ErrBadIndicator, "period %v not enabled for %s", period, fam.Name)
}

/*
MaxWindowLookback 窗口类列局部重算前需回看的最大行数
*/
func MaxWindowLookback(cols []*ColDef) int {
	res := 0
	for _, c := range cols {
		if c.Fam.Kind != KindWindow {
			continue
		}
		if num := c.Fam.Warm(c.Period); num > res {
			res = num
		}
	}
	return res
}

func HasChain(cols []*ColDef) bool {
	for _, c := range cols {
		if c.Fam.Kind == KindChain {
			return true
		}
	}
	return false
}

func SplitKinds(cols []*ColDef) ([]*ColDef, []*ColDef) {
	var wins, chains []*ColDef
	for _, c := range cols {
		if c.Fam.Kind == KindChain {
			chains = append(chains, c)
		} else {
			wins = append(wins, c)
		}
	}
	return wins, chains
}
