package web

import (
	"math"
	"sort"

	utils2 "github.com/banbox/banexg/utils"
	"github.com/banbox/banind/config"
	"github.com/banbox/banind/ind"
	"github.com/banbox/banind/utils"
	ta "github.com/banbox/banta"
	"github.com/gofiber/fiber/v2"
)

type Figure struct {
	Key       string  `json:"key"`   // sma_20
	Title     string  `json:"title"` // Sma20:
	Type      string  `json:"type"`  // tag/line
	BaseValue float64 `json:"baseValue"`
}

/*
DrawInd 图表预览指标。与入库计算共用注册表的族名和周期，预览值由banta
逐K线递推得出，链式族的起始收敛路径与入库值可能存在微小差异。
*/
type DrawInd struct {
	Name       string
	Title      string
	IsMain     bool
	CalcParams []float64
	Figures    []*Figure
	doCalc     func(e *ta.BarEnv, params []float64) []float64
}

type famStyle struct {
	Title  string
	IsMain bool
	calc   func(e *ta.BarEnv, p int) float64
}

var famDraw = map[string]*famStyle{
	"sma": {"SMA 简单均线", true, func(e *ta.BarEnv, p int) float64 {
		return ta.SMA(e.Close, p).Get(0)
	}},
	"stddev": {"StdDev 标准差", false, func(e *ta.BarEnv, p int) float64 {
		return ta.StdDev(e.Close, p).Get(0)
	}},
	"vwma": {"VWMA 量加权均线", true, func(e *ta.BarEnv, p int) float64 {
		return ta.VWMA(e.Close, e.Volume, p).Get(0)
	}},
	"stoch": {"Stoch 随机值%K", false, calcStoch},
	"willr": {"WillR 威廉指标", false, calcWillR},
	"cmf":   {"CMF 资金流量", false, calcCmf},
	"roc": {"ROC 变动率", false, func(e *ta.BarEnv, p int) float64 {
		return ta.ROC(e.Close, p).Get(0)
	}},
	"ema": {"EMA 指数均线", true, func(e *ta.BarEnv, p int) float64 {
		return ta.EMA(e.Close, p).Get(0)
	}},
	"rma": {"RMA 滚动均线", true, func(e *ta.BarEnv, p int) float64 {
		return ta.RMA(e.Close, p).Get(0)
	}},
	"rsi": {"RSI 相对强弱", false, func(e *ta.BarEnv, p int) float64 {
		return ta.RSI(e.Close, p).Get(0)
	}},
	"atr": {"ATR 平均真实振幅", false, func(e *ta.BarEnv, p int) float64 {
		return ta.ATR(e.High, e.Low, e.Close, p).Get(0)
	}},
}

func calcStoch(e *ta.BarEnv, p int) float64 {
	hh := ta.Highest(e.High, p).Get(0)
	ll := ta.Lowest(e.Low, p).Get(0)
	if math.IsNaN(hh) || math.IsNaN(ll) {
		return math.NaN()
	}
	if hh == ll {
		// 窗口内价格无波动时取中值，与入库口径一致
		return 50
	}
	return (e.Close.Get(0) - ll) / (hh - ll) * 100
}

func calcWillR(e *ta.BarEnv, p int) float64 {
	hh := ta.Highest(e.High, p).Get(0)
	ll := ta.Lowest(e.Low, p).Get(0)
	if math.IsNaN(hh) || math.IsNaN(ll) {
		return math.NaN()
	}
	if hh == ll {
		return -50
	}
	return (hh - e.Close.Get(0)) / (hh - ll) * -100
}

func calcCmf(e *ta.BarEnv, p int) float64 {
	var mfvSum, volSum float64
	for i := 0; i < p; i++ {
		h, l, c, v := e.High.Get(i), e.Low.Get(i), e.Close.Get(i), e.Volume.Get(i)
		if math.IsNaN(c) {
			return math.NaN()
		}
		if h > l {
			mfvSum += ((c - l) - (h - c)) / (h - l) * v
		}
		volSum += v
	}
	if volSum == 0 {
		return 0
	}
	return mfvSum / volSum
}

func perParam(fn func(e *ta.BarEnv, p int) float64) func(e *ta.BarEnv, params []float64) []float64 {
	return func(e *ta.BarEnv, params []float64) []float64 {
		res := make([]float64, len(params))
		for i, p := range params {
			res[i] = fn(e, int(p))
		}
		return res
	}
}

var (
	baseInds  = map[string]*DrawInd{}
	indsCache = make([]map[string]interface{}, 0)
)

func init() {
	for _, fam := range ind.AllFamilies() {
		style, ok := famDraw[fam.Name]
		if !ok {
			continue
		}
		params := make([]float64, len(fam.Periods))
		for i, p := range fam.Periods {
			params[i] = float64(p)
		}
		figures := make([]*Figure, 0, len(fam.Periods))
		for _, col := range fam.Cols() {
			title := utils.SnakeToCamel(col.Name) + ": "
			figures = append(figures, &Figure{Key: col.Name, Title: title, Type: "line"})
		}
		item := &DrawInd{
			Name:       fam.Name,
			Title:      style.Title,
			IsMain:     style.IsMain,
			CalcParams: params,
			Figures:    figures,
			doCalc:     perParam(style.calc),
		}
		baseInds[fam.Name] = item
		indsCache = append(indsCache, item.ToMap())
	}

	sort.Slice(indsCache, func(i, j int) bool {
		a := indsCache[i]["name"].(string)
		b := indsCache[j]["name"].(string)
		return a < b
	})
}

func calcDrawInd(name string, kline [][]float64, params []float64) ([]map[string]float64, error) {
	item, ok := baseInds[name]
	if !ok {
		return nil, &fiber.Error{
			Code:    fiber.StatusBadRequest,
			Message: "unsupported indicator: " + name,
		}
	}
	return item.Calc(kline, params)
}

func (d *DrawInd) Calc(kline [][]float64, params []float64) ([]map[string]float64, error) {
	if len(kline) < 2 {
		return nil, nil
	}
	if len(params) == 0 {
		params = d.CalcParams
	}
	keys := make([]string, len(params))
	for i, p := range params {
		keys[i] = ind.ColName(d.Name, int(p))
	}
	tfMSecs := int64(kline[1][0] - kline[0][0])
	timeFrame := utils2.SecsToTF(int(tfMSecs / 1000))

	var env = &ta.BarEnv{
		TimeFrame:  timeFrame,
		TFMSecs:    tfMSecs,
		Exchange:   config.Exchange,
		MarketType: config.Market,
	}
	res := make([]map[string]float64, 0, len(kline))
	for _, k := range kline {
		var info = float64(0)
		if len(k) > 6 {
			info = k[6]
		}
		err := env.OnBar(int64(k[0]), k[1], k[2], k[3], k[4], k[5], info)
		if err != nil {
			return nil, err
		}
		arr := d.doCalc(env, params)
		data := make(map[string]float64)
		for i, v := range arr {
			if math.IsInf(v, 0) || math.IsNaN(v) {
				continue
			}
			data[keys[i]] = v
		}
		res = append(res, data)
	}
	return res, nil
}

func (d *DrawInd) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"name":       d.Name,
		"title":      d.Title,
		"is_main":    d.IsMain,
		"calcParams": d.CalcParams,
		"figures":    d.Figures,
	}
}
