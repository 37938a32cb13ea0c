package orm

type ExSymbol struct {
	ID       int32  `json:"id"`
	Exchange string `json:"exchange"`
	Market   string `json:"market"`
	Symbol   string `json:"symbol"`
	ListMs   int64  `json:"listMs"`   // 13位毫秒，首个K线时间
	DelistMs int64  `json:"delistMs"` // 13位毫秒，退市时间，0表示未退市
}

type KInfo struct {
	Sid       int32  `json:"sid"`
	Timeframe string `json:"timeframe"`
	Start     int64  `json:"start"`
	Stop      int64  `json:"stop"`
}

type KHole struct {
	ID        int64  `json:"id"`
	Sid       int32  `json:"sid"`
	Timeframe string `json:"timeframe"`
	Start     int64  `json:"start"`
	Stop      int64  `json:"stop"`
	NoData    bool   `json:"noData"` // true表示数据源确认无数据，非下载缺失
}

// IndRow 指标表的一行，Vals与给定列顺序一一对应，nil表示数据库NULL
type IndRow struct {
	Time int64
	Vals []*float64
}

type AddSymbolsParams struct {
	Exchange string
	Market   string
	Symbol   string
}
