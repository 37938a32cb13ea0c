package ormu

import (
	"context"
	"database/sql"
)

// Run 一次补算任务的持久记录，对应sqlite的runs表
type Run struct {
	ID       int64   `json:"id"`
	Mode     string  `json:"mode"`     // manual/cron/api
	Args     string  `json:"args"`     // 启动参数
	Config   string  `json:"config"`   // yaml配置快照
	Pairs    string  `json:"pairs"`    // 逗号分隔的标的列表
	Periods  string  `json:"periods"`  // 逗号分隔的时间周期
	Inds     string  `json:"inds"`     // 逗号分隔的指标族
	CreateAt int64   `json:"createAt"` // 13位毫秒
	StartAt  int64   `json:"startAt"`
	StopAt   int64   `json:"stopAt"`
	Status   int64   `json:"status"`
	Progress float64 `json:"progress"` // 0~1
	ScanNum  int64   `json:"scanNum"`  // 扫描的单元格数
	GapNum   int64   `json:"gapNum"`   // 发现的缺口单元格数
	FillNum  int64   `json:"fillNum"`  // 实际写入的单元格数
	SkipNum  int64   `json:"skipNum"`  // 校验一致而跳过的单元格数
	BadNum   int64   `json:"badNum"`   // 校验不一致被覆盖的单元格数
	Info     string  `json:"info"`
	Note     string  `json:"note"`
}

type Queries struct {
	db DBTX
}

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}
