package fill

import (
	"github.com/banbox/banind/ind"
)

// 任务状态机的各状态，按推进顺序排列
const (
	StateIdle      = "idle"
	StatePlanning  = "planning"
	StateExecuting = "executing"
	StateWriting   = "writing"
	StateVerifying = "verifying"
	StateDone      = "done"
	StateFailed    = "failed"
)

/*
ColGap 单个指标列的缺失明细。
WarmTS是该列首个要求有值的时间戳，之前的NULL属于自然预热，不计入缺失。
*/
type ColGap struct {
	Col     *ind.ColDef
	WarmTS  int64
	Missing []int64
}

/*
GapReport 一次缺口扫描的结果，每次调用现算，不持久化。
Missing是族内各列缺失时间戳的并集，升序；WarmBoundary是族内全部列都
要求有值的首个时间戳；Grid是扫描时可推导的周期开始时间戳全集。
*/
type GapReport struct {
	Symbol       string    `json:"symbol"`
	Sid          int32     `json:"sid"`
	TimeFrame    string    `json:"timeFrame"`
	Family       string    `json:"family"`
	WarmBoundary int64     `json:"warmBoundary"`
	Missing      []int64   `json:"missing"`
	Cols         []*ColGap `json:"-"`
	Grid         []int64   `json:"-"`
	ScanNum      int64     `json:"scanNum"`
}

/*
RecomputeTask 一次重算任务，由规划器产出、执行器立即消费，不持久化。
SourceStart/SourceEnd是所需原始数据的毫秒范围，左闭右开；
Targets是需要写入的周期开始时间戳，升序；
FullHistory为true时表示链式递推必须从历史起点全量重算。
*/
type RecomputeTask struct {
	Sid         int32
	TimeFrame   string
	Family      string
	SourceStart int64
	SourceEnd   int64
	Targets     []int64
	FullHistory bool
	Force       bool
}

/*
RunResult 单次(交易对,周期,指标族)任务的最终结果
*/
type RunResult struct {
	ID        string `json:"id"`
	Symbol    string `json:"symbol"`
	TimeFrame string `json:"timeFrame"`
	Family    string `json:"family"`
	State     string `json:"state"`
	// ScanNum 检测阶段扫描的单元格总数
	ScanNum int64 `json:"scanNum"`
	// GapNum 检测到的缺失单元格数
	GapNum int64 `json:"gapNum"`
	// RowsWritten 实际写入的行数
	RowsWritten int64 `json:"rowsWritten"`
	// SkipNum 全量重算中复核一致后跳过未写的单元格数
	SkipNum int64 `json:"skipNum"`
	// BadNum 复核不一致的单元格数，非0必然伴随失败状态
	BadNum int64 `json:"badNum"`
	// GapsRemaining 写入后复检仍缺失的单元格数，非0表示硬性失败
	GapsRemaining int64 `json:"gapsRemaining"`
	StartMS       int64 `json:"startMS"`
	CostMS        int64 `json:"costMS"`
}

/*
RunArgs 发起一次任务的参数。
ForceReload为true时跳过缺口检测，对整个序列全量重算并覆盖写入。
*/
type RunArgs struct {
	Symbol      string
	TimeFrame   string
	Family      string
	ForceReload bool
	// Prg 可选的进度回调，stage取plan/calc/write/verify
	Prg func(stage string, rate float64)
	// OnBatch 每个批次提交后回调，测试和进度推送使用
	OnBatch func(dayMS int64, rows int)
}
