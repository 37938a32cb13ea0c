package core

import (
	"context"
)

var (
	AppName   string // 当前应用名称
	RunEnv    string // prod/test
	StartAt   int64  // 启动时间，13位时间戳
	RunDbPath string // 任务记录sqlite的路径
	Ctx       context.Context
	StopAll   func()
	ExitCalls []func()
	NoDB      bool
)

// AllTFs 支持维护的时间周期，从小到大排列，首个为原始K线周期
var AllTFs = []string{"1m", "15m", "1h", "4h", "1d"}

const (
	// StepTotal 进度条的满格步数，子任务进度按此比例换算
	StepTotal = 1000
)

const (
	SecsMin  = 60
	SecsHour = SecsMin * 60
	SecsDay  = SecsHour * 24
	SecsWeek = SecsDay * 7
	SecsMon  = SecsDay * 30
	SecsYear = SecsDay * 365
)

const (
	MSecsMin  = int64(SecsMin * 1000)
	MSecsHour = int64(SecsHour * 1000)
	MSecsDay  = int64(SecsDay * 1000)
)

const (
	MSMinStamp = 157766400000 // 1975-01-01T00:00:00.000Z
)

const (
	MaxInsertNum   = 5000 // 单次批量写入数据库的最大行数
	DefaultDateFmt = "2006-01-02 15:04:05"
)

const (
	RunEnvProd = "prod"
	RunEnvTest = "test"
)

func SetRunEnv(env string) {
	if env == "" {
		env = RunEnvTest
	}
	RunEnv = env
}
