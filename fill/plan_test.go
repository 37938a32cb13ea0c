package fill

import (
	"testing"

	"github.com/banbox/banind/core"
)

// hourGrid 构造从baseMS开始的连续1h网格
func hourGrid(num int) []int64 {
	res := make([]int64, num)
	for i := range res {
		res[i] = baseMS + int64(i)*core.MSecsHour
	}
	return res
}

func TestPlanWindowMerge(t *testing.T) {
	g := func(i int) int64 { return baseMS + int64(i)*core.MSecsHour }
	rep := &GapReport{
		Sid: 1, TimeFrame: "1h", Family: "stoch",
		Grid:    hourGrid(200),
		Missing: []int64{g(50), g(52), g(120)},
	}
	tasks, err := Plan(rep, false)
	if err != nil {
		t.Fatalf("plan fail: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("task num expected: 2, received %v", len(tasks))
	}
	// stoch_14回看13格，相邻缺口的回看范围接触则合并
	t0 := tasks[0]
	if t0.SourceStart != g(37) || t0.SourceEnd != g(53) {
		t.Errorf("task0 range expected: [%v, %v), received [%v, %v)", g(37), g(53), t0.SourceStart, t0.SourceEnd)
	}
	if len(t0.Targets) != 2 || t0.Targets[0] != g(50) || t0.Targets[1] != g(52) {
		t.Errorf("task0 targets expected: [%v %v], received %v", g(50), g(52), t0.Targets)
	}
	if t0.FullHistory || t0.Force {
		t.Errorf("window task should not be full-history or forced")
	}
	t1 := tasks[1]
	if t1.SourceStart != g(107) || t1.SourceEnd != g(121) {
		t.Errorf("task1 range expected: [%v, %v), received [%v, %v)", g(107), g(121), t1.SourceStart, t1.SourceEnd)
	}
	if len(t1.Targets) != 1 || t1.Targets[0] != g(120) {
		t.Errorf("task1 targets expected: [%v], received %v", g(120), t1.Targets)
	}
	// 回看超出历史起点时截断到首个可用周期
	rep.Missing = []int64{g(10)}
	tasks, err = Plan(rep, false)
	if err != nil {
		t.Fatalf("plan fail: %v", err)
	}
	if len(tasks) != 1 || tasks[0].SourceStart != g(0) {
		t.Errorf("clamped start expected: %v, received %+v", g(0), tasks[0])
	}
}

func TestPlanChainFull(t *testing.T) {
	grid := make([]int64, 100)
	for i := range grid {
		grid[i] = baseMS + int64(i)*core.MSecsMin
	}
	rep := &GapReport{
		Sid: 1, TimeFrame: "1m", Family: "ema",
		Grid:    grid,
		Missing: []int64{baseMS + 70*core.MSecsMin},
	}
	tasks, err := Plan(rep, false)
	if err != nil {
		t.Fatalf("plan fail: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("task num expected: 1, received %v", len(tasks))
	}
	// 链式缺口需从历史起点全量重算，目标仍只含缺失单元格
	task := tasks[0]
	if !task.FullHistory {
		t.Errorf("chain task should be full-history")
	}
	if task.SourceStart != grid[0] || task.SourceEnd != grid[99]+core.MSecsMin {
		t.Errorf("source range expected: [%v, %v), received [%v, %v)",
			grid[0], grid[99]+core.MSecsMin, task.SourceStart, task.SourceEnd)
	}
	if len(task.Targets) != 1 || task.Targets[0] != rep.Missing[0] {
		t.Errorf("targets expected: %v, received %v", rep.Missing, task.Targets)
	}
}

func TestPlanForceAndEmpty(t *testing.T) {
	rep := &GapReport{Sid: 1, TimeFrame: "1h", Family: "sma", Grid: hourGrid(50)}
	// 无缺失且非强制时无任务
	tasks, err := Plan(rep, false)
	if err != nil || len(tasks) != 0 {
		t.Errorf("no-gap plan expected no tasks, received %v %v", tasks, err)
	}
	// 强制重载覆盖整个网格
	tasks, err = Plan(rep, true)
	if err != nil {
		t.Fatalf("plan fail: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("force task num expected: 1, received %v", len(tasks))
	}
	task := tasks[0]
	if !task.Force || task.FullHistory {
		t.Errorf("forced window task flags wrong: %+v", task)
	}
	if len(task.Targets) != 50 || task.SourceStart != rep.Grid[0] || task.SourceEnd != rep.Grid[49]+core.MSecsHour {
		t.Errorf("forced task should cover whole grid, received %+v", task)
	}
	// 链式族强制重载仍是全量递推
	rep.Family = "rsi"
	tasks, err = Plan(rep, true)
	if err != nil {
		t.Fatalf("plan fail: %v", err)
	}
	if len(tasks) != 1 || !tasks[0].FullHistory || !tasks[0].Force {
		t.Errorf("forced chain task flags wrong: %+v", tasks[0])
	}
	// 空网格无任务
	tasks, err = Plan(&GapReport{TimeFrame: "1h", Family: "sma"}, true)
	if err != nil || len(tasks) != 0 {
		t.Errorf("empty grid plan expected no tasks, received %v %v", tasks, err)
	}
}
