package btime

import (
	"math"

	"github.com/sasha-s/go-deadlock"
)

/*
RetryWaits 按键记录连续失败次数，返回递增的等待时长。
用于数据库写入等可重试操作的退避控制。
*/
type RetryWaits struct {
	fails  map[string]int
	sleeps []int64 // milliseconds
	lock   deadlock.Mutex
}

// NewRetryWaits waits is array of sleep milliseconds while fail
func NewRetryWaits(rate float64, waits []int64) *RetryWaits {
	if len(waits) == 0 {
		waits = []int64{500, 1000, 2000, 4000, 8000}
	}
	res := &RetryWaits{
		fails: make(map[string]int),
	}
	for _, v := range waits {
		if v <= 0 {
			continue
		}
		if rate > 0 {
			v = int64(math.Round(float64(v) * rate))
		}
		res.sleeps = append(res.sleeps, v)
	}
	return res
}

/*
SetFail 记录一次失败，返回本次应等待的毫秒数
*/
func (r *RetryWaits) SetFail(key string) int64 {
	r.lock.Lock()
	num, _ := r.fails[key]
	r.fails[key] = num + 1
	if num >= len(r.sleeps) {
		num = len(r.sleeps) - 1
	}
	wait := r.sleeps[num]
	r.lock.Unlock()
	return wait
}

func (r *RetryWaits) FailNum(key string) int {
	r.lock.Lock()
	num, _ := r.fails[key]
	r.lock.Unlock()
	return num
}

func (r *RetryWaits) Reset(key string) {
	r.lock.Lock()
	delete(r.fails, key)
	r.lock.Unlock()
}
