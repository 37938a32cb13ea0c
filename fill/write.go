package fill

import (
	"fmt"
	"time"

	"github.com/banbox/banexg/errs"
	"github.com/banbox/banexg/log"
	"github.com/banbox/banind/btime"
	"github.com/banbox/banind/config"
	"github.com/banbox/banind/core"
	"github.com/banbox/banind/orm"
	"go.uber.org/zap"
)

type writeBatch struct {
	dayMS int64
	rows  []*orm.IndRow
}

/*
WriteRows 把执行器输出按UTC自然日分批、自旧向新写入存储。

每批一个事务覆盖写入，重复执行结果不变；中断最多丢失一个未提交批次，
且已提交的批次总是时间上连续的前缀，下次任务的缺口检测即可发现并补齐
未完成的尾部。瞬时存储错误按配置的等待序列在批边界重试；计算是纯函数
输出，从不在中途重试。全局上下文取消只在批之间生效。
*/
func WriteRows(store IStore, sid int32, timeFrame string, cols []string, rows []*orm.IndRow,
	onBatch func(dayMS int64, num int), prg func(rate float64)) (int64, *errs.Error) {
	if len(rows) == 0 {
		return 0, nil
	}
	var batches []*writeBatch
	var cur *writeBatch
	for _, row := range rows {
		dayMS := btime.AlignDayMS(row.Time)
		if cur == nil || cur.dayMS != dayMS {
			cur = &writeBatch{dayMS: dayMS}
			batches = append(batches, cur)
		}
		cur.rows = append(cur.rows, row)
	}
	maxRetry, waits := 4, []int64(nil)
	if cfg := config.Retry; cfg != nil {
		maxRetry = cfg.MaxRetry
		waits = cfg.Waits
	}
	retry := btime.NewRetryWaits(0, waits)
	retryKey := fmt.Sprintf("%v:%v", sid, timeFrame)
	var written int64
	for i, b := range batches {
		if core.Ctx != nil && core.Ctx.Err() != nil {
			return written, errs.NewMsg(core.ErrRunTime, "terminated")
		}
		var err *errs.Error
		for {
			err = store.WriteBatch(sid, timeFrame, cols, b.rows)
			if err == nil {
				retry.Reset(retryKey)
				break
			}
			if !isTransientDb(err.Code) || retry.FailNum(retryKey) >= maxRetry {
				break
			}
			wait := retry.SetFail(retryKey)
			log.Warn("batch write failed, will retry", zap.Int32("sid", sid),
				zap.String("tf", timeFrame), zap.String("day", btimeStr(b.dayMS)),
				zap.Int("fails", retry.FailNum(retryKey)), zap.Int64("waitMS", wait), zap.String("err", err.Short()))
			if !core.Sleep(time.Duration(wait) * time.Millisecond) {
				return written, errs.NewMsg(core.ErrRunTime, "terminated")
			}
		}
		if err != nil {
			return written, err
		}
		written += int64(len(b.rows))
		if onBatch != nil {
			onBatch(b.dayMS, len(b.rows))
		}
		if prg != nil {
			prg(float64(i+1) / float64(len(batches)))
		}
	}
	return written, nil
}

// isTransientDb 判断错误码是否属于可在批边界重试的瞬时存储错误
func isTransientDb(code int) bool {
	return code == core.ErrDbConnFail || code == core.ErrDbReadFail || code == core.ErrDbExecFail
}
