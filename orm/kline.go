package orm

import (
	"context"
	"fmt"
	"strings"

	"github.com/banbox/banexg"
	"github.com/banbox/banexg/errs"
	"github.com/banbox/banexg/log"
	"github.com/banbox/banind/core"
	"github.com/banbox/banind/utils"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const klineInsConflict = `
ON CONFLICT (sid, time)
DO UPDATE SET
open = EXCLUDED.open,
high = EXCLUDED.high,
low = EXCLUDED.low,
close = EXCLUDED.close,
volume = EXCLUDED.volume,
info = EXCLUDED.info`

/*
QueryOHLCV 查询指定标的给定周期的K线。

1m直接从原始表读取；更大周期从1m按固定纪元网格在内存聚合，
首尾未被1m数据完整覆盖的周期不会返回。结果满足 startMS <= time < endMS。
*/
func (q *Queries) QueryOHLCV(sid int32, timeframe string, startMS, endMS int64) ([]*banexg.Kline, *errs.Error) {
	tfMSecs := utils.TFToMSecs(timeframe)
	if tfMSecs < core.MSecsMin {
		return nil, errs.NewMsg(core.ErrInvalidTF, "invalid tf: %s", timeframe)
	}
	readStart, readEnd := startMS, endMS
	if tfMSecs > core.MSecsMin {
		// 对齐到周期边界，保证首尾周期有完整的1m输入参与聚合
		readStart = utils.AlignBucketMS(startMS, tfMSecs)
		readEnd = utils.AlignBucketMS(endMS-1, tfMSecs) + tfMSecs
	}
	sqlStr := fmt.Sprintf(`
select time,open,high,low,close,volume from kline_1m
where sid=%d and time >= %v and time < %v
order by time`, sid, readStart, readEnd)
	rows, err_ := q.db.Query(context.Background(), sqlStr)
	klines, err_ := mapToKlines(rows, err_)
	if err_ != nil {
		return nil, NewDbErr(core.ErrDbReadFail, err_)
	}
	if tfMSecs == core.MSecsMin {
		return klines, nil
	}
	merged := utils.AggKlines(klines, core.MSecsMin, tfMSecs)
	res := make([]*banexg.Kline, 0, len(merged))
	for _, k := range merged {
		if k.Time >= startMS && k.Time < endMS {
			res = append(res, k)
		}
	}
	return res, nil
}

type KlineSid struct {
	banexg.Kline
	Sid int32
}

/*
QueryOHLCVBatch 批量查询多个标的的K线，每个标的聚合完成后回调handle。
*/
func (q *Queries) QueryOHLCVBatch(sids []int32, timeframe string, startMS, endMS int64, handle func(int32, []*banexg.Kline)) *errs.Error {
	if len(sids) == 0 {
		return nil
	}
	tfMSecs := utils.TFToMSecs(timeframe)
	if tfMSecs < core.MSecsMin {
		return errs.NewMsg(core.ErrInvalidTF, "invalid tf: %s", timeframe)
	}
	readStart, readEnd := startMS, endMS
	if tfMSecs > core.MSecsMin {
		readStart = utils.AlignBucketMS(startMS, tfMSecs)
		readEnd = utils.AlignBucketMS(endMS-1, tfMSecs) + tfMSecs
	}
	sidTA := make([]string, len(sids))
	for i, id := range sids {
		sidTA[i] = fmt.Sprintf("(%v)", id)
	}
	sidText := strings.Join(sidTA, ", ")
	sqlStr := fmt.Sprintf(`
select time,open,high,low,close,volume,sid from kline_1m
where time >= %v and time < %v and sid in (values %v)
order by sid,time`, readStart, readEnd, sidText)
	rows, err_ := q.db.Query(context.Background(), sqlStr)
	arrs, err_ := mapToItems(rows, err_, func() (*KlineSid, []any) {
		var i KlineSid
		return &i, []any{&i.Time, &i.Open, &i.High, &i.Low, &i.Close, &i.Volume, &i.Sid}
	})
	if err_ != nil {
		return NewDbErr(core.ErrDbReadFail, err_)
	}
	initCap := max(len(arrs)/len(sids), 16)
	flush := func(sid int32, kline []*banexg.Kline) {
		if sid == 0 || len(kline) == 0 {
			return
		}
		if tfMSecs > core.MSecsMin {
			merged := utils.AggKlines(kline, core.MSecsMin, tfMSecs)
			kline = make([]*banexg.Kline, 0, len(merged))
			for _, k := range merged {
				if k.Time >= startMS && k.Time < endMS {
					kline = append(kline, k)
				}
			}
		}
		if len(kline) > 0 {
			handle(sid, kline)
		}
	}
	var kline []*banexg.Kline
	curSid := int32(0)
	for _, k := range arrs {
		if k.Sid != curSid {
			flush(curSid, kline)
			curSid = k.Sid
			kline = make([]*banexg.Kline, 0, initCap)
		}
		kline = append(kline, &banexg.Kline{Time: k.Time, Open: k.Open, High: k.High, Low: k.Low,
			Close: k.Close, Volume: k.Volume})
	}
	flush(curSid, kline)
	return nil
}

func (q *Queries) getKLineTimes(sid int32, startMS, endMS int64) ([]int64, *errs.Error) {
	sqlStr := fmt.Sprintf(`
select time from kline_1m
where sid=%d and time >= %v and time < %v
order by time`, sid, startMS, endMS)
	rows, err_ := q.db.Query(context.Background(), sqlStr)
	res, err_ := mapToItems(rows, err_, func() (*int64, []any) {
		var t int64
		return &t, []any{&t}
	})
	if err_ != nil {
		return nil, NewDbErr(core.ErrDbReadFail, err_)
	}
	resList := make([]int64, len(res))
	for i, v := range res {
		resList[i] = *v
	}
	return resList, nil
}

/*
GetKlineBuckets 返回1m数据在指定周期网格上覆盖到的所有周期开始时间，升序。

只要周期内存在任一1m样本即视为覆盖，首尾不完整周期的裁剪由调用方处理。
*/
func (q *Queries) GetKlineBuckets(sid int32, tfMSecs, startMS, endMS int64) ([]int64, *errs.Error) {
	sqlStr := fmt.Sprintf(`
select distinct "time"/%d*%d as atime from kline_1m
where sid=%d and time >= %v and time < %v
order by atime`, tfMSecs, tfMSecs, sid, startMS, endMS)
	rows, err_ := q.db.Query(context.Background(), sqlStr)
	res, err_ := mapToItems(rows, err_, func() (*int64, []any) {
		var t int64
		return &t, []any{&t}
	})
	if err_ != nil {
		return nil, NewDbErr(core.ErrDbReadFail, err_)
	}
	resList := make([]int64, len(res))
	for i, v := range res {
		resList[i] = *v
	}
	return resList, nil
}

func (q *Queries) GetFirstKlineMS(sid int32) (int64, *errs.Error) {
	sqlStr := fmt.Sprintf("select coalesce(min(time), 0) from kline_1m where sid=%v", sid)
	row := q.db.QueryRow(context.Background(), sqlStr)
	var res int64
	err_ := row.Scan(&res)
	if err_ != nil {
		return 0, NewDbErr(core.ErrDbReadFail, err_)
	}
	return res, nil
}

func (q *Queries) GetLastKlineMS(sid int32) (int64, *errs.Error) {
	sqlStr := fmt.Sprintf("select coalesce(max(time), 0) from kline_1m where sid=%v", sid)
	row := q.db.QueryRow(context.Background(), sqlStr)
	var res int64
	err_ := row.Scan(&res)
	if err_ != nil {
		return 0, NewDbErr(core.ErrDbReadFail, err_)
	}
	return res, nil
}

// iterForAddKLines implements pgx.CopyFromSource.
type iterForAddKLines struct {
	rows                 []*KlineSid
	skippedFirstNextCall bool
}

func (r *iterForAddKLines) Next() bool {
	if len(r.rows) == 0 {
		return false
	}
	if !r.skippedFirstNextCall {
		r.skippedFirstNextCall = true
		return true
	}
	r.rows = r.rows[1:]
	return len(r.rows) > 0
}

func (r iterForAddKLines) Values() ([]interface{}, error) {
	return []interface{}{
		r.rows[0].Sid,
		r.rows[0].Time,
		r.rows[0].Open,
		r.rows[0].High,
		r.rows[0].Low,
		r.rows[0].Close,
		r.rows[0].Volume,
		r.rows[0].Info,
	}, nil
}

func (r iterForAddKLines) Err() error {
	return nil
}

/*
InsertKLines
只批量插入1mK线，如需同时更新关联信息，请使用InsertKLinesAuto
*/
func (q *Queries) InsertKLines(sid int32, arr []*banexg.Kline) (int64, *errs.Error) {
	var adds = make([]*KlineSid, len(arr))
	for i, v := range arr {
		adds[i] = &KlineSid{
			Kline: *v,
			Sid:   sid,
		}
	}
	ctx := context.Background()
	cols := []string{"sid", "time", "open", "high", "low", "close", "volume", "info"}
	num, err_ := q.db.CopyFrom(ctx, []string{"kline_1m"}, cols, &iterForAddKLines{rows: adds})
	if err_ != nil {
		return 0, NewDbErr(core.ErrDbExecFail, err_)
	}
	return num, nil
}

/*
InsertKLinesAuto
插入1mK线到数据库，同时调用UpdateKRange更新有效区间和空洞信息。
应该在事务中调用此方法，否则插入K线后立刻读取计算关联信息没有最新数据
*/
func (q *Queries) InsertKLinesAuto(sid int32, arr []*banexg.Kline) (int64, *errs.Error) {
	if len(arr) == 0 {
		return 0, nil
	}
	num, err := q.InsertKLines(sid, arr)
	if err != nil {
		return num, err
	}
	startMS := arr[0].Time
	endMS := arr[len(arr)-1].Time + core.MSecsMin
	err = q.UpdateKRange(sid, startMS, endMS)
	return num, err
}

/*
InsertKLinesConflict 批量写入1mK线，主键冲突时覆盖旧值，用于重复导入或修正数据。
*/
func (q *Queries) InsertKLinesConflict(sid int32, arr []*banexg.Kline) (int64, *errs.Error) {
	if len(arr) == 0 {
		return 0, nil
	}
	ctx := context.Background()
	var doneNum int64
	for start := 0; start < len(arr); start += core.MaxInsertNum {
		chunk := arr[start:min(start+core.MaxInsertNum, len(arr))]
		var b strings.Builder
		b.WriteString("insert into kline_1m (sid, time, open, high, low, close, volume, info) values ")
		params := make([]interface{}, 0, len(chunk)*8)
		for i, k := range chunk {
			if i > 0 {
				b.WriteString(", ")
			}
			pos := len(params)
			b.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
				pos+1, pos+2, pos+3, pos+4, pos+5, pos+6, pos+7, pos+8))
			params = append(params, sid, k.Time, k.Open, k.High, k.Low, k.Close, k.Volume, k.Info)
		}
		b.WriteString(klineInsConflict)
		_, err_ := q.db.Exec(ctx, b.String(), params...)
		if err_ != nil {
			return doneNum, NewDbErr(core.ErrDbExecFail, err_)
		}
		doneNum += int64(len(chunk))
	}
	err := q.UpdateKRange(sid, arr[0].Time, arr[len(arr)-1].Time+core.MSecsMin)
	return doneNum, err
}

/*
UpdateKRange
1. 更新1mK线的有效区间
2. 搜索空洞，更新Khole
*/
func (q *Queries) UpdateKRange(sid int32, startMS, endMS int64) *errs.Error {
	// 更新有效区间范围
	err := q.updateKLineRange(sid, startMS, endMS)
	if err != nil {
		return err
	}
	// 搜索空洞，更新khole
	return q.updateKHoles(sid, startMS, endMS)
}

func (q *Queries) updateKLineRange(sid int32, startMS, endMS int64) *errs.Error {
	sqlStr := fmt.Sprintf("select coalesce(min(time), 0),coalesce(max(time), 0) from kline_1m where sid=%v", sid)
	ctx := context.Background()
	row := q.db.QueryRow(ctx, sqlStr)
	var realStart, realEnd int64
	err_ := row.Scan(&realStart, &realEnd)
	if err_ != nil {
		return NewDbErr(core.ErrDbReadFail, err_)
	}
	if realStart == 0 || realEnd == 0 {
		return nil
	}
	realStart = min(realStart, startMS)
	realEnd = max(realEnd+core.MSecsMin, endMS)
	oldStart, _ := q.GetKlineRange(sid, "1m")
	if oldStart == 0 {
		err_ = q.AddKInfo(ctx, sid, "1m", realStart, realEnd)
	} else {
		err_ = q.SetKInfo(ctx, sid, "1m", realStart, realEnd)
	}
	if err_ != nil {
		return NewDbErr(core.ErrDbExecFail, err_)
	}
	return nil
}

/*
scanKHoles 从升序的bar时间戳中找出[startMS, endMS)内缺失的连续区间。
*/
func scanKHoles(sid int32, tfMSecs, startMS, endMS int64, barTimes []int64) [][2]int64 {
	holes := make([][2]int64, 0)
	if len(barTimes) == 0 {
		holes = append(holes, [2]int64{startMS, endMS})
		return holes
	}
	if barTimes[0] > startMS {
		holes = append(holes, [2]int64{startMS, barTimes[0]})
	}
	prevTime := barTimes[0]
	for _, time := range barTimes[1:] {
		intv := time - prevTime
		if intv > tfMSecs {
			holes = append(holes, [2]int64{prevTime + tfMSecs, time})
		} else if intv < tfMSecs {
			log.Error("invalid kline spacing", zap.Int32("sid", sid),
				zap.Int64("intv", intv), zap.Int64("tfmsecs", tfMSecs))
		}
		prevTime = time
	}
	if endMS-prevTime > tfMSecs {
		holes = append(holes, [2]int64{prevTime + tfMSecs, endMS})
	}
	return holes
}

func (q *Queries) updateKHoles(sid int32, startMS, endMS int64) *errs.Error {
	barTimes, err := q.getKLineTimes(sid, startMS, endMS)
	if err != nil {
		return err
	}
	holes := scanKHoles(sid, core.MSecsMin, startMS, endMS, barTimes)
	if len(holes) == 0 {
		return nil
	}
	// 查询已记录的khole，进行合并
	ctx := context.Background()
	resHoles, err_ := q.GetKHoles(ctx, sid, "1m")
	if err_ != nil {
		return NewDbErr(core.ErrDbReadFail, err_)
	}
	for _, h := range holes {
		resHoles = append(resHoles, &KHole{Sid: sid, Timeframe: "1m", Start: h[0], Stop: h[1]})
	}
	merged, delIDs := mergeKHoles(resHoles)
	// 将合并后的kholes更新或插入到数据库
	err = q.DelKHoles(delIDs...)
	if err != nil {
		return err
	}
	var adds []*KHole
	for _, h := range merged {
		if h.ID == 0 {
			adds = append(adds, h)
		} else {
			err_ = q.SetKHole(ctx, h.ID, h.Start, h.Stop)
			if err_ != nil {
				return NewDbErr(core.ErrDbExecFail, err_)
			}
		}
	}
	if len(adds) > 0 {
		err_ = q.AddKHoles(ctx, adds)
		if err_ != nil {
			return NewDbErr(core.ErrDbExecFail, err_)
		}
	}
	return nil
}

func mapToKlines(rows pgx.Rows, err_ error) ([]*banexg.Kline, error) {
	return mapToItems(rows, err_, func() (*banexg.Kline, []any) {
		var i banexg.Kline
		return &i, []any{&i.Time, &i.Open, &i.High, &i.Low, &i.Close, &i.Volume}
	})
}

func mapToItems[T any](rows pgx.Rows, err_ error, assign func() (T, []any)) ([]T, error) {
	if err_ != nil {
		return nil, err_
	}
	defer rows.Close()
	items := make([]T, 0)
	for rows.Next() {
		i, fields := assign()
		if err := rows.Scan(fields...); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
