package orm

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/banbox/banexg/errs"
	"github.com/banbox/banind/core"
)

func (q *Queries) AddKInfo(ctx context.Context, sid int32, timeframe string, start, stop int64) error {
	sqlStr := "insert into kinfo (sid, timeframe, start, stop) values ($1, $2, $3, $4)"
	_, err := q.db.Exec(ctx, sqlStr, sid, timeframe, start, stop)
	return err
}

func (q *Queries) SetKInfo(ctx context.Context, sid int32, timeframe string, start, stop int64) error {
	sqlStr := "update kinfo set start = $3, stop = $4 where sid = $1 and timeframe = $2"
	_, err := q.db.Exec(ctx, sqlStr, sid, timeframe, start, stop)
	return err
}

func (q *Queries) GetKlineRange(sid int32, timeFrame string) (int64, int64) {
	sqlStr := fmt.Sprintf("select start,stop from kinfo where sid=%v and timeframe=$1 limit 1", sid)
	row := q.db.QueryRow(context.Background(), sqlStr, timeFrame)
	var start, stop int64
	_ = row.Scan(&start, &stop)
	return start, stop
}

func (q *Queries) GetKHoles(ctx context.Context, sid int32, timeframe string) ([]*KHole, error) {
	sqlStr := "select id,sid,timeframe,start,stop,coalesce(no_data,false) from khole where sid=$1 and timeframe=$2"
	rows, err := q.db.Query(ctx, sqlStr, sid, timeframe)
	return mapToItems(rows, err, func() (*KHole, []any) {
		var h KHole
		return &h, []any{&h.ID, &h.Sid, &h.Timeframe, &h.Start, &h.Stop, &h.NoData}
	})
}

func (q *Queries) AddKHoles(ctx context.Context, holes []*KHole) error {
	var b strings.Builder
	b.WriteString("insert into khole (sid, timeframe, start, stop) values ")
	params := make([]interface{}, 0, len(holes)*4)
	for i, h := range holes {
		if i > 0 {
			b.WriteString(", ")
		}
		pos := len(params)
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d)", pos+1, pos+2, pos+3, pos+4))
		params = append(params, h.Sid, h.Timeframe, h.Start, h.Stop)
	}
	_, err := q.db.Exec(ctx, b.String(), params...)
	return err
}

func (q *Queries) SetKHole(ctx context.Context, id int64, start, stop int64) error {
	sqlStr := "update khole set start = $2, stop = $3 where id = $1"
	_, err := q.db.Exec(ctx, sqlStr, id, start, stop)
	return err
}

func (q *Queries) DelKHoles(ids ...int64) *errs.Error {
	if len(ids) == 0 {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("delete from khole where id in (")
	arr := make([]string, len(ids))
	for i, id := range ids {
		arr[i] = strconv.FormatInt(id, 10)
	}
	builder.WriteString(strings.Join(arr, ","))
	builder.WriteString(")")
	_, err_ := q.db.Exec(context.Background(), builder.String())
	if err_ != nil {
		return NewDbErr(core.ErrDbExecFail, err_)
	}
	return nil
}

/*
mergeKHoles 按开始时间排序并合并重叠或相邻的空洞。

返回合并后的空洞，以及因被合并或长度为0而应删除的已有记录ID。
*/
func mergeKHoles(holes []*KHole) ([]*KHole, []int64) {
	slices.SortFunc(holes, func(a, b *KHole) int {
		return int((a.Start - b.Start) / 1000)
	})
	merged := make([]*KHole, 0)
	delIDs := make([]int64, 0)
	var prev *KHole
	for _, h := range holes {
		if h.Start == h.Stop {
			if h.ID > 0 {
				delIDs = append(delIDs, h.ID)
			}
			continue
		}
		if prev == nil || prev.Stop < h.Start {
			// 与前一个洞不连续，出现缺口
			merged = append(merged, h)
			prev = h
		} else {
			if h.Stop > prev.Stop {
				prev.Stop = h.Stop
			}
			if h.ID > 0 {
				delIDs = append(delIDs, h.ID)
			}
		}
	}
	return merged, delIDs
}

type FindKHolesArgs struct {
	Sid       int32
	TimeFrame string
	Start     int64
	Stop      int64
	Limit     int
	Offset    int
}

func (q *Queries) FindKHoles(args FindKHolesArgs) ([]*KHole, int64, *errs.Error) {
	var b strings.Builder
	sqlParams := make([]interface{}, 0, 4)

	if args.Sid == 0 {
		return nil, 0, errs.NewMsg(core.ErrDbReadFail, "sid is required")
	}

	// 构建WHERE条件
	whereClause := fmt.Sprintf("where sid=$%v ", len(sqlParams)+1)
	sqlParams = append(sqlParams, args.Sid)
	if args.TimeFrame != "" {
		whereClause += fmt.Sprintf("and timeframe=$%v ", len(sqlParams)+1)
		sqlParams = append(sqlParams, args.TimeFrame)
	}
	if args.Start > 0 {
		whereClause += fmt.Sprintf("and start >= $%v ", len(sqlParams)+1)
		sqlParams = append(sqlParams, args.Start)
	}
	if args.Stop > 0 {
		whereClause += fmt.Sprintf("and stop <= $%v ", len(sqlParams)+1)
		sqlParams = append(sqlParams, args.Stop)
	}

	// 查询总数
	countQuery := "select count(*) from khole " + whereClause
	var totalNum int64
	ctx := context.Background()
	err := q.db.QueryRow(ctx, countQuery, sqlParams...).Scan(&totalNum)
	if err != nil {
		return nil, 0, NewDbErr(core.ErrDbReadFail, err)
	}

	// 查询数据
	b.WriteString("select id,sid,timeframe,start,stop,coalesce(no_data,false) from khole ")
	b.WriteString(whereClause)
	b.WriteString("order by start desc ")

	limit := 100
	if args.Limit > 0 {
		limit = args.Limit
	}
	if args.Offset > 0 {
		b.WriteString(fmt.Sprintf("offset $%v ", len(sqlParams)+1))
		sqlParams = append(sqlParams, args.Offset)
	}
	b.WriteString(fmt.Sprintf("limit $%v", len(sqlParams)+1))
	sqlParams = append(sqlParams, limit)

	rows, err := q.db.Query(ctx, b.String(), sqlParams...)
	holes, err := mapToItems(rows, err, func() (*KHole, []any) {
		var hole KHole
		return &hole, []any{&hole.ID, &hole.Sid, &hole.Timeframe, &hole.Start, &hole.Stop, &hole.NoData}
	})
	if err != nil {
		return nil, 0, NewDbErr(core.ErrDbReadFail, err)
	}

	return holes, totalNum, nil
}
