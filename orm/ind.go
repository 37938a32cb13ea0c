package orm

import (
	"context"
	"fmt"
	"strings"

	"github.com/banbox/banexg/errs"
	"github.com/banbox/banind/core"
)

/*
IndTable 返回指定周期对应的指标表名，非法周期返回错误。
每个周期一张宽表，每个(指标族,周期参数)一列，行主键为(sid, time)。
*/
func IndTable(timeframe string) (string, *errs.Error) {
	for _, tf := range core.AllTFs {
		if tf == timeframe {
			return "ind_" + timeframe, nil
		}
	}
	return "", errs.NewMsg(core.ErrInvalidTF, "no ind table for tf: %s", timeframe)
}

/*
GetIndRows 读取指定列的指标行，Vals与cols一一对应，数据库NULL映射为nil。
*/
func (q *Queries) GetIndRows(tbl string, sid int32, cols []string, startMS, endMS int64) ([]*IndRow, *errs.Error) {
	var b strings.Builder
	b.WriteString(`select "time"`)
	for _, col := range cols {
		b.WriteString(",")
		b.WriteString(col)
	}
	b.WriteString(fmt.Sprintf(` from %s where sid=%d and "time" >= %v and "time" < %v order by "time"`,
		tbl, sid, startMS, endMS))
	rows, err_ := q.db.Query(context.Background(), b.String())
	res, err_ := mapToItems(rows, err_, func() (*IndRow, []any) {
		row := &IndRow{Vals: make([]*float64, len(cols))}
		fields := make([]any, 0, len(cols)+1)
		fields = append(fields, &row.Time)
		for i := range row.Vals {
			fields = append(fields, &row.Vals[i])
		}
		return row, fields
	})
	if err_ != nil {
		return nil, NewDbErr(core.ErrDbReadFail, err_)
	}
	return res, nil
}

/*
GetNonNullTimes 返回指定列有值的所有时间戳，升序。行缺失与单元格为NULL等价。
*/
func (q *Queries) GetNonNullTimes(tbl, col string, sid int32, startMS, endMS int64) ([]int64, *errs.Error) {
	sqlStr := fmt.Sprintf(`
select "time" from %s
where sid=%d and "time" >= %v and "time" < %v and %s is not null
order by "time"`, tbl, sid, startMS, endMS, col)
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
UpsertIndRows 批量写入指标行，冲突时仅覆盖本次给定的列，其他列保持不变。

单条语句的参数量受限，内部按行分块执行；调用方需确保rows已按时间升序。
*/
func (q *Queries) UpsertIndRows(tbl string, sid int32, cols []string, rows []*IndRow) *errs.Error {
	if len(rows) == 0 {
		return nil
	}
	perRow := len(cols) + 2
	chunkSize := max(1, 60000/perRow)
	ctx := context.Background()
	for start := 0; start < len(rows); start += chunkSize {
		chunk := rows[start:min(start+chunkSize, len(rows))]
		var b strings.Builder
		b.WriteString(fmt.Sprintf(`insert into %s (sid, "time"`, tbl))
		for _, col := range cols {
			b.WriteString(", ")
			b.WriteString(col)
		}
		b.WriteString(") values ")
		params := make([]interface{}, 0, len(chunk)*perRow)
		for i, row := range chunk {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(")
			for j := 0; j < perRow; j++ {
				if j > 0 {
					b.WriteString(",")
				}
				b.WriteString(fmt.Sprintf("$%d", len(params)+j+1))
			}
			b.WriteString(")")
			params = append(params, sid, row.Time)
			for _, v := range row.Vals {
				params = append(params, v)
			}
		}
		b.WriteString(` ON CONFLICT (sid, "time") DO UPDATE SET `)
		for i, col := range cols {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
		_, err_ := q.db.Exec(ctx, b.String(), params...)
		if err_ != nil {
			return NewDbErr(core.ErrDbExecFail, err_)
		}
	}
	return nil
}

/*
ColCoverage 统计范围内的总行数和各列的非NULL行数，用于覆盖率报表。
*/
func (q *Queries) ColCoverage(tbl string, sid int32, cols []string, startMS, endMS int64) (int64, []int64, *errs.Error) {
	var b strings.Builder
	b.WriteString("select count(*)")
	for _, col := range cols {
		b.WriteString(fmt.Sprintf(", count(%s)", col))
	}
	b.WriteString(fmt.Sprintf(` from %s where sid=%d and "time" >= %v and "time" < %v`,
		tbl, sid, startMS, endMS))
	row := q.db.QueryRow(context.Background(), b.String())
	var total int64
	counts := make([]int64, len(cols))
	fields := make([]any, 0, len(cols)+1)
	fields = append(fields, &total)
	for i := range counts {
		fields = append(fields, &counts[i])
	}
	err_ := row.Scan(fields...)
	if err_ != nil {
		return 0, nil, NewDbErr(core.ErrDbReadFail, err_)
	}
	return total, counts, nil
}

/*
GetIndTimeRange 返回指标表中指定标的已有行的最小和最大时间，无行时返回(0, 0)。
*/
func (q *Queries) GetIndTimeRange(tbl string, sid int32) (int64, int64, *errs.Error) {
	sqlStr := fmt.Sprintf(`select coalesce(min("time"), 0), coalesce(max("time"), 0) from %s where sid=%d`, tbl, sid)
	row := q.db.QueryRow(context.Background(), sqlStr)
	var minMS, maxMS int64
	err_ := row.Scan(&minMS, &maxMS)
	if err_ != nil {
		return 0, 0, NewDbErr(core.ErrDbReadFail, err_)
	}
	return minMS, maxMS, nil
}
