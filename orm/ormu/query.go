package ormu

import (
	"context"
	"strings"

	"github.com/banbox/banind/core"
	"github.com/banbox/banind/orm"

	"github.com/banbox/banexg/errs"
)

const runFields = `id, mode, args, config, pairs, periods, inds,
	create_at, start_at, stop_at, status, progress, scan_num, gap_num, fill_num, skip_num, bad_num, info, note`

func scanRun(scan func(...any) error) (*Run, error) {
	var i Run
	err := scan(
		&i.ID,
		&i.Mode,
		&i.Args,
		&i.Config,
		&i.Pairs,
		&i.Periods,
		&i.Inds,
		&i.CreateAt,
		&i.StartAt,
		&i.StopAt,
		&i.Status,
		&i.Progress,
		&i.ScanNum,
		&i.GapNum,
		&i.FillNum,
		&i.SkipNum,
		&i.BadNum,
		&i.Info,
		&i.Note,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (q *Queries) AddRun(ctx context.Context, r *Run) (*Run, *errs.Error) {
	row := q.db.QueryRowContext(ctx, `INSERT INTO runs
		(mode, args, config, pairs, periods, inds, create_at, start_at, stop_at, status, progress,
		 scan_num, gap_num, fill_num, skip_num, bad_num, info, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id`,
		r.Mode, r.Args, r.Config, r.Pairs, r.Periods, r.Inds, r.CreateAt, r.StartAt, r.StopAt,
		r.Status, r.Progress, r.ScanNum, r.GapNum, r.FillNum, r.SkipNum, r.BadNum, r.Info, r.Note)
	if err := row.Scan(&r.ID); err != nil {
		return nil, errs.New(core.ErrDbExecFail, err)
	}
	return r, nil
}

func (q *Queries) GetRun(ctx context.Context, id int64) (*Run, *errs.Error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+runFields+" FROM runs WHERE id = $1", id)
	res, err := scanRun(row.Scan)
	if err != nil {
		return nil, errs.New(core.ErrDbReadFail, err)
	}
	return res, nil
}

func (q *Queries) SetRunStatus(ctx context.Context, id int64, status int64, startAt int64) *errs.Error {
	_, err := q.db.ExecContext(ctx, "UPDATE runs SET status = $1, start_at = $2 WHERE id = $3",
		status, startAt, id)
	if err != nil {
		return errs.New(core.ErrDbExecFail, err)
	}
	return nil
}

func (q *Queries) SetRunProgress(ctx context.Context, id int64, progress float64) *errs.Error {
	_, err := q.db.ExecContext(ctx, "UPDATE runs SET progress = $1 WHERE id = $2", progress, id)
	if err != nil {
		return errs.New(core.ErrDbExecFail, err)
	}
	return nil
}

/*
SetRunDone 任务结束时写入最终状态和统计数字。
*/
func (q *Queries) SetRunDone(ctx context.Context, r *Run) *errs.Error {
	_, err := q.db.ExecContext(ctx, `UPDATE runs SET status = $1, stop_at = $2, progress = $3,
		scan_num = $4, gap_num = $5, fill_num = $6, skip_num = $7, bad_num = $8, info = $9, note = $10
		WHERE id = $11`,
		r.Status, r.StopAt, r.Progress, r.ScanNum, r.GapNum, r.FillNum, r.SkipNum, r.BadNum,
		r.Info, r.Note, r.ID)
	if err != nil {
		return errs.New(core.ErrDbExecFail, err)
	}
	return nil
}

type FindRunsParams struct {
	Mode     string `json:"mode"`     // 可选的模式筛选
	Status   int64  `json:"status"`   // 可选的状态筛选
	Pair     string `json:"pair"`     // 可选的标的筛选（模糊匹配）
	Period   string `json:"period"`   // 可选的周期筛选（模糊匹配）
	Ind      string `json:"ind"`      // 可选的指标族筛选（模糊匹配）
	MinStart int64  `json:"minStart"` // 可选的最小开始时间
	MaxStart int64  `json:"maxStart"` // 可选的最大开始时间
	MaxID    int64  `json:"maxId"`    // 可选的最大ID筛选
	Limit    int64  `json:"limit"`    // 限制返回数量
}

func (q *Queries) FindRuns(ctx context.Context, arg FindRunsParams) ([]*Run, *errs.Error) {
	var b strings.Builder
	b.WriteString("SELECT " + runFields + " FROM runs WHERE 1=1 ")

	// 使用通用构建器减少重复代码
	params, paramCount := orm.BuildQuery(&b, nil, 1, []orm.IfParam{
		{Cond: arg.Mode != "", Val: arg.Mode, Tpl: "AND mode = $%d "},
		{Cond: arg.Status > 0, Val: arg.Status, Tpl: "AND status = $%d "},
		{Cond: arg.Pair != "", Val: "%" + arg.Pair + "%", Tpl: "AND pairs LIKE $%d "},
		{Cond: arg.Period != "", Val: "%" + arg.Period + "%", Tpl: "AND periods LIKE $%d "},
		{Cond: arg.Ind != "", Val: "%" + arg.Ind + "%", Tpl: "AND inds LIKE $%d "},
		{Cond: arg.MinStart > 0, Val: arg.MinStart, Tpl: "AND start_at >= $%d "},
		{Cond: arg.MaxStart > 0, Val: arg.MaxStart, Tpl: "AND start_at <= $%d "},
		{Cond: arg.MaxID > 0, Val: arg.MaxID, Tpl: "AND id < $%d "},
	})

	b.WriteString("ORDER BY id DESC ")

	// LIMIT 也通过构建器添加
	params, _ = orm.BuildQuery(&b, params, paramCount, []orm.IfParam{{
		Cond: arg.Limit > 0,
		Val:  arg.Limit,
		Tpl:  "LIMIT $%d",
	}})

	rows, err := q.db.QueryContext(ctx, b.String(), params...)
	if err != nil {
		return nil, errs.New(core.ErrDbReadFail, err)
	}
	defer rows.Close()

	var items []*Run
	for rows.Next() {
		item, err := scanRun(rows.Scan)
		if err != nil {
			return nil, errs.New(core.ErrDbReadFail, err)
		}
		items = append(items, item)
	}

	if err = rows.Close(); err != nil {
		return nil, errs.New(core.ErrDbReadFail, err)
	}
	if err = rows.Err(); err != nil {
		return nil, errs.New(core.ErrDbReadFail, err)
	}

	return items, nil
}
