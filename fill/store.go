package fill

import (
	"context"

	"github.com/banbox/banexg"
	"github.com/banbox/banexg/errs"
	"github.com/banbox/banind/orm"
)

/*
IStore 引擎对持久层的全部依赖。
读写都以原始1m表和各周期指标表为界，任务的可恢复状态只由表中的NULL推断，
不依赖任何额外的检查点。WriteBatch必须整批原子提交，重复执行结果不变。
*/
type IStore interface {
	// FirstMS 原始1mK线的首个时间戳，无数据时返回0
	FirstMS(sid int32) (int64, *errs.Error)
	// LastMS 原始1mK线的末个时间戳，无数据时返回0
	LastMS(sid int32) (int64, *errs.Error)
	// Buckets 返回[startMS, endMS)内至少含一根1m样本的周期开始时间戳，升序
	Buckets(sid int32, tfMSecs, startMS, endMS int64) ([]int64, *errs.Error)
	// QueryRaw 读取[startMS, endMS)内的原始1mK线，升序
	QueryRaw(sid int32, startMS, endMS int64) ([]*banexg.Kline, *errs.Error)
	// NonNullTimes 指定指标列已有值的时间戳，升序；行不存在与单元格为NULL等价
	NonNullTimes(sid int32, timeFrame, col string, startMS, endMS int64) ([]int64, *errs.Error)
	// ReadRows 读取指定列的已存指标行，NULL映射为nil
	ReadRows(sid int32, timeFrame string, cols []string, startMS, endMS int64) ([]*orm.IndRow, *errs.Error)
	// WriteBatch 单个事务内写入一批指标行，冲突时仅覆盖给定的列
	WriteBatch(sid int32, timeFrame string, cols []string, rows []*orm.IndRow) *errs.Error
}

// DbStore 基于orm连接池的IStore实现
type DbStore struct {
	Sess *orm.Queries
}

func NewDbStore(sess *orm.Queries) *DbStore {
	return &DbStore{Sess: sess}
}

func (s *DbStore) FirstMS(sid int32) (int64, *errs.Error) {
	return s.Sess.GetFirstKlineMS(sid)
}

func (s *DbStore) LastMS(sid int32) (int64, *errs.Error) {
	return s.Sess.GetLastKlineMS(sid)
}

func (s *DbStore) Buckets(sid int32, tfMSecs, startMS, endMS int64) ([]int64, *errs.Error) {
	return s.Sess.GetKlineBuckets(sid, tfMSecs, startMS, endMS)
}

func (s *DbStore) QueryRaw(sid int32, startMS, endMS int64) ([]*banexg.Kline, *errs.Error) {
	return s.Sess.QueryOHLCV(sid, "1m", startMS, endMS)
}

func (s *DbStore) NonNullTimes(sid int32, timeFrame, col string, startMS, endMS int64) ([]int64, *errs.Error) {
	tbl, err := orm.IndTable(timeFrame)
	if err != nil {
		return nil, err
	}
	return s.Sess.GetNonNullTimes(tbl, col, sid, startMS, endMS)
}

func (s *DbStore) ReadRows(sid int32, timeFrame string, cols []string, startMS, endMS int64) ([]*orm.IndRow, *errs.Error) {
	tbl, err := orm.IndTable(timeFrame)
	if err != nil {
		return nil, err
	}
	return s.Sess.GetIndRows(tbl, sid, cols, startMS, endMS)
}

func (s *DbStore) WriteBatch(sid int32, timeFrame string, cols []string, rows []*orm.IndRow) *errs.Error {
	tbl, err := orm.IndTable(timeFrame)
	if err != nil {
		return err
	}
	ctx := context.Background()
	tx, sess, err := s.Sess.NewTx(ctx)
	if err != nil {
		return err
	}
	err = sess.UpsertIndRows(tbl, sid, cols, rows)
	if err != nil {
		_ = tx.Close(ctx, false)
		return err
	}
	return tx.Close(ctx, true)
}
