package fill

import (
	"math"
	"os"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/banbox/banexg"
	"github.com/banbox/banexg/errs"
	"github.com/banbox/banind/btime"
	"github.com/banbox/banind/core"
	"github.com/banbox/banind/orm"
)

func TestMain(m *testing.M) {
	if err := core.Setup(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// 2023-08-10 00:00:00 UTC
const baseMS = int64(1691625600000)

var memSidSeq atomic.Int32

/*
memStore 内存版IStore。
failAt注入批次失败：第failAt次及之后的WriteBatch返回failCode错误，
失败批次不落任何数据，等价于批间崩溃。failTransient注入瞬时错误：
前failTransient次WriteBatch失败，重试即可成功。
每个实例分配独立sid，避免跨用例共享进程级缓存。
*/
type memStore struct {
	sid  int32
	raw  []*banexg.Kline
	tbls map[string]map[int64]map[string]float64

	batchNum      int
	batchDays     []int64
	failAt        int
	failCode      int
	failTransient int
}

func newMemStore(raw []*banexg.Kline) *memStore {
	return &memStore{
		sid:      memSidSeq.Add(1),
		raw:      raw,
		tbls:     make(map[string]map[int64]map[string]float64),
		failCode: core.ErrRunTime,
	}
}

func (s *memStore) FirstMS(sid int32) (int64, *errs.Error) {
	if len(s.raw) == 0 {
		return 0, nil
	}
	return s.raw[0].Time, nil
}

func (s *memStore) LastMS(sid int32) (int64, *errs.Error) {
	if len(s.raw) == 0 {
		return 0, nil
	}
	return s.raw[len(s.raw)-1].Time, nil
}

func (s *memStore) Buckets(sid int32, tfMSecs, startMS, endMS int64) ([]int64, *errs.Error) {
	var res []int64
	last := int64(-1)
	for _, k := range s.raw {
		if k.Time < startMS || k.Time >= endMS {
			continue
		}
		b := k.Time / tfMSecs * tfMSecs
		if b != last {
			res = append(res, b)
			last = b
		}
	}
	return res, nil
}

func (s *memStore) QueryRaw(sid int32, startMS, endMS int64) ([]*banexg.Kline, *errs.Error) {
	i := sort.Search(len(s.raw), func(k int) bool { return s.raw[k].Time >= startMS })
	j := sort.Search(len(s.raw), func(k int) bool { return s.raw[k].Time >= endMS })
	return s.raw[i:j], nil
}

func (s *memStore) tbl(timeFrame string) map[int64]map[string]float64 {
	m, ok := s.tbls[timeFrame]
	if !ok {
		m = make(map[int64]map[string]float64)
		s.tbls[timeFrame] = m
	}
	return m
}

func (s *memStore) NonNullTimes(sid int32, timeFrame, col string, startMS, endMS int64) ([]int64, *errs.Error) {
	var res []int64
	for ts, row := range s.tbl(timeFrame) {
		if ts < startMS || ts >= endMS {
			continue
		}
		if _, ok := row[col]; ok {
			res = append(res, ts)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res, nil
}

func (s *memStore) ReadRows(sid int32, timeFrame string, cols []string, startMS, endMS int64) ([]*orm.IndRow, *errs.Error) {
	var res []*orm.IndRow
	for ts, row := range s.tbl(timeFrame) {
		if ts < startMS || ts >= endMS {
			continue
		}
		r := &orm.IndRow{Time: ts, Vals: make([]*float64, len(cols))}
		for i, col := range cols {
			if v, ok := row[col]; ok {
				val := v
				r.Vals[i] = &val
			}
		}
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Time < res[j].Time })
	return res, nil
}

func (s *memStore) WriteBatch(sid int32, timeFrame string, cols []string, rows []*orm.IndRow) *errs.Error {
	s.batchNum++
	if s.failTransient > 0 {
		s.failTransient--
		return errs.NewMsg(core.ErrDbConnFail, "inject transient fail")
	}
	if s.failAt > 0 && s.batchNum >= s.failAt {
		return errs.NewMsg(s.failCode, "inject batch fail")
	}
	tbl := s.tbl(timeFrame)
	for _, row := range rows {
		cells, ok := tbl[row.Time]
		if !ok {
			cells = make(map[string]float64)
			tbl[row.Time] = cells
		}
		for i, col := range cols {
			if row.Vals[i] == nil {
				delete(cells, col)
			} else {
				cells[col] = *row.Vals[i]
			}
		}
	}
	if len(rows) > 0 {
		s.batchDays = append(s.batchDays, btime.AlignDayMS(rows[0].Time))
	}
	return nil
}

func (s *memStore) cellVal(timeFrame string, ts int64, col string) (float64, bool) {
	row, ok := s.tbl(timeFrame)[ts]
	if !ok {
		return 0, false
	}
	v, ok := row[col]
	return v, ok
}

func (s *memStore) delCell(timeFrame string, ts int64, col string) {
	if row, ok := s.tbl(timeFrame)[ts]; ok {
		delete(row, col)
	}
}

func (s *memStore) setCell(timeFrame string, ts int64, col string, val float64) {
	tbl := s.tbl(timeFrame)
	row, ok := tbl[ts]
	if !ok {
		row = make(map[string]float64)
		tbl[ts] = row
	}
	row[col] = val
}

// snapshot 深拷贝非空单元格，全NULL行视同不存在，便于直接比较两个存储
func (s *memStore) snapshot(timeFrame string) map[int64]map[string]float64 {
	res := make(map[int64]map[string]float64)
	for ts, row := range s.tbl(timeFrame) {
		if len(row) == 0 {
			continue
		}
		cp := make(map[string]float64, len(row))
		for col, v := range row {
			cp[col] = v
		}
		res[ts] = cp
	}
	return res
}

// genKlines 生成从startMS开始的num根1mK线，价格做确定性波动，不依赖随机种子
func genKlines(startMS int64, num int) []*banexg.Kline {
	res := make([]*banexg.Kline, 0, num)
	price := 100.0
	for i := 0; i < num; i++ {
		fi := float64(i)
		open := price
		price += math.Sin(fi*0.7)*1.5 + math.Cos(fi*0.23)*0.8
		res = append(res, &banexg.Kline{
			Time:   startMS + int64(i)*core.MSecsMin,
			Open:   open,
			High:   math.Max(open, price) + 0.3 + 0.4*math.Abs(math.Sin(fi*1.1)),
			Low:    math.Min(open, price) - 0.2 - 0.3*math.Abs(math.Cos(fi*0.9)),
			Close:  price,
			Volume: 5 + 3*math.Abs(math.Sin(fi*1.7)),
		})
	}
	return res
}

// dropRange 去掉[startMS, endMS)内的K线，模拟源数据缺口
func dropRange(arr []*banexg.Kline, startMS, endMS int64) []*banexg.Kline {
	res := make([]*banexg.Kline, 0, len(arr))
	for _, k := range arr {
		if k.Time >= startMS && k.Time < endMS {
			continue
		}
		res = append(res, k)
	}
	return res
}
