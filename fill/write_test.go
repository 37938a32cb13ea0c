package fill

import (
	"reflect"
	"testing"

	"github.com/banbox/banind/config"
	"github.com/banbox/banind/core"
	"github.com/banbox/banind/orm"
)

func indRow(ts int64, v float64) *orm.IndRow {
	return &orm.IndRow{Time: ts, Vals: []*float64{&v}}
}

func TestWriteRowsDayBatches(t *testing.T) {
	store := newMemStore(nil)
	rows := []*orm.IndRow{
		indRow(baseMS+core.MSecsHour, 1),
		indRow(baseMS+2*core.MSecsHour, 2),
		indRow(baseMS+core.MSecsDay, 3),
		indRow(baseMS+2*core.MSecsDay+5*core.MSecsHour, 4),
	}
	var days []int64
	num, err := WriteRows(store, store.sid, "1h", []string{"sma_5"}, rows, func(dayMS int64, n int) {
		days = append(days, dayMS)
	}, nil)
	if err != nil {
		t.Fatalf("write fail: %v", err)
	}
	if num != 4 || store.batchNum != 3 {
		t.Errorf("expected: 4 rows in 3 batches, received %v in %v", num, store.batchNum)
	}
	wantDays := []int64{baseMS, baseMS + core.MSecsDay, baseMS + 2*core.MSecsDay}
	if !reflect.DeepEqual(days, wantDays) {
		t.Errorf("batch days expected: %v, received %v", wantDays, days)
	}
	if v, ok := store.cellVal("1h", baseMS+core.MSecsDay, "sma_5"); !ok || v != 3 {
		t.Errorf("cell expected: 3, received %v (%v)", v, ok)
	}
	num, err = WriteRows(store, store.sid, "1h", []string{"sma_5"}, nil, nil, nil)
	if err != nil || num != 0 {
		t.Errorf("empty write expected no-op, received %v %v", num, err)
	}
}

func TestWriteRowsRetryTransient(t *testing.T) {
	saved := config.Retry
	config.Retry = &config.RetryConfig{MaxRetry: 3, Waits: []int64{1}}
	defer func() { config.Retry = saved }()

	// 瞬时错误在批边界按等待序列重试
	store := newMemStore(nil)
	store.failTransient = 2
	rows := []*orm.IndRow{indRow(baseMS, 1)}
	num, err := WriteRows(store, store.sid, "1h", []string{"sma_5"}, rows, nil, nil)
	if err != nil || num != 1 {
		t.Errorf("expected success after retries, received %v %v", num, err)
	}
	if store.batchNum != 3 {
		t.Errorf("attempts expected: 3, received %v", store.batchNum)
	}
	// 重试耗尽后错误原样上抛
	store2 := newMemStore(nil)
	store2.failTransient = 10
	num, err = WriteRows(store2, store2.sid, "1h", []string{"sma_5"}, rows, nil, nil)
	if err == nil || err.Code != core.ErrDbConnFail {
		t.Errorf("err code expected: %v, received %v", core.ErrDbConnFail, err)
	}
	if num != 0 || store2.batchNum != 4 {
		t.Errorf("expected: 0 rows after 4 attempts, received %v after %v", num, store2.batchNum)
	}
	// 非瞬时错误不重试
	store3 := newMemStore(nil)
	store3.failAt = 1
	num, err = WriteRows(store3, store3.sid, "1h", []string{"sma_5"}, rows, nil, nil)
	if err == nil || num != 0 || store3.batchNum != 1 {
		t.Errorf("non-transient error should fail fast, received %v %v %v", num, store3.batchNum, err)
	}
}
