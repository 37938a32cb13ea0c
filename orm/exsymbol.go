package orm

import (
	"context"
	"fmt"
	"strings"

	"github.com/banbox/banexg/errs"
	"github.com/banbox/banexg/log"
	"github.com/banbox/banind/config"
	"github.com/banbox/banind/core"
	"github.com/jackc/pgx/v5"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"
)

var (
	keySymbolMap = make(map[string]*ExSymbol)
	idSymbolMap  = make(map[int32]*ExSymbol)
	symbolLock   deadlock.Mutex
	tryListIds   = make(map[int32]bool)
	tryListLock  deadlock.Mutex
)

func (s *ExSymbol) Key() string {
	return fmt.Sprintf("%s:%s:%s", s.Exchange, s.Market, s.Symbol)
}

func (q *Queries) ListSymbols(ctx context.Context, exgName string) ([]*ExSymbol, error) {
	sqlStr := "SELECT id, exchange, market, symbol, list_ms, delist_ms FROM exsymbol WHERE exchange = $1"
	rows, err := q.db.Query(ctx, sqlStr, exgName)
	return mapToItems(rows, err, func() (*ExSymbol, []any) {
		var exs ExSymbol
		return &exs, []any{&exs.ID, &exs.Exchange, &exs.Market, &exs.Symbol, &exs.ListMs, &exs.DelistMs}
	})
}

func (q *Queries) ListExchanges(ctx context.Context) ([]string, error) {
	rows, err := q.db.Query(ctx, "SELECT DISTINCT exchange FROM exsymbol")
	items, err := mapToItems(rows, err, func() (*string, []any) {
		var name string
		return &name, []any{&name}
	})
	if err != nil {
		return nil, err
	}
	res := make([]string, len(items))
	for i, v := range items {
		res[i] = *v
	}
	return res, nil
}

func (q *Queries) AddSymbols(ctx context.Context, args []AddSymbolsParams) (int64, error) {
	rows := make([][]any, 0, len(args))
	for _, a := range args {
		rows = append(rows, []any{a.Exchange, a.Market, a.Symbol})
	}
	return q.db.CopyFrom(ctx, pgx.Identifier{"exsymbol"},
		[]string{"exchange", "market", "symbol"}, pgx.CopyFromRows(rows))
}

func (q *Queries) SetListMS(ctx context.Context, id int32, listMS, delistMS int64) error {
	sqlStr := "UPDATE exsymbol SET list_ms = $2, delist_ms = $3 WHERE id = $1"
	_, err := q.db.Exec(ctx, sqlStr, id, listMS, delistMS)
	return err
}

func (q *Queries) LoadExgSymbols(exgName string) *errs.Error {
	ctx := context.Background()
	exsList, err := q.ListSymbols(ctx, exgName)
	if err != nil {
		return NewDbErr(core.ErrDbReadFail, err)
	}
	for _, exs := range exsList {
		keySymbolMap[exs.Key()] = exs
		idSymbolMap[exs.ID] = exs
	}
	return nil
}

func GetExSymbols(exgName, market string) map[int32]*ExSymbol {
	var res = make(map[int32]*ExSymbol)
	for _, exs := range keySymbolMap {
		if exgName != "" && exs.Exchange != exgName {
			continue
		}
		if market != "" && exs.Market != market {
			continue
		}
		res[exs.ID] = exs
	}
	return res
}

func GetExSymbolMap(exgName, market string) map[string]*ExSymbol {
	var res = make(map[string]*ExSymbol)
	for _, exs := range keySymbolMap {
		if exgName != "" && exs.Exchange != exgName {
			continue
		}
		if market != "" && exs.Market != market {
			continue
		}
		res[exs.Symbol] = exs
	}
	return res
}

func GetSymbolByID(id int32) *ExSymbol {
	item, ok := idSymbolMap[id]
	if !ok {
		return nil
	}
	return item
}

func GetExSymbol2(exgName, market, symbol string) *ExSymbol {
	key := fmt.Sprintf("%s:%s:%s", exgName, market, symbol)
	item, _ := keySymbolMap[key]
	return item
}

/*
GetExSymbol 从缓存获取当前配置交易所、市场下的标的，不存在时返回错误
*/
func GetExSymbol(symbol string) (*ExSymbol, *errs.Error) {
	key := fmt.Sprintf("%s:%s:%s", config.Exchange, config.Market, symbol)
	item, ok := keySymbolMap[key]
	if !ok {
		return nil, errs.NewMsg(core.ErrInvalidSymbol, "%s not exist in %d cache", symbol, len(keySymbolMap))
	}
	return item, nil
}

/*
EnsureCurSymbols 确保当前配置交易所、市场下的指定标的已注册，返回对应记录
*/
func EnsureCurSymbols(symbols []string) ([]*ExSymbol, *errs.Error) {
	exsList := make([]*ExSymbol, 0, len(symbols))
	for _, symbol := range symbols {
		if strings.TrimSpace(symbol) == "" {
			return nil, errs.NewMsg(core.ErrInvalidSymbol, "empty symbol")
		}
		exsList = append(exsList, &ExSymbol{
			Exchange: config.Exchange,
			Market:   config.Market,
			Symbol:   symbol,
		})
	}
	err := EnsureSymbols(exsList, config.Exchange)
	if err != nil {
		return nil, err
	}
	return exsList, nil
}

func EnsureSymbols(symbols []*ExSymbol, exchanges ...string) *errs.Error {
	var err *errs.Error
	var exgNames = make(map[string]bool)
	for _, exs := range symbols {
		exgNames[exs.Exchange] = true
	}
	for _, name := range exchanges {
		exgNames[name] = true
	}
	sess, conn, err := Conn(nil)
	if err != nil {
		return err
	}
	defer conn.Release()
	if len(keySymbolMap) == 0 {
		// Not yet loaded, load the information of all the underlying assets of the specified exchange
		// 尚未加载，加载指定交易所所有标的信息
		for exgId := range exgNames {
			err = sess.LoadExgSymbols(exgId)
			if err != nil {
				return err
			}
		}
	}
	// Check the symbols that need to be inserted
	// 检查需要插入的标的
	adds := map[string]*ExSymbol{}
	for _, exs := range symbols {
		key := exs.Key()
		if item, ok := keySymbolMap[key]; !ok {
			adds[key] = exs
		} else {
			exs.ID = item.ID
			exs.ListMs = item.ListMs
			exs.DelistMs = item.DelistMs
		}
	}
	if len(adds) == 0 {
		return nil
	}
	// Lock, reload, and add the data that needs to be added
	// 加锁，重新加载，然后添加需要添加的数据
	symbolLock.Lock()
	defer symbolLock.Unlock()
	for exgId := range exgNames {
		err = sess.LoadExgSymbols(exgId)
		if err != nil {
			return err
		}
	}
	argList := make([]AddSymbolsParams, 0, len(adds))
	for _, item := range adds {
		if _, ok := keySymbolMap[item.Key()]; ok {
			continue
		}
		argList = append(argList, AddSymbolsParams{Exchange: item.Exchange, Market: item.Market, Symbol: item.Symbol})
	}
	if len(argList) > 0 {
		_, err_ := sess.AddSymbols(context.Background(), argList)
		if err_ != nil {
			errMsg := err_.Error()
			if strings.Contains(errMsg, "SQLSTATE 22001") {
				log.Error("save fail, data too long", zap.Error(err_), zap.Any("data", argList))
			}
			return NewDbErr(core.ErrDbExecFail, err_)
		}
	}
	for exgId := range exgNames {
		err = sess.LoadExgSymbols(exgId)
		if err != nil {
			return err
		}
	}
	// 刷新Sid
	for key, exs := range adds {
		item, _ := keySymbolMap[key]
		if item != nil {
			exs.ID = item.ID
			exs.ListMs = item.ListMs
			exs.DelistMs = item.DelistMs
		}
	}
	return nil
}

func LoadAllExSymbols() *errs.Error {
	sess, conn, err := Conn(nil)
	if err != nil {
		return err
	}
	defer conn.Release()
	ctx := context.Background()
	exgList, err_ := sess.ListExchanges(ctx)
	if err_ != nil {
		return NewDbErr(core.ErrDbReadFail, err_)
	}
	for _, exgId := range exgList {
		err = sess.LoadExgSymbols(exgId)
		if err != nil {
			return err
		}
	}
	return nil
}

/*
GetAllExSymbols
Gets all the symbols that have been loaded into the cache
获取已加载到缓存的所有标的
*/
func GetAllExSymbols() map[int32]*ExSymbol {
	return idSymbolMap
}

func (s *ExSymbol) GetValidStart(startMS int64) int64 {
	return max(s.ListMs, startMS)
}

/*
EnsureListDates 为缺少上市时间的标的从首根K线推断并回写。

每个标的仅尝试一次，无K线数据时保持为0。
*/
func EnsureListDates(sess *Queries, exsList []*ExSymbol) *errs.Error {
	tryListLock.Lock()
	defer tryListLock.Unlock()
	var emptys = make([]*ExSymbol, 0, len(exsList)/4+1)
	for _, v := range exsList {
		if v.ListMs == 0 {
			if _, ok := tryListIds[v.ID]; !ok {
				emptys = append(emptys, v)
			}
		}
	}
	if len(emptys) == 0 {
		return nil
	}
	for _, exs := range emptys {
		tryListIds[exs.ID] = true
		firstMS, err := sess.GetFirstKlineMS(exs.ID)
		if err != nil {
			return err
		}
		if firstMS > 0 {
			exs.ListMs = firstMS
			err_ := sess.SetListMS(context.Background(), exs.ID, exs.ListMs, exs.DelistMs)
			if err_ != nil {
				return NewDbErr(core.ErrDbExecFail, err_)
			}
		}
	}
	return nil
}
