package orm

import (
	"fmt"
	"strings"
)

type IfParam struct {
	Cond bool
	Val  interface{}
	Tpl  string // 形如 "AND sid = $%d " 的片段模板
}

/*
BuildQuery 按条件拼接SQL查询片段并收集参数。

num是下一个可用的占位符序号；返回追加后的参数列表和新序号。
仅Cond为true的条件会写入b并追加参数，占位符按出现顺序编号。
*/
func BuildQuery(b *strings.Builder, params []interface{}, num int, conds []IfParam) ([]interface{}, int) {
	for _, p := range conds {
		if !p.Cond {
			continue
		}
		b.WriteString(fmt.Sprintf(p.Tpl, num))
		params = append(params, p.Val)
		num++
	}
	return params, num
}
