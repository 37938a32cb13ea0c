package core

import (
	"bytes"
	"time"

	"github.com/banbox/banexg/errs"
	"github.com/dgraph-io/ristretto"
	"gopkg.in/yaml.v3"
)

var (
	Cache *ristretto.Cache
)

func Setup() *errs.Error {
	var err_ error
	Cache, err_ = ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 26,
		BufferItems: 64,
	})
	if err_ != nil {
		return errs.New(ErrRunTime, err_)
	}
	return nil
}

func GetCacheVal[T any](key interface{}, defVal T) T {
	obj, has := Cache.Get(key)
	if has {
		if val, ok := obj.(T); ok {
			return val
		}
	}
	return defVal
}

func RunExitCalls() {
	for _, method := range ExitCalls {
		method()
	}
	ExitCalls = nil
}

/*
Sleep 等待指定时长，如全局上下文被取消则提前返回false
*/
func Sleep(d time.Duration) bool {
	if Ctx == nil {
		time.Sleep(d)
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-Ctx.Done():
		return false
	}
}

func MarshalYaml(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	err := enc.Encode(v)
	_ = enc.Close()
	return buf.Bytes(), err
}
