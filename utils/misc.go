package utils

import (
	"math"
	"strings"
)

const thresFloat64Eq = 1e-9

/*
SplitSolid 字符串分割，忽略返回结果中的空字符串
*/
func SplitSolid(text string, sep string) []string {
	arr := strings.Split(text, sep)
	result := []string{}
	for _, str := range arr {
		if str != "" {
			result = append(result, str)
		}
	}
	return result
}

/*
UniqueItems 返回去重后的列表和重复项列表，保持原顺序
*/
func UniqueItems[T comparable](arr []T) ([]T, []T) {
	var items = make([]T, 0, len(arr))
	var dups []T
	var seen = make(map[T]bool)
	for _, it := range arr {
		if _, ok := seen[it]; ok {
			dups = append(dups, it)
		} else {
			items = append(items, it)
			seen[it] = true
		}
	}
	return items, dups
}

/*
DeepCopyMap 将src逐键合并到dst，嵌套map递归合并而非整体覆盖
*/
func DeepCopyMap(dst, src map[string]interface{}) {
	for k, v := range src {
		if v, ok := v.(map[string]interface{}); ok {
			if bv, ok := dst[k]; ok {
				if bv, ok := bv.(map[string]interface{}); ok {
					DeepCopyMap(bv, v)
					continue
				}
			}
		}
		dst[k] = v
	}
}

/*
MaskDBUrl 隐藏数据库连接串中的密码部分，用于日志输出
*/
func MaskDBUrl(url string) string {
	schemeEnd := strings.Index(url, "://")
	if schemeEnd < 0 {
		return url
	}
	atPos := strings.Index(url[schemeEnd+3:], "@")
	if atPos < 0 {
		return url
	}
	userInfo := url[schemeEnd+3 : schemeEnd+3+atPos]
	colonPos := strings.Index(userInfo, ":")
	if colonPos < 0 {
		return url
	}
	return url[:schemeEnd+3+colonPos] + ":****" + url[schemeEnd+3+atPos:]
}

/*
EqualNearly 判断两个float是否近似相等，解决浮点精度导致不等
*/
func EqualNearly(a, b float64) bool {
	return EqualIn(a, b, thresFloat64Eq)
}

/*
EqualIn 判断两个float是否在一定范围内近似相等
*/
func EqualIn(a, b, thres float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return math.Abs(a-b) <= thres
}
