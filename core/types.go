package core

type StrVal struct {
	Str string
	Val float64
}
