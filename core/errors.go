package core

const (
	ErrBadConfig = -1*iota - 100
	ErrInvalidPath
	ErrIOReadFail
	ErrIOWriteFail
	ErrDbConnFail
	ErrDbReadFail
	ErrDbExecFail
	ErrDbUniqueViolation
	ErrCacheErr
	ErrInvalidTF
	ErrInvalidSymbol
	ErrInvalidBars
	ErrBadIndicator
	ErrIncompleteRange
	ErrInsufficientHistory
	ErrVerifyFail
	ErrRunBusy
	ErrRunTime
	ErrMarshalFail
	ErrTimeout
	ErrEOF

	ErrNetWriteFail
	ErrNetReadFail
	ErrNetUnknown
	ErrNetTimeout
	ErrNetTemporary
	ErrNetConnect
)

var ErrCodeNames = map[int]string{
	ErrBadConfig:           "BadConfig",
	ErrInvalidPath:         "InvalidPath",
	ErrIOReadFail:          "IOReadFail",
	ErrIOWriteFail:         "IOWriteFail",
	ErrDbConnFail:          "DbConnFail",
	ErrDbReadFail:          "DbReadFail",
	ErrDbExecFail:          "DbExecFail",
	ErrDbUniqueViolation:   "DbUniqueViolation",
	ErrCacheErr:            "CacheErr",
	ErrInvalidTF:           "InvalidTF",
	ErrInvalidSymbol:       "InvalidSymbol",
	ErrInvalidBars:         "InvalidBars",
	ErrBadIndicator:        "BadIndicator",
	ErrIncompleteRange:     "IncompleteRange",
	ErrInsufficientHistory: "InsufficientHistory",
	ErrVerifyFail:          "VerifyFail",
	ErrRunBusy:             "RunBusy",
	ErrRunTime:             "RunTime",
	ErrMarshalFail:         "MarshalFail",
	ErrTimeout:             "Timeout",
	ErrEOF:                 "EOF",
	ErrNetWriteFail:        "NetWriteFail",
	ErrNetReadFail:         "NetReadFail",
	ErrNetUnknown:          "NetUnknown",
	ErrNetTimeout:          "NetTimeout",
	ErrNetTemporary:        "NetTemporary",
	ErrNetConnect:          "NetConnect",
}
