package config

type ArrString []string

func (i *ArrString) String() string {
	return "my string representation"
}

func (i *ArrString) Set(value string) error {
	*i = append(*i, value)
	return nil
}

type CmdArgs struct {
	Configs       ArrString
	Logfile       string
	DataDir       string
	NoDb          bool
	NoDefault     bool
	Debug         bool
	LogLevel      string
	TimeRange     string
	RawTimeFrames string
	TimeFrames    []string
	RawPairs      string
	Pairs         []string
	RawFamilies   string
	Families      []string
	Force         bool // 强制全量覆盖重算
	MaxPoolSize   int
	CPUProfile    bool
	InPath        string
	OutPath       string
	OutType       string // 报表输出类型: xlsx/png
	Port          int
}
