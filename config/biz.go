package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banbox/banind/btime"
	"github.com/banbox/banind/core"
	utils2 "github.com/banbox/banind/utils"
	"github.com/banbox/banexg/errs"
	"github.com/banbox/banexg/log"
	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

func GetDataDir() string {
	if DataDir == "" {
		DataDir = getEnvPath("BanDataDir")
		if DataDir == "" {
			panic("env `BanDataDir` or args `-datadir` is required")
		}
	}
	return DataDir
}

func GetDataDirSafe() string {
	if DataDir == "" {
		DataDir = getEnvPath("BanDataDir")
	}
	return DataDir
}

/*
ConfigPaths 返回当前生效的配置文件路径，与GetConfig的加载顺序一致。
*/
func ConfigPaths() []string {
	var paths []string
	dataDir := GetDataDirSafe()
	if dataDir != "" {
		tryNames := []string{"config.yml", "config.local.yml"}
		for _, name := range tryNames {
			path := filepath.Join(dataDir, name)
			if _, err := os.Stat(path); err == nil {
				paths = append(paths, path)
			}
		}
	}
	if Args != nil && len(Args.Configs) > 0 {
		paths = append(paths, Args.Configs...)
	}
	return paths
}

func getEnvPath(key string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return ""
	}
	absPath, err := filepath.Abs(val)
	if err != nil {
		panic(err)
	}
	return strings.TrimSpace(absPath)
}

/*
ParsePath 解析路径中的~和相对路径为绝对路径
*/
func ParsePath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	} else if !filepath.IsAbs(path) {
		return filepath.Join(GetDataDir(), path)
	}
	return path
}

func LoadConfig(args *CmdArgs) *errs.Error {
	if Loaded {
		return nil
	}
	cfg, err := GetConfig(args, true)
	if err != nil {
		return err
	}
	return ApplyConfig(args, cfg)
}

/*
GetConfig get config from args

args: NoDefault, Configs, TimeRange, MaxPoolSize, TimeFrames, Pairs, Families
*/
func GetConfig(args *CmdArgs, showLog bool) (*Config, *errs.Error) {
	args.Init()
	var paths []string
	if !args.NoDefault {
		dataDir := GetDataDir()
		if dataDir == "" {
			return nil, errs.NewMsg(errs.CodeParamRequired, "-datadir or env `BanDataDir` is required")
		}
		tryNames := []string{"config.yml", "config.local.yml"}
		for _, name := range tryNames {
			path := filepath.Join(dataDir, name)
			if _, err := os.Stat(path); err == nil {
				paths = append(paths, path)
			}
		}
	}
	if len(args.Configs) > 0 {
		paths = append(paths, args.Configs...)
	}
	res, err2 := ParseConfigs(paths, showLog)
	if err2 != nil {
		return nil, err2
	}
	err := res.Apply(args)
	if err != nil {
		return nil, errs.New(errs.CodeRunTime, err)
	}
	return res, nil
}

func ParseConfigs(paths []string, showLog bool) (*Config, *errs.Error) {
	var res Config
	var merged = make(map[string]interface{})
	for _, path := range paths {
		if showLog {
			log.Info("Using " + path)
		}
		fileData, err := os.ReadFile(ParsePath(path))
		if err != nil {
			return nil, errs.NewFull(core.ErrIOReadFail, err, "Read %s Fail", path)
		}
		var unpak map[string]interface{}
		err = yaml.Unmarshal(fileData, &unpak)
		if err != nil {
			return nil, errs.NewFull(errs.CodeUnmarshalFail, err, "Unmarshal %s Fail", path)
		}
		for key := range noExtends {
			if _, ok := unpak[key]; ok {
				delete(merged, key)
			}
		}
		utils2.DeepCopyMap(merged, unpak)
	}
	err := mapstructure.Decode(merged, &res)
	if err != nil {
		return nil, errs.NewFull(errs.CodeUnmarshalFail, err, "decode Config Fail")
	}
	return &res, nil
}

func (c *Config) Apply(args *CmdArgs) error {
	if args.TimeRange != "" {
		c.TimeRangeRaw = args.TimeRange
	}
	if args.MaxPoolSize > 0 {
		if c.Database == nil {
			c.Database = &DatabaseConfig{}
		}
		c.Database.MaxPoolSize = args.MaxPoolSize
	}
	var start, stop = int64(0), int64(0)
	var err error
	if c.TimeStart != "" {
		start, err = btime.ParseTimeMS(c.TimeStart)
		if err != nil {
			return err
		}
		if c.TimeEnd != "" {
			stop, err = btime.ParseTimeMS(c.TimeEnd)
			if err != nil {
				return err
			}
		} else {
			stop = btime.UTCStamp()
		}
		c.TimeRange = &TimeTuple{start, stop}
	} else if strings.TrimSpace(c.TimeRangeRaw) != "" {
		start, stop, err = ParseTimeRange(c.TimeRangeRaw)
		if err != nil {
			return err
		}
		c.TimeRange = &TimeTuple{start, stop}
	}
	if len(args.TimeFrames) > 0 {
		c.RunTimeframes = args.TimeFrames
	}
	if len(args.Pairs) > 0 {
		c.Pairs = args.Pairs
	}
	if len(args.Families) > 0 {
		c.Indicators = args.Families
	}
	return nil
}

func ApplyConfig(args *CmdArgs, c *Config) *errs.Error {
	Loaded = true
	Name = c.Name
	if Name == "" {
		Name = "banind"
	}
	core.AppName = Name
	Args = args
	Data = *c
	Debug = args.Debug
	core.NoDB = args.NoDb
	Exchange = c.Exchange
	if Exchange == "" {
		Exchange = "binance"
	}
	Market = c.Market
	if Market == "" {
		Market = "spot"
	}
	if args.DataDir != "" {
		DataDir = args.DataDir
	}
	core.RunDbPath = filepath.Join(GetDataDirSafe(), "runs.db")
	core.SetRunEnv(c.Env)
	Pairs, _ = utils2.UniqueItems(c.Pairs)
	RunTimeframes, _ = utils2.UniqueItems(c.RunTimeframes)
	Indicators, _ = utils2.UniqueItems(c.Indicators)
	TimeRange = c.TimeRange
	Retry = c.Retry
	if Retry == nil {
		Retry = &RetryConfig{}
	}
	if Retry.MaxRetry == 0 {
		Retry.MaxRetry = 4
	}
	if len(Retry.Waits) == 0 {
		Retry.Waits = []int64{500, 1000, 2000, 4000}
	}
	MinHistoryMB = c.MinHistoryMB
	if MinHistoryMB == 0 {
		MinHistoryMB = 256
	}
	Database = c.Database
	if Database == nil && !core.NoDB {
		return errs.NewMsg(core.ErrBadConfig, "`database` is required in config.yml")
	}
	APIServer = c.APIServer
	RPCChannels = c.RPCChannels
	return nil
}

func ParseTimeRange(timeRange string) (int64, int64, error) {
	parts := strings.Split(timeRange, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time range format: %s", timeRange)
	}
	startMS, err := btime.ParseTimeMS(parts[0])
	if err != nil {
		return 0, 0, err
	}
	stopMS, err := btime.ParseTimeMS(parts[1])
	return startMS, stopMS, err
}

/*
MergeConfigPaths 合并多个yaml配置文件为单个字符串，用于任务报告中的配置快照
*/
func MergeConfigPaths(paths []string, skips ...string) (string, error) {
	var content string
	var err error
	if len(paths) > 1 {
		content, err = utils2.MergeYamlStr(paths, skips...)
		if err != nil {
			return "", err
		}
	} else if len(paths) == 1 {
		var data []byte
		data, err = os.ReadFile(paths[0])
		if err != nil {
			return "", err
		}
		content = string(data)
	}
	return content, nil
}
