package entry

import (
	"flag"
	"fmt"
	"os"

	"github.com/banbox/banexg/errs"
	"github.com/banbox/banexg/log"
	"github.com/banbox/banind/biz"
	"github.com/banbox/banind/config"
	"go.uber.org/zap"
)

type FuncEntry = func(args *config.CmdArgs) *errs.Error
type FuncGetEntry = func(name string) (FuncEntry, []string)

func runSubCmd(sysArgs []string, getEnt FuncGetEntry, printExit func()) {
	if len(sysArgs) == 0 {
		printExit()
		return
	}
	name, subArgs := sysArgs[0], sysArgs[1:]
	entry, options := getEnt(name)
	if entry == nil {
		printExit()
		return
	}
	var args config.CmdArgs
	var sub = flag.NewFlagSet(name, flag.ExitOnError)
	bindSubFlags(&args, sub, options...)
	err_ := sub.Parse(subArgs)
	if err_ != nil {
		log.Error("fail", zap.Error(err_))
		printExit()
		return
	}
	args.Init()
	err := entry(&args)
	biz.CleanUp()
	if err != nil {
		log.Error("run "+name+" fail", zap.String("err", err.Short()))
		os.Exit(1)
	}
	os.Exit(0)
}

func bindSubFlags(args *config.CmdArgs, cmd *flag.FlagSet, opts ...string) {
	cmd.Var(&args.Configs, "config", "config path to use, Multiple -config options may be used")
	cmd.StringVar(&args.Logfile, "logfile", "", "Log to the file specified")
	cmd.StringVar(&args.DataDir, "datadir", "", "Path to data dir.")
	cmd.BoolVar(&args.NoDb, "nodb", false, "dont use database")
	cmd.StringVar(&args.LogLevel, "level", "info", "set logging level")
	cmd.BoolVar(&args.Debug, "debug", false, "enable debug behaviors")
	cmd.BoolVar(&args.NoDefault, "no-default", false, "ignore default: config.yml, config.local.yml")
	cmd.IntVar(&args.MaxPoolSize, "max-pool-size", 0, "max pool size for db")

	for _, key := range opts {
		switch key {
		case "pairs":
			cmd.StringVar(&args.RawPairs, "pairs", "", "comma-separated pairs")
		case "timeframes":
			cmd.StringVar(&args.RawTimeFrames, "timeframes", "", "comma-seperated timeframes to use")
		case "families":
			cmd.StringVar(&args.RawFamilies, "families", "", "comma-separated indicator families")
		case "timerange":
			cmd.StringVar(&args.TimeRange, "timerange", "", "Specify what timerange of data to use")
		case "force":
			cmd.BoolVar(&args.Force, "force", false, "recompute and overwrite existing values")
		case "cpu_profile":
			cmd.BoolVar(&args.CPUProfile, "cpu-profile", false, "enable cpu profile")
		case "in":
			cmd.StringVar(&args.InPath, "in", "", "input file or directory")
		case "out":
			cmd.StringVar(&args.OutPath, "out", "", "output file or directory")
		case "out_type":
			cmd.StringVar(&args.OutType, "out-type", "", "output type: xlsx/png")
		case "port":
			cmd.IntVar(&args.Port, "port", 0, "port to listen, default: 8000")
		default:
			log.Warn(fmt.Sprintf("undefined argument: %s", key))
			os.Exit(1)
		}
	}
}
