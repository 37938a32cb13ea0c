package entry

import (
	"fmt"
	"os"

	"github.com/banbox/banexg/log"
	"github.com/banbox/banind/biz"
	"github.com/banbox/banind/web"
)

const VERSION = "0.1.0"

func RunCmd() {
	if len(os.Args) < 2 {
		printAndExit()
	}
	args := os.Args[1:]
	runSubCmd(args, func(name string) (FuncEntry, []string) {
		var options []string
		var entry FuncEntry
		switch name {
		case "run":
			options = []string{"pairs", "timeframes", "families", "timerange", "force", "cpu_profile"}
			entry = biz.RunFill
		case "backfill":
			options = []string{"pairs", "timeframes", "families", "timerange", "cpu_profile"}
			entry = biz.RunBackfill
		case "detect":
			options = []string{"pairs", "timeframes", "families"}
			entry = biz.RunGapDetect
		case "report":
			options = []string{"pairs", "timeframes", "families", "timerange", "out", "out_type"}
			entry = biz.ExportReport
		case "web":
			options = []string{"port"}
			entry = web.Run
		case "kline":
			runKlineCmds(args[1:])
		case "init":
			entry = biz.InitDataDir
		case "version":
			fmt.Printf("banind %v\n", VERSION)
			os.Exit(0)
		}
		return entry, options
	}, printAndExit)
}

func printAndExit() {
	tpl := `
banind %v
please run with a subcommand:
	run:      detect and fill gaps of derived indicator columns
	backfill: recompute and overwrite the whole series
	detect:   scan gaps and print a report
	report:   export coverage report to xlsx/png
	web:      serve the query and trigger api
	kline:    run kline commands
	init:     initialize config.yml/config.local.yml in data dir
	version:  print version
`
	log.Warn(fmt.Sprintf(tpl, VERSION))
	os.Exit(1)
}

func runKlineCmds(args []string) {
	runSubCmd(args, func(name string) (FuncEntry, []string) {
		var options []string
		var entry FuncEntry
		switch name {
		case "load":
			options = []string{"in"}
			entry = biz.LoadKlines
		case "export":
			options = []string{"out", "pairs", "timerange"}
			entry = biz.ExportKlines
		default:
			return nil, nil
		}
		return entry, options
	}, func() {
		tpl := `
banind kline:
	load: 	load kline data from zip/csv files
	export: export kline data to csv files
please choose a valid action
`
		log.Warn(tpl)
		os.Exit(1)
	})
}
