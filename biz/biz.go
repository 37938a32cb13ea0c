package biz

import (
	"context"

	"github.com/banbox/banexg/errs"
	"github.com/banbox/banexg/log"
	"github.com/banbox/banind/config"
	"github.com/banbox/banind/core"
	"github.com/banbox/banind/orm"
	"github.com/banbox/banind/rpc"
	"go.uber.org/zap/zapcore"
)

/*
SetupComs 初始化公共组件：上下文、配置、日志、缓存、通知渠道、数据库。
所有子命令入口都应最先调用此方法。
Initialize shared components; every subcommand entry calls this first.
*/
func SetupComs(args *config.CmdArgs) *errs.Error {
	ctx, cancel := context.WithCancel(context.Background())
	core.Ctx = ctx
	core.StopAll = cancel
	err := config.LoadConfig(args)
	if err != nil {
		return err
	}
	var logCores []zapcore.Core
	if len(config.RPCChannels) > 0 {
		// 配置了通知渠道时，Error及以上日志转发到渠道
		logCores = append(logCores, rpc.NewExcNotify())
	}
	log.Setup(args.LogLevel, args.Logfile, logCores...)
	err = core.Setup()
	if err != nil {
		return err
	}
	err = rpc.InitRPC()
	if err != nil {
		return err
	}
	if core.NoDB {
		return nil
	}
	return orm.Setup()
}

/*
CleanUp 进程退出前回收公共组件，等待通知渠道发送完毕。
*/
func CleanUp() {
	rpc.CleanUp()
	core.RunExitCalls()
}
