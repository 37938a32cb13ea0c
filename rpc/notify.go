package rpc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/banbox/banexg/errs"
	"github.com/banbox/banexg/log"
	"github.com/banbox/banexg/utils"
	"github.com/banbox/banind/config"
	"github.com/banbox/banind/core"
)

var (
	channels = make([]IWebHook, 0, 2)
)

func InitRPC() *errs.Error {
	return initWebHooks()
}

func initWebHooks() *errs.Error {
	if len(config.RPCChannels) == 0 {
		log.Info("no channels, skip send rpc msg")
		return nil
	}
	for name, item := range config.RPCChannels {
		chlType := utils.GetMapVal(item, "type", "")
		var channel IWebHook
		switch chlType {
		case "webhook":
			channel = NewHttpHook(name, item)
		default:
			return errs.NewMsg(core.ErrBadConfig, "RPCChannel not support: %v", chlType)
		}
		if channel.IsDisable() {
			continue
		}
		go channel.ConsumeForever()
		channels = append(channels, channel)
	}
	if len(channels) == 0 {
		log.Info("no channels, skip send rpc msg")
	}
	return nil
}

/*
SendMsg 把消息分发给全部已启用渠道。
msg须含type字段，content缺省时按字段名排序拼接生成。
*/
func SendMsg(msg map[string]interface{}) {
	if len(channels) == 0 {
		return
	}
	msgType := utils.GetMapVal(msg, "type", "")
	if msgType == "" {
		msgType = MsgTypeStatus
	}
	payload := map[string]string{
		"type":    msgType,
		"name":    config.Name,
		"content": renderContent(msg),
	}
	for _, chl := range channels {
		chl.SendMsg(msgType, payload)
	}
}

func renderContent(msg map[string]interface{}) string {
	if content := utils.GetMapVal(msg, "content", ""); content != "" {
		return content
	}
	keys := make([]string, 0, len(msg))
	for k := range msg {
		if k == "type" || k == "content" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("%s: %v", k, msg[k]))
	}
	return b.String()
}

func CleanUp() {
	for _, chl := range channels {
		chl.SetDisable(true)
	}
	for _, chl := range channels {
		chl.CleanUp()
	}
	channels = make([]IWebHook, 0, 2)
}
