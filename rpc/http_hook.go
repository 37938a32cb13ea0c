package rpc

import (
	"github.com/banbox/banexg/log"
	"github.com/banbox/banexg/utils"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

/*
HttpHook 通用HTTP回调渠道，把渲染后的消息逐条POST到配置的地址。

rpc_channels.my_hook:

	type: webhook
	webhook_url: https://example.com/hooks/banind
	method: POST
	msg_types: [run_done, run_fail, exception]
	retry_num: 2
	retry_delay: 10
*/
type HttpHook struct {
	*WebHook
	url    string
	method string
}

func NewHttpHook(name string, item map[string]interface{}) *HttpHook {
	hook := NewWebHook(name, item)
	res := &HttpHook{
		WebHook: hook,
		url:     utils.GetMapVal(item, "webhook_url", ""),
		method:  utils.GetMapVal(item, "method", "POST"),
	}
	if res.url == "" {
		panic(name + ": `webhook_url` is required")
	}
	res.doSendMsgs = makeDoSendMsgHttp(res)
	return res
}

func makeDoSendMsgHttp(h *HttpHook) func([]map[string]string) int {
	return func(msgList []map[string]string) int {
		sentNum := 0
		for _, msg := range msgList {
			body, err_ := sonic.MarshalString(msg)
			if err_ != nil {
				log.Error("webhook marshal req fail", zap.Error(err_))
				sentNum += 1
				continue
			}
			rsp := h.request(h.method, h.url, body)
			if rsp.Error != nil {
				log.Warn("webhook post fail", zap.String("name", h.GetName()), zap.Error(rsp.Error))
				break
			}
			if rsp.Status >= 400 {
				log.Warn("webhook post rejected", zap.String("name", h.GetName()),
					zap.Int("status", rsp.Status), zap.String("body", rsp.Content))
				break
			}
			sentNum += 1
		}
		return sentNum
	}
}
