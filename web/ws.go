package web

import (
	"github.com/banbox/banexg/log"
	"github.com/banbox/banexg/utils"
	"github.com/banbox/banind/biz"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"
)

var (
	wsClients = map[*WsClient]bool{}
	wsLock    deadlock.Mutex
)

type WsClient struct {
	Conn   *websocket.Conn
	remote string
}

func regApiWebsocket(api fiber.Router) {
	api.Get("/progress", websocket.New(wsProgress))
}

func wsProgress(c *websocket.Conn) {
	client := &WsClient{Conn: c, remote: c.RemoteAddr().String()}
	wsLock.Lock()
	wsClients[client] = true
	wsLock.Unlock()
	client.HandleForever()
}

// initProgressPush 注册补算进度回调，向所有已连接客户端广播
func initProgressPush() {
	biz.AddPrgCB("web", pushRunPrg)
}

func pushRunPrg(runID int64, pair, tf, family, stage string, progress float64) {
	wsLock.Lock()
	defer wsLock.Unlock()
	if len(wsClients) == 0 {
		return
	}
	raw, err := utils.Marshal(map[string]interface{}{
		"runId":    runID,
		"pair":     pair,
		"tf":       tf,
		"family":   family,
		"stage":    stage,
		"progress": progress,
	})
	if err != nil {
		log.Warn("marshal ws progress fail", zap.Error(err))
		return
	}
	for c := range wsClients {
		err_ := c.Conn.WriteMessage(websocket.TextMessage, raw)
		if err_ != nil {
			log.Debug("write to ws fail", zap.Error(err_))
			c.Close(false)
		}
	}
}

func (c *WsClient) HandleForever() {
	log.Debug("ws client joined", zap.String("ip", c.remote))
	for {
		if c.Conn == nil {
			break
		}
		mt, data, err := c.Conn.ReadMessage()
		if err != nil {
			c.Close(true)
			break
		}
		if mt == websocket.CloseMessage {
			c.Close(true)
			break
		}
		if mt != websocket.TextMessage {
			continue
		}
		var msg = map[string]interface{}{}
		err = utils.Unmarshal(data, &msg, utils.JsonNumAuto)
		if err != nil {
			log.Info("unexpected ws msg", zap.String("str", string(data)))
			continue
		}
		switch msg["action"] {
		case "ping":
			c.WriteMsg(map[string]interface{}{"action": "pong"})
		default:
			c.WriteMsg(map[string]interface{}{"error": "unsupported action"})
		}
	}
}

// WriteMsg 发送消息；与广播共用wsLock，避免并发写同一连接
func (c *WsClient) WriteMsg(msg map[string]interface{}) {
	wsLock.Lock()
	defer wsLock.Unlock()
	if c.Conn == nil {
		return
	}
	data, err := utils.Marshal(msg)
	if err != nil {
		log.Warn("marshal ws msg fail", zap.Error(err))
		return
	}
	err = c.Conn.WriteMessage(websocket.TextMessage, data)
	if err != nil {
		log.Warn("write ws msg fail", zap.Error(err))
	}
}

func (c *WsClient) Close(lock bool) {
	if lock {
		wsLock.Lock()
		defer wsLock.Unlock()
	}
	delete(wsClients, c)
	if c.Conn != nil {
		_ = c.Conn.Close()
		c.Conn = nil
	}
	log.Debug("ws client removed", zap.String("addr", c.remote))
}
