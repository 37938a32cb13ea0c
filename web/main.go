package web

import (
	"fmt"
	"strings"

	"github.com/banbox/banexg/errs"
	"github.com/banbox/banexg/log"
	"github.com/banbox/banind/biz"
	"github.com/banbox/banind/config"
	"github.com/banbox/banind/core"
	"github.com/banbox/banind/orm"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"
)

/*
Run 启动状态查询与补算触发的API服务，阻塞到进程退出。
*/
func Run(args *config.CmdArgs) *errs.Error {
	if err := biz.SetupComs(args); err != nil {
		return err
	}
	cfg := config.APIServer
	if cfg == nil {
		cfg = &config.APIServerConfig{}
	}
	port := cfg.ListenPort
	if args.Port > 0 {
		port = args.Port
	}
	if port == 0 {
		port = 8000
	}
	host := cfg.ListenIPAddress
	if host == "" {
		host = "0.0.0.0"
	}
	num := len(orm.GetAllExSymbols())
	log.Info("loaded symbols", zap.Int("num", num))

	app := fiber.New(fiber.Config{
		AppName:      "banind",
		ErrorHandler: ErrHandler,
	})

	origins := "*"
	if len(cfg.CORSOrigins) > 0 {
		origins = strings.Join(cfg.CORSOrigins, ", ")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "*",
		AllowHeaders:     "*",
		AllowCredentials: len(cfg.CORSOrigins) > 0,
		ExposeHeaders:    "*",
	}))

	// 注册API路由
	regApiPub(app.Group(""))
	api := app.Group("/api")
	if cfg.JWTSecretKey != "" {
		api.Post("/run", AuthMiddleware(cfg.JWTSecretKey), postRun)
	} else {
		// 未配置密钥时不鉴权，仅建议内网使用
		log.Warn("api_server.jwt_secret_key not set, /api/run is unauthenticated")
		api.Post("/run", postRun)
	}
	regApiBiz(api)
	regApiWebsocket(app.Group("/api/ws"))

	// 补算进度推送到websocket客户端
	initProgressPush()

	addr := fmt.Sprintf("%s:%v", host, port)
	log.Info("serve api at", zap.String("addr", addr))
	err_ := app.Listen(addr)
	if err_ != nil {
		return errs.New(core.ErrNetConnect, err_)
	}
	return nil
}
