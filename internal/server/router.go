package server

import (
	"context"
	"net/http"
	"time"

	"github.com/SamvelMkhitarian/messenger/internal/auth"
	"github.com/SamvelMkhitarian/messenger/internal/cache"
	"github.com/SamvelMkhitarian/messenger/internal/config"
	"github.com/SamvelMkhitarian/messenger/internal/metrics"
	"github.com/SamvelMkhitarian/messenger/internal/mw"
	"github.com/SamvelMkhitarian/messenger/internal/service"
	"github.com/SamvelMkhitarian/messenger/internal/store"
	"github.com/SamvelMkhitarian/messenger/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Deps are the long-lived components the router wires into handlers.
// Cache and Broadcaster may be nil; the hub then broadcasts directly.
type Deps struct {
	Store       *store.Store
	Hub         *ws.Hub
	Broadcaster service.Broadcaster
	Cache       *cache.HistoryCache
}

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env, cfg.CORSOrigins))
	// 控制单个 IP+路由的速率。
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	resolver := auth.NewTokenResolver(d.Store, cfg.JWTSecret)
	userSvc := service.NewUserService(d.Store, cfg)
	chatSvc := service.NewChatService(d.Store, d.Hub)
	msgSvc := service.NewMessageService(d.Store, d.Cache, cfg.HistoryLimit)
	receiptSvc := service.NewReceiptService(d.Store, d.Cache)
	h := NewHandler(userSvc, chatSvc, msgSvc)

	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := d.Store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.RefreshToken)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(resolver.Middleware())
	authed.POST("/chats", h.CreateChat)
	authed.GET("/chats", h.ListChats)
	authed.GET("/chats/:id/messages", h.ListMessages)
	authed.POST("/groups/:id/join", h.JoinGroup)

	wsh := ws.NewHandler(ws.Options{
		Hub:          d.Hub,
		Broadcaster:  d.Broadcaster,
		Resolver:     resolver,
		Chats:        chatSvc,
		Messages:     msgSvc,
		Receipts:     receiptSvc,
		MessageRate:  cfg.WsMessageRate,
		MessageBurst: cfg.WsMessageBurst,
	})
	// 握手需要查库鉴权，单独按 IP 限速。
	r.GET("/ws/chat/:chat_id", mw.HandshakeLimit(rate.Every(time.Second), 10), wsh.Serve)
	return r
}
