package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/SamvelMkhitarian/messenger/internal/cache"
	"github.com/SamvelMkhitarian/messenger/internal/config"
	"github.com/SamvelMkhitarian/messenger/internal/db"
	clog "github.com/SamvelMkhitarian/messenger/internal/log"
	"github.com/SamvelMkhitarian/messenger/internal/relay"
	"github.com/SamvelMkhitarian/messenger/internal/server"
	"github.com/SamvelMkhitarian/messenger/internal/store"
	"github.com/SamvelMkhitarian/messenger/internal/ws"

	"github.com/rs/zerolog/log"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库与可选的 Redis/NATS，并启动 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env, cfg.LogLevel)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	gdb, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseDSN, cfg.DatabaseDebug)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var hc *cache.HistoryCache
	if cfg.RedisAddr != "" {
		rc := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rc.Ping(pctx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, history cache disabled")
			_ = rc.Close()
		} else {
			hc = cache.NewHistoryCache(rc)
			defer rc.Close()
		}
	}

	hub := ws.NewHub()
	deps := server.Deps{Store: store.New(gdb), Hub: hub, Cache: hc}
	if cfg.NatsURL != "" {
		rl, err := relay.Connect(cfg.NatsURL, hub)
		if err != nil {
			log.Fatal().Err(err).Msg("nats relay")
		}
		defer rl.Close()
		deps.Broadcaster = rl
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.SetupRouter(cfg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
}
