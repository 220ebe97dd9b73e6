package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edulead_chat_server/internal/config"
	dao "edulead_chat_server/internal/dao/mysql"
	myredis "edulead_chat_server/internal/dao/redis"
	"edulead_chat_server/internal/handler"
	"edulead_chat_server/internal/https_server"
	"edulead_chat_server/internal/infrastructure/logger"
	"edulead_chat_server/internal/notify"
	"edulead_chat_server/internal/presence"
	"edulead_chat_server/internal/service/chat"
	"edulead_chat_server/internal/service/chatflow"
	"edulead_chat_server/pkg/constants"
	"edulead_chat_server/pkg/util/jwt"
	"edulead_chat_server/pkg/util/snowflake"

	"go.uber.org/zap"
)

func main() {
	conf := config.GetConfig()

	if err := logger.Init(&conf.LogConfig, "dev"); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	zap.L().Info("logger initialized")

	dao.Init()
	zap.L().Info("mysql initialized")

	myredis.Init()
	zap.L().Info("redis initialized")

	jwt.Init(conf.JWTConfig.Secret, conf.JWTConfig.AccessTokenExpiry)
	snowflake.Init(conf.SnowflakeConfig.MachineID)

	store := myredis.GetStore()

	// Presence, pending queue and dedup ledger all live in the shared
	// store so every instance sees the same state.
	idleTimeout := secondsOr(conf.ChatConfig.IdleTimeoutSeconds, constants.DEFAULT_IDLE_TIMEOUT)
	registry := presence.NewRegistry(store, 2*idleTimeout)

	pendingTTL := constants.DEFAULT_PENDING_TTL
	if conf.ChatConfig.PendingTTLHours > 0 {
		pendingTTL = time.Duration(conf.ChatConfig.PendingTTLHours) * time.Hour
	}
	pendingCap := int64(conf.ChatConfig.PendingCap)
	if pendingCap <= 0 {
		pendingCap = constants.DEFAULT_PENDING_CAP
	}
	queue := notify.NewQueue(store, pendingCap, pendingTTL)

	dedupWindow := secondsOr(conf.ChatConfig.DedupWindowSeconds, constants.DEFAULT_DEDUP_WINDOW)
	ledger := notify.NewLedger(store, dedupWindow)

	dispatcher := notify.NewDispatcher(registry, queue, ledger, nil, nil)

	assigner := chatflow.NewHTTPAssigner(
		conf.AssignerConfig.BaseURL,
		time.Duration(conf.AssignerConfig.TimeoutSeconds)*time.Second,
	)
	hours := chatflow.NewWindow(conf.ChatConfig.BusinessOpenHour, conf.ChatConfig.BusinessCloseHour)
	flow := chatflow.NewService(dao.Repos, store, dispatcher, assigner, hours, nil)

	chatServer := chat.NewChatServer(chat.ChatServerConfig{
		Mode:          conf.KafkaConfig.BackplaneMode,
		Registry:      registry,
		Dispatcher:    dispatcher,
		Flow:          flow,
		Repos:         dao.Repos,
		TabGrace:      secondsOr(conf.ChatConfig.TabGraceSeconds, constants.DEFAULT_TAB_GRACE),
		KafkaHostPort: conf.KafkaConfig.HostPort,
		KafkaTopic:    conf.KafkaConfig.GatewayTopic,
		KafkaTimeout:  conf.KafkaConfig.Timeout * time.Second,
	})

	// The gateway, the dispatcher and the lifecycle manager reference
	// each other; the last two links are injected here.
	dispatcher.SetEmitter(chatServer.Gateway)
	flow.SetBroadcaster(chatServer.Gateway)
	zap.L().Info("chat server initialized", zap.String("mode", conf.KafkaConfig.BackplaneMode))

	reaper := presence.NewReaper(
		registry,
		secondsOr(conf.ChatConfig.ReapIntervalSeconds, constants.DEFAULT_REAP_INTERVAL),
		idleTimeout,
		chatServer.Gateway.NotifyIdle,
	)
	go reaper.Start()

	chatServer.Start()

	if err := handler.InitTrans("en"); err != nil {
		zap.L().Fatal("init validator translator failed", zap.Error(err))
	}
	handlers := handler.NewHandlers(flow, dao.Repos, chatServer.Gateway)
	engine := https_server.Init(handlers)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", conf.MainConfig.Host, conf.MainConfig.Port),
		Handler: engine,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("server run failed", zap.Error(err))
		}
	}()
	zap.L().Info("server started", zap.String("addr", srv.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("shutting down")

	reaper.Close()
	chatServer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.L().Error("server shutdown failed", zap.Error(err))
	}
	zap.L().Info("server stopped")
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
