package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signaling-platform/internal/auth"
	"signaling-platform/internal/call"
	"signaling-platform/internal/config"
	"signaling-platform/internal/delivery"
	"signaling-platform/internal/history"
	"signaling-platform/internal/presence"
	"signaling-platform/internal/push"
	"signaling-platform/internal/signaling"
	"signaling-platform/internal/ws"
	"signaling-platform/pkg/logger"
	"signaling-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	registry := presence.NewRedisRegistry(rdb, cfg.Presence.SessionTTL, cfg.Presence.PresenceTTL)
	store := call.NewRedisStore(rdb, cfg.Call.LiveTTL, cfg.Call.TerminalGrace)

	// Every process gets its own origin id so the fanout bridge can skip
	// messages it published itself.
	bridge := delivery.NewRedisBridge(rdb, uuid.NewString(), log)
	hub := delivery.NewHub()
	notifier := delivery.NewNotifier(hub, registry, bridge, log)
	bridge.Bind(notifier)
	go func() {
		if err := bridge.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("fanout bridge stopped", "err", err)
			stop()
		}
	}()

	var pusher push.Sender = push.Noop{}
	if cfg.Push.FirebaseCredentialsFile != "" {
		fcm, err := push.NewFCMSender(rootCtx, cfg.Push.FirebaseCredentialsFile)
		if err != nil {
			log.Error("fcm init failed", "err", err)
			os.Exit(1)
		}
		pusher = fcm
	} else {
		log.Warn("push disabled, no firebase credentials configured")
	}

	archive := history.NewService(history.NewPostgresRepo(db), log)
	router := signaling.NewRouter(store, registry, notifier, pusher, archive,
		signaling.Config{
			RingingTimeout: cfg.Call.RingingTimeout,
			AckTimeout:     cfg.Call.AckTimeout,
		}, log)
	defer router.Timeouts().Stop()

	wsHandler := ws.NewHandler(authManager, router, registry, hub, notifier, log)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, wsHandler, archive, registry, authManager, db, rdb)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Websocket connections outlive any write timeout; leave it off and
		// let the ping/pong deadlines police dead peers.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("signaling api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
