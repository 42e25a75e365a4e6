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

	"amora-platform/internal/audit"
	"amora-platform/internal/auth"
	"amora-platform/internal/callstore"
	"amora-platform/internal/coins"
	"amora-platform/internal/config"
	"amora-platform/internal/directory"
	"amora-platform/internal/httpapi"
	"amora-platform/internal/messaging"
	"amora-platform/internal/payments"
	"amora-platform/internal/pricing"
	"amora-platform/internal/reporting"
	"amora-platform/internal/rtc"
	"amora-platform/internal/ws"
	"amora-platform/pkg/logger"
	"amora-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local convenience; real environments inject env directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	tokens, err := rtc.NewTokenBuilder(cfg.RTC.AppID, cfg.RTC.AppCertificate, cfg.RTC.TokenTTL)
	if err != nil {
		log.Error("rtc token builder init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
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

	// Services
	users := directory.NewService(directory.NewPostgresRepo(db), rdb)
	coinSvc := coins.NewService(db)
	rates := pricing.NewService(pricing.NewPostgresRepo(db), cfg.Call.CostCoins, cfg.Call.MessageCostCoins)
	calls := callstore.NewService(callstore.NewPostgresStore(db, rdb, log), users, coinSvc, rates, rdb, log)
	messages := messaging.NewService(messaging.NewPostgresRepo(db), coinSvc, users, rates)
	gateway := payments.NewRazorpayGateway(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret)
	topups := payments.NewService(payments.NewPostgresRepo(db), gateway, coinSvc, cfg.Razorpay.WebhookSecret, log)
	reports := reporting.NewService(reporting.NewPostgresRepo(db))
	auditLog := audit.NewService(audit.NewPostgresRepo(db))
	hub := ws.NewHub(log)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:     authManager,
		Users:    users,
		Coins:    coinSvc,
		Calls:    calls,
		Messages: messages,
		Payments: topups,
		Reports:  reports,
		Audit:    auditLog,
		Tokens:   tokens,
		Hub:      hub,
		Log:      log,
	}
	registerRoutes(r, h, auth.RequireAccessToken(authManager), cfg.App.AdminUserIDs)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
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
