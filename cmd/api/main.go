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

	"estate-platform/internal/audit"
	"estate-platform/internal/auth"
	"estate-platform/internal/billing"
	"estate-platform/internal/config"
	"estate-platform/internal/dispute"
	"estate-platform/internal/httpapi"
	"estate-platform/internal/journal"
	"estate-platform/internal/ledger"
	"estate-platform/internal/notify"
	"estate-platform/internal/payerr"
	"estate-platform/internal/payments"
	"estate-platform/internal/provider"
	"estate-platform/internal/recurring"
	"estate-platform/pkg/logger"
	"estate-platform/pkg/utils"

	"github.com/gin-gonic/gin"
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

	// Notifications: async, never block money paths.
	dispatcher := notify.NewAsyncDispatcher(notify.LogSink{Log: log}, log, 0)
	defer dispatcher.Close()

	// Gateway adapters, keyed by the provider enum on each utility config.
	registry := provider.NewRegistry()
	registry.Register(provider.APIProviderPaystack,
		provider.NewPaystackGateway(cfg.Provider.PaystackBaseURL, cfg.Provider.PaystackSecretKey, cfg.Provider.RequestTimeout))
	registry.Register(provider.APIProviderCash, provider.NewStubGateway("cash"))

	// Core services. The ledger has no domain dependencies; everything else
	// layers on top of it through narrow interfaces.
	ledgerSvc := ledger.NewService(ledger.NewPostgresRepo(db))
	journalSvc := journal.NewService(journal.NewPostgresRepo(db), ledgerSvc)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	providerRepo := provider.NewPostgresRepo(db)
	errorRecorder := payerr.NewRecorder(payerr.NewPostgresRepo(db), dispatcher)

	disputeSvc := dispute.NewService(dispute.NewPostgresRepo(db), nil, auditSvc, dispatcher)
	billingSvc := billing.NewService(billing.NewPostgresRepo(db), journalSvc, ledgerSvc, disputeSvc, dispatcher)
	disputeSvc.SetBills(billingSvc)

	paymentsSvc := payments.NewService(journalSvc, ledgerSvc, billingSvc, errorRecorder, providerRepo, registry, auditSvc, dispatcher)
	recurringSvc := recurring.NewService(recurring.NewPostgresRepo(db), paymentsSvc, billingSvc, ledgerSvc,
		recurring.NewRedisLocker(rdb, 30*time.Second), dispatcher)

	h := httpapi.Handlers{
		Auth:      authManager,
		Ledger:    ledgerSvc,
		Journal:   journalSvc,
		Bills:     billingSvc,
		Disputes:  disputeSvc,
		Recurring: recurringSvc,
		Payments:  paymentsSvc,
		Errors:    errorRecorder,
		Providers: providerRepo,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, h, auth.RequireAccessToken(authManager))

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
