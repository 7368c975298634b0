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

	"github.com/joho/godotenv"

	"github.com/crewline/crewline/internal/app"
	"github.com/crewline/crewline/internal/billing"
	"github.com/crewline/crewline/internal/invoicing"
	"github.com/crewline/crewline/internal/platform/cache"
	"github.com/crewline/crewline/internal/platform/db"
	"github.com/crewline/crewline/internal/summary"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	policy, err := cfg.Policy()
	if err != nil {
		logger.Error("parse billing policy", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	summaryCache := summary.NewCache(redisClient, logger, cfg.SummaryCacheTTL)

	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, billing.Policy{
		MarginLowPct:        policy.MarginLowPct,
		MarginVeryLowPct:    policy.MarginVeryLowPct,
		ExpenseRatioWarnPct: policy.ExpenseRatioWarnPct,
	}, logger, summaryCache)
	billingHandler := billing.NewHandler(logger, billingService)

	invoicingRepo := invoicing.NewRepository(pool)
	invoicingService := invoicing.NewService(invoicingRepo, logger, summaryCache)
	invoicingHandler := invoicing.NewHandler(logger, invoicingService)

	summaryRepo := summary.NewRepository(pool)
	summaryService := summary.NewService(summaryRepo, summaryCache, logger, policy.VATFallbackRate)
	summaryHandler := summary.NewHandler(logger, summaryService)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		BillingHandler:   billingHandler,
		InvoicingHandler: invoicingHandler,
		SummaryHandler:   summaryHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
