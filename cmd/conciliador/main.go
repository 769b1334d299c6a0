package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/Gustavohsdd/araujo-ptc/internal/allocation"
	"github.com/Gustavohsdd/araujo-ptc/internal/app"
	"github.com/Gustavohsdd/araujo-ptc/internal/ingest"
	"github.com/Gustavohsdd/araujo-ptc/internal/observability"
	"github.com/Gustavohsdd/araujo-ptc/internal/platform/cache"
	"github.com/Gustavohsdd/araujo-ptc/internal/platform/db"
	"github.com/Gustavohsdd/araujo-ptc/internal/procurement"
	"github.com/Gustavohsdd/araujo-ptc/internal/reconcile"
	"github.com/Gustavohsdd/araujo-ptc/internal/shared"
	"github.com/Gustavohsdd/araujo-ptc/jobs"
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

	metrics := observability.NewMetrics()
	newLock := shared.CommitLocker(redisClient)

	ingestRepo := ingest.NewRepository(pool)
	ingestService := ingest.NewService(ingestRepo, newLock, logger, metrics)
	ingestHandler := ingest.NewHandler(logger, ingestService)

	procurementRepo := procurement.NewRepository(pool)
	procurementService := procurement.NewService(procurementRepo)
	procurementHandler := procurement.NewHandler(logger, procurementService)

	reconcileRepo := reconcile.NewRepository(pool)
	reconcileService := reconcile.NewService(reconcileRepo, procurementService, logger)
	reconcileHandler := reconcile.NewHandler(logger, reconcileService)

	allocationRepo := allocation.NewRepository(pool)
	allocationService := allocation.NewService(allocationRepo, newLock, logger, metrics)
	allocationHandler := allocation.NewHandler(logger, allocationService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		IngestHandler:      ingestHandler,
		ReconcileHandler:   reconcileHandler,
		AllocationHandler:  allocationHandler,
		ProcurementHandler: procurementHandler,
		JobHandler:         jobHandler,
		Pool:               pool,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
