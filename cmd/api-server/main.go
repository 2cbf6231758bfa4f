package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/blyssuz/booking-flow/internal/api"
	"github.com/blyssuz/booking-flow/internal/booking"
	"github.com/blyssuz/booking-flow/internal/catalog"
	"github.com/blyssuz/booking-flow/internal/config"
	"github.com/blyssuz/booking-flow/internal/db"
	"github.com/blyssuz/booking-flow/internal/logging"
	redisclient "github.com/blyssuz/booking-flow/internal/redis"
	"github.com/blyssuz/booking-flow/internal/scheduler"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.IsProduction())
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	deps := booking.Deps{
		Scheduler: scheduler.NewClient(cfg.SchedulerBaseURL, cfg.SchedulerTimeout, cfg.SchedulerRPS, logger.Named("scheduler")),
		Catalog:   catalog.NewPgRepository(pgPool),
		Persister: redisclient.NewSelectionStore(rdb, cfg.SelectionTTL),
		Logger:    logger.Named("booking"),
	}
	registry := booking.NewRegistry(deps, cfg.FlowIdleTTL)
	go registry.RunSweeper(rootCtx, cfg.SweepInterval)

	router := api.NewRouter(api.RouterConfig{
		Registry: registry,
		Locker:   redisclient.NewRedisFlowLocker(rdb, cfg.LockTTL),
		PgPool:   pgPool,
		Redis:    rdb,
		Logger:   logger.Named("http"),
		Env:      cfg.Env,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		// a submit may chain scheduler calls behind the flow lock
		WriteTimeout: cfg.LockTTL + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("config",
		zap.Duration("scheduler_timeout", cfg.SchedulerTimeout),
		zap.Float64("scheduler_rps", cfg.SchedulerRPS),
		zap.Duration("selection_ttl", cfg.SelectionTTL),
		zap.Duration("lock_ttl", cfg.LockTTL),
		zap.Duration("flow_idle_ttl", cfg.FlowIdleTTL))

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		logger.Error("http server error", zap.Error(err))
	}

	logger.Info("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
