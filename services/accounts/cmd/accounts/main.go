package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/paynow/paynow/libs/health"
	"github.com/paynow/paynow/libs/httpmiddleware"
	"github.com/paynow/paynow/libs/logging"
	"github.com/paynow/paynow/libs/metrics"
	"github.com/paynow/paynow/libs/trace"
	"github.com/paynow/paynow/services/accounts/internal/config"
	"github.com/paynow/paynow/services/accounts/internal/handlers"
	"github.com/paynow/paynow/services/accounts/internal/service"
	"github.com/paynow/paynow/services/accounts/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("accounts service exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.App.LogLevel, cfg.App.ServiceName, cfg.App.Env)
	slog.SetDefault(logger)

	shutdownTracer, err := trace.InitTracer(cfg.App.ServiceName, cfg.App.Env)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)
	svcMetrics := service.NewMetrics()
	svcMetrics.Register(registry)

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.ConnConfig.ConnectTimeout = cfg.Database.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	store := storage.NewStore(pool, logger, storage.WithHoldTTL(cfg.Database.HoldTTL))
	svc := service.New(store, svcMetrics, logger)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go svc.RunSweeper(sweepCtx, cfg.Database.SweeperInterval)

	healthMgr := health.NewManager(false)

	if cfg.App.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		httpmiddleware.RequestID(),
		trace.Middleware(cfg.App.ServiceName),
		httpmiddleware.Logger(logger),
		httpmiddleware.Recovery(logger),
	)

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(healthMgr))
	router.GET(cfg.App.MetricsPath, gin.WrapH(metrics.Handler(registry)))

	handlers.NewHandler(svc, logger).Register(router, cfg.App.ServiceKey)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("accounts service listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	healthMgr.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	healthMgr.SetReady(false)
	stopSweeper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := shutdownTracer(ctx); err != nil {
		logger.Warn("tracer shutdown", slog.String("error", err.Error()))
	}
	return nil
}
