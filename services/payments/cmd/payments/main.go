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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/paynow/paynow/libs/health"
	"github.com/paynow/paynow/libs/httpmiddleware"
	"github.com/paynow/paynow/libs/kafka"
	"github.com/paynow/paynow/libs/logging"
	"github.com/paynow/paynow/libs/metrics"
	"github.com/paynow/paynow/libs/trace"
	"github.com/paynow/paynow/services/payments/internal/agent"
	"github.com/paynow/paynow/services/payments/internal/atomicstore"
	"github.com/paynow/paynow/services/payments/internal/config"
	"github.com/paynow/paynow/services/payments/internal/events"
	"github.com/paynow/paynow/services/payments/internal/handlers"
	"github.com/paynow/paynow/services/payments/internal/idempotency"
	"github.com/paynow/paynow/services/payments/internal/rate"
	"github.com/paynow/paynow/services/payments/internal/service"
	"github.com/paynow/paynow/services/payments/internal/tools"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("payments service exited", slog.String("error", err.Error()))
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

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	store := atomicstore.New(rdb)
	limiter, err := rate.New(store, cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSec, "paynow:payments:rl:")
	if err != nil {
		return fmt.Errorf("init rate limiter: %w", err)
	}
	deduper := idempotency.New(store,
		idempotency.WithTTLs(cfg.Idempotency.PendingTTL, cfg.Idempotency.ResponseTTL))

	toolOpts := tools.Options{
		Timeout:    cfg.Collaborators.Timeout,
		Attempts:   cfg.Collaborators.Attempts,
		Backoff:    cfg.Collaborators.Backoff,
		ServiceKey: cfg.App.ServiceKey,
		Logger:     logger,
	}
	accounts := tools.NewAccountsClient(cfg.Collaborators.AccountsURL, toolOpts)
	risk := tools.NewRiskClient(cfg.Collaborators.RiskURL, toolOpts)
	cases := tools.NewCasesClient(cfg.Collaborators.CasesURL, toolOpts)

	policy := agent.Policy{
		HighAmount:     decimal.NewFromFloat(cfg.Policy.HighAmount),
		VeryHighAmount: decimal.NewFromFloat(cfg.Policy.VeryHighAmount),
		HighRiskScore:  cfg.Policy.HighRiskScore,
		ReasonWeight:   cfg.Policy.ReasonWeight,
	}
	decider := agent.New(accounts, risk, cases, policy, logger)

	var publisher service.EventPublisher
	if cfg.Kafka.Enabled {
		producer, perr := kafka.NewSyncProducer(cfg.Kafka.Brokers, logger, kafka.NewProducerMetrics(registry))
		if perr != nil {
			return fmt.Errorf("init kafka producer: %w", perr)
		}
		defer producer.Close()
		publisher = events.NewPublisher(producer, logger)
	}

	svc := service.New(decider, limiter, deduper, publisher, svcMetrics, logger)

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

	handlers.NewHandler(svc, logger).Register(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("payments service listening", slog.String("addr", srv.Addr))
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
