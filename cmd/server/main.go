// Command server runs the clipboard snippet storage API: an HTTP
// front end backed by a PostgreSQL metadata store, a Redis recency
// queue, and an in-process chunking/compression pipeline with a
// bounded async scheduler for background processing.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kenneth/clipboard-service/internal/api"
	"github.com/kenneth/clipboard-service/internal/audit"
	"github.com/kenneth/clipboard-service/internal/config"
	"github.com/kenneth/clipboard-service/internal/debug"
	"github.com/kenneth/clipboard-service/internal/metrics"
	"github.com/kenneth/clipboard-service/internal/middleware"
	"github.com/kenneth/clipboard-service/internal/pipeline"
	"github.com/kenneth/clipboard-service/internal/recency"
	"github.com/kenneth/clipboard-service/internal/scheduler"
	"github.com/kenneth/clipboard-service/internal/snippet"
	"github.com/kenneth/clipboard-service/internal/store"
	"github.com/kenneth/clipboard-service/internal/tracing"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "server",
		Short: "Run the clipboard snippet storage API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to an optional YAML config overlay")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	debug.InitFromLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := tracing.NewProvider(ctx, tracing.Config{
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("build tracer provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("tracer provider shutdown did not complete cleanly")
		}
	}()

	pool, err := store.Connect(ctx, cfg.Store.DSN, cfg.Store.MaxConns)
	if err != nil {
		return fmt.Errorf("connect to store: %w", err)
	}
	defer pool.Close()

	if err := store.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	st := store.New(pool)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	defer redisClient.Close()
	rq := recency.New(redisClient, cfg.Redis.Capacity, cfg.Redis.Timeout)

	pl := pipeline.New(pipeline.Config{
		ChunkSize:      cfg.Pipeline.ChunkSize,
		Workers:        cfg.Pipeline.Workers,
		SearchBoundary: cfg.Pipeline.SearchBoundary,
		CompressionLvl: cfg.Pipeline.CompressionLvl,
	})

	sch := scheduler.New(cfg.Sched.QueueSize, cfg.Sched.Workers)

	auditLogger, err := audit.NewLoggerFromConfig(cfg.Audit)
	if err != nil {
		return fmt.Errorf("build audit logger: %w", err)
	}
	defer auditLogger.Close()

	svc := snippet.New(st, rq, pl, sch, auditLogger, cfg.Snippet, logger)

	m := metrics.NewMetrics()
	m.StartSystemMetricsCollector()
	go reportSchedulerDepth(ctx, sch, m)

	handler := api.NewHandler(svc, logger, m)
	router := mux.NewRouter()
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.LoggingMiddleware(logger))
	handler.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: otelhttp.NewHandler(router, "clipboard-service"),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.Server.Addr).Info("starting snippet API")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http server shutdown did not complete cleanly")
	}
	if err := sch.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("scheduler shutdown did not complete cleanly")
	}

	return nil
}

func reportSchedulerDepth(ctx context.Context, sch *scheduler.Scheduler, m *metrics.Metrics) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetSchedulerQueueDepth(sch.QueueDepth())
		}
	}
}

func newLogger(level, format string) *logrus.Logger {
	logger := logrus.New()

	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	return logger
}
