package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fundacion-cms/content-scheduler/config"
	"github.com/fundacion-cms/content-scheduler/internal/email"
	"github.com/fundacion-cms/content-scheduler/internal/health"
	"github.com/fundacion-cms/content-scheduler/internal/infrastructure/backend"
	ctxlog "github.com/fundacion-cms/content-scheduler/internal/log"
	"github.com/fundacion-cms/content-scheduler/internal/metrics"
	"github.com/fundacion-cms/content-scheduler/internal/scheduler"
	"github.com/fundacion-cms/content-scheduler/internal/tracing"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := ctxlog.New(cfg.Env, cfg.SlogLevel(), os.Stdout)

	shutdownTracing, err := tracing.Init("content-scheduler-poller", cfg.Env, cfg.OtelExporter)
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	stores, err := backend.Open(ctx, cfg.Store, logger)
	if err != nil {
		stop()
		log.Fatalf("store: %v", err)
	}
	defer stores.Close()

	logger.Info("store connected", "store", stores.Name)

	metrics.Register()
	checker := health.NewChecker(stores.Pinger, stores.Name, logger, prometheus.DefaultRegisterer)

	var notifier scheduler.FailureNotifier
	if cfg.AlertEmail != "" {
		sender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
		notifier = email.NewFailureAlerter(sender, cfg.AlertEmail)
	}

	executor := scheduler.NewExecutor(stores.Schedules, stores.Contents, logger)
	poller := scheduler.NewPoller(stores.Schedules, executor, notifier, logger, cfg.PollBatchSize)

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	// Start blocks until ctx is cancelled and the in-flight pass has finished.
	if err := poller.Start(ctx, cfg.PollSchedule); err != nil {
		logger.Error("poller", "error", err)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
}
