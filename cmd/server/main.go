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
	httptransport "github.com/fundacion-cms/content-scheduler/internal/transport/http"
	"github.com/fundacion-cms/content-scheduler/internal/transport/http/handler"
	"github.com/fundacion-cms/content-scheduler/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := ctxlog.New(cfg.Env, cfg.SlogLevel(), os.Stdout)

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := tracing.Init("content-scheduler-api", cfg.Env, cfg.OtelExporter)
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

	var notifier scheduler.FailureNotifier
	if cfg.AlertEmail != "" {
		sender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
		notifier = email.NewFailureAlerter(sender, cfg.AlertEmail)
	}

	executor := scheduler.NewExecutor(stores.Schedules, stores.Contents, logger)
	poller := scheduler.NewPoller(stores.Schedules, executor, notifier, logger, cfg.PollBatchSize)
	scheduleUsecase := usecase.NewScheduleUsecase(stores.Schedules, executor, poller, logger)
	scheduleHandler := handler.NewScheduleHandler(scheduleUsecase, logger)

	metrics.Register()
	checker := health.NewChecker(stores.Pinger, stores.Name, logger, prometheus.DefaultRegisterer)

	srv := http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httptransport.NewRouter(logger, scheduleHandler, []byte(cfg.JWTSecret)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port, "store", stores.Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown", "error", err)
	}
}
