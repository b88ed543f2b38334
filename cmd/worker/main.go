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

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/care-records/internal/bootstrap"
	"github.com/kirillkom/care-records/internal/config"
	"github.com/kirillkom/care-records/internal/observability/logging"
	"github.com/kirillkom/care-records/internal/observability/metrics"
)

const service = "worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("care-"+service, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := &worker{metrics: metrics.NewWorkerMetrics(service), logger: logger}
	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.WithProcessHook(w.trackFile))
	if err != nil {
		logger.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()
	w.processor = app.ProcessUC
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           w.metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
		return app.Queue.SubscribeFileUploaded(gctx, w.handleUploaded)
	})
	g.Go(func() error {
		return w.sweepLoop(gctx, cfg.SweepInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker_stopped", "error", err)
		os.Exit(1)
	}
}
