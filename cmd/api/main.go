package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	httpadapter "github.com/kirillkom/care-records/internal/adapters/http"
	"github.com/kirillkom/care-records/internal/bootstrap"
	"github.com/kirillkom/care-records/internal/config"
	"github.com/kirillkom/care-records/internal/observability/logging"
	"github.com/kirillkom/care-records/internal/observability/metrics"
)

const service = "api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("care-"+service, cfg.LogLevel)
	slog.SetDefault(logger)

	if cfg.JWTSecret == "" {
		logger.Error("config_error", "error", "JWT_SECRET is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(service)
	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.WithBreakerObserver(func(operation, state string) {
		httpMetrics.ObserveBreakerState(service, operation, state)
	}))
	if err != nil {
		logger.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(
		cfg,
		app.UploadUC,
		app.Files,
		app.ProcessUC,
		httpadapter.WithMetrics(httpMetrics),
		httpadapter.WithLogger(logger),
	).Handler()
	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	listener, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		logger.Error("api_listen_error", "error", err)
		os.Exit(1)
	}
	if cfg.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.MaxConnections)
	}

	go func() {
		logger.Info("api_listening", "addr", listener.Addr().String(), "max_connections", cfg.MaxConnections)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_error", "error", err)
	}
}
