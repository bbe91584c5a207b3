package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/deco-docflow/internal/bootstrap"
	"github.com/kirillkom/deco-docflow/internal/config"
	"github.com/kirillkom/deco-docflow/internal/core/domain"
	"github.com/kirillkom/deco-docflow/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("docflow-worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("worker_failed", "error", err)
		os.Exit(1)
	}
}

// run relays queued mail until ctx is cancelled. Every resource it opens is
// released before it returns.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	worker, err := bootstrap.NewWorker(cfg, logger)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer worker.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", worker.Metrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSMailSubject)
	err = worker.Queue.SubscribeMail(ctx, func(handlerCtx context.Context, msg domain.EmailMessage, queuedAt time.Time) error {
		deliverCtx, cancel := context.WithTimeout(handlerCtx, time.Minute)
		defer cancel()
		return worker.Relay.Deliver(deliverCtx, msg, queuedAt)
	})
	if err != nil {
		return fmt.Errorf("subscribe mail: %w", err)
	}
	return nil
}
