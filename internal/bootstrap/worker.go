package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/kirillkom/deco-docflow/internal/config"
	"github.com/kirillkom/deco-docflow/internal/core/usecase"
	"github.com/kirillkom/deco-docflow/internal/infrastructure/queue/nats"
	"github.com/kirillkom/deco-docflow/internal/observability/metrics"
)

const workerServiceName = "docflow-worker"

// Worker relays queued mail to SMTP.
type Worker struct {
	Config  config.Config
	Queue   *nats.Queue
	Relay   *usecase.MailRelayUseCase
	Metrics *metrics.WorkerMetrics
}

func NewWorker(cfg config.Config, logger *slog.Logger) (*Worker, error) {
	executor := NewMailExecutor(cfg, logger)

	mailer, err := NewSMTPMailer(cfg, executor)
	if err != nil {
		return nil, err
	}
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSMailSubject, nats.Options{ResilienceExecutor: executor})
	if err != nil {
		return nil, fmt.Errorf("init mail queue: %w", err)
	}

	workerMetrics := metrics.NewWorkerMetrics(workerServiceName)
	return &Worker{
		Config:  cfg,
		Queue:   queue,
		Relay:   usecase.NewMailRelayUseCase(mailer, workerMetrics, logger),
		Metrics: workerMetrics,
	}, nil
}

func (w *Worker) Close() {
	w.Queue.Close()
}
