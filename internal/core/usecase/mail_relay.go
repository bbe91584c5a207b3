package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
	"github.com/kirillkom/deco-docflow/internal/core/ports"
)

// MailRelayUseCase hands queued mail to the gateway. A failed delivery is
// reported to the caller once and not re-queued.
type MailRelayUseCase struct {
	mailer   ports.Mailer
	observer ports.DeliveryObserver
	logger   *slog.Logger
	now      func() time.Time
}

func NewMailRelayUseCase(mailer ports.Mailer, observer ports.DeliveryObserver, logger *slog.Logger) *MailRelayUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &MailRelayUseCase{
		mailer:   mailer,
		observer: observer,
		logger:   logger,
		now:      time.Now,
	}
}

func (uc *MailRelayUseCase) Deliver(ctx context.Context, msg domain.EmailMessage, queuedAt time.Time) error {
	start := uc.now()
	if uc.observer != nil {
		if !queuedAt.IsZero() {
			uc.observer.ObserveQueueLag(start.Sub(queuedAt))
		}
		uc.observer.StartDelivery()
	}

	receipt, err := uc.mailer.Send(ctx, msg)

	if uc.observer != nil {
		uc.observer.FinishDelivery(uc.now().Sub(start), err)
	}
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "relay mail", err)
	}
	uc.logger.Info("mail_delivered", "to", msg.To, "message_id", receipt.MessageID)
	return nil
}
