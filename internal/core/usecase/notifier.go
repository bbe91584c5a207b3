package usecase

import (
	"context"
	"log/slog"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
	"github.com/kirillkom/deco-docflow/internal/core/ports"
)

// Notifier dispatches emails as a best-effort side effect. None of its
// methods return errors: failures are logged, counted and reported back.
type Notifier struct {
	mailer   ports.Mailer
	composer ports.MailComposer
	recorder ports.NotificationRecorder
	logger   *slog.Logger
}

func NewNotifier(
	mailer ports.Mailer,
	composer ports.MailComposer,
	recorder ports.NotificationRecorder,
	logger *slog.Logger,
) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		mailer:   mailer,
		composer: composer,
		recorder: recorder,
		logger:   logger,
	}
}

func (n *Notifier) NotifyNote(ctx context.Context, notices []domain.NoteNotice) domain.DeliveryReport {
	return n.dispatch(ctx, "note", len(notices), func(i int) (domain.EmailMessage, error) {
		return n.composer.Note(notices[i])
	})
}

func (n *Notifier) NotifyStatus(ctx context.Context, notice domain.StatusNotice) domain.DeliveryReport {
	return n.dispatch(ctx, "document_status", 1, func(int) (domain.EmailMessage, error) {
		return n.composer.Status(notice)
	})
}

func (n *Notifier) SendWelcome(ctx context.Context, notice domain.WelcomeNotice) domain.DeliveryReport {
	return n.dispatch(ctx, "welcome", 1, func(int) (domain.EmailMessage, error) {
		return n.composer.Welcome(notice)
	})
}

func (n *Notifier) SendOTP(ctx context.Context, notice domain.OTPNotice) domain.DeliveryReport {
	return n.dispatch(ctx, "otp_"+string(notice.Purpose), 1, func(int) (domain.EmailMessage, error) {
		return n.composer.OTP(notice)
	})
}

func (n *Notifier) SendPasswordReset(ctx context.Context, notice domain.PasswordResetNotice) domain.DeliveryReport {
	return n.dispatch(ctx, "password_reset", 1, func(int) (domain.EmailMessage, error) {
		return n.composer.PasswordReset(notice)
	})
}

func (n *Notifier) dispatch(
	ctx context.Context,
	kind string,
	count int,
	compose func(int) (domain.EmailMessage, error),
) domain.DeliveryReport {
	var report domain.DeliveryReport
	if n == nil || n.mailer == nil || n.composer == nil || count == 0 {
		return report
	}

	for i := 0; i < count; i++ {
		report.Attempted++
		msg, err := compose(i)
		if err != nil {
			report.Failures = append(report.Failures, domain.DeliveryFailure{Err: err})
			n.logger.Warn("notification_failed", "kind", kind, "stage", "compose", "error", err)
			continue
		}
		receipt, err := n.mailer.Send(ctx, msg)
		if err != nil {
			report.Failures = append(report.Failures, domain.DeliveryFailure{To: msg.To, Err: err})
			n.logger.Warn("notification_failed", "kind", kind, "stage", "send", "to", msg.To, "error", err)
			continue
		}
		report.Delivered++
		n.logger.Debug("notification_sent", "kind", kind, "to", msg.To, "message_id", receipt.MessageID)
	}

	if n.recorder != nil {
		n.recorder.RecordNotification(kind, report.Delivered, report.Failed())
	}
	return report
}
