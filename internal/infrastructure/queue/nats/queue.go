package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
	"github.com/kirillkom/deco-docflow/internal/infrastructure/resilience"
)

const (
	headerMessageID = "Docflow-Message-Id"
	headerQueuedAt  = "Docflow-Queued-At"
	workerGroup     = "mail-workers"
)

type publisher interface {
	PublishMsg(m *nats.Msg) error
}

// Queue hands rendered mail to the worker over a NATS subject. Send only
// enqueues; the receipt carries the queue message id.
type Queue struct {
	conn     *nats.Conn
	pub      publisher
	subject  string
	executor *resilience.Executor
	now      func() time.Time
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("deco-docflow"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		pub:      conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		now:      time.Now,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) Send(ctx context.Context, mail domain.EmailMessage) (domain.DeliveryReceipt, error) {
	payload, err := json.Marshal(mail)
	if err != nil {
		return domain.DeliveryReceipt{}, fmt.Errorf("marshal mail: %w", err)
	}
	messageID := uuid.NewString()
	msg := nats.NewMsg(q.subject)
	msg.Data = payload
	msg.Header.Set(headerMessageID, messageID)
	msg.Header.Set(headerQueuedAt, q.now().UTC().Format(time.RFC3339Nano))

	call := func(_ context.Context) error {
		if err := q.pub.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.DeliveryReceipt{}, wrapTemporaryIfNeeded(err)
	}
	return domain.DeliveryReceipt{MessageID: messageID}, nil
}

// SubscribeMail consumes the subject in a queue group until ctx is cancelled,
// then drains in-flight messages.
func (q *Queue) SubscribeMail(ctx context.Context, handler func(context.Context, domain.EmailMessage, time.Time) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		handleMessage(ctx, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func handleMessage(ctx context.Context, msg *nats.Msg, handler func(context.Context, domain.EmailMessage, time.Time) error) {
	messageID := ""
	var queuedAt time.Time
	if msg.Header != nil {
		messageID = msg.Header.Get(headerMessageID)
		queuedAt, _ = time.Parse(time.RFC3339Nano, msg.Header.Get(headerQueuedAt))
	}

	var mail domain.EmailMessage
	if err := json.Unmarshal(msg.Data, &mail); err != nil {
		slog.Error("mail_message_invalid", "message_id", messageID, "error", err)
		return
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := handler(handlerCtx, mail, queuedAt); err != nil {
		slog.Error("mail_handler_failed", "message_id", messageID, "to", mail.To, "error", err)
	}
}
