package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/deco-docflow/internal/config"
	"github.com/kirillkom/deco-docflow/internal/core/ports"
	"github.com/kirillkom/deco-docflow/internal/core/usecase"
	"github.com/kirillkom/deco-docflow/internal/infrastructure/auth"
	"github.com/kirillkom/deco-docflow/internal/infrastructure/cache/redis"
	"github.com/kirillkom/deco-docflow/internal/infrastructure/mail/smtp"
	"github.com/kirillkom/deco-docflow/internal/infrastructure/mail/templates"
	"github.com/kirillkom/deco-docflow/internal/infrastructure/queue/nats"
	"github.com/kirillkom/deco-docflow/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/deco-docflow/internal/infrastructure/resilience"
	"github.com/kirillkom/deco-docflow/internal/infrastructure/storage/cloudinary"
	"github.com/kirillkom/deco-docflow/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/deco-docflow/internal/infrastructure/storage/s3"
	"github.com/kirillkom/deco-docflow/internal/observability/metrics"
)

const serviceName = "docflow-api"

type App struct {
	Config  config.Config
	Metrics *metrics.HTTPServerMetrics

	Accounts     *usecase.AccountUseCase
	Transactions *usecase.TransactionUseCase
	Documents    *usecase.DocumentLifecycleUseCase
	Notes        *usecase.NoteUseCase
	Tokens       *auth.JWTIssuer

	Storage ports.FileStorage
	// Local is set only for the localfs driver, whose files the API serves.
	Local *localfs.Storage

	closers []func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (app *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	app = &App{Config: cfg, Metrics: metrics.NewHTTPServerMetrics(serviceName)}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	db, err := OpenDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, func() { _ = db.Close() })

	redisClient, err := redis.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, func() { _ = redisClient.Close() })

	tokens, err := auth.NewJWTIssuer(auth.TokenConfig{
		AccessSecret:  cfg.AccessTokenSecret,
		RefreshSecret: cfg.RefreshTokenSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		Issuer:        "deco-docflow",
	})
	if err != nil {
		return nil, fmt.Errorf("init token issuer: %w", err)
	}
	app.Tokens = tokens

	storage, local, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Storage, app.Local = storage, local

	mailer, err := app.openMailer(cfg, logger)
	if err != nil {
		return nil, err
	}
	composer, err := templates.New()
	if err != nil {
		return nil, fmt.Errorf("init mail templates: %w", err)
	}

	users := postgres.NewUserRepository(db)
	transactions := postgres.NewTransactionRepository(db)
	documents := postgres.NewDocumentRepository(db)
	notes := postgres.NewNoteRepository(db)
	otps := redis.NewOTPStore(redisClient, "")
	hasher := auth.NewArgon2Hasher(auth.DefaultArgon2Params)

	notifier := usecase.NewNotifier(mailer, composer, app.Metrics, logger)
	gate := usecase.NewTransactionGateUseCase(transactions)

	app.Accounts = usecase.NewAccountUseCase(users, otps, tokens, hasher, notifier, logger)
	app.Transactions = usecase.NewTransactionUseCase(transactions, users)
	app.Documents = usecase.NewDocumentLifecycleUseCase(documents, transactions, users, gate, notifier, logger)
	app.Notes = usecase.NewNoteUseCase(notes, documents, transactions, users, notifier, logger)

	logger.Info("bootstrap_complete",
		"storage_driver", cfg.StorageDriver,
		"mail_delivery", cfg.MailDelivery,
	)
	return app, nil
}

// OpenDatabase connects to Postgres and applies pending migrations.
func OpenDatabase(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return db, nil
}

func openStorage(ctx context.Context, cfg config.Config) (ports.FileStorage, *localfs.Storage, error) {
	switch cfg.StorageDriver {
	case config.StorageS3:
		store, err := s3.New(ctx, s3.Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicURL:       cfg.S3PublicURL,
			Prefix:          cfg.S3Prefix,
			UsePathStyle:    cfg.S3UsePathStyle,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init s3 storage: %w", err)
		}
		return store, nil, nil
	case config.StorageCloudinary:
		store, err := cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		if err != nil {
			return nil, nil, fmt.Errorf("init cloudinary storage: %w", err)
		}
		return store, nil, nil
	default:
		store, err := localfs.New(cfg.StoragePath, cfg.PublicBaseURL+"/uploads")
		if err != nil {
			return nil, nil, fmt.Errorf("init local storage: %w", err)
		}
		return store, store, nil
	}
}

// openMailer returns the SMTP mailer for inline delivery or the NATS queue
// that hands rendered mail to the worker.
func (a *App) openMailer(cfg config.Config, logger *slog.Logger) (ports.Mailer, error) {
	executor := NewMailExecutor(cfg, logger)
	if cfg.MailDelivery == config.MailDeliveryQueue {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSMailSubject, nats.Options{ResilienceExecutor: executor})
		if err != nil {
			return nil, fmt.Errorf("init mail queue: %w", err)
		}
		a.closers = append(a.closers, queue.Close)
		return queue, nil
	}
	return NewSMTPMailer(cfg, executor)
}

// NewMailExecutor builds the retry and breaker policy shared by the SMTP
// mailer and the NATS publisher.
func NewMailExecutor(cfg config.Config, logger *slog.Logger) *resilience.Executor {
	policy := resilience.DefaultConfig().
		WithRetries(cfg.MailRetryMaxAttempts, cfg.MailRetryBackoff).
		WithBreaker(cfg.MailBreakerEnabled, cfg.MailBreakerOpenTimeout)
	return resilience.NewExecutor(policy).WithLogger(logger)
}

func NewSMTPMailer(cfg config.Config, executor *resilience.Executor) (*smtp.Mailer, error) {
	mailer, err := smtp.New(smtp.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.EmailFrom,
		FromName: cfg.FromName,
		Timeout:  cfg.SMTPTimeout,
	}, executor)
	if err != nil {
		return nil, fmt.Errorf("init smtp mailer: %w", err)
	}
	return mailer, nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
