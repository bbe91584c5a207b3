package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
)

// UserRepository persists accounts. Lookups fail with domain.ErrNotFound.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ListAdmins(ctx context.Context) ([]domain.User, error)
	List(ctx context.Context, query domain.UserQuery) ([]domain.User, int, error)
	// ConsumeTempPassword flips temp_password_used only if it was still false.
	ConsumeTempPassword(ctx context.Context, id string) (bool, error)
	MarkTempPasswordUsed(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// TransactionRepository persists purchase transactions.
type TransactionRepository interface {
	Create(ctx context.Context, tx *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	GetByKey(ctx context.Context, key string) (*domain.Transaction, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Transaction, error)
	// Update writes only the non-nil patch fields and returns the stored row.
	Update(ctx context.Context, id string, patch domain.TransactionPatch, updatedAt time.Time) (*domain.Transaction, error)
	AppendDocuments(ctx context.Context, transactionID string, documentIDs []string) error
}

// DocumentRepository persists uploaded documents. Each mutation is a single
// conditional statement returning the updated record.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	CreateBatch(ctx context.Context, docs []*domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Document, error)
	ListByTransaction(ctx context.Context, transactionRef string) ([]domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus) (*domain.Document, error)
	AttachSignedFile(ctx context.Context, id, link, storageKey string) (*domain.Document, error)
	Delete(ctx context.Context, id string) error
}

// NoteRepository persists document notes.
type NoteRepository interface {
	Create(ctx context.Context, note *domain.Note) error
	GetByID(ctx context.Context, id string) (*domain.Note, error)
	ListByDocument(ctx context.Context, documentID string, visibility domain.NoteVisibility) ([]domain.Note, error)
	ListByTransaction(ctx context.Context, transactionRef string, visibility domain.NoteVisibility) ([]domain.Note, error)
	ListByAuthor(ctx context.Context, authorID string) ([]domain.Note, error)
	Update(ctx context.Context, id string, patch domain.NotePatch) (*domain.Note, error)
	Delete(ctx context.Context, id string) error
	StatsForDocument(ctx context.Context, documentID string) (domain.NoteStats, error)
}

// OTPStore keeps one-time codes until they expire.
type OTPStore interface {
	Save(ctx context.Context, otp *domain.OTPVerification) error
	Get(ctx context.Context, verificationID string) (*domain.OTPVerification, error)
	// Consume deletes the record and reports whether this call removed it.
	Consume(ctx context.Context, verificationID string) (bool, error)
	// MarkUsed flags an unused record as used and reports whether this call did it.
	MarkUsed(ctx context.Context, verificationID string) (bool, error)
	LatestUsed(ctx context.Context, email string, purpose domain.OTPPurpose) (*domain.OTPVerification, error)
}

// FileStorage stores uploaded files and yields their public descriptors.
type FileStorage interface {
	Save(ctx context.Context, key, contentType string, data io.Reader) (domain.StoredFile, error)
	Delete(ctx context.Context, key string) error
}

// Mailer is the notification gateway.
type Mailer interface {
	Send(ctx context.Context, msg domain.EmailMessage) (domain.DeliveryReceipt, error)
}

// MailComposer renders notices into email messages.
type MailComposer interface {
	Note(notice domain.NoteNotice) (domain.EmailMessage, error)
	Status(notice domain.StatusNotice) (domain.EmailMessage, error)
	Welcome(notice domain.WelcomeNotice) (domain.EmailMessage, error)
	OTP(notice domain.OTPNotice) (domain.EmailMessage, error)
	PasswordReset(notice domain.PasswordResetNotice) (domain.EmailMessage, error)
}

// MailQueue carries rendered mail between the API and the mail worker. The
// handler receives the time the message was enqueued.
type MailQueue interface {
	Mailer
	SubscribeMail(ctx context.Context, handler func(context.Context, domain.EmailMessage, time.Time) error) error
}

// TokenIssuer issues and verifies signed access/refresh tokens.
type TokenIssuer interface {
	IssuePair(principal domain.Principal) (domain.TokenPair, error)
	VerifyAccess(token string) (domain.Principal, error)
	VerifyRefresh(token string) (domain.Principal, error)
}

// PasswordHasher hashes credentials with a salted one-way function.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, encoded string) (bool, error)
}

// NotificationRecorder observes best-effort deliveries.
type NotificationRecorder interface {
	RecordNotification(kind string, delivered, failed int)
}

// DeliveryObserver measures queued mail relayed by the worker.
type DeliveryObserver interface {
	StartDelivery()
	FinishDelivery(duration time.Duration, err error)
	ObserveQueueLag(lag time.Duration)
}
