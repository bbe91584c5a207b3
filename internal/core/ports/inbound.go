package ports

import (
	"context"
	"time"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
)

// TransactionGate checks that a transaction accepts document operations.
type TransactionGate interface {
	AssertUsableForDocuments(ctx context.Context, transactionKey string) (*domain.Transaction, error)
}

// TransactionService is the inbound contract for purchase transactions.
type TransactionService interface {
	Create(ctx context.Context, caller domain.Principal, in domain.CreateTransactionInput) (*domain.Transaction, error)
	Update(ctx context.Context, caller domain.Principal, key string, patch domain.TransactionPatch) (*domain.Transaction, error)
	Get(ctx context.Context, caller domain.Principal, key string) (*domain.Transaction, error)
	ListByUser(ctx context.Context, caller domain.Principal, userID string) ([]domain.Transaction, error)
}

// DocumentService is the inbound contract for the document lifecycle.
type DocumentService interface {
	Create(ctx context.Context, in domain.CreateDocumentInput) (*domain.Document, error)
	CreateBatch(ctx context.Context, userID, transactionKey, documentType string, files []domain.StoredFile) ([]domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status string) (*domain.Document, error)
	AttachSignedFile(ctx context.Context, id string, file domain.StoredFile) (*domain.Document, error)
	Delete(ctx context.Context, id string) (*domain.Document, error)
	Get(ctx context.Context, id string) (*domain.Document, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Document, error)
	ListByTransaction(ctx context.Context, transactionKey string) ([]domain.Document, error)
}

// NoteService is the inbound contract for note visibility and routing.
type NoteService interface {
	Add(ctx context.Context, caller domain.Principal, in domain.AddNoteInput) (*domain.Note, error)
	ListForDocument(ctx context.Context, caller domain.Principal, documentID string) ([]domain.Note, error)
	ListForTransaction(ctx context.Context, caller domain.Principal, transactionKey string) ([]domain.Note, error)
	ListForUser(ctx context.Context, caller domain.Principal, authorID string) ([]domain.Note, error)
	Update(ctx context.Context, caller domain.Principal, noteID string, patch domain.NotePatch) (*domain.Note, error)
	Remove(ctx context.Context, caller domain.Principal, noteID string) error
	StatsForDocument(ctx context.Context, documentID string) (domain.NoteStats, error)
}

// AccountService is the inbound contract for accounts, OTPs and tokens.
type AccountService interface {
	Register(ctx context.Context, in domain.RegisterInput) (*domain.Registration, error)
	Login(ctx context.Context, email, password string) (*domain.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error)
	Me(ctx context.Context, caller domain.Principal) (*domain.User, error)
	SendEmailOTP(ctx context.Context, email string) (*domain.OTPTicket, error)
	VerifyEmailOTP(ctx context.Context, verificationID, code string) (string, error)
	StartForgotPassword(ctx context.Context, email string) (*domain.OTPTicket, error)
	VerifyForgotPassword(ctx context.Context, verificationID, code string) (string, error)
	ResetPassword(ctx context.Context, email, newPassword string) error
	ListUsers(ctx context.Context, caller domain.Principal, query domain.UserQuery) (domain.UserPage, error)
}

// PrincipalResolver turns a bearer token into a verified principal.
type PrincipalResolver interface {
	VerifyAccess(token string) (domain.Principal, error)
}

// MailRelay delivers mail taken off the queue.
type MailRelay interface {
	Deliver(ctx context.Context, msg domain.EmailMessage, queuedAt time.Time) error
}
