package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
	"github.com/kirillkom/deco-docflow/internal/core/ports"
)

// DocumentLifecycleUseCase owns document creation, the status state machine
// and signed-file attachment.
type DocumentLifecycleUseCase struct {
	documents    ports.DocumentRepository
	transactions ports.TransactionRepository
	users        ports.UserRepository
	gate         ports.TransactionGate
	notifier     *Notifier
	logger       *slog.Logger
	now          func() time.Time
}

func NewDocumentLifecycleUseCase(
	documents ports.DocumentRepository,
	transactions ports.TransactionRepository,
	users ports.UserRepository,
	gate ports.TransactionGate,
	notifier *Notifier,
	logger *slog.Logger,
) *DocumentLifecycleUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentLifecycleUseCase{
		documents:    documents,
		transactions: transactions,
		users:        users,
		gate:         gate,
		notifier:     notifier,
		logger:       logger,
		now:          utcNow,
	}
}

func (uc *DocumentLifecycleUseCase) Create(ctx context.Context, in domain.CreateDocumentInput) (*domain.Document, error) {
	userID, documentType, err := validateDocumentOwner(in.UserID, in.DocumentType)
	if err != nil {
		return nil, err
	}
	if err := in.File.Validate(); err != nil {
		return nil, err
	}

	tx, err := uc.gate.AssertUsableForDocuments(ctx, in.TransactionKey)
	if err != nil {
		return nil, err
	}

	doc := uc.newDocument(userID, documentType, tx, in.File)
	if err := uc.documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	uc.linkToTransaction(ctx, tx.ID, []string{doc.ID})
	return doc, nil
}

// CreateBatch inserts all documents or none. Stored files are left to the caller.
func (uc *DocumentLifecycleUseCase) CreateBatch(
	ctx context.Context,
	userID, transactionKey, documentType string,
	files []domain.StoredFile,
) ([]domain.Document, error) {
	userID, documentType, err := validateDocumentOwner(userID, documentType)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, domain.Fail(domain.ErrInvalidArgument, "create documents", "at least one file is required")
	}
	for _, f := range files {
		if err := f.Validate(); err != nil {
			return nil, err
		}
	}

	tx, err := uc.gate.AssertUsableForDocuments(ctx, transactionKey)
	if err != nil {
		return nil, err
	}

	docs := make([]*domain.Document, 0, len(files))
	ids := make([]string, 0, len(files))
	for _, f := range files {
		doc := uc.newDocument(userID, documentType, tx, f)
		docs = append(docs, doc)
		ids = append(ids, doc.ID)
	}
	if err := uc.documents.CreateBatch(ctx, docs); err != nil {
		return nil, fmt.Errorf("create documents: %w", err)
	}

	uc.linkToTransaction(ctx, tx.ID, ids)

	out := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, *d)
	}
	return out, nil
}

func (uc *DocumentLifecycleUseCase) UpdateStatus(ctx context.Context, id string, status string) (*domain.Document, error) {
	next, err := domain.ParseDocumentStatus(status)
	if err != nil {
		return nil, err
	}
	doc, err := uc.documents.UpdateStatus(ctx, strings.TrimSpace(id), next)
	if err != nil {
		return nil, err
	}
	uc.notifyOwner(ctx, doc)
	return doc, nil
}

// AttachSignedFile records the signed copy and forces the signed state in one write.
func (uc *DocumentLifecycleUseCase) AttachSignedFile(ctx context.Context, id string, file domain.StoredFile) (*domain.Document, error) {
	if err := file.Validate(); err != nil {
		return nil, err
	}
	doc, err := uc.documents.AttachSignedFile(ctx, strings.TrimSpace(id), file.URL, file.Key)
	if err != nil {
		return nil, err
	}
	uc.notifyOwner(ctx, doc)
	return doc, nil
}

// Delete removes the document only. Notes referencing it stay behind.
func (uc *DocumentLifecycleUseCase) Delete(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := uc.documents.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if err := uc.documents.Delete(ctx, doc.ID); err != nil {
		return nil, err
	}
	return doc, nil
}

func (uc *DocumentLifecycleUseCase) Get(ctx context.Context, id string) (*domain.Document, error) {
	return uc.documents.GetByID(ctx, strings.TrimSpace(id))
}

func (uc *DocumentLifecycleUseCase) ListByUser(ctx context.Context, userID string) ([]domain.Document, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.Fail(domain.ErrInvalidArgument, "list documents", "user id is required")
	}
	return uc.documents.ListByUser(ctx, userID)
}

func (uc *DocumentLifecycleUseCase) ListByTransaction(ctx context.Context, transactionKey string) ([]domain.Document, error) {
	tx, err := uc.transactions.GetByKey(ctx, strings.TrimSpace(transactionKey))
	if err != nil {
		return nil, err
	}
	return uc.documents.ListByTransaction(ctx, tx.ID)
}

func (uc *DocumentLifecycleUseCase) newDocument(
	userID, documentType string,
	tx *domain.Transaction,
	file domain.StoredFile,
) *domain.Document {
	now := uc.now()
	return &domain.Document{
		ID:             uuid.NewString(),
		UserID:         userID,
		TransactionRef: tx.ID,
		TransactionKey: tx.Key,
		DocumentLink:   file.URL,
		StorageKey:     file.Key,
		DocumentType:   documentType,
		MimeType:       file.MimeType,
		SizeBytes:      file.SizeBytes,
		Status:         domain.DocumentPending,
		UploadedAt:     now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// linkToTransaction is best effort: a failure leaves the documents persisted
// but missing from the transaction's reference list.
func (uc *DocumentLifecycleUseCase) linkToTransaction(ctx context.Context, transactionID string, documentIDs []string) {
	if err := uc.transactions.AppendDocuments(ctx, transactionID, documentIDs); err != nil {
		uc.logger.Warn("transaction_link_failed",
			"transaction_ref", transactionID,
			"document_ids", documentIDs,
			"error", err,
		)
	}
}

func (uc *DocumentLifecycleUseCase) notifyOwner(ctx context.Context, doc *domain.Document) {
	if uc.notifier == nil {
		return
	}
	owner, err := uc.users.GetByID(ctx, doc.UserID)
	if err != nil {
		uc.logger.Warn("notification_failed", "kind", "document_status", "stage", "resolve_owner", "document_id", doc.ID, "error", err)
		return
	}
	uc.notifier.NotifyStatus(ctx, domain.StatusNotice{
		Recipient: domain.Recipient{
			UserID:    owner.ID,
			Email:     owner.Email,
			FirstName: owner.FirstName,
			Role:      domain.RecipientDocumentOwner,
		},
		DocumentType:   doc.DocumentType,
		TransactionKey: doc.TransactionKey,
		Status:         doc.Status,
		SignedLink:     doc.SignedDocumentLink,
	})
}

func validateDocumentOwner(userID, documentType string) (string, string, error) {
	userID = strings.TrimSpace(userID)
	documentType = strings.TrimSpace(documentType)
	if userID == "" {
		return "", "", domain.Fail(domain.ErrInvalidArgument, "create document", "user id is required")
	}
	if documentType == "" {
		return "", "", domain.Fail(domain.ErrInvalidArgument, "create document", "document type is required")
	}
	return userID, documentType, nil
}
