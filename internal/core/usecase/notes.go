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

// NoteUseCase owns note creation, visibility-filtered reads, author/admin
// mutation rules and notification fan-out.
type NoteUseCase struct {
	notes        ports.NoteRepository
	documents    ports.DocumentRepository
	transactions ports.TransactionRepository
	users        ports.UserRepository
	notifier     *Notifier
	logger       *slog.Logger
	now          func() time.Time
}

func NewNoteUseCase(
	notes ports.NoteRepository,
	documents ports.DocumentRepository,
	transactions ports.TransactionRepository,
	users ports.UserRepository,
	notifier *Notifier,
	logger *slog.Logger,
) *NoteUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoteUseCase{
		notes:        notes,
		documents:    documents,
		transactions: transactions,
		users:        users,
		notifier:     notifier,
		logger:       logger,
		now:          utcNow,
	}
}

// Add persists a note and then notifies recipients. The note is returned
// even when every notification fails.
func (uc *NoteUseCase) Add(ctx context.Context, caller domain.Principal, in domain.AddNoteInput) (*domain.Note, error) {
	text, err := domain.NormalizeNoteText(in.Text)
	if err != nil {
		return nil, err
	}
	noteType, err := domain.ParseNoteType(in.Type)
	if err != nil {
		return nil, err
	}
	priority, err := domain.ParseNotePriority(in.Priority)
	if err != nil {
		return nil, err
	}
	internal := in.Internal
	if !caller.IsAdmin() {
		noteType = domain.NoteTypeUser
		internal = false
	}

	doc, err := uc.documents.GetByID(ctx, strings.TrimSpace(in.DocumentID))
	if err != nil {
		return nil, err
	}
	author, err := uc.users.GetByID(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	tx, err := uc.transactions.GetByID(ctx, doc.TransactionRef)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	attachments := make([]domain.NoteAttachment, 0, len(in.Attachments))
	for _, a := range in.Attachments {
		if a.UploadedAt.IsZero() {
			a.UploadedAt = now
		}
		attachments = append(attachments, a)
	}
	metadata := in.Context
	if metadata.Platform == "" {
		metadata.Platform = "web"
	}

	note := &domain.Note{
		ID:             uuid.NewString(),
		DocumentID:     doc.ID,
		AuthorID:       author.ID,
		TransactionRef: tx.ID,
		TransactionKey: tx.Key,
		Text:           text,
		Type:           noteType,
		Priority:       priority,
		Internal:       internal,
		Attachments:    attachments,
		Metadata:       metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := uc.notes.Create(ctx, note); err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}

	uc.notifyRecipients(ctx, note, doc, author)
	return note, nil
}

func (uc *NoteUseCase) ListForDocument(ctx context.Context, caller domain.Principal, documentID string) ([]domain.Note, error) {
	doc, err := uc.documents.GetByID(ctx, strings.TrimSpace(documentID))
	if err != nil {
		return nil, err
	}
	return uc.notes.ListByDocument(ctx, doc.ID, domain.VisibilityFor(caller))
}

func (uc *NoteUseCase) ListForTransaction(ctx context.Context, caller domain.Principal, transactionKey string) ([]domain.Note, error) {
	tx, err := uc.transactions.GetByKey(ctx, strings.TrimSpace(transactionKey))
	if err != nil {
		return nil, err
	}
	return uc.notes.ListByTransaction(ctx, tx.ID, domain.VisibilityFor(caller))
}

// ListForUser returns every note written by authorID, unfiltered.
func (uc *NoteUseCase) ListForUser(ctx context.Context, _ domain.Principal, authorID string) ([]domain.Note, error) {
	authorID = strings.TrimSpace(authorID)
	if authorID == "" {
		return nil, domain.Fail(domain.ErrInvalidArgument, "list notes", "user id is required")
	}
	return uc.notes.ListByAuthor(ctx, authorID)
}

func (uc *NoteUseCase) Update(
	ctx context.Context,
	caller domain.Principal,
	noteID string,
	patch domain.NotePatch,
) (*domain.Note, error) {
	note, err := uc.authorizedNote(ctx, caller, noteID, "update note")
	if err != nil {
		return nil, err
	}

	if patch.Text != nil {
		text, err := domain.NormalizeNoteText(*patch.Text)
		if err != nil {
			return nil, err
		}
		patch.Text = &text
	}
	if patch.Priority != nil {
		priority, err := domain.ParseNotePriority(string(*patch.Priority))
		if err != nil {
			return nil, err
		}
		patch.Priority = &priority
	}
	if patch.Internal != nil && *patch.Internal && !caller.IsAdmin() {
		public := false
		patch.Internal = &public
	}
	if patch.Empty() {
		return note, nil
	}

	return uc.notes.Update(ctx, note.ID, patch)
}

func (uc *NoteUseCase) Remove(ctx context.Context, caller domain.Principal, noteID string) error {
	note, err := uc.authorizedNote(ctx, caller, noteID, "remove note")
	if err != nil {
		return err
	}
	return uc.notes.Delete(ctx, note.ID)
}

// StatsForDocument aggregates notes by document id without checking that
// the document exists.
func (uc *NoteUseCase) StatsForDocument(ctx context.Context, documentID string) (domain.NoteStats, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return domain.NoteStats{}, domain.Fail(domain.ErrInvalidArgument, "note stats", "document id is required")
	}
	return uc.notes.StatsForDocument(ctx, documentID)
}

func (uc *NoteUseCase) authorizedNote(ctx context.Context, caller domain.Principal, noteID, op string) (*domain.Note, error) {
	note, err := uc.notes.GetByID(ctx, strings.TrimSpace(noteID))
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && note.AuthorID != caller.UserID {
		return nil, domain.Fail(domain.ErrPermissionDenied, op, "only the author or an administrator can change this note")
	}
	return note, nil
}

func (uc *NoteUseCase) notifyRecipients(ctx context.Context, note *domain.Note, doc *domain.Document, author *domain.User) {
	if uc.notifier == nil {
		return
	}

	admins, err := uc.users.ListAdmins(ctx)
	if err != nil {
		uc.logger.Warn("notification_failed", "kind", "note", "stage", "resolve_admins", "note_id", note.ID, "error", err)
		admins = nil
	}

	var owner *domain.User
	if author.Type == domain.RoleAdmin && !note.Internal && doc.UserID != author.ID {
		owner, err = uc.users.GetByID(ctx, doc.UserID)
		if err != nil {
			uc.logger.Warn("notification_failed", "kind", "note", "stage", "resolve_owner", "note_id", note.ID, "error", err)
			owner = nil
		}
	}

	recipients := NoteRecipients(*author, owner, admins, note.Internal, note.Priority)
	if len(recipients) == 0 {
		return
	}

	notices := make([]domain.NoteNotice, 0, len(recipients))
	for _, r := range recipients {
		notices = append(notices, domain.NoteNotice{
			Recipient:      r,
			DocumentType:   doc.DocumentType,
			TransactionKey: note.TransactionKey,
			NoteText:       note.Text,
			AuthorName:     author.DisplayName(),
			NoteType:       note.Type,
			Priority:       note.Priority,
			Internal:       note.Internal,
		})
	}
	report := uc.notifier.NotifyNote(ctx, notices)
	uc.logger.Debug("note_notifications",
		"note_id", note.ID,
		"attempted", report.Attempted,
		"delivered", report.Delivered,
		"failed", report.Failed(),
	)
}
