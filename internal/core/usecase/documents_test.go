package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
)

type documentFixture struct {
	docs   *documentRepoFake
	txs    *transactionRepoFake
	users  *userRepoFake
	mailer *mailerFake
	uc     *DocumentLifecycleUseCase
}

func newDocumentFixture(txs ...domain.Transaction) *documentFixture {
	f := &documentFixture{
		docs:   newDocumentRepoFake(),
		txs:    newTransactionRepoFake(txs...),
		users:  newUserRepoFake(seedUsers()...),
		mailer: &mailerFake{},
	}
	f.uc = NewDocumentLifecycleUseCase(f.docs, f.txs, f.users, NewTransactionGateUseCase(f.txs), newTestNotifier(f.mailer), nil)
	f.uc.now = func() time.Time { return fixedNow }
	return f
}

func TestGateRejectsMissingTransaction(t *testing.T) {
	gate := NewTransactionGateUseCase(newTransactionRepoFake())

	_, err := gate.AssertUsableForDocuments(context.Background(), "TXN-404")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGateRejectsIncompleteTransactions(t *testing.T) {
	for _, status := range []domain.TransactionStatus{
		domain.TransactionPending,
		domain.TransactionFailed,
		domain.TransactionRefunded,
	} {
		tx := completedTransaction()
		tx.Status = status
		gate := NewTransactionGateUseCase(newTransactionRepoFake(tx))

		_, err := gate.AssertUsableForDocuments(context.Background(), tx.Key)
		if !domain.IsKind(err, domain.ErrPreconditionFailed) {
			t.Fatalf("status %s: expected ErrPreconditionFailed, got %v", status, err)
		}
	}
}

func TestCreateDocumentRequiresCompletedTransaction(t *testing.T) {
	tx := completedTransaction()
	tx.Status = domain.TransactionPending
	f := newDocumentFixture(tx)

	_, err := f.uc.Create(context.Background(), domain.CreateDocumentInput{
		UserID:         "user-1",
		TransactionKey: tx.Key,
		DocumentType:   "passport",
		File:           pdfFile("passport.pdf"),
	})
	if !domain.IsKind(err, domain.ErrPreconditionFailed) {
		t.Fatalf("expected ErrPreconditionFailed, got %v", err)
	}
	if len(f.docs.byID) != 0 {
		t.Fatalf("expected no document persisted, got %d", len(f.docs.byID))
	}
}

func TestCreateDocumentPersistsPendingAndLinksTransaction(t *testing.T) {
	f := newDocumentFixture(completedTransaction())

	doc, err := f.uc.Create(context.Background(), domain.CreateDocumentInput{
		UserID:         "user-1",
		TransactionKey: "TXN-1001",
		DocumentType:   " passport ",
		File:           pdfFile("passport.pdf"),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if doc.Status != domain.DocumentPending {
		t.Fatalf("expected pending, got %s", doc.Status)
	}
	if doc.TransactionRef != "tx-internal-1" || doc.TransactionKey != "TXN-1001" {
		t.Fatalf("unexpected transaction refs: ref=%s key=%s", doc.TransactionRef, doc.TransactionKey)
	}
	if doc.DocumentType != "passport" {
		t.Fatalf("expected trimmed document type, got %q", doc.DocumentType)
	}
	tx, _ := f.txs.GetByID(context.Background(), "tx-internal-1")
	if len(tx.DocumentIDs) != 1 || tx.DocumentIDs[0] != doc.ID {
		t.Fatalf("expected document linked to transaction, got %v", tx.DocumentIDs)
	}
}

func TestCreateDocumentSucceedsWhenLinkingFails(t *testing.T) {
	f := newDocumentFixture(completedTransaction())
	f.txs.appendErr = errors.New("array update failed")

	doc, err := f.uc.Create(context.Background(), domain.CreateDocumentInput{
		UserID:         "user-1",
		TransactionKey: "TXN-1001",
		DocumentType:   "passport",
		File:           pdfFile("passport.pdf"),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := f.docs.GetByID(context.Background(), doc.ID); err != nil {
		t.Fatalf("expected document persisted, got %v", err)
	}
}

func TestCreateDocumentRejectsUnsupportedFiles(t *testing.T) {
	f := newDocumentFixture(completedTransaction())

	cases := map[string]domain.StoredFile{
		"text file": {URL: "http://x/a.txt", SizeBytes: 10, MimeType: "text/plain"},
		"too large": {URL: "http://x/a.pdf", SizeBytes: domain.MaxUploadBytes + 1, MimeType: "application/pdf"},
		"no link":   {SizeBytes: 10, MimeType: "image/png"},
	}
	for name, file := range cases {
		_, err := f.uc.Create(context.Background(), domain.CreateDocumentInput{
			UserID:         "user-1",
			TransactionKey: "TXN-1001",
			DocumentType:   "passport",
			File:           file,
		})
		if !domain.IsKind(err, domain.ErrInvalidArgument) {
			t.Fatalf("%s: expected ErrInvalidArgument, got %v", name, err)
		}
	}
}

func TestCreateBatchIsAllOrNothing(t *testing.T) {
	f := newDocumentFixture(completedTransaction())
	f.docs.batchErr = errors.New("insert failed")

	_, err := f.uc.CreateBatch(context.Background(), "user-1", "TXN-1001", "id-proof", []domain.StoredFile{
		pdfFile("a.pdf"), pdfFile("b.pdf"),
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(f.docs.byID) != 0 {
		t.Fatalf("expected no documents, got %d", len(f.docs.byID))
	}
	tx, _ := f.txs.GetByID(context.Background(), "tx-internal-1")
	if len(tx.DocumentIDs) != 0 {
		t.Fatalf("expected no links, got %v", tx.DocumentIDs)
	}
}

func TestCreateBatchValidatesEveryFileBeforeGate(t *testing.T) {
	tx := completedTransaction()
	tx.Status = domain.TransactionPending
	f := newDocumentFixture(tx)

	_, err := f.uc.CreateBatch(context.Background(), "user-1", tx.Key, "id-proof", []domain.StoredFile{
		pdfFile("a.pdf"),
		{URL: "http://x/b.zip", SizeBytes: 10, MimeType: "application/zip"},
	})
	if !domain.IsKind(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestCreateBatchLinksAllDocuments(t *testing.T) {
	f := newDocumentFixture(completedTransaction())

	docs, err := f.uc.CreateBatch(context.Background(), "user-1", "TXN-1001", "id-proof", []domain.StoredFile{
		pdfFile("a.pdf"), pdfFile("b.pdf"), pdfFile("c.pdf"),
	})
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
	tx, _ := f.txs.GetByID(context.Background(), "tx-internal-1")
	if len(tx.DocumentIDs) != 3 {
		t.Fatalf("expected 3 links, got %v", tx.DocumentIDs)
	}
}

func TestUpdateStatusRejectsUnknownState(t *testing.T) {
	f := newDocumentFixture(completedTransaction())
	f.docs = newDocumentRepoFake(domain.Document{ID: "doc-1", UserID: "user-1", Status: domain.DocumentUnderReview})
	f.uc.documents = f.docs

	_, err := f.uc.UpdateStatus(context.Background(), "doc-1", "archived")
	if !domain.IsKind(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	doc, _ := f.docs.GetByID(context.Background(), "doc-1")
	if doc.Status != domain.DocumentUnderReview {
		t.Fatalf("expected status unchanged, got %s", doc.Status)
	}
}

func TestUpdateStatusNotifiesOwner(t *testing.T) {
	f := newDocumentFixture(completedTransaction())
	f.docs = newDocumentRepoFake(domain.Document{ID: "doc-1", UserID: "user-1", DocumentType: "passport", Status: domain.DocumentPending})
	f.uc.documents = f.docs

	doc, err := f.uc.UpdateStatus(context.Background(), "doc-1", "approved")
	if err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if doc.Status != domain.DocumentApproved {
		t.Fatalf("expected approved, got %s", doc.Status)
	}
	if got := f.mailer.recipients(); len(got) != 1 || got[0] != "owner@deco.test" {
		t.Fatalf("expected owner notification, got %v", got)
	}
	if f.mailer.sent[0].Subject != "Document Approved" {
		t.Fatalf("unexpected subject %q", f.mailer.sent[0].Subject)
	}
}

func TestUpdateStatusSucceedsWhenMailFails(t *testing.T) {
	f := newDocumentFixture(completedTransaction())
	f.docs = newDocumentRepoFake(domain.Document{ID: "doc-1", UserID: "user-1", Status: domain.DocumentPending})
	f.uc.documents = f.docs
	f.mailer.err = errors.New("smtp down")

	if _, err := f.uc.UpdateStatus(context.Background(), "doc-1", "under_review"); err != nil {
		t.Fatalf("expected success despite mail failure, got %v", err)
	}
}

func TestUpdateStatusMissingDocument(t *testing.T) {
	f := newDocumentFixture()

	_, err := f.uc.UpdateStatus(context.Background(), "missing", "approved")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAttachSignedFileForcesSignedFromAnyState(t *testing.T) {
	for _, prior := range []domain.DocumentStatus{
		domain.DocumentPending,
		domain.DocumentUnderReview,
		domain.DocumentApproved,
		domain.DocumentRejected,
		domain.DocumentSigned,
	} {
		f := newDocumentFixture()
		f.docs = newDocumentRepoFake(domain.Document{ID: "doc-1", UserID: "user-1", Status: prior})
		f.uc.documents = f.docs

		if _, err := f.uc.AttachSignedFile(context.Background(), "doc-1", pdfFile("signed.pdf")); err != nil {
			t.Fatalf("prior %s: AttachSignedFile() error = %v", prior, err)
		}
		doc, err := f.uc.Get(context.Background(), "doc-1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if doc.Status != domain.DocumentSigned || doc.SignedDocumentLink == "" {
			t.Fatalf("prior %s: expected signed with link, got %s %q", prior, doc.Status, doc.SignedDocumentLink)
		}
	}
}

func TestDeleteDocumentKeepsNotes(t *testing.T) {
	f := newDocumentFixture()
	f.docs = newDocumentRepoFake(domain.Document{ID: "doc-1", UserID: "user-1", StorageKey: "a.pdf"})
	f.uc.documents = f.docs

	deleted, err := f.uc.Delete(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted.StorageKey != "a.pdf" {
		t.Fatalf("expected deleted document returned, got %+v", deleted)
	}
	if _, err := f.uc.Delete(context.Background(), "doc-1"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestListByTransactionResolvesBusinessKey(t *testing.T) {
	f := newDocumentFixture(completedTransaction())
	f.docs = newDocumentRepoFake(
		domain.Document{ID: "old", TransactionRef: "tx-internal-1", CreatedAt: fixedNow.Add(-time.Hour)},
		domain.Document{ID: "new", TransactionRef: "tx-internal-1", CreatedAt: fixedNow},
		domain.Document{ID: "other", TransactionRef: "tx-internal-2", CreatedAt: fixedNow},
	)
	f.uc.documents = f.docs

	docs, err := f.uc.ListByTransaction(context.Background(), "TXN-1001")
	if err != nil {
		t.Fatalf("ListByTransaction() error = %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "new" || docs[1].ID != "old" {
		t.Fatalf("expected [new old], got %+v", docs)
	}
}

func TestNewStorageKeySanitizesName(t *testing.T) {
	key := NewStorageKey("../My Report (1).PDF", fixedNow)
	if !strings.HasPrefix(key, "my-report--1-") {
		t.Fatalf("unexpected key prefix: %s", key)
	}
	if !strings.HasSuffix(key, ".pdf") {
		t.Fatalf("expected .pdf suffix, got %s", key)
	}
	if strings.Contains(key, "/") {
		t.Fatalf("key must not contain path separators: %s", key)
	}
}
