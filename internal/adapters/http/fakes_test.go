package httpadapter

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/kirillkom/deco-docflow/internal/config"
	"github.com/kirillkom/deco-docflow/internal/core/domain"
)

const (
	userToken  = "user-token"
	otherToken = "other-token"
	adminToken = "admin-token"
)

type fakeResolver struct{}

func (fakeResolver) VerifyAccess(token string) (domain.Principal, error) {
	switch token {
	case userToken:
		return domain.Principal{UserID: "user-1", Role: domain.RoleUser}, nil
	case otherToken:
		return domain.Principal{UserID: "user-2", Role: domain.RoleUser}, nil
	case adminToken:
		return domain.Principal{UserID: "admin-1", Role: domain.RoleAdmin}, nil
	default:
		return domain.Principal{}, domain.Fail(domain.ErrUnauthorized, "verify access", "invalid or expired token")
	}
}

type fakeAccounts struct {
	lastQuery domain.UserQuery
}

func (f *fakeAccounts) Register(_ context.Context, in domain.RegisterInput) (*domain.Registration, error) {
	if !in.TermsAccepted {
		return nil, domain.Fail(domain.ErrInvalidArgument, "register", "Terms must be accepted")
	}
	return &domain.Registration{User: domain.User{ID: "user-9", Email: in.Email}, TempPassword: "Tmp12345"}, nil
}

func (f *fakeAccounts) Login(_ context.Context, email, password string) (*domain.LoginResult, error) {
	if password != "secret" {
		return nil, domain.Fail(domain.ErrUnauthorized, "login", "Invalid email or password")
	}
	return &domain.LoginResult{User: domain.User{ID: "user-1", Email: email}}, nil
}

func (f *fakeAccounts) Refresh(context.Context, string) (domain.TokenPair, error) {
	return domain.TokenPair{AccessToken: "a", RefreshToken: "r"}, nil
}

func (f *fakeAccounts) Me(_ context.Context, caller domain.Principal) (*domain.User, error) {
	return &domain.User{ID: caller.UserID, Type: caller.Role}, nil
}

func (f *fakeAccounts) SendEmailOTP(context.Context, string) (*domain.OTPTicket, error) {
	return &domain.OTPTicket{VerificationID: "v-1"}, nil
}

func (f *fakeAccounts) VerifyEmailOTP(context.Context, string, string) (string, error) {
	return "a@deco.test", nil
}

func (f *fakeAccounts) StartForgotPassword(context.Context, string) (*domain.OTPTicket, error) {
	return &domain.OTPTicket{VerificationID: "v-2"}, nil
}

func (f *fakeAccounts) VerifyForgotPassword(context.Context, string, string) (string, error) {
	return "a@deco.test", nil
}

func (f *fakeAccounts) ResetPassword(context.Context, string, string) error { return nil }

func (f *fakeAccounts) ListUsers(_ context.Context, _ domain.Principal, q domain.UserQuery) (domain.UserPage, error) {
	f.lastQuery = q
	return domain.NewUserPage(q.Normalize(), 0, nil), nil
}

type fakeTransactions struct {
	byKey map[string]domain.Transaction
}

func (f *fakeTransactions) Create(_ context.Context, caller domain.Principal, in domain.CreateTransactionInput) (*domain.Transaction, error) {
	return &domain.Transaction{ID: "tx-new", Key: in.Key, UserID: caller.UserID, Pricing: in.Pricing}, nil
}

func (f *fakeTransactions) Update(_ context.Context, caller domain.Principal, key string, _ domain.TransactionPatch) (*domain.Transaction, error) {
	return f.Get(context.Background(), caller, key)
}

func (f *fakeTransactions) Get(_ context.Context, caller domain.Principal, key string) (*domain.Transaction, error) {
	tx, ok := f.byKey[key]
	if !ok {
		return nil, domain.Fail(domain.ErrNotFound, "get transaction", "Transaction not found")
	}
	if !caller.CanAccess(tx.UserID) {
		return nil, domain.Fail(domain.ErrPermissionDenied, "get transaction", "cannot read another user's transaction")
	}
	return &tx, nil
}

func (f *fakeTransactions) ListByUser(context.Context, domain.Principal, string) ([]domain.Transaction, error) {
	return nil, nil
}

type fakeDocuments struct {
	byID      map[string]domain.Document
	createErr error
	created   []domain.CreateDocumentInput
	deleted   []string
}

func (f *fakeDocuments) Create(_ context.Context, in domain.CreateDocumentInput) (*domain.Document, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, in)
	return &domain.Document{ID: "doc-new", UserID: in.UserID, TransactionKey: in.TransactionKey, DocumentLink: in.File.URL}, nil
}

func (f *fakeDocuments) CreateBatch(_ context.Context, userID, key, docType string, files []domain.StoredFile) ([]domain.Document, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	out := make([]domain.Document, 0, len(files))
	for _, file := range files {
		f.created = append(f.created, domain.CreateDocumentInput{UserID: userID, TransactionKey: key, DocumentType: docType, File: file})
		out = append(out, domain.Document{UserID: userID, DocumentLink: file.URL})
	}
	return out, nil
}

func (f *fakeDocuments) UpdateStatus(_ context.Context, id, status string) (*domain.Document, error) {
	parsed, err := domain.ParseDocumentStatus(status)
	if err != nil {
		return nil, err
	}
	doc, err := f.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	doc.Status = parsed
	return doc, nil
}

func (f *fakeDocuments) AttachSignedFile(_ context.Context, id string, file domain.StoredFile) (*domain.Document, error) {
	doc, err := f.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	doc.SignedDocumentLink = file.URL
	doc.SignedStorageKey = file.Key
	f.byID[id] = *doc
	return doc, nil
}

func (f *fakeDocuments) Delete(_ context.Context, id string) (*domain.Document, error) {
	doc, err := f.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	f.deleted = append(f.deleted, id)
	return doc, nil
}

func (f *fakeDocuments) Get(_ context.Context, id string) (*domain.Document, error) {
	doc, ok := f.byID[id]
	if !ok {
		return nil, domain.Fail(domain.ErrNotFound, "get document", "Document not found")
	}
	return &doc, nil
}

func (f *fakeDocuments) ListByUser(context.Context, string) ([]domain.Document, error) {
	return nil, nil
}

func (f *fakeDocuments) ListByTransaction(context.Context, string) ([]domain.Document, error) {
	return nil, nil
}

type fakeNotes struct {
	added []domain.AddNoteInput
}

func (f *fakeNotes) Add(_ context.Context, caller domain.Principal, in domain.AddNoteInput) (*domain.Note, error) {
	f.added = append(f.added, in)
	return &domain.Note{ID: "note-1", DocumentID: in.DocumentID, AuthorID: caller.UserID, Text: in.Text, Metadata: in.Context}, nil
}

func (f *fakeNotes) ListForDocument(context.Context, domain.Principal, string) ([]domain.Note, error) {
	return nil, nil
}

func (f *fakeNotes) ListForTransaction(context.Context, domain.Principal, string) ([]domain.Note, error) {
	return nil, nil
}

func (f *fakeNotes) ListForUser(context.Context, domain.Principal, string) ([]domain.Note, error) {
	return nil, nil
}

func (f *fakeNotes) Update(_ context.Context, _ domain.Principal, id string, _ domain.NotePatch) (*domain.Note, error) {
	return &domain.Note{ID: id}, nil
}

func (f *fakeNotes) Remove(context.Context, domain.Principal, string) error { return nil }

func (f *fakeNotes) StatsForDocument(context.Context, string) (domain.NoteStats, error) {
	return domain.NoteStats{TotalNotes: 3}, nil
}

type memoryStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{files: make(map[string][]byte)}
}

func (s *memoryStorage) Save(_ context.Context, key, contentType string, data io.Reader) (domain.StoredFile, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return domain.StoredFile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = raw
	return domain.StoredFile{Key: key, URL: "http://files.test/" + key, SizeBytes: int64(len(raw)), MimeType: contentType}, nil
}

func (s *memoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, key)
	return nil
}

func (s *memoryStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.files[key]
	if !ok {
		return nil, domain.Fail(domain.ErrNotFound, "open file", "file not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *memoryStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

type testDeps struct {
	accounts     *fakeAccounts
	transactions *fakeTransactions
	documents    *fakeDocuments
	notes        *fakeNotes
	storage      *memoryStorage
}

func newTestDeps() *testDeps {
	return &testDeps{
		accounts: &fakeAccounts{},
		transactions: &fakeTransactions{byKey: map[string]domain.Transaction{
			"TXN-1": {ID: "tx-1", Key: "TXN-1", UserID: "user-1", Status: domain.TransactionCompleted},
		}},
		documents: &fakeDocuments{byID: map[string]domain.Document{
			"doc-1": {ID: "doc-1", UserID: "user-1", TransactionKey: "TXN-1", StorageKey: "stored-1.pdf", SignedStorageKey: "signed-1.pdf"},
		}},
		notes:   &fakeNotes{},
		storage: newMemoryStorage(),
	}
}

func (d *testDeps) handler(t *testing.T, cfg config.Config) http.Handler {
	t.Helper()
	rt, err := NewRouter(cfg, Services{
		Accounts:     d.accounts,
		Transactions: d.transactions,
		Documents:    d.documents,
		Notes:        d.notes,
		Principals:   fakeResolver{},
		Storage:      d.storage,
		Files:        d.storage,
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return rt.Handler()
}

func newTestHandler(t *testing.T, cfg config.Config) http.Handler {
	t.Helper()
	return newTestDeps().handler(t, cfg)
}
