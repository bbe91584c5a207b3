package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func notFound(what string) error {
	return domain.Fail(domain.ErrNotFound, "fake", what+" not found")
}

type userRepoFake struct {
	mu        sync.Mutex
	byID      map[string]*domain.User
	adminsErr error
	lastQuery domain.UserQuery
}

func newUserRepoFake(users ...domain.User) *userRepoFake {
	f := &userRepoFake{byID: make(map[string]*domain.User)}
	for _, u := range users {
		u := u
		f.byID[u.ID] = &u
	}
	return f
}

func (f *userRepoFake) Create(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == user.Email {
			return domain.Fail(domain.ErrConflict, "fake", "duplicate email")
		}
	}
	u := *user
	f.byID[u.ID] = &u
	return nil
}

func (f *userRepoFake) GetByID(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, notFound("user")
	}
	out := *u
	return &out, nil
}

func (f *userRepoFake) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, notFound("user")
}

func (f *userRepoFake) ListAdmins(context.Context) ([]domain.User, error) {
	if f.adminsErr != nil {
		return nil, f.adminsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.User, 0)
	for _, u := range f.byID {
		if u.Type == domain.RoleAdmin {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *userRepoFake) List(_ context.Context, q domain.UserQuery) ([]domain.User, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	out := make([]domain.User, 0)
	for _, u := range f.byID {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	start := q.Offset()
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (f *userRepoFake) ConsumeTempPassword(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return false, notFound("user")
	}
	if u.TempPasswordUsed {
		return false, nil
	}
	u.TempPasswordUsed = true
	return true, nil
}

func (f *userRepoFake) MarkTempPasswordUsed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return notFound("user")
	}
	u.TempPasswordUsed = true
	return nil
}

func (f *userRepoFake) UpdatePassword(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return notFound("user")
	}
	u.PasswordHash = hash
	return nil
}

type transactionRepoFake struct {
	mu        sync.Mutex
	byID      map[string]*domain.Transaction
	appendErr error
	created   []*domain.Transaction
	patches   []domain.TransactionPatch
	// beforeUpdate runs between the use case's read and its write.
	beforeUpdate func(*transactionRepoFake)
}

func newTransactionRepoFake(txs ...domain.Transaction) *transactionRepoFake {
	f := &transactionRepoFake{byID: make(map[string]*domain.Transaction)}
	for _, tx := range txs {
		tx := tx
		f.byID[tx.ID] = &tx
	}
	return f
}

func (f *transactionRepoFake) Create(_ context.Context, tx *domain.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Key == tx.Key {
			return domain.Fail(domain.ErrConflict, "fake", "duplicate transaction id")
		}
	}
	copyTx := *tx
	f.byID[tx.ID] = &copyTx
	f.created = append(f.created, &copyTx)
	return nil
}

func (f *transactionRepoFake) GetByID(_ context.Context, id string) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.byID[id]
	if !ok {
		return nil, notFound("transaction")
	}
	out := *tx
	return &out, nil
}

func (f *transactionRepoFake) GetByKey(_ context.Context, key string) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.byID {
		if tx.Key == key {
			out := *tx
			return &out, nil
		}
	}
	return nil, notFound("transaction")
}

func (f *transactionRepoFake) ListByUser(_ context.Context, userID string) ([]domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Transaction, 0)
	for _, tx := range f.byID {
		if tx.UserID == userID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (f *transactionRepoFake) Update(_ context.Context, id string, patch domain.TransactionPatch, updatedAt time.Time) (*domain.Transaction, error) {
	if f.beforeUpdate != nil {
		f.beforeUpdate(f)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.byID[id]
	if !ok {
		return nil, notFound("transaction")
	}
	f.patches = append(f.patches, patch)
	if patch.Status != nil {
		tx.Status = *patch.Status
	}
	if patch.UserInfo != nil {
		tx.UserInfo = *patch.UserInfo
	}
	if patch.Documents != nil {
		tx.Documents = *patch.Documents
	}
	if patch.Pricing != nil {
		tx.Pricing = *patch.Pricing
	}
	if patch.Metadata != nil {
		tx.Metadata = *patch.Metadata
	}
	tx.UpdatedAt = updatedAt
	out := *tx
	return &out, nil
}

// setStatus changes a stored transaction outside the use case.
func (f *transactionRepoFake) setStatus(id string, status domain.TransactionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].Status = status
}

func (f *transactionRepoFake) AppendDocuments(_ context.Context, id string, documentIDs []string) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.byID[id]
	if !ok {
		return notFound("transaction")
	}
	tx.DocumentIDs = append(tx.DocumentIDs, documentIDs...)
	return nil
}

type documentRepoFake struct {
	mu       sync.Mutex
	byID     map[string]*domain.Document
	batchErr error
}

func newDocumentRepoFake(docs ...domain.Document) *documentRepoFake {
	f := &documentRepoFake{byID: make(map[string]*domain.Document)}
	for _, d := range docs {
		d := d
		f.byID[d.ID] = &d
	}
	return f
}

func (f *documentRepoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copyDoc := *doc
	f.byID[doc.ID] = &copyDoc
	return nil
}

func (f *documentRepoFake) CreateBatch(_ context.Context, docs []*domain.Document) error {
	if f.batchErr != nil {
		return f.batchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range docs {
		copyDoc := *d
		f.byID[d.ID] = &copyDoc
	}
	return nil
}

func (f *documentRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok {
		return nil, notFound("document")
	}
	out := *d
	return &out, nil
}

func (f *documentRepoFake) list(match func(domain.Document) bool) []domain.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Document, 0)
	for _, d := range f.byID {
		if match(*d) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (f *documentRepoFake) ListByUser(_ context.Context, userID string) ([]domain.Document, error) {
	return f.list(func(d domain.Document) bool { return d.UserID == userID }), nil
}

func (f *documentRepoFake) ListByTransaction(_ context.Context, ref string) ([]domain.Document, error) {
	return f.list(func(d domain.Document) bool { return d.TransactionRef == ref }), nil
}

func (f *documentRepoFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok {
		return nil, notFound("document")
	}
	d.Status = status
	out := *d
	return &out, nil
}

func (f *documentRepoFake) AttachSignedFile(_ context.Context, id, link, key string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok {
		return nil, notFound("document")
	}
	d.SignedDocumentLink = link
	d.SignedStorageKey = key
	d.Status = domain.DocumentSigned
	out := *d
	return &out, nil
}

func (f *documentRepoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return notFound("document")
	}
	delete(f.byID, id)
	return nil
}

type noteRepoFake struct {
	mu        sync.Mutex
	byID      map[string]*domain.Note
	createErr error
}

func newNoteRepoFake(notes ...domain.Note) *noteRepoFake {
	f := &noteRepoFake{byID: make(map[string]*domain.Note)}
	for _, n := range notes {
		n := n
		f.byID[n.ID] = &n
	}
	return f
}

func (f *noteRepoFake) Create(_ context.Context, note *domain.Note) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copyNote := *note
	f.byID[note.ID] = &copyNote
	return nil
}

func (f *noteRepoFake) GetByID(_ context.Context, id string) (*domain.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.byID[id]
	if !ok {
		return nil, notFound("note")
	}
	out := *n
	return &out, nil
}

func (f *noteRepoFake) list(match func(domain.Note) bool) []domain.Note {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Note, 0)
	for _, n := range f.byID {
		if match(*n) {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (f *noteRepoFake) ListByDocument(_ context.Context, documentID string, v domain.NoteVisibility) ([]domain.Note, error) {
	return f.list(func(n domain.Note) bool { return n.DocumentID == documentID && v.Allows(n) }), nil
}

func (f *noteRepoFake) ListByTransaction(_ context.Context, ref string, v domain.NoteVisibility) ([]domain.Note, error) {
	return f.list(func(n domain.Note) bool { return n.TransactionRef == ref && v.Allows(n) }), nil
}

func (f *noteRepoFake) ListByAuthor(_ context.Context, authorID string) ([]domain.Note, error) {
	return f.list(func(n domain.Note) bool { return n.AuthorID == authorID }), nil
}

func (f *noteRepoFake) Update(_ context.Context, id string, patch domain.NotePatch) (*domain.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.byID[id]
	if !ok {
		return nil, notFound("note")
	}
	if patch.Text != nil {
		n.Text = *patch.Text
	}
	if patch.Priority != nil {
		n.Priority = *patch.Priority
	}
	if patch.Internal != nil {
		n.Internal = *patch.Internal
	}
	out := *n
	return &out, nil
}

func (f *noteRepoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return notFound("note")
	}
	delete(f.byID, id)
	return nil
}

func (f *noteRepoFake) StatsForDocument(_ context.Context, documentID string) (domain.NoteStats, error) {
	var stats domain.NoteStats
	for _, n := range f.list(func(n domain.Note) bool { return n.DocumentID == documentID }) {
		stats.TotalNotes++
		switch n.Type {
		case domain.NoteTypeUser:
			stats.UserNotes++
		case domain.NoteTypeAdmin:
			stats.AdminNotes++
		}
		switch n.Priority {
		case domain.PriorityHigh:
			stats.HighPriorityNotes++
		case domain.PriorityUrgent:
			stats.UrgentNotes++
		}
		if n.Internal {
			stats.InternalNotes++
		}
		if stats.LastNoteDate == nil || n.CreatedAt.After(*stats.LastNoteDate) {
			created := n.CreatedAt
			stats.LastNoteDate = &created
		}
	}
	return stats, nil
}

type otpStoreFake struct {
	mu      sync.Mutex
	records map[string]*domain.OTPVerification
}

func newOTPStoreFake() *otpStoreFake {
	return &otpStoreFake{records: make(map[string]*domain.OTPVerification)}
}

func (f *otpStoreFake) Save(_ context.Context, otp *domain.OTPVerification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copyOTP := *otp
	f.records[otp.VerificationID] = &copyOTP
	return nil
}

func (f *otpStoreFake) Get(_ context.Context, id string) (*domain.OTPVerification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, notFound("otp")
	}
	out := *rec
	return &out, nil
}

func (f *otpStoreFake) Consume(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return false, nil
	}
	delete(f.records, id)
	return true, nil
}

func (f *otpStoreFake) MarkUsed(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok || rec.Used {
		return false, nil
	}
	rec.Used = true
	return true, nil
}

func (f *otpStoreFake) LatestUsed(_ context.Context, email string, purpose domain.OTPPurpose) (*domain.OTPVerification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *domain.OTPVerification
	for _, rec := range f.records {
		if rec.Email != email || rec.Purpose != purpose || !rec.Used {
			continue
		}
		if latest == nil || rec.ExpiresAt.After(latest.ExpiresAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, notFound("otp")
	}
	out := *latest
	return &out, nil
}

func (f *otpStoreFake) issuedFor(email string, purpose domain.OTPPurpose) *domain.OTPVerification {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.Email == email && rec.Purpose == purpose {
			out := *rec
			return &out
		}
	}
	return nil
}

type mailerFake struct {
	mu   sync.Mutex
	sent []domain.EmailMessage
	err  error
}

func (f *mailerFake) Send(_ context.Context, msg domain.EmailMessage) (domain.DeliveryReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.DeliveryReceipt{}, f.err
	}
	f.sent = append(f.sent, msg)
	return domain.DeliveryReceipt{MessageID: "msg-" + msg.To}, nil
}

func (f *mailerFake) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.To)
	}
	sort.Strings(out)
	return out
}

type composerFake struct{}

func (composerFake) Note(n domain.NoteNotice) (domain.EmailMessage, error) {
	return domain.EmailMessage{To: n.Recipient.Email, Subject: "note:" + string(n.Recipient.Role), TextBody: n.NoteText}, nil
}

func (composerFake) Status(n domain.StatusNotice) (domain.EmailMessage, error) {
	return domain.EmailMessage{To: n.Recipient.Email, Subject: n.Status.StatusTitle()}, nil
}

func (composerFake) Welcome(n domain.WelcomeNotice) (domain.EmailMessage, error) {
	return domain.EmailMessage{To: n.Email, Subject: "welcome", TextBody: n.TempPassword}, nil
}

func (composerFake) OTP(n domain.OTPNotice) (domain.EmailMessage, error) {
	if n.Email == "" {
		return domain.EmailMessage{}, errors.New("missing recipient")
	}
	return domain.EmailMessage{To: n.Email, Subject: "otp:" + string(n.Purpose), TextBody: n.Code}, nil
}

func (composerFake) PasswordReset(n domain.PasswordResetNotice) (domain.EmailMessage, error) {
	return domain.EmailMessage{To: n.Email, Subject: "reset"}, nil
}

type recorderFake struct {
	mu        sync.Mutex
	delivered map[string]int
	failed    map[string]int
}

func (f *recorderFake) RecordNotification(kind string, delivered, failed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delivered == nil {
		f.delivered = make(map[string]int)
		f.failed = make(map[string]int)
	}
	f.delivered[kind] += delivered
	f.failed[kind] += failed
}

type tokenIssuerFake struct{}

func (tokenIssuerFake) IssuePair(p domain.Principal) (domain.TokenPair, error) {
	return domain.TokenPair{
		AccessToken:  "access|" + p.UserID + "|" + string(p.Role),
		RefreshToken: "refresh|" + p.UserID + "|" + string(p.Role),
	}, nil
}

func (tokenIssuerFake) parse(kind, token string) (domain.Principal, error) {
	parts := strings.Split(token, "|")
	if len(parts) != 3 || parts[0] != kind {
		return domain.Principal{}, domain.Fail(domain.ErrUnauthorized, "fake", "invalid token")
	}
	return domain.Principal{UserID: parts[1], Role: domain.Role(parts[2])}, nil
}

func (f tokenIssuerFake) VerifyAccess(token string) (domain.Principal, error) {
	return f.parse("access", token)
}

func (f tokenIssuerFake) VerifyRefresh(token string) (domain.Principal, error) {
	return f.parse("refresh", token)
}

type hasherFake struct{}

func (hasherFake) Hash(plain string) (string, error) { return "hashed:" + plain, nil }

func (hasherFake) Verify(plain, encoded string) (bool, error) {
	return encoded == "hashed:"+plain, nil
}

func newTestNotifier(mailer *mailerFake) *Notifier {
	return NewNotifier(mailer, composerFake{}, &recorderFake{}, nil)
}

var (
	adminPrincipal = domain.Principal{UserID: "admin-1", Role: domain.RoleAdmin}
	ownerPrincipal = domain.Principal{UserID: "user-1", Role: domain.RoleUser}
	otherPrincipal = domain.Principal{UserID: "user-2", Role: domain.RoleUser}
)

func seedUsers() []domain.User {
	return []domain.User{
		{ID: "admin-1", Email: "admin1@deco.test", FirstName: "Ada", LastName: "Admin", Type: domain.RoleAdmin},
		{ID: "admin-2", Email: "admin2@deco.test", FirstName: "Bob", LastName: "Boss", Type: domain.RoleAdmin},
		{ID: "user-1", Email: "owner@deco.test", FirstName: "Uma", LastName: "User", Type: domain.RoleUser},
		{ID: "user-2", Email: "other@deco.test", FirstName: "Oleg", LastName: "Other", Type: domain.RoleUser},
	}
}

func completedTransaction() domain.Transaction {
	return domain.Transaction{
		ID:     "tx-internal-1",
		Key:    "TXN-1001",
		UserID: "user-1",
		Status: domain.TransactionCompleted,
	}
}

func pdfFile(name string) domain.StoredFile {
	return domain.StoredFile{
		Key:          name,
		URL:          "http://files.test/uploads/" + name,
		OriginalName: name,
		SizeBytes:    2048,
		MimeType:     "application/pdf",
	}
}
