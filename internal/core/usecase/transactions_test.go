package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
)

func newTransactionFixture(txs ...domain.Transaction) (*TransactionUseCase, *transactionRepoFake) {
	repo := newTransactionRepoFake(txs...)
	uc := NewTransactionUseCase(repo, newUserRepoFake(seedUsers()...))
	uc.now = func() time.Time { return fixedNow }
	return uc, repo
}

func sampleTransactionInput() domain.CreateTransactionInput {
	return domain.CreateTransactionInput{
		Key: "TXN-2001",
		UserInfo: domain.CustomerInfo{
			FirstName: "Uma",
			LastName:  "User",
			Email:     "Owner@Deco.test",
			Phone:     "+91 90000 00000",
			Address:   "1 Residency Road",
			State:     "Karnataka",
			PinCode:   "560025",
		},
		Documents: []domain.DeclaredDocument{
			{Name: "rent-agreement.pdf", Size: 1024, Type: "application/pdf", DocumentType: "rent_agreement"},
		},
		Pricing: domain.Pricing{
			Subtotal:      decimal.RequireFromString("1000.00"),
			GSTAmount:     decimal.RequireFromString("180.00"),
			GSTPercentage: decimal.NewFromInt(18),
			Currency:      "inr",
		},
	}
}

func TestCreateTransactionDefaults(t *testing.T) {
	uc, _ := newTransactionFixture()

	tx, err := uc.Create(context.Background(), ownerPrincipal, sampleTransactionInput())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if tx.UserID != "user-1" {
		t.Fatalf("expected caller as owner, got %q", tx.UserID)
	}
	if tx.Status != domain.TransactionPending {
		t.Fatalf("expected pending, got %s", tx.Status)
	}
	if !tx.Pricing.TotalAmount.Equal(decimal.RequireFromString("1180")) {
		t.Fatalf("expected derived total 1180, got %s", tx.Pricing.TotalAmount)
	}
	if tx.Pricing.Currency != "INR" {
		t.Fatalf("expected INR, got %q", tx.Pricing.Currency)
	}
	if tx.UserInfo.Email != "owner@deco.test" {
		t.Fatalf("expected normalized email, got %q", tx.UserInfo.Email)
	}
	if tx.ID == "" || tx.ID == tx.Key {
		t.Fatalf("expected distinct internal id, got %q", tx.ID)
	}
}

func TestCreateTransactionRejectsDuplicateKey(t *testing.T) {
	existing := completedTransaction()
	uc, _ := newTransactionFixture(existing)

	in := sampleTransactionInput()
	in.Key = existing.Key
	if _, err := uc.Create(context.Background(), ownerPrincipal, in); !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	uc, _ := newTransactionFixture()

	noKey := sampleTransactionInput()
	noKey.Key = " "
	noPhone := sampleTransactionInput()
	noPhone.UserInfo.Phone = ""
	negative := sampleTransactionInput()
	negative.Pricing.Subtotal = decimal.NewFromInt(-1)
	badDoc := sampleTransactionInput()
	badDoc.Documents[0].DocumentType = ""
	badStatus := sampleTransactionInput()
	badStatus.Status = "paid"

	for name, in := range map[string]domain.CreateTransactionInput{
		"missing key":      noKey,
		"missing phone":    noPhone,
		"negative pricing": negative,
		"declared doc":     badDoc,
		"status":           badStatus,
	} {
		if _, err := uc.Create(context.Background(), ownerPrincipal, in); !domain.IsKind(err, domain.ErrInvalidArgument) {
			t.Fatalf("%s: expected ErrInvalidArgument, got %v", name, err)
		}
	}
}

func TestCreateTransactionForAnotherUser(t *testing.T) {
	uc, _ := newTransactionFixture()

	in := sampleTransactionInput()
	in.UserID = "user-2"
	if _, err := uc.Create(context.Background(), ownerPrincipal, in); !domain.IsKind(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	tx, err := uc.Create(context.Background(), adminPrincipal, in)
	if err != nil {
		t.Fatalf("admin Create() error = %v", err)
	}
	if tx.UserID != "user-2" {
		t.Fatalf("expected user-2 owner, got %q", tx.UserID)
	}
}

func TestUpdateTransactionStatusIsAdminOnly(t *testing.T) {
	tx := completedTransaction()
	tx.Status = domain.TransactionPending
	uc, repo := newTransactionFixture(tx)
	completed := domain.TransactionCompleted

	if _, err := uc.Update(context.Background(), ownerPrincipal, tx.Key, domain.TransactionPatch{Status: &completed}); !domain.IsKind(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	updated, err := uc.Update(context.Background(), adminPrincipal, tx.Key, domain.TransactionPatch{Status: &completed})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Status != domain.TransactionCompleted || !updated.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("unexpected transaction %+v", updated)
	}
	stored, _ := repo.GetByID(context.Background(), tx.ID)
	if stored.Status != domain.TransactionCompleted {
		t.Fatalf("expected stored status completed, got %s", stored.Status)
	}
}

func TestOwnerPricingPatchKeepsConcurrentStatusChange(t *testing.T) {
	tx := completedTransaction()
	tx.Status = domain.TransactionPending
	uc, repo := newTransactionFixture(tx)
	repo.beforeUpdate = func(f *transactionRepoFake) {
		f.setStatus(tx.ID, domain.TransactionCompleted)
	}

	pricing := domain.Pricing{
		Subtotal:      decimal.RequireFromString("2000.00"),
		GSTAmount:     decimal.RequireFromString("360.00"),
		GSTPercentage: decimal.NewFromInt(18),
	}
	updated, err := uc.Update(context.Background(), ownerPrincipal, tx.Key, domain.TransactionPatch{Pricing: &pricing})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(repo.patches) != 1 || repo.patches[0].Status != nil {
		t.Fatalf("owner patch must not carry a status, got %+v", repo.patches)
	}
	if updated.Status != domain.TransactionCompleted {
		t.Fatalf("expected admin's completed status to survive, got %s", updated.Status)
	}
	if !updated.Pricing.TotalAmount.Equal(decimal.RequireFromString("2360")) || updated.Pricing.Currency != "INR" {
		t.Fatalf("expected normalized pricing, got %+v", updated.Pricing)
	}
}

func TestGetTransactionAccess(t *testing.T) {
	uc, _ := newTransactionFixture(completedTransaction())

	if _, err := uc.Get(context.Background(), otherPrincipal, "TXN-1001"); !domain.IsKind(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if _, err := uc.Get(context.Background(), ownerPrincipal, "TXN-1001"); err != nil {
		t.Fatalf("owner Get() error = %v", err)
	}
	if _, err := uc.Get(context.Background(), adminPrincipal, "TXN-1001"); err != nil {
		t.Fatalf("admin Get() error = %v", err)
	}
	if _, err := uc.ListByUser(context.Background(), otherPrincipal, "user-1"); !domain.IsKind(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}
