package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
	"github.com/kirillkom/deco-docflow/internal/core/ports"
)

type TransactionUseCase struct {
	transactions ports.TransactionRepository
	users        ports.UserRepository
	now          func() time.Time
}

func NewTransactionUseCase(transactions ports.TransactionRepository, users ports.UserRepository) *TransactionUseCase {
	return &TransactionUseCase{
		transactions: transactions,
		users:        users,
		now:          utcNow,
	}
}

func (uc *TransactionUseCase) Create(
	ctx context.Context,
	caller domain.Principal,
	in domain.CreateTransactionInput,
) (*domain.Transaction, error) {
	key := strings.TrimSpace(in.Key)
	if key == "" {
		return nil, domain.Fail(domain.ErrInvalidArgument, "create transaction", "transaction id is required")
	}
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		userID = caller.UserID
	}
	if !caller.CanAccess(userID) {
		return nil, domain.Fail(domain.ErrPermissionDenied, "create transaction", "cannot create a transaction for another user")
	}

	status := in.Status
	if status == "" {
		status = domain.TransactionPending
	}
	if !status.Valid() {
		return nil, domain.Fail(domain.ErrInvalidArgument, "create transaction", "invalid transaction status: "+string(status))
	}
	if err := validateCustomerInfo(in.UserInfo); err != nil {
		return nil, err
	}
	if err := validateDeclaredDocuments(in.Documents); err != nil {
		return nil, err
	}
	pricing, err := normalizePricing(in.Pricing)
	if err != nil {
		return nil, err
	}

	if _, err := uc.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	now := uc.now()
	tx := &domain.Transaction{
		ID:          uuid.NewString(),
		Key:         key,
		UserID:      userID,
		UserInfo:    normalizeCustomerInfo(in.UserInfo),
		Documents:   in.Documents,
		Pricing:     pricing,
		Status:      status,
		Metadata:    in.Metadata,
		DocumentIDs: []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if tx.Documents == nil {
		tx.Documents = []domain.DeclaredDocument{}
	}

	if err := uc.transactions.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	return tx, nil
}

func (uc *TransactionUseCase) Update(
	ctx context.Context,
	caller domain.Principal,
	key string,
	patch domain.TransactionPatch,
) (*domain.Transaction, error) {
	tx, err := uc.transactions.GetByKey(ctx, strings.TrimSpace(key))
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(tx.UserID) {
		return nil, domain.Fail(domain.ErrPermissionDenied, "update transaction", "cannot modify another user's transaction")
	}

	clean, err := normalizeTransactionPatch(caller, patch)
	if err != nil {
		return nil, err
	}
	updated, err := uc.transactions.Update(ctx, tx.ID, clean, uc.now())
	if err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}
	return updated, nil
}

// normalizeTransactionPatch validates the fields the caller may change and
// returns them in stored form. Fields left nil stay nil.
func normalizeTransactionPatch(caller domain.Principal, patch domain.TransactionPatch) (domain.TransactionPatch, error) {
	var out domain.TransactionPatch
	if patch.Status != nil {
		if !caller.IsAdmin() {
			return out, domain.Fail(domain.ErrPermissionDenied, "update transaction", "only administrators can change transaction status")
		}
		if !patch.Status.Valid() {
			return out, domain.Fail(domain.ErrInvalidArgument, "update transaction", "invalid transaction status: "+string(*patch.Status))
		}
		status := *patch.Status
		out.Status = &status
	}
	if patch.UserInfo != nil {
		if err := validateCustomerInfo(*patch.UserInfo); err != nil {
			return out, err
		}
		info := normalizeCustomerInfo(*patch.UserInfo)
		out.UserInfo = &info
	}
	if patch.Documents != nil {
		if err := validateDeclaredDocuments(*patch.Documents); err != nil {
			return out, err
		}
		docs := *patch.Documents
		out.Documents = &docs
	}
	if patch.Pricing != nil {
		pricing, err := normalizePricing(*patch.Pricing)
		if err != nil {
			return out, err
		}
		out.Pricing = &pricing
	}
	if patch.Metadata != nil {
		meta := *patch.Metadata
		out.Metadata = &meta
	}
	return out, nil
}

func (uc *TransactionUseCase) Get(ctx context.Context, caller domain.Principal, key string) (*domain.Transaction, error) {
	tx, err := uc.transactions.GetByKey(ctx, strings.TrimSpace(key))
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(tx.UserID) {
		return nil, domain.Fail(domain.ErrPermissionDenied, "get transaction", "cannot read another user's transaction")
	}
	return tx, nil
}

func (uc *TransactionUseCase) ListByUser(ctx context.Context, caller domain.Principal, userID string) ([]domain.Transaction, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.Fail(domain.ErrInvalidArgument, "list transactions", "user id is required")
	}
	if !caller.CanAccess(userID) {
		return nil, domain.Fail(domain.ErrPermissionDenied, "list transactions", "cannot list another user's transactions")
	}
	return uc.transactions.ListByUser(ctx, userID)
}

func validateCustomerInfo(info domain.CustomerInfo) error {
	fields := []struct{ name, value string }{
		{"first_name", info.FirstName},
		{"last_name", info.LastName},
		{"email", info.Email},
		{"phone", info.Phone},
		{"address", info.Address},
		{"state", info.State},
		{"pin_code", info.PinCode},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return domain.Fail(domain.ErrInvalidArgument, "validate user info", "user_info."+f.name+" is required")
		}
	}
	return nil
}

func normalizeCustomerInfo(info domain.CustomerInfo) domain.CustomerInfo {
	return domain.CustomerInfo{
		FirstName: strings.TrimSpace(info.FirstName),
		LastName:  strings.TrimSpace(info.LastName),
		Email:     normalizeEmail(info.Email),
		Phone:     strings.TrimSpace(info.Phone),
		Address:   strings.TrimSpace(info.Address),
		State:     strings.TrimSpace(info.State),
		PinCode:   strings.TrimSpace(info.PinCode),
	}
}

func validateDeclaredDocuments(docs []domain.DeclaredDocument) error {
	for i, d := range docs {
		if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.DocumentType) == "" {
			return domain.Fail(domain.ErrInvalidArgument, "validate documents",
				fmt.Sprintf("documents[%d]: name and document_type are required", i))
		}
		if d.Size < 0 {
			return domain.Fail(domain.ErrInvalidArgument, "validate documents",
				fmt.Sprintf("documents[%d]: size must not be negative", i))
		}
	}
	return nil
}

func normalizePricing(p domain.Pricing) (domain.Pricing, error) {
	if p.Subtotal.IsNegative() || p.GSTAmount.IsNegative() || p.GSTPercentage.IsNegative() || p.TotalAmount.IsNegative() {
		return domain.Pricing{}, domain.Fail(domain.ErrInvalidArgument, "validate pricing", "pricing amounts must not be negative")
	}
	if p.TotalAmount.IsZero() && !p.Subtotal.IsZero() {
		p.TotalAmount = p.Subtotal.Add(p.GSTAmount)
	}
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if p.Currency == "" {
		p.Currency = domain.DefaultCurrency
	}
	return p, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func utcNow() time.Time {
	return time.Now().UTC()
}
