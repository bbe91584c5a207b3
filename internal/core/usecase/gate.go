package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
	"github.com/kirillkom/deco-docflow/internal/core/ports"
)

// TransactionGateUseCase admits document operations only for completed
// transactions. The check runs at creation time and is never re-applied.
type TransactionGateUseCase struct {
	transactions ports.TransactionRepository
}

func NewTransactionGateUseCase(transactions ports.TransactionRepository) *TransactionGateUseCase {
	return &TransactionGateUseCase{transactions: transactions}
}

func (g *TransactionGateUseCase) AssertUsableForDocuments(ctx context.Context, transactionKey string) (*domain.Transaction, error) {
	key := strings.TrimSpace(transactionKey)
	if key == "" {
		return nil, domain.Fail(domain.ErrInvalidArgument, "assert transaction usable", "transaction id is required")
	}

	tx, err := g.transactions.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TransactionCompleted {
		return nil, domain.Fail(
			domain.ErrPreconditionFailed,
			"assert transaction usable",
			fmt.Sprintf("transaction %s is %s; documents require a completed transaction", key, tx.Status),
		)
	}
	return tx, nil
}
