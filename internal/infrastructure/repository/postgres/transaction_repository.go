package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
)

const transactionColumns = `id, transaction_key, user_id, user_info, documents, subtotal, gst_amount, gst_percentage,
	total_amount, currency, status, metadata, document_ids, created_at, updated_at`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	payload, err := encodeTransaction(tx)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO transactions (`+transactionColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		tx.ID, tx.Key, tx.UserID, payload.userInfo, payload.documents,
		tx.Pricing.Subtotal, tx.Pricing.GSTAmount, tx.Pricing.GSTPercentage, tx.Pricing.TotalAmount, tx.Pricing.Currency,
		string(tx.Status), payload.metadata, payload.documentIDs, tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Fail(domain.ErrConflict, "create transaction", "transaction id already exists: "+tx.Key)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	return scanOneTransaction(row, "get transaction", id)
}

func (r *TransactionRepository) GetByKey(ctx context.Context, key string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE transaction_key = $1`, key)
	return scanOneTransaction(row, "get transaction", key)
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID string) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+transactionColumns+`
FROM transactions
WHERE user_id = $1
ORDER BY created_at DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// Update applies the non-nil patch fields in a single statement and returns
// the stored row. Columns the patch leaves out keep whatever value they hold
// at write time. document_ids is owned by AppendDocuments.
func (r *TransactionRepository) Update(
	ctx context.Context,
	id string,
	patch domain.TransactionPatch,
	updatedAt time.Time,
) (*domain.Transaction, error) {
	var status, currency sql.NullString
	var userInfo, documents, metadata []byte
	var subtotal, gstAmount, gstPercentage, totalAmount decimal.NullDecimal
	var err error

	if patch.Status != nil {
		status = sql.NullString{String: string(*patch.Status), Valid: true}
	}
	if patch.UserInfo != nil {
		if userInfo, err = json.Marshal(patch.UserInfo); err != nil {
			return nil, fmt.Errorf("marshal user info: %w", err)
		}
	}
	if patch.Documents != nil {
		docs := *patch.Documents
		if docs == nil {
			docs = []domain.DeclaredDocument{}
		}
		if documents, err = json.Marshal(docs); err != nil {
			return nil, fmt.Errorf("marshal declared documents: %w", err)
		}
	}
	if patch.Pricing != nil {
		p := patch.Pricing
		subtotal = decimal.NewNullDecimal(p.Subtotal)
		gstAmount = decimal.NewNullDecimal(p.GSTAmount)
		gstPercentage = decimal.NewNullDecimal(p.GSTPercentage)
		totalAmount = decimal.NewNullDecimal(p.TotalAmount)
		currency = sql.NullString{String: p.Currency, Valid: true}
	}
	if patch.Metadata != nil {
		if metadata, err = json.Marshal(patch.Metadata); err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
	}

	row := r.db.QueryRowContext(ctx, `
UPDATE transactions
SET user_info = COALESCE($2::jsonb, user_info),
	documents = COALESCE($3::jsonb, documents),
	subtotal = COALESCE($4, subtotal),
	gst_amount = COALESCE($5, gst_amount),
	gst_percentage = COALESCE($6, gst_percentage),
	total_amount = COALESCE($7, total_amount),
	currency = COALESCE($8, currency),
	status = COALESCE($9, status),
	metadata = COALESCE($10::jsonb, metadata),
	updated_at = $11
WHERE id = $1
RETURNING `+transactionColumns,
		id, userInfo, documents,
		subtotal, gstAmount, gstPercentage, totalAmount, currency,
		status, metadata, updatedAt,
	)
	return scanOneTransaction(row, "update transaction", id)
}

// AppendDocuments adds ids to the transaction's reference list in a single
// statement so concurrent uploads do not overwrite each other.
func (r *TransactionRepository) AppendDocuments(ctx context.Context, id string, documentIDs []string) error {
	raw, err := json.Marshal(documentIDs)
	if err != nil {
		return fmt.Errorf("marshal document ids: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE transactions
SET document_ids = document_ids || $2::jsonb, updated_at = $3
WHERE id = $1
`, id, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append transaction documents: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("append transaction documents rows affected: %w", err)
	}
	if rows == 0 {
		return notFound("append transaction documents", "transaction", id)
	}
	return nil
}

type transactionPayload struct {
	userInfo    []byte
	documents   []byte
	metadata    []byte
	documentIDs []byte
}

func encodeTransaction(tx *domain.Transaction) (transactionPayload, error) {
	var p transactionPayload
	var err error
	if p.userInfo, err = json.Marshal(tx.UserInfo); err != nil {
		return p, fmt.Errorf("marshal user info: %w", err)
	}
	docs := tx.Documents
	if docs == nil {
		docs = []domain.DeclaredDocument{}
	}
	if p.documents, err = json.Marshal(docs); err != nil {
		return p, fmt.Errorf("marshal declared documents: %w", err)
	}
	if p.metadata, err = json.Marshal(tx.Metadata); err != nil {
		return p, fmt.Errorf("marshal metadata: %w", err)
	}
	ids := tx.DocumentIDs
	if ids == nil {
		ids = []string{}
	}
	if p.documentIDs, err = json.Marshal(ids); err != nil {
		return p, fmt.Errorf("marshal document ids: %w", err)
	}
	return p, nil
}

func scanOneTransaction(row rowScanner, op, key string) (*domain.Transaction, error) {
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(op, "transaction", key)
		}
		return nil, err
	}
	return &tx, nil
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var tx domain.Transaction
	var status string
	var userInfo, documents, metadata, documentIDs []byte

	err := row.Scan(
		&tx.ID, &tx.Key, &tx.UserID, &userInfo, &documents,
		&tx.Pricing.Subtotal, &tx.Pricing.GSTAmount, &tx.Pricing.GSTPercentage, &tx.Pricing.TotalAmount, &tx.Pricing.Currency,
		&status, &metadata, &documentIDs, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Transaction{}, err
		}
		return domain.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}

	if err := json.Unmarshal(userInfo, &tx.UserInfo); err != nil {
		return domain.Transaction{}, fmt.Errorf("unmarshal user info: %w", err)
	}
	if err := json.Unmarshal(documents, &tx.Documents); err != nil {
		return domain.Transaction{}, fmt.Errorf("unmarshal declared documents: %w", err)
	}
	if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
		return domain.Transaction{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if err := json.Unmarshal(documentIDs, &tx.DocumentIDs); err != nil {
		return domain.Transaction{}, fmt.Errorf("unmarshal document ids: %w", err)
	}
	tx.Status = domain.TransactionStatus(status)
	return tx, nil
}
