package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
)

const documentColumns = `id, user_id, transaction_ref, transaction_key, document_link, storage_key, document_type,
	mime_type, size_bytes, status, signed_document_link, signed_storage_key, uploaded_at, created_at, updated_at`

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertDocument(ctx context.Context, db execer, doc *domain.Document) error {
	_, err := db.ExecContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		doc.ID, doc.UserID, doc.TransactionRef, doc.TransactionKey, doc.DocumentLink, doc.StorageKey, doc.DocumentType,
		doc.MimeType, doc.SizeBytes, string(doc.Status), doc.SignedDocumentLink, doc.SignedStorageKey,
		doc.UploadedAt, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	return insertDocument(ctx, r.db, doc)
}

// CreateBatch inserts every document in one transaction.
func (r *DocumentRepository) CreateBatch(ctx context.Context, docs []*domain.Document) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, doc := range docs {
			if err := insertDocument(ctx, tx, doc); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	return scanOneDocument(row, "get document", id)
}

func (r *DocumentRepository) ListByUser(ctx context.Context, userID string) ([]domain.Document, error) {
	return r.list(ctx, "user_id", userID)
}

func (r *DocumentRepository) ListByTransaction(ctx context.Context, transactionRef string) ([]domain.Document, error) {
	return r.list(ctx, "transaction_ref", transactionRef)
}

func (r *DocumentRepository) list(ctx context.Context, column, value string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE `+column+` = $1
ORDER BY created_at DESC
`, value)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE documents
SET status = $2, updated_at = $3
WHERE id = $1
RETURNING `+documentColumns, id, string(status), time.Now().UTC())
	return scanOneDocument(row, "update document status", id)
}

// AttachSignedFile stores the signed copy and moves the document to signed
// in the same statement.
func (r *DocumentRepository) AttachSignedFile(ctx context.Context, id, link, storageKey string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE documents
SET signed_document_link = $2, signed_storage_key = $3, status = $4, updated_at = $5
WHERE id = $1
RETURNING `+documentColumns, id, link, storageKey, string(domain.DocumentSigned), time.Now().UTC())
	return scanOneDocument(row, "attach signed document", id)
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows affected: %w", err)
	}
	if rows == 0 {
		return notFound("delete document", "document", id)
	}
	return nil
}

func scanOneDocument(row rowScanner, op, id string) (*domain.Document, error) {
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(op, "document", id)
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var doc domain.Document
	var status string
	err := row.Scan(
		&doc.ID, &doc.UserID, &doc.TransactionRef, &doc.TransactionKey, &doc.DocumentLink, &doc.StorageKey,
		&doc.DocumentType, &doc.MimeType, &doc.SizeBytes, &status, &doc.SignedDocumentLink, &doc.SignedStorageKey,
		&doc.UploadedAt, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return domain.Document{}, err
	}
	doc.Status = domain.DocumentStatus(status)
	return doc, nil
}
