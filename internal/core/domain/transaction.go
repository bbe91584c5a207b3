package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionRefunded  TransactionStatus = "refunded"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionPending, TransactionCompleted, TransactionFailed, TransactionRefunded:
		return true
	default:
		return false
	}
}

const DefaultCurrency = "INR"

// Transaction is a purchase record. ID is the internal identity, Key the
// caller-supplied business key.
type Transaction struct {
	ID          string              `json:"id"`
	Key         string              `json:"transaction_id"`
	UserID      string              `json:"user_id"`
	UserInfo    CustomerInfo        `json:"user_info"`
	Documents   []DeclaredDocument  `json:"documents"`
	Pricing     Pricing             `json:"pricing"`
	Status      TransactionStatus   `json:"status"`
	Metadata    TransactionMetadata `json:"metadata"`
	DocumentIDs []string            `json:"document_ids"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// CustomerInfo is the buyer snapshot taken when the transaction is created.
type CustomerInfo struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	State     string `json:"state"`
	PinCode   string `json:"pin_code"`
}

// DeclaredDocument describes a document the buyer intends to submit. It is
// not a stored file.
type DeclaredDocument struct {
	Name             string `json:"name"`
	Size             int64  `json:"size"`
	Type             string `json:"type"`
	DocumentType     string `json:"document_type"`
	DocumentCategory string `json:"document_category"`
}

type Pricing struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	GSTAmount     decimal.Decimal `json:"gst_amount"`
	GSTPercentage decimal.Decimal `json:"gst_percentage"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency"`
}

type TransactionMetadata struct {
	TotalDocuments int    `json:"total_documents,omitempty"`
	Platform       string `json:"platform,omitempty"`
	Version        string `json:"version,omitempty"`
}

type CreateTransactionInput struct {
	Key       string
	UserID    string
	UserInfo  CustomerInfo
	Documents []DeclaredDocument
	Pricing   Pricing
	Status    TransactionStatus
	Metadata  TransactionMetadata
}

// TransactionPatch holds optional replacements; nil fields are left untouched.
type TransactionPatch struct {
	Status    *TransactionStatus
	UserInfo  *CustomerInfo
	Documents *[]DeclaredDocument
	Pricing   *Pricing
	Metadata  *TransactionMetadata
}
