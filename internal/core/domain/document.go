package domain

import (
	"strings"
	"time"
)

type DocumentStatus string

const (
	DocumentPending     DocumentStatus = "pending"
	DocumentUnderReview DocumentStatus = "under_review"
	DocumentApproved    DocumentStatus = "approved"
	DocumentRejected    DocumentStatus = "rejected"
	DocumentSigned      DocumentStatus = "signed"
)

func ParseDocumentStatus(raw string) (DocumentStatus, error) {
	status := DocumentStatus(strings.TrimSpace(raw))
	switch status {
	case DocumentPending, DocumentUnderReview, DocumentApproved, DocumentRejected, DocumentSigned:
		return status, nil
	default:
		return "", Fail(ErrInvalidArgument, "parse document status", "invalid document status: "+raw)
	}
}

// StatusTitle is the human heading used in status notifications.
func (s DocumentStatus) StatusTitle() string {
	switch s {
	case DocumentUnderReview:
		return "Document Under Review"
	case DocumentApproved:
		return "Document Approved"
	case DocumentRejected:
		return "Document Rejected"
	case DocumentSigned:
		return "Document Signed"
	default:
		return "Document Received"
	}
}

// Document is an uploaded file bound to a user and a completed transaction.
// TransactionRef is the transaction's internal id, TransactionKey its business key.
type Document struct {
	ID                 string         `json:"id"`
	UserID             string         `json:"user_id"`
	TransactionRef     string         `json:"transaction_ref"`
	TransactionKey     string         `json:"transaction_id"`
	DocumentLink       string         `json:"document_link"`
	StorageKey         string         `json:"-"`
	DocumentType       string         `json:"document_type"`
	MimeType           string         `json:"mime_type"`
	SizeBytes          int64          `json:"size_bytes"`
	Status             DocumentStatus `json:"document_status"`
	SignedDocumentLink string         `json:"signed_document_link,omitempty"`
	SignedStorageKey   string         `json:"-"`
	UploadedAt         time.Time      `json:"uploaded_date"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

const MaxUploadBytes int64 = 10 << 20

// StoredFile is what the file storage hands back after persisting an upload.
type StoredFile struct {
	Key          string `json:"key"`
	URL          string `json:"url"`
	OriginalName string `json:"original_name"`
	SizeBytes    int64  `json:"size_bytes"`
	MimeType     string `json:"mime_type"`
}

// Validate enforces the accepted upload types and size cap.
func (f StoredFile) Validate() error {
	if strings.TrimSpace(f.URL) == "" {
		return Fail(ErrInvalidArgument, "validate stored file", "stored file link is required")
	}
	if !AllowedUploadType(f.MimeType) {
		return Fail(ErrInvalidArgument, "validate stored file", "only PDF and image files are allowed")
	}
	if f.SizeBytes <= 0 {
		return Fail(ErrInvalidArgument, "validate stored file", "file is empty")
	}
	if f.SizeBytes > MaxUploadBytes {
		return Fail(ErrInvalidArgument, "validate stored file", "file exceeds the 10 MiB limit")
	}
	return nil
}

func AllowedUploadType(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt == "application/pdf" || (strings.HasPrefix(mt, "image/") && len(mt) > len("image/"))
}

type CreateDocumentInput struct {
	UserID         string
	TransactionKey string
	DocumentType   string
	File           StoredFile
}
