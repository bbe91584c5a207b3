package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
	"github.com/kirillkom/deco-docflow/internal/core/usecase"
)

const (
	multipartMemory  = 8 << 20
	multipartSlack   = 1 << 20
	singleFileField  = "file"
	manyFilesField   = "files"
	defaultMaxFiles  = 10
	defaultFileLimit = domain.MaxUploadBytes
)

type uploadForm struct {
	userID         string
	transactionKey string
	documentType   string
	files          []*multipart.FileHeader
}

func (rt *Router) maxFileBytes() int64 {
	if rt.cfg.UploadMaxBytes > 0 {
		return rt.cfg.UploadMaxBytes
	}
	return defaultFileLimit
}

func (rt *Router) maxFiles() int {
	if rt.cfg.UploadMaxFiles > 0 {
		return rt.cfg.UploadMaxFiles
	}
	return defaultMaxFiles
}

// parseUpload reads a multipart upload bounded by the per-file size cap
// times the number of files the field may carry.
func (rt *Router) parseUpload(w http.ResponseWriter, r *http.Request, field string, maxFiles int) (uploadForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxFileBytes()*int64(maxFiles)+multipartSlack)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return uploadForm{}, domain.Fail(domain.ErrInvalidArgument, "parse upload", "upload exceeds the size limit")
		}
		return uploadForm{}, domain.Fail(domain.ErrInvalidArgument, "parse upload", "invalid multipart form")
	}
	form := uploadForm{
		userID:         strings.TrimSpace(r.FormValue("user_id")),
		transactionKey: strings.TrimSpace(r.FormValue("transaction_id")),
		documentType:   strings.TrimSpace(r.FormValue("document_type")),
		files:          r.MultipartForm.File[field],
	}
	switch {
	case len(form.files) == 0 && field == manyFilesField:
		return form, domain.Fail(domain.ErrInvalidArgument, "parse upload", "Files are required")
	case len(form.files) == 0:
		return form, domain.Fail(domain.ErrInvalidArgument, "parse upload", "File is required")
	case len(form.files) > maxFiles:
		return form, domain.Fail(domain.ErrInvalidArgument, "parse upload", fmt.Sprintf("at most %d files per upload", maxFiles))
	}
	return form, nil
}

// storeFiles persists every part. On failure the parts already stored are
// removed before the error is returned.
func (rt *Router) storeFiles(ctx context.Context, headers []*multipart.FileHeader) ([]domain.StoredFile, error) {
	stored := make([]domain.StoredFile, 0, len(headers))
	for _, fh := range headers {
		file, err := rt.storeFile(ctx, fh)
		if err != nil {
			rt.discardFiles(ctx, stored)
			return nil, err
		}
		stored = append(stored, file)
	}
	return stored, nil
}

func (rt *Router) storeFile(ctx context.Context, fh *multipart.FileHeader) (domain.StoredFile, error) {
	contentType := fh.Header.Get("Content-Type")
	if !domain.AllowedUploadType(contentType) {
		return domain.StoredFile{}, domain.Fail(domain.ErrInvalidArgument, "store upload", "only PDF and image files are allowed")
	}
	if fh.Size > rt.maxFileBytes() {
		return domain.StoredFile{}, domain.Fail(domain.ErrInvalidArgument, "store upload", "file exceeds the size limit")
	}
	src, err := fh.Open()
	if err != nil {
		return domain.StoredFile{}, fmt.Errorf("open upload part: %w", err)
	}
	defer src.Close()

	file, err := rt.svc.Storage.Save(ctx, usecase.NewStorageKey(fh.Filename, rt.now()), contentType, src)
	if err != nil {
		return domain.StoredFile{}, err
	}
	file.OriginalName = fh.Filename
	if file.MimeType == "" {
		file.MimeType = contentType
	}
	return file, nil
}

func (rt *Router) discardFiles(ctx context.Context, files []domain.StoredFile) {
	for _, f := range files {
		rt.discardKey(ctx, f.Key)
	}
}

func (rt *Router) discardKey(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := rt.svc.Storage.Delete(ctx, key); err != nil {
		slog.Warn("storage_cleanup_failed", "key", key, "error", err)
	}
}

// uploadOwner resolves who the upload belongs to and checks the caller may
// attach documents to the transaction.
func (rt *Router) uploadOwner(ctx context.Context, principal domain.Principal, form uploadForm) (string, error) {
	if _, err := rt.svc.Transactions.Get(ctx, principal, form.transactionKey); err != nil {
		return "", err
	}
	if principal.IsAdmin() && form.userID != "" {
		return form.userID, nil
	}
	return principal.UserID, nil
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	form, err := rt.parseUpload(w, r, singleFileField, 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID, err := rt.uploadOwner(r.Context(), principal, form)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stored, err := rt.storeFiles(r.Context(), form.files[:1])
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := rt.svc.Documents.Create(r.Context(), domain.CreateDocumentInput{
		UserID:         userID,
		TransactionKey: form.transactionKey,
		DocumentType:   form.documentType,
		File:           stored[0],
	})
	if err != nil {
		rt.discardFiles(r.Context(), stored)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (rt *Router) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	form, err := rt.parseUpload(w, r, manyFilesField, rt.maxFiles())
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID, err := rt.uploadOwner(r.Context(), principal, form)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stored, err := rt.storeFiles(r.Context(), form.files)
	if err != nil {
		writeError(w, r, err)
		return
	}
	docs, err := rt.svc.Documents.CreateBatch(r.Context(), userID, form.transactionKey, form.documentType, stored)
	if err != nil {
		rt.discardFiles(r.Context(), stored)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, docs)
}

// accessibleDocument loads a document and checks the caller owns it or is
// an admin.
func (rt *Router) accessibleDocument(ctx context.Context, principal domain.Principal, id string) (*domain.Document, error) {
	doc, err := rt.svc.Documents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !principal.CanAccess(doc.UserID) {
		return nil, domain.Fail(domain.ErrPermissionDenied, "document access", "cannot access another user's document")
	}
	return doc, nil
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	doc, err := rt.accessibleDocument(r.Context(), principal, pathParam(r, "documentId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) listUserDocuments(w http.ResponseWriter, r *http.Request) {
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	userID := pathParam(r, "userId")
	if !principal.CanAccess(userID) {
		writeError(w, r, domain.Fail(domain.ErrPermissionDenied, "list documents", "cannot list another user's documents"))
		return
	}
	docs, err := rt.svc.Documents.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilDocuments(docs))
}

func (rt *Router) listTransactionDocuments(w http.ResponseWriter, r *http.Request) {
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	key := pathParam(r, "transactionId")
	if _, err := rt.svc.Transactions.Get(r.Context(), principal, key); err != nil {
		writeError(w, r, err)
		return
	}
	docs, err := rt.svc.Documents.ListByTransaction(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilDocuments(docs))
}

func (rt *Router) updateDocumentStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentStatus string `json:"document_status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := rt.svc.Documents.UpdateStatus(r.Context(), pathParam(r, "documentId"), req.DocumentStatus)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) attachSignedFile(w http.ResponseWriter, r *http.Request) {
	form, err := rt.parseUpload(w, r, singleFileField, 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	previous, err := rt.svc.Documents.Get(r.Context(), pathParam(r, "documentId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	stored, err := rt.storeFiles(r.Context(), form.files[:1])
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := rt.svc.Documents.AttachSignedFile(r.Context(), previous.ID, stored[0])
	if err != nil {
		rt.discardFiles(r.Context(), stored)
		writeError(w, r, err)
		return
	}
	// The replaced signed copy is no longer referenced.
	if previous.SignedStorageKey != stored[0].Key {
		rt.discardKey(r.Context(), previous.SignedStorageKey)
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	doc, err := rt.accessibleDocument(r.Context(), principal, pathParam(r, "documentId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	deleted, err := rt.svc.Documents.Delete(r.Context(), doc.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.discardKey(r.Context(), deleted.StorageKey)
	rt.discardKey(r.Context(), deleted.SignedStorageKey)
	writeJSON(w, http.StatusOK, deleted)
}

func nonNilDocuments(docs []domain.Document) []domain.Document {
	if docs == nil {
		return []domain.Document{}
	}
	return docs
}
