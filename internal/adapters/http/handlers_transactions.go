package httpadapter

import (
	"net/http"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
)

type createTransactionRequest struct {
	TransactionID string                     `json:"transaction_id"`
	UserID        string                     `json:"user_id"`
	UserInfo      domain.CustomerInfo        `json:"user_info"`
	Documents     []domain.DeclaredDocument  `json:"documents"`
	Pricing       domain.Pricing             `json:"pricing"`
	Status        domain.TransactionStatus   `json:"status"`
	Metadata      domain.TransactionMetadata `json:"metadata"`
}

type updateTransactionRequest struct {
	Status    *domain.TransactionStatus   `json:"status"`
	UserInfo  *domain.CustomerInfo        `json:"user_info"`
	Documents *[]domain.DeclaredDocument  `json:"documents"`
	Pricing   *domain.Pricing             `json:"pricing"`
	Metadata  *domain.TransactionMetadata `json:"metadata"`
}

func (rt *Router) createTransaction(w http.ResponseWriter, r *http.Request) {
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var req createTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := rt.svc.Transactions.Create(r.Context(), principal, domain.CreateTransactionInput{
		Key:       req.TransactionID,
		UserID:    req.UserID,
		UserInfo:  req.UserInfo,
		Documents: req.Documents,
		Pricing:   req.Pricing,
		Status:    req.Status,
		Metadata:  req.Metadata,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (rt *Router) updateTransaction(w http.ResponseWriter, r *http.Request) {
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var req updateTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := rt.svc.Transactions.Update(r.Context(), principal, pathParam(r, "transactionId"), domain.TransactionPatch{
		Status:    req.Status,
		UserInfo:  req.UserInfo,
		Documents: req.Documents,
		Pricing:   req.Pricing,
		Metadata:  req.Metadata,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (rt *Router) getTransaction(w http.ResponseWriter, r *http.Request) {
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	tx, err := rt.svc.Transactions.Get(r.Context(), principal, pathParam(r, "transactionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (rt *Router) listUserTransactions(w http.ResponseWriter, r *http.Request) {
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	txs, err := rt.svc.Transactions.ListByUser(r.Context(), principal, pathParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}
