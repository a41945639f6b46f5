package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/welth/internal/api/middleware"
	"github.com/dvloznov/welth/internal/ledger"
	"github.com/dvloznov/welth/internal/store"
)

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	store  store.Store
	ledger *ledger.Service
	log    zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(st store.Store, ledgerSvc *ledger.Service, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		store:  st,
		ledger: ledgerSvc,
		log:    log,
	}
}

// ListTransactions handles GET /api/transactions, optionally filtered by
// ?account_id=.
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserIDFrom(ctx)
	accountID := r.URL.Query().Get("account_id")

	transactions, err := h.store.ListTransactions(ctx, userID, accountID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	views := make([]transactionView, 0, len(transactions))
	for _, tx := range transactions {
		views = append(views, toTransactionView(tx))
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": views,
		"count":        len(views),
	})
}

// GetTransaction handles GET /api/transactions/{id}.
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request, txID string) {
	tx, err := h.store.GetTransaction(r.Context(), txID, middleware.UserIDFrom(r.Context()))
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toTransactionView(tx))
}

// UpdateTransaction handles PUT /api/transactions/{id}. The body carries the
// full replacement; the balance is reconciled against what is currently
// persisted, never against client-supplied old values.
func (h *TransactionsHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request, txID string) {
	var req transactionInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	in, err := req.toLedgerInput()
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	tx, err := h.ledger.Update(r.Context(), middleware.UserIDFrom(r.Context()), txID, in)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, toTransactionView(tx))
}

// DeleteTransaction handles DELETE /api/transactions/{id}.
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request, txID string) {
	if err := h.ledger.Delete(r.Context(), middleware.UserIDFrom(r.Context()), txID); err != nil {
		respondError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
