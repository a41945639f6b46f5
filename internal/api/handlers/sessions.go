package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/welth/internal/api/middleware"
	"github.com/dvloznov/welth/internal/archive"
	"github.com/dvloznov/welth/internal/domain"
	"github.com/dvloznov/welth/internal/jobs"
	"github.com/dvloznov/welth/internal/ledger"
	"github.com/dvloznov/welth/internal/receipt"
	"github.com/dvloznov/welth/internal/reconcile"
	"github.com/dvloznov/welth/internal/store"
)

// SessionsHandler handles the form-session endpoints: the add/edit
// transaction form lives server-side so receipt scans and user edits merge
// through one state machine.
type SessionsHandler struct {
	sessions  *reconcile.Store
	store     store.Store
	ledger    *ledger.Service
	publisher jobs.Publisher
	archive   *archive.Archive
	log       zerolog.Logger
}

// NewSessionsHandler creates a new form-sessions handler.
func NewSessionsHandler(sessions *reconcile.Store, st store.Store, ledgerSvc *ledger.Service, publisher jobs.Publisher, arch *archive.Archive, log zerolog.Logger) *SessionsHandler {
	return &SessionsHandler{
		sessions:  sessions,
		store:     st,
		ledger:    ledgerSvc,
		publisher: publisher,
		archive:   arch,
		log:       log,
	}
}

// CreateSession handles POST /api/form-sessions.
// With edit_transaction_id the form starts from the existing transaction's
// fields; otherwise it starts blank on the user's default account.
func (h *SessionsHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserIDFrom(ctx)

	var req struct {
		EditTransactionID string `json:"edit_transaction_id"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	var form reconcile.Form
	if req.EditTransactionID != "" {
		tx, err := h.store.GetTransaction(ctx, req.EditTransactionID, userID)
		if err != nil {
			respondError(w, h.log, err)
			return
		}
		amount := tx.Amount
		date := tx.Date
		form = reconcile.Form{
			Type:              tx.Type,
			Amount:            &amount,
			Description:       tx.Description,
			Date:              &date,
			AccountID:         tx.AccountID,
			CategoryID:        tx.CategoryID,
			IsRecurring:       tx.IsRecurring,
			RecurringInterval: tx.RecurringInterval,
		}
	} else {
		accounts, err := h.store.ListAccounts(ctx, userID)
		if err != nil {
			respondError(w, h.log, err)
			return
		}
		for _, a := range accounts {
			if a.IsDefault {
				form.AccountID = a.ID
				break
			}
		}
	}

	session := reconcile.NewSession(userID, form)
	session.EditTransactionID = req.EditTransactionID
	h.sessions.Put(session)

	h.log.Info().
		Str("session_id", session.ID).
		Bool("edit_mode", req.EditTransactionID != "").
		Msg("Form session created")

	middleware.WriteJSON(w, http.StatusCreated, toSessionView(session))
}

// GetSession handles GET /api/form-sessions/{id}.
func (h *SessionsHandler) GetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, err := h.sessions.Get(sessionID, middleware.UserIDFrom(r.Context()))
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toSessionView(session))
}

// sessionPatch carries user edits. Absent fields are left untouched.
type sessionPatch struct {
	Type              *string      `json:"type"`
	Amount            *json.Number `json:"amount"`
	Description       *string      `json:"description"`
	Date              *string      `json:"date"`
	AccountID         *string      `json:"account_id"`
	CategoryID        *string      `json:"category_id"`
	IsRecurring       *bool        `json:"is_recurring"`
	RecurringInterval *string      `json:"recurring_interval"`
}

// PatchSession handles PATCH /api/form-sessions/{id}. A type change routes
// through the clear-category rule; everything else is a plain field write.
func (h *SessionsHandler) PatchSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, err := h.sessions.Get(sessionID, middleware.UserIDFrom(r.Context()))
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	var req sessionPatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	patch, err := req.toFormPatch()
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	session.Update(patch)
	middleware.WriteJSON(w, http.StatusOK, toSessionView(session))
}

func (req sessionPatch) toFormPatch() (reconcile.FormPatch, error) {
	var patch reconcile.FormPatch

	if req.Type != nil {
		t := domain.TransactionType(*req.Type)
		if !t.Valid() {
			return patch, errInvalid("type must be INCOME or EXPENSE")
		}
		patch.Type = &t
	}
	if req.Amount != nil {
		amount, err := decimalFromNumber(*req.Amount)
		if err != nil {
			return patch, err
		}
		patch.Amount = &amount
	}
	if req.Description != nil {
		patch.Description = req.Description
	}
	if req.Date != nil {
		date, err := time.Parse(dateLayout, *req.Date)
		if err != nil {
			return patch, errInvalid("date must be YYYY-MM-DD")
		}
		patch.Date = &date
	}
	if req.AccountID != nil {
		patch.AccountID = req.AccountID
	}
	if req.CategoryID != nil {
		patch.CategoryID = req.CategoryID
	}
	if req.IsRecurring != nil {
		patch.IsRecurring = req.IsRecurring
	}
	if req.RecurringInterval != nil {
		iv := domain.RecurringInterval(*req.RecurringInterval)
		if !iv.Valid() {
			return patch, errInvalid("recurring_interval must be DAILY, WEEKLY, MONTHLY or YEARLY")
		}
		patch.RecurringInterval = &iv
	}

	return patch, nil
}

// Scan handles POST /api/form-sessions/{id}/scan. The image is validated and
// archived synchronously; extraction runs on the job queue and lands on the
// session later. A second scan while one is in flight is rejected, not
// queued.
func (h *SessionsHandler) Scan(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx := r.Context()
	userID := middleware.UserIDFrom(ctx)

	session, err := h.sessions.Get(sessionID, userID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, receipt.MaxImageBytes+1<<20)
	if err := r.ParseMultipartForm(receipt.MaxImageBytes + 1<<20); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart body")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read image")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if err := receipt.ValidateImage(image, mimeType); err != nil {
		respondError(w, h.log, err)
		return
	}

	if !session.BeginScan() {
		middleware.WriteError(w, http.StatusConflict, "a scan is already in progress for this form")
		return
	}

	// Best effort: a failed archive write never blocks the scan itself.
	gcsURI, err := h.archive.Put(ctx, image, mimeType, header.Filename)
	if err != nil {
		h.log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to archive receipt image")
		gcsURI = ""
	}

	job := &jobs.ScanReceiptJob{
		SessionID:   sessionID,
		UserID:      userID,
		Image:       image,
		MimeType:    mimeType,
		ImageGCSURI: gcsURI,
	}

	if err := h.publisher.PublishScanReceipt(ctx, job); err != nil {
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to enqueue scan job")
		session.FailScan()
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue scan")
		return
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("session_id", sessionID).
		Msg("Scan job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":     job.JobID,
		"session_id": sessionID,
		"state":      string(reconcile.StateScanning),
	})
}

// Submit handles POST /api/form-sessions/{id}/submit. The form's fields are
// committed through the ledger; on success the session is gone and any late
// scan result is discarded.
func (h *SessionsHandler) Submit(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx := r.Context()
	userID := middleware.UserIDFrom(ctx)

	session, err := h.sessions.Get(sessionID, userID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	form := session.Form()
	in := ledger.Input{
		Type:              form.Type,
		Description:       form.Description,
		AccountID:         form.AccountID,
		CategoryID:        form.CategoryID,
		IsRecurring:       form.IsRecurring,
		RecurringInterval: form.RecurringInterval,
	}
	if form.Amount != nil {
		in.Amount = *form.Amount
	}
	if form.Date != nil {
		in.Date = *form.Date
	}

	var tx *domain.Transaction
	status := http.StatusCreated
	if session.EditTransactionID != "" {
		tx, err = h.ledger.Update(ctx, userID, session.EditTransactionID, in)
		status = http.StatusOK
	} else {
		tx, err = h.ledger.Create(ctx, userID, in)
	}
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	h.sessions.Remove(sessionID)
	middleware.WriteJSON(w, status, toTransactionView(tx))
}

// DeleteSession handles DELETE /api/form-sessions/{id}: the user abandoned
// the form. Nothing is persisted; an in-flight scan result will find the
// session closed.
func (h *SessionsHandler) DeleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if _, err := h.sessions.Get(sessionID, middleware.UserIDFrom(r.Context())); err != nil {
		respondError(w, h.log, err)
		return
	}
	h.sessions.Remove(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

func errInvalid(msg string) error {
	return &invalidInputError{msg: msg}
}

type invalidInputError struct {
	msg string
}

func (e *invalidInputError) Error() string { return e.msg }

func (e *invalidInputError) Unwrap() error { return domain.ErrInvalidInput }

func decimalFromNumber(n json.Number) (d decimal.Decimal, err error) {
	d, err = decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Decimal{}, errInvalid("amount must be a number")
	}
	return d, nil
}
