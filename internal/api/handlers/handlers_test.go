package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/welth/internal/api/middleware"
	"github.com/dvloznov/welth/internal/archive"
	"github.com/dvloznov/welth/internal/domain"
	"github.com/dvloznov/welth/internal/jobs"
	"github.com/dvloznov/welth/internal/ledger"
	"github.com/dvloznov/welth/internal/ratelimit"
	"github.com/dvloznov/welth/internal/reconcile"
	"github.com/dvloznov/welth/internal/store"
)

// fakeStore is an in-memory store.Store for handler tests.
type fakeStore struct {
	accounts     map[string]*domain.Account
	transactions map[string]*domain.Transaction
	categories   []domain.Category
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:     make(map[string]*domain.Account),
		transactions: make(map[string]*domain.Transaction),
	}
}

func (f *fakeStore) GetAccount(ctx context.Context, id, userID string) (*domain.Account, error) {
	a, ok := f.accounts[id]
	if !ok || a.UserID != userID {
		return nil, fmt.Errorf("%w: account %s", domain.ErrNotFound, id)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) AddToBalance(ctx context.Context, id, userID string, delta decimal.Decimal) error {
	a, ok := f.accounts[id]
	if !ok || a.UserID != userID {
		return fmt.Errorf("%w: account %s", domain.ErrNotFound, id)
	}
	a.Balance = a.Balance.Add(delta)
	return nil
}

func (f *fakeStore) GetTransaction(ctx context.Context, id, userID string) (*domain.Transaction, error) {
	tx, ok := f.transactions[id]
	if !ok || tx.UserID != userID {
		return nil, fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
	}
	cp := *tx
	return &cp, nil
}

func (f *fakeStore) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	cp := *tx
	f.transactions[tx.ID] = &cp
	return nil
}

func (f *fakeStore) UpdateTransaction(ctx context.Context, tx *domain.Transaction) error {
	if _, ok := f.transactions[tx.ID]; !ok {
		return fmt.Errorf("%w: transaction %s", domain.ErrNotFound, tx.ID)
	}
	cp := *tx
	f.transactions[tx.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteTransaction(ctx context.Context, id, userID string) error {
	tx, ok := f.transactions[id]
	if !ok || tx.UserID != userID {
		return fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
	}
	delete(f.transactions, id)
	return nil
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(q store.Queries) error) error {
	return fn(f)
}

func (f *fakeStore) ListAccounts(ctx context.Context, userID string) ([]*domain.Account, error) {
	var out []*domain.Account
	for _, a := range f.accounts {
		if a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return f.categories, nil
}

func (f *fakeStore) ListTransactions(ctx context.Context, userID, accountID string) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	for _, tx := range f.transactions {
		if tx.UserID != userID {
			continue
		}
		if accountID != "" && tx.AccountID != accountID {
			continue
		}
		cp := *tx
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) ListDueRecurring(ctx context.Context, asOf time.Time, limit int) ([]*domain.Transaction, error) {
	return nil, nil
}

func (f *fakeStore) Close() {}

// fakePublisher records published jobs without running them.
type fakePublisher struct {
	published []*jobs.ScanReceiptJob
}

func (f *fakePublisher) PublishScanReceipt(ctx context.Context, job *jobs.ScanReceiptJob) error {
	if job.JobID == "" {
		job.JobID = fmt.Sprintf("job-%d", len(f.published)+1)
	}
	f.published = append(f.published, job)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type testEnv struct {
	store     *fakeStore
	sessions  *reconcile.Store
	publisher *fakePublisher
	handler   *SessionsHandler
}

func newTestEnv() *testEnv {
	st := newFakeStore()
	st.accounts["acc-1"] = &domain.Account{
		ID: "acc-1", UserID: "user-1", Name: "Main", Balance: decimal.NewFromInt(500), IsDefault: true,
	}
	st.categories = []domain.Category{
		{ID: "groceries-expense", Name: "Groceries", Type: domain.TypeExpense},
		{ID: "salary-income", Name: "Salary", Type: domain.TypeIncome},
	}

	sessions := reconcile.NewStore()
	publisher := &fakePublisher{}
	ledgerSvc := ledger.NewService(st, ratelimit.Unlimited{}, zerolog.Nop())
	h := NewSessionsHandler(sessions, st, ledgerSvc, publisher, archive.New(""), zerolog.Nop())

	return &testEnv{store: st, sessions: sessions, publisher: publisher, handler: h}
}

// do routes the request through Auth so the handler sees the user identity.
func do(t *testing.T, userID string, fn http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	middleware.Auth(fn).ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, env *testEnv, body string) sessionView {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/form-sessions", strings.NewReader(body))
	rec := do(t, "user-1", env.handler.CreateSession, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: status %d, body %s", rec.Code, rec.Body.String())
	}
	var view sessionView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decoding session view: %v", err)
	}
	return view
}

func TestCreateSessionUsesDefaultAccount(t *testing.T) {
	env := newTestEnv()
	view := createSession(t, env, "")

	if view.Form.AccountID != "acc-1" {
		t.Errorf("account_id = %q, want default acc-1", view.Form.AccountID)
	}
	if view.State != string(reconcile.StateIdle) {
		t.Errorf("state = %q, want IDLE", view.State)
	}
}

func TestPatchAndSubmitCreatesTransaction(t *testing.T) {
	env := newTestEnv()
	view := createSession(t, env, "")

	patchBody := `{"type":"EXPENSE","amount":"25.00","description":"Lunch","date":"2025-03-10","category_id":"groceries-expense"}`
	req := httptest.NewRequest(http.MethodPatch, "/api/form-sessions/"+view.ID, strings.NewReader(patchBody))
	rec := do(t, "user-1", func(w http.ResponseWriter, r *http.Request) {
		env.handler.PatchSession(w, r, view.ID)
	}, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: status %d, body %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/form-sessions/"+view.ID+"/submit", nil)
	rec = do(t, "user-1", func(w http.ResponseWriter, r *http.Request) {
		env.handler.Submit(w, r, view.ID)
	}, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: status %d, body %s", rec.Code, rec.Body.String())
	}

	var tx transactionView
	if err := json.Unmarshal(rec.Body.Bytes(), &tx); err != nil {
		t.Fatalf("decoding transaction: %v", err)
	}
	if tx.Amount != "25" {
		t.Errorf("amount = %q, want 25", tx.Amount)
	}

	if got := env.store.accounts["acc-1"].Balance.String(); got != "475" {
		t.Errorf("balance after expense = %s, want 475", got)
	}
	if _, err := env.sessions.Get(view.ID, "user-1"); err == nil {
		t.Error("session still present after submit")
	}
}

func TestSubmitEmptyFormIsUnprocessable(t *testing.T) {
	env := newTestEnv()
	view := createSession(t, env, "")

	req := httptest.NewRequest(http.MethodPost, "/api/form-sessions/"+view.ID+"/submit", nil)
	rec := do(t, "user-1", func(w http.ResponseWriter, r *http.Request) {
		env.handler.Submit(w, r, view.ID)
	}, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("submit empty form: status %d, want 422", rec.Code)
	}

	var resp struct {
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	for _, field := range []string{"type", "amount", "date"} {
		if _, ok := resp.Fields[field]; !ok {
			t.Errorf("missing field error for %q: %v", field, resp.Fields)
		}
	}
	if _, err := env.sessions.Get(view.ID, "user-1"); err != nil {
		t.Error("session was removed despite failed submit")
	}
}

func multipartImage(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("creating multipart part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("writing multipart part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestScanEnqueuesJobAndRejectsSecond(t *testing.T) {
	env := newTestEnv()
	view := createSession(t, env, "")

	scan := func() *httptest.ResponseRecorder {
		body, contentType := multipartImage(t, "image", "receipt.jpg", "image/jpeg", []byte("fake-jpeg"))
		req := httptest.NewRequest(http.MethodPost, "/api/form-sessions/"+view.ID+"/scan", body)
		req.Header.Set("Content-Type", contentType)
		return do(t, "user-1", func(w http.ResponseWriter, r *http.Request) {
			env.handler.Scan(w, r, view.ID)
		}, req)
	}

	rec := scan()
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first scan: status %d, body %s", rec.Code, rec.Body.String())
	}
	if len(env.publisher.published) != 1 {
		t.Fatalf("published %d jobs, want 1", len(env.publisher.published))
	}
	if env.publisher.published[0].SessionID != view.ID {
		t.Errorf("job session = %q, want %q", env.publisher.published[0].SessionID, view.ID)
	}

	rec = scan()
	if rec.Code != http.StatusConflict {
		t.Fatalf("second scan: status %d, want 409", rec.Code)
	}
	if len(env.publisher.published) != 1 {
		t.Errorf("second scan still published a job")
	}
}

func TestScanRejectsNonImageUpload(t *testing.T) {
	env := newTestEnv()
	view := createSession(t, env, "")

	body, contentType := multipartImage(t, "image", "doc.pdf", "application/pdf", []byte("%PDF-"))
	req := httptest.NewRequest(http.MethodPost, "/api/form-sessions/"+view.ID+"/scan", body)
	req.Header.Set("Content-Type", contentType)
	rec := do(t, "user-1", func(w http.ResponseWriter, r *http.Request) {
		env.handler.Scan(w, r, view.ID)
	}, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-image scan: status %d, want 400", rec.Code)
	}

	session, err := env.sessions.Get(view.ID, "user-1")
	if err != nil {
		t.Fatalf("session gone: %v", err)
	}
	if session.State() != reconcile.StateIdle {
		t.Errorf("state = %q, want IDLE after rejected upload", session.State())
	}
}

func TestSessionScopedToOwner(t *testing.T) {
	env := newTestEnv()
	view := createSession(t, env, "")

	req := httptest.NewRequest(http.MethodGet, "/api/form-sessions/"+view.ID, nil)
	rec := do(t, "user-2", func(w http.ResponseWriter, r *http.Request) {
		env.handler.GetSession(w, r, view.ID)
	}, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign user read: status %d, want 404", rec.Code)
	}
}

func TestMissingIdentityIsUnauthorized(t *testing.T) {
	env := newTestEnv()
	req := httptest.NewRequest(http.MethodPost, "/api/form-sessions", nil)
	rec := do(t, "", env.handler.CreateSession, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestEditSessionSubmitReconcilesBalance(t *testing.T) {
	env := newTestEnv()
	env.store.transactions["tx-1"] = &domain.Transaction{
		ID: "tx-1", UserID: "user-1", Type: domain.TypeExpense,
		Amount: decimal.NewFromInt(100), Description: "Old",
		Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), AccountID: "acc-1",
	}

	view := createSession(t, env, `{"edit_transaction_id":"tx-1"}`)
	if view.Form.Amount == nil || *view.Form.Amount != "100" {
		t.Fatalf("edit form amount = %v, want 100", view.Form.Amount)
	}

	patchBody := `{"type":"INCOME","amount":"30"}`
	req := httptest.NewRequest(http.MethodPatch, "/api/form-sessions/"+view.ID, strings.NewReader(patchBody))
	rec := do(t, "user-1", func(w http.ResponseWriter, r *http.Request) {
		env.handler.PatchSession(w, r, view.ID)
	}, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/form-sessions/"+view.ID+"/submit", nil)
	rec = do(t, "user-1", func(w http.ResponseWriter, r *http.Request) {
		env.handler.Submit(w, r, view.ID)
	}, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit edit: status %d, body %s", rec.Code, rec.Body.String())
	}

	// Old delta -100 reversed, new delta +30 applied: 500 + 100 + 30.
	if got := env.store.accounts["acc-1"].Balance.String(); got != "630" {
		t.Errorf("balance = %s, want 630", got)
	}
}
