package recurring

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/welth/internal/domain"
	"github.com/dvloznov/welth/internal/store"
)

type fakeStore struct {
	accounts     map[string]*domain.Account
	transactions map[string]*domain.Transaction
	failInsert   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:     make(map[string]*domain.Account),
		transactions: make(map[string]*domain.Transaction),
	}
}

func (f *fakeStore) GetAccount(ctx context.Context, id, userID string) (*domain.Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", domain.ErrNotFound, id)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) AddToBalance(ctx context.Context, id, userID string, delta decimal.Decimal) error {
	a, ok := f.accounts[id]
	if !ok {
		return fmt.Errorf("%w: account %s", domain.ErrNotFound, id)
	}
	a.Balance = a.Balance.Add(delta)
	return nil
}

func (f *fakeStore) GetTransaction(ctx context.Context, id, userID string) (*domain.Transaction, error) {
	tx, ok := f.transactions[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
	}
	cp := *tx
	return &cp, nil
}

func (f *fakeStore) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	if f.failInsert {
		return fmt.Errorf("insert refused")
	}
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
	delete(f.transactions, id)
	return nil
}

// WithTx snapshots state and restores it when fn fails, mimicking rollback.
func (f *fakeStore) WithTx(ctx context.Context, fn func(q store.Queries) error) error {
	accounts := make(map[string]*domain.Account, len(f.accounts))
	for k, v := range f.accounts {
		cp := *v
		accounts[k] = &cp
	}
	transactions := make(map[string]*domain.Transaction, len(f.transactions))
	for k, v := range f.transactions {
		cp := *v
		transactions[k] = &cp
	}

	if err := fn(f); err != nil {
		f.accounts = accounts
		f.transactions = transactions
		return err
	}
	return nil
}

func (f *fakeStore) ListAccounts(ctx context.Context, userID string) ([]*domain.Account, error) {
	return nil, nil
}

func (f *fakeStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return nil, nil
}

func (f *fakeStore) ListTransactions(ctx context.Context, userID, accountID string) ([]*domain.Transaction, error) {
	return nil, nil
}

func (f *fakeStore) ListDueRecurring(ctx context.Context, asOf time.Time, limit int) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	for _, tx := range f.transactions {
		if !tx.IsRecurring || tx.NextRecurringDate == nil {
			continue
		}
		if tx.NextRecurringDate.After(asOf) {
			continue
		}
		cp := *tx
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) Close() {}

func seedTemplate(f *fakeStore, id string, interval domain.RecurringInterval, nextDue time.Time) {
	iv := interval
	due := nextDue
	f.transactions[id] = &domain.Transaction{
		ID:                id,
		UserID:            "user-1",
		Type:              domain.TypeExpense,
		Amount:            decimal.NewFromInt(50),
		Description:       "Gym membership",
		Date:              nextDue.AddDate(0, -1, 0),
		AccountID:         "acc-1",
		IsRecurring:       true,
		RecurringInterval: &iv,
		NextRecurringDate: &due,
	}
}

func TestProcessDueMaterializesInstance(t *testing.T) {
	st := newFakeStore()
	st.accounts["acc-1"] = &domain.Account{ID: "acc-1", UserID: "user-1", Balance: decimal.NewFromInt(200)}

	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	seedTemplate(st, "tmpl-1", domain.IntervalMonthly, due)

	svc := NewService(st, zerolog.Nop())
	asOf := time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)

	created, err := svc.ProcessDue(context.Background(), asOf, 10)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}

	if got := st.accounts["acc-1"].Balance.String(); got != "150" {
		t.Errorf("balance = %s, want 150", got)
	}

	var instance *domain.Transaction
	for _, tx := range st.transactions {
		if tx.ID != "tmpl-1" {
			instance = tx
		}
	}
	if instance == nil {
		t.Fatal("no materialized instance found")
	}
	if instance.IsRecurring {
		t.Error("materialized instance must not itself be recurring")
	}
	if !instance.Date.Equal(due) {
		t.Errorf("instance date = %v, want due date %v", instance.Date, due)
	}
	if instance.Description != "Gym membership (recurring)" {
		t.Errorf("instance description = %q", instance.Description)
	}

	template := st.transactions["tmpl-1"]
	wantNext := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	if template.NextRecurringDate == nil || !template.NextRecurringDate.Equal(wantNext) {
		t.Errorf("next run = %v, want %v", template.NextRecurringDate, wantNext)
	}
	if template.LastProcessed == nil || !template.LastProcessed.Equal(asOf) {
		t.Errorf("last processed = %v, want %v", template.LastProcessed, asOf)
	}
}

func TestProcessDueSkipsNotYetDue(t *testing.T) {
	st := newFakeStore()
	st.accounts["acc-1"] = &domain.Account{ID: "acc-1", UserID: "user-1", Balance: decimal.NewFromInt(200)}
	seedTemplate(st, "tmpl-1", domain.IntervalMonthly, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))

	svc := NewService(st, zerolog.Nop())
	created, err := svc.ProcessDue(context.Background(), time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), 10)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if created != 0 {
		t.Errorf("created = %d, want 0", created)
	}
	if got := st.accounts["acc-1"].Balance.String(); got != "200" {
		t.Errorf("balance = %s, want unchanged 200", got)
	}
}

func TestProcessDueOverdueFastForwardsSchedule(t *testing.T) {
	st := newFakeStore()
	st.accounts["acc-1"] = &domain.Account{ID: "acc-1", UserID: "user-1", Balance: decimal.NewFromInt(200)}

	// Three months overdue: one instance, schedule jumps past asOf.
	seedTemplate(st, "tmpl-1", domain.IntervalMonthly, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))

	svc := NewService(st, zerolog.Nop())
	asOf := time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC)
	created, err := svc.ProcessDue(context.Background(), asOf, 10)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}

	template := st.transactions["tmpl-1"]
	wantNext := time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC)
	if template.NextRecurringDate == nil || !template.NextRecurringDate.Equal(wantNext) {
		t.Errorf("next run = %v, want %v", template.NextRecurringDate, wantNext)
	}
}

func TestProcessDueFailureRollsBackAndContinues(t *testing.T) {
	st := newFakeStore()
	st.accounts["acc-1"] = &domain.Account{ID: "acc-1", UserID: "user-1", Balance: decimal.NewFromInt(200)}
	seedTemplate(st, "tmpl-1", domain.IntervalMonthly, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	st.failInsert = true

	svc := NewService(st, zerolog.Nop())
	created, err := svc.ProcessDue(context.Background(), time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), 10)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if created != 0 {
		t.Errorf("created = %d, want 0", created)
	}
	if got := st.accounts["acc-1"].Balance.String(); got != "200" {
		t.Errorf("balance = %s, want 200 after rollback", got)
	}
	template := st.transactions["tmpl-1"]
	if !template.NextRecurringDate.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("template advanced despite failed materialization")
	}
}
