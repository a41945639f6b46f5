package handlers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/welth/internal/domain"
	"github.com/dvloznov/welth/internal/ledger"
	"github.com/dvloznov/welth/internal/reconcile"
)

const dateLayout = "2006-01-02"

// transactionView is the wire shape of a transaction. Amounts travel as
// decimal strings, dates as YYYY-MM-DD.
type transactionView struct {
	ID                string  `json:"id"`
	Type              string  `json:"type"`
	Amount            string  `json:"amount"`
	Description       string  `json:"description"`
	Date              string  `json:"date"`
	AccountID         string  `json:"account_id"`
	CategoryID        string  `json:"category_id,omitempty"`
	IsRecurring       bool    `json:"is_recurring"`
	RecurringInterval *string `json:"recurring_interval,omitempty"`
	NextRecurringDate *string `json:"next_recurring_date,omitempty"`
	LastProcessed     *string `json:"last_processed,omitempty"`
}

func toTransactionView(tx *domain.Transaction) transactionView {
	v := transactionView{
		ID:          tx.ID,
		Type:        string(tx.Type),
		Amount:      tx.Amount.String(),
		Description: tx.Description,
		Date:        tx.Date.Format(dateLayout),
		AccountID:   tx.AccountID,
		CategoryID:  tx.CategoryID,
		IsRecurring: tx.IsRecurring,
	}
	if tx.RecurringInterval != nil {
		s := string(*tx.RecurringInterval)
		v.RecurringInterval = &s
	}
	if tx.NextRecurringDate != nil {
		s := tx.NextRecurringDate.Format(dateLayout)
		v.NextRecurringDate = &s
	}
	if tx.LastProcessed != nil {
		s := tx.LastProcessed.Format(dateLayout)
		v.LastProcessed = &s
	}
	return v
}

type accountView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Balance   string `json:"balance"`
	IsDefault bool   `json:"is_default"`
}

func toAccountView(a *domain.Account) accountView {
	return accountView{
		ID:        a.ID,
		Name:      a.Name,
		Balance:   a.Balance.String(),
		IsDefault: a.IsDefault,
	}
}

type categoryView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func toCategoryView(c domain.Category) categoryView {
	return categoryView{ID: c.ID, Name: c.Name, Type: string(c.Type)}
}

// formView is the wire shape of an in-progress transaction form. Unset
// fields are null so the client can distinguish "empty" from "zero".
type formView struct {
	Type              string  `json:"type"`
	Amount            *string `json:"amount"`
	Description       string  `json:"description"`
	Date              *string `json:"date"`
	AccountID         string  `json:"account_id"`
	CategoryID        string  `json:"category_id"`
	IsRecurring       bool    `json:"is_recurring"`
	RecurringInterval *string `json:"recurring_interval"`
}

type sessionView struct {
	ID                string   `json:"id"`
	State             string   `json:"state"`
	EditTransactionID string   `json:"edit_transaction_id,omitempty"`
	Advisories        []string `json:"advisories"`
	Form              formView `json:"form"`
}

func toSessionView(s *reconcile.Session) sessionView {
	form := s.Form()

	fv := formView{
		Type:        string(form.Type),
		Description: form.Description,
		AccountID:   form.AccountID,
		CategoryID:  form.CategoryID,
		IsRecurring: form.IsRecurring,
	}
	if form.Amount != nil {
		amt := form.Amount.String()
		fv.Amount = &amt
	}
	if form.Date != nil {
		d := form.Date.Format(dateLayout)
		fv.Date = &d
	}
	if form.RecurringInterval != nil {
		iv := string(*form.RecurringInterval)
		fv.RecurringInterval = &iv
	}

	return sessionView{
		ID:                s.ID,
		State:             string(s.State()),
		EditTransactionID: s.EditTransactionID,
		Advisories:        s.Advisories(),
		Form:              fv,
	}
}

// transactionInput is the request body for creating or overwriting a
// transaction directly. Amount accepts a JSON number or a decimal string.
type transactionInput struct {
	Type              string      `json:"type"`
	Amount            json.Number `json:"amount"`
	Description       string      `json:"description"`
	Date              string      `json:"date"`
	AccountID         string      `json:"account_id"`
	CategoryID        string      `json:"category_id"`
	IsRecurring       bool        `json:"is_recurring"`
	RecurringInterval string      `json:"recurring_interval"`
}

// toLedgerInput converts the wire form, rejecting malformed literals.
// Semantic validation (positive amount, known type) is the ledger's job.
func (in transactionInput) toLedgerInput() (ledger.Input, error) {
	out := ledger.Input{
		Type:        domain.TransactionType(in.Type),
		Description: in.Description,
		AccountID:   in.AccountID,
		CategoryID:  in.CategoryID,
		IsRecurring: in.IsRecurring,
	}

	if in.Amount != "" {
		amount, err := decimal.NewFromString(in.Amount.String())
		if err != nil {
			return ledger.Input{}, fmt.Errorf("%w: amount %q is not a number", domain.ErrInvalidInput, in.Amount)
		}
		out.Amount = amount
	}

	if in.Date != "" {
		date, err := time.Parse(dateLayout, in.Date)
		if err != nil {
			return ledger.Input{}, fmt.Errorf("%w: date must be YYYY-MM-DD", domain.ErrInvalidInput)
		}
		out.Date = date
	}

	if in.RecurringInterval != "" {
		iv := domain.RecurringInterval(in.RecurringInterval)
		out.RecurringInterval = &iv
	}

	return out, nil
}
