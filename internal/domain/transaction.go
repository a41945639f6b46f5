package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a transaction.
type TransactionType string

const (
	TypeIncome  TransactionType = "INCOME"
	TypeExpense TransactionType = "EXPENSE"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	return t == TypeIncome || t == TypeExpense
}

// RecurringInterval is the cadence of a recurring transaction.
type RecurringInterval string

const (
	IntervalDaily   RecurringInterval = "DAILY"
	IntervalWeekly  RecurringInterval = "WEEKLY"
	IntervalMonthly RecurringInterval = "MONTHLY"
	IntervalYearly  RecurringInterval = "YEARLY"
)

// Valid reports whether i is one of the known intervals.
func (i RecurringInterval) Valid() bool {
	switch i {
	case IntervalDaily, IntervalWeekly, IntervalMonthly, IntervalYearly:
		return true
	}
	return false
}

// Transaction is a persisted income or expense entry.
// Amount is always positive; the type carries the sign.
// RecurringInterval is set iff IsRecurring is true, and NextRecurringDate
// is set iff both are, strictly after Date.
type Transaction struct {
	ID          string
	UserID      string
	Type        TransactionType
	Amount      decimal.Decimal
	Description string
	Date        time.Time
	AccountID   string
	CategoryID  string

	IsRecurring       bool
	RecurringInterval *RecurringInterval
	NextRecurringDate *time.Time
	LastProcessed     *time.Time
}

// ReceiptDraft holds candidate transaction fields extracted from a receipt
// image. It is ephemeral: produced once per successful scan, consumed exactly
// once by the form reconciler, then discarded. Absent fields are nil/empty.
type ReceiptDraft struct {
	Amount       *decimal.Decimal // positive, or nil when unusable
	Date         *time.Time       // calendar date, or nil
	Description  string           // "" when absent
	CategoryName string           // free-text suggestion, "" when absent
}

// Empty reports whether the draft carries nothing worth applying.
func (d *ReceiptDraft) Empty() bool {
	return d == nil || (d.Amount == nil && d.Date == nil && d.Description == "" && d.CategoryName == "")
}
