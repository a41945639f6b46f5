package domain

import "github.com/shopspring/decimal"

// Account is a user's financial account. Balance is derived-but-stored:
// after every transaction create/update/delete it must equal the signed sum
// of the account's transactions. The ledger is the only writer.
type Account struct {
	ID        string
	UserID    string
	Name      string
	Balance   decimal.Decimal
	IsDefault bool // at most one default account per user
}

// Category is a type-scoped transaction category. A name is only meaningful
// together with its type: "Food" under EXPENSE is distinct from any INCOME
// category of the same name.
type Category struct {
	ID   string
	Name string
	Type TransactionType
}
