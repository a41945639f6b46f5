// Package store defines the persistence interfaces the services depend on.
// The concrete implementation lives in store/postgres; tests substitute
// hand-written fakes.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/welth/internal/domain"
)

// Queries is the set of operations available both standalone and inside a
// unit of work. The ledger only ever touches balances through these, inside
// WithTx.
type Queries interface {
	// GetAccount fetches an account scoped to its owner.
	GetAccount(ctx context.Context, id, userID string) (*domain.Account, error)

	// AddToBalance atomically increments an account's balance by delta.
	AddToBalance(ctx context.Context, id, userID string, delta decimal.Decimal) error

	// GetTransaction fetches a transaction scoped to its owner.
	GetTransaction(ctx context.Context, id, userID string) (*domain.Transaction, error)

	// InsertTransaction persists a new transaction row.
	InsertTransaction(ctx context.Context, tx *domain.Transaction) error

	// UpdateTransaction overwrites an existing transaction row.
	UpdateTransaction(ctx context.Context, tx *domain.Transaction) error

	// DeleteTransaction removes a transaction scoped to its owner.
	DeleteTransaction(ctx context.Context, id, userID string) error
}

// Store is the full persistence surface.
type Store interface {
	Queries

	// WithTx runs fn inside a single database transaction: every operation
	// on the passed Queries commits or rolls back as one atomic unit.
	WithTx(ctx context.Context, fn func(q Queries) error) error

	// ListAccounts returns all accounts owned by the user.
	ListAccounts(ctx context.Context, userID string) ([]*domain.Account, error)

	// ListCategories returns the full type-scoped category taxonomy.
	ListCategories(ctx context.Context) ([]domain.Category, error)

	// ListTransactions returns the user's transactions, optionally filtered
	// by account, newest first.
	ListTransactions(ctx context.Context, userID, accountID string) ([]*domain.Transaction, error)

	// ListDueRecurring returns recurring transactions whose next run date is
	// at or before asOf.
	ListDueRecurring(ctx context.Context, asOf time.Time, limit int) ([]*domain.Transaction, error)

	// Close releases the underlying connections.
	Close()
}
