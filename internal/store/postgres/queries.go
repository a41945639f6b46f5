package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/welth/internal/domain"
)

// queries implements store.Queries over either the pool or a transaction.
type queries struct {
	db dbtx
}

// Balances are stored as NUMERIC and moved across the wire as text so no
// float conversion ever touches money.

func (q *queries) GetAccount(ctx context.Context, id, userID string) (*domain.Account, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, user_id, name, balance::text, is_default
		FROM accounts
		WHERE id = $1 AND user_id = $2
	`, id, userID)

	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: account %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return acc, nil
}

func (q *queries) AddToBalance(ctx context.Context, id, userID string, delta decimal.Decimal) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE accounts
		SET balance = balance + $3::numeric
		WHERE id = $1 AND user_id = $2
	`, id, userID, delta.String())
	if err != nil {
		return fmt.Errorf("AddToBalance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s", domain.ErrNotFound, id)
	}
	return nil
}

func (q *queries) GetTransaction(ctx context.Context, id, userID string) (*domain.Transaction, error) {
	row := q.db.QueryRow(ctx, transactionColumns+`
		WHERE id = $1 AND user_id = $2
	`, id, userID)

	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	return tx, nil
}

func (q *queries) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO transactions (
			id, user_id, type, amount, description, date,
			account_id, category_id,
			is_recurring, recurring_interval, next_recurring_date, last_processed
		)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		tx.ID, tx.UserID, string(tx.Type), tx.Amount.String(), tx.Description, tx.Date,
		tx.AccountID, nullIfEmpty(tx.CategoryID),
		tx.IsRecurring, intervalString(tx.RecurringInterval), tx.NextRecurringDate, tx.LastProcessed,
	)
	if err != nil {
		return fmt.Errorf("InsertTransaction: %w", err)
	}
	return nil
}

func (q *queries) UpdateTransaction(ctx context.Context, tx *domain.Transaction) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE transactions
		SET type = $3,
		    amount = $4::numeric,
		    description = $5,
		    date = $6,
		    account_id = $7,
		    category_id = $8,
		    is_recurring = $9,
		    recurring_interval = $10,
		    next_recurring_date = $11,
		    last_processed = $12
		WHERE id = $1 AND user_id = $2
	`,
		tx.ID, tx.UserID, string(tx.Type), tx.Amount.String(), tx.Description, tx.Date,
		tx.AccountID, nullIfEmpty(tx.CategoryID),
		tx.IsRecurring, intervalString(tx.RecurringInterval), tx.NextRecurringDate, tx.LastProcessed,
	)
	if err != nil {
		return fmt.Errorf("UpdateTransaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: transaction %s", domain.ErrNotFound, tx.ID)
	}
	return nil
}

func (q *queries) DeleteTransaction(ctx context.Context, id, userID string) error {
	tag, err := q.db.Exec(ctx, `
		DELETE FROM transactions WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("DeleteTransaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
	}
	return nil
}

func (q *queries) ListAccounts(ctx context.Context, userID string) ([]*domain.Account, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, user_id, name, balance::text, is_default
		FROM accounts
		WHERE user_id = $1
		ORDER BY is_default DESC, name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ListAccounts: %w", err)
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (q *queries) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, name, type FROM categories ORDER BY type, name
	`)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		var typ string
		if err := rows.Scan(&c.ID, &c.Name, &typ); err != nil {
			return nil, fmt.Errorf("ListCategories: %w", err)
		}
		c.Type = domain.TransactionType(typ)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *queries) ListTransactions(ctx context.Context, userID, accountID string) ([]*domain.Transaction, error) {
	sql := transactionColumns + ` WHERE user_id = $1`
	args := []any{userID}
	if accountID != "" {
		sql += ` AND account_id = $2`
		args = append(args, accountID)
	}
	sql += ` ORDER BY date DESC, id`

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func (q *queries) ListDueRecurring(ctx context.Context, asOf time.Time, limit int) ([]*domain.Transaction, error) {
	rows, err := q.db.Query(ctx, transactionColumns+`
		WHERE is_recurring = TRUE AND next_recurring_date <= $1
		ORDER BY next_recurring_date
		LIMIT $2
	`, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("ListDueRecurring: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

const transactionColumns = `
	SELECT id, user_id, type, amount::text, description, date,
	       account_id, COALESCE(category_id, ''),
	       is_recurring, recurring_interval, next_recurring_date, last_processed
	FROM transactions
`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var acc domain.Account
	var balance string
	if err := row.Scan(&acc.ID, &acc.UserID, &acc.Name, &balance, &acc.IsDefault); err != nil {
		return nil, err
	}
	b, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	acc.Balance = b
	return &acc, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	var typ, amount string
	var interval *string
	if err := row.Scan(
		&tx.ID, &tx.UserID, &typ, &amount, &tx.Description, &tx.Date,
		&tx.AccountID, &tx.CategoryID,
		&tx.IsRecurring, &interval, &tx.NextRecurringDate, &tx.LastProcessed,
	); err != nil {
		return nil, err
	}
	tx.Type = domain.TransactionType(typ)
	a, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	tx.Amount = a
	if interval != nil {
		i := domain.RecurringInterval(*interval)
		tx.RecurringInterval = &i
	}
	return &tx, nil
}

func collectTransactions(rows pgx.Rows) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func intervalString(i *domain.RecurringInterval) *string {
	if i == nil {
		return nil
	}
	s := string(*i)
	return &s
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
