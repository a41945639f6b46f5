// Package ledger is the account-balance bookkeeping subsystem. Its one
// invariant: after every create, update or delete, an account's balance
// equals the signed sum of its transactions. Every balance write happens
// inside a single database transaction together with the row write.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/welth/internal/domain"
	"github.com/dvloznov/welth/internal/ratelimit"
	"github.com/dvloznov/welth/internal/store"
)

// Service applies transactions to accounts.
type Service struct {
	store   store.Store
	limiter ratelimit.Limiter
	log     zerolog.Logger
}

// NewService creates a ledger service. limiter may be ratelimit.Unlimited.
func NewService(st store.Store, limiter ratelimit.Limiter, log zerolog.Logger) *Service {
	return &Service{store: st, limiter: limiter, log: log}
}

// Input carries the fields of a transaction to create or to overwrite an
// existing one with.
type Input struct {
	Type              domain.TransactionType
	Amount            decimal.Decimal
	Description       string
	Date              time.Time
	AccountID         string
	CategoryID        string
	IsRecurring       bool
	RecurringInterval *domain.RecurringInterval
}

// Delta is the signed balance contribution of a transaction: negative for
// an expense, positive for income. Amount is expected positive.
func Delta(t domain.TransactionType, amount decimal.Decimal) decimal.Decimal {
	if t == domain.TypeExpense {
		return amount.Neg()
	}
	return amount
}

// Create persists a new transaction and applies its delta to the account
// balance as one atomic unit. The rate limiter is consulted first; a denial
// performs no side effects at all.
func (s *Service) Create(ctx context.Context, userID string, in Input) (*domain.Transaction, error) {
	allowed, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrPersistence, err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: too many transactions, try again later", domain.ErrRateLimited)
	}

	if err := validate(in); err != nil {
		return nil, err
	}

	tx := &domain.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        in.Type,
		Amount:      in.Amount,
		Description: strings.TrimSpace(in.Description),
		Date:        in.Date,
		AccountID:   in.AccountID,
		CategoryID:  in.CategoryID,
		IsRecurring: in.IsRecurring,
	}
	if in.IsRecurring {
		tx.RecurringInterval = in.RecurringInterval
		next := NextRecurringDate(in.Date, *in.RecurringInterval)
		tx.NextRecurringDate = &next
	}

	err = s.store.WithTx(ctx, func(q store.Queries) error {
		if _, err := q.GetAccount(ctx, tx.AccountID, userID); err != nil {
			return err
		}
		if err := q.InsertTransaction(ctx, tx); err != nil {
			return err
		}
		return q.AddToBalance(ctx, tx.AccountID, userID, Delta(tx.Type, tx.Amount))
	})
	if err != nil {
		return nil, commitErr(err)
	}

	s.log.Info().
		Str("transaction_id", tx.ID).
		Str("account_id", tx.AccountID).
		Str("type", string(tx.Type)).
		Str("amount", tx.Amount.String()).
		Msg("Transaction created")

	return tx, nil
}

// Update overwrites a transaction and reconciles the account balance with
// the net delta. The original (type, amount) is fetched fresh inside the
// database transaction - never taken from the client - so a stale client
// cannot corrupt the ledger. Moving the transaction to a different account
// reverses the old delta on the old account and applies the new delta to
// the new one.
func (s *Service) Update(ctx context.Context, userID, txID string, in Input) (*domain.Transaction, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	var updated *domain.Transaction
	err := s.store.WithTx(ctx, func(q store.Queries) error {
		orig, err := q.GetTransaction(ctx, txID, userID)
		if err != nil {
			return err
		}

		tx := &domain.Transaction{
			ID:          orig.ID,
			UserID:      userID,
			Type:        in.Type,
			Amount:      in.Amount,
			Description: strings.TrimSpace(in.Description),
			Date:        in.Date,
			AccountID:   in.AccountID,
			CategoryID:  in.CategoryID,
			IsRecurring: in.IsRecurring,
		}
		if in.IsRecurring {
			tx.RecurringInterval = in.RecurringInterval
			next := NextRecurringDate(in.Date, *in.RecurringInterval)
			tx.NextRecurringDate = &next
		}

		oldDelta := Delta(orig.Type, orig.Amount)
		newDelta := Delta(tx.Type, tx.Amount)

		if tx.AccountID == orig.AccountID {
			netDelta := newDelta.Sub(oldDelta)
			if !netDelta.IsZero() {
				if err := q.AddToBalance(ctx, tx.AccountID, userID, netDelta); err != nil {
					return err
				}
			}
		} else {
			if err := q.AddToBalance(ctx, orig.AccountID, userID, oldDelta.Neg()); err != nil {
				return err
			}
			if _, err := q.GetAccount(ctx, tx.AccountID, userID); err != nil {
				return err
			}
			if err := q.AddToBalance(ctx, tx.AccountID, userID, newDelta); err != nil {
				return err
			}
		}

		if err := q.UpdateTransaction(ctx, tx); err != nil {
			return err
		}
		updated = tx
		return nil
	})
	if err != nil {
		return nil, commitErr(err)
	}

	s.log.Info().
		Str("transaction_id", updated.ID).
		Str("account_id", updated.AccountID).
		Msg("Transaction updated")

	return updated, nil
}

// Delete removes a transaction and reverses its delta, atomically.
func (s *Service) Delete(ctx context.Context, userID, txID string) error {
	err := s.store.WithTx(ctx, func(q store.Queries) error {
		orig, err := q.GetTransaction(ctx, txID, userID)
		if err != nil {
			return err
		}
		if err := q.AddToBalance(ctx, orig.AccountID, userID, Delta(orig.Type, orig.Amount).Neg()); err != nil {
			return err
		}
		return q.DeleteTransaction(ctx, txID, userID)
	})
	if err != nil {
		return commitErr(err)
	}

	s.log.Info().Str("transaction_id", txID).Msg("Transaction deleted")
	return nil
}

// FieldErrors maps form field names to user-facing validation messages.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	return "validation failed"
}

// Unwrap lets errors.Is classify a FieldErrors as domain.ErrValidation.
func (e FieldErrors) Unwrap() error {
	return domain.ErrValidation
}

func validate(in Input) error {
	errs := FieldErrors{}

	if !in.Type.Valid() {
		errs["type"] = "type must be INCOME or EXPENSE"
	}
	if !in.Amount.IsPositive() {
		errs["amount"] = "amount must be greater than zero"
	}
	if in.AccountID == "" {
		errs["accountId"] = "account is required"
	}
	if in.Date.IsZero() {
		errs["date"] = "date is required"
	}
	if in.IsRecurring {
		if in.RecurringInterval == nil || !in.RecurringInterval.Valid() {
			errs["recurringInterval"] = "a valid interval is required for recurring transactions"
		}
	} else if in.RecurringInterval != nil {
		errs["recurringInterval"] = "interval is only allowed on recurring transactions"
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// commitErr classifies a failed unit of work: known kinds pass through,
// anything else is a persistence failure.
func commitErr(err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
}
