// Package recurring materializes due recurring transactions. Each due
// template spawns one concrete transaction instance and is then advanced to
// its next run date, all within a single database transaction.
package recurring

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/welth/internal/domain"
	"github.com/dvloznov/welth/internal/ledger"
	"github.com/dvloznov/welth/internal/store"
)

// Service processes due recurring transactions in batches.
type Service struct {
	store store.Store
	log   zerolog.Logger
}

// NewService creates a recurring-transaction processor.
func NewService(st store.Store, log zerolog.Logger) *Service {
	return &Service{store: st, log: log.With().Str("component", "recurring").Logger()}
}

// ProcessDue materializes every recurring transaction due at or before asOf,
// up to limit templates per call. A failure on one template is logged and
// skipped; the rest of the batch still runs. Returns the number of instances
// created.
func (s *Service) ProcessDue(ctx context.Context, asOf time.Time, limit int) (int, error) {
	due, err := s.store.ListDueRecurring(ctx, asOf, limit)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, template := range due {
		if err := s.materialize(ctx, template, asOf); err != nil {
			s.log.Error().Err(err).
				Str("transaction_id", template.ID).
				Msg("Failed to materialize recurring transaction")
			continue
		}
		created++
	}

	if created > 0 {
		s.log.Info().Int("created", created).Int("due", len(due)).Msg("Recurring transactions processed")
	}
	return created, nil
}

// materialize creates one concrete instance dated at the template's due date
// and advances the template past asOf. Instance insert, balance delta and
// template advance commit or roll back together, so a crash can never count
// an occurrence twice.
func (s *Service) materialize(ctx context.Context, template *domain.Transaction, asOf time.Time) error {
	if template.RecurringInterval == nil || template.NextRecurringDate == nil {
		return nil
	}

	dueDate := *template.NextRecurringDate
	instance := &domain.Transaction{
		ID:          uuid.NewString(),
		UserID:      template.UserID,
		Type:        template.Type,
		Amount:      template.Amount,
		Description: recurringDescription(template.Description),
		Date:        dueDate,
		AccountID:   template.AccountID,
		CategoryID:  template.CategoryID,
	}

	// Catch up a template that was overdue for several periods; it still
	// yields a single instance, the schedule just fast-forwards past asOf.
	next := ledger.NextRecurringDate(dueDate, *template.RecurringInterval)
	for !next.After(asOf) {
		next = ledger.NextRecurringDate(next, *template.RecurringInterval)
	}

	updated := *template
	updated.NextRecurringDate = &next
	updated.LastProcessed = &asOf

	return s.store.WithTx(ctx, func(q store.Queries) error {
		if err := q.InsertTransaction(ctx, instance); err != nil {
			return err
		}
		if err := q.AddToBalance(ctx, instance.AccountID, instance.UserID, ledger.Delta(instance.Type, instance.Amount)); err != nil {
			return err
		}
		return q.UpdateTransaction(ctx, &updated)
	})
}

func recurringDescription(desc string) string {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return "Recurring transaction"
	}
	return desc + " (recurring)"
}
