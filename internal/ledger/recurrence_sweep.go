package ledger

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/ledger-engine/internal/calendar"
	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/logger"
	"github.com/dvloznov/ledger-engine/internal/recurrence"
)

const sweepBatchSize = 500

// SweepReport summarizes one recurrence sweep.
type SweepReport struct {
	Processed    int `json:"processed"`
	Materialized int `json:"materialized"`
	Failed       int `json:"failed"`
	// Stopped counts parents whose account can no longer take transactions.
	// Their pointer is cleared so they leave the due list.
	Stopped int `json:"stopped"`
}

// SweepRecurrences materializes every recurring occurrence due on or before
// today. Each occurrence is its own storage transaction; a parent that fails
// is logged and the sweep moves on to the next one.
func (l *Ledger) SweepRecurrences(ctx context.Context) (SweepReport, error) {
	log := logger.FromContext(ctx)
	today := l.today()

	var due []domain.Transaction
	err := l.store.WithTx(ctx, func(tx Tx) error {
		var err error
		due, err = tx.ListDueRecurrences(ctx, today, sweepBatchSize)
		return err
	})
	if err != nil {
		return SweepReport{}, fmt.Errorf("SweepRecurrences: list due: %w", err)
	}

	var report SweepReport
	for _, parent := range due {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("SweepRecurrences: %w", err)
		}
		report.Processed++

		n, stopped, err := l.catchUp(ctx, parent.UserID, parent.ID, today)
		report.Materialized += n
		if stopped != nil {
			report.Stopped++
			log.Warn().Err(stopped).
				Str("transaction_id", parent.ID).
				Str("account_id", parent.AccountID).
				Msg("Recurrence stopped")
		}
		if err != nil {
			report.Failed++
			log.Error().Err(err).
				Str("transaction_id", parent.ID).
				Str("user_id", parent.UserID).
				Int("materialized", n).
				Msg("Failed to materialize recurrence")
		}
	}

	log.Info().
		Str("today", today.String()).
		Int("processed", report.Processed).
		Int("materialized", report.Materialized).
		Int("failed", report.Failed).
		Int("stopped", report.Stopped).
		Msg("Recurrence sweep finished")
	return report, nil
}

// catchUp materializes occurrences of one parent until its pointer passes today.
// When the parent's account refuses transactions for good, the pointer is
// cleared and the refusal is returned as stopped.
func (l *Ledger) catchUp(ctx context.Context, userID, parentID string, today civil.Date) (made int, stopped, err error) {
	for made < l.sweepMax {
		done := false
		err = l.store.WithTx(ctx, func(tx Tx) error {
			parent, err := tx.GetTransaction(ctx, userID, parentID)
			if err != nil {
				return err
			}
			// Re-checked inside the transaction so concurrent sweeps never
			// materialize the same occurrence twice.
			if parent.State != domain.StateActive || parent.NextRecurrenceDate == nil ||
				!calendar.OnOrBefore(*parent.NextRecurrenceDate, today) {
				done = true
				return nil
			}
			if _, err := loadWritableAccount(ctx, tx, userID, parent.AccountID); err != nil {
				if !isPermanent(err) {
					return err
				}
				stopped = err
				done = true
				return tx.SetNextRecurrence(ctx, userID, parent.ID, nil)
			}

			at := *parent.NextRecurrenceDate
			now := l.now().UTC()
			child := &domain.Transaction{
				ID:                    l.newID(),
				UserID:                userID,
				AccountID:             parent.AccountID,
				Kind:                  parent.Kind,
				Description:           parent.Description,
				Amount:                parent.Amount,
				Date:                  at,
				Frequency:             domain.FrequencyOnce,
				OriginalTransactionID: parent.ID,
				State:                 domain.StateActive,
				CategoryIDs:           parent.CategoryIDs,
				CreatedAt:             now,
				UpdatedAt:             now,
			}
			if _, err := insertWithBalance(ctx, tx, child); err != nil {
				return err
			}
			return tx.SetNextRecurrence(ctx, userID, parent.ID, recurrence.NextPtr(at, parent.Frequency))
		})
		if err != nil {
			return made, nil, err
		}
		if done {
			return made, stopped, nil
		}
		made++
	}
	return made, nil, nil
}

func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrStateConflict) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrNotFound)
}
