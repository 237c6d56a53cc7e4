package repository

import (
	"context"
	"errors"

	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/models"
)

// JournalWriter appends ledger events to the journal
type JournalWriter struct {
	storage Storage
	logger  logger.Logger
}

func NewJournalWriter(storage Storage, l logger.Logger) *JournalWriter {
	return &JournalWriter{
		storage: storage,
		logger:  l.With("component", "journal"),
	}
}

// Write stores one event. Replayed transactions are accepted as is
func (w *JournalWriter) Write(ctx context.Context, ev models.Event) error {
	journal := w.storage.Journal()

	switch ev.Type {
	case models.EventTransaction:
		if ev.Tx == nil {
			return nil
		}
		err := journal.SaveTransaction(ctx, *ev.Tx)
		if errors.Is(err, ErrDuplicate) {
			w.logger.Debug("Transaction already journaled", "tx_id", ev.Tx.ID)
			return nil
		}
		return err

	case models.EventWithdrawalCreated, models.EventWithdrawalResolved:
		if ev.Withdrawal == nil {
			return nil
		}
		return journal.SaveWithdrawal(ctx, *ev.Withdrawal)

	default:
		return nil
	}
}
