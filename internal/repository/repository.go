package repository

import (
	"context"
	"errors"

	"github.com/nkiryanov/rewardledger/internal/models"
)

var (
	ErrDuplicate = errors.New("record already journaled")
	ErrNotFound  = errors.New("record not found")
)

// Journal repository interface
// Append only audit of committed ledger mutations, never read to rebuild balances
type JournalRepo interface {
	// Append a committed transaction
	// If transaction with the id is already stored has to return ErrDuplicate
	SaveTransaction(ctx context.Context, tx models.Transaction) error

	// Insert request or move stored pending request to its resolved status
	// Resolved requests are never changed again
	SaveWithdrawal(ctx context.Context, req models.WithdrawalRequest) error

	// If request not found must return ErrNotFound
	GetWithdrawal(ctx context.Context, id string) (models.WithdrawalRequest, error)

	// Latest transactions of the account first
	ListTransactions(ctx context.Context, accountID string, limit int) ([]models.Transaction, error)
}

type Storage interface {
	Journal() JournalRepo

	// Run fn in a db transaction, commit if fn returns nil
	InTx(ctx context.Context, fn func(Storage) error) error
}
