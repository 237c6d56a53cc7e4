package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/repository"
)

type JournalRepo struct {
	DB DBTX
}

const saveTransaction = `-- name: SaveTransaction
INSERT INTO ledger_transactions (id, account_id, direction, reason, amount, balance_after, reference, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

func (r *JournalRepo) SaveTransaction(ctx context.Context, tx models.Transaction) error {
	_, err := r.DB.Exec(ctx, saveTransaction,
		tx.ID, tx.AccountID, tx.Direction, tx.Reason,
		tx.Amount.Decimal(), tx.BalanceAfter.Decimal(), tx.Reference, tx.CreatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("transaction %s: %w", tx.ID, repository.ErrDuplicate)
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

// Pending rows take the resolution once; resolved rows stay as they are
const saveWithdrawal = `-- name: SaveWithdrawal
INSERT INTO withdrawal_requests (id, account_id, amount, destination, status, note, created_at, resolved_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE
SET status = EXCLUDED.status, note = EXCLUDED.note, resolved_at = EXCLUDED.resolved_at
WHERE withdrawal_requests.status = 'pending' AND EXCLUDED.status <> 'pending'
`

func (r *JournalRepo) SaveWithdrawal(ctx context.Context, req models.WithdrawalRequest) error {
	_, err := r.DB.Exec(ctx, saveWithdrawal,
		req.ID, req.AccountID, req.Amount.Decimal(), req.Destination,
		req.Status, req.Note, req.CreatedAt, req.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const getWithdrawal = `-- name: GetWithdrawal
SELECT id, account_id, amount, destination, status, note, created_at, resolved_at
FROM withdrawal_requests
WHERE id = $1
`

func (r *JournalRepo) GetWithdrawal(ctx context.Context, id string) (models.WithdrawalRequest, error) {
	rows, _ := r.DB.Query(ctx, getWithdrawal, id)
	req, err := pgx.CollectOneRow(rows, rowToWithdrawal)

	switch {
	case err == nil:
		return req, nil
	case errors.Is(err, pgx.ErrNoRows):
		return req, repository.ErrNotFound
	default:
		return req, fmt.Errorf("db error: %w", err)
	}
}

const listTransactions = `-- name: ListTransactions
SELECT id, account_id, direction, reason, amount, balance_after, reference, created_at
FROM ledger_transactions
WHERE account_id = $1
ORDER BY created_at DESC, id
LIMIT $2
`

func (r *JournalRepo) ListTransactions(ctx context.Context, accountID string, limit int) ([]models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, listTransactions, accountID, limit)
	txs, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return txs, nil
}

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var (
		tx            models.Transaction
		amount, after decimal.Decimal
	)
	if err := row.Scan(&tx.ID, &tx.AccountID, &tx.Direction, &tx.Reason, &amount, &after, &tx.Reference, &tx.CreatedAt); err != nil {
		return tx, err
	}

	var err error
	if tx.Amount, err = models.AmountFromDecimal(amount); err != nil {
		return tx, err
	}
	tx.BalanceAfter, err = models.AmountFromDecimal(after)
	return tx, err
}

func rowToWithdrawal(row pgx.CollectableRow) (models.WithdrawalRequest, error) {
	var (
		req    models.WithdrawalRequest
		amount decimal.Decimal
	)
	if err := row.Scan(&req.ID, &req.AccountID, &amount, &req.Destination, &req.Status, &req.Note, &req.CreatedAt, &req.ResolvedAt); err != nil {
		return req, err
	}

	var err error
	req.Amount, err = models.AmountFromDecimal(amount)
	return req, err
}
