package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/repository"
	"github.com/nkiryanov/rewardledger/internal/testutil"
)

func mustParseTime(value string) time.Time {
	dt, err := time.Parse("2006-01-02 15:04:05Z07:00", value)
	if err != nil {
		panic(err)
	}
	return dt
}

func TestJournal(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx := func(t *testing.T, fn func(pgx.Tx, repository.Storage)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			fn(tx, NewStorage(tx))
		})
	}

	newTx := func(accountID string, at string, amount models.Amount) models.Transaction {
		return models.Transaction{
			ID:           uuid.New(),
			AccountID:    accountID,
			Direction:    models.DirectionCredit,
			Reason:       models.ReasonDailyBonus,
			Amount:       amount,
			BalanceAfter: amount,
			CreatedAt:    mustParseTime(at),
		}
	}

	t.Run("SaveTransaction", func(t *testing.T) {
		inTx(t, func(_ pgx.Tx, storage repository.Storage) {
			tx := newTx("100", "2025-03-01 10:00:00Z", models.Amount(2550))

			err := storage.Journal().SaveTransaction(t.Context(), tx)
			require.NoError(t, err, "transaction has to be saved ok")

			err = storage.Journal().SaveTransaction(t.Context(), tx)
			require.ErrorIs(t, err, repository.ErrDuplicate, "same transaction id is a duplicate")
		})
	})

	t.Run("ListTransactions", func(t *testing.T) {
		inTx(t, func(_ pgx.Tx, storage repository.Storage) {
			older := newTx("100", "2025-03-01 10:00:00Z", models.Units(25))
			newer := newTx("100", "2025-03-02 10:00:00Z", models.Amount(1050))
			other := newTx("200", "2025-03-02 10:00:00Z", models.Units(25))
			for _, tx := range []models.Transaction{older, newer, other} {
				require.NoError(t, storage.Journal().SaveTransaction(t.Context(), tx))
			}

			txs, err := storage.Journal().ListTransactions(t.Context(), "100", 10)

			require.NoError(t, err)
			require.Len(t, txs, 2)
			require.Equal(t, newer.ID, txs[0].ID, "latest first")
			require.Equal(t, models.Amount(1050), txs[0].Amount, "numeric has to keep minor units")
			require.True(t, older.CreatedAt.Equal(txs[1].CreatedAt))

			txs, err = storage.Journal().ListTransactions(t.Context(), "100", 1)
			require.NoError(t, err)
			require.Len(t, txs, 1)
		})
	})

	t.Run("SaveWithdrawal", func(t *testing.T) {
		inTx(t, func(_ pgx.Tx, storage repository.Storage) {
			req := models.WithdrawalRequest{
				ID:          "100_20250301100000",
				AccountID:   "100",
				Amount:      models.Units(150),
				Destination: "user@upi",
				Status:      models.WithdrawalStatusPending,
				CreatedAt:   mustParseTime("2025-03-01 10:00:00Z"),
			}
			require.NoError(t, storage.Journal().SaveWithdrawal(t.Context(), req))

			resolvedAt := mustParseTime("2025-03-01 12:00:00Z")
			resolved := req
			resolved.Status = models.WithdrawalStatusFulfilled
			resolved.Note = "paid"
			resolved.ResolvedAt = &resolvedAt
			require.NoError(t, storage.Journal().SaveWithdrawal(t.Context(), resolved))

			// Late resolution must not override the stored one
			late := resolved
			late.Status = models.WithdrawalStatusRejected
			require.NoError(t, storage.Journal().SaveWithdrawal(t.Context(), late))

			got, err := storage.Journal().GetWithdrawal(t.Context(), req.ID)
			require.NoError(t, err)
			require.Equal(t, models.WithdrawalStatusFulfilled, got.Status)
			require.Equal(t, "paid", got.Note)
			require.Equal(t, models.Units(150), got.Amount)
			require.NotNil(t, got.ResolvedAt)
			require.True(t, resolvedAt.Equal(*got.ResolvedAt))
		})
	})

	t.Run("GetWithdrawal not found", func(t *testing.T) {
		inTx(t, func(_ pgx.Tx, storage repository.Storage) {
			_, err := storage.Journal().GetWithdrawal(t.Context(), "missing")
			require.ErrorIs(t, err, repository.ErrNotFound)
		})
	})

	t.Run("InTx", func(t *testing.T) {
		inTx(t, func(_ pgx.Tx, storage repository.Storage) {
			tx := newTx("300", "2025-03-01 10:00:00Z", models.Units(10))

			err := storage.InTx(t.Context(), func(s repository.Storage) error {
				require.NoError(t, s.Journal().SaveTransaction(t.Context(), tx))
				return errors.New("rollback please")
			})
			require.Error(t, err)

			txs, err := storage.Journal().ListTransactions(t.Context(), "300", 10)
			require.NoError(t, err)
			require.Empty(t, txs, "failed tx has to be rolled back")

			err = storage.InTx(t.Context(), func(s repository.Storage) error {
				return s.Journal().SaveTransaction(t.Context(), tx)
			})
			require.NoError(t, err)

			txs, err = storage.Journal().ListTransactions(t.Context(), "300", 10)
			require.NoError(t, err)
			require.Len(t, txs, 1)
		})
	})
}

func TestJournalWriter(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
		storage := NewStorage(tx)
		w := repository.NewJournalWriter(storage, logger.NewNoOpLogger())

		txRecord := models.Transaction{
			ID:           uuid.New(),
			AccountID:    "100",
			Direction:    models.DirectionCredit,
			Reason:       models.ReasonReferral,
			Amount:       models.Units(10),
			BalanceAfter: models.Units(10),
			CreatedAt:    mustParseTime("2025-03-01 10:00:00Z"),
		}
		ev := models.NewEvent(models.EventTransaction, "100", txRecord.CreatedAt)
		ev.Tx = &txRecord

		require.NoError(t, w.Write(t.Context(), ev))
		require.NoError(t, w.Write(t.Context(), ev), "replayed event is not an error")

		require.NoError(t, w.Write(t.Context(), models.NewEvent(models.EventAccountCreated, "100", txRecord.CreatedAt)),
			"events without journal rows are skipped")

		txs, err := storage.Journal().ListTransactions(t.Context(), "100", 10)
		require.NoError(t, err)
		require.Len(t, txs, 1)
	})
}
