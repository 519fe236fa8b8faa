package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func accountRows(accountID int64, ownerKind string, balance int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"account_id", "owner_kind", "user_id", "store_id", "balance", "version", "status", "created_at", "updated_at",
	}).AddRow(accountID, ownerKind, nil, nil, balance, 1, "ACTIVE", now, now)
}

func TestPaymentService_Transfer(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewPaymentService(db)
	toID := int64(9)

	t.Run("successful transfer", func(t *testing.T) {
		mock.ExpectQuery("user_id, store_id, balance").
			WithArgs(int64(2)).
			WillReturnRows(accountRows(2, "user_wallet", 5000))
		mock.ExpectQuery("user_id, store_id, balance").
			WithArgs(int64(9)).
			WillReturnRows(accountRows(9, "user_wallet", 100))

		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(int64(2)).
			WillReturnRows(lockRows(2, "user_wallet", 5000))
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(int64(9)).
			WillReturnRows(lockRows(9, "user_wallet", 100))

		mock.ExpectExec("INSERT INTO transactions").
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(sqlmock.AnyArg(), "debit", "user_wallet", int64(2), int64(750), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(sqlmock.AnyArg(), "credit", "user_wallet", int64(9), int64(750), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(2, 1))

		mock.ExpectQuery("UPDATE accounts").
			WithArgs(int64(-750), sqlmock.AnyArg(), int64(2)).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(4250))
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(int64(750), sqlmock.AnyArg(), int64(9)).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(850))

		mock.ExpectExec("UPDATE transactions").
			WithArgs("completed", sqlmock.AnyArg(), sqlmock.AnyArg(), "pending").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result, err := service.Transfer(context.Background(), TransferInput{
			FromAccountID:  2,
			ToAccountID:    &toID,
			Amount:         750,
			IdempotencyKey: "key-1",
		})
		assert.NoError(t, err)
		assert.Equal(t, int64(4250), result.NewBalance)
		assert.NotEmpty(t, result.TransactionID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("locks ascending when paying a lower account id", func(t *testing.T) {
		lowID := int64(2)

		mock.ExpectQuery("user_id, store_id, balance").
			WithArgs(int64(9)).
			WillReturnRows(accountRows(9, "user_wallet", 5000))
		mock.ExpectQuery("user_id, store_id, balance").
			WithArgs(int64(2)).
			WillReturnRows(accountRows(2, "user_wallet", 100))

		mock.ExpectBegin()
		// Account 2 is locked first even though it is the credit side.
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(int64(2)).
			WillReturnRows(lockRows(2, "user_wallet", 100))
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(int64(9)).
			WillReturnRows(lockRows(9, "user_wallet", 5000))

		mock.ExpectExec("INSERT INTO transactions").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(sqlmock.AnyArg(), "debit", "user_wallet", int64(9), int64(300), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(sqlmock.AnyArg(), "credit", "user_wallet", int64(2), int64(300), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(int64(-300), sqlmock.AnyArg(), int64(9)).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(4700))
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(int64(300), sqlmock.AnyArg(), int64(2)).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(400))
		mock.ExpectExec("UPDATE transactions").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result, err := service.Transfer(context.Background(), TransferInput{
			FromAccountID:  9,
			ToAccountID:    &lowID,
			Amount:         300,
			IdempotencyKey: "key-2",
		})
		assert.NoError(t, err)
		assert.Equal(t, int64(4700), result.NewBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds before locks", func(t *testing.T) {
		mock.ExpectQuery("user_id, store_id, balance").
			WithArgs(int64(2)).
			WillReturnRows(accountRows(2, "user_wallet", 100))
		mock.ExpectQuery("user_id, store_id, balance").
			WithArgs(int64(9)).
			WillReturnRows(accountRows(9, "user_wallet", 0))

		_, err := service.Transfer(context.Background(), TransferInput{
			FromAccountID:  2,
			ToAccountID:    &toID,
			Amount:         750,
			IdempotencyKey: "key-3",
		})
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrent drain caught under lock", func(t *testing.T) {
		mock.ExpectQuery("user_id, store_id, balance").
			WithArgs(int64(2)).
			WillReturnRows(accountRows(2, "user_wallet", 5000))
		mock.ExpectQuery("user_id, store_id, balance").
			WithArgs(int64(9)).
			WillReturnRows(accountRows(9, "user_wallet", 0))

		mock.ExpectBegin()
		// Balance dropped between validation and lock acquisition.
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(int64(2)).
			WillReturnRows(lockRows(2, "user_wallet", 200))
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(int64(9)).
			WillReturnRows(lockRows(9, "user_wallet", 0))
		mock.ExpectRollback()

		_, err := service.Transfer(context.Background(), TransferInput{
			FromAccountID:  2,
			ToAccountID:    &toID,
			Amount:         750,
			IdempotencyKey: "key-4",
		})
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate idempotency key rolls back", func(t *testing.T) {
		mock.ExpectQuery("user_id, store_id, balance").
			WithArgs(int64(2)).
			WillReturnRows(accountRows(2, "user_wallet", 5000))
		mock.ExpectQuery("user_id, store_id, balance").
			WithArgs(int64(9)).
			WillReturnRows(accountRows(9, "user_wallet", 0))

		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(int64(2)).
			WillReturnRows(lockRows(2, "user_wallet", 5000))
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(int64(9)).
			WillReturnRows(lockRows(9, "user_wallet", 0))
		mock.ExpectExec("INSERT INTO transactions").
			WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		_, err := service.Transfer(context.Background(), TransferInput{
			FromAccountID:  2,
			ToAccountID:    &toID,
			Amount:         750,
			IdempotencyKey: "key-1",
		})
		assert.ErrorIs(t, err, ErrDuplicateRequest)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("self transfer rejected", func(t *testing.T) {
		selfID := int64(2)
		_, err := service.Transfer(context.Background(), TransferInput{
			FromAccountID:  2,
			ToAccountID:    &selfID,
			Amount:         100,
			IdempotencyKey: "key-5",
		})
		assert.ErrorIs(t, err, ErrSelfTransferNotAllowed)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := service.Transfer(context.Background(), TransferInput{
			FromAccountID:  2,
			ToAccountID:    &toID,
			Amount:         0,
			IdempotencyKey: "key-6",
		})
		assert.ErrorIs(t, err, ErrInvalidInput)

		// Exactly one credit target must be set.
		otherID := int64(4)
		_, err = service.Transfer(context.Background(), TransferInput{
			FromAccountID:  2,
			ToAccountID:    &toID,
			ToUserID:       &otherID,
			Amount:         100,
			IdempotencyKey: "key-7",
		})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("inactive store refused", func(t *testing.T) {
		storeID := int64(12)
		now := time.Now()
		mock.ExpectQuery("FROM stores").
			WithArgs(int64(12)).
			WillReturnRows(sqlmock.NewRows([]string{
				"store_id", "vendor_id", "display_name", "location_text", "status", "revenue_account_id", "created_at",
			}).AddRow(12, 1, "Closed Cafe", "Block C", "inactive", 30, now))

		_, err := service.Transfer(context.Background(), TransferInput{
			FromAccountID:  2,
			ToStoreID:      &storeID,
			Amount:         100,
			IdempotencyKey: "key-8",
		})
		assert.ErrorIs(t, err, ErrStoreInactive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
