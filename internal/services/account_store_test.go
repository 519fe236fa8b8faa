package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func lockRows(accountID int64, ownerKind string, balance int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"account_id", "owner_kind", "balance", "version", "status", "updated_at"}).
		AddRow(accountID, ownerKind, balance, 1, "ACTIVE", time.Now())
}

func TestAccountStore_LockPair(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewAccountStore(db)

	t.Run("locks in ascending id order when called descending", func(t *testing.T) {
		mock.ExpectBegin()

		// Account 3 must be locked before account 7 even though the caller
		// passed 7 first.
		mock.ExpectQuery("FROM accounts\\s+WHERE account_id = \\$1\\s+FOR UPDATE").
			WithArgs(int64(3)).
			WillReturnRows(lockRows(3, "user_wallet", 2000))
		mock.ExpectQuery("FROM accounts\\s+WHERE account_id = \\$1\\s+FOR UPDATE").
			WithArgs(int64(7)).
			WillReturnRows(lockRows(7, "user_wallet", 500))

		tx, err := db.Begin()
		assert.NoError(t, err)

		first, second, err := store.LockPair(tx, 7, 3)
		assert.NoError(t, err)

		// Returned in argument order regardless of lock order.
		assert.Equal(t, int64(7), first.ID)
		assert.Equal(t, int64(3), second.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing account", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "owner_kind", "balance", "version", "status", "updated_at"}))

		tx, err := db.Begin()
		assert.NoError(t, err)

		_, _, err = store.LockPair(tx, 7, 3)
		assert.ErrorIs(t, err, ErrAccountNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAccountStore_AdjustBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewAccountStore(db)

	t.Run("debit returns new balance", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(int64(-500), sqlmock.AnyArg(), int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(1500))

		tx, err := db.Begin()
		assert.NoError(t, err)

		balance, err := store.AdjustBalance(tx, 5, -500)
		assert.NoError(t, err)
		assert.Equal(t, int64(1500), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("overdraft refused at the row", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(int64(-5000), sqlmock.AnyArg(), int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}))

		tx, err := db.Begin()
		assert.NoError(t, err)

		_, err = store.AdjustBalance(tx, 5, -5000)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
