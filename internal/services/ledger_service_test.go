package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestLedgerService_AppendPair(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	t.Run("writes matched debit and credit legs", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs("tx-1", "debit", "user_wallet", int64(2), int64(750), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs("tx-1", "credit", "store_revenue", int64(9), int64(750), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(2, 1))

		tx, err := db.Begin()
		assert.NoError(t, err)

		err = service.AppendPair(tx, "tx-1", "user_wallet", 2, "store_revenue", 9, 750)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		mock.ExpectBegin()

		tx, err := db.Begin()
		assert.NoError(t, err)

		err = service.AppendPair(tx, "tx-2", "user_wallet", 2, "store_revenue", 9, 0)
		assert.Error(t, err)

		err = service.AppendEntry(tx, "tx-2", "debit", "user_wallet", 2, -100)
		assert.Error(t, err)
	})
}

func TestLedgerService_AccountBalanceFromLedger(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	mock.ExpectQuery("FROM ledger_entries").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(1250))

	balance, err := service.AccountBalanceFromLedger(2)
	assert.NoError(t, err)
	assert.Equal(t, int64(1250), balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}
