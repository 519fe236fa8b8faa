package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/campuspay/backend/internal/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestTransactionStore_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewTransactionStore(db)
	fromID, toID := int64(2), int64(3)

	t.Run("inserts pending row", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO transactions").
			WithArgs("tx-1", "debit", "pending", fromID, toID, nil,
				int64(500), "INR", "key-1", sqlmock.AnyArg(), "", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		tx, err := db.Begin()
		assert.NoError(t, err)

		err = store.Create(tx, &models.Transaction{
			ID:             "tx-1",
			Kind:           models.TransactionKindDebit,
			FromAccountID:  &fromID,
			ToAccountID:    &toID,
			Amount:         500,
			Currency:       "INR",
			IdempotencyKey: "key-1",
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate idempotency key", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO transactions").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "transactions_idempotency_key_key"})

		tx, err := db.Begin()
		assert.NoError(t, err)

		err = store.Create(tx, &models.Transaction{
			ID:             "tx-2",
			Kind:           models.TransactionKindDebit,
			FromAccountID:  &fromID,
			ToAccountID:    &toID,
			Amount:         500,
			Currency:       "INR",
			IdempotencyKey: "key-1",
		})
		assert.ErrorIs(t, err, ErrDuplicateRequest)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionStore_Transitions(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewTransactionStore(db)

	t.Run("pending moves to completed", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE transactions").
			WithArgs("completed", sqlmock.AnyArg(), "tx-1", "pending").
			WillReturnResult(sqlmock.NewResult(0, 1))

		tx, err := db.Begin()
		assert.NoError(t, err)

		assert.NoError(t, store.MarkCompleted(tx, "tx-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("terminal row never moves again", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE transactions").
			WithArgs("failed", sqlmock.AnyArg(), "tx-1", "pending").
			WillReturnResult(sqlmock.NewResult(0, 0))

		tx, err := db.Begin()
		assert.NoError(t, err)

		err = store.MarkFailed(tx, "tx-1")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not pending")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionStore_History(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewTransactionStore(db)
	me, other := int64(2), int64(9)
	now := time.Now()

	cols := []string{
		"transaction_id", "kind", "status", "from_account_id", "to_account_id", "store_id",
		"amount", "currency", "idempotency_key", "funding_intent_ref", "description",
		"created_at", "completed_at", "counterparty_name",
	}
	mock.ExpectQuery("ORDER BY t.created_at DESC").
		WithArgs(me, 20, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("tx-1", "debit", "completed", me, other, nil, 500, "INR", "k1", "", "Lunch", now, now, "Ravi Kumar").
			AddRow("tx-2", "debit", "completed", other, me, nil, 300, "INR", "k2", "", "", now, now, "Ravi Kumar").
			AddRow("tx-3", "add_money", "completed", nil, me, nil, 2000, "INR", "fund-pi_1", "pi_1", "", now, now, "CampusPay"))

	items, err := store.History(me, 1, 20)
	assert.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, "out", items[0].Direction)
	assert.Equal(t, "in", items[1].Direction)
	assert.Equal(t, "in", items[2].Direction)
	assert.Equal(t, "CampusPay", items[2].CounterpartyName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionStore_FundingRecords(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewTransactionStore(db)

	mock.ExpectQuery("LEFT JOIN funding_reversals").
		WithArgs(int64(2), "add_money", "completed").
		WillReturnRows(sqlmock.NewRows([]string{"transaction_id", "funding_intent_ref", "amount", "remaining", "created_at"}).
			AddRow("tx-a", "pi_1", 2000, 2000, time.Now()).
			AddRow("tx-b", "pi_2", 1000, 400, time.Now()))

	records, err := store.FundingRecords(2)
	assert.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, int64(2000), records[0].Remaining)
	assert.Equal(t, int64(400), records[1].Remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionStore_FundingCapacity(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewTransactionStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("LEFT JOIN funding_reversals").
		WithArgs(int64(2), "add_money", "completed").
		WillReturnRows(sqlmock.NewRows([]string{"funding_intent_ref", "remaining"}).
			AddRow("pi_1", 2000).
			AddRow("pi_2", 0))

	tx, err := db.Begin()
	assert.NoError(t, err)

	capacity, err := store.FundingCapacity(tx, 2)
	assert.NoError(t, err)
	assert.Equal(t, int64(2000), capacity["pi_1"])
	assert.Equal(t, int64(0), capacity["pi_2"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
