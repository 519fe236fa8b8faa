package services

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/campuspay/backend/internal/models"
	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code raised when an insert hits a
// unique constraint.
const uniqueViolation = "23505"

// TransactionStore persists transaction rows. It is also the idempotency
// guard: Create inserts the row with its client-supplied key inside the
// current unit of work, and a unique-constraint hit on that key comes back
// as the typed ErrDuplicateRequest instead of a raw storage error, so call
// sites never branch on driver error codes.
type TransactionStore struct {
	db *sql.DB
}

func NewTransactionStore(db *sql.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// Create inserts a pending transaction carrying its idempotency key.
// Returns ErrDuplicateRequest if the key was already used; the caller must
// abort the unit of work and must not retry the side effects.
func (s *TransactionStore) Create(tx *sql.Tx, t *models.Transaction) error {
	t.Status = models.TransactionStatusPending
	t.CreatedAt = time.Now()

	_, err := tx.Exec(`
		INSERT INTO transactions
		(transaction_id, kind, status, from_account_id, to_account_id, store_id,
		 amount, currency, idempotency_key, funding_intent_ref, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.Kind, t.Status, t.FromAccountID, t.ToAccountID, t.StoreID,
		t.Amount, t.Currency, t.IdempotencyKey, nullable(t.FundingIntentRef), t.Description, t.CreatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateRequest
		}
		return fmt.Errorf("insert transaction %s: %w", t.ID, err)
	}

	return nil
}

// MarkCompleted moves a pending transaction to completed. The WHERE clause
// enforces the monotonic transition: a completed or failed row never moves.
func (s *TransactionStore) MarkCompleted(tx *sql.Tx, transactionID string) error {
	return s.transition(tx, transactionID, models.TransactionStatusCompleted)
}

// MarkFailed moves a pending transaction to failed.
func (s *TransactionStore) MarkFailed(tx *sql.Tx, transactionID string) error {
	return s.transition(tx, transactionID, models.TransactionStatusFailed)
}

func (s *TransactionStore) transition(tx *sql.Tx, transactionID, status string) error {
	result, err := tx.Exec(`
		UPDATE transactions
		SET status = $1, completed_at = $2
		WHERE transaction_id = $3 AND status = $4`,
		status, time.Now(), transactionID, models.TransactionStatusPending)
	if err != nil {
		return fmt.Errorf("update transaction %s to %s: %w", transactionID, status, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("transaction %s is not pending", transactionID)
	}

	return nil
}

// GetByFundingIntent locks and returns the pending ADD_MONEY transaction for
// a funding intent, so two concurrent confirms cannot both credit the wallet.
func (s *TransactionStore) GetByFundingIntent(tx *sql.Tx, intentRef string) (*models.Transaction, error) {
	var t models.Transaction
	var fundingRef sql.NullString
	err := tx.QueryRow(`
		SELECT transaction_id, kind, status, from_account_id, to_account_id, store_id,
		       amount, currency, idempotency_key, funding_intent_ref, description, created_at, completed_at
		FROM transactions
		WHERE funding_intent_ref = $1 AND kind = $2
		FOR UPDATE`, intentRef, models.TransactionKindAddMoney).Scan(
		&t.ID, &t.Kind, &t.Status, &t.FromAccountID, &t.ToAccountID, &t.StoreID,
		&t.Amount, &t.Currency, &t.IdempotencyKey, &fundingRef, &t.Description, &t.CreatedAt, &t.CompletedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("fetch transaction for intent %s: %w", intentRef, err)
	}
	t.FundingIntentRef = fundingRef.String

	return &t, nil
}

// FundingRecords lists completed ADD_MONEY transactions for an account with
// the amount still available for reversal, sorted largest-first then newest
// (the withdrawal selection order).
func (s *TransactionStore) FundingRecords(accountID int64) ([]models.FundingRecord, error) {
	rows, err := s.db.Query(`
		SELECT t.transaction_id, t.funding_intent_ref, t.amount,
		       t.amount - COALESCE(SUM(r.amount), 0) AS remaining,
		       t.created_at
		FROM transactions t
		LEFT JOIN funding_reversals r ON r.funding_intent_ref = t.funding_intent_ref
		WHERE t.to_account_id = $1 AND t.kind = $2 AND t.status = $3
		GROUP BY t.transaction_id, t.funding_intent_ref, t.amount, t.created_at
		HAVING t.amount - COALESCE(SUM(r.amount), 0) > 0
		ORDER BY t.amount DESC, t.created_at DESC`,
		accountID, models.TransactionKindAddMoney, models.TransactionStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("fetch funding records for account %d: %w", accountID, err)
	}
	defer rows.Close()

	records := []models.FundingRecord{}
	for rows.Next() {
		var r models.FundingRecord
		if err := rows.Scan(&r.TransactionID, &r.FundingIntentRef, &r.Amount, &r.Remaining, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// FundingCapacity returns the amount still reversible per funding intent for
// an account, read inside the caller's unit of work. With the wallet row
// locked this is the authoritative view: concurrent withdrawals against the
// same wallet serialize on that lock, so a plan checked against this map
// cannot double-consume a record.
func (s *TransactionStore) FundingCapacity(tx *sql.Tx, accountID int64) (map[string]int64, error) {
	rows, err := tx.Query(`
		SELECT t.funding_intent_ref,
		       t.amount - COALESCE(SUM(r.amount), 0) AS remaining
		FROM transactions t
		LEFT JOIN funding_reversals r ON r.funding_intent_ref = t.funding_intent_ref
		WHERE t.to_account_id = $1 AND t.kind = $2 AND t.status = $3
		GROUP BY t.funding_intent_ref, t.amount`,
		accountID, models.TransactionKindAddMoney, models.TransactionStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("fetch funding capacity for account %d: %w", accountID, err)
	}
	defer rows.Close()

	capacity := map[string]int64{}
	for rows.Next() {
		var ref string
		var remaining int64
		if err := rows.Scan(&ref, &remaining); err != nil {
			return nil, err
		}
		capacity[ref] += remaining
	}

	return capacity, rows.Err()
}

// RecordReversal stores one adapter reversal consumed by a withdrawal.
func (s *TransactionStore) RecordReversal(tx *sql.Tx, transactionID, intentRef, adapterRef string, amount int64) error {
	_, err := tx.Exec(`
		INSERT INTO funding_reversals (transaction_id, funding_intent_ref, adapter_reversal_ref, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		transactionID, intentRef, adapterRef, amount, time.Now())
	if err != nil {
		return fmt.Errorf("record reversal for transaction %s: %w", transactionID, err)
	}
	return nil
}

// History returns one page of an account's transactions, newest first, with
// the counterparty display name joined in (user full name or store name).
func (s *TransactionStore) History(accountID int64, page, pageSize int) ([]models.TransactionHistoryItem, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.db.Query(`
		SELECT t.transaction_id, t.kind, t.status, t.from_account_id, t.to_account_id, t.store_id,
		       t.amount, t.currency, t.idempotency_key, COALESCE(t.funding_intent_ref, ''), t.description,
		       t.created_at, t.completed_at,
		       COALESCE(st.display_name, cu.full_name, 'CampusPay') AS counterparty_name
		FROM transactions t
		LEFT JOIN stores st ON st.store_id = t.store_id
		LEFT JOIN accounts ca
		       ON ca.account_id = CASE WHEN t.from_account_id = $1 THEN t.to_account_id ELSE t.from_account_id END
		LEFT JOIN users cu ON cu.user_id = ca.user_id
		WHERE t.from_account_id = $1 OR t.to_account_id = $1
		ORDER BY t.created_at DESC
		LIMIT $2 OFFSET $3`, accountID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("fetch history for account %d: %w", accountID, err)
	}
	defer rows.Close()

	items := []models.TransactionHistoryItem{}
	for rows.Next() {
		var item models.TransactionHistoryItem
		if err := rows.Scan(
			&item.ID, &item.Kind, &item.Status, &item.FromAccountID, &item.ToAccountID, &item.StoreID,
			&item.Amount, &item.Currency, &item.IdempotencyKey, &item.FundingIntentRef, &item.Description,
			&item.CreatedAt, &item.CompletedAt, &item.CounterpartyName); err != nil {
			return nil, err
		}
		if item.FromAccountID != nil && *item.FromAccountID == accountID {
			item.Direction = "out"
		} else {
			item.Direction = "in"
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
