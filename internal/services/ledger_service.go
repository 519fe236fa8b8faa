package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/campuspay/backend/internal/models"
)

// LedgerService is the append-only double-entry record of fund movement,
// kept independent of the cached account balances so the books can be
// reconciled against them. There is no update or delete path.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// AppendEntry inserts one immutable ledger row inside the enclosing unit of
// work. The coordinator always writes entries in matched debit/credit pairs
// so that every transaction nets to zero.
func (s *LedgerService) AppendEntry(tx *sql.Tx, transactionID, entryType, accountKind string, accountID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("ledger entry amount must be positive, got %d", amount)
	}

	_, err := tx.Exec(`
		INSERT INTO ledger_entries (transaction_id, entry_type, account_kind, account_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		transactionID, entryType, accountKind, accountID, amount, time.Now())
	if err != nil {
		return fmt.Errorf("append %s entry for transaction %s: %w", entryType, transactionID, err)
	}

	return nil
}

// AppendPair writes the matched debit and credit legs of a simple movement.
func (s *LedgerService) AppendPair(tx *sql.Tx, transactionID string, debitKind string, debitAccountID int64, creditKind string, creditAccountID int64, amount int64) error {
	if err := s.AppendEntry(tx, transactionID, models.EntryTypeDebit, debitKind, debitAccountID, amount); err != nil {
		return err
	}
	return s.AppendEntry(tx, transactionID, models.EntryTypeCredit, creditKind, creditAccountID, amount)
}

// EntriesForTransaction returns all ledger legs of a transaction.
func (s *LedgerService) EntriesForTransaction(transactionID string) ([]models.LedgerEntry, error) {
	rows, err := s.db.Query(`
		SELECT entry_id, transaction_id, entry_type, account_kind, account_id, amount, created_at
		FROM ledger_entries
		WHERE transaction_id = $1
		ORDER BY entry_id`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("fetch entries for transaction %s: %w", transactionID, err)
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.EntryType, &e.AccountKind, &e.AccountID, &e.Amount, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// AccountBalanceFromLedger recomputes an account balance from its signed
// entries. Used by reconciliation checks against the cached balance.
func (s *LedgerService) AccountBalanceFromLedger(accountID int64) (int64, error) {
	var balance int64
	err := s.db.QueryRow(`
		SELECT COALESCE(SUM(CASE WHEN entry_type = 'credit' THEN amount ELSE -amount END), 0)
		FROM ledger_entries
		WHERE account_id = $1`, accountID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("sum ledger for account %d: %w", accountID, err)
	}

	return balance, nil
}
