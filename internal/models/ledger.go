package models

import "time"

// Ledger entry types
const (
	EntryTypeDebit  = "debit"
	EntryTypeCredit = "credit"
)

// LedgerEntry is one leg of a transaction. Entries are append-only: no
// update or delete path exists anywhere in the codebase. For every completed
// transaction the debit legs and credit legs sum to the same amount.
type LedgerEntry struct {
	ID            int64     `json:"id" db:"entry_id"`
	TransactionID string    `json:"transaction_id" db:"transaction_id"`
	EntryType     string    `json:"entry_type" db:"entry_type"`
	AccountKind   string    `json:"account_kind" db:"account_kind"`
	AccountID     int64     `json:"account_id" db:"account_id"`
	Amount        int64     `json:"amount" db:"amount"` // minor units, always positive
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
