package models

import "time"

// Transaction kinds
const (
	TransactionKindDebit    = "debit"
	TransactionKindAddMoney = "add_money"
	TransactionKindWithdraw = "withdraw"
)

// Transaction statuses. Transitions are monotonic:
// pending -> completed or pending -> failed, never reversed.
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// Transaction is one logical money movement. The idempotency key is unique
// across all transactions; a duplicate insert means the request was already
// processed.
type Transaction struct {
	ID               string     `json:"transaction_id" db:"transaction_id"`
	Kind             string     `json:"kind" db:"kind"`
	Status           string     `json:"status" db:"status"`
	FromAccountID    *int64     `json:"from_account_id,omitempty" db:"from_account_id"`
	ToAccountID      *int64     `json:"to_account_id,omitempty" db:"to_account_id"`
	StoreID          *int64     `json:"store_id,omitempty" db:"store_id"`
	Amount           int64      `json:"amount" db:"amount"` // minor units, always positive
	Currency         string     `json:"currency" db:"currency"`
	IdempotencyKey   string     `json:"idempotency_key" db:"idempotency_key"`
	FundingIntentRef string     `json:"funding_intent_ref,omitempty" db:"funding_intent_ref"`
	Description      string     `json:"description,omitempty" db:"description"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// TransactionHistoryItem is a transaction joined with the counterparty
// display name for the wallet history screen.
type TransactionHistoryItem struct {
	Transaction
	CounterpartyName string `json:"counterparty_name" db:"counterparty_name"`
	Direction        string `json:"direction"` // "in" or "out" relative to the queried account
}

// FundingReversal records one adapter reversal consumed by a withdrawal.
// A single withdraw transaction may hold several reversals when no single
// funding record covers the amount.
type FundingReversal struct {
	ID               int64     `json:"id" db:"reversal_id"`
	TransactionID    string    `json:"transaction_id" db:"transaction_id"`
	FundingIntentRef string    `json:"funding_intent_ref" db:"funding_intent_ref"`
	AdapterRef       string    `json:"adapter_reversal_ref" db:"adapter_reversal_ref"`
	Amount           int64     `json:"amount" db:"amount"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// FundingRecord is a confirmed ADD_MONEY transaction with the amount still
// available for reversal. Withdrawals consume records largest-first.
type FundingRecord struct {
	TransactionID    string    `json:"transaction_id" db:"transaction_id"`
	FundingIntentRef string    `json:"funding_intent_ref" db:"funding_intent_ref"`
	Amount           int64     `json:"amount" db:"amount"`
	Remaining        int64     `json:"remaining" db:"remaining"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
