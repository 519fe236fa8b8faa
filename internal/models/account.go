package models

import "time"

// Account owner kinds
const (
	OwnerKindUserWallet   = "user_wallet"
	OwnerKindStoreRevenue = "store_revenue"
	OwnerKindPlatform     = "platform"
)

// Account statuses
const (
	AccountStatusActive = "ACTIVE"
	AccountStatusClosed = "CLOSED"
)

// Account holds funds for a user wallet, a store revenue account or the platform.
// Balance is cached in integer minor currency units (paise) and must equal the
// sum of signed ledger entries for the account after every committed transaction.
type Account struct {
	ID        int64     `json:"id" db:"account_id"`
	OwnerKind string    `json:"owner_kind" db:"owner_kind"`
	UserID    *int64    `json:"user_id,omitempty" db:"user_id"`
	StoreID   *int64    `json:"store_id,omitempty" db:"store_id"`
	Balance   int64     `json:"balance" db:"balance"`
	Version   int       `json:"version" db:"version"` // for optimistic locking
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
