package models

import "time"

// Store statuses
const (
	StoreStatusActive   = "active"
	StoreStatusInactive = "inactive"
)

type Vendor struct {
	ID          int64     `json:"vendor_id" db:"vendor_id"`
	VendorName  string    `json:"vendor_name" db:"vendor_name"`
	OwnerUserID int64     `json:"owner_user_id" db:"owner_user_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Store is a campus shopfront. Payments to a store credit its revenue
// account, not a user wallet.
type Store struct {
	ID               int64     `json:"store_id" db:"store_id"`
	VendorID         int64     `json:"vendor_id" db:"vendor_id"`
	DisplayName      string    `json:"display_name" db:"display_name"`
	LocationText     string    `json:"location_text" db:"location_text"`
	Status           string    `json:"status" db:"status"`
	RevenueAccountID int64     `json:"revenue_account_id" db:"revenue_account_id"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

type StoreItem struct {
	ID         int64     `json:"item_id" db:"item_id"`
	StoreID    int64     `json:"store_id" db:"store_id"`
	Name       string    `json:"name" db:"name"`
	PriceMinor int64     `json:"price_minor" db:"price_minor"`
	ImageURL   string    `json:"image_url,omitempty" db:"image_url"`
	Available  bool      `json:"available" db:"available"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
