package models

import "time"

// User roles
const (
	RoleUser   = "user"
	RoleVendor = "vendor"
	RoleAdmin  = "admin"
)

type User struct {
	ID            int64      `json:"id" db:"user_id"`
	Email         string     `json:"email" db:"email"`
	FullName      string     `json:"full_name" db:"full_name"`
	Role          string     `json:"role" db:"role"`
	PaymentHandle string     `json:"payment_handle" db:"payment_handle"` // e.g. jane4821.campus
	LastLogin     *time.Time `json:"last_login,omitempty" db:"last_login"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// StaffProfile is a user's entry in the campus staff directory.
type StaffProfile struct {
	UserID        int64  `json:"user_id" db:"user_id"`
	FullName      string `json:"full_name" db:"full_name"`
	PaymentHandle string `json:"payment_handle" db:"payment_handle"`
	Phone         string `json:"phone" db:"phone"`
	Experience    string `json:"experience" db:"experience"`
	ImageURL      string `json:"image_url" db:"image_url"`
}

// Contact is a payment counterparty shown on the pay-people screen.
type Contact struct {
	UserID        int64      `json:"user_id" db:"user_id"`
	FullName      string     `json:"full_name" db:"full_name"`
	PaymentHandle string     `json:"payment_handle" db:"payment_handle"`
	LastPaidAt    *time.Time `json:"last_paid_at,omitempty" db:"last_paid_at"`
}
