package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"

	"github.com/campuspay/backend/internal/middleware"
	"github.com/campuspay/backend/internal/models"
)

// ContactService backs the pay-people screen: recent counterparties and
// directory search by payment handle or name.
type ContactService struct {
	db       *sql.DB
	accounts *AccountStore
}

func NewContactService(db *sql.DB) *ContactService {
	return &ContactService{db: db, accounts: NewAccountStore(db)}
}

// HandleRecentContacts returns users the caller paid most recently
// @Summary Recent contacts
// @Tags contacts
// @Produce json
// @Success 200 {object} object{contacts=[]models.Contact}
// @Router /contacts/recent [get]
func (s *ContactService) HandleRecentContacts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	wallet, err := s.accounts.GetByUserID(userID)
	if err != nil {
		SendPaymentError(w, err)
		return
	}

	// One row per counterparty, most recent completed payment wins.
	rows, err := s.db.Query(`
		SELECT u.user_id, u.full_name, u.payment_handle, MAX(t.created_at) AS last_paid_at
		FROM transactions t
		JOIN accounts a ON a.account_id = t.to_account_id AND a.owner_kind = $1
		JOIN users u ON u.user_id = a.user_id
		WHERE t.from_account_id = $2 AND t.status = $3 AND t.kind = $4
		GROUP BY u.user_id, u.full_name, u.payment_handle
		ORDER BY last_paid_at DESC
		LIMIT 10`,
		models.OwnerKindUserWallet, wallet.ID, models.TransactionStatusCompleted, models.TransactionKindDebit)
	if err != nil {
		log.Printf("[CONTACT] Failed to fetch recent contacts for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch contacts", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	contacts := []models.Contact{}
	for rows.Next() {
		var c models.Contact
		if err := rows.Scan(&c.UserID, &c.FullName, &c.PaymentHandle, &c.LastPaidAt); err != nil {
			SendErrorResponse(w, "Failed to fetch contacts", http.StatusInternalServerError, nil)
			return
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to fetch contacts", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "contacts": contacts})
}

// HandleSearchContacts finds users by payment handle or name
// @Summary Search contacts
// @Tags contacts
// @Produce json
// @Param q query string true "Handle or name fragment"
// @Success 200 {object} object{contacts=[]models.Contact}
// @Failure 400 {object} ErrorResponse
// @Router /contacts/search [get]
func (s *ContactService) HandleSearchContacts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	q := r.URL.Query().Get("q")
	if len(q) < 2 {
		SendErrorResponse(w, "Query must be at least 2 characters", http.StatusBadRequest, nil)
		return
	}

	rows, err := s.db.Query(`
		SELECT user_id, full_name, payment_handle
		FROM users
		WHERE user_id <> $1
		  AND (payment_handle ILIKE $2 OR full_name ILIKE $2)
		ORDER BY full_name
		LIMIT 20`, userID, "%"+q+"%")
	if err != nil {
		log.Printf("[CONTACT] Search failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Search failed", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	contacts := []models.Contact{}
	for rows.Next() {
		var c models.Contact
		if err := rows.Scan(&c.UserID, &c.FullName, &c.PaymentHandle); err != nil {
			SendErrorResponse(w, "Search failed", http.StatusInternalServerError, nil)
			return
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Search failed", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "contacts": contacts})
}
