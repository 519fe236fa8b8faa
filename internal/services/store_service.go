package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/campuspay/backend/internal/database"
	"github.com/campuspay/backend/internal/middleware"
	"github.com/campuspay/backend/internal/models"
	"github.com/go-chi/chi/v5"
)

// StoreService manages vendors, their storefronts and menu items. Creating a
// store also opens its revenue account so payments have somewhere to land.
type StoreService struct {
	db        *sql.DB
	accounts  *AccountStore
	validator *ValidationHelper
}

func NewStoreService(db *sql.DB) *StoreService {
	return &StoreService{
		db:        db,
		accounts:  NewAccountStore(db),
		validator: NewValidationHelper(),
	}
}

type createVendorRequest struct {
	VendorName string `json:"vendorName" validate:"required,min=2,max=100"`
}

type createStoreRequest struct {
	VendorID     int64  `json:"vendorId" validate:"required,gt=0"`
	DisplayName  string `json:"displayName" validate:"required,min=2,max=100"`
	LocationText string `json:"locationText" validate:"max=200"`
}

type addStoreItemRequest struct {
	Name       string `json:"name" validate:"required,min=1,max=100"`
	PriceMinor int64  `json:"priceMinor" validate:"required,gt=0"`
	ImageURL   string `json:"imageUrl" validate:"omitempty,max=300"`
}

// HandleCreateVendor registers a vendor owned by the caller
// @Summary Create vendor
// @Tags stores
// @Accept json
// @Produce json
// @Param vendor body createVendorRequest true "Vendor details"
// @Success 201 {object} models.Vendor
// @Failure 400 {object} ErrorResponse
// @Router /vendors [post]
func (s *StoreService) HandleCreateVendor(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req createVendorRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var vendor models.Vendor
	err := s.db.QueryRow(`
		INSERT INTO vendors (vendor_name, owner_user_id)
		VALUES ($1, $2)
		RETURNING vendor_id, vendor_name, owner_user_id, created_at`,
		req.VendorName, userID).Scan(
		&vendor.ID, &vendor.VendorName, &vendor.OwnerUserID, &vendor.CreatedAt)
	if err != nil {
		log.Printf("[STORE] Failed to create vendor for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to create vendor", http.StatusInternalServerError, nil)
		return
	}

	// Vendor role unlocks store management on subsequent logins.
	_, _ = s.db.Exec(`UPDATE users SET role = $1 WHERE user_id = $2 AND role = $3`,
		models.RoleVendor, userID, models.RoleUser)

	log.Printf("[STORE] Created vendor %d for user %d", vendor.ID, userID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(vendor)
}

// HandleListVendors returns the vendors owned by the caller
// @Summary List vendors
// @Tags stores
// @Produce json
// @Success 200 {object} object{vendors=[]models.Vendor}
// @Router /vendors [get]
func (s *StoreService) HandleListVendors(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.Query(`
		SELECT vendor_id, vendor_name, owner_user_id, created_at
		FROM vendors
		WHERE owner_user_id = $1
		ORDER BY vendor_name`, userID)
	if err != nil {
		log.Printf("[STORE] Failed to list vendors for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch vendors", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	vendors := []models.Vendor{}
	for rows.Next() {
		var v models.Vendor
		if err := rows.Scan(&v.ID, &v.VendorName, &v.OwnerUserID, &v.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch vendors", http.StatusInternalServerError, nil)
			return
		}
		vendors = append(vendors, v)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to fetch vendors", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "vendors": vendors})
}

// HandleCreateStore opens a storefront with a fresh revenue account
// @Summary Create store
// @Tags stores
// @Accept json
// @Produce json
// @Param store body createStoreRequest true "Store details"
// @Success 201 {object} models.Store
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /stores [post]
func (s *StoreService) HandleCreateStore(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req createStoreRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var ownerID int64
	err := s.db.QueryRow(`SELECT owner_user_id FROM vendors WHERE vendor_id = $1`, req.VendorID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			SendErrorResponse(w, "Vendor not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Failed to create store", http.StatusInternalServerError, nil)
		return
	}
	if ownerID != userID {
		SendErrorResponse(w, "Not the vendor owner", http.StatusForbidden, nil)
		return
	}

	var store models.Store
	err = database.WithTx(r.Context(), s.db, func(tx *sql.Tx) error {
		if err := tx.QueryRow(`
			INSERT INTO stores (vendor_id, display_name, location_text, status)
			VALUES ($1, $2, $3, $4)
			RETURNING store_id, vendor_id, display_name, location_text, status, created_at`,
			req.VendorID, req.DisplayName, req.LocationText, models.StoreStatusActive).Scan(
			&store.ID, &store.VendorID, &store.DisplayName, &store.LocationText,
			&store.Status, &store.CreatedAt); err != nil {
			return err
		}

		accountID, err := s.accounts.CreateStoreRevenue(tx, store.ID)
		if err != nil {
			return err
		}
		store.RevenueAccountID = accountID

		_, err = tx.Exec(`UPDATE stores SET revenue_account_id = $1 WHERE store_id = $2`,
			accountID, store.ID)
		return err
	})
	if err != nil {
		log.Printf("[STORE] Failed to create store for vendor %d: %v", req.VendorID, err)
		SendErrorResponse(w, "Failed to create store", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[STORE] Created store %d (revenue account %d)", store.ID, store.RevenueAccountID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(store)
}

// HandleListStores returns active stores, optionally filtered by name
// @Summary List stores
// @Tags stores
// @Produce json
// @Param q query string false "Name filter (substring match)"
// @Success 200 {object} object{stores=[]models.Store}
// @Router /stores [get]
func (s *StoreService) HandleListStores(w http.ResponseWriter, r *http.Request) {
	query := `
		SELECT store_id, vendor_id, display_name, location_text, status, revenue_account_id, created_at
		FROM stores
		WHERE status = $1`
	args := []any{models.StoreStatusActive}

	if q := r.URL.Query().Get("q"); q != "" {
		query += ` AND display_name ILIKE $2`
		args = append(args, "%"+q+"%")
	}
	query += ` ORDER BY display_name`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		log.Printf("[STORE] Failed to list stores: %v", err)
		SendErrorResponse(w, "Failed to fetch stores", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	stores := []models.Store{}
	for rows.Next() {
		var store models.Store
		if err := rows.Scan(&store.ID, &store.VendorID, &store.DisplayName,
			&store.LocationText, &store.Status, &store.RevenueAccountID, &store.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch stores", http.StatusInternalServerError, nil)
			return
		}
		stores = append(stores, store)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to fetch stores", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "stores": stores})
}

// HandleGetStore returns one store with its items
// @Summary Store detail
// @Tags stores
// @Produce json
// @Param id path int true "Store ID"
// @Success 200 {object} object{store=models.Store,items=[]models.StoreItem}
// @Failure 404 {object} ErrorResponse
// @Router /stores/{id} [get]
func (s *StoreService) HandleGetStore(w http.ResponseWriter, r *http.Request) {
	storeID, err := storeIDParam(r)
	if err != nil {
		SendErrorResponse(w, "Invalid store id", http.StatusBadRequest, nil)
		return
	}

	var store models.Store
	err = s.db.QueryRow(`
		SELECT store_id, vendor_id, display_name, location_text, status, revenue_account_id, created_at
		FROM stores
		WHERE store_id = $1`, storeID).Scan(
		&store.ID, &store.VendorID, &store.DisplayName, &store.LocationText,
		&store.Status, &store.RevenueAccountID, &store.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			SendErrorResponse(w, "Store not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Failed to fetch store", http.StatusInternalServerError, nil)
		return
	}

	items, err := s.listItems(storeID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch store", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "store": store, "items": items})
}

// HandleDeactivateStore marks a store inactive so new payments are refused
// @Summary Deactivate store
// @Tags stores
// @Produce json
// @Param id path int true "Store ID"
// @Success 200 {object} object{success=bool}
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /stores/{id}/deactivate [put]
func (s *StoreService) HandleDeactivateStore(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	storeID, err := storeIDParam(r)
	if err != nil {
		SendErrorResponse(w, "Invalid store id", http.StatusBadRequest, nil)
		return
	}

	result, err := s.db.Exec(`
		UPDATE stores
		SET status = $1
		FROM vendors
		WHERE stores.store_id = $2
		  AND stores.vendor_id = vendors.vendor_id
		  AND vendors.owner_user_id = $3`,
		models.StoreStatusInactive, storeID, userID)
	if err != nil {
		SendErrorResponse(w, "Failed to deactivate store", http.StatusInternalServerError, nil)
		return
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		SendErrorResponse(w, "Store not found or not owned by caller", http.StatusNotFound, nil)
		return
	}

	log.Printf("[STORE] Store %d deactivated by user %d", storeID, userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

// HandleAddStoreItem adds a menu item to a store the caller owns
// @Summary Add store item
// @Tags stores
// @Accept json
// @Produce json
// @Param id path int true "Store ID"
// @Param item body addStoreItemRequest true "Item details"
// @Success 201 {object} models.StoreItem
// @Failure 403 {object} ErrorResponse
// @Router /stores/{id}/items [post]
func (s *StoreService) HandleAddStoreItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	storeID, err := storeIDParam(r)
	if err != nil {
		SendErrorResponse(w, "Invalid store id", http.StatusBadRequest, nil)
		return
	}

	var req addStoreItemRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	owned, err := s.ownsStore(userID, storeID)
	if err != nil {
		SendErrorResponse(w, "Failed to add item", http.StatusInternalServerError, nil)
		return
	}
	if !owned {
		SendErrorResponse(w, "Not the store owner", http.StatusForbidden, nil)
		return
	}

	var item models.StoreItem
	err = s.db.QueryRow(`
		INSERT INTO store_items (store_id, name, price_minor, image_url, available)
		VALUES ($1, $2, $3, $4, true)
		RETURNING item_id, store_id, name, price_minor, image_url, available, created_at`,
		storeID, req.Name, req.PriceMinor, req.ImageURL).Scan(
		&item.ID, &item.StoreID, &item.Name, &item.PriceMinor,
		&item.ImageURL, &item.Available, &item.CreatedAt)
	if err != nil {
		log.Printf("[STORE] Failed to add item to store %d: %v", storeID, err)
		SendErrorResponse(w, "Failed to add item", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(item)
}

// HandleListStoreItems returns the available items of a store
// @Summary List store items
// @Tags stores
// @Produce json
// @Param id path int true "Store ID"
// @Success 200 {object} object{items=[]models.StoreItem}
// @Router /stores/{id}/items [get]
func (s *StoreService) HandleListStoreItems(w http.ResponseWriter, r *http.Request) {
	storeID, err := storeIDParam(r)
	if err != nil {
		SendErrorResponse(w, "Invalid store id", http.StatusBadRequest, nil)
		return
	}

	items, err := s.listItems(storeID)
	if err != nil {
		log.Printf("[STORE] Failed to list items for store %d: %v", storeID, err)
		SendErrorResponse(w, "Failed to fetch items", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "items": items})
}

func (s *StoreService) listItems(storeID int64) ([]models.StoreItem, error) {
	rows, err := s.db.Query(`
		SELECT item_id, store_id, name, price_minor, image_url, available, created_at
		FROM store_items
		WHERE store_id = $1 AND available = true
		ORDER BY name`, storeID)
	if err != nil {
		return nil, fmt.Errorf("list items for store %d: %w", storeID, err)
	}
	defer rows.Close()

	items := []models.StoreItem{}
	for rows.Next() {
		var item models.StoreItem
		if err := rows.Scan(&item.ID, &item.StoreID, &item.Name, &item.PriceMinor,
			&item.ImageURL, &item.Available, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *StoreService) ownsStore(userID, storeID int64) (bool, error) {
	var owned bool
	err := s.db.QueryRow(`
		SELECT EXISTS(
			SELECT 1
			FROM stores st
			JOIN vendors v ON v.vendor_id = st.vendor_id
			WHERE st.store_id = $1 AND v.owner_user_id = $2
		)`, storeID, userID).Scan(&owned)
	return owned, err
}

func storeIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
