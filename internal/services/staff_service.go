package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/campuspay/backend/internal/middleware"
	"github.com/campuspay/backend/internal/models"
)

// StaffService serves the campus staff directory: a public listing of staff
// with their payment handles, and a self-service profile update.
type StaffService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewStaffService(db *sql.DB) *StaffService {
	return &StaffService{db: db, validator: NewValidationHelper()}
}

// HandleDirectory lists staff with their payment handles
// @Summary Staff directory
// @Tags staff
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{staff=[]models.StaffProfile}
// @Router /staff [get]
func (s *StaffService) HandleDirectory(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(`
		SELECT u.user_id, u.full_name, u.payment_handle, sp.phone, sp.experience, sp.image_url
		FROM staff_profiles sp
		JOIN users u ON u.user_id = sp.user_id
		ORDER BY u.full_name`)
	if err != nil {
		log.Printf("[STAFF] Failed to fetch directory: %v", err)
		SendErrorResponse(w, "Failed to fetch staff", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	staff := []models.StaffProfile{}
	for rows.Next() {
		var p models.StaffProfile
		if err := rows.Scan(&p.UserID, &p.FullName, &p.PaymentHandle, &p.Phone, &p.Experience, &p.ImageURL); err != nil {
			SendErrorResponse(w, "Failed to fetch staff", http.StatusInternalServerError, nil)
			return
		}
		staff = append(staff, p)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to fetch staff", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "staff": staff})
}

// HandleUpdateDetails upserts the caller's staff profile
// @Summary Update staff details
// @Tags staff
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{phone=string,experience=string,imageUrl=string} true "Profile details"
// @Success 200 {object} object{success=bool}
// @Failure 400 {object} ErrorResponse
// @Router /staff/me [put]
func (s *StaffService) HandleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Phone      string `json:"phone" validate:"omitempty,max=20"`
		Experience string `json:"experience" validate:"omitempty,max=500"`
		ImageURL   string `json:"imageUrl" validate:"omitempty,url"`
	}
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	_, err := s.db.Exec(`
		INSERT INTO staff_profiles (user_id, phone, experience, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET phone = EXCLUDED.phone,
		    experience = EXCLUDED.experience,
		    image_url = EXCLUDED.image_url,
		    updated_at = EXCLUDED.updated_at`,
		userID, req.Phone, req.Experience, req.ImageURL, time.Now())
	if err != nil {
		log.Printf("[STAFF] Failed to update profile for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to update details", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[STAFF] Profile updated for user %d", userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}
