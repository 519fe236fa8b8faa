package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campuspay/backend/internal/middleware"
	"github.com/campuspay/backend/internal/services"
)

type QRHandler struct {
	db        *sql.DB
	service   *services.QRService
	validator *services.ValidationHelper
}

func NewQRHandler(db *sql.DB, service *services.QRService) *QRHandler {
	return &QRHandler{
		db:        db,
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// ReceiveQR returns the caller's permanent receive code
// @Summary Static receive QR
// @Description Render the caller's payment handle as a QR image
// @Tags QR
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{qrImage=string,paymentHandle=string}
// @Failure 401 {object} services.ErrorResponse
// @Router /qr/receive-code [post]
func (h *QRHandler) ReceiveQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var handle string
	if err := h.db.QueryRow(`SELECT payment_handle FROM users WHERE user_id = $1`, userID).Scan(&handle); err != nil {
		services.SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}

	qrImage, err := h.service.GenerateStaticQR(handle)
	if err != nil {
		services.SendErrorResponse(w, "Failed to generate QR", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":       true,
		"qrImage":       qrImage,
		"paymentHandle": handle,
	})
}

// GenerateQR creates a single-use payment QR with a pinned amount
// @Summary Generate payment QR
// @Description Create a short-lived single-use payment token and QR image
// @Tags QR
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=int64} true "QR generation request"
// @Success 200 {object} object{qrToken=string,qrImage=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /qr/payment-token [post]
func (h *QRHandler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount int64 `json:"amount" validate:"required,gt=0"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	token, qrImage, err := h.service.GenerateDynamicQR(r.Context(), services.QRPayload{
		UserID: userID,
		Amount: req.Amount,
	})
	if err != nil {
		services.SendErrorResponse(w, "Failed to generate QR", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"qrToken": token,
		"qrImage": qrImage,
	})
}

// ResolveQR consumes a scanned payment token
// @Summary Resolve payment QR
// @Description Resolve a scanned token to its payee and amount; each token resolves once
// @Tags QR
// @Produce json
// @Security BearerAuth
// @Param token path string true "Payment token"
// @Success 200 {object} services.QRPayload
// @Failure 400 {object} services.ErrorResponse
// @Failure 410 {object} services.ErrorResponse
// @Router /qr/payment-token/{token} [get]
func (h *QRHandler) ResolveQR(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		services.SendErrorResponse(w, "Token required", http.StatusBadRequest, nil)
		return
	}

	payload, err := h.service.ResolveQR(r.Context(), token)
	if err != nil {
		if errors.Is(err, services.ErrQRInvalid) {
			services.SendErrorResponse(w, "Invalid or expired QR code", http.StatusGone, nil)
			return
		}
		services.SendErrorResponse(w, "Failed to resolve QR", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"payload": payload,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}
