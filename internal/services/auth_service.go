package services

import (
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/campuspay/backend/internal/database"
	"github.com/campuspay/backend/internal/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"
)

// AuthService owns registration, login and session revocation. The actual
// identity verification story (campus SSO, OTP delivery) sits behind the
// identity provider; only the thin local glue lives here.
type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	accounts  *AccountStore
	validator *ValidationHelper
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"jane@campus.edu"`
	Password string `json:"password" validate:"required,min=6" example:"password123"`
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email" example:"jane@campus.edu"`
	Password string `json:"password" validate:"required,min=6" example:"password123"`
	FullName string `json:"fullName" validate:"required,min=2" example:"Jane Doe"`
	Role     string `json:"role" validate:"omitempty,oneof=user vendor" example:"user"`
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token         string `json:"token,omitempty"`
	UserID        int64  `json:"userId"`
	FullName      string `json:"fullName"`
	Role          string `json:"role"`
	PaymentHandle string `json:"paymentHandle"`
	WalletBalance int64  `json:"walletBalance"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		accounts:  NewAccountStore(db),
		validator: NewValidationHelper(),
	}
}

// Register handles user registration
// @Summary Register a new user
// @Description Create a user and a zero-balance wallet account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 201 {object} AuthResponse "Registration successful"
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	var req RegisterRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		log.Printf("[AUTH] Registration validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var exists bool
	if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, req.Email).Scan(&exists); err != nil {
		SendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}
	if exists {
		SendErrorResponse(w, "User already exists", http.StatusConflict, nil)
		return
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		SendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}

	role := req.Role
	if role == "" {
		role = "user"
	}
	handle := generatePaymentHandle(req.Email)

	var userID int64
	err = database.WithTx(r.Context(), s.db, func(tx *sql.Tx) error {
		if err := tx.QueryRow(`
			INSERT INTO users (email, password_hash, full_name, role, payment_handle)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING user_id`,
			req.Email, passwordHash, req.FullName, role, handle).Scan(&userID); err != nil {
			return err
		}
		// Wallet account opens with the user, zero balance.
		_, err := s.accounts.CreateUserWallet(tx, userID)
		return err
	})
	if err != nil {
		log.Printf("[AUTH] Registration failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Registered user %d (%s)", userID, handle)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": "User registered successfully",
	})
}

// Login handles user login
// @Summary Log in
// @Description Verify credentials and issue a session token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 401 {object} ErrorResponse
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var userID int64
	var passwordHash, fullName, role, handle string
	err := s.db.QueryRow(`
		SELECT user_id, password_hash, full_name, role, payment_handle
		FROM users
		WHERE email = $1`, req.Email).Scan(&userID, &passwordHash, &fullName, &role, &handle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
			return
		}
		SendErrorResponse(w, "Login failed", http.StatusInternalServerError, nil)
		return
	}

	if !verifyPassword(req.Password, passwordHash) {
		log.Printf("[AUTH] Failed login for %s from IP: %s", req.Email, r.RemoteAddr)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, err := generateJWT(userID)
	if err != nil {
		SendErrorResponse(w, "Login failed", http.StatusInternalServerError, nil)
		return
	}

	wallet, err := s.accounts.GetByUserID(userID)
	var balance int64
	if err == nil {
		balance = wallet.Balance
	}

	_, _ = s.db.Exec(`UPDATE users SET last_login = $1 WHERE user_id = $2`, time.Now(), userID)

	log.Printf("[AUTH] User %d logged in", userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{
		Token:         token,
		UserID:        userID,
		FullName:      fullName,
		Role:          role,
		PaymentHandle: handle,
		WalletBalance: balance,
	})
}

// Logout revokes the presented token
// @Summary Log out
// @Tags auth
// @Success 200 {object} object{success=bool}
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		SendErrorResponse(w, "Authorization header required", http.StatusBadRequest, nil)
		return
	}

	if s.redis != nil {
		expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
		if err := s.redis.Set(r.Context(), "revoked:"+parts[1], "1", expiry).Err(); err != nil {
			log.Printf("[AUTH] Failed to revoke token: %v", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

// GetUserAccount returns the caller's profile and wallet balance
// @Summary Account summary
// @Tags auth
// @Produce json
// @Success 200 {object} AuthResponse
// @Failure 404 {object} ErrorResponse
// @Router /auth/account [get]
func (s *AuthService) GetUserAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var fullName, role, handle string
	err := s.db.QueryRow(`
		SELECT full_name, role, payment_handle
		FROM users
		WHERE user_id = $1`, userID).Scan(&fullName, &role, &handle)
	if err != nil {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}

	wallet, err := s.accounts.GetByUserID(userID)
	var balance int64
	if err == nil {
		balance = wallet.Balance
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{
		UserID:        userID,
		FullName:      fullName,
		Role:          role,
		PaymentHandle: handle,
		WalletBalance: balance,
	})
}

func generateJWT(userID int64) (string, error) {
	viper.SetDefault("jwt.expiry_hours", 168)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	setArgon2Defaults()

	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	setArgon2Defaults()

	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return string(hash) == string(computedHash)
}

func setArgon2Defaults() {
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)
}

// generatePaymentHandle builds a UPI-style handle from the email local part,
// e.g. jane4821.campus.
func generatePaymentHandle(email string) string {
	local := strings.SplitN(email, "@", 2)[0]
	return fmt.Sprintf("%s%d.campus", local, rand.Intn(10000))
}
