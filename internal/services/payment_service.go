package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/campuspay/backend/internal/database"
	"github.com/campuspay/backend/internal/middleware"
	"github.com/campuspay/backend/internal/models"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// HistoryPageSize is the fixed page size for wallet transaction history.
const HistoryPageSize = 20

// PaymentService coordinates a money movement end to end: validate, lock
// accounts in ascending id order, write the transaction row through the
// idempotency guard, append the ledger pair, update cached balances and
// finalize the status, all inside one unit of work.
type PaymentService struct {
	db           *sql.DB
	accounts     *AccountStore
	ledger       *LedgerService
	transactions *TransactionStore
	validator    *ValidationHelper
	currency     string
}

func NewPaymentService(db *sql.DB) *PaymentService {
	viper.SetDefault("wallet.currency", "INR")

	return &PaymentService{
		db:           db,
		accounts:     NewAccountStore(db),
		ledger:       NewLedgerService(db),
		transactions: NewTransactionStore(db),
		validator:    NewValidationHelper(),
		currency:     viper.GetString("wallet.currency"),
	}
}

// TransferInput describes one wallet transfer. Exactly one of ToAccountID,
// ToUserID or ToStoreID selects the credit side.
type TransferInput struct {
	FromAccountID  int64
	ToAccountID    *int64
	ToUserID       *int64
	ToStoreID      *int64
	Amount         int64
	IdempotencyKey string
	Description    string
}

// TransferResult is returned to the caller after a completed transfer.
type TransferResult struct {
	TransactionID string `json:"transactionId"`
	NewBalance    int64  `json:"newBalance"`
}

// Transfer moves money from a user wallet to another wallet or a store
// revenue account. The whole movement is one atomic unit of work: any
// failure after locks are taken rolls back the transaction row, ledger
// entries and balance updates together.
func (ps *PaymentService) Transfer(ctx context.Context, in TransferInput) (*TransferResult, error) {
	if in.Amount <= 0 || in.IdempotencyKey == "" {
		return nil, ErrInvalidInput
	}

	toAccountID, storeID, err := ps.resolveCreditSide(in)
	if err != nil {
		return nil, err
	}

	if toAccountID == in.FromAccountID {
		return nil, ErrSelfTransferNotAllowed
	}

	// Pre-lock validation: both sides must exist and be active. Balance is
	// re-checked under lock.
	fromAccount, err := ps.accounts.Get(in.FromAccountID)
	if err != nil {
		return nil, err
	}
	if fromAccount.Status != models.AccountStatusActive {
		return nil, ErrAccountNotFound
	}
	toAccount, err := ps.accounts.Get(toAccountID)
	if err != nil {
		return nil, err
	}
	if toAccount.Status != models.AccountStatusActive {
		return nil, ErrAccountNotFound
	}
	if fromAccount.Balance < in.Amount {
		return nil, ErrInsufficientFunds
	}

	transactionID := uuid.NewString()
	var newBalance int64

	err = database.WithTx(ctx, ps.db, func(tx *sql.Tx) error {
		from, to, err := ps.accounts.LockPair(tx, in.FromAccountID, toAccountID)
		if err != nil {
			return err
		}

		// Re-check under lock: a concurrent debit may have drained the
		// wallet between validation and lock acquisition.
		if from.Balance < in.Amount {
			return ErrInsufficientFunds
		}

		record := &models.Transaction{
			ID:             transactionID,
			Kind:           models.TransactionKindDebit,
			FromAccountID:  &from.ID,
			ToAccountID:    &to.ID,
			StoreID:        storeID,
			Amount:         in.Amount,
			Currency:       ps.currency,
			IdempotencyKey: in.IdempotencyKey,
			Description:    in.Description,
		}
		if err := ps.transactions.Create(tx, record); err != nil {
			return err
		}

		if err := ps.ledger.AppendPair(tx, transactionID,
			from.OwnerKind, from.ID, to.OwnerKind, to.ID, in.Amount); err != nil {
			return err
		}

		newBalance, err = ps.accounts.AdjustBalance(tx, from.ID, -in.Amount)
		if err != nil {
			return err
		}
		if _, err := ps.accounts.AdjustBalance(tx, to.ID, in.Amount); err != nil {
			return err
		}

		return ps.transactions.MarkCompleted(tx, transactionID)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateRequest) {
			log.Printf("[TRANSFER] Duplicate idempotency key %s from account %d", in.IdempotencyKey, in.FromAccountID)
		}
		return nil, err
	}

	log.Printf("[TRANSFER] Completed %s: account %d -> %d, amount %d", transactionID, in.FromAccountID, toAccountID, in.Amount)
	return &TransferResult{TransactionID: transactionID, NewBalance: newBalance}, nil
}

// resolveCreditSide maps the caller's target (account, user or store) to the
// account that receives the credit leg.
func (ps *PaymentService) resolveCreditSide(in TransferInput) (int64, *int64, error) {
	targets := 0
	for _, set := range []bool{in.ToAccountID != nil, in.ToUserID != nil, in.ToStoreID != nil} {
		if set {
			targets++
		}
	}
	if targets != 1 {
		return 0, nil, ErrInvalidInput
	}

	switch {
	case in.ToAccountID != nil:
		return *in.ToAccountID, nil, nil
	case in.ToUserID != nil:
		account, err := ps.accounts.GetByUserID(*in.ToUserID)
		if err != nil {
			return 0, nil, err
		}
		return account.ID, nil, nil
	default:
		store, err := ps.fetchStore(*in.ToStoreID)
		if err != nil {
			return 0, nil, err
		}
		if store.Status != models.StoreStatusActive {
			return 0, nil, ErrStoreInactive
		}
		return store.RevenueAccountID, &store.ID, nil
	}
}

func (ps *PaymentService) fetchStore(storeID int64) (*models.Store, error) {
	var store models.Store
	err := ps.db.QueryRow(`
		SELECT store_id, vendor_id, display_name, location_text, status, revenue_account_id, created_at
		FROM stores
		WHERE store_id = $1`, storeID).Scan(
		&store.ID, &store.VendorID, &store.DisplayName, &store.LocationText,
		&store.Status, &store.RevenueAccountID, &store.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStoreNotFound
		}
		return nil, fmt.Errorf("fetch store %d: %w", storeID, err)
	}

	return &store, nil
}

// HTTP handlers

type transferRequest struct {
	ToAccountID    *int64 `json:"toAccountId"`
	ToUserID       *int64 `json:"toUserId"`
	ToStoreID      *int64 `json:"toStoreId"`
	Amount         int64  `json:"amountMinorUnits" validate:"required,gt=0"`
	IdempotencyKey string `json:"idempotencyKey" validate:"required,max=64"`
	Description    string `json:"description" validate:"max=200"`
}

// HandleTransfer processes a wallet transfer for the authenticated user
// @Summary Transfer money
// @Description Move money from the caller's wallet to another user or store
// @Tags payments
// @Accept json
// @Produce json
// @Param transfer body transferRequest true "Transfer details"
// @Success 200 {object} TransferResult
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /payments/transfer [post]
func (ps *PaymentService) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req transferRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := ps.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	wallet, err := ps.accounts.GetByUserID(userID)
	if err != nil {
		SendPaymentError(w, err)
		return
	}

	result, err := ps.Transfer(r.Context(), TransferInput{
		FromAccountID:  wallet.ID,
		ToAccountID:    req.ToAccountID,
		ToUserID:       req.ToUserID,
		ToStoreID:      req.ToStoreID,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
		Description:    req.Description,
	})
	if err != nil {
		SendPaymentError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":       true,
		"transactionId": result.TransactionID,
		"newBalance":    result.NewBalance,
	})
}

// HandleHistory returns one page of the caller's transaction history
// @Summary Wallet transaction history
// @Description Newest-first page of 20 transactions with counterparty names
// @Tags payments
// @Produce json
// @Param page query int false "Page number (default 1)"
// @Success 200 {object} object{transactions=[]models.TransactionHistoryItem,page=int}
// @Failure 500 {object} ErrorResponse
// @Router /wallet/transactions [get]
func (ps *PaymentService) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	page := 1
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	wallet, err := ps.accounts.GetByUserID(userID)
	if err != nil {
		SendPaymentError(w, err)
		return
	}

	items, err := ps.transactions.History(wallet.ID, page, HistoryPageSize)
	if err != nil {
		log.Printf("[TRANSFER] Failed to fetch history for account %d: %v", wallet.ID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":      true,
		"transactions": items,
		"page":         page,
		"pageSize":     HistoryPageSize,
	})
}

// decodeJSONBody is the shared strict request decoder: size-capped, unknown
// fields rejected, exactly one JSON object allowed.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("request body must only contain a single JSON object")
	}

	return nil
}
