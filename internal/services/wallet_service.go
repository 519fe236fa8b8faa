package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/campuspay/backend/internal/database"
	"github.com/campuspay/backend/internal/middleware"
	"github.com/campuspay/backend/internal/models"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// WalletService handles the external funding flows: adding money through the
// card processor and withdrawing by reversing prior funding captures. All
// adapter calls happen outside any held account lock; only the resulting
// ledger and balance updates run inside a unit of work.
type WalletService struct {
	db                *sql.DB
	accounts          *AccountStore
	ledger            *LedgerService
	transactions      *TransactionStore
	adapter           FundingAdapter
	validator         *ValidationHelper
	currency          string
	platformAccountID int64
}

func NewWalletService(db *sql.DB, adapter FundingAdapter) *WalletService {
	viper.SetDefault("wallet.currency", "INR")
	viper.SetDefault("wallet.platform_account_id", 1)

	return &WalletService{
		db:                db,
		accounts:          NewAccountStore(db),
		ledger:            NewLedgerService(db),
		transactions:      NewTransactionStore(db),
		adapter:           adapter,
		validator:         NewValidationHelper(),
		currency:          viper.GetString("wallet.currency"),
		platformAccountID: viper.GetInt64("wallet.platform_account_id"),
	}
}

// AddMoneyIntentResult is returned when a funding intent is created.
type AddMoneyIntentResult struct {
	TransactionID string `json:"transactionId"`
	IntentRef     string `json:"fundingIntentRef"`
	ClientSecret  string `json:"clientSecret"`
}

// CreateAddMoneyIntent registers a capture intent with the processor and
// records a pending ADD_MONEY transaction pointing at it. No balance or
// ledger change happens until the capture is confirmed.
func (ws *WalletService) CreateAddMoneyIntent(ctx context.Context, userID, amount int64) (*AddMoneyIntentResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidInput
	}

	wallet, err := ws.accounts.GetByUserID(userID)
	if err != nil {
		return nil, err
	}

	intent, err := ws.adapter.CreateIntent(ctx, amount, ws.currency)
	if err != nil {
		return nil, err
	}

	transactionID := uuid.NewString()
	err = database.WithTx(ctx, ws.db, func(tx *sql.Tx) error {
		return ws.transactions.Create(tx, &models.Transaction{
			ID:               transactionID,
			Kind:             models.TransactionKindAddMoney,
			ToAccountID:      &wallet.ID,
			Amount:           amount,
			Currency:         ws.currency,
			IdempotencyKey:   "fund-" + intent.IntentRef,
			FundingIntentRef: intent.IntentRef,
			Description:      "Add money via card",
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[WALLET] Created add-money intent %s for user %d, amount %d", intent.IntentRef, userID, amount)
	return &AddMoneyIntentResult{
		TransactionID: transactionID,
		IntentRef:     intent.IntentRef,
		ClientSecret:  intent.ClientSecret,
	}, nil
}

// ConfirmResult is returned after a funding confirmation or withdrawal.
type ConfirmResult struct {
	TransactionID string `json:"transactionId"`
	NewBalance    int64  `json:"newBalance"`
}

// ConfirmFunding verifies the capture with the processor, then credits the
// wallet inside one unit of work. The pending transaction row is locked so
// two concurrent confirms of the same intent cannot both credit.
func (ws *WalletService) ConfirmFunding(ctx context.Context, userID int64, intentRef string) (*ConfirmResult, error) {
	if intentRef == "" {
		return nil, ErrInvalidInput
	}

	wallet, err := ws.accounts.GetByUserID(userID)
	if err != nil {
		return nil, err
	}

	// Adapter call first, outside any lock.
	succeeded, err := ws.adapter.ConfirmIntent(ctx, intentRef)
	if err != nil {
		return nil, err
	}
	if !succeeded {
		return nil, ErrExternalAdapterFailure
	}

	var result ConfirmResult
	err = database.WithTx(ctx, ws.db, func(tx *sql.Tx) error {
		pending, err := ws.transactions.GetByFundingIntent(tx, intentRef)
		if err != nil {
			return err
		}
		if pending.ToAccountID == nil || *pending.ToAccountID != wallet.ID {
			return ErrTransactionNotFound
		}
		if pending.Status != models.TransactionStatusPending {
			return ErrAlreadyConfirmed
		}

		walletAcct, platform, err := ws.accounts.LockPair(tx, wallet.ID, ws.platformAccountID)
		if err != nil {
			return err
		}

		if err := ws.ledger.AppendPair(tx, pending.ID,
			platform.OwnerKind, platform.ID, walletAcct.OwnerKind, walletAcct.ID, pending.Amount); err != nil {
			return err
		}

		if _, err := ws.accounts.AdjustBalance(tx, platform.ID, -pending.Amount); err != nil {
			return err
		}
		newBalance, err := ws.accounts.AdjustBalance(tx, walletAcct.ID, pending.Amount)
		if err != nil {
			return err
		}

		result = ConfirmResult{TransactionID: pending.ID, NewBalance: newBalance}
		return ws.transactions.MarkCompleted(tx, pending.ID)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[WALLET] Confirmed funding %s for user %d", intentRef, userID)
	return &result, nil
}

// reversalPlanItem is one funding record consumption chosen by the greedy
// withdrawal selection.
type reversalPlanItem struct {
	IntentRef string
	Amount    int64
}

// planReversals selects funding records to reverse for a withdrawal,
// consuming from the largest remaining record first (records arrive sorted
// by amount descending, then recency). Returns ErrNoFundsForWithdrawal when
// the records cannot cover the amount even though the cached balance might;
// the caller surfaces that edge as-is.
func planReversals(records []models.FundingRecord, amount int64) ([]reversalPlanItem, error) {
	remaining := amount
	plan := []reversalPlanItem{}

	for _, record := range records {
		if remaining <= 0 {
			break
		}
		take := record.Remaining
		if take > remaining {
			take = remaining
		}
		plan = append(plan, reversalPlanItem{IntentRef: record.FundingIntentRef, Amount: take})
		remaining -= take
	}

	if remaining > 0 {
		return nil, ErrNoFundsForWithdrawal
	}

	return plan, nil
}

// WithdrawResult is returned after a completed withdrawal.
type WithdrawResult struct {
	TransactionID string `json:"transactionId"`
	NewBalance    int64  `json:"newBalance"`
	ReversalsUsed int    `json:"reversalsUsed"`
}

// Withdraw debits the wallet by reversing prior funding captures,
// largest-first. The pending transaction row carrying the client key is
// committed before any processor call, so a retried request with a used key
// aborts with zero external effects. Processor reversals then run outside any
// held lock; the single debit, the ledger pair and the reversal records
// commit in one final unit of work.
func (ws *WalletService) Withdraw(ctx context.Context, userID, amount int64, idempotencyKey string) (*WithdrawResult, error) {
	if amount <= 0 || idempotencyKey == "" {
		return nil, ErrInvalidInput
	}

	wallet, err := ws.accounts.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if wallet.Balance < amount {
		return nil, ErrInsufficientFunds
	}

	records, err := ws.transactions.FundingRecords(wallet.ID)
	if err != nil {
		return nil, err
	}
	plan, err := planReversals(records, amount)
	if err != nil {
		return nil, err
	}

	transactionID := uuid.NewString()
	platformID := ws.platformAccountID

	err = database.WithTx(ctx, ws.db, func(tx *sql.Tx) error {
		return ws.transactions.Create(tx, &models.Transaction{
			ID:             transactionID,
			Kind:           models.TransactionKindWithdraw,
			FromAccountID:  &wallet.ID,
			ToAccountID:    &platformID,
			Amount:         amount,
			Currency:       ws.currency,
			IdempotencyKey: idempotencyKey,
			Description:    "Withdraw to card",
		})
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateRequest) {
			log.Printf("[WALLET] Duplicate withdrawal key %s for user %d, no reversals executed", idempotencyKey, userID)
		}
		return nil, err
	}

	// Execute processor reversals outside any held lock. A mid-plan failure
	// leaves earlier reversals standing on the processor side with no local
	// debit; the pending row is marked failed and the discrepancy is logged
	// for reconciliation.
	type executedReversal struct {
		IntentRef  string
		AdapterRef string
		Amount     int64
	}
	executed := make([]executedReversal, 0, len(plan))
	for _, item := range plan {
		adapterRef, err := ws.adapter.ReverseIntent(ctx, item.IntentRef, item.Amount)
		if err != nil {
			log.Printf("[WALLET] Reversal failed after %d of %d legs for user %d: %v",
				len(executed), len(plan), userID, err)
			ws.abandonWithdrawal(ctx, transactionID)
			return nil, err
		}
		executed = append(executed, executedReversal{IntentRef: item.IntentRef, AdapterRef: adapterRef, Amount: item.Amount})
	}

	var newBalance int64
	err = database.WithTx(ctx, ws.db, func(tx *sql.Tx) error {
		walletAcct, platform, err := ws.accounts.LockPair(tx, wallet.ID, ws.platformAccountID)
		if err != nil {
			return err
		}
		if walletAcct.Balance < amount {
			return ErrInsufficientFunds
		}

		// Re-validate record capacity under the lock: a concurrent
		// withdrawal may have consumed the same records since planning.
		capacity, err := ws.transactions.FundingCapacity(tx, walletAcct.ID)
		if err != nil {
			return err
		}
		for _, rev := range executed {
			if capacity[rev.IntentRef] < rev.Amount {
				return ErrNoFundsForWithdrawal
			}
			capacity[rev.IntentRef] -= rev.Amount
		}

		for _, rev := range executed {
			if err := ws.transactions.RecordReversal(tx, transactionID, rev.IntentRef, rev.AdapterRef, rev.Amount); err != nil {
				return err
			}
		}

		if err := ws.ledger.AppendPair(tx, transactionID,
			walletAcct.OwnerKind, walletAcct.ID, platform.OwnerKind, platform.ID, amount); err != nil {
			return err
		}

		newBalance, err = ws.accounts.AdjustBalance(tx, walletAcct.ID, -amount)
		if err != nil {
			return err
		}
		if _, err := ws.accounts.AdjustBalance(tx, platform.ID, amount); err != nil {
			return err
		}

		return ws.transactions.MarkCompleted(tx, transactionID)
	})
	if err != nil {
		ws.abandonWithdrawal(ctx, transactionID)
		return nil, err
	}

	log.Printf("[WALLET] Withdrawal %s for user %d: amount %d over %d reversals", transactionID, userID, amount, len(executed))
	return &WithdrawResult{TransactionID: transactionID, NewBalance: newBalance, ReversalsUsed: len(executed)}, nil
}

// abandonWithdrawal moves a pending withdrawal to failed after processor
// reversals may already have run. Best effort: the row transition is its own
// unit of work and a failure here only loses the marker, not money.
func (ws *WalletService) abandonWithdrawal(ctx context.Context, transactionID string) {
	err := database.WithTx(ctx, ws.db, func(tx *sql.Tx) error {
		return ws.transactions.MarkFailed(tx, transactionID)
	})
	if err != nil {
		log.Printf("[WALLET] Could not mark withdrawal %s failed: %v", transactionID, err)
	}
}

// HTTP handlers

type addMoneyIntentRequest struct {
	Amount int64 `json:"amountMinorUnits" validate:"required,gt=0"`
}

// HandleCreateAddMoneyIntent creates a card capture intent
// @Summary Create add-money intent
// @Description Register a card capture with the processor and a pending ADD_MONEY transaction
// @Tags wallet
// @Accept json
// @Produce json
// @Param intent body addMoneyIntentRequest true "Amount in minor units"
// @Success 200 {object} AddMoneyIntentResult
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /wallet/add-money/intent [post]
func (ws *WalletService) HandleCreateAddMoneyIntent(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req addMoneyIntentRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := ws.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := ws.CreateAddMoneyIntent(r.Context(), userID, req.Amount)
	if err != nil {
		SendPaymentError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":          true,
		"transactionId":    result.TransactionID,
		"fundingIntentRef": result.IntentRef,
		"clientSecret":     result.ClientSecret,
	})
}

type confirmFundingRequest struct {
	IntentRef string `json:"fundingIntentRef" validate:"required,max=128"`
}

// HandleConfirmFunding confirms a card capture and credits the wallet
// @Summary Confirm add-money
// @Description Verify the capture with the processor and credit the wallet
// @Tags wallet
// @Accept json
// @Produce json
// @Param confirm body confirmFundingRequest true "Funding intent reference"
// @Success 200 {object} ConfirmResult
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /wallet/add-money/confirm [post]
func (ws *WalletService) HandleConfirmFunding(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req confirmFundingRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := ws.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := ws.ConfirmFunding(r.Context(), userID, req.IntentRef)
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

// HandleFundingRecords lists confirmed funding records with remaining capacity
// @Summary List funding records
// @Description Confirmed ADD_MONEY records with the amount still reversible
// @Tags wallet
// @Produce json
// @Success 200 {object} object{records=[]models.FundingRecord}
// @Router /wallet/add-money/records [get]
func (ws *WalletService) HandleFundingRecords(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	wallet, err := ws.accounts.GetByUserID(userID)
	if err != nil {
		SendPaymentError(w, err)
		return
	}

	records, err := ws.transactions.FundingRecords(wallet.ID)
	if err != nil {
		log.Printf("[WALLET] Failed to fetch funding records for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch funding records", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"records": records,
	})
}

type withdrawRequest struct {
	Amount         int64  `json:"amountMinorUnits" validate:"required,gt=0"`
	IdempotencyKey string `json:"idempotencyKey" validate:"required,max=64"`
}

// HandleWithdraw withdraws money by reversing funding captures
// @Summary Withdraw money
// @Description Debit the wallet by reversing prior card captures, largest-first
// @Tags wallet
// @Accept json
// @Produce json
// @Param withdraw body withdrawRequest true "Amount and idempotency key"
// @Success 200 {object} WithdrawResult
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /wallet/withdraw [post]
func (ws *WalletService) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req withdrawRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := ws.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := ws.Withdraw(r.Context(), userID, req.Amount, req.IdempotencyKey)
	if err != nil {
		SendPaymentError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":       true,
		"transactionId": result.TransactionID,
		"newBalance":    result.NewBalance,
		"reversalsUsed": result.ReversalsUsed,
	})
}

// HandleBalance returns the caller's cached wallet balance
// @Summary Wallet balance
// @Tags wallet
// @Produce json
// @Success 200 {object} object{balance=int64}
// @Router /wallet/balance [get]
func (ws *WalletService) HandleBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	wallet, err := ws.accounts.GetByUserID(userID)
	if err != nil {
		SendPaymentError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"balance": wallet.Balance,
	})
}
