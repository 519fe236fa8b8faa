package services

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/campuspay/backend/internal/models"
)

// AccountStore owns durable account balances. Every mutating method takes
// the *sql.Tx of the enclosing unit of work; AdjustBalance must only be
// called on an account already locked with GetForUpdate in the same unit.
type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

// GetForUpdate acquires an exclusive row lock on the account for the
// duration of the enclosing transaction.
func (s *AccountStore) GetForUpdate(tx *sql.Tx, accountID int64) (*models.Account, error) {
	var account models.Account
	err := tx.QueryRow(`
		SELECT account_id, owner_kind, balance, version, status, updated_at
		FROM accounts
		WHERE account_id = $1
		FOR UPDATE`, accountID).Scan(
		&account.ID, &account.OwnerKind, &account.Balance,
		&account.Version, &account.Status, &account.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lock account %d: %w", accountID, err)
	}

	return &account, nil
}

// LockPair acquires both row locks in ascending account id order so two
// concurrent opposite-direction movements cannot deadlock, then returns the
// accounts in argument order.
func (s *AccountStore) LockPair(tx *sql.Tx, aID, bID int64) (*models.Account, *models.Account, error) {
	firstID, secondID := aID, bID
	if firstID > secondID {
		firstID, secondID = secondID, firstID
	}

	first, err := s.GetForUpdate(tx, firstID)
	if err != nil {
		return nil, nil, err
	}
	second, err := s.GetForUpdate(tx, secondID)
	if err != nil {
		return nil, nil, err
	}

	if firstID == aID {
		return first, second, nil
	}
	return second, first, nil
}

// AdjustBalance applies a signed delta and returns the new balance. The
// WHERE clause re-validates that a debit cannot push the balance negative
// even if the caller's check raced; the schema CHECK is the last line. The
// platform account is a contra account against the outside world and is the
// one holder allowed to run negative.
func (s *AccountStore) AdjustBalance(tx *sql.Tx, accountID int64, delta int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(`
		UPDATE accounts
		SET balance = balance + $1, version = version + 1, updated_at = $2
		WHERE account_id = $3 AND (balance + $1 >= 0 OR owner_kind = 'platform')
		RETURNING balance`,
		delta, time.Now(), accountID).Scan(&newBalance)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrInsufficientFunds
		}
		return 0, fmt.Errorf("adjust balance for account %d: %w", accountID, err)
	}

	return newBalance, nil
}

// Get reads an account without locking (validation before the unit of work).
func (s *AccountStore) Get(accountID int64) (*models.Account, error) {
	return s.scanAccount(s.db.QueryRow(`
		SELECT account_id, owner_kind, user_id, store_id, balance, version, status, created_at, updated_at
		FROM accounts
		WHERE account_id = $1`, accountID))
}

// GetByUserID returns the wallet account owned by a user.
func (s *AccountStore) GetByUserID(userID int64) (*models.Account, error) {
	return s.scanAccount(s.db.QueryRow(`
		SELECT account_id, owner_kind, user_id, store_id, balance, version, status, created_at, updated_at
		FROM accounts
		WHERE user_id = $1 AND owner_kind = $2`, userID, models.OwnerKindUserWallet))
}

func (s *AccountStore) scanAccount(row *sql.Row) (*models.Account, error) {
	var account models.Account
	err := row.Scan(
		&account.ID, &account.OwnerKind, &account.UserID, &account.StoreID,
		&account.Balance, &account.Version, &account.Status,
		&account.CreatedAt, &account.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("fetch account: %w", err)
	}

	return &account, nil
}

// CreateUserWallet opens a zero-balance wallet account for a new user.
func (s *AccountStore) CreateUserWallet(tx *sql.Tx, userID int64) (int64, error) {
	var accountID int64
	err := tx.QueryRow(`
		INSERT INTO accounts (owner_kind, user_id, balance, version, status)
		VALUES ($1, $2, 0, 1, $3)
		RETURNING account_id`,
		models.OwnerKindUserWallet, userID, models.AccountStatusActive).Scan(&accountID)
	if err != nil {
		return 0, fmt.Errorf("create wallet account for user %d: %w", userID, err)
	}
	return accountID, nil
}

// CreateStoreRevenue opens a zero-balance revenue account for a new store.
func (s *AccountStore) CreateStoreRevenue(tx *sql.Tx, storeID int64) (int64, error) {
	var accountID int64
	err := tx.QueryRow(`
		INSERT INTO accounts (owner_kind, store_id, balance, version, status)
		VALUES ($1, $2, 0, 1, $3)
		RETURNING account_id`,
		models.OwnerKindStoreRevenue, storeID, models.AccountStatusActive).Scan(&accountID)
	if err != nil {
		return 0, fmt.Errorf("create revenue account for store %d: %w", storeID, err)
	}
	return accountID, nil
}
