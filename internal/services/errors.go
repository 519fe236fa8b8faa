package services

import "errors"

// Typed payment errors. Handlers map these to HTTP status codes; everything
// else that comes out of the coordinator is treated as an internal failure
// with the whole unit of work rolled back.
var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrAccountNotFound        = errors.New("account not found")
	ErrStoreNotFound          = errors.New("store not found")
	ErrStoreInactive          = errors.New("store is not active")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrSelfTransferNotAllowed = errors.New("cannot transfer to the same account")
	ErrDuplicateRequest       = errors.New("idempotency key already used")
	ErrExternalAdapterFailure = errors.New("external funding adapter failure")
	ErrNoFundsForWithdrawal   = errors.New("no funding records available for withdrawal")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrAlreadyConfirmed       = errors.New("funding already confirmed")
)
