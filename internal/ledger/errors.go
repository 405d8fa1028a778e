package ledger

import "errors"

var (
	// ErrInsufficientFunds indicates a debit larger than the account balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrAccountNotFound indicates an account that was never granted credit.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrReferenceRequired indicates a debit or refund without a reference.
	ErrReferenceRequired = errors.New("reference id required")
	// ErrSchemaMismatch indicates the ledger schema version doesn't match.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)
