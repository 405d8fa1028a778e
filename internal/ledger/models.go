package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the business reason for a ledger entry.
type TransactionType string

const (
	TxPurchase TransactionType = "purchase"
	TxUsage    TransactionType = "usage"
	TxRefund   TransactionType = "refund"
)

// Transaction is a single immutable row in the credit transaction log.
// Rows are only written once their ledger effect has been applied; no
// partial transaction states are ever persisted.
type Transaction struct {
	ID          int64
	AccountID   string
	Type        TransactionType
	Amount      decimal.Decimal
	ReferenceID string
	Note        string
	CreatedAt   time.Time
}

// Balance is a snapshot of one account.
//
// Invariant: Balance = TotalPurchased - TotalUsed + TotalRefunded.
// TotalPurchased and TotalUsed are monotonically non-decreasing; refunds are
// recorded on TotalRefunded rather than unwinding TotalUsed so the history
// stays additive.
type Balance struct {
	AccountID      string
	Balance        decimal.Decimal
	TotalPurchased decimal.Decimal
	TotalUsed      decimal.Decimal
	TotalRefunded  decimal.Decimal
	UpdatedAt      time.Time
}
