package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Debit atomically reserves credit for a report: the balance decrement, the
// total_used increment, and the usage transaction row are one database
// transaction. A repeated debit for the same reference after a first success
// is a no-op returning the current balance, so the orchestrator may retry the
// reservation step freely.
func (s *Store) Debit(ctx context.Context, accountID string, amount decimal.Decimal, referenceID string) (Balance, error) {
	var snapshot Balance
	if err := validateMutation(accountID, amount, referenceID); err != nil {
		return snapshot, err
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := accountForUpdate(ctx, tx, accountID)
		if err != nil {
			return err
		}

		applied, err := referenceExists(ctx, tx, TxUsage, referenceID)
		if err != nil {
			return err
		}
		if applied {
			snapshot = current
			return nil
		}

		if current.Balance.LessThan(amount) {
			return fmt.Errorf("%w: balance %s, debit %s", ErrInsufficientFunds, current.Balance, amount)
		}

		current.Balance = current.Balance.Sub(amount)
		current.TotalUsed = current.TotalUsed.Add(amount)
		if err := writeAccount(ctx, tx, &current); err != nil {
			return err
		}
		if err := appendTransaction(ctx, tx, accountID, TxUsage, amount, referenceID, "analysis debit"); err != nil {
			return err
		}
		snapshot = current
		return nil
	})
	if err != nil {
		return Balance{}, err
	}
	return snapshot, nil
}

// Refund atomically reverses a debit: balance increment, total_refunded
// increment, and one refund transaction row. Calling it again for the same
// reference is a no-op returning the current balance rather than
// double-crediting; the compensation saga depends on that.
func (s *Store) Refund(ctx context.Context, accountID string, amount decimal.Decimal, referenceID, reason string) (Balance, error) {
	var snapshot Balance
	if err := validateMutation(accountID, amount, referenceID); err != nil {
		return snapshot, err
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := accountForUpdate(ctx, tx, accountID)
		if err != nil {
			return err
		}

		applied, err := referenceExists(ctx, tx, TxRefund, referenceID)
		if err != nil {
			return err
		}
		if applied {
			snapshot = current
			return nil
		}

		current.Balance = current.Balance.Add(amount)
		current.TotalRefunded = current.TotalRefunded.Add(amount)
		if err := writeAccount(ctx, tx, &current); err != nil {
			return err
		}
		if err := appendTransaction(ctx, tx, accountID, TxRefund, amount, referenceID, reason); err != nil {
			return err
		}
		snapshot = current
		return nil
	})
	if err != nil {
		return Balance{}, err
	}
	return snapshot, nil
}

// Grant tops up an account, creating it on first use. Payment-gateway
// integration lives elsewhere; this is the ledger-side purchase record.
func (s *Store) Grant(ctx context.Context, accountID string, amount decimal.Decimal, referenceID, note string) (Balance, error) {
	var snapshot Balance
	if strings.TrimSpace(accountID) == "" {
		return snapshot, errors.New("account id required")
	}
	if !amount.IsPositive() {
		return snapshot, ErrInvalidAmount
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := accountForUpdate(ctx, tx, accountID)
		if errors.Is(err, ErrAccountNotFound) {
			current, err = createAccount(ctx, tx, accountID)
		}
		if err != nil {
			return err
		}

		current.Balance = current.Balance.Add(amount)
		current.TotalPurchased = current.TotalPurchased.Add(amount)
		if err := writeAccount(ctx, tx, &current); err != nil {
			return err
		}
		if err := appendTransaction(ctx, tx, accountID, TxPurchase, amount, referenceID, note); err != nil {
			return err
		}
		snapshot = current
		return nil
	})
	if err != nil {
		return Balance{}, err
	}
	return snapshot, nil
}

// RefundDegraded is the compensation saga's last resort when the atomic
// refund path keeps failing: it applies the balance increment first and then
// writes the transaction row best-effort. Balance correctness is prioritized
// over audit-log completeness here. The returned flag reports whether the
// audit row was recorded; a false value must be surfaced for manual
// reconciliation.
func (s *Store) RefundDegraded(ctx context.Context, accountID string, amount decimal.Decimal, referenceID, reason string) (Balance, bool, error) {
	var snapshot Balance
	if err := validateMutation(accountID, amount, referenceID); err != nil {
		return snapshot, false, err
	}

	// Idempotency check outside any transaction: if a refund row already
	// exists the atomic path succeeded earlier and nothing may be applied.
	var existing int
	if err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM credit_transactions WHERE type = ? AND reference_id = ?`,
		TxRefund, referenceID,
	).Scan(&existing); err == nil && existing > 0 {
		balance, err := s.Account(ctx, accountID)
		return balance, true, err
	}

	current, err := s.Account(ctx, accountID)
	if err != nil {
		return snapshot, false, err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(
		ctx,
		`UPDATE credit_accounts SET balance = ?, total_refunded = ?, updated_at = ? WHERE account_id = ?`,
		current.Balance.Add(amount).String(),
		current.TotalRefunded.Add(amount).String(),
		now, accountID,
	); err != nil {
		return snapshot, false, fmt.Errorf("degraded refund balance update: %w", err)
	}

	recorded := true
	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO credit_transactions (account_id, type, amount, reference_id, note, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		accountID, TxRefund, amount.String(), referenceID, reason, now,
	); err != nil {
		recorded = false
	}

	balance, err := s.Account(ctx, accountID)
	if err != nil {
		return snapshot, recorded, err
	}
	return balance, recorded, nil
}

// Account returns the current snapshot of an account.
func (s *Store) Account(ctx context.Context, accountID string) (Balance, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT account_id, balance, total_purchased, total_used, total_refunded, updated_at
         FROM credit_accounts WHERE account_id = ?`,
		accountID,
	)
	return scanBalance(row)
}

// Transactions returns an account's transaction log, newest first.
func (s *Store) Transactions(ctx context.Context, accountID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, account_id, type, amount, reference_id, note, created_at
         FROM credit_transactions WHERE account_id = ? ORDER BY id DESC LIMIT ?`,
		accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// TransactionsByReference returns every ledger entry tied to one report.
func (s *Store) TransactionsByReference(ctx context.Context, referenceID string) ([]Transaction, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, account_id, type, amount, reference_id, note, created_at
         FROM credit_transactions WHERE reference_id = ? ORDER BY id`,
		referenceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transactions by reference: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// HasRefund reports whether a refund transaction exists for the reference.
func (s *Store) HasRefund(ctx context.Context, referenceID string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM credit_transactions WHERE type = ? AND reference_id = ?`,
		TxRefund, referenceID,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("query refund existence: %w", err)
	}
	return count > 0, nil
}

func validateMutation(accountID string, amount decimal.Decimal, referenceID string) error {
	if strings.TrimSpace(accountID) == "" {
		return errors.New("account id required")
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(referenceID) == "" {
		return ErrReferenceRequired
	}
	return nil
}

func accountForUpdate(ctx context.Context, tx *sql.Tx, accountID string) (Balance, error) {
	row := tx.QueryRowContext(
		ctx,
		`SELECT account_id, balance, total_purchased, total_used, total_refunded, updated_at
         FROM credit_accounts WHERE account_id = ?`,
		accountID,
	)
	return scanBalance(row)
}

func createAccount(ctx context.Context, tx *sql.Tx, accountID string) (Balance, error) {
	now := time.Now().UTC()
	zero := decimal.Zero.String()
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO credit_accounts (account_id, balance, total_purchased, total_used, total_refunded, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		accountID, zero, zero, zero, zero,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	); err != nil {
		return Balance{}, fmt.Errorf("create account: %w", err)
	}
	return Balance{AccountID: accountID, UpdatedAt: now}, nil
}

func writeAccount(ctx context.Context, tx *sql.Tx, balance *Balance) error {
	balance.UpdatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE credit_accounts
         SET balance = ?, total_purchased = ?, total_used = ?, total_refunded = ?, updated_at = ?
         WHERE account_id = ?`,
		balance.Balance.String(),
		balance.TotalPurchased.String(),
		balance.TotalUsed.String(),
		balance.TotalRefunded.String(),
		balance.UpdatedAt.Format(time.RFC3339Nano),
		balance.AccountID,
	); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

func referenceExists(ctx context.Context, tx *sql.Tx, txType TransactionType, referenceID string) (bool, error) {
	var count int
	if err := tx.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM credit_transactions WHERE type = ? AND reference_id = ?`,
		txType, referenceID,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("check reference: %w", err)
	}
	return count > 0, nil
}

func appendTransaction(ctx context.Context, tx *sql.Tx, accountID string, txType TransactionType, amount decimal.Decimal, referenceID, note string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var ref any
	if strings.TrimSpace(referenceID) != "" {
		ref = referenceID
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO credit_transactions (account_id, type, amount, reference_id, note, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		accountID, txType, amount.String(), ref, note, now,
	); err != nil {
		return fmt.Errorf("append %s transaction: %w", txType, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBalance(row rowScanner) (Balance, error) {
	var (
		balance   Balance
		raw       [4]string
		updatedAt string
	)
	err := row.Scan(&balance.AccountID, &raw[0], &raw[1], &raw[2], &raw[3], &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return balance, ErrAccountNotFound
	}
	if err != nil {
		return balance, fmt.Errorf("scan account: %w", err)
	}

	fields := []*decimal.Decimal{&balance.Balance, &balance.TotalPurchased, &balance.TotalUsed, &balance.TotalRefunded}
	for i, field := range fields {
		parsed, err := decimal.NewFromString(raw[i])
		if err != nil {
			return balance, fmt.Errorf("parse account decimal %q: %w", raw[i], err)
		}
		*field = parsed
	}
	if parsed, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		balance.UpdatedAt = parsed
	}
	return balance, nil
}

func collectTransactions(rows *sql.Rows) ([]Transaction, error) {
	var txs []Transaction
	for rows.Next() {
		var (
			tx        Transaction
			amount    string
			reference sql.NullString
			note      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Type, &amount, &reference, &note, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse transaction amount %q: %w", amount, err)
		}
		tx.Amount = parsed
		tx.ReferenceID = reference.String
		tx.Note = note.String
		if created, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			tx.CreatedAt = created
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
