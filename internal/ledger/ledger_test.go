package ledger_test

import (
	"context"
	"errors"
	"testing"

	"mivvo/internal/ledger"
	"mivvo/internal/testsupport"
)

func TestGrantCreatesAccount(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	balance := testsupport.SeedCredits(t, store, "owner-1", "100")
	if got := balance.Balance.String(); got != "100" {
		t.Fatalf("balance = %s, want 100", got)
	}
	if got := balance.TotalPurchased.String(); got != "100" {
		t.Fatalf("total purchased = %s, want 100", got)
	}

	again := testsupport.SeedCredits(t, store, "owner-1", "50")
	if got := again.Balance.String(); got != "150" {
		t.Fatalf("balance after second grant = %s, want 150", got)
	}
}

func TestDebitReservesAndIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	testsupport.SeedCredits(t, store, "owner-1", "100")

	ctx := context.Background()
	cost := testsupport.Dec(t, "35")

	first, err := store.Debit(ctx, "owner-1", cost, "report-1")
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if got := first.Balance.String(); got != "65" {
		t.Fatalf("balance after debit = %s, want 65", got)
	}
	if got := first.TotalUsed.String(); got != "35" {
		t.Fatalf("total used = %s, want 35", got)
	}

	second, err := store.Debit(ctx, "owner-1", cost, "report-1")
	if err != nil {
		t.Fatalf("repeat Debit: %v", err)
	}
	if got := second.Balance.String(); got != "65" {
		t.Fatalf("balance after repeat debit = %s, want 65 (no double charge)", got)
	}

	txs, err := store.TransactionsByReference(ctx, "report-1")
	if err != nil {
		t.Fatalf("TransactionsByReference: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("transaction count = %d, want 1", len(txs))
	}
	if txs[0].Type != ledger.TxUsage {
		t.Fatalf("transaction type = %s, want usage", txs[0].Type)
	}
}

func TestDebitInsufficientFunds(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	testsupport.SeedCredits(t, store, "owner-1", "10")

	_, err := store.Debit(context.Background(), "owner-1", testsupport.Dec(t, "35"), "report-1")
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	balance, err := store.Account(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if got := balance.Balance.String(); got != "10" {
		t.Fatalf("balance after rejected debit = %s, want 10", got)
	}
	if got := balance.TotalUsed.String(); got != "0" {
		t.Fatalf("total used after rejected debit = %s, want 0", got)
	}
}

func TestDebitUnknownAccount(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	_, err := store.Debit(context.Background(), "ghost", testsupport.Dec(t, "5"), "report-1")
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestRefundRestoresAndIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	testsupport.SeedCredits(t, store, "owner-1", "100")

	ctx := context.Background()
	cost := testsupport.Dec(t, "35")
	if _, err := store.Debit(ctx, "owner-1", cost, "report-1"); err != nil {
		t.Fatalf("Debit: %v", err)
	}

	refunded, err := store.Refund(ctx, "owner-1", cost, "report-1", "analysis failed")
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if got := refunded.Balance.String(); got != "100" {
		t.Fatalf("balance after refund = %s, want 100", got)
	}
	if got := refunded.TotalUsed.String(); got != "35" {
		t.Fatalf("total used after refund = %s, want 35 (monotonic)", got)
	}
	if got := refunded.TotalRefunded.String(); got != "35" {
		t.Fatalf("total refunded = %s, want 35", got)
	}

	again, err := store.Refund(ctx, "owner-1", cost, "report-1", "analysis failed")
	if err != nil {
		t.Fatalf("repeat Refund: %v", err)
	}
	if got := again.Balance.String(); got != "100" {
		t.Fatalf("balance after repeat refund = %s, want 100 (no double credit)", got)
	}
}

func TestBalanceConservation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	testsupport.SeedCredits(t, store, "owner-1", "200")

	ctx := context.Background()
	if _, err := store.Debit(ctx, "owner-1", testsupport.Dec(t, "35"), "report-1"); err != nil {
		t.Fatalf("Debit report-1: %v", err)
	}
	if _, err := store.Debit(ctx, "owner-1", testsupport.Dec(t, "20"), "report-2"); err != nil {
		t.Fatalf("Debit report-2: %v", err)
	}
	if _, err := store.Refund(ctx, "owner-1", testsupport.Dec(t, "20"), "report-2", "failed"); err != nil {
		t.Fatalf("Refund report-2: %v", err)
	}
	testsupport.SeedCredits(t, store, "owner-1", "50")

	balance, err := store.Account(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	derived := balance.TotalPurchased.Sub(balance.TotalUsed).Add(balance.TotalRefunded)
	if !balance.Balance.Equal(derived) {
		t.Fatalf("balance %s != purchased - used + refunded = %s", balance.Balance, derived)
	}
	if got := balance.Balance.String(); got != "215" {
		t.Fatalf("balance = %s, want 215", got)
	}
}

func TestRefundDegradedAppliesBalance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	testsupport.SeedCredits(t, store, "owner-1", "100")

	ctx := context.Background()
	cost := testsupport.Dec(t, "35")
	if _, err := store.Debit(ctx, "owner-1", cost, "report-1"); err != nil {
		t.Fatalf("Debit: %v", err)
	}

	balance, recorded, err := store.RefundDegraded(ctx, "owner-1", cost, "report-1", "compensation")
	if err != nil {
		t.Fatalf("RefundDegraded: %v", err)
	}
	if !recorded {
		t.Fatal("expected audit row to be recorded on healthy database")
	}
	if got := balance.Balance.String(); got != "100" {
		t.Fatalf("balance after degraded refund = %s, want 100", got)
	}

	// A later degraded attempt must see the existing refund row and not
	// credit twice.
	again, recorded, err := store.RefundDegraded(ctx, "owner-1", cost, "report-1", "compensation")
	if err != nil {
		t.Fatalf("repeat RefundDegraded: %v", err)
	}
	if !recorded {
		t.Fatal("repeat degraded refund should report recorded")
	}
	if got := again.Balance.String(); got != "100" {
		t.Fatalf("balance after repeat degraded refund = %s, want 100", got)
	}
}

func TestRefundDegradedAfterAtomicRefundIsNoop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	testsupport.SeedCredits(t, store, "owner-1", "100")

	ctx := context.Background()
	cost := testsupport.Dec(t, "20")
	if _, err := store.Debit(ctx, "owner-1", cost, "report-1"); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if _, err := store.Refund(ctx, "owner-1", cost, "report-1", "failed"); err != nil {
		t.Fatalf("Refund: %v", err)
	}

	balance, _, err := store.RefundDegraded(ctx, "owner-1", cost, "report-1", "compensation")
	if err != nil {
		t.Fatalf("RefundDegraded: %v", err)
	}
	if got := balance.Balance.String(); got != "100" {
		t.Fatalf("balance = %s, want 100 (degraded path must not double credit)", got)
	}
}

func TestTransactionsNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	testsupport.SeedCredits(t, store, "owner-1", "100")

	ctx := context.Background()
	if _, err := store.Debit(ctx, "owner-1", testsupport.Dec(t, "15"), "report-1"); err != nil {
		t.Fatalf("Debit: %v", err)
	}

	txs, err := store.Transactions(ctx, "owner-1", 10)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("transaction count = %d, want 2", len(txs))
	}
	if txs[0].Type != ledger.TxUsage || txs[1].Type != ledger.TxPurchase {
		t.Fatalf("order = %s,%s; want usage,purchase", txs[0].Type, txs[1].Type)
	}
}

func TestInvalidMutations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	testsupport.SeedCredits(t, store, "owner-1", "100")

	ctx := context.Background()
	if _, err := store.Debit(ctx, "owner-1", testsupport.Dec(t, "-5"), "report-1"); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("negative debit err = %v, want ErrInvalidAmount", err)
	}
	if _, err := store.Debit(ctx, "owner-1", testsupport.Dec(t, "0"), "report-1"); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("zero debit err = %v, want ErrInvalidAmount", err)
	}
	if _, err := store.Debit(ctx, "owner-1", testsupport.Dec(t, "5"), ""); !errors.Is(err, ledger.ErrReferenceRequired) {
		t.Fatalf("missing reference err = %v, want ErrReferenceRequired", err)
	}
}
