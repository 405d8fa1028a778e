package testsupport

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"mivvo/internal/config"
	"mivvo/internal/ledger"
	"mivvo/internal/report"
)

// MustOpenStore opens a report.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *report.Store {
	t.Helper()

	store, err := report.Open(cfg)
	if err != nil {
		t.Fatalf("report.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenLedger opens a ledger.Store for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewReport creates a report for tests using the provided store. Cost
// defaults to 20 credits.
func NewReport(t testing.TB, store *report.Store, ownerID string, kinds ...report.AnalysisKind) *report.Report {
	t.Helper()

	if len(kinds) == 0 {
		kinds = []report.AnalysisKind{report.KindDamage}
	}
	rpt, err := store.Create(context.Background(), ownerID, kinds, decimal.NewFromInt(20))
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return rpt
}

// SeedCredits grants an account the given credit amount.
func SeedCredits(t testing.TB, store *ledger.Store, accountID, amount string) ledger.Balance {
	t.Helper()

	value, err := decimal.NewFromString(amount)
	if err != nil {
		t.Fatalf("parse amount %q: %v", amount, err)
	}
	balance, err := store.Grant(context.Background(), accountID, value, "", "test grant")
	if err != nil {
		t.Fatalf("ledger.Grant: %v", err)
	}
	return balance
}

// Dec parses a decimal literal, failing the test on bad input.
func Dec(t testing.TB, value string) decimal.Decimal {
	t.Helper()

	parsed, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", value, err)
	}
	return parsed
}
