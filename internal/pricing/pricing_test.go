package pricing_test

import (
	"testing"

	"mivvo/internal/pricing"
	"mivvo/internal/report"
	"mivvo/internal/testsupport"
)

func TestCostForSingleKind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	catalog, err := pricing.NewCatalog(cfg)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	cost, err := catalog.CostFor([]report.AnalysisKind{report.KindDamage})
	if err != nil {
		t.Fatalf("CostFor: %v", err)
	}
	if got := cost.String(); got != cfg.Pricing.Damage {
		t.Fatalf("damage cost = %s, want %s", got, cfg.Pricing.Damage)
	}
}

func TestCostForFullIsBundle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	catalog, err := pricing.NewCatalog(cfg)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	full, err := catalog.CostFor([]report.AnalysisKind{report.KindFull})
	if err != nil {
		t.Fatalf("CostFor full: %v", err)
	}
	parts, err := catalog.CostFor(report.ExpandKinds([]report.AnalysisKind{report.KindFull}))
	if err != nil {
		t.Fatalf("CostFor expanded: %v", err)
	}
	if !full.LessThan(parts) {
		t.Fatalf("full bundle %s should undercut sum of parts %s", full, parts)
	}
}

func TestCostForDeduplicates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	catalog, err := pricing.NewCatalog(cfg)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	once, err := catalog.CostFor([]report.AnalysisKind{report.KindPaint})
	if err != nil {
		t.Fatalf("CostFor: %v", err)
	}
	twice, err := catalog.CostFor([]report.AnalysisKind{report.KindPaint, report.KindPaint})
	if err != nil {
		t.Fatalf("CostFor duplicated: %v", err)
	}
	if !once.Equal(twice) {
		t.Fatalf("duplicate kind changed cost: %s vs %s", once, twice)
	}
}

func TestNewCatalogRejectsBadPrice(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPricing("paint", "not-a-number"))
	if _, err := pricing.NewCatalog(cfg); err == nil {
		t.Fatal("expected error for unparseable price")
	}
}
