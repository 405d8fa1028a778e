// Package pricing maps analysis kinds to their credit cost. The catalog is
// loaded from configuration once at startup; prices are decimal so cost
// arithmetic matches the ledger exactly.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"mivvo/internal/config"
	"mivvo/internal/report"
)

// Catalog holds the per-kind credit prices.
type Catalog struct {
	prices map[report.AnalysisKind]decimal.Decimal
}

// NewCatalog parses the configured price strings. Configuration validation
// runs before this, so a parse failure here indicates the config was mutated
// after Load.
func NewCatalog(cfg *config.Config) (*Catalog, error) {
	entries := []struct {
		kind report.AnalysisKind
		raw  string
	}{
		{report.KindPaint, cfg.Pricing.Paint},
		{report.KindDamage, cfg.Pricing.Damage},
		{report.KindAudio, cfg.Pricing.Audio},
		{report.KindValue, cfg.Pricing.Value},
		{report.KindFull, cfg.Pricing.Full},
	}

	prices := make(map[report.AnalysisKind]decimal.Decimal, len(entries))
	for _, entry := range entries {
		price, err := decimal.NewFromString(entry.raw)
		if err != nil {
			return nil, fmt.Errorf("price for %s: %w", entry.kind, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("price for %s is negative", entry.kind)
		}
		prices[entry.kind] = price
	}
	return &Catalog{prices: prices}, nil
}

// Price returns the credit cost of a single analysis kind.
func (c *Catalog) Price(kind report.AnalysisKind) (decimal.Decimal, error) {
	price, ok := c.prices[kind]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for analysis kind %q", kind)
	}
	return price, nil
}

// CostFor totals the cost of the requested kinds. Full expertise is priced
// as a bundle: its flat price covers every sub-analysis it expands to, and
// requesting full alongside individual kinds charges the bundle once plus
// the extras.
func (c *Catalog) CostFor(kinds []report.AnalysisKind) (decimal.Decimal, error) {
	total := decimal.Zero
	seen := make(map[report.AnalysisKind]bool, len(kinds))
	for _, kind := range kinds {
		if seen[kind] {
			continue
		}
		seen[kind] = true
		price, err := c.Price(kind)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(price)
	}
	return total, nil
}
