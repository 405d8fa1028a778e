package testsupport

import (
	"path/filepath"
	"testing"

	"mivvo/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.AssetDir = filepath.Join(base, "assets")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Providers.Vision.APIKey = "test"
	cfgVal.Providers.Audio.APIKey = "test"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := cfgVal.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	return builder.cfg
}

// WithWorkers sets the workflow worker count on the test config.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.Workers = n
	}
}

// WithPricing overrides the price of a single analysis kind.
func WithPricing(kind, price string) ConfigOption {
	return func(b *configBuilder) {
		switch kind {
		case "paint":
			b.cfg.Pricing.Paint = price
		case "damage":
			b.cfg.Pricing.Damage = price
		case "audio":
			b.cfg.Pricing.Audio = price
		case "value":
			b.cfg.Pricing.Value = price
		case "full":
			b.cfg.Pricing.Full = price
		default:
			b.t.Fatalf("unknown pricing kind %q", kind)
		}
	}
}

// WithResultCache toggles the provider result cache on the test config.
func WithResultCache(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.ResultCache.Enabled = enabled
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
