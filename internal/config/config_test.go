package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mivvo/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Pricing.Full == "" {
		t.Fatal("default pricing must include the full expertise")
	}
	if cfg.Workflow.HeartbeatTimeout <= cfg.Workflow.HeartbeatInterval {
		t.Fatal("default heartbeat timeout must exceed the interval")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if exists {
		t.Fatal("exists should be false for a missing file")
	}
	if cfg.Paths.APIBind == "" {
		t.Fatal("defaults not applied")
	}
}

func TestLoadAppliesOverridesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + dir + `/data"
log_dir = "` + dir + `/logs"
api_bind = "127.0.0.1:9999"

[pricing]
paint = "12.5"

[workflow]
workers = 4
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("exists=%v resolved=%q", exists, resolved)
	}
	if cfg.Paths.APIBind != "127.0.0.1:9999" {
		t.Fatalf("api_bind = %q", cfg.Paths.APIBind)
	}
	if cfg.Pricing.Paint != "12.5" {
		t.Fatalf("paint price = %q", cfg.Pricing.Paint)
	}
	if cfg.Pricing.Damage == "" {
		t.Fatal("unset prices should keep defaults")
	}
	if cfg.Workflow.Workers != 4 {
		t.Fatalf("workers = %d", cfg.Workflow.Workers)
	}
	if cfg.Paths.AssetDir != filepath.Join(dir, "data", "assets") {
		t.Fatalf("asset_dir = %q, want derived from data_dir", cfg.Paths.AssetDir)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[pricing]
paint = "not-a-number"

[workflow]
workers = 0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("invalid config must not load")
	}
	if !strings.Contains(err.Error(), "pricing.paint") || !strings.Contains(err.Error(), "workflow.workers") {
		t.Fatalf("error should list every problem, got: %v", err)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("create sample: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	if !exists {
		t.Fatal("sample file not found by loader")
	}
	if cfg.Providers.Vision.BaseURL == "" {
		t.Fatal("sample must carry the provider base url")
	}
}

func TestProviderConfigured(t *testing.T) {
	p := config.Provider{}
	if p.Configured() {
		t.Fatal("empty provider must not count as configured")
	}
	p.APIKey = "key"
	if p.Configured() {
		t.Fatal("provider without model must not count as configured")
	}
	p.Model = "some/model"
	if !p.Configured() {
		t.Fatal("provider with key and model should be configured")
	}
}
