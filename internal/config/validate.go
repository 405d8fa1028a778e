package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Validate checks configuration consistency. It collects every problem it
// finds so operators can fix a config file in one pass.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		problems = append(problems, "paths.api_bind must be set")
	}

	for name, raw := range map[string]string{
		"pricing.paint":  c.Pricing.Paint,
		"pricing.damage": c.Pricing.Damage,
		"pricing.audio":  c.Pricing.Audio,
		"pricing.value":  c.Pricing.Value,
		"pricing.full":   c.Pricing.Full,
	} {
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: invalid decimal %q", name, raw))
			continue
		}
		if price.IsNegative() {
			problems = append(problems, fmt.Sprintf("%s must not be negative", name))
		}
	}

	for name, p := range map[string]Provider{
		"providers.vision":          c.Providers.Vision,
		"providers.vision_fallback": c.Providers.VisionFallback,
		"providers.audio":           c.Providers.Audio,
		"providers.audio_fallback":  c.Providers.AudioFallback,
	} {
		if !p.Configured() {
			continue
		}
		if p.BaseURL == "" {
			problems = append(problems, name+".base_url must be set")
		}
		if p.TimeoutSeconds < 1 {
			problems = append(problems, name+".timeout_seconds must be positive")
		}
		if p.MaxRetries < 1 || p.MaxRetries > 5 {
			problems = append(problems, name+".max_retries must be between 1 and 5")
		}
	}

	if c.Workflow.QueuePollInterval < 1 {
		problems = append(problems, "workflow.queue_poll_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		problems = append(problems, "workflow.heartbeat_timeout must exceed workflow.heartbeat_interval")
	}
	if c.Workflow.ReportTimeoutSeconds < 1 {
		problems = append(problems, "workflow.report_timeout_seconds must be positive")
	}
	if c.Workflow.Workers < 1 {
		problems = append(problems, "workflow.workers must be positive")
	}

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format: unsupported value %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
