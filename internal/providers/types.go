package providers

import (
	"context"
	"fmt"
	"strings"

	"mivvo/internal/report"
	"mivvo/internal/services"
)

// Severity classifies one detected issue.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity normalizes a provider-reported severity, defaulting unknown
// values to medium rather than discarding the issue.
func ParseSeverity(raw string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityLow:
		return SeverityLow
	case SeverityMedium:
		return SeverityMedium
	case SeverityHigh:
		return SeverityHigh
	case SeverityCritical:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// IsElevated reports whether the severity carries the extra score penalty.
func (s Severity) IsElevated() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// Issue is one detected problem on the vehicle.
type Issue struct {
	Title       string   `json:"title"`
	Severity    Severity `json:"severity"`
	Area        string   `json:"area,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Request carries one asset through one analysis kind.
type Request struct {
	ReportID string
	Kind     report.AnalysisKind
	AssetRef string
	Data     []byte
	MIME     string
}

// PaintResult is the structured output of a paint analysis.
// Required: Condition, Confidence in (0, 1].
type PaintResult struct {
	Condition  string  `json:"condition"`
	ColorMatch string  `json:"color_match,omitempty"`
	Gloss      string  `json:"gloss,omitempty"`
	Issues     []Issue `json:"issues"`
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary,omitempty"`
}

// DamageResult is the structured output of a damage analysis.
// Required: OverallCondition, non-nil Issues (empty means no damage found),
// Confidence in (0, 1].
type DamageResult struct {
	OverallCondition string  `json:"overall_condition"`
	Issues           []Issue `json:"issues"`
	RepairEstimate   string  `json:"repair_estimate,omitempty"`
	Confidence       float64 `json:"confidence"`
	Summary          string  `json:"summary,omitempty"`
}

// AudioResult is the structured output of an engine-sound analysis.
// Required: EngineCondition, Confidence in (0, 1].
type AudioResult struct {
	EngineCondition string  `json:"engine_condition"`
	RPMEstimate     string  `json:"rpm_estimate,omitempty"`
	Issues          []Issue `json:"issues"`
	Confidence      float64 `json:"confidence"`
	Summary         string  `json:"summary,omitempty"`
}

// ValueResult is the structured output of a market-value analysis.
// Required: positive EstimatedValue, Currency, Confidence in (0, 1].
type ValueResult struct {
	EstimatedValue float64 `json:"estimated_value"`
	Currency       string  `json:"currency"`
	ValueRangeLow  float64 `json:"value_range_low,omitempty"`
	ValueRangeHigh float64 `json:"value_range_high,omitempty"`
	Issues         []Issue `json:"issues"`
	Confidence     float64 `json:"confidence"`
	Summary        string  `json:"summary,omitempty"`
}

// Result is the tagged per-kind union produced by a provider binding. Exactly
// one of the kind pointers is set, matching Kind.
type Result struct {
	Kind     report.AnalysisKind `json:"kind"`
	Provider string              `json:"provider"`
	Model    string              `json:"model"`
	AssetRef string              `json:"asset_ref"`
	Paint    *PaintResult        `json:"paint,omitempty"`
	Damage   *DamageResult       `json:"damage,omitempty"`
	Audio    *AudioResult        `json:"audio,omitempty"`
	Value    *ValueResult        `json:"value,omitempty"`
	Raw      string              `json:"-"`
}

// Issues returns the detected issues regardless of kind.
func (r *Result) Issues() []Issue {
	switch {
	case r == nil:
		return nil
	case r.Paint != nil:
		return r.Paint.Issues
	case r.Damage != nil:
		return r.Damage.Issues
	case r.Audio != nil:
		return r.Audio.Issues
	case r.Value != nil:
		return r.Value.Issues
	default:
		return nil
	}
}

// Validate enforces the per-kind required-field contract. A violation is a
// response-contract error, never a success with gaps.
func (r *Result) Validate() error {
	if r == nil {
		return contractViolation("nil result")
	}
	switch r.Kind {
	case report.KindPaint:
		if r.Paint == nil {
			return contractViolation("paint payload absent")
		}
		if strings.TrimSpace(r.Paint.Condition) == "" {
			return contractViolation("paint condition absent")
		}
		return validConfidence(r.Paint.Confidence)
	case report.KindDamage:
		if r.Damage == nil {
			return contractViolation("damage payload absent")
		}
		if strings.TrimSpace(r.Damage.OverallCondition) == "" {
			return contractViolation("damage overall condition absent")
		}
		if r.Damage.Issues == nil {
			return contractViolation("damage issue list absent")
		}
		return validConfidence(r.Damage.Confidence)
	case report.KindAudio:
		if r.Audio == nil {
			return contractViolation("audio payload absent")
		}
		if strings.TrimSpace(r.Audio.EngineCondition) == "" {
			return contractViolation("engine condition absent")
		}
		return validConfidence(r.Audio.Confidence)
	case report.KindValue:
		if r.Value == nil {
			return contractViolation("value payload absent")
		}
		if r.Value.EstimatedValue <= 0 {
			return contractViolation("estimated value absent or non-positive")
		}
		if strings.TrimSpace(r.Value.Currency) == "" {
			return contractViolation("currency absent")
		}
		return validConfidence(r.Value.Confidence)
	default:
		return contractViolation(fmt.Sprintf("unknown analysis kind %q", r.Kind))
	}
}

func validConfidence(confidence float64) error {
	if confidence <= 0 || confidence > 1 {
		return contractViolation(fmt.Sprintf("confidence %v outside (0, 1]", confidence))
	}
	return nil
}

func contractViolation(message string) error {
	return services.Wrap(services.ErrIncompleteResponse, "providers", "validate", message, nil)
}

// Analyzer is the uniform capability every provider binding implements.
type Analyzer interface {
	// Name identifies the binding in attempt logs and metrics.
	Name() string
	// Analyze runs one analysis, retrying transient failures up to the
	// binding's own cap. The returned result is already validated.
	Analyze(ctx context.Context, req Request) (*Result, error)
}
