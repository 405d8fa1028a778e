package analysis

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"mivvo/internal/providers"
	"mivvo/internal/report"
)

// Scoring constants. The score starts at the baseline and loses a fixed
// penalty per detected issue, with an extra penalty when the issue is high or
// critical severity, then clamps to the floor.
const (
	scoreBaseline        = 95
	scoreFloor           = 10
	issuePenalty         = 5
	elevatedIssuePenalty = 10
)

// SeverityBand is the overall report classification derived from the score.
type SeverityBand string

const (
	BandLow      SeverityBand = "low"
	BandMedium   SeverityBand = "medium"
	BandHigh     SeverityBand = "high"
	BandCritical SeverityBand = "critical"
)

// KindSection is the aggregated output of one analysis kind.
type KindSection struct {
	Kind    report.AnalysisKind `json:"kind"`
	Skipped bool                `json:"skipped,omitempty"`
	Reason  string              `json:"reason,omitempty"`
	Results []*providers.Result `json:"results,omitempty"`
	Issues  []providers.Issue   `json:"issues"`
}

// Aggregate is the report-level result written to the report record on
// completion.
type Aggregate struct {
	Score         int                  `json:"score"`
	Band          SeverityBand         `json:"severity_band"`
	IssueCount    int                  `json:"issue_count"`
	FullExpertise bool                 `json:"full_expertise,omitempty"`
	Sections      []KindSection        `json:"sections"`
	Kinds         []report.AnalysisKind `json:"kinds"`
	GeneratedAt   time.Time            `json:"generated_at"`
}

// aggregateScore computes the deterministic health score for a set of issues.
func aggregateScore(issues []providers.Issue) (int, SeverityBand) {
	score := scoreBaseline
	for _, issue := range issues {
		score -= issuePenalty
		if issue.Severity.IsElevated() {
			score -= elevatedIssuePenalty
		}
	}
	if score < scoreFloor {
		score = scoreFloor
	}
	return score, bandFor(score)
}

func bandFor(score int) SeverityBand {
	switch {
	case score >= 90:
		return BandLow
	case score >= 70:
		return BandMedium
	case score >= 40:
		return BandHigh
	default:
		return BandCritical
	}
}

// buildAggregate merges per-kind sections into one report result. Sections
// and their issues are ordered deterministically so the same provider outputs
// always produce byte-identical aggregates modulo the timestamp.
func buildAggregate(sections []KindSection, fullExpertise bool) *Aggregate {
	sort.Slice(sections, func(i, j int) bool {
		return sections[i].Kind < sections[j].Kind
	})

	var issues []providers.Issue
	kinds := make([]report.AnalysisKind, 0, len(sections))
	for i := range sections {
		sortIssues(sections[i].Issues)
		kinds = append(kinds, sections[i].Kind)
		issues = append(issues, sections[i].Issues...)
	}

	score, band := aggregateScore(issues)
	return &Aggregate{
		Score:         score,
		Band:          band,
		IssueCount:    len(issues),
		FullExpertise: fullExpertise,
		Sections:      sections,
		Kinds:         kinds,
		GeneratedAt:   time.Now().UTC(),
	}
}

// sectionFor collapses all per-asset results of one kind into its section.
func sectionFor(kind report.AnalysisKind, results []*providers.Result) KindSection {
	section := KindSection{Kind: kind, Results: results, Issues: []providers.Issue{}}
	for _, result := range results {
		section.Issues = append(section.Issues, result.Issues()...)
	}
	return section
}

func skippedSection(kind report.AnalysisKind, reason string) KindSection {
	return KindSection{Kind: kind, Skipped: true, Reason: reason, Issues: []providers.Issue{}}
}

func sortIssues(issues []providers.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Severity != issues[j].Severity {
			return severityRank(issues[i].Severity) < severityRank(issues[j].Severity)
		}
		return issues[i].Title < issues[j].Title
	})
}

// severityRank orders critical first.
func severityRank(s providers.Severity) int {
	switch s {
	case providers.SeverityCritical:
		return 0
	case providers.SeverityHigh:
		return 1
	case providers.SeverityMedium:
		return 2
	default:
		return 3
	}
}

// Encode serializes the aggregate for storage on the report record.
func (a *Aggregate) Encode() (string, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encode aggregate: %w", err)
	}
	return string(payload), nil
}

// DecodeAggregate parses a stored report result.
func DecodeAggregate(raw string) (*Aggregate, error) {
	var aggregate Aggregate
	if err := json.Unmarshal([]byte(raw), &aggregate); err != nil {
		return nil, fmt.Errorf("decode aggregate: %w", err)
	}
	return &aggregate, nil
}
