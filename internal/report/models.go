package report

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the lifecycle of a report.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// legalTransitions enumerates every permitted status change. Terminal states
// have no outgoing edges.
var legalTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// AnalysisKind identifies one purchasable analysis.
type AnalysisKind string

const (
	KindPaint  AnalysisKind = "paint"
	KindDamage AnalysisKind = "damage"
	KindAudio  AnalysisKind = "audio"
	KindValue  AnalysisKind = "value"
	// KindFull is the composite expertise: damage + paint + audio + value.
	KindFull AnalysisKind = "full"
)

var allKinds = []AnalysisKind{KindPaint, KindDamage, KindAudio, KindValue, KindFull}

// ParseKind converts a string into a known AnalysisKind.
func ParseKind(value string) (AnalysisKind, bool) {
	normalized := AnalysisKind(strings.ToLower(strings.TrimSpace(value)))
	for _, kind := range allKinds {
		if kind == normalized {
			return kind, true
		}
	}
	return "", false
}

// ExpandKinds resolves the composite full-expertise kind into the concrete
// analyses it runs. Results are sorted and de-duplicated so downstream
// behavior is deterministic regardless of request order.
func ExpandKinds(kinds []AnalysisKind) []AnalysisKind {
	set := make(map[AnalysisKind]struct{}, len(kinds))
	for _, kind := range kinds {
		if kind == KindFull {
			set[KindDamage] = struct{}{}
			set[KindPaint] = struct{}{}
			set[KindAudio] = struct{}{}
			set[KindValue] = struct{}{}
			continue
		}
		set[kind] = struct{}{}
	}
	expanded := make([]AnalysisKind, 0, len(set))
	for kind := range set {
		expanded = append(expanded, kind)
	}
	sort.Slice(expanded, func(i, j int) bool { return expanded[i] < expanded[j] })
	return expanded
}

// AssetKind classifies an uploaded file.
type AssetKind string

const (
	AssetImage AssetKind = "image"
	AssetAudio AssetKind = "audio"
)

// ParseAssetKind converts a string into a known AssetKind.
func ParseAssetKind(value string) (AssetKind, bool) {
	normalized := AssetKind(strings.ToLower(strings.TrimSpace(value)))
	if normalized == AssetImage || normalized == AssetAudio {
		return normalized, true
	}
	return "", false
}

// RequiredAsset maps an analysis kind to the asset kind it consumes.
func RequiredAsset(kind AnalysisKind) AssetKind {
	if kind == KindAudio {
		return AssetAudio
	}
	return AssetImage
}

// Report represents one analysis request persisted in SQLite.
type Report struct {
	ID            string
	OwnerID       string
	Kinds         []AnalysisKind
	Status        Status
	Cost          decimal.Decimal
	ResultJSON    string
	Notes         string
	RequestedAt   *time.Time
	ClaimToken    string
	LastHeartbeat *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsFullExpertise reports whether the composite expertise was requested.
func (r *Report) IsFullExpertise() bool {
	for _, kind := range r.Kinds {
		if kind == KindFull {
			return true
		}
	}
	return false
}

// AnalysisKinds returns the concrete analyses the report runs.
func (r *Report) AnalysisKinds() []AnalysisKind {
	return ExpandKinds(r.Kinds)
}

// Asset is an uploaded image or audio file bound to a report. Assets are
// read-only once orchestration begins provider calls.
type Asset struct {
	ID         int64
	ReportID   string
	Kind       AssetKind
	StorageRef string
	Size       int64
	CreatedAt  time.Time
}

// HealthSummary describes aggregated report counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

func encodeKinds(kinds []AnalysisKind) string {
	parts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		parts = append(parts, string(kind))
	}
	return strings.Join(parts, ",")
}

func decodeKinds(raw string) []AnalysisKind {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	kinds := make([]AnalysisKind, 0, len(parts))
	for _, part := range parts {
		if kind, ok := ParseKind(part); ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}
