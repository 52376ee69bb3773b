package model

import "time"

// FileMetrics is the per-file aggregate derived from file-kind issues.
type FileMetrics struct {
	CanonicalPath            string               `json:"canonicalPath"`
	IssueCount               int                  `json:"issueCount"`
	SeverityDistribution     map[Severity]int     `json:"severityDistribution"`
	AnalysisTypeDistribution map[AnalysisType]int `json:"analysisTypeDistribution"`
	ToolCoverage             []string             `json:"toolCoverage"`
	HotspotScore             float64              `json:"hotspotScore"`
}

// CorrelationGroup is a set of issues judged to describe related defects.
type CorrelationGroup struct {
	ID            string             `json:"id"`
	Type          CorrelationType    `json:"correlationType"`
	IssueIDs      []string           `json:"issues"`
	Tools         []string           `json:"tools"`
	RiskScore     float64            `json:"riskScore"`
	FilesAffected []string           `json:"filesAffected"`
	Rationale     string             `json:"rationale"`
	Verdicts      map[string]Verdict `json:"verdicts,omitempty"`
}

// Hotspot is a file whose risk profile crossed the configured threshold.
type Hotspot struct {
	CanonicalPath      string   `json:"canonicalPath"`
	IssueCount         int      `json:"issueCount"`
	ToolCoverage       []string `json:"toolCoverage"`
	RiskScore          float64  `json:"riskScore"`
	RecommendedActions []string `json:"recommendedActions"`
	IssueIDs           []string `json:"issues"`
}

// AdapterStatus is the terminal state of one adapter in a run.
type AdapterStatus string

const (
	StatusRan       AdapterStatus = "ran"
	StatusSkipped   AdapterStatus = "skipped"
	StatusFailed    AdapterStatus = "failed"
	StatusCancelled AdapterStatus = "cancelled"
)

// Reason classifies why an adapter did not contribute findings.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonTimeout        Reason = "timeout"
	ReasonNotAvailable   Reason = "not_available"
	ReasonNotApplicable  Reason = "not_applicable"
	ReasonParseError     Reason = "parse_error"
	ReasonBufferExceeded Reason = "buffer-exceeded"
	ReasonRateLimited    Reason = "rate_limited"
	ReasonExecFailed     Reason = "exec_failed"
	ReasonCancelled      Reason = "cancelled"
	ReasonPanic          Reason = "panic"
)

// AdapterOutcome records what happened to one adapter.
type AdapterOutcome struct {
	Adapter      string        `json:"adapter"`
	Status       AdapterStatus `json:"status"`
	Reason       Reason        `json:"reason,omitempty"`
	Version      string        `json:"version"`
	DurationMs   int64         `json:"durationMs"`
	FindingCount int           `json:"findingCount"`
	IssueCount   int           `json:"issueCount"`
	Diagnostics  []string      `json:"diagnostics,omitempty"`
}

// Diagnostic reports a finding that was dropped or altered, or an adapter problem.
type Diagnostic struct {
	Stage   string `json:"stage"`
	Adapter string `json:"adapter,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Diagnostic kinds.
const (
	DiagInvalidEntity     = "invalid_entity"
	DiagNormalizationDrop = "normalization_drop"
	DiagPositionDropped   = "position_dropped"
	DiagAdapterFailure    = "adapter_failure"
)

// Summary holds the counts and rollups shown to users.
type Summary struct {
	TotalIssues       int                     `json:"totalIssues"`
	BySeverity        map[Severity]int        `json:"bySeverity"`
	ByAnalysisType    map[AnalysisType]int    `json:"byAnalysisType"`
	ByTool            map[string]int          `json:"byTool"`
	FilesWithIssues   int                     `json:"filesWithIssues"`
	CorrelationGroups int                     `json:"correlationGroups"`
	GroupsByType      map[CorrelationType]int `json:"groupsByType"`
	Hotspots          int                     `json:"hotspots"`
	AdaptersRan       int                     `json:"adaptersRan"`
	AdaptersSkipped   int                     `json:"adaptersSkipped"`
	AdaptersFailed    int                     `json:"adaptersFailed"`
	AdaptersCancelled int                     `json:"adaptersCancelled"`
	ReasonClasses     map[Reason]int          `json:"reasonClasses"`
	Diagnostics       int                     `json:"diagnostics"`
}

// AnalysisResult is the top-level output of one analysis.
type AnalysisResult struct {
	GeneratedAt       time.Time              `json:"generatedAt"`
	ProjectRoot       string                 `json:"projectRoot"`
	Issues            []Issue                `json:"issues"`
	FileMetrics       map[string]FileMetrics `json:"fileMetrics"`
	CorrelationGroups []CorrelationGroup     `json:"correlationGroups"`
	Hotspots          []Hotspot              `json:"hotspots"`
	AdapterOutcomes   []AdapterOutcome       `json:"adapterOutcomes"`
	Diagnostics       []Diagnostic           `json:"diagnostics"`
	Summary           Summary                `json:"summary"`
}

// IssueIndex maps issue ids to their position in r.Issues.
func (r *AnalysisResult) IssueIndex() map[string]int {
	idx := make(map[string]int, len(r.Issues))
	for i, iss := range r.Issues {
		idx[iss.ID] = i
	}
	return idx
}

// Outcome returns the outcome recorded for the named adapter.
func (r *AnalysisResult) Outcome(adapter string) (AdapterOutcome, bool) {
	for _, o := range r.AdapterOutcomes {
		if o.Adapter == adapter {
			return o, true
		}
	}
	return AdapterOutcome{}, false
}
