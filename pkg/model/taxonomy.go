package model

import "strings"

// Severity is the normalized severity of an Issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Severities lists every severity from most to least severe.
func Severities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}
}

// Weight returns the severity weight used by risk scoring (critical=5 .. info=1).
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

func (s Severity) Valid() bool {
	return s.Weight() > 0
}

// ParseSeverity accepts a core severity name in any case.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	return sev, sev.Valid()
}

// AnalysisType is the kind of analysis an Issue contributes to.
type AnalysisType string

const (
	TypeSecurity           AnalysisType = "security"
	TypeQuality            AnalysisType = "quality"
	TypeSemantic           AnalysisType = "semantic"
	TypeArchitectureDesign AnalysisType = "architecture_design"
	TypeArchitectureDebt   AnalysisType = "architecture_debt"
	TypePerformance        AnalysisType = "performance"
	TypeCorrectness        AnalysisType = "correctness"
)

// AnalysisTypes lists every analysis type in declaration order.
// The order breaks ties when picking a dominant type.
func AnalysisTypes() []AnalysisType {
	return []AnalysisType{
		TypeSecurity,
		TypeQuality,
		TypeSemantic,
		TypeArchitectureDesign,
		TypeArchitectureDebt,
		TypePerformance,
		TypeCorrectness,
	}
}

func (t AnalysisType) Valid() bool {
	for _, v := range AnalysisTypes() {
		if v == t {
			return true
		}
	}
	return false
}

func ParseAnalysisType(s string) (AnalysisType, bool) {
	t := AnalysisType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// CorrelationType names one independent partitioning of the issue set.
type CorrelationType string

const (
	CorrelationSameLocation        CorrelationType = "same_location"
	CorrelationSameRuleFamily      CorrelationType = "same_rule_family"
	CorrelationDataFlowOverlap     CorrelationType = "data_flow_overlap"
	CorrelationSemanticEquivalence CorrelationType = "semantic_equivalence"
	CorrelationFormalStatic        CorrelationType = "formal_static"
)

// FormalStatus is the outcome a verification tool reports for a property.
type FormalStatus string

const (
	FormalVerifiedViolation FormalStatus = "verified_violation"
	FormalVerifiedSafe      FormalStatus = "verified_safe"
	FormalUnknown           FormalStatus = "unknown"
)

// Verdict is what a formal result says about a static finding it overlaps.
type Verdict string

const (
	VerdictCorroborated Verdict = "corroborated"
	VerdictRefuted      Verdict = "refuted"
)
