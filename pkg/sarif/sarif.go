// Package sarif reads SARIF 2.1.0 logs into raw findings and writes issues
// back out as SARIF.
package sarif

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

const (
	Version = "2.1.0"
	Schema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

type Log struct {
	Version string `json:"version"`
	Schema  string `json:"$schema,omitempty"`
	Runs    []Run  `json:"runs"`
}

type Run struct {
	Tool               Tool                        `json:"tool"`
	Results            []Result                    `json:"results"`
	OriginalURIBaseIDs map[string]ArtifactLocation `json:"originalUriBaseIds,omitempty"`
}

type Tool struct {
	Driver Driver `json:"driver"`
}

type Driver struct {
	Name            string                `json:"name"`
	Version         string                `json:"version,omitempty"`
	SemanticVersion string                `json:"semanticVersion,omitempty"`
	Rules           []ReportingDescriptor `json:"rules,omitempty"`
}

type ReportingDescriptor struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name,omitempty"`
	ShortDescription     *Message       `json:"shortDescription,omitempty"`
	DefaultConfiguration *Configuration `json:"defaultConfiguration,omitempty"`
	Properties           RuleProperties `json:"properties,omitempty"`
}

type Configuration struct {
	Level string `json:"level,omitempty"`
}

type RuleProperties struct {
	Tags             []string `json:"tags,omitempty"`
	Precision        string   `json:"precision,omitempty"`
	SecuritySeverity string   `json:"security-severity,omitempty"`
}

type Result struct {
	RuleID     string         `json:"ruleId,omitempty"`
	RuleIndex  *int           `json:"ruleIndex,omitempty"`
	Level      string         `json:"level,omitempty"`
	Message    Message        `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	CodeFlows  []CodeFlow     `json:"codeFlows,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

type Message struct {
	Text string `json:"text"`
}

type Location struct {
	PhysicalLocation PhysicalLocation `json:"physicalLocation"`
}

type PhysicalLocation struct {
	ArtifactLocation ArtifactLocation `json:"artifactLocation"`
	Region           *Region          `json:"region,omitempty"`
}

type ArtifactLocation struct {
	URI       string `json:"uri"`
	URIBaseID string `json:"uriBaseId,omitempty"`
}

type Region struct {
	StartLine   int `json:"startLine,omitempty"`
	StartColumn int `json:"startColumn,omitempty"`
	EndLine     int `json:"endLine,omitempty"`
	EndColumn   int `json:"endColumn,omitempty"`
}

type CodeFlow struct {
	ThreadFlows []ThreadFlow `json:"threadFlows"`
}

type ThreadFlow struct {
	Locations []ThreadFlowLocation `json:"locations"`
}

type ThreadFlowLocation struct {
	Location Location `json:"location"`
}

// Decode reads one SARIF log.
func Decode(r io.Reader) (*Log, error) {
	var l Log
	dec := json.NewDecoder(r)
	if err := dec.Decode(&l); err != nil {
		return nil, fmt.Errorf("decode sarif: %w", err)
	}
	if l.Version != "" && !strings.HasPrefix(l.Version, "2.") {
		return nil, fmt.Errorf("unsupported sarif version %q", l.Version)
	}
	return &l, nil
}

// Encode writes l as indented JSON.
func Encode(w io.Writer, l *Log) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(l)
}

// rule returns the descriptor a result refers to, if any.
func (r *Run) rule(res *Result) *ReportingDescriptor {
	rules := r.Tool.Driver.Rules
	if res.RuleIndex != nil && *res.RuleIndex >= 0 && *res.RuleIndex < len(rules) {
		return &rules[*res.RuleIndex]
	}
	for i := range rules {
		if rules[i].ID == res.RuleID {
			return &rules[i]
		}
	}
	return nil
}

// resolveURI expands a uriBaseId against the run's originalUriBaseIds.
func (r *Run) resolveURI(a ArtifactLocation) string {
	uri := a.URI
	if a.URIBaseID == "" {
		return uri
	}
	base, ok := r.OriginalURIBaseIDs[a.URIBaseID]
	if !ok || base.URI == "" {
		return uri
	}
	b, err := url.Parse(base.URI)
	if err != nil {
		return uri
	}
	ref, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	return b.ResolveReference(ref).String()
}

// severityFromScore maps a CVSS-style security-severity onto a core severity name.
func severityFromScore(s string) string {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 {
		return ""
	}
	switch {
	case v >= 9:
		return "critical"
	case v >= 7:
		return "high"
	case v >= 4:
		return "medium"
	default:
		return "low"
	}
}
