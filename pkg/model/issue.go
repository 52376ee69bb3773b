package model

import (
	"encoding/json"
	"time"
)

// Issue is a single normalized finding attached to exactly one Entity.
// Position fields use 0 for "absent"; a present line is always >= 1.
type Issue struct {
	ID           string       `json:"id"`
	Entity       Entity       `json:"entity"`
	Severity     Severity     `json:"severity"`
	AnalysisType AnalysisType `json:"analysisType"`
	ToolName     string       `json:"toolName"`
	RuleID       string       `json:"ruleId,omitempty"`
	RuleFamily   string       `json:"ruleFamily,omitempty"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Line         int          `json:"line,omitempty"`
	Column       int          `json:"column,omitempty"`
	EndLine      int          `json:"endLine,omitempty"`
	EndColumn    int          `json:"endColumn,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	Metadata     Metadata     `json:"metadata"`
}

func (i Issue) HasLine() bool {
	return i.Line > 0
}

// IsFormal reports whether the issue carries a verification outcome.
func (i Issue) IsFormal() bool {
	return i.Metadata.Formal != nil
}

// ProvenSafe reports whether a verifier proved the issue's property holds.
func (i Issue) ProvenSafe() bool {
	return i.Metadata.Formal != nil && i.Metadata.Formal.Status == FormalVerifiedSafe
}

// Metadata holds the per-tool payload plus the few keys the core reads.
type Metadata struct {
	// Tool is the raw adapter payload, kept unchanged for explainability.
	Tool        json.RawMessage `json:"tool,omitempty"`
	Occurrences int             `json:"occurrences,omitempty"`
	Formal      *Formal         `json:"formal,omitempty"`
	Flow        *Flow           `json:"flow,omitempty"`
}

// Formal is a verification-style result for one property.
type Formal struct {
	Status   FormalStatus `json:"status"`
	Property string       `json:"property,omitempty"`
}

// Flow is a source-to-sink path reported by a data-flow capable tool.
// All paths are canonical.
type Flow struct {
	Source string   `json:"source"`
	Sink   string   `json:"sink"`
	Steps  []string `json:"steps,omitempty"`
}

// Files returns the set of files the flow passes through.
func (f *Flow) Files() map[string]bool {
	files := make(map[string]bool, len(f.Steps)+2)
	if f.Source != "" {
		files[f.Source] = true
	}
	if f.Sink != "" {
		files[f.Sink] = true
	}
	for _, s := range f.Steps {
		if s != "" {
			files[s] = true
		}
	}
	return files
}
