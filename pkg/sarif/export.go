package sarif

import (
	"sort"

	"github.com/user/crosscheck/pkg/model"
)

// FromIssues builds a log with one run per tool. versions supplies driver versions.
func FromIssues(issues []model.Issue, versions map[string]string) *Log {
	byTool := make(map[string][]model.Issue)
	for _, iss := range issues {
		byTool[iss.ToolName] = append(byTool[iss.ToolName], iss)
	}
	tools := make([]string, 0, len(byTool))
	for t := range byTool {
		tools = append(tools, t)
	}
	sort.Strings(tools)

	l := &Log{Version: Version, Schema: Schema, Runs: make([]Run, 0, len(tools))}
	for _, tool := range tools {
		list := byTool[tool]
		sortIssues(list)
		results := make([]Result, 0, len(list))
		for _, iss := range list {
			results = append(results, toResult(iss))
		}
		l.Runs = append(l.Runs, Run{
			Tool:    Tool{Driver: Driver{Name: tool, Version: versions[tool]}},
			Results: results,
		})
	}
	return l
}

func toResult(iss model.Issue) Result {
	text := iss.Title
	if iss.Description != "" {
		text = iss.Description
	}
	loc := PhysicalLocation{ArtifactLocation: ArtifactLocation{URI: iss.Entity.CanonicalPath}}
	if iss.HasLine() {
		loc.Region = &Region{
			StartLine:   iss.Line,
			StartColumn: iss.Column,
			EndLine:     iss.EndLine,
			EndColumn:   iss.EndColumn,
		}
	}
	return Result{
		RuleID:    iss.RuleID,
		Level:     level(iss.Severity),
		Message:   Message{Text: text},
		Locations: []Location{{PhysicalLocation: loc}},
		Properties: map[string]any{
			"issueId":      iss.ID,
			"severity":     string(iss.Severity),
			"analysisType": string(iss.AnalysisType),
		},
	}
}

func sortIssues(list []model.Issue) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Entity.CanonicalPath != b.Entity.CanonicalPath {
			return a.Entity.CanonicalPath < b.Entity.CanonicalPath
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.ID < b.ID
	})
}

func level(s model.Severity) string {
	switch s {
	case model.SeverityCritical, model.SeverityHigh:
		return "error"
	case model.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}
