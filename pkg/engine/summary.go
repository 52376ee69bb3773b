package engine

import "github.com/user/crosscheck/pkg/model"

// Summarize computes the counts and rollups for r.
func Summarize(r *model.AnalysisResult) model.Summary {
	s := model.Summary{
		TotalIssues:       len(r.Issues),
		BySeverity:        map[model.Severity]int{},
		ByAnalysisType:    map[model.AnalysisType]int{},
		ByTool:            map[string]int{},
		FilesWithIssues:   len(r.FileMetrics),
		CorrelationGroups: len(r.CorrelationGroups),
		GroupsByType:      map[model.CorrelationType]int{},
		Hotspots:          len(r.Hotspots),
		ReasonClasses:     map[model.Reason]int{},
		Diagnostics:       len(r.Diagnostics),
	}
	for _, iss := range r.Issues {
		s.BySeverity[iss.Severity]++
		s.ByAnalysisType[iss.AnalysisType]++
		s.ByTool[iss.ToolName]++
	}
	for _, g := range r.CorrelationGroups {
		s.GroupsByType[g.Type]++
	}
	for _, o := range r.AdapterOutcomes {
		switch o.Status {
		case model.StatusRan:
			s.AdaptersRan++
		case model.StatusSkipped:
			s.AdaptersSkipped++
		case model.StatusFailed:
			s.AdaptersFailed++
		case model.StatusCancelled:
			s.AdaptersCancelled++
		}
		if o.Reason != "" {
			s.ReasonClasses[o.Reason]++
		}
	}
	return s
}
