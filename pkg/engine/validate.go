package engine

import (
	"errors"
	"fmt"

	"github.com/user/crosscheck/pkg/canon"
	"github.com/user/crosscheck/pkg/model"
)

// Validate checks the invariants every AnalysisResult must satisfy and
// returns all violations joined.
func Validate(r *model.AnalysisResult) error {
	var errs []error
	ids := make(map[string]bool, len(r.Issues))
	files := map[string]bool{}
	for _, iss := range r.Issues {
		if ids[iss.ID] {
			errs = append(errs, fmt.Errorf("issue %s: duplicate id", iss.ID))
		}
		ids[iss.ID] = true
		if !canon.IsCanonical(iss.Entity.CanonicalPath) {
			errs = append(errs, fmt.Errorf("issue %s: path %q is not canonical", iss.ID, iss.Entity.CanonicalPath))
		}
		if !iss.Severity.Valid() {
			errs = append(errs, fmt.Errorf("issue %s: invalid severity %q", iss.ID, iss.Severity))
		}
		if iss.ToolName == "" {
			errs = append(errs, fmt.Errorf("issue %s: empty tool name", iss.ID))
		}
		if iss.Line < 0 || (iss.Line == 0 && (iss.EndLine != 0 || iss.Column != 0)) {
			errs = append(errs, fmt.Errorf("issue %s: invalid position", iss.ID))
		}
		if iss.EndLine != 0 && iss.EndLine < iss.Line {
			errs = append(errs, fmt.Errorf("issue %s: endLine %d before line %d", iss.ID, iss.EndLine, iss.Line))
		}
		if iss.Entity.IsFile() {
			files[iss.Entity.CanonicalPath] = true
		}
	}

	for _, g := range r.CorrelationGroups {
		if len(g.IssueIDs) < 2 {
			errs = append(errs, fmt.Errorf("group %s: %d members", g.ID, len(g.IssueIDs)))
		}
		if g.RiskScore < 0 || g.RiskScore > 100 {
			errs = append(errs, fmt.Errorf("group %s: risk %v out of range", g.ID, g.RiskScore))
		}
		for _, id := range g.IssueIDs {
			if !ids[id] {
				errs = append(errs, fmt.Errorf("group %s: unknown issue %s", g.ID, id))
			}
		}
	}
	for _, h := range r.Hotspots {
		if h.RiskScore < 0 || h.RiskScore > 100 {
			errs = append(errs, fmt.Errorf("hotspot %s: risk %v out of range", h.CanonicalPath, h.RiskScore))
		}
		for _, id := range h.IssueIDs {
			if !ids[id] {
				errs = append(errs, fmt.Errorf("hotspot %s: unknown issue %s", h.CanonicalPath, id))
			}
		}
	}

	for p := range r.FileMetrics {
		if !files[p] {
			errs = append(errs, fmt.Errorf("fileMetrics %s: no file-kind issue", p))
		}
	}
	for p := range files {
		if _, ok := r.FileMetrics[p]; !ok {
			errs = append(errs, fmt.Errorf("fileMetrics: missing %s", p))
		}
	}
	return errors.Join(errs...)
}
