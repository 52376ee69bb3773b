// Package aggregate derives per-file metrics and hotspots.
package aggregate

import (
	"math"
	"sort"

	"github.com/user/crosscheck/pkg/model"
)

// DefaultHotspotThreshold is the risk a file must reach to be a hotspot.
const DefaultHotspotThreshold = 40.0

// Action tags recommended for hotspots.
const (
	ActionSecurityReview = "security-review"
	ActionRefactor       = "refactor"
	ActionFormalReview   = "formal-review"
	ActionCodeReview     = "code-review"
)

type Options struct {
	HotspotThreshold float64
}

func (o Options) threshold() float64 {
	if o.HotspotThreshold <= 0 {
		return DefaultHotspotThreshold
	}
	return o.HotspotThreshold
}

// FileMetrics folds file-kind issues into one record per canonical path.
// Proven-safe results are counted but carry no weight in the hotspot score.
func FileMetrics(issues []model.Issue) map[string]model.FileMetrics {
	type acc struct {
		m      model.FileMetrics
		tools  map[string]bool
		risky  map[string]bool
		weight int
	}
	files := map[string]*acc{}
	for _, iss := range issues {
		if !iss.Entity.IsFile() {
			continue
		}
		p := iss.Entity.CanonicalPath
		a, ok := files[p]
		if !ok {
			a = &acc{
				m: model.FileMetrics{
					CanonicalPath:            p,
					SeverityDistribution:     map[model.Severity]int{},
					AnalysisTypeDistribution: map[model.AnalysisType]int{},
				},
				tools: map[string]bool{},
				risky: map[string]bool{},
			}
			files[p] = a
		}
		a.m.IssueCount++
		a.m.SeverityDistribution[iss.Severity]++
		a.m.AnalysisTypeDistribution[iss.AnalysisType]++
		a.tools[iss.ToolName] = true
		if iss.ProvenSafe() {
			continue
		}
		a.risky[iss.ToolName] = true
		a.weight += iss.Severity.Weight()
	}

	out := make(map[string]model.FileMetrics, len(files))
	for p, a := range files {
		a.m.ToolCoverage = make([]string, 0, len(a.tools))
		for t := range a.tools {
			a.m.ToolCoverage = append(a.m.ToolCoverage, t)
		}
		sort.Strings(a.m.ToolCoverage)
		if len(a.risky) > 0 {
			a.m.HotspotScore = math.Min(100, float64(a.weight+5*(len(a.risky)-1)))
		}
		out[p] = a.m
	}
	return out
}

// Hotspots selects files whose risk reaches the threshold or that carry a
// critical issue that was not proven safe. A file's risk is the larger of its hotspot score and the
// risk of any correlation group touching it; a file selected only for a
// critical issue is lifted to the threshold.
func Hotspots(issues []model.Issue, metrics map[string]model.FileMetrics, groups []model.CorrelationGroup, opts Options) []model.Hotspot {
	h := opts.threshold()

	groupRisk := map[string]float64{}
	for _, g := range groups {
		for _, p := range g.FilesAffected {
			if g.RiskScore > groupRisk[p] {
				groupRisk[p] = g.RiskScore
			}
		}
	}
	byFile := map[string][]model.Issue{}
	for _, iss := range issues {
		if iss.Entity.IsFile() {
			byFile[iss.Entity.CanonicalPath] = append(byFile[iss.Entity.CanonicalPath], iss)
		}
	}

	paths := make([]string, 0, len(metrics))
	for p := range metrics {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var out []model.Hotspot
	for _, p := range paths {
		m := metrics[p]
		risk := math.Max(m.HotspotScore, groupRisk[p])
		critical := false
		for _, iss := range byFile[p] {
			if iss.Severity == model.SeverityCritical && !iss.ProvenSafe() {
				critical = true
				break
			}
		}
		if risk < h && !critical {
			continue
		}
		if risk < h {
			risk = h
		}
		ids := make([]string, 0, len(byFile[p]))
		for _, iss := range byFile[p] {
			ids = append(ids, iss.ID)
		}
		out = append(out, model.Hotspot{
			CanonicalPath:      p,
			IssueCount:         m.IssueCount,
			ToolCoverage:       append([]string(nil), m.ToolCoverage...),
			RiskScore:          math.Min(100, risk),
			RecommendedActions: Actions(byFile[p]),
			IssueIDs:           ids,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RiskScore != out[j].RiskScore {
			return out[i].RiskScore > out[j].RiskScore
		}
		return out[i].CanonicalPath < out[j].CanonicalPath
	})
	return out
}

// DominantType returns the most frequent analysis type among issues not
// proven safe; ties go to the type declared first.
func DominantType(issues []model.Issue) model.AnalysisType {
	counts := map[model.AnalysisType]int{}
	for _, iss := range issues {
		if !iss.ProvenSafe() {
			counts[iss.AnalysisType]++
		}
	}
	var best model.AnalysisType
	bestN := 0
	for _, t := range model.AnalysisTypes() {
		if counts[t] > bestN {
			best, bestN = t, counts[t]
		}
	}
	return best
}

// Actions derives the recommended actions for one file's issues.
func Actions(issues []model.Issue) []string {
	switch DominantType(issues) {
	case model.TypeSecurity:
		return []string{ActionSecurityReview}
	case model.TypeArchitectureDesign:
		return []string{ActionRefactor}
	case model.TypeCorrectness:
		for _, iss := range issues {
			if iss.IsFormal() && !iss.ProvenSafe() {
				return []string{ActionFormalReview}
			}
		}
	}
	return []string{ActionCodeReview}
}
