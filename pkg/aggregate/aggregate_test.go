package aggregate

import (
	"reflect"
	"testing"

	"github.com/user/crosscheck/pkg/model"
)

func iss(id, tool, path string, sev model.Severity, typ model.AnalysisType) model.Issue {
	return model.Issue{
		ID:           id,
		Entity:       model.Entity{Kind: model.KindFile, CanonicalPath: path},
		Severity:     sev,
		AnalysisType: typ,
		ToolName:     tool,
	}
}

func TestFileMetrics(t *testing.T) {
	fn := iss("f", "goast", "pkg/a.go:Run", model.SeverityHigh, model.TypeQuality)
	fn.Entity.Kind = model.KindFunction
	issues := []model.Issue{
		iss("1", "semgrep", "a.js", model.SeverityMedium, model.TypeSecurity),
		iss("2", "eslint", "a.js", model.SeverityHigh, model.TypeSecurity),
		iss("3", "semgrep", "b.js", model.SeverityLow, model.TypeQuality),
		fn,
	}
	m := FileMetrics(issues)
	if len(m) != 2 {
		t.Fatalf("metrics keys = %v", m)
	}
	a := m["a.js"]
	if a.IssueCount != 2 || a.HotspotScore != 12 {
		t.Errorf("a.js = %+v", a)
	}
	if !reflect.DeepEqual(a.ToolCoverage, []string{"eslint", "semgrep"}) {
		t.Errorf("tool coverage = %v", a.ToolCoverage)
	}
	if a.SeverityDistribution[model.SeverityHigh] != 1 || a.AnalysisTypeDistribution[model.TypeSecurity] != 2 {
		t.Errorf("distributions = %+v", a)
	}
	if m["b.js"].HotspotScore != 2 {
		t.Errorf("b.js score = %v", m["b.js"].HotspotScore)
	}
}

func TestHotspotScoreCapped(t *testing.T) {
	var issues []model.Issue
	for i := 0; i < 30; i++ {
		issues = append(issues, iss(string(rune('a'+i)), "t", "x.c", model.SeverityCritical, model.TypeCorrectness))
	}
	if got := FileMetrics(issues)["x.c"].HotspotScore; got != 100 {
		t.Errorf("score = %v, want 100", got)
	}
}

func TestHotspotFromCorrelatedGroup(t *testing.T) {
	issues := []model.Issue{
		iss("x1", "x", "a.js", model.SeverityMedium, model.TypeCorrectness),
		iss("y1", "y", "a.js", model.SeverityHigh, model.TypeCorrectness),
	}
	m := FileMetrics(issues)
	groups := []model.CorrelationGroup{{ID: "g", RiskScore: 42, FilesAffected: []string{"a.js"}, IssueIDs: []string{"x1", "y1"}}}
	hs := Hotspots(issues, m, groups, Options{})
	if len(hs) != 1 {
		t.Fatalf("hotspots = %+v", hs)
	}
	h := hs[0]
	if h.RiskScore != 42 || h.IssueCount != 2 || !reflect.DeepEqual(h.IssueIDs, []string{"x1", "y1"}) {
		t.Errorf("hotspot = %+v", h)
	}
	if !reflect.DeepEqual(h.RecommendedActions, []string{ActionCodeReview}) {
		t.Errorf("actions = %v", h.RecommendedActions)
	}
}

func TestHotspotSelection(t *testing.T) {
	issues := []model.Issue{
		iss("c", "gitleaks", "secrets.env", model.SeverityCritical, model.TypeSecurity),
		iss("l", "semgrep", "quiet.js", model.SeverityLow, model.TypeQuality),
	}
	for i := 0; i < 10; i++ {
		issues = append(issues, iss(string(rune('A'+i)), "sonarqube", "Big.java", model.SeverityHigh, model.TypeArchitectureDesign))
	}
	hs := Hotspots(issues, FileMetrics(issues), nil, Options{HotspotThreshold: 40})
	if len(hs) != 2 {
		t.Fatalf("hotspots = %+v", hs)
	}
	if hs[0].CanonicalPath != "Big.java" || hs[0].RiskScore != 40 || hs[0].RecommendedActions[0] != ActionRefactor {
		t.Errorf("first hotspot = %+v", hs[0])
	}
	if hs[1].CanonicalPath != "secrets.env" || hs[1].RiskScore != 40 || hs[1].RecommendedActions[0] != ActionSecurityReview {
		t.Errorf("critical-only hotspot = %+v", hs[1])
	}
	for _, h := range hs {
		if h.RiskScore < 40 || h.RiskScore > 100 {
			t.Errorf("risk out of range: %+v", h)
		}
	}
}

func TestActions(t *testing.T) {
	formal := iss("f", "cbmc", "a.c", model.SeverityHigh, model.TypeCorrectness)
	formal.Metadata.Formal = &model.Formal{Status: model.FormalVerifiedViolation}
	tests := []struct {
		name   string
		issues []model.Issue
		want   string
	}{
		{"formal", []model.Issue{formal, iss("s", "semgrep", "a.c", model.SeverityLow, model.TypeCorrectness)}, ActionFormalReview},
		{"correctness without formal", []model.Issue{iss("s", "semgrep", "a.c", model.SeverityLow, model.TypeCorrectness)}, ActionCodeReview},
		{"tie goes to security", []model.Issue{
			iss("a", "x", "a", model.SeverityLow, model.TypeQuality),
			iss("b", "x", "a", model.SeverityLow, model.TypeSecurity),
		}, ActionSecurityReview},
		{"performance", []model.Issue{iss("p", "x", "a", model.SeverityLow, model.TypePerformance)}, ActionCodeReview},
	}
	for _, tt := range tests {
		if got := Actions(tt.issues); len(got) != 1 || got[0] != tt.want {
			t.Errorf("%s: actions = %v, want %s", tt.name, got, tt.want)
		}
	}
}

func formal(i model.Issue, status model.FormalStatus) model.Issue {
	i.Metadata.Formal = &model.Formal{Status: status}
	return i
}

func TestProvenSafeResultsCarryNoRisk(t *testing.T) {
	issues := []model.Issue{
		formal(iss("s1", "cbmc", "safe.c", model.SeverityCritical, model.TypeSecurity), model.FormalVerifiedSafe),
		formal(iss("s2", "cbmc", "safe.c", model.SeverityInfo, model.TypeSecurity), model.FormalVerifiedSafe),
		formal(iss("s3", "cbmc", "mixed.c", model.SeverityInfo, model.TypeSecurity), model.FormalVerifiedSafe),
		formal(iss("s4", "cbmc", "mixed.c", model.SeverityInfo, model.TypeSecurity), model.FormalVerifiedSafe),
		iss("q1", "semgrep", "mixed.c", model.SeverityCritical, model.TypeQuality),
	}
	m := FileMetrics(issues)
	if got := m["safe.c"]; got.IssueCount != 2 || got.HotspotScore != 0 || !reflect.DeepEqual(got.ToolCoverage, []string{"cbmc"}) {
		t.Errorf("safe.c = %+v", got)
	}
	if got := m["mixed.c"].HotspotScore; got != 5 {
		t.Errorf("mixed.c score = %v, want 5", got)
	}

	hs := Hotspots(issues, m, nil, Options{})
	if len(hs) != 1 || hs[0].CanonicalPath != "mixed.c" {
		t.Fatalf("hotspots = %+v", hs)
	}
	if !reflect.DeepEqual(hs[0].RecommendedActions, []string{ActionCodeReview}) {
		t.Errorf("actions = %v, want code-review from the unproven issue", hs[0].RecommendedActions)
	}
}

func TestFormalReviewNeedsUnprovenResult(t *testing.T) {
	safe := []model.Issue{formal(iss("s", "cbmc", "a.c", model.SeverityInfo, model.TypeCorrectness), model.FormalVerifiedSafe)}
	if got := Actions(append(safe, iss("x", "semgrep", "a.c", model.SeverityLow, model.TypeCorrectness))); !reflect.DeepEqual(got, []string{ActionCodeReview}) {
		t.Errorf("actions with only a safe proof = %v", got)
	}
	violated := append(safe, formal(iss("v", "cbmc", "a.c", model.SeverityHigh, model.TypeCorrectness), model.FormalVerifiedViolation))
	if got := Actions(violated); !reflect.DeepEqual(got, []string{ActionFormalReview}) {
		t.Errorf("actions with a violation = %v", got)
	}
}
