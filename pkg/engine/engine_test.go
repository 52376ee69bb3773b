package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/crosscheck/pkg/adapter"
	"github.com/user/crosscheck/pkg/adapter/adaptertest"
	"github.com/user/crosscheck/pkg/model"
	"github.com/user/crosscheck/pkg/orchestrator"
	"github.com/user/crosscheck/pkg/taxonomy"
)

var fixed = time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)

func clock() time.Time { return fixed }

func tables() *taxonomy.Set {
	s := &taxonomy.Set{}
	s.Put(&taxonomy.Table{Adapter: "x", DefaultType: model.TypeCorrectness, Severity: map[string]model.Severity{"warning": model.SeverityMedium}})
	s.Put(&taxonomy.Table{Adapter: "y", DefaultType: model.TypeCorrectness, Severity: map[string]model.Severity{"error": model.SeverityHigh}})
	return s
}

func config(adapters ...adapter.Adapter) Config {
	return Config{
		ProjectRoot: "/repo",
		Targets:     []string{"/repo"},
		Adapters:    adapters,
		Tables:      tables(),
		Clock:       clock,
		Run:         orchestrator.Options{Languages: map[string]bool{"javascript": true}, Files: 1},
	}
}

func twoToolsSameLine() (*adaptertest.Fake, *adaptertest.Fake) {
	x := &adaptertest.Fake{AdapterName: "x", Findings: []adapter.RawFinding{
		{RawPath: "/repo/a.js", Line: 10, SeverityRaw: "warning", RuleID: "no-null", Title: "possible null"},
	}}
	y := &adaptertest.Fake{AdapterName: "y", Findings: []adapter.RawFinding{
		{RawPath: "a.js", Line: 11, SeverityRaw: "error", RuleID: "NullDeref", Title: "null dereference"},
	}}
	return x, y
}

func TestAnalyzeTwoToolsSameLine(t *testing.T) {
	x, y := twoToolsSameLine()
	res := Analyze(context.Background(), config(x, y))

	if len(res.Issues) != 2 {
		t.Fatalf("issues = %d, want 2", len(res.Issues))
	}
	if !res.Issues[0].Entity.Same(res.Issues[1].Entity) || res.Issues[0].Entity.CanonicalPath != "a.js" {
		t.Errorf("issues not on one entity: %+v / %+v", res.Issues[0].Entity, res.Issues[1].Entity)
	}
	if len(res.CorrelationGroups) != 1 {
		t.Fatalf("groups = %+v", res.CorrelationGroups)
	}
	g := res.CorrelationGroups[0]
	if g.Type != model.CorrelationSameLocation || g.RiskScore != 42.0 {
		t.Errorf("group = %s risk %v, want same_location 42", g.Type, g.RiskScore)
	}
	if len(res.Hotspots) != 1 || res.Hotspots[0].CanonicalPath != "a.js" || res.Hotspots[0].RiskScore < 40 {
		t.Errorf("hotspots = %+v", res.Hotspots)
	}
	if !res.GeneratedAt.Equal(fixed) || !res.Issues[0].CreatedAt.Equal(fixed) {
		t.Error("timestamps must come from the injected clock")
	}
	if res.Summary.AdaptersRan != 2 || res.Summary.TotalIssues != 2 || res.Summary.GroupsByType[model.CorrelationSameLocation] != 1 {
		t.Errorf("summary = %+v", res.Summary)
	}
	for _, o := range res.AdapterOutcomes {
		if o.IssueCount != 1 || o.FindingCount != 1 {
			t.Errorf("%s outcome counts = %d/%d", o.Adapter, o.FindingCount, o.IssueCount)
		}
	}
	if err := Validate(&res); err != nil {
		t.Error(err)
	}
}

func TestAnalyzeTimeoutIsolation(t *testing.T) {
	p := &adaptertest.Fake{AdapterName: "p", Run: adaptertest.Blocking()}
	var found []adapter.RawFinding
	for i := 1; i <= 5; i++ {
		found = append(found, adapter.RawFinding{RawPath: "q.js", Line: i * 10, SeverityRaw: "error", Title: "q finding", RuleID: "q"})
	}
	q := &adaptertest.Fake{AdapterName: "y", Findings: found}

	cfg := config(p, q)
	cfg.Run.Timeouts = orchestrator.Timeouts{PerAdapter: map[string]time.Duration{"p": 30 * time.Millisecond}}
	res := Analyze(context.Background(), cfg)

	if len(res.Issues) != 5 {
		t.Errorf("issues = %d, want 5", len(res.Issues))
	}
	po, _ := res.Outcome("p")
	if po.Status != model.StatusFailed || po.Reason != model.ReasonTimeout {
		t.Errorf("p = %s/%s", po.Status, po.Reason)
	}
	qo, _ := res.Outcome("y")
	if qo.Status != model.StatusRan || qo.IssueCount != 5 {
		t.Errorf("q = %+v", qo)
	}
	if res.Summary.AdaptersFailed != 1 || res.Summary.ReasonClasses[model.ReasonTimeout] != 1 {
		t.Errorf("summary = %+v", res.Summary)
	}
	var failureDiag bool
	for _, d := range res.Diagnostics {
		if d.Adapter == "p" && d.Kind == model.DiagAdapterFailure {
			failureDiag = true
		}
	}
	if !failureDiag {
		t.Error("failed adapter has no diagnostic")
	}
}

func TestFailureIsolationKeepsSurvivorUnchanged(t *testing.T) {
	_, y := twoToolsSameLine()
	alone := Analyze(context.Background(), config(y))

	broken := &adaptertest.Fake{AdapterName: "x", Run: func(context.Context, []string, adapter.Options) adapter.Output {
		return adapter.Failed(model.ReasonExecFailed, nil)
	}}
	withFailure := Analyze(context.Background(), config(broken, y))

	if len(alone.Issues) != len(withFailure.Issues) || alone.Issues[0].ID != withFailure.Issues[0].ID {
		t.Fatalf("survivor issues changed: %+v vs %+v", alone.Issues, withFailure.Issues)
	}
	a, _ := json.Marshal(alone.FileMetrics)
	b, _ := json.Marshal(withFailure.FileMetrics)
	if !bytes.Equal(a, b) {
		t.Errorf("survivor metrics changed:\n%s\n%s", a, b)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	encode := func() []byte {
		x, y := twoToolsSameLine()
		res := Analyze(context.Background(), config(y, x))
		data, err := json.Marshal(res)
		if err != nil {
			t.Fatal(err)
		}
		return data
	}
	first := encode()
	for i := 0; i < 5; i++ {
		if next := encode(); !bytes.Equal(first, next) {
			t.Fatalf("run %d differs:\n%s\n%s", i, first, next)
		}
	}
}

func TestAssembleEmpty(t *testing.T) {
	res := Assemble(Input{GeneratedAt: fixed, ProjectRoot: "/repo"})
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{`"issues":[]`, `"correlationGroups":[]`, `"hotspots":[]`, `"diagnostics":[]`, `"fileMetrics":{}`} {
		if !bytes.Contains(data, []byte(field)) {
			t.Errorf("empty result missing %s: %s", field, data)
		}
	}
	if err := Validate(&res); err != nil {
		t.Error(err)
	}
}

func TestAssembleDropsInvalidFindingsWithDiagnostics(t *testing.T) {
	res := Assemble(Input{
		GeneratedAt: fixed,
		ProjectRoot: "/repo",
		Tables:      tables(),
		Outcomes:    []model.AdapterOutcome{{Adapter: "x", Status: model.StatusRan, FindingCount: 2}},
		Batches: []adapter.Batch{{Adapter: "x", ProjectRoot: "/repo", Findings: []adapter.RawFinding{
			{RawPath: "../etc/passwd", Title: "escape"},
			{RawPath: "ok.js", Title: "fine", Line: 3},
		}}},
	})
	if len(res.Issues) != 1 || res.Summary.Diagnostics == 0 {
		t.Errorf("issues = %d diagnostics = %d", len(res.Issues), res.Summary.Diagnostics)
	}
	if res.AdapterOutcomes[0].IssueCount != 1 {
		t.Errorf("issueCount = %d", res.AdapterOutcomes[0].IssueCount)
	}
}

func TestValidateReportsBrokenReferences(t *testing.T) {
	res := model.AnalysisResult{
		Issues: []model.Issue{{ID: "a", ToolName: "x", Severity: model.SeverityLow,
			Entity: model.Entity{Kind: model.KindFile, CanonicalPath: "a.go"}}},
		FileMetrics:       map[string]model.FileMetrics{"b.go": {}},
		CorrelationGroups: []model.CorrelationGroup{{ID: "g", IssueIDs: []string{"a", "missing"}, RiskScore: 120}},
		Hotspots:          []model.Hotspot{{CanonicalPath: "a.go", RiskScore: 50, IssueIDs: []string{"gone"}}},
	}
	err := Validate(&res)
	if err == nil {
		t.Fatal("expected violations")
	}
	for _, want := range []string{"unknown issue missing", "out of range", "unknown issue gone", "fileMetrics b.go", "missing a.go"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestSnapshotCompare(t *testing.T) {
	issue := func(id string) model.Issue {
		return model.Issue{ID: id, ToolName: "x", Severity: model.SeverityLow,
			Entity: model.Entity{Kind: model.KindFile, CanonicalPath: "a.go"}}
	}
	baseline := &model.AnalysisResult{GeneratedAt: fixed, Issues: []model.Issue{issue("keep"), issue("gone")}}
	current := &model.AnalysisResult{GeneratedAt: fixed, Issues: []model.Issue{issue("new-2"), issue("keep"), issue("new-1")}}

	path := filepath.Join(t.TempDir(), "baseline.json")
	if err := SaveSnapshot(path, baseline); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Issues) != 2 {
		t.Fatalf("loaded %d issues", len(loaded.Issues))
	}

	d := Compare(current, loaded)
	if len(d.New) != 2 || d.New[0].ID != "new-1" || d.New[1].ID != "new-2" {
		t.Errorf("new = %+v", d.New)
	}
	if len(d.Fixed) != 1 || d.Fixed[0].ID != "gone" {
		t.Errorf("fixed = %+v", d.Fixed)
	}
	if len(d.Unchanged) != 1 || d.Unchanged[0].ID != "keep" {
		t.Errorf("unchanged = %+v", d.Unchanged)
	}
}

func TestLoadSnapshotErrors(t *testing.T) {
	if _, err := LoadSnapshot(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
