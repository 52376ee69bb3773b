package gosec

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/user/crosscheck/pkg/adapter"
	"github.com/user/crosscheck/pkg/adapter/adaptertest"
	"github.com/user/crosscheck/pkg/model"
)

func TestParse(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "report.json"))
	if err != nil {
		t.Fatal(err)
	}
	out, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Findings) != 2 {
		t.Fatalf("findings = %d", len(out.Findings))
	}
	g204 := out.Findings[0]
	if g204.RuleID != "G204" || g204.CategoryRaw != "G204" || g204.SeverityRaw != "HIGH" {
		t.Errorf("g204 = %+v", g204)
	}
	if g204.Line != 27 || g204.Column != 9 || g204.EndLine != 0 {
		t.Errorf("g204 position = %d:%d-%d", g204.Line, g204.Column, g204.EndLine)
	}
	if g204.Description != "Subprocess launched with variable (CWE-78)" {
		t.Errorf("description = %q", g204.Description)
	}
	if g104 := out.Findings[1]; g104.Line != 40 || g104.EndLine != 41 {
		t.Errorf("range = %d-%d", g104.Line, g104.EndLine)
	}
	if len(out.Diagnostics) != 1 || out.Stats.FilesScanned != 12 {
		t.Errorf("diagnostics = %v stats = %+v", out.Diagnostics, out.Stats)
	}
}

func TestPatterns(t *testing.T) {
	got := patterns([]string{"pkg", "main.go", "./internal/..."})
	want := []string{"pkg/...", "main.go", "./internal/..."}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("patterns[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if p := patterns(nil); len(p) != 1 || p[0] != "./..." {
		t.Errorf("default pattern = %v", p)
	}
}

func TestAnalyzeTreatsExitOneAsFindings(t *testing.T) {
	fixture, err := filepath.Abs(filepath.Join("testdata", "report.json"))
	if err != nil {
		t.Fatal(err)
	}
	a := &Adapter{Bin: adaptertest.Script(t, "cat "+fixture+"; exit 1")}
	out := a.Analyze(context.Background(), []string{"."}, adapter.Options{})
	if out.Failure != nil {
		t.Fatal(out.Failure)
	}
	if len(out.Findings) != 2 {
		t.Errorf("findings = %d", len(out.Findings))
	}

	broken := &Adapter{Bin: adaptertest.Script(t, "exit 2")}
	if out := broken.Analyze(context.Background(), nil, adapter.Options{}); out.Failure == nil || out.Failure.Reason != model.ReasonExecFailed {
		t.Errorf("failure = %v", out.Failure)
	}
}
