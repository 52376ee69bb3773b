package model

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestSeverityWeights(t *testing.T) {
	want := map[Severity]int{
		SeverityCritical: 5,
		SeverityHigh:     4,
		SeverityMedium:   3,
		SeverityLow:      2,
		SeverityInfo:     1,
	}
	for sev, w := range want {
		if got := sev.Weight(); got != w {
			t.Errorf("%s.Weight() = %d, want %d", sev, got, w)
		}
	}
	if Severity("urgent").Valid() {
		t.Error("unknown severity reported as valid")
	}
}

func TestParseEntityKind(t *testing.T) {
	tests := []struct {
		in   string
		want EntityKind
		ok   bool
	}{
		{"", KindFile, true},
		{"function", KindFunction, true},
		{"interface", KindInterface, true},
		{"class", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseEntityKind(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseEntityKind(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestEntityIdentityIgnoresDisplayFields(t *testing.T) {
	a := Entity{Kind: KindFile, CanonicalPath: "src/a.ts", DisplayName: "a.ts", OriginalIdentifier: "/repo/src/a.ts"}
	b := Entity{Kind: KindFile, CanonicalPath: "src/a.ts", DisplayName: "other", OriginalIdentifier: "src/a.ts"}
	c := Entity{Kind: KindFunction, CanonicalPath: "src/a.ts"}
	if !a.Same(b) {
		t.Error("entities with same kind and path must be equal")
	}
	if a.Same(c) {
		t.Error("entities with different kinds must differ")
	}
}

func TestEnumsSerializeLowercase(t *testing.T) {
	data, err := json.Marshal(struct {
		S Severity
		T AnalysisType
		C CorrelationType
	}{SeverityCritical, TypeArchitectureDebt, CorrelationFormalStatic})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"S":"critical","T":"architecture_debt","C":"formal_static"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestAnalysisResultJSONRoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	res := AnalysisResult{
		GeneratedAt: now,
		ProjectRoot: "/repo",
		Issues: []Issue{{
			ID:           "semgrep:no-null:a.js:10:abc",
			Entity:       Entity{Kind: KindFile, CanonicalPath: "a.js", DisplayName: "a.js", OriginalIdentifier: "/repo/a.js"},
			Severity:     SeverityMedium,
			AnalysisType: TypeCorrectness,
			ToolName:     "semgrep",
			RuleID:       "no-null",
			Title:        "null",
			Line:         10,
			CreatedAt:    now,
			Metadata: Metadata{
				Tool:        json.RawMessage(`{"check_id":"no-null"}`),
				Occurrences: 2,
				Flow:        &Flow{Source: "a.js", Sink: "b.js", Steps: []string{"c.js"}},
			},
		}},
		FileMetrics: map[string]FileMetrics{
			"a.js": {
				CanonicalPath:            "a.js",
				IssueCount:               1,
				SeverityDistribution:     map[Severity]int{SeverityMedium: 1},
				AnalysisTypeDistribution: map[AnalysisType]int{TypeCorrectness: 1},
				ToolCoverage:             []string{"semgrep"},
				HotspotScore:             3,
			},
		},
		AdapterOutcomes: []AdapterOutcome{{Adapter: "semgrep", Status: StatusRan, Version: "1.0"}},
	}

	first, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	var decoded AnalysisResult
	if err := json.Unmarshal(first, &decoded); err != nil {
		t.Fatal(err)
	}
	second, err := json.Marshal(decoded)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("round trip changed encoding:\n%s\n%s", first, second)
	}
	if !decoded.GeneratedAt.Equal(now) {
		t.Errorf("generatedAt = %v, want %v", decoded.GeneratedAt, now)
	}
}

func TestFlowFiles(t *testing.T) {
	f := &Flow{Source: "a.go", Sink: "b.go", Steps: []string{"a.go", "c.go", ""}}
	files := f.Files()
	if len(files) != 3 || !files["a.go"] || !files["b.go"] || !files["c.go"] {
		t.Errorf("unexpected flow files: %v", files)
	}
}
