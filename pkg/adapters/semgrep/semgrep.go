// Package semgrep runs the semgrep CLI and parses its JSON report.
package semgrep

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/user/crosscheck/pkg/adapter"
	"github.com/user/crosscheck/pkg/model"
)

const Name = "semgrep"

type Adapter struct {
	Bin string
}

func New() adapter.Adapter {
	return &Adapter{Bin: "semgrep"}
}

func (a *Adapter) Name() string      { return Name }
func (a *Adapter) IsAvailable() bool { return adapter.LookPath(a.Bin) }
func (a *Adapter) Version() string   { return adapter.ProbeVersion(a.Bin, "--version") }

func (a *Adapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		Languages: []string{"go", "c", "cpp", "java", "kotlin", "javascript", "typescript", "python", "ruby", "rust", "csharp", "php", "swift", "scala"},
		Kinds:     []model.EntityKind{model.KindFile},
		Class:     adapter.ClassLocal,
		Notes:     "rules from --config (default auto)",
	}
}

func (a *Adapter) Analyze(ctx context.Context, targets []string, opts adapter.Options) adapter.Output {
	args := []string{"scan", "--json", "--quiet", "--metrics=off", "--config", opts.Settings.String("config", "auto")}
	for _, ex := range opts.Settings.Strings("exclude") {
		args = append(args, "--exclude", ex)
	}
	args = append(args, targets...)

	res, err := opts.Runner().Run(ctx, adapter.Command{Name: a.Bin, Args: args, Dir: opts.ProjectRoot})
	if err != nil {
		return adapter.FailedWith(err)
	}
	// 0: clean run, 1: findings with --error; anything else is a tool error.
	if res.ExitCode > 1 {
		return adapter.Failed(model.ReasonExecFailed, fmt.Errorf("exit status %d: %s", res.ExitCode, tail(res.Stderr)))
	}
	out, err := Parse(res.Stdout)
	if err != nil {
		return adapter.Output{Failure: adapter.ParseError(err)}
	}
	return out
}

type report struct {
	Results []result `json:"results"`
	Errors  []struct {
		Level   string `json:"level"`
		Message string `json:"message"`
		Path    string `json:"path"`
	} `json:"errors"`
	Paths struct {
		Scanned []string `json:"scanned"`
	} `json:"paths"`
}

type position struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

type result struct {
	CheckID string   `json:"check_id"`
	Path    string   `json:"path"`
	Start   position `json:"start"`
	End     position `json:"end"`
	Extra   struct {
		Message  string `json:"message"`
		Severity string `json:"severity"` // INFO|WARNING|ERROR
		Metadata struct {
			Category string `json:"category"`
		} `json:"metadata"`
		DataflowTrace *struct {
			TaintSource json.RawMessage `json:"taint_source"`
			TaintSink   json.RawMessage `json:"taint_sink"`
		} `json:"dataflow_trace"`
	} `json:"extra"`
}

// Parse converts semgrep's --json output into raw findings.
func Parse(data []byte) (adapter.Output, error) {
	var doc report
	if err := json.Unmarshal(data, &doc); err != nil {
		return adapter.Output{}, err
	}
	raw := struct {
		Results []json.RawMessage `json:"results"`
	}{}
	_ = json.Unmarshal(data, &raw)

	out := adapter.Output{Findings: make([]adapter.RawFinding, 0, len(doc.Results))}
	for i, r := range doc.Results {
		f := adapter.RawFinding{
			RawPath:     filepath.ToSlash(r.Path),
			Kind:        model.KindFile,
			Line:        r.Start.Line,
			Column:      r.Start.Col,
			EndLine:     r.End.Line,
			EndColumn:   r.End.Col,
			SeverityRaw: r.Extra.Severity,
			CategoryRaw: r.Extra.Metadata.Category,
			Title:       title(r),
			Description: r.Extra.Message,
			RuleID:      r.CheckID,
		}
		if i < len(raw.Results) {
			f.Metadata = raw.Results[i]
		}
		if tr := r.Extra.DataflowTrace; tr != nil {
			if src, ok := traceFile(tr.TaintSource); ok {
				f.Flow = &adapter.RawFlow{Source: src, Sink: f.RawPath}
			}
		}
		out.Findings = append(out.Findings, f)
	}
	for _, e := range doc.Errors {
		out.Diagnostics = append(out.Diagnostics, fmt.Sprintf("semgrep %s: %s %s", strings.ToLower(e.Level), e.Path, firstLine(e.Message)))
	}
	out.Stats.FilesScanned = len(doc.Paths.Scanned)
	return out, nil
}

// title is the last dotted segment of the rule id, e.g. "sqli" for
// "python.lang.security.sqli".
func title(r result) string {
	id := r.CheckID
	if i := strings.LastIndex(id, "."); i >= 0 {
		id = id[i+1:]
	}
	if id == "" {
		return firstLine(r.Extra.Message)
	}
	return id
}

// traceFile extracts the file of a taint source. Semgrep encodes locations
// as ["CliLoc", [{"path": ...}, "text"]].
func traceFile(raw json.RawMessage) (string, bool) {
	var loc []json.RawMessage
	if err := json.Unmarshal(raw, &loc); err != nil || len(loc) < 2 {
		return "", false
	}
	var inner []json.RawMessage
	if err := json.Unmarshal(loc[1], &inner); err != nil || len(inner) == 0 {
		return "", false
	}
	var l struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(inner[0], &l); err != nil || l.Path == "" {
		return "", false
	}
	return filepath.ToSlash(l.Path), true
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func tail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 512 {
		s = s[len(s)-512:]
	}
	return s
}
