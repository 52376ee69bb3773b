// Package gosec runs the gosec Go security checker.
package gosec

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/user/crosscheck/pkg/adapter"
	"github.com/user/crosscheck/pkg/model"
)

const Name = "gosec"

type Adapter struct {
	Bin string
}

func New() adapter.Adapter {
	return &Adapter{Bin: "gosec"}
}

func (a *Adapter) Name() string      { return Name }
func (a *Adapter) IsAvailable() bool { return adapter.LookPath(a.Bin) }
func (a *Adapter) Version() string   { return adapter.ProbeVersion(a.Bin, "-version") }

func (a *Adapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		Languages: []string{"go"},
		Kinds:     []model.EntityKind{model.KindFile},
		Class:     adapter.ClassLocal,
	}
}

func (a *Adapter) Analyze(ctx context.Context, targets []string, opts adapter.Options) adapter.Output {
	args := []string{"-fmt=json", "-quiet", "-no-fail"}
	if ex := opts.Settings.Strings("exclude"); len(ex) > 0 {
		args = append(args, "-exclude="+strings.Join(ex, ","))
	}
	args = append(args, patterns(targets)...)

	res, err := opts.Runner().Run(ctx, adapter.Command{Name: a.Bin, Args: args, Dir: opts.ProjectRoot})
	if err != nil {
		return adapter.FailedWith(err)
	}
	// gosec exits 1 when it finds issues and -no-fail is ignored by old versions.
	if res.ExitCode > 1 {
		return adapter.Failed(model.ReasonExecFailed, fmt.Errorf("exit status %d: %s", res.ExitCode, strings.TrimSpace(string(res.Stderr))))
	}
	out, err := Parse(res.Stdout)
	if err != nil {
		return adapter.Output{Failure: adapter.ParseError(err)}
	}
	return out
}

// patterns turns directories into recursive package patterns.
func patterns(targets []string) []string {
	if len(targets) == 0 {
		return []string{"./..."}
	}
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		if strings.HasSuffix(t, ".go") || strings.HasSuffix(t, "...") {
			out = append(out, t)
			continue
		}
		out = append(out, filepath.ToSlash(filepath.Join(t, "...")))
	}
	return out
}

type report struct {
	GolangErrors map[string][]struct {
		Line   int    `json:"line"`
		Column int    `json:"column"`
		Error  string `json:"error"`
	} `json:"Golang errors"`
	Issues []json.RawMessage `json:"Issues"`
	Stats  struct {
		Files int `json:"files"`
		Found int `json:"found"`
	} `json:"Stats"`
}

type issue struct {
	Severity   string `json:"severity"`
	Confidence string `json:"confidence"`
	Cwe        struct {
		ID string `json:"id"`
	} `json:"cwe"`
	RuleID  string `json:"rule_id"`
	Details string `json:"details"`
	File    string `json:"file"`
	Code    string `json:"code"`
	Line    string `json:"line"`
	Column  string `json:"column"`
}

// Parse converts gosec -fmt=json output into raw findings.
func Parse(data []byte) (adapter.Output, error) {
	var doc report
	if err := json.Unmarshal(data, &doc); err != nil {
		return adapter.Output{}, err
	}
	out := adapter.Output{Findings: make([]adapter.RawFinding, 0, len(doc.Issues))}
	for _, raw := range doc.Issues {
		var is issue
		if err := json.Unmarshal(raw, &is); err != nil {
			return adapter.Output{}, err
		}
		line, end := lineRange(is.Line)
		col, _ := strconv.Atoi(is.Column)
		desc := is.Details
		if is.Cwe.ID != "" {
			desc = fmt.Sprintf("%s (CWE-%s)", is.Details, is.Cwe.ID)
		}
		out.Findings = append(out.Findings, adapter.RawFinding{
			RawPath:     filepath.ToSlash(is.File),
			Kind:        model.KindFile,
			Line:        line,
			Column:      col,
			EndLine:     end,
			SeverityRaw: is.Severity,
			CategoryRaw: is.RuleID,
			Title:       is.Details,
			Description: desc,
			RuleID:      is.RuleID,
			Metadata:    raw,
		})
	}
	for file, errs := range doc.GolangErrors {
		for _, e := range errs {
			out.Diagnostics = append(out.Diagnostics, fmt.Sprintf("%s:%d: %s", file, e.Line, e.Error))
		}
	}
	out.Stats.FilesScanned = doc.Stats.Files
	return out, nil
}

// lineRange parses "12" or "12-14".
func lineRange(s string) (start, end int) {
	a, b, ok := strings.Cut(s, "-")
	start, _ = strconv.Atoi(strings.TrimSpace(a))
	if ok {
		end, _ = strconv.Atoi(strings.TrimSpace(b))
	}
	return start, end
}
