// Package gitleaks scans for hardcoded secrets with Gitleaks.
package gitleaks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/crosscheck/pkg/adapter"
	"github.com/user/crosscheck/pkg/model"
)

const Name = "gitleaks"

type Adapter struct {
	Bin string
}

func New() adapter.Adapter {
	return &Adapter{Bin: "gitleaks"}
}

func (g *Adapter) Name() string      { return Name }
func (g *Adapter) IsAvailable() bool { return adapter.LookPath(g.Bin) }
func (g *Adapter) Version() string   { return adapter.ProbeVersion(g.Bin, "version") }

func (g *Adapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		Languages: []string{"*"},
		Kinds:     []model.EntityKind{model.KindFile},
		Class:     adapter.ClassLocal,
		Notes:     "secrets are redacted before they leave the tool",
	}
}

// Analyze scans each target in turn. Gitleaks exits 1 when leaks are found,
// so the report file is read regardless of that exit code.
func (g *Adapter) Analyze(ctx context.Context, targets []string, opts adapter.Options) adapter.Output {
	if len(targets) == 0 {
		targets = []string{"."}
	}
	var out adapter.Output
	for _, target := range targets {
		found, err := g.scan(ctx, target, opts)
		if err != nil {
			return adapter.FailedWith(err)
		}
		out.Findings = append(out.Findings, found...)
	}
	return out
}

func (g *Adapter) scan(ctx context.Context, target string, opts adapter.Options) ([]adapter.RawFinding, error) {
	reportFile, err := os.CreateTemp("", "gitleaks-report-*.json")
	if err != nil {
		return nil, fmt.Errorf("creating report file: %w", err)
	}
	reportPath := reportFile.Name()
	reportFile.Close()
	defer os.Remove(reportPath)

	args := []string{"detect", "--source", target, "--report-format", "json", "--report-path", reportPath,
		"--redact", "--no-banner", "--exit-code", "1"}
	if opts.Settings.Bool("no_git", true) {
		args = append(args, "--no-git")
	}
	if cfg := opts.Settings.String("config", ""); cfg != "" {
		args = append(args, "--config", cfg)
	}

	res, err := opts.Runner().Run(ctx, adapter.Command{Name: g.Bin, Args: args, Dir: opts.ProjectRoot})
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 && res.ExitCode != 1 {
		return nil, &adapter.Failure{Reason: model.ReasonExecFailed,
			Err: fmt.Errorf("gitleaks exit status %d: %s", res.ExitCode, strings.TrimSpace(string(res.Stderr)))}
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		return nil, adapter.ParseError(err)
	}
	found, err := Parse(data, target)
	if err != nil {
		return nil, adapter.ParseError(err)
	}
	return found, nil
}

type leak struct {
	Description string  `json:"Description"`
	File        string  `json:"File"`
	StartLine   int     `json:"StartLine"`
	EndLine     int     `json:"EndLine"`
	StartColumn int     `json:"StartColumn"`
	EndColumn   int     `json:"EndColumn"`
	Secret      string  `json:"Secret"`
	RuleID      string  `json:"RuleID"`
	Match       string  `json:"Match"`
	Commit      string  `json:"Commit"`
	Entropy     float64 `json:"Entropy"`
}

// evidence is what is kept of a leak; the secret and the match never are.
type evidence struct {
	RuleID  string  `json:"ruleId"`
	Commit  string  `json:"commit,omitempty"`
	Entropy float64 `json:"entropy,omitempty"`
}

// Parse reads a Gitleaks JSON report. Relative file names are resolved
// against the scanned source.
func Parse(data []byte, source string) ([]adapter.RawFinding, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var leaks []leak
	if err := json.Unmarshal(data, &leaks); err != nil {
		return nil, err
	}
	findings := make([]adapter.RawFinding, 0, len(leaks))
	for _, l := range leaks {
		path := l.File
		if !filepath.IsAbs(path) && source != "" && source != "." && !strings.HasPrefix(filepath.ToSlash(path), filepath.ToSlash(source)+"/") {
			path = filepath.Join(source, path)
		}
		meta, _ := json.Marshal(evidence{RuleID: l.RuleID, Commit: l.Commit, Entropy: l.Entropy})
		title := l.Description
		if title == "" {
			title = l.RuleID
		}
		findings = append(findings, adapter.RawFinding{
			RawPath:     filepath.ToSlash(path),
			Kind:        model.KindFile,
			Line:        l.StartLine,
			Column:      l.StartColumn,
			EndLine:     l.EndLine,
			EndColumn:   l.EndColumn,
			SeverityRaw: "secret",
			CategoryRaw: "secrets",
			Title:       title,
			Description: "Revoke the secret immediately and remove it from version control history.",
			RuleID:      l.RuleID,
			Metadata:    meta,
		})
	}
	return findings, nil
}
