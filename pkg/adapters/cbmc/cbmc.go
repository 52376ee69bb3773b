// Package cbmc runs the CBMC bounded model checker over C sources and
// reports every checked property as a formal result.
package cbmc

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/user/crosscheck/pkg/adapter"
	"github.com/user/crosscheck/pkg/model"
)

const Name = "cbmc"

// CBMC exit codes.
const (
	exitSuccess            = 0
	exitVerificationFailed = 10
)

type Adapter struct {
	Bin string
}

func New() adapter.Adapter {
	return &Adapter{Bin: "cbmc"}
}

func (a *Adapter) Name() string      { return Name }
func (a *Adapter) IsAvailable() bool { return adapter.LookPath(a.Bin) }
func (a *Adapter) Version() string   { return adapter.ProbeVersion(a.Bin, "--version") }

func (a *Adapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		Languages: []string{"c"},
		Kinds:     []model.EntityKind{model.KindFile},
		Class:     adapter.ClassLocal,
		Notes:     "one run per translation unit; bounds, pointer, overflow and division checks",
	}
}

func (a *Adapter) Analyze(ctx context.Context, targets []string, opts adapter.Options) adapter.Output {
	files := sources(targets, opts.Settings.Int("max_files", 50))
	if len(files) == 0 {
		return adapter.Output{}
	}
	checks := opts.Settings.Strings("checks")
	if len(checks) == 0 {
		checks = []string{"--bounds-check", "--pointer-check", "--signed-overflow-check", "--div-by-zero-check"}
	}
	unwind := opts.Settings.Int("unwind", 8)

	var out adapter.Output
	for _, file := range files {
		args := append([]string{file, "--json-ui", "--unwind", strconv.Itoa(unwind)}, checks...)
		if fn := opts.Settings.String("function", ""); fn != "" {
			args = append(args, "--function", fn)
		}
		res, err := opts.Runner().Run(ctx, adapter.Command{Name: a.Bin, Args: args, Dir: opts.ProjectRoot})
		if err != nil {
			return adapter.FailedWith(err)
		}
		if res.ExitCode != exitSuccess && res.ExitCode != exitVerificationFailed {
			// A translation unit CBMC cannot parse does not sink the others.
			out.Diagnostics = append(out.Diagnostics, fmt.Sprintf("%s: cbmc exit status %d", file, res.ExitCode))
			continue
		}
		found, err := Parse(res.Stdout)
		if err != nil {
			return adapter.Output{Failure: adapter.ParseError(fmt.Errorf("%s: %w", file, err))}
		}
		out.Findings = append(out.Findings, found...)
	}
	out.Stats.FilesScanned = len(files)
	return out
}

// sources collects C translation units under targets in sorted order.
func sources(targets []string, limit int) []string {
	var files []string
	for _, t := range targets {
		_ = filepath.WalkDir(t, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if p != t && (strings.HasPrefix(d.Name(), ".") || d.Name() == "vendor" || d.Name() == "node_modules") {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(p) == ".c" {
				files = append(files, p)
			}
			return nil
		})
	}
	sort.Strings(files)
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files
}

type message struct {
	Result []property `json:"result"`
}

type property struct {
	Property       string `json:"property"`
	Description    string `json:"description"`
	Status         string `json:"status"`
	SourceLocation struct {
		File             string `json:"file"`
		Function         string `json:"function"`
		Line             string `json:"line"`
		WorkingDirectory string `json:"workingDirectory"`
	} `json:"sourceLocation"`
}

// Parse reads the --json-ui message stream and returns one finding per
// property result.
func Parse(data []byte) ([]adapter.RawFinding, error) {
	var msgs []json.RawMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, err
	}
	var findings []adapter.RawFinding
	for _, raw := range msgs {
		var m message
		if err := json.Unmarshal(raw, &m); err != nil || m.Result == nil {
			continue
		}
		for _, p := range m.Result {
			findings = append(findings, finding(p))
		}
	}
	return findings, nil
}

func finding(p property) adapter.RawFinding {
	class := propertyClass(p.Property)
	status := formalStatus(p.Status)
	line, _ := strconv.Atoi(p.SourceLocation.Line)

	path := p.SourceLocation.File
	if wd := p.SourceLocation.WorkingDirectory; wd != "" && !filepath.IsAbs(path) {
		path = filepath.Join(wd, path)
	}
	sev := strings.ToLower(p.Status)
	if status == model.FormalUnknown {
		sev = "unknown"
	}
	meta, _ := json.Marshal(map[string]string{
		"property": p.Property,
		"status":   p.Status,
		"function": p.SourceLocation.Function,
	})
	return adapter.RawFinding{
		RawPath:     filepath.ToSlash(path),
		Kind:        model.KindFile,
		Line:        line,
		SeverityRaw: sev,
		CategoryRaw: class,
		Title:       title(p),
		Description: fmt.Sprintf("%s: %s", p.Property, strings.ToLower(p.Status)),
		RuleID:      class,
		Formal:      &model.Formal{Status: status, Property: p.Property},
		Metadata:    meta,
	}
}

// title names the property itself, since one line often carries several
// checks with the same description.
func title(p property) string {
	if p.Description == "" {
		return p.Property
	}
	return fmt.Sprintf("%s [%s]", p.Description, p.Property)
}

// propertyClass extracts "array_bounds" from "main.array_bounds.1".
func propertyClass(prop string) string {
	parts := strings.Split(prop, ".")
	if len(parts) >= 3 {
		return strings.Join(parts[1:len(parts)-1], ".")
	}
	return prop
}

func formalStatus(s string) model.FormalStatus {
	switch strings.ToUpper(s) {
	case "SUCCESS":
		return model.FormalVerifiedSafe
	case "FAILURE":
		return model.FormalVerifiedViolation
	default:
		return model.FormalUnknown
	}
}
