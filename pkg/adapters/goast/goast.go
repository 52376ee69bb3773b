// Package goast is an in-process Go analyzer. It loads type-checked packages
// with golang.org/x/tools/go/packages and reports error-handling and design
// problems, some of them against function entities.
package goast

import (
	"context"
	"fmt"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/tools/go/packages"

	"github.com/user/crosscheck/pkg/adapter"
	"github.com/user/crosscheck/pkg/model"
)

const Name = "goast"

// Rule identifiers.
const (
	RuleUncheckedError  = "unchecked-error"
	RuleEmptyErrorCheck = "empty-error-check"
	RulePanicCall       = "panic-call"
	RuleLongFunction    = "long-function"
	RuleHighComplexity  = "high-complexity"
)

const (
	DefaultMaxFunctionLines = 50
	DefaultMaxComplexity    = 15
)

// defaultIgnored lists callees whose error result is conventionally dropped.
var defaultIgnored = []string{
	"fmt.Print", "fmt.Printf", "fmt.Println",
	"fmt.Fprint", "fmt.Fprintf", "fmt.Fprintln",
	"(*bytes.Buffer).Write", "(*bytes.Buffer).WriteString", "(*bytes.Buffer).WriteByte", "(*bytes.Buffer).WriteRune",
	"(*strings.Builder).Write", "(*strings.Builder).WriteString", "(*strings.Builder).WriteByte", "(*strings.Builder).WriteRune",
}

type Adapter struct {
	// GoBin is the go command used by the package loader.
	GoBin string
}

func New() adapter.Adapter {
	return &Adapter{GoBin: "go"}
}

func (a *Adapter) Name() string      { return Name }
func (a *Adapter) IsAvailable() bool { return adapter.LookPath(a.GoBin) }

func (a *Adapter) Version() string {
	v := adapter.ProbeVersion(a.GoBin, "version")
	if f := strings.Fields(v); len(f) >= 3 && f[0] == "go" {
		return f[2]
	}
	return v
}

func (a *Adapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		Languages: []string{"go"},
		Kinds:     []model.EntityKind{model.KindFile, model.KindFunction},
		Class:     adapter.ClassInProcess,
		Notes:     "type-checked AST rules; function-level rules report function entities",
	}
}

// Config tunes the rules.
type Config struct {
	MaxFunctionLines int
	MaxComplexity    int
	Ignored          map[string]bool
}

func configFrom(s adapter.Settings) Config {
	c := Config{
		MaxFunctionLines: s.Int("max_function_lines", DefaultMaxFunctionLines),
		MaxComplexity:    s.Int("max_complexity", DefaultMaxComplexity),
		Ignored:          make(map[string]bool),
	}
	for _, name := range defaultIgnored {
		c.Ignored[name] = true
	}
	for _, name := range s.Strings("ignore") {
		c.Ignored[name] = true
	}
	return c
}

func (a *Adapter) Analyze(ctx context.Context, targets []string, opts adapter.Options) adapter.Output {
	cfg := &packages.Config{
		Context: ctx,
		Mode: packages.NeedName |
			packages.NeedFiles |
			packages.NeedSyntax |
			packages.NeedTypes |
			packages.NeedTypesInfo,
		Dir:  opts.ProjectRoot,
		Fset: token.NewFileSet(),
	}
	pkgs, err := packages.Load(cfg, patterns(targets, opts.ProjectRoot)...)
	if err != nil {
		if ctx.Err() != nil {
			return adapter.FailedWith(ctx.Err())
		}
		return adapter.Failed(model.ReasonExecFailed, fmt.Errorf("loading packages: %w", err))
	}

	rules := configFrom(opts.Settings)
	var out adapter.Output
	files := 0
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		for _, e := range p.Errors {
			out.Diagnostics = append(out.Diagnostics, e.Error())
		}
	})
	for _, p := range pkgs {
		if p.TypesInfo == nil {
			continue
		}
		for _, f := range p.Syntax {
			files++
			out.Findings = append(out.Findings, inspect(cfg.Fset, p.TypesInfo, f, rules)...)
		}
	}
	if err := ctx.Err(); err != nil {
		return adapter.FailedWith(err)
	}
	out.Stats.FilesScanned = files
	out.Stats.RulesRun = 5
	return out
}

// patterns turns targets into package patterns. Directories load recursively.
func patterns(targets []string, root string) []string {
	var pats []string
	for _, t := range targets {
		st, err := os.Stat(t)
		if err != nil {
			continue
		}
		if !st.IsDir() {
			if filepath.Ext(t) == ".go" {
				pats = append(pats, "file="+t)
			}
			continue
		}
		if root != "" {
			if rel, err := filepath.Rel(root, t); err == nil && !strings.HasPrefix(rel, "..") {
				pats = append(pats, "./"+filepath.ToSlash(filepath.Join(rel, "...")))
				continue
			}
		}
		pats = append(pats, filepath.ToSlash(filepath.Join(t, "...")))
	}
	if len(pats) == 0 {
		pats = []string{"./..."}
	}
	return pats
}
