// Package sarifimport ingests SARIF logs produced outside crosscheck, so any
// SARIF-emitting tool can take part in correlation without its own adapter.
package sarifimport

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/user/crosscheck/pkg/adapter"
	"github.com/user/crosscheck/pkg/model"
	"github.com/user/crosscheck/pkg/sarif"
)

const Name = "sarif"

// DefaultMaxBytes bounds one SARIF file.
const DefaultMaxBytes = 50 << 20

type Adapter struct{}

func New() adapter.Adapter {
	return &Adapter{}
}

func (a *Adapter) Name() string      { return Name }
func (a *Adapter) IsAvailable() bool { return true }
func (a *Adapter) Version() string   { return "2.1.0" }

func (a *Adapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		Languages: []string{"*"},
		Kinds:     []model.EntityKind{model.KindFile},
		Class:     adapter.ClassInProcess,
		Notes:     "reads settings.files and any .sarif target; findings carry the run's driver name",
	}
}

func (a *Adapter) Analyze(ctx context.Context, targets []string, opts adapter.Options) adapter.Output {
	files := Files(targets, opts.Settings.Strings("files"), opts.ProjectRoot)
	if len(files) == 0 {
		return adapter.Output{}
	}
	limit := int64(opts.Settings.Int("max_bytes", DefaultMaxBytes))

	var out adapter.Output
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return adapter.FailedWith(err)
		}
		log, err := read(file, limit)
		if err != nil {
			return adapter.Output{Failure: adapter.ParseError(fmt.Errorf("%s: %w", file, err))}
		}
		out.Findings = append(out.Findings, sarif.Findings(log, true)...)
	}
	out.Stats.FilesScanned = len(files)
	return out
}

// Files resolves configured files against root and adds every target that
// is itself a .sarif file. The result is sorted and duplicate-free.
func Files(targets, configured []string, root string) []string {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if !filepath.IsAbs(p) && root != "" {
			p = filepath.Join(root, p)
		}
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}
	for _, c := range configured {
		add(c)
	}
	for _, t := range targets {
		if ext := strings.ToLower(filepath.Ext(t)); ext == ".sarif" {
			add(t)
		}
	}
	sort.Strings(files)
	return files
}

func read(path string, limit int64) (*sarif.Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if st, err := f.Stat(); err == nil && limit > 0 && st.Size() > limit {
		return nil, fmt.Errorf("file is %d bytes, limit %d", st.Size(), limit)
	}
	return sarif.Decode(io.LimitReader(f, limit+1))
}
