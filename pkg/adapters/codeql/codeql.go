// Package codeql builds CodeQL databases and runs the standard query suites
// against them. Databases are kept in the shared artifact cache so later runs
// skip the expensive extraction step.
package codeql

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/user/crosscheck/pkg/adapter"
	"github.com/user/crosscheck/pkg/model"
	"github.com/user/crosscheck/pkg/sarif"
)

const Name = "codeql"

// DefaultMaxAge is how long a cached database is reused.
const DefaultMaxAge = 24 * time.Hour

// extractors maps detected languages onto CodeQL extractor names.
var extractors = map[string]string{
	"go":         "go",
	"c":          "cpp",
	"cpp":        "cpp",
	"java":       "java",
	"kotlin":     "java",
	"javascript": "javascript",
	"typescript": "javascript",
	"python":     "python",
	"ruby":       "ruby",
	"csharp":     "csharp",
	"swift":      "swift",
}

type Adapter struct {
	Bin string
}

func New() adapter.Adapter {
	return &Adapter{Bin: "codeql"}
}

func (a *Adapter) Name() string      { return Name }
func (a *Adapter) IsAvailable() bool { return adapter.LookPath(a.Bin) }

func (a *Adapter) Version() string {
	return adapter.ProbeVersion(a.Bin, "version", "--format=terse")
}

func (a *Adapter) Capabilities() adapter.Capabilities {
	langs := make([]string, 0, len(extractors))
	for l := range extractors {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return adapter.Capabilities{
		Languages: langs,
		Kinds:     []model.EntityKind{model.KindFile},
		Class:     adapter.ClassDatabase,
		Notes:     "builds one database per language; reports taint paths as data flows",
	}
}

func (a *Adapter) Analyze(ctx context.Context, targets []string, opts adapter.Options) adapter.Output {
	langs := opts.Settings.Strings("languages")
	if len(langs) == 0 {
		langs = Languages(targets)
	}
	if len(langs) == 0 {
		return adapter.Output{}
	}
	var out adapter.Output
	for _, lang := range langs {
		found, err := a.analyzeLanguage(ctx, lang, opts)
		if err != nil {
			return adapter.FailedWith(err)
		}
		out.Findings = append(out.Findings, found...)
	}
	out.Stats.Extra = map[string]int{"databases": len(langs)}
	return out
}

// Languages returns the sorted CodeQL extractors needed for targets.
func Languages(targets []string) []string {
	detected, _ := adapter.DetectLanguages(targets)
	set := make(map[string]bool)
	for l := range detected {
		if x, ok := extractors[l]; ok {
			set[x] = true
		}
	}
	out := make([]string, 0, len(set))
	for x := range set {
		out = append(out, x)
	}
	sort.Strings(out)
	return out
}

// CacheKey identifies the database for one language of one project.
func CacheKey(lang, root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return Name + ":" + lang + ":" + root
}

func (a *Adapter) analyzeLanguage(ctx context.Context, lang string, opts adapter.Options) ([]adapter.RawFinding, error) {
	db, release, err := a.database(ctx, lang, opts)
	if err != nil {
		return nil, err
	}
	defer release()

	tmp, err := os.MkdirTemp("", "codeql-results-*")
	if err != nil {
		return nil, fmt.Errorf("creating results dir: %w", err)
	}
	defer os.RemoveAll(tmp)
	results := filepath.Join(tmp, lang+".sarif")

	suite := opts.Settings.String("suite", "codeql/"+lang+"-queries")
	args := []string{"database", "analyze", db, "--format=sarif-latest", "--output=" + results, suite}
	if threads := opts.Settings.Int("threads", 0); threads > 0 {
		args = append(args, fmt.Sprintf("--threads=%d", threads))
	}
	res, err := opts.Runner().Run(ctx, adapter.Command{Name: a.Bin, Args: args, Dir: opts.ProjectRoot})
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, exitError("database analyze", res)
	}

	f, err := os.Open(results)
	if err != nil {
		return nil, adapter.ParseError(fmt.Errorf("reading results: %w", err))
	}
	defer f.Close()
	log, err := sarif.Decode(f)
	if err != nil {
		return nil, adapter.ParseError(err)
	}
	return sarif.Findings(log, false), nil
}

// database returns a usable database directory for lang, creating it when
// the cache has no fresh copy. The returned release must be called once the
// database is no longer read.
func (a *Adapter) database(ctx context.Context, lang string, opts adapter.Options) (string, func(), error) {
	c := opts.Cache
	if c == nil {
		dir, err := os.MkdirTemp("", "codeql-db-*")
		if err != nil {
			return "", nil, fmt.Errorf("creating database dir: %w", err)
		}
		db := filepath.Join(dir, lang)
		if err := a.create(ctx, db, lang, opts); err != nil {
			os.RemoveAll(dir)
			return "", nil, err
		}
		return db, func() { os.RemoveAll(dir) }, nil
	}

	key := CacheKey(lang, opts.ProjectRoot)
	lease, err := c.Write(key)
	if err != nil {
		return "", nil, err
	}
	entry, fresh, err := c.Fresh(key)
	if err != nil {
		lease.Release()
		return "", nil, err
	}
	if !fresh {
		db := c.Path(key)
		if err := os.MkdirAll(filepath.Dir(db), 0755); err != nil {
			lease.Release()
			return "", nil, err
		}
		if err := a.create(ctx, db, lang, opts); err != nil {
			lease.Release()
			return "", nil, err
		}
		if entry, err = c.Put(key, opts.Settings.Duration("max_age", DefaultMaxAge)); err != nil {
			lease.Release()
			return "", nil, err
		}
		if opts.Logger != nil {
			opts.Logger.Infow("codeql database created", "language", lang, "path", entry.Path)
		}
	} else if opts.Logger != nil {
		opts.Logger.Debugw("codeql database reused", "language", lang, "path", entry.Path)
	}

	// Keep holding the key while the database is analyzed; other readers share.
	if err := lease.Downgrade(); err != nil {
		lease.Release()
		return "", nil, err
	}
	return entry.Path, lease.Release, nil
}

func (a *Adapter) create(ctx context.Context, db, lang string, opts adapter.Options) error {
	args := []string{"database", "create", db, "--language=" + lang, "--source-root=" + opts.ProjectRoot, "--overwrite"}
	if cmd := opts.Settings.String("build_command", ""); cmd != "" {
		args = append(args, "--command="+cmd)
	} else if lang != "cpp" && lang != "java" && lang != "csharp" && lang != "swift" {
		args = append(args, "--build-mode=none")
	}
	res, err := opts.Runner().Run(ctx, adapter.Command{Name: a.Bin, Args: args, Dir: opts.ProjectRoot})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return exitError("database create", res)
	}
	return nil
}

func exitError(step string, res adapter.RunResult) error {
	msg := strings.TrimSpace(string(res.Stderr))
	if i := strings.LastIndexByte(msg, '\n'); i >= 0 {
		msg = msg[i+1:]
	}
	return &adapter.Failure{Reason: model.ReasonExecFailed,
		Err: fmt.Errorf("codeql %s: exit status %d: %s", step, res.ExitCode, msg)}
}
