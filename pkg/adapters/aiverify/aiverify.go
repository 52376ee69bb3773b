// Package aiverify asks an LLM to review source files and reports the defects
// it names as semantic findings.
package aiverify

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/user/crosscheck/pkg/adapter"
	"github.com/user/crosscheck/pkg/llm"
	"github.com/user/crosscheck/pkg/model"
)

const Name = "aiverify"

//go:embed prompt.md
var systemPrompt string

const (
	DefaultProvider      = "gemini"
	DefaultMaxFiles      = 20
	DefaultMaxFileBytes  = 64 << 10
	DefaultConcurrency   = 3
	DefaultMinConfidence = 0.5
)

// ProviderFactory builds an llm.Provider; it matches llm.NewProvider.
type ProviderFactory func(ctx context.Context, provider, apiKey, model string) (llm.Provider, error)

type Adapter struct {
	NewProvider ProviderFactory
}

func New() adapter.Adapter {
	return &Adapter{NewProvider: llm.NewProvider}
}

func (a *Adapter) Name() string      { return Name }
func (a *Adapter) IsAvailable() bool { return true }
func (a *Adapter) Version() string   { return adapter.Unknown }

func (a *Adapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		Languages: []string{"*"},
		Kinds:     []model.EntityKind{model.KindFile},
		Class:     adapter.ClassNetwork,
		Notes:     "sends file contents to the configured LLM provider; bounded file count and size",
	}
}

// Finding is one defect as the model reports it.
type Finding struct {
	Line        int     `json:"line"`
	EndLine     int     `json:"end_line"`
	Severity    string  `json:"severity"`
	Category    string  `json:"category"`
	Rule        string  `json:"rule"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

type fileResult struct {
	reviewed    bool
	findings    []adapter.RawFinding
	diagnostics []string
}

func (a *Adapter) Analyze(ctx context.Context, targets []string, opts adapter.Options) adapter.Output {
	providerName := opts.Settings.String("provider", DefaultProvider)
	key, ok := opts.Credential(providerName)
	if !ok || key == "" {
		return adapter.Failed(model.ReasonNotAvailable, fmt.Errorf("%w: no API key for %s", adapter.ErrUnavailable, providerName))
	}

	maxBytes := int64(opts.Settings.Int("max_file_bytes", DefaultMaxFileBytes))
	files, skipped := Files(targets, opts.Settings.Int("max_files", DefaultMaxFiles), maxBytes)
	out := adapter.Output{Diagnostics: skipped}
	if len(files) == 0 {
		return out
	}

	factory := a.NewProvider
	if factory == nil {
		factory = llm.NewProvider
	}
	provider, err := factory(ctx, providerName, key, opts.Settings.String("model", ""))
	if err != nil {
		return adapter.Failed(model.ReasonNotAvailable, err)
	}
	defer provider.Close()

	minConfidence := DefaultMinConfidence
	if v, ok := opts.Settings["min_confidence"].(float64); ok {
		minConfidence = v
	}
	concurrency := opts.Settings.Int("concurrency", DefaultConcurrency)
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]fileResult, len(files))
	sem := semaphore.NewWeighted(int64(concurrency))
	g, gctx := errgroup.WithContext(ctx)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			res, err := review(gctx, provider, file, minConfidence)
			if err != nil {
				if llm.IsRateLimited(err) {
					return &adapter.Failure{Reason: model.ReasonRateLimited, Err: err}
				}
				if gctx.Err() != nil {
					return gctx.Err()
				}
				res.diagnostics = append(res.diagnostics, fmt.Sprintf("%s: %v", file, err))
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return adapter.FailedWith(err)
	}

	reviewed := 0
	for _, r := range results {
		out.Findings = append(out.Findings, r.findings...)
		out.Diagnostics = append(out.Diagnostics, r.diagnostics...)
		if r.reviewed {
			reviewed++
		}
	}
	if reviewed == 0 {
		return adapter.Output{
			Failure:     &adapter.Failure{Reason: model.ReasonExecFailed, Err: errors.New("no file could be reviewed")},
			Diagnostics: out.Diagnostics,
		}
	}
	out.Stats.FilesScanned = reviewed
	return out
}

func review(ctx context.Context, p llm.Provider, file string, minConfidence float64) (fileResult, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return fileResult{}, err
	}
	text, err := p.Generate(ctx, systemPrompt, []llm.Message{{Role: "user", Content: prompt(file, src)}})
	if err != nil {
		return fileResult{}, err
	}
	found, err := Parse(text)
	if err != nil {
		return fileResult{}, err
	}

	lines := strings.Count(string(src), "\n")
	if len(src) > 0 && src[len(src)-1] != '\n' {
		lines++
	}
	res := fileResult{reviewed: true}
	for _, f := range found {
		if f.Confidence > 0 && f.Confidence < minConfidence {
			continue
		}
		if f.Line > lines {
			res.diagnostics = append(res.diagnostics, fmt.Sprintf("%s: line %d beyond end of file, position dropped", file, f.Line))
			f.Line, f.EndLine = 0, 0
		}
		res.findings = append(res.findings, rawFinding(file, f))
	}
	return res, nil
}

func rawFinding(file string, f Finding) adapter.RawFinding {
	rule := strings.ToLower(strings.TrimSpace(f.Rule))
	title := f.Title
	if title == "" {
		title = rule
	}
	meta, _ := json.Marshal(map[string]any{"confidence": f.Confidence, "rule": f.Rule})
	return adapter.RawFinding{
		RawPath:     file,
		Kind:        model.KindFile,
		Line:        f.Line,
		EndLine:     f.EndLine,
		SeverityRaw: f.Severity,
		CategoryRaw: f.Category,
		Title:       title,
		Description: f.Description,
		RuleID:      rule,
		Metadata:    meta,
	}
}

func prompt(file string, src []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n\n", filepath.ToSlash(file))
	for i, line := range strings.Split(strings.TrimRight(string(src), "\n"), "\n") {
		fmt.Fprintf(&b, "%5d | %s\n", i+1, line)
	}
	return b.String()
}

// Parse extracts findings from a model answer. It accepts the documented
// object, a bare array, and either wrapped in a markdown code fence.
func Parse(text string) ([]Finding, error) {
	text = stripFence(strings.TrimSpace(text))
	if strings.HasPrefix(text, "[") {
		var list []Finding
		if err := json.Unmarshal([]byte(text), &list); err != nil {
			return nil, fmt.Errorf("decode findings: %w", err)
		}
		return list, nil
	}
	var resp struct {
		Findings []Finding `json:"findings"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, fmt.Errorf("decode findings: %w", err)
	}
	return resp.Findings, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// Files picks at most limit recognised source files under targets, in sorted
// order. Files larger than maxBytes are skipped and reported.
func Files(targets []string, limit int, maxBytes int64) (files, skipped []string) {
	var all []string
	for _, t := range targets {
		_ = filepath.WalkDir(t, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				name := d.Name()
				if p != t && (strings.HasPrefix(name, ".") || name == "vendor" || name == "node_modules" || name == "testdata") {
					return filepath.SkipDir
				}
				return nil
			}
			if adapter.LanguageOf(p) != "" {
				all = append(all, p)
			}
			return nil
		})
	}
	sort.Strings(all)
	for _, p := range all {
		if limit > 0 && len(files) >= limit {
			skipped = append(skipped, fmt.Sprintf("%d more files not reviewed (max_files %d)", len(all)-len(files)-len(skipped), limit))
			break
		}
		if st, err := os.Stat(p); err == nil && maxBytes > 0 && st.Size() > maxBytes {
			skipped = append(skipped, fmt.Sprintf("%s: %d bytes exceeds max_file_bytes", p, st.Size()))
			continue
		}
		files = append(files, p)
	}
	return files, skipped
}
