// Package engine runs the full pipeline: orchestrate adapters, normalize
// their findings, correlate, aggregate, and assemble an AnalysisResult.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/user/crosscheck/pkg/adapter"
	"github.com/user/crosscheck/pkg/aggregate"
	"github.com/user/crosscheck/pkg/correlate"
	"github.com/user/crosscheck/pkg/logging"
	"github.com/user/crosscheck/pkg/model"
	"github.com/user/crosscheck/pkg/normalize"
	"github.com/user/crosscheck/pkg/orchestrator"
	"github.com/user/crosscheck/pkg/taxonomy"
)

// Config describes one analysis.
type Config struct {
	ProjectRoot string
	Targets     []string
	Adapters    []adapter.Adapter
	// Tables defaults to the built-in taxonomy.
	Tables           *taxonomy.Set
	BucketSize       int
	HotspotThreshold float64
	Run              orchestrator.Options
	// Clock stamps generatedAt and createdAt; defaults to time.Now.
	Clock  func() time.Time
	Logger *zap.SugaredLogger
}

// Analyze runs every adapter and assembles the result. Adapter and finding
// problems are reported inside the result, never as an error.
func Analyze(ctx context.Context, cfg Config) model.AnalysisResult {
	log := logging.OrNop(cfg.Logger)
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	tables, diags := tablesOrDefault(cfg.Tables)

	opts := cfg.Run
	opts.ProjectRoot = cfg.ProjectRoot
	if opts.Logger == nil {
		opts.Logger = log
	}
	if opts.Clock == nil {
		opts.Clock = clock
	}

	targets := cfg.Targets
	if len(targets) == 0 {
		targets = []string{cfg.ProjectRoot}
	}
	log.Debugw("analysis started", "root", cfg.ProjectRoot, "targets", len(targets), "adapters", len(cfg.Adapters))
	run := orchestrator.Run(ctx, targets, cfg.Adapters, opts)

	res := Assemble(Input{
		GeneratedAt:      clock(),
		ProjectRoot:      cfg.ProjectRoot,
		Outcomes:         run.Outcomes,
		Batches:          run.Batches,
		Tables:           tables,
		BucketSize:       cfg.BucketSize,
		HotspotThreshold: cfg.HotspotThreshold,
	})
	if len(diags) > 0 {
		res.Diagnostics = append(diags, res.Diagnostics...)
		res.Summary.Diagnostics = len(res.Diagnostics)
	}
	log.Debugw("analysis finished", "issues", len(res.Issues), "groups", len(res.CorrelationGroups), "hotspots", len(res.Hotspots))
	return res
}

func tablesOrDefault(s *taxonomy.Set) (*taxonomy.Set, []model.Diagnostic) {
	if s != nil {
		return s, nil
	}
	def, err := taxonomy.Default()
	if err != nil {
		// Every adapter then resolves to the documented defaults.
		return nil, []model.Diagnostic{{Stage: "taxonomy", Kind: model.DiagNormalizationDrop, Message: err.Error()}}
	}
	return def, nil
}

// Input is everything the assembler needs once adapters have finished.
type Input struct {
	GeneratedAt      time.Time
	ProjectRoot      string
	Outcomes         []model.AdapterOutcome
	Batches          []adapter.Batch
	Tables           *taxonomy.Set
	BucketSize       int
	HotspotThreshold float64
}

// Assemble runs the pure stages over merged adapter output. The result is
// deterministic for a given input.
func Assemble(in Input) model.AnalysisResult {
	now := in.GeneratedAt.UTC()
	n := normalize.Normalizer{Tables: in.Tables, Now: now}
	norm := n.Normalize(in.Batches)

	outcomes := make([]model.AdapterOutcome, len(in.Outcomes))
	copy(outcomes, in.Outcomes)
	var diags []model.Diagnostic
	for i := range outcomes {
		o := &outcomes[i]
		o.IssueCount = norm.Counts[o.Adapter]
		if o.Status == model.StatusFailed || o.Status == model.StatusCancelled {
			diags = append(diags, model.Diagnostic{
				Stage:   "orchestrate",
				Adapter: o.Adapter,
				Kind:    model.DiagAdapterFailure,
				Message: failureMessage(*o),
			})
		}
	}
	diags = append(diags, norm.Diagnostics...)

	issues := norm.Issues
	if issues == nil {
		issues = []model.Issue{}
	}
	groups := correlate.Correlate(issues, correlate.Options{BucketSize: in.BucketSize})
	if groups == nil {
		groups = []model.CorrelationGroup{}
	}
	metrics := aggregate.FileMetrics(issues)
	hotspots := aggregate.Hotspots(issues, metrics, groups, aggregate.Options{HotspotThreshold: in.HotspotThreshold})
	if hotspots == nil {
		hotspots = []model.Hotspot{}
	}
	if diags == nil {
		diags = []model.Diagnostic{}
	}

	res := model.AnalysisResult{
		GeneratedAt:       now,
		ProjectRoot:       in.ProjectRoot,
		Issues:            issues,
		FileMetrics:       metrics,
		CorrelationGroups: groups,
		Hotspots:          hotspots,
		AdapterOutcomes:   outcomes,
		Diagnostics:       diags,
	}
	res.Summary = Summarize(&res)
	return res
}

func failureMessage(o model.AdapterOutcome) string {
	msg := string(o.Status)
	if o.Reason != "" {
		msg += "/" + string(o.Reason)
	}
	if len(o.Diagnostics) > 0 {
		msg += ": " + o.Diagnostics[0]
	}
	return msg
}
