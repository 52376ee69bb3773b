// Package orchestrator runs a set of adapters with bounded concurrency,
// independent time budgets and failure isolation, and merges their output.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/user/crosscheck/pkg/adapter"
	"github.com/user/crosscheck/pkg/cache"
	"github.com/user/crosscheck/pkg/logging"
	"github.com/user/crosscheck/pkg/model"
)

// DefaultMaxConcurrent is how many adapters run at once.
const DefaultMaxConcurrent = 4

// DefaultAbandonAfter is how long an adapter that ignores cancellation is
// waited for after its budget ends.
const DefaultAbandonAfter = 5 * time.Second

// Options configures one orchestration.
type Options struct {
	ProjectRoot   string
	MaxConcurrent int
	Timeouts      Timeouts
	OutputCap     int64
	Settings      map[string]adapter.Settings
	Credentials   adapter.CredentialProvider
	Cache         *cache.Cache
	// Force is closed on a second interrupt.
	Force  <-chan struct{}
	Logger *zap.SugaredLogger
	// Clock measures durations; defaults to time.Now.
	Clock func() time.Time
	// Languages and Files describe the targets. When Languages is nil the
	// targets are scanned.
	Languages    map[string]bool
	Files        int
	AbandonAfter time.Duration
}

// Result holds one outcome per adapter and the findings of those that ran,
// both ordered by adapter name.
type Result struct {
	Outcomes []model.AdapterOutcome
	Batches  []adapter.Batch
}

type job struct {
	a       adapter.Adapter
	name    string
	outcome model.AdapterOutcome
	batch   *adapter.Batch
}

// Run executes adapters against targets. It never returns an error: every
// adapter ends up with an outcome, and only adapters that ran contribute findings.
func Run(ctx context.Context, targets []string, adapters []adapter.Adapter, opts Options) Result {
	log := logging.OrNop(opts.Logger)
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	limit := opts.MaxConcurrent
	if limit <= 0 {
		limit = DefaultMaxConcurrent
	}
	langs, files := opts.Languages, opts.Files
	if langs == nil {
		langs, files = adapter.DetectLanguages(targets)
	}

	jobs := make([]*job, 0, len(adapters))
	seen := map[string]bool{}
	for _, a := range adapters {
		name := a.Name()
		if seen[name] {
			continue
		}
		seen[name] = true
		jobs = append(jobs, &job{a: a, name: name, outcome: model.AdapterOutcome{Adapter: name, Version: adapter.Unknown}})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].name < jobs[j].name })

	sem := semaphore.NewWeighted(int64(limit))
	var wg sync.WaitGroup
	for i, j := range jobs {
		if reason, ok := preflight(j, langs); !ok {
			j.outcome.Status = model.StatusSkipped
			j.outcome.Reason = reason
			log.Infow("adapter skipped", "adapter", j.name, "reason", reason)
			continue
		}
		// Acquire in dispatch order so waiting adapters are served FIFO.
		if err := sem.Acquire(ctx, 1); err != nil {
			for _, rest := range jobs[i:] {
				if rest.outcome.Status == "" {
					rest.outcome.Status = model.StatusCancelled
					rest.outcome.Reason = model.ReasonCancelled
				}
			}
			break
		}
		wg.Add(1)
		go func(j *job) {
			defer wg.Done()
			defer sem.Release(1)
			run(ctx, j, targets, files, opts, clock, log)
		}(j)
	}
	wg.Wait()

	var res Result
	for _, j := range jobs {
		if j.outcome.Status == "" {
			j.outcome.Status = model.StatusCancelled
			j.outcome.Reason = model.ReasonCancelled
		}
		res.Outcomes = append(res.Outcomes, j.outcome)
		if j.batch != nil {
			res.Batches = append(res.Batches, *j.batch)
		}
	}
	return res
}

// preflight checks availability and applicability without running the tool.
func preflight(j *job, langs map[string]bool) (reason model.Reason, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			reason, ok = model.ReasonPanic, false
			j.outcome.Diagnostics = append(j.outcome.Diagnostics, fmt.Sprintf("panic during availability check: %v", r))
		}
	}()
	if !j.a.IsAvailable() {
		return model.ReasonNotAvailable, false
	}
	if !adapter.Applicable(j.a.Capabilities(), langs) {
		return model.ReasonNotApplicable, false
	}
	return "", true
}

func run(ctx context.Context, j *job, targets []string, files int, opts Options, clock func() time.Time, log *zap.SugaredLogger) {
	alog := log.With("adapter", j.name)
	if ctx.Err() != nil {
		j.outcome.Status = model.StatusCancelled
		j.outcome.Reason = model.ReasonCancelled
		return
	}

	caps, version := describe(j.a)
	j.outcome.Version = version
	budget := opts.Timeouts.For(j.name, caps.Class, files)

	actx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	aopts := adapter.Options{
		ProjectRoot: opts.ProjectRoot,
		Settings:    opts.Settings[j.name],
		Credentials: opts.Credentials,
		Logger:      alog,
		Cache:       opts.Cache,
		Force:       opts.Force,
		OutputCap:   opts.OutputCap,
		Timeout:     budget,
	}
	if aopts.Credentials == nil {
		aopts.Credentials = adapter.NoCredentials
	}
	tcopy := append([]string(nil), targets...)

	alog.Infow("adapter started", "class", caps.Class, "budget", budget)
	start := clock()
	done := make(chan adapter.Output, 1)
	go func() { done <- analyze(actx, j.a, tcopy, aopts) }()

	var out adapter.Output
	select {
	case out = <-done:
	case <-actx.Done():
		abandon := opts.AbandonAfter
		if abandon <= 0 {
			abandon = DefaultAbandonAfter
		}
		select {
		case out = <-done:
		case <-time.After(abandon):
			out = adapter.FailedWith(actx.Err())
			alog.Warnw("adapter ignored cancellation; abandoned")
		}
	}
	j.outcome.DurationMs = clock().Sub(start).Milliseconds()
	j.outcome.Diagnostics = append(j.outcome.Diagnostics, out.Diagnostics...)

	switch err := actx.Err(); {
	case ctx.Err() != nil && out.Failure == nil:
		// Results that arrive after a global cancel are partial.
		out.Failure = &adapter.Failure{Reason: model.ReasonCancelled, Err: ctx.Err()}
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		out.Failure = &adapter.Failure{Reason: model.ReasonTimeout, Err: fmt.Errorf("exceeded %s budget", budget)}
	}

	if f := out.Failure; f != nil {
		j.outcome.Reason = f.Reason
		switch {
		case f.Reason == model.ReasonNotAvailable:
			j.outcome.Status = model.StatusSkipped
		case ctx.Err() != nil:
			j.outcome.Status = model.StatusCancelled
			j.outcome.Reason = model.ReasonCancelled
		case f.Reason == model.ReasonCancelled:
			j.outcome.Status = model.StatusCancelled
		default:
			j.outcome.Status = model.StatusFailed
		}
		if len(out.Diagnostics) == 0 {
			j.outcome.Diagnostics = append(j.outcome.Diagnostics, f.Error())
		}
		alog.Warnw("adapter did not complete", "status", j.outcome.Status, "reason", j.outcome.Reason,
			"duration", time.Duration(j.outcome.DurationMs)*time.Millisecond, "error", f.Err)
		return
	}

	j.outcome.Status = model.StatusRan
	j.outcome.FindingCount = len(out.Findings)
	j.batch = &adapter.Batch{Adapter: j.name, ProjectRoot: opts.ProjectRoot, Findings: out.Findings}
	alog.Infow("adapter finished", "status", j.outcome.Status, "findings", len(out.Findings),
		"duration", time.Duration(j.outcome.DurationMs)*time.Millisecond)
}

func describe(a adapter.Adapter) (caps adapter.Capabilities, version string) {
	version = adapter.Unknown
	defer func() {
		if r := recover(); r != nil {
			version = adapter.Unknown
		}
	}()
	caps = a.Capabilities()
	if v := a.Version(); v != "" {
		version = v
	}
	return caps, version
}

// analyze converts a panic inside an adapter into a failure.
func analyze(ctx context.Context, a adapter.Adapter, targets []string, opts adapter.Options) (out adapter.Output) {
	defer func() {
		if r := recover(); r != nil {
			out = adapter.Output{
				Failure:     &adapter.Failure{Reason: model.ReasonPanic, Err: fmt.Errorf("%v", r)},
				Diagnostics: []string{fmt.Sprintf("panic: %v\n%s", r, debug.Stack())},
			}
		}
	}()
	return a.Analyze(ctx, targets, opts)
}
