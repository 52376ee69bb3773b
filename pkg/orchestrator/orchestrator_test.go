package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/crosscheck/pkg/adapter"
	"github.com/user/crosscheck/pkg/adapter/adaptertest"
	"github.com/user/crosscheck/pkg/model"
)

var goOnly = map[string]bool{"go": true}

func fixedClock() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

func findings(n int) []adapter.RawFinding {
	out := make([]adapter.RawFinding, n)
	for i := range out {
		out[i] = adapter.RawFinding{RawPath: "main.go", Line: i + 1, Title: "t", RuleID: "r"}
	}
	return out
}

func outcome(t *testing.T, res Result, name string) model.AdapterOutcome {
	t.Helper()
	for _, o := range res.Outcomes {
		if o.Adapter == name {
			return o
		}
	}
	t.Fatalf("no outcome for %s", name)
	return model.AdapterOutcome{}
}

func TestTimeoutIsolation(t *testing.T) {
	p := &adaptertest.Fake{AdapterName: "p", Run: adaptertest.Blocking()}
	q := &adaptertest.Fake{AdapterName: "q", Findings: findings(5), Ver: "1.2.3"}

	res := Run(context.Background(), []string{"."}, []adapter.Adapter{p, q}, Options{
		Languages: goOnly,
		Files:     1,
		Timeouts:  Timeouts{PerAdapter: map[string]time.Duration{"p": 50 * time.Millisecond}},
		Clock:     fixedClock,
	})

	po := outcome(t, res, "p")
	if po.Status != model.StatusFailed || po.Reason != model.ReasonTimeout {
		t.Errorf("p = %s/%s, want failed/timeout", po.Status, po.Reason)
	}
	qo := outcome(t, res, "q")
	if qo.Status != model.StatusRan || qo.FindingCount != 5 || qo.Version != "1.2.3" {
		t.Errorf("q = %+v", qo)
	}
	if len(res.Batches) != 1 || res.Batches[0].Adapter != "q" || len(res.Batches[0].Findings) != 5 {
		t.Fatalf("batches = %+v", res.Batches)
	}
	if po.DurationMs != 0 || qo.DurationMs != 0 {
		t.Error("durations must come from the injected clock")
	}
}

func TestSkippedAdapters(t *testing.T) {
	missing := &adaptertest.Fake{AdapterName: "missing", Unavailable: true}
	cobol := &adaptertest.Fake{AdapterName: "cobol", Caps: adapter.Capabilities{Languages: []string{"cobol"}}}
	anyLang := &adaptertest.Fake{AdapterName: "any", Findings: findings(1)}

	res := Run(context.Background(), nil, []adapter.Adapter{missing, cobol, anyLang}, Options{Languages: goOnly})

	if o := outcome(t, res, "missing"); o.Status != model.StatusSkipped || o.Reason != model.ReasonNotAvailable {
		t.Errorf("missing = %s/%s", o.Status, o.Reason)
	}
	if o := outcome(t, res, "cobol"); o.Status != model.StatusSkipped || o.Reason != model.ReasonNotApplicable {
		t.Errorf("cobol = %s/%s", o.Status, o.Reason)
	}
	if missing.Calls() != 0 || cobol.Calls() != 0 {
		t.Error("skipped adapters must not be invoked")
	}
	if o := outcome(t, res, "any"); o.Status != model.StatusRan {
		t.Errorf("any = %s", o.Status)
	}
}

func TestFailureIsolation(t *testing.T) {
	panics := &adaptertest.Fake{AdapterName: "boom", Run: func(context.Context, []string, adapter.Options) adapter.Output {
		panic("nil map")
	}}
	broken := &adaptertest.Fake{AdapterName: "broken", Run: func(context.Context, []string, adapter.Options) adapter.Output {
		return adapter.Output{Failure: adapter.ParseError(errors.New("unexpected EOF"))}
	}}
	exit := &adaptertest.Fake{AdapterName: "exit", Run: func(context.Context, []string, adapter.Options) adapter.Output {
		return adapter.Failed(model.ReasonExecFailed, errors.New("exit status 2"))
	}}
	gone := &adaptertest.Fake{AdapterName: "gone", Run: func(context.Context, []string, adapter.Options) adapter.Output {
		return adapter.FailedWith(adapter.ErrUnavailable)
	}}
	ok := &adaptertest.Fake{AdapterName: "ok", Findings: findings(3)}

	res := Run(context.Background(), nil, []adapter.Adapter{panics, broken, exit, gone, ok}, Options{Languages: goOnly})

	want := map[string][2]string{
		"boom":   {string(model.StatusFailed), string(model.ReasonPanic)},
		"broken": {string(model.StatusFailed), string(model.ReasonParseError)},
		"exit":   {string(model.StatusFailed), string(model.ReasonExecFailed)},
		"gone":   {string(model.StatusSkipped), string(model.ReasonNotAvailable)},
		"ok":     {string(model.StatusRan), ""},
	}
	for name, w := range want {
		o := outcome(t, res, name)
		if string(o.Status) != w[0] || string(o.Reason) != w[1] {
			t.Errorf("%s = %s/%s, want %s/%s", name, o.Status, o.Reason, w[0], w[1])
		}
		if o.Status == model.StatusFailed && len(o.Diagnostics) == 0 {
			t.Errorf("%s: failed outcome without diagnostics", name)
		}
	}
	if len(res.Batches) != 1 || res.Batches[0].Adapter != "ok" {
		t.Errorf("only the successful adapter contributes findings: %+v", res.Batches)
	}
}

func TestCancellation(t *testing.T) {
	started := make(chan struct{})
	first := &adaptertest.Fake{AdapterName: "a", Run: func(ctx context.Context, _ []string, _ adapter.Options) adapter.Output {
		close(started)
		<-ctx.Done()
		return adapter.FailedWith(ctx.Err())
	}}
	second := &adaptertest.Fake{AdapterName: "b", Findings: findings(2)}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	res := Run(ctx, nil, []adapter.Adapter{second, first}, Options{Languages: goOnly, MaxConcurrent: 1})

	if o := outcome(t, res, "a"); o.Status != model.StatusCancelled || o.Reason != model.ReasonCancelled {
		t.Errorf("a = %s/%s", o.Status, o.Reason)
	}
	if o := outcome(t, res, "b"); o.Status != model.StatusCancelled {
		t.Errorf("b = %s, want cancelled", o.Status)
	}
	if second.Calls() != 0 {
		t.Error("queued adapter started after cancellation")
	}
	if len(res.Batches) != 0 {
		t.Errorf("cancelled run kept findings: %+v", res.Batches)
	}
}

func TestBoundedConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	run := func(context.Context, []string, adapter.Options) adapter.Output {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return adapter.Output{}
	}
	var adapters []adapter.Adapter
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		adapters = append(adapters, &adaptertest.Fake{AdapterName: name, Run: run})
	}
	res := Run(context.Background(), nil, adapters, Options{Languages: goOnly, MaxConcurrent: 2})
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency %d exceeds limit 2", got)
	}
	for _, o := range res.Outcomes {
		if o.Status != model.StatusRan {
			t.Errorf("%s = %s", o.Adapter, o.Status)
		}
	}
}

func TestAbandonsAdapterIgnoringCancellation(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	stubborn := &adaptertest.Fake{AdapterName: "stubborn", Run: func(context.Context, []string, adapter.Options) adapter.Output {
		<-release
		return adapter.Output{Findings: findings(1)}
	}}

	start := time.Now()
	res := Run(context.Background(), nil, []adapter.Adapter{stubborn}, Options{
		Languages:    goOnly,
		Timeouts:     Timeouts{PerAdapter: map[string]time.Duration{"stubborn": 20 * time.Millisecond}},
		AbandonAfter: 20 * time.Millisecond,
	})
	if time.Since(start) > 2*time.Second {
		t.Fatal("orchestrator waited on an adapter that ignores cancellation")
	}
	if o := outcome(t, res, "stubborn"); o.Status != model.StatusFailed || o.Reason != model.ReasonTimeout {
		t.Errorf("stubborn = %s/%s", o.Status, o.Reason)
	}
}

func TestOutcomesOrderedAndDeduplicated(t *testing.T) {
	res := Run(context.Background(), nil, []adapter.Adapter{
		&adaptertest.Fake{AdapterName: "zeta"},
		&adaptertest.Fake{AdapterName: "alpha"},
		&adaptertest.Fake{AdapterName: "alpha"},
		&adaptertest.Fake{AdapterName: "mid"},
	}, Options{Languages: goOnly})

	var names []string
	for _, o := range res.Outcomes {
		names = append(names, o.Adapter)
	}
	if len(names) != 3 || names[0] != "alpha" || names[1] != "mid" || names[2] != "zeta" {
		t.Errorf("outcomes = %v", names)
	}
	if res.Outcomes[0].Version != adapter.Unknown {
		t.Errorf("version = %q, want %q", res.Outcomes[0].Version, adapter.Unknown)
	}
}

func TestOptionsReachAdapter(t *testing.T) {
	var got adapter.Options
	var targets []string
	f := &adaptertest.Fake{AdapterName: "probe", Caps: adapter.Capabilities{Class: adapter.ClassNetwork}, Run: func(_ context.Context, ts []string, o adapter.Options) adapter.Output {
		got, targets = o, ts
		return adapter.Output{}
	}}
	in := []string{"src"}
	Run(context.Background(), in, []adapter.Adapter{f}, Options{
		ProjectRoot: "/repo",
		Languages:   goOnly,
		Settings:    map[string]adapter.Settings{"probe": {"project": "demo"}},
		OutputCap:   1024,
	})
	if got.ProjectRoot != "/repo" || got.Settings.String("project", "") != "demo" || got.OutputCap != 1024 {
		t.Errorf("options = %+v", got)
	}
	if got.Timeout != DefaultNetwork {
		t.Errorf("timeout = %v, want %v", got.Timeout, DefaultNetwork)
	}
	if got.Credentials == nil || got.Logger == nil {
		t.Error("credentials and logger must never be nil")
	}
	targets[0] = "mutated"
	if in[0] != "src" {
		t.Error("adapter received the caller's slice")
	}
}

func TestTimeoutsFor(t *testing.T) {
	var zero Timeouts
	tests := []struct {
		name  string
		class adapter.Class
		files int
		want  time.Duration
	}{
		{"local one file", adapter.ClassLocal, 1, DefaultLocalPerFile},
		{"local no files", adapter.ClassLocal, 0, DefaultLocalPerFile},
		{"local scales", adapter.ClassLocal, 3, 3 * DefaultLocalPerFile},
		{"inprocess scales", adapter.ClassInProcess, 2, 2 * DefaultLocalPerFile},
		{"database", adapter.ClassDatabase, 100, DefaultDatabase},
		{"network", adapter.ClassNetwork, 100, DefaultNetwork},
	}
	for _, tt := range tests {
		if got := zero.For("x", tt.class, tt.files); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
	custom := Timeouts{Network: time.Minute, PerAdapter: map[string]time.Duration{"slow": time.Hour}}
	if got := custom.For("slow", adapter.ClassNetwork, 1); got != time.Hour {
		t.Errorf("override = %v", got)
	}
	if got := custom.For("fast", adapter.ClassNetwork, 1); got != time.Minute {
		t.Errorf("network = %v", got)
	}
}
