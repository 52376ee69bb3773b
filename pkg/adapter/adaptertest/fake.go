// Package adaptertest provides a scriptable adapter for tests.
package adaptertest

import (
	"context"
	"sync/atomic"

	"github.com/user/crosscheck/pkg/adapter"
)

// Fake is an adapter whose behaviour is set by its fields.
type Fake struct {
	AdapterName string
	Unavailable bool
	Ver         string
	Caps        adapter.Capabilities
	// Run is called by Analyze; when nil Analyze returns Findings.
	Run      func(ctx context.Context, targets []string, opts adapter.Options) adapter.Output
	Findings []adapter.RawFinding

	calls atomic.Int32
}

func (f *Fake) Name() string      { return f.AdapterName }
func (f *Fake) IsAvailable() bool { return !f.Unavailable }

func (f *Fake) Version() string {
	if f.Ver == "" {
		return adapter.Unknown
	}
	return f.Ver
}

func (f *Fake) Capabilities() adapter.Capabilities {
	if f.Caps.Class == "" {
		c := f.Caps
		c.Class = adapter.ClassInProcess
		return c
	}
	return f.Caps
}

func (f *Fake) Analyze(ctx context.Context, targets []string, opts adapter.Options) adapter.Output {
	f.calls.Add(1)
	if f.Run != nil {
		return f.Run(ctx, targets, opts)
	}
	return adapter.Output{Findings: append([]adapter.RawFinding(nil), f.Findings...)}
}

// Calls returns how many times Analyze ran.
func (f *Fake) Calls() int {
	return int(f.calls.Load())
}

// Blocking returns a Run func that waits for ctx and then reports the context error.
func Blocking() func(context.Context, []string, adapter.Options) adapter.Output {
	return func(ctx context.Context, _ []string, _ adapter.Options) adapter.Output {
		<-ctx.Done()
		return adapter.FailedWith(ctx.Err())
	}
}
