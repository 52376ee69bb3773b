package orchestrator

import (
	"time"

	"github.com/user/crosscheck/pkg/adapter"
)

// Default per-class budgets.
const (
	DefaultLocalPerFile = 60 * time.Second
	DefaultDatabase     = 10 * time.Minute
	DefaultNetwork      = 2 * time.Minute
)

// Timeouts holds the per-class budgets and per-adapter overrides.
type Timeouts struct {
	LocalPerFile time.Duration
	Database     time.Duration
	Network      time.Duration
	PerAdapter   map[string]time.Duration
}

// For returns the wall-clock budget for an adapter of class c over files source files.
func (t Timeouts) For(name string, c adapter.Class, files int) time.Duration {
	if d, ok := t.PerAdapter[name]; ok && d > 0 {
		return d
	}
	switch c {
	case adapter.ClassDatabase:
		return orDefault(t.Database, DefaultDatabase)
	case adapter.ClassNetwork:
		return orDefault(t.Network, DefaultNetwork)
	default:
		if files < 1 {
			files = 1
		}
		return orDefault(t.LocalPerFile, DefaultLocalPerFile) * time.Duration(files)
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
