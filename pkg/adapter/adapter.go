// Package adapter defines the contract every tool wrapper implements and the
// shared plumbing (subprocess runner, HTTP getter, registry) they are built on.
package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/user/crosscheck/pkg/cache"
	"github.com/user/crosscheck/pkg/model"
)

// ErrUnavailable is reported when an adapter's tool cannot be used.
var ErrUnavailable = errors.New("adapter unavailable")

// ErrUnknownAdapter is returned when a requested adapter is not registered.
var ErrUnknownAdapter = errors.New("unknown adapter")

// Class determines an adapter's default time budget.
type Class string

const (
	ClassLocal     Class = "local"
	ClassDatabase  Class = "database"
	ClassNetwork   Class = "network"
	ClassInProcess Class = "inprocess"
)

// Capabilities advertises what an adapter can analyze.
type Capabilities struct {
	// Languages lists the languages the adapter understands. Empty or "*" means any.
	Languages []string
	Kinds     []model.EntityKind
	Class     Class
	Notes     string
}

// Any reports whether the adapter accepts every language.
func (c Capabilities) Any() bool {
	if len(c.Languages) == 0 {
		return true
	}
	for _, l := range c.Languages {
		if l == "*" {
			return true
		}
	}
	return false
}

// RawFlow is a source-to-sink path with tool-shaped paths.
type RawFlow struct {
	Source string
	Sink   string
	Steps  []string
}

// RawFinding is one record as an adapter produced it, before normalization.
type RawFinding struct {
	RawPath     string
	Kind        model.EntityKind
	Line        int
	Column      int
	EndLine     int
	EndColumn   int
	SeverityRaw string
	// Grade is an A-F rating; when set it takes precedence over SeverityRaw.
	Grade       string
	CategoryRaw string
	Title       string
	Description string
	RuleID      string
	// Tool overrides the reporting tool name, e.g. a SARIF driver.
	Tool     string
	Formal   *model.Formal
	Flow     *RawFlow
	Metadata json.RawMessage
}

// Stats are adapter-level counters reported alongside findings.
type Stats struct {
	FilesScanned int            `json:"filesScanned,omitempty"`
	RulesRun     int            `json:"rulesRun,omitempty"`
	Extra        map[string]int `json:"extra,omitempty"`
}

// Output is the full result of one Analyze call.
type Output struct {
	Findings    []RawFinding
	Stats       Stats
	Diagnostics []string
	// Failure is set when the run did not complete; Findings is then empty.
	Failure *Failure
}

// Failed builds an Output carrying only a failure.
func Failed(reason model.Reason, err error) Output {
	f := &Failure{Reason: reason, Err: err}
	return Output{Failure: f, Diagnostics: []string{f.Error()}}
}

// FailedWith converts any error into a failed Output, keeping the reason of a
// wrapped *Failure.
func FailedWith(err error) Output {
	f := AsFailure(err)
	return Output{Failure: f, Diagnostics: []string{f.Error()}}
}

// Options is the immutable snapshot each adapter receives.
type Options struct {
	ProjectRoot string
	Settings    Settings
	Credentials CredentialProvider
	Logger      *zap.SugaredLogger
	Cache       *cache.Cache
	// Force is closed on a second interrupt; running subprocesses are killed at once.
	Force     <-chan struct{}
	OutputCap int64
	Timeout   time.Duration
}

// Adapter wraps exactly one external tool.
type Adapter interface {
	Name() string
	IsAvailable() bool
	// Version returns the tool version or "unknown".
	Version() string
	Capabilities() Capabilities
	// Analyze never panics on tool errors; problems are reported through Output.Failure.
	Analyze(ctx context.Context, targets []string, opts Options) Output
}

// Unknown is the version reported when a tool does not tell us.
const Unknown = "unknown"

// Batch is one adapter's complete findings, as merged by the orchestrator.
type Batch struct {
	Adapter     string
	ProjectRoot string
	Findings    []RawFinding
}
