// Package normalize turns raw adapter findings into issues attached to
// canonical entities.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/user/crosscheck/pkg/adapter"
	"github.com/user/crosscheck/pkg/canon"
	"github.com/user/crosscheck/pkg/model"
	"github.com/user/crosscheck/pkg/taxonomy"
)

const stage = "normalize"

// Normalizer applies canonicalization and the taxonomy tables. It holds no
// per-run state and may be reused.
type Normalizer struct {
	Tables *taxonomy.Set
	// Now stamps every issue's createdAt.
	Now time.Time
}

// Result is the output of normalizing every batch of a run.
type Result struct {
	Issues      []model.Issue
	Diagnostics []model.Diagnostic
	// Counts is the number of issues each adapter contributed.
	Counts map[string]int
}

// Normalize processes batches in order; each batch keeps its own finding order.
func (n *Normalizer) Normalize(batches []adapter.Batch) Result {
	res := Result{Counts: make(map[string]int, len(batches))}
	for _, b := range batches {
		issues, diags := n.Batch(b)
		res.Issues = append(res.Issues, issues...)
		res.Diagnostics = append(res.Diagnostics, diags...)
		res.Counts[b.Adapter] = len(issues)
	}
	return res
}

// Batch normalizes one adapter's findings and collapses duplicates.
func (n *Normalizer) Batch(b adapter.Batch) ([]model.Issue, []model.Diagnostic) {
	var (
		issues []model.Issue
		diags  []model.Diagnostic
		index  = make(map[dedupKey]int)
		ids    = make(map[string]int)
	)
	diag := func(kind, format string, args ...any) {
		diags = append(diags, model.Diagnostic{
			Stage:   stage,
			Adapter: b.Adapter,
			Kind:    kind,
			Message: fmt.Sprintf(format, args...),
		})
	}

	for i, f := range b.Findings {
		iss, ok := n.issue(b, i, f, diag)
		if !ok {
			continue
		}
		k := dedupKey{iss.Entity.Key(), iss.RuleID, iss.Line, iss.Title}
		if at, dup := index[k]; dup {
			issues[at].Metadata.Occurrences++
			continue
		}
		if seen := ids[iss.ID]; seen > 0 {
			ids[iss.ID] = seen + 1
			iss.ID = fmt.Sprintf("%s#%d", iss.ID, seen+1)
		} else {
			ids[iss.ID] = 1
		}
		index[k] = len(issues)
		issues = append(issues, iss)
	}
	return issues, diags
}

type dedupKey struct {
	entity model.EntityKey
	rule   string
	line   int
	title  string
}

func (n *Normalizer) issue(b adapter.Batch, i int, f adapter.RawFinding, diag func(kind, format string, args ...any)) (model.Issue, bool) {
	kind, ok := model.ParseEntityKind(string(f.Kind))
	if !ok {
		diag(model.DiagInvalidEntity, "finding %d: unknown entity kind %q", i, f.Kind)
		return model.Issue{}, false
	}
	entity, err := canon.Canonicalize(kind, f.RawPath, b.ProjectRoot)
	if err != nil {
		diag(model.DiagInvalidEntity, "finding %d: %v", i, err)
		return model.Issue{}, false
	}

	tool := strings.TrimSpace(f.Tool)
	if tool == "" {
		tool = b.Adapter
	}
	if tool == "" {
		diag(model.DiagNormalizationDrop, "finding %d: no tool name", i)
		return model.Issue{}, false
	}
	title := strings.TrimSpace(f.Title)
	if title == "" {
		title = f.RuleID
	}
	if title == "" {
		diag(model.DiagNormalizationDrop, "finding %d on %s: no title or rule id", i, entity.CanonicalPath)
		return model.Issue{}, false
	}

	table := n.table(b.Adapter, tool)
	iss := model.Issue{
		Entity:       entity,
		Severity:     table.ResolveSeverity(f.SeverityRaw, f.Grade),
		AnalysisType: table.ResolveType(f.CategoryRaw),
		ToolName:     tool,
		RuleID:       f.RuleID,
		RuleFamily:   table.RuleFamily(f.RuleID),
		Title:        title,
		Description:  strings.TrimSpace(f.Description),
		CreatedAt:    n.Now,
		Metadata:     model.Metadata{Occurrences: 1},
	}

	pos, note := checkPositions(f)
	if note != "" {
		diag(model.DiagPositionDropped, "finding %d on %s: %s", i, entity.CanonicalPath, note)
	}
	iss.Line, iss.Column, iss.EndLine, iss.EndColumn = pos.line, pos.column, pos.endLine, pos.endColumn

	if len(f.Metadata) > 0 {
		if json.Valid(f.Metadata) {
			iss.Metadata.Tool = append(json.RawMessage(nil), f.Metadata...)
		} else {
			diag(model.DiagNormalizationDrop, "finding %d on %s: tool metadata is not valid JSON", i, entity.CanonicalPath)
		}
	}
	if f.Formal != nil {
		formal := *f.Formal
		if formal.Status == "" {
			formal.Status = model.FormalUnknown
		}
		iss.Metadata.Formal = &formal
	}
	if f.Flow != nil {
		flow, err := canonicalFlow(f.Flow, b.ProjectRoot)
		if err != nil {
			diag(model.DiagNormalizationDrop, "finding %d on %s: flow dropped: %v", i, entity.CanonicalPath, err)
		} else {
			iss.Metadata.Flow = flow
		}
	}

	iss.ID = issueID(b.Adapter, iss)
	return iss, true
}

// table prefers a table for the reporting tool (e.g. a SARIF driver) over the adapter's own.
func (n *Normalizer) table(adapterName, tool string) *taxonomy.Table {
	if tool != adapterName {
		if t, ok := n.Tables.Lookup(tool); ok {
			return t
		}
	}
	return n.Tables.For(adapterName)
}

// issueID is adapter:rule:canonicalPath:line:contentHash.
func issueID(adapterName string, iss model.Issue) string {
	h := sha256.New()
	h.Write([]byte(iss.Title))
	h.Write([]byte{0})
	h.Write([]byte(iss.RuleID))
	h.Write([]byte{0})
	h.Write([]byte(iss.Description))
	sum := hex.EncodeToString(h.Sum(nil))[:12]
	return fmt.Sprintf("%s:%s:%s:%d:%s", adapterName, iss.RuleID, iss.Entity.CanonicalPath, iss.Line, sum)
}

func canonicalFlow(f *adapter.RawFlow, root string) (*model.Flow, error) {
	src, err := canon.Path(f.Source, root)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	sink, err := canon.Path(f.Sink, root)
	if err != nil {
		return nil, fmt.Errorf("sink: %w", err)
	}
	flow := &model.Flow{Source: src, Sink: sink}
	for _, s := range f.Steps {
		p, err := canon.Path(s, root)
		if err != nil {
			return nil, fmt.Errorf("step: %w", err)
		}
		flow.Steps = append(flow.Steps, p)
	}
	return flow, nil
}
