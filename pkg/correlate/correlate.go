// Package correlate groups issues from different tools that describe the same
// or closely related defects and scores each group.
package correlate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/user/crosscheck/pkg/model"
)

// DefaultBucketSize is the number of lines folded into one same_location bucket.
const DefaultBucketSize = 3

var groupNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("crosscheck/correlation-group"))

// Options tunes correlation.
type Options struct {
	BucketSize int
}

// Correlate runs every correlation class over issues. Only file-kind issues
// participate. The result is deterministic for a given issue set.
func Correlate(issues []model.Issue, opts Options) []model.CorrelationGroup {
	b := opts.BucketSize
	if b <= 0 {
		b = DefaultBucketSize
	}
	files := make([]*model.Issue, 0, len(issues))
	for i := range issues {
		if issues[i].Entity.IsFile() {
			files = append(files, &issues[i])
		}
	}

	var groups []model.CorrelationGroup
	for _, members := range sameLocation(files, b) {
		groups = append(groups, build(model.CorrelationSameLocation, members, locationNote(members)))
	}
	for _, members := range sameRuleFamily(files) {
		groups = append(groups, build(model.CorrelationSameRuleFamily, members,
			fmt.Sprintf("rule family %s (%s)", members[0].RuleFamily, members[0].AnalysisType)))
	}
	for _, members := range dataFlowOverlap(files) {
		groups = append(groups, build(model.CorrelationDataFlowOverlap, members, "source and sink shared across tool flow paths"))
	}
	for _, members := range formalStatic(files) {
		g := build(model.CorrelationFormalStatic, members, "formal result covers rule family "+members[0].RuleFamily)
		g.Verdicts = verdicts(members)
		groups = append(groups, g)
	}

	Sort(groups)
	return groups
}

// Sort orders groups by descending risk, then by their smallest member id.
func Sort(groups []model.CorrelationGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.RiskScore != b.RiskScore {
			return a.RiskScore > b.RiskScore
		}
		if am, bm := minID(a), minID(b); am != bm {
			return am < bm
		}
		if a.Type != b.Type {
			return typeRank(a.Type) < typeRank(b.Type)
		}
		return a.ID < b.ID
	})
}

func minID(g model.CorrelationGroup) string {
	if len(g.IssueIDs) == 0 {
		return ""
	}
	return g.IssueIDs[0]
}

func typeRank(t model.CorrelationType) int {
	switch t {
	case model.CorrelationSameLocation:
		return 0
	case model.CorrelationSameRuleFamily:
		return 1
	case model.CorrelationDataFlowOverlap:
		return 2
	case model.CorrelationSemanticEquivalence:
		return 3
	case model.CorrelationFormalStatic:
		return 4
	}
	return 5
}

// build assembles a group from members, which must hold at least two tools.
func build(t model.CorrelationType, members []*model.Issue, note string) model.CorrelationGroup {
	ids := make([]string, 0, len(members))
	tools := map[string]bool{}
	files := map[string]bool{}
	for _, m := range members {
		ids = append(ids, m.ID)
		tools[m.ToolName] = true
		files[m.Entity.CanonicalPath] = true
	}
	sort.Strings(ids)

	score, flags := Risk(members)
	rationale := fmt.Sprintf("%d issues from %d tools (%s): %s", len(members), len(tools), strings.Join(sortedKeys(tools), ", "), note)
	for _, f := range flags {
		rationale += "; " + f
	}

	return model.CorrelationGroup{
		ID:            groupID(t, ids),
		Type:          t,
		IssueIDs:      ids,
		Tools:         sortedKeys(tools),
		RiskScore:     score,
		FilesAffected: sortedKeys(files),
		Rationale:     rationale,
	}
}

func groupID(t model.CorrelationType, ids []string) string {
	return uuid.NewSHA1(groupNamespace, []byte(string(t)+"\x00"+strings.Join(ids, "\x00"))).String()
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func distinctTools(members []*model.Issue) int {
	tools := map[string]bool{}
	for _, m := range members {
		tools[m.ToolName] = true
	}
	return len(tools)
}

func locationNote(members []*model.Issue) string {
	lo, hi := members[0].Line, members[0].Line
	for _, m := range members[1:] {
		if m.Line < lo {
			lo = m.Line
		}
		if m.Line > hi {
			hi = m.Line
		}
	}
	if lo == hi {
		return fmt.Sprintf("same location %s:%d", members[0].Entity.CanonicalPath, lo)
	}
	return fmt.Sprintf("same location %s:%d-%d", members[0].Entity.CanonicalPath, lo, hi)
}
