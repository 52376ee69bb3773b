package correlate

import (
	"sort"

	"github.com/user/crosscheck/pkg/model"
)

// partition groups issues by key, keeps buckets spanning two or more tools,
// and returns them in key order.
func partition[K comparable](issues []*model.Issue, key func(*model.Issue) (K, bool), less func(a, b K) bool) [][]*model.Issue {
	buckets := map[K][]*model.Issue{}
	var keys []K
	for _, iss := range issues {
		k, ok := key(iss)
		if !ok {
			continue
		}
		if _, seen := buckets[k]; !seen {
			keys = append(keys, k)
		}
		buckets[k] = append(buckets[k], iss)
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })

	var out [][]*model.Issue
	for _, k := range keys {
		members := buckets[k]
		if len(members) >= 2 && distinctTools(members) >= 2 {
			out = append(out, members)
		}
	}
	return out
}

type locationKey struct {
	path   string
	bucket int
}

func sameLocation(issues []*model.Issue, bucketSize int) [][]*model.Issue {
	return partition(issues,
		func(i *model.Issue) (locationKey, bool) {
			if !i.HasLine() {
				return locationKey{}, false
			}
			return locationKey{i.Entity.CanonicalPath, i.Line / bucketSize}, true
		},
		func(a, b locationKey) bool {
			if a.path != b.path {
				return a.path < b.path
			}
			return a.bucket < b.bucket
		})
}

type familyKey struct {
	path   string
	typ    model.AnalysisType
	family string
}

func sameRuleFamily(issues []*model.Issue) [][]*model.Issue {
	return partition(issues,
		func(i *model.Issue) (familyKey, bool) {
			if i.RuleFamily == "" {
				return familyKey{}, false
			}
			return familyKey{i.Entity.CanonicalPath, i.AnalysisType, i.RuleFamily}, true
		},
		func(a, b familyKey) bool {
			if a.path != b.path {
				return a.path < b.path
			}
			if a.typ != b.typ {
				return a.typ < b.typ
			}
			return a.family < b.family
		})
}

type pathFamily struct {
	path   string
	family string
}

// formalStatic pairs formal results with static findings of the same rule
// family on the same file.
func formalStatic(issues []*model.Issue) [][]*model.Issue {
	groups := partition(issues,
		func(i *model.Issue) (pathFamily, bool) {
			if i.RuleFamily == "" {
				return pathFamily{}, false
			}
			return pathFamily{i.Entity.CanonicalPath, i.RuleFamily}, true
		},
		func(a, b pathFamily) bool {
			if a.path != b.path {
				return a.path < b.path
			}
			return a.family < b.family
		})
	var out [][]*model.Issue
	for _, g := range groups {
		var formal, static bool
		for _, m := range g {
			if m.IsFormal() {
				formal = true
			} else {
				static = true
			}
		}
		if formal && static {
			out = append(out, g)
		}
	}
	return out
}

// verdicts marks each static member corroborated or refuted by the formal
// members. A violation outweighs a safe result.
func verdicts(members []*model.Issue) map[string]model.Verdict {
	var violation, safe bool
	for _, m := range members {
		if !m.IsFormal() {
			continue
		}
		switch m.Metadata.Formal.Status {
		case model.FormalVerifiedViolation:
			violation = true
		case model.FormalVerifiedSafe:
			safe = true
		}
	}
	var v model.Verdict
	switch {
	case violation:
		v = model.VerdictCorroborated
	case safe:
		v = model.VerdictRefuted
	default:
		return nil
	}
	out := map[string]model.Verdict{}
	for _, m := range members {
		if !m.IsFormal() {
			out[m.ID] = v
		}
	}
	return out
}
