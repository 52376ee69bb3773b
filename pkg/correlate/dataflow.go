package correlate

import (
	"sort"

	"github.com/user/crosscheck/pkg/model"
)

type unionFind []int

func newUnionFind(n int) unionFind {
	u := make(unionFind, n)
	for i := range u {
		u[i] = i
	}
	return u
}

func (u unionFind) find(x int) int {
	for u[x] != x {
		u[x] = u[u[x]]
		x = u[x]
	}
	return x
}

// union keeps the smaller index as root so components are stable.
func (u unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	u[rb] = ra
}

// dataFlowOverlap links flow-carrying issues on the same file when one tool's
// source and sink both lie on another tool's flow path.
func dataFlowOverlap(issues []*model.Issue) [][]*model.Issue {
	byPath := map[string][]*model.Issue{}
	var paths []string
	for _, iss := range issues {
		if iss.Metadata.Flow == nil {
			continue
		}
		p := iss.Entity.CanonicalPath
		if _, ok := byPath[p]; !ok {
			paths = append(paths, p)
		}
		byPath[p] = append(byPath[p], iss)
	}
	sort.Strings(paths)

	var out [][]*model.Issue
	for _, p := range paths {
		list := byPath[p]
		files := make([]map[string]bool, len(list))
		for i, iss := range list {
			files[i] = iss.Metadata.Flow.Files()
		}
		uf := newUnionFind(len(list))
		for i, a := range list {
			for j, b := range list {
				if i == j || a.ToolName == b.ToolName {
					continue
				}
				if files[j][a.Metadata.Flow.Source] && files[j][a.Metadata.Flow.Sink] {
					uf.union(i, j)
				}
			}
		}
		comps := map[int][]*model.Issue{}
		var roots []int
		for i, iss := range list {
			r := uf.find(i)
			if _, ok := comps[r]; !ok {
				roots = append(roots, r)
			}
			comps[r] = append(comps[r], iss)
		}
		sort.Ints(roots)
		for _, r := range roots {
			if c := comps[r]; len(c) >= 2 && distinctTools(c) >= 2 {
				out = append(out, c)
			}
		}
	}
	return out
}
