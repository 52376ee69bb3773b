package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/user/crosscheck/pkg/model"
)

// Diff is the comparison of two analyses keyed by issue id.
type Diff struct {
	New       []model.Issue `json:"new"`
	Fixed     []model.Issue `json:"fixed"`
	Unchanged []model.Issue `json:"unchanged"`
}

// SaveSnapshot writes r to path as JSON.
func SaveSnapshot(path string, r *model.AnalysisResult) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a result previously written by SaveSnapshot.
func LoadSnapshot(path string) (*model.AnalysisResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r model.AnalysisResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	return &r, nil
}

// Compare classifies current issues against a baseline. Each list is ordered by id.
func Compare(current, baseline *model.AnalysisResult) Diff {
	base := make(map[string]bool, len(baseline.Issues))
	for _, iss := range baseline.Issues {
		base[iss.ID] = true
	}
	cur := make(map[string]bool, len(current.Issues))

	d := Diff{New: []model.Issue{}, Fixed: []model.Issue{}, Unchanged: []model.Issue{}}
	for _, iss := range current.Issues {
		cur[iss.ID] = true
		if base[iss.ID] {
			d.Unchanged = append(d.Unchanged, iss)
		} else {
			d.New = append(d.New, iss)
		}
	}
	for _, iss := range baseline.Issues {
		if !cur[iss.ID] {
			d.Fixed = append(d.Fixed, iss)
		}
	}
	for _, list := range [][]model.Issue{d.New, d.Fixed, d.Unchanged} {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return d
}
