// Package report renders an AnalysisResult as JSON, SARIF or text.
package report

import (
	"encoding/json"
	"io"

	"github.com/user/crosscheck/pkg/model"
	"github.com/user/crosscheck/pkg/sarif"
)

// WriteJSON writes r as indented JSON. Map keys are sorted by encoding/json,
// so equal results encode identically.
func WriteJSON(w io.Writer, r *model.AnalysisResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(r)
}

// WriteSARIF writes the issues of r as a SARIF 2.1.0 log with one run per tool.
func WriteSARIF(w io.Writer, r *model.AnalysisResult) error {
	versions := make(map[string]string, len(r.AdapterOutcomes))
	for _, o := range r.AdapterOutcomes {
		versions[o.Adapter] = o.Version
	}
	return sarif.Encode(w, sarif.FromIssues(r.Issues, versions))
}
