package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/user/crosscheck/pkg/engine"
	"github.com/user/crosscheck/pkg/model"
)

// Summary returns a human-readable overview of r. When playbooks is non-nil,
// each hotspot lists the steps of its recommended actions.
func Summary(r *model.AnalysisResult, playbooks *Playbooks) string {
	var sb strings.Builder
	s := r.Summary
	sb.WriteString(fmt.Sprintf("Cross-tool analysis of %s (%d issues in %d files):\n", r.ProjectRoot, s.TotalIssues, s.FilesWithIssues))
	sb.WriteString("--------------------------------------------------\n")
	sb.WriteString(fmt.Sprintf("Severity: %s\n", severityLine(s.BySeverity)))
	sb.WriteString(fmt.Sprintf("Adapters: %d ran, %d skipped, %d failed, %d cancelled\n",
		s.AdaptersRan, s.AdaptersSkipped, s.AdaptersFailed, s.AdaptersCancelled))
	for _, o := range r.AdapterOutcomes {
		line := fmt.Sprintf("  %-10s %-9s", o.Adapter, o.Status)
		if o.Reason != "" {
			line += " (" + string(o.Reason) + ")"
		}
		if o.Status == model.StatusRan {
			line += fmt.Sprintf(" %d issues in %dms, version %s", o.IssueCount, o.DurationMs, o.Version)
		}
		sb.WriteString(line + "\n")
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("CORRELATION GROUPS: %d\n", len(r.CorrelationGroups)))
	for _, g := range r.CorrelationGroups {
		sb.WriteString(fmt.Sprintf("  [%5.1f] %s %s\n", g.RiskScore, g.Type, strings.Join(g.FilesAffected, ", ")))
		sb.WriteString(fmt.Sprintf("          %s\n", g.Rationale))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("HOTSPOTS: %d\n", len(r.Hotspots)))
	for _, h := range r.Hotspots {
		sb.WriteString(fmt.Sprintf("  [%5.1f] %s (%d issues; %s)\n", h.RiskScore, h.CanonicalPath, h.IssueCount, strings.Join(h.ToolCoverage, ", ")))
		for _, action := range h.RecommendedActions {
			sb.WriteString(fmt.Sprintf("    Action: %s\n", action))
			if playbooks == nil {
				continue
			}
			steps, err := playbooks.Render(action, h)
			if err != nil {
				continue
			}
			for _, step := range steps {
				sb.WriteString(fmt.Sprintf("      - %s\n", step))
			}
		}
	}

	if len(r.Diagnostics) > 0 {
		sb.WriteString(fmt.Sprintf("\nDIAGNOSTICS: %d\n", len(r.Diagnostics)))
		for _, d := range r.Diagnostics {
			who := d.Stage
			if d.Adapter != "" {
				who += "/" + d.Adapter
			}
			sb.WriteString(fmt.Sprintf("  %s %s: %s\n", who, d.Kind, d.Message))
		}
	}
	return sb.String()
}

func severityLine(counts map[model.Severity]int) string {
	parts := make([]string, 0, len(counts))
	for _, sev := range model.Severities() {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

// DiffText renders a snapshot comparison.
func DiffText(d engine.Diff, baseline string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Snapshot Comparison (vs %s):\n", baseline))
	sb.WriteString("--------------------------------------------------\n")

	sb.WriteString(fmt.Sprintf("NEW ISSUES: %d\n", len(d.New)))
	for _, iss := range d.New {
		sb.WriteString("  [+] " + issueLine(iss) + "\n")
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("FIXED ISSUES: %d\n", len(d.Fixed)))
	for _, iss := range d.Fixed {
		sb.WriteString("  [-] " + issueLine(iss) + "\n")
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("UNCHANGED ISSUES: %d\n", len(d.Unchanged)))
	byTool := map[string]int{}
	for _, iss := range d.Unchanged {
		byTool[iss.ToolName]++
	}
	tools := make([]string, 0, len(byTool))
	for t := range byTool {
		tools = append(tools, t)
	}
	sort.Strings(tools)
	for _, t := range tools {
		sb.WriteString(fmt.Sprintf("  %s: %d\n", t, byTool[t]))
	}
	return sb.String()
}

func issueLine(iss model.Issue) string {
	loc := iss.Entity.CanonicalPath
	if iss.HasLine() {
		loc = fmt.Sprintf("%s:%d", loc, iss.Line)
	}
	return fmt.Sprintf("[%s] %s (%s) - %s", iss.Severity, iss.Title, iss.ToolName, loc)
}
