package sarif

import (
	"encoding/json"
	"strings"

	"github.com/user/crosscheck/pkg/adapter"
)

// Findings converts every result in l into a raw finding. When driverTool is
// set, each finding carries its run's driver name as the tool name.
func Findings(l *Log, driverTool bool) []adapter.RawFinding {
	var out []adapter.RawFinding
	for ri := range l.Runs {
		run := &l.Runs[ri]
		tool := ""
		if driverTool {
			tool = strings.ToLower(strings.TrimSpace(run.Tool.Driver.Name))
		}
		for i := range run.Results {
			out = append(out, run.finding(&run.Results[i], tool))
		}
	}
	return out
}

func (r *Run) finding(res *Result, tool string) adapter.RawFinding {
	rule := r.rule(res)
	f := adapter.RawFinding{
		RuleID:      res.RuleID,
		Title:       res.RuleID,
		Description: strings.TrimSpace(res.Message.Text),
		SeverityRaw: res.Level,
		Tool:        tool,
	}
	if rule != nil {
		if f.RuleID == "" {
			f.RuleID = rule.ID
		}
		if rule.ShortDescription != nil && rule.ShortDescription.Text != "" {
			f.Title = rule.ShortDescription.Text
		} else if rule.Name != "" {
			f.Title = rule.Name
		}
		if f.SeverityRaw == "" && rule.DefaultConfiguration != nil {
			f.SeverityRaw = rule.DefaultConfiguration.Level
		}
		if sev := severityFromScore(rule.Properties.SecuritySeverity); sev != "" {
			f.SeverityRaw = sev
		}
		f.CategoryRaw = category(rule.Properties.Tags)
	}
	if f.SeverityRaw == "" {
		f.SeverityRaw = "warning"
	}
	if f.Title == "" {
		f.Title = firstLine(f.Description)
	}

	if len(res.Locations) > 0 {
		loc := res.Locations[0].PhysicalLocation
		f.RawPath = r.resolveURI(loc.ArtifactLocation)
		if reg := loc.Region; reg != nil {
			f.Line, f.Column = reg.StartLine, reg.StartColumn
			f.EndLine, f.EndColumn = reg.EndLine, reg.EndColumn
		}
	}
	f.Flow = r.flow(res)

	if raw, err := json.Marshal(res); err == nil {
		f.Metadata = raw
	}
	return f
}

// flow takes the first thread flow of the first code flow as source to sink.
func (r *Run) flow(res *Result) *adapter.RawFlow {
	for _, cf := range res.CodeFlows {
		for _, tf := range cf.ThreadFlows {
			if len(tf.Locations) == 0 {
				continue
			}
			var uris []string
			for _, l := range tf.Locations {
				if u := r.resolveURI(l.Location.PhysicalLocation.ArtifactLocation); u != "" {
					uris = append(uris, u)
				}
			}
			if len(uris) == 0 {
				continue
			}
			fl := &adapter.RawFlow{Source: uris[0], Sink: uris[len(uris)-1]}
			if len(uris) > 2 {
				fl.Steps = append([]string(nil), uris[1:len(uris)-1]...)
			}
			return fl
		}
	}
	return nil
}

func category(tags []string) string {
	for _, t := range tags {
		if strings.EqualFold(t, "security") {
			return "security"
		}
	}
	for _, t := range tags {
		switch strings.ToLower(t) {
		case "correctness", "reliability", "maintainability", "performance":
			return strings.ToLower(t)
		}
	}
	return ""
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
