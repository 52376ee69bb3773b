// Package sonarqube pulls open issues and file ratings for one project from a
// SonarQube server's Web API.
package sonarqube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/user/crosscheck/pkg/adapter"
	"github.com/user/crosscheck/pkg/model"
)

const Name = "sonarqube"

// CredentialName is the key the user token is looked up under.
const CredentialName = "sonarqube"

const (
	defaultPageSize = 500
	defaultMaxPages = 20
	defaultMinGrade = "C"
)

// ratingMetrics are the file-level ratings reported as findings.
var ratingMetrics = map[string]string{
	"sqale_rating":       "Maintainability",
	"reliability_rating": "Reliability",
	"security_rating":    "Security",
}

type Adapter struct {
	HTTP *adapter.HTTPGetter
}

func New() adapter.Adapter {
	return &Adapter{HTTP: &adapter.HTTPGetter{BaseDelay: time.Second}}
}

func (a *Adapter) Name() string      { return Name }
func (a *Adapter) IsAvailable() bool { return true }

// Version is not probed; asking the server would need the project settings.
func (a *Adapter) Version() string { return adapter.Unknown }

func (a *Adapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		Languages: []string{"*"},
		Kinds:     []model.EntityKind{model.KindFile},
		Class:     adapter.ClassNetwork,
		Notes:     "reads an existing server-side analysis; ratings are mapped through the grade table",
	}
}

type client struct {
	http    *adapter.HTTPGetter
	base    string
	header  http.Header
	project string
}

func (a *Adapter) Analyze(ctx context.Context, targets []string, opts adapter.Options) adapter.Output {
	base := strings.TrimRight(opts.Settings.String("url", ""), "/")
	project := opts.Settings.String("project", "")
	if base == "" || project == "" {
		return adapter.Failed(model.ReasonNotAvailable, fmt.Errorf("%w: settings url and project are required", adapter.ErrUnavailable))
	}
	c := &client{http: a.HTTP, base: base, project: project, header: http.Header{}}
	if c.http == nil {
		c.http = &adapter.HTTPGetter{}
	}
	if token, ok := opts.Credential(CredentialName); ok {
		c.header.Set("Authorization", "Bearer "+token)
	}
	pageSize := opts.Settings.Int("page_size", defaultPageSize)
	maxPages := opts.Settings.Int("max_pages", defaultMaxPages)

	var out adapter.Output
	issues, err := c.issues(ctx, pageSize, maxPages)
	if err != nil {
		return adapter.FailedWith(err)
	}
	out.Findings = append(out.Findings, issues...)

	if opts.Settings.Bool("ratings", true) {
		minGrade := strings.ToUpper(opts.Settings.String("min_grade", defaultMinGrade))
		ratings, err := c.ratings(ctx, pageSize, maxPages, minGrade)
		if err != nil {
			return adapter.FailedWith(err)
		}
		out.Findings = append(out.Findings, ratings...)
	}
	return out
}

type paging struct {
	PageIndex int `json:"pageIndex"`
	PageSize  int `json:"pageSize"`
	Total     int `json:"total"`
}

func (p paging) last() bool {
	return p.PageSize <= 0 || p.PageIndex*p.PageSize >= p.Total
}

type issuesPage struct {
	Paging paging  `json:"paging"`
	Issues []issue `json:"issues"`
}

type issue struct {
	Key       string `json:"key"`
	Rule      string `json:"rule"`
	Severity  string `json:"severity"`
	Component string `json:"component"`
	Line      int    `json:"line"`
	TextRange *struct {
		StartLine   int `json:"startLine"`
		EndLine     int `json:"endLine"`
		StartOffset int `json:"startOffset"`
		EndOffset   int `json:"endOffset"`
	} `json:"textRange"`
	Message string   `json:"message"`
	Type    string   `json:"type"`
	Tags    []string `json:"tags"`
	Effort  string   `json:"effort"`
}

func (c *client) get(ctx context.Context, path string, q url.Values, v any) error {
	body, err := c.http.Get(ctx, c.base+path+"?"+q.Encode(), c.header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return adapter.ParseError(fmt.Errorf("%s: %w", path, err))
	}
	return nil
}

func (c *client) issues(ctx context.Context, pageSize, maxPages int) ([]adapter.RawFinding, error) {
	var found []adapter.RawFinding
	for p := 1; p <= maxPages; p++ {
		q := url.Values{
			"componentKeys": {c.project},
			"resolved":      {"false"},
			"ps":            {strconv.Itoa(pageSize)},
			"p":             {strconv.Itoa(p)},
		}
		var page issuesPage
		if err := c.get(ctx, "/api/issues/search", q, &page); err != nil {
			return nil, err
		}
		for _, is := range page.Issues {
			found = append(found, c.issueFinding(is))
		}
		if page.Paging.last() || len(page.Issues) == 0 {
			break
		}
	}
	return found, nil
}

func (c *client) issueFinding(is issue) adapter.RawFinding {
	f := adapter.RawFinding{
		RawPath:     c.filePath(is.Component),
		Kind:        model.KindFile,
		Line:        is.Line,
		SeverityRaw: strings.ToLower(is.Severity),
		CategoryRaw: strings.ToLower(is.Type),
		Title:       is.Message,
		Description: is.Message,
		RuleID:      is.Rule,
	}
	if r := is.TextRange; r != nil {
		f.Line = r.StartLine
		f.EndLine = r.EndLine
		if r.StartLine > 0 {
			// Sonar offsets are 0-based.
			f.Column = r.StartOffset + 1
			f.EndColumn = r.EndOffset + 1
		}
	}
	f.Metadata, _ = json.Marshal(map[string]any{"key": is.Key, "tags": is.Tags, "effort": is.Effort})
	return f
}

// filePath strips the "project:" prefix from a component key.
func (c *client) filePath(component string) string {
	return strings.TrimPrefix(component, c.project+":")
}

type treePage struct {
	Paging     paging `json:"paging"`
	Components []struct {
		Key      string `json:"key"`
		Path     string `json:"path"`
		Measures []struct {
			Metric string `json:"metric"`
			Value  string `json:"value"`
		} `json:"measures"`
	} `json:"components"`
}

func (c *client) ratings(ctx context.Context, pageSize, maxPages int, minGrade string) ([]adapter.RawFinding, error) {
	metrics := make([]string, 0, len(ratingMetrics))
	for m := range ratingMetrics {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)

	var found []adapter.RawFinding
	for p := 1; p <= maxPages; p++ {
		q := url.Values{
			"component":  {c.project},
			"metricKeys": {strings.Join(metrics, ",")},
			"qualifiers": {"FIL"},
			"ps":         {strconv.Itoa(pageSize)},
			"p":          {strconv.Itoa(p)},
		}
		var page treePage
		if err := c.get(ctx, "/api/measures/component_tree", q, &page); err != nil {
			return nil, err
		}
		for _, comp := range page.Components {
			path := comp.Path
			if path == "" {
				path = c.filePath(comp.Key)
			}
			for _, m := range comp.Measures {
				label, ok := ratingMetrics[m.Metric]
				if !ok {
					continue
				}
				grade, ok := Grade(m.Value)
				if !ok || grade < minGrade {
					continue
				}
				meta, _ := json.Marshal(map[string]string{"metric": m.Metric, "value": m.Value})
				found = append(found, adapter.RawFinding{
					RawPath:     path,
					Kind:        model.KindFile,
					Grade:       grade,
					CategoryRaw: "rating",
					Title:       fmt.Sprintf("%s rating %s", label, grade),
					Description: fmt.Sprintf("SonarQube rates %s %s for %s", path, grade, strings.ToLower(label)),
					RuleID:      "rating:" + m.Metric,
					Metadata:    meta,
				})
			}
		}
		if page.Paging.last() || len(page.Components) == 0 {
			break
		}
	}
	return found, nil
}

// Grade converts a numeric Sonar rating ("1.0".."5.0") to a letter A-E.
func Grade(value string) (string, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || v < 1 || v > 5 {
		return "", false
	}
	return string(rune('A' + int(v+0.5) - 1)), true
}
