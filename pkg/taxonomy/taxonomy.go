// Package taxonomy holds the per-adapter tables that map native severities,
// grades, categories and rule ids onto the unified model.
package taxonomy

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/user/crosscheck/pkg/model"
)

//go:embed tables/*.yaml
var builtin embed.FS

// FamilyRule maps rule ids matching Match onto a coarse rule family.
// Match is an exact id, "prefix*" or "*substring*", compared case-insensitively.
type FamilyRule struct {
	Match  string `yaml:"match"`
	Family string `yaml:"family"`
}

func (r FamilyRule) matches(ruleID string) bool {
	m := strings.ToLower(r.Match)
	id := strings.ToLower(ruleID)
	switch {
	case len(m) > 2 && strings.HasPrefix(m, "*") && strings.HasSuffix(m, "*"):
		return strings.Contains(id, m[1:len(m)-1])
	case strings.HasSuffix(m, "*"):
		return strings.HasPrefix(id, m[:len(m)-1])
	default:
		return id == m
	}
}

// Table is the mapping data for one adapter.
type Table struct {
	Adapter      string                        `yaml:"adapter"`
	DefaultType  model.AnalysisType            `yaml:"default_type"`
	Severity     map[string]model.Severity     `yaml:"severity"`
	Categories   map[string]model.AnalysisType `yaml:"categories"`
	RuleFamilies []FamilyRule                  `yaml:"rule_families"`
}

// gradeSeverity is the published A-F grade table.
var gradeSeverity = map[string]model.Severity{
	"A": model.SeverityInfo,
	"B": model.SeverityLow,
	"C": model.SeverityMedium,
	"D": model.SeverityHigh,
	"E": model.SeverityCritical,
	"F": model.SeverityCritical,
}

// GradeSeverity maps a letter grade onto a severity.
func GradeSeverity(grade string) (model.Severity, bool) {
	s, ok := gradeSeverity[strings.ToUpper(strings.TrimSpace(grade))]
	return s, ok
}

// ResolveSeverity maps a native severity (or grade, when present) onto the
// core enumeration. Unknown input is medium.
func (t *Table) ResolveSeverity(raw, grade string) model.Severity {
	if grade != "" {
		if s, ok := GradeSeverity(grade); ok {
			return s
		}
	}
	key := strings.ToLower(strings.TrimSpace(raw))
	if t != nil {
		if s, ok := t.Severity[key]; ok {
			return s
		}
	}
	if s, ok := model.ParseSeverity(key); ok {
		return s
	}
	return model.SeverityMedium
}

// ResolveType maps a native category onto an analysis type, falling back to
// the adapter default.
func (t *Table) ResolveType(category string) model.AnalysisType {
	key := strings.ToLower(strings.TrimSpace(category))
	if t != nil && key != "" {
		if at, ok := t.Categories[key]; ok {
			return at
		}
	}
	if at, ok := model.ParseAnalysisType(key); ok {
		return at
	}
	if t != nil && t.DefaultType != "" {
		return t.DefaultType
	}
	return model.TypeQuality
}

// RuleFamily returns the family for ruleID, or "" when unmapped.
func (t *Table) RuleFamily(ruleID string) string {
	if t == nil || ruleID == "" {
		return ""
	}
	for _, r := range t.RuleFamilies {
		if r.matches(ruleID) {
			return r.Family
		}
	}
	return ""
}

func (t *Table) normalize() {
	sev := make(map[string]model.Severity, len(t.Severity))
	for k, v := range t.Severity {
		sev[strings.ToLower(k)] = v
	}
	t.Severity = sev
	cat := make(map[string]model.AnalysisType, len(t.Categories))
	for k, v := range t.Categories {
		cat[strings.ToLower(k)] = v
	}
	t.Categories = cat
}

func (t *Table) validate() error {
	if t.Adapter == "" {
		return fmt.Errorf("table has no adapter name")
	}
	if t.DefaultType != "" && !t.DefaultType.Valid() {
		return fmt.Errorf("%s: invalid default_type %q", t.Adapter, t.DefaultType)
	}
	for k, v := range t.Severity {
		if !v.Valid() {
			return fmt.Errorf("%s: severity %q maps to invalid %q", t.Adapter, k, v)
		}
	}
	for k, v := range t.Categories {
		if !v.Valid() {
			return fmt.Errorf("%s: category %q maps to invalid %q", t.Adapter, k, v)
		}
	}
	for _, r := range t.RuleFamilies {
		if r.Match == "" || r.Family == "" {
			return fmt.Errorf("%s: rule family entry needs match and family", t.Adapter)
		}
	}
	return nil
}

// Set is the collection of tables keyed by adapter name.
type Set struct {
	tables map[string]*Table
}

// Default returns the tables compiled into the binary.
func Default() (*Set, error) {
	s := &Set{tables: make(map[string]*Table)}
	if err := s.loadFS(builtin, "tables"); err != nil {
		return nil, err
	}
	return s, nil
}

// Load returns the built-in tables with any *.yaml files in dir layered on
// top; a file replaces the built-in table for the same adapter.
func Load(dir string) (*Set, error) {
	s, err := Default()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return s, nil
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("taxonomy dir: %w", err)
	}
	if err := s.loadFS(os.DirFS(dir), "."); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Set) loadFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".yaml" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		t, err := Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		s.tables[t.Adapter] = t
	}
	return nil
}

// Parse decodes and validates one YAML table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	t.normalize()
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Put registers or replaces a table.
func (s *Set) Put(t *Table) {
	if s.tables == nil {
		s.tables = make(map[string]*Table)
	}
	t.normalize()
	s.tables[t.Adapter] = t
}

// For returns the table for adapter. Unknown adapters get an empty table so
// every lookup still resolves to a documented default.
func (s *Set) For(adapter string) *Table {
	if s != nil {
		if t, ok := s.tables[adapter]; ok {
			return t
		}
	}
	return &Table{Adapter: adapter, DefaultType: model.TypeQuality}
}

// Lookup returns the table registered for name.
func (s *Set) Lookup(name string) (*Table, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.tables[name]
	return t, ok
}

// Adapters lists the adapters that have a table, sorted.
func (s *Set) Adapters() []string {
	names := make([]string, 0, len(s.tables))
	for n := range s.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
