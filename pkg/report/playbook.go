package report

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/user/crosscheck/pkg/model"
)

//go:embed playbooks/*.yaml
var builtinPlaybooks embed.FS

// Playbook lists review steps for one recommended action tag.
type Playbook struct {
	Action      string   `yaml:"action"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Steps       []string `yaml:"steps"`
}

// Playbooks holds playbooks keyed by action tag.
type Playbooks struct {
	byAction map[string]Playbook
}

// DefaultPlaybooks returns the playbooks compiled into the binary.
func DefaultPlaybooks() (*Playbooks, error) {
	p := &Playbooks{byAction: make(map[string]Playbook)}
	if err := p.load(builtinPlaybooks, "playbooks"); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadPlaybooks layers *.yaml files from dir over the built-in playbooks.
func LoadPlaybooks(dir string) (*Playbooks, error) {
	p, err := DefaultPlaybooks()
	if err != nil {
		return nil, err
	}
	if err := p.load(os.DirFS(dir), "."); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Playbooks) load(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		ext := path.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		var pb Playbook
		if err := yaml.Unmarshal(data, &pb); err != nil {
			return fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}
		if pb.Action == "" {
			return fmt.Errorf("%s: playbook has no action", entry.Name())
		}
		p.byAction[pb.Action] = pb
	}
	return nil
}

// Get returns the playbook for an action tag.
func (p *Playbooks) Get(action string) (Playbook, bool) {
	pb, ok := p.byAction[action]
	return pb, ok
}

// Render expands the playbook steps for a hotspot.
func (p *Playbooks) Render(action string, h model.Hotspot) ([]string, error) {
	pb, ok := p.byAction[action]
	if !ok {
		return nil, fmt.Errorf("playbook not found: %s", action)
	}
	vars := map[string]any{
		"Path":       h.CanonicalPath,
		"Tools":      strings.Join(h.ToolCoverage, ", "),
		"IssueCount": h.IssueCount,
		"Risk":       h.RiskScore,
	}
	steps := make([]string, 0, len(pb.Steps))
	for i, s := range pb.Steps {
		out, err := renderString(fmt.Sprintf("%s-%d", action, i), s, vars)
		if err != nil {
			return nil, err
		}
		steps = append(steps, out)
	}
	return steps, nil
}

func renderString(name, tmplStr string, vars map[string]any) (string, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return buf.String(), nil
}
