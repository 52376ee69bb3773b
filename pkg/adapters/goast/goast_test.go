package goast

import (
	"context"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/crosscheck/pkg/adapter"
	"github.com/user/crosscheck/pkg/model"
)

const source = `package demo

import (
	"errors"
	"fmt"
	"os"
)

type Store struct{}

func (s *Store) Save() error { return errors.New("x") }

func (s *Store) Flush() {
	s.Save()
	_ = os.Remove("tmp")
	fmt.Println("done")
}

func mustOpen(name string) *os.File {
	f, err := os.Open(name)
	if err != nil {
	}
	if f == nil {
		panic("no file")
	}
	return f
}

func branchy(a, b int) int {
	if a > 0 && b > 0 {
		return 1
	}
	switch a {
	case 1:
		return 2
	case 2:
		return 3
	}
	return 0
}
`

func check(t *testing.T, src string, cfg Config) []adapter.RawFinding {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "/repo/demo/demo.go", src, 0)
	if err != nil {
		t.Fatal(err)
	}
	info := &types.Info{
		Types: make(map[ast.Expr]types.TypeAndValue),
		Defs:  make(map[*ast.Ident]types.Object),
		Uses:  make(map[*ast.Ident]types.Object),
	}
	conf := types.Config{Importer: importer.ForCompiler(fset, "source", nil)}
	if _, err := conf.Check("demo", fset, []*ast.File{f}, info); err != nil {
		t.Fatal(err)
	}
	return inspect(fset, info, f, cfg)
}

func byRule(found []adapter.RawFinding) map[string][]adapter.RawFinding {
	m := make(map[string][]adapter.RawFinding)
	for _, f := range found {
		m[f.RuleID] = append(m[f.RuleID], f)
	}
	return m
}

func TestRules(t *testing.T) {
	cfg := configFrom(adapter.Settings{"max_function_lines": 6, "max_complexity": 4})
	rules := byRule(check(t, source, cfg))

	unchecked := rules[RuleUncheckedError]
	if len(unchecked) != 2 {
		t.Fatalf("unchecked-error findings = %+v", unchecked)
	}
	if unchecked[0].Line != 14 || !strings.Contains(unchecked[0].Description, "(*demo.Store).Save") {
		t.Errorf("first unchecked = %+v", unchecked[0])
	}
	if unchecked[1].Line != 15 || unchecked[1].Kind != model.KindFile || unchecked[1].RawPath != "/repo/demo/demo.go" {
		t.Errorf("blank assignment = %+v", unchecked[1])
	}

	if empty := rules[RuleEmptyErrorCheck]; len(empty) != 1 || empty[0].Line != 21 {
		t.Errorf("empty-error-check = %+v", empty)
	}

	panics := rules[RulePanicCall]
	if len(panics) != 1 || panics[0].Kind != model.KindFunction || panics[0].RawPath != "/repo/demo/demo.go:mustOpen" {
		t.Errorf("panic-call = %+v", panics)
	}

	long := rules[RuleLongFunction]
	if len(long) != 2 {
		t.Fatalf("long-function = %+v", long)
	}
	if long[0].RawPath != "/repo/demo/demo.go:mustOpen" {
		t.Errorf("long-function path = %s", long[0].RawPath)
	}

	cc := rules[RuleHighComplexity]
	if len(cc) != 1 || cc[0].RawPath != "/repo/demo/demo.go:branchy" {
		t.Errorf("high-complexity = %+v", cc)
	}
}

func TestMethodNames(t *testing.T) {
	found := check(t, `package demo

type List[T any] struct{}

func (l *List[T]) Push(v T) { panic(v) }
`, configFrom(nil))
	if len(found) != 1 || found[0].RawPath != "/repo/demo/demo.go:List.Push" {
		t.Errorf("found = %+v", found)
	}
}

func TestIgnoreSetting(t *testing.T) {
	cfg := configFrom(adapter.Settings{"ignore": []any{"(*demo.Store).Save", "os.Remove"}})
	if n := len(byRule(check(t, source, cfg))[RuleUncheckedError]); n != 0 {
		t.Errorf("unchecked-error findings = %d, want 0", n)
	}
}

func TestPatterns(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "pkg")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	got := patterns([]string{root, sub, filepath.Join(root, "missing")}, root)
	if strings.Join(got, " ") != "./... ./pkg/..." {
		t.Errorf("patterns = %v", got)
	}
	if got := patterns(nil, root); len(got) != 1 || got[0] != "./..." {
		t.Errorf("default patterns = %v", got)
	}
}

func TestAnalyzeModule(t *testing.T) {
	if testing.Short() {
		t.Skip("loads packages with the go command")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go command not available")
	}
	root := t.TempDir()
	files := map[string]string{
		"go.mod":  "module example.com/demo\n\ngo 1.21\n",
		"demo.go": source,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	out := New().Analyze(context.Background(), []string{root}, adapter.Options{ProjectRoot: root})
	if out.Failure != nil {
		t.Fatal(out.Failure)
	}
	rules := byRule(out.Findings)
	if len(rules[RuleUncheckedError]) != 2 || len(rules[RulePanicCall]) != 1 {
		t.Errorf("findings = %+v", out.Findings)
	}
	if out.Stats.FilesScanned != 1 {
		t.Errorf("files scanned = %d", out.Stats.FilesScanned)
	}
}
