package goast

import (
	"encoding/json"
	"fmt"
	"go/ast"
	"go/token"
	"go/types"

	"github.com/user/crosscheck/pkg/adapter"
	"github.com/user/crosscheck/pkg/model"
	"golang.org/x/tools/go/ast/astutil"
)

var errorType = types.Universe.Lookup("error").Type()

type checker struct {
	fset  *token.FileSet
	info  *types.Info
	cfg   Config
	found []adapter.RawFinding
}

func inspect(fset *token.FileSet, info *types.Info, f *ast.File, cfg Config) []adapter.RawFinding {
	c := &checker{fset: fset, info: info, cfg: cfg}
	for _, decl := range f.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		c.function(fn)
	}
	return c.found
}

func (c *checker) function(fn *ast.FuncDecl) {
	name := funcName(fn)

	if lines := functionLines(c.fset, fn); lines > c.cfg.MaxFunctionLines {
		c.add(fn.Pos(), model.KindFunction, name, RuleLongFunction, "low", "size",
			"Function is too long",
			fmt.Sprintf("%s spans %d lines (limit %d)", name, lines, c.cfg.MaxFunctionLines),
			map[string]any{"lines": lines})
	}
	if cc := complexity(fn); cc > c.cfg.MaxComplexity {
		c.add(fn.Pos(), model.KindFunction, name, RuleHighComplexity, "medium", "complexity",
			"Function is too complex",
			fmt.Sprintf("%s has cyclomatic complexity %d (limit %d)", name, cc, c.cfg.MaxComplexity),
			map[string]any{"complexity": cc})
	}

	ast.Inspect(fn.Body, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.ExprStmt:
			if call, ok := n.X.(*ast.CallExpr); ok {
				c.call(call, name)
			}
		case *ast.AssignStmt:
			c.blankError(n)
		case *ast.IfStmt:
			c.emptyCheck(n)
		}
		return true
	})
}

// call handles a call whose results are all discarded. Closures count as
// part of the enclosing function.
func (c *checker) call(call *ast.CallExpr, fn string) {
	if isBuiltin(c.info, call.Fun, "panic") {
		c.add(call.Pos(), model.KindFunction, fn, RulePanicCall, "medium", "panic",
			"Call to panic",
			fmt.Sprintf("%s calls panic; return an error instead", fn), nil)
		return
	}
	if !returnsError(c.info.TypeOf(call)) {
		return
	}
	callee := calleeName(c.info, call.Fun)
	if c.cfg.Ignored[callee] {
		return
	}
	c.add(call.Pos(), model.KindFile, "", RuleUncheckedError, "medium", "error-handling",
		"Unchecked error",
		fmt.Sprintf("error returned by %s is not checked", display(callee)),
		map[string]any{"callee": callee})
}

// blankError flags error results assigned to the blank identifier.
func (c *checker) blankError(as *ast.AssignStmt) {
	if len(as.Rhs) != 1 {
		return
	}
	call, ok := as.Rhs[0].(*ast.CallExpr)
	if !ok {
		return
	}
	results := resultTypes(c.info.TypeOf(call))
	if len(results) != len(as.Lhs) {
		return
	}
	for i, lhs := range as.Lhs {
		id, ok := lhs.(*ast.Ident)
		if !ok || id.Name != "_" || !types.Identical(results[i], errorType) {
			continue
		}
		callee := calleeName(c.info, call.Fun)
		if c.cfg.Ignored[callee] {
			return
		}
		c.add(as.Pos(), model.KindFile, "", RuleUncheckedError, "medium", "error-handling",
			"Error assigned to blank identifier",
			fmt.Sprintf("error returned by %s is discarded", display(callee)),
			map[string]any{"callee": callee})
		return
	}
}

// emptyCheck flags "if err != nil {}" with nothing in the body.
func (c *checker) emptyCheck(s *ast.IfStmt) {
	if len(s.Body.List) != 0 {
		return
	}
	bin, ok := s.Cond.(*ast.BinaryExpr)
	if !ok || bin.Op != token.NEQ {
		return
	}
	x, y := bin.X, bin.Y
	if isNil(c.info, x) {
		x, y = y, x
	}
	if !isNil(c.info, y) || !types.Identical(c.info.TypeOf(x), errorType) {
		return
	}
	c.add(s.Pos(), model.KindFile, "", RuleEmptyErrorCheck, "low", "error-handling",
		"Empty error check",
		"error is tested but the branch does nothing", nil)
}

func (c *checker) add(pos token.Pos, kind model.EntityKind, fn, rule, sev, category, title, desc string, extra map[string]any) {
	p := c.fset.Position(pos)
	path := p.Filename
	if kind == model.KindFunction {
		path += ":" + fn
	}
	meta := map[string]any{"rule": rule}
	if fn != "" {
		meta["function"] = fn
	}
	for k, v := range extra {
		meta[k] = v
	}
	raw, _ := json.Marshal(meta)
	c.found = append(c.found, adapter.RawFinding{
		RawPath:     path,
		Kind:        kind,
		Line:        p.Line,
		Column:      p.Column,
		SeverityRaw: sev,
		CategoryRaw: category,
		Title:       title,
		Description: desc,
		RuleID:      rule,
		Metadata:    raw,
	})
}

// funcName returns "Recv.Name" for methods and "Name" for functions.
func funcName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return fn.Name.Name
	}
	t := fn.Recv.List[0].Type
	if star, ok := t.(*ast.StarExpr); ok {
		t = star.X
	}
	switch r := t.(type) {
	case *ast.IndexExpr:
		t = r.X
	case *ast.IndexListExpr:
		t = r.X
	}
	if id, ok := t.(*ast.Ident); ok {
		return id.Name + "." + fn.Name.Name
	}
	return fn.Name.Name
}

func functionLines(fset *token.FileSet, fn *ast.FuncDecl) int {
	n := fset.Position(fn.Body.Rbrace).Line - fset.Position(fn.Body.Lbrace).Line
	if n < 0 {
		return 0
	}
	return n
}

// complexity is McCabe's cyclomatic complexity of fn's body.
func complexity(fn *ast.FuncDecl) int {
	cc := 1
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt:
			cc++
		case *ast.CaseClause:
			if len(n.List) > 0 {
				cc++
			}
		case *ast.CommClause:
			if n.Comm != nil {
				cc++
			}
		case *ast.BinaryExpr:
			if n.Op == token.LAND || n.Op == token.LOR {
				cc++
			}
		}
		return true
	})
	return cc
}

func resultTypes(t types.Type) []types.Type {
	switch t := t.(type) {
	case nil:
		return nil
	case *types.Tuple:
		out := make([]types.Type, t.Len())
		for i := range out {
			out[i] = t.At(i).Type()
		}
		return out
	default:
		return []types.Type{t}
	}
}

func returnsError(t types.Type) bool {
	for _, r := range resultTypes(t) {
		if types.Identical(r, errorType) {
			return true
		}
	}
	return false
}

func isBuiltin(info *types.Info, fun ast.Expr, name string) bool {
	id, ok := astutil.Unparen(fun).(*ast.Ident)
	if !ok {
		return false
	}
	b, ok := info.Uses[id].(*types.Builtin)
	return ok && b.Name() == name
}

func isNil(info *types.Info, e ast.Expr) bool {
	id, ok := astutil.Unparen(e).(*ast.Ident)
	if !ok {
		return false
	}
	_, ok = info.Uses[id].(*types.Nil)
	return ok
}

// calleeName returns the fully qualified callee, e.g. "os.Remove" or
// "(*os.File).Close"; "" for dynamic calls.
func calleeName(info *types.Info, fun ast.Expr) string {
	var id *ast.Ident
	switch f := astutil.Unparen(fun).(type) {
	case *ast.Ident:
		id = f
	case *ast.SelectorExpr:
		id = f.Sel
	case *ast.IndexExpr:
		return calleeName(info, f.X)
	default:
		return ""
	}
	if fn, ok := info.Uses[id].(*types.Func); ok {
		return fn.FullName()
	}
	return ""
}

func display(callee string) string {
	if callee == "" {
		return "call"
	}
	return callee
}
