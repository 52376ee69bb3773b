package normalize

import "github.com/user/crosscheck/pkg/adapter"

type positions struct {
	line, column, endLine, endColumn int
}

// checkPositions keeps only the internally consistent part of a finding's
// region. The returned note is non-empty when something was dropped.
func checkPositions(f adapter.RawFinding) (positions, string) {
	p := positions{f.Line, f.Column, f.EndLine, f.EndColumn}
	if p.line < 0 || p.column < 0 || p.endLine < 0 || p.endColumn < 0 {
		return positions{}, "negative position"
	}
	if p.line == 0 {
		if p.column != 0 || p.endLine != 0 || p.endColumn != 0 {
			return positions{}, "column or end position without a start line"
		}
		return p, ""
	}
	if p.endLine != 0 && p.endLine < p.line {
		p.endLine, p.endColumn = 0, 0
		return p, "end line before start line"
	}
	if p.endColumn != 0 && p.column != 0 && (p.endLine == 0 || p.endLine == p.line) && p.endColumn < p.column {
		p.endColumn = 0
		return p, "end column before start column"
	}
	return p, ""
}
