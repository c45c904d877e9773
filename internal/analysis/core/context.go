// internal/analysis/core/context.go
package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/codeguard-dev/codeguard/internal/parser"
)

// AnalysisContext carries one piece of source code through an analysis run.
// The parse tree and line split are computed lazily and memoized, so agents
// running concurrently share a single parse.
type AnalysisContext struct {
	// CodeContent is the source under analysis, dedented at construction so
	// indented fixtures and embedded snippets parse cleanly.
	CodeContent string
	// Filename is the logical name of the source, defaulting to a .py name.
	Filename string
	// Language identifies the source language. Only Python is supported.
	Language string
	// AnalysisID uniquely identifies this run, for event correlation.
	AnalysisID string
	// Metadata carries caller-supplied key/values through to reports.
	Metadata map[string]any
	// CreatedAt is when the context was built.
	CreatedAt time.Time

	treeOnce sync.Once
	tree     *sitter.Tree
	treeErr  error

	linesOnce sync.Once
	lines     []string
}

// NewAnalysisContext builds a context for the given source. The source is
// dedented and the filename defaults to "input.py" when empty.
func NewAnalysisContext(code, filename string) *AnalysisContext {
	if filename == "" {
		filename = "input.py"
	}
	return &AnalysisContext{
		CodeContent: parser.Dedent(code),
		Filename:    filename,
		Language:    "python",
		AnalysisID:  uuid.New().String(),
		Metadata:    make(map[string]any),
		CreatedAt:   time.Now().UTC(),
	}
}

// Source returns the code content as bytes, as Tree-sitter expects.
func (ac *AnalysisContext) Source() []byte {
	return []byte(ac.CodeContent)
}

// Tree parses the source on first use and returns the memoized tree. A syntax
// error is reported as parser.ErrSyntax; every subsequent call returns the
// same result without re-parsing.
func (ac *AnalysisContext) Tree(ctx context.Context) (*sitter.Tree, error) {
	ac.treeOnce.Do(func() {
		ac.tree, ac.treeErr = parser.Parse(ctx, ac.Source())
	})
	return ac.tree, ac.treeErr
}

// Lines returns the source split into lines, computed once.
func (ac *AnalysisContext) Lines() []string {
	ac.linesOnce.Do(func() {
		ac.lines = strings.Split(ac.CodeContent, "\n")
	})
	return ac.lines
}

// Line returns the 1-based source line, or "" when out of range.
func (ac *AnalysisContext) Line(n int) string {
	lines := ac.Lines()
	if n < 1 || n > len(lines) {
		return ""
	}
	return lines[n-1]
}

// Snippet returns the trimmed source line for use in findings.
func (ac *AnalysisContext) Snippet(n int) string {
	return strings.TrimSpace(ac.Line(n))
}
