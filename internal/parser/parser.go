// Package parser wraps the Tree-sitter Python grammar behind the small
// surface the analysis agents need: parsing with syntax-error detection,
// preorder traversal, and a few node helpers.
package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// ErrSyntax indicates the source could not be parsed into a well-formed tree.
var ErrSyntax = errors.New("source contains syntax errors")

// Parse builds a Python AST for the given source. It returns ErrSyntax
// (wrapped) when the grammar produced error nodes, so callers can distinguish
// malformed input from parser failure.
func Parse(ctx context.Context, source []byte) (*sitter.Tree, error) {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())

	tree, err := p.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing source: %w", err)
	}
	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("parsing source: empty tree")
	}
	if root.HasError() {
		return nil, ErrSyntax
	}
	return tree, nil
}

// Walk visits node and its descendants depth-first in source order. The visit
// function returns false to prune the subtree beneath the current node.
func Walk(node *sitter.Node, visit func(*sitter.Node) bool) {
	if node == nil || node.IsNull() {
		return
	}
	if !visit(node) {
		return
	}

	cursor := sitter.NewTreeCursor(node)
	defer cursor.Close()

	if ok := cursor.GoToFirstChild(); ok {
		for {
			Walk(cursor.CurrentNode(), visit)
			if ok := cursor.GoToNextSibling(); !ok {
				break
			}
		}
	}
}

// Line returns the 1-based source line the node starts on.
func Line(node *sitter.Node) int {
	return int(node.StartPoint().Row) + 1
}

// CallName flattens the callee of a call node into a dotted name. For a plain
// identifier it returns the identifier; for an attribute access it returns
// "object.attr" when the receiver is an identifier, or just the attribute name
// for deeper chains. It returns "" for callees it cannot name.
func CallName(call *sitter.Node, source []byte) string {
	callee := call.ChildByFieldName("function")
	if callee == nil {
		return ""
	}
	switch callee.Type() {
	case "identifier":
		return callee.Content(source)
	case "attribute":
		attr := callee.ChildByFieldName("attribute")
		if attr == nil {
			return ""
		}
		obj := callee.ChildByFieldName("object")
		if obj != nil && obj.Type() == "identifier" {
			return obj.Content(source) + "." + attr.Content(source)
		}
		return attr.Content(source)
	default:
		return ""
	}
}

// AttributeName returns the trailing attribute of a call on an attribute
// access ("conn.cursor().execute" yields "execute"), or "" when the callee is
// not an attribute.
func AttributeName(call *sitter.Node, source []byte) string {
	callee := call.ChildByFieldName("function")
	if callee == nil || callee.Type() != "attribute" {
		return ""
	}
	attr := callee.ChildByFieldName("attribute")
	if attr == nil {
		return ""
	}
	return attr.Content(source)
}

// Arguments returns the expression nodes in a call's argument list, skipping
// punctuation.
func Arguments(call *sitter.Node) []*sitter.Node {
	argsNode := call.ChildByFieldName("arguments")
	if argsNode == nil {
		return nil
	}
	var args []*sitter.Node
	for i := 0; i < int(argsNode.ChildCount()); i++ {
		child := argsNode.Child(i)
		switch child.Type() {
		case "(", ")", ",":
		default:
			args = append(args, child)
		}
	}
	return args
}

// IsFStringWithInterpolation reports whether the node is a string literal
// containing interpolated expressions (an f-string with substitutions).
func IsFStringWithInterpolation(node *sitter.Node) bool {
	if node == nil || node.Type() != "string" {
		return false
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.Child(i).Type() == "interpolation" {
			return true
		}
	}
	return false
}

// Dedent strips the longest common leading whitespace from every non-blank
// line, mirroring how analyzed snippets arrive indented inside docstrings or
// test fixtures.
func Dedent(src string) string {
	lines := strings.Split(src, "\n")

	prefix := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			prefix = indent
			first = false
			continue
		}
		prefix = commonPrefix(prefix, indent)
		if prefix == "" {
			break
		}
	}
	if prefix == "" {
		return src
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.Join(lines, "\n")
}

func commonPrefix(a, b string) string {
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	i := 0
	for i < max && a[i] == b[i] {
		i++
	}
	return a[:i]
}
