// Package perf implements the agent that spots algorithmic and resource
// hazards: nested loops, quadratic list operations, linear membership tests,
// N+1 query patterns, unbounded reads, and unmanaged resource handles.
package perf

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/codeguard-dev/codeguard/api/schemas"
	"github.com/codeguard-dev/codeguard/internal/analysis/core"
	"github.com/codeguard-dev/codeguard/internal/parser"
)

const (
	agentName    = "performance"
	agentVersion = "1.0.0"
)

// dbMethods are query or transaction calls that indicate an N+1 pattern when
// issued inside a loop.
var dbMethods = map[string]struct{}{
	"execute":  {},
	"query":    {},
	"select":   {},
	"commit":   {},
	"flush":    {},
	"rollback": {},
	"fetch":    {},
	"get":      {},
}

// memoryMethods slurp an entire source into memory when called without
// arguments.
var memoryMethods = map[string]struct{}{
	"read":      {},
	"readlines": {},
	"fetchall":  {},
}

// hashContainerHints are name fragments suggesting a constant-time container,
// which makes an `in` test fine.
var hashContainerHints = []string{"dict", "set", "map", "hash"}

// Agent detects performance issues in Python source.
type Agent struct {
	*core.BaseAgent
}

// New constructs the performance agent.
func New(deps core.Deps) core.Agent {
	a := &Agent{
		BaseAgent: core.NewBaseAgent(agentName, agentVersion, core.CategoryPerformance, deps),
	}
	if deps.Config != nil && !deps.Config.Agents().Performance.Enabled {
		a.Disable()
	}
	return a
}

// Analyze walks the parse tree once, tracking loop depth. Source that does
// not parse yields no findings.
func (a *Agent) Analyze(ctx context.Context, analysisCtx *core.AnalysisContext) ([]schemas.Finding, error) {
	a.EmitStarted(analysisCtx)

	tree, err := analysisCtx.Tree(ctx)
	if err != nil {
		if errors.Is(err, parser.ErrSyntax) {
			a.Logger.Debug("Source does not parse; skipping performance checks",
				zap.String("analysis_id", analysisCtx.AnalysisID))
			a.EmitCompleted(analysisCtx, 0)
			return nil, nil
		}
		a.EmitFailed(analysisCtx, err)
		return nil, err
	}

	source := analysisCtx.Source()
	run := &walk{
		agent:     a,
		ac:        analysisCtx,
		source:    source,
		safeLines: collectSafeLines(tree.RootNode(), source),
	}
	run.visit(tree.RootNode(), 0)

	schemas.SortBySeverity(run.findings)
	a.EmitCompleted(analysisCtx, len(run.findings))
	return run.findings, nil
}

// walk carries the traversal state for one analysis.
type walk struct {
	agent     *Agent
	ac        *core.AnalysisContext
	source    []byte
	safeLines map[int]struct{}
	findings  []schemas.Finding
}

// visit descends the tree tracking how many loops enclose the current node.
func (w *walk) visit(n *sitter.Node, loopDepth int) {
	if n == nil || n.IsNull() {
		return
	}

	switch n.Type() {
	case "for_statement", "while_statement":
		if loopDepth >= 1 {
			w.nestedLoop(n, loopDepth+1)
		}
		loopDepth++
	case "call":
		w.checkCall(n, loopDepth > 0)
	case "comparison_operator":
		if loopDepth > 0 {
			w.checkMembership(n)
		}
	}

	cursor := sitter.NewTreeCursor(n)
	defer cursor.Close()
	if ok := cursor.GoToFirstChild(); ok {
		for {
			w.visit(cursor.CurrentNode(), loopDepth)
			if ok := cursor.GoToNextSibling(); !ok {
				break
			}
		}
	}
}

// nestedLoop flags the inner loop with the overall nesting depth.
func (w *walk) nestedLoop(n *sitter.Node, depth int) {
	severity := schemas.SeverityHigh
	if depth >= 3 {
		severity = schemas.SeverityCritical
	}
	w.findings = append(w.findings, w.agent.NewFinding(w.ac, severity,
		"nested_loops",
		fmt.Sprintf("Nested loops detected (depth %d): likely O(n^%d) behavior.", depth, depth),
		parser.Line(n), "PERF001_NESTED_LOOPS",
		"Restructure with lookups or batch operations to avoid nested iteration."))
}

// checkCall applies the call-based rules, mirroring their priority order:
// resource handles first, then list inserts, database calls, and unbounded
// reads.
func (w *walk) checkCall(n *sitter.Node, inLoop bool) {
	line := parser.Line(n)
	args := parser.Arguments(n)

	if attr := parser.AttributeName(n, w.source); attr != "" {
		switch {
		case attr == "socket":
			w.resourceLeak(n, line, "socket")
		case attr == "insert" && inLoop && isZeroLiteral(args, w.source):
			w.findings = append(w.findings, w.agent.NewFinding(w.ac, schemas.SeverityHigh,
				"inefficient_list_operation",
				"insert(0, ...) inside a loop is O(n) per call; the loop becomes quadratic.",
				line, "PERF002_LIST_INSERT",
				"Append and reverse once, or use collections.deque.appendleft."))
		case inLoop && isDBMethod(attr):
			w.findings = append(w.findings, w.agent.NewFinding(w.ac, schemas.SeverityCritical,
				"n_plus_one_query",
				fmt.Sprintf("Database call .%s() inside a loop suggests an N+1 query pattern.", attr),
				line, "PERF004_N_PLUS_ONE",
				"Batch the query outside the loop or use a bulk operation."))
		case isMemoryMethod(attr) && len(args) == 0:
			w.findings = append(w.findings, w.agent.NewFinding(w.ac, schemas.SeverityHigh,
				"memory_intensive",
				fmt.Sprintf(".%s() with no size argument loads the entire source into memory.", attr),
				line, "PERF005_UNBOUNDED_MEMORY",
				"Read in chunks or iterate over the handle instead."))
		}
		return
	}

	callee := n.ChildByFieldName("function")
	if callee != nil && callee.Type() == "identifier" && callee.Content(w.source) == "open" {
		w.resourceLeak(n, line, "open")
	}
}

// resourceLeak flags a handle-returning call unless that exact line was
// recorded as safely scoped by a with-statement.
func (w *walk) resourceLeak(n *sitter.Node, line int, what string) {
	if _, safe := w.safeLines[line]; safe {
		return
	}
	w.findings = append(w.findings, w.agent.NewFinding(w.ac, schemas.SeverityHigh,
		"resource_leak",
		fmt.Sprintf("%s() outside a with-block may leak the handle on error paths.", what),
		line, "PERF003_RESOURCE_LEAK",
		"Wrap the call in a with-statement so the handle is always released."))
}

// checkMembership flags `x in y` where y is a plain name with no hint of a
// hash container; repeated inside a loop that is a linear scan each pass.
func (w *walk) checkMembership(n *sitter.Node) {
	for i := 0; i < int(n.ChildCount()); i++ {
		op := n.Child(i)
		if op.Type() != "in" && op.Type() != "not in" {
			continue
		}
		comparand := nextNamedSibling(n, i)
		if comparand == nil || comparand.Type() != "identifier" {
			continue
		}
		name := strings.ToLower(comparand.Content(w.source))
		if hintsHashContainer(name) {
			continue
		}
		w.findings = append(w.findings, w.agent.NewFinding(w.ac, schemas.SeverityMedium,
			"inefficient_membership_test",
			fmt.Sprintf("Membership test against '%s' in a loop is a linear scan per iteration.", comparand.Content(w.source)),
			parser.Line(n), "PERF002_LINEAR_SEARCH",
			"Use a set or dict for membership checks inside loops."))
	}
}

func nextNamedSibling(parent *sitter.Node, idx int) *sitter.Node {
	for i := idx + 1; i < int(parent.ChildCount()); i++ {
		if child := parent.Child(i); child.IsNamed() {
			return child
		}
	}
	return nil
}

func hintsHashContainer(name string) bool {
	for _, hint := range hashContainerHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}

func isDBMethod(attr string) bool {
	_, ok := dbMethods[attr]
	return ok
}

func isMemoryMethod(attr string) bool {
	_, ok := memoryMethods[attr]
	return ok
}

func isZeroLiteral(args []*sitter.Node, source []byte) bool {
	return len(args) > 0 && args[0].Type() == "integer" && args[0].Content(source) == "0"
}

// collectSafeLines records the line of every open() or .socket() call that
// appears in a with-statement's context clause (not its body).
func collectSafeLines(root *sitter.Node, source []byte) map[int]struct{} {
	safe := make(map[int]struct{})
	parser.Walk(root, func(n *sitter.Node) bool {
		if n.Type() != "with_statement" {
			return true
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if n.FieldNameForChild(i) == "body" {
				continue
			}
			parser.Walk(n.Child(i), func(inner *sitter.Node) bool {
				if inner.Type() != "call" {
					return true
				}
				callee := inner.ChildByFieldName("function")
				if callee != nil && callee.Type() == "identifier" && callee.Content(source) == "open" {
					safe[parser.Line(inner)] = struct{}{}
				}
				if parser.AttributeName(inner, source) == "socket" {
					safe[parser.Line(inner)] = struct{}{}
				}
				return true
			})
		}
		return true
	})
	return safe
}
