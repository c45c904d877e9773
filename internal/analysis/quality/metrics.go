// internal/analysis/quality/metrics.go
package quality

import (
	"context"
	"math"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/codeguard-dev/codeguard/internal/analysis/core"
	"github.com/codeguard-dev/codeguard/internal/parser"
)

// FunctionInfo describes one function found in the source, with the metrics
// the quality agent thresholds against.
type FunctionInfo struct {
	Name       string
	Line       int
	Length     int // total source lines spanned by the definition
	Complexity int // cyclomatic complexity
}

// MetricsProvider computes the code metrics the quality agent consumes. The
// indirection keeps each metric individually mockable in tests.
type MetricsProvider interface {
	// Functions lists every function definition with its metrics.
	Functions(ctx context.Context, ac *core.AnalysisContext) ([]FunctionInfo, error)
	// MaintainabilityIndex returns the module's 0-100 maintainability index.
	// The second result is false when the metric cannot be computed; callers
	// treat that as a perfect score.
	MaintainabilityIndex(ctx context.Context, ac *core.AnalysisContext) (float64, bool)
}

// decisionNodes are the branch points counted toward cyclomatic complexity.
var decisionNodes = map[string]struct{}{
	"if_statement":           {},
	"elif_clause":            {},
	"for_statement":          {},
	"while_statement":        {},
	"except_clause":          {},
	"conditional_expression": {},
	"boolean_operator":       {},
	"case_clause":            {},
	"assert_statement":       {},
}

// treeMetrics is the default MetricsProvider, computing everything from the
// shared parse tree.
type treeMetrics struct{}

// NewTreeMetrics returns the Tree-sitter backed metrics provider.
func NewTreeMetrics() MetricsProvider {
	return treeMetrics{}
}

func (treeMetrics) Functions(ctx context.Context, ac *core.AnalysisContext) ([]FunctionInfo, error) {
	tree, err := ac.Tree(ctx)
	if err != nil {
		return nil, err
	}
	source := ac.Source()

	var infos []FunctionInfo
	parser.Walk(tree.RootNode(), func(n *sitter.Node) bool {
		if n.Type() != "function_definition" {
			return true
		}
		name := ""
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			name = nameNode.Content(source)
		}
		start := parser.Line(n)
		end := int(n.EndPoint().Row) + 1
		infos = append(infos, FunctionInfo{
			Name:       name,
			Line:       start,
			Length:     end - start + 1,
			Complexity: complexity(n),
		})
		// Nested functions are measured on their own; keep walking so they
		// are listed too.
		return true
	})
	return infos, nil
}

// complexity counts decision points within a function body, not descending
// into nested function definitions.
func complexity(fn *sitter.Node) int {
	count := 1
	parser.Walk(fn, func(n *sitter.Node) bool {
		if n != fn && n.Type() == "function_definition" {
			return false
		}
		if _, ok := decisionNodes[n.Type()]; ok {
			count++
		}
		return true
	})
	return count
}

// MaintainabilityIndex implements the classic SEI-derived formula normalized
// to 0-100, with the Halstead volume approximated from token counts. It
// reports false for sources too small to measure.
func (tm treeMetrics) MaintainabilityIndex(ctx context.Context, ac *core.AnalysisContext) (float64, bool) {
	tree, err := ac.Tree(ctx)
	if err != nil {
		return 0, false
	}

	sloc := 0
	for _, line := range ac.Lines() {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			sloc++
		}
	}
	if sloc == 0 {
		return 0, false
	}

	totalTokens, distinctTokens := countTokens(tree.RootNode(), ac.Source())
	if totalTokens == 0 || distinctTokens < 2 {
		return 0, false
	}
	volume := float64(totalTokens) * math.Log2(float64(distinctTokens))

	totalComplexity := 1
	parser.Walk(tree.RootNode(), func(n *sitter.Node) bool {
		if _, ok := decisionNodes[n.Type()]; ok {
			totalComplexity++
		}
		return true
	})

	mi := 171 - 5.2*math.Log(volume) - 0.23*float64(totalComplexity) - 16.2*math.Log(float64(sloc))
	mi = mi * 100 / 171
	if mi < 0 {
		mi = 0
	}
	if mi > 100 {
		mi = 100
	}
	return mi, true
}

// countTokens tallies leaf nodes as Halstead operands/operators.
func countTokens(root *sitter.Node, source []byte) (total int, distinct int) {
	seen := make(map[string]struct{})
	parser.Walk(root, func(n *sitter.Node) bool {
		if n.ChildCount() == 0 {
			text := n.Content(source)
			if strings.TrimSpace(text) == "" {
				return true
			}
			total++
			seen[text] = struct{}{}
		}
		return true
	})
	return total, len(seen)
}
