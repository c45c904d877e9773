// Package style implements the agent that enforces layout and naming
// conventions: line length, whitespace, blank-line runs, docstrings, import
// hygiene, and identifier casing. When flake8 is enabled its diagnostics are
// merged into the same report.
package style

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/codeguard-dev/codeguard/api/schemas"
	"github.com/codeguard-dev/codeguard/internal/analysis/core"
	"github.com/codeguard-dev/codeguard/internal/analysis/lint"
	"github.com/codeguard-dev/codeguard/internal/parser"
)

const (
	agentName    = "style"
	agentVersion = "1.0.0"

	defaultLineLengthLimit = 88
	maxBlankRun            = 2
)

var (
	snakeCaseRe  = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
	pascalCaseRe = regexp.MustCompile(`^[A-Z][a-zA-Z0-9]*$`)
	upperCaseRe  = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)
)

// Agent detects style violations in Python source.
type Agent struct {
	*core.BaseAgent

	lineLengthLimit int
	flake8Enabled   bool
	runner          lint.Runner
}

// Option customizes the agent at construction time.
type Option func(*Agent)

// WithLintRunner substitutes the external linter, primarily for tests.
func WithLintRunner(r lint.Runner) Option {
	return func(a *Agent) {
		a.runner = r
		a.flake8Enabled = r != nil
	}
}

// New constructs the style agent from configuration.
func New(deps core.Deps, opts ...Option) core.Agent {
	a := &Agent{
		BaseAgent:       core.NewBaseAgent(agentName, agentVersion, core.CategoryStyle, deps),
		lineLengthLimit: defaultLineLengthLimit,
	}
	if deps.Config != nil {
		styleCfg := deps.Config.Agents().Style
		if !styleCfg.Enabled {
			a.Disable()
		}
		if styleCfg.LineLengthLimit > 0 {
			a.lineLengthLimit = styleCfg.LineLengthLimit
		}
		flake8 := deps.Config.Linters().Flake8
		if flake8.Enabled {
			timeout := flake8.Timeout
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			a.flake8Enabled = true
			a.runner = lint.NewFlake8Runner(flake8.Path, timeout, a.Logger)
		}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs the line-based checks, the tree-based checks when the source
// parses, and the external linter when one is configured. Results are
// deduplicated and ordered by line number.
func (a *Agent) Analyze(ctx context.Context, analysisCtx *core.AnalysisContext) ([]schemas.Finding, error) {
	a.EmitStarted(analysisCtx)

	var findings []schemas.Finding
	findings = append(findings, a.checkLines(analysisCtx)...)

	tree, err := analysisCtx.Tree(ctx)
	switch {
	case err == nil:
		source := analysisCtx.Source()
		findings = append(findings, a.checkDocstrings(analysisCtx, tree.RootNode(), source)...)
		findings = append(findings, a.checkImports(analysisCtx, tree.RootNode(), source)...)
		findings = append(findings, a.checkNaming(analysisCtx, tree.RootNode(), source)...)
	case errors.Is(err, parser.ErrSyntax):
		a.Logger.Debug("Source does not parse; tree-based style checks skipped",
			zap.String("analysis_id", analysisCtx.AnalysisID))
	default:
		a.EmitFailed(analysisCtx, err)
		return nil, err
	}

	if a.flake8Enabled && a.runner != nil {
		findings = append(findings, a.runLinter(ctx, analysisCtx)...)
	}

	findings = dedupe(findings)
	schemas.SortByLine(findings)
	a.EmitCompleted(analysisCtx, len(findings))
	return findings, nil
}

// checkLines covers everything decidable from raw text: length, trailing
// whitespace, tab indentation, and blank-line runs.
func (a *Agent) checkLines(ac *core.AnalysisContext) []schemas.Finding {
	var findings []schemas.Finding
	blankRun := 0
	for i, line := range ac.Lines() {
		lineNo := i + 1

		// Characters, not bytes: non-ASCII source must not over-count.
		if width := utf8.RuneCountInString(line); width > a.lineLengthLimit {
			findings = append(findings, a.NewFinding(ac, schemas.SeverityLow,
				"style/line_length",
				fmt.Sprintf("Line is %d characters long (limit %d).", width, a.lineLengthLimit),
				lineNo, "STYLE001_LINE_LENGTH",
				fmt.Sprintf("Wrap the line to stay within %d characters.", a.lineLengthLimit)))
		}

		if trimmed := strings.TrimRight(line, " \t"); trimmed != line {
			findings = append(findings, a.NewFinding(ac, schemas.SeverityLow,
				"style/trailing_whitespace",
				"Line has trailing whitespace.",
				lineNo, "STYLE002_TRAILING_WS",
				"Remove the trailing whitespace."))
		}

		if indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]; strings.Contains(indent, "\t") {
			findings = append(findings, a.NewFinding(ac, schemas.SeverityMedium,
				"style/tab_indentation",
				"Line is indented with tabs.",
				lineNo, "STYLE003_TABS",
				"Indent with 4 spaces per level."))
		}

		if strings.TrimSpace(line) == "" {
			blankRun++
			if blankRun == maxBlankRun+1 {
				findings = append(findings, a.NewFinding(ac, schemas.SeverityLow,
					"style/blank_lines",
					fmt.Sprintf("More than %d consecutive blank lines.", maxBlankRun),
					lineNo, "STYLE004_BLANK_LINES",
					fmt.Sprintf("Use at most %d blank lines between top-level blocks.", maxBlankRun)))
			}
		} else {
			blankRun = 0
		}
	}
	return findings
}

// checkDocstrings flags public functions and classes whose body does not
// open with a string literal.
func (a *Agent) checkDocstrings(ac *core.AnalysisContext, root *sitter.Node, source []byte) []schemas.Finding {
	var findings []schemas.Finding
	parser.Walk(root, func(n *sitter.Node) bool {
		kind := n.Type()
		if kind != "function_definition" && kind != "class_definition" {
			return true
		}
		nameNode := n.ChildByFieldName("name")
		if nameNode == nil {
			return true
		}
		name := nameNode.Content(source)
		if strings.HasPrefix(name, "_") || hasDocstring(n) {
			return true
		}
		what := "Function"
		if kind == "class_definition" {
			what = "Class"
		}
		findings = append(findings, a.NewFinding(ac, schemas.SeverityLow,
			"style/missing_docstring",
			fmt.Sprintf("%s '%s' has no docstring.", what, name),
			parser.Line(n), "STYLE010_MISSING_DOCSTRING",
			"Add a docstring describing purpose, parameters, and return value."))
		return true
	})
	return findings
}

func hasDocstring(def *sitter.Node) bool {
	body := def.ChildByFieldName("body")
	if body == nil {
		return false
	}
	first := body.NamedChild(0)
	if first == nil || first.Type() != "expression_statement" {
		return false
	}
	expr := first.NamedChild(0)
	return expr != nil && expr.Type() == "string"
}

// importBinding is one name an import statement makes visible.
type importBinding struct {
	name string
	line int
}

// checkImports flags names that are imported twice and names that are
// imported but never referenced.
func (a *Agent) checkImports(ac *core.AnalysisContext, root *sitter.Node, source []byte) []schemas.Finding {
	var bindings []importBinding
	parser.Walk(root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "import_statement", "import_from_statement":
			bindings = append(bindings, importBindings(n, source)...)
			return false
		}
		return true
	})
	if len(bindings) == 0 {
		return nil
	}

	used := make(map[string]int)
	parser.Walk(root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "import_statement", "import_from_statement":
			return false
		case "identifier":
			used[n.Content(source)]++
		}
		return true
	})

	var findings []schemas.Finding
	seen := make(map[string]int)
	for _, b := range bindings {
		if firstLine, dup := seen[b.name]; dup {
			findings = append(findings, a.NewFinding(ac, schemas.SeverityLow,
				"style/duplicate_import",
				fmt.Sprintf("'%s' is already imported on line %d.", b.name, firstLine),
				b.line, "STYLE021_DUP_IMPORT",
				"Remove the duplicate import."))
			continue
		}
		seen[b.name] = b.line
		if used[b.name] == 0 {
			findings = append(findings, a.NewFinding(ac, schemas.SeverityLow,
				"style/unused_import",
				fmt.Sprintf("'%s' is imported but never used.", b.name),
				b.line, "STYLE020_UNUSED_IMPORT",
				"Remove the unused import."))
		}
	}
	return findings
}

// importBindings extracts the local names an import statement introduces.
// `import a.b` binds "a"; `from m import x as y` binds "y". Wildcard imports
// bind nothing trackable.
func importBindings(stmt *sitter.Node, source []byte) []importBinding {
	line := parser.Line(stmt)
	var out []importBinding

	add := func(n *sitter.Node) {
		switch n.Type() {
		case "dotted_name":
			name := n.Content(source)
			if root, _, found := strings.Cut(name, "."); found {
				name = root
			}
			out = append(out, importBinding{name: name, line: line})
		case "aliased_import":
			if alias := n.ChildByFieldName("alias"); alias != nil {
				out = append(out, importBinding{name: alias.Content(source), line: line})
			}
		}
	}

	if stmt.Type() == "import_statement" {
		for i := 0; i < int(stmt.NamedChildCount()); i++ {
			add(stmt.NamedChild(i))
		}
		return out
	}

	// from-import: the module_name field is the source, not a binding.
	module := stmt.ChildByFieldName("module_name")
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		child := stmt.NamedChild(i)
		if module != nil && child.StartByte() == module.StartByte() {
			continue
		}
		if child.Type() == "wildcard_import" {
			continue
		}
		if child.Type() == "dotted_name" {
			// from-imported names bind as written, dots and all.
			out = append(out, importBinding{name: child.Content(source), line: line})
			continue
		}
		add(child)
	}
	return out
}

// checkNaming enforces snake_case functions and variables, PascalCase
// classes, and UPPER_CASE or snake_case module-level names.
func (a *Agent) checkNaming(ac *core.AnalysisContext, root *sitter.Node, source []byte) []schemas.Finding {
	var findings []schemas.Finding

	flag := func(ruleID, message string, line int) {
		findings = append(findings, a.NewFinding(ac, schemas.SeverityLow,
			"style/naming", message, line, ruleID,
			"Rename to match the standard Python naming conventions."))
	}

	parser.Walk(root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "function_definition":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := nameNode.Content(source)
				if !snakeCaseRe.MatchString(strings.TrimLeft(name, "_")) && !isDunder(name) {
					flag("STYLE030_FUNC_NAMING", fmt.Sprintf("Function name '%s' is not snake_case.", name), parser.Line(n))
				}
			}
		case "class_definition":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := nameNode.Content(source)
				if !pascalCaseRe.MatchString(strings.TrimLeft(name, "_")) {
					flag("STYLE031_CLASS_NAMING", fmt.Sprintf("Class name '%s' is not PascalCase.", name), parser.Line(n))
				}
			}
		case "assignment":
			left := n.ChildByFieldName("left")
			if left == nil || left.Type() != "identifier" {
				return true
			}
			name := left.Content(source)
			if snakeCaseRe.MatchString(name) || upperCaseRe.MatchString(name) {
				return true
			}
			if isModuleLevel(n) {
				flag("STYLE032_CONST_NAMING", fmt.Sprintf("Module-level name '%s' should be snake_case or UPPER_CASE.", name), parser.Line(n))
			} else {
				flag("STYLE033_VAR_NAMING", fmt.Sprintf("Variable name '%s' is not snake_case.", name), parser.Line(n))
			}
		}
		return true
	})
	return findings
}

// isDunder reports whether the name is a double-underscore protocol method
// such as __init__.
func isDunder(name string) bool {
	return strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}

// isModuleLevel reports whether the assignment sits directly in the module,
// outside any function or class body.
func isModuleLevel(n *sitter.Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "function_definition", "class_definition":
			return false
		}
	}
	return true
}

// runLinter merges flake8 diagnostics. Errors from the linter are logged
// and swallowed so a broken flake8 install never fails an analysis.
func (a *Agent) runLinter(ctx context.Context, ac *core.AnalysisContext) []schemas.Finding {
	diags, err := a.runner.Run(ctx, ac.CodeContent)
	if err != nil {
		a.Logger.Warn("External linter failed; continuing with built-in checks only",
			zap.Error(err), zap.String("analysis_id", ac.AnalysisID))
		return nil
	}

	var findings []schemas.Finding
	for _, d := range diags {
		findings = append(findings, a.NewFinding(ac, flake8Severity(d.Code),
			"style/flake8",
			fmt.Sprintf("%s: %s", d.Code, d.Message),
			d.Line, "FLAKE8_"+d.Code,
			"Fix the reported flake8 violation."))
	}
	return findings
}

// flake8Severity maps diagnostic classes: errors and pyflakes findings are
// high, warnings medium, everything else low.
func flake8Severity(code string) schemas.Severity {
	switch {
	case strings.HasPrefix(code, "E"), strings.HasPrefix(code, "F"):
		return schemas.SeverityHigh
	case strings.HasPrefix(code, "W"):
		return schemas.SeverityMedium
	default:
		return schemas.SeverityLow
	}
}

// dedupe drops findings that repeat an earlier (line, issue, rule) triple.
func dedupe(findings []schemas.Finding) []schemas.Finding {
	type key struct {
		line  int
		issue string
		rule  string
		agent string
	}
	seen := make(map[key]struct{}, len(findings))
	out := findings[:0]
	for _, f := range findings {
		k := key{line: f.LineNumber, issue: f.IssueType, rule: f.RuleID, agent: f.AgentName}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, f)
	}
	return out
}
