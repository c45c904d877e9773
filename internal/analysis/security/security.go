// Package security implements the agent that scans Python source for
// dangerous function calls, injection-prone SQL construction, hardcoded
// credentials, and weak cryptography.
package security

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/codeguard-dev/codeguard/api/schemas"
	"github.com/codeguard-dev/codeguard/internal/analysis/core"
	"github.com/codeguard-dev/codeguard/internal/parser"
)

const (
	agentName    = "security"
	agentVersion = "1.0.0"
)

// dangerousFuncs are builtins whose use allows arbitrary code execution.
var dangerousFuncs = map[string]string{
	"eval":       "SEC001_EVAL",
	"exec":       "SEC001_EXEC",
	"compile":    "SEC001_COMPILE",
	"__import__": "SEC001___IMPORT__",
	"execfile":   "SEC001_EXECFILE",
}

// unsafeLoaders are deserialization entry points that execute attacker
// controlled payloads.
var unsafeLoaders = map[string]struct{}{
	"pickle.loads":  {},
	"pickle.load":   {},
	"cPickle.loads": {},
	"cPickle.load":  {},
	"yaml.load":     {},
	"marshal.loads": {},
}

// sqlPatterns flag string building inside execute() calls. The first pattern
// to match a line wins.
var sqlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)execute\s*\(\s*["'].*\+`),
	regexp.MustCompile(`(?i)execute\s*\(\s*f["']`),
	regexp.MustCompile(`(?i)execute\s*\(\s*["'].*%s`),
	regexp.MustCompile(`(?i)execute\s*\(\s*["'].*["']\s*\.\s*format`),
	regexp.MustCompile(`(?i)\.execute\s*\(\s*["'].*\+\s*\w`),
}

// credentialRule describes one hardcoded-secret keyword.
type credentialRule struct {
	keyword  string
	severity schemas.Severity
	ruleID   string
	pattern  *regexp.Regexp
}

var credentialRules = []credentialRule{
	{"password", schemas.SeverityCritical, "SEC003_PASSWORD", credPattern("password")},
	{"api_key", schemas.SeverityCritical, "SEC003_API_KEY", credPattern("api_key")},
	{"secret_key", schemas.SeverityCritical, "SEC003_SECRET_KEY", credPattern("secret_key")},
	{"token", schemas.SeverityHigh, "SEC003_TOKEN", credPattern("token")},
	{"access_key", schemas.SeverityHigh, "SEC003_ACCESS_KEY", credPattern("access_key")},
}

func credPattern(keyword string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + keyword + `\s*=\s*["']([^"']+)["']`)
}

// placeholderMarkers rule out values that are clearly not real secrets.
var placeholderMarkers = []string{
	"your_", "replace", "change", "todo", "fixme",
	"example", "test", "dummy", "placeholder",
}

var (
	anglePlaceholder = regexp.MustCompile(`^<.*>$`)
	repeatedFiller   = regexp.MustCompile(`^(x+|\*+)$`)
)

// Agent detects security issues in Python source.
type Agent struct {
	*core.BaseAgent
}

// New constructs the security agent.
func New(deps core.Deps) core.Agent {
	a := &Agent{
		BaseAgent: core.NewBaseAgent(agentName, agentVersion, core.CategorySecurity, deps),
	}
	if deps.Config != nil && !deps.Config.Agents().Security.Enabled {
		a.Disable()
	}
	return a
}

// Analyze runs every security check and returns findings most severe first.
// When the source does not parse, the line-based checks still run; only the
// AST-backed ones are skipped.
func (a *Agent) Analyze(ctx context.Context, analysisCtx *core.AnalysisContext) ([]schemas.Finding, error) {
	a.EmitStarted(analysisCtx)

	var findings []schemas.Finding
	source := analysisCtx.Source()

	tree, err := analysisCtx.Tree(ctx)
	switch {
	case err == nil:
		findings = append(findings, a.checkCalls(analysisCtx, tree.RootNode(), source)...)
	case errors.Is(err, parser.ErrSyntax):
		a.Logger.Debug("Skipping AST checks on unparseable source",
			zap.String("analysis_id", analysisCtx.AnalysisID))
	default:
		a.EmitFailed(analysisCtx, err)
		return nil, err
	}

	sqlFindings, sqlLines := a.checkSQLLines(analysisCtx)
	findings = append(findings, sqlFindings...)
	if err == nil {
		findings = append(findings, a.checkSQLDataFlow(analysisCtx, tree.RootNode(), source, sqlLines)...)
	}
	findings = append(findings, a.checkCredentials(analysisCtx)...)

	schemas.SortBySeverity(findings)
	a.EmitCompleted(analysisCtx, len(findings))
	return findings, nil
}

// checkCalls walks the tree once, flagging dangerous builtins, unsafe
// deserialization, and weak cryptography.
func (a *Agent) checkCalls(ac *core.AnalysisContext, root *sitter.Node, source []byte) []schemas.Finding {
	var findings []schemas.Finding

	parser.Walk(root, func(n *sitter.Node) bool {
		if n.Type() != "call" {
			return true
		}
		name := parser.CallName(n, source)
		if name == "" {
			return true
		}
		line := parser.Line(n)

		if ruleID, ok := dangerousFuncs[name]; ok {
			findings = append(findings, a.NewFinding(ac, schemas.SeverityCritical,
				"dangerous_function",
				fmt.Sprintf("Use of %s() detected. This can execute arbitrary code.", name),
				line, ruleID,
				fmt.Sprintf("Avoid %s(); use a safe parser such as ast.literal_eval for data.", name)))
			return true
		}

		if _, ok := unsafeLoaders[name]; ok {
			findings = append(findings, a.NewFinding(ac, schemas.SeverityHigh,
				"unsafe_deserialization",
				fmt.Sprintf("Unsafe deserialization via %s(). Untrusted input can execute code.", name),
				line, "SEC001_PICKLE",
				"Deserialize untrusted data with a safe format such as json, or yaml.safe_load."))
			return true
		}

		if f, ok := a.weakCryptoFinding(ac, name, line); ok {
			findings = append(findings, f)
		}
		return true
	})
	return findings
}

// weakCryptoFinding matches broken hash and cipher algorithms by name.
func (a *Agent) weakCryptoFinding(ac *core.AnalysisContext, name string, line int) (schemas.Finding, bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "md5"):
		return a.NewFinding(ac, schemas.SeverityMedium, "weak_cryptography",
			"MD5 is cryptographically broken and unsuitable for security use.",
			line, "SEC004_MD5",
			"Use hashlib.sha256 or stronger."), true
	case strings.Contains(lower, "sha1"):
		return a.NewFinding(ac, schemas.SeverityMedium, "weak_cryptography",
			"SHA-1 is cryptographically broken and unsuitable for security use.",
			line, "SEC004_SHA1",
			"Use hashlib.sha256 or stronger."), true
	// Cipher names stay case-sensitive: lowercasing would catch describe(),
	// destroy() and friends.
	case strings.Contains(name, "DES"), strings.Contains(name, "RC4"), strings.Contains(name, "Blowfish"):
		return a.NewFinding(ac, schemas.SeverityHigh, "weak_cryptography",
			fmt.Sprintf("Weak encryption algorithm in %s().", name),
			line, "SEC004_WEAK_ENCRYPTION",
			"Use a modern AEAD cipher such as AES-GCM or ChaCha20-Poly1305."), true
	}
	return schemas.Finding{}, false
}

// checkSQLLines scans raw source lines against the injection patterns,
// flagging at most one finding per line. It returns the flagged line set so
// the data-flow pass avoids duplicates.
func (a *Agent) checkSQLLines(ac *core.AnalysisContext) ([]schemas.Finding, map[int]struct{}) {
	var findings []schemas.Finding
	flagged := make(map[int]struct{})

	for i, line := range ac.Lines() {
		for _, pattern := range sqlPatterns {
			if pattern.MatchString(line) {
				lineNo := i + 1
				flagged[lineNo] = struct{}{}
				findings = append(findings, a.sqlFinding(ac, lineNo))
				break
			}
		}
	}
	return findings, flagged
}

// checkSQLDataFlow tracks variables assigned from string-building expressions
// and flags execute() calls fed by them, or fed directly by such expressions,
// on lines the pattern scan missed.
func (a *Agent) checkSQLDataFlow(ac *core.AnalysisContext, root *sitter.Node, source []byte, already map[int]struct{}) []schemas.Finding {
	suspicious := make(map[string]struct{})
	parser.Walk(root, func(n *sitter.Node) bool {
		if n.Type() != "assignment" {
			return true
		}
		left := n.ChildByFieldName("left")
		right := n.ChildByFieldName("right")
		if left == nil || right == nil || left.Type() != "identifier" {
			return true
		}
		if isStringBuilding(right, source) {
			suspicious[left.Content(source)] = struct{}{}
		}
		return true
	})

	var findings []schemas.Finding
	parser.Walk(root, func(n *sitter.Node) bool {
		if n.Type() != "call" || parser.AttributeName(n, source) != "execute" {
			return true
		}
		args := parser.Arguments(n)
		if len(args) == 0 {
			return true
		}
		line := parser.Line(n)
		if _, dup := already[line]; dup {
			return true
		}

		arg := args[0]
		tainted := isStringBuilding(arg, source)
		if !tainted && arg.Type() == "identifier" {
			_, tainted = suspicious[arg.Content(source)]
		}
		if tainted {
			already[line] = struct{}{}
			findings = append(findings, a.sqlFinding(ac, line))
		}
		return true
	})
	return findings
}

// isStringBuilding reports whether the expression assembles a string from
// variable parts: f-string interpolation, + or % concatenation, or .format().
func isStringBuilding(n *sitter.Node, source []byte) bool {
	switch n.Type() {
	case "string":
		return parser.IsFStringWithInterpolation(n)
	case "binary_operator":
		op := n.ChildByFieldName("operator")
		if op == nil {
			return false
		}
		text := op.Content(source)
		return text == "+" || text == "%"
	case "call":
		return parser.AttributeName(n, source) == "format"
	}
	return false
}

func (a *Agent) sqlFinding(ac *core.AnalysisContext, line int) schemas.Finding {
	return a.NewFinding(ac, schemas.SeverityHigh, "sql_injection",
		"SQL query built from string concatenation or interpolation.",
		line, "SEC002_SQL_INJECTION",
		"Use parameterized queries (cursor.execute(sql, params)) instead of string building.")
}

// checkCredentials scans lines for hardcoded secrets, skipping short values
// and obvious placeholders.
func (a *Agent) checkCredentials(ac *core.AnalysisContext) []schemas.Finding {
	var findings []schemas.Finding

	for i, line := range ac.Lines() {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		for _, rule := range credentialRules {
			m := rule.pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			value := m[1]
			if len(value) < 8 || isPlaceholder(value) {
				continue
			}
			findings = append(findings, a.NewFinding(ac, rule.severity,
				"hardcoded_credentials",
				fmt.Sprintf("Hardcoded %s detected in source.", rule.keyword),
				i+1, rule.ruleID,
				"Load secrets from the environment or a secret manager, never source code."))
			// One credential finding per line.
			break
		}
	}
	return findings
}

// isPlaceholder filters values that are templates rather than live secrets.
func isPlaceholder(value string) bool {
	lower := strings.ToLower(value)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	if anglePlaceholder.MatchString(lower) || repeatedFiller.MatchString(lower) {
		return true
	}
	return strings.Contains(lower, "xxx")
}
