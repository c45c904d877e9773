// Package quality implements the agent that measures maintainability:
// cyclomatic complexity, duplicated blocks, oversized functions, and the
// module maintainability index.
package quality

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"

	"go.uber.org/zap"

	"github.com/codeguard-dev/codeguard/api/schemas"
	"github.com/codeguard-dev/codeguard/internal/analysis/core"
	"github.com/codeguard-dev/codeguard/internal/parser"
)

const (
	agentName    = "quality"
	agentVersion = "1.0.0"

	defaultComplexityThreshold      = 10
	defaultDuplicationBlockSize     = 4
	defaultFunctionLengthThreshold  = 100
	defaultMaintainabilityThreshold = 50.0

	// Escalation cutoffs for complexity, independent of the base threshold.
	complexityHighCutoff     = 20
	complexityCriticalCutoff = 50
)

// Option customizes the quality agent.
type Option func(*Agent)

// WithMetricsProvider swaps the metrics implementation, mainly for tests.
func WithMetricsProvider(mp MetricsProvider) Option {
	return func(a *Agent) { a.metrics = mp }
}

// Agent detects maintainability issues in Python source.
type Agent struct {
	*core.BaseAgent
	metrics MetricsProvider

	complexityThreshold      int
	duplicationBlockSize     int
	functionLengthThreshold  int
	maintainabilityThreshold float64
}

// New constructs the quality agent with thresholds from configuration.
func New(deps core.Deps, opts ...Option) core.Agent {
	a := &Agent{
		BaseAgent:                core.NewBaseAgent(agentName, agentVersion, core.CategoryQuality, deps),
		metrics:                  NewTreeMetrics(),
		complexityThreshold:      defaultComplexityThreshold,
		duplicationBlockSize:     defaultDuplicationBlockSize,
		functionLengthThreshold:  defaultFunctionLengthThreshold,
		maintainabilityThreshold: defaultMaintainabilityThreshold,
	}
	if deps.Config != nil {
		cfg := deps.Config.Agents().Quality
		if !cfg.Enabled {
			a.Disable()
		}
		if cfg.ComplexityThreshold > 0 {
			a.complexityThreshold = cfg.ComplexityThreshold
		}
		if cfg.DuplicationBlockSize > 1 {
			a.duplicationBlockSize = cfg.DuplicationBlockSize
		}
		if cfg.FunctionLengthThreshold > 0 {
			a.functionLengthThreshold = cfg.FunctionLengthThreshold
		}
		if cfg.MaintainabilityThreshold > 0 {
			a.maintainabilityThreshold = cfg.MaintainabilityThreshold
		}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs the maintainability checks. Source that does not parse yields
// no findings rather than an error, since the other agents already surface
// broken input.
func (a *Agent) Analyze(ctx context.Context, analysisCtx *core.AnalysisContext) ([]schemas.Finding, error) {
	a.EmitStarted(analysisCtx)

	if _, err := analysisCtx.Tree(ctx); err != nil {
		if errors.Is(err, parser.ErrSyntax) {
			a.Logger.Debug("Source does not parse; skipping quality metrics",
				zap.String("analysis_id", analysisCtx.AnalysisID))
			a.EmitCompleted(analysisCtx, 0)
			return nil, nil
		}
		a.EmitFailed(analysisCtx, err)
		return nil, err
	}

	var findings []schemas.Finding

	funcs, err := a.metrics.Functions(ctx, analysisCtx)
	if err != nil {
		a.EmitFailed(analysisCtx, err)
		return nil, err
	}
	for _, fn := range funcs {
		if f, ok := a.complexityFinding(analysisCtx, fn); ok {
			findings = append(findings, f)
		}
		if fn.Length > a.functionLengthThreshold {
			findings = append(findings, a.NewFinding(analysisCtx, schemas.SeverityMedium,
				"long_function",
				fmt.Sprintf("Function '%s' is %d lines long (threshold %d).", fn.Name, fn.Length, a.functionLengthThreshold),
				fn.Line, "QUAL005_FUNCTION_LENGTH",
				"Split the function into smaller, focused helpers."))
		}
	}

	findings = append(findings, a.checkDuplication(analysisCtx)...)

	if mi, ok := a.metrics.MaintainabilityIndex(ctx, analysisCtx); ok {
		if f, flagged := a.maintainabilityFinding(analysisCtx, mi); flagged {
			findings = append(findings, f)
		}
	}

	schemas.SortBySeverity(findings)
	a.EmitCompleted(analysisCtx, len(findings))
	return findings, nil
}

// complexityFinding grades a function's complexity against the threshold,
// escalating severity at the fixed cutoffs.
func (a *Agent) complexityFinding(ac *core.AnalysisContext, fn FunctionInfo) (schemas.Finding, bool) {
	var severity schemas.Severity
	switch {
	case fn.Complexity > complexityCriticalCutoff:
		severity = schemas.SeverityCritical
	case fn.Complexity > complexityHighCutoff:
		severity = schemas.SeverityHigh
	case fn.Complexity > a.complexityThreshold:
		severity = schemas.SeverityMedium
	default:
		return schemas.Finding{}, false
	}
	return a.NewFinding(ac, severity,
		"high_complexity",
		fmt.Sprintf("Function '%s' has cyclomatic complexity %d (threshold %d).", fn.Name, fn.Complexity, a.complexityThreshold),
		fn.Line, "QUAL001_COMPLEXITY",
		"Reduce branching by extracting helpers or simplifying conditionals."), true
}

// checkDuplication slides a fixed-size window over the stripped source lines
// and flags repeats of a block first seen earlier. Occurrences overlapping
// the first sighting are not flagged.
func (a *Agent) checkDuplication(ac *core.AnalysisContext) []schemas.Finding {
	blockSize := a.duplicationBlockSize
	lines := ac.Lines()
	stripped := make([]string, len(lines))
	for i, line := range lines {
		stripped[i] = strings.TrimSpace(line)
	}

	var findings []schemas.Finding
	firstSeen := make(map[uint64]int)

	for i := 0; i+blockSize <= len(stripped); i++ {
		block := stripped[i : i+blockSize]
		if blockIsTrivial(block) {
			continue
		}
		key := hashBlock(block)
		first, seen := firstSeen[key]
		if !seen {
			firstSeen[key] = i
			continue
		}
		if i > first+blockSize {
			findings = append(findings, a.NewFinding(ac, schemas.SeverityMedium,
				"code_duplication",
				fmt.Sprintf("Lines %d-%d duplicate lines %d-%d.", i+1, i+blockSize, first+1, first+blockSize),
				i+1, "QUAL002_DUPLICATION",
				"Extract the repeated block into a shared function."))
		}
	}
	return findings
}

// blockIsTrivial skips windows containing blank or comment-only lines.
func blockIsTrivial(block []string) bool {
	for _, line := range block {
		if line == "" || strings.HasPrefix(line, "#") {
			return true
		}
	}
	return false
}

func hashBlock(block []string) uint64 {
	h := fnv.New64a()
	for _, line := range block {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	return h.Sum64()
}

// maintainabilityFinding grades the module MI; anything at or above the
// threshold passes.
func (a *Agent) maintainabilityFinding(ac *core.AnalysisContext, mi float64) (schemas.Finding, bool) {
	var severity schemas.Severity
	switch {
	case mi < 20:
		severity = schemas.SeverityCritical
	case mi < 40:
		severity = schemas.SeverityHigh
	case mi < a.maintainabilityThreshold:
		severity = schemas.SeverityMedium
	default:
		return schemas.Finding{}, false
	}
	return a.NewFinding(ac, severity,
		"low_maintainability",
		fmt.Sprintf("Module maintainability index is %.1f (threshold %.1f).", mi, a.maintainabilityThreshold),
		1, "QUAL003_MAINTAINABILITY",
		"Shorten functions and reduce branching to raise the maintainability index."), true
}
