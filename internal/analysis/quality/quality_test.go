package quality_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/codeguard-dev/codeguard/api/schemas"
	"github.com/codeguard-dev/codeguard/internal/analysis/core"
	"github.com/codeguard-dev/codeguard/internal/analysis/quality"
)

// stubMetrics lets each metric be scripted independently.
type stubMetrics struct {
	funcs []quality.FunctionInfo
	err   error
	mi    float64
	miOK  bool
}

func (s stubMetrics) Functions(context.Context, *core.AnalysisContext) ([]quality.FunctionInfo, error) {
	return s.funcs, s.err
}

func (s stubMetrics) MaintainabilityIndex(context.Context, *core.AnalysisContext) (float64, bool) {
	return s.mi, s.miOK
}

func newAgent(t *testing.T, opts ...quality.Option) core.Agent {
	t.Helper()
	return quality.New(core.Deps{Logger: zaptest.NewLogger(t)}, opts...)
}

func analyze(t *testing.T, agent core.Agent, code string) []schemas.Finding {
	t.Helper()
	findings, err := agent.Analyze(context.Background(), core.NewAnalysisContext(code, ""))
	require.NoError(t, err)
	return findings
}

func findByRule(findings []schemas.Finding, ruleID string) []schemas.Finding {
	var out []schemas.Finding
	for _, f := range findings {
		if f.RuleID == ruleID {
			out = append(out, f)
		}
	}
	return out
}

func TestSyntaxErrorYieldsNoFindings(t *testing.T) {
	t.Parallel()
	findings := analyze(t, newAgent(t), "def broken(:\n    pass\n")
	assert.Empty(t, findings)
}

func TestComplexityThresholdWithRealMetrics(t *testing.T) {
	t.Parallel()
	var sb strings.Builder
	sb.WriteString("def busy(x):\n")
	for i := 0; i < 11; i++ {
		sb.WriteString("    if x > 0:\n        x -= 1\n")
	}
	sb.WriteString("    return x\n")

	findings := analyze(t, newAgent(t), sb.String())
	flagged := findByRule(findings, "QUAL001_COMPLEXITY")
	require.Len(t, flagged, 1)
	assert.Equal(t, schemas.SeverityMedium, flagged[0].Severity)
	assert.Equal(t, "high_complexity", flagged[0].IssueType)
	assert.Equal(t, 1, flagged[0].LineNumber)
	assert.Contains(t, flagged[0].Message, "'busy'")
}

func TestComplexitySeverityEscalation(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name       string
		complexity int
		want       schemas.Severity
		flagged    bool
	}{
		{"at threshold passes", 10, "", false},
		{"just above threshold", 11, schemas.SeverityMedium, true},
		{"above high cutoff", 21, schemas.SeverityHigh, true},
		{"above critical cutoff", 51, schemas.SeverityCritical, true},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			stub := stubMetrics{funcs: []quality.FunctionInfo{
				{Name: "f", Line: 3, Length: 10, Complexity: tt.complexity},
			}}
			agent := newAgent(t, quality.WithMetricsProvider(stub))
			findings := analyze(t, agent, "def f():\n    pass\n")

			flagged := findByRule(findings, "QUAL001_COMPLEXITY")
			if !tt.flagged {
				assert.Empty(t, flagged)
				return
			}
			require.Len(t, flagged, 1)
			assert.Equal(t, tt.want, flagged[0].Severity)
			assert.Equal(t, 3, flagged[0].LineNumber)
		})
	}
}

func TestFunctionLength(t *testing.T) {
	t.Parallel()
	stub := stubMetrics{funcs: []quality.FunctionInfo{
		{Name: "ok", Line: 1, Length: 100, Complexity: 1},
		{Name: "sprawl", Line: 120, Length: 101, Complexity: 1},
	}}
	agent := newAgent(t, quality.WithMetricsProvider(stub))
	findings := analyze(t, agent, "def f():\n    pass\n")

	long := findByRule(findings, "QUAL005_FUNCTION_LENGTH")
	require.Len(t, long, 1)
	assert.Equal(t, schemas.SeverityMedium, long[0].Severity)
	assert.Equal(t, "long_function", long[0].IssueType)
	assert.Contains(t, long[0].Message, "'sprawl'")
}

func TestDuplicationFlagsSecondOccurrence(t *testing.T) {
	t.Parallel()
	code := strings.Join([]string{
		"a = setup(1)",
		"b = setup(2)",
		"c = setup(3)",
		"d = setup(4)",
		"x = transform(a)",
		"y = transform(b)",
		"z = transform(c)",
		"w = transform(d)",
		"a = setup(1)",
		"b = setup(2)",
		"c = setup(3)",
		"d = setup(4)",
		"",
	}, "\n")

	findings := analyze(t, newAgent(t), code)
	dups := findByRule(findings, "QUAL002_DUPLICATION")
	require.Len(t, dups, 1)
	f := dups[0]
	assert.Equal(t, schemas.SeverityMedium, f.Severity)
	assert.Equal(t, "code_duplication", f.IssueType)
	assert.Equal(t, 9, f.LineNumber, "flagged at the start of the repeat")
	assert.Contains(t, f.Message, "duplicate lines 1-4")
}

func TestDuplicationSkipsOverlappingRepeat(t *testing.T) {
	t.Parallel()
	code := strings.Join([]string{
		"a = setup(1)",
		"b = setup(2)",
		"c = setup(3)",
		"d = setup(4)",
		"a = setup(1)",
		"b = setup(2)",
		"c = setup(3)",
		"d = setup(4)",
		"",
	}, "\n")

	findings := analyze(t, newAgent(t), code)
	assert.Empty(t, findByRule(findings, "QUAL002_DUPLICATION"),
		"a repeat adjacent to the first sighting is not flagged")
}

func TestDuplicationIgnoresBlankAndCommentBlocks(t *testing.T) {
	t.Parallel()
	code := strings.Join([]string{
		"# section",
		"a = 1",
		"",
		"b = 2",
		"x = 9",
		"y = 8",
		"# section",
		"a = 1",
		"",
		"b = 2",
		"",
	}, "\n")

	findings := analyze(t, newAgent(t), code)
	assert.Empty(t, findByRule(findings, "QUAL002_DUPLICATION"))
}

func TestMaintainabilityIndexGrading(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name    string
		mi      float64
		miOK    bool
		want    schemas.Severity
		flagged bool
	}{
		{"healthy module", 75, true, "", false},
		{"below threshold", 45, true, schemas.SeverityMedium, true},
		{"below forty", 30, true, schemas.SeverityHigh, true},
		{"below twenty", 10, true, schemas.SeverityCritical, true},
		{"metric unavailable means perfect", 0, false, "", false},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			stub := stubMetrics{mi: tt.mi, miOK: tt.miOK}
			agent := newAgent(t, quality.WithMetricsProvider(stub))
			findings := analyze(t, agent, "x = 1\n")

			flagged := findByRule(findings, "QUAL003_MAINTAINABILITY")
			if !tt.flagged {
				assert.Empty(t, flagged)
				return
			}
			require.Len(t, flagged, 1)
			assert.Equal(t, tt.want, flagged[0].Severity)
			assert.Equal(t, "low_maintainability", flagged[0].IssueType)
			assert.Equal(t, 1, flagged[0].LineNumber, "module-level finding sits on line 1")
		})
	}
}

func TestTreeMetricsFunctions(t *testing.T) {
	t.Parallel()
	code := "def outer(x):\n    if x:\n        return 1\n    return 0\n\ndef plain():\n    pass\n"
	ac := core.NewAnalysisContext(code, "")

	funcs, err := quality.NewTreeMetrics().Functions(context.Background(), ac)
	require.NoError(t, err)
	require.Len(t, funcs, 2)

	byName := map[string]quality.FunctionInfo{}
	for _, fn := range funcs {
		byName[fn.Name] = fn
	}
	assert.Equal(t, 2, byName["outer"].Complexity)
	assert.Equal(t, 1, byName["plain"].Complexity)
	assert.Equal(t, 1, byName["outer"].Line)
	assert.Equal(t, 4, byName["outer"].Length)
}

func TestTreeMetricsMaintainabilityBounds(t *testing.T) {
	t.Parallel()
	ac := core.NewAnalysisContext("def f(a, b):\n    return a + b\n", "")

	mi, ok := quality.NewTreeMetrics().MaintainabilityIndex(context.Background(), ac)
	require.True(t, ok)
	assert.GreaterOrEqual(t, mi, 0.0)
	assert.LessOrEqual(t, mi, 100.0)
}

func TestFindingsSortedBySeverity(t *testing.T) {
	t.Parallel()
	stub := stubMetrics{
		funcs: []quality.FunctionInfo{
			{Name: "long", Line: 1, Length: 200, Complexity: 1},
			{Name: "wild", Line: 10, Length: 10, Complexity: 60},
		},
		mi:   30,
		miOK: true,
	}
	agent := newAgent(t, quality.WithMetricsProvider(stub))
	findings := analyze(t, agent, "x = 1\n")

	require.Len(t, findings, 3)
	assert.Equal(t, schemas.SeverityCritical, findings[0].Severity)
	assert.Equal(t, schemas.SeverityHigh, findings[1].Severity)
	assert.Equal(t, schemas.SeverityMedium, findings[2].Severity)
}
