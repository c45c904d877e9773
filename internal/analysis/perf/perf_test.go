package perf_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/codeguard-dev/codeguard/api/schemas"
	"github.com/codeguard-dev/codeguard/internal/analysis/core"
	"github.com/codeguard-dev/codeguard/internal/analysis/perf"
)

func newAgent(t *testing.T) core.Agent {
	t.Helper()
	return perf.New(core.Deps{Logger: zaptest.NewLogger(t)})
}

func analyze(t *testing.T, code string) []schemas.Finding {
	t.Helper()
	findings, err := newAgent(t).Analyze(context.Background(), core.NewAnalysisContext(code, ""))
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

func TestNestedLoopsDepthTwo(t *testing.T) {
	t.Parallel()
	code := "for a in rows:\n    for b in cols:\n        use(a, b)\n"
	findings := analyze(t, code)

	nested := findByRule(findings, "PERF001_NESTED_LOOPS")
	require.Len(t, nested, 1)
	f := nested[0]
	assert.Equal(t, schemas.SeverityHigh, f.Severity)
	assert.Equal(t, "nested_loops", f.IssueType)
	assert.Equal(t, 2, f.LineNumber)
	assert.Contains(t, f.Message, "O(n^2)")
}

func TestNestedLoopsDepthThreeIsCritical(t *testing.T) {
	t.Parallel()
	code := "for a in xs:\n    for b in ys:\n        for c in zs:\n            use(a, b, c)\n"
	findings := analyze(t, code)

	nested := findByRule(findings, "PERF001_NESTED_LOOPS")
	require.Len(t, nested, 2)
	// Severity-descending, so the innermost loop comes first.
	assert.Equal(t, schemas.SeverityCritical, nested[0].Severity)
	assert.Equal(t, 3, nested[0].LineNumber)
	assert.Contains(t, nested[0].Message, "O(n^3)")
	assert.Equal(t, schemas.SeverityHigh, nested[1].Severity)
	assert.Equal(t, 2, nested[1].LineNumber)
}

func TestSequentialLoopsAreClean(t *testing.T) {
	t.Parallel()
	code := "for a in xs:\n    use(a)\nfor b in ys:\n    use(b)\n"
	assert.Empty(t, findByRule(analyze(t, code), "PERF001_NESTED_LOOPS"))
}

func TestWhileInsideForIsNested(t *testing.T) {
	t.Parallel()
	code := "for a in xs:\n    while pending():\n        step()\n"
	nested := findByRule(analyze(t, code), "PERF001_NESTED_LOOPS")
	require.Len(t, nested, 1)
	assert.Equal(t, 2, nested[0].LineNumber)
}

func TestListInsertAtFrontInLoop(t *testing.T) {
	t.Parallel()
	code := "for item in items:\n    result.insert(0, item)\n"
	findings := analyze(t, code)

	inserts := findByRule(findings, "PERF002_LIST_INSERT")
	require.Len(t, inserts, 1)
	assert.Equal(t, schemas.SeverityHigh, inserts[0].Severity)
	assert.Equal(t, "inefficient_list_operation", inserts[0].IssueType)
	assert.Equal(t, 2, inserts[0].LineNumber)
}

func TestListInsertOutsideLoopIsClean(t *testing.T) {
	t.Parallel()
	code := "result.insert(0, item)\n"
	assert.Empty(t, findByRule(analyze(t, code), "PERF002_LIST_INSERT"))
}

func TestListAppendInLoopIsClean(t *testing.T) {
	t.Parallel()
	code := "for item in items:\n    result.append(item)\n"
	assert.Empty(t, analyze(t, code))
}

func TestDatabaseCallInLoop(t *testing.T) {
	t.Parallel()
	code := "for user_id in ids:\n    cursor.execute(q, (user_id,))\n"
	findings := analyze(t, code)

	queries := findByRule(findings, "PERF004_N_PLUS_ONE")
	require.Len(t, queries, 1)
	f := queries[0]
	assert.Equal(t, schemas.SeverityCritical, f.Severity)
	assert.Equal(t, "n_plus_one_query", f.IssueType)
	assert.Equal(t, 2, f.LineNumber)
	assert.Contains(t, f.Message, ".execute()")
}

func TestDatabaseCallOutsideLoopIsClean(t *testing.T) {
	t.Parallel()
	code := "cursor.execute(q, ids)\n"
	assert.Empty(t, findByRule(analyze(t, code), "PERF004_N_PLUS_ONE"))
}

func TestUnboundedRead(t *testing.T) {
	t.Parallel()
	code := "data = handle.read()\n"
	findings := analyze(t, code)

	reads := findByRule(findings, "PERF005_UNBOUNDED_MEMORY")
	require.Len(t, reads, 1)
	assert.Equal(t, schemas.SeverityHigh, reads[0].Severity)
	assert.Equal(t, "memory_intensive", reads[0].IssueType)
}

func TestChunkedReadIsClean(t *testing.T) {
	t.Parallel()
	code := "data = handle.read(4096)\n"
	assert.Empty(t, findByRule(analyze(t, code), "PERF005_UNBOUNDED_MEMORY"))
}

func TestFetchallWithoutArgs(t *testing.T) {
	t.Parallel()
	code := "rows = cursor.fetchall()\n"
	reads := findByRule(analyze(t, code), "PERF005_UNBOUNDED_MEMORY")
	require.Len(t, reads, 1)
	assert.Contains(t, reads[0].Message, ".fetchall()")
}

func TestOpenWithoutWithBlock(t *testing.T) {
	t.Parallel()
	code := "handle = open(path)\nbody = handle.read(1024)\n"
	findings := analyze(t, code)

	leaks := findByRule(findings, "PERF003_RESOURCE_LEAK")
	require.Len(t, leaks, 1)
	assert.Equal(t, schemas.SeverityHigh, leaks[0].Severity)
	assert.Equal(t, "resource_leak", leaks[0].IssueType)
	assert.Equal(t, 1, leaks[0].LineNumber)
}

func TestOpenInsideWithBlockIsClean(t *testing.T) {
	t.Parallel()
	code := "with open(path) as handle:\n    body = handle.read(1024)\n"
	assert.Empty(t, findByRule(analyze(t, code), "PERF003_RESOURCE_LEAK"))
}

func TestSocketOutsideWithBlock(t *testing.T) {
	t.Parallel()
	code := "conn = socket.socket(socket.AF_INET, socket.SOCK_STREAM)\n"
	leaks := findByRule(analyze(t, code), "PERF003_RESOURCE_LEAK")
	require.Len(t, leaks, 1)
	assert.Contains(t, leaks[0].Message, "socket()")
}

func TestMembershipTestOnListInLoop(t *testing.T) {
	t.Parallel()
	code := "for name in names:\n    if name in known_names:\n        use(name)\n"
	findings := analyze(t, code)

	scans := findByRule(findings, "PERF002_LINEAR_SEARCH")
	require.Len(t, scans, 1)
	f := scans[0]
	assert.Equal(t, schemas.SeverityMedium, f.Severity)
	assert.Equal(t, "inefficient_membership_test", f.IssueType)
	assert.Equal(t, 2, f.LineNumber)
}

func TestMembershipTestOnSetIsClean(t *testing.T) {
	t.Parallel()
	code := "for name in names:\n    if name in known_set:\n        use(name)\n"
	assert.Empty(t, findByRule(analyze(t, code), "PERF002_LINEAR_SEARCH"))
}

func TestMembershipTestOutsideLoopIsClean(t *testing.T) {
	t.Parallel()
	code := "if name in known_names:\n    use(name)\n"
	assert.Empty(t, findByRule(analyze(t, code), "PERF002_LINEAR_SEARCH"))
}

func TestFindingsSortedBySeverity(t *testing.T) {
	t.Parallel()
	code := "for user_id in ids:\n    cursor.execute(q, (user_id,))\n    if user_id in seen_ids:\n        skip(user_id)\n"
	findings := analyze(t, code)
	require.GreaterOrEqual(t, len(findings), 2)
	for i := 1; i < len(findings); i++ {
		assert.GreaterOrEqual(t, findings[i-1].Severity.Rank(), findings[i].Severity.Rank())
	}
	assert.Equal(t, schemas.SeverityCritical, findings[0].Severity)
}

func TestSyntaxErrorYieldsNoFindings(t *testing.T) {
	t.Parallel()
	findings, err := newAgent(t).Analyze(context.Background(), core.NewAnalysisContext("def broken(:\n    pass\n", ""))
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestCleanCode(t *testing.T) {
	t.Parallel()
	code := "def total(values):\n    acc = 0\n    for v in values:\n        acc += v\n    return acc\n"
	assert.Empty(t, analyze(t, code))
}
