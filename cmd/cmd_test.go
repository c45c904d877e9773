package cmd_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeguard-dev/codeguard/cmd"
)

// runCommand executes a fresh root command with the given arguments. Tests
// chdir into a temp dir first so log files and config lookups stay isolated.
func runCommand(t *testing.T, args ...string) error {
	t.Helper()
	root := cmd.NewRootCommand()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

func writeSource(t *testing.T, dir, name, code string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(code), 0o644))
	return path
}

func TestAnalyzeWritesJSONReport(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	src := writeSource(t, dir, "bad.py", "eval(data)\n")
	out := filepath.Join(dir, "report.json")

	require.NoError(t, runCommand(t, "analyze", src, "--format", "json", "--output", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	report := string(data)
	assert.Contains(t, report, "SEC001_EVAL")
	assert.Contains(t, report, `"score": 90`)
}

func TestAnalyzeCleanSource(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	src := writeSource(t, dir, "clean.py",
		"import sys\n\n\ndef report_args():\n    \"\"\"Print the process arguments.\"\"\"\n    print(sys.argv)\n")
	out := filepath.Join(dir, "report.txt")

	require.NoError(t, runCommand(t, "analyze", src, "--output", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Score: 100.0/100 (A)")
	assert.Contains(t, string(data), "Findings: 0")
}

func TestAnalyzeFailUnderThreshold(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	src := writeSource(t, dir, "bad.py", "eval(data)\n")
	out := filepath.Join(dir, "report.json")

	err := runCommand(t, "analyze", src, "--format", "json", "--output", out, "--fail-under", "95")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below the threshold")
}

func TestAnalyzeAgentSubset(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	src := writeSource(t, dir, "bad.py", "eval(data)\n")
	out := filepath.Join(dir, "report.json")

	require.NoError(t, runCommand(t, "analyze", src, "--format", "json", "--output", out, "--agents", "style"))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "SEC001_EVAL")
}

func TestAnalyzeUnknownAgent(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	src := writeSource(t, dir, "ok.py", "x = 1\n")

	err := runCommand(t, "analyze", src, "--agents", "linting")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown agent")
}

func TestAnalyzeUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	src := writeSource(t, dir, "ok.py", "x = 1\n")

	err := runCommand(t, "analyze", src, "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestAnalyzeMissingFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	err := runCommand(t, "analyze", filepath.Join(dir, "missing.py"))
	assert.Error(t, err)
}
