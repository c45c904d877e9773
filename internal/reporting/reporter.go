// Package reporting renders analysis results as console text, JSON, or
// SARIF, to stdout or a file.
package reporting

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/codeguard-dev/codeguard/internal/orchestrator"
)

// Reporter writes one or more analysis results to an output.
type Reporter interface {
	// Write renders a single analysis result.
	Write(result *orchestrator.Result) error
	// Close finalizes the report and releases the underlying writer.
	Close() error
}

// nopWriteCloser wraps an io.Writer with a no-op Close, for stdout.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error { return nil }

// New creates a reporter for the given format ("text", "json", or "sarif").
// An empty or "stdout" output path writes to standard output.
func New(format, outputPath, toolVersion string) (Reporter, error) {
	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	switch format {
	case "text", "":
		return NewTextReporter(writer), nil
	case "json":
		return NewJSONReporter(writer, toolVersion), nil
	case "sarif":
		return NewSARIFReporter(writer, toolVersion), nil
	default:
		writer.Close()
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// Grade buckets a score into the familiar letter scale.
func Grade(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

// TextReporter renders a human-readable summary.
type TextReporter struct {
	writer io.WriteCloser
}

// NewTextReporter creates a console reporter. It takes ownership of the
// writer.
func NewTextReporter(writer io.WriteCloser) *TextReporter {
	return &TextReporter{writer: writer}
}

func (r *TextReporter) Write(result *orchestrator.Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Analysis %s\n", result.AnalysisID)
	fmt.Fprintf(&b, "Score: %.1f/100 (%s)\n", result.Score, Grade(result.Score))
	fmt.Fprintf(&b, "Findings: %d\n", len(result.Findings))

	for _, ar := range result.AgentResults {
		status := fmt.Sprintf("%d findings", len(ar.Findings))
		switch {
		case ar.TimedOut:
			status = "timed out"
		case ar.Err != nil:
			status = "failed: " + ar.Err.Error()
		}
		fmt.Fprintf(&b, "  %-12s %s (%.0fms)\n", ar.AgentName, status, float64(ar.Duration.Microseconds())/1000)
	}

	if len(result.Findings) > 0 {
		b.WriteString("\n")
		tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "LINE\tSEVERITY\tAGENT\tRULE\tMESSAGE")
		for _, f := range result.Findings {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
				f.LineNumber, strings.ToUpper(string(f.Severity)), f.AgentName, f.RuleID, f.Message)
		}
		tw.Flush()
	}

	_, err := io.WriteString(r.writer, b.String())
	return err
}

func (r *TextReporter) Close() error {
	return r.writer.Close()
}
