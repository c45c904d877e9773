package reporting

import (
	"fmt"
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/codeguard-dev/codeguard/api/schemas"
	"github.com/codeguard-dev/codeguard/internal/orchestrator"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonEnvelope is the wire shape of one analysis result.
type jsonEnvelope struct {
	AnalysisID  string            `json:"analysis_id"`
	ToolVersion string            `json:"tool_version,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
	Score       float64           `json:"score"`
	Grade       string            `json:"grade"`
	Findings    []schemas.Finding `json:"findings"`
	Agents      []jsonAgentStats  `json:"agents"`
}

type jsonAgentStats struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Findings   int    `json:"findings"`
	DurationMS int64  `json:"duration_ms"`
	TimedOut   bool   `json:"timed_out,omitempty"`
	Error      string `json:"error,omitempty"`
}

// JSONReporter renders results as a JSON document per Write call.
type JSONReporter struct {
	writer      io.WriteCloser
	toolVersion string
}

// NewJSONReporter creates a JSON reporter. It takes ownership of the writer.
func NewJSONReporter(writer io.WriteCloser, toolVersion string) *JSONReporter {
	return &JSONReporter{writer: writer, toolVersion: toolVersion}
}

func (r *JSONReporter) Write(result *orchestrator.Result) error {
	findings := result.Findings
	if findings == nil {
		findings = []schemas.Finding{}
	}
	env := jsonEnvelope{
		AnalysisID:  result.AnalysisID,
		ToolVersion: r.toolVersion,
		GeneratedAt: time.Now().UTC(),
		Score:       result.Score,
		Grade:       Grade(result.Score),
		Findings:    findings,
		Agents:      make([]jsonAgentStats, 0, len(result.AgentResults)),
	}
	for _, ar := range result.AgentResults {
		stats := jsonAgentStats{
			Name:       ar.AgentName,
			Type:       ar.AgentType,
			Findings:   len(ar.Findings),
			DurationMS: ar.Duration.Milliseconds(),
			TimedOut:   ar.TimedOut,
		}
		if ar.Err != nil {
			stats.Error = ar.Err.Error()
		}
		env.Agents = append(env.Agents, stats)
	}

	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	out = append(out, '\n')
	if _, err := r.writer.Write(out); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

func (r *JSONReporter) Close() error {
	return r.writer.Close()
}
