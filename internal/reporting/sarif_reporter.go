package reporting

import (
	"fmt"
	"io"
	"sync"

	"github.com/codeguard-dev/codeguard/api/schemas"
	"github.com/codeguard-dev/codeguard/internal/orchestrator"
	"github.com/codeguard-dev/codeguard/internal/reporting/sarif"
)

// Tool identification constants for the SARIF report.
const (
	ToolName     = "codeguard"
	ToolInfoURI  = "https://github.com/codeguard-dev/codeguard"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"

	// defaultArtifactURI stands in when the analyzed source came from stdin.
	defaultArtifactURI = "input.py"
)

// SARIFReporter accumulates findings across Write calls and serializes the
// complete SARIF 2.1.0 log on Close. It is safe for concurrent use.
type SARIFReporter struct {
	writer io.WriteCloser

	mu    sync.Mutex
	log   *sarif.Log
	rules map[string]*sarif.ReportingDescriptor
}

// NewSARIFReporter creates a SARIF reporter. It takes ownership of the
// writer.
func NewSARIFReporter(writer io.WriteCloser, toolVersion string) *SARIFReporter {
	log := &sarif.Log{
		Version: SARIFVersion,
		Schema:  SARIFSchema,
		Runs: []*sarif.Run{
			{
				Tool: &sarif.Tool{
					Driver: &sarif.ToolComponent{
						Name:           ToolName,
						Version:        pString(toolVersion),
						InformationURI: pString(ToolInfoURI),
						Rules:          []*sarif.ReportingDescriptor{},
					},
				},
				Results: []*sarif.Result{},
			},
		},
	}
	return &SARIFReporter{
		writer: writer,
		log:    log,
		rules:  make(map[string]*sarif.ReportingDescriptor),
	}
}

func (r *SARIFReporter) Write(result *orchestrator.Result) error {
	if result == nil {
		return fmt.Errorf("nil result")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	uri := result.Filename
	if uri == "" {
		uri = defaultArtifactURI
	}
	run := r.log.Runs[0]
	for _, f := range result.Findings {
		r.ensureRule(run, f)
		run.Results = append(run.Results, toSARIFResult(f, uri))
	}
	return nil
}

// ensureRule registers the finding's rule descriptor once per rule ID.
func (r *SARIFReporter) ensureRule(run *sarif.Run, f schemas.Finding) {
	if _, exists := r.rules[f.RuleID]; exists {
		return
	}
	rule := &sarif.ReportingDescriptor{
		ID:               f.RuleID,
		Name:             pString(f.IssueType),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString(f.Message)},
		Properties: &sarif.PropertyBag{
			"severity": string(f.Severity),
			"agent":    f.AgentName,
		},
	}
	if f.Suggestion != "" {
		rule.Help = &sarif.MultiformatMessageString{Text: pString(f.Suggestion)}
	}
	r.rules[f.RuleID] = rule
	run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, rule)
}

func toSARIFResult(f schemas.Finding, uri string) *sarif.Result {
	region := &sarif.Region{StartLine: f.LineNumber}
	if f.CodeSnippet != "" {
		region.Snippet = &sarif.ArtifactContent{Text: pString(f.CodeSnippet)}
	}
	return &sarif.Result{
		RuleID:  f.RuleID,
		Level:   severityToLevel(f.Severity),
		Message: &sarif.Message{Text: pString(f.Message)},
		Locations: []*sarif.Location{
			{
				PhysicalLocation: &sarif.PhysicalLocation{
					ArtifactLocation: &sarif.ArtifactLocation{URI: pString(uri)},
					Region:           region,
				},
			},
		},
	}
}

func severityToLevel(s schemas.Severity) sarif.Level {
	switch s {
	case schemas.SeverityCritical, schemas.SeverityHigh:
		return sarif.LevelError
	case schemas.SeverityMedium:
		return sarif.LevelWarning
	default:
		return sarif.LevelNote
	}
}

// Close serializes the accumulated log and closes the writer. The encoding
// error wins over any close error since it means corrupted output.
func (r *SARIFReporter) Close() error {
	r.mu.Lock()
	out, encodeErr := json.MarshalIndent(r.log, "", "  ")
	r.mu.Unlock()

	if encodeErr != nil {
		r.writer.Close()
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}
	out = append(out, '\n')
	if _, err := r.writer.Write(out); err != nil {
		r.writer.Close()
		return fmt.Errorf("failed to write SARIF output: %w", err)
	}
	return r.writer.Close()
}

func pString(s string) *string { return &s }
