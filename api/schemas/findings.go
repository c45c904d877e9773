package schemas

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// -- Finding Schemas --

// Severity represents the severity level of a finding, ranging from critical
// to informational. The values are lowercase to align with report formats and
// database ENUMs.
type Severity string

// Constants defining the standard severity levels for findings.
const (
	SeverityCritical Severity = "critical" // Represents a critical issue.
	SeverityHigh     Severity = "high"     // Represents a high-severity issue.
	SeverityMedium   Severity = "medium"   // Represents a medium-severity issue.
	SeverityLow      Severity = "low"      // Represents a low-severity issue.
	SeverityInfo     Severity = "info"     // Represents an informational finding.
)

// severityRank orders severities from least to most severe. Unknown values
// rank below info.
var severityRank = map[Severity]int{
	SeverityInfo:     1,
	SeverityLow:      2,
	SeverityMedium:   3,
	SeverityHigh:     4,
	SeverityCritical: 5,
}

// severityPenalty maps each severity to the number of points it deducts from
// the aggregate quality score.
var severityPenalty = map[Severity]int{
	SeverityCritical: 10,
	SeverityHigh:     5,
	SeverityMedium:   2,
	SeverityLow:      1,
	SeverityInfo:     0,
}

// ParseSeverity normalizes a severity string (case-insensitive) into a
// Severity value. Unrecognized inputs return an error.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := severityRank[sev]; !ok {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// Rank returns the ordinal position of the severity, higher meaning more
// severe. Unknown severities rank at zero.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Penalty returns the score deduction associated with the severity. Unknown
// severities deduct nothing.
func (s Severity) Penalty() int {
	return severityPenalty[s]
}

// Finding encapsulates a single issue identified in analyzed source code. It
// records what was found, where, how severe it is, and which agent reported
// it.
type Finding struct {
	Severity  Severity `json:"severity"`   // The severity level of the finding.
	IssueType string   `json:"issue_type"` // Machine-readable category (e.g. "dangerous_function").
	Message   string   `json:"message"`    // Human-readable description of the issue.

	// LineNumber is the 1-based line in the analyzed source where the issue
	// was detected.
	LineNumber int `json:"line_number"`

	AgentName   string `json:"agent_name"`             // The agent that produced this finding.
	AgentType   string `json:"agent_type,omitempty"`   // The agent's category; backfilled when unset.
	CodeSnippet string `json:"code_snippet,omitempty"` // The offending source line, when available.
	Suggestion  string `json:"suggestion,omitempty"`   // Suggested remediation.
	RuleID      string `json:"rule_id,omitempty"`      // Stable rule identifier (e.g. "SEC001_EVAL").

	// DetectedAt is the timestamp when the finding was produced.
	DetectedAt time.Time `json:"detected_at"`
}

// Validate reports whether the finding carries the minimum fields a report
// consumer relies on.
func (f *Finding) Validate() error {
	if _, ok := severityRank[f.Severity]; !ok {
		return fmt.Errorf("finding has invalid severity %q", f.Severity)
	}
	if f.IssueType == "" {
		return fmt.Errorf("finding is missing an issue type")
	}
	if f.Message == "" {
		return fmt.Errorf("finding is missing a message")
	}
	if f.LineNumber < 1 {
		return fmt.Errorf("finding has invalid line number %d", f.LineNumber)
	}
	return nil
}

// SortBySeverity orders findings most severe first. The sort is stable, so
// findings of equal severity keep their original relative order.
func SortBySeverity(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Severity.Rank() > findings[j].Severity.Rank()
	})
}

// SortByLine orders findings by ascending line number. The sort is stable.
func SortByLine(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].LineNumber < findings[j].LineNumber
	})
}

// Score computes the 0-100 aggregate quality score for a set of findings: a
// perfect 100 minus the per-severity penalties, clamped at zero.
func Score(findings []Finding) int {
	score := 100
	for i := range findings {
		score -= findings[i].Severity.Penalty()
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
