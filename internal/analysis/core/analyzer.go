package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/codeguard-dev/codeguard/api/schemas"
	"github.com/codeguard-dev/codeguard/internal/config"
	"github.com/codeguard-dev/codeguard/internal/events"
)

// AgentCategory distinguishes the analysis domains the built-in agents cover.
type AgentCategory string

const (
	CategorySecurity    AgentCategory = "security"
	CategoryQuality     AgentCategory = "quality"
	CategoryStyle       AgentCategory = "style"
	CategoryPerformance AgentCategory = "performance"
)

// Agent is the core interface that all analysis agents implement. It defines
// the standard contract for how the orchestrator interacts with a detector,
// regardless of what it looks for.
type Agent interface {
	Name() string
	Version() string
	Category() AgentCategory
	Enabled() bool
	Enable()
	Disable()

	// Analyze inspects the source in the analysis context and returns its
	// findings. Implementations must honor ctx cancellation and must not
	// mutate the context beyond its memoized caches.
	Analyze(ctx context.Context, analysisCtx *AnalysisContext) ([]schemas.Finding, error)
}

// Deps bundles the collaborators an agent constructor needs. Passing them
// explicitly keeps agents mockable and free of package-level state.
type Deps struct {
	Config config.Interface
	Bus    *events.Bus
	Logger *zap.Logger
}

// BaseAgent provides a foundational implementation of the Agent interface,
// handling the name, version, category, and enablement plumbing. It is meant
// to be embedded within specific agent implementations.
type BaseAgent struct {
	name     string
	version  string
	category AgentCategory
	enabled  bool

	Logger *zap.Logger // Exposed for use in specific agent implementations.
	bus    *events.Bus
}

// NewBaseAgent creates a BaseAgent with a named sub-logger. Agents start
// enabled.
func NewBaseAgent(name, version string, category AgentCategory, deps Deps) *BaseAgent {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BaseAgent{
		name:     name,
		version:  version,
		category: category,
		enabled:  true,
		Logger:   logger.Named(name),
		bus:      deps.Bus,
	}
}

// Name returns the agent's name.
func (b *BaseAgent) Name() string { return b.name }

// Version returns the agent's version string.
func (b *BaseAgent) Version() string { return b.version }

// Category returns the analysis domain the agent covers.
func (b *BaseAgent) Category() AgentCategory { return b.category }

// Enabled reports whether the agent should run.
func (b *BaseAgent) Enabled() bool { return b.enabled }

// Enable marks the agent runnable.
func (b *BaseAgent) Enable() { b.enabled = true }

// Disable excludes the agent from runs without unregistering it.
func (b *BaseAgent) Disable() { b.enabled = false }

// eventPayload builds the common fields carried by every agent event.
func (b *BaseAgent) eventPayload(ac *AnalysisContext) map[string]any {
	return map[string]any{
		"agent_name":  b.name,
		"analysis_id": ac.AnalysisID,
		"timestamp":   time.Now().UTC(),
	}
}

// EmitStarted publishes the agent-started event, when a bus is wired.
func (b *BaseAgent) EmitStarted(ac *AnalysisContext) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(events.EventAgentStarted, b.eventPayload(ac))
}

// EmitCompleted publishes the agent-completed event with the finding count.
func (b *BaseAgent) EmitCompleted(ac *AnalysisContext, findingsCount int) {
	if b.bus == nil {
		return
	}
	payload := b.eventPayload(ac)
	payload["findings_count"] = findingsCount
	b.bus.Publish(events.EventAgentCompleted, payload)
}

// EmitFailed publishes the agent-failed event carrying the error text.
func (b *BaseAgent) EmitFailed(ac *AnalysisContext, err error) {
	if b.bus == nil {
		return
	}
	payload := b.eventPayload(ac)
	if err != nil {
		payload["error"] = err.Error()
	}
	b.bus.Publish(events.EventAgentFailed, payload)
}

// NewFinding stamps a finding with the agent's identity and the offending
// source line.
func (b *BaseAgent) NewFinding(ac *AnalysisContext, severity schemas.Severity, issueType, message string, line int, ruleID, suggestion string) schemas.Finding {
	return schemas.Finding{
		Severity:    severity,
		IssueType:   issueType,
		Message:     message,
		LineNumber:  line,
		AgentName:   b.name,
		CodeSnippet: ac.Snippet(line),
		Suggestion:  suggestion,
		RuleID:      ruleID,
		DetectedAt:  time.Now().UTC(),
	}
}
