// Package orchestrator runs the enabled agents over one analysis context in
// parallel, isolates their failures, and folds their findings into a scored
// result.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/codeguard-dev/codeguard/api/schemas"
	"github.com/codeguard-dev/codeguard/internal/analysis/core"
	"github.com/codeguard-dev/codeguard/internal/config"
	"github.com/codeguard-dev/codeguard/internal/events"
	"github.com/codeguard-dev/codeguard/internal/registry"
)

const (
	defaultConcurrency  = 4
	defaultAgentTimeout = 30 * time.Second
)

// AgentResult captures one agent's run, successful or not.
type AgentResult struct {
	AgentName string
	AgentType string
	Findings  []schemas.Finding
	Err       error
	Duration  time.Duration
	TimedOut  bool
}

// Result is the aggregate outcome of an analysis run.
type Result struct {
	AnalysisID   string
	Filename     string
	Findings     []schemas.Finding
	Score        float64
	AgentResults []AgentResult
	Duration     time.Duration
}

// Orchestrator coordinates the agent pool for analysis runs.
type Orchestrator struct {
	cfg      config.Interface
	logger   *zap.Logger
	bus      *events.Bus
	registry *registry.Registry
}

// New creates an Orchestrator. The bus may be nil when no observers are
// wanted; everything else is required.
func New(cfg config.Interface, logger *zap.Logger, bus *events.Bus, reg *registry.Registry) (*Orchestrator, error) {
	if cfg == nil || logger == nil || reg == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger.Named("orchestrator"),
		bus:      bus,
		registry: reg,
	}, nil
}

// Run executes every enabled agent against the analysis context. Agents run
// concurrently up to the configured pool size, each under its own timeout.
// One agent failing, panicking, or timing out never affects the others; its
// result simply records the error. Findings are flattened in registration
// order, sorted most severe first, and scored.
func (o *Orchestrator) Run(ctx context.Context, analysisCtx *core.AnalysisContext) (*Result, error) {
	if analysisCtx == nil {
		return nil, fmt.Errorf("nil analysis context")
	}

	start := time.Now()
	agents := o.registry.All(true)
	o.logger.Info("Starting analysis",
		zap.String("analysis_id", analysisCtx.AnalysisID),
		zap.Int("agents", len(agents)),
	)
	o.publish(events.EventAnalysisStarted, map[string]any{
		"analysis_id": analysisCtx.AnalysisID,
		"agent_count": len(agents),
	})

	concurrency := o.cfg.Engine().WorkerConcurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	timeout := o.cfg.Engine().AgentTimeout
	if timeout <= 0 {
		timeout = defaultAgentTimeout
	}

	agentResults := make([]AgentResult, len(agents))
	var group errgroup.Group
	group.SetLimit(concurrency)
	for i, agent := range agents {
		i, agent := i, agent
		group.Go(func() error {
			agentResults[i] = o.runAgent(ctx, agent, analysisCtx, timeout)
			return nil
		})
	}
	// Agent errors live in their results; Wait only synchronizes the pool.
	_ = group.Wait()

	var findings []schemas.Finding
	for _, ar := range agentResults {
		findings = append(findings, ar.Findings...)
	}
	// Stable sort, so each agent's internal ordering survives within a
	// severity band.
	schemas.SortBySeverity(findings)
	score := float64(schemas.Score(findings))

	result := &Result{
		AnalysisID:   analysisCtx.AnalysisID,
		Filename:     analysisCtx.Filename,
		Findings:     findings,
		Score:        score,
		AgentResults: agentResults,
		Duration:     time.Since(start),
	}

	o.logger.Info("Analysis complete",
		zap.String("analysis_id", analysisCtx.AnalysisID),
		zap.Int("findings", len(findings)),
		zap.Float64("score", score),
		zap.Duration("duration", result.Duration),
	)
	o.publish(events.EventAnalysisCompleted, map[string]any{
		"analysis_id":    analysisCtx.AnalysisID,
		"findings_count": len(findings),
		"score":          score,
	})
	return result, nil
}

// runAgent executes a single agent under its own deadline, recovering panics
// and discarding results that arrive after the deadline.
func (o *Orchestrator) runAgent(ctx context.Context, agent core.Agent, analysisCtx *core.AnalysisContext, timeout time.Duration) AgentResult {
	result := AgentResult{
		AgentName: agent.Name(),
		AgentType: string(agent.Category()),
	}
	start := time.Now()

	agentCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		findings []schemas.Finding
		err      error
		panicked bool
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("agent %s panicked: %v", agent.Name(), r), panicked: true}
				o.logger.Error("Agent panicked",
					zap.String("agent", agent.Name()),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
			}
		}()
		findings, err := agent.Analyze(agentCtx, analysisCtx)
		done <- outcome{findings: findings, err: err}
	}()

	var panicked bool
	select {
	case out := <-done:
		result.Findings = out.findings
		result.Err = out.err
		panicked = out.panicked
	case <-agentCtx.Done():
		result.TimedOut = true
		result.Err = fmt.Errorf("agent %s did not finish within %s: %w",
			agent.Name(), timeout, agentCtx.Err())
	}
	result.Duration = time.Since(start)

	if result.Err != nil {
		o.logger.Warn("Agent run failed",
			zap.String("agent", agent.Name()),
			zap.Bool("timed_out", result.TimedOut),
			zap.Error(result.Err),
		)
		// An agent that fails by returning an error reports through its own
		// EmitFailed; panics and timeouts never reach that path, so the
		// failure event is published here on the agent's behalf.
		if result.TimedOut || panicked {
			o.publish(events.EventAgentFailed, map[string]any{
				"agent_name":  agent.Name(),
				"analysis_id": analysisCtx.AnalysisID,
				"error":       result.Err.Error(),
			})
		}
	}

	// Agents leave AgentType to the caller; fill it in without clobbering
	// anything an agent chose to set.
	for i := range result.Findings {
		if result.Findings[i].AgentType == "" {
			result.Findings[i].AgentType = result.AgentType
		}
	}
	return result
}

func (o *Orchestrator) publish(evtType events.EventType, data map[string]any) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(evtType, data)
}
