package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/codeguard-dev/codeguard/internal/analysis/core"
	"github.com/codeguard-dev/codeguard/internal/config"
	"github.com/codeguard-dev/codeguard/internal/events"
	"github.com/codeguard-dev/codeguard/internal/observability"
	"github.com/codeguard-dev/codeguard/internal/orchestrator"
	"github.com/codeguard-dev/codeguard/internal/registry"
	"github.com/codeguard-dev/codeguard/internal/reporting"
)

var knownAgents = map[string]struct{}{
	"security":    {},
	"quality":     {},
	"style":       {},
	"performance": {},
}

// newAnalyzeCmd creates and configures the `analyze` command.
func newAnalyzeCmd() *cobra.Command {
	analyzeCmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Analyze a Python source file and report the findings",
		Long: `Analyze runs the enabled agents over one Python source file and renders
their findings. Reads from stdin when no file is given or the file is "-".`,
		Args: cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so they override config-file and env values.
			if err := viper.BindPFlag("engine.worker_concurrency", cmd.Flags().Lookup("concurrency")); err != nil {
				return err
			}
			return viper.BindPFlag("engine.agent_timeout", cmd.Flags().Lookup("timeout"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to finalize config: %w", err)
			}

			agentNames, err := cmd.Flags().GetStringSlice("agents")
			if err != nil {
				return err
			}
			if err := applyAgentSelection(cfg, agentNames); err != nil {
				return err
			}

			code, filename, err := readSource(args)
			if err != nil {
				return err
			}

			bus := events.NewBus(logger)
			bus.Subscribe(events.NewLoggingObserver(logger))

			deps := core.Deps{Config: cfg, Bus: bus, Logger: logger}
			orch, err := orchestrator.New(cfg, logger, bus, registry.Default(deps))
			if err != nil {
				return err
			}

			analysisCtx := core.NewAnalysisContext(code, filename)
			logger.Info("Analyzing source",
				zap.String("analysis_id", analysisCtx.AnalysisID),
				zap.String("file", analysisCtx.Filename),
				zap.Int("bytes", len(code)),
			)

			result, err := orch.Run(ctx, analysisCtx)
			if err != nil {
				return fmt.Errorf("analysis failed: %w", err)
			}

			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			reporter, err := reporting.New(format, output, Version)
			if err != nil {
				return err
			}
			if err := reporter.Write(result); err != nil {
				reporter.Close()
				return fmt.Errorf("failed to write report: %w", err)
			}
			if err := reporter.Close(); err != nil {
				return fmt.Errorf("failed to finalize report: %w", err)
			}

			failUnder, _ := cmd.Flags().GetFloat64("fail-under")
			if failUnder > 0 && result.Score < failUnder {
				return fmt.Errorf("score %.1f is below the threshold %.1f", result.Score, failUnder)
			}
			return nil
		},
	}

	analyzeCmd.Flags().StringP("format", "f", "text", "output format: text, json, or sarif")
	analyzeCmd.Flags().StringP("output", "o", "", "output path (default stdout)")
	analyzeCmd.Flags().StringSliceP("agents", "a", nil, "run only these agents (security, quality, style, performance)")
	analyzeCmd.Flags().Duration("timeout", 30*time.Second, "per-agent timeout")
	analyzeCmd.Flags().Int("concurrency", 4, "maximum agents running in parallel")
	analyzeCmd.Flags().Float64("fail-under", 0, "exit non-zero when the score falls below this value")
	return analyzeCmd
}

// applyAgentSelection narrows the enabled agents to the requested set. An
// empty selection keeps the config as-is.
func applyAgentSelection(cfg *config.Config, names []string) error {
	if len(names) == 0 {
		return nil
	}
	for _, name := range names {
		if _, ok := knownAgents[strings.ToLower(strings.TrimSpace(name))]; !ok {
			return fmt.Errorf("unknown agent %q (valid: security, quality, style, performance)", name)
		}
	}
	for name := range knownAgents {
		cfg.SetAgentEnabled(name, false)
	}
	for _, name := range names {
		cfg.SetAgentEnabled(strings.ToLower(strings.TrimSpace(name)), true)
	}
	return nil
}

// readSource loads the Python source from the file argument, or stdin when
// no argument (or "-") is given.
func readSource(args []string) (code, filename string, err error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(data), "", nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", "", fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return string(data), args[0], nil
}
