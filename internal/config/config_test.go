// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "codeguard", cfg.Logger().ServiceName)
	assert.Equal(t, 4, cfg.Engine().WorkerConcurrency)
	assert.Equal(t, 30*time.Second, cfg.Engine().AgentTimeout)
	assert.Equal(t, 10, cfg.Agents().Quality.ComplexityThreshold)
	assert.Equal(t, 4, cfg.Agents().Quality.DuplicationBlockSize)
	assert.Equal(t, 100, cfg.Agents().Quality.FunctionLengthThreshold)
	assert.Equal(t, 50.0, cfg.Agents().Quality.MaintainabilityThreshold)
	assert.Equal(t, 88, cfg.Agents().Style.LineLengthLimit)
	assert.True(t, cfg.Agents().Security.Enabled)
	assert.True(t, cfg.Agents().Performance.Enabled)
	assert.False(t, cfg.Linters().Flake8.Enabled)
	assert.Equal(t, "flake8", cfg.Linters().Flake8.Path)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate(), "a default config should validate")

	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			"zero worker concurrency",
			func(c *Config) { c.EngineCfg.WorkerConcurrency = 0 },
			"engine.worker_concurrency must be a positive integer",
		},
		{
			"negative agent timeout",
			func(c *Config) { c.EngineCfg.AgentTimeout = -time.Second },
			"engine.agent_timeout must be a positive duration",
		},
		{
			"zero complexity threshold",
			func(c *Config) { c.AgentsCfg.Quality.ComplexityThreshold = 0 },
			"agents.quality.complexity_threshold must be a positive integer",
		},
		{
			"tiny duplication block",
			func(c *Config) { c.AgentsCfg.Quality.DuplicationBlockSize = 1 },
			"agents.quality.duplication_block_size must be at least 2",
		},
		{
			"zero line length limit",
			func(c *Config) { c.AgentsCfg.Style.LineLengthLimit = 0 },
			"agents.style.line_length_limit must be a positive integer",
		},
		{
			"flake8 enabled without path",
			func(c *Config) {
				c.LintersCfg.Flake8.Enabled = true
				c.LintersCfg.Flake8.Path = ""
			},
			"linters.flake8.path is required when flake8 is enabled",
		},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			mutated := *cfg
			tt.mutate(&mutated)
			err := mutated.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// -- Setter Tests --

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()

	cfg.SetEngineWorkerConcurrency(8)
	cfg.SetEngineAgentTimeout(time.Minute)
	assert.Equal(t, 8, cfg.Engine().WorkerConcurrency)
	assert.Equal(t, time.Minute, cfg.Engine().AgentTimeout)

	cfg.SetAgentEnabled("style", false)
	assert.False(t, cfg.Agents().Style.Enabled)
	cfg.SetAgentEnabled("style", true)
	assert.True(t, cfg.Agents().Style.Enabled)

	// Unknown agent names are ignored rather than panicking.
	cfg.SetAgentEnabled("telemetry", true)
}

// -- Viper Integration Tests --

func TestNewConfigFromViper(t *testing.T) {
	yamlConfig := []byte(`
engine:
  worker_concurrency: 2
  agent_timeout: 45s
agents:
  quality:
    complexity_threshold: 15
  style:
    line_length_limit: 120
linters:
  flake8:
    enabled: true
    path: /usr/local/bin/flake8
`)

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	// Explicit values win.
	assert.Equal(t, 2, cfg.Engine().WorkerConcurrency)
	assert.Equal(t, 45*time.Second, cfg.Engine().AgentTimeout)
	assert.Equal(t, 15, cfg.Agents().Quality.ComplexityThreshold)
	assert.Equal(t, 120, cfg.Agents().Style.LineLengthLimit)
	assert.True(t, cfg.Linters().Flake8.Enabled)
	assert.Equal(t, "/usr/local/bin/flake8", cfg.Linters().Flake8.Path)

	// Unset values fall back to defaults.
	assert.Equal(t, 4, cfg.Agents().Quality.DuplicationBlockSize)
	assert.Equal(t, "info", cfg.Logger().Level)
}

func TestNewConfigFromViperRejectsInvalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("engine.worker_concurrency", -3)

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
