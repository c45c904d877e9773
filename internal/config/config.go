// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Engine() EngineConfig
	Agents() AgentsConfig
	Linters() LintersConfig

	// Engine setters, used by CLI flags.
	SetEngineWorkerConcurrency(int)
	SetEngineAgentTimeout(time.Duration)

	// Agent setters.
	SetAgentEnabled(name string, enabled bool)
}

// Config holds the entire application configuration. Fields are exported so
// viper can unmarshal into them; callers go through the Interface methods.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	EngineCfg  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	AgentsCfg  AgentsConfig  `mapstructure:"agents" yaml:"agents"`
	LintersCfg LintersConfig `mapstructure:"linters" yaml:"linters"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Engine() EngineConfig   { return c.EngineCfg }
func (c *Config) Agents() AgentsConfig   { return c.AgentsCfg }
func (c *Config) Linters() LintersConfig { return c.LintersCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetEngineWorkerConcurrency(w int)      { c.EngineCfg.WorkerConcurrency = w }
func (c *Config) SetEngineAgentTimeout(d time.Duration) { c.EngineCfg.AgentTimeout = d }

// SetAgentEnabled toggles a single built-in agent. Unknown names are ignored.
func (c *Config) SetAgentEnabled(name string, enabled bool) {
	switch name {
	case "security":
		c.AgentsCfg.Security.Enabled = enabled
	case "quality":
		c.AgentsCfg.Quality.Enabled = enabled
	case "style":
		c.AgentsCfg.Style.Enabled = enabled
	case "performance":
		c.AgentsCfg.Performance.Enabled = enabled
	}
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// EngineConfig controls how the orchestrator schedules agents.
type EngineConfig struct {
	// WorkerConcurrency caps how many agents run at once.
	WorkerConcurrency int `mapstructure:"worker_concurrency" yaml:"worker_concurrency"`
	// AgentTimeout bounds a single agent's run; results arriving after the
	// deadline are discarded.
	AgentTimeout time.Duration `mapstructure:"agent_timeout" yaml:"agent_timeout"`
}

// AgentsConfig groups the per-agent settings.
type AgentsConfig struct {
	Security    SecurityAgentConfig    `mapstructure:"security" yaml:"security"`
	Quality     QualityAgentConfig     `mapstructure:"quality" yaml:"quality"`
	Style       StyleAgentConfig       `mapstructure:"style" yaml:"style"`
	Performance PerformanceAgentConfig `mapstructure:"performance" yaml:"performance"`
}

// SecurityAgentConfig holds settings for the security agent.
type SecurityAgentConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// QualityAgentConfig holds the metric thresholds for the quality agent.
type QualityAgentConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// ComplexityThreshold is the cyclomatic complexity above which a
	// function is flagged.
	ComplexityThreshold int `mapstructure:"complexity_threshold" yaml:"complexity_threshold"`
	// DuplicationBlockSize is the sliding-window size, in non-blank lines,
	// used for duplicate block detection.
	DuplicationBlockSize int `mapstructure:"duplication_block_size" yaml:"duplication_block_size"`
	// FunctionLengthThreshold is the line count above which a function is
	// flagged as too long.
	FunctionLengthThreshold int `mapstructure:"function_length_threshold" yaml:"function_length_threshold"`
	// MaintainabilityThreshold is the maintainability index below which the
	// module is flagged.
	MaintainabilityThreshold float64 `mapstructure:"maintainability_threshold" yaml:"maintainability_threshold"`
}

// StyleAgentConfig holds settings for the style agent.
type StyleAgentConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// LineLengthLimit is the maximum allowed characters per line.
	LineLengthLimit int `mapstructure:"line_length_limit" yaml:"line_length_limit"`
}

// PerformanceAgentConfig holds settings for the performance agent.
type PerformanceAgentConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// LintersConfig groups the external linter integrations.
type LintersConfig struct {
	Flake8 Flake8Config `mapstructure:"flake8" yaml:"flake8"`
}

// Flake8Config configures the optional flake8 subprocess used by the style
// agent.
type Flake8Config struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Path    string        `mapstructure:"path" yaml:"path"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "codeguard")
	v.SetDefault("logger.log_file", "codeguard.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Engine --
	v.SetDefault("engine.worker_concurrency", 4)
	v.SetDefault("engine.agent_timeout", "30s")

	// -- Agents --
	v.SetDefault("agents.security.enabled", true)
	v.SetDefault("agents.quality.enabled", true)
	v.SetDefault("agents.quality.complexity_threshold", 10)
	v.SetDefault("agents.quality.duplication_block_size", 4)
	v.SetDefault("agents.quality.function_length_threshold", 100)
	v.SetDefault("agents.quality.maintainability_threshold", 50.0)
	v.SetDefault("agents.style.enabled", true)
	v.SetDefault("agents.style.line_length_limit", 88)
	v.SetDefault("agents.performance.enabled", true)

	// -- Linters --
	v.SetDefault("linters.flake8.enabled", false)
	v.SetDefault("linters.flake8.path", "flake8")
	v.SetDefault("linters.flake8.timeout", "10s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.EngineCfg.WorkerConcurrency <= 0 {
		return fmt.Errorf("engine.worker_concurrency must be a positive integer")
	}
	if c.EngineCfg.AgentTimeout <= 0 {
		return fmt.Errorf("engine.agent_timeout must be a positive duration")
	}
	if c.AgentsCfg.Quality.ComplexityThreshold <= 0 {
		return fmt.Errorf("agents.quality.complexity_threshold must be a positive integer")
	}
	if c.AgentsCfg.Quality.DuplicationBlockSize < 2 {
		return fmt.Errorf("agents.quality.duplication_block_size must be at least 2")
	}
	if c.AgentsCfg.Quality.FunctionLengthThreshold <= 0 {
		return fmt.Errorf("agents.quality.function_length_threshold must be a positive integer")
	}
	if c.AgentsCfg.Style.LineLengthLimit <= 0 {
		return fmt.Errorf("agents.style.line_length_limit must be a positive integer")
	}
	if c.LintersCfg.Flake8.Enabled && c.LintersCfg.Flake8.Path == "" {
		return fmt.Errorf("linters.flake8.path is required when flake8 is enabled")
	}
	return nil
}
