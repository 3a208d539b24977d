// Package config provides configuration management for Luigi.
// It supports loading from JSON files and embedded defaults, following the
// teacher's layering: defaults, then a config file, then CLI flags applied
// by the caller.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	koanfjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConfigNotFound is returned when no configuration file is found at
	// the requested path.
	ErrConfigNotFound = errors.New("configuration file not found")
)

// Config holds Luigi's full application configuration.
type Config struct {
	// LogLevel specifies the logging verbosity level.
	// Valid values: trace, debug, info, warn, error, fatal.
	LogLevel string `json:"logLevel" koanf:"logLevel"`

	// Debug enables debug mode, which forces the effective log level to
	// trace regardless of LogLevel.
	Debug bool `json:"debug" koanf:"debug"`

	// App contains general application metadata.
	App AppConfig `json:"app" koanf:"app"`

	// Store configures the State Store's on-disk layout.
	Store StoreConfig `json:"store" koanf:"store"`

	// Workspace configures the Workspace Manager.
	Workspace WorkspaceConfig `json:"workspace" koanf:"workspace"`

	// Scheduler configures the plan/execute/review/consensus loop.
	Scheduler SchedulerConfig `json:"scheduler" koanf:"scheduler"`

	// Agents lists the planner-reviewer and executor agent instances the
	// Scheduler drives.
	Agents AgentsConfig `json:"agents" koanf:"agents"`

	// TestRunner configures test-command execution and fallbacks.
	TestRunner TestRunnerConfig `json:"testRunner" koanf:"testRunner"`

	// PromptChannel configures the human-in-the-loop rendezvous.
	PromptChannel PromptChannelConfig `json:"promptChannel" koanf:"promptChannel"`
}

// AppConfig contains general application metadata.
type AppConfig struct {
	Name    string `json:"name" koanf:"name"`
	Version string `json:"version" koanf:"version"`
}

// StoreConfig configures where the State Store keeps state.json,
// history.log, and the prompts directory.
type StoreConfig struct {
	// Dir is the base directory for a Run's persisted state. Empty means
	// the CLI derives one under the repo (.luigi/runs; spec.md section 4.1).
	Dir string `json:"dir" koanf:"dir"`
}

// WorkspaceConfig configures the Workspace Manager (spec.md section 4.2).
type WorkspaceConfig struct {
	// Strategy is one of "in-place", "copy", "worktree", "auto".
	Strategy     string   `json:"strategy" koanf:"strategy"`
	BranchPrefix string   `json:"branchPrefix" koanf:"branchPrefix"`
	TargetBranch string   `json:"targetBranch" koanf:"targetBranch"`
	// DirtyTarget is one of "commit", "abort".
	DirtyTarget  string   `json:"dirtyTarget" koanf:"dirtyTarget"`
	GitTimeoutMs int      `json:"gitTimeoutMs" koanf:"gitTimeoutMs"`
	ExcludeDirs  []string `json:"excludeDirs" koanf:"excludeDirs"`
	// DisposePolicy is one of "always", "on-success", "never".
	DisposePolicy string `json:"disposePolicy" koanf:"disposePolicy"`
	// WorkDir is the base directory copy/worktree workspaces are created
	// under. Empty means a "workspaces" directory inside the Run's state
	// directory.
	WorkDir string `json:"workDir" koanf:"workDir"`
}

// SchedulerConfig configures the plan/execute/review/consensus loop
// (spec.md section 4.6).
type SchedulerConfig struct {
	ExecutorsPerPlan       int  `json:"executorsPerPlan" koanf:"executorsPerPlan"`
	MaxQuestionRounds      int  `json:"maxQuestionRounds" koanf:"maxQuestionRounds"`
	MaxClarificationRounds int  `json:"maxClarificationRounds" koanf:"maxClarificationRounds"`
	AdoptBaselineOnReject  bool `json:"adoptBaselineOnReject" koanf:"adoptBaselineOnReject"`
	// MaxIterations caps how many reject-and-retry iterations a Run takes.
	// Zero means unlimited (spec.md section 4.7).
	MaxIterations int `json:"maxIterations" koanf:"maxIterations"`

	// SessionMode keeps the process idle after a Run terminates, awaiting a
	// subsequent task instead of exiting (spec.md section 4.7).
	SessionMode bool `json:"sessionMode" koanf:"sessionMode"`
}

// AgentsConfig lists the agent instances driving Planning/Review and
// Execution (spec.md section 4.3).
type AgentsConfig struct {
	Reviewers []AgentInstanceConfig `json:"reviewers" koanf:"reviewers"`
	Executors []AgentInstanceConfig `json:"executors" koanf:"executors"`
}

// AgentInstanceConfig names one agent instance and the command template it
// is invoked with. Preset names one of agent.Presets ("claude", "cursor",
// "codex", "opencode"); Binary/BaseArgs/Env/ResumeFlag override or replace
// the preset's fields when set.
type AgentInstanceConfig struct {
	ID         string            `json:"id" koanf:"id"`
	Preset     string            `json:"preset,omitempty" koanf:"preset"`
	Binary     string            `json:"binary,omitempty" koanf:"binary"`
	BaseArgs   []string          `json:"baseArgs,omitempty" koanf:"baseArgs"`
	Env        map[string]string `json:"env,omitempty" koanf:"env"`
	ResumeFlag string            `json:"resumeFlag,omitempty" koanf:"resumeFlag"`
	TimeoutMs  int               `json:"timeoutMs,omitempty" koanf:"timeoutMs"`
}

// TestRunnerConfig configures test-command execution (spec.md section 4.4).
type TestRunnerConfig struct {
	InstallIfMissing bool     `json:"installIfMissing" koanf:"installIfMissing"`
	DefaultTimeoutMs int      `json:"defaultTimeoutMs" koanf:"defaultTimeoutMs"`
	UnitTestCommand  []string `json:"unitTestCommand" koanf:"unitTestCommand"`
	E2ETestCommand   []string `json:"e2eTestCommand" koanf:"e2eTestCommand"`
}

// PromptChannelConfig configures the human-in-the-loop rendezvous
// (spec.md section 4.5).
type PromptChannelConfig struct {
	PollIntervalMs int `json:"pollIntervalMs" koanf:"pollIntervalMs"`
}

// Load reads configuration from the file at path.
// If the file does not exist, it returns ErrConfigNotFound.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, ErrConfigNotFound
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), koanfjson.Parser()); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromBytes loads configuration from a byte slice, e.g. an embedded
// default configuration.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := &Config{}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), koanfjson.Parser()); err != nil {
		return nil, fmt.Errorf("loading config from bytes: %w", err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is structurally sound.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("%w: invalid log level %q", ErrInvalidConfig, c.LogLevel)
	}

	validStrategies := map[string]bool{"in-place": true, "copy": true, "worktree": true, "auto": true}
	if !validStrategies[c.Workspace.Strategy] {
		return fmt.Errorf("%w: invalid workspace strategy %q", ErrInvalidConfig, c.Workspace.Strategy)
	}

	validDirtyModes := map[string]bool{"commit": true, "abort": true}
	if !validDirtyModes[c.Workspace.DirtyTarget] {
		return fmt.Errorf("%w: invalid dirty-target mode %q", ErrInvalidConfig, c.Workspace.DirtyTarget)
	}

	validDisposePolicies := map[string]bool{"always": true, "on-success": true, "never": true}
	if !validDisposePolicies[c.Workspace.DisposePolicy] {
		return fmt.Errorf("%w: invalid dispose policy %q", ErrInvalidConfig, c.Workspace.DisposePolicy)
	}

	if len(c.Agents.Reviewers) == 0 {
		return fmt.Errorf("%w: at least one reviewer is required", ErrInvalidConfig)
	}
	if len(c.Agents.Executors) == 0 {
		return fmt.Errorf("%w: at least one executor is required", ErrInvalidConfig)
	}
	if c.Scheduler.ExecutorsPerPlan < 1 {
		return fmt.Errorf("%w: executorsPerPlan must be at least 1", ErrInvalidConfig)
	}
	if c.Scheduler.ExecutorsPerPlan > len(c.Agents.Executors) {
		return fmt.Errorf("%w: executorsPerPlan (%d) exceeds configured executors (%d)",
			ErrInvalidConfig, c.Scheduler.ExecutorsPerPlan, len(c.Agents.Executors))
	}

	seen := map[string]bool{}
	for _, a := range append(append([]AgentInstanceConfig{}, c.Agents.Reviewers...), c.Agents.Executors...) {
		if a.ID == "" {
			return fmt.Errorf("%w: agent instance missing id", ErrInvalidConfig)
		}
		if seen[a.ID] {
			return fmt.Errorf("%w: duplicate agent id %q", ErrInvalidConfig, a.ID)
		}
		seen[a.ID] = true
		if a.Preset == "" && a.Binary == "" {
			return fmt.Errorf("%w: agent %q needs a preset or a binary", ErrInvalidConfig, a.ID)
		}
	}

	return nil
}

// ToJSON renders the configuration as indented JSON, e.g. to seed a new
// config file.
func (c *Config) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding configuration to JSON: %w", err)
	}
	return data, nil
}

// GetEffectiveLogLevel returns the log level actually applied: "trace" when
// Debug is set, LogLevel otherwise.
func (c *Config) GetEffectiveLogLevel() string {
	if c.Debug {
		return "trace"
	}
	return c.LogLevel
}
