package config

// DefaultConfig returns a configuration with sensible default values. These
// defaults can be overridden by loading a configuration file or by CLI
// flags applied by the caller.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Debug:    false,
		App: AppConfig{
			Name:    "luigi",
			Version: "0.1.0",
		},
		Workspace: WorkspaceConfig{
			Strategy:      "auto",
			BranchPrefix:  "luigi",
			TargetBranch:  "main",
			DirtyTarget:   "commit",
			GitTimeoutMs:  30000,
			ExcludeDirs:   []string{"node_modules", "vendor", ".terraform", "dist", "build", "__pycache__"},
			DisposePolicy: "on-success",
		},
		Scheduler: SchedulerConfig{
			ExecutorsPerPlan:       1,
			MaxQuestionRounds:      3,
			MaxClarificationRounds: 3,
			AdoptBaselineOnReject:  true,
			MaxIterations:          10,
		},
		Agents: AgentsConfig{
			Reviewers: []AgentInstanceConfig{{ID: "r1", Preset: "claude"}},
			Executors: []AgentInstanceConfig{{ID: "e1", Preset: "claude"}},
		},
		TestRunner: TestRunnerConfig{
			InstallIfMissing: true,
			DefaultTimeoutMs: 300000,
			UnitTestCommand:  []string{"npm", "test"},
			E2ETestCommand:   []string{"npx", "playwright", "test"},
		},
		PromptChannel: PromptChannelConfig{
			PollIntervalMs: 2000,
		},
	}
}

// DefaultConfigJSON returns the default configuration rendered as indented
// JSON.
func DefaultConfigJSON() ([]byte, error) {
	return DefaultConfig().ToJSON()
}
