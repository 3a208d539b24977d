package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	applogger "github.com/luigi-run/luigi/internal/logger"
	"github.com/luigi-run/luigi/internal/orchestrator"
)

var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Start a new run against a repo",
	Long: `run provisions a baseline workspace for the repo named by --repo and
drives it through Luigi's plan -> execute -> test -> review -> decide loop
until a candidate is approved, the iteration cap is reached, or the run is
aborted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(command *cobra.Command, args []string) error {
		return executeRun(args[0], "")
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// executeRun builds the effective configuration, initializes logging, and
// drives an Orchestrator run to completion. task is the natural-language
// task for a new run; resumeRunID, when non-empty, instead resumes an
// existing run's persisted state (spec.md section 4.8).
func executeRun(task, resumeRunID string) error {
	cfg := LoadEffectiveConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("luigi: %w", err)
	}

	if err := applogger.Init(applogger.Config{
		Level:  applogger.LogLevel(cfg.GetEffectiveLogLevel()),
		Format: "console",
		Output: os.Stderr,
	}); err != nil {
		return fmt.Errorf("luigi: initializing logger: %w", err)
	}

	repoPath := GetRepoPath()
	orch, err := orchestrator.New(*cfg, repoPath, RunsDir(cfg, repoPath))
	if err != nil {
		return fmt.Errorf("luigi: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := orch.Run(ctx, task, resumeRunID); err != nil {
		return fmt.Errorf("luigi: %w", err)
	}
	return nil
}
