// Package cmd provides Luigi's CLI surface using Cobra.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// debugMode indicates if debug mode is enabled.
	debugMode bool

	// logLevel sets the logging verbosity.
	logLevel string

	// repoPath is the repository Luigi operates on.
	repoPath string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "luigi",
	Short: "A multi-agent coding orchestrator",
	Long: `luigi drives external planner, reviewer, and executor agent CLIs
through a plan -> execute -> test -> review -> decide loop against a repo,
persisting crash-safe state so a run can be resumed after an interruption.`,
	Example: `  # Start a new run against a repo
  luigi run --repo /path/to/repo "add input validation to the signup form"

  # Resume a run that was interrupted
  luigi resume --repo /path/to/repo --resume-run-id 3f9a1c2e

  # Run with a custom config file and debug logging
  luigi run --repo . --config ./luigi.json --debug --log-level trace`,
	Version: "0.1.0",
}

// Execute runs the root command. Called from main.go.
func Execute() error {
	return rootCmd.Execute()
}

// init wires persistent flags shared by every subcommand.
func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Path to configuration file (default: none, built-in defaults are used)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false,
		"Enable debug mode with trace logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Set logging level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().StringVar(&repoPath, "repo", ".",
		"Path to the repository to operate on")
}

// GetConfigFile returns the path to the configuration file.
func GetConfigFile() string { return cfgFile }

// IsDebugMode returns whether debug mode is enabled.
func IsDebugMode() bool { return debugMode }

// GetLogLevel returns the configured log level.
func GetLogLevel() string { return logLevel }

// WasLogLevelSet reports whether --log-level was explicitly passed.
func WasLogLevelSet() bool {
	return rootCmd.PersistentFlags().Changed("log-level")
}

// GetRepoPath returns the --repo flag value.
func GetRepoPath() string { return repoPath }

// WasRepoPathSet reports whether --repo was explicitly passed.
func WasRepoPathSet() bool {
	return rootCmd.PersistentFlags().Changed("repo")
}
