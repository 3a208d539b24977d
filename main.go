// Command luigi is the entry point for the Luigi multi-agent coding
// orchestrator. It wires the CLI, configuration, logging, and the
// Orchestrator Loop; there is no TUI to hand off to, so a command's RunE
// drives a run to completion directly (spec.md section 6).
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/luigi-run/luigi/cmd"
	"github.com/luigi-run/luigi/config"
	"github.com/luigi-run/luigi/internal/agent"
	"github.com/luigi-run/luigi/internal/workspace"
)

// Exit codes distinguish the failure classes spec.md section 6 calls out so
// callers scripting Luigi can branch without parsing stderr.
const (
	exitOK                = 0
	exitConfigError       = 2
	exitAgentInvocation   = 3
	exitTestRunnerFatal   = 4
	exitWorkspaceError    = 5
	exitAborted           = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	err := cmd.Execute()
	if err == nil {
		return exitOK
	}

	fmt.Fprintf(os.Stderr, "luigi: %v\n", err)
	return exitCodeFor(err)
}

// exitCodeFor maps an error returned from a cobra RunE to one of the
// distinct exit codes spec.md section 6 requires, falling back to a generic
// aborted code for anything that doesn't match a known class.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, config.ErrInvalidConfig), errors.Is(err, config.ErrConfigNotFound):
		return exitConfigError
	case errors.Is(err, agent.ErrInvocation), errors.Is(err, agent.ErrProtocol), errors.Is(err, agent.ErrUnknownRole):
		return exitAgentInvocation
	case errors.Is(err, workspace.ErrNotGitRepo), errors.Is(err, workspace.ErrNoCommits),
		errors.Is(err, workspace.ErrUnsupportedStrategy), errors.Is(err, workspace.ErrMergeConflict),
		errors.Is(err, workspace.ErrDirtyTarget):
		return exitWorkspaceError
	default:
		return exitAborted
	}
}
