// Package testrunner is Luigi's Test Runner: it executes a workspace's list
// of test commands with per-command timeouts, captured and truncated
// output, and an optional install-if-missing pre-step (spec.md section 4.4).
// Directly generalizes the teacher's internal/validator package, which ran
// one fixed shell command via exec.CommandContext + CombinedOutput and
// reported pass/fail by exit code.
package testrunner

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/luigi-run/luigi/internal/types"
)

// MaxOutputBytes bounds how much of a command's stdout/stderr is retained.
const MaxOutputBytes = 32 * 1024

const truncationMarker = "\n... [output truncated] ...\n"

// DefaultTimeout bounds a TestCommand that doesn't set TimeoutSec.
const DefaultTimeout = 5 * time.Minute

// manifestInstaller pairs a dependency manifest with the install command to
// run when the manifest exists but its dependency directory does not.
type manifestInstaller struct {
	manifest  string
	depDir    string
	installer []string
}

// defaultInstallers covers the package ecosystems the examples corpus
// touches (npm/yarn workspaces, Go modules, Python requirements).
var defaultInstallers = []manifestInstaller{
	{manifest: "package.json", depDir: "node_modules", installer: []string{"npm", "install"}},
	{manifest: "go.mod", depDir: "vendor", installer: []string{"go", "mod", "vendor"}},
	{manifest: "requirements.txt", depDir: ".venv", installer: []string{"python3", "-m", "venv", ".venv"}},
}

// Runner executes TestCommands inside one workspace.
type Runner struct {
	// InstallIfMissing enables the manifest/dependency-directory pre-step.
	InstallIfMissing bool
}

// Run executes cmds in order inside workDir, never aborting early: a failed
// or timed-out command is recorded and the next command still runs (spec.md
// section 4.4).
func (r *Runner) Run(ctx context.Context, workDir string, cmds []types.TestCommand) []types.TestCommandResult {
	results := make([]types.TestCommandResult, 0, len(cmds))

	if r.InstallIfMissing && len(cmds) > 0 {
		if install, ok := detectInstaller(workDir); ok {
			results = append(results, runOne(ctx, workDir, types.TestCommand{Argv: install}))
		}
	}

	for _, cmd := range cmds {
		results = append(results, runOne(ctx, workDir, cmd))
	}
	return results
}

func detectInstaller(workDir string) ([]string, bool) {
	for _, m := range defaultInstallers {
		manifestPath := filepath.Join(workDir, m.manifest)
		depPath := filepath.Join(workDir, m.depDir)
		if _, err := os.Stat(manifestPath); err != nil {
			continue
		}
		if _, err := os.Stat(depPath); err == nil {
			continue // dependency directory already present
		}
		return m.installer, true
	}
	return nil, false
}

func runOne(ctx context.Context, workDir string, cmd types.TestCommand) types.TestCommandResult {
	timeout := DefaultTimeout
	if cmd.TimeoutSec > 0 {
		timeout = time.Duration(cmd.TimeoutSec) * time.Second
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dir := workDir
	if cmd.Cwd != "" {
		dir = filepath.Join(workDir, cmd.Cwd)
	}

	result := types.TestCommandResult{Argv: cmd.Argv}
	if len(cmd.Argv) == 0 {
		result.Stderr = "empty command"
		return result
	}

	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(cctx, cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = dir
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	result.ElapsedMs = time.Since(start).Milliseconds()
	result.Stdout = truncate(stdout.String())
	result.Stderr = truncate(stderr.String())

	if cctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		return result
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		return result
	}

	result.ExitCode = 0
	result.Passed = true
	return result
}

func truncate(s string) string {
	if len(s) <= MaxOutputBytes {
		return s
	}
	return s[:MaxOutputBytes] + truncationMarker
}
