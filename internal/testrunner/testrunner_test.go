package testrunner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/luigi-run/luigi/internal/types"
	"github.com/stretchr/testify/require"
)

func TestRunRecordsPassAndFail(t *testing.T) {
	r := &Runner{}
	cmds := []types.TestCommand{
		{Argv: []string{"true"}},
		{Argv: []string{"false"}},
	}
	results := r.Run(context.Background(), t.TempDir(), cmds)
	require.Len(t, results, 2)
	require.True(t, results[0].Passed)
	require.Equal(t, 0, results[0].ExitCode)
	require.False(t, results[1].Passed)
	require.NotEqual(t, 0, results[1].ExitCode)
}

func TestRunContinuesAfterFailure(t *testing.T) {
	r := &Runner{}
	cmds := []types.TestCommand{
		{Argv: []string{"false"}},
		{Argv: []string{"true"}},
	}
	results := r.Run(context.Background(), t.TempDir(), cmds)
	require.Len(t, results, 2)
	require.False(t, results[0].Passed)
	require.True(t, results[1].Passed)
}

func TestRunTimesOut(t *testing.T) {
	r := &Runner{}
	cmds := []types.TestCommand{
		{Argv: []string{"sleep", "5"}, TimeoutSec: 1},
	}
	results := r.Run(context.Background(), t.TempDir(), cmds)
	require.Len(t, results, 1)
	require.True(t, results[0].TimedOut)
	require.False(t, results[0].Passed)
}

func TestRunTruncatesLargeOutput(t *testing.T) {
	r := &Runner{}
	cmds := []types.TestCommand{
		{Argv: []string{"sh", "-c", "head -c 100000 /dev/zero | tr '\\0' 'a'"}},
	}
	results := r.Run(context.Background(), t.TempDir(), cmds)
	require.Len(t, results, 1)
	require.LessOrEqual(t, len(results[0].Stdout), MaxOutputBytes+len(truncationMarker))
	require.Contains(t, results[0].Stdout, "truncated")
}

func TestRunInstallsWhenManifestPresentAndDepDirMissing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0o644))

	r := &Runner{InstallIfMissing: true}
	cmds := []types.TestCommand{{Argv: []string{"true"}}}
	results := r.Run(context.Background(), dir, cmds)

	require.Len(t, results, 2)
	require.Equal(t, []string{"go", "mod", "vendor"}, results[0].Argv)
}

func TestRunSkipsInstallWhenDepDirAlreadyPresent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "vendor"), 0o755))

	r := &Runner{InstallIfMissing: true}
	cmds := []types.TestCommand{{Argv: []string{"true"}}}
	results := r.Run(context.Background(), dir, cmds)

	require.Len(t, results, 1)
}
