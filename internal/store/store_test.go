package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luigi-run/luigi/internal/types"
)

func TestNewAndMutateRoundTrips(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir, "/repo", "fix the bug")
	require.NoError(t, err)
	defer s.Close()

	snap := s.Snapshot()
	require.Equal(t, types.RunPending, snap.Status)
	require.Equal(t, -1, snap.WinningIterIdx)

	err = s.Mutate("run-started", func(r *types.Run) error {
		r.Status = types.RunRunning
		r.Iterations = append(r.Iterations, types.Iteration{Index: 0, Stage: types.StagePlanning})
		return nil
	})
	require.NoError(t, err)

	reloaded, err := Load(dir)
	require.NoError(t, err)
	defer reloaded.Close()

	got := reloaded.Snapshot()
	require.Equal(t, types.RunRunning, got.Status)
	require.Len(t, got.Iterations, 1)

	_, err = os.Stat(filepath.Join(dir, historyFile))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, snapshotFile))
	require.NoError(t, err)
}

func TestMutateDoesNotPersistOnError(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "/repo", "task")
	require.NoError(t, err)
	defer s.Close()

	boom := require.Error
	_ = boom

	sentinel := &sentinelErr{}
	err = s.Mutate("noop", func(r *types.Run) error {
		r.Status = types.RunFailed
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	snap := s.Snapshot()
	require.Equal(t, types.RunPending, snap.Status)

	persisted, err := Peek(dir)
	require.NoError(t, err)
	require.Equal(t, types.RunPending, persisted.Status)
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "/repo", "task")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Mutate("add-iter", func(r *types.Run) error {
		r.Iterations = append(r.Iterations, types.Iteration{Index: 0})
		return nil
	}))

	snap := s.Snapshot()
	snap.Iterations[0].Index = 99

	again := s.Snapshot()
	require.Equal(t, 0, again.Iterations[0].Index)
}

type sentinelErr struct{}

func (e *sentinelErr) Error() string { return "sentinel" }
