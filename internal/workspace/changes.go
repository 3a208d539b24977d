package workspace

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/luigi-run/luigi/internal/types"
)

// MaxDiffBytes bounds the textual diff SnapshotChanges returns.
const MaxDiffBytes = 64 * 1024

const truncationMarker = "\n... [diff truncated] ...\n"

// ChangeSummary describes what changed in a workspace relative to its
// baseline (spec.md section 4.2).
type ChangeSummary struct {
	ChangedPaths []string
	TotalSize    int64
	Diff         string
}

// SnapshotChanges reports what has changed in ws relative to its baseline.
// It never mutates the workspace (spec.md section 4.2).
func (m *Manager) SnapshotChanges(ctx context.Context, ws *types.Workspace) (ChangeSummary, error) {
	if isGitRepo(ws.Path) {
		return m.snapshotChangesGit(ctx, ws)
	}
	return m.snapshotChangesManual(ws)
}

func (m *Manager) snapshotChangesGit(ctx context.Context, ws *types.Workspace) (ChangeSummary, error) {
	status, err := gitStatusPorcelain(ctx, ws.Path, m.GitTimeout)
	if err != nil {
		return ChangeSummary{}, fmt.Errorf("workspace: git status: %w", err)
	}

	var paths []string
	for _, line := range splitLines(status) {
		if len(line) > 3 {
			paths = append(paths, line[3:])
		}
	}

	diff, err := gitDiff(ctx, ws.Path, m.GitTimeout)
	if err != nil {
		// diff may legitimately fail to run (e.g. shallow clone edge cases);
		// degrade to status-only rather than failing the whole snapshot.
		diff = ""
	}

	var total int64
	for _, p := range paths {
		if fi, err := os.Stat(filepath.Join(ws.Path, p)); err == nil {
			total += fi.Size()
		}
	}

	return ChangeSummary{
		ChangedPaths: paths,
		TotalSize:    total,
		Diff:         truncate(diff, MaxDiffBytes),
	}, nil
}

// snapshotChangesManual compares ws.Path against its SourceRepo file-by-file.
// Used for copy-strategy workspaces whose source was a plain directory (no
// .git), where a unified diff is not available. Per spec.md's Non-goals
// ("diffing algorithms" are out of scope), this produces a changed-path
// listing with a lightweight textual summary rather than a real diff.
func (m *Manager) snapshotChangesManual(ws *types.Workspace) (ChangeSummary, error) {
	var paths []string
	var total int64
	var buf bytes.Buffer

	err := filepath.WalkDir(ws.Path, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(ws.Path, path)
		if relErr != nil {
			return relErr
		}

		srcPath := filepath.Join(ws.SourceRepo, rel)
		changed, size := fileDiffers(path, srcPath)
		if changed {
			paths = append(paths, rel)
			total += size
			fmt.Fprintf(&buf, "changed: %s (%d bytes)\n", rel, size)
		}
		return nil
	})
	if err != nil {
		return ChangeSummary{}, fmt.Errorf("workspace: walking workspace: %w", err)
	}

	return ChangeSummary{
		ChangedPaths: paths,
		TotalSize:    total,
		Diff:         truncate(buf.String(), MaxDiffBytes),
	}, nil
}

func fileDiffers(a, b string) (bool, int64) {
	infoA, errA := os.Stat(a)
	if errA != nil {
		return false, 0
	}
	infoB, errB := os.Stat(b)
	if errB != nil {
		// Present in workspace, absent from source: new file.
		return true, infoA.Size()
	}
	if infoA.Size() != infoB.Size() || infoA.ModTime() != infoB.ModTime() {
		return true, infoA.Size()
	}
	return false, 0
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + truncationMarker
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if line := s[start:i]; line != "" {
				lines = append(lines, line)
			}
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func isGitRepo(path string) bool {
	_, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil
}

// ApplyChanges merges ws's changes back into target, per the strategy's
// policy (spec.md section 4.2). For worktree, pending changes are committed
// then merged into m.TargetBranch using a merge commit; a dirty target is
// either auto-committed (DirtyTargetCommit) or aborts (DirtyTargetAbort).
func (m *Manager) ApplyChanges(ctx context.Context, ws *types.Workspace, target string) error {
	switch ws.Strategy {
	case types.StrategyInPlace:
		return nil

	case types.StrategyCopy:
		return m.applyChangesCopy(ws, target)

	case types.StrategyWorktree:
		return m.applyChangesWorktree(ctx, ws)

	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedStrategy, ws.Strategy)
	}
}

// applyChangesCopy overwrites changed paths in target with the workspace's
// version. No deletions: paths absent from the workspace are left untouched
// in target (the conservative default recorded as an Open Question decision
// in DESIGN.md).
func (m *Manager) applyChangesCopy(ws *types.Workspace, target string) error {
	summary, err := m.snapshotChangesManual(ws)
	if err != nil {
		return err
	}
	for _, rel := range summary.ChangedPaths {
		if err := copyPath(filepath.Join(ws.Path, rel), filepath.Join(target, rel)); err != nil {
			return fmt.Errorf("workspace: applying change to %s: %w", rel, err)
		}
	}
	return nil
}

func copyPath(src, dst string) error {
	d, err := os.Stat(src)
	if err != nil {
		return err
	}
	entry := dirEntryFromStat{d}
	return copyFile(src, dst, entry)
}

// dirEntryFromStat adapts os.FileInfo to the os.DirEntry subset copyFile uses.
type dirEntryFromStat struct{ os.FileInfo }

func (d dirEntryFromStat) Info() (os.FileInfo, error) { return d.FileInfo, nil }

func (m *Manager) applyChangesWorktree(ctx context.Context, ws *types.Workspace) error {
	dirty, err := gitIsDirty(ctx, ws.SourceRepo, m.GitTimeout)
	if err != nil {
		return fmt.Errorf("workspace: checking target dirty state: %w", err)
	}
	if dirty {
		switch m.DirtyTarget {
		case DirtyTargetAbort:
			return ErrDirtyTarget
		case DirtyTargetCommit:
			msg := fmt.Sprintf("luigi: auto-commit dirty target before merging %s", ws.Branch)
			if err := gitCommitAll(ctx, ws.SourceRepo, msg, m.GitTimeout); err != nil {
				return fmt.Errorf("workspace: auto-committing dirty target: %w", err)
			}
		}
	}

	wsDirty, err := gitIsDirty(ctx, ws.Path, m.GitTimeout)
	if err != nil {
		return fmt.Errorf("workspace: checking workspace dirty state: %w", err)
	}
	if wsDirty {
		msg := fmt.Sprintf("luigi: candidate changes on %s", ws.Branch)
		if err := gitCommitAll(ctx, ws.Path, msg, m.GitTimeout); err != nil {
			return fmt.Errorf("workspace: committing candidate changes: %w", err)
		}
	}

	if err := gitCheckout(ctx, ws.SourceRepo, m.TargetBranch, m.GitTimeout); err != nil {
		return fmt.Errorf("workspace: checking out target branch: %w", err)
	}

	msg := fmt.Sprintf("luigi: merge %s into %s", ws.Branch, m.TargetBranch)
	return gitMerge(ctx, ws.SourceRepo, ws.Branch, msg, m.GitTimeout)
}
