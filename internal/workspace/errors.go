package workspace

import "errors"

// Sentinel errors for the Workspace Manager (spec.md section 4.2/7). All are
// per-candidate fatal: the iteration may still complete with other
// candidates.
var (
	// ErrNotGitRepo is returned when a worktree strategy is requested but
	// source is not inside a git working tree.
	ErrNotGitRepo = errors.New("workspace: source is not a git repository")

	// ErrNoCommits is returned when a worktree strategy is requested but the
	// source repository has no commits yet.
	ErrNoCommits = errors.New("workspace: source repository has no commits")

	// ErrUnsupportedStrategy is returned for an unrecognized strategy value.
	ErrUnsupportedStrategy = errors.New("workspace: unsupported strategy")

	// ErrMergeConflict is returned by ApplyChanges when a worktree merge
	// cannot be completed automatically. The Orchestrator may delegate
	// resolution to an executor agent (spec.md section 4.2/7).
	ErrMergeConflict = errors.New("workspace: merge conflict")

	// ErrDirtyTarget is returned by ApplyChanges in "abort" dirty-target mode
	// when the merge target has uncommitted changes.
	ErrDirtyTarget = errors.New("workspace: target has uncommitted changes")
)
