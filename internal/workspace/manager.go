// Package workspace is Luigi's Workspace Manager: it provisions, snapshots,
// and disposes isolated work directories across in-place, copy, and git
// worktree strategies (spec.md section 4.2). Git plumbing is grounded on
// tim-coutinho-agentops/internal/rpi/worktree.go's idiom of a short-timeout
// exec.CommandContext per git invocation with explicit deadline detection.
package workspace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/luigi-run/luigi/internal/logger"
	"github.com/luigi-run/luigi/internal/types"
)

// DisposePolicy controls when Dispose actually removes a workspace.
type DisposePolicy string

const (
	DisposeAlways    DisposePolicy = "always"
	DisposeOnSuccess DisposePolicy = "on-success"
	DisposeNever     DisposePolicy = "never"
)

// DirtyTargetMode controls ApplyChanges' behavior when a worktree merge
// target has uncommitted changes (spec.md section 4.2).
type DirtyTargetMode string

const (
	DirtyTargetCommit DirtyTargetMode = "commit"
	DirtyTargetAbort  DirtyTargetMode = "abort"
)

// DefaultExcludeDirs is the deterministic set of directories the copy
// strategy skips. Configurable per Manager, but must stay deterministic per
// run so repeated SnapshotChanges calls are stable (spec.md section 4.2).
var DefaultExcludeDirs = []string{"node_modules", "vendor", ".terraform", "dist", "build", "__pycache__"}

// Manager provisions and disposes Workspaces for one Run.
type Manager struct {
	RunID         string
	GitTimeout    time.Duration
	ExcludeDirs   []string
	BranchPrefix  string
	TargetBranch  string
	DirtyTarget   DirtyTargetMode
	WorkDir       string // base directory copy/worktree workspaces are created under
}

// NewManager returns a Manager scoped to one run id.
func NewManager(runID, workDir string) *Manager {
	return &Manager{
		RunID:        runID,
		GitTimeout:   30 * time.Second,
		ExcludeDirs:  DefaultExcludeDirs,
		BranchPrefix: "luigi",
		TargetBranch: "main",
		DirtyTarget:  DirtyTargetCommit,
		WorkDir:      workDir,
	}
}

// Provision materializes a Workspace for source under the given strategy.
// For StrategyAuto, worktree is attempted first and falls back to copy only
// on failure (spec.md section 4.2).
func (m *Manager) Provision(ctx context.Context, strategy types.WorkspaceStrategy, source, purpose string) (*types.Workspace, error) {
	switch strategy {
	case types.StrategyInPlace:
		return &types.Workspace{
			Strategy:   types.StrategyInPlace,
			Path:       source,
			SourceRepo: source,
			CreatedAt:  time.Now().UTC(),
		}, nil

	case types.StrategyCopy:
		return m.provisionCopy(source, purpose)

	case types.StrategyWorktree:
		return m.provisionWorktree(ctx, source, purpose)

	case types.StrategyAuto:
		ws, err := m.provisionWorktree(ctx, source, purpose)
		if err == nil {
			return ws, nil
		}
		logger.Warn().Err(err).Msg("workspace: worktree provisioning failed, falling back to copy")
		return m.provisionCopy(source, purpose)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedStrategy, strategy)
	}
}

func (m *Manager) provisionCopy(source, purpose string) (*types.Workspace, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return nil, err
	}
	dest := filepath.Join(m.baseDir(), fmt.Sprintf("%s-%s-%s", m.RunID, purpose, suffix))

	if err := copyTree(source, dest, m.ExcludeDirs); err != nil {
		return nil, fmt.Errorf("workspace: copying %s to %s: %w", source, dest, err)
	}

	return &types.Workspace{
		Strategy:   types.StrategyCopy,
		Path:       dest,
		SourceRepo: source,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (m *Manager) provisionWorktree(ctx context.Context, source, purpose string) (*types.Workspace, error) {
	repoRoot, err := gitRepoRoot(ctx, source, m.GitTimeout)
	if err != nil {
		return nil, err
	}
	commit, err := gitHeadCommit(ctx, repoRoot, m.GitTimeout)
	if err != nil {
		return nil, err
	}

	suffix, err := randomSuffix()
	if err != nil {
		return nil, err
	}
	branch := m.branchName(purpose, suffix)
	dest := filepath.Join(m.baseDir(), fmt.Sprintf("%s-%s-%s", m.RunID, purpose, suffix))

	if err := gitWorktreeAdd(ctx, repoRoot, dest, branch, commit, m.GitTimeout); err != nil {
		return nil, err
	}

	return &types.Workspace{
		Strategy:   types.StrategyWorktree,
		Path:       dest,
		SourceRepo: repoRoot,
		Branch:     branch,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// AdoptAsBaseline carries a rejected-but-best candidate into the next
// iteration as its baseline. It always uses the copy strategy, regardless of
// the Run's configured strategy, to preserve uncommitted changes safely
// (spec.md section 4.2).
func (m *Manager) AdoptAsBaseline(ws *types.Workspace) (*types.Workspace, error) {
	return m.provisionCopy(ws.Path, "baseline")
}

// Dispose removes a workspace according to policy. Best-effort: errors are
// logged, never returned as fatal, matching spec.md section 4.2 ("never
// fatal").
func (m *Manager) Dispose(ctx context.Context, ws *types.Workspace, policy DisposePolicy, succeeded bool) error {
	if ws == nil || ws.Strategy == types.StrategyInPlace {
		return nil
	}

	switch policy {
	case DisposeNever:
		return nil
	case DisposeOnSuccess:
		if !succeeded {
			return nil
		}
	case DisposeAlways:
		// fall through
	}

	if ws.Strategy == types.StrategyWorktree {
		if err := gitWorktreeRemove(ctx, ws.SourceRepo, ws.Path, m.GitTimeout); err != nil {
			logger.Warn().Err(err).Str("path", ws.Path).Msg("workspace: worktree remove failed")
		}
		if err := gitBranchDelete(ctx, ws.SourceRepo, ws.Branch, m.GitTimeout); err != nil {
			logger.Warn().Err(err).Str("branch", ws.Branch).Msg("workspace: branch delete failed")
		}
		return nil
	}

	if err := os.RemoveAll(ws.Path); err != nil {
		logger.Warn().Err(err).Str("path", ws.Path).Msg("workspace: dispose failed")
	}
	return nil
}

func (m *Manager) baseDir() string {
	if m.WorkDir != "" {
		return m.WorkDir
	}
	return os.TempDir()
}

// branchName builds a branch name from the run id, a purpose suffix, and a
// short random disambiguator, following the teacher's resolveRecoveryBranch
// naming convention. Because of the random part, the name is not
// reproducible from the run id and purpose alone.
func (m *Manager) branchName(purpose, suffix string) string {
	prefix := m.BranchPrefix
	if prefix == "" {
		prefix = "luigi"
	}
	shortRun := m.RunID
	if len(shortRun) > 12 {
		shortRun = shortRun[:12]
	}
	return fmt.Sprintf("%s/%s/%s-%s", prefix, shortRun, purpose, suffix)
}

func randomSuffix() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("workspace: generating suffix: %w", err)
	}
	return hex.EncodeToString(b), nil
}
