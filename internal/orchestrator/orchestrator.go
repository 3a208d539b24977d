// Package orchestrator is Luigi's Orchestrator Loop: the top-level per-task
// state machine that owns iteration capping, carry-forward between
// iterations, approval persistence, and session-mode idle/wake (spec.md
// section 4.7). Adapted from the teacher's internal/orchestrator.Run loop
// shape — a phased step sequence, a snapshot written after every step,
// context-cancellation checked between iterations, a best-effort shutdown
// path — onto Luigi's Scheduler-driven iteration model in place of the
// teacher's single per-iteration agent invocation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/luigi-run/luigi/config"
	"github.com/luigi-run/luigi/internal/agent"
	"github.com/luigi-run/luigi/internal/logger"
	"github.com/luigi-run/luigi/internal/promptchannel"
	"github.com/luigi-run/luigi/internal/resume"
	"github.com/luigi-run/luigi/internal/scheduler"
	"github.com/luigi-run/luigi/internal/store"
	"github.com/luigi-run/luigi/internal/testrunner"
	"github.com/luigi-run/luigi/internal/types"
	"github.com/luigi-run/luigi/internal/workspace"
)

// Orchestrator drives Runs to completion, one at a time, reusing the same
// process across Runs when session mode is enabled (spec.md section 4.7).
type Orchestrator struct {
	cfg      config.Config
	repoPath string
	runsDir  string // base directory each Run's Store directory lives under

	reviewers []scheduler.ReviewerHandle
	executors []scheduler.ExecutorHandle
}

// New builds an Orchestrator from cfg, resolving every configured agent
// instance's preset and overrides into a concrete agent.Adapter.
func New(cfg config.Config, repoPath, runsDir string) (*Orchestrator, error) {
	reviewers := make([]scheduler.ReviewerHandle, 0, len(cfg.Agents.Reviewers))
	for _, a := range cfg.Agents.Reviewers {
		cmd, err := resolveCommand(a)
		if err != nil {
			return nil, err
		}
		reviewers = append(reviewers, scheduler.ReviewerHandle{
			ID:      a.ID,
			Adapter: agent.New(a.ID, agent.Config{agent.RolePlannerReviewer: cmd}),
		})
	}

	executors := make([]scheduler.ExecutorHandle, 0, len(cfg.Agents.Executors))
	for _, a := range cfg.Agents.Executors {
		cmd, err := resolveCommand(a)
		if err != nil {
			return nil, err
		}
		executors = append(executors, scheduler.ExecutorHandle{
			ID:      a.ID,
			Adapter: agent.New(a.ID, agent.Config{agent.RoleExecutor: cmd}),
		})
	}

	return NewWithHandles(cfg, repoPath, runsDir, reviewers, executors), nil
}

// NewWithHandles builds an Orchestrator from already-constructed reviewer and
// executor handles, bypassing preset/command resolution. Exported so tests
// (and callers embedding Luigi as a library) can supply fake or in-process
// Adapters instead of spawning real agent CLIs.
func NewWithHandles(cfg config.Config, repoPath, runsDir string, reviewers []scheduler.ReviewerHandle, executors []scheduler.ExecutorHandle) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		repoPath:  repoPath,
		runsDir:   runsDir,
		reviewers: reviewers,
		executors: executors,
	}
}

// resolveCommand merges an AgentInstanceConfig's preset, if any, with its
// field-level overrides into the CommandConfig agent.New expects.
func resolveCommand(a config.AgentInstanceConfig) (agent.CommandConfig, error) {
	var cmd agent.CommandConfig
	if a.Preset != "" {
		preset, ok := agent.Presets[a.Preset]
		if !ok {
			return cmd, fmt.Errorf("%w: %q (agent %q)", ErrUnknownPreset, a.Preset, a.ID)
		}
		cmd = preset
	}
	if a.Binary != "" {
		cmd.Binary = a.Binary
	}
	if len(a.BaseArgs) > 0 {
		cmd.BaseArgs = a.BaseArgs
	}
	if len(a.Env) > 0 {
		cmd.Env = a.Env
	}
	if a.ResumeFlag != "" {
		cmd.ResumeFlag = a.ResumeFlag
	}
	if a.TimeoutMs > 0 {
		cmd.Timeout = time.Duration(a.TimeoutMs) * time.Millisecond
	}
	return cmd, nil
}

// Run drives a Run to completion. task starts a new Run; resumeRunID reopens
// an existing one from runsDir. When session mode is enabled, once a Run
// terminates the Orchestrator opens a session-next-task PromptRequest and,
// given a non-empty answer, starts a new Run in the same process instead of
// returning.
func (o *Orchestrator) Run(ctx context.Context, task, resumeRunID string) error {
	for {
		st, runDir, err := o.openRun(task, resumeRunID)
		if err != nil {
			return err
		}

		runErr := o.runToCompletion(ctx, st, runDir)
		_ = st.Close()
		if runErr != nil {
			return runErr
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !o.cfg.Scheduler.SessionMode {
			return nil
		}

		nextTask, ok, err := o.awaitNextTask(ctx, runDir)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		task, resumeRunID = nextTask, ""
	}
}

func (o *Orchestrator) openRun(task, resumeRunID string) (*store.Store, string, error) {
	if resumeRunID != "" {
		runDir := filepath.Join(o.runsDir, resumeRunID)
		st, err := store.Load(runDir)
		if err != nil {
			return nil, "", fmt.Errorf("orchestrator: resuming run %s: %w", resumeRunID, err)
		}
		return st, runDir, nil
	}

	runDir := filepath.Join(o.runsDir, uuid.NewString())
	st, err := store.New(runDir, o.repoPath, task)
	if err != nil {
		return nil, "", fmt.Errorf("orchestrator: creating run: %w", err)
	}
	return st, runDir, nil
}

// runToCompletion wires one Run's collaborators and drives its iterations
// until an approval, a rejection past the iteration cap, or an abort.
func (o *Orchestrator) runToCompletion(ctx context.Context, st *store.Store, runDir string) error {
	run := st.Snapshot()

	wm := o.newWorkspaceManager(run.ID, runDir)
	tr := &testrunner.Runner{InstallIfMissing: o.cfg.TestRunner.InstallIfMissing}
	pc := promptchannel.New(st.PromptsDir())
	if o.cfg.PromptChannel.PollIntervalMs > 0 {
		pc.PollInterval = time.Duration(o.cfg.PromptChannel.PollIntervalMs) * time.Millisecond
	}

	sched := scheduler.New(scheduler.Config{
		Reviewers:              o.reviewers,
		Executors:              o.executors,
		ExecutorsPerPlan:       o.cfg.Scheduler.ExecutorsPerPlan,
		MaxQuestionRounds:      o.cfg.Scheduler.MaxQuestionRounds,
		MaxClarificationRounds: o.cfg.Scheduler.MaxClarificationRounds,
		AdoptBaselineOnReject:  o.cfg.Scheduler.AdoptBaselineOnReject,
		FallbackTestCommands:   fallbackTestCommands(o.cfg.TestRunner),
	}, wm, tr, pc, st)

	if err := st.Mutate("run:started", func(r *types.Run) error {
		r.Status = types.RunRunning
		return nil
	}); err != nil {
		return err
	}

	strategy := types.WorkspaceStrategy(o.cfg.Workspace.Strategy)
	baseline, resuming, err := o.resolveEntryPoint(ctx, wm, strategy, run)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		run = st.Snapshot()
		if o.cfg.Scheduler.MaxIterations > 0 && len(run.Iterations) >= o.cfg.Scheduler.MaxIterations && !resuming {
			return st.Mutate("run:max-iterations", func(r *types.Run) error {
				r.Status = types.RunFailed
				r.ErrorKind = "max-iterations-exceeded"
				r.ErrorMessage = "reached the configured maximum iteration count without approval"
				return nil
			})
		}

		var decision types.IterationDecision
		var nextBaseline *types.Workspace
		if resuming {
			it := run.CurrentIteration()
			decision, nextBaseline, err = sched.ResumeIteration(ctx, *it)
			resuming = false
		} else {
			decision, nextBaseline, err = sched.RunIteration(ctx, run.InitialTask, historyFor(run), baseline)
		}
		if err != nil {
			_ = st.Mutate("run:aborted", func(r *types.Run) error {
				r.Status = types.RunAborted
				r.ErrorMessage = err.Error()
				return nil
			})
			return fmt.Errorf("orchestrator: iteration failed: %w", err)
		}

		switch decision {
		case types.DecisionApproved:
			return o.finishApproved(ctx, st, wm, nextBaseline)

		case types.DecisionRejected, types.DecisionAdminEscalated:
			baseline = nextBaseline
			if baseline == nil {
				baseline, err = wm.Provision(ctx, strategy, o.repoPath, "baseline")
				if err != nil {
					return fmt.Errorf("orchestrator: reprovisioning baseline after rejection: %w", err)
				}
			}
			continue

		default: // types.DecisionAborted
			return st.Mutate("run:aborted", func(r *types.Run) error {
				r.Status = types.RunAborted
				return nil
			})
		}
	}
}

// resolveEntryPoint inspects the Run Resume Logic loaded and decides whether
// the loop below should resume the last iteration in place or start a fresh
// one against a freshly-provisioned baseline (spec.md section 4.8).
func (o *Orchestrator) resolveEntryPoint(ctx context.Context, wm *workspace.Manager, strategy types.WorkspaceStrategy, run types.Run) (*types.Workspace, bool, error) {
	it := run.CurrentIteration()
	if it == nil {
		ws, err := wm.Provision(ctx, strategy, o.repoPath, "baseline")
		return ws, false, err
	}

	switch resume.Classify(run) {
	case resume.StageExecution, resume.StageConsensus:
		return it.Baseline, true, nil
	case resume.StageDisposition:
		return nil, true, nil
	default:
		// StagePlanning or StageDone: nothing usable to resume from; the loop
		// starts a fresh iteration. The stale iteration entry, if any, stays
		// in history as an inert record of the interrupted attempt.
		ws, err := wm.Provision(ctx, strategy, o.repoPath, "baseline")
		return ws, false, err
	}
}

// finishApproved persists the winning candidate's changes into the repo,
// disposes its workspace, and marks the Run completed (spec.md section 4.7).
// A MergeConflict is delegated to an executor agent with the conflict
// context once; if the executor reports done and the retried merge
// succeeds the Run continues normally, otherwise it terminates in the
// "approved but not persisted" state spec.md section 7 describes.
func (o *Orchestrator) finishApproved(ctx context.Context, st *store.Store, wm *workspace.Manager, winnerWS *types.Workspace) error {
	if winnerWS != nil {
		if err := wm.ApplyChanges(ctx, winnerWS, o.repoPath); err != nil {
			if errors.Is(err, workspace.ErrMergeConflict) {
				if resolveErr := o.resolveMergeConflict(ctx, wm, winnerWS, err); resolveErr != nil {
					logger.Warn().Err(resolveErr).Msg("orchestrator: merge conflict delegation did not resolve the conflict")
					return st.Mutate("run:merge-conflict", func(r *types.Run) error {
						r.Status = types.RunFailed
						r.ErrorKind = "approved-not-persisted"
						r.ErrorMessage = resolveErr.Error()
						return nil
					})
				}
			} else {
				return fmt.Errorf("orchestrator: applying approved changes: %w", err)
			}
		}
		if err := wm.Dispose(ctx, winnerWS, workspacePolicy(o.cfg.Workspace.DisposePolicy), true); err != nil {
			logger.Warn().Err(err).Msg("orchestrator: disposing winning workspace failed")
		}
	}

	winIdx := 0
	return st.Mutate("run:completed", func(r *types.Run) error {
		if it := r.CurrentIteration(); it != nil {
			winIdx = it.Index
		}
		r.Status = types.RunCompleted
		r.WinningIterIdx = winIdx
		return nil
	})
}

// resolveMergeConflict invokes the first configured executor with the
// conflict context and retries ApplyChanges once if it reports done
// (spec.md section 7, scenario S6).
func (o *Orchestrator) resolveMergeConflict(ctx context.Context, wm *workspace.Manager, winnerWS *types.Workspace, cause error) error {
	if len(o.executors) == 0 {
		return fmt.Errorf("no executor configured to resolve merge conflict: %w", cause)
	}

	prompt := fmt.Sprintf(
		"Merging this workspace's branch into the target branch failed with a conflict:\n\n%s\n\n"+
			"Resolve the conflict in the workspace at %s so it merges cleanly, then report done.",
		cause, winnerWS.Path)

	result, err := o.executors[0].Adapter.Execute(ctx, prompt, winnerWS.Path, "")
	if err != nil {
		return fmt.Errorf("invoking executor to resolve merge conflict: %w", err)
	}
	if result.Status != types.ExecutorDone {
		return fmt.Errorf("executor did not resolve merge conflict: %s", result.Summary)
	}

	if err := wm.ApplyChanges(ctx, winnerWS, o.repoPath); err != nil {
		return fmt.Errorf("retried merge still conflicts: %w", err)
	}
	return nil
}

// awaitNextTask implements session-mode idle/wake: it opens a
// session-next-task PromptRequest and blocks until a human supplies a new
// task or cancels (spec.md section 4.7).
func (o *Orchestrator) awaitNextTask(ctx context.Context, runDir string) (string, bool, error) {
	pc := promptchannel.New(filepath.Join(runDir, "prompts"))
	req := types.PromptRequest{
		ID:        uuid.NewString(),
		Kind:      types.PromptSessionNextTask,
		Questions: []string{"Run finished. What should Luigi work on next? Leave blank to stop."},
		CreatedAt: time.Now().UTC(),
	}
	resp, err := pc.Ask(ctx, req)
	if err != nil {
		if errors.Is(err, promptchannel.ErrCancelled) {
			return "", false, nil
		}
		return "", false, err
	}
	if strings.TrimSpace(resp.NextTask) == "" {
		return "", false, nil
	}
	return resp.NextTask, true, nil
}

func (o *Orchestrator) newWorkspaceManager(runID, runDir string) *workspace.Manager {
	wm := workspace.NewManager(runID, filepath.Join(runDir, "workspaces"))
	if o.cfg.Workspace.WorkDir != "" {
		wm.WorkDir = o.cfg.Workspace.WorkDir
	}
	if o.cfg.Workspace.BranchPrefix != "" {
		wm.BranchPrefix = o.cfg.Workspace.BranchPrefix
	}
	if o.cfg.Workspace.TargetBranch != "" {
		wm.TargetBranch = o.cfg.Workspace.TargetBranch
	}
	if o.cfg.Workspace.DirtyTarget != "" {
		wm.DirtyTarget = workspace.DirtyTargetMode(o.cfg.Workspace.DirtyTarget)
	}
	if o.cfg.Workspace.GitTimeoutMs > 0 {
		wm.GitTimeout = time.Duration(o.cfg.Workspace.GitTimeoutMs) * time.Millisecond
	}
	if len(o.cfg.Workspace.ExcludeDirs) > 0 {
		wm.ExcludeDirs = o.cfg.Workspace.ExcludeDirs
	}
	return wm
}

func workspacePolicy(policy string) workspace.DisposePolicy {
	switch policy {
	case string(workspace.DisposeAlways):
		return workspace.DisposeAlways
	case string(workspace.DisposeNever):
		return workspace.DisposeNever
	default:
		return workspace.DisposeOnSuccess
	}
}

func fallbackTestCommands(cfg config.TestRunnerConfig) []types.TestCommand {
	var cmds []types.TestCommand
	timeout := cfg.DefaultTimeoutMs / 1000
	if len(cfg.UnitTestCommand) > 0 {
		cmds = append(cmds, types.TestCommand{Argv: cfg.UnitTestCommand, TimeoutSec: timeout})
	}
	if len(cfg.E2ETestCommand) > 0 {
		cmds = append(cmds, types.TestCommand{Argv: cfg.E2ETestCommand, TimeoutSec: timeout})
	}
	return cmds
}

// historyFor folds prior rejected iterations' reviewer feedback into a
// context string handed to the next Plan call, so a retried iteration's
// reviewers see why the last attempt was turned down.
func historyFor(run types.Run) string {
	var b strings.Builder
	for _, it := range run.Iterations {
		if it.Decision != types.DecisionRejected {
			continue
		}
		for _, r := range it.Reviews {
			if r.Feedback == "" {
				continue
			}
			fmt.Fprintf(&b, "Iteration %d rejected: %s\n", it.Index, r.Feedback)
		}
	}
	return b.String()
}
