// Package resume is Luigi's Resume Logic: a pure classification of a Run
// snapshot into the pipeline stage it should re-enter, plus the workspace
// reattachment step that decides whether a recorded Candidate workspace path
// still exists (spec.md section 4.8).
package resume

import (
	"os"

	"github.com/luigi-run/luigi/internal/types"
)

// Stage is where a resumed Run should re-enter the Scheduler.
type Stage string

const (
	// StagePlanning means the current iteration has no plans yet.
	StagePlanning Stage = "planning"
	// StageExecution means plans exist but not every candidate is done or
	// failed.
	StageExecution Stage = "execution"
	// StageConsensus means reviews are present but no decision was recorded.
	StageConsensus Stage = "consensus"
	// StageDisposition means the iteration was approved but persistence (the
	// Orchestrator's post-approval commit/merge/dispose sequence) did not
	// finish.
	StageDisposition Stage = "disposition"
	// StageDone means the run's current iteration already has a terminal
	// decision the Scheduler need not revisit.
	StageDone Stage = "done"
	// StageNewRun means the Run has no iterations yet.
	StageNewRun Stage = "new-run"
)

// Classify inspects run's current iteration and returns the stage Resume
// Logic says the Scheduler should re-enter at (spec.md section 4.8).
func Classify(run types.Run) Stage {
	it := run.CurrentIteration()
	if it == nil {
		return StageNewRun
	}

	if len(it.Plans) == 0 {
		return StagePlanning
	}

	if !allCandidatesSettled(it.Candidates) {
		return StageExecution
	}

	if it.Decision == types.DecisionNone {
		return StageConsensus
	}

	if it.Decision == types.DecisionApproved && run.Status != types.RunCompleted {
		return StageDisposition
	}

	return StageDone
}

func allCandidatesSettled(candidates []types.Candidate) bool {
	if len(candidates) == 0 {
		return false
	}
	for _, c := range candidates {
		if c.Status != types.CandidateDone && c.Status != types.CandidateFailed {
			return false
		}
	}
	return true
}

// ReattachableCandidates splits it.Candidates into those whose workspace path
// still exists on disk (reattach as-is) and those that must be retried from
// baseline, preserving session ids so resumption can reuse the prior
// executor conversation when available (spec.md section 4.8).
func ReattachableCandidates(it types.Iteration) (reattach, retry []types.Candidate) {
	for _, c := range it.Candidates {
		if c.Workspace != nil && workspacePathExists(c.Workspace.Path) {
			reattach = append(reattach, c)
		} else {
			retry = append(retry, c)
		}
	}
	return reattach, retry
}

func workspacePathExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
