package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/luigi-run/luigi/config"
	"github.com/luigi-run/luigi/internal/scheduler"
	"github.com/luigi-run/luigi/internal/store"
	"github.com/luigi-run/luigi/internal/types"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	planFn    func(ctx context.Context, task, history string) (types.Plan, error)
	executeFn func(ctx context.Context, prompt, ws, session string) (types.ExecutorResult, error)
	reviewFn  func(ctx context.Context, plan types.Plan, summary string, tests []types.TestCommandResult) (types.Review, error)
}

func (f *fakeAdapter) Plan(ctx context.Context, task, history string) (types.Plan, error) {
	return f.planFn(ctx, task, history)
}

func (f *fakeAdapter) Execute(ctx context.Context, prompt, ws, session string) (types.ExecutorResult, error) {
	return f.executeFn(ctx, prompt, ws, session)
}

func (f *fakeAdapter) Review(ctx context.Context, plan types.Plan, summary string, tests []types.TestCommandResult) (types.Review, error) {
	return f.reviewFn(ctx, plan, summary, tests)
}

func baseTestConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Workspace.Strategy = "in-place"
	cfg.TestRunner.UnitTestCommand = []string{"true"}
	cfg.TestRunner.E2ETestCommand = nil
	return *cfg
}

func approvingHandles() ([]scheduler.ReviewerHandle, []scheduler.ExecutorHandle) {
	reviewer := &fakeAdapter{
		planFn: func(ctx context.Context, task, history string) (types.Plan, error) {
			return types.Plan{ExecutorPrompt: "implement it"}, nil
		},
		reviewFn: func(ctx context.Context, plan types.Plan, summary string, tests []types.TestCommandResult) (types.Review, error) {
			return types.Review{Verdict: types.VerdictApproved, Status: types.ReviewFinal, Ranking: []string{"c0"}, Feedback: "good"}, nil
		},
	}
	executor := &fakeAdapter{
		executeFn: func(ctx context.Context, prompt, ws, session string) (types.ExecutorResult, error) {
			return types.ExecutorResult{Status: types.ExecutorDone, Summary: "done", SessionID: "sess-1"}, nil
		},
	}
	return []scheduler.ReviewerHandle{{ID: "r1", Adapter: reviewer}}, []scheduler.ExecutorHandle{{ID: "e1", Adapter: executor}}
}

func TestRunApprovesAndPersistsAndMarksCompleted(t *testing.T) {
	cfg := baseTestConfig()
	reviewers, executors := approvingHandles()

	runsDir := t.TempDir()
	o := NewWithHandles(cfg, t.TempDir(), runsDir, reviewers, executors)
	err := o.Run(context.Background(), "add a feature", "")
	require.NoError(t, err)

	entries, err := os.ReadDir(runsDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	run, err := store.Peek(filepath.Join(runsDir, entries[0].Name()))
	require.NoError(t, err)
	require.Equal(t, types.RunCompleted, run.Status)
}

func TestRunRejectsUntilMaxIterationsMarksFailed(t *testing.T) {
	cfg := baseTestConfig()
	cfg.Scheduler.MaxIterations = 1
	cfg.Scheduler.AdoptBaselineOnReject = false

	reviewer := &fakeAdapter{
		planFn: func(ctx context.Context, task, history string) (types.Plan, error) {
			return types.Plan{ExecutorPrompt: "implement it"}, nil
		},
		reviewFn: func(ctx context.Context, plan types.Plan, summary string, tests []types.TestCommandResult) (types.Review, error) {
			return types.Review{Verdict: types.VerdictRejected, Status: types.ReviewFinal, Ranking: []string{"c0"}, Feedback: "nope"}, nil
		},
	}
	executor := &fakeAdapter{
		executeFn: func(ctx context.Context, prompt, ws, session string) (types.ExecutorResult, error) {
			return types.ExecutorResult{Status: types.ExecutorDone, Summary: "done"}, nil
		},
	}

	runsDir := t.TempDir()
	o := NewWithHandles(cfg, t.TempDir(), runsDir,
		[]scheduler.ReviewerHandle{{ID: "r1", Adapter: reviewer}},
		[]scheduler.ExecutorHandle{{ID: "e1", Adapter: executor}})

	err := o.Run(context.Background(), "add a feature", "")
	require.NoError(t, err)

	entries, err := os.ReadDir(runsDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	run, err := store.Peek(filepath.Join(runsDir, entries[0].Name()))
	require.NoError(t, err)
	require.Equal(t, types.RunFailed, run.Status)
	require.Equal(t, "max-iterations-exceeded", run.ErrorKind)
}

func TestResolveCommandRejectsUnknownPreset(t *testing.T) {
	_, err := resolveCommand(config.AgentInstanceConfig{ID: "x", Preset: "not-a-real-preset"})
	require.ErrorIs(t, err, ErrUnknownPreset)
}

func TestResumeAfterCrashBetweenExecutionAndReviewSkipsReExecution(t *testing.T) {
	cfg := baseTestConfig()
	runsDir := t.TempDir()
	repo := t.TempDir()

	st, err := store.New(runsDir+"/run1", repo, "add a feature")
	require.NoError(t, err)

	var executedPrompts []string
	reviewer := &fakeAdapter{
		reviewFn: func(ctx context.Context, plan types.Plan, summary string, tests []types.TestCommandResult) (types.Review, error) {
			return types.Review{Verdict: types.VerdictApproved, Status: types.ReviewFinal, Ranking: []string{"c0", "c1"}, Feedback: "good"}, nil
		},
	}
	executor := &fakeAdapter{
		executeFn: func(ctx context.Context, prompt, ws, session string) (types.ExecutorResult, error) {
			executedPrompts = append(executedPrompts, prompt)
			return types.ExecutorResult{Status: types.ExecutorDone, Summary: "done"}, nil
		},
	}

	require.NoError(t, st.Mutate("iteration:start", func(r *types.Run) error {
		r.Iterations = append(r.Iterations, types.Iteration{
			Index: 0,
			Stage: types.StageExecuting,
			Baseline: &types.Workspace{Strategy: types.StrategyInPlace, Path: repo, SourceRepo: repo},
			Plans: []types.Plan{{ID: "plan-r1", ReviewerID: "r1", ExecutorPrompt: "implement it"}},
			Candidates: []types.Candidate{
				{ID: "c0", ExecutorID: "e1", PlanID: "plan-r1", Status: types.CandidateDone,
					Workspace: &types.Workspace{Strategy: types.StrategyInPlace, Path: repo, SourceRepo: repo}},
				{ID: "c1", ExecutorID: "e1", PlanID: "plan-r1", Status: types.CandidatePending},
			},
		})
		return nil
	}))
	require.NoError(t, st.Close())

	o := NewWithHandles(cfg, repo, runsDir,
		[]scheduler.ReviewerHandle{{ID: "r1", Adapter: reviewer}},
		[]scheduler.ExecutorHandle{{ID: "e1", Adapter: executor}})

	err = o.Run(context.Background(), "", "run1")
	require.NoError(t, err)
	require.Len(t, executedPrompts, 1, "only the unsettled candidate should re-invoke its executor")
}
