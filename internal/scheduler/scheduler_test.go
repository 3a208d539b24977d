package scheduler

import (
	"context"
	"testing"

	"github.com/luigi-run/luigi/internal/promptchannel"
	"github.com/luigi-run/luigi/internal/store"
	"github.com/luigi-run/luigi/internal/testrunner"
	"github.com/luigi-run/luigi/internal/types"
	"github.com/luigi-run/luigi/internal/workspace"
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

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir(), "/repo", "do the thing")
	require.NoError(t, err)

	wm := workspace.NewManager(st.Snapshot().ID, t.TempDir())
	tr := &testrunner.Runner{}
	pc := promptchannel.New(st.PromptsDir())

	return New(cfg, wm, tr, pc, st), st
}

func TestRunIterationApprovesSingleCandidate(t *testing.T) {
	reviewer := &fakeAdapter{
		planFn: func(ctx context.Context, task, history string) (types.Plan, error) {
			return types.Plan{ExecutorPrompt: "implement it", Tasks: []string{"task a"}}, nil
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

	cfg := Config{
		Reviewers:            []ReviewerHandle{{ID: "r1", Adapter: reviewer}},
		Executors:            []ExecutorHandle{{ID: "e1", Adapter: executor}},
		ExecutorsPerPlan:     1,
		FallbackTestCommands: []types.TestCommand{{Argv: []string{"true"}}},
	}
	s, st := newTestScheduler(t, cfg)

	src := t.TempDir()
	baseline, err := s.workspaces.Provision(context.Background(), types.StrategyInPlace, src, "baseline")
	require.NoError(t, err)

	decision, next, err := s.RunIteration(context.Background(), "do the thing", "", baseline)
	require.NoError(t, err)
	require.Equal(t, types.DecisionApproved, decision)
	require.Equal(t, src, next.Path)

	run := st.Snapshot()
	require.Len(t, run.Iterations, 1)
	it := run.Iterations[0]
	require.Equal(t, types.StageDecided, it.Stage)
	require.Equal(t, types.DecisionApproved, it.Decision)
	require.Len(t, it.Candidates, 1)
	require.True(t, it.Candidates[0].TestResults[0].Passed)
}

func TestRunIterationRejectsWhenReviewerRejects(t *testing.T) {
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

	cfg := Config{
		Reviewers:            []ReviewerHandle{{ID: "r1", Adapter: reviewer}},
		Executors:            []ExecutorHandle{{ID: "e1", Adapter: executor}},
		ExecutorsPerPlan:     1,
		FallbackTestCommands: []types.TestCommand{{Argv: []string{"true"}}},
	}
	s, _ := newTestScheduler(t, cfg)

	src := t.TempDir()
	baseline, err := s.workspaces.Provision(context.Background(), types.StrategyInPlace, src, "baseline")
	require.NoError(t, err)

	decision, next, err := s.RunIteration(context.Background(), "do the thing", "", baseline)
	require.NoError(t, err)
	require.Equal(t, types.DecisionRejected, decision)
	require.Nil(t, next)
}

func TestRunIterationNoPlansAborts(t *testing.T) {
	reviewer := &fakeAdapter{
		planFn: func(ctx context.Context, task, history string) (types.Plan, error) {
			return types.Plan{}, assertErr
		},
	}
	cfg := Config{
		Reviewers: []ReviewerHandle{{ID: "r1", Adapter: reviewer}},
		Executors: []ExecutorHandle{{ID: "e1", Adapter: &fakeAdapter{}}},
	}
	s, _ := newTestScheduler(t, cfg)

	src := t.TempDir()
	baseline, err := s.workspaces.Provision(context.Background(), types.StrategyInPlace, src, "baseline")
	require.NoError(t, err)

	decision, next, err := s.RunIteration(context.Background(), "task", "", baseline)
	require.ErrorIs(t, err, ErrNoPlans)
	require.Equal(t, types.DecisionAborted, decision)
	require.Nil(t, next)
}

var assertErr = &testError{"plan failed"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
