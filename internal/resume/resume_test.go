package resume

import (
	"os"
	"testing"
	"time"

	"github.com/luigi-run/luigi/internal/types"
	"github.com/stretchr/testify/require"
)

func TestClassifyNewRun(t *testing.T) {
	require.Equal(t, StageNewRun, Classify(types.Run{}))
}

func TestClassifyPlanning(t *testing.T) {
	run := types.Run{Iterations: []types.Iteration{{Index: 0}}}
	require.Equal(t, StagePlanning, Classify(run))
}

func TestClassifyExecution(t *testing.T) {
	run := types.Run{Iterations: []types.Iteration{{
		Index: 0,
		Plans: []types.Plan{{ID: "p1"}},
		Candidates: []types.Candidate{
			{ID: "c0", Status: types.CandidateRunning},
		},
	}}}
	require.Equal(t, StageExecution, Classify(run))
}

func TestClassifyConsensus(t *testing.T) {
	run := types.Run{Iterations: []types.Iteration{{
		Index: 0,
		Plans: []types.Plan{{ID: "p1"}},
		Candidates: []types.Candidate{
			{ID: "c0", Status: types.CandidateDone},
		},
		Reviews: []types.Review{{CandidateID: "c0", Status: types.ReviewFinal}},
	}}}
	require.Equal(t, StageConsensus, Classify(run))
}

func TestClassifyDisposition(t *testing.T) {
	run := types.Run{
		Status: types.RunRunning,
		Iterations: []types.Iteration{{
			Index: 0,
			Plans: []types.Plan{{ID: "p1"}},
			Candidates: []types.Candidate{
				{ID: "c0", Status: types.CandidateDone},
			},
			Decision: types.DecisionApproved,
		}},
	}
	require.Equal(t, StageDisposition, Classify(run))
}

func TestClassifyDone(t *testing.T) {
	run := types.Run{
		Status: types.RunRunning,
		Iterations: []types.Iteration{{
			Index:    0,
			Plans:    []types.Plan{{ID: "p1"}},
			Decision: types.DecisionRejected,
			Candidates: []types.Candidate{
				{ID: "c0", Status: types.CandidateDone},
			},
		}},
	}
	require.Equal(t, StageDone, Classify(run))
}

func TestReattachableCandidatesSplitsByPathExistence(t *testing.T) {
	existing := t.TempDir()
	missing := existing + "-does-not-exist"
	_, statErr := os.Stat(missing)
	require.Error(t, statErr)

	it := types.Iteration{Candidates: []types.Candidate{
		{ID: "c0", Workspace: &types.Workspace{Path: existing, CreatedAt: time.Now()}},
		{ID: "c1", Workspace: &types.Workspace{Path: missing, CreatedAt: time.Now()}},
		{ID: "c2"},
	}}

	reattach, retry := ReattachableCandidates(it)
	require.Len(t, reattach, 1)
	require.Equal(t, "c0", reattach[0].ID)
	require.Len(t, retry, 2)
}
