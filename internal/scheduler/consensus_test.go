package scheduler

import (
	"testing"

	"github.com/luigi-run/luigi/internal/types"
	"github.com/stretchr/testify/require"
)

func TestComputeConsensusUnanimousApproval(t *testing.T) {
	reviews := []types.Review{
		{ReviewerID: "r1", CandidateID: "c0", Verdict: types.VerdictApproved, Status: types.ReviewFinal, Ranking: []string{"c0", "c1"}},
		{ReviewerID: "r2", CandidateID: "c0", Verdict: types.VerdictApproved, Status: types.ReviewFinal, Ranking: []string{"c0", "c1"}},
	}
	result := computeConsensus([]string{"c0", "c1"}, reviews)
	require.Equal(t, "c0", result.WinnerID)
	require.True(t, result.Unanimous)
	require.Equal(t, types.VerdictApproved, result.Verdict)
}

func TestComputeConsensusSplitVerdictIsNotUnanimous(t *testing.T) {
	reviews := []types.Review{
		{ReviewerID: "r1", CandidateID: "c0", Verdict: types.VerdictApproved, Status: types.ReviewFinal, Ranking: []string{"c0", "c1"}},
		{ReviewerID: "r2", CandidateID: "c0", Verdict: types.VerdictRejected, Status: types.ReviewFinal, Ranking: []string{"c0", "c1"}},
	}
	result := computeConsensus([]string{"c0", "c1"}, reviews)
	require.Equal(t, "c0", result.WinnerID)
	require.False(t, result.Unanimous)
}

func TestComputeConsensusTieBreaksOnEarliestCandidateID(t *testing.T) {
	reviews := []types.Review{
		{ReviewerID: "r1", CandidateID: "c0", Verdict: types.VerdictApproved, Status: types.ReviewFinal, Ranking: []string{"c0", "c1"}},
		{ReviewerID: "r2", CandidateID: "c1", Verdict: types.VerdictApproved, Status: types.ReviewFinal, Ranking: []string{"c1", "c0"}},
	}
	result := computeConsensus([]string{"c0", "c1"}, reviews)
	require.Equal(t, "c0", result.WinnerID)
}

func TestComputeConsensusMissingRankingEntriesDoNotDropCandidates(t *testing.T) {
	reviews := []types.Review{
		{ReviewerID: "r1", CandidateID: "c2", Verdict: types.VerdictApproved, Status: types.ReviewFinal, Ranking: []string{"c0"}},
	}
	result := computeConsensus([]string{"c0", "c1", "c2"}, reviews)
	require.Equal(t, "c0", result.WinnerID)
}
