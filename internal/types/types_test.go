package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIterationLookups(t *testing.T) {
	it := Iteration{
		Plans:      []Plan{{ID: "p1"}, {ID: "p2"}},
		Candidates: []Candidate{{ID: "c1", PlanID: "p1"}, {ID: "c2", PlanID: "p2"}},
		Reviews: []Review{
			{ReviewerID: "r1", CandidateID: "c1", Status: ReviewFinal},
			{ReviewerID: "r1", CandidateID: "c2", Status: ReviewFinal},
		},
	}

	require.NotNil(t, it.PlanByID("p1"))
	assert.Nil(t, it.PlanByID("missing"))

	require.NotNil(t, it.CandidateByID("c2"))
	assert.Nil(t, it.CandidateByID("missing"))

	assert.Len(t, it.ReviewsForCandidate("c1"), 1)
	assert.Empty(t, it.ReviewsForCandidate("missing"))

	require.NoError(t, it.Validate())
}

func TestIterationValidateCatchesDanglingReferences(t *testing.T) {
	it := Iteration{
		Plans:      []Plan{{ID: "p1"}},
		Candidates: []Candidate{{ID: "c1", PlanID: "does-not-exist"}},
	}
	assert.ErrorIs(t, it.Validate(), ErrUnknownPlan)

	it2 := Iteration{
		Plans:      []Plan{{ID: "p1"}},
		Candidates: []Candidate{{ID: "c1", PlanID: "p1"}},
		Reviews:    []Review{{ReviewerID: "r1", CandidateID: "missing"}},
	}
	assert.ErrorIs(t, it2.Validate(), ErrUnknownCandidate)
}

func TestRunCurrentIteration(t *testing.T) {
	r := Run{WinningIterIdx: -1}
	assert.Nil(t, r.CurrentIteration())

	r.Iterations = append(r.Iterations, Iteration{Index: 0})
	r.Iterations = append(r.Iterations, Iteration{Index: 1})
	cur := r.CurrentIteration()
	require.NotNil(t, cur)
	assert.Equal(t, 1, cur.Index)
}
