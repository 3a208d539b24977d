package types

import "errors"

// Sentinel errors shared by components that validate the data model's
// invariants (spec.md section 3/8).
var (
	// ErrUnknownPlan is returned when a Candidate references a plan id that
	// does not exist within its Iteration.
	ErrUnknownPlan = errors.New("types: candidate references unknown plan")

	// ErrUnknownCandidate is returned when a Review references a candidate id
	// that does not exist within its Iteration.
	ErrUnknownCandidate = errors.New("types: review references unknown candidate")

	// ErrIncompleteReviews is returned when consensus is attempted before
	// every (reviewer, candidate) pair has a final review.
	ErrIncompleteReviews = errors.New("types: not all reviews are recorded")
)

// Validate checks the invariants spec.md section 3 requires of an Iteration:
// every Candidate references an existing Plan, and every Review references an
// existing Candidate.
func (it *Iteration) Validate() error {
	for i := range it.Candidates {
		if it.PlanByID(it.Candidates[i].PlanID) == nil {
			return ErrUnknownPlan
		}
	}
	for i := range it.Reviews {
		if it.CandidateByID(it.Reviews[i].CandidateID) == nil {
			return ErrUnknownCandidate
		}
	}
	return nil
}
