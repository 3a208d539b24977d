package scheduler

import "errors"

// Sentinel errors for the Scheduler (spec.md section 4.6).
var (
	// ErrClarificationCapExceeded is returned when a candidate needs more
	// clarification rounds than MaxClarificationRounds allows; the candidate
	// is failed rather than the whole iteration aborted.
	ErrClarificationCapExceeded = errors.New("scheduler: clarification round cap exceeded")

	// ErrQuestionRoundCapExceeded is the planning-phase analog, applied to a
	// reviewer's needs-user-input loop.
	ErrQuestionRoundCapExceeded = errors.New("scheduler: question round cap exceeded")

	// ErrNoPlans is returned when every configured reviewer failed to
	// produce a plan.
	ErrNoPlans = errors.New("scheduler: no reviewer produced a plan")

	// ErrNoCandidates is returned when assignment produced zero candidates
	// (no plans, or zero executors configured).
	ErrNoCandidates = errors.New("scheduler: no candidates to execute")
)
