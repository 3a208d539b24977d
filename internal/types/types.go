// Package types holds the Luigi data model: Run, Iteration, Plan, Candidate,
// Review, Workspace, and PromptRequest. Back-references (Candidate -> Plan ->
// Iteration -> Run) are stored as string ids plus lookup tables rather than
// owning pointers, so the snapshot the State Store persists stays acyclic and
// trivially JSON-marshalable.
package types

import "time"

// RunStatus is the lifecycle status of a Run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunIdle      RunStatus = "idle"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunAborted   RunStatus = "aborted"
)

// IterationDecision is the outcome of an Iteration's consensus phase.
type IterationDecision string

const (
	DecisionNone           IterationDecision = ""
	DecisionApproved       IterationDecision = "approved"
	DecisionRejected       IterationDecision = "rejected"
	DecisionAdminEscalated IterationDecision = "admin-escalated"
	DecisionAborted        IterationDecision = "aborted"
)

// IterationStage tracks where an Iteration is in its phase pipeline. It is
// recorded in the snapshot so Resume Logic can classify progress without
// re-deriving it from partial data (spec.md section 4.8).
type IterationStage string

const (
	StagePlanning  IterationStage = "planning"
	StageExecuting IterationStage = "executing"
	StageTesting   IterationStage = "testing"
	StageReviewing IterationStage = "reviewing"
	StageDecided   IterationStage = "decided"
)

// CandidateStatus is the state-machine status of a Candidate.
type CandidateStatus string

const (
	CandidatePending            CandidateStatus = "pending"
	CandidateRunning            CandidateStatus = "running"
	CandidateNeedsClarification CandidateStatus = "needs-clarification"
	CandidateDone               CandidateStatus = "done"
	CandidateFailed             CandidateStatus = "failed"
)

// ReviewVerdict is a single reviewer's approve/reject call on a candidate.
type ReviewVerdict string

const (
	VerdictApproved ReviewVerdict = "approved"
	VerdictRejected ReviewVerdict = "rejected"
)

// ReviewStatus distinguishes a finished review from one still waiting on a
// human answer to a reviewer's clarifying question.
type ReviewStatus string

const (
	ReviewFinal          ReviewStatus = "final"
	ReviewNeedsUserInput ReviewStatus = "needs-user-input"
)

// WorkspaceStrategy selects how a Workspace is materialized.
type WorkspaceStrategy string

const (
	StrategyInPlace  WorkspaceStrategy = "in-place"
	StrategyCopy     WorkspaceStrategy = "copy"
	StrategyWorktree WorkspaceStrategy = "worktree"
	StrategyAuto     WorkspaceStrategy = "auto"
)

// PromptKind distinguishes the four situations that raise a PromptRequest.
type PromptKind string

const (
	PromptInitialTask          PromptKind = "initial-task"
	PromptReviewerClarification PromptKind = "reviewer-clarification"
	PromptAdminTiebreak        PromptKind = "admin-tiebreak"
	PromptSessionNextTask      PromptKind = "session-next-task"
)

// Run is the unit of work for one natural-language task.
type Run struct {
	ID             string      `json:"id"`
	RepoPath       string      `json:"repo_path"`
	InitialTask    string      `json:"initial_task"`
	CreatedAt      time.Time   `json:"created_at"`
	Status         RunStatus   `json:"status"`
	Iterations     []Iteration `json:"iterations"`
	WinningIterIdx int         `json:"winning_iteration_index"` // -1 if none
	ErrorKind      string      `json:"error_kind,omitempty"`
	ErrorMessage   string      `json:"error_message,omitempty"`
}

// Iteration is a single plan/execute/review cycle within a Run.
type Iteration struct {
	Index     int            `json:"index"`
	Stage     IterationStage `json:"stage"`
	// Baseline is the workspace candidates were provisioned from: the repo
	// itself for iteration 0, or the prior iteration's carried-forward
	// winner. Persisted so a crash mid-iteration can be resumed without
	// losing track of what candidates were provisioned against (spec.md
	// section 4.8).
	Baseline   *Workspace        `json:"baseline,omitempty"`
	Plans      []Plan            `json:"plans"`
	Candidates []Candidate       `json:"candidates"`
	Reviews    []Review          `json:"reviews"`
	Decision   IterationDecision `json:"decision"`
	WinnerID   string            `json:"winner_id,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	DecidedAt  time.Time         `json:"decided_at,omitempty"`
}

// TestCommand is one command a Plan asks the Test Runner to execute.
type TestCommand struct {
	Argv       []string `json:"argv"`
	Cwd        string   `json:"cwd,omitempty"`
	TimeoutSec int      `json:"timeout_sec,omitempty"`
}

// UseFallbackTests is the sentinel value for Plan.TestCommands meaning
// "substitute the configured fallback unit/e2e commands" (spec.md section 3).
var UseFallbackTests = []TestCommand(nil)

// Plan is one planner's structured output for an Iteration.
type Plan struct {
	ID             string        `json:"id"`
	ReviewerID     string        `json:"reviewer_id"`
	ExecutorPrompt string        `json:"executor_prompt"`
	Tasks          []string      `json:"tasks"`
	TestCommands   []TestCommand `json:"test_commands"` // nil means "use fallback"
	ExtraContext   string        `json:"extra_context,omitempty"`
}

// TestCommandResult is the outcome of running one TestCommand.
type TestCommandResult struct {
	Argv       []string `json:"argv"`
	ExitCode   int      `json:"exit_code"`
	ElapsedMs  int64    `json:"elapsed_ms"`
	Stdout     string   `json:"stdout"`
	Stderr     string   `json:"stderr"`
	TimedOut   bool     `json:"timed_out"`
	Passed     bool     `json:"passed"`
}

// Candidate is one executor's attempt to implement a Plan.
type Candidate struct {
	ID              string              `json:"id"`
	ExecutorID      string              `json:"executor_id"`
	PlanID          string              `json:"plan_id"`
	Workspace       *Workspace          `json:"workspace,omitempty"`
	Status          CandidateStatus     `json:"status"`
	SessionID       string              `json:"session_id,omitempty"`
	LastResult      *ExecutorResult     `json:"last_result,omitempty"`
	TestResults     []TestCommandResult `json:"test_results,omitempty"`
	ChangedPaths    []string            `json:"changed_paths,omitempty"`
	DiffSummary     string              `json:"diff_summary,omitempty"`
	ClarificationRounds int             `json:"clarification_rounds"`
}

// ExecutorStatus is the normalized status an Agent Adapter Execute call
// returns (spec.md section 4.3/6).
type ExecutorStatus string

const (
	ExecutorDone               ExecutorStatus = "done"
	ExecutorNeedsClarification ExecutorStatus = "needs-clarification"
	ExecutorFailed             ExecutorStatus = "failed"
)

// ExecutorResult is the Agent Adapter's normalized view of an executor call.
type ExecutorResult struct {
	Status    ExecutorStatus `json:"status"`
	Summary   string         `json:"summary"`
	Questions []string       `json:"questions,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Notes     string         `json:"notes,omitempty"`
}

// Review is one reviewer's evaluation of one candidate.
type Review struct {
	ReviewerID  string        `json:"reviewer_id"`
	CandidateID string        `json:"candidate_id"`
	Verdict     ReviewVerdict `json:"verdict,omitempty"`
	Ranking     []string      `json:"ranking"`
	Feedback    string        `json:"feedback"`
	Status      ReviewStatus  `json:"status"`
	Questions   []string      `json:"questions,omitempty"`
}

// Workspace is a materialized working tree.
type Workspace struct {
	Strategy   WorkspaceStrategy `json:"strategy"`
	Path       string            `json:"path"`
	SourceRepo string            `json:"source_repo"`
	Branch     string            `json:"branch,omitempty"`
	Dirty      bool              `json:"dirty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// PromptRequest is an outstanding question awaiting a human answer.
type PromptRequest struct {
	ID                string     `json:"id"`
	Kind              PromptKind `json:"kind"`
	Questions         []string   `json:"questions"`
	CandidateContext  []string   `json:"candidate_context,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	DeadlineUnixMs    int64      `json:"deadline_unix_ms,omitempty"`
	Cancelled         bool       `json:"cancelled,omitempty"`
}

// PromptResponse is the human answer that resolves a PromptRequest.
type PromptResponse struct {
	RequestID string            `json:"request_id"`
	Answers   []string          `json:"answers,omitempty"`
	// AdminWinner/AdminVerdict are populated only for PromptAdminTiebreak.
	AdminWinner  string            `json:"admin_winner,omitempty"`
	AdminVerdict IterationDecision `json:"admin_verdict,omitempty"`
	// NextTask is populated only for PromptSessionNextTask.
	NextTask string `json:"next_task,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// PlanByID returns the Plan with the given id within the iteration, or nil.
func (it *Iteration) PlanByID(id string) *Plan {
	for i := range it.Plans {
		if it.Plans[i].ID == id {
			return &it.Plans[i]
		}
	}
	return nil
}

// CandidateByID returns the Candidate with the given id within the iteration, or nil.
func (it *Iteration) CandidateByID(id string) *Candidate {
	for i := range it.Candidates {
		if it.Candidates[i].ID == id {
			return &it.Candidates[i]
		}
	}
	return nil
}

// ReviewsForCandidate returns all reviews recorded for a candidate.
func (it *Iteration) ReviewsForCandidate(candidateID string) []Review {
	var out []Review
	for _, r := range it.Reviews {
		if r.CandidateID == candidateID {
			out = append(out, r)
		}
	}
	return out
}

// CurrentIteration returns a pointer to the last iteration, or nil if the run
// has none yet.
func (r *Run) CurrentIteration() *Iteration {
	if len(r.Iterations) == 0 {
		return nil
	}
	return &r.Iterations[len(r.Iterations)-1]
}
