// Package agent is Luigi's Agent Adapter: it drives planner/reviewer and
// executor CLIs as child processes and normalizes their structured output
// into the types package's Plan/ExecutorResult/Review shapes (spec.md
// sections 4.3 and 6). Generalized from the teacher's internal/adapter
// package, which hardcoded one Execute(prompt)-streams-text operation per
// agent brand behind a shared Adapter interface.
package agent

import (
	"context"
	"fmt"

	"github.com/luigi-run/luigi/internal/types"
)

// Adapter drives one agent CLI through the three operations the Scheduler
// needs (spec.md section 4.3).
type Adapter interface {
	// Plan asks a planner-reviewer agent to produce a Plan for task, given the
	// prior iterations' history as context.
	Plan(ctx context.Context, task string, history string) (types.Plan, error)

	// Execute asks an executor agent to carry out prompt inside ws. session, if
	// non-empty, resumes a prior conversation.
	Execute(ctx context.Context, prompt, ws, session string) (types.ExecutorResult, error)

	// Review asks a planner-reviewer agent to evaluate a candidate's summary
	// and test results against its plan.
	Review(ctx context.Context, plan types.Plan, summary string, tests []types.TestCommandResult) (types.Review, error)
}

// CLIAdapter is the concrete Adapter: one CommandConfig per role, invoked as
// a child process per spec.md section 6's agent invocation contract.
type CLIAdapter struct {
	ID     string // reviewer_id / executor_id recorded on Plan/Candidate/Review
	Config Config
}

// New returns a CLIAdapter identified by id, driving the CLIs in cfg.
func New(id string, cfg Config) *CLIAdapter {
	return &CLIAdapter{ID: id, Config: cfg}
}

// planWire is the reviewer's raw plan output (spec.md section 6).
type planWire struct {
	ClaudePrompt string              `json:"claude_prompt"`
	Tasks        []string            `json:"tasks"`
	TestCommands []types.TestCommand `json:"test_commands"`
	Notes        string              `json:"notes,omitempty"`

	// Status and Questions are absent from the published plan schema
	// (spec.md section 6) except for the NEEDS_USER_INPUT case spec.md
	// section 4.6 phase 1 calls out for planning; reviewers that support it
	// set Status, everyone else leaves it empty and Plan proceeds normally.
	Status    string   `json:"status,omitempty"`
	Questions []string `json:"questions,omitempty"`
}

// NeedsUserInputError is returned by Plan when a reviewer asks clarifying
// questions before committing to a plan (spec.md section 4.6 phase 1). The
// caller re-invokes Plan with the answers folded into history.
type NeedsUserInputError struct {
	Questions []string
}

func (e *NeedsUserInputError) Error() string {
	return fmt.Sprintf("agent: reviewer needs user input: %d question(s)", len(e.Questions))
}

func (a *CLIAdapter) Plan(ctx context.Context, task, history string) (types.Plan, error) {
	cfg, err := a.Config.lookup(RolePlannerReviewer)
	if err != nil {
		return types.Plan{}, err
	}

	prompt := buildPlanPrompt(task, history)

	var wire planWire
	if err := invokeWithRetry(ctx, defaultRetryPolicy, cfg, "", prompt, "", &wire); err != nil {
		return types.Plan{}, err
	}

	if wire.Status == "NEEDS_USER_INPUT" {
		return types.Plan{}, &NeedsUserInputError{Questions: wire.Questions}
	}

	return types.Plan{
		ReviewerID:     a.ID,
		ExecutorPrompt: wire.ClaudePrompt,
		Tasks:          wire.Tasks,
		TestCommands:   wire.TestCommands,
		ExtraContext:   wire.Notes,
	}, nil
}

// executorWire is the executor's raw result output (spec.md section 6).
type executorWire struct {
	Status    string   `json:"status"`
	Summary   string   `json:"summary"`
	Questions []string `json:"questions,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

func (a *CLIAdapter) Execute(ctx context.Context, prompt, ws, session string) (types.ExecutorResult, error) {
	cfg, err := a.Config.lookup(RoleExecutor)
	if err != nil {
		return types.ExecutorResult{}, err
	}

	built := buildExecutePrompt(prompt)

	var wire executorWire
	if err := invokeWithRetry(ctx, defaultRetryPolicy, cfg, ws, built, session, &wire); err != nil {
		return types.ExecutorResult{}, err
	}

	status, err := normalizeExecutorStatus(wire.Status)
	if err != nil {
		return types.ExecutorResult{}, err
	}

	return types.ExecutorResult{
		Status:    status,
		Summary:   wire.Summary,
		Questions: wire.Questions,
		SessionID: wire.SessionID,
		Notes:     wire.Notes,
	}, nil
}

// normalizeExecutorStatus maps the wire-format status strings onto
// types.ExecutorStatus, folding the NEEDS_CODEX legacy alias into
// NEEDS_REVIEWER (spec.md section 6).
func normalizeExecutorStatus(wire string) (types.ExecutorStatus, error) {
	switch wire {
	case "DONE":
		return types.ExecutorDone, nil
	case "NEEDS_REVIEWER", "NEEDS_CODEX":
		return types.ExecutorNeedsClarification, nil
	case "FAILED":
		return types.ExecutorFailed, nil
	default:
		return "", fmt.Errorf("%w: unrecognized executor status %q", ErrProtocol, wire)
	}
}

// reviewWire is the reviewer's raw review output (spec.md section 6).
type reviewWire struct {
	Status    string   `json:"status"`
	Ranking   []string `json:"ranking"`
	Feedback  string   `json:"feedback"`
	Questions []string `json:"questions,omitempty"`
}

func (a *CLIAdapter) Review(ctx context.Context, plan types.Plan, summary string, tests []types.TestCommandResult) (types.Review, error) {
	cfg, err := a.Config.lookup(RolePlannerReviewer)
	if err != nil {
		return types.Review{}, err
	}

	prompt := buildReviewPrompt(plan, summary, tests)

	var wire reviewWire
	if err := invokeWithRetry(ctx, defaultRetryPolicy, cfg, "", prompt, "", &wire); err != nil {
		return types.Review{}, err
	}

	review := types.Review{
		ReviewerID: a.ID,
		Ranking:    wire.Ranking,
		Feedback:   wire.Feedback,
		Questions:  wire.Questions,
	}

	switch wire.Status {
	case "APPROVED":
		review.Verdict = types.VerdictApproved
		review.Status = types.ReviewFinal
	case "REJECTED":
		review.Verdict = types.VerdictRejected
		review.Status = types.ReviewFinal
	case "NEEDS_USER_INPUT":
		review.Status = types.ReviewNeedsUserInput
	default:
		return types.Review{}, fmt.Errorf("%w: unrecognized review status %q", ErrProtocol, wire.Status)
	}

	return review, nil
}
