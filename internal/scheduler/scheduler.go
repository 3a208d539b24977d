// Package scheduler is Luigi's per-iteration Scheduler: Planning →
// Assignment → Execution → Testing → Review → Consensus → Disposition
// (spec.md section 4.6). Adapted from the teacher's
// internal/orchestrator/orchestrator.go loop shape (phased steps, a
// snapshot persisted after each phase, best-effort cleanup on the way out),
// generalized from a single agent invocation per iteration to concurrent
// multi-reviewer/multi-candidate fan-out using golang.org/x/sync/errgroup.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/luigi-run/luigi/internal/agent"
	"github.com/luigi-run/luigi/internal/logger"
	"github.com/luigi-run/luigi/internal/promptchannel"
	"github.com/luigi-run/luigi/internal/resume"
	"github.com/luigi-run/luigi/internal/store"
	"github.com/luigi-run/luigi/internal/testrunner"
	"github.com/luigi-run/luigi/internal/types"
	"github.com/luigi-run/luigi/internal/workspace"
)

// ReviewerHandle pairs a planner-reviewer Adapter with the id recorded on
// Plans and Reviews.
type ReviewerHandle struct {
	ID      string
	Adapter agent.Adapter
}

// ExecutorHandle pairs an executor Adapter with the id recorded on Candidates.
type ExecutorHandle struct {
	ID      string
	Adapter agent.Adapter
}

// Config parameterizes one Scheduler's fan-out shape (spec.md section 4.6).
type Config struct {
	Reviewers              []ReviewerHandle
	Executors              []ExecutorHandle
	ExecutorsPerPlan       int
	MaxQuestionRounds      int
	MaxClarificationRounds int
	// AdoptBaselineOnReject enables carry-forward: a rejected winner becomes
	// the next iteration's baseline instead of reverting to the repo state.
	AdoptBaselineOnReject bool
	// FallbackTestCommands substitutes for a Plan's nil TestCommands (the
	// types.UseFallbackTests sentinel, spec.md section 3).
	FallbackTestCommands []types.TestCommand
}

// Scheduler runs one Run's iterations to completion.
type Scheduler struct {
	cfg        Config
	workspaces *workspace.Manager
	tests      *testrunner.Runner
	prompts    *promptchannel.Channel
	store      *store.Store
}

// New returns a Scheduler wired to its collaborators.
func New(cfg Config, workspaces *workspace.Manager, tests *testrunner.Runner, prompts *promptchannel.Channel, st *store.Store) *Scheduler {
	return &Scheduler{cfg: cfg, workspaces: workspaces, tests: tests, prompts: prompts, store: st}
}

// RunIteration executes one full iteration against baseline and returns its
// decision plus, on carry-forward, the next iteration's baseline workspace.
func (s *Scheduler) RunIteration(ctx context.Context, task, history string, baseline *types.Workspace) (types.IterationDecision, *types.Workspace, error) {
	iterIdx, err := s.startIteration(baseline)
	if err != nil {
		return types.DecisionAborted, nil, err
	}

	plans, err := s.planPhase(ctx, iterIdx, task, history)
	if err != nil {
		return s.abortIteration(iterIdx, err)
	}

	candidates, err := s.assignPhase(iterIdx, plans)
	if err != nil {
		return s.abortIteration(iterIdx, err)
	}

	candidates, err = s.executionPhase(ctx, iterIdx, candidates, plans, baseline)
	if err != nil {
		return s.abortIteration(iterIdx, err)
	}

	candidates, err = s.testingPhase(ctx, iterIdx, candidates, plans)
	if err != nil {
		return s.abortIteration(iterIdx, err)
	}

	reviews, err := s.reviewPhase(ctx, iterIdx, plans, candidates)
	if err != nil {
		return s.abortIteration(iterIdx, err)
	}

	decision, winnerID, err := s.consensusPhase(ctx, iterIdx, candidates, reviews)
	if err != nil {
		return s.abortIteration(iterIdx, err)
	}

	nextBaseline, err := s.dispositionPhase(ctx, candidates, winnerID, decision)
	if err != nil {
		logger.Warn().Err(err).Msg("scheduler: disposition encountered an error")
	}

	return decision, nextBaseline, nil
}

// ResumeIteration re-enters an iteration the Orchestrator loaded from a
// crashed Run's snapshot, classifying it with the Resume Logic package and
// continuing only from the phase that did not finish (spec.md section 4.8).
// Callers must first confirm it is not yet decided; StagePlanning iterations
// have no plans to resume from and are rejected.
func (s *Scheduler) ResumeIteration(ctx context.Context, it types.Iteration) (types.IterationDecision, *types.Workspace, error) {
	iterIdx := it.Index
	stage := resume.Classify(types.Run{Status: types.RunRunning, Iterations: []types.Iteration{it}})

	switch stage {
	case resume.StageExecution:
		return s.resumeFromExecution(ctx, iterIdx, it, it.Baseline)
	case resume.StageConsensus:
		return s.continueAfterExecution(ctx, iterIdx, it.Plans, it.Candidates)
	case resume.StageDisposition:
		// Hand the winner's workspace back so the Orchestrator can persist it.
		for _, c := range it.Candidates {
			if c.ID == it.WinnerID {
				return it.Decision, c.Workspace, nil
			}
		}
		return it.Decision, nil, nil
	case resume.StageDone:
		return it.Decision, nil, nil
	default:
		return types.DecisionAborted, nil, fmt.Errorf("scheduler: cannot resume iteration %d at stage %q", iterIdx, stage)
	}
}

// resumeFromExecution reattaches candidates whose workspace survived the
// crash (an unsettled one resumes inside that workspace) and retries the
// rest in a fresh workspace from baseline. Session ids are preserved so
// every re-invoked executor continues its prior conversation (spec.md
// section 4.8).
func (s *Scheduler) resumeFromExecution(ctx context.Context, iterIdx int, it types.Iteration, baseline *types.Workspace) (types.IterationDecision, *types.Workspace, error) {
	reattach, retry := resume.ReattachableCandidates(it)
	planByID := make(map[string]types.Plan, len(it.Plans))
	for _, p := range it.Plans {
		planByID[p.ID] = p
	}

	candidates := make([]types.Candidate, 0, len(reattach)+len(retry))
	candidates = append(candidates, reattach...)
	for _, c := range retry {
		if c.Status != types.CandidateDone && c.Status != types.CandidateFailed {
			c.Workspace = nil
			c.Status = types.CandidatePending
		}
		candidates = append(candidates, c)
	}

	results := make([]types.Candidate, len(candidates))
	copy(results, candidates)

	g, gctx := errgroup.WithContext(ctx)
	for i := range candidates {
		i := i
		cand := candidates[i]
		g.Go(func() error {
			if cand.Status == types.CandidateDone || cand.Status == types.CandidateFailed {
				results[i] = cand
				return nil
			}
			plan := planByID[cand.PlanID]
			ex := s.executorByID(cand.ExecutorID)
			updated, err := s.executeCandidate(gctx, cand, plan, ex, baseline)
			if err != nil {
				logger.Warn().Err(err).Str("candidate", cand.ID).Msg("scheduler: resumed execution failed")
			}
			results[i] = updated
			return nil
		})
	}
	_ = g.Wait()

	if err := s.store.Mutate("candidates:executed", func(r *types.Run) error {
		r.Iterations[iterIdx].Candidates = results
		return nil
	}); err != nil {
		return s.abortIteration(iterIdx, err)
	}

	return s.continueAfterExecution(ctx, iterIdx, it.Plans, results)
}

// continueAfterExecution runs testing, review, consensus, and disposition
// against an already-executed candidate set, whether freshly produced by
// executionPhase or reattached by Resume Logic. Test commands re-run since
// they are idempotent; executors are never re-invoked for a settled
// candidate (spec.md section 4.8, scenario S5).
func (s *Scheduler) continueAfterExecution(ctx context.Context, iterIdx int, plans []types.Plan, candidates []types.Candidate) (types.IterationDecision, *types.Workspace, error) {
	candidates, err := s.testingPhase(ctx, iterIdx, candidates, plans)
	if err != nil {
		return s.abortIteration(iterIdx, err)
	}

	reviews, err := s.reviewPhase(ctx, iterIdx, plans, candidates)
	if err != nil {
		return s.abortIteration(iterIdx, err)
	}

	decision, winnerID, err := s.consensusPhase(ctx, iterIdx, candidates, reviews)
	if err != nil {
		return s.abortIteration(iterIdx, err)
	}

	nextBaseline, err := s.dispositionPhase(ctx, candidates, winnerID, decision)
	if err != nil {
		logger.Warn().Err(err).Msg("scheduler: disposition encountered an error")
	}
	return decision, nextBaseline, nil
}

func (s *Scheduler) startIteration(baseline *types.Workspace) (int, error) {
	idx := -1
	err := s.store.Mutate("iteration:start", func(r *types.Run) error {
		idx = len(r.Iterations)
		r.Iterations = append(r.Iterations, types.Iteration{
			Index:     idx,
			Stage:     types.StagePlanning,
			Baseline:  baseline,
			StartedAt: time.Now().UTC(),
		})
		return nil
	})
	return idx, err
}

func (s *Scheduler) abortIteration(iterIdx int, cause error) (types.IterationDecision, *types.Workspace, error) {
	_ = s.store.Mutate("iteration:aborted", func(r *types.Run) error {
		it := &r.Iterations[iterIdx]
		it.Decision = types.DecisionAborted
		it.Stage = types.StageDecided
		it.DecidedAt = time.Now().UTC()
		return nil
	})
	return types.DecisionAborted, nil, cause
}

// planPhase invokes every configured reviewer's Plan concurrently, handling
// each reviewer's NeedsUserInputError independently of the others (spec.md
// section 4.6 phase 1).
func (s *Scheduler) planPhase(ctx context.Context, iterIdx int, task, history string) ([]types.Plan, error) {
	var mu sync.Mutex
	var plans []types.Plan

	g, gctx := errgroup.WithContext(ctx)
	for _, rh := range s.cfg.Reviewers {
		rh := rh
		g.Go(func() error {
			plan, err := s.planWithClarification(gctx, rh, task, history)
			if err != nil {
				logger.Warn().Err(err).Str("reviewer", rh.ID).Msg("scheduler: planning failed")
				return nil
			}
			plan.ID = fmt.Sprintf("plan-%s", rh.ID)
			mu.Lock()
			plans = append(plans, plan)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, ErrNoPlans
	}

	err := s.store.Mutate("plans:recorded", func(r *types.Run) error {
		r.Iterations[iterIdx].Plans = plans
		return nil
	})
	return plans, err
}

func (s *Scheduler) planWithClarification(ctx context.Context, rh ReviewerHandle, task, history string) (types.Plan, error) {
	rounds := 0
	for {
		plan, err := rh.Adapter.Plan(ctx, task, history)

		var needsInput *agent.NeedsUserInputError
		if errors.As(err, &needsInput) {
			rounds++
			if rounds > s.cfg.MaxQuestionRounds {
				return types.Plan{}, ErrQuestionRoundCapExceeded
			}
			answers, askErr := s.askReviewerClarification(ctx, needsInput.Questions)
			if askErr != nil {
				return types.Plan{}, askErr
			}
			history = appendAnswers(history, needsInput.Questions, answers)
			continue
		}
		if err != nil {
			return types.Plan{}, err
		}
		plan.ReviewerID = rh.ID
		return plan, nil
	}
}

func (s *Scheduler) askReviewerClarification(ctx context.Context, questions []string) ([]string, error) {
	req := types.PromptRequest{
		ID:        uuid.NewString(),
		Kind:      types.PromptReviewerClarification,
		Questions: questions,
		CreatedAt: time.Now().UTC(),
	}
	resp, err := s.prompts.Ask(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Answers, nil
}

// assignPhase assigns ExecutorsPerPlan distinct executors to each Plan,
// round-robin across the configured executor list, creating one Candidate
// per (plan, executor) pair (spec.md section 4.6 phase 2).
func (s *Scheduler) assignPhase(iterIdx int, plans []types.Plan) ([]types.Candidate, error) {
	n := len(s.cfg.Executors)
	if n == 0 {
		return nil, ErrNoCandidates
	}

	var candidates []types.Candidate
	counter := 0
	for _, plan := range plans {
		perPlan := s.cfg.ExecutorsPerPlan
		if perPlan <= 0 {
			perPlan = 1
		}
		if perPlan > n {
			perPlan = n
		}
		for i := 0; i < perPlan; i++ {
			ex := s.cfg.Executors[counter%n]
			counter++
			candidates = append(candidates, types.Candidate{
				ID:         fmt.Sprintf("c%d", len(candidates)),
				ExecutorID: ex.ID,
				PlanID:     plan.ID,
				Status:     types.CandidatePending,
			})
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	err := s.store.Mutate("candidates:assigned", func(r *types.Run) error {
		r.Iterations[iterIdx].Candidates = candidates
		r.Iterations[iterIdx].Stage = types.StageExecuting
		return nil
	})
	return candidates, err
}

func (s *Scheduler) executorByID(id string) ExecutorHandle {
	for _, ex := range s.cfg.Executors {
		if ex.ID == id {
			return ex
		}
	}
	return ExecutorHandle{}
}

// executionPhase provisions each candidate's workspace from baseline and
// dispatches executors concurrently, handling needs-clarification rounds by
// forwarding questions to the reviewer pool (spec.md section 4.6 phase 3).
func (s *Scheduler) executionPhase(ctx context.Context, iterIdx int, candidates []types.Candidate, plans []types.Plan, baseline *types.Workspace) ([]types.Candidate, error) {
	planByID := make(map[string]types.Plan, len(plans))
	for _, p := range plans {
		planByID[p.ID] = p
	}

	results := make([]types.Candidate, len(candidates))
	copy(results, candidates)

	g, gctx := errgroup.WithContext(ctx)
	for i := range candidates {
		i := i
		cand := candidates[i]
		g.Go(func() error {
			plan := planByID[cand.PlanID]
			ex := s.executorByID(cand.ExecutorID)
			updated, err := s.executeCandidate(gctx, cand, plan, ex, baseline)
			if err != nil {
				logger.Warn().Err(err).Str("candidate", cand.ID).Msg("scheduler: execution failed")
			}
			results[i] = updated
			return nil
		})
	}
	_ = g.Wait()

	err := s.store.Mutate("candidates:executed", func(r *types.Run) error {
		r.Iterations[iterIdx].Candidates = results
		return nil
	})
	return results, err
}

func (s *Scheduler) executeCandidate(ctx context.Context, cand types.Candidate, plan types.Plan, ex ExecutorHandle, baseline *types.Workspace) (types.Candidate, error) {
	ws := cand.Workspace
	if ws == nil {
		var err error
		ws, err = s.workspaces.Provision(ctx, baseline.Strategy, baseline.Path, cand.ID)
		if err != nil {
			cand.Status = types.CandidateFailed
			return cand, err
		}
	}
	cand.Workspace = ws
	cand.Status = types.CandidateRunning

	prompt := plan.ExecutorPrompt
	session := cand.SessionID

	for {
		result, err := ex.Adapter.Execute(ctx, prompt, ws.Path, session)
		if err != nil {
			cand.Status = types.CandidateFailed
			return cand, err
		}
		cand.LastResult = &result
		session = result.SessionID
		cand.SessionID = session

		switch result.Status {
		case types.ExecutorDone:
			cand.Status = types.CandidateDone
			return cand, nil

		case types.ExecutorFailed:
			cand.Status = types.CandidateFailed
			return cand, nil

		default: // types.ExecutorNeedsClarification
			cand.ClarificationRounds++
			if cand.ClarificationRounds > s.cfg.MaxClarificationRounds {
				cand.Status = types.CandidateFailed
				return cand, ErrClarificationCapExceeded
			}
			cand.Status = types.CandidateNeedsClarification

			answers, err := s.askReviewerClarification(ctx, result.Questions)
			if err != nil {
				cand.Status = types.CandidateFailed
				return cand, err
			}
			prompt = appendAnswers(result.Summary, result.Questions, answers)
			cand.Status = types.CandidateRunning
		}
	}
}

// testingPhase runs each done candidate's test commands and attaches its
// change summary (spec.md section 4.6 phase 4).
func (s *Scheduler) testingPhase(ctx context.Context, iterIdx int, candidates []types.Candidate, plans []types.Plan) ([]types.Candidate, error) {
	planByID := make(map[string]types.Plan, len(plans))
	for _, p := range plans {
		planByID[p.ID] = p
	}

	results := make([]types.Candidate, len(candidates))
	copy(results, candidates)

	g, gctx := errgroup.WithContext(ctx)
	for i := range candidates {
		i := i
		cand := candidates[i]
		g.Go(func() error {
			if cand.Status != types.CandidateDone {
				return nil
			}
			cmds := planByID[cand.PlanID].TestCommands
			if cmds == nil {
				cmds = s.cfg.FallbackTestCommands
			}

			updated := cand
			updated.TestResults = s.tests.Run(gctx, cand.Workspace.Path, cmds)

			if summary, err := s.workspaces.SnapshotChanges(gctx, cand.Workspace); err == nil {
				updated.ChangedPaths = summary.ChangedPaths
				updated.DiffSummary = summary.Diff
			}
			results[i] = updated
			return nil
		})
	}
	_ = g.Wait()

	err := s.store.Mutate("candidates:tested", func(r *types.Run) error {
		r.Iterations[iterIdx].Candidates = results
		r.Iterations[iterIdx].Stage = types.StageTesting
		return nil
	})
	return results, err
}

// reviewPhase invokes every (reviewer, done-candidate) pair concurrently
// (spec.md section 4.6 phase 5).
func (s *Scheduler) reviewPhase(ctx context.Context, iterIdx int, plans []types.Plan, candidates []types.Candidate) ([]types.Review, error) {
	planByID := make(map[string]types.Plan, len(plans))
	for _, p := range plans {
		planByID[p.ID] = p
	}

	var mu sync.Mutex
	var reviews []types.Review

	g, gctx := errgroup.WithContext(ctx)
	for _, rh := range s.cfg.Reviewers {
		for _, cand := range candidates {
			if cand.Status != types.CandidateDone {
				continue
			}
			rh, cand := rh, cand
			g.Go(func() error {
				review, err := s.reviewWithClarification(gctx, rh, planByID[cand.PlanID], cand)
				if err != nil {
					logger.Warn().Err(err).Str("reviewer", rh.ID).Str("candidate", cand.ID).Msg("scheduler: review failed")
					return nil
				}
				review.CandidateID = cand.ID
				mu.Lock()
				reviews = append(reviews, review)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	err := s.store.Mutate("reviews:recorded", func(r *types.Run) error {
		r.Iterations[iterIdx].Reviews = reviews
		r.Iterations[iterIdx].Stage = types.StageReviewing
		return nil
	})
	return reviews, err
}

func (s *Scheduler) reviewWithClarification(ctx context.Context, rh ReviewerHandle, plan types.Plan, cand types.Candidate) (types.Review, error) {
	summary := ""
	if cand.LastResult != nil {
		summary = cand.LastResult.Summary
	}

	rounds := 0
	for {
		review, err := rh.Adapter.Review(ctx, plan, summary, cand.TestResults)
		if err != nil {
			return types.Review{}, err
		}
		if review.Status != types.ReviewNeedsUserInput {
			review.ReviewerID = rh.ID
			return review, nil
		}

		rounds++
		if rounds > s.cfg.MaxQuestionRounds {
			return types.Review{}, ErrQuestionRoundCapExceeded
		}
		answers, err := s.askReviewerClarification(ctx, review.Questions)
		if err != nil {
			return types.Review{}, err
		}
		summary = appendAnswers(summary, review.Questions, answers)
	}
}

// consensusPhase computes the iteration's winner and verdict, escalating to
// an admin-tiebreak PromptRequest when reviewers disagree (spec.md section
// 4.6 phase 6).
func (s *Scheduler) consensusPhase(ctx context.Context, iterIdx int, candidates []types.Candidate, reviews []types.Review) (types.IterationDecision, string, error) {
	var doneIDs []string
	for _, c := range candidates {
		if c.Status == types.CandidateDone {
			doneIDs = append(doneIDs, c.ID)
		}
	}
	if len(doneIDs) == 0 {
		return s.finalizeDecision(iterIdx, types.DecisionRejected, "")
	}

	consensus := computeConsensus(doneIDs, reviews)
	decision := types.DecisionRejected
	winner := consensus.WinnerID

	if consensus.Unanimous {
		if consensus.Verdict == types.VerdictApproved {
			decision = types.DecisionApproved
		}
	} else {
		req := types.PromptRequest{
			ID:        uuid.NewString(),
			Kind:      types.PromptAdminTiebreak,
			Questions: []string{"Reviewers disagree on the winning candidate's verdict. Choose a candidate id and a verdict."},
			CreatedAt: time.Now().UTC(),
		}
		resp, err := s.prompts.Ask(ctx, req)
		if err != nil {
			return types.DecisionAborted, "", err
		}
		if resp.AdminWinner != "" {
			winner = resp.AdminWinner
		}
		decision = resp.AdminVerdict
		if decision == types.DecisionNone {
			decision = types.DecisionRejected
		}
		decision2, _, err := s.finalizeDecision(iterIdx, decision, winner)
		return decision2, winner, err
	}

	return s.finalizeDecision(iterIdx, decision, winner)
}

func (s *Scheduler) finalizeDecision(iterIdx int, decision types.IterationDecision, winner string) (types.IterationDecision, string, error) {
	err := s.store.Mutate("iteration:decided", func(r *types.Run) error {
		it := &r.Iterations[iterIdx]
		it.Decision = decision
		it.WinnerID = winner
		it.DecidedAt = time.Now().UTC()
		it.Stage = types.StageDecided
		return nil
	})
	return decision, winner, err
}

// dispositionPhase disposes every non-winning candidate workspace
// immediately, then handles the winner according to decision: kept for the
// Orchestrator to persist on approval, converted into the next baseline on
// rejection when carry-forward is enabled, disposed otherwise (spec.md
// section 4.6 phase 7).
func (s *Scheduler) dispositionPhase(ctx context.Context, candidates []types.Candidate, winnerID string, decision types.IterationDecision) (*types.Workspace, error) {
	var winnerWS *types.Workspace
	for _, c := range candidates {
		if c.Workspace == nil {
			continue
		}
		if c.ID == winnerID {
			winnerWS = c.Workspace
			continue
		}
		if err := s.workspaces.Dispose(ctx, c.Workspace, workspace.DisposeAlways, false); err != nil {
			logger.Warn().Err(err).Str("candidate", c.ID).Msg("scheduler: disposing loser workspace failed")
		}
	}

	switch decision {
	case types.DecisionApproved:
		return winnerWS, nil

	case types.DecisionRejected:
		if s.cfg.AdoptBaselineOnReject && winnerWS != nil {
			baseline, err := s.workspaces.AdoptAsBaseline(winnerWS)
			if err != nil {
				return nil, err
			}
			_ = s.workspaces.Dispose(ctx, winnerWS, workspace.DisposeAlways, false)
			return baseline, nil
		}
		if winnerWS != nil {
			_ = s.workspaces.Dispose(ctx, winnerWS, workspace.DisposeAlways, false)
		}
		return nil, nil

	default:
		if winnerWS != nil {
			_ = s.workspaces.Dispose(ctx, winnerWS, workspace.DisposeAlways, false)
		}
		return nil, nil
	}
}

// appendAnswers folds a round of question/answer pairs into a running
// context string handed back into the next Plan/Execute/Review invocation.
func appendAnswers(base string, questions, answers []string) string {
	var b strings.Builder
	b.WriteString(base)
	for i, q := range questions {
		b.WriteString("\nQ: ")
		b.WriteString(q)
		b.WriteString("\nA: ")
		if i < len(answers) {
			b.WriteString(answers[i])
		}
	}
	return b.String()
}
