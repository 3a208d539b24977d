package agent

import (
	"fmt"
	"strings"

	"github.com/luigi-run/luigi/internal/types"
)

// Prompt sentinels every invocation's prompt text begins with, so mocks and
// future agents can route without parsing argv (spec.md section 6). Ported
// from the teacher's prompt.Builder, which read a fixed PROMPT_build.md /
// PROMPT_plan.md pair from the project directory; Luigi instead composes the
// prompt text in-process since it must embed iteration-specific history,
// candidate summaries, and test output rather than a static file.
const (
	sentinelPlan    = "PHASE: PLAN"
	sentinelExecute = "PHASE: EXECUTE"
	sentinelReview  = "PHASE: REVIEW"
)

func buildPlanPrompt(task, history string) string {
	var b strings.Builder
	b.WriteString(sentinelPlan)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Task:\n%s\n", task)
	if history != "" {
		b.WriteString("\nPrior iteration history:\n")
		b.WriteString(history)
		b.WriteString("\n")
	}
	return b.String()
}

func buildExecutePrompt(prompt string) string {
	var b strings.Builder
	b.WriteString(sentinelExecute)
	b.WriteString("\n\n")
	b.WriteString(prompt)
	return b.String()
}

func buildReviewPrompt(plan types.Plan, summary string, tests []types.TestCommandResult) string {
	var b strings.Builder
	b.WriteString(sentinelReview)
	b.WriteString("\n\n")

	b.WriteString("Plan tasks:\n")
	for _, t := range plan.Tasks {
		fmt.Fprintf(&b, "- %s\n", t)
	}

	b.WriteString("\nExecutor summary:\n")
	b.WriteString(summary)
	b.WriteString("\n")

	if len(tests) > 0 {
		b.WriteString("\nTest results:\n")
		for _, tr := range tests {
			status := "FAIL"
			if tr.Passed {
				status = "PASS"
			}
			fmt.Fprintf(&b, "- %s [%s] (%dms, exit %d)\n", strings.Join(tr.Argv, " "), status, tr.ElapsedMs, tr.ExitCode)
		}
	}

	return b.String()
}
