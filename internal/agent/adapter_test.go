package agent

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/luigi-run/luigi/internal/types"
	"github.com/stretchr/testify/require"
)

// fakeAgentScript returns a CommandConfig that runs a tiny shell script as
// the "agent binary": it writes body to whatever path follows --output-file
// and exits 0, mimicking the teacher's adapter tests' reliance on a real
// subprocess rather than a mocked interface.
func fakeAgentScript(t *testing.T, body string) CommandConfig {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake agent script requires a POSIX shell")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "fake-agent.sh")
	contents := "#!/bin/sh\nset -e\nprev=\"\"\nfor arg in \"$@\"; do\n  if [ \"$prev\" = \"--output-file\" ]; then\n    out=\"$arg\"\n  fi\n  prev=\"$arg\"\ndone\ncat > \"$out\" <<'BODY'\n" + body + "\nBODY\n"
	require.NoError(t, os.WriteFile(script, []byte(contents), 0o755))

	return CommandConfig{
		Binary:  script,
		Timeout: 5 * time.Second,
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCLIAdapterPlan(t *testing.T) {
	requireShell(t)
	body := `{"claude_prompt":"do the thing","tasks":["a","b"],"test_commands":null,"notes":"n"}`
	cfg := Config{RolePlannerReviewer: fakeAgentScript(t, body)}
	a := New("reviewer-1", cfg)

	plan, err := a.Plan(context.Background(), "implement feature", "")
	require.NoError(t, err)
	require.Equal(t, "reviewer-1", plan.ReviewerID)
	require.Equal(t, "do the thing", plan.ExecutorPrompt)
	require.Equal(t, []string{"a", "b"}, plan.Tasks)
	require.Nil(t, plan.TestCommands)
}

func TestCLIAdapterExecuteNormalizesNeedsCodexAlias(t *testing.T) {
	requireShell(t)
	body := `{"status":"NEEDS_CODEX","summary":"need input","questions":["throw or return null?"],"session_id":"sess-1"}`
	cfg := Config{RoleExecutor: fakeAgentScript(t, body)}
	a := New("executor-1", cfg)

	result, err := a.Execute(context.Background(), "do it", t.TempDir(), "")
	require.NoError(t, err)
	require.Equal(t, types.ExecutorNeedsClarification, result.Status)
	require.Equal(t, "sess-1", result.SessionID)
	require.Equal(t, []string{"throw or return null?"}, result.Questions)
}

func TestCLIAdapterExecuteUnknownStatusIsProtocolError(t *testing.T) {
	requireShell(t)
	body := `{"status":"WHAT","summary":"??"}`
	cfg := Config{RoleExecutor: fakeAgentScript(t, body)}
	a := New("executor-1", cfg)

	_, err := a.Execute(context.Background(), "do it", t.TempDir(), "")
	require.ErrorIs(t, err, ErrProtocol)
}

func TestCLIAdapterReview(t *testing.T) {
	requireShell(t)
	body := `{"status":"APPROVED","ranking":["c1","c2"],"feedback":"looks good"}`
	cfg := Config{RolePlannerReviewer: fakeAgentScript(t, body)}
	a := New("reviewer-1", cfg)

	plan := types.Plan{ID: "p1", Tasks: []string{"a"}}
	review, err := a.Review(context.Background(), plan, "did the thing", nil)
	require.NoError(t, err)
	require.Equal(t, types.VerdictApproved, review.Verdict)
	require.Equal(t, types.ReviewFinal, review.Status)
	require.Equal(t, []string{"c1", "c2"}, review.Ranking)
}

func TestCLIAdapterUnknownRoleErrors(t *testing.T) {
	a := New("x", Config{})
	_, err := a.Plan(context.Background(), "t", "")
	require.ErrorIs(t, err, ErrUnknownRole)
}

func TestInvokeMissingOutputFileIsInvocationError(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	script := filepath.Join(dir, "broken.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 1\n"), 0o755))

	cfg := CommandConfig{Binary: script, Timeout: 5 * time.Second}
	var out map[string]any
	err := invoke(context.Background(), cfg, "", "prompt", "", &out)
	require.ErrorIs(t, err, ErrInvocation)
}

func TestParseStreamLine(t *testing.T) {
	raw, err := json.Marshal(map[string]any{
		"type":    "assistant",
		"message": map[string]any{"content": []map[string]any{{"type": "text", "text": "hello"}}},
	})
	require.NoError(t, err)
	require.Equal(t, "hello", parseStreamLine(string(raw)))
	require.Equal(t, "plain line", parseStreamLine("plain line"))
	require.Equal(t, "", parseStreamLine("  "))
}
