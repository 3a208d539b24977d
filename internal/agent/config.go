package agent

import "time"

// Role distinguishes the two invocation contracts Luigi drives agents
// through (spec.md section 4.3).
type Role string

const (
	RolePlannerReviewer Role = "planner-reviewer"
	RoleExecutor        Role = "executor"
)

// CommandConfig holds the argv template and environment for one agent CLI.
// Ported from the teacher's adapter.CommandConfig, generalized from a fixed
// per-brand struct field to a value keyed by Role in Config.
type CommandConfig struct {
	// Binary is the executable name or path.
	Binary string
	// BaseArgs is the argv prefix, before "--cwd"/"--output-file"/prompt are
	// appended.
	BaseArgs []string
	// Env contains extra environment variables merged into os.Environ().
	Env map[string]string
	// Timeout bounds a single invocation. Zero means DefaultTimeout.
	Timeout time.Duration
	// ResumeFlag is the flag name used to pass a previous session id back to
	// the CLI (e.g. "--resume"). Empty disables resume support.
	ResumeFlag string
}

// DefaultTimeout bounds an agent invocation when a CommandConfig doesn't
// override it.
const DefaultTimeout = 20 * time.Minute

// Config maps each Role to the CommandConfig Luigi invokes it with.
type Config map[Role]CommandConfig

// Presets mirrors the teacher's AgentCommands table: convenience defaults for
// well-known CLIs, named the same as the teacher's brands, but keyed as
// interchangeable values a Config can assign to either role rather than a
// fixed enum (spec.md section 4.3).
var Presets = map[string]CommandConfig{
	"claude": {
		Binary:     "claude",
		BaseArgs:   []string{"-p", "--dangerously-skip-permissions", "--output-format", "stream-json", "--verbose"},
		ResumeFlag: "--resume",
	},
	"cursor": {
		Binary:   "agent",
		BaseArgs: []string{"-p", "--force", "--output-format", "stream-json", "--stream-partial-output"},
	},
	"codex": {
		Binary:     "codex",
		BaseArgs:   []string{"exec", "--full-auto", "--json"},
		ResumeFlag: "--resume",
	},
	"opencode": {
		Binary:   "opencode",
		BaseArgs: []string{"run", "--format", "json"},
		Env:      map[string]string{"OPENCODE_PERMISSION": `{"*":"allow"}`},
	},
}

// lookup returns the CommandConfig for role, applying DefaultTimeout when
// unset.
func (c Config) lookup(role Role) (CommandConfig, error) {
	cfg, ok := c[role]
	if !ok {
		return CommandConfig{}, ErrUnknownRole
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return cfg, nil
}
