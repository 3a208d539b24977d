package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/luigi-run/luigi/internal/logger"
)

// invoke runs one agent CLI call and decodes its output file into result.
// argv is built as BaseArgs + ["--cwd", wsPath, "--output-file", outPath] +
// (ResumeFlag, sessionID) + promptText, following the teacher's runProcess
// shape (spec.md section 4.3). stdout/stderr are merged and scanned purely to
// emit zerolog progress events; outPath is the sole result source.
func invoke(ctx context.Context, cfg CommandConfig, wsPath, promptText string, sessionID string, result any) error {
	outPath := filepath.Join(os.TempDir(), fmt.Sprintf("luigi-agent-%s.json", uuid.NewString()))
	defer os.Remove(outPath)

	args := make([]string, 0, len(cfg.BaseArgs)+6)
	args = append(args, cfg.BaseArgs...)
	args = append(args, "--cwd", wsPath, "--output-file", outPath)
	if sessionID != "" && cfg.ResumeFlag != "" {
		args = append(args, cfg.ResumeFlag, sessionID)
	}
	args = append(args, promptText)

	cctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, cfg.Binary, args...)
	cmd.Env = buildEnv(cfg.Env)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("agent: creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("agent: creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: starting %s: %v", ErrInvocation, cfg.Binary, err)
	}

	merged := io.MultiReader(stdout, stderr)
	sc := bufio.NewScanner(merged)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if text := parseStreamLine(sc.Text()); text != "" {
			logger.Debug().Str("binary", cfg.Binary).Msg(text)
		}
	}

	runErr := cmd.Wait()

	body, readErr := os.ReadFile(outPath)
	if readErr != nil {
		if runErr != nil {
			return fmt.Errorf("%w: %s exited: %v (output file unreadable: %v)", ErrInvocation, cfg.Binary, runErr, readErr)
		}
		return fmt.Errorf("%w: output file unreadable: %v", ErrInvocation, readErr)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return nil
}

func buildEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}
