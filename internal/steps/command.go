package steps

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/nestor-assistant/nestor/internal/engine"
)

const defaultCmdTimeout = 30 * time.Second

// CommandRunner executes shell commands. Task params:
//
//	command     (string, required) the shell command
//	working_dir (string, optional)
//
// A non-zero exit code is a step failure, so it rides the retry path. The
// result carries stdout, stderr and exit_code for verification.
type CommandRunner struct {
	timeout time.Duration
}

// NewCommandRunner creates a command runner; timeout 0 means the default
// (30s).
func NewCommandRunner(timeout time.Duration) *CommandRunner {
	if timeout == 0 {
		timeout = defaultCmdTimeout
	}
	return &CommandRunner{timeout: timeout}
}

func (r *CommandRunner) RunStep(ctx context.Context, t *engine.Task) (*engine.StepResult, error) {
	command, _ := t.Params["command"].(string)
	if command == "" {
		return nil, fmt.Errorf("command step %s: command param is required", t.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if dir, _ := t.Params["working_dir"].(string); dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode := 0
	if err := cmd.Run(); err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("command step %s: %w", t.ID, err)
		}
		exitCode = exitErr.ExitCode()
	}

	if exitCode != 0 {
		return nil, fmt.Errorf("command step %s: exit code %d: %s",
			t.ID, exitCode, truncate(stderr.String(), 500))
	}

	return &engine.StepResult{Output: map[string]any{
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode,
	}}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
