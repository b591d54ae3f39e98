// Package shellexec provides the Executor implementation that
// internal/netctl shells out through: a thin exec.CommandContext wrapper
// with separated stdout/stderr capture.
package shellexec

import (
	"bytes"
	"context"
	"os/exec"
)

// Executor runs a named command with arguments and reports its stdout,
// stderr, and exit code. Implementations are swappable so netctl can be
// tested without touching the real OS network stack.
type Executor interface {
	Run(ctx context.Context, name string, args ...string) (stdout string, stderr string, exitCode int, err error)
}

// OSExecutor runs commands through os/exec.CommandContext.
type OSExecutor struct{}

// Run executes name with args, capturing stdout/stderr separately and
// reporting the process exit code (0 on success).
func (OSExecutor) Run(ctx context.Context, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return stdout.String(), stderr.String(), -1, err
		}
	}
	return stdout.String(), stderr.String(), exitCode, nil
}
