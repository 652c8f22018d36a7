package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Executor runs external commands such as ffmpeg and whisper.cpp.
type Executor interface {
	Execute(ctx context.Context, name string, args ...string) (Result, error)
}

// Result is the captured output of one command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

type implExecutor struct{}

// New creates a new Executor instance
func New() Executor {
	return &implExecutor{}
}

// Execute runs an external command with the given arguments
func (e *implExecutor) Execute(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	res.ExitCode = -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("command '%s' interrupted: %w", name, ctxErr)
	}

	// Include stderr in error message for debugging
	if stderrStr := lastLines(strings.TrimSpace(res.Stderr), 5); stderrStr != "" {
		return res, fmt.Errorf("command '%s' failed: %w\nstderr: %s", name, err, stderrStr)
	}
	return res, fmt.Errorf("command '%s' failed: %w", name, err)
}

// lastLines keeps the tail of noisy tool output.
func lastLines(s string, n int) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
