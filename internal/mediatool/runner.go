package mediatool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// ExecResult captures the outcome of one external command.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes external commands. Implementations must return a non-nil
// error for non-zero exits as well as launch failures.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (ExecResult, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, name string, args ...string) (ExecResult, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) (ExecResult, error) {
	return f(ctx, name, args...)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args, capturing stdout and stderr separately.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (ExecResult, error) {
	return StreamRunner{}.Run(ctx, name, args...)
}

func lastLines(text string, n int) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

// StreamRunner forwards command output to the given writers as it is
// produced. Stderr is also retained so failures can report its tail.
type StreamRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Run executes name with args, streaming its output.
func (r StreamRunner) Run(ctx context.Context, name string, args ...string) (ExecResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = teeWriter(r.Stdout, &stdout)
	cmd.Stderr = teeWriter(r.Stderr, &stderr)

	err := cmd.Run()
	result := ExecResult{
		Stdout: stdout.String(),
		Stderr: strings.TrimSpace(stderr.String()),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		if result.Stderr != "" {
			return result, fmt.Errorf("%s: %w: %s", name, err, lastLines(result.Stderr, 5))
		}
		return result, fmt.Errorf("%s: %w", name, err)
	}
	return result, nil
}

func teeWriter(w io.Writer, buf *bytes.Buffer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(w, buf)
}
