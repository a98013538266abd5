package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned when an invocation exceeds its configured deadline.
// The child process is killed before the error is returned.
var ErrTimeout = errors.New("engine timed out")

// Result is the captured outcome of one engine invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// LaunchError means the engine executable could not be started at all.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching %s: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ExitError means the engine ran but exited with a non-zero status.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := excerpt(e.Stderr, 500)
	if msg == "" {
		return fmt.Sprintf("engine exited with status %d", e.Code)
	}
	return fmt.Sprintf("engine exited with status %d: %s", e.Code, msg)
}

// Runner runs the engine with an argument vector.
type Runner interface {
	Invoke(ctx context.Context, args ...string) (Result, error)
}

// Invoker starts the engine executable directly, without a shell, so file
// names, dates and auth codes are never interpreted.
type Invoker struct {
	Command string
	Dir     string
	Env     []string      // KEY=VALUE pairs layered over the current environment
	Timeout time.Duration // zero means no per-invocation deadline
}

// Invoke runs the command with args and waits for it to exit.
func (inv *Invoker) Invoke(ctx context.Context, args ...string) (Result, error) {
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, inv.Command, args...)
	cmd.Dir = inv.Dir
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}
	// Grandchildren holding the pipes open must not stall Wait after a kill.
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err == nil {
		return res, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%w after %s", ErrTimeout, inv.Timeout)
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, &ExitError{Code: exitErr.ExitCode(), Stderr: res.Stderr}
	}
	return res, &LaunchError{Command: inv.Command, Err: err}
}

// excerpt trims s and keeps at most n trailing bytes, which is where
// tracebacks put the useful part.
func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
