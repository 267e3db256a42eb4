package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// Command describes one subprocess execution.
type Command struct {
	Name    string        // required
	Args    []string
	Dir     string        // default: current working directory
	Timeout time.Duration // default: no timeout besides ctx
}

func (c *Command) String() string {
	return fmt.Sprintf("%s %v", c.Name, c.Args)
}

// Result is the outcome of a subprocess execution.
// ExitCode is -1 when the process could not be started or was killed.
type Result struct {
	Success  bool
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// Output returns Stderr when it is not empty and Stdout otherwise.
func (r *Result) Output() string {
	if r.Stderr != "" {
		return r.Stderr
	}
	return r.Stdout
}

// Runner runs external tools.
// Run never returns an error: every failure is reported through Result.
type Runner interface {
	Run(ctx context.Context, cmd *Command) *Result
	LookPath(name string) (string, bool)
}

var _ Runner = (*ExecRunner)(nil)

// ExecRunner runs tools as host subprocesses.
type ExecRunner struct {
	log *slog.Logger
}

func NewExecRunner(log *slog.Logger) *ExecRunner {
	return &ExecRunner{log: log.With("component", "tool")}
}

// Run runs cmd with stdin disabled and stdout and stderr captured.
// When cmd.Timeout elapses the process is killed.
func (r *ExecRunner) Run(ctx context.Context, cmd *Command) *Result {
	result := &Result{ExitCode: -1}

	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdin = nil
	c.Stdout = &stdout
	c.Stderr = &stderr
	c.WaitDelay = 5 * time.Second

	start := time.Now()
	err := c.Run()
	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		result.TimedOut = errors.Is(ctxErr, context.DeadlineExceeded)
		result.Stderr += fmt.Sprintf("\n%s: %v after %s", cmd.Name, ctxErr, result.Duration.Round(time.Millisecond))
		r.log.Warn("tool interrupted", "tool", cmd.Name, "error", ctxErr, "duration", result.Duration)
		return result
	}

	if err != nil {
		if exitErr := (*exec.ExitError)(nil); errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.Stderr += fmt.Sprintf("spawn_error: %v", err)
		}
		r.log.Debug("tool failed", "tool", cmd.Name, "exit_code", result.ExitCode, "duration", result.Duration)
		return result
	}

	result.Success = true
	result.ExitCode = 0
	r.log.Debug("tool succeeded", "tool", cmd.Name, "duration", result.Duration)
	return result
}

// LookPath reports whether name resolves to an executable.
// It consults the host on every call.
func (r *ExecRunner) LookPath(name string) (string, bool) {
	p, err := exec.LookPath(name)
	if err != nil {
		return "", false
	}
	return p, true
}

// Excerpt returns at most n runes of s.
func Excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Failure is a build step failure caused by an external tool.
type Failure struct {
	Code   string
	Detail string
	Result *Result // may be nil
}

func (f *Failure) Error() string {
	if f.Detail == "" {
		return f.Code
	}
	return f.Code + ": " + f.Detail
}
