// Package installer runs the package manager's install step against a
// workspace directory.
package installer

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	sferrors "github.com/matzehuels/stackfix/pkg/errors"
)

// DefaultCommand is the install invocation.
var DefaultCommand = []string{"npm", "install", "--no-audit", "--no-fund"}

// DefaultTimeout bounds one install run.
const DefaultTimeout = 10 * time.Minute

// Result is the outcome of one install run.
type Result struct {
	Stdout   string
	Stderr   string
	Success  bool
	ExitCode int
	Duration time.Duration
}

// Output returns stderr followed by stdout, the text conflict analysis reads.
func (r *Result) Output() string {
	switch {
	case r.Stderr == "":
		return r.Stdout
	case r.Stdout == "":
		return r.Stderr
	}
	return r.Stderr + "\n" + r.Stdout
}

// Runner installs dependencies in dir.
//
// A failing install is reported through Result.Success with a nil error.
// The error return is reserved for runs that could not complete: a timeout
// (code TIMEOUT, with the partial Result) or a missing executable
// (code INSTALL_FAILED).
type Runner interface {
	Run(ctx context.Context, dir string) (*Result, error)
}

// RunnerFunc adapts a function to [Runner].
type RunnerFunc func(ctx context.Context, dir string) (*Result, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, dir string) (*Result, error) { return f(ctx, dir) }

// Exec runs an external install command.
type Exec struct {
	Command []string
	Timeout time.Duration
	Logger  *log.Logger
}

// NewExec returns a runner for command, or [DefaultCommand] when empty.
func NewExec(command []string, timeout time.Duration, logger *log.Logger) *Exec {
	if len(command) == 0 {
		command = DefaultCommand
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Exec{Command: command, Timeout: timeout, Logger: logger}
}

// Run implements [Runner].
func (e *Exec) Run(ctx context.Context, dir string) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.Command[0], e.Command[1:]...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.Logger.Debug("running install", "dir", dir, "cmd", strings.Join(e.Command, " "))
	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.ExitCode = -1
		return res, sferrors.Wrap(sferrors.ErrCodeTimeout, runCtx.Err(), "install did not finish within %s", e.Timeout)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Success = true
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, sferrors.Wrap(sferrors.ErrCodeInstallFailed, err, "cannot run %s", e.Command[0])
	}
	e.Logger.Debug("install finished", "success", res.Success, "exit", res.ExitCode, "took", res.Duration.Round(time.Millisecond))
	return res, nil
}

var _ Runner = (*Exec)(nil)

// Tail returns the last n lines of s.
func Tail(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if n <= 0 || s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
