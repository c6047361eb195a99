// Package vcs wraps the git command line for workspace checkpoints.
//
// Every mutation of a resolution workspace is committed, so the history of a
// run can be inspected with plain git after it is copied back. Commands run
// quietly: stdout is returned to the caller and stderr is folded into the
// error on failure.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrNothingToCommit is returned by [Repo.Commit] when the index matches HEAD.
var ErrNothingToCommit = errors.New("nothing to commit")

// EmptyTree is the hash of git's empty tree, the diff base of a root commit.
const EmptyTree = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// Commit identity used when none is configured.
const (
	FallbackName  = "stackfix"
	FallbackEmail = "stackfix@localhost"
)

// Repo is a git working tree.
type Repo struct {
	dir string
}

// Commit is one entry of [Repo.Log].
type Commit struct {
	Hash    string
	Subject string
	Body    string
	Time    time.Time
}

// IsGitInstalled returns true if git is available on the system PATH.
func IsGitInstalled() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// Open returns a handle on an existing repository.
func Open(dir string) *Repo { return &Repo{dir: dir} }

// Init creates a repository in dir, writes ignore to .gitignore when
// non-empty, and sets a repo-local commit identity if none is configured.
func Init(ctx context.Context, dir string, ignore []string) (*Repo, error) {
	r := &Repo{dir: dir}
	if err := r.runQuiet(ctx, "init", "--quiet"); err != nil {
		return nil, err
	}
	if len(ignore) > 0 {
		content := strings.Join(ignore, "\n") + "\n"
		if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("write .gitignore: %w", err)
		}
	}
	if err := r.ensureCommitIdentity(ctx); err != nil {
		return nil, fmt.Errorf("setting commit identity: %w", err)
	}
	return r, nil
}

// Dir returns the working tree path.
func (r *Repo) Dir() string { return r.dir }

// GitDir returns the path of the .git directory.
func (r *Repo) GitDir() string { return filepath.Join(r.dir, ".git") }

// AddAll stages every change, honouring .gitignore.
func (r *Repo) AddAll(ctx context.Context) error {
	return r.runQuiet(ctx, "add", "--all")
}

// Commit records the staged changes and returns the new commit hash.
// allowEmpty permits a commit with no changes; otherwise an unchanged index
// returns [ErrNothingToCommit].
func (r *Repo) Commit(ctx context.Context, message string, allowEmpty bool) (string, error) {
	if !allowEmpty {
		clean, err := r.indexClean(ctx)
		if err != nil {
			return "", err
		}
		if clean {
			return "", ErrNothingToCommit
		}
	}
	args := []string{"commit", "--quiet", "--no-verify", "-F", "-"}
	if allowEmpty {
		args = append(args, "--allow-empty")
	}
	if err := r.runInput(ctx, message, args...); err != nil {
		return "", err
	}
	return r.Head(ctx)
}

// Head returns the full hash of HEAD.
func (r *Repo) Head(ctx context.Context) (string, error) {
	out, err := r.outputQuiet(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Status returns the porcelain status lines of the working tree.
func (r *Repo) Status(ctx context.Context) ([]string, error) {
	out, err := r.outputQuiet(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

const logSep = "\x1e"

// Log returns up to max commits, newest first. max <= 0 returns all.
func (r *Repo) Log(ctx context.Context, max int) ([]Commit, error) {
	args := []string{"log", "--format=%H%x1f%ct%x1f%s%x1f%b" + logSep}
	if max > 0 {
		args = append(args, "-n", strconv.Itoa(max))
	}
	out, err := r.outputQuiet(ctx, args...)
	if err != nil {
		return nil, err
	}
	var commits []Commit
	for _, rec := range strings.Split(out, logSep) {
		rec = strings.TrimLeft(rec, "\n")
		if rec == "" {
			continue
		}
		f := strings.SplitN(rec, "\x1f", 4)
		if len(f) < 4 {
			continue
		}
		sec, _ := strconv.ParseInt(f[1], 10, 64)
		commits = append(commits, Commit{
			Hash:    f[0],
			Time:    time.Unix(sec, 0),
			Subject: f[2],
			Body:    strings.TrimSpace(f[3]),
		})
	}
	return commits, nil
}

// RawDiff returns the unified diff between two revisions.
func (r *Repo) RawDiff(ctx context.Context, from, to string) (string, error) {
	return r.outputQuiet(ctx, "diff", "--no-color", "--no-ext-diff", from, to)
}

func (r *Repo) indexClean(ctx context.Context) (bool, error) {
	if _, err := r.outputQuiet(ctx, "rev-parse", "--verify", "--quiet", "HEAD"); err != nil {
		// No commits yet: an empty index is clean.
		out, err := r.outputQuiet(ctx, "ls-files", "--cached")
		if err != nil {
			return false, err
		}
		return strings.TrimSpace(out) == "", nil
	}
	err := r.runQuiet(ctx, "diff", "--cached", "--quiet")
	if err == nil {
		return true, nil
	}
	if isExitError(err) {
		return false, nil
	}
	return false, err
}

// ensureCommitIdentity sets repo-local user.name/user.email if they are not configured.
func (r *Repo) ensureCommitIdentity(ctx context.Context) error {
	if _, err := r.outputQuiet(ctx, "config", "user.name"); err != nil {
		if err2 := r.runQuiet(ctx, "config", "user.name", FallbackName); err2 != nil {
			return err2
		}
	}
	if _, err := r.outputQuiet(ctx, "config", "user.email"); err != nil {
		if err2 := r.runQuiet(ctx, "config", "user.email", FallbackEmail); err2 != nil {
			return err2
		}
	}
	return nil
}

// runQuiet executes a git command without printing stdout.
// Stderr is captured and included in the error message on failure.
func (r *Repo) runQuiet(ctx context.Context, args ...string) error {
	_, err := r.outputQuiet(ctx, args...)
	return err
}

func (r *Repo) runInput(ctx context.Context, stdin string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir
	cmd.Stdin = strings.NewReader(stdin)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &CommandError{Args: args, Err: err, Stderr: stderr.String()}
	}
	return nil
}

// outputQuiet executes a git command and returns its stdout without printing to the console.
func (r *Repo) outputQuiet(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &CommandError{Args: args, Err: err, Stderr: stderr.String()}
	}
	return stdout.String(), nil
}

// CommandError reports a failed git invocation.
type CommandError struct {
	Args   []string
	Err    error
	Stderr string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

func isExitError(err error) bool {
	var ee *exec.ExitError
	return errors.As(err, &ee)
}
