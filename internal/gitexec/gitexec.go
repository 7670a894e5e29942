// Package gitexec runs git subcommands and normalizes their failures.
package gitexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single git invocation when the Runner is built
// without an explicit timeout.
const DefaultTimeout = 30 * time.Second

// CommandError carries everything needed to diagnose a failed git command:
// the joined arguments and the best available output (stderr preferred,
// then stdout, then the underlying process error).
type CommandError struct {
	Args   []string
	Stderr string
	Stdout string
	Err    error
}

func (e *CommandError) Error() string {
	diag := e.Stderr
	if diag == "" {
		diag = e.Stdout
	}
	if diag == "" && e.Err != nil {
		diag = e.Err.Error()
	}
	return fmt.Sprintf("git %s: %s", strings.Join(e.Args, " "), diag)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Runner executes git commands in a fixed working directory.
// All methods are safe for concurrent use.
type Runner struct {
	dir     string
	timeout time.Duration
	env     []string
}

// New creates a Runner for the repository at dir. A non-positive timeout
// falls back to DefaultTimeout.
func New(dir string, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{dir: dir, timeout: timeout}
}

// WithEnv returns a copy of the Runner with extra environment entries
// (KEY=value) appended to the subprocess environment.
func (r *Runner) WithEnv(env ...string) *Runner {
	cp := *r
	cp.env = append(append([]string{}, r.env...), env...)
	return &cp
}

// Dir returns the working directory the Runner operates in.
func (r *Runner) Dir() string { return r.dir }

// Run executes git with args and returns trimmed stdout.
// A non-zero exit yields a *CommandError; there are no retries, since
// subprocess failures are deterministic given repository state.
func (r *Runner) Run(ctx context.Context, args ...string) (string, error) {
	return r.RunInput(ctx, "", args...)
}

// RunRaw is Run without trimming stdout. Use it for content reads
// (show, cat-file) where surrounding whitespace is part of the data;
// Run's trimming is only appropriate for refs, hashes, and branch names.
func (r *Runner) RunRaw(ctx context.Context, args ...string) (string, error) {
	return r.run(ctx, "", false, args...)
}

// RunInput is Run with data fed to the subprocess on stdin.
func (r *Runner) RunInput(ctx context.Context, input string, args ...string) (string, error) {
	return r.run(ctx, input, true, args...)
}

func (r *Runner) run(ctx context.Context, input string, trim bool, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir
	if len(r.env) > 0 {
		cmd.Env = append(cmd.Environ(), r.env...)
	}
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timeout after %v", r.timeout)
		}
		return "", &CommandError{
			Args:   args,
			Stderr: strings.TrimSpace(stderr.String()),
			Stdout: strings.TrimSpace(stdout.String()),
			Err:    err,
		}
	}

	if trim {
		return strings.TrimSpace(stdout.String()), nil
	}
	return stdout.String(), nil
}

// RunSilent executes git and reports only success or failure.
func (r *Runner) RunSilent(ctx context.Context, args ...string) error {
	_, err := r.Run(ctx, args...)
	return err
}

// IsPathMissing reports whether err is git telling us the requested path
// or object does not exist at a revision (as opposed to a real failure).
func IsPathMissing(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	diag := strings.ToLower(cmdErr.Stderr)
	return strings.Contains(diag, "does not exist") ||
		strings.Contains(diag, "invalid object name") ||
		strings.Contains(diag, "not a valid object name") ||
		strings.Contains(diag, "exists on disk, but not in")
}
