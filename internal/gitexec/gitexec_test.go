package gitexec

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

func TestRunCapturesStdout(t *testing.T) {
	requireGit(t)
	r := New(t.TempDir(), 0)
	out, err := r.Run(context.Background(), "version")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.HasPrefix(out, "git version") {
		t.Errorf("out = %q, want git version prefix", out)
	}
}

func TestRunFailureYieldsCommandError(t *testing.T) {
	requireGit(t)
	r := New(t.TempDir(), 0)
	_, err := r.Run(context.Background(), "rev-parse", "HEAD")
	if err == nil {
		t.Fatal("expected error outside a repository")
	}
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error type = %T, want *CommandError", err)
	}
	if len(cmdErr.Args) == 0 || cmdErr.Args[0] != "rev-parse" {
		t.Errorf("Args = %v", cmdErr.Args)
	}
	if !strings.Contains(cmdErr.Error(), "git rev-parse") {
		t.Errorf("message = %q, want joined args", cmdErr.Error())
	}
}

func TestCommandErrorPrefersStderr(t *testing.T) {
	e := &CommandError{Args: []string{"merge"}, Stderr: "boom", Stdout: "ignored", Err: errors.New("exit 1")}
	if !strings.Contains(e.Error(), "boom") {
		t.Errorf("message = %q, want stderr diagnostic", e.Error())
	}
	e = &CommandError{Args: []string{"merge"}, Stdout: "only stdout", Err: errors.New("exit 1")}
	if !strings.Contains(e.Error(), "only stdout") {
		t.Errorf("message = %q, want stdout fallback", e.Error())
	}
	e = &CommandError{Args: []string{"merge"}, Err: errors.New("exit 1")}
	if !strings.Contains(e.Error(), "exit 1") {
		t.Errorf("message = %q, want process error fallback", e.Error())
	}
}

func TestRunInput(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	r := New(dir, 0)
	if _, err := r.Run(context.Background(), "init", "-q"); err != nil {
		t.Fatalf("init: %v", err)
	}
	hash, err := r.RunInput(context.Background(), "hello", "hash-object", "-w", "--stdin")
	if err != nil {
		t.Fatalf("hash-object: %v", err)
	}
	out, err := r.Run(context.Background(), "cat-file", "-p", hash)
	if err != nil {
		t.Fatalf("cat-file: %v", err)
	}
	if out != "hello" {
		t.Errorf("cat-file = %q, want hello", out)
	}
}

func TestRunRawKeepsWhitespace(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	r := New(dir, 0)
	if _, err := r.Run(context.Background(), "init", "-q"); err != nil {
		t.Fatalf("init: %v", err)
	}
	content := "  leading\nbody\ntrailing\n\n"
	hash, err := r.RunInput(context.Background(), content, "hash-object", "-w", "--stdin")
	if err != nil {
		t.Fatalf("hash-object: %v", err)
	}

	raw, err := r.RunRaw(context.Background(), "cat-file", "-p", hash)
	if err != nil {
		t.Fatalf("cat-file: %v", err)
	}
	if raw != content {
		t.Errorf("RunRaw = %q, want %q", raw, content)
	}

	trimmed, err := r.Run(context.Background(), "cat-file", "-p", hash)
	if err != nil {
		t.Fatalf("cat-file: %v", err)
	}
	if trimmed != "leading\nbody\ntrailing" {
		t.Errorf("Run = %q, want trimmed content", trimmed)
	}
}

func TestTimeout(t *testing.T) {
	requireGit(t)
	// 1ns budget: the command cannot finish, and the error must say so.
	r := New(t.TempDir(), time.Nanosecond)
	_, err := r.Run(context.Background(), "version")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("error = %q, want timeout mention", err.Error())
	}
}
