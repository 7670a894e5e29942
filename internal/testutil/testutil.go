// Package testutil provides shared test helpers for setting up project
// stores. It must not import packages above the repo layer so that
// in-package tests of those layers can use it.
package testutil

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/starford/eihwaz/internal/repo"
)

// RequireGit skips the test when no git binary is on PATH.
func RequireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

// TestResolver creates a temporary project root with a resolver pointing
// at it.
func TestResolver(t *testing.T) (string, *repo.Resolver) {
	t.Helper()
	RequireGit(t)
	root := t.TempDir()
	r, err := repo.NewResolver(root, "main", "test", "test@example.com", 30*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	return root, r
}

// TestProject creates a resolver and initializes a single project under it.
func TestProject(t *testing.T, projectID string) *repo.Resolver {
	t.Helper()
	_, r := TestResolver(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := r.Init(ctx, projectID, projectID); err != nil {
		t.Fatal(err)
	}
	return r
}
