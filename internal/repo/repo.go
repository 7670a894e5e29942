// Package repo resolves project repositories and provides the shared
// git helpers (branch lookup, clean-tree assertion, identity, commit
// message construction) used by the ledger, branch, and artefact layers.
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/gitexec"
	"github.com/starford/eihwaz/internal/models"
)

// Well-known files inside every project repository.
const (
	MetaFile     = "project.json"
	LedgerFile   = "nodes.ndjson"
	ArtefactFile = "artefact.md"
)

// Live refs: an empty ref or WorkingRef denotes the live working copy
// rather than a committed revision.
const WorkingRef = "WORKING"

// IsLiveRef reports whether ref denotes the live working copy.
func IsLiveRef(ref string) bool {
	return ref == "" || ref == WorkingRef
}

// Resolver maps project ids to repository directories under a fixed root.
type Resolver struct {
	root    string // absolute path to the projects directory
	trunk   string
	author  string
	email   string
	timeout time.Duration
}

// NewResolver creates a Resolver rooted at the given directory.
// The directory must already exist.
func NewResolver(root, trunk, author, email string, timeout time.Duration) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("repo: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("repo: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repo: root is not a directory: %s", abs)
	}
	if trunk == "" {
		trunk = "main"
	}
	return &Resolver{root: abs, trunk: trunk, author: author, email: email, timeout: timeout}, nil
}

// Trunk returns the fixed initial-branch name for all projects.
func (r *Resolver) Trunk() string { return r.trunk }

// Root returns the absolute projects root directory.
func (r *Resolver) Root() string { return r.root }

// dir resolves a project id against the root and rejects any result that
// escapes it (directory traversal).
func (r *Resolver) dir(projectID string) (string, error) {
	cleaned := filepath.Clean(projectID)
	if cleaned == "" || cleaned == "." || filepath.IsAbs(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("repo: invalid project id %q: %w", projectID, apperr.ErrValidation)
	}
	abs := filepath.Join(r.root, cleaned)
	if !strings.HasPrefix(abs, r.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("repo: project id escapes root: %q: %w", projectID, apperr.ErrValidation)
	}
	return abs, nil
}

// Dir returns the repository directory for projectID. The metadata file is
// the authoritative existence signal: if it is absent the project does not
// exist and ErrNotFound is returned.
func (r *Resolver) Dir(projectID string) (string, error) {
	abs, err := r.dir(projectID)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(filepath.Join(abs, MetaFile)); err != nil {
		return "", fmt.Errorf("repo: project %s: %w", projectID, apperr.ErrNotFound)
	}
	return abs, nil
}

// Exists reports whether the project's metadata file is present.
func (r *Resolver) Exists(projectID string) bool {
	_, err := r.Dir(projectID)
	return err == nil
}

// Runner returns a git runner for the project's repository directory.
func (r *Resolver) Runner(projectID string) (*gitexec.Runner, error) {
	dir, err := r.Dir(projectID)
	if err != nil {
		return nil, err
	}
	return gitexec.New(dir, r.timeout), nil
}

// Meta reads the project metadata file.
func (r *Resolver) Meta(projectID string) (*models.ProjectMeta, error) {
	dir, err := r.Dir(projectID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		return nil, fmt.Errorf("repo: read metadata: %w", err)
	}
	var meta models.ProjectMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("repo: parse metadata: %w", err)
	}
	return &meta, nil
}

// List enumerates every project under the root that carries a metadata file.
func (r *Resolver) List() ([]models.ProjectMeta, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("repo: list projects: %w", err)
	}
	var out []models.ProjectMeta
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := r.Meta(e.Name())
		if err != nil {
			continue
		}
		out = append(out, *meta)
	}
	return out, nil
}

// Init creates a new project: a fresh repository on the trunk branch with
// the metadata file committed as the initial revision.
func (r *Resolver) Init(ctx context.Context, projectID, name string) (*models.ProjectMeta, error) {
	abs, err := r.dir(projectID)
	if err != nil {
		return nil, err
	}
	if r.Exists(projectID) {
		return nil, fmt.Errorf("repo: project %s: %w", projectID, apperr.ErrAlreadyExists)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("repo: create project dir: %w", err)
	}

	run := gitexec.New(abs, r.timeout)
	if _, err := run.Run(ctx, "init", "-q", "-b", r.trunk); err != nil {
		return nil, fmt.Errorf("repo: init project %s: %w", projectID, err)
	}
	if err := r.EnsureIdentity(ctx, run); err != nil {
		return nil, err
	}

	meta := &models.ProjectMeta{ID: projectID, Name: name, CreatedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("repo: encode metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(abs, MetaFile), append(data, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("repo: write metadata: %w", err)
	}
	if _, err := run.Run(ctx, "add", MetaFile); err != nil {
		return nil, fmt.Errorf("repo: stage metadata: %w", err)
	}
	if _, err := run.Run(ctx, "commit", "-q", "-m", "project: initialize "+projectID); err != nil {
		return nil, fmt.Errorf("repo: initial commit: %w", err)
	}
	return meta, nil
}

// EnsureIdentity sets the fixed machine author on the repository. Commits
// are authored by the application on behalf of the project, never by the
// human end user.
func (r *Resolver) EnsureIdentity(ctx context.Context, run *gitexec.Runner) error {
	if _, err := run.Run(ctx, "config", "user.name", r.author); err != nil {
		return fmt.Errorf("repo: set author name: %w", err)
	}
	if _, err := run.Run(ctx, "config", "user.email", r.email); err != nil {
		return fmt.Errorf("repo: set author email: %w", err)
	}
	return nil
}

// CurrentBranch returns the checked-out branch name, queried from git
// rather than any cached state.
func CurrentBranch(ctx context.Context, run *gitexec.Runner) (string, error) {
	branch, err := run.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("repo: current branch: %w", err)
	}
	return branch, nil
}

// RequireClean verifies the working tree has no uncommitted changes.
// A merge proceeding over uncommitted edits would silently lose them,
// so this is a correctness guard, not a convenience check.
func RequireClean(ctx context.Context, run *gitexec.Runner) error {
	out, err := run.Run(ctx, "status", "--porcelain")
	if err != nil {
		return fmt.Errorf("repo: status: %w", err)
	}
	if out != "" {
		return fmt.Errorf("repo: dirty working tree: %w", apperr.ErrInvalidState)
	}
	return nil
}

// BranchExists reports whether a local branch exists.
func BranchExists(ctx context.Context, run *gitexec.Runner, name string) bool {
	err := run.RunSilent(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// ResolveRef resolves a ref (branch, tag, or SHA) to a full commit id.
func ResolveRef(ctx context.Context, run *gitexec.Runner, ref string) (string, error) {
	sha, err := run.Run(ctx, "rev-parse", ref)
	if err != nil {
		return "", fmt.Errorf("repo: resolve ref %s: %w", ref, err)
	}
	return sha, nil
}

// summaryLimit is the maximum length of a commit message's first line.
const summaryLimit = 72

// CommitMessage builds the message for a ledger-affecting commit: a
// truncated one-line summary derived from the node, then structured
// detail lines. Every append or merge produces exactly one commit.
func CommitMessage(n models.NodeRecord, branch string) string {
	summary := strings.Join(strings.Fields(n.Summary()), " ")
	if len(summary) > summaryLimit {
		// Truncate on a rune boundary so multi-byte text stays valid.
		cut := summaryLimit - 3
		for cut > 0 && !utf8.RuneStart(summary[cut]) {
			cut--
		}
		summary = summary[:cut] + "..."
	}

	var b strings.Builder
	b.WriteString(summary)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Node-Id: %s\n", n.ID)
	fmt.Fprintf(&b, "Node-Type: %s\n", n.Type)
	parent := "none"
	if n.Parent != nil {
		parent = *n.Parent
	}
	fmt.Fprintf(&b, "Parent: %s\n", parent)
	fmt.Fprintf(&b, "Branch: %s\n", branch)
	if n.Type == models.NodeMerge {
		fmt.Fprintf(&b, "Merge-From: %s\n", n.MergeFrom)
		fmt.Fprintf(&b, "Source-Commit: %s\n", n.SourceCommit)
		fmt.Fprintf(&b, "Source-Nodes: %d\n", len(n.SourceNodeIDs))
	}
	return b.String()
}
