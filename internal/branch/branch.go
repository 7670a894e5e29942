// Package branch creates, switches, lists, and merges a project's
// branches. A branch is identified purely by name; nothing is persisted
// beyond the git ref and the ledger content reachable from it.
package branch

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/gitexec"
	"github.com/starford/eihwaz/internal/ledger"
	"github.com/starford/eihwaz/internal/models"
	"github.com/starford/eihwaz/internal/repo"
)

// Manager owns branch operations, including the merge algorithm.
type Manager struct {
	resolver *repo.Resolver
	nodes    *ledger.Store
}

// NewManager creates a branch manager.
func NewManager(resolver *repo.Resolver, nodes *ledger.Store) *Manager {
	return &Manager{resolver: resolver, nodes: nodes}
}

// Create creates a new branch and leaves it checked out. Creation is
// explicitly a navigation action, so the prior branch is not restored.
// When fromRef differs from the current branch it is checked out first
// and the new branch starts from that point.
func (m *Manager) Create(ctx context.Context, projectID, name, fromRef string) error {
	run, err := m.resolver.Runner(projectID)
	if err != nil {
		return err
	}
	if repo.BranchExists(ctx, run, name) {
		return fmt.Errorf("branch: %s: %w", name, apperr.ErrAlreadyExists)
	}
	current, err := repo.CurrentBranch(ctx, run)
	if err != nil {
		return err
	}
	if fromRef != "" && fromRef != current {
		if _, err := run.Run(ctx, "checkout", "-q", fromRef); err != nil {
			return fmt.Errorf("branch: checkout %s: %w", fromRef, err)
		}
	}
	if _, err := run.Run(ctx, "checkout", "-q", "-b", name); err != nil {
		return fmt.Errorf("branch: create %s: %w", name, err)
	}
	return nil
}

// Switch checks out an existing branch.
func (m *Manager) Switch(ctx context.Context, projectID, name string) error {
	run, err := m.resolver.Runner(projectID)
	if err != nil {
		return err
	}
	if !repo.BranchExists(ctx, run, name) {
		return fmt.Errorf("branch: %s: %w", name, apperr.ErrNotFound)
	}
	if _, err := run.Run(ctx, "checkout", "-q", name); err != nil {
		return fmt.Errorf("branch: switch %s: %w", name, err)
	}
	return nil
}

// List enumerates all local branches. Each summary is recomputed from the
// branch's head revision and ledger view on every call; exactly one branch
// (the trunk) is marked IsTrunk.
func (m *Manager) List(ctx context.Context, projectID string) ([]models.BranchSummary, error) {
	run, err := m.resolver.Runner(projectID)
	if err != nil {
		return nil, err
	}
	out, err := run.Run(ctx, "for-each-ref", "refs/heads", "--format=%(refname:short)\t%(objectname)")
	if err != nil {
		return nil, fmt.Errorf("branch: list: %w", err)
	}

	summaries := []models.BranchSummary{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, head, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		records, err := m.nodes.Read(ctx, projectID, head)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, models.BranchSummary{
			Name:       name,
			HeadCommit: head,
			NodeCount:  len(records),
			IsTrunk:    name == m.resolver.Trunk(),
		})
	}
	return summaries, nil
}

// Merge folds sourceBranch into the current branch. Tracked files keep the
// target branch's content (a "keep mine" strategy); the only ledger change
// is a single merge node whose SourceNodeIDs manifest lists the source-only
// node ids that became reachable. Nodes are immutable facts, so nothing is
// rewritten or replayed.
//
// On any failure after the git merge begins, the in-progress merge is
// aborted best-effort and the original error re-raised, so the repository
// is never left half-merged from the caller's perspective.
func (m *Manager) Merge(ctx context.Context, projectID, sourceBranch, summary string) (*models.NodeRecord, error) {
	if strings.TrimSpace(summary) == "" {
		return nil, fmt.Errorf("branch: empty merge summary: %w", apperr.ErrValidation)
	}
	run, err := m.resolver.Runner(projectID)
	if err != nil {
		return nil, err
	}
	if err := repo.RequireClean(ctx, run); err != nil {
		return nil, err
	}
	current, err := repo.CurrentBranch(ctx, run)
	if err != nil {
		return nil, err
	}
	if sourceBranch == current {
		return nil, fmt.Errorf("branch: cannot merge %s into itself: %w", sourceBranch, apperr.ErrInvalidState)
	}
	if !repo.BranchExists(ctx, run, sourceBranch) {
		return nil, fmt.Errorf("branch: merge source %s does not exist: %w", sourceBranch, apperr.ErrInvalidState)
	}

	targetRecords, err := m.nodes.Read(ctx, projectID, "")
	if err != nil {
		return nil, err
	}
	sourceRecords, err := m.nodes.Read(ctx, projectID, sourceBranch)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(targetRecords))
	for _, r := range targetRecords {
		seen[r.ID] = struct{}{}
	}
	unique := []string{}
	for _, r := range sourceRecords {
		if _, ok := seen[r.ID]; !ok {
			unique = append(unique, r.ID)
		}
	}

	sourceCommit, err := repo.ResolveRef(ctx, run, sourceBranch)
	if err != nil {
		return nil, err
	}

	// Establish the ancestry edge without touching tracked content and
	// without committing; the merge node commit below completes it.
	if _, err := run.Run(ctx, "merge", "--no-commit", "--no-ff", "-s", "ours", "-q", sourceBranch); err != nil {
		m.abortMerge(ctx, run)
		return nil, fmt.Errorf("branch: merge %s: %w", sourceBranch, err)
	}

	node := models.NewMergeNode(sourceBranch, summary, sourceCommit, unique)
	appended, err := m.nodes.Append(ctx, projectID, node, ledger.AppendOptions{})
	if err != nil {
		m.abortMerge(ctx, run)
		return nil, err
	}
	return appended, nil
}

// abortMerge backs out of an in-progress merge. Its own failures are
// swallowed: the caller re-raises the original error.
func (m *Manager) abortMerge(ctx context.Context, run *gitexec.Runner) {
	_ = run.RunSilent(context.WithoutCancel(ctx), "merge", "--abort")
}
