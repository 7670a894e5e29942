// Package service coordinates the ledger, branch, and artefact layers,
// serializes mutating operations per project, and mirrors authoritative
// writes into the shadow store.
package service

import (
	"context"
	"log/slog"

	"github.com/starford/eihwaz/internal/artefact"
	"github.com/starford/eihwaz/internal/branch"
	"github.com/starford/eihwaz/internal/ledger"
	"github.com/starford/eihwaz/internal/locker"
	"github.com/starford/eihwaz/internal/models"
	"github.com/starford/eihwaz/internal/repo"
	"github.com/starford/eihwaz/internal/shadow"
)

// Service is the operation surface the API and MCP layers call.
type Service struct {
	resolver  *repo.Resolver
	nodes     *ledger.Store
	branches  *branch.Manager
	artefacts *artefact.Store
	mirror    shadow.Mirror // optional; nil disables shadow writes
	locks     *locker.Keyed
	logger    *slog.Logger
}

// NewService creates a service. mirror may be nil.
func NewService(resolver *repo.Resolver, mirror shadow.Mirror, logger *slog.Logger) *Service {
	nodes := ledger.NewStore(resolver)
	return &Service{
		resolver:  resolver,
		nodes:     nodes,
		branches:  branch.NewManager(resolver, nodes),
		artefacts: artefact.NewStore(resolver, nodes),
		mirror:    mirror,
		locks:     locker.New(),
		logger:    logger,
	}
}

// Ledger exposes the underlying node store (used by startup sync).
func (s *Service) Ledger() *ledger.Store { return s.nodes }

// Artefacts exposes the underlying artefact store (used by startup sync).
func (s *Service) Artefacts() *artefact.Store { return s.artefacts }

// CreateProject initializes a new project repository on the trunk branch.
func (s *Service) CreateProject(ctx context.Context, projectID, name string) (*models.ProjectMeta, error) {
	s.locks.Lock(projectID)
	defer s.locks.Unlock(projectID)
	return s.resolver.Init(ctx, projectID, name)
}

// GetProject returns a project's metadata.
func (s *Service) GetProject(_ context.Context, projectID string) (*models.ProjectMeta, error) {
	return s.resolver.Meta(projectID)
}

// ListProjects enumerates all projects under the root.
func (s *Service) ListProjects(_ context.Context) ([]models.ProjectMeta, error) {
	return s.resolver.List()
}

// AppendNode appends a node to the target branch (default: current) and
// mirrors it to the shadow store.
func (s *Service) AppendNode(ctx context.Context, projectID string, node models.NodeRecord, branchName string) (*models.NodeRecord, error) {
	s.locks.Lock(projectID)
	defer s.locks.Unlock(projectID)

	appended, err := s.nodes.Append(ctx, projectID, node, ledger.AppendOptions{Branch: branchName})
	if err != nil {
		return nil, err
	}
	s.shadowNode(ctx, projectID, branchName, *appended)
	return appended, nil
}

// ReadLedger returns the ledger view at ref (live when ref is empty).
// Reading at a source branch's ref is also how consumers dereference the
// node ids listed in a merge node's manifest.
func (s *Service) ReadLedger(ctx context.Context, projectID, ref string) ([]models.NodeRecord, error) {
	return s.nodes.Read(ctx, projectID, ref)
}

// CreateBranch creates a branch and leaves it checked out.
func (s *Service) CreateBranch(ctx context.Context, projectID, name, fromRef string) error {
	s.locks.Lock(projectID)
	defer s.locks.Unlock(projectID)
	return s.branches.Create(ctx, projectID, name, fromRef)
}

// SwitchBranch checks out an existing branch.
func (s *Service) SwitchBranch(ctx context.Context, projectID, name string) error {
	s.locks.Lock(projectID)
	defer s.locks.Unlock(projectID)
	return s.branches.Switch(ctx, projectID, name)
}

// ListBranches enumerates all local branches with derived summaries.
func (s *Service) ListBranches(ctx context.Context, projectID string) ([]models.BranchSummary, error) {
	return s.branches.List(ctx, projectID)
}

// MergeBranch folds sourceBranch into the current branch.
func (s *Service) MergeBranch(ctx context.Context, projectID, sourceBranch, summary string) (*models.NodeRecord, error) {
	s.locks.Lock(projectID)
	defer s.locks.Unlock(projectID)

	node, err := s.branches.Merge(ctx, projectID, sourceBranch, summary)
	if err != nil {
		return nil, err
	}
	s.shadowNode(ctx, projectID, "", *node)
	return node, nil
}

// GetArtefact returns the live artefact content.
func (s *Service) GetArtefact(ctx context.Context, projectID string) (string, error) {
	return s.artefacts.Get(ctx, projectID)
}

// GetArtefactAt returns the artefact content as of ref.
func (s *Service) GetArtefactAt(ctx context.Context, projectID, ref string) (string, error) {
	return s.artefacts.GetAt(ctx, projectID, ref)
}

// UpdateArtefact replaces the artefact on the target branch and appends
// the linked state node.
func (s *Service) UpdateArtefact(ctx context.Context, projectID, content, branchName string) (*models.NodeRecord, error) {
	s.locks.Lock(projectID)
	defer s.locks.Unlock(projectID)

	node, err := s.artefacts.Update(ctx, projectID, content, branchName)
	if err != nil {
		return nil, err
	}
	s.shadowNode(ctx, projectID, branchName, *node)
	s.shadowArtefact(ctx, projectID, branchName, content)
	return node, nil
}

// ResolveSnapshot reads a state node's snapshot content back through the
// git object store.
func (s *Service) ResolveSnapshot(ctx context.Context, projectID, hash string) (string, error) {
	return s.artefacts.ResolveSnapshot(ctx, projectID, hash)
}

// Search queries mirrored message content. Without a mirror it returns
// no results rather than an error.
func (s *Service) Search(_ context.Context, query string, limit int) ([]shadow.SearchResult, error) {
	if s.mirror == nil {
		return []shadow.SearchResult{}, nil
	}
	return s.mirror.Search(query, limit)
}

// shadowNode mirrors a node write, fire-and-forget. The mirror sits
// outside the transaction boundary: its failures are logged and never
// roll back the authoritative commit.
func (s *Service) shadowNode(ctx context.Context, projectID, branchName string, n models.NodeRecord) {
	if s.mirror == nil {
		return
	}
	branchName = s.effectiveBranch(ctx, projectID, branchName)
	go func() {
		if err := s.mirror.MirrorNode(projectID, branchName, n); err != nil {
			s.logger.Warn("shadow: node mirror failed",
				slog.String("project", projectID),
				slog.String("node", n.ID),
				slog.String("error", err.Error()))
		}
	}()
}

// shadowArtefact mirrors an artefact write, fire-and-forget.
func (s *Service) shadowArtefact(ctx context.Context, projectID, branchName, content string) {
	if s.mirror == nil {
		return
	}
	branchName = s.effectiveBranch(ctx, projectID, branchName)
	go func() {
		if err := s.mirror.MirrorArtefact(projectID, branchName, content); err != nil {
			s.logger.Warn("shadow: artefact mirror failed",
				slog.String("project", projectID),
				slog.String("error", err.Error()))
		}
	}()
}

// effectiveBranch resolves an empty branch name to the checked-out one.
func (s *Service) effectiveBranch(ctx context.Context, projectID, branchName string) string {
	if branchName != "" {
		return branchName
	}
	run, err := s.resolver.Runner(projectID)
	if err != nil {
		return ""
	}
	current, err := repo.CurrentBranch(ctx, run)
	if err != nil {
		return ""
	}
	return current
}
