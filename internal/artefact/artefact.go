// Package artefact manages the single mutable working document of a
// branch. Every mutation produces exactly one state node whose snapshot
// hash is the blob id git itself assigns to the just-written content,
// so the ledger entry and the document state stay verifiably linked.
package artefact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/gitexec"
	"github.com/starford/eihwaz/internal/ledger"
	"github.com/starford/eihwaz/internal/models"
	"github.com/starford/eihwaz/internal/repo"
)

// Store reads and replaces artefact content.
type Store struct {
	resolver *repo.Resolver
	nodes    *ledger.Store
}

// NewStore creates an artefact store.
func NewStore(resolver *repo.Resolver, nodes *ledger.Store) *Store {
	return &Store{resolver: resolver, nodes: nodes}
}

// Get returns the live artefact content. A project with no artefact yet
// is valid: the result is empty text, not an error.
func (s *Store) Get(ctx context.Context, projectID string) (string, error) {
	dir, err := s.resolver.Dir(projectID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(dir, repo.ArtefactFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("artefact: read: %w", err)
	}
	return string(data), nil
}

// GetAt returns the artefact content as of ref without checking out.
// A live ref defers to Get; a revision where the artefact did not exist
// yet yields empty text ("not yet created at that point").
func (s *Store) GetAt(ctx context.Context, projectID, ref string) (string, error) {
	if repo.IsLiveRef(ref) {
		return s.Get(ctx, projectID)
	}
	run, err := s.resolver.Runner(projectID)
	if err != nil {
		return "", err
	}
	out, err := run.RunRaw(ctx, "show", ref+":"+repo.ArtefactFile)
	if err != nil {
		if gitexec.IsPathMissing(err) {
			return "", nil
		}
		return "", fmt.Errorf("artefact: read at %s: %w", ref, err)
	}
	return out, nil
}

// Update replaces the artefact content on the target branch (default:
// current) and appends a state node carrying the git blob hash of the new
// content, staging the artefact in the same commit. When a different
// branch was specified, the prior branch is restored afterward, success
// or failure.
func (s *Store) Update(ctx context.Context, projectID, content, branch string) (*models.NodeRecord, error) {
	run, err := s.resolver.Runner(projectID)
	if err != nil {
		return nil, err
	}
	current, err := repo.CurrentBranch(ctx, run)
	if err != nil {
		return nil, err
	}
	if branch != "" && branch != current {
		if !repo.BranchExists(ctx, run, branch) {
			return nil, fmt.Errorf("artefact: branch %s: %w", branch, apperr.ErrNotFound)
		}
		if _, err := run.Run(ctx, "checkout", "-q", branch); err != nil {
			return nil, fmt.Errorf("artefact: checkout %s: %w", branch, err)
		}
		defer func() {
			_ = run.RunSilent(context.WithoutCancel(ctx), "checkout", "-q", current)
		}()
	}

	if err := writeFileAtomic(filepath.Join(run.Dir(), repo.ArtefactFile), []byte(content)); err != nil {
		return nil, err
	}

	// The snapshot hash must be the one git itself assigns, so later
	// resolution through the object store always succeeds.
	hash, err := run.Run(ctx, "hash-object", "-w", repo.ArtefactFile)
	if err != nil {
		return nil, fmt.Errorf("artefact: hash content: %w", err)
	}

	return s.nodes.Append(ctx, projectID, models.NewStateNode(hash), ledger.AppendOptions{
		ExtraFiles: []string{repo.ArtefactFile},
	})
}

// ResolveSnapshot returns the exact content a state node's snapshot hash
// refers to, read back through the git object store.
func (s *Store) ResolveSnapshot(ctx context.Context, projectID, hash string) (string, error) {
	run, err := s.resolver.Runner(projectID)
	if err != nil {
		return "", err
	}
	out, err := run.RunRaw(ctx, "cat-file", "-p", hash)
	if err != nil {
		if gitexec.IsPathMissing(err) {
			return "", fmt.Errorf("artefact: snapshot %s: %w", hash, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("artefact: resolve snapshot %s: %w", hash, err)
	}
	return out, nil
}

// writeFileAtomic replaces path via tmp file, fsync, rename.
func writeFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".eihwaz-tmp-*")
	if err != nil {
		return fmt.Errorf("artefact: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("artefact: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("artefact: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("artefact: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("artefact: rename: %w", err)
	}
	success = true
	return nil
}
