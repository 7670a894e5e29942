// Package ledger persists node records as an ordered, append-only
// NDJSON sequence per branch, one commit per append.
package ledger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/gitexec"
	"github.com/starford/eihwaz/internal/models"
	"github.com/starford/eihwaz/internal/repo"
)

// Store reads and extends per-project ledgers. It is the single source of
// truth that both the branch manager (merge) and the artefact store
// (snapshot linkage) build on.
type Store struct {
	resolver *repo.Resolver
}

// NewStore creates a ledger store backed by the given resolver.
func NewStore(resolver *repo.Resolver) *Store {
	return &Store{resolver: resolver}
}

// AppendOptions control where an append lands and what is committed with it.
type AppendOptions struct {
	// Branch is the target branch; empty means the currently checked-out one.
	// When it differs from the current branch the append checks it out and
	// restores the prior branch afterward, success or failure.
	Branch string
	// ExtraFiles are staged in the same commit as the ledger line
	// (e.g. the artefact file for a state node).
	ExtraFiles []string
}

// Append assigns a new unique id and parent pointer to node, writes it as
// one new line at the end of the branch's ledger file, and commits.
// If the target-branch checkout fails the ledger file remains unchanged.
func (s *Store) Append(ctx context.Context, projectID string, node models.NodeRecord, opts AppendOptions) (*models.NodeRecord, error) {
	run, err := s.resolver.Runner(projectID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.EnsureIdentity(ctx, run); err != nil {
		return nil, err
	}

	current, err := repo.CurrentBranch(ctx, run)
	if err != nil {
		return nil, err
	}

	target := opts.Branch
	if target == "" {
		target = current
	}
	if target != current {
		if !repo.BranchExists(ctx, run, target) {
			return nil, fmt.Errorf("ledger: branch %s: %w", target, apperr.ErrNotFound)
		}
		if _, err := run.Run(ctx, "checkout", "-q", target); err != nil {
			return nil, fmt.Errorf("ledger: checkout %s: %w", target, err)
		}
		// Restore the original branch no matter how the append ends.
		defer func() {
			restoreCtx := context.WithoutCancel(ctx)
			_ = run.RunSilent(restoreCtx, "checkout", "-q", current)
		}()
	}

	existing, err := s.readLive(run.Dir())
	if err != nil {
		return nil, err
	}

	node.ID = models.NewNodeID()
	node.Timestamp = time.Now().UTC()
	node.Parent = nil
	if len(existing) > 0 {
		last := existing[len(existing)-1].ID
		node.Parent = &last
	}
	if err := node.Validate(); err != nil {
		return nil, err
	}

	line, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode node: %w", err)
	}
	path := filepath.Join(run.Dir(), repo.LedgerFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", repo.LedgerFile, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return nil, fmt.Errorf("ledger: append: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("ledger: close: %w", err)
	}

	stage := append([]string{"add", repo.LedgerFile}, opts.ExtraFiles...)
	if _, err := run.Run(ctx, stage...); err != nil {
		return nil, fmt.Errorf("ledger: stage: %w", err)
	}
	if _, err := run.Run(ctx, "commit", "-q", "-m", repo.CommitMessage(node, target)); err != nil {
		return nil, fmt.Errorf("ledger: commit: %w", err)
	}
	return &node, nil
}

// Read returns the ledger view at ref in file order, which is also causal
// order. A live ref reads the working copy directly; any other ref reads
// the file content as of that revision without checking out. A file or
// path missing at the revision yields an empty sequence, never an error.
func (s *Store) Read(ctx context.Context, projectID, ref string) ([]models.NodeRecord, error) {
	if repo.IsLiveRef(ref) {
		dir, err := s.resolver.Dir(projectID)
		if err != nil {
			return nil, err
		}
		return s.readLive(dir)
	}

	run, err := s.resolver.Runner(projectID)
	if err != nil {
		return nil, err
	}
	out, err := run.RunRaw(ctx, "show", ref+":"+repo.LedgerFile)
	if err != nil {
		if gitexec.IsPathMissing(err) {
			return []models.NodeRecord{}, nil
		}
		return nil, fmt.Errorf("ledger: read at %s: %w", ref, err)
	}
	return parseRecords(strings.NewReader(out))
}

func (s *Store) readLive(dir string) ([]models.NodeRecord, error) {
	data, err := os.ReadFile(filepath.Join(dir, repo.LedgerFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.NodeRecord{}, nil
		}
		return nil, fmt.Errorf("ledger: read: %w", err)
	}
	return parseRecords(bytes.NewReader(data))
}

// parseRecords decodes one JSON node per line. Unknown fields are
// tolerated; blank lines are skipped.
func parseRecords(r io.Reader) ([]models.NodeRecord, error) {
	out := []models.NodeRecord{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var n models.NodeRecord
		if err := json.Unmarshal([]byte(line), &n); err != nil {
			return nil, fmt.Errorf("ledger: parse record: %w", err)
		}
		out = append(out, n)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ledger: scan: %w", err)
	}
	return out, nil
}

