package shadow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/eihwaz/internal/artefact"
	"github.com/starford/eihwaz/internal/branch"
	"github.com/starford/eihwaz/internal/checksum"
	"github.com/starford/eihwaz/internal/ledger"
	"github.com/starford/eihwaz/internal/repo"
)

// Sync walks the projects root and brings the mirror up to date:
//   - projects whose ledger file changed are rebuilt branch by branch
//   - projects removed from disk are deleted from the mirror
//
// The mirror only ever trails the repositories; per-write mirroring is
// handled by the service layer and this pass catches out-of-band changes.
func Sync(ctx context.Context, db *DB, resolver *repo.Resolver, nodes *ledger.Store, artefacts *artefact.Store, logger *slog.Logger) error {
	metas, err := resolver.List()
	if err != nil {
		return err
	}
	recorded, err := db.AllLedgerChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.ID] = struct{}{}

		cs, err := ledgerChecksum(resolver, m.ID)
		if err != nil {
			logger.Warn("sync: checksum failed", slog.String("project", m.ID), slog.String("error", err.Error()))
			continue
		}
		if recorded[m.ID] == cs {
			continue
		}
		if err := syncProject(ctx, db, resolver, nodes, artefacts, m.ID, cs); err != nil {
			logger.Warn("sync: mirror failed", slog.String("project", m.ID), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: mirrored", slog.String("project", m.ID))
		}
	}

	// Remove stale entries.
	for p := range recorded {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteProject(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("project", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("project", p))
			}
		}
	}

	return nil
}

// syncProject rebuilds one project's mirror rows, one view per branch,
// so rows for nodes reachable only from non-current branches survive
// reconciliation. The current branch goes first: its view is read live
// and wins the branch label for shared nodes.
func syncProject(ctx context.Context, db *DB, resolver *repo.Resolver, nodes *ledger.Store, artefacts *artefact.Store, projectID, ledgerCS string) error {
	run, err := resolver.Runner(projectID)
	if err != nil {
		return err
	}
	current, err := repo.CurrentBranch(ctx, run)
	if err != nil {
		return err
	}

	summaries, err := branch.NewManager(resolver, nodes).List(ctx, projectID)
	if err != nil {
		return err
	}

	views := make([]BranchView, 0, len(summaries))
	for _, s := range summaries {
		ref, live := s.HeadCommit, s.Name == current
		if live {
			// Out-of-band edits may not be committed yet.
			ref = ""
		}
		records, err := nodes.Read(ctx, projectID, ref)
		if err != nil {
			return err
		}
		var content string
		if live {
			content, err = artefacts.Get(ctx, projectID)
		} else {
			content, err = artefacts.GetAt(ctx, projectID, s.HeadCommit)
		}
		if err != nil {
			return err
		}
		v := BranchView{Branch: s.Name, Records: records, Artefact: content}
		if live {
			views = append([]BranchView{v}, views...)
		} else {
			views = append(views, v)
		}
	}

	return db.ReplaceProject(projectID, views, ledgerCS)
}

// ledgerChecksum hashes a project's live ledger file; a missing file
// hashes as empty content.
func ledgerChecksum(resolver *repo.Resolver, projectID string) (string, error) {
	dir, err := resolver.Dir(projectID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(dir, repo.LedgerFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			data = nil
		} else {
			return "", err
		}
	}
	return checksum.Sum(data), nil
}
