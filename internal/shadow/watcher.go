package shadow

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/eihwaz/internal/artefact"
	"github.com/starford/eihwaz/internal/ledger"
	"github.com/starford/eihwaz/internal/repo"
)

// EventCallback is called after a watcher-driven mirror change.
// kind is "synced" or "removed".
type EventCallback func(kind string, projectID string)

// Watch starts an fsnotify watcher on the projects root and keeps the
// mirror current until ctx is cancelled. It reacts to out-of-band changes
// to the ledger, artefact, or metadata files of any project (e.g. a git
// operation run by hand) by scheduling a debounced reconciliation pass.
//
// Project directories created at runtime are added to the watch list;
// .git internals are deliberately not watched.
func Watch(ctx context.Context, db *DB, resolver *repo.Resolver, nodes *ledger.Store, artefacts *artefact.Store, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := resolver.Root()
	if err := w.Add(root); err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			_ = w.Add(filepath.Join(root, e.Name()))
		}
	}

	logger.Info("watcher: started", slog.String("root", root))

	// reconcileTimer debounces bursts of events into one sync pass.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	dirty := make(map[string]struct{})

	scheduleReconcile := func(projectID string) {
		dirty[projectID] = struct{}{}
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			before, _ := db.AllLedgerChecksums()
			if err := Sync(ctx, db, resolver, nodes, artefacts, logger); err != nil {
				logger.Warn("watcher: sync failed", slog.String("error", err.Error()))
			}
			if cb != nil {
				after, _ := db.AllLedgerChecksums()
				for p := range dirty {
					if _, ok := after[p]; !ok {
						if _, existed := before[p]; existed {
							cb("removed", p)
						}
						continue
					}
					cb("synced", p)
				}
			}
			dirty = make(map[string]struct{})

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil || rel == "." {
				continue
			}
			parts := splitPath(rel)
			projectID := parts[0]

			// New project directory: watch it and pick up its files.
			if len(parts) == 1 && ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := w.Add(ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					scheduleReconcile(projectID)
					continue
				}
			}

			// A project directory disappearing means the project went away.
			if len(parts) == 1 && ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleReconcile(projectID)
				continue
			}

			// Only top-level repository files matter; .git internals churn
			// on every command and are already reflected in those files.
			if len(parts) != 2 {
				continue
			}
			switch parts[1] {
			case repo.LedgerFile, repo.ArtefactFile, repo.MetaFile:
				scheduleReconcile(projectID)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func splitPath(rel string) []string {
	return strings.Split(filepath.ToSlash(rel), "/")
}
